package process

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingLogger keeps every message for assertions.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) add(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg+" "+fmt.Sprint(args...))
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add(msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add(msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add(msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add(msg, args...) }

func (l *recordingLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{Name: "vision", Binary: "/usr/bin/vision-helper"})

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"RestartDelay", m.cfg.RestartDelay, 5 * time.Second},
		{"MaxRestartDelay", m.cfg.MaxRestartDelay, 5 * time.Minute},
		{"StableThreshold", m.cfg.StableThreshold, 2 * time.Minute},
		{"GracefulTimeout", m.cfg.GracefulTimeout, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
	if m.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want %q", m.Status(), StatusStopped)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("speech", "/usr/bin/speechd", []string{"--daemon"})
	if !cfg.RestartOnFailure || cfg.MaxRestartAttempts != 10 {
		t.Errorf("DefaultConfig() = %+v, want restart enabled with 10 attempts", cfg)
	}
	if len(cfg.Args) != 1 || cfg.Args[0] != "--daemon" {
		t.Errorf("Args = %v, want [--daemon]", cfg.Args)
	}
}

func TestManager_Backoff(t *testing.T) {
	m := NewManager(Config{Name: "b", Binary: "/bin/true", RestartDelay: time.Second, MaxRestartDelay: 5 * time.Second})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.attempt), func(t *testing.T) {
			if got := m.backoff(tt.attempt); got != tt.want {
				t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestManager_StopWhenNeverStarted(t *testing.T) {
	m := NewManager(Config{Name: "idle", Binary: "/bin/true"})
	m.Stop()
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
}

func TestManager_StartMissingBinary(t *testing.T) {
	m := NewManager(Config{Name: "ghost", Binary: "/nonexistent/helper"})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() error = nil, want launch error")
	}
	if m.Status() != StatusFailed {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusFailed)
	}
	if m.Stats().LastError == "" {
		t.Error("Stats().LastError is empty after a failed launch")
	}
	m.Stop()
}

func TestManager_StartAndStop(t *testing.T) {
	m := NewManager(Config{
		Name:            "sleeper",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	st := m.Stats()
	if st.Status != StatusRunning || st.PID == 0 {
		t.Errorf("Stats() = %+v, want running with a pid", st)
	}

	m.Stop()
	if m.Status() != StatusStopped {
		t.Errorf("Status() after Stop = %q, want %q", m.Status(), StatusStopped)
	}
	if m.Stats().Restarts != 0 {
		t.Errorf("Restarts = %d, want 0 after a requested stop", m.Stats().Restarts)
	}
}

func TestManager_ContextCancelStops(t *testing.T) {
	m := NewManager(Config{Name: "sleeper", Binary: "/bin/sleep", Args: []string{"60"}, GracefulTimeout: 2 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	cancel()

	waitFor(t, "stopped status", func() bool { return m.Status() == StatusStopped })
}

func TestManager_RestartsOnFailure(t *testing.T) {
	m := NewManager(Config{
		Name:               "flaky",
		Binary:             "/bin/sh",
		Args:               []string{"-c", "exit 3"},
		RestartOnFailure:   true,
		RestartDelay:       10 * time.Millisecond,
		MaxRestartDelay:    20 * time.Millisecond,
		MaxRestartAttempts: 2,
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()

	waitFor(t, "restart limit", func() bool { return m.Status() == StatusFailed })

	st := m.Stats()
	if st.Restarts != 2 {
		t.Errorf("Restarts = %d, want 2", st.Restarts)
	}
	if !strings.Contains(st.LastError, "exit status 3") {
		t.Errorf("LastError = %q, want exit status 3", st.LastError)
	}
}

func TestManager_NoRestartWhenDisabled(t *testing.T) {
	m := NewManager(Config{Name: "once", Binary: "/bin/sh", Args: []string{"-c", "exit 0"}})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()

	waitFor(t, "failed status", func() bool { return m.Status() == StatusFailed })
	if got := m.Stats(); got.Restarts != 0 || got.LastError == "" {
		t.Errorf("Stats() = %+v, want no restarts and a recorded exit", got)
	}
}

func TestManager_StopDuringBackoff(t *testing.T) {
	m := NewManager(Config{
		Name:             "slow-restart",
		Binary:           "/bin/sh",
		Args:             []string{"-c", "exit 1"},
		RestartOnFailure: true,
		RestartDelay:     time.Minute,
	})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	waitFor(t, "backoff", func() bool { return m.Status() == StatusBackoff })

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked during backoff")
	}
	if m.Status() != StatusStopped {
		t.Errorf("Status() = %q, want %q", m.Status(), StatusStopped)
	}
}

func TestManager_LogsOutputLines(t *testing.T) {
	log := &recordingLogger{}
	m := NewManager(Config{Name: "chatty", Binary: "/bin/sh", Args: []string{"-c", "echo gesture Hi; echo oops >&2"}})
	m.SetLogger(log)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()

	waitFor(t, "exit", func() bool { return m.Status() == StatusFailed })
	if !log.contains("gesture Hi") {
		t.Error("stdout line not logged")
	}
	if !log.contains("oops") {
		t.Error("stderr line not logged")
	}
}
