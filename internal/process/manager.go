package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of a helper process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusBackoff  Status = "backoff"
	StatusFailed   Status = "failed"
)

// maxLineLength flushes helper output that never ends a line.
const maxLineLength = 4096

// ErrAlreadyRunning is returned by Start on a running manager.
var ErrAlreadyRunning = errors.New("process: already running")

// Config describes one supervised helper.
type Config struct {
	Name   string
	Binary string
	Args   []string
	Env    []string

	// RestartOnFailure restarts the helper after an unexpected exit.
	RestartOnFailure bool

	// RestartDelay is the first backoff delay. It doubles per consecutive
	// failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a helper must run before its failure
	// count resets.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// DefaultConfig returns a Config with restart enabled and default timings.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:               name,
		Binary:             binary,
		Args:               args,
		RestartOnFailure:   true,
		RestartDelay:       5 * time.Second,
		MaxRestartDelay:    5 * time.Minute,
		StableThreshold:    2 * time.Minute,
		MaxRestartAttempts: 10,
		GracefulTimeout:    10 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	if c.RestartDelay <= 0 {
		c.RestartDelay = 5 * time.Second
	}
	if c.MaxRestartDelay <= 0 {
		c.MaxRestartDelay = 5 * time.Minute
	}
	if c.MaxRestartDelay < c.RestartDelay {
		c.MaxRestartDelay = c.RestartDelay
	}
	if c.StableThreshold <= 0 {
		c.StableThreshold = 2 * time.Minute
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = 10 * time.Second
	}
}

// Logger defines the logging interface for helper supervision.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager runs one helper process and restarts it on failure.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	cmd       *exec.Cmd
	status    Status
	restarts  int
	failures  int
	lastErr   error
	startedAt time.Time
	stopping  bool
	stopCh    chan struct{}
	done      chan struct{}
}

// NewManager creates a Manager. Zero timings take their defaults.
func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:    cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Name returns the helper name.
func (m *Manager) Name() string { return m.cfg.Name }

// Start launches the helper and its supervision loop.
//
// Returns:
//   - error: ErrAlreadyRunning, or the launch error for the first attempt
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting || m.status == StatusBackoff {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.status = StatusStarting
	m.stopping = false
	m.failures = 0
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	cmd, err := m.launch()
	if err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastErr = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.supervise(ctx, cmd)
	return nil
}

// launch starts one instance of the helper in its own process group.
func (m *Manager) launch() (*exec.Cmd, error) {
	cmd := exec.Command(m.cfg.Binary, m.cfg.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = m.cfg.GracefulTimeout
	if len(m.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), m.cfg.Env...)
	}

	cmd.Stdout = &lineLogger{m: m, stream: "stdout"}
	cmd.Stderr = &lineLogger{m: m, stream: "stderr"}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("process: starting %s: %w", m.cfg.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startedAt = time.Now()
	m.mu.Unlock()

	m.logger.Info("helper started", "name", m.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// lineLogger forwards helper output to the log one line at a time.
// exec copies each stream from a single goroutine, so no locking is needed.
type lineLogger struct {
	m      *Manager
	stream string
	buf    []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.m.logger.Debug("helper output", "name", l.m.cfg.Name, "stream", l.stream, "line", string(l.buf[:i]))
		l.buf = l.buf[i+1:]
	}
	if len(l.buf) > maxLineLength {
		l.m.logger.Debug("helper output", "name", l.m.cfg.Name, "stream", l.stream, "line", string(l.buf))
		l.buf = l.buf[:0]
	}
	return len(p), nil
}

// supervise waits for each instance to exit and restarts it with backoff.
func (m *Manager) supervise(ctx context.Context, cmd *exec.Cmd) {
	defer close(m.done)

	for {
		exitCh := make(chan error, 1)
		go func() { exitCh <- cmd.Wait() }()

		var err error
		select {
		case err = <-exitCh:
		case <-ctx.Done():
			m.terminate(cmd, exitCh)
			m.setStatus(StatusStopped)
			return
		}

		m.mu.Lock()
		stopping := m.stopping
		ran := time.Since(m.startedAt)
		if stopping {
			m.status = StatusStopped
			m.mu.Unlock()
			m.logger.Info("helper stopped", "name", m.cfg.Name)
			return
		}
		if ran >= m.cfg.StableThreshold {
			m.failures = 0
		}
		m.failures++
		m.lastErr = exitError(err)
		failures := m.failures
		m.mu.Unlock()

		m.logger.Warn("helper exited", "name", m.cfg.Name, "error", m.lastErrSafe(), "ran", ran)

		if !m.cfg.RestartOnFailure {
			m.setStatus(StatusFailed)
			return
		}
		if m.cfg.MaxRestartAttempts > 0 && failures > m.cfg.MaxRestartAttempts {
			m.logger.Error("helper restart limit reached", "name", m.cfg.Name, "attempts", failures-1)
			m.setStatus(StatusFailed)
			return
		}

		delay := m.backoff(failures)
		m.setStatus(StatusBackoff)
		m.logger.Info("restarting helper", "name", m.cfg.Name, "attempt", failures, "delay", delay)

		select {
		case <-ctx.Done():
			m.setStatus(StatusStopped)
			return
		case <-m.stopCh:
			m.setStatus(StatusStopped)
			return
		case <-time.After(delay):
		}

		next, err := m.launch()
		if err != nil {
			m.logger.Error("helper restart failed", "name", m.cfg.Name, "error", err)
			m.mu.Lock()
			m.lastErr = err
			m.status = StatusFailed
			m.mu.Unlock()
			return
		}
		m.mu.Lock()
		m.restarts++
		m.mu.Unlock()
		cmd = next
	}
}

// backoff returns the delay before restart attempt n (1-based).
func (m *Manager) backoff(n int) time.Duration {
	d := m.cfg.RestartDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= m.cfg.MaxRestartDelay {
			return m.cfg.MaxRestartDelay
		}
	}
	return d
}

// terminate signals the process group and waits for exit, escalating to
// SIGKILL after GracefulTimeout.
func (m *Manager) terminate(cmd *exec.Cmd, exitCh <-chan error) {
	if cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("SIGTERM failed", "name", m.cfg.Name, "error", err)
	}
	select {
	case <-exitCh:
		return
	case <-time.After(m.cfg.GracefulTimeout):
	}
	m.logger.Warn("helper ignored SIGTERM, killing", "name", m.cfg.Name, "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Error("SIGKILL failed", "name", m.cfg.Name, "error", err)
	}
	<-exitCh
}

// Stop terminates the helper and waits for supervision to end.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.done == nil || m.stopping {
		m.mu.Unlock()
		return
	}
	m.stopping = true
	close(m.stopCh)
	cmd := m.cmd
	status := m.status
	done := m.done
	m.mu.Unlock()

	if status == StatusRunning && cmd != nil && cmd.Process != nil {
		pid := cmd.Process.Pid
		if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
			m.logger.Warn("SIGTERM failed", "name", m.cfg.Name, "error", err)
		}
		select {
		case <-done:
			return
		case <-time.After(m.cfg.GracefulTimeout):
		}
		//nolint:errcheck // the group may already be gone
		syscall.Kill(-pid, syscall.SIGKILL)
	}
	<-done
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) lastErrSafe() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// exitError normalises a nil Wait result, since a clean exit is still
// unexpected for a helper.
func exitError(err error) error {
	if err == nil {
		return errors.New("exited with status 0")
	}
	return err
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Stats is a point-in-time view of one helper.
type Stats struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	PID       int    `json:"pid,omitempty"`
	Uptime    string `json:"uptime,omitempty"`
	Restarts  int    `json:"restarts"`
	LastError string `json:"last_error,omitempty"`
}

// Stats returns the helper's current statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{Name: m.cfg.Name, Status: m.status, Restarts: m.restarts}
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		st.PID = m.cmd.Process.Pid
		st.Uptime = time.Since(m.startedAt).Truncate(time.Second).String()
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}
