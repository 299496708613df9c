package process

import (
	"context"
	"sort"
	"sync"

	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
)

// Supervisor runs the configured hardware helpers.
type Supervisor struct {
	mu       sync.Mutex
	managers []*Manager
	logger   Logger
}

// NewSupervisor creates one Manager per helper entry. Entries without a
// binary are skipped.
func NewSupervisor(helpers []config.HelperConfig) *Supervisor {
	s := &Supervisor{logger: noopLogger{}}
	for _, h := range helpers {
		if h.Binary == "" {
			continue
		}
		name := h.Name
		if name == "" {
			name = h.Binary
		}
		s.managers = append(s.managers, NewManager(Config{
			Name:               name,
			Binary:             h.Binary,
			Args:               h.Args,
			RestartOnFailure:   h.RestartOnFailure,
			RestartDelay:       h.RestartDelay,
			MaxRestartAttempts: h.MaxRestartAttempts,
		}))
	}
	return s
}

// SetLogger sets the logger for the supervisor and every helper.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
	for _, m := range s.managers {
		m.SetLogger(logger)
	}
}

// Len returns the number of supervised helpers.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.managers)
}

// Start launches every helper. A helper that fails to launch is logged and
// left in the failed state; the rest still start.
//
// Returns:
//   - int: number of helpers running after the call
func (s *Supervisor) Start(ctx context.Context) int {
	s.mu.Lock()
	managers := append([]*Manager(nil), s.managers...)
	logger := s.logger
	s.mu.Unlock()

	running := 0
	for _, m := range managers {
		if err := m.Start(ctx); err != nil {
			logger.Warn("helper unavailable", "name", m.Name(), "error", err)
			continue
		}
		running++
	}
	return running
}

// Stop terminates every helper concurrently and waits for them.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	managers := append([]*Manager(nil), s.managers...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, m := range managers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Stop()
		}()
	}
	wg.Wait()
}

// Stats returns per-helper statistics sorted by name.
func (s *Supervisor) Stats() []Stats {
	s.mu.Lock()
	managers := append([]*Manager(nil), s.managers...)
	s.mu.Unlock()

	out := make([]Stats, 0, len(managers))
	for _, m := range managers {
		out = append(out, m.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
