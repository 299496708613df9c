package deviceio

import (
	"context"
	"sync"

	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// scriptedIO is a hal.DeviceIO that records writes and replays scripted reads.
type scriptedIO struct {
	mu       sync.Mutex
	writes   [][]byte
	reads    [][]byte
	writeErr error
	readErr  error
	closed   []string
}

func (s *scriptedIO) Open(_ context.Context, class hal.CapabilityClass, c hal.Candidate) (hal.Handle, error) {
	return hal.Handle{ID: "h-" + c.Address, Class: class, Candidate: c}, nil
}

func (s *scriptedIO) Write(_ context.Context, _ hal.Handle, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes = append(s.writes, append([]byte{}, payload...))
	return nil
}

func (s *scriptedIO) Read(_ context.Context, _ hal.Handle) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	if len(s.reads) == 0 {
		return nil, nil
	}
	out := s.reads[0]
	s.reads = s.reads[1:]
	return out, nil
}

func (s *scriptedIO) Close(h hal.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, h.ID)
	return nil
}
