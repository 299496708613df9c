package deviceio

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// Candidate kinds with a built-in driver.
const (
	KindSerial = "serial"
	KindMQTT   = "mqtt"
	KindExec   = "exec"
)

// Mux is a hal.DeviceIO that routes every call to the driver registered for
// the candidate kind.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Mux struct {
	mu      sync.RWMutex
	drivers map[string]hal.DeviceIO
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{drivers: make(map[string]hal.DeviceIO)}
}

// Register binds a driver to a candidate kind, replacing any previous one.
func (m *Mux) Register(kind string, driver hal.DeviceIO) {
	m.mu.Lock()
	m.drivers[kind] = driver
	m.mu.Unlock()
}

// Kinds returns the registered kinds in sorted order.
func (m *Mux) Kinds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kinds := make([]string, 0, len(m.drivers))
	for k := range m.drivers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (m *Mux) driver(kind string) (hal.DeviceIO, error) {
	m.mu.RLock()
	d, ok := m.drivers[kind]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", hal.ErrNoDriver, kind)
	}
	return d, nil
}

// Open implements hal.DeviceIO.
func (m *Mux) Open(ctx context.Context, class hal.CapabilityClass, c hal.Candidate) (hal.Handle, error) {
	d, err := m.driver(c.Kind)
	if err != nil {
		return hal.Handle{}, err
	}
	return d.Open(ctx, class, c)
}

// Write implements hal.DeviceIO.
func (m *Mux) Write(ctx context.Context, h hal.Handle, payload []byte) error {
	d, err := m.driver(h.Candidate.Kind)
	if err != nil {
		return err
	}
	return d.Write(ctx, h, payload)
}

// Read implements hal.DeviceIO.
func (m *Mux) Read(ctx context.Context, h hal.Handle) ([]byte, error) {
	d, err := m.driver(h.Candidate.Kind)
	if err != nil {
		return nil, err
	}
	return d.Read(ctx, h)
}

// Close implements hal.DeviceIO.
func (m *Mux) Close(h hal.Handle) error {
	d, err := m.driver(h.Candidate.Kind)
	if err != nil {
		return err
	}
	return d.Close(h)
}

// newHandle issues a handle with a fresh id prefixed by the candidate kind.
func newHandle(class hal.CapabilityClass, c hal.Candidate) hal.Handle {
	return hal.Handle{
		ID:        c.Kind + "-" + uuid.NewString()[:8],
		Class:     class,
		Candidate: c,
	}
}
