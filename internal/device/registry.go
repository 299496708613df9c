package device

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// Logger defines the logging interface used by the Registry.
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

// RebindEvent describes one completed rebind.
type RebindEvent struct {
	Class    hal.CapabilityClass
	Previous hal.Backend
	Current  hal.Backend
	At       time.Time
}

// MarshalJSON renders the event with tiers and device ids in place of the
// backends.
func (e RebindEvent) MarshalJSON() ([]byte, error) {
	type view struct {
		Class        hal.CapabilityClass `json:"class"`
		Tier         hal.Tier            `json:"tier"`
		DeviceID     string              `json:"device_id"`
		PreviousTier hal.Tier            `json:"previous_tier,omitempty"`
		PreviousID   string              `json:"previous_device_id,omitempty"`
		At           time.Time           `json:"at"`
	}
	v := view{Class: e.Class, At: e.At}
	if e.Current != nil {
		v.Tier = e.Current.Tier()
		v.DeviceID = e.Current.DeviceID()
	}
	if e.Previous != nil {
		v.PreviousTier = e.Previous.Tier()
		v.PreviousID = e.Previous.DeviceID()
	}
	return json.Marshal(v)
}

// Binding is a serialisable view of one class binding.
type Binding struct {
	Class    hal.CapabilityClass `json:"class"`
	Tier     hal.Tier            `json:"tier"`
	DeviceID string              `json:"device_id"`
	Fallback string              `json:"fallback,omitempty"`
	Since    time.Time           `json:"since"`
}

type binding struct {
	backend hal.Backend
	since   time.Time
}

// Registry maps each capability class to its bound backend.
//
// All public methods are thread-safe.
type Registry struct {
	mu        sync.RWMutex
	bindings  map[hal.CapabilityClass]binding
	listeners []func(RebindEvent)
	logger    Logger
	now       func() time.Time
}

// NewRegistry creates a registry with every class bound to Simulated.
func NewRegistry(seed uint64) *Registry {
	r := &Registry{
		bindings: make(map[hal.CapabilityClass]binding, len(hal.Classes())),
		logger:   noopLogger{},
		now:      time.Now,
	}
	at := r.now()
	for _, c := range hal.Classes() {
		r.bindings[c] = binding{backend: hal.NewSimulated(c, seed), since: at}
	}
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// OnRebind registers a listener called after every successful rebind.
// Listeners run synchronously on the rebinding goroutine, outside the lock.
func (r *Registry) OnRebind(fn func(RebindEvent)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Get returns the backend bound to class, or nil for an unknown class.
func (r *Registry) Get(class hal.CapabilityClass) hal.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bindings[class].backend
}

// Lookup is Get with an error for unknown classes.
func (r *Registry) Lookup(class hal.CapabilityClass) (hal.Backend, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("%w: %q", hal.ErrUnknownClass, class)
	}
	b := r.Get(class)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", hal.ErrNoBackendAvailable, class)
	}
	return b, nil
}

// Rebind atomically replaces the backend for class and returns the previous one.
//
// The caller owns the previous backend and is responsible for closing any
// device handle it holds.
func (r *Registry) Rebind(class hal.CapabilityClass, backend hal.Backend) (hal.Backend, error) {
	if !class.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", ErrRebindRejected, hal.ErrUnknownClass, class)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: %w: %s", ErrRebindRejected, hal.ErrNilBackend, class)
	}

	at := r.now()
	r.mu.Lock()
	previous := r.bindings[class].backend
	r.bindings[class] = binding{backend: backend, since: at}
	listeners := append([]func(RebindEvent){}, r.listeners...)
	r.mu.Unlock()

	if previous == nil || previous.Tier() != backend.Tier() || previous.DeviceID() != backend.DeviceID() {
		r.logger.Info("capability rebound",
			"class", class,
			"tier", backend.Tier(),
			"device", backend.DeviceID(),
		)
	} else {
		r.logger.Debug("capability binding refreshed", "class", class, "device", backend.DeviceID())
	}

	ev := RebindEvent{Class: class, Previous: previous, Current: backend, At: at}
	for _, fn := range listeners {
		fn(ev)
	}
	return previous, nil
}

// Snapshot returns the current binding of every class.
func (r *Registry) Snapshot() map[hal.CapabilityClass]hal.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[hal.CapabilityClass]hal.Backend, len(r.bindings))
	for c, b := range r.bindings {
		out[c] = b.backend
	}
	return out
}

// Bindings returns the bindings in canonical class order.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, 0, len(r.bindings))
	for _, c := range hal.Classes() {
		b := r.bindings[c]
		entry := Binding{
			Class:    c,
			Tier:     b.backend.Tier(),
			DeviceID: b.backend.DeviceID(),
			Since:    b.since,
		}
		if rb, ok := b.backend.(hal.RealBackend); ok && rb.Fallback != nil {
			entry.Fallback = rb.Fallback.DeviceID()
		}
		out = append(out, entry)
	}
	return out
}

// Report renders one line per class in canonical order:
//
//	<class>: <tier> (<device id>)
func (r *Registry) Report() string {
	var sb strings.Builder
	for i, b := range r.Bindings() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: %s (%s)", b.Class, b.Tier, b.DeviceID)
	}
	return sb.String()
}

// Counts returns how many classes are bound at each tier.
func (r *Registry) Counts() map[hal.Tier]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[hal.Tier]int, 3)
	for _, b := range r.bindings {
		out[b.backend.Tier()]++
	}
	return out
}
