package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/gesture"
	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// defaultCallTimeout bounds a driver call when no timeout is configured.
const defaultCallTimeout = 3 * time.Second

// Registry is the read side of the device registry.
type Registry interface {
	Lookup(class hal.CapabilityClass) (hal.Backend, error)
}

// Simulator serves classes bound to the simulated tier.
type Simulator interface {
	Speak(ctx context.Context, text string) error
	Listen(ctx context.Context, timeout time.Duration) (string, error)
	MoveServo(ctx context.Context, actuatorID string, position int) error
	NextGesture(now time.Time) (gesture.Event, error)
}

// Logger is the logging interface used by the router.
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

// Metrics receives per-command observations.
type Metrics interface {
	ObserveCommand(op string, tier hal.Tier, success bool, elapsed time.Duration)
	ObserveFallback(op string, from, to hal.Tier)
}

// FallbackEvent describes one call served below its bound tier.
type FallbackEvent struct {
	Op     string              `json:"op"`
	Class  hal.CapabilityClass `json:"class"`
	From   hal.Tier            `json:"from"`
	To     hal.Tier            `json:"to"`
	Reason string              `json:"reason"`
	At     time.Time           `json:"at"`
}

// Config configures a Router.
type Config struct {
	// CallTimeout bounds every driver call. Listen adds its own timeout.
	CallTimeout time.Duration

	// Poses maps a pose name to actuator positions.
	Poses map[string]map[string]int
}

// Router dispatches commands to bound backends.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Router struct {
	registry Registry
	io       hal.DeviceIO
	sim      Simulator
	cfg      Config

	mu         sync.RWMutex
	logger     Logger
	metrics    Metrics
	onFallback []func(FallbackEvent)
}

// New creates a router.
//
// Parameters:
//   - registry: Source of the current binding per class
//   - io: Device I/O used for real and device-only backends
//   - sim: Substrate serving simulated backends
//   - cfg: Call timeout and pose table
//
// Returns:
//   - *Router: Ready for use
func New(registry Registry, io hal.DeviceIO, sim Simulator, cfg Config) *Router {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Router{
		registry: registry,
		io:       io,
		sim:      sim,
		cfg:      cfg,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// SetMetrics sets the metrics sink. Nil disables metrics.
func (r *Router) SetMetrics(m Metrics) {
	r.mu.Lock()
	r.metrics = m
	r.mu.Unlock()
}

// OnFallback registers a listener called whenever a call falls back a tier.
func (r *Router) OnFallback(fn func(FallbackEvent)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.onFallback = append(r.onFallback, fn)
	r.mu.Unlock()
}

// Poses returns the configured pose names, sorted.
func (r *Router) Poses() []string {
	names := make([]string, 0, len(r.cfg.Poses))
	for name := range r.cfg.Poses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) hooks() (Logger, Metrics, []func(FallbackEvent)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.logger, r.metrics, r.onFallback
}

// dispatch runs fn against the bound backend for class, walking down the
// tier chain on device failures.
func dispatch[T any](ctx context.Context, r *Router, op string, class hal.CapabilityClass, fn func(context.Context, hal.Backend) (T, error)) hal.Result[T] {
	start := time.Now()
	logger, metrics, listeners := r.hooks()

	bound, err := r.registry.Lookup(class)
	if err != nil {
		res := hal.Failed[T](fmt.Errorf("%w: %w", hal.ErrNoBackendAvailable, err), hal.TierSimulated, nil)
		if metrics != nil {
			metrics.ObserveCommand(op, hal.TierSimulated, false, time.Since(start))
		}
		return res
	}

	chain := fallbackChain(bound)
	if len(chain) == 0 {
		return hal.Failed[T](fmt.Errorf("%w: %s", hal.ErrNoBackendAvailable, class), hal.TierSimulated, nil)
	}
	attempted := make([]hal.Tier, 0, len(chain))
	var lastErr error

	for i, b := range chain {
		attempted = append(attempted, b.Tier())
		v, err := fn(ctx, b)
		if err == nil {
			if metrics != nil {
				metrics.ObserveCommand(op, b.Tier(), true, time.Since(start))
			}
			return hal.Succeeded(v, b.Tier(), attempted)
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil || i == len(chain)-1 {
			break
		}

		next := chain[i+1]
		ev := FallbackEvent{
			Op:     op,
			Class:  class,
			From:   b.Tier(),
			To:     next.Tier(),
			Reason: hal.Reason(err),
			At:     time.Now(),
		}
		logger.Warn("backend failed, falling back",
			"op", op, "class", class, "from", ev.From, "to", ev.To, "device", b.DeviceID(), "error", err)
		if metrics != nil {
			metrics.ObserveFallback(op, ev.From, ev.To)
		}
		for _, l := range listeners {
			l(ev)
		}
	}

	method := attempted[len(attempted)-1]
	if metrics != nil {
		metrics.ObserveCommand(op, method, false, time.Since(start))
	}
	logger.Debug("command failed", "op", op, "class", class, "tier", method, "error", lastErr)
	return hal.Failed[T](lastErr, method, attempted)
}

// fallbackChain lists the backends to try, best first.
func fallbackChain(bound hal.Backend) []hal.Backend {
	switch b := bound.(type) {
	case hal.RealBackend:
		chain := []hal.Backend{b}
		if b.Fallback != nil {
			chain = append(chain, *b.Fallback)
		}
		return append(chain, simulatedFor(b.Handle.Class))
	case hal.DeviceOnlyBackend:
		return []hal.Backend{b, simulatedFor(b.Handle.Class)}
	case hal.SimulatedBackend:
		return []hal.Backend{b}
	default:
		return nil
	}
}

func simulatedFor(class hal.CapabilityClass) hal.Backend {
	return hal.NewSimulated(class, 0)
}

// retryable reports whether err is a device failure a lower tier may absorb.
func retryable(err error) bool {
	return errors.Is(err, hal.ErrDeviceReadFailure) && !errors.Is(err, hal.ErrListenTimeout)
}
