package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/laurabot-hal/internal/device"
	"github.com/nerrad567/laurabot-hal/internal/deviceio"
	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// defaultClassTimeout applies when a class plan has no timeout.
const defaultClassTimeout = 2 * time.Second

// Logger defines the logging interface used by the Prober.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Metrics receives probe measurements.
type Metrics interface {
	ObserveProbe(class hal.CapabilityClass, tier hal.Tier, d time.Duration)
	ObserveAttempt(class hal.CapabilityClass, tier hal.Tier, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveProbe(hal.CapabilityClass, hal.Tier, time.Duration) {}
func (noopMetrics) ObserveAttempt(hal.CapabilityClass, hal.Tier, string)     {}

// Discoverer supplies extra real candidates at probe time (mDNS nodes).
type Discoverer interface {
	Discover(ctx context.Context) (map[hal.CapabilityClass][]hal.Candidate, error)
}

// Prober runs capability probes and binds the results into a Registry.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Prober struct {
	io       hal.DeviceIO
	registry *device.Registry
	seed     uint64

	mu        sync.RWMutex
	plan      Plan
	discover  Discoverer
	portList  func() ([]string, error)
	last      *Report
	listeners []func(Report)

	group   singleflight.Group
	logger  Logger
	metrics Metrics
}

// New creates a Prober opening devices through io and binding into registry.
func New(io hal.DeviceIO, registry *device.Registry, plan Plan, seed uint64) *Prober {
	return &Prober{
		io:       io,
		registry: registry,
		seed:     seed,
		plan:     plan.clone(),
		logger:   noopLogger{},
		metrics:  noopMetrics{},
	}
}

// SetLogger sets the logger.
func (p *Prober) SetLogger(l Logger) { p.logger = l }

// SetMetrics sets the metrics sink.
func (p *Prober) SetMetrics(m Metrics) { p.metrics = m }

// SetDiscoverer enables candidate discovery before each probe.
func (p *Prober) SetDiscoverer(d Discoverer) {
	p.mu.Lock()
	p.discover = d
	p.mu.Unlock()
}

// SetSerialPortLister appends OS-reported serial ports to the motion real
// candidates before each probe.
func (p *Prober) SetSerialPortLister(list func() ([]string, error)) {
	p.mu.Lock()
	p.portList = list
	p.mu.Unlock()
}

// OnReport registers a listener called with every completed report.
func (p *Prober) OnReport(fn func(Report)) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// LastReport returns the most recent report, if any probe has completed.
func (p *Prober) LastReport() (Report, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Report{}, false
	}
	return *p.last, true
}

// Probe detects hardware for every class and rebinds the registry.
//
// Concurrent calls share one in-flight run. The run itself is not cancelled
// when a caller gives up; it is bounded by the per-candidate timeouts. The
// returned error is non-nil only when ctx ends before the shared run completes.
func (p *Prober) Probe(ctx context.Context) (Report, error) {
	ch := p.group.DoChan("probe", func() (any, error) {
		return p.run(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Report), nil
	case <-ctx.Done():
		return Report{}, fmt.Errorf("waiting for probe: %w", ctx.Err())
	}
}

func (p *Prober) run(ctx context.Context) Report {
	start := time.Now()
	plan := p.effectivePlan(ctx)
	claims := newClaimSet(p.registry.Snapshot())

	outcomes := make([]Outcome, len(hal.Classes()))
	var g errgroup.Group
	for i, class := range hal.Classes() {
		cp, ok := plan[class]
		if !ok {
			cp = ClassPlan{Class: class}
		}
		g.Go(func() error {
			outcomes[i] = p.probeClass(ctx, cp, claims)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		previous, err := p.registry.Rebind(o.Class, o.Backend)
		if err != nil {
			p.logger.Warn("rebind failed", "class", o.Class, "error", err)
			p.closeBackend(o.Backend, p.registry.Get(o.Class))
			continue
		}
		p.closeBackend(previous, o.Backend)
	}

	report := Report{
		ID:        "probe-" + uuid.NewString()[:8],
		StartedAt: start,
		Duration:  time.Since(start),
		Outcomes:  outcomes,
	}

	p.mu.Lock()
	p.last = &report
	listeners := append([]func(Report){}, p.listeners...)
	p.mu.Unlock()

	p.logger.Info("probe complete", "id", report.ID, "duration", report.Duration, "report", p.registry.Report())
	for _, fn := range listeners {
		fn(report)
	}
	return report
}

// effectivePlan returns the configured plan extended with discovered candidates.
// Discovery gets at most the longest class timeout, so a full probe is bounded
// by that plus the per-candidate timeouts.
func (p *Prober) effectivePlan(ctx context.Context) Plan {
	p.mu.RLock()
	plan := p.plan.clone()
	discover := p.discover
	portList := p.portList
	p.mu.RUnlock()

	if discover != nil {
		found, err := p.discoverWithin(ctx, discover, plan.longestTimeout())
		if err != nil {
			p.logger.Warn("candidate discovery failed", "error", err)
		}
		for class, cands := range found {
			cp := plan[class]
			cp.Class = class
			cp.Real = appendUnique(cp.Real, cands...)
			plan[class] = cp
		}
	}

	if portList != nil {
		ports, err := portList()
		if err != nil {
			p.logger.Warn("serial port enumeration failed", "error", err)
		}
		cp := plan[hal.ClassMotion]
		cp.Class = hal.ClassMotion
		for _, port := range ports {
			cp.Real = appendUnique(cp.Real, hal.Candidate{Kind: deviceio.KindSerial, Address: port})
		}
		plan[hal.ClassMotion] = cp
	}
	return plan
}

// discoverWithin runs discovery for at most limit. A discoverer that ignores
// its context is abandoned and its late result dropped.
func (p *Prober) discoverWithin(ctx context.Context, d Discoverer, limit time.Duration) (map[hal.CapabilityClass][]hal.Candidate, error) {
	dctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	type result struct {
		found map[hal.CapabilityClass][]hal.Candidate
		err   error
	}
	done := make(chan result, 1)
	go func() {
		found, err := d.Discover(dctx)
		done <- result{found, err}
	}()

	select {
	case res := <-done:
		return res.found, res.err
	case <-dctx.Done():
		select {
		case res := <-done:
			return res.found, res.err
		default:
			return nil, fmt.Errorf("discovery: %w", dctx.Err())
		}
	}
}

// probeClass walks the tiers for one class and returns its outcome.
func (p *Prober) probeClass(ctx context.Context, cp ClassPlan, claims *claimSet) Outcome {
	start := time.Now()
	timeout := cp.Timeout
	if timeout <= 0 {
		timeout = defaultClassTimeout
	}
	out := Outcome{Class: cp.Class}

	realHandle, realOK := p.firstResponsive(ctx, cp.Class, hal.TierReal, cp.Real, timeout, claims, &out.Attempts)
	devHandle, devOK := p.firstResponsive(ctx, cp.Class, hal.TierDeviceOnly, cp.DeviceOnly, timeout, claims, &out.Attempts)

	switch {
	case realOK:
		rb := hal.RealBackend{Handle: realHandle, Address: realHandle.Candidate.Address}
		if devOK {
			rb.Fallback = &hal.DeviceOnlyBackend{Handle: devHandle}
			out.Fallback = rb.Fallback.DeviceID()
		}
		out.Backend = rb
	case devOK:
		out.Backend = hal.DeviceOnlyBackend{Handle: devHandle}
	default:
		out.Backend = hal.NewSimulated(cp.Class, p.seed)
	}

	out.Tier = out.Backend.Tier()
	out.DeviceID = out.Backend.DeviceID()
	p.metrics.ObserveProbe(cp.Class, out.Tier, time.Since(start))
	return out
}

// firstResponsive tries candidates in order and returns the first open handle.
// A candidate another class holds or is probing is skipped.
func (p *Prober) firstResponsive(ctx context.Context, class hal.CapabilityClass, tier hal.Tier,
	cands []hal.Candidate, timeout time.Duration, claims *claimSet, attempts *[]Attempt) (hal.Handle, bool) {
	for _, c := range cands {
		var (
			h   hal.Handle
			att Attempt
		)
		if owner, ok := claims.claim(class, c); !ok {
			att = Attempt{Candidate: c, Tier: tier, Outcome: OutcomeError, Error: fmt.Sprintf("in use by %s", owner)}
		} else if held, ok := claims.held(class, c); ok {
			h, att = p.recheck(ctx, tier, held, timeout)
		} else {
			h, att = p.try(ctx, class, tier, c, timeout)
		}
		*attempts = append(*attempts, att)
		p.metrics.ObserveAttempt(class, tier, att.Outcome)
		p.logger.Debug("probe attempt", "class", class, "tier", tier, "candidate", c.String(), "outcome", att.Outcome)
		if att.Outcome == OutcomeResponsive {
			return h, true
		}
		claims.release(class, c)
	}
	return hal.Handle{}, false
}

// try opens one candidate under the class timeout. It returns when the
// timeout elapses even if the driver ignores its context; a handle that
// arrives late is closed.
func (p *Prober) try(ctx context.Context, class hal.CapabilityClass, tier hal.Tier,
	c hal.Candidate, timeout time.Duration) (hal.Handle, Attempt) {
	return p.attempt(ctx, tier, c, timeout, true, func(ctx context.Context) (hal.Handle, error) {
		return p.io.Open(ctx, class, c)
	})
}

// recheck pings a handle the current binding already holds instead of
// reopening its device. The handle stays open whatever the outcome; the
// rebind that follows closes it if it is dropped.
func (p *Prober) recheck(ctx context.Context, tier hal.Tier, h hal.Handle, timeout time.Duration) (hal.Handle, Attempt) {
	return p.attempt(ctx, tier, h.Candidate, timeout, false, func(ctx context.Context) (hal.Handle, error) {
		if _, err := deviceio.Transact(ctx, p.io, h, deviceio.Command{Op: deviceio.OpPing}); err != nil {
			return hal.Handle{}, err
		}
		return h, nil
	})
}

func (p *Prober) attempt(ctx context.Context, tier hal.Tier, c hal.Candidate, timeout time.Duration,
	closeLate bool, open func(context.Context) (hal.Handle, error)) (hal.Handle, Attempt) {
	start := time.Now()
	att := Attempt{Candidate: c, Tier: tier}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		h   hal.Handle
		err error
	}
	done := make(chan result, 1)
	go func() {
		h, err := open(cctx)
		done <- result{h, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-cctx.Done():
		if closeLate {
			go func() {
				if late := <-done; late.err == nil {
					_ = p.io.Close(late.h)
				}
			}()
		}
		res.err = cctx.Err()
	}
	att.Duration = time.Since(start)

	switch err := res.err; {
	case err == nil:
		att.Outcome = OutcomeResponsive
		return res.h, att
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, hal.ErrProbeTimeout):
		att.Outcome = OutcomeTimeout
		att.Error = hal.ErrProbeTimeout.Error()
	case errors.Is(err, deviceio.ErrDeviceAbsent) || errors.Is(err, hal.ErrNoDriver):
		att.Outcome = OutcomeAbsent
		att.Error = err.Error()
	default:
		att.Outcome = OutcomeError
		att.Error = err.Error()
	}
	return hal.Handle{}, att
}

// closeBackend releases the device handles a replaced backend holds, except
// those keep still uses.
func (p *Prober) closeBackend(b, keep hal.Backend) {
	inUse := make(map[string]bool)
	for _, h := range backendHandles(keep) {
		inUse[h.ID] = true
	}
	for _, h := range backendHandles(b) {
		if inUse[h.ID] {
			continue
		}
		if err := p.io.Close(h); err != nil {
			p.logger.Debug("closing replaced handle", "handle", h.ID, "error", err)
		}
	}
}

// backendHandles lists the open device handles behind b.
func backendHandles(b hal.Backend) []hal.Handle {
	switch v := b.(type) {
	case hal.RealBackend:
		handles := []hal.Handle{v.Handle}
		if v.Fallback != nil {
			handles = append(handles, v.Fallback.Handle)
		}
		return handles
	case hal.DeviceOnlyBackend:
		return []hal.Handle{v.Handle}
	default:
		return nil
	}
}
