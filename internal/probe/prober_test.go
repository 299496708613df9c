package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/laurabot-hal/internal/device"
	"github.com/nerrad567/laurabot-hal/internal/deviceio"
	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
)

type behaviour int

const (
	absent behaviour = iota
	responsive
	hang // ignores its context entirely
)

// fakeIO opens candidates according to a per-address behaviour table.
type fakeIO struct {
	behaviours map[string]behaviour
	gate       chan struct{} // when non-nil, Open waits for it before answering
	release    chan struct{} // unblocks hanging opens at test end

	mu     sync.Mutex
	opens  map[string]int
	closed map[string]bool
	nextID atomic.Int64
}

func newFakeIO(t *testing.T, b map[string]behaviour) *fakeIO {
	f := &fakeIO{
		behaviours: b,
		release:    make(chan struct{}),
		opens:      make(map[string]int),
		closed:     make(map[string]bool),
	}
	t.Cleanup(func() { close(f.release) })
	return f
}

func (f *fakeIO) Open(ctx context.Context, class hal.CapabilityClass, c hal.Candidate) (hal.Handle, error) {
	f.mu.Lock()
	f.opens[c.Address]++
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	switch f.behaviours[c.Address] {
	case responsive:
		id := fmt.Sprintf("h%d", f.nextID.Add(1))
		return hal.Handle{ID: id, Class: class, Candidate: c}, nil
	case hang:
		<-f.release
		return hal.Handle{}, errors.New("released")
	default:
		return hal.Handle{}, fmt.Errorf("%w: %s", deviceio.ErrDeviceAbsent, c.Address)
	}
}

func (f *fakeIO) Write(context.Context, hal.Handle, []byte) error { return nil }

func (f *fakeIO) Read(context.Context, hal.Handle) ([]byte, error) { return nil, nil }

func (f *fakeIO) Close(h hal.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed[h.ID] = true
	return nil
}

func (f *fakeIO) openCount(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens[addr]
}

func cand(kind, addr string) hal.Candidate { return hal.Candidate{Kind: kind, Address: addr} }

func testPlan(timeout time.Duration) Plan {
	return Plan{
		hal.ClassInput: {Class: hal.ClassInput, Timeout: timeout,
			Real:       []hal.Candidate{cand("mqtt", "voice-node")},
			DeviceOnly: []hal.Candidate{cand("exec", "laura-stt")}},
		hal.ClassOutput: {Class: hal.ClassOutput, Timeout: timeout,
			DeviceOnly: []hal.Candidate{cand("exec", "espeak")}},
		hal.ClassVisual: {Class: hal.ClassVisual, Timeout: timeout,
			Real:       []hal.Candidate{cand("mqtt", "esp32-cam")},
			DeviceOnly: []hal.Candidate{cand("exec", "laura-gesture")}},
		hal.ClassMotion: {Class: hal.ClassMotion, Timeout: timeout,
			Real: []hal.Candidate{cand("serial", "COM3"), cand("serial", "/dev/ttyACM0")}},
	}
}

func TestProbe_NoHardwareResolvesToSimulated(t *testing.T) {
	io := newFakeIO(t, nil)
	reg := device.NewRegistry(7)
	p := New(io, reg, testPlan(50*time.Millisecond), 7)

	report, err := p.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	for _, class := range hal.Classes() {
		o, ok := report.Outcome(class)
		if !ok {
			t.Fatalf("report missing %s", class)
		}
		if o.Tier != hal.TierSimulated {
			t.Errorf("%s tier = %s, want simulated", class, o.Tier)
		}
		for _, a := range o.Attempts {
			if a.Outcome != OutcomeAbsent {
				t.Errorf("%s attempt %s outcome = %s, want absent", class, a.Candidate, a.Outcome)
			}
		}
		if reg.Get(class).Tier() != hal.TierSimulated {
			t.Errorf("registry %s tier = %s", class, reg.Get(class).Tier())
		}
	}
}

func TestProbe_TierPrecedence(t *testing.T) {
	io := newFakeIO(t, map[string]behaviour{
		"voice-node":    responsive,
		"laura-stt":     responsive,
		"espeak":        responsive,
		"laura-gesture": responsive,
		"/dev/ttyACM0":  responsive,
	})
	reg := device.NewRegistry(1)
	p := New(io, reg, testPlan(50*time.Millisecond), 1)

	report, err := p.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	tests := []struct {
		class        hal.CapabilityClass
		wantTier     hal.Tier
		wantDevice   string
		wantFallback string
	}{
		{hal.ClassInput, hal.TierReal, "mqtt:voice-node", "exec:laura-stt"},
		{hal.ClassOutput, hal.TierDeviceOnly, "exec:espeak", ""},
		{hal.ClassVisual, hal.TierDeviceOnly, "exec:laura-gesture", ""},
		{hal.ClassMotion, hal.TierReal, "serial:/dev/ttyACM0", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			o, _ := report.Outcome(tt.class)
			if o.Tier != tt.wantTier || o.DeviceID != tt.wantDevice || o.Fallback != tt.wantFallback {
				t.Errorf("outcome = %s %s fallback=%q, want %s %s fallback=%q",
					o.Tier, o.DeviceID, o.Fallback, tt.wantTier, tt.wantDevice, tt.wantFallback)
			}
			if got := reg.Get(tt.class).DeviceID(); got != tt.wantDevice {
				t.Errorf("registry device = %s, want %s", got, tt.wantDevice)
			}
		})
	}

	rb, ok := reg.Get(hal.ClassInput).(hal.RealBackend)
	if !ok || rb.Fallback == nil {
		t.Fatal("input should be RealBackend with a device-only fallback")
	}
}

func TestProbe_UnresponsiveCandidateTimesOut(t *testing.T) {
	io := newFakeIO(t, map[string]behaviour{
		"COM3":         hang,
		"/dev/ttyACM0": responsive,
	})
	reg := device.NewRegistry(1)
	timeout := 30 * time.Millisecond
	p := New(io, reg, testPlan(timeout), 1)

	start := time.Now()
	report, err := p.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*timeout {
		t.Errorf("probe took %v, want bounded by candidate timeouts", elapsed)
	}

	o, _ := report.Outcome(hal.ClassMotion)
	if len(o.Attempts) != 2 {
		t.Fatalf("motion attempts = %d, want 2", len(o.Attempts))
	}
	if o.Attempts[0].Outcome != OutcomeTimeout || o.Attempts[0].Error != hal.ErrProbeTimeout.Error() {
		t.Errorf("first attempt = %+v, want timeout", o.Attempts[0])
	}
	if o.Attempts[1].Outcome != OutcomeResponsive {
		t.Errorf("second attempt = %+v, want responsive", o.Attempts[1])
	}
	if o.Tier != hal.TierReal {
		t.Errorf("motion tier = %s, want real", o.Tier)
	}
}

func TestProbe_SingleFlight(t *testing.T) {
	io := newFakeIO(t, map[string]behaviour{"/dev/ttyACM0": responsive})
	io.gate = make(chan struct{})
	reg := device.NewRegistry(1)
	p := New(io, reg, testPlan(time.Second), 1)

	const callers = 8
	var wg sync.WaitGroup
	ids := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := p.Probe(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			ids[i] = r.ID
		}()
	}

	// Let every caller join the in-flight run before any Open completes.
	time.Sleep(50 * time.Millisecond)
	close(io.gate)
	wg.Wait()

	if got := io.openCount("COM3"); got != 1 {
		t.Errorf("COM3 opened %d times, want 1 (shared run)", got)
	}
	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got report %s, want shared %s", i, ids[i], ids[0])
		}
	}
}

func TestProbe_ClosesReplacedHandles(t *testing.T) {
	io := newFakeIO(t, map[string]behaviour{"/dev/ttyACM0": responsive, "laura-stt": responsive})
	reg := device.NewRegistry(1)
	p := New(io, reg, testPlan(50*time.Millisecond), 1)

	if _, err := p.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	motion := reg.Get(hal.ClassMotion).(hal.RealBackend).Handle.ID
	input := reg.Get(hal.ClassInput).(hal.DeviceOnlyBackend).Handle.ID

	if _, err := p.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if got := reg.Get(hal.ClassMotion).(hal.RealBackend).Handle.ID; got != motion {
		t.Errorf("motion handle = %s, want rechecked handle %s", got, motion)
	}
	if got := io.openCount("/dev/ttyACM0"); got != 1 {
		t.Errorf("/dev/ttyACM0 opened %d times, want 1", got)
	}

	io.mu.Lock()
	defer io.mu.Unlock()
	if !io.closed[input] {
		t.Errorf("replaced exec handle %s was not closed: %v", input, io.closed)
	}
	if io.closed[motion] {
		t.Error("rechecked serial handle must stay open")
	}
	if io.closed[reg.Get(hal.ClassInput).(hal.DeviceOnlyBackend).Handle.ID] {
		t.Error("current input handle must stay open")
	}
}

type fakeDiscoverer map[hal.CapabilityClass][]hal.Candidate

func (f fakeDiscoverer) Discover(context.Context) (map[hal.CapabilityClass][]hal.Candidate, error) {
	return f, nil
}

func TestProbe_DiscoveryAndSerialEnumeration(t *testing.T) {
	io := newFakeIO(t, map[string]behaviour{"cam-2": responsive, "/dev/ttyUSB7": responsive})
	reg := device.NewRegistry(1)
	p := New(io, reg, testPlan(50*time.Millisecond), 1)
	p.SetDiscoverer(fakeDiscoverer{hal.ClassVisual: {cand("mqtt", "cam-2")}})
	p.SetSerialPortLister(func() ([]string, error) { return []string{"/dev/ttyUSB7"}, nil })

	var reported []Report
	p.OnReport(func(r Report) { reported = append(reported, r) })

	if _, err := p.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if got := reg.Get(hal.ClassVisual).DeviceID(); got != "mqtt:cam-2" {
		t.Errorf("visual = %s, want mqtt:cam-2", got)
	}
	if got := reg.Get(hal.ClassMotion).DeviceID(); got != "serial:/dev/ttyUSB7" {
		t.Errorf("motion = %s, want serial:/dev/ttyUSB7", got)
	}
	if got := io.openCount("/dev/ttyUSB7"); got != 1 {
		t.Errorf("/dev/ttyUSB7 opened %d times, want 1 (motion only)", got)
	}
	if len(reported) != 1 {
		t.Errorf("OnReport called %d times, want 1", len(reported))
	}
	last, ok := p.LastReport()
	if !ok || last.ID != reported[0].ID {
		t.Error("LastReport() should return the latest report")
	}
}

func TestProbe_CallerCancelled(t *testing.T) {
	io := newFakeIO(t, nil)
	io.gate = make(chan struct{})
	p := New(io, device.NewRegistry(1), testPlan(time.Second), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Probe(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Probe() error = %v, want Canceled", err)
	}
	close(io.gate)
}

func TestPlanFromConfig(t *testing.T) {
	plan, err := PlanFromConfig(config.Default().Hardware)
	if err != nil {
		t.Fatalf("PlanFromConfig() error = %v", err)
	}
	if len(plan) != 4 {
		t.Fatalf("len(plan) = %d, want 4", len(plan))
	}
	motion := plan[hal.ClassMotion]
	if len(motion.Real) != 8 || motion.Real[0] != cand("serial", "COM3") {
		t.Errorf("motion real = %v", motion.Real)
	}
	if motion.Timeout != 2*time.Second {
		t.Errorf("motion timeout = %v", motion.Timeout)
	}

	bad := config.Default().Hardware
	bad.Output.Real = []string{"nokind"}
	if _, err := PlanFromConfig(bad); err == nil {
		t.Error("PlanFromConfig() should reject malformed candidates")
	}
}

type stallingDiscoverer struct{ release chan struct{} }

// Discover ignores ctx and returns only when released.
func (d stallingDiscoverer) Discover(context.Context) (map[hal.CapabilityClass][]hal.Candidate, error) {
	<-d.release
	return map[hal.CapabilityClass][]hal.Candidate{hal.ClassVisual: {cand("mqtt", "late-cam")}}, nil
}

func TestProbe_DiscoveryBoundedByClassTimeout(t *testing.T) {
	io := newFakeIO(t, map[string]behaviour{"/dev/ttyACM0": responsive, "late-cam": responsive})
	reg := device.NewRegistry(1)
	timeout := 50 * time.Millisecond
	p := New(io, reg, testPlan(timeout), 1)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	p.SetDiscoverer(stallingDiscoverer{release: release})

	start := time.Now()
	if _, err := p.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	// Discovery gets one class timeout, then each class tries at most two
	// candidates per tier.
	if elapsed := time.Since(start); elapsed > 10*timeout {
		t.Errorf("probe took %v with a stalled discoverer, want under %v", elapsed, 10*timeout)
	}
	if got := reg.Get(hal.ClassMotion).Tier(); got != hal.TierReal {
		t.Errorf("motion tier = %s, want real", got)
	}
	if got := io.openCount("late-cam"); got != 0 {
		t.Errorf("late-cam opened %d times, want 0", got)
	}
}

// ─── Serial ports ───────────────────────────────────────────────────────────

// fakeSerialPort answers each ping line with {"ok":true} unless silent.
type fakeSerialPort struct {
	serial.Port

	silent  bool
	onClose func()

	mu      sync.Mutex
	pending [][]byte
}

func (p *fakeSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	n := copy(b, p.pending[0])
	p.pending = p.pending[1:]
	p.mu.Unlock()
	return n, nil
}

func (p *fakeSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.silent && strings.Contains(string(b), `"op":"ping"`) {
		p.pending = append(p.pending, []byte("{\"ok\":true}\n"))
	}
	return len(b), nil
}

func (p *fakeSerialPort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakeSerialPort) Close() error {
	p.onClose()
	return nil
}

// exclusiveOpener refuses a path that is already open, the way the OS does
// for a serial port held by another descriptor.
type exclusiveOpener struct {
	silent bool

	mu    sync.Mutex
	held  map[string]bool
	opens int
}

func newExclusiveOpener(silent bool) *exclusiveOpener {
	return &exclusiveOpener{silent: silent, held: make(map[string]bool)}
}

func (o *exclusiveOpener) open(name string, _ *serial.Mode) (serial.Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.held[name] {
		return nil, &serial.PortError{} // zero code is PortBusy
	}
	o.held[name] = true
	return &fakeSerialPort{silent: o.silent, onClose: func() {
		o.mu.Lock()
		delete(o.held, name)
		o.mu.Unlock()
	}}, nil
}

func (o *exclusiveOpener) isHeld(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.held[name]
}

func TestProbe_SilentSerialPortIsNotBound(t *testing.T) {
	opener := newExclusiveOpener(true)
	io := deviceio.NewSerialDriverWithOpener(9600, opener.open)
	reg := device.NewRegistry(1)
	plan := Plan{hal.ClassMotion: {Class: hal.ClassMotion, Timeout: 100 * time.Millisecond,
		Real: []hal.Candidate{cand("serial", "/dev/ttyS0")}}}
	p := New(io, reg, plan, 1)

	report, err := p.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	o, _ := report.Outcome(hal.ClassMotion)
	if o.Tier != hal.TierSimulated {
		t.Errorf("motion tier = %s (%s), want simulated", o.Tier, o.DeviceID)
	}
	if len(o.Attempts) != 1 || o.Attempts[0].Outcome != OutcomeTimeout {
		t.Errorf("attempts = %+v, want one timeout", o.Attempts)
	}
	if got := reg.Get(hal.ClassMotion).Tier(); got != hal.TierSimulated {
		t.Errorf("registry motion tier = %s, want simulated", got)
	}

	deadline := time.Now().Add(time.Second)
	for opener.isHeld("/dev/ttyS0") {
		if time.Now().After(deadline) {
			t.Fatal("silent port was left open")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProbe_ReprobeKeepsHeldSerialPort(t *testing.T) {
	opener := newExclusiveOpener(false)
	io := deviceio.NewSerialDriverWithOpener(9600, opener.open)
	reg := device.NewRegistry(1)
	acm := cand("serial", "/dev/ttyACM0")
	plan := Plan{
		hal.ClassMotion: {Class: hal.ClassMotion, Timeout: 200 * time.Millisecond, Real: []hal.Candidate{acm}},
		hal.ClassInput:  {Class: hal.ClassInput, Timeout: 200 * time.Millisecond, Real: []hal.Candidate{acm}},
	}
	p := New(io, reg, plan, 1)
	p.SetSerialPortLister(func() ([]string, error) { return []string{"/dev/ttyACM0"}, nil })

	var (
		owner  hal.CapabilityClass
		handle string
	)
	for i := 1; i <= 3; i++ {
		if _, err := p.Probe(context.Background()); err != nil {
			t.Fatalf("probe %d: Probe() error = %v", i, err)
		}

		var bound []hal.CapabilityClass
		var id string
		for _, class := range []hal.CapabilityClass{hal.ClassMotion, hal.ClassInput} {
			if rb, ok := reg.Get(class).(hal.RealBackend); ok {
				bound = append(bound, class)
				id = rb.Handle.ID
			}
		}
		if len(bound) != 1 {
			t.Fatalf("probe %d: classes bound to %s = %v, want exactly one", i, acm, bound)
		}
		if i == 1 {
			owner, handle = bound[0], id
			continue
		}
		if bound[0] != owner || id != handle {
			t.Errorf("probe %d: %s bound with handle %s, want %s with %s", i, bound[0], id, owner, handle)
		}
	}

	opener.mu.Lock()
	defer opener.mu.Unlock()
	if opener.opens != 1 {
		t.Errorf("port opened %d times, want 1", opener.opens)
	}
	if !opener.held["/dev/ttyACM0"] {
		t.Error("bound port was closed")
	}
}
