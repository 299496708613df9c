package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
	"github.com/nerrad567/laurabot-hal/internal/ringbuf"
)

// externalFreshness is how many cadences an external reading suppresses
// simulation of its sensor.
const externalFreshness = 3

// gestureStream separates the gesture RNG stream from the sensor streams.
const gestureStream = 0x6765737475726573

// Logger is the logging interface used by the substrate.
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

// Metrics receives substrate observations.
type Metrics interface {
	ObserveTick(produced int, elapsed time.Duration)
	ObserveIngest(sensorType string)
	ObserveFailureInjected(target string)
}

// ReadingHandler is called for every reading stored, simulated or external.
type ReadingHandler func(hal.SensorReading)

// Options configures a Substrate.
type Options struct {
	Seed           uint64
	Cadence        time.Duration
	RingCapacity   int
	SpokenCapacity int
	ListenLatency  time.Duration
	DemoPhrases    []string
	DemoGestures   []string
	Sensors        []SensorSpec
}

// OptionsFromConfig builds Options from the simulation section.
func OptionsFromConfig(cfg config.SimulationConfig) Options {
	return Options{
		Seed:           cfg.Seed,
		Cadence:        cfg.Cadence,
		RingCapacity:   cfg.RingCapacity,
		SpokenCapacity: cfg.RingCapacity,
		ListenLatency:  cfg.ListenLatency,
		DemoPhrases:    append([]string(nil), cfg.DemoPhrases...),
		DemoGestures:   append([]string(nil), cfg.DemoGestures...),
		Sensors:        SpecsFromConfig(cfg.Sensors),
	}
}

// Substrate is the simulation engine standing in for absent hardware.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Reading handlers run on the goroutine that produced the reading,
//     outside the substrate lock.
type Substrate struct {
	opts  Options
	specs []SensorSpec
	byID  map[string]SensorSpec

	mu           sync.RWMutex
	rings        map[string]*ringbuf.Ring[hal.SensorReading]
	lastExternal map[string]time.Time
	downUntil    map[string]time.Time
	lastTick     uint64
	ticked       bool
	ticks        uint64
	produced     uint64
	ingested     uint64

	voiceMu    sync.Mutex
	phraseIdx  int
	spoken     *ringbuf.Ring[SpokenLine]
	positions  map[string]int
	script     []string
	gestureRNG *rand.Rand

	handlersMu sync.RWMutex
	handlers   []ReadingHandler

	// clock drives failure windows; Tick takes its time explicitly.
	clock func() time.Time

	logger   Logger
	metrics  Metrics
	loggerMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a substrate. Zero-valued options fall back to a 2s cadence
// and 100-reading rings.
//
// Parameters:
//   - opts: Seed, cadence, capacities and the sensor catalogue
//
// Returns:
//   - *Substrate: Ready to tick (call Start for the periodic loop)
func New(opts Options) *Substrate {
	if opts.Cadence <= 0 {
		opts.Cadence = 2 * time.Second
	}
	if opts.RingCapacity < 1 {
		opts.RingCapacity = 100
	}
	if opts.SpokenCapacity < 1 {
		opts.SpokenCapacity = opts.RingCapacity
	}

	s := &Substrate{
		opts:         opts,
		byID:         make(map[string]SensorSpec, len(opts.Sensors)),
		rings:        make(map[string]*ringbuf.Ring[hal.SensorReading], len(opts.Sensors)),
		lastExternal: make(map[string]time.Time),
		downUntil:    make(map[string]time.Time),
		spoken:       ringbuf.New[SpokenLine](opts.SpokenCapacity),
		positions:    make(map[string]int),
		gestureRNG:   rand.New(rand.NewPCG(opts.Seed, gestureStream)),
		clock:        time.Now,
		logger:       noopLogger{},
		done:         make(chan struct{}),
	}
	for _, spec := range opts.Sensors {
		if _, dup := s.byID[spec.ID]; dup {
			continue
		}
		s.specs = append(s.specs, spec)
		s.byID[spec.ID] = spec
		s.rings[spec.ID] = ringbuf.New[hal.SensorReading](opts.RingCapacity)
	}
	return s
}

// SetLogger sets the logger for the substrate.
func (s *Substrate) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// SetMetrics sets the metrics sink. Nil disables metrics.
func (s *Substrate) SetMetrics(m Metrics) {
	s.loggerMu.Lock()
	s.metrics = m
	s.loggerMu.Unlock()
}

func (s *Substrate) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Substrate) observer() Metrics {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.metrics
}

// Subscribe registers a handler for every stored reading.
func (s *Substrate) Subscribe(fn ReadingHandler) {
	if fn == nil {
		return
	}
	s.handlersMu.Lock()
	s.handlers = append(s.handlers, fn)
	s.handlersMu.Unlock()
}

func (s *Substrate) notify(readings []hal.SensorReading) {
	s.handlersMu.RLock()
	handlers := s.handlers
	s.handlersMu.RUnlock()

	for _, r := range readings {
		for _, fn := range handlers {
			fn(r)
		}
	}
}

// Cadence returns the tick interval.
func (s *Substrate) Cadence() time.Duration { return s.opts.Cadence }

// Seed returns the generator seed.
func (s *Substrate) Seed() uint64 { return s.opts.Seed }

// Start ticks once immediately, then on every cadence until ctx is
// cancelled or Stop is called.
func (s *Substrate) Start(ctx context.Context) {
	s.Tick(time.Now())

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the tick loop. Safe to call multiple times.
func (s *Substrate) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Substrate) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case now := <-ticker.C:
			s.Tick(now)
		}
	}
}

// tickIndex is the cadence bucket containing now.
func (s *Substrate) tickIndex(now time.Time) uint64 {
	return uint64(now.UnixNano() / int64(s.opts.Cadence))
}

// Tick produces one reading per live simulated sensor for the cadence
// bucket containing now. Repeated calls within the same bucket, or with a
// clock that has gone backwards, produce nothing.
//
// Returns:
//   - []hal.SensorReading: The readings stored by this call
func (s *Substrate) Tick(now time.Time) []hal.SensorReading {
	start := time.Now()
	idx := s.tickIndex(now)

	s.mu.Lock()
	if s.ticked && idx <= s.lastTick {
		s.mu.Unlock()
		return nil
	}
	s.lastTick = idx
	s.ticked = true
	s.ticks++

	env := NewEnvironment(now)
	wall := s.clock()
	fresh := time.Duration(externalFreshness) * s.opts.Cadence

	produced := make([]hal.SensorReading, 0, len(s.specs))
	for _, spec := range s.specs {
		if s.isDownLocked(spec.ID, wall) {
			continue
		}
		if ext, ok := s.lastExternal[spec.ID]; ok && now.Sub(ext) < fresh {
			continue
		}

		ring := s.rings[spec.ID]
		ts := now
		if last, ok := ring.Last(); ok && last.Timestamp.After(ts) {
			ts = last.Timestamp
		}
		r := hal.SensorReading{
			SensorID:  spec.ID,
			Type:      spec.Type,
			Unit:      spec.Unit,
			Value:     Generate(s.opts.Seed, idx, spec, env),
			Location:  spec.Location,
			Timestamp: ts,
			Source:    hal.SourceSimulated,
		}
		ring.Push(r)
		produced = append(produced, r)
	}
	s.produced += uint64(len(produced))
	s.mu.Unlock()

	if m := s.observer(); m != nil {
		m.ObserveTick(len(produced), time.Since(start))
	}
	s.log().Debug("simulation tick", "tick", idx, "readings", len(produced))

	s.notify(produced)
	return produced
}

// Ingest stores an externally sourced reading in the same ring as
// simulated data. Sensors not in the catalogue get a ring on first use.
// While the reading is fresh the sensor is not simulated.
func (s *Substrate) Ingest(r hal.SensorReading) error {
	if r.SensorID == "" {
		return ErrInvalidReading
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	r.Source = hal.SourceExternal

	s.mu.Lock()
	ring, ok := s.rings[r.SensorID]
	if !ok {
		ring = ringbuf.New[hal.SensorReading](s.opts.RingCapacity)
		s.rings[r.SensorID] = ring
	}
	if spec, known := s.byID[r.SensorID]; known {
		if r.Type == "" {
			r.Type = spec.Type
		}
		if r.Unit == "" {
			r.Unit = spec.Unit
		}
		if r.Location == "" {
			r.Location = spec.Location
		}
	}
	if last, ok := ring.Last(); ok && r.Timestamp.Before(last.Timestamp) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s at %s", ErrStaleReading, r.SensorID, r.Timestamp.Format(time.RFC3339Nano))
	}
	ring.Push(r)
	s.lastExternal[r.SensorID] = r.Timestamp
	s.ingested++
	s.mu.Unlock()

	if m := s.observer(); m != nil {
		m.ObserveIngest(r.Type)
	}
	s.notify([]hal.SensorReading{r})
	return nil
}

// LatestReadings returns the newest n readings for a sensor in time order,
// oldest first and newest last. n <= 0 returns the whole window.
func (s *Substrate) LatestReadings(sensorID string, n int) ([]hal.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ring, ok := s.rings[sensorID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hal.ErrUnknownSensor, sensorID)
	}
	if s.isDownLocked(sensorID, s.clock()) {
		return nil, fmt.Errorf("%w: %s", hal.ErrSimulatedDeviceDown, sensorID)
	}
	return ring.Tail(n), nil
}

// Latest returns the newest reading for a sensor.
func (s *Substrate) Latest(sensorID string) (hal.SensorReading, error) {
	readings, err := s.LatestReadings(sensorID, 1)
	if err != nil {
		return hal.SensorReading{}, err
	}
	if len(readings) == 0 {
		return hal.SensorReading{}, fmt.Errorf("%w: %s has no data yet", hal.ErrSimulatedDeviceDown, sensorID)
	}
	return readings[len(readings)-1], nil
}

// Snapshot returns the newest reading of every sensor that is up and has data.
func (s *Substrate) Snapshot() map[string]hal.SensorReading {
	now := s.clock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]hal.SensorReading, len(s.rings))
	for id, ring := range s.rings {
		if s.isDownLocked(id, now) {
			continue
		}
		if r, ok := ring.Last(); ok {
			out[id] = r
		}
	}
	return out
}

// Sensors returns the simulated sensor catalogue in configuration order.
func (s *Substrate) Sensors() []SensorSpec {
	return append([]SensorSpec(nil), s.specs...)
}

// SensorIDs returns every sensor with a ring, catalogue or external, sorted.
func (s *Substrate) SensorIDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.rings))
	for id := range s.rings {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// InjectFailure marks a sensor id or a capability class as down until
// now+d. A non-positive d has no effect.
func (s *Substrate) InjectFailure(target string, d time.Duration) error {
	if !s.knownTarget(target) {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	if d <= 0 {
		return nil
	}
	until := s.clock().Add(d)

	s.mu.Lock()
	s.downUntil[target] = until
	s.mu.Unlock()

	if m := s.observer(); m != nil {
		m.ObserveFailureInjected(target)
	}
	s.log().Info("failure injected", "target", target, "until", until)
	return nil
}

// Restore ends a failure window early.
func (s *Substrate) Restore(target string) error {
	if !s.knownTarget(target) {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	s.mu.Lock()
	_, was := s.downUntil[target]
	delete(s.downUntil, target)
	s.mu.Unlock()

	if was {
		s.log().Info("failure restored", "target", target)
	}
	return nil
}

// Down reports whether target is inside a failure window.
func (s *Substrate) Down(target string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isDownLocked(target, s.clock())
}

// Failures returns the open failure windows keyed by target.
func (s *Substrate) Failures() map[string]time.Time {
	now := s.clock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]time.Time)
	for target, until := range s.downUntil {
		if until.After(now) {
			out[target] = until
		}
	}
	return out
}

func (s *Substrate) isDownLocked(target string, now time.Time) bool {
	until, ok := s.downUntil[target]
	return ok && now.Before(until)
}

func (s *Substrate) knownTarget(target string) bool {
	if hal.CapabilityClass(target).Valid() {
		return true
	}
	s.mu.RLock()
	_, ok := s.rings[target]
	s.mu.RUnlock()
	return ok
}

// classDown returns ErrSimulatedDeviceDown while class is failed.
func (s *Substrate) classDown(class hal.CapabilityClass) error {
	if s.Down(string(class)) {
		return fmt.Errorf("%w: %s", hal.ErrSimulatedDeviceDown, class)
	}
	return nil
}
