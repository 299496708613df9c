package audit

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/alert"
	"github.com/nerrad567/laurabot-hal/internal/device"
	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/probe"
	"github.com/nerrad567/laurabot-hal/internal/router"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Logger is the logging interface used by the recorder.
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

// Recorder converts engine events to entries and writes them in the
// background. Entries arriving while the queue is full are dropped and
// logged.
type Recorder struct {
	repo   Repository
	queue  chan Entry
	logger Logger

	mu      sync.Mutex
	dropped uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRecorder creates a recorder. Call Start to begin writing.
func NewRecorder(repo Repository, queueSize int) *Recorder {
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan Entry, queueSize),
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger. Call before Start.
func (r *Recorder) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Start launches the writer goroutine.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.writeLoop(ctx)
}

// Stop drains queued entries and stops the writer. Safe to call multiple times.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

// Dropped returns how many entries were discarded on a full queue.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) writeLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case e := <-r.queue:
			r.write(e)
		case <-r.done:
			r.drain()
			return
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case e := <-r.queue:
			r.write(e)
		default:
			return
		}
	}
}

func (r *Recorder) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, &e); err != nil {
		r.logger.Error("audit write failed", "action", e.Action, "entity", e.EntityID, "error", err)
	}
}

// Record queues an entry without blocking.
func (r *Recorder) Record(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case r.queue <- e:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.logger.Warn("audit queue full, entry dropped", "action", e.Action, "entity", e.EntityID)
	}
}

// RecordProbe queues one entry per class outcome.
func (r *Recorder) RecordProbe(rep probe.Report) {
	for _, o := range rep.Outcomes {
		attempts := make([]map[string]any, 0, len(o.Attempts))
		for _, a := range o.Attempts {
			attempts = append(attempts, map[string]any{
				"candidate":   a.Candidate.String(),
				"tier":        string(a.Tier),
				"outcome":     a.Outcome,
				"duration_ms": a.Duration.Milliseconds(),
			})
		}
		details := map[string]any{
			"probe_id":  rep.ID,
			"tier":      string(o.Tier),
			"device_id": o.DeviceID,
			"attempts":  attempts,
		}
		if o.Fallback != "" {
			details["fallback"] = o.Fallback
		}
		r.Record(Entry{
			Action:     ActionProbe,
			EntityType: EntityClass,
			EntityID:   string(o.Class),
			Source:     "probe",
			Details:    details,
			CreatedAt:  rep.StartedAt,
		})
	}
}

// RecordRebind queues a binding change.
func (r *Recorder) RecordRebind(ev device.RebindEvent) {
	details := map[string]any{
		"tier":      string(ev.Current.Tier()),
		"device_id": ev.Current.DeviceID(),
	}
	if ev.Previous != nil {
		details["previous_tier"] = string(ev.Previous.Tier())
		details["previous_device_id"] = ev.Previous.DeviceID()
	}
	r.Record(Entry{
		Action:     ActionRebind,
		EntityType: EntityClass,
		EntityID:   string(ev.Class),
		Source:     "registry",
		Details:    details,
		CreatedAt:  ev.At,
	})
}

// RecordFallback queues a per-call downgrade.
func (r *Recorder) RecordFallback(ev router.FallbackEvent) {
	r.Record(Entry{
		Action:     ActionFallback,
		EntityType: EntityClass,
		EntityID:   string(ev.Class),
		Source:     "router",
		Details: map[string]any{
			"op":     ev.Op,
			"from":   string(ev.From),
			"to":     string(ev.To),
			"reason": ev.Reason,
		},
		CreatedAt: ev.At,
	})
}

// RecordAlert queues a raised alert.
func (r *Recorder) RecordAlert(a alert.Alert) {
	r.Record(Entry{
		Action:     ActionAlert,
		EntityType: EntitySensor,
		EntityID:   a.SensorID,
		Source:     "alerts",
		Details: map[string]any{
			"alert_id": a.ID,
			"severity": string(a.Severity),
			"previous": string(a.Previous),
			"value":    a.Value,
			"message":  a.Message,
		},
		CreatedAt: a.Timestamp,
	})
}

// RecordRecovery queues a severity drop.
func (r *Recorder) RecordRecovery(rec alert.Recovery) {
	r.Record(Entry{
		Action:     ActionRecovery,
		EntityType: EntitySensor,
		EntityID:   rec.SensorID,
		Source:     "alerts",
		Details: map[string]any{
			"from":  string(rec.From),
			"to":    string(rec.To),
			"value": rec.Value,
		},
		CreatedAt: rec.Timestamp,
	})
}

// RecordFailure queues a simulated failure window change. A zero until
// records a restore.
func (r *Recorder) RecordFailure(target string, until time.Time, source string) {
	action := ActionFailureInjected
	details := map[string]any{}
	if until.IsZero() {
		action = ActionFailureRestored
	} else {
		details["until"] = until.UTC().Format(time.RFC3339)
	}
	r.Record(Entry{
		Action:     action,
		EntityType: targetType(target),
		EntityID:   target,
		Source:     source,
		Details:    details,
	})
}

func targetType(target string) string {
	if hal.CapabilityClass(target).Valid() {
		return EntityClass
	}
	return EntitySensor
}
