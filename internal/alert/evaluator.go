package alert

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/ringbuf"
)

// DefaultHistoryCapacity bounds alert and recovery history when none is configured.
const DefaultHistoryCapacity = 50

// Logger is the logging interface used by the evaluator.
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

// Metrics receives alert observations.
type Metrics interface {
	ObserveAlert(sensorType string, severity Severity)
	ObserveRecovery(sensorType string)
}

// Evaluator runs the per-sensor severity state machine.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Subscribers are called after the state lock is released, in the
//     order they subscribed.
type Evaluator struct {
	thresholds map[string]Threshold

	mu         sync.Mutex
	states     map[string]Severity
	alerts     *ringbuf.Ring[Alert]
	recoveries *ringbuf.Ring[Recovery]
	stats      Stats

	subsMu       sync.RWMutex
	alertSubs    []func(Alert)
	recoverySubs []func(Recovery)

	logger  Logger
	metrics Metrics
}

// NewEvaluator creates an evaluator.
//
// Parameters:
//   - thresholds: One entry per sensor type; later entries replace earlier ones
//   - capacity: Alert and recovery history size (DefaultHistoryCapacity if < 1)
//
// Returns:
//   - *Evaluator: Ready for use, every sensor starting at normal
func NewEvaluator(thresholds []Threshold, capacity int) *Evaluator {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	e := &Evaluator{
		thresholds: make(map[string]Threshold, len(thresholds)),
		states:     make(map[string]Severity),
		alerts:     ringbuf.New[Alert](capacity),
		recoveries: ringbuf.New[Recovery](capacity),
		logger:     noopLogger{},
	}
	for _, t := range thresholds {
		e.thresholds[t.SensorType] = t
	}
	return e
}

// SetLogger sets the logger. Call before the first Evaluate.
func (e *Evaluator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// SetMetrics sets the metrics sink. Call before the first Evaluate.
func (e *Evaluator) SetMetrics(m Metrics) {
	e.metrics = m
}

// Subscribe registers a handler for raised alerts.
func (e *Evaluator) Subscribe(fn func(Alert)) {
	if fn == nil {
		return
	}
	e.subsMu.Lock()
	e.alertSubs = append(e.alertSubs, fn)
	e.subsMu.Unlock()
}

// SubscribeRecoveries registers a handler for recoveries.
func (e *Evaluator) SubscribeRecoveries(fn func(Recovery)) {
	if fn == nil {
		return
	}
	e.subsMu.Lock()
	e.recoverySubs = append(e.recoverySubs, fn)
	e.subsMu.Unlock()
}

// Thresholds returns the configured thresholds sorted by sensor type.
func (e *Evaluator) Thresholds() []Threshold {
	out := make([]Threshold, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorType < out[j].SensorType })
	return out
}

// Evaluate feeds one reading through its sensor's state machine.
//
// Returns:
//   - *Alert: Non-nil when the sensor moved to a higher severity
//   - *Recovery: Non-nil when the sensor moved to a lower severity
func (e *Evaluator) Evaluate(r hal.SensorReading) (*Alert, *Recovery) {
	t, ok := e.thresholds[r.Type]
	if !ok {
		return nil, nil
	}
	next := t.Classify(r.Value)

	e.mu.Lock()
	prev, seen := e.states[r.SensorID]
	if !seen {
		prev = SeverityNormal
	}
	if next == prev {
		e.mu.Unlock()
		return nil, nil
	}
	e.states[r.SensorID] = next

	var (
		raised    *Alert
		recovered *Recovery
	)
	if next.Rank() > prev.Rank() {
		a := Alert{
			ID:         uuid.NewString(),
			SensorID:   r.SensorID,
			SensorType: r.Type,
			Location:   r.Location,
			Severity:   next,
			Previous:   prev,
			Value:      r.Value,
			Unit:       r.Unit,
			Timestamp:  r.Timestamp,
			Message:    Message(r.Type, r.Value, r.Unit, r.Location),
		}
		e.alerts.Push(a)
		e.stats.TotalAlerts++
		if next == SeverityCritical {
			e.stats.CriticalAlerts++
		} else {
			e.stats.WarningAlerts++
		}
		raised = &a
	} else {
		rec := Recovery{
			ID:         uuid.NewString(),
			SensorID:   r.SensorID,
			SensorType: r.Type,
			From:       prev,
			To:         next,
			Value:      r.Value,
			Timestamp:  r.Timestamp,
		}
		e.recoveries.Push(rec)
		e.stats.Recoveries++
		recovered = &rec
	}
	e.mu.Unlock()

	e.subsMu.RLock()
	alertSubs, recoverySubs := e.alertSubs, e.recoverySubs
	e.subsMu.RUnlock()

	if raised != nil {
		e.logger.Warn("sensor alert", "sensor", r.SensorID, "severity", raised.Severity, "value", r.Value, "message", raised.Message)
		if e.metrics != nil {
			e.metrics.ObserveAlert(r.Type, raised.Severity)
		}
		for _, fn := range alertSubs {
			fn(*raised)
		}
	}
	if recovered != nil {
		e.logger.Info("sensor recovered", "sensor", r.SensorID, "from", recovered.From, "to", recovered.To, "value", r.Value)
		if e.metrics != nil {
			e.metrics.ObserveRecovery(r.Type)
		}
		for _, fn := range recoverySubs {
			fn(*recovered)
		}
	}
	return raised, recovered
}

// ActiveAlerts returns up to n alerts from history, newest first.
// n <= 0 returns the whole history.
func (e *Evaluator) ActiveAlerts(n int) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alerts.Newest(n)
}

// Recoveries returns up to n recoveries, newest first.
func (e *Evaluator) Recoveries(n int) []Recovery {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recoveries.Newest(n)
}

// States returns the sensors currently above normal.
func (e *Evaluator) States() map[string]Severity {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]Severity)
	for id, s := range e.states {
		if s != SeverityNormal {
			out[id] = s
		}
	}
	return out
}

// State returns a sensor's current severity.
func (e *Evaluator) State(sensorID string) Severity {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.states[sensorID]; ok {
		return s
	}
	return SeverityNormal
}

// Stats returns alert counters.
func (e *Evaluator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stats
	for _, s := range e.states {
		if s != SeverityNormal {
			st.SensorsInAlarm++
		}
	}
	return st
}
