package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/alert"
	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/influxdb"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/kafka"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/mqtt"
	"github.com/nerrad567/laurabot-hal/internal/simulation"
)

// WebSocket channels.
const (
	ChannelReading  = "sensor.reading"
	ChannelAlert    = "alert.raised"
	ChannelRecovery = "alert.recovered"
)

const (
	defaultQueueSize = 1024
	publishTimeout   = 5 * time.Second
)

// Source produces readings and accepts external ones.
type Source interface {
	Subscribe(fn simulation.ReadingHandler)
	Ingest(r hal.SensorReading) error
}

// Broker is the MQTT surface the pipeline needs.
type Broker interface {
	Topics() mqtt.Topics
	QoS() byte
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// TimeSeries stores readings and transitions.
type TimeSeries interface {
	WriteSensorReading(r hal.SensorReading)
	WriteAlert(a influxdb.AlertPoint)
	WriteRecovery(sensorID, from, to string, value float64, at time.Time)
}

// EventPublisher streams transitions to other services.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, key string, data any) error
}

// AuditSink records transitions durably.
type AuditSink interface {
	RecordAlert(a alert.Alert)
	RecordRecovery(r alert.Recovery)
}

// Broadcaster pushes payloads to live clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by the pipeline.
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

// Deps holds the pipeline's collaborators. Source and Evaluator are
// required; leave any sink nil (untyped) to disable it.
type Deps struct {
	Source    Source
	Evaluator *alert.Evaluator
	Broker    Broker
	Series    TimeSeries
	Events    EventPublisher
	Audit     AuditSink
	Hub       Broadcaster
	Logger    Logger
	QueueSize int
}

// Stats counts pipeline activity.
type Stats struct {
	Processed uint64 `json:"processed"`
	Published uint64 `json:"published"`
	Ingested  uint64 `json:"ingested"`
	Dropped   uint64 `json:"dropped"`
	Rejected  uint64 `json:"rejected"`
}

// Pipeline fans readings and transitions out to sinks.
//
// Thread Safety:
//   - Readings are processed on one goroutine in arrival order.
//   - Stats is safe for concurrent use.
type Pipeline struct {
	deps  Deps
	log   Logger
	queue chan hal.SensorReading

	processed atomic.Uint64
	published atomic.Uint64
	ingested  atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New wires the pipeline to its source and evaluator. Readings are queued
// from the moment New returns; call Start to process them.
func New(deps Deps) (*Pipeline, error) {
	if deps.Source == nil || deps.Evaluator == nil {
		return nil, ErrNoSource
	}
	size := deps.QueueSize
	if size < 1 {
		size = defaultQueueSize
	}
	p := &Pipeline{
		deps:  deps,
		log:   deps.Logger,
		queue: make(chan hal.SensorReading, size),
		done:  make(chan struct{}),
	}
	if p.log == nil {
		p.log = noopLogger{}
	}

	deps.Evaluator.Subscribe(p.onAlert)
	deps.Evaluator.SubscribeRecoveries(p.onRecovery)
	deps.Source.Subscribe(p.enqueue)
	return p, nil
}

// Start subscribes to MQTT ingest (when a broker is configured) and starts
// the worker.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.deps.Broker != nil {
		topic := p.deps.Broker.Topics().AllIngest()
		if err := p.deps.Broker.Subscribe(topic, p.deps.Broker.QoS(), p.handleIngest); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		p.log.Info("listening for external readings", "topic", topic)
	}

	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Stop processes queued readings and stops the worker. Safe to call multiple times.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Published: p.published.Load(),
		Ingested:  p.ingested.Load(),
		Dropped:   p.dropped.Load(),
		Rejected:  p.rejected.Load(),
	}
}

func (p *Pipeline) enqueue(r hal.SensorReading) {
	select {
	case p.queue <- r:
	default:
		p.dropped.Add(1)
		p.log.Warn("telemetry queue full, reading dropped", "sensor_id", r.SensorID)
	}
}

func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case r := <-p.queue:
			p.process(r)
		case <-p.done:
			p.drain()
			return
		case <-ctx.Done():
			p.drain()
			return
		}
	}
}

func (p *Pipeline) drain() {
	for {
		select {
		case r := <-p.queue:
			p.process(r)
		default:
			return
		}
	}
}

func (p *Pipeline) process(r hal.SensorReading) {
	p.processed.Add(1)

	// Alert subscribers run inside Evaluate.
	p.deps.Evaluator.Evaluate(r)

	if p.deps.Broker != nil && r.Source != hal.SourceExternal {
		if err := p.deps.Broker.PublishJSON(p.deps.Broker.Topics().SensorReading(r.SensorID), r, false); err != nil {
			p.log.Debug("reading publish failed", "sensor_id", r.SensorID, "error", err)
		} else {
			p.published.Add(1)
		}
	}
	if p.deps.Series != nil {
		p.deps.Series.WriteSensorReading(r)
	}
	if p.deps.Hub != nil {
		p.deps.Hub.Broadcast(ChannelReading, r)
	}
}

func (p *Pipeline) onAlert(a alert.Alert) {
	if p.deps.Broker != nil {
		if err := p.deps.Broker.PublishJSON(p.deps.Broker.Topics().Alert(string(a.Severity)), a, false); err != nil {
			p.log.Debug("alert publish failed", "alert_id", a.ID, "error", err)
		}
	}
	if p.deps.Series != nil {
		p.deps.Series.WriteAlert(influxdb.AlertPoint{
			SensorID:   a.SensorID,
			SensorType: a.SensorType,
			Location:   a.Location,
			Severity:   string(a.Severity),
			Previous:   string(a.Previous),
			Value:      a.Value,
			Message:    a.Message,
			Timestamp:  a.Timestamp,
		})
	}
	p.publishEvent(kafka.EventAlert, a.SensorID, a)
	if p.deps.Audit != nil {
		p.deps.Audit.RecordAlert(a)
	}
	if p.deps.Hub != nil {
		p.deps.Hub.Broadcast(ChannelAlert, a)
	}
}

func (p *Pipeline) onRecovery(r alert.Recovery) {
	if p.deps.Broker != nil {
		if err := p.deps.Broker.PublishJSON(p.deps.Broker.Topics().Alert(string(r.To)), r, false); err != nil {
			p.log.Debug("recovery publish failed", "recovery_id", r.ID, "error", err)
		}
	}
	if p.deps.Series != nil {
		p.deps.Series.WriteRecovery(r.SensorID, string(r.From), string(r.To), r.Value, r.Timestamp)
	}
	p.publishEvent(kafka.EventRecovery, r.SensorID, r)
	if p.deps.Audit != nil {
		p.deps.Audit.RecordRecovery(r)
	}
	if p.deps.Hub != nil {
		p.deps.Hub.Broadcast(ChannelRecovery, r)
	}
}

func (p *Pipeline) publishEvent(eventType, key string, data any) {
	if p.deps.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.deps.Events.Publish(ctx, eventType, key, data); err != nil {
		p.log.Debug("event publish failed", "type", eventType, "key", key, "error", err)
	}
}

// ingestPayload is the JSON body real sensors publish. Only value is required.
type ingestPayload struct {
	Value     *float64  `json:"value"`
	Type      string    `json:"type,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Location  string    `json:"location,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// DecodeIngest builds a reading for sensorID from an ingest message body.
// A missing timestamp is filled with now.
func DecodeIngest(sensorID string, payload []byte, now time.Time) (hal.SensorReading, error) {
	if sensorID == "" {
		return hal.SensorReading{}, fmt.Errorf("%w: empty sensor id", ErrInvalidPayload)
	}
	var in ingestPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return hal.SensorReading{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if in.Value == nil {
		return hal.SensorReading{}, fmt.Errorf("%w: missing value", ErrInvalidPayload)
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return hal.SensorReading{
		SensorID:  sensorID,
		Type:      in.Type,
		Unit:      in.Unit,
		Value:     *in.Value,
		Location:  in.Location,
		Timestamp: ts.UTC(),
		Source:    hal.SourceExternal,
	}, nil
}

func (p *Pipeline) handleIngest(topic string, payload []byte) error {
	r, err := DecodeIngest(mqtt.LastSegment(topic), payload, time.Now())
	if err != nil {
		p.rejected.Add(1)
		p.log.Warn("external reading rejected", "topic", topic, "error", err)
		return nil
	}
	if err := p.deps.Source.Ingest(r); err != nil {
		p.rejected.Add(1)
		p.log.Warn("external reading rejected", "sensor_id", r.SensorID, "error", err)
		return nil
	}
	p.ingested.Add(1)
	return nil
}
