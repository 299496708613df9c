package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
)

// Event types.
const (
	EventAlert    = "alert"
	EventRecovery = "recovery"
	EventProbe    = "probe"
	EventRebind   = "rebind"
	EventFallback = "fallback"
)

const defaultBatchTimeout = 50 * time.Millisecond

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Publisher writes event envelopes to one topic.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Publisher struct {
	writer MessageWriter

	mu      sync.RWMutex
	onError func(err error)
}

// Connect builds an asynchronous writer for cfg.Topic.
//
// No connection is made until the first batch is flushed, so an
// unreachable broker surfaces through SetOnError rather than here.
func Connect(cfg config.KafkaConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}

	p := &Publisher{}
	p.writer = &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           batchTimeout,
		Async:                  true,
		AllowAutoTopicCreation: true,
		Completion: func(_ []kafkago.Message, err error) {
			if err != nil {
				p.reportError(fmt.Errorf("%w: %w", ErrPublishFailed, err))
			}
		},
	}
	return p, nil
}

// NewPublisher wraps an existing writer.
func NewPublisher(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// SetOnError sets the callback for delivery failures.
func (p *Publisher) SetOnError(fn func(err error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

func (p *Publisher) reportError(err error) {
	p.mu.RLock()
	fn := p.onError
	p.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Publish encodes data in an envelope and queues it. key orders messages
// within a partition (sensor id or capability class). Nil-safe.
func (p *Publisher) Publish(ctx context.Context, eventType, key string, data any) error {
	if p == nil || p.writer == nil {
		return nil
	}
	msg, err := encode(eventType, key, data, time.Now())
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func encode(eventType, key string, data any, at time.Time) (kafkago.Message, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("%w: encoding %s: %w", ErrPublishFailed, eventType, err)
	}
	env, err := json.Marshal(Envelope{
		ID:   uuid.NewString(),
		Type: eventType,
		At:   at.UTC(),
		Data: body,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return kafkago.Message{
		Key:     []byte(key),
		Value:   env,
		Time:    at,
		Headers: []kafkago.Header{{Key: "type", Value: []byte(eventType)}},
	}, nil
}

// Close flushes queued messages and closes the writer. Nil-safe.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
