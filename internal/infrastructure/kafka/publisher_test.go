package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
)

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func TestConnect_Disabled(t *testing.T) {
	if _, err := Connect(config.KafkaConfig{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_BuildsWriter(t *testing.T) {
	p, err := Connect(config.KafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "laurabot.hardware"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	w, ok := p.writer.(*kafkago.Writer)
	if !ok {
		t.Fatalf("writer type = %T, want *kafka.Writer", p.writer)
	}
	if w.Topic != "laurabot.hardware" || !w.Async {
		t.Errorf("writer = topic %q async %v, want laurabot.hardware async", w.Topic, w.Async)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestPublish_Envelope(t *testing.T) {
	w := &recordingWriter{}
	p := NewPublisher(w)

	payload := map[string]any{"sensor_id": "air_001", "severity": "critical"}
	if err := p.Publish(context.Background(), EventAlert, "air_001", payload); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "air_001" {
		t.Errorf("Key = %q, want air_001", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != EventAlert {
		t.Errorf("Headers = %v, want type=alert", msg.Headers)
	}

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		t.Fatalf("envelope decode error = %v", err)
	}
	if env.Type != EventAlert || env.ID == "" || env.At.IsZero() {
		t.Errorf("envelope = %+v", env)
	}
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("data decode error = %v", err)
	}
	if data["severity"] != "critical" {
		t.Errorf("data = %v, want severity critical", data)
	}
}

func TestPublish_Errors(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := NewPublisher(w)

	if err := p.Publish(context.Background(), EventProbe, "input", "x"); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
	if err := p.Publish(context.Background(), EventProbe, "input", func() {}); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish(unencodable) error = %v, want ErrPublishFailed", err)
	}
}

func TestPublisher_NilSafe(t *testing.T) {
	var p *Publisher
	if err := p.Publish(context.Background(), EventAlert, "k", 1); err != nil {
		t.Errorf("Publish() on nil error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() on nil error = %v", err)
	}
}
