package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
)

// fakeServer answers the InfluxDB ping and write endpoints and records
// the line protocol it receives.
type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	lines    []string
	writeErr bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/ping"):
			w.WriteHeader(http.StatusNoContent)
		case strings.HasSuffix(r.URL.Path, "/api/v2/write"):
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			fail := f.writeErr
			if !fail {
				for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
					if line != "" {
						f.lines = append(f.lines, line)
					}
				}
			}
			f.mu.Unlock()
			if fail {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"invalid","message":"bad point"}`))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "laurabot",
		Bucket:        "sensors",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, f *fakeServer) *Client {
	t.Helper()
	c, err := Connect(testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://localhost:8086")
	cfg.Enabled = false

	if _, err := Connect(cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeServer(t)
	url := f.URL
	f.Close()

	if _, err := Connect(testConfig(url)); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeServer(t)
	cfg := testConfig(f.URL)
	cfg.BatchSize = -1
	cfg.FlushInterval = 0

	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFakeServer(t)
	c := connect(t, f)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	_ = c.Close()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestWriteSensorReading(t *testing.T) {
	f := newFakeServer(t)
	c := connect(t, f)

	c.WriteSensorReading(hal.SensorReading{
		SensorID:  "temp_001",
		Type:      "temperature",
		Unit:      "C",
		Value:     24.5,
		Location:  "living_room",
		Timestamp: time.Unix(1780000000, 0),
		Source:    hal.SourceSimulated,
	})
	c.Flush()

	lines := f.received()
	if len(lines) != 1 {
		t.Fatalf("received %d lines, want 1: %v", len(lines), lines)
	}
	line := lines[0]
	for _, want := range []string{
		MeasurementSensor,
		"sensor_id=temp_001",
		"sensor_type=temperature",
		"source=simulated",
		"location=living_room",
		"value=24.5",
		"1780000000",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWriteAlertAndRecovery(t *testing.T) {
	f := newFakeServer(t)
	c := connect(t, f)

	at := time.Unix(1780000000, 0)
	c.WriteAlert(AlertPoint{
		SensorID:   "air_001",
		SensorType: "air_quality",
		Location:   "living_room",
		Severity:   "critical",
		Previous:   "warning",
		Value:      210,
		Message:    "Poor air quality (AQI: 210) in living_room",
		Timestamp:  at,
	})
	c.WriteRecovery("air_001", "critical", "normal", 90, at.Add(time.Minute))
	c.WriteCommand("speak", hal.TierSimulated, true, 3*time.Millisecond)
	c.Flush()

	lines := f.received()
	if len(lines) != 3 {
		t.Fatalf("received %d lines, want 3: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], MeasurementAlert) || !strings.Contains(lines[0], "severity=critical") {
		t.Errorf("alert line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], MeasurementRecovery) || !strings.Contains(lines[1], "to=normal") {
		t.Errorf("recovery line = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], MeasurementCommand) || !strings.Contains(lines[2], "tier=simulated") {
		t.Errorf("command line = %q", lines[2])
	}
}

func TestWrite_ErrorCallback(t *testing.T) {
	f := newFakeServer(t)
	f.writeErr = true
	c := connect(t, f)

	errCh := make(chan error, 1)
	c.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	c.WriteSensorReading(hal.SensorReading{SensorID: "x", Type: "t", Value: 1, Timestamp: time.Now()})
	c.Flush()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("error callback not called")
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	c.WriteSensorReading(hal.SensorReading{SensorID: "x"})
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() on nil client = true")
	}
}

func TestStats(t *testing.T) {
	f := newFakeServer(t)
	c := connect(t, f)

	c.WriteCommand("move", hal.TierReal, true, time.Millisecond)
	c.WriteCommand("move", hal.TierReal, false, time.Millisecond)
	c.Flush()

	if got := c.Stats(); got.Queued != 2 || got.Failed != 0 {
		t.Errorf("Stats() = %+v, want 2 queued, 0 failed", got)
	}
	if lines := f.received(); len(lines) != 2 || !strings.Contains(lines[0], "service=laurabot-hal") {
		t.Errorf("lines = %v, want 2 tagged with service", lines)
	}

	_ = c.Close()
	c.WriteCommand("move", hal.TierReal, true, time.Millisecond)
	if got := c.Stats().Queued; got != 2 {
		t.Errorf("Queued after Close = %d, want 2", got)
	}
}
