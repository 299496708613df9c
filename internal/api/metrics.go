package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/alert"
	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/influxdb"
	"github.com/nerrad567/laurabot-hal/internal/simulation"
	"github.com/nerrad567/laurabot-hal/internal/telemetry"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          ConnMetrics    `json:"mqtt"`
	InfluxDB      ConnMetrics    `json:"influxdb"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	RetainedChannels int    `json:"retained_channels"`
	DroppedFrames    uint64 `json:"dropped_frames"`
}

// ConnMetrics reports an optional infrastructure connection.
type ConnMetrics struct {
	Configured bool                 `json:"configured"`
	Connected  bool                 `json:"connected"`
	Writes     *influxdb.WriteStats `json:"writes,omitempty"`
}

// writeCounter is implemented by connections that batch writes.
type writeCounter interface {
	Stats() influxdb.WriteStats
}

// EngineStats is the response for GET /stats.
type EngineStats struct {
	Hardware   map[hal.Tier]int `json:"hardware"`
	Simulation simulation.Stats `json:"simulation"`
	Alerts     alert.Stats      `json:"alerts"`
	Telemetry  *telemetry.Stats `json:"telemetry,omitempty"`
}

// handleSystem returns process and connection metrics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		MQTT:     connMetrics(s.mqtt),
		InfluxDB: connMetrics(s.influx),
	}
	if s.hub != nil {
		metrics.WebSocket = s.hub.Stats()
	}

	writeJSON(w, http.StatusOK, metrics)
}

func connMetrics(c ConnectionChecker) ConnMetrics {
	if c == nil {
		return ConnMetrics{}
	}
	m := ConnMetrics{Configured: true, Connected: c.IsConnected()}
	if wc, ok := c.(writeCounter); ok {
		st := wc.Stats()
		m.Writes = &st
	}
	return m
}

// handleStats returns hardware, simulation, alert and telemetry counters.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := EngineStats{
		Hardware:   s.registry.Counts(),
		Simulation: s.substrate.Stats(),
		Alerts:     s.evaluator.Stats(),
	}
	if s.telemetry != nil {
		t := s.telemetry.Stats()
		stats.Telemetry = &t
	}
	writeJSON(w, http.StatusOK, stats)
}
