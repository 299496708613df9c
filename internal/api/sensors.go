package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/simulation"
	"github.com/nerrad567/laurabot-hal/internal/telemetry"
)

const defaultReadingsLimit = 20

// SensorView is one entry of GET /sensors.
type SensorView struct {
	simulation.SensorSpec
	Down   bool               `json:"down"`
	Latest *hal.SensorReading `json:"latest,omitempty"`
}

// queryLimit parses the limit query parameter, falling back to def.
func queryLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.substrate.Snapshot()
	specs := s.substrate.Sensors()
	out := make([]SensorView, 0, len(specs))
	for _, spec := range specs {
		v := SensorView{SensorSpec: spec, Down: s.substrate.Down(spec.ID)}
		if r, ok := snapshot[spec.ID]; ok && !v.Down {
			v.Latest = &r
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensors": out, "count": len(out)})
}

// handleSensorReadings returns the newest ?limit readings in time order,
// newest last.
func (s *Server) handleSensorReadings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	readings, err := s.substrate.LatestReadings(id, queryLimit(r, defaultReadingsLimit))
	switch {
	case errors.Is(err, hal.ErrUnknownSensor):
		writeNotFound(w, "unknown sensor: "+id)
		return
	case errors.Is(err, hal.ErrSimulatedDeviceDown):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNoData, "no data: "+id+" is down")
		return
	case err != nil:
		writeInternalError(w, "failed to read sensor")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sensor_id": id,
		"readings":  readings,
		"count":     len(readings),
	})
}

// handleIngestReading accepts an external reading over HTTP. The body is
// the same JSON real sensors publish over MQTT.
func (s *Server) handleIngestReading(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}
	reading, err := telemetry.DecodeIngest(id, body, time.Now())
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.substrate.Ingest(reading); err != nil {
		if errors.Is(err, simulation.ErrStaleReading) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		writeBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, reading)
}
