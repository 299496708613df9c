package api

import (
	"net/http"

	"github.com/nerrad567/laurabot-hal/internal/device"
	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// HardwareReport is the response for GET /hardware.
type HardwareReport struct {
	Bindings []device.Binding `json:"bindings"`
	Counts   map[hal.Tier]int `json:"counts"`
	Report   string           `json:"report"`
}

// handleHardwareReport returns the current binding of every class.
func (s *Server) handleHardwareReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HardwareReport{
		Bindings: s.registry.Bindings(),
		Counts:   s.registry.Counts(),
		Report:   s.registry.Report(),
	})
}

// handleLastProbe returns the most recent probe report.
func (s *Server) handleLastProbe(w http.ResponseWriter, _ *http.Request) {
	if s.prober == nil {
		writeUnavailable(w, "probing not configured")
		return
	}
	report, ok := s.prober.LastReport()
	if !ok {
		writeNotFound(w, "no probe has completed yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleProbe runs a probe (or joins the one in flight) and returns its report.
func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		writeUnavailable(w, "probing not configured")
		return
	}
	report, err := s.prober.Probe(r.Context())
	if err != nil {
		s.logger.Error("probe failed", "error", err)
		writeInternalError(w, "probe failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
