package api

import "net/http"

const defaultAlertsLimit = 50

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.evaluator.ActiveAlerts(queryLimit(r, defaultAlertsLimit))
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleListRecoveries(w http.ResponseWriter, r *http.Request) {
	recoveries := s.evaluator.Recoveries(queryLimit(r, defaultAlertsLimit))
	writeJSON(w, http.StatusOK, map[string]any{"recoveries": recoveries, "count": len(recoveries)})
}

func (s *Server) handleAlertStates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"states": s.evaluator.States()})
}

func (s *Server) handleThresholds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"thresholds": s.evaluator.Thresholds()})
}
