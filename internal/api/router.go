package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)
		r.Get("/stats", s.handleStats)

		r.Route("/hardware", func(r chi.Router) {
			r.Get("/", s.handleHardwareReport)
			r.Get("/probe", s.handleLastProbe)
			r.Post("/probe", s.handleProbe)
		})

		r.Route("/commands", func(r chi.Router) {
			r.Post("/speak", s.instrument("speak", s.handleSpeak))
			r.Post("/listen", s.instrument("listen", s.handleListen))
			r.Post("/move", s.instrument("move", s.handleMove))
			r.Post("/pose", s.instrument("pose", s.handlePose))
			r.Post("/gesture", s.instrument("gesture", s.handleRecognizeGesture))
		})
		r.Get("/poses", s.handleListPoses)
		r.Get("/gestures", s.handleListGestures)

		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", s.handleListSensors)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/readings", s.handleSensorReadings)
				r.Post("/readings", s.handleIngestReading)
			})
		})

		r.Route("/simulation", func(r chi.Router) {
			r.Get("/failures", s.handleListFailures)
			r.Post("/failures", s.handleInjectFailure)
			r.Delete("/failures/{target}", s.handleRestore)
			r.Post("/script", s.handleScriptGestures)
			r.Post("/replay", s.handleReplayDemo)
			r.Get("/spoken", s.handleSpoken)
			r.Get("/actuators", s.handleActuators)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Get("/recoveries", s.handleListRecoveries)
			r.Get("/states", s.handleAlertStates)
			r.Get("/thresholds", s.handleThresholds)
		})

		r.Get("/audit", s.handleListAuditLogs)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// instrument wraps a handler with request metrics for route.
func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return s.metrics.WrapHandler(route, h).ServeHTTP
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
