package api

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/laurabot-hal/internal/gesture"
	"github.com/nerrad567/laurabot-hal/internal/simulation"
)

const failureSource = "api"

// FailureRequest is the body of POST /simulation/failures.
type FailureRequest struct {
	Target   string `json:"target"`
	Duration string `json:"duration"` // Go duration, e.g. "30s"
}

// FailureWindow is one open failure window.
type FailureWindow struct {
	Target string    `json:"target"`
	Until  time.Time `json:"until"`
}

// ScriptRequest is the body of POST /simulation/script.
type ScriptRequest struct {
	Gestures []string `json:"gestures"`
}

func (s *Server) handleListFailures(w http.ResponseWriter, _ *http.Request) {
	failures := s.substrate.Failures()
	out := make([]FailureWindow, 0, len(failures))
	for target, until := range failures {
		out = append(out, FailureWindow{Target: target, Until: until})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	writeJSON(w, http.StatusOK, map[string]any{"failures": out})
}

func (s *Server) handleInjectFailure(w http.ResponseWriter, r *http.Request) {
	var req FailureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil || d <= 0 {
		writeBadRequest(w, "duration must be a positive Go duration such as \"30s\"")
		return
	}
	if err := s.substrate.InjectFailure(req.Target, d); err != nil {
		if errors.Is(err, simulation.ErrUnknownTarget) {
			writeNotFound(w, "unknown failure target: "+req.Target)
			return
		}
		writeInternalError(w, "failed to inject failure")
		return
	}
	until := s.substrate.Failures()[req.Target]
	if s.failures != nil {
		s.failures.RecordFailure(req.Target, until, failureSource)
	}
	writeJSON(w, http.StatusCreated, FailureWindow{Target: req.Target, Until: until})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")
	if err := s.substrate.Restore(target); err != nil {
		if errors.Is(err, simulation.ErrUnknownTarget) {
			writeNotFound(w, "unknown failure target: "+target)
			return
		}
		writeInternalError(w, "failed to restore")
		return
	}
	if s.failures != nil {
		s.failures.RecordFailure(target, time.Time{}, failureSource)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleScriptGestures(w http.ResponseWriter, r *http.Request) {
	var req ScriptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Gestures) == 0 {
		writeBadRequest(w, "gestures must not be empty")
		return
	}
	if err := s.substrate.Script(req.Gestures...); err != nil {
		if errors.Is(err, gesture.ErrUnknownGesture) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, "failed to script gestures")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": s.substrate.Scripted()})
}

func (s *Server) handleReplayDemo(w http.ResponseWriter, _ *http.Request) {
	if err := s.substrate.ReplayDemo(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": s.substrate.Scripted()})
}

func (s *Server) handleSpoken(w http.ResponseWriter, r *http.Request) {
	lines := s.substrate.Spoken(queryLimit(r, defaultReadingsLimit))
	writeJSON(w, http.StatusOK, map[string]any{"spoken": lines})
}

func (s *Server) handleActuators(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"positions": s.substrate.Positions()})
}
