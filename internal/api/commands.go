package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/gesture"
)

const (
	defaultListenTimeout = 5 * time.Second
	maxListenTimeout     = time.Minute
)

// SpeakRequest is the body of POST /commands/speak.
type SpeakRequest struct {
	Text string `json:"text"`
}

// ListenRequest is the body of POST /commands/listen.
type ListenRequest struct {
	TimeoutMS int `json:"timeout_ms"`
}

// MoveRequest is the body of POST /commands/move.
type MoveRequest struct {
	Actuator string `json:"actuator"`
	Position *int   `json:"position"`
}

// PoseRequest is the body of POST /commands/pose.
type PoseRequest struct {
	Pose string `json:"pose"`
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req SpeakRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeBadRequest(w, "text is required")
		return
	}
	writeResult(w, s.router.Speak(r.Context(), req.Text))
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	req := ListenRequest{}
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	timeout := defaultListenTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	if timeout > maxListenTimeout {
		writeBadRequest(w, "timeout_ms must not exceed 60000")
		return
	}
	writeResult(w, s.router.Listen(r.Context(), timeout))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Actuator == "" || req.Position == nil {
		writeBadRequest(w, "actuator and position are required")
		return
	}
	writeResult(w, s.router.MoveActuator(r.Context(), req.Actuator, *req.Position))
}

func (s *Server) handlePose(w http.ResponseWriter, r *http.Request) {
	var req PoseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Pose == "" {
		writeBadRequest(w, "pose is required")
		return
	}
	writeResult(w, s.router.MovePose(r.Context(), req.Pose))
}

func (s *Server) handleRecognizeGesture(w http.ResponseWriter, r *http.Request) {
	writeResult(w, s.router.RecognizeGesture(r.Context()))
}

func (s *Server) handleListPoses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"poses": s.router.Poses()})
}

func (s *Server) handleListGestures(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"gestures": gesture.Table()})
}
