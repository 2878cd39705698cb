// Package controlapi exposes the HTTP surface that starts and stops
// captioning sessions and reports which rooms are active.
package controlapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// stopTimeout bounds how long a /stop request waits for the session's final
// flush and disconnect.
const stopTimeout = 15 * time.Second

// SessionController is the part of the session manager the control API
// drives.
type SessionController interface {
	StartSession(ctx context.Context, roomName, targetLanguage, sttLanguage string) error
	StopSession(ctx context.Context, roomName string) error
	ActiveRooms() []string
}

// Server handles the control API routes. Construct with [New] and mount via
// [Server.Register].
type Server struct {
	sessions SessionController
	log      *slog.Logger
}

// New creates a control API server driving the given session controller.
func New(sessions SessionController, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{sessions: sessions, log: log}
}

// Register adds the control routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /stop", s.handleStop)
	mux.HandleFunc("GET /sessions", s.handleSessions)
}

// sessionRequest is the body of /start and /stop.
type sessionRequest struct {
	RoomName       string `json:"roomName"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
	STTLanguage    string `json:"sttLanguage,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSessionRequest(w, r)
	if !ok {
		return
	}

	if err := s.sessions.StartSession(r.Context(), req.RoomName, req.TargetLanguage, req.STTLanguage); err != nil {
		s.log.Error("start session failed", slog.String("room", req.RoomName), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to join room")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "started",
		"roomName": req.RoomName,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSessionRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), stopTimeout)
	defer cancel()

	if err := s.sessions.StopSession(ctx, req.RoomName); err != nil {
		s.log.Error("stop session failed", slog.String("room", req.RoomName), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to stop session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "stopped",
		"roomName": req.RoomName,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	rooms := s.sessions.ActiveRooms()
	if rooms == nil {
		rooms = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activeRooms": rooms})
}

// decodeSessionRequest parses and validates the shared request body. On
// failure it writes the 400 response and returns ok=false.
func decodeSessionRequest(w http.ResponseWriter, r *http.Request) (sessionRequest, bool) {
	var req sessionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if req.RoomName == "" {
		writeError(w, http.StatusBadRequest, "roomName is required")
		return req, false
	}
	return req, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// Headers are already out; an encode failure here is unrecoverable.
	_ = json.NewEncoder(w).Encode(v)
}
