// Package api exposes lesson sessions over HTTP and websockets.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/p-n-ai/pai-lesson/internal/evaluation"
	"github.com/p-n-ai/pai-lesson/internal/lesson"
	"github.com/p-n-ai/pai-lesson/internal/session"
)

// MaxAudioBytes bounds a speech upload.
const MaxAudioBytes = 10 << 20

// ReadyCheck reports whether a dependency is reachable.
type ReadyCheck func(ctx context.Context) error

// Server serves the session API.
type Server struct {
	manager        *session.Manager
	hub            *Hub
	validate       *validator.Validate
	checks         map[string]ReadyCheck
	originPatterns []string
}

// Option configures a Server.
type Option func(*Server)

// WithReadyCheck adds a dependency probed by /readyz.
func WithReadyCheck(name string, check ReadyCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithOriginPatterns sets the origins allowed to open a websocket.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}

// NewServer creates the API server. hub must be the Notifier and
// MediaController the manager's sessions were configured with.
func NewServer(manager *session.Manager, hub *Hub, opts ...Option) *Server {
	s := &Server{
		manager:  manager,
		hub:      hub,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		checks:   make(map[string]ReadyCheck),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /v1/sessions", s.handleStart)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGet)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleEnd)
	mux.HandleFunc("POST /v1/sessions/{id}/advance", s.handleAdvance)
	mux.HandleFunc("POST /v1/sessions/{id}/retreat", s.handleRetreat)
	mux.HandleFunc("POST /v1/sessions/{id}/answers", s.handleAnswer)
	mux.HandleFunc("POST /v1/sessions/{id}/speech", s.handleSpeech)
	mux.HandleFunc("POST /v1/sessions/{id}/sentence", s.handleSentence)
	mux.HandleFunc("POST /v1/sessions/{id}/highlight", s.handleHighlight)
	mux.HandleFunc("POST /v1/sessions/{id}/media", s.handleMedia)
	mux.HandleFunc("POST /v1/sessions/{id}/complete", s.handleComplete)
	mux.HandleFunc("GET /v1/sessions/{id}/report.xlsx", s.handleReport)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", s.handleWS)
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Session *session.Snapshot `json:"session,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Recoverable failures carry the
// learner-facing message and the unchanged session state.
func writeError(w http.ResponseWriter, err error, sess *session.Session) {
	resp := errorResponse{Error: err.Error()}
	status := statusFor(err)
	if te, ok := session.AsTransient(err); ok {
		resp.Message = te.Message
	}
	if sess != nil {
		snap := sess.Snapshot()
		resp.Session = &snap
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	if _, ok := session.AsTransient(err); ok {
		return http.StatusServiceUnavailable
	}
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrUnknownStep),
		errors.Is(err, lesson.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lesson.ErrMalformed),
		errors.Is(err, evaluation.ErrNotGradable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrSessionFailed):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrNoPreviousStep),
		errors.Is(err, session.ErrNotActive),
		errors.Is(err, session.ErrCompletionPending),
		errors.Is(err, session.ErrAlreadyCompleted),
		errors.Is(err, session.ErrWrongStep),
		errors.Is(err, session.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrUnknownMediaEvent):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")
