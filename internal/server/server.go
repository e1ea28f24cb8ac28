// Package server exposes the recording pipeline over HTTP: a small JSON API
// for session control, transcript retrieval endpoints, a WebSocket stream of
// live transcript events, Prometheus metrics, and health probes.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voiceai/quill/internal/health"
	"github.com/voiceai/quill/internal/observe"
	"github.com/voiceai/quill/internal/recorder"
	"github.com/voiceai/quill/internal/transcript"
	"github.com/voiceai/quill/pkg/audio/capture"
)

// Controller is the session control surface the server exposes over HTTP.
// [recorder.Controller] satisfies it.
type Controller interface {
	Start() error
	Stop() error
	ForceStop()
	Status() recorder.Status
	Sources() ([]capture.Source, error)
	SetLanguage(language string)
	SetSource(src capture.Source) error
}

// Server routes HTTP requests to the recording controller and transcript
// store. Construct with [New] and mount via [Server.Handler].
type Server struct {
	ctrl    Controller
	store   transcript.Store
	hub     *Hub
	healthz *health.Handler
	metrics *observe.Metrics
	log     *slog.Logger
}

// Option configures a [Server].
type Option func(*Server)

// WithHub sets the WebSocket hub used for the /ws event stream. Without it
// the /ws route is not registered.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithHealthHandler sets the handler backing /healthz and /readyz.
func WithHealthHandler(h *health.Handler) Option {
	return func(s *Server) { s.healthz = h }
}

// WithMetrics sets the metrics instance used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithServerLogger sets the logger. Defaults to [slog.Default].
func WithServerLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a Server around the given controller and transcript store.
func New(ctrl Controller, store transcript.Store, opts ...Option) *Server {
	s := &Server{
		ctrl:  ctrl,
		store: store,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.healthz == nil {
		s.healthz = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the fully wired HTTP handler. API routes are wrapped in
// the observability middleware; probe and metrics routes are not.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/session/start", s.handleStart)
	api.HandleFunc("POST /api/session/stop", s.handleStop)
	api.HandleFunc("POST /api/session/force-stop", s.handleForceStop)
	api.HandleFunc("GET /api/session/status", s.handleStatus)
	api.HandleFunc("GET /api/sources", s.handleSources)
	api.HandleFunc("PUT /api/language", s.handleSetLanguage)
	api.HandleFunc("PUT /api/source", s.handleSetSource)
	api.HandleFunc("GET /api/transcripts", s.handleSessions)
	api.HandleFunc("GET /api/transcripts/{id}", s.handleFragments)
	api.HandleFunc("GET /api/transcripts/{id}/text", s.handleTranscript)

	root := http.NewServeMux()
	root.Handle("/api/", observe.Middleware(s.metrics)(api))
	root.Handle("GET /metrics", promhttp.Handler())
	s.healthz.Register(root)
	if s.hub != nil {
		root.Handle("GET /ws", s.hub)
	}
	return root
}

// statusResponse is the JSON shape of GET /api/session/status.
type statusResponse struct {
	State           string        `json:"state"`
	SessionID       string        `json:"session_id,omitempty"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	ChunksProcessed int           `json:"chunks_processed"`
	Duration        time.Duration `json:"duration_ns"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.broadcastState()
	s.writeStatus(w)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.broadcastState()
	s.writeStatus(w)
}

func (s *Server) handleForceStop(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.ForceStop()
	s.broadcastState()
	s.writeStatus(w)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeStatus(w)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.ctrl.Sources()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

type languageRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	s.ctrl.SetLanguage(req.Language)
	writeJSON(w, http.StatusOK, map[string]string{"language": req.Language})
}

type sourceRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleSetSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := s.ctrl.SetSource(capture.Source{ID: req.ID, Name: req.Name}); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": req.ID})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.Sessions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (s *Server) handleFragments(w http.ResponseWriter, r *http.Request) {
	fragments, err := s.store.Fragments(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fragments": fragments})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	text, err := s.store.Transcript(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) writeStatus(w http.ResponseWriter) {
	st := s.ctrl.Status()
	resp := statusResponse{
		State:           st.State.String(),
		SessionID:       st.SessionID,
		ChunksProcessed: st.ChunksProcessed,
		Duration:        st.Duration,
	}
	if !st.StartedAt.IsZero() {
		resp.StartedAt = &st.StartedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// broadcastState pushes the current session state to WebSocket subscribers.
func (s *Server) broadcastState() {
	if s.hub == nil {
		return
	}
	st := s.ctrl.Status()
	s.hub.Broadcast(Event{
		Type:      EventState,
		SessionID: st.SessionID,
		State:     st.State.String(),
	})
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, recorder.ErrAlreadyActive), errors.Is(err, recorder.ErrNotActive):
		status = http.StatusConflict
	case errors.Is(err, recorder.ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, transcript.ErrSessionNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}
