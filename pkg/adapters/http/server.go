package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/crucible"
	"github.com/aretw0/crucible/internal/logging"
	"github.com/aretw0/crucible/pkg/domain"
	"github.com/aretw0/crucible/pkg/ports"
	"github.com/aretw0/crucible/pkg/session"
	"github.com/aretw0/crucible/pkg/workspace"
	"github.com/go-chi/chi/v5"
)

// Server exposes a harness over HTTP.
type Server struct {
	Harness ports.Harness
	Events  *session.Session

	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics mounts a Prometheus handler at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler for the harness. events must be the
// session consuming the same harness's event stream.
func NewHandler(h ports.Harness, events *session.Session, opts ...Option) http.Handler {
	s := &Server{
		Harness: h,
		Events:  events,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Post("/workspace", s.InitWorkspace)
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.StartRun)
		r.Get("/current", s.GetCurrentRun)
		r.Post("/cancel", s.CancelRun)
	})
	r.Get("/events", s.SubscribeEvents)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// InitWorkspaceRequest is the body of POST /workspace.
type InitWorkspaceRequest struct {
	Root      string `json:"root"`
	Mode      string `json:"mode,omitempty"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

// ArtifactRequest is one artifact of POST /runs. Path is optional.
type ArtifactRequest struct {
	Slot    domain.Slot `json:"slot"`
	Path    string      `json:"path,omitempty"`
	Content string      `json:"content"`
}

// StartRunRequest is the body of POST /runs.
type StartRunRequest struct {
	Artifacts []ArtifactRequest `json:"artifacts"`
}

// RunResponse describes the harness state and its current run.
type RunResponse struct {
	State domain.RunState `json:"state"`
	Run   *domain.TestRun `json:"run,omitempty"`
	Error string          `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InitWorkspace handles the POST /workspace request.
func (s *Server) InitWorkspace(w http.ResponseWriter, r *http.Request) {
	var body InitWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(body.Root) == "" {
		writeError(w, http.StatusBadRequest, errors.New("root is required"))
		return
	}

	mode := workspace.ModeOpen
	switch {
	case body.Overwrite:
		mode = workspace.ModeOverwrite
	case body.Mode != "":
		mode = workspace.Mode(body.Mode)
		if mode != workspace.ModeCreate && mode != workspace.ModeOpen && mode != workspace.ModeOverwrite {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown mode %q", body.Mode))
			return
		}
	}

	if err := s.Harness.Initialize(body.Root, mode); err != nil {
		s.logger.Warn("InitWorkspace failed", "root", body.Root, "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(""))
}

// StartRun handles the POST /runs request. A finished run is acknowledged first.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	var body StartRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	artifacts := make([]domain.StagedArtifact, 0, len(body.Artifacts))
	for _, a := range body.Artifacts {
		artifacts = append(artifacts, domain.StagedArtifact{Slot: a.Slot, Path: a.Path, Content: []byte(a.Content)})
	}

	if s.Harness.State().IsTerminal() {
		if err := s.Harness.Acknowledge(); err != nil {
			s.logger.Debug("StartRun: acknowledge failed", "err", err)
		}
	}

	// The run outlives the request.
	run, err := s.Harness.StartRun(context.WithoutCancel(r.Context()), artifacts...)
	if err != nil {
		status := statusFor(err)
		s.logger.Warn("StartRun failed", "status", status, "err", err)
		if run.ID == 0 {
			writeError(w, status, err)
			return
		}
		writeJSON(w, status, RunResponse{State: s.Harness.State(), Run: &run, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, RunResponse{State: s.Harness.State(), Run: &run})
}

// CancelRun handles the POST /runs/cancel request.
func (s *Server) CancelRun(w http.ResponseWriter, r *http.Request) {
	s.Harness.Cancel()
	writeJSON(w, http.StatusAccepted, s.snapshot(""))
}

// GetCurrentRun handles the GET /runs/current request.
func (s *Server) GetCurrentRun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot(""))
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "crucible-http",
		"version": strings.TrimSpace(crucible.Version),
	})
}

// SubscribeEvents handles the GET /events request (SSE).
// With ?replay=true the retained events of the current run are sent first.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Subscribe before replaying so nothing falls between the two.
	ch, cancel := s.Events.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")

	var lastSeq uint64
	if replay := r.URL.Query().Get("replay"); replay == "true" || replay == "1" {
		for _, ev := range s.Events.Recent(0) {
			writeEvent(w, ev)
			lastSeq = ev.Seq
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Seq <= lastSeq {
				continue
			}
			writeEvent(w, ev)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Kind, data)
}

func (s *Server) snapshot(errText string) RunResponse {
	resp := RunResponse{State: s.Harness.State(), Error: errText}
	if run, ok := s.Harness.Current(); ok {
		resp.Run = &run
	}
	return resp
}

// statusFor maps harness errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotInitialized):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrAlreadyRunning), errors.Is(err, domain.ErrWorkspaceExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrArtifactTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrPathEscapesRoot), errors.Is(err, domain.ErrUnknownSlot), errors.Is(err, domain.ErrStagingFailed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrWorkspaceLocked):
		return http.StatusLocked
	case errors.Is(err, domain.ErrToolNotFound), errors.Is(err, domain.ErrSpawnFailure):
		return http.StatusFailedDependency
	case errors.Is(err, crucible.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
