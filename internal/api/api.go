// Package api exposes search sessions over a JSON REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/session"
	"github.com/joescharf/ka/internal/sessions"
	"github.com/joescharf/ka/internal/store"
	"github.com/joescharf/ka/internal/view"
)

// Server provides the REST API handlers.
type Server struct {
	sessions *sessions.Manager
	store    store.Store
	log      *slog.Logger
	validate *validator.Validate
	version  string
}

// NewServer creates a new API server. The store may be nil, in which case
// transcripts are reported as empty.
func NewServer(mgr *sessions.Manager, st store.Store, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		sessions: mgr,
		store:    st,
		log:      logger,
		validate: v,
		version:  version,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return corsMiddleware(mux)
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", s.health)

	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("POST /api/v1/sessions", s.createSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.deleteSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/query", s.submitQuery)
	mux.HandleFunc("POST /api/v1/sessions/{id}/follow-up", s.submitFollowUp)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/mode", s.switchMode)
	mux.HandleFunc("GET /api/v1/sessions/{id}/turns", s.listTurns)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CORS wraps next with the API's CORS headers.
func CORS(next http.Handler) http.Handler {
	return corsMiddleware(next)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body into dst and validates it. An empty body is
// treated as an empty object.
func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON")
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, validationMessage(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}

// --- Requests and responses ---

type createSessionRequest struct {
	Mode string `json:"mode" validate:"omitempty,oneof=internal external"`
}

type queryRequest struct {
	Query string `json:"query" validate:"max=4000"`
	// Async returns as soon as the request has started.
	Async bool `json:"async"`
}

type modeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=internal external"`
}

type sessionResponse struct {
	ID             string              `json:"id"`
	State          session.State       `json:"state"`
	Display        view.Display        `json:"display"`
	Filter         view.Filter         `json:"filter"`
	VisibleSources []models.Source     `json:"visible_sources"`
	SourceCounts   map[view.Filter]int `json:"source_counts"`
	Started        *bool               `json:"started,omitempty"`
	Changed        *bool               `json:"changed,omitempty"`
}

func newSessionResponse(c *session.Controller, f view.Filter) sessionResponse {
	st := c.Snapshot()
	return sessionResponse{
		ID:             c.ID(),
		State:          st,
		Display:        view.DisplayState(st),
		Filter:         f,
		VisibleSources: view.VisibleSources(st, f),
		SourceCounts:   view.SourceCounts(st.CurrentResult()),
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	c, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return c, true
}

// --- Health ---

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"sessions": s.sessions.Count(),
	})
}

// --- Sessions ---

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ids": s.sessions.IDs()})
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c := s.sessions.Create(models.SearchMode(req.Mode))
	writeJSON(w, http.StatusCreated, newSessionResponse(c, view.FilterAll))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	f, err := view.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(c, f))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, sessions.ErrNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) submitQuery(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, (*session.Controller).BeginQuery)
}

func (s *Server) submitFollowUp(w http.ResponseWriter, r *http.Request) {
	s.submit(w, r, (*session.Controller).BeginFollowUp)
}

// submit starts a request with begin and, unless async was asked for, waits
// for it to finish. Ignored submissions answer with started=false; a
// submission rejected because another request is in flight is a 409.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, begin func(*session.Controller, string) (*session.Request, bool)) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body queryRequest
	if err := s.decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, started := begin(c, body.Query)
	if !started {
		if c.Snapshot().Loading {
			writeError(w, http.StatusConflict, "a search is already in progress for this session")
			return
		}
		resp := newSessionResponse(c, view.FilterAll)
		resp.Started = &started
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if body.Async {
		ctx := context.WithoutCancel(r.Context())
		go func() { c.Complete(c.Run(ctx, req)) }()
		resp := newSessionResponse(c, view.FilterAll)
		resp.Started = &started
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	c.Complete(c.Run(r.Context(), req))
	resp := newSessionResponse(c, view.FilterAll)
	resp.Started = &started
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) switchMode(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var body modeRequest
	if err := s.decode(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	changed := c.SwitchMode(models.SearchMode(body.Mode))
	resp := newSessionResponse(c, view.FilterAll)
	resp.Changed = &changed
	writeJSON(w, http.StatusOK, resp)
}

// --- Transcript ---

type turnResponse struct {
	ID          string          `json:"id"`
	Kind        models.TurnKind `json:"kind"`
	Mode        string          `json:"mode"`
	Query       string          `json:"query"`
	Summary     string          `json:"summary,omitempty"`
	Sources     []models.Source `json:"sources"`
	Error       string          `json:"error,omitempty"`
	DurationMS  int64           `json:"duration_ms"`
	CompletedAt string          `json:"completed_at"`
}

func (s *Server) listTurns(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	out := []turnResponse{}
	if s.store != nil {
		turns, err := s.store.ListTurns(r.Context(), id)
		if err != nil {
			s.log.Error("list turns", "session", id, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, t := range turns {
			sources := t.Sources
			if sources == nil {
				sources = []models.Source{}
			}
			out = append(out, turnResponse{
				ID:          t.ID,
				Kind:        t.Kind,
				Mode:        string(t.Mode),
				Query:       t.Query,
				Summary:     t.Summary,
				Sources:     sources,
				Error:       t.Error,
				DurationMS:  t.Duration.Milliseconds(),
				CompletedAt: t.CompletedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}
