// Package api serves the retrieval service as a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/metrics"
	"github.com/Aman-CERP/amanrag/internal/search"
	"github.com/Aman-CERP/amanrag/internal/state"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

const shutdownTimeout = 10 * time.Second

// Server routes HTTP requests to a search.Retriever.
type Server struct {
	retriever search.Retriever
	logger    *slog.Logger
	router    chi.Router
}

// NewServer builds the router. logger may be nil.
func NewServer(r search.Retriever, logger *slog.Logger) (*Server, error) {
	if r == nil {
		return nil, errors.New("retriever is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{retriever: r, logger: logger}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/retrieval", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/stats", s.handleStats)

		r.Get("/saved_queries", s.handleListQueries)
		r.Post("/saved_queries", s.handleSaveQuery)
		r.Delete("/saved_queries/{name}", s.handleDeleteQuery)

		r.Get("/watchlists", s.handleListWatchlists)
		r.Post("/watchlists", s.handleSaveWatchlist)
		r.Delete("/watchlists/{name}", s.handleDeleteWatchlist)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_server_starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http_shutdown_failed", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("http_server_stopped")
	return nil
}

// saveQueryRequest carries the saved search under "request". A raw
// "payload" object is accepted when "request" is absent and stored as is.
type saveQueryRequest struct {
	Name    string          `json:"name"`
	Request *search.Request `json:"request"`
	Payload state.Payload   `json:"payload"`
}

func (q saveQueryRequest) payload() (state.Payload, error) {
	if q.Request == nil {
		if q.Payload == nil {
			return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "request is required", nil)
		}
		return q.Payload, nil
	}
	if err := q.Request.Validate(0); err != nil {
		return nil, err
	}
	return q.Request.Payload(), nil
}

type searchResponse struct {
	Query string       `json:"query"`
	Hits  []search.Hit `json:"hits"`
}

type saveWatchlistRequest struct {
	Name   string   `json:"name"`
	DocIDs []string `json:"doc_ids"`
}

type mutationResponse struct {
	OK   bool   `json:"ok"`
	Name string `json:"name"`
	Size *int   `json:"size,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if !decode(w, r, &req) {
		return
	}
	hits, err := s.retriever.Search(r.Context(), req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: req.Query, Hits: hits})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.retriever.Stats(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	qs, err := s.retriever.ListSavedQueries(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved_queries": qs})
}

func (s *Server) handleSaveQuery(w http.ResponseWriter, r *http.Request) {
	var req saveQueryRequest
	if !decode(w, r, &req) {
		return
	}
	payload, err := req.payload()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.retriever.SaveQuery(r.Context(), req.Name, payload); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{OK: true, Name: req.Name})
}

func (s *Server) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.retriever.DeleteQuery(r.Context(), name); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{OK: true, Name: name})
}

func (s *Server) handleListWatchlists(w http.ResponseWriter, r *http.Request) {
	ws, err := s.retriever.ListWatchlists(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"watchlists": ws})
}

func (s *Server) handleSaveWatchlist(w http.ResponseWriter, r *http.Request) {
	var req saveWatchlistRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.retriever.SaveWatchlist(r.Context(), req.Name, req.DocIDs); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	size := len(req.DocIDs)
	writeJSON(w, http.StatusOK, mutationResponse{OK: true, Name: req.Name, Size: &size})
}

func (s *Server) handleDeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.retriever.DeleteWatchlist(r.Context(), name); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mutationResponse{OK: true, Name: name})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case amerrors.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case amerrors.GetCode(err) == amerrors.ErrCodeSearchFailed,
		amerrors.GetCategory(err) == amerrors.CategoryBackend:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := http.StatusText(status)
	var ae *amerrors.AppError
	if errors.As(err, &ae) {
		detail = ae.Message
	}

	if status >= http.StatusInternalServerError {
		attrs := append([]slog.Attr{
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
		}, amerrors.LogAttrs(err)...)
		s.logger.LogAttrs(r.Context(), slog.LevelError, "http_request_failed", attrs...)
	}
	writeJSON(w, status, errorResponse{Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
