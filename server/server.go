// Package server exposes the engine over HTTP for the answer-generation
// service and the operational tooling.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	ctxforge "github.com/ctxforge/ctxforge"
	"github.com/ctxforge/ctxforge/model"
)

// Engine is the surface the HTTP server drives.
type Engine interface {
	Retrieve(ctx context.Context, query model.RetrievalQuery) (*ctxforge.RetrievalResult, error)
	IngestDocument(ctx context.Context, doc *model.Document) error
	DeleteDocument(ctx context.Context, documentID string) error
	Reindex(ctx context.Context) error
	ReindexDocument(ctx context.Context, documentID string) error
	Healthy(ctx context.Context) error
}

// Server wraps the engine with its HTTP routes.
type Server struct {
	engine Engine
	logger *slog.Logger
}

// NewServer creates a new HTTP server around the engine.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	return &Server{
		engine: engine,
		logger: logger,
	}
}

// Routes builds the router with all endpoints and middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/retrieve", s.handleRetrieve)
		r.Post("/documents", s.handleIngest)
		r.Delete("/documents/{id}", s.handleDelete)
		r.Post("/reindex", s.handleReindex)
	})

	return r
}

// errorResponse is the JSON error body of every non-2xx response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError maps the engine error taxonomy onto HTTP status codes:
// caller mistakes are 4xx, transient provider trouble is 503 and index
// integrity failures are 500.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Message: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Message: err.Error()})
	case errors.Is(err, model.ErrProviderRejected):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "provider_rejected", Message: err.Error()})
	case errors.Is(err, model.ErrProviderUnavailable):
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "provider_unavailable", Message: err.Error()})
	case errors.Is(err, model.ErrDimensionMismatch):
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "dimension_mismatch", Message: err.Error()})
	case errors.Is(err, model.ErrIndexCorruption):
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "index_corruption", Message: err.Error()})
	default:
		s.logger.Error("Unclassified request failure", slog.String("error", err.Error()))
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal server error"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.engine.Healthy(ctx); err != nil {
		s.logger.Warn("Readiness check failed", slog.String("error", err.Error()))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var query model.RetrievalQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Message: "invalid request body: " + err.Error()})
		return
	}

	result, err := s.engine.Retrieve(r.Context(), query)
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var doc model.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Message: "invalid request body: " + err.Error()})
		return
	}

	if err := s.engine.IngestDocument(r.Context(), &doc); err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": doc.ID,
		"version":     doc.Version,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "id")

	if err := s.engine.DeleteDocument(r.Context(), documentID); err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"document_id": documentID})
}

// reindexRequest optionally scopes a reindex to one document.
type reindexRequest struct {
	DocumentID string `json:"document_id,omitempty"`
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var request reindexRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "validation", Message: "invalid request body: " + err.Error()})
		return
	}

	var err error
	if request.DocumentID != "" {
		err = s.engine.ReindexDocument(r.Context(), request.DocumentID)
	} else {
		err = s.engine.Reindex(r.Context())
	}
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "reindexed"})
}

// ListenAndServe runs the HTTP server until the context is canceled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", slog.String("addr", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	}
}
