// Package server exposes the query and command API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/robertmeta/feedcore/hierarchy"
	"github.com/robertmeta/feedcore/ingest"
	"github.com/robertmeta/feedcore/logging"
	"github.com/robertmeta/feedcore/model"
	"github.com/robertmeta/feedcore/script"
)

// Server is the HTTP front of the core.
type Server struct {
	tree     *hierarchy.Tree
	registry *script.Registry
	pipeline *ingest.Pipeline
	logger   *logging.Logger
	router   chi.Router
}

// New wires the routes.
func New(tree *hierarchy.Tree, registry *script.Registry, pipeline *ingest.Pipeline, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		tree:     tree,
		registry: registry,
		pipeline: pipeline,
		logger:   logger.ForComponent("server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sources", s.handleListSources)
		r.Post("/sources", s.handleAddSource)
		r.Delete("/sources/{id}", s.handleRemoveSource)
		r.Get("/sources/{id}/tree", s.handleTree)

		r.Post("/folders", s.handleAddFolder)
		r.Patch("/folders/{id}", s.handleUpdateFolder)
		r.Delete("/folders/{id}", s.handleRemoveFolder)

		r.Get("/feeds", s.handleListFeeds)
		r.Post("/feeds", s.handleAddFeed)
		r.Get("/feeds/{id}", s.handleGetFeed)
		r.Patch("/feeds/{id}", s.handleUpdateFeed)
		r.Delete("/feeds/{id}", s.handleRemoveFeed)
		r.Post("/feeds/{id}/refresh", s.handleRefreshFeed)
		r.Post("/refresh", s.handleRefreshAll)

		r.Get("/posts", s.handleListPosts)
		r.Get("/posts/{id}", s.handleGetPost)
		r.Put("/posts/{id}/flags/{color}", s.handleFlag(true))
		r.Delete("/posts/{id}/flags/{color}", s.handleFlag(false))
		r.Get("/flags", s.handleUsedFlags)
		r.Post("/read", s.handleMarkRead)
		r.Get("/unread", s.handleUnread)
		r.Get("/categories", s.handleCategories)
		r.Get("/statistics", s.handleStatistics)

		r.Get("/scripts", s.handleListScripts)
		r.Post("/scripts", s.handleRegisterScript)
		r.Get("/scripts/{id}", s.handleGetScript)
		r.Put("/scripts/{id}", s.handleUpdateScript)
		r.Delete("/scripts/{id}", s.handleRemoveScript)

		r.Get("/scriptfolders", s.handleListScriptFolders)
		r.Post("/scriptfolders", s.handleCreateScriptFolder)
		r.Patch("/scriptfolders/{id}", s.handleRenameScriptFolder)
		r.Delete("/scriptfolders/{id}", s.handleRemoveScriptFolder)
		r.Put("/scriptfolders/{id}/posts/{postID}", s.handleAssign(true))
		r.Delete("/scriptfolders/{id}/posts/{postID}", s.handleAssign(false))

		r.Post("/import", s.handleImport)
		r.Get("/export", s.handleExport)

		r.Get("/logs", s.handleLogs)
		r.Delete("/logs", s.handleClearLogs)
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// statusFor maps error codes to HTTP statuses.
func statusFor(err error) int {
	switch model.CodeOf(err) {
	case model.ErrCodeValidation, model.ErrCodeImport:
		return http.StatusBadRequest
	case model.ErrCodeIntegrity:
		if strings.Contains(err.Error(), "not found") {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case model.ErrCodeFetch:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Code    model.ErrorCode `json:"code,omitempty"`
	Message string          `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeJSON(w, status, errorBody{Code: model.CodeOf(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func badRequest(msg string, err error) error {
	return model.NewValidationError(msg, err)
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid "+name, err)
	}
	return id, nil
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid request body", err)
	}
	return nil
}

// scopeParam parses an optional "kind:id" node reference.
func scopeParam(r *http.Request, name string) (model.NodeRef, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return model.NodeRef{}, nil
	}
	ref, err := model.ParseNodeRef(raw)
	if err != nil {
		return model.NodeRef{}, badRequest("invalid "+name, err)
	}
	return ref, nil
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("invalid "+name, err)
	}
	return n, nil
}
