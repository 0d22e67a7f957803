// Package server implements the HTTP JSON interface for the extraction
// engine (SPEC_FULL.md Supplemented Features: POST /extract, GET /cost,
// GET /decisions), adapted from the teacher's internal/server.Server
// (net/http.ServeMux, app-struct-owned handlers, graceful shutdown).
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lorekeeper/extractor/internal/app"
)

// Server owns the HTTP listener and routes every request through the
// wired App.
type Server struct {
	app    *app.App
	router *http.ServeMux
	server *http.Server
}

// New builds a Server for application.
func New(application *app.App) *Server {
	s := &Server{app: application}
	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", application.Config.Server.Host, application.Config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(application.Config.Extraction.RequestTimeoutSeconds+30) * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/extract", s.handleExtract)
	mux.HandleFunc("/cost", s.handleCost)
	mux.HandleFunc("/decisions", s.handleDecisions)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// Start runs the HTTP server until it is shut down or fails.
func (s *Server) Start() error {
	s.app.Logger.Info().Str("address", s.server.Addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger.Info().Msg("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Handler exposes the underlying handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
