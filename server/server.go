// Package server exposes the liveness and manual-check HTTP endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"platinmods-tracker/notify"
	"platinmods-tracker/pkg/tracker"
)

// Checker triggers a monitoring cycle.
type Checker interface {
	RunCycle(ctx context.Context) (*tracker.Summary, error)
}

// Server handles HTTP requests.
type Server struct {
	checker Checker
	logger  *slog.Logger
}

// New creates a new HTTP server handler.
func New(checker Checker, logger *slog.Logger) *Server {
	return &Server{
		checker: checker,
		logger:  logger,
	}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/checkz", s.handleCheck)
	return mux
}

// ListenAndServe starts the server with timeouts to prevent resource
// exhaustion.
func (s *Server) ListenAndServe(port string) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute, // manual checks block on a full cycle
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return server.ListenAndServe()
}

// handleRoot is the keep-alive page probed by hosting platforms to prevent
// idle shutdown. It reflects process liveness only, never cycle success.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, "Platinmods Tracker Bot is Alive!"); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

// handleCheck triggers a manual cycle and returns the rendered summary.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Manual check endpoint triggered")

	summary, err := s.checker.RunCycle(r.Context())
	if errors.Is(err, tracker.ErrCycleBusy) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		if _, err := fmt.Fprint(w, `{"status":"busy"}`); err != nil {
			s.logger.Warn("Failed to write response", "error", err)
		}
		return
	}
	if err != nil {
		s.logger.Error("Manual check failed", "error", err)
		http.Error(w, "Check failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, notify.RenderSummary(summary)); err != nil {
		s.logger.Warn("Failed to write summary response", "error", err)
	}
}
