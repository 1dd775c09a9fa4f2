// Package server exposes the HTTP trigger surface: one endpoint that starts
// a pipeline run and returns its report. Overlapping triggers are refused
// rather than queued, because the staging table is truncate-and-replace and
// two concurrent runs would corrupt each other's input.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/veldtlabs/bannerlake/pkg/metrics"
	"github.com/veldtlabs/bannerlake/pkg/pipeline"
)

const defaultShutdownTimeout = 30 * time.Second

type Config struct {
	Logger   *slog.Logger
	Listener net.Listener
	Pipeline pipeline.Runner

	// Optional with defaults.
	ShutdownTimeout time.Duration
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Listener == nil {
		return fmt.Errorf("listener is required")
	}
	if c.Pipeline == nil {
		return fmt.Errorf("pipeline is required")
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}

type Server struct {
	log *slog.Logger
	cfg Config

	// Held for the duration of a triggered run.
	running sync.Mutex
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Server{log: cfg.Logger, cfg: cfg}, nil
}

func (s *Server) Start(ctx context.Context, cancel context.CancelFunc) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Run(ctx); err != nil {
			errCh <- err
			cancel()
		}
	}()
	return errCh
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Handler: s.Handler()}

	s.log.Info("starting trigger server", "address", s.cfg.Listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(s.cfg.Listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("graceful shutdown failed", "error", err)
		return nil
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/v1/runs", s.handleRun)

	return r
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.running.TryLock() {
		metrics.TriggerOutcomes.WithLabelValues("conflict").Inc()
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a run is already in progress"})
		return
	}
	defer s.running.Unlock()

	report, err := s.cfg.Pipeline.Run(r.Context())
	if err != nil {
		metrics.TriggerOutcomes.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"report": report,
		})
		return
	}
	metrics.TriggerOutcomes.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
