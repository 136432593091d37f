// Package api exposes a small status HTTP server: a health endpoint for
// probes and a JSON view of the last reconciliation pass.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/collectarr/collectarr/internal/config"
	"github.com/collectarr/collectarr/internal/reconciler"
)

// Status is the mutable pass state shared between the runner loop and the
// HTTP handlers.
type Status struct {
	mu        sync.RWMutex
	last      *reconciler.Summary
	nextRunAt time.Time
}

// SetSummary records the outcome of a finished pass.
func (s *Status) SetSummary(summary reconciler.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &summary
}

// SetNextRun records when the next pass is scheduled.
func (s *Status) SetNextRun(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunAt = t
}

func (s *Status) view() statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := statusResponse{Version: config.Version}
	if !s.nextRunAt.IsZero() {
		resp.NextRunAt = &s.nextRunAt
	}
	if s.last != nil {
		last := *s.last
		resp.LastRun = &last
	}
	return resp
}

type statusResponse struct {
	Version   string              `json:"version"`
	LastRun   *reconciler.Summary `json:"last_run,omitempty"`
	NextRunAt *time.Time          `json:"next_run_at,omitempty"`
}

// Server is the status HTTP server.
type Server struct {
	echo   *echo.Echo
	cfg    config.ServerConfig
	status *Status
	logger zerolog.Logger
}

// NewServer creates the status server and registers its routes.
func NewServer(cfg config.ServerConfig, status *Status, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		cfg:    cfg,
		status: status,
		logger: logger.With().Str("component", "api").Logger(),
	}

	e.Use(middleware.Recover())
	e.GET("/healthz", s.handleHealth)
	e.GET("/api/status", s.handleStatus)

	return s
}

// Start runs the server until Shutdown. Blocks.
func (s *Server) Start() error {
	addr := s.cfg.Address()
	s.logger.Info().Str("addr", addr).Msg("Status server listening")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.status.view())
}
