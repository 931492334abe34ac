// Package httpapi exposes questions, answers, votes and validators over
// HTTP and streams live tallies over websockets.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"bounty-qa/internal/broadcast"
	"bounty-qa/internal/qa"
	"bounty-qa/internal/registry"
	"bounty-qa/internal/voting"
)

// HealthCheck is a named readiness probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	QA       *qa.Service
	Ledger   *voting.Ledger
	Registry *registry.Registry
	// Hub is optional; without it the websocket route is not registered.
	Hub    *broadcast.Hub
	Health []HealthCheck
	Clock  clockwork.Clock
	Logger *slog.Logger
}

type Server struct {
	echo      *echo.Echo
	qa        *qa.Service
	ledger    *voting.Ledger
	registry  *registry.Registry
	hub       *broadcast.Hub
	health    []HealthCheck
	clock     clockwork.Clock
	logger    *slog.Logger
	startTime time.Time
}

// NewServer creates a Server with its routes registered.
func NewServer(opts Options) (*Server, error) {
	if opts.QA == nil || opts.Ledger == nil || opts.Registry == nil {
		return nil, errors.New("httpapi: qa service, ledger and registry are required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler

	srv := &Server{
		echo:      e,
		qa:        opts.QA,
		ledger:    opts.Ledger,
		registry:  opts.Registry,
		hub:       opts.Hub,
		health:    opts.Health,
		clock:     opts.Clock,
		logger:    opts.Logger.With("component", "http"),
		startTime: opts.Clock.Now(),
	}

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware())
	e.Use(srv.requestLogger())
	e.Use(srv.errorMiddleware())

	srv.registerRoutes()
	return srv, nil
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting http server", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
