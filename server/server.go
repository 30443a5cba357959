// Package server exposes the Escribo pages as a JSON API on echo. Each route
// reads through the escribo client, so upstream retries, caching and request
// correlation happen below the handlers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/escribo/escribo-web/config"
	"github.com/escribo/escribo-web/logger"
)

const (
	// APIPrefix groups the page routes.
	APIPrefix = "/api"

	defaultSlowRequestThreshold = time.Second
	readinessTimeout            = 2 * time.Second
)

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server is the HTTP front of escribo-web.
type Server struct {
	echo        *echo.Echo
	cfg         *config.Config
	logger      logger.Logger
	healthRoute string
	readyRoute  string
	checks      map[string]ReadinessCheck
}

// Option configures a Server.
type Option func(*options)

type options struct {
	tracerProvider oteltrace.TracerProvider
	checks         map[string]ReadinessCheck
}

// WithTracerProvider sets the provider used for inbound request spans.
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithReadinessCheck adds a named check to the readiness probe.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(o *options) { o.checks[name] = check }
}

// New creates a server routing page requests to svc.
func New(cfg *config.Config, log logger.Logger, svc Service, opts ...Option) *Server {
	if log == nil {
		log = logger.Nop()
	}
	o := &options{checks: make(map[string]ReadinessCheck)}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		customErrorHandler(err, c, cfg, log)
	}

	s := &Server{
		echo:        e,
		cfg:         cfg,
		logger:      log,
		healthRoute: normalizeRoutePath(cfg.Server.HealthRoute, "/health"),
		readyRoute:  normalizeRoutePath(cfg.Server.ReadyRoute, "/ready"),
		checks:      o.checks,
	}

	SetupMiddlewares(e, log, cfg, o.tracerProvider, s.healthRoute, s.readyRoute)

	e.GET(s.healthRoute, s.healthCheck)
	e.GET(s.readyRoute, s.readyCheck)

	h := &handlers{svc: svc}
	h.register(e.Group(APIPrefix))

	return s
}

func normalizeRoutePath(route, defaultRoute string) string {
	if route == "" {
		route = defaultRoute
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
}

// Start accepts requests until Shutdown. It returns nil after a graceful stop.
func (s *Server) Start() error {
	srv := s.echo.Server
	srv.ReadTimeout = s.cfg.Server.ReadTimeout
	srv.WriteTimeout = s.cfg.Server.WriteTimeout
	srv.IdleTimeout = s.cfg.Server.IdleTimeout

	s.logger.Info().
		Str("service", s.cfg.App.Name).
		Str("version", s.cfg.App.Version).
		Str("env", s.cfg.App.Env).
		Str("address", s.Address()).
		Msg("Starting server...")

	if err := s.echo.Start(s.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) readyCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
	defer cancel()

	results := make(map[string]string, len(s.checks))
	ready := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			ready = false
			results[name] = err.Error()
			s.logger.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			continue
		}
		results[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	return c.JSON(status, map[string]any{
		"status": state,
		"checks": results,
		"time":   time.Now().Unix(),
	})
}

func customErrorHandler(err error, c echo.Context, cfg *config.Config, log logger.Logger) {
	if c.Response().Committed {
		return
	}

	var apiErr IAPIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatus() >= http.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("Request failed")
		}
		_ = formatErrorResponse(c, apiErr, cfg.App.Debug)
		return
	}

	status := http.StatusInternalServerError
	msg := "Internal server error"
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
		msg = "Request timed out"
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("Unhandled error")
		if !cfg.App.Debug && status == http.StatusInternalServerError {
			msg = "An error occurred while processing your request"
		}
	}

	base := NewBaseAPIError(statusToErrorCode(status), msg, status).WithDetails("error", err.Error())
	_ = formatErrorResponse(c, base, cfg.App.Debug)
}
