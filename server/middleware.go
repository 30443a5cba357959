package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/escribo/escribo-web/config"
	"github.com/escribo/escribo-web/logger"
)

// SetupMiddlewares registers the middleware chain. Order matters: the request
// ID and trace context come first so every later layer can correlate, and the
// request logger wraps recovery so panics are logged with their final status.
func SetupMiddlewares(e *echo.Echo, log logger.Logger, cfg *config.Config, tp oteltrace.TracerProvider, probes ...string) {
	e.Use(middleware.RequestID())

	e.Use(otelecho.Middleware(cfg.App.Name,
		otelecho.WithTracerProvider(tp),
		otelecho.WithSkipper(func(c echo.Context) bool { return isProbe(c, probes) }),
	))

	e.Use(TraceContext())

	e.Use(Logger(log, LoggerConfig{
		SkipPaths:            probes,
		SlowRequestThreshold: defaultSlowRequestThreshold,
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error().
				Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Bytes("stack", stack).
				Msg("Panic recovered")
			return err
		},
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            3600,
		ContentSecurityPolicy: "default-src 'self'",
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimitOrDefault()))

	e.Use(Timeout(cfg.Server.MiddlewareTimeout))

	e.Use(RateLimit(cfg.App.Rate.Limit, cfg.App.Rate.Burst, cfg.App.Debug, probes...))
}

func isProbe(c echo.Context, probes []string) bool {
	for _, p := range probes {
		if c.Path() == p {
			return true
		}
	}
	return false
}
