package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/escribo/escribo-web/logger"
	"github.com/escribo/escribo-web/trace"
)

// LoggerConfig configures the request logging middleware.
type LoggerConfig struct {
	// SkipPaths lists route patterns excluded from logging, such as probes.
	SkipPaths []string

	// SlowRequestThreshold marks slower 2xx requests with result_code WARN.
	// Zero disables slow request detection.
	SlowRequestThreshold time.Duration
}

// Logger emits one summary entry per request, including the number of
// outbound API calls it triggered and the time spent in them.
func Logger(log logger.Logger, cfg LoggerConfig) echo.MiddlewareFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			if _, ok := skip[path]; ok {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler write the response so the status is final
				c.Error(err)
			}
			logRequest(c, log, cfg, time.Since(start), err)
			return nil
		}
	}
}

func logRequest(c echo.Context, log logger.Logger, cfg LoggerConfig, latency time.Duration, err error) {
	req := c.Request()
	ctx := req.Context()
	status := c.Response().Status

	level, resultCode := determineSeverity(status, latency, cfg.SlowRequestThreshold, err)
	event := createLogEvent(log, level)
	if err != nil {
		event = event.Err(err)
	}

	correlationID, _ := trace.IDFromContext(ctx)
	event.
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Str("correlation_id", correlationID).
		Str("http.request.method", req.Method).
		Int("http.response.status_code", status).
		Int64("http.server.request.duration", latency.Nanoseconds()).
		Str("url.path", req.URL.Path).
		Str("http.route", c.Path()).
		Str("client.address", c.RealIP()).
		Str("user_agent.original", req.UserAgent()).
		Str("result_code", resultCode).
		Int64("api_calls", logger.FetchCount(ctx)).
		Int64("api_elapsed", logger.FetchElapsed(ctx).Nanoseconds()).
		Msg(createActionMessage(req.Method, req.URL.Path, latency, status))
}

// determineSeverity returns the log level and result_code for a finished request.
func determineSeverity(status int, latency, threshold time.Duration, err error) (level, resultCode string) {
	switch {
	case status >= 500 || (err != nil && status == 0):
		return "error", "ERROR"
	case status >= 400:
		return "warn", "WARN"
	case threshold > 0 && latency > threshold:
		return "info", "WARN"
	default:
		return "info", "INFO"
	}
}

func createLogEvent(log logger.Logger, level string) logger.LogEvent {
	switch level {
	case "error":
		return log.Error()
	case "warn":
		return log.Warn()
	default:
		return log.Info()
	}
}

// createActionMessage renders e.g. "GET /api/garments/abc completed in 12ms with status 2xx".
func createActionMessage(method, path string, latency time.Duration, status int) string {
	return method + " " + path + " completed in " + latency.String() + " with status " + strconv.Itoa(status/100) + "xx"
}
