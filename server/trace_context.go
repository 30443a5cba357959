package server

import (
	"github.com/labstack/echo/v4"

	"github.com/escribo/escribo-web/logger"
	"github.com/escribo/escribo-web/trace"
)

// TraceContext stores the request ID and inbound traceparent in the request
// context, so the outbound API client can forward them without depending on
// echo. It also attaches the fetch counters read by the request logger.
func TraceContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Response().Header().Get(echo.HeaderXRequestID)
			}
			if id == "" {
				id = trace.EnsureID(ctx)
				c.Response().Header().Set(echo.HeaderXRequestID, id)
			}
			ctx = trace.WithID(ctx, id)

			if tp := req.Header.Get(trace.HeaderTraceParent); tp != "" {
				ctx = trace.WithParent(ctx, tp)
			}

			c.SetRequest(req.WithContext(logger.WithFetchCounter(ctx)))
			return next(c)
		}
	}
}
