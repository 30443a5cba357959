package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// Timeout returns middleware that adds a request-scoped deadline without swapping
// echo's response writer. Handlers observe the cancellation through their context
// and the error handler turns it into a 503 envelope.
//
// echo's middleware.TimeoutWithConfig wraps net/http.TimeoutHandler, whose writer
// swap leaves c.Response() unusable for the logging middleware after a timeout.
func Timeout(duration time.Duration) echo.MiddlewareFunc {
	if duration <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			parent := c.Request().Context()
			if err := parent.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(parent, duration)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if ctxErr := ctx.Err(); ctxErr != nil && !c.Response().Committed {
				return ctxErr
			}
			return err
		}
	}
}
