package server

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RateLimitCleanup is how long an idle client's limiter is kept.
const RateLimitCleanup = 3 * time.Minute

// RateLimit limits each client IP to requestsPerSecond with the given burst.
// A non-positive rate disables limiting. Probe paths listed in skip are exempt.
func RateLimit(requestsPerSecond, burst int, debug bool, skip ...string) echo.MiddlewareFunc {
	if requestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}
	if burst <= 0 {
		burst = requestsPerSecond
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			for _, p := range skip {
				if c.Path() == p {
					return true
				}
			}
			return false
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(requestsPerSecond),
			Burst:     burst,
			ExpiresIn: RateLimitCleanup,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return formatErrorResponse(c, NewBadRequestError("Unable to identify client").WithDetails("error", err.Error()), debug)
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return formatErrorResponse(c, NewTooManyRequestsError(""), debug)
		},
	})
}
