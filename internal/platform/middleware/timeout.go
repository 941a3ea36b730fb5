package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout sets a deadline on the request context. Handlers that honour
// the context (batch recognition) stop early; if the deadline has passed when
// the handler returns and nothing was written, the client gets a 504. The
// handler runs on the calling goroutine and must not outlive the request.
// Paths in exempt are not limited.
func RequestTimeout(timeout time.Duration, exempt ...string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		skip[p] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || skip[c.Request().URL.Path] {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(err, context.DeadlineExceeded) {
				return gatewayTimeout()
			}
			if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return gatewayTimeout()
			}
			return err
		}
	}
}

func gatewayTimeout() error {
	return echo.NewHTTPError(http.StatusGatewayTimeout, "request processing exceeded the allowed time limit")
}
