package middleware

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/context"
)

// Logger writes one access log line per request, tagged with the workspace,
// actor and provider it touched. 5xx responses log at error, 4xx at warn.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			ctx := c.Request().Context()
			status := c.Response().Status
			entry := logger.WithContext(ctx).WithFields(accessFields(c, time.Since(start)))
			switch {
			case status >= http.StatusInternalServerError:
				entry.WithError(err).Error("request failed")
			case status >= http.StatusBadRequest:
				entry.Warn("request rejected")
			default:
				entry.Info("request served")
			}

			return nil
		}
	}
}

func accessFields(c echo.Context, elapsed time.Duration) map[string]any {
	req := c.Request()
	res := c.Response()
	ctx := req.Context()

	fields := map[string]any{
		"request_id":  context.GetRequestID(ctx),
		"workspace":   context.GetWorkspaceKey(ctx),
		"actor":       context.GetActor(ctx),
		"method":      req.Method,
		"route":       c.Path(),
		"status":      res.Status,
		"duration_ms": elapsed.Milliseconds(),
		"bytes_out":   res.Size,
		"remote_ip":   c.RealIP(),
	}
	if provider := c.Param("provider"); provider != "" {
		fields["provider"] = provider
	}
	if query := req.URL.RawQuery; query != "" {
		fields["query"] = query
	}
	return fields
}
