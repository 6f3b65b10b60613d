// Package middleware provides Echo middleware for logging, security headers,
// and metrics.
package middleware

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// Proxy fetches additionally carry the target hostname, so denials and
// upstream failures can be correlated with the site being fetched.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			args := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			// Only the hostname: the full target URL may carry tokens or
			// credentials in its query string.
			if host := targetHost(c); host != "" {
				args = append(args, "target_host", host)
			}

			logger.Info("request", args...)

			return err
		}
	}
}

// targetHost extracts the hostname from the url query parameter, or empty
// string for non-proxy requests and unparsable targets.
func targetHost(c echo.Context) string {
	raw := c.QueryParam("url")
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
