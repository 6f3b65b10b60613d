package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"pageproxy/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information. Allowlist contents are not exposed,
// only whether one is active.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "ok",
		"version":       string(h.version),
		"mount_path":    h.cfg.Proxy.MountPath,
		"private_check": h.cfg.Proxy.PrivateCheckEnabled(),
		"allowlist":     len(h.cfg.Proxy.Allowlist) > 0,
		"sanitize":      h.cfg.Proxy.Sanitize,
	})
}
