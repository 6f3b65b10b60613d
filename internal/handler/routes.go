package handler

import (
	"github.com/labstack/echo/v4"

	"pageproxy/internal/config"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, landing *LandingHandler, health *HealthHandler) {
	e.GET("/", landing.Index)
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.GET(cfg.Proxy.MountPath, proxy.Handle)
}
