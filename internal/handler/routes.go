// Package handler holds the listener's HTTP handlers and route wiring.
package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"commproto/internal/config"
	"commproto/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// Static admin routes take precedence over the catch-all ack route.
func RegisterRoutes(e *echo.Echo, ack *AckHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	e.Any("/*", ack.Handle)
}

// RegisterMetrics exposes the registry at cfg.Metrics.Path when metrics are enabled.
func RegisterMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if !cfg.Metrics.Enabled {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}
