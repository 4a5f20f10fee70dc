package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"commproto/internal/config"
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

type statusResponse struct {
	Status               string `json:"status"`
	Version              string `json:"version"`
	ListenerAddr         string `json:"listener_addr"`
	NonPost              string `json:"non_post"`
	ProbeTarget          string `json:"probe_target"`
	ProbeEnabled         bool   `json:"probe_enabled"`
	ProbeTargetsListener bool   `json:"probe_targets_listener"`
}

// Status reports the listener and probe configuration.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:               "ok",
		Version:              string(h.version),
		ListenerAddr:         h.cfg.Listener.Addr(),
		NonPost:              h.cfg.Listener.NonPost,
		ProbeTarget:          h.cfg.Probe.TargetURL,
		ProbeEnabled:         !h.cfg.Probe.Disabled,
		ProbeTargetsListener: h.cfg.ProbeTargetsListener(),
	})
}
