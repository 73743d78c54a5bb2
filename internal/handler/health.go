package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"igrelay/internal/allowlist"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	guard   *allowlist.Allowlist
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(guard *allowlist.Allowlist, v Version) *HealthHandler {
	return &HealthHandler{guard: guard, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns relay status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         string(h.version),
		"allowed_domains": h.guard.Domains(),
	})
}
