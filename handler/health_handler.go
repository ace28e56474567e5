package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger checks one dependency's liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service and dependency health.
type HealthHandler struct {
	db    Pinger
	queue Pinger
}

// NewHealthHandler creates a health handler over the database and queue.
func NewHealthHandler(db, queue Pinger) *HealthHandler {
	return &HealthHandler{db: db, queue: queue}
}

// Handle serves GET /v1/health.
func (h *HealthHandler) Handle(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": "ok",
		"queue":    "ok",
	}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if err := h.queue.Ping(ctx); err != nil {
		checks["queue"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	return c.JSON(status, map[string]any{
		"status": state,
		"checks": checks,
	})
}
