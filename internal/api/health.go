package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/dispatch-trainer/internal/game"
	"github.com/ashureev/dispatch-trainer/internal/store"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo store.Repository
	pool *game.ScenarioPool
	reg  *game.Registry
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, pool *game.ScenarioPool, reg *game.Registry) *HealthHandler {
	return &HealthHandler{repo: repo, pool: pool, reg: reg}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.pool == nil || h.pool.Len() == 0 {
		status["status"] = "degraded"
		checks["catalog"] = "empty"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["catalog"] = "ok"
		status["scenarios"] = h.pool.Len()
	}
	if h.reg != nil {
		status["sessions"] = h.reg.Len()
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
