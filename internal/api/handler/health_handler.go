package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports service, store and broker health
type HealthHandler struct {
	logger    *slog.Logger
	scheduler JobScheduler
	store     Pinger
	broker    Broker
	service   string
}

// statsReporter is implemented by stores backed by a connection pool
type statsReporter interface {
	Stats() string
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		logger:    deps.Logger,
		scheduler: deps.Scheduler,
		store:     deps.Store,
		broker:    deps.Broker,
		service:   deps.Service,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	body := gin.H{
		"status":  "healthy",
		"service": h.service,
		"store":   "ok",
		"broker":  "disabled",
		"jobs":    h.scheduler.Counts(),
	}
	if sr, ok := h.store.(statsReporter); ok {
		body["store_stats"] = sr.Stats()
	}

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Store health check failed", slog.String("error", err.Error()))
		body["status"] = "unhealthy"
		body["store"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	// Events are best effort, so a lost broker degrades but does not fail the check.
	if h.broker != nil {
		body["broker"] = "connected"
		if !h.broker.IsConnected() {
			h.logger.Warn("Broker health check failed")
			body["status"] = "degraded"
			body["broker"] = "disconnected"
		}
	}

	c.JSON(http.StatusOK, body)
}
