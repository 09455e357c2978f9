// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"milkwms/internal/infrastructure/storage/postgres"
)

// Pinger checks that the storage backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db Pinger
	// stats is nil for the in-memory backend.
	stats func() postgres.PoolStats
}

// NewHealthHandler creates a new health handler. db may be nil when nothing external backs the store.
func NewHealthHandler(db Pinger, stats func() postgres.PoolStats) *HealthHandler {
	return &HealthHandler{db: db, stats: stats}
}

// Live handles the liveness check (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles the readiness check (is the service ready to accept traffic?).
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "error",
				"checks": map[string]string{
					"database": "unhealthy: " + err.Error(),
				},
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]string{
			"database": "healthy",
		},
	})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{
		"app":     "milkwms",
		"version": "0.1.0",
	}
	if h.stats != nil {
		stat := h.stats()
		body["database"] = map[string]any{
			"total_conns":    stat.TotalConns,
			"acquired_conns": stat.AcquiredConns,
			"idle_conns":     stat.IdleConns,
			"max_conns":      stat.MaxConns,
		}
	}
	c.JSON(http.StatusOK, body)
}
