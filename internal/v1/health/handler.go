// Package health exposes liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is the slice of the store the readiness check needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the health endpoints.
type Handler struct {
	store      Pinger
	startedAt  time.Time
	pingWithin time.Duration
}

// NewHandler wires the health endpoints with their dependencies.
func NewHandler(store Pinger) *Handler {
	return &Handler{
		store:      store,
		startedAt:  time.Now(),
		pingWithin: 2 * time.Second,
	}
}

// Healthz is the liveness probe: the process is up.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Readyz is the readiness probe: the persistence layer must answer.
func (h *Handler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.pingWithin)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  "persistence unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
