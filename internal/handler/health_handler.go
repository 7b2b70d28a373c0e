package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/schemagate/internal/utils"
)

var startTime = time.Now()

// Pinger is any dependency that can report liveness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext calls f.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// HealthHandler provides health endpoint.
type HealthHandler struct {
	db    Pinger
	redis Pinger
}

// NewHealthHandler creates a new HealthHandler. redis may be nil.
func NewHealthHandler(db, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// GetHealth responds with service, database and Redis status.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	dbStatus := status(ctx, h.db)
	redisStatus := status(ctx, h.redis)

	if dbStatus != "connected" {
		utils.Error(c, http.StatusServiceUnavailable, "UNHEALTHY", "Database unavailable")
		return
	}

	overall := "healthy"
	if redisStatus == "disconnected" {
		overall = "degraded"
	}

	utils.Success(c, http.StatusOK, "Service is healthy", gin.H{
		"status":   overall,
		"version":  "1.0.0",
		"uptime":   int(time.Since(startTime).Seconds()),
		"database": dbStatus,
		"redis":    redisStatus,
	})
}

func status(ctx context.Context, p Pinger) string {
	if p == nil {
		return "disabled"
	}
	if err := p.PingContext(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}
