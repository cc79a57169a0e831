package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a dependency the health check probes
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// PingContext calls f
func (f PingFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

// HealthHandler reports service health. The database is required; the
// optional dependencies only degrade the report.
type HealthHandler struct {
	version  string
	database Pinger
	optional map[string]Pinger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(version string, database Pinger, optional map[string]Pinger) *HealthHandler {
	return &HealthHandler{version: version, database: database, optional: optional}
}

// Check handles GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := h.database.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unhealthy",
			"error":    err.Error(),
		})
		return
	}

	status := "healthy"
	checks := gin.H{"database": "healthy"}
	for name, p := range h.optional {
		if err := p.PingContext(ctx); err != nil {
			checks[name] = "unhealthy"
			status = "degraded"
			continue
		}
		checks[name] = "healthy"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"checks":    checks,
		"version":   h.version,
		"timestamp": time.Now().Unix(),
	})
}
