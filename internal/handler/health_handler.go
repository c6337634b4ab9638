// Package handler provides the admin HTTP handlers.
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports whether an optional dependency is usable.
type HealthChecker interface {
	IsHealthy() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	scheduler StatusSource
	broker    HealthChecker
}

// NewHealthHandler creates a new HealthHandler. broker may be nil when no
// notifier is configured.
func NewHealthHandler(scheduler StatusSource, broker HealthChecker) *HealthHandler {
	return &HealthHandler{
		scheduler: scheduler,
		broker:    broker,
	}
}

// LivenessProbe checks if the application is running.
func (h *HealthHandler) LivenessProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"time":   time.Now(),
	})
}

// ReadinessProbe reports DOWN when the scheduler loop has stopped or the
// configured broker connection is gone.
func (h *HealthHandler) ReadinessProbe(c *gin.Context) {
	body := gin.H{"time": time.Now()}
	healthy := true

	if h.scheduler != nil {
		if h.scheduler.Status().Running {
			body["scheduler"] = "running"
		} else {
			body["scheduler"] = "stopped"
			healthy = false
		}
	}

	if h.broker != nil {
		if h.broker.IsHealthy() {
			body["rabbitmq"] = "healthy"
		} else {
			body["rabbitmq"] = "unhealthy"
			healthy = false
		}
	}

	if !healthy {
		body["status"] = "DOWN"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}

	body["status"] = "UP"
	c.JSON(http.StatusOK, body)
}
