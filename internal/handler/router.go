package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/middleware"
)

// NewRouter wires the admin API. Health and metrics are open; status and
// triggers require an API key.
func NewRouter(health *HealthHandler, triggers *TriggerHandler, auth *middleware.APIKeyAuth) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	r.GET("/health", health.LivenessProbe)
	r.GET("/health/ready", health.ReadinessProbe)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1", auth.Middleware())
	api.GET("/status", triggers.GetStatus)
	api.POST("/triggers/scrape", triggers.TriggerScrape)
	api.POST("/triggers/daily", triggers.TriggerDaily)

	return r
}
