package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(handler.logger))

	// Health check
	router.GET("/health", handler.HealthCheck)

	// Prometheus exposition of the newest snapshot
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewSnapshotCollector(handler.source, handler.aggregator, handler.logger))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// API v1
	v1 := router.Group("/api/v1")
	{
		snapshots := v1.Group("/snapshots")
		{
			snapshots.GET("", handler.ListSnapshots)
			snapshots.POST("", handler.CreateSnapshot)
			snapshots.GET("/:id", handler.GetSnapshot)
			snapshots.DELETE("/:id", handler.DeleteSnapshot)
		}

		metrics := v1.Group("/metrics")
		{
			metrics.GET("", handler.GetMetrics)
			metrics.GET("/summary", handler.GetSummary)
			metrics.GET("/criteria", handler.GetCriteria)
			metrics.GET("/trend", handler.GetTrend)
		}
	}

	return router
}
