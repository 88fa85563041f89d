package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/idohaver7/PatrolVision/internal/handlers"
	"github.com/idohaver7/PatrolVision/internal/metrics"
	"github.com/idohaver7/PatrolVision/internal/natsserver"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter builds the HTTP surface. natsServer may be nil.
func setupRouter(uploadsDir string, natsServer *natsserver.EmbeddedNATS) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(metrics.GinMiddleware())

	// CORS middleware
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(config))

	router.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{"/ws/", "/uploads/", "/metrics"}),
	))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		resp := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		}
		if natsServer != nil {
			resp["nats"] = natsServer.GetStats()
		}
		c.JSON(http.StatusOK, resp)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Static("/uploads", uploadsDir)

	handlers.RegisterRoutes(router)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Route not found"})
	})

	return router
}
