package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the websocket feed and the /api tree on router.
func RegisterRoutes(router *gin.Engine) {
	// WebSocket route for the live violation feed (outside /api group)
	router.GET("/ws/violations", AuthMiddleware(), AdminOnly(), HandleViolationFeed)

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", Register)
			auth.POST("/login", Login)
			auth.GET("/me", AuthMiddleware(), GetMe)
		}

		api.GET("/feeds/stats", AuthMiddleware(), AdminOnly(), GetFeedHubStats)

		violations := api.Group("/violations", AuthMiddleware())
		{
			violations.POST("", PostViolation)
			violations.GET("", GetViolations)
			// analytics must be registered before /:id
			violations.GET("/analytics", AdminOnly(), GetViolationAnalytics)
			violations.GET("/:id", GetViolation)
			violations.PUT("/:id", AdminOnly(), UpdateViolation)
			violations.DELETE("/:id", AdminOnly(), DeleteViolation)
		}
	}
}
