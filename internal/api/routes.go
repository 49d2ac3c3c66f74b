package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes sets up the API routes. A non-empty token protects /api/v1.
func SetupRoutes(handler *Handler, token string) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(handler.logger))

	// Health check and Prometheus
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := router.Group("/api/v1")
	v1.Use(BearerAuth(token))
	{
		auth := v1.Group("/auth")
		{
			auth.GET("/user", handler.GetUserInfo)
			auth.POST("/qrcode", handler.GetLoginQRCode)
			auth.GET("/qrcode/:key/status", handler.PollLoginStatus)
			auth.POST("/logout", handler.Logout)
			auth.GET("/valid", handler.CheckLoginValid)
		}

		comments := v1.Group("/comments")
		{
			comments.GET("/interval", handler.GetCommentInterval)
			comments.POST("", handler.SendComment)
		}

		batches := v1.Group("/batches")
		{
			batches.POST("", handler.BatchSendComments)
			batches.GET("/:id", handler.GetBatchStatus)
			batches.POST("/:id/cancel", handler.CancelBatch)
			batches.DELETE("/:id", handler.ClearBatch)
		}

		v1.GET("/videos/search", handler.SearchVideos)

		templates := v1.Group("/templates")
		{
			templates.GET("", handler.GetTemplates)
			templates.POST("", handler.CreateTemplate)
			templates.PUT("/:id", handler.UpdateTemplate)
			templates.DELETE("/:id", handler.DeleteTemplate)
		}
	}

	return router
}
