package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/odai-awartani/wasselny/internal/api/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, nrApp *newrelic.Application) {
	// Add New Relic middleware if enabled
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	// Prometheus scrape endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// WebSocket connection
		v1.GET("/ws", h.HandleWebSocket)

		// Ride endpoints
		rides := v1.Group("/rides")
		{
			rides.POST("", h.PublishRide)
			rides.GET("", h.ListRides)
			rides.GET("/:id", h.GetRide)
			rides.GET("/:id/requests", h.ListRideRequests)
			rides.POST("/:id/requests", h.Book)
		}

		// Request lifecycle endpoints
		requests := v1.Group("/requests")
		{
			requests.GET("/:id", h.GetRequest)
			requests.POST("/:id/accept", h.Accept)
			requests.POST("/:id/reject", h.Reject)
			requests.POST("/:id/checkin", h.CheckIn)
			requests.POST("/:id/checkout", h.CheckOut)
			requests.POST("/:id/cancel", h.Cancel)
			requests.PUT("/:id/rating", h.Rate)
		}
	}
}
