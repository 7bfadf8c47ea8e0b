package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"booking/internal/handler"
	"booking/internal/logger"
	"booking/internal/middleware"
	"booking/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	WebhookHandler   *handler.WebhookHandler
	PaymentHandler   *handler.PaymentHandler
	BookingHandler   *handler.BookingHandler
	IdempotencyStore redis.IdempotencyRecorder
	Logger           *logger.Logger
	Metrics          prometheus.Gatherer
	NewRelicApp      *newrelic.Application
	CORSOrigins      []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(deps.Logger))
	router.Use(middleware.AccessLog(deps.Logger))
	router.Use(middleware.CORSMiddleware(deps.CORSOrigins))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	// Gateway callbacks are configured without the version prefix.
	legacy := router.Group("/payments")
	{
		legacy.POST("/webhook", deps.WebhookHandler.Receive)
		legacy.GET("/:id/status", deps.PaymentHandler.GetStatus)
	}

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Payment routes.
		payments := v1.Group("/payments")
		{
			payments.POST("", middleware.IdempotencyMiddleware(deps.IdempotencyStore, deps.Logger), deps.PaymentHandler.CreatePayment)
			payments.POST("/webhook", deps.WebhookHandler.Receive)
			payments.GET("/:id/status", deps.PaymentHandler.GetStatus)
		}

		// Booking routes.
		bookings := v1.Group("/bookings/:kind")
		{
			bookings.GET("/:id", deps.BookingHandler.GetBooking)
			bookings.POST("/:id/status", deps.BookingHandler.UpdateStatus)
			bookings.POST("/:id/location", deps.BookingHandler.UpdateLocation)
		}

		v1.GET("/nearby/:kind", deps.BookingHandler.FindNearby)
	}

	return router
}
