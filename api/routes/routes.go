package routes

import (
	"net/http"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/internal/config"
	"github.com/ArowuTest/bulkcomms-backend/internal/handlers"
	"github.com/ArowuTest/bulkcomms-backend/internal/middleware"
	"github.com/ArowuTest/bulkcomms-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HandlerDependencies holds all handler dependencies
type HandlerDependencies struct {
	CampaignHandler  *handlers.CampaignHandler
	DashboardHandler *handlers.DashboardHandler
	TrackingHandler  *handlers.TrackingHandler
	WebhookHandler   *handlers.WebhookHandler
	Tokens           *jwt.TokenService
	// RateCounter limits /track when set
	RateCounter middleware.HitCounter
	// HealthCheck reports storage health; nil means always healthy
	HealthCheck func(c *gin.Context) error
	Log         logrus.FieldLogger
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, deps HandlerDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(deps.Log))

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/health", func(c *gin.Context) {
			if deps.HealthCheck != nil {
				if err := deps.HealthCheck(c); err != nil {
					c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
					return
				}
			}
			c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
		})
	}

	// Protected routes
	protected := router.Group("/api/v1")
	protected.Use(middleware.JWTAuthMiddleware(deps.Tokens, deps.Log))
	{
		campaigns := protected.Group("/campaigns")
		{
			campaigns.POST("", deps.CampaignHandler.Submit)
			campaigns.GET("", deps.CampaignHandler.List)
			campaigns.GET("/:id", deps.CampaignHandler.Get)
			campaigns.GET("/:id/batches", deps.CampaignHandler.Batches)
			campaigns.GET("/:id/messages", deps.CampaignHandler.Messages)
			campaigns.GET("/:id/events", deps.CampaignHandler.Events)
			campaigns.POST("/:id/pause", deps.CampaignHandler.Pause)
			campaigns.POST("/:id/resume", deps.CampaignHandler.Resume)
		}

		protected.GET("/dashboard/stats", deps.DashboardHandler.GetStats)
	}

	// Recipient-facing tracking
	track := router.Group("/track")
	if deps.RateCounter != nil {
		track.Use(middleware.RateLimitMiddleware(deps.RateCounter, cfg.Redis.TrackRateLimit, cfg.Redis.TrackRateWindow, deps.Log))
	}
	{
		track.GET("/open", deps.TrackingHandler.Open)
		track.GET("/click", deps.TrackingHandler.Click)
	}

	// Provider callbacks
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/email", deps.WebhookHandler.EmailEvents)
		webhooks.GET("/whatsapp", deps.WebhookHandler.VerifyWhatsApp)
		webhooks.POST("/whatsapp", deps.WebhookHandler.WhatsAppEvents)
	}

	return router
}
