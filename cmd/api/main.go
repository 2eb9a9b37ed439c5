package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArowuTest/bulkcomms-backend/api/routes"
	"github.com/ArowuTest/bulkcomms-backend/internal/bootstrap"
	"github.com/ArowuTest/bulkcomms-backend/internal/config"
	"github.com/ArowuTest/bulkcomms-backend/internal/handlers"
	"github.com/ArowuTest/bulkcomms-backend/internal/middleware"
	"github.com/ArowuTest/bulkcomms-backend/internal/repositories/redisstore"
	"github.com/ArowuTest/bulkcomms-backend/internal/services"
	"github.com/ArowuTest/bulkcomms-backend/pkg/jwt"
	"github.com/ArowuTest/bulkcomms-backend/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		logrus.Fatalf("Failed to initialise logger: %v", err)
	}
	if cfg.JWT.Secret == "" {
		log.Fatal("JWT secret is not configured (JWT_SECRET)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	repos, err := bootstrap.OpenStorage(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open storage")
	}
	defer func() {
		if err := repos.Close(context.Background()); err != nil {
			log.WithError(err).Error("Error disconnecting from storage")
		}
	}()

	// Optional Redis for webhook dedupe and tracking rate limits
	var rateCounter middleware.HitCounter
	if cfg.Redis.Addr != "" {
		redisClient, err := redisstore.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisClient.Close()
		repos.Dedup = redisstore.NewDedupRepository(redisClient)
		rateCounter = redisstore.NewRateCounter(redisClient)
		log.WithField("addr", cfg.Redis.Addr).Info("Connected to Redis")
	}

	// Batch queue
	batchQueue, err := bootstrap.OpenQueue(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open batch queue")
	}
	defer batchQueue.Close()

	// Services
	links := services.NewTrackingLinks(cfg.Server.PublicBaseURL, services.NewLinkSigner(cfg.Tracking.SigningKey))
	batcher := services.NewRecipientBatcher(repos.Campaigns, repos.Batches, cfg.Dispatch.BatchSize, log.WithField("component", "batcher"))
	processor := services.NewBatchProcessor(
		repos.Campaigns, repos.Batches, repos.Messages, repos.Templates,
		bootstrap.BuildAdapters(cfg, log),
		links,
		services.ProcessorOptions{
			Concurrency:  cfg.Dispatch.BatchConcurrency,
			SendTimeout:  cfg.Dispatch.SendTimeout,
			MaxAttempts:  cfg.Dispatch.MaxSendAttempts,
			RetryBackoff: cfg.Dispatch.RetryBackoff,
		},
		log.WithField("component", "processor"),
	)
	reconciler := services.NewEventReconciler(
		repos.Campaigns, repos.Messages, repos.Tracking, repos.Dedup, cfg.Redis.WebhookDedupTTL,
		log.WithField("component", "reconciler"),
	)
	campaignService := services.NewCampaignService(
		repos.Campaigns, repos.Batches, repos.Messages, repos.Tracking,
		services.NewRecipientResolver(cfg.WhatsApp.DefaultCountryCode),
		batcher, batchQueue, log.WithField("component", "campaigns"),
	)
	dashboardService := services.NewDashboardService(repos.Campaigns, cfg.Location())

	// Workers
	dispatcher := services.NewDispatcher(batchQueue, processor, repos.Batches, services.DispatcherOptions{
		Workers:         cfg.Dispatch.Workers,
		RestartDelay:    cfg.Dispatch.RestartDelay,
		MaxRestartDelay: cfg.Dispatch.MaxRestartDelay,
		SweepInterval:   cfg.Dispatch.SweepInterval,
		SweepAfter:      cfg.Dispatch.SweepAfter,
	}, log.WithField("component", "dispatcher"))
	dispatcher.Start(ctx)

	// HTTP
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	deps := routes.HandlerDependencies{
		CampaignHandler:  handlers.NewCampaignHandler(campaignService),
		DashboardHandler: handlers.NewDashboardHandler(dashboardService),
		TrackingHandler:  handlers.NewTrackingHandler(reconciler, services.NewLinkSigner(cfg.Tracking.SigningKey), log),
		WebhookHandler:   handlers.NewWebhookHandler(reconciler, cfg.Email.WebhookToken, cfg.WhatsApp.VerifyToken, log),
		Tokens:           jwt.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL),
		RateCounter:      rateCounter,
		Log:              log,
	}
	if repos.Ping != nil {
		deps.HealthCheck = func(c *gin.Context) error { return repos.Ping(c.Request.Context()) }
	}
	router := routes.SetupRouter(cfg, deps)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if err := dispatcher.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		log.WithError(err).Error("Batch workers did not stop in time")
	}

	log.Info("Server exiting")
}
