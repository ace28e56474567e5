package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"feed-digest/archive"
	"feed-digest/config"
	"feed-digest/consumer"
	"feed-digest/dispatch"
	"feed-digest/driver"
	"feed-digest/handler"
	"feed-digest/repository"
	"feed-digest/service"
	"feed-digest/utils/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logger.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log.Info("configuration loaded",
		"port", cfg.Server.Port,
		"redis_group", cfg.Redis.GroupName,
		"email_enabled", cfg.Email.Enabled(),
		"schedule_enabled", cfg.Schedule.Enabled)

	pool, err := repository.NewPool(ctx, cfg.Database.DSN())
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisDriver, err := driver.NewRedisDriverWithURL(cfg.Redis.URL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisDriver.Close()

	if err := redisDriver.Ping(ctx); err != nil {
		log.Error("redis ping failed", "error", err)
		os.Exit(1)
	}

	// Repositories.
	feedRepo := repository.NewFeedRepository(pool, log)
	articleRepo := repository.NewArticleRepository(pool, log)
	dailyRepo := repository.NewDailySummaryRepository(pool, log)
	weeklyRepo := repository.NewWeeklySummaryRepository(pool, log)

	// Drivers and stores.
	fetcher := driver.NewFeedFetcher(log)
	llmClient := driver.NewLLMClient(cfg.LLM, cfg.Retry, log)
	emailClient := driver.NewEmailClient(cfg.Email, log)
	digestArchive := archive.NewRedisArchive(redisDriver.Client(), cfg.Archive.Prefix, log)

	dispatcher := dispatch.NewDispatcher(redisDriver, log)

	// Pipeline stages.
	ingestion := service.NewIngestionService(feedRepo, articleRepo, fetcher, log)
	initiator := service.NewDailyInitiator(articleRepo, dispatcher, log)
	processor := service.NewDailyProcessor(feedRepo, articleRepo, dailyRepo, llmClient, cfg.LLM, log)
	weekly := service.NewWeeklyDigest(feedRepo, dailyRepo, weeklyRepo, llmClient, digestArchive, emailClient,
		cfg.LLM, cfg.Email, cfg.Archive, log)

	// Queue consumers.
	events := consumer.NewEventHandler(ingestion, initiator, processor, weekly, log)
	streams := consumer.NewConsumer(redisDriver, events, cfg.Redis, log)
	if err := streams.Start(ctx); err != nil {
		log.Error("failed to start consumers", "error", err)
		os.Exit(1)
	}
	defer streams.Stop()

	// Recurring triggers.
	scheduler := handler.NewJobScheduler(log)
	jobs := handler.NewPipelineJobs(feedRepo, dispatcher, log)
	if err := jobs.Register(ctx, scheduler, cfg.Schedule); err != nil {
		log.Error("failed to schedule jobs", "error", err)
		os.Exit(1)
	}
	defer scheduler.StopAll()

	// HTTP surface.
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	triggers := handler.NewTriggerHandler(dispatcher)
	triggers.RegisterRoutes(e, cfg.Server.APIKey)
	e.GET("/v1/health", handler.NewHealthHandler(pool, redisDriver).Handle)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info("http server listening", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}

	cancel()
	log.Info("shutdown complete")
}
