package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet-alert-service/internal/auth"
	"fleet-alert-service/internal/config"
	"fleet-alert-service/internal/db"
	"fleet-alert-service/internal/engine"
	httphandler "fleet-alert-service/internal/http"
	"fleet-alert-service/internal/http/middleware"
	"fleet-alert-service/internal/logger"
	"fleet-alert-service/internal/poller"
	"fleet-alert-service/internal/repository"
	"fleet-alert-service/internal/service"
	"fleet-alert-service/internal/storage"
	"fleet-alert-service/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment)

	database, err := db.New(cfg, appLogger)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("failed to connect database")
	}

	alertRepo := repository.NewAlertRepository(database)

	sources := []upstream.Source{
		upstream.NewColtrackClient(cfg.Upstream.ColtrackBaseURL, cfg.Upstream.ColtrackUser, cfg.Upstream.ColtrackPassword, cfg.Upstream.FetchTimeout),
		upstream.NewSatrackClient(cfg.Upstream.SatrackBaseURL, cfg.Upstream.SatrackToken, cfg.Upstream.FetchTimeout),
	}

	classifier := engine.NewClassifier(cfg.Engine.SpeedThresholdKmh)
	gate := engine.NewDedupGate(cfg.Engine.DedupWindows, cfg.Engine.DefaultDedupWindow, alertRepo)
	validator := engine.NewCriticalValidator(cfg.Engine.CriticalLookback, alertRepo)

	alertService := service.NewAlertService(alertRepo, sources, classifier, gate, validator, cfg.Upstream.FetchTimeout, appLogger)

	// Initialize R2 client (optional, won't fail if not configured)
	r2Client, err := storage.NewR2ClientFromEnv()
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		appLogger.Fatal().Err(err).Msg("failed to initialize R2 client")
	}
	if err != nil {
		appLogger.Warn().Msg("R2 storage not configured, report uploads will be disabled")
	}

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(alertService, cfg, appLogger, r2Client)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, database, appLogger)

	pollCtx, stopPoller := context.WithCancel(context.Background())
	go poller.New(alertService, cfg.Engine.PollInterval, appLogger).Run(pollCtx)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	appLogger.Info().Str("addr", addr).Msg("starting fleet alert service")

	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error().Err(err).Msg("failed to start server")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info().Msg("shutting down server")
	stopPoller()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info().Msg("server exited")
}
