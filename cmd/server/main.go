// Package main is the entry point for the kyvro campaign dispatch server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/develper21/kyvro/internal/config"
	"github.com/develper21/kyvro/internal/dispatcher"
	"github.com/develper21/kyvro/internal/handler"
	"github.com/develper21/kyvro/internal/middleware"
	"github.com/develper21/kyvro/internal/repository"
	"github.com/develper21/kyvro/internal/scheduler"
	"github.com/develper21/kyvro/internal/secrets"
	"github.com/develper21/kyvro/internal/service"
	"github.com/develper21/kyvro/internal/whatsapp"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}()

	repo := repository.NewRepository(db)
	secretStore := secrets.NewConfigStore(&cfg.WhatsApp)
	client := whatsapp.NewClient(&cfg.WhatsApp, secretStore, logger)
	notifier := dispatcher.NewZapNotifier(logger)
	disp := dispatcher.New(cfg, repo, client, secretStore, redisClient, notifier, logger)
	svc := service.NewService(cfg, repo, redisClient, disp, client, logger)

	h := handler.NewHandler(svc, logger)

	middlewareConfig := &middleware.Config{
		Logger: logger,
		CORS: &middleware.CORSConfig{
			AllowedOrigins: cfg.Middleware.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         86400,
		},
		RateLimit:      rate.Limit(cfg.Middleware.RateLimit),
		RateLimitBurst: cfg.Middleware.RateLimitBurst,
		RequestTimeout: 30 * time.Second,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      middleware.Chain(middlewareConfig)(h.Routes()),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Campaigns left in the sending state by a crash are resumed here and
	// again on every recovery tick.
	var recovery *scheduler.Scheduler
	if cfg.Recovery.Enabled {
		interval := time.Duration(cfg.Recovery.IntervalMinutes) * time.Minute
		recovery = scheduler.New("recovery", interval, disp.RecoverStuckCampaigns, logger)
		if err := recovery.Start(ctx); err != nil {
			logger.Error("Failed to start recovery loop", zap.Error(err))
		}
	}

	if cfg.Reconcile.Enabled {
		if err := svc.Status.StartReconciler(ctx); err != nil {
			logger.Error("Failed to start reconciliation loop", zap.Error(err))
		}
	}

	go func() {
		logger.Info("Starting server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if recovery != nil && recovery.IsRunning() {
		if err := recovery.Stop(); err != nil {
			logger.Error("Failed to stop recovery loop", zap.Error(err))
		}
	}
	if svc.Status.ReconcilerRunning() {
		if err := svc.Status.StopReconciler(); err != nil {
			logger.Error("Failed to stop reconciliation loop", zap.Error(err))
		}
	}

	// Active dispatches halt without touching campaign status; crash
	// recovery picks them up on the next start.
	disp.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
