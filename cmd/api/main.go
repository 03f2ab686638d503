package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/reqanswer/backend/internal/api"
	"github.com/reqanswer/backend/internal/bootstrap"
	"github.com/reqanswer/backend/internal/metrics"
	"github.com/reqanswer/backend/internal/middleware/ratelimit"
	"github.com/reqanswer/backend/pkg/config"
	appLogger "github.com/reqanswer/backend/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting requirements answer API server")
	metrics.Init()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	components, err := bootstrap.New(ctx, cfg)
	cancel()
	if err != nil {
		appLogger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	deps := api.Deps{
		Answerer:   components.Generator,
		Index:      components.Index,
		Processor:  components.Processor,
		Ingestions: components.DB,
	}
	if components.Graph != nil {
		deps.Graph = components.Graph
	}
	if cfg.RateLimit.Enabled {
		deps.RateLimiter = ratelimit.New(ratelimit.Config{
			MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
			Logger:               appLogger.Named("ratelimit"),
		})
		defer deps.RateLimiter.Stop()
	}

	app := api.NewApp(deps, api.Options{
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:      cfg.Server.BodyLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Development:    cfg.Server.Development,
		AccessLog:      true,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
