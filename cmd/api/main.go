package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/event-recon/backend/internal/api/handlers"
	"github.com/event-recon/backend/internal/app"
	"github.com/event-recon/backend/internal/metrics"
	"github.com/event-recon/backend/internal/middleware/ratelimit"
	"github.com/event-recon/backend/internal/middleware/security"
	"github.com/event-recon/backend/internal/middleware/validation"
	"github.com/event-recon/backend/pkg/config"
	appLogger "github.com/event-recon/backend/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
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

	appLogger.Info("Starting event reconstruction API server")

	metrics.Init()

	comps, err := app.Build(cfg)
	if err != nil {
		appLogger.Fatal("Failed to build reconstruction pipeline", zap.Error(err))
	}
	defer comps.Close()

	fiberApp := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())
	fiberApp.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Server.Development,
	}))
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	validator := validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	})

	checks := map[string]handlers.ReadinessCheck{}
	for name, check := range comps.ReadinessChecks() {
		checks[name] = check
	}

	reconstructHandler := handlers.NewReconstructHandler(comps.Engine)
	healthHandler := handlers.NewHealthHandler(checks)

	fiberApp.Post("/reconstruct", limiter.Middleware(), validator, reconstructHandler.HandleReconstruct)
	fiberApp.Get("/metrics", metrics.MetricsHandler())

	api := fiberApp.Group("/api/v1")

	api.Post("/reconstruct", limiter.Middleware(), validator, reconstructHandler.HandleReconstruct)
	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := fiberApp.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := fiberApp.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
