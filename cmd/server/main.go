package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/A-kirami/webgal-craft/internal/api"
	"github.com/A-kirami/webgal-craft/internal/metrics"
	"github.com/A-kirami/webgal-craft/internal/server"
	"github.com/A-kirami/webgal-craft/internal/service"
	"github.com/A-kirami/webgal-craft/pkg/config"
	"github.com/A-kirami/webgal-craft/pkg/logging"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Starting preview server",
		zap.String("version", version),
		zap.String("build_time", buildTime),
	)

	m := metrics.New()
	preview := service.New(service.OptionsFromConfig(cfg), m, logger)

	// Configured sites are tracked so a later config edit only removes those
	if _, err := preview.ReconcileSites(cfg.Sites); err != nil {
		logger.Warn("Some configured sites could not be registered", zap.Error(err))
	}

	url, err := preview.Start(context.Background(), cfg.Server.Host, cfg.Server.Port)
	if err != nil {
		logger.Fatal("Failed to start preview server", zap.Error(err))
	}
	logger.Info("Preview server ready", zap.String("url", url))

	// Start control API on its own port (if enabled)
	var (
		control  *server.Supervisor
		provider *api.Provider
	)
	if cfg.Control.Enabled {
		provider = api.NewProvider(preview, cfg, m, logger)
		router := server.NewEngine(cfg.CORS, logger)
		provider.RegisterRoutes(router)

		control = server.NewSupervisor(server.SupervisorConfig{
			Name:            "control",
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, router, nil, logger)
		if _, err := control.Start(context.Background(), cfg.Control.Host, cfg.Control.Port); err != nil {
			logger.Fatal("Failed to start control API", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Watch the config file and keep the registered sites in step with it
	if _, err := os.Stat(*configFile); err == nil {
		go func() {
			err := config.Watch(ctx, *configFile, logger, func(next *config.Config) {
				if _, err := preview.ReconcileSites(next.Sites); err != nil {
					logger.Warn("Some configured sites could not be registered", zap.Error(err))
				}
			})
			if err != nil {
				logger.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	// Wait for interrupt signal
	<-ctx.Done()

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if control != nil {
		if err := control.Stop(shutdownCtx); err != nil {
			logger.Error("Control API forced to shutdown", zap.Error(err))
		}
		provider.Close()
	}

	if err := preview.Close(shutdownCtx); err != nil {
		logger.Error("Preview server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
