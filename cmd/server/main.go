package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/codepush-server/internal/application"
	"github.com/eugenenazirov/codepush-server/internal/config"
	"github.com/eugenenazirov/codepush-server/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	overrides := parseFlags(os.Args[1:])

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(logging.ForEnvironment(cfg.Log, cfg.Env))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("starting codepush-server",
		zap.String("env", string(cfg.Env)),
		zap.String("storage_type", cfg.Common.StorageType),
	)

	app, err := application.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if dir := app.StorageDir(); dir != "" {
		logger.Info("serving local packages",
			zap.String("dir", dir),
			zap.String("path", cfg.DownloadPath()),
		)
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}

// parseFlags turns command-line arguments into configuration overrides.
// Unset flags leave the lower-precedence sources in effect.
func parseFlags(args []string) *config.CLIOverrides {
	kingpinApp := kingpin.New("codepush-server", "CodePush compatible over-the-air update server")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	env := kingpinApp.Flag("env", "Runtime environment (development or production)").Enum(string(config.Development), string(config.Production))
	storageType := kingpinApp.Flag("storage-type", "Package storage backend").String()
	storageDir := kingpinApp.Flag("storage-dir", "Directory for local package storage").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	kingpin.MustParse(kingpinApp.Parse(args))

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
	}

	if *port != "" {
		overrides.Port = port
	}

	if *env != "" {
		overrides.Env = env
	}

	if *storageType != "" {
		overrides.StorageType = storageType
	}

	if *storageDir != "" {
		overrides.StorageDir = storageDir
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	return overrides
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
