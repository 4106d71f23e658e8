// Package main is the entry point for the JunctionRelay device agent.
// It loads configuration, restores any persisted credentials, and runs the
// token lifecycle scheduler. An unregistered device is prompted on stdin
// for a registration token bundle.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/junctionrelay/device-agent/internal/cloud"
	"github.com/junctionrelay/device-agent/internal/collector"
	"github.com/junctionrelay/device-agent/internal/config"
	"github.com/junctionrelay/device-agent/internal/credentials"
	"github.com/junctionrelay/device-agent/internal/reporter"
	"github.com/junctionrelay/device-agent/internal/scheduler"
	"github.com/junctionrelay/device-agent/internal/sensor"
	"github.com/junctionrelay/device-agent/internal/token"
)

var (
	// version is set at build time via -ldflags.
	version = "dev"

	configPath  = flag.String("config", "agent.yaml", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("junctionrelay-agent %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting JunctionRelay agent",
		zap.String("version", version),
		zap.String("server", cfg.Server.URL))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.Testing.Enabled {
		logger.Warn("Testing mode enabled, server token lifetimes are ignored",
			zap.Duration("access_lifetime", cfg.Testing.AccessLifetime.Duration),
			zap.Duration("refresh_lifetime", cfg.Testing.RefreshLifetime.Duration))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down",
			zap.String("signal", sig.String()))
		cancel()
	}()

	runAgent(ctx, cfg, logger)
	logger.Info("Agent stopped")
}

// runAgent wires all components and starts the scheduler loop.
// It blocks until the context is cancelled.
func runAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	store := credentials.NewFileStore(cfg.Credentials.Path, logger)
	client := cloud.New(cfg.Server.URL, logger)

	manager, err := token.NewManager(store, client, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize token manager", zap.Error(err))
	}

	registry := collector.NewRegistry(logger)
	registry.Register(collector.NewCPUCollector())
	registry.Register(collector.NewMemoryCollector())
	registry.Register(collector.NewUptimeCollector())
	registry.Register(collector.NewTemperatureCollector())

	sensors := sensor.NewBuffer()
	rep := reporter.New(manager, client, registry, sensors, logger)

	go registrationPrompt(ctx, manager, logger)

	loop := scheduler.New(manager, rep,
		cfg.Reporting.TickInterval.Duration,
		cfg.Reporting.HealthInterval.Duration,
		logger)
	loop.Start(ctx)
}

// registrationPrompt reads registration token bundles from stdin whenever
// the device is unregistered, including after a mid-run credential failure
// forces re-registration. Invalid input or a failed registration simply
// re-prompts.
func registrationPrompt(ctx context.Context, manager *token.Manager, logger *zap.Logger) {
	scanner := bufio.NewScanner(os.Stdin)

	for ctx.Err() == nil {
		if _, err := manager.Credential(); err == nil {
			time.Sleep(time.Second)
			continue
		}

		fmt.Println("Paste registration token (JSON) and press Enter:")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		bundle, err := token.ParseBundle([]byte(line))
		if err != nil {
			logger.Warn("Invalid registration bundle", zap.Error(err))
			continue
		}

		regCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
		err = manager.Register(regCtx, bundle)
		cancel()
		switch {
		case err == nil:
			logger.Info("Registration complete")
		case errors.Is(err, token.ErrAlreadyRegistered):
			// Raced with a concurrent registration; nothing to do.
		default:
			logger.Error("Registration failed, paste a fresh token", zap.Error(err))
		}
	}
}

// initLogger creates a zap logger based on the configuration.
// It outputs to both console (human-readable) and optionally a JSON log file.
func initLogger(cfg *config.Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			fileCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			)
			cores = append(cores, fileCore)
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
