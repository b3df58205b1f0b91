// Package main implements the ringtail demo: one producer feeding a shared
// multi-tail ring buffer that several independently paced tail readers
// consume, with Prometheus metrics, a health endpoint and periodic
// statistics.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/ringtail/config"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ringtail"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	// Run application with proper error handling
	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	// Parse and validate CLI flags
	cliCfg, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	// Load and validate configuration
	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	slog.Info("Starting ringtail",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"ring", cfg.Ring.Name,
		"capacity", cfg.Ring.Capacity,
		"consumers", len(cfg.Consumers))

	p, err := newPipeline(cfg, logger, os.Stdout)
	if err != nil {
		return err
	}

	// Run application with signal handling
	return runWithSignalHandling(context.Background(), p, cliCfg.ShutdownTimeout)
}

// initializeCLI parses and validates flags
func initializeCLI(args []string) (*CLIConfig, bool, error) {
	cliCfg, err := parseFlags(args)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, true, fmt.Errorf("invalid flags: %w", err)
	}

	if err := validateFlags(cliCfg); err != nil {
		return nil, true, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		return nil, true, nil
	}

	return cliCfg, false, nil
}

// initializeConfiguration loads the configuration and applies flag overrides
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyFlagOverrides(cfg, cliCfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadConfig loads configuration from the specified file path, or the
// built-in defaults plus environment overrides when path is empty
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func applyFlagOverrides(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	switch {
	case cliCfg.MetricsPort < 0:
		cfg.Metrics.Enabled = false
	case cliCfg.MetricsPort > 0:
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = cliCfg.MetricsPort
	}
	if cliCfg.StatsJSON {
		cfg.Stats.JSON = true
	}
}

// runWithSignalHandling runs the pipeline until it finishes on its own or a
// shutdown signal arrives, then waits at most shutdownTimeout for it to stop
func runWithSignalHandling(ctx context.Context, p *pipeline, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	errc := make(chan error, 1)
	go func() {
		errc <- p.Run(signalCtx)
	}()

	slog.Info("Ringtail started")

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("pipeline failed: %w", err)
		}
		slog.Info("Ringtail finished")
		return nil
	case <-signalCtx.Done():
	}

	slog.Info("Received shutdown signal")

	timer := time.NewTimer(shutdownTimeout)
	defer timer.Stop()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	case <-timer.C:
		return fmt.Errorf("graceful shutdown timed out after %s", shutdownTimeout)
	}

	slog.Info("Ringtail shutdown complete")
	return nil
}
