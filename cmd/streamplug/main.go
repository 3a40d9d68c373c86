// Package main implements the entry point for the streamplug pipeline
// host. It loads a pipeline configuration, wires the configured plugin
// instances to their drivers, and pumps batches from inputs through
// processors to outputs until the sources are exhausted or a shutdown
// signal arrives.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/streamplug/config"
	"github.com/c360/streamplug/events"
	"github.com/c360/streamplug/host"
	"github.com/c360/streamplug/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "streamplug"
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

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "pipeline", cfg.Pipeline.Name)
		return nil
	}

	var registry *metric.Registry
	if cfg.Metrics.Enabled {
		registry = metric.NewRegistry()
	}

	nc, err := connectNATS(cfg.NATS, logger)
	if err != nil {
		return err
	}
	if nc != nil {
		defer nc.Close()
	}
	publisher := events.NewPublisher(cfg.Pipeline.Name, nc, logger)

	h, err := host.New(cfg.Pipeline, builtinDrivers(),
		host.WithLogger(logger),
		host.WithMetrics(registry),
		host.WithEvents(publisher))
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	if server := startHTTPServer(cfg.Metrics, registry, h, logger); server != nil {
		defer stopHTTPServer(server, logger)
	}

	return runWithSignalHandling(h, cliCfg.ShutdownTimeout, logger)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting streamplug pipeline host",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// startHTTPServer serves /metrics and /healthz when metrics are enabled.
// The pipeline runs without the server when disabled.
func startHTTPServer(cfg config.MetricsConfig, registry *metric.Registry, h *host.Host, logger *slog.Logger) *http.Server {
	if registry == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, registry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := h.Health()
		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Warn("Health response failed", "error", err)
		}
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", "addr", server.Addr, "path", cfg.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return server
}

func stopHTTPServer(server *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("Metrics server shutdown failed", "error", err)
	}
}

// connectNATS dials the event stream broker when configured. Events fall
// back to the logger without one.
func connectNATS(cfg config.NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	logger.Info("Connected to NATS", "url", cfg.URL)
	return nc, nil
}

// runWithSignalHandling runs the pipeline until completion or a shutdown
// signal, then waits out the graceful stop.
func runWithSignalHandling(h *host.Host, shutdownTimeout time.Duration, logger *slog.Logger) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	done := make(chan error, 1)
	go func() {
		done <- h.Run(signalCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("pipeline failed: %w", err)
		}
		logger.Info("Pipeline complete")
		return nil
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	}

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("pipeline shutdown failed: %w", err)
		}
	case <-time.After(shutdownTimeout):
		return fmt.Errorf("pipeline did not stop within %s", shutdownTimeout)
	}

	logger.Info("Shutdown complete")
	return nil
}
