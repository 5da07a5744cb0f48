package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marmos91/iec104d/internal/logger"
	"github.com/marmos91/iec104d/internal/telemetry"
	"github.com/marmos91/iec104d/pkg/adapter/iec104"
	"github.com/marmos91/iec104d/pkg/api"
	"github.com/marmos91/iec104d/pkg/config"
	"github.com/marmos91/iec104d/pkg/metrics"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the IEC 104 server",
	Long: `Start the IEC 104 server in the foreground. It serves until SIGINT or
SIGTERM, then stops accepting and waits up to server.timeouts.shutdown for
sessions to end.

Examples:
  # Start with ./config/default.yaml and ./config/development.yaml
  iec104d start

  # Start with production settings and a different port
  APP_SERVER_PORT=2405 iec104d start --env production`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "iec104d",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", logger.KeyError, err)
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "dir", configDir, "env", config.ResolveEnv(envName), "gateway_id", cfg.GatewayID)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	var (
		m        *metrics.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		m = metrics.New(reg)
		gatherer = reg
		logger.Info("Metrics enabled", "path", "/metrics")
	} else {
		logger.Info("Metrics collection disabled")
	}

	sinks, closeSinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	server, err := iec104.New(iec104.ConfigFrom(cfg), sinks, m)
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Serve(ctx)
	}()

	var apiServer *api.Server
	apiDone := make(chan error, 1)
	if cfg.API.Enabled {
		apiServer = api.NewServer(api.Config{
			Host:         cfg.Server.Host,
			Port:         cfg.API.Port,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
		}, server, gatherer)
		go func() {
			apiDone <- apiServer.Start(ctx)
		}()
		logger.Info("API server enabled", "port", cfg.API.Port)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Server is running. Press Ctrl+C to stop.", logger.KeyAddress, cfg.ServerAddr())

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-serverDone:
		cancel()
		if err != nil {
			logger.Error("Server error", logger.KeyError, err)
			return err
		}
		logger.Info("Server stopped")
		return nil
	case err := <-apiDone:
		logger.Error("API server error", logger.KeyError, err)
		apiServer = nil
	}

	cancel()

	// Serve bounds its own drain by timeouts.shutdown; allow a little more
	// for the sinks to see the final session events.
	select {
	case err := <-serverDone:
		if err != nil {
			logger.Error("Server shutdown error", logger.KeyError, err)
			return err
		}
	case <-time.After(cfg.Server.Timeouts.Shutdown + 5*time.Second):
		return fmt.Errorf("server did not stop within %s", cfg.Server.Timeouts.Shutdown)
	}
	if apiServer != nil {
		if err := <-apiDone; err != nil {
			logger.Warn("API server shutdown error", logger.KeyError, err)
		}
	}

	logger.Info("Server stopped gracefully")
	return nil
}
