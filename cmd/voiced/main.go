package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jilongsong/voice-sdk/internal/config"
	"github.com/jilongsong/voice-sdk/internal/engine"
	"github.com/jilongsong/voice-sdk/internal/match"
	"github.com/jilongsong/voice-sdk/internal/metrics"
	"github.com/jilongsong/voice-sdk/internal/server"
	"github.com/jilongsong/voice-sdk/internal/session"
	"github.com/jilongsong/voice-sdk/internal/transport"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voiced"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("wake_phrases", len(cfg.Wake.Phrases)),
		slog.Float64("final_threshold", cfg.Wake.FinalThreshold),
		slog.Float64("partial_threshold", cfg.Wake.PartialThreshold),
		slog.Bool("auto_reset", cfg.AutoReset.Enabled),
		slog.Bool("auto_stop", cfg.AutoStop.Enabled),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Duration("pace_interval", cfg.Audio.GetPaceInterval()),
		slog.String("transport_url", cfg.Transport.URL),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// The transport factory dials a fresh recognition connection per
	// transcription session.
	factory := func() (engine.Transport, error) {
		client, err := transport.NewClient(transport.Config{
			URL:          cfg.Transport.URL,
			APIKey:       cfg.Transport.APIKey,
			SampleRate:   cfg.Audio.SampleRate,
			Language:     cfg.Transport.Language,
			DialTimeout:  cfg.Transport.GetDialTimeout(),
			WriteTimeout: cfg.Transport.GetWriteTimeout(),
		}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	// Platform capture and recognizer integrations plug in here; the
	// stubs keep the engine runnable in environments without a device.
	capture := &engine.NullCapture{}
	recognizer := &engine.NullRecognizer{}

	eng, err := engine.New(cfg, capture, recognizer, factory, appMetrics, logger, clock.New())
	if err != nil {
		logger.Error("Failed to create engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	eng.OnWake(func(ev match.WakeEvent) {
		logger.Info("Wake phrase detected",
			slog.String("phrase", ev.Phrase),
			slog.Float64("score", ev.Score),
			slog.Bool("final", ev.Final),
		)
	})
	eng.OnResult(func(r session.Result) {
		logger.Info("Transcript",
			slog.String("text", r.Text),
			slog.Bool("final", r.Final),
		)
	})
	eng.OnAutoStop(func(reason session.StopReason) {
		logger.Info("Session auto-stopped", slog.String("reason", string(reason)))
	})
	eng.OnError(func(err error) {
		logger.Error("Engine error",
			slog.String("kind", string(engine.KindOf(err))),
			slog.String("error", err.Error()),
		)
	})

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, eng, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Start the engine
	if err := eng.Start(ctx); err != nil {
		logger.Error("Failed to start engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start HTTP server (if enabled)
	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	// Wait for shutdown signal
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop the engine (ends any live session, releases capture)
	eng.Stop()

	// Get final statistics
	snap := eng.Snapshot()
	logger.Info("Final engine statistics",
		slog.Uint64("wake_triggers", snap.Matcher.Triggers),
		slog.Uint64("text_events", snap.Matcher.EventsSeen),
		slog.Uint64("frames_sent", snap.Pacer.FramesSent),
		slog.Uint64("frames_dropped", snap.Pacer.FramesDropped),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
