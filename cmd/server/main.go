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

	"github.com/joho/godotenv"

	"github.com/skypro1111/dubbing-merge-service/internal/assessment"
	"github.com/skypro1111/dubbing-merge-service/internal/config"
	"github.com/skypro1111/dubbing-merge-service/internal/events"
	"github.com/skypro1111/dubbing-merge-service/internal/metrics"
	"github.com/skypro1111/dubbing-merge-service/internal/server"
	"github.com/skypro1111/dubbing-merge-service/internal/session"
	"github.com/skypro1111/dubbing-merge-service/internal/store"
	"github.com/skypro1111/dubbing-merge-service/internal/timeline"
	"github.com/skypro1111/dubbing-merge-service/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "dubbing-merge-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	envPath := flag.String("env", ".env", "Path to .env file with secrets")
	flag.Parse()

	// A missing .env is fine, the environment may already be set
	envErr := godotenv.Load(*envPath)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
		slog.Bool("env_file_loaded", envErr == nil),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Bool("udp_enabled", cfg.Server.Enabled),
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.Int("http_port", cfg.HTTP.Port),
		slog.Int("output_sample_rate", cfg.Audio.OutputSampleRate),
		slog.Bool("require_all_recorded", cfg.Audio.RequireAllRecorded),
		slog.Bool("assessment_enabled", cfg.Assessment.Enabled),
		slog.Bool("events_enabled", cfg.Events.Enabled),
		slog.String("data_dir", cfg.Storage.DataDir),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()

	// Storage
	files, err := store.NewFileStore(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create file store: %w", err)
	}

	db, err := store.OpenDB(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open share database: %w", err)
	}
	defer db.Close()

	shares := store.NewSQLiteRepo(db)
	logger.Info("Storage initialized",
		slog.String("data_dir", files.BaseDir()),
		slog.String("database_path", cfg.Storage.DatabasePath),
	)

	// Pronunciation assessment (optional)
	var assessor *assessment.Client
	if cfg.Assessment.Enabled {
		assessor, err = assessment.NewClient(assessment.Config{
			Endpoint:      cfg.Assessment.Endpoint,
			APIKey:        cfg.Assessment.APIKey,
			Language:      cfg.Assessment.Language,
			Timeout:       cfg.Assessment.GetTimeoutDuration(),
			MaxRetries:    cfg.Assessment.MaxRetries,
			MaxConcurrent: cfg.Assessment.MaxConcurrent,
		})
		if err != nil {
			return fmt.Errorf("failed to create assessment client: %w", err)
		}
		defer assessor.Close()

		logger.Info("Assessment client initialized",
			slog.String("endpoint", cfg.Assessment.Endpoint),
			slog.Int("max_concurrent", cfg.Assessment.MaxConcurrent),
		)
	}

	// Events (log-only when disabled)
	publisher := events.New(&events.Config{
		Enabled: cfg.Events.Enabled,
		Brokers: cfg.Events.Brokers,
		Topic:   cfg.Events.Topic,
	}, logger, appMetrics)
	defer publisher.Close()

	merger := timeline.NewMergerWithConfig(nil, timeline.MergerConfig{
		SampleRate:       cfg.Audio.OutputSampleRate,
		SilenceThreshold: float32(cfg.Audio.SilenceThreshold),
		TrimPadding:      cfg.Audio.TrimPadding,
	}, logger)

	detector, err := vad.NewDetector(vad.Config{})
	if err != nil {
		return fmt.Errorf("failed to create voice activity detector: %w", err)
	}

	deps := session.Dependencies{
		Merger:    merger,
		Files:     files,
		Shares:    shares,
		Publisher: publisher,
		Metrics:   appMetrics,
		Detector:  detector,
	}
	// a nil *Client must not become a non-nil interface
	if assessor != nil {
		deps.Assessor = assessor
	}

	sessionMgr := session.NewManager(logger, session.Config{
		Timeout:            cfg.Audio.GetSessionTimeoutDuration(),
		CaptureSampleRate:  cfg.Audio.CaptureSampleRate,
		MaxTakeDuration:    cfg.Audio.GetMaxTakeDuration(),
		RequireAllRecorded: cfg.Audio.RequireAllRecorded,
	}, deps)
	defer sessionMgr.Stop()

	logger.Info("Session manager initialized",
		slog.Duration("session_timeout", cfg.Audio.GetSessionTimeoutDuration()),
		slog.Int("output_sample_rate", merger.SampleRate()),
	)

	// Initialize UDP capture server (if enabled)
	var udpServer *server.UDPServer
	if cfg.Server.Enabled {
		udpServer = server.NewUDPServer(&cfg.Server, logger, sessionMgr, appMetrics)
		if err := udpServer.Start(); err != nil {
			return fmt.Errorf("failed to start UDP server: %w", err)
		}
	}

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(logger, cfg, server.Dependencies{
			Sessions:   sessionMgr,
			UDP:        udpServer,
			Shares:     shares,
			Files:      files,
			Assessment: assessor,
			Detector:   detector,
			Metrics:    appMetrics,
		})
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop UDP server (stop accepting new packets)
	if udpServer != nil {
		if err := udpServer.Stop(); err != nil {
			logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
		}

		stats := udpServer.GetStatistics()
		logger.Info("Final capture statistics",
			slog.Uint64("packets_received", stats.PacketsReceived),
			slog.Uint64("packets_processed", stats.PacketsProcessed),
			slog.Uint64("packets_dropped", stats.PacketsDropped),
			slog.Uint64("parse_errors", stats.ParseErrors),
		)
	}

	// Session manager, publisher, assessor and database close via defers
	return nil
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
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
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

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
