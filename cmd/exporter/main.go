// Package main is the entry point for the Airflow process exporter.
// It initializes configuration, wires the scanner and publisher, starts the
// collection scheduler, and serves the Prometheus endpoint until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/airmon/airflow-process-exporter/internal/config"
	"github.com/airmon/airflow-process-exporter/internal/publisher"
	"github.com/airmon/airflow-process-exporter/internal/scanner"
	"github.com/airmon/airflow-process-exporter/internal/scheduler"
	"github.com/airmon/airflow-process-exporter/internal/server"
)

var (
	// version is set at build time via -ldflags.
	version = "dev"

	configPath  = flag.String("config", "", "Path to configuration file (default: auto-discover)")
	listenAddr  = flag.String("listen", "", "Listen address override, e.g. :9118")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("airflow-process-exporter %s\n", version)
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = config.Locate()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Exporter.ListenAddr = *listenAddr
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting Airflow process exporter",
		zap.String("version", version),
		zap.String("listen", cfg.Exporter.ListenAddr))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
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

	runExporter(ctx, cfg, logger)
	logger.Info("Exporter stopped")
}

// runExporter wires all components and blocks until the context is cancelled.
func runExporter(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	scan := scanner.New(scanner.NewHostSource(), logger, scanner.Options{
		InterpreterPrefix: cfg.Collection.InterpreterPrefix,
		RunMarker:         cfg.Collection.RunMarker,
	})

	pub, err := publisher.New(registry, scan, logger, publisher.Options{
		Prefix:       cfg.Exporter.MetricPrefix,
		StaticLabels: cfg.Exporter.StaticLabels,
	})
	if err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	sched := scheduler.New(pub.Collect, cfg.Collection.Interval.Duration, logger)
	go sched.Start(ctx)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	srv := server.New(cfg, handler, logger)

	logger.Info("Exporter running",
		zap.Duration("collect_interval", cfg.Collection.Interval.Duration),
		zap.String("metrics_path", cfg.Exporter.MetricsPath))
	if err := srv.Run(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
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

	// Console output (human-readable)
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	// File output (structured JSON, if configured)
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
