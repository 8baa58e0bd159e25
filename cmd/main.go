package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/membuffers/internal/config"
	"github.com/jittakal/membuffers/internal/config/dto"
	"github.com/jittakal/membuffers/internal/encoder"
	"github.com/jittakal/membuffers/internal/observability"
	"github.com/jittakal/membuffers/internal/server"
	"github.com/jittakal/membuffers/internal/storage"
	"github.com/jittakal/membuffers/internal/validator"
	"github.com/jittakal/membuffers/internal/workload"
	"github.com/jittakal/membuffers/pkg/membuffers"
	"github.com/jittakal/membuffers/pkg/record"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting membuffers staging harness",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Cleanups run in reverse registration order
	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, func() error {
			if err := fn(); err != nil {
				logger.Warn("cleanup failed", "component", name, "error", err)
				return err
			}
			return nil
		})
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			_ = cleanupFuncs[i]()
		}
	}()

	factory, err := membuffers.ForBytes(membuffers.Config{
		Name:                cfg.Allocator.Name,
		SegmentSize:         cfg.Allocator.SegmentSize,
		MaxReusableSegments: cfg.Allocator.MaxReusableSegments,
		MaxSegments:         cfg.Allocator.MaxSegments,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create buffer factory: %w", err)
	}

	var sink workload.Sink
	if cfg.Sink.Enabled {
		fileSink, closeSink, err := newSink(cfg.Sink, logger, metrics)
		if err != nil {
			return err
		}
		addCleanup("sink-writer", closeSink)
		sink = fileSink
	}

	runner := workload.NewRunner(
		workload.Config{
			Producers:         cfg.Workload.Producers,
			Consumers:         cfg.Workload.Consumers,
			EventsPerProducer: cfg.Workload.EventsPerProducer,
			RatePerSecond:     cfg.Workload.RatePerSecond,
			Burst:             cfg.Workload.Burst,
			Duration:          cfg.Workload.Duration(),
			ReadTimeout:       cfg.Workload.ReadTimeout(),
			Backpressure:      cfg.Workload.Backpressure(),
			FlushInterval:     cfg.Workload.FlushInterval(),
			DrainTimeout:      cfg.Shutdown.GracePeriod(),
		},
		workload.GeneratorConfig{
			Source:    cfg.Workload.EventSource,
			Type:      cfg.Workload.EventType,
			MinBytes:  cfg.Workload.EntryMinBytes,
			MaxBytes:  cfg.Workload.EntryMaxBytes,
			FakerSeed: cfg.Workload.FakerSeed,
		},
		factory,
		validator.NewCloudEventsValidator(),
		sink,
		metrics,
		logger,
	)

	if err := createBuffers(factory, runner, cfg.Buffers, addCleanup); err != nil {
		return err
	}

	healthChecker := server.NewStagingChecker(runner)

	var metricsRegistry *prometheus.Registry
	if cfg.Observability.Metrics.Enabled {
		metricsRegistry = registry
	}
	httpServer := server.NewServer(
		server.Config{
			HealthPort:    cfg.Observability.Health.Port,
			MetricsPort:   cfg.Observability.Metrics.Port,
			LivenessPath:  cfg.Observability.Health.LivenessPath,
			ReadinessPath: cfg.Observability.Health.ReadinessPath,
			MetricsPath:   cfg.Observability.Metrics.Path,
		},
		healthChecker,
		metricsRegistry,
		logger,
	)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	addCleanup("http-server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.ForceTimeout())
		defer cancel()
		return httpServer.Shutdown(ctx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrChan := make(chan error, 1)
	go func() {
		summary, err := runner.Run(ctx)
		logger.Info("workload summary",
			"produced", summary.Produced,
			"drained", summary.Drained,
			"dropped", summary.Dropped,
			"invalid", summary.Invalid,
		)
		runErrChan <- err
	}()

	healthChecker.SetReady(true)
	logger.Info("application started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("received termination signal")
	case err := <-runErrChan:
		healthChecker.SetReady(false)
		if err != nil {
			logger.Error("workload error", "error", err)
			return err
		}
		logger.Info("application stopped successfully")
		return nil
	}

	// Graceful shutdown: producers stop, consumers drain up to the grace period
	logger.Info("initiating graceful shutdown")
	healthChecker.SetReady(false)
	cancel()

	select {
	case err := <-runErrChan:
		if err != nil {
			logger.Error("workload error during shutdown", "error", err)
		}
	case <-time.After(cfg.Shutdown.GracePeriod() + cfg.Shutdown.ForceTimeout()):
		logger.Warn("workload did not stop within the shutdown timeout")
	}

	logger.Info("application stopped successfully")
	return nil
}

// createBuffers creates the configured buffers, registers them with the
// runner and schedules their release.
func createBuffers(
	factory *membuffers.Factory[byte],
	runner *workload.Runner,
	cfg dto.BuffersConfig,
	addCleanup func(name string, fn func() error),
) error {
	for i := 0; i < cfg.Count; i++ {
		name := fmt.Sprintf("%s-%d", cfg.NamePrefix, i)
		switch cfg.Kind {
		case "streamy":
			buf, err := factory.CreateNamedStreamyBuffer(name, cfg.MinSegments, cfg.MaxSegments)
			if err != nil {
				return fmt.Errorf("failed to create buffer %s: %w", name, err)
			}
			runner.AddStreamy(name, buf)
			addCleanup(name, buf.Close)
		default:
			buf, err := factory.CreateNamedChunkyBuffer(name, cfg.MinSegments, cfg.MaxSegments)
			if err != nil {
				return fmt.Errorf("failed to create buffer %s: %w", name, err)
			}
			runner.AddChunky(name, buf)
			addCleanup(name, buf.Close)
		}
	}
	return nil
}

func newSink(cfg dto.SinkConfig, logger *slog.Logger, metrics *observability.Metrics) (*storage.Sink, func() error, error) {
	format := record.FormatParquet
	if cfg.Format == "avro" {
		format = record.FormatAvro
	}

	compression := cfg.Compression
	if compression == "" {
		compression = encoder.DefaultCompression(format)
	}

	writer, err := storage.NewFileWriter(storage.FileConfig{BasePath: cfg.BasePath}, format, compression, logger, metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create filesystem writer: %w", err)
	}

	router := storage.NewRouter(cfg.PathPrefix, cfg.Version)
	policy := storage.NewPolicy(storage.PolicyConfig{
		MaxFileSizeMB:      cfg.Rotation.MaxFileSizeMB,
		MaxRecordsPerFile:  cfg.Rotation.MaxRecordsPerFile,
		MaxDurationSeconds: cfg.Rotation.MaxDurationSeconds,
	})

	return storage.NewSink(writer, router, policy, format, logger), writer.Close, nil
}
