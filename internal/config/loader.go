package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jittakal/membuffers/internal/config/dto"
	"github.com/jittakal/membuffers/internal/validator"
	"github.com/spf13/viper"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MEMBUF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand ${VAR} references in string values
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "membuffers")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Allocator defaults: 64 KiB segments, 64 MiB ceiling
	l.v.SetDefault("allocator.name", "staging")
	l.v.SetDefault("allocator.segment_size", 65536)
	l.v.SetDefault("allocator.max_reusable_segments", 256)
	l.v.SetDefault("allocator.max_segments", 1024)

	// Buffer defaults
	l.v.SetDefault("buffers.count", 4)
	l.v.SetDefault("buffers.kind", "chunky")
	l.v.SetDefault("buffers.name_prefix", "buffer")
	l.v.SetDefault("buffers.min_segments", 2)
	l.v.SetDefault("buffers.max_segments", 64)

	// Workload defaults
	l.v.SetDefault("workload.producers", 4)
	l.v.SetDefault("workload.consumers", 4)
	l.v.SetDefault("workload.entry_min_bytes", 64)
	l.v.SetDefault("workload.entry_max_bytes", 1024)
	l.v.SetDefault("workload.rate_per_second", 1000)
	l.v.SetDefault("workload.burst", 100)
	l.v.SetDefault("workload.duration_seconds", 0)
	l.v.SetDefault("workload.events_per_producer", 0)
	l.v.SetDefault("workload.faker_seed", 0)
	l.v.SetDefault("workload.read_timeout_ms", 500)
	l.v.SetDefault("workload.backpressure_ms", 5)
	l.v.SetDefault("workload.event_source", "membuffers/workload")
	l.v.SetDefault("workload.event_type", "io.membuffers.staged")
	l.v.SetDefault("workload.flush_interval_seconds", 1)

	// Sink defaults
	l.v.SetDefault("sink.enabled", false)
	l.v.SetDefault("sink.format", "parquet")
	l.v.SetDefault("sink.compression", "snappy")
	l.v.SetDefault("sink.base_path", "./data")
	l.v.SetDefault("sink.path_prefix", "")
	l.v.SetDefault("sink.version", "v1")
	l.v.SetDefault("sink.rotation.max_file_size_mb", 64)
	l.v.SetDefault("sink.rotation.max_records_per_file", 10000)
	l.v.SetDefault("sink.rotation.max_duration_seconds", 60)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 5)
	l.v.SetDefault("shutdown.force_timeout_seconds", 30)
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	// Allocator and buffer bounds
	alloc := config.Allocator
	if err := validator.AllocatorSettings(alloc.SegmentSize, alloc.MaxReusableSegments, alloc.MaxSegments); err != nil {
		return fmt.Errorf("allocator: %w", err)
	}
	buffers := config.Buffers
	if err := validator.SegmentBounds(buffers.MinSegments, buffers.MaxSegments); err != nil {
		return fmt.Errorf("buffers: %w", err)
	}
	if need := buffers.Count * buffers.MinSegments; need > alloc.MaxSegments {
		return fmt.Errorf("buffers need %d initial segments, allocator.max_segments is %d", need, alloc.MaxSegments)
	}

	switch buffers.Kind {
	case "chunky":
	case "streamy":
		// a stream has no entry boundaries, so each buffer gets exactly one reader
		if config.Workload.Consumers != buffers.Count {
			return fmt.Errorf("streamy buffers need workload.consumers == buffers.count, got %d and %d",
				config.Workload.Consumers, buffers.Count)
		}
	default:
		return fmt.Errorf("unsupported buffer kind: %s", buffers.Kind)
	}

	// Workload validation
	w := config.Workload
	if w.EntryMinBytes < 0 || w.EntryMaxBytes < w.EntryMinBytes {
		return fmt.Errorf("invalid entry size range: %d..%d", w.EntryMinBytes, w.EntryMaxBytes)
	}
	if w.EventsPerProducer < 0 || w.DurationSeconds < 0 {
		return fmt.Errorf("invalid workload bounds: events_per_producer=%d duration_seconds=%d",
			w.EventsPerProducer, w.DurationSeconds)
	}
	if w.RatePerSecond < 0 {
		return fmt.Errorf("invalid workload rate: %d", w.RatePerSecond)
	}
	if w.ReadTimeoutMS < 1 {
		return fmt.Errorf("invalid read timeout: %dms", w.ReadTimeoutMS)
	}

	if err := config.Sink.Validate(); err != nil {
		return err
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}
