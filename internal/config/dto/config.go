package dto

import (
	"fmt"
	"time"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Allocator     AllocatorConfig     `mapstructure:"allocator"`
	Buffers       BuffersConfig       `mapstructure:"buffers"`
	Workload      WorkloadConfig      `mapstructure:"workload"`
	Sink          SinkConfig          `mapstructure:"sink"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// AllocatorConfig contains segment allocator settings
type AllocatorConfig struct {
	Name                string `mapstructure:"name"`
	SegmentSize         int    `mapstructure:"segment_size"`
	MaxReusableSegments int    `mapstructure:"max_reusable_segments"`
	MaxSegments         int    `mapstructure:"max_segments"`
}

// BuffersConfig describes the buffers staged through by the workload
type BuffersConfig struct {
	Count       int    `mapstructure:"count"`
	Kind        string `mapstructure:"kind"`
	NamePrefix  string `mapstructure:"name_prefix"`
	MinSegments int    `mapstructure:"min_segments"`
	MaxSegments int    `mapstructure:"max_segments"`
}

// WorkloadConfig contains synthetic producer and consumer settings
type WorkloadConfig struct {
	Producers         int    `mapstructure:"producers"`
	Consumers         int    `mapstructure:"consumers"`
	EntryMinBytes     int    `mapstructure:"entry_min_bytes"`
	EntryMaxBytes     int    `mapstructure:"entry_max_bytes"`
	RatePerSecond     int    `mapstructure:"rate_per_second"`
	Burst             int    `mapstructure:"burst"`
	DurationSeconds   int    `mapstructure:"duration_seconds"`
	EventsPerProducer int    `mapstructure:"events_per_producer"`
	ReadTimeoutMS     int    `mapstructure:"read_timeout_ms"`
	BackpressureMS    int    `mapstructure:"backpressure_ms"`
	EventSource       string `mapstructure:"event_source"`
	EventType         string `mapstructure:"event_type"`
	FlushIntervalSec  int    `mapstructure:"flush_interval_seconds"`
	FakerSeed         int64  `mapstructure:"faker_seed"`
}

// ReadTimeout returns the consumer read timeout.
func (c WorkloadConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMS) * time.Millisecond
}

// Duration returns the run length, zero meaning until stopped.
func (c WorkloadConfig) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// FlushInterval returns how often due sink batches are flushed.
func (c WorkloadConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSec) * time.Second
}

// Backpressure returns the producer wait after a rejected append.
func (c WorkloadConfig) Backpressure() time.Duration {
	return time.Duration(c.BackpressureMS) * time.Millisecond
}

// SinkConfig contains drain-side batch file settings
type SinkConfig struct {
	Enabled     bool               `mapstructure:"enabled"`
	Format      string             `mapstructure:"format"`
	Compression string             `mapstructure:"compression"`
	BasePath    string             `mapstructure:"base_path"`
	PathPrefix  string             `mapstructure:"path_prefix"`
	Version     string             `mapstructure:"version"`
	Rotation    FileRotationConfig `mapstructure:"rotation"`
}

// FileRotationConfig contains file rotation settings
type FileRotationConfig struct {
	MaxFileSizeMB      int64 `mapstructure:"max_file_size_mb"`
	MaxRecordsPerFile  int   `mapstructure:"max_records_per_file"`
	MaxDurationSeconds int   `mapstructure:"max_duration_seconds"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds  int `mapstructure:"grace_period_seconds"`
	ForceTimeoutSeconds int `mapstructure:"force_timeout_seconds"`
}

// GracePeriod returns the drain period granted to consumers on shutdown.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// ForceTimeout returns the hard stop deadline for HTTP servers.
func (c ShutdownConfig) ForceTimeout() time.Duration {
	return time.Duration(c.ForceTimeoutSeconds) * time.Second
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if c.Buffers.Count < 1 {
		return fmt.Errorf("at least one buffer is required")
	}
	if c.Workload.Producers < 1 || c.Workload.Consumers < 1 {
		return fmt.Errorf("workload needs at least one producer and one consumer")
	}
	return nil
}

// Validate validates sink configuration.
func (c *SinkConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.BasePath == "" {
		return fmt.Errorf("sink base path is required")
	}
	if c.Format != "parquet" && c.Format != "avro" {
		return fmt.Errorf("unsupported sink format: %s", c.Format)
	}
	return nil
}
