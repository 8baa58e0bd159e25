package dto

import (
	"testing"
	"time"
)

func validConfig() ApplicationConfig {
	return ApplicationConfig{
		Application: ApplicationInfo{Name: "membuffers", Version: "1.0.0", Environment: "dev"},
		Buffers:     BuffersConfig{Count: 2, Kind: "chunky", MinSegments: 1, MaxSegments: 4},
		Workload:    WorkloadConfig{Producers: 2, Consumers: 1},
	}
}

func TestApplicationConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ApplicationConfig)
		wantErr bool
	}{
		{"valid", func(*ApplicationConfig) {}, false},
		{"missing name", func(c *ApplicationConfig) { c.Application.Name = "" }, true},
		{"no buffers", func(c *ApplicationConfig) { c.Buffers.Count = 0 }, true},
		{"no producers", func(c *ApplicationConfig) { c.Workload.Producers = 0 }, true},
		{"no consumers", func(c *ApplicationConfig) { c.Workload.Consumers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)
			if err := config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSinkConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  SinkConfig
		wantErr bool
	}{
		{"disabled ignores fields", SinkConfig{Enabled: false}, false},
		{"valid parquet", SinkConfig{Enabled: true, Format: "parquet", BasePath: "/tmp/out"}, false},
		{"valid avro", SinkConfig{Enabled: true, Format: "avro", BasePath: "/tmp/out"}, false},
		{"missing base path", SinkConfig{Enabled: true, Format: "avro"}, true},
		{"unsupported format", SinkConfig{Enabled: true, Format: "csv", BasePath: "/tmp/out"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkloadConfig_Durations(t *testing.T) {
	config := WorkloadConfig{ReadTimeoutMS: 250, DurationSeconds: 30}

	if config.ReadTimeout() != 250*time.Millisecond {
		t.Errorf("ReadTimeout() = %v, want 250ms", config.ReadTimeout())
	}
	if config.Duration() != 30*time.Second {
		t.Errorf("Duration() = %v, want 30s", config.Duration())
	}
	if (WorkloadConfig{}).Duration() != 0 {
		t.Error("zero duration should mean run until stopped")
	}
}

func TestShutdownConfig(t *testing.T) {
	config := ShutdownConfig{GracePeriodSeconds: 5, ForceTimeoutSeconds: 15}

	if config.GracePeriod() != 5*time.Second {
		t.Errorf("GracePeriod() = %v, want 5s", config.GracePeriod())
	}
	if config.ForceTimeout() != 15*time.Second {
		t.Errorf("ForceTimeout() = %v, want 15s", config.ForceTimeout())
	}
}
