package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jittakal/membuffers/pkg/buffer"
	"github.com/jittakal/membuffers/pkg/membuffers"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness probes should only fail if the process needs to be restarted.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}, logger)
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness probes indicate if the application can handle traffic.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		writeHealth(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}, logger)
	}
}

func writeHealth(w http.ResponseWriter, statusCode int, response HealthResponse, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}

// StatsSource reports allocator and buffer state.
type StatsSource interface {
	AllocatorStats() membuffers.AllocatorStats
	BufferStats() map[string]buffer.Stats
}

// StagingChecker reports the staging pipeline as ready once marked ready
// and while at least one of its buffers is open.
type StagingChecker struct {
	source StatsSource
	ready  atomic.Bool
}

var _ HealthChecker = (*StagingChecker)(nil)

// NewStagingChecker creates a checker over source.
func NewStagingChecker(source StatsSource) *StagingChecker {
	return &StagingChecker{source: source}
}

// SetReady marks the pipeline as started or draining.
func (c *StagingChecker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// Liveness reports whether the process is alive.
func (c *StagingChecker) Liveness() bool {
	return true
}

// Readiness reports whether buffers accept entries.
func (c *StagingChecker) Readiness(ctx context.Context) bool {
	if !c.ready.Load() || ctx.Err() != nil {
		return false
	}
	for _, stats := range c.source.BufferStats() {
		if !stats.Closed {
			return true
		}
	}
	return false
}

// IsHealthy reports liveness and readiness together.
func (c *StagingChecker) IsHealthy() bool {
	return c.Liveness() && c.Readiness(context.Background())
}

// GetStatus returns one check per buffer plus the allocator counters.
func (c *StagingChecker) GetStatus() map[string]string {
	alloc := c.source.AllocatorStats()
	status := map[string]string{
		"allocator": fmt.Sprintf("owned=%d reusable=%d max=%d segment_size=%d",
			alloc.BufferOwnedSegments, alloc.ReusableSegments, alloc.MaxSegments, alloc.SegmentSize),
	}
	for name, stats := range c.source.BufferStats() {
		if stats.Closed {
			status["buffer:"+name] = "closed"
			continue
		}
		status["buffer:"+name] = fmt.Sprintf("entries=%d segments=%d free=%d payload=%d room=%d",
			stats.EntryCount, stats.SegmentCount, stats.FreeSegmentCount,
			stats.TotalPayloadLength, stats.MaxAvailableSpace)
	}
	return status
}
