package storage

import (
	"fmt"
	"time"

	"github.com/jittakal/membuffers/pkg/record"
	"github.com/jittakal/membuffers/pkg/storage"
)

// Ensure implementations satisfy interfaces.
var (
	_ storage.Router         = (*DefaultRouter)(nil)
	_ storage.RotationPolicy = (*CompositePolicy)(nil)
)

// DefaultRouter implements Hive-style partitioning of sink paths.
type DefaultRouter struct {
	prefix  string
	version string
}

// NewRouter creates a new router. An empty prefix puts buffers directly
// under the writer's base path.
func NewRouter(prefix, version string) *DefaultRouter {
	return &DefaultRouter{
		prefix:  prefix,
		version: version,
	}
}

// Route returns the relative directory for a batch:
// [prefix/]buffer=NAME/version/dt=YYYY-MM-DD/producer=N/
func (r *DefaultRouter) Route(origin record.Origin, timestamp int64) string {
	date := time.Unix(timestamp, 0).UTC().Format("2006-01-02")

	path := fmt.Sprintf("buffer=%s/%s/dt=%s/producer=%d/", origin.Buffer, r.version, date, origin.Producer)
	if r.prefix != "" {
		path = r.prefix + "/" + path
	}
	return path
}

// PolicyConfig configures rotation behavior.
type PolicyConfig struct {
	MaxFileSizeMB      int64
	MaxRecordsPerFile  int
	MaxDurationSeconds int
}

// NewPolicy creates a new rotation policy (alias for NewCompositePolicy).
func NewPolicy(config PolicyConfig) *CompositePolicy {
	return NewCompositePolicy(config)
}

// CompositePolicy rotates when any configured bound is reached.
// A zero bound is disabled.
type CompositePolicy struct {
	maxSizeBytes int64
	maxRecords   int
	maxDuration  time.Duration
	now          func() time.Time
}

// NewCompositePolicy creates a new composite rotation policy.
func NewCompositePolicy(config PolicyConfig) *CompositePolicy {
	return &CompositePolicy{
		maxSizeBytes: config.MaxFileSizeMB * 1024 * 1024,
		maxRecords:   config.MaxRecordsPerFile,
		maxDuration:  time.Duration(config.MaxDurationSeconds) * time.Second,
		now:          time.Now,
	}
}

// ShouldRotate returns true if any rotation condition is met.
func (p *CompositePolicy) ShouldRotate(stats record.BatchStats) bool {
	if stats.RecordCount == 0 {
		return false
	}
	if p.maxSizeBytes > 0 && stats.SizeBytes >= p.maxSizeBytes {
		return true
	}
	if p.maxRecords > 0 && stats.RecordCount >= p.maxRecords {
		return true
	}
	if p.maxDuration > 0 && !stats.FirstWriteTime.IsZero() {
		if p.now().Sub(stats.FirstWriteTime) >= p.maxDuration {
			return true
		}
	}
	return false
}
