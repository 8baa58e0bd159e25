// Package allocator implements the shared segment pool that bounds the
// memory used by every buffer built on it.
package allocator

import (
	"log/slog"
	"sync"

	"github.com/jittakal/membuffers/internal/errors"
	"github.com/jittakal/membuffers/internal/segment"
	"github.com/jittakal/membuffers/internal/validator"
	"github.com/jittakal/membuffers/pkg/buffer"
)

// MetricsCollector defines metrics operations for the allocator.
type MetricsCollector interface {
	SetAllocatorSegments(allocator string, owned, reusable int)
	IncAllocationFailures(allocator string)
}

// Config contains allocator settings.
type Config struct {
	// Name labels log lines and metrics.
	Name string
	// SegmentSize is the capacity of every segment, in units.
	SegmentSize int
	// MaxReusableSegments caps how many released segments are retained.
	MaxReusableSegments int
	// MaxSegments is the hard ceiling on segments held by buffers plus
	// segments retained for reuse.
	MaxSegments int
}

// Stats is a snapshot of allocator counters.
type Stats struct {
	SegmentSize         int
	MaxSegments         int
	MaxReusableSegments int
	BufferOwnedSegments int
	ReusableSegments    int
}

// Allocator hands out segments to buffers and takes them back.
// It is safe for concurrent use by any number of buffers; a buffer calls it
// while holding its own lock, and the allocator never calls back into a buffer.
type Allocator[T buffer.Element] struct {
	name                string
	segmentSize         int
	maxReusableSegments int
	maxSegments         int
	logger              *slog.Logger
	metrics             MetricsCollector

	mu                  sync.Mutex
	bufferOwnedSegments int
	reusableSegments    int
	firstReusable       *segment.Segment[T]
}

// New creates an allocator.
func New[T buffer.Element](config Config, logger *slog.Logger, metrics MetricsCollector) (*Allocator[T], error) {
	if err := validator.AllocatorSettings(config.SegmentSize, config.MaxReusableSegments, config.MaxSegments); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Name == "" {
		config.Name = "default"
	}

	logger.Info("segment allocator created",
		"allocator", config.Name,
		"segment_size", config.SegmentSize,
		"max_segments", config.MaxSegments,
		"max_reusable_segments", config.MaxReusableSegments,
	)

	return &Allocator[T]{
		name:                config.Name,
		segmentSize:         config.SegmentSize,
		maxReusableSegments: config.MaxReusableSegments,
		maxSegments:         config.MaxSegments,
		logger:              logger,
		metrics:             metrics,
	}, nil
}

// Name returns the allocator label.
func (a *Allocator[T]) Name() string {
	return a.name
}

// SegmentSize returns the capacity of the segments this allocator creates.
func (a *Allocator[T]) SegmentSize() int {
	return a.segmentSize
}

// AllocateSegments reserves count segments and prepends them to the free
// chain starting at first. Either every segment is granted, or none is and
// the allocator is left untouched. It returns the new chain head.
func (a *Allocator[T]) AllocateSegments(count int, first *segment.Segment[T]) (*segment.Segment[T], bool) {
	if count < 1 {
		errors.Invariantf("allocator", "allocation of %d segments", count)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Reusable segments already count against the ceiling.
	if available := a.maxSegments - a.bufferOwnedSegments; count > available {
		a.logger.Debug("segment allocation rejected",
			"allocator", a.name,
			"requested", count,
			"available", available,
		)
		if a.metrics != nil {
			a.metrics.IncAllocationFailures(a.name)
		}
		return first, false
	}

	for i := 0; i < count; i++ {
		var s *segment.Segment[T]
		if a.firstReusable != nil {
			s = a.firstReusable
			a.firstReusable = s.Next()
			s.Relink(nil)
			a.reusableSegments--
		} else {
			s = segment.New[T](a.segmentSize)
		}
		s.Relink(first)
		first = s
	}
	a.bufferOwnedSegments += count
	a.report()

	return first, true
}

// ReleaseSegment takes back a free segment that a buffer no longer holds.
func (a *Allocator[T]) ReleaseSegment(s *segment.Segment[T]) {
	if s.State() != segment.StateFree || s.Next() != nil {
		errors.Invariantf("allocator", "released segment is %s and linked=%v", s.State(), s.Next() != nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bufferOwnedSegments < 1 {
		errors.Invariantf("allocator", "release without matching allocation")
	}
	a.bufferOwnedSegments--
	if a.reusableSegments < a.maxReusableSegments {
		s.Relink(a.firstReusable)
		a.firstReusable = s
		a.reusableSegments++
	}
	a.report()
}

// BufferOwnedSegmentCount returns the segments currently held by buffers.
func (a *Allocator[T]) BufferOwnedSegmentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bufferOwnedSegments
}

// ReusableSegmentCount returns the segments retained for reuse.
func (a *Allocator[T]) ReusableSegmentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reusableSegments
}

// Stats returns current allocator statistics.
func (a *Allocator[T]) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		SegmentSize:         a.segmentSize,
		MaxSegments:         a.maxSegments,
		MaxReusableSegments: a.maxReusableSegments,
		BufferOwnedSegments: a.bufferOwnedSegments,
		ReusableSegments:    a.reusableSegments,
	}
}

func (a *Allocator[T]) report() {
	if a.metrics != nil {
		a.metrics.SetAllocatorSegments(a.name, a.bufferOwnedSegments, a.reusableSegments)
	}
}
