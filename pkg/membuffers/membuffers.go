// Package membuffers builds bounded FIFO memory buffers on top of a shared
// segment allocator.
//
// A Factory owns one allocator. Every buffer it creates borrows fixed-size
// segments from that allocator, so the total memory of all buffers is
// bounded by Config.MaxSegments * Config.SegmentSize units.
//
// Chunky buffers store length-prefixed entries; streamy buffers store a
// plain stream of units.
package membuffers

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jittakal/membuffers/internal/allocator"
	ibuffer "github.com/jittakal/membuffers/internal/buffer"
	apperrors "github.com/jittakal/membuffers/internal/errors"
	"github.com/jittakal/membuffers/pkg/buffer"
)

// Config contains allocator settings shared by every buffer of a factory.
type Config struct {
	// Name labels log lines and metrics.
	Name string
	// SegmentSize is the capacity of one segment in units (at least 8).
	SegmentSize int
	// MaxReusableSegments caps how many released segments the allocator
	// retains for reuse.
	MaxReusableSegments int
	// MaxSegments is the hard ceiling on segments held by all buffers plus
	// segments retained for reuse.
	MaxSegments int
}

// MetricsCollector receives allocator and buffer metrics.
// observability.Metrics implements it.
type MetricsCollector interface {
	SetAllocatorSegments(allocator string, owned, reusable int)
	IncAllocationFailures(allocator string)
	IncEntriesAppended(buffer string)
	IncAppendsRejected(buffer string)
	IncEntriesRead(buffer string)
	SetBufferUsage(buffer string, segments int, payloadLength int64)
}

// AllocatorStats is a snapshot of allocator counters.
type AllocatorStats = allocator.Stats

// Factory creates buffers over one allocator.
type Factory[T buffer.Element] struct {
	allocator *allocator.Allocator[T]
	logger    *slog.Logger
	metrics   MetricsCollector
	sequence  atomic.Int64
}

// NewFactory creates a factory and its allocator. A nil logger uses
// slog.Default; nil metrics disables metrics.
func NewFactory[T buffer.Element](config Config, logger *slog.Logger, metrics MetricsCollector) (*Factory[T], error) {
	if logger == nil {
		logger = slog.Default()
	}

	var allocMetrics allocator.MetricsCollector
	if metrics != nil {
		allocMetrics = metrics
	}
	alloc, err := allocator.New[T](allocator.Config{
		Name:                config.Name,
		SegmentSize:         config.SegmentSize,
		MaxReusableSegments: config.MaxReusableSegments,
		MaxSegments:         config.MaxSegments,
	}, logger, allocMetrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create allocator: %w", err)
	}

	return &Factory[T]{
		allocator: alloc,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// ForBytes creates a factory for byte buffers.
func ForBytes(config Config, logger *slog.Logger, metrics MetricsCollector) (*Factory[byte], error) {
	return NewFactory[byte](config, logger, metrics)
}

// ForLongs creates a factory for int64 buffers.
func ForLongs(config Config, logger *slog.Logger, metrics MetricsCollector) (*Factory[int64], error) {
	return NewFactory[int64](config, logger, metrics)
}

// SegmentSize returns the segment capacity in units.
func (f *Factory[T]) SegmentSize() int {
	return f.allocator.SegmentSize()
}

// Stats returns a snapshot of the allocator counters.
func (f *Factory[T]) Stats() AllocatorStats {
	return f.allocator.Stats()
}

// CreateChunkyBuffer creates a chunky buffer that starts with minSegments
// segments and grows to at most maxSegments. The error wraps
// errors.ErrAllocationLimit when the allocator cannot provide the initial
// segments.
func (f *Factory[T]) CreateChunkyBuffer(minSegments, maxSegments int) (buffer.Chunky[T], error) {
	return f.CreateNamedChunkyBuffer(f.nextName("chunky"), minSegments, maxSegments)
}

// CreateNamedChunkyBuffer is CreateChunkyBuffer with an explicit metrics label.
func (f *Factory[T]) CreateNamedChunkyBuffer(name string, minSegments, maxSegments int) (buffer.Chunky[T], error) {
	b, err := ibuffer.NewChunky(f.allocator, f.options(name, minSegments, maxSegments))
	if err != nil {
		return nil, fmt.Errorf("create chunky buffer %q: %w", name, err)
	}
	f.created(name, "chunky", minSegments, maxSegments)
	return b, nil
}

// TryCreateChunkyBuffer is CreateChunkyBuffer returning false instead of an
// error.
func (f *Factory[T]) TryCreateChunkyBuffer(minSegments, maxSegments int) (buffer.Chunky[T], bool) {
	b, err := f.CreateChunkyBuffer(minSegments, maxSegments)
	if err != nil {
		f.rejected("chunky", err)
		return nil, false
	}
	return b, true
}

// CreateStreamyBuffer creates a streamy buffer that starts with minSegments
// segments and grows to at most maxSegments.
func (f *Factory[T]) CreateStreamyBuffer(minSegments, maxSegments int) (buffer.Streamy[T], error) {
	return f.CreateNamedStreamyBuffer(f.nextName("streamy"), minSegments, maxSegments)
}

// CreateNamedStreamyBuffer is CreateStreamyBuffer with an explicit metrics label.
func (f *Factory[T]) CreateNamedStreamyBuffer(name string, minSegments, maxSegments int) (buffer.Streamy[T], error) {
	b, err := ibuffer.NewStreamy(f.allocator, f.options(name, minSegments, maxSegments))
	if err != nil {
		return nil, fmt.Errorf("create streamy buffer %q: %w", name, err)
	}
	f.created(name, "streamy", minSegments, maxSegments)
	return b, nil
}

// TryCreateStreamyBuffer is CreateStreamyBuffer returning false instead of
// an error.
func (f *Factory[T]) TryCreateStreamyBuffer(minSegments, maxSegments int) (buffer.Streamy[T], bool) {
	b, err := f.CreateStreamyBuffer(minSegments, maxSegments)
	if err != nil {
		f.rejected("streamy", err)
		return nil, false
	}
	return b, true
}

// NewManager returns a registry of named chunky buffers, each created on
// first use with the given segment bounds.
func (f *Factory[T]) NewManager(minSegments, maxSegments int) *ibuffer.Manager[T] {
	return ibuffer.NewManager(f.allocator, f.options("", minSegments, maxSegments), f.logger)
}

// WithChunkyBuffer creates a chunky buffer, passes it to fn and closes it
// when fn returns, including when fn closed it already.
func WithChunkyBuffer[T buffer.Element](f *Factory[T], minSegments, maxSegments int, fn func(buffer.Chunky[T]) error) error {
	b, err := f.CreateChunkyBuffer(minSegments, maxSegments)
	if err != nil {
		return err
	}

	fnErr := fn(b)
	if err := b.Close(); err != nil && !errors.Is(err, apperrors.ErrBufferClosed) {
		return errors.Join(fnErr, err)
	}
	return fnErr
}

func (f *Factory[T]) options(name string, minSegments, maxSegments int) ibuffer.Options {
	opts := ibuffer.Options{
		Name:        name,
		MinSegments: minSegments,
		MaxSegments: maxSegments,
	}
	if f.metrics != nil {
		opts.Metrics = f.metrics
	}
	return opts
}

func (f *Factory[T]) nextName(kind string) string {
	return fmt.Sprintf("%s-%d", kind, f.sequence.Add(1))
}

func (f *Factory[T]) created(name, kind string, minSegments, maxSegments int) {
	f.logger.Debug("buffer created",
		"buffer", name,
		"kind", kind,
		"min_segments", minSegments,
		"max_segments", maxSegments,
	)
}

func (f *Factory[T]) rejected(kind string, err error) {
	f.logger.Debug("buffer creation rejected", "kind", kind, "error", err)
}
