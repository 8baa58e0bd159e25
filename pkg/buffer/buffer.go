// Package buffer defines interfaces for segment-pooled memory buffers.
//
// Buffers are bounded FIFO queues built from fixed-size segments that are
// borrowed from a shared allocator and handed back when drained, so that
// staging data between a producer and its consumers does not churn the heap.
package buffer

import (
	"context"
	"time"
)

// Element is the unit stored in a segment.
type Element interface {
	~byte | ~int64
}

// Stats is a point-in-time snapshot of a buffer.
type Stats struct {
	EntryCount         int
	SegmentCount       int
	FreeSegmentCount   int
	TotalPayloadLength int64
	MaxAvailableSpace  int64
	Closed             bool
}

// Buffer holds the operations shared by chunky and streamy buffers.
// All implementations must be thread-safe.
type Buffer interface {
	// IsEmpty returns true if the buffer holds no unread data.
	IsEmpty() bool

	// SegmentCount returns the number of segments in the in-use chain.
	SegmentCount() int

	// TotalPayloadLength returns the number of payload units buffered,
	// excluding any framing.
	TotalPayloadLength() int64

	// MaxAvailableSpace returns an upper bound on units that could still be
	// appended, or -1 once closed.
	MaxAvailableSpace() int64

	// Stats returns current buffer statistics without modifying the buffer.
	Stats() Stats

	// Clear drops all buffered data but keeps the minimum segments.
	Clear() error

	// Close releases every segment back to the allocator. All further
	// operations fail with a closed error.
	Close() error

	// IsClosed reports whether Close has been called.
	IsClosed() bool
}

// Chunky is a buffer of discrete entries whose boundaries are preserved.
type Chunky[T Element] interface {
	Buffer

	// EntryCount returns the number of unread entries.
	EntryCount() int

	// Append adds an entry, returning a capacity error when it does not fit.
	Append(entry []T) error

	// TryAppend adds an entry if it fits and reports whether it did.
	TryAppend(entry []T) bool

	// GetNext blocks until an entry is available or ctx is done.
	GetNext(ctx context.Context) ([]T, error)

	// TryGetNext returns the next entry or an empty error without blocking.
	TryGetNext() ([]T, error)

	// GetNextWithTimeout waits up to timeout for the next entry.
	GetNextWithTimeout(timeout time.Duration) ([]T, error)

	// ReadNext copies the next entry into dst, blocking until one exists.
	// A negative count is the required length when dst is too small.
	ReadNext(ctx context.Context, dst []T) (int, error)

	// TryReadNext is the non-blocking form of ReadNext.
	TryReadNext(dst []T) (int, error)

	// ReadNextWithTimeout waits up to timeout before giving up.
	ReadNextWithTimeout(timeout time.Duration, dst []T) (int, error)

	// PeekNext returns the next entry without consuming it.
	PeekNext() ([]T, error)

	// SkipNext discards the next entry and returns its length.
	SkipNext() (int, error)

	// NextEntryLength returns the length of the next entry.
	NextEntryLength() (int, error)

	// WaitForEntry blocks until at least one entry is buffered.
	WaitForEntry(ctx context.Context) error
}

// Streamy is a boundary-free buffer of units.
type Streamy[T Element] interface {
	Buffer

	// Available returns the number of unread units.
	Available() int

	AppendValue(v T) error
	TryAppendValue(v T) bool
	Append(data []T) error
	TryAppend(data []T) bool

	// Read copies up to len(dst) units, blocking until at least one exists.
	Read(ctx context.Context, dst []T) (int, error)

	// TryRead copies whatever is available without blocking.
	TryRead(dst []T) (int, error)

	// ReadWithTimeout waits up to timeout for at least one unit.
	ReadWithTimeout(timeout time.Duration, dst []T) (int, error)

	ReadValue(ctx context.Context) (T, error)
	TryReadValue() (T, error)

	// Skip discards up to n units and returns how many were skipped.
	Skip(n int) (int, error)

	// WaitForData blocks until at least one unit is buffered.
	WaitForData(ctx context.Context) error
}

// Manager creates and manages named chunky buffers.
type Manager[T Element] interface {
	// GetOrCreate returns the buffer registered under name,
	// creating one if it doesn't exist.
	GetOrCreate(name string) (Chunky[T], error)
}
