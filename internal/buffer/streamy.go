package buffer

import (
	"context"
	"time"

	"github.com/jittakal/membuffers/internal/allocator"
	"github.com/jittakal/membuffers/internal/errors"
	"github.com/jittakal/membuffers/pkg/buffer"
)

var (
	_ buffer.Streamy[byte]  = (*Streamy[byte])(nil)
	_ buffer.Streamy[int64] = (*Streamy[int64])(nil)
)

// Streamy buffers a continuous run of units with no entry framing. Reads
// may return fewer units than requested.
type Streamy[T buffer.Element] struct {
	core[T]
}

// NewStreamy creates a streamy buffer drawing segments from alloc.
func NewStreamy[T buffer.Element](alloc *allocator.Allocator[T], opts Options) (*Streamy[T], error) {
	b := &Streamy[T]{}
	if err := b.init(alloc, opts); err != nil {
		return nil, err
	}
	b.reportUsage()
	return b, nil
}

// Available returns the number of unread units.
func (b *Streamy[T]) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.payload)
}

// IsEmpty returns true if no units are buffered.
func (b *Streamy[T]) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.payload == 0
}

// Stats returns current buffer statistics. EntryCount is always zero.
func (b *Streamy[T]) Stats() buffer.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return buffer.Stats{
		SegmentCount:       b.usedSegments,
		FreeSegmentCount:   b.freeSegments,
		TotalPayloadLength: b.payload,
		MaxAvailableSpace:  b.maxAvailableSpace(),
		Closed:             b.closed,
	}
}

// AppendValue adds a single unit.
func (b *Streamy[T]) AppendValue(v T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.ErrBufferClosed
	}
	if !b.appendValue(v) {
		return &errors.CapacityError{Operation: "append_value", Requested: 1, Available: b.maxAvailableSpace()}
	}
	return nil
}

// TryAppendValue adds a single unit if there is room.
func (b *Streamy[T]) TryAppendValue(v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	return b.appendValue(v)
}

// Append adds all of data or nothing.
func (b *Streamy[T]) Append(data []T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.ErrBufferClosed
	}
	if !b.appendUnits(data) {
		return &errors.CapacityError{Operation: "append", Requested: len(data), Available: b.maxAvailableSpace()}
	}
	return nil
}

// TryAppend adds all of data if it fits and reports whether it did.
func (b *Streamy[T]) TryAppend(data []T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	return b.appendUnits(data)
}

func (b *Streamy[T]) appendValue(v T) bool {
	if !b.tryAppendValue(v) {
		b.rejected()
		return false
	}
	b.appended(1)
	return true
}

func (b *Streamy[T]) appendUnits(data []T) bool {
	if len(data) == 0 {
		return true
	}
	if !b.tryAppend(nil, data) {
		b.rejected()
		return false
	}
	b.appended(len(data))
	return true
}

func (b *Streamy[T]) appended(n int) {
	b.payload += int64(n)
	if b.metrics != nil {
		b.metrics.IncEntriesAppended(b.name)
	}
	b.reportUsage()
	b.wake()
}

func (b *Streamy[T]) rejected() {
	if b.metrics != nil {
		b.metrics.IncAppendsRejected(b.name)
	}
}

// Read blocks until at least one unit is buffered, then copies up to
// len(dst) units and returns the count.
func (b *Streamy[T]) Read(ctx context.Context, dst []T) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(dst) == 0 {
		return 0, b.checkOpen()
	}
	if err := b.await(ctx, b.hasData); err != nil {
		return 0, err
	}
	return b.readAvailable(dst), nil
}

// TryRead copies whatever is buffered, returning errors.ErrEmpty when
// nothing is.
func (b *Streamy[T]) TryRead(dst []T) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkReadable(); err != nil {
		return 0, err
	}
	return b.readAvailable(dst), nil
}

// ReadWithTimeout waits up to timeout for data before reading.
func (b *Streamy[T]) ReadWithTimeout(timeout time.Duration, dst []T) (int, error) {
	ctx, cancel, err := timeoutContext(timeout)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err := b.Read(ctx, dst)
	return n, emptyOnDeadline(err)
}

// ReadValue blocks until a unit is buffered and consumes it.
func (b *Streamy[T]) ReadValue(ctx context.Context) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.await(ctx, b.hasData); err != nil {
		var zero T
		return zero, err
	}
	return b.takeValue(), nil
}

// TryReadValue consumes one unit or returns errors.ErrEmpty.
func (b *Streamy[T]) TryReadValue() (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkReadable(); err != nil {
		var zero T
		return zero, err
	}
	return b.takeValue(), nil
}

// Skip discards up to n units and returns how many were discarded.
func (b *Streamy[T]) Skip(n int) (int, error) {
	if n < 0 {
		return 0, &errors.ValidationError{Field: "n", Reason: "skip count must not be negative"}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	if int64(n) > b.payload {
		n = int(b.payload)
	}
	b.skip(n)
	b.consumed(n)
	return n, nil
}

// WaitForData blocks until at least one unit is buffered.
func (b *Streamy[T]) WaitForData(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.await(ctx, b.hasData)
}

// Clear drops all buffered units.
func (b *Streamy[T]) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return err
	}
	b.clearSegments()
	b.reportUsage()
	return nil
}

// Close releases every segment to the allocator and wakes blocked readers.
func (b *Streamy[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return err
	}
	b.release()
	b.reportUsage()
	return nil
}

func (b *Streamy[T]) hasData() bool {
	return b.payload > 0
}

func (b *Streamy[T]) checkOpen() error {
	if b.closed {
		return errors.ErrBufferClosed
	}
	return nil
}

func (b *Streamy[T]) checkReadable() error {
	if b.closed {
		return errors.ErrBufferClosed
	}
	if b.payload == 0 {
		return errors.ErrEmpty
	}
	return nil
}

func (b *Streamy[T]) readAvailable(dst []T) int {
	n := len(dst)
	if int64(n) > b.payload {
		n = int(b.payload)
	}
	b.read(dst[:n])
	b.consumed(n)
	return n
}

func (b *Streamy[T]) takeValue() T {
	v := b.readValue()
	b.consumed(1)
	return v
}

func (b *Streamy[T]) consumed(n int) {
	if n == 0 {
		return
	}
	b.payload -= int64(n)
	if b.metrics != nil {
		b.metrics.IncEntriesRead(b.name)
	}
	b.reportUsage()
}
