package buffer

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jittakal/membuffers/internal/allocator"
	"github.com/jittakal/membuffers/internal/errors"
	"github.com/jittakal/membuffers/internal/lenprefix"
	"github.com/jittakal/membuffers/pkg/buffer"
)

// Ensure implementation satisfies interface at compile time.
var (
	_ buffer.Chunky[byte]  = (*Chunky[byte])(nil)
	_ buffer.Chunky[int64] = (*Chunky[int64])(nil)
)

// Chunky buffers discrete entries. Each entry is stored as a length prefix
// followed by its payload, so reads return exactly what was appended.
type Chunky[T buffer.Element] struct {
	core[T]

	entryCount int
	// nextLength caches the decoded prefix of the head entry, -1 when unknown.
	nextLength int
	// peeked holds the head entry once PeekNext has pulled it out of the
	// segments. It still counts toward entryCount until consumed.
	peeked    []T
	hasPeeked bool
}

// NewChunky creates a chunky buffer drawing segments from alloc.
func NewChunky[T buffer.Element](alloc *allocator.Allocator[T], opts Options) (*Chunky[T], error) {
	b := &Chunky[T]{nextLength: -1}
	if err := b.init(alloc, opts); err != nil {
		return nil, err
	}
	b.reportUsage()
	return b, nil
}

// EntryCount returns the number of unread entries.
func (b *Chunky[T]) EntryCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entryCount
}

// IsEmpty returns true if no entries are buffered.
func (b *Chunky[T]) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entryCount == 0
}

// Stats returns current buffer statistics.
func (b *Chunky[T]) Stats() buffer.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return buffer.Stats{
		EntryCount:         b.entryCount,
		SegmentCount:       b.usedSegments,
		FreeSegmentCount:   b.freeSegments,
		TotalPayloadLength: b.payload,
		MaxAvailableSpace:  b.maxAvailableSpace(),
		Closed:             b.closed,
	}
}

// Append adds an entry. It returns a *errors.CapacityError when the entry
// cannot fit and leaves the buffer unchanged.
func (b *Chunky[T]) Append(entry []T) error {
	if len(entry) > lenprefix.MaxValue {
		return fmt.Errorf("%w: entry of %d units exceeds %d", errors.ErrInvalidArgument, len(entry), lenprefix.MaxValue)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.ErrBufferClosed
	}
	if !b.appendEntry(entry) {
		return &errors.CapacityError{
			Operation: "append",
			Requested: lenprefix.Size(len(entry)) + len(entry),
			Available: b.maxAvailableSpace(),
		}
	}
	return nil
}

// TryAppend adds an entry if it fits and reports whether it did.
// A closed buffer never accepts entries.
func (b *Chunky[T]) TryAppend(entry []T) bool {
	if len(entry) > lenprefix.MaxValue {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	return b.appendEntry(entry)
}

func (b *Chunky[T]) appendEntry(entry []T) bool {
	var prefix [lenprefix.MaxUnits]T
	n := lenprefix.Encode(prefix[:], len(entry))

	if !b.tryAppend(prefix[:n], entry) {
		if b.metrics != nil {
			b.metrics.IncAppendsRejected(b.name)
		}
		return false
	}

	b.entryCount++
	b.payload += int64(len(entry))
	if b.metrics != nil {
		b.metrics.IncEntriesAppended(b.name)
	}
	b.reportUsage()
	b.wake()
	return true
}

// GetNext blocks until an entry is available and returns it.
func (b *Chunky[T]) GetNext(ctx context.Context) ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.await(ctx, b.hasEntry); err != nil {
		return nil, err
	}
	return b.takeNext(), nil
}

// TryGetNext returns the next entry or errors.ErrEmpty.
func (b *Chunky[T]) TryGetNext() ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkReadable(); err != nil {
		return nil, err
	}
	return b.takeNext(), nil
}

// GetNextWithTimeout waits up to timeout and returns errors.ErrEmpty when
// no entry arrived.
func (b *Chunky[T]) GetNextWithTimeout(timeout time.Duration) ([]T, error) {
	ctx, cancel, err := timeoutContext(timeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	entry, err := b.GetNext(ctx)
	return entry, emptyOnDeadline(err)
}

// ReadNext copies the next entry into dst and returns its length. When dst
// is too short it returns the negated entry length with errors.ErrShortBuffer
// and consumes nothing.
func (b *Chunky[T]) ReadNext(ctx context.Context, dst []T) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.await(ctx, b.hasEntry); err != nil {
		return 0, err
	}
	return b.readNextInto(dst)
}

// TryReadNext is the non-blocking form of ReadNext.
func (b *Chunky[T]) TryReadNext(dst []T) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkReadable(); err != nil {
		return 0, err
	}
	return b.readNextInto(dst)
}

// ReadNextWithTimeout waits up to timeout for an entry to copy into dst.
func (b *Chunky[T]) ReadNextWithTimeout(timeout time.Duration, dst []T) (int, error) {
	ctx, cancel, err := timeoutContext(timeout)
	if err != nil {
		return 0, err
	}
	defer cancel()

	n, err := b.ReadNext(ctx, dst)
	return n, emptyOnDeadline(err)
}

// PeekNext returns the next entry without consuming it. Repeated peeks
// return the same slice until the entry is read or skipped; callers must
// not modify it.
func (b *Chunky[T]) PeekNext() ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkReadable(); err != nil {
		return nil, err
	}
	if !b.hasPeeked {
		b.peeked = b.readEntry(b.headLength())
		b.hasPeeked = true
	}
	return b.peeked, nil
}

// SkipNext discards the next entry and returns its length.
func (b *Chunky[T]) SkipNext() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkReadable(); err != nil {
		return 0, err
	}

	n := b.headLength()
	if b.hasPeeked {
		b.dropPeeked()
	} else {
		b.skip(n)
		b.nextLength = -1
	}
	b.consumed(n)
	return n, nil
}

// NextEntryLength returns the payload length of the next entry.
func (b *Chunky[T]) NextEntryLength() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkReadable(); err != nil {
		return 0, err
	}
	return b.headLength(), nil
}

// WaitForEntry blocks until at least one entry is buffered.
func (b *Chunky[T]) WaitForEntry(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.await(ctx, b.hasEntry)
}

// Clear drops every entry and returns segments beyond the first.
func (b *Chunky[T]) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.ErrBufferClosed
	}
	b.clearSegments()
	b.resetEntries()
	b.reportUsage()
	return nil
}

// Close releases every segment to the allocator and wakes blocked readers.
func (b *Chunky[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.ErrBufferClosed
	}
	b.release()
	b.resetEntries()
	b.reportUsage()
	return nil
}

func (b *Chunky[T]) hasEntry() bool {
	return b.entryCount > 0
}

func (b *Chunky[T]) checkReadable() error {
	if b.closed {
		return errors.ErrBufferClosed
	}
	if b.entryCount == 0 {
		return errors.ErrEmpty
	}
	return nil
}

// headLength returns the length of the head entry, decoding its prefix on
// first use. At least one entry must be buffered.
func (b *Chunky[T]) headLength() int {
	if b.hasPeeked {
		return len(b.peeked)
	}
	if b.nextLength < 0 {
		b.nextLength = b.readLength()
	}
	return b.nextLength
}

func (b *Chunky[T]) readEntry(n int) []T {
	entry := make([]T, n)
	b.read(entry)
	b.nextLength = -1
	return entry
}

func (b *Chunky[T]) takeNext() []T {
	n := b.headLength()
	var entry []T
	if b.hasPeeked {
		entry = b.peeked
		b.dropPeeked()
	} else {
		entry = b.readEntry(n)
	}
	b.consumed(n)
	return entry
}

func (b *Chunky[T]) readNextInto(dst []T) (int, error) {
	n := b.headLength()
	if len(dst) < n {
		return -n, errors.ErrShortBuffer
	}
	if b.hasPeeked {
		copy(dst, b.peeked)
		b.dropPeeked()
	} else {
		b.read(dst[:n])
		b.nextLength = -1
	}
	b.consumed(n)
	return n, nil
}

func (b *Chunky[T]) dropPeeked() {
	b.peeked = nil
	b.hasPeeked = false
}

func (b *Chunky[T]) consumed(n int) {
	b.entryCount--
	b.payload -= int64(n)
	if b.metrics != nil {
		b.metrics.IncEntriesRead(b.name)
	}
	b.reportUsage()
}

func (b *Chunky[T]) resetEntries() {
	b.entryCount = 0
	b.nextLength = -1
	b.dropPeeked()
}

func timeoutContext(timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if timeout < 0 {
		return nil, nil, fmt.Errorf("%w: negative timeout %s", errors.ErrInvalidArgument, timeout)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return ctx, cancel, nil
}

// emptyOnDeadline reports an expired wait as an empty buffer.
func emptyOnDeadline(err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ErrEmpty
	}
	return err
}
