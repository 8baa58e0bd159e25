package buffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/jittakal/membuffers/internal/allocator"
	"github.com/jittakal/membuffers/internal/errors"
	"github.com/jittakal/membuffers/internal/lenprefix"
	"github.com/jittakal/membuffers/internal/segment"
	"github.com/jittakal/membuffers/internal/validator"
	"github.com/jittakal/membuffers/pkg/buffer"
)

// MetricsCollector defines metrics operations for buffers.
type MetricsCollector interface {
	IncEntriesAppended(buffer string)
	IncAppendsRejected(buffer string)
	IncEntriesRead(buffer string)
	SetBufferUsage(buffer string, segments int, payloadLength int64)
}

// Options configures a buffer.
type Options struct {
	// Name labels metrics; it need not be unique.
	Name string
	// MinSegments is both the initial chain length and the number of drained
	// segments the buffer keeps for itself instead of returning them.
	MinSegments int
	// MaxSegments bounds the in-use plus locally retained segments.
	MaxSegments int
	Metrics     MetricsCollector
}

// core is the ring engine shared by chunky and streamy buffers: a chain of
// segments from tail (read end) to head (write end) plus a local free chain.
// Every method expects mu to be held by the caller.
type core[T buffer.Element] struct {
	allocator            *allocator.Allocator[T]
	name                 string
	segmentSize          int
	maxSegmentsForReuse  int
	maxSegmentsForBuffer int
	metrics              MetricsCollector

	mu           sync.Mutex
	head         *segment.Segment[T]
	tail         *segment.Segment[T]
	usedSegments int
	firstFree    *segment.Segment[T]
	freeSegments int
	payload      int64
	closed       bool

	// ready is closed to wake blocked readers. It is only created when
	// someone waits, so appends to a buffer without readers stay allocation free.
	ready chan struct{}
}

func (c *core[T]) init(alloc *allocator.Allocator[T], opts Options) error {
	if err := validator.SegmentBounds(opts.MinSegments, opts.MaxSegments); err != nil {
		return err
	}

	chain, ok := alloc.AllocateSegments(opts.MinSegments, nil)
	if !ok {
		return fmt.Errorf("%w: could not allocate %d initial segments", errors.ErrAllocationLimit, opts.MinSegments)
	}

	c.allocator = alloc
	c.name = opts.Name
	c.segmentSize = alloc.SegmentSize()
	c.maxSegmentsForReuse = opts.MinSegments
	c.maxSegmentsForBuffer = opts.MaxSegments
	c.metrics = opts.Metrics

	c.head = chain
	c.firstFree = chain.Next()
	c.head.Relink(nil)
	c.freeSegments = opts.MinSegments - 1
	c.head.InitForWriting()
	c.head.InitForReading()
	c.tail = c.head
	c.usedSegments = 1
	return nil
}

// SegmentCount returns the number of segments in the in-use chain.
func (c *core[T]) SegmentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedSegments
}

// TotalPayloadLength returns buffered payload units, excluding framing.
func (c *core[T]) TotalPayloadLength() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payload
}

// MaxAvailableSpace returns the room left in the head segment plus every
// segment the buffer could still add, or -1 once closed.
func (c *core[T]) MaxAvailableSpace() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxAvailableSpace()
}

// IsClosed reports whether the buffer has been closed.
func (c *core[T]) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *core[T]) maxAvailableSpace() int64 {
	if c.closed {
		return -1
	}
	space := int64(c.head.AvailableForAppend())
	if canAdd := c.maxSegmentsForBuffer - c.usedSegments; canAdd > 0 {
		space += int64(canAdd) * int64(c.segmentSize)
	}
	return space
}

// reserve makes sure the local free chain holds at least needed segments,
// borrowing the difference from the allocator. Nothing changes on failure.
func (c *core[T]) reserve(needed int) bool {
	toAllocate := needed - c.freeSegments
	if toAllocate <= 0 {
		return true
	}
	if c.usedSegments+c.freeSegments+toAllocate > c.maxSegmentsForBuffer {
		return false
	}
	chain, ok := c.allocator.AllocateSegments(toAllocate, c.firstFree)
	if !ok {
		return false
	}
	c.firstFree = chain
	c.freeSegments += toAllocate
	return true
}

// tryAppend writes prefix followed by payload, or nothing at all.
func (c *core[T]) tryAppend(prefix, payload []T) bool {
	total := len(prefix) + len(payload)
	if room := c.head.AvailableForAppend(); total > room {
		needed := (total - room + c.segmentSize - 1) / c.segmentSize
		if !c.reserve(needed) {
			return false
		}
	}
	c.write(prefix)
	c.write(payload)
	return true
}

func (c *core[T]) tryAppendValue(v T) bool {
	if c.head.AppendValue(v) {
		return true
	}
	if !c.reserve(1) {
		return false
	}
	c.advanceHead()
	c.head.AppendValue(v)
	return true
}

func (c *core[T]) write(data []T) {
	for {
		n := c.head.TryAppend(data)
		data = data[n:]
		if len(data) == 0 {
			return
		}
		c.advanceHead()
	}
}

func (c *core[T]) advanceHead() {
	next := c.firstFree
	if next == nil {
		errors.Invariantf("buffer", "no reserved segment left to advance head")
	}
	c.firstFree = next.Next()
	next.Relink(nil)
	c.freeSegments--

	next.InitForWriting()
	c.head.FinishWriting()
	c.head.Relink(next)
	c.head = next
	c.usedSegments++
}

// advanceTail retires the drained tail and starts reading its successor.
func (c *core[T]) advanceTail() {
	if c.tail == c.head {
		errors.Invariantf("buffer", "read past the head segment")
	}
	drained := c.tail
	next := drained.FinishReading()
	if next == nil {
		errors.Invariantf("buffer", "segment chain ends before head")
	}
	next.InitForReading()
	c.tail = next
	c.usedSegments--
	c.retire(drained)
}

// releaseDrained eagerly retires fully read segments behind the head.
func (c *core[T]) releaseDrained() {
	for c.tail != c.head && c.tail.AvailableForReading() == 0 {
		c.advanceTail()
	}
}

// retire keeps a free segment locally while under the reuse cap and hands
// it back to the allocator otherwise.
func (c *core[T]) retire(s *segment.Segment[T]) {
	if c.freeSegments < c.maxSegmentsForReuse {
		s.Relink(c.firstFree)
		c.firstFree = s
		c.freeSegments++
		return
	}
	c.allocator.ReleaseSegment(s)
}

func (c *core[T]) read(dst []T) {
	for len(dst) > 0 {
		if c.tail.AvailableForReading() == 0 {
			c.advanceTail()
		}
		n := c.tail.TryRead(dst)
		dst = dst[n:]
	}
	c.releaseDrained()
}

func (c *core[T]) readValue() T {
	if c.tail.AvailableForReading() == 0 {
		c.advanceTail()
	}
	v := c.tail.ReadValue()
	c.releaseDrained()
	return v
}

func (c *core[T]) skip(n int) {
	for n > 0 {
		if c.tail.AvailableForReading() == 0 {
			c.advanceTail()
		}
		n -= c.tail.Skip(n)
	}
	c.releaseDrained()
}

// readLength decodes the next length prefix, resuming in the following
// segment when the prefix straddles a boundary.
func (c *core[T]) readLength() int {
	var p lenprefix.Prefix
	for {
		if c.tail.AvailableForReading() == 0 {
			c.advanceTail()
		}
		p = c.tail.ReadLength(p)
		if p.Complete {
			c.releaseDrained()
			return p.Value
		}
	}
}

// clearSegments drops all data, keeping a single segment as head and tail.
func (c *core[T]) clearSegments() {
	keep := c.tail
	s := keep.Next()
	for s != nil {
		next := s.Next()
		s.Reset()
		c.retire(s)
		s = next
	}
	keep.Reset()
	keep.InitForWriting()
	keep.InitForReading()
	c.head = keep
	c.tail = keep
	c.usedSegments = 1
	c.payload = 0
}

// release hands every segment back to the allocator and marks c closed.
func (c *core[T]) release() {
	for _, first := range []*segment.Segment[T]{c.tail, c.firstFree} {
		s := first
		for s != nil {
			next := s.Next()
			s.Reset()
			c.allocator.ReleaseSegment(s)
			s = next
		}
	}
	c.head = nil
	c.tail = nil
	c.firstFree = nil
	c.usedSegments = 0
	c.freeSegments = 0
	c.payload = 0
	c.closed = true
	c.wake()
}

// await blocks until ready reports true, the buffer closes or ctx is done.
// It releases mu while sleeping and holds it again on return.
func (c *core[T]) await(ctx context.Context, ready func() bool) error {
	for {
		if c.closed {
			return errors.ErrBufferClosed
		}
		if ready() {
			return nil
		}
		if c.ready == nil {
			c.ready = make(chan struct{})
		}
		wakeup := c.ready

		c.mu.Unlock()
		select {
		case <-wakeup:
			c.mu.Lock()
		case <-ctx.Done():
			c.mu.Lock()
			return ctx.Err()
		}
	}
}

// wake releases every reader blocked in await.
func (c *core[T]) wake() {
	if c.ready != nil {
		close(c.ready)
		c.ready = nil
	}
}

func (c *core[T]) reportUsage() {
	if c.metrics != nil {
		c.metrics.SetBufferUsage(c.name, c.usedSegments, c.payload)
	}
}
