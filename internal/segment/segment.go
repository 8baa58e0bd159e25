// Package segment implements the fixed-capacity storage cell that buffers
// chain together.
package segment

import (
	"github.com/jittakal/membuffers/internal/errors"
	"github.com/jittakal/membuffers/internal/lenprefix"
	"github.com/jittakal/membuffers/pkg/buffer"
)

// MinSize is the smallest allowed segment capacity. It keeps a length
// prefix from spanning more than two segments.
const MinSize = 8

// State is the lifecycle state of a segment.
type State int

const (
	// StateFree segments sit in a free chain.
	StateFree State = iota
	// StateWriting segments are the append target, not yet read from.
	StateWriting
	// StateReadingAndWriting segments are both append target and read source.
	StateReadingAndWriting
	// StateReading segments receive no further appends.
	StateReading
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateWriting:
		return "WRITING"
	case StateReadingAndWriting:
		return "READING_AND_WRITING"
	case StateReading:
		return "READING"
	default:
		return "UNKNOWN"
	}
}

// Segment is a fixed-capacity run of units with independent append and read
// cursors. A segment belongs to exactly one chain at a time; the chain owner
// serializes all access.
type Segment[T buffer.Element] struct {
	data      []T
	state     State
	appendPtr int
	readPtr   int
	next      *Segment[T]
}

// New creates a free segment of the given capacity.
func New[T buffer.Element](size int) *Segment[T] {
	if size < MinSize {
		errors.Invariantf("segment", "size %d below minimum %d", size, MinSize)
	}
	return &Segment[T]{data: make([]T, size)}
}

// Capacity returns the number of units the segment holds.
func (s *Segment[T]) Capacity() int {
	return len(s.data)
}

// State returns the current lifecycle state.
func (s *Segment[T]) State() State {
	return s.state
}

// Next returns the following segment in whichever chain owns s.
func (s *Segment[T]) Next() *Segment[T] {
	return s.next
}

// Relink sets the following segment.
func (s *Segment[T]) Relink(next *Segment[T]) {
	if next == s {
		errors.Invariantf("segment", "segment cannot link to itself")
	}
	s.next = next
}

// InitForWriting makes a free segment the append target.
func (s *Segment[T]) InitForWriting() {
	if s.state != StateFree {
		s.illegal("InitForWriting")
	}
	s.state = StateWriting
	s.appendPtr = 0
	s.readPtr = 0
}

// FinishWriting marks that no further appends will target s.
func (s *Segment[T]) FinishWriting() {
	if s.state != StateWriting && s.state != StateReadingAndWriting {
		s.illegal("FinishWriting")
	}
	s.state = StateReading
}

// InitForReading makes s the read source.
func (s *Segment[T]) InitForReading() {
	switch s.state {
	case StateWriting:
		s.state = StateReadingAndWriting
	case StateReading:
	default:
		s.illegal("InitForReading")
	}
	s.readPtr = 0
}

// FinishReading returns a drained segment to the free state, detaches it and
// returns the segment that followed it.
func (s *Segment[T]) FinishReading() *Segment[T] {
	if s.state != StateReading {
		s.illegal("FinishReading")
	}
	next := s.next
	s.Reset()
	return next
}

// Reset forces the segment back to a pristine free state regardless of its
// current state. Used when a whole buffer is cleared or closed.
func (s *Segment[T]) Reset() {
	s.state = StateFree
	s.appendPtr = 0
	s.readPtr = 0
	s.next = nil
}

// AvailableForAppend returns the free room after the append cursor.
func (s *Segment[T]) AvailableForAppend() int {
	return len(s.data) - s.appendPtr
}

// AvailableForReading returns the number of unread units.
func (s *Segment[T]) AvailableForReading() int {
	return s.appendPtr - s.readPtr
}

// TryAppend copies as much of src as fits and returns the count copied.
func (s *Segment[T]) TryAppend(src []T) int {
	n := copy(s.data[s.appendPtr:], src)
	s.appendPtr += n
	return n
}

// Append copies all of src; the caller must have checked the room.
func (s *Segment[T]) Append(src []T) {
	if len(src) > s.AvailableForAppend() {
		errors.Invariantf("segment", "append of %d units exceeds free room %d", len(src), s.AvailableForAppend())
	}
	s.TryAppend(src)
}

// AppendValue appends a single unit and reports whether there was room.
func (s *Segment[T]) AppendValue(v T) bool {
	if s.appendPtr >= len(s.data) {
		return false
	}
	s.data[s.appendPtr] = v
	s.appendPtr++
	return true
}

// TryRead copies up to len(dst) unread units and returns the count copied.
func (s *Segment[T]) TryRead(dst []T) int {
	n := copy(dst, s.data[s.readPtr:s.appendPtr])
	s.readPtr += n
	return n
}

// Read copies exactly len(dst) units; the caller must have checked availability.
func (s *Segment[T]) Read(dst []T) {
	if len(dst) > s.AvailableForReading() {
		errors.Invariantf("segment", "read of %d units exceeds available %d", len(dst), s.AvailableForReading())
	}
	s.TryRead(dst)
}

// ReadValue consumes a single unit. The segment must not be drained.
func (s *Segment[T]) ReadValue() T {
	if s.readPtr >= s.appendPtr {
		errors.Invariantf("segment", "read past append cursor")
	}
	v := s.data[s.readPtr]
	s.readPtr++
	return v
}

// Skip discards up to n unread units and returns the count skipped.
func (s *Segment[T]) Skip(n int) int {
	if avail := s.AvailableForReading(); n > avail {
		n = avail
	}
	s.readPtr += n
	return n
}

// ReadLength continues decoding a length prefix from the unread units.
func (s *Segment[T]) ReadLength(p lenprefix.Prefix) lenprefix.Prefix {
	p, n := lenprefix.Decode(p, s.data[s.readPtr:s.appendPtr])
	s.readPtr += n
	return p
}

func (s *Segment[T]) illegal(op string) {
	errors.Invariantf("segment", "%s not allowed in state %s", op, s.state)
}
