package workload

import (
	"bytes"
	"sync"
	"time"

	"github.com/jittakal/membuffers/pkg/buffer"
)

// stage adapts a buffer to the producer and consumer loops.
type stage interface {
	name() string
	// put appends one serialized event.
	put(entry []byte) error
	// take waits up to timeout and returns zero or more complete entries.
	take(timeout time.Duration) ([][]byte, error)
	isEmpty() bool
	stats() buffer.Stats
}

// chunkyStage stores one event per entry.
type chunkyStage struct {
	label string
	buf   buffer.Chunky[byte]
}

func (s *chunkyStage) name() string { return s.label }

func (s *chunkyStage) put(entry []byte) error {
	return s.buf.Append(entry)
}

func (s *chunkyStage) take(timeout time.Duration) ([][]byte, error) {
	entry, err := s.buf.GetNextWithTimeout(timeout)
	if err != nil {
		return nil, err
	}
	return [][]byte{entry}, nil
}

func (s *chunkyStage) isEmpty() bool { return s.buf.IsEmpty() }
func (s *chunkyStage) stats() buffer.Stats { return s.buf.Stats() }

// streamyStage frames events as newline-terminated JSON. Encoded JSON never
// contains a raw newline. A streamy stage must have a single consumer.
type streamyStage struct {
	label string
	buf   buffer.Streamy[byte]

	mu      sync.Mutex
	chunk   []byte
	partial []byte
}

const streamChunkSize = 32 * 1024

func newStreamyStage(label string, buf buffer.Streamy[byte]) *streamyStage {
	return &streamyStage{
		label: label,
		buf:   buf,
		chunk: make([]byte, streamChunkSize),
	}
}

func (s *streamyStage) name() string { return s.label }

func (s *streamyStage) put(entry []byte) error {
	framed := make([]byte, len(entry)+1)
	copy(framed, entry)
	framed[len(entry)] = '\n'
	return s.buf.Append(framed)
}

func (s *streamyStage) take(timeout time.Duration) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.buf.ReadWithTimeout(timeout, s.chunk)
	if err != nil {
		return nil, err
	}
	s.partial = append(s.partial, s.chunk[:n]...)

	var entries [][]byte
	for {
		i := bytes.IndexByte(s.partial, '\n')
		if i < 0 {
			break
		}
		entry := make([]byte, i)
		copy(entry, s.partial[:i])
		entries = append(entries, entry)
		s.partial = s.partial[i+1:]
	}
	if len(s.partial) == 0 {
		s.partial = nil
	}
	return entries, nil
}

func (s *streamyStage) isEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.IsEmpty() && len(s.partial) == 0
}

func (s *streamyStage) stats() buffer.Stats { return s.buf.Stats() }
