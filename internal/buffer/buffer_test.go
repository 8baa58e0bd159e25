package buffer

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/jittakal/membuffers/internal/allocator"
	"github.com/jittakal/membuffers/pkg/buffer"
)

// mockMetricsCollector implements MetricsCollector for testing
type mockMetricsCollector struct {
	mu           sync.Mutex
	appended     int
	rejected     int
	read         int
	lastSegments int
	lastPayload  int64
}

func (m *mockMetricsCollector) IncEntriesAppended(buffer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appended++
}

func (m *mockMetricsCollector) IncAppendsRejected(buffer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected++
}

func (m *mockMetricsCollector) IncEntriesRead(buffer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.read++
}

func (m *mockMetricsCollector) SetBufferUsage(buffer string, segments int, payloadLength int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSegments = segments
	m.lastPayload = payloadLength
}

func newTestAllocator[T buffer.Element](t *testing.T, segmentSize, maxSegments int) *allocator.Allocator[T] {
	t.Helper()
	a, err := allocator.New[T](allocator.Config{
		Name:                "test",
		SegmentSize:         segmentSize,
		MaxReusableSegments: maxSegments,
		MaxSegments:         maxSegments,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	if err != nil {
		t.Fatalf("allocator.New() error = %v", err)
	}
	return a
}

func newTestChunky[T buffer.Element](t *testing.T, a *allocator.Allocator[T], minSegments, maxSegments int) *Chunky[T] {
	t.Helper()
	b, err := NewChunky(a, Options{Name: "test", MinSegments: minSegments, MaxSegments: maxSegments})
	if err != nil {
		t.Fatalf("NewChunky() error = %v", err)
	}
	return b
}

func filled[T buffer.Element](n int, v T) []T {
	s := make([]T, n)
	for i := range s {
		s[i] = v
	}
	return s
}
