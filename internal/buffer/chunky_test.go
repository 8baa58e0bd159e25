package buffer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jittakal/membuffers/internal/errors"
)

func TestNewChunky(t *testing.T) {
	tests := []struct {
		name        string
		maxAlloc    int
		minSegments int
		maxSegments int
		wantErr     error
	}{
		{"valid", 8, 1, 4, nil},
		{"min equals max", 8, 4, 4, nil},
		{"zero min", 8, 0, 4, apperrors.ErrInvalidArgument},
		{"inverted bounds", 8, 3, 2, apperrors.ErrInvalidArgument},
		{"allocator exhausted", 2, 3, 3, apperrors.ErrAllocationLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAllocator[byte](t, 16, tt.maxAlloc)
			b, err := NewChunky(a, Options{MinSegments: tt.minSegments, MaxSegments: tt.maxSegments})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewChunky() error = %v, want %v", err, tt.wantErr)
				}
				if a.BufferOwnedSegmentCount() != 0 {
					t.Errorf("failed creation leaked %d segments", a.BufferOwnedSegmentCount())
				}
				return
			}
			if err != nil {
				t.Fatalf("NewChunky() error = %v", err)
			}
			if b.SegmentCount() != 1 {
				t.Errorf("SegmentCount() = %d, want 1", b.SegmentCount())
			}
			if a.BufferOwnedSegmentCount() != tt.minSegments {
				t.Errorf("BufferOwnedSegmentCount() = %d, want %d", a.BufferOwnedSegmentCount(), tt.minSegments)
			}
			if !b.IsEmpty() {
				t.Error("new buffer should be empty")
			}
		})
	}
}

func TestChunky_GrowsAndShrinks(t *testing.T) {
	a := newTestAllocator[byte](t, 10, 16)
	b := newTestChunky(t, a, 1, 3)

	if got := b.MaxAvailableSpace(); got != 30 {
		t.Errorf("MaxAvailableSpace() = %d, want 30", got)
	}

	entries := [][]byte{[]byte("abc"), []byte("defghij"), []byte("klmnopq"), []byte("rstuvwx")}
	for _, e := range entries {
		if err := b.Append(e); err != nil {
			t.Fatalf("Append(%q) error = %v", e, err)
		}
	}

	if b.SegmentCount() != 3 {
		t.Errorf("SegmentCount() = %d, want 3", b.SegmentCount())
	}
	if b.EntryCount() != 4 {
		t.Errorf("EntryCount() = %d, want 4", b.EntryCount())
	}
	if b.TotalPayloadLength() != 24 {
		t.Errorf("TotalPayloadLength() = %d, want 24", b.TotalPayloadLength())
	}
	if got := b.MaxAvailableSpace(); got != 2 {
		t.Errorf("MaxAvailableSpace() = %d, want 2", got)
	}

	if b.TryAppend([]byte{9, 9}) {
		t.Fatal("entry needing a fourth segment should be rejected")
	}
	if b.EntryCount() != 4 || b.SegmentCount() != 3 {
		t.Errorf("rejected append changed state: entries=%d segments=%d", b.EntryCount(), b.SegmentCount())
	}

	for _, want := range entries {
		got, err := b.TryGetNext()
		if err != nil {
			t.Fatalf("TryGetNext() error = %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("TryGetNext() = %q, want %q", got, want)
		}
	}

	stats := b.Stats()
	if stats.SegmentCount != 1 {
		t.Errorf("SegmentCount = %d, want 1", stats.SegmentCount)
	}
	if stats.FreeSegmentCount != 1 {
		t.Errorf("FreeSegmentCount = %d, want 1", stats.FreeSegmentCount)
	}
	if a.BufferOwnedSegmentCount() != 2 {
		t.Errorf("BufferOwnedSegmentCount() = %d, want 2", a.BufferOwnedSegmentCount())
	}
	if a.ReusableSegmentCount() != 1 {
		t.Errorf("ReusableSegmentCount() = %d, want 1", a.ReusableSegmentCount())
	}
}

func TestChunky_AllOrNothing(t *testing.T) {
	a := newTestAllocator[byte](t, 12, 2)
	metrics := &mockMetricsCollector{}
	b, err := NewChunky(a, Options{Name: "test", MinSegments: 1, MaxSegments: 4, Metrics: metrics})
	if err != nil {
		t.Fatalf("NewChunky() error = %v", err)
	}

	entry := filled[byte](16, 'x')
	if !b.TryAppend(entry) {
		t.Fatal("first 16-byte entry should fit")
	}
	if b.SegmentCount() != 2 {
		t.Fatalf("SegmentCount() = %d, want 2", b.SegmentCount())
	}

	if b.TryAppend(entry) {
		t.Fatal("second entry should be rejected by the allocator")
	}

	err = b.Append(entry)
	var capErr *apperrors.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("Append() error = %v, want *CapacityError", err)
	}
	if !errors.Is(err, apperrors.ErrBufferFull) || !apperrors.IsBackpressure(err) {
		t.Error("capacity error should unwrap to ErrBufferFull and signal backpressure")
	}
	if capErr.Requested != 17 {
		t.Errorf("Requested = %d, want 17", capErr.Requested)
	}

	if b.EntryCount() != 1 || b.SegmentCount() != 2 || b.TotalPayloadLength() != 16 {
		t.Errorf("state changed: entries=%d segments=%d payload=%d",
			b.EntryCount(), b.SegmentCount(), b.TotalPayloadLength())
	}
	if a.BufferOwnedSegmentCount() != 2 {
		t.Errorf("BufferOwnedSegmentCount() = %d, want 2", a.BufferOwnedSegmentCount())
	}
	if metrics.appended != 1 || metrics.rejected != 2 {
		t.Errorf("metrics appended=%d rejected=%d, want 1 and 2", metrics.appended, metrics.rejected)
	}

	got, err := b.TryGetNext()
	if err != nil || !bytes.Equal(got, entry) {
		t.Fatalf("TryGetNext() = %q, %v", got, err)
	}
}

func TestChunky_FIFO(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 256)
	b := newTestChunky(t, a, 1, 200)

	lengths := []int{0, 1, 127, 128, 300, 5, 0}
	var want [][]byte
	for i, n := range lengths {
		e := make([]byte, n)
		for j := range e {
			e[j] = byte((i + j) % 251)
		}
		want = append(want, e)
		if err := b.Append(e); err != nil {
			t.Fatalf("Append(len=%d) error = %v", n, err)
		}
	}

	for i, w := range want {
		got, err := b.TryGetNext()
		if err != nil {
			t.Fatalf("entry %d: TryGetNext() error = %v", i, err)
		}
		if !bytes.Equal(got, w) {
			t.Errorf("entry %d: got %d units, want %d", i, len(got), len(w))
		}
	}
	if !b.IsEmpty() || b.SegmentCount() != 1 {
		t.Errorf("drained buffer: empty=%v segments=%d", b.IsEmpty(), b.SegmentCount())
	}
}

func TestChunky_Longs(t *testing.T) {
	a := newTestAllocator[int64](t, 8, 16)
	b := newTestChunky(t, a, 2, 8)

	entry := []int64{math.MaxInt64, -1, 0, math.MinInt64, 128, 42, 7, 9, 11}
	if err := b.Append(entry); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if n, _ := b.NextEntryLength(); n != len(entry) {
		t.Errorf("NextEntryLength() = %d, want %d", n, len(entry))
	}

	dst := make([]int64, 16)
	n, err := b.TryReadNext(dst)
	if err != nil || n != len(entry) {
		t.Fatalf("TryReadNext() = %d, %v", n, err)
	}
	for i := range entry {
		if dst[i] != entry[i] {
			t.Errorf("unit %d = %d, want %d", i, dst[i], entry[i])
		}
	}
}

func TestChunky_ZeroLengthEntry(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 4)
	b := newTestChunky(t, a, 1, 4)

	if err := b.Append(nil); err != nil {
		t.Fatalf("Append(nil) error = %v", err)
	}
	if b.EntryCount() != 1 || b.TotalPayloadLength() != 0 {
		t.Errorf("entries=%d payload=%d, want 1 and 0", b.EntryCount(), b.TotalPayloadLength())
	}
	if b.IsEmpty() {
		t.Error("buffer holding an empty entry is not empty")
	}
	if got := b.MaxAvailableSpace(); got != 8-1+3*8 {
		t.Errorf("MaxAvailableSpace() = %d, want %d", got, 8-1+3*8)
	}

	got, err := b.TryGetNext()
	if err != nil {
		t.Fatalf("TryGetNext() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("TryGetNext() = %v, want an empty non-nil entry", got)
	}
	if !b.IsEmpty() {
		t.Error("buffer should be empty")
	}
}

func TestChunky_PeekNext(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 4)
	b := newTestChunky(t, a, 1, 4)

	if _, err := b.PeekNext(); !errors.Is(err, apperrors.ErrEmpty) {
		t.Errorf("PeekNext() on empty buffer error = %v, want ErrEmpty", err)
	}

	b.Append([]byte("abc"))
	b.Append([]byte("de"))

	first, err := b.PeekNext()
	if err != nil {
		t.Fatalf("PeekNext() error = %v", err)
	}
	second, _ := b.PeekNext()
	if string(first) != "abc" || string(second) != "abc" {
		t.Errorf("PeekNext() = %q then %q, want abc twice", first, second)
	}
	if b.EntryCount() != 2 || b.TotalPayloadLength() != 5 {
		t.Errorf("peek changed counts: entries=%d payload=%d", b.EntryCount(), b.TotalPayloadLength())
	}
	if n, _ := b.NextEntryLength(); n != 3 {
		t.Errorf("NextEntryLength() = %d, want 3", n)
	}

	got, _ := b.TryGetNext()
	if string(got) != "abc" {
		t.Errorf("TryGetNext() = %q, want abc", got)
	}

	peeked, _ := b.PeekNext()
	if string(peeked) != "de" {
		t.Errorf("PeekNext() = %q, want de", peeked)
	}
	if n, err := b.SkipNext(); n != 2 || err != nil {
		t.Errorf("SkipNext() = %d, %v, want 2", n, err)
	}
	if _, err := b.TryGetNext(); !errors.Is(err, apperrors.ErrEmpty) {
		t.Errorf("TryGetNext() error = %v, want ErrEmpty", err)
	}
	if _, err := b.SkipNext(); !errors.Is(err, apperrors.ErrEmpty) {
		t.Errorf("SkipNext() error = %v, want ErrEmpty", err)
	}
}

func TestChunky_ReadNextShortBuffer(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 4)
	b := newTestChunky(t, a, 1, 4)
	b.Append([]byte("hello"))

	tests := []struct {
		name      string
		peekFirst bool
	}{
		{"from segments", false},
		{"from peeked entry", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.peekFirst {
				b.PeekNext()
			}
			n, err := b.TryReadNext(make([]byte, 3))
			if n != -5 || !errors.Is(err, apperrors.ErrShortBuffer) {
				t.Fatalf("TryReadNext(short) = %d, %v, want -5 ErrShortBuffer", n, err)
			}
			if b.EntryCount() != 1 {
				t.Errorf("short read consumed the entry")
			}
		})
	}

	dst := make([]byte, 8)
	n, err := b.ReadNext(context.Background(), dst)
	if n != 5 || err != nil || string(dst[:n]) != "hello" {
		t.Errorf("ReadNext() = %d %q, %v", n, dst[:n], err)
	}
}

func TestChunky_SkipNextAcrossSegments(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 16)
	b := newTestChunky(t, a, 1, 16)

	b.Append(filled[byte](40, 'a'))
	b.Append([]byte("tail"))

	if n, err := b.SkipNext(); n != 40 || err != nil {
		t.Fatalf("SkipNext() = %d, %v, want 40", n, err)
	}
	got, _ := b.TryGetNext()
	if string(got) != "tail" {
		t.Errorf("TryGetNext() = %q, want tail", got)
	}
	if b.SegmentCount() != 1 {
		t.Errorf("SegmentCount() = %d, want 1", b.SegmentCount())
	}
}

func TestChunky_PrefixStraddlesSegments(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 64)
	b := newTestChunky(t, a, 1, 40)

	first := []byte("sixsix")        // prefix + payload fill 7 of 8 units
	second := filled[byte](200, 'z') // two unit prefix split across segments
	b.Append(first)
	b.Append(second)

	got, _ := b.TryGetNext()
	if !bytes.Equal(got, first) {
		t.Errorf("first entry = %q, want %q", got, first)
	}
	if n, err := b.NextEntryLength(); n != 200 || err != nil {
		t.Fatalf("NextEntryLength() = %d, %v, want 200", n, err)
	}
	got, _ = b.TryGetNext()
	if !bytes.Equal(got, second) {
		t.Errorf("second entry has %d units, want 200", len(got))
	}
}

func TestChunky_GetNextBlocks(t *testing.T) {
	a := newTestAllocator[byte](t, 16, 4)
	b := newTestChunky(t, a, 1, 4)

	result := make(chan []byte, 1)
	go func() {
		entry, err := b.GetNext(context.Background())
		if err != nil {
			t.Errorf("GetNext() error = %v", err)
		}
		result <- entry
	}()

	time.Sleep(20 * time.Millisecond)
	b.Append([]byte("wake"))

	select {
	case got := <-result:
		if string(got) != "wake" {
			t.Errorf("GetNext() = %q, want wake", got)
		}
	case <-time.After(time.Second):
		t.Fatal("GetNext() did not wake up after Append")
	}
}

func TestChunky_GetNextContextCanceled(t *testing.T) {
	a := newTestAllocator[byte](t, 16, 4)
	b := newTestChunky(t, a, 1, 4)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	if _, err := b.GetNext(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("GetNext() error = %v, want context.Canceled", err)
	}
	if err := b.WaitForEntry(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForEntry() error = %v, want context.Canceled", err)
	}
}

func TestChunky_Timeouts(t *testing.T) {
	a := newTestAllocator[byte](t, 16, 4)
	b := newTestChunky(t, a, 1, 4)

	start := time.Now()
	if _, err := b.GetNextWithTimeout(20 * time.Millisecond); !errors.Is(err, apperrors.ErrEmpty) {
		t.Errorf("GetNextWithTimeout() error = %v, want ErrEmpty", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("GetNextWithTimeout() returned before the timeout")
	}

	if _, err := b.GetNextWithTimeout(-time.Second); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("negative timeout error = %v, want ErrInvalidArgument", err)
	}
	if _, err := b.ReadNextWithTimeout(0, make([]byte, 4)); !errors.Is(err, apperrors.ErrEmpty) {
		t.Errorf("ReadNextWithTimeout(0) error = %v, want ErrEmpty", err)
	}

	b.Append([]byte("ok"))
	got, err := b.GetNextWithTimeout(time.Second)
	if err != nil || string(got) != "ok" {
		t.Errorf("GetNextWithTimeout() = %q, %v", got, err)
	}
}

func TestChunky_CloseWakesReaders(t *testing.T) {
	a := newTestAllocator[byte](t, 16, 4)
	b := newTestChunky(t, a, 1, 4)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := b.GetNext(context.Background())
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if !errors.Is(err, apperrors.ErrBufferClosed) {
				t.Errorf("GetNext() error = %v, want ErrBufferClosed", err)
			}
		case <-time.After(time.Second):
			t.Fatal("reader not released by Close")
		}
	}
}

func TestChunky_Closed(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 8)
	b := newTestChunky(t, a, 2, 8)
	b.Append(filled[byte](20, 'q'))

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if a.BufferOwnedSegmentCount() != 0 {
		t.Errorf("BufferOwnedSegmentCount() = %d, want 0 after Close", a.BufferOwnedSegmentCount())
	}

	closedErrs := map[string]error{
		"Append":          b.Append([]byte("x")),
		"Clear":           b.Clear(),
		"Close":           b.Close(),
		"WaitForEntry":    b.WaitForEntry(context.Background()),
		"TryGetNext":      second(b.TryGetNext()),
		"PeekNext":        second(b.PeekNext()),
		"SkipNext":        second(b.SkipNext()),
		"NextEntryLength": second(b.NextEntryLength()),
		"TryReadNext":     second(b.TryReadNext(make([]byte, 4))),
	}
	for op, err := range closedErrs {
		if !errors.Is(err, apperrors.ErrBufferClosed) {
			t.Errorf("%s() error = %v, want ErrBufferClosed", op, err)
		}
	}

	if b.TryAppend([]byte("x")) {
		t.Error("TryAppend() on closed buffer should fail")
	}
	if !b.IsClosed() {
		t.Error("IsClosed() = false")
	}
	if b.MaxAvailableSpace() != -1 {
		t.Errorf("MaxAvailableSpace() = %d, want -1", b.MaxAvailableSpace())
	}
	if b.SegmentCount() != 0 || b.EntryCount() != 0 || b.TotalPayloadLength() != 0 {
		t.Error("closed buffer should report zero counters")
	}
}

func second[V any](_ V, err error) error {
	return err
}

func TestChunky_Clear(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 16)
	b := newTestChunky(t, a, 1, 8)

	for i := 0; i < 5; i++ {
		if err := b.Append(filled[byte](7, byte('a'+i))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if b.SegmentCount() != 5 {
		t.Fatalf("SegmentCount() = %d, want 5", b.SegmentCount())
	}
	b.PeekNext()

	if err := b.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	stats := b.Stats()
	if stats.SegmentCount != 1 || stats.EntryCount != 0 || stats.TotalPayloadLength != 0 {
		t.Errorf("after Clear: %+v", stats)
	}
	if stats.FreeSegmentCount != 1 {
		t.Errorf("FreeSegmentCount = %d, want 1", stats.FreeSegmentCount)
	}
	if a.BufferOwnedSegmentCount() != 2 {
		t.Errorf("BufferOwnedSegmentCount() = %d, want 2", a.BufferOwnedSegmentCount())
	}

	b.Append([]byte("fresh"))
	got, _ := b.TryGetNext()
	if string(got) != "fresh" {
		t.Errorf("TryGetNext() = %q, want fresh", got)
	}
}

func TestChunky_Conservation(t *testing.T) {
	a := newTestAllocator[byte](t, 16, 32)
	b := newTestChunky(t, a, 2, 24)
	rng := rand.New(rand.NewSource(1))

	var model [][]byte
	var payload int64
	for step := 0; step < 5000; step++ {
		if rng.Intn(3) > 0 {
			e := filled[byte](rng.Intn(60), byte(step))
			if b.TryAppend(e) {
				model = append(model, e)
				payload += int64(len(e))
			}
		} else if len(model) > 0 {
			got, err := b.TryGetNext()
			if err != nil {
				t.Fatalf("step %d: TryGetNext() error = %v", step, err)
			}
			if !bytes.Equal(got, model[0]) {
				t.Fatalf("step %d: entry mismatch", step)
			}
			payload -= int64(len(model[0]))
			model = model[1:]
		}

		stats := b.Stats()
		if stats.EntryCount != len(model) || stats.TotalPayloadLength != payload {
			t.Fatalf("step %d: stats %+v, model entries=%d payload=%d", step, stats, len(model), payload)
		}
		if stats.SegmentCount+stats.FreeSegmentCount > 24 {
			t.Fatalf("step %d: %d in use + %d free exceeds max", step, stats.SegmentCount, stats.FreeSegmentCount)
		}
		if owned := a.BufferOwnedSegmentCount(); owned != stats.SegmentCount+stats.FreeSegmentCount {
			t.Fatalf("step %d: allocator owned %d, buffer holds %d", step, owned, stats.SegmentCount+stats.FreeSegmentCount)
		}
	}
}

func TestChunky_ConcurrentProducers(t *testing.T) {
	a := newTestAllocator[byte](t, 64, 64)
	b := newTestChunky(t, a, 1, 32)

	const producers = 4
	const perProducer = 500

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				entry := []byte(fmt.Sprintf("%d:%d", p, i))
				for !b.TryAppend(entry) {
					runtime.Gosched()
				}
			}
		}(p)
	}

	next := make([]int, producers)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for n := 0; n < producers*perProducer; n++ {
		entry, err := b.GetNext(ctx)
		if err != nil {
			t.Fatalf("GetNext() error = %v after %d entries", err, n)
		}
		var p, i int
		if _, err := fmt.Sscanf(string(entry), "%d:%d", &p, &i); err != nil {
			t.Fatalf("malformed entry %q", entry)
		}
		if i != next[p] {
			t.Fatalf("producer %d: got sequence %d, want %d", p, i, next[p])
		}
		next[p]++
	}
	wg.Wait()

	if !b.IsEmpty() {
		t.Errorf("EntryCount() = %d after draining", b.EntryCount())
	}
}
