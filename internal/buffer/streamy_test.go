package buffer

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/jittakal/membuffers/internal/errors"
)

func TestStreamy_AppendAndRead(t *testing.T) {
	a := newTestAllocator[int64](t, 8, 8)
	b, err := NewStreamy(a, Options{Name: "stream", MinSegments: 1, MaxSegments: 4})
	if err != nil {
		t.Fatalf("NewStreamy() error = %v", err)
	}

	for i := int64(0); i < 20; i++ {
		if err := b.AppendValue(i * 1000); err != nil {
			t.Fatalf("AppendValue(%d) error = %v", i, err)
		}
	}
	if b.Available() != 20 {
		t.Errorf("Available() = %d, want 20", b.Available())
	}
	if b.SegmentCount() != 3 {
		t.Errorf("SegmentCount() = %d, want 3", b.SegmentCount())
	}

	dst := make([]int64, 5)
	n, err := b.TryRead(dst)
	if err != nil || n != 5 {
		t.Fatalf("TryRead() = %d, %v", n, err)
	}
	if dst[4] != 4000 {
		t.Errorf("dst[4] = %d, want 4000", dst[4])
	}

	if n, _ := b.Skip(6); n != 6 {
		t.Errorf("Skip(6) = %d, want 6", n)
	}
	v, err := b.TryReadValue()
	if err != nil || v != 11000 {
		t.Errorf("TryReadValue() = %d, %v, want 11000", v, err)
	}

	big := make([]int64, 64)
	n, _ = b.TryRead(big)
	if n != 8 || big[7] != 19000 {
		t.Errorf("TryRead(big) = %d, want 8 ending in 19000", n)
	}
	if !b.IsEmpty() || b.SegmentCount() != 1 {
		t.Errorf("drained: empty=%v segments=%d", b.IsEmpty(), b.SegmentCount())
	}

	if _, err := b.TryRead(big); !errors.Is(err, apperrors.ErrEmpty) {
		t.Errorf("TryRead() on empty buffer error = %v, want ErrEmpty", err)
	}
	if _, err := b.TryReadValue(); !errors.Is(err, apperrors.ErrEmpty) {
		t.Errorf("TryReadValue() on empty buffer error = %v, want ErrEmpty", err)
	}
}

func TestStreamy_Capacity(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 4)
	b, _ := NewStreamy(a, Options{MinSegments: 1, MaxSegments: 2})

	if b.MaxAvailableSpace() != 16 {
		t.Fatalf("MaxAvailableSpace() = %d, want 16", b.MaxAvailableSpace())
	}
	if b.TryAppend(make([]byte, 17)) {
		t.Fatal("17 units cannot fit in two 8-unit segments")
	}
	var capErr *apperrors.CapacityError
	if err := b.Append(make([]byte, 17)); !errors.As(err, &capErr) {
		t.Fatalf("Append() error = %v, want *CapacityError", err)
	}
	if b.Available() != 0 || b.SegmentCount() != 1 {
		t.Errorf("rejected append changed state: available=%d segments=%d", b.Available(), b.SegmentCount())
	}

	if err := b.Append(make([]byte, 16)); err != nil {
		t.Fatalf("Append(16) error = %v", err)
	}
	if b.MaxAvailableSpace() != 0 {
		t.Errorf("MaxAvailableSpace() = %d, want 0", b.MaxAvailableSpace())
	}
	if b.TryAppendValue(1) {
		t.Error("TryAppendValue() on full buffer should fail")
	}
	if err := b.Append(nil); err != nil {
		t.Errorf("Append(nil) error = %v, want nil", err)
	}
}

func TestStreamy_Skip(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 8)
	b, _ := NewStreamy(a, Options{MinSegments: 1, MaxSegments: 8})
	b.Append([]byte("0123456789abcdefghij"))

	tests := []struct {
		name    string
		n       int
		want    int
		wantErr error
	}{
		{"negative", -1, 0, apperrors.ErrInvalidArgument},
		{"zero", 0, 0, nil},
		{"across segments", 12, 12, nil},
		{"clamped to available", 100, 8, nil},
		{"empty buffer", 3, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Skip(tt.n)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Skip(%d) error = %v, want %v", tt.n, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Skip(%d) = %d, want %d", tt.n, got, tt.want)
			}
		})
	}
}

func TestStreamy_BlockingRead(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 4)
	b, _ := NewStreamy(a, Options{MinSegments: 1, MaxSegments: 4})

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	dst := make([]byte, 10)
	go func() {
		n, err := b.Read(context.Background(), dst)
		done <- result{n, err}
	}()

	time.Sleep(20 * time.Millisecond)
	b.Append([]byte("abc"))

	select {
	case r := <-done:
		if r.err != nil || r.n != 3 || string(dst[:3]) != "abc" {
			t.Errorf("Read() = %d %q, %v", r.n, dst[:r.n], r.err)
		}
	case <-time.After(time.Second):
		t.Fatal("Read() did not wake up")
	}

	if n, err := b.Read(context.Background(), nil); n != 0 || err != nil {
		t.Errorf("Read(nil) = %d, %v, want 0 nil", n, err)
	}
	if _, err := b.ReadWithTimeout(10*time.Millisecond, dst); !errors.Is(err, apperrors.ErrEmpty) {
		t.Errorf("ReadWithTimeout() error = %v, want ErrEmpty", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := b.ReadValue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReadValue() error = %v, want DeadlineExceeded", err)
	}

	b.AppendValue('z')
	if err := b.WaitForData(context.Background()); err != nil {
		t.Errorf("WaitForData() error = %v", err)
	}
	v, err := b.ReadValue(context.Background())
	if err != nil || v != 'z' {
		t.Errorf("ReadValue() = %c, %v", v, err)
	}
}

func TestStreamy_ClearAndClose(t *testing.T) {
	a := newTestAllocator[byte](t, 8, 8)
	b, _ := NewStreamy(a, Options{MinSegments: 2, MaxSegments: 8})
	b.Append(make([]byte, 30))

	if err := b.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	stats := b.Stats()
	if stats.SegmentCount != 1 || stats.TotalPayloadLength != 0 || stats.EntryCount != 0 {
		t.Errorf("after Clear: %+v", stats)
	}
	if stats.FreeSegmentCount != 2 {
		t.Errorf("FreeSegmentCount = %d, want 2", stats.FreeSegmentCount)
	}

	waiting := make(chan error, 1)
	go func() {
		_, err := b.ReadValue(context.Background())
		waiting <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := <-waiting; !errors.Is(err, apperrors.ErrBufferClosed) {
		t.Errorf("blocked ReadValue() error = %v, want ErrBufferClosed", err)
	}
	if a.BufferOwnedSegmentCount() != 0 {
		t.Errorf("BufferOwnedSegmentCount() = %d, want 0", a.BufferOwnedSegmentCount())
	}

	if err := b.Close(); !errors.Is(err, apperrors.ErrBufferClosed) {
		t.Errorf("second Close() error = %v, want ErrBufferClosed", err)
	}
	if err := b.AppendValue(1); !errors.Is(err, apperrors.ErrBufferClosed) {
		t.Errorf("AppendValue() error = %v, want ErrBufferClosed", err)
	}
	if _, err := b.Skip(1); !errors.Is(err, apperrors.ErrBufferClosed) {
		t.Errorf("Skip() error = %v, want ErrBufferClosed", err)
	}
	if _, err := b.Read(context.Background(), make([]byte, 1)); !errors.Is(err, apperrors.ErrBufferClosed) {
		t.Errorf("Read() error = %v, want ErrBufferClosed", err)
	}
	if b.MaxAvailableSpace() != -1 || !b.IsClosed() {
		t.Error("closed buffer should report -1 space and IsClosed")
	}
}
