// Package storage defines interfaces for the drain-side sink.
//
// Consumers drain entries from buffers in batches; the sink decides when a
// batch is large or old enough to rotate into a file and where that file
// goes.
package storage

import (
	"context"

	"github.com/jittakal/membuffers/pkg/record"
)

// Writer writes drained records to storage.
type Writer interface {
	// Write writes records to storage at the specified path.
	// Returns the number of bytes written.
	Write(ctx context.Context, records []record.Record, path string, format record.FileFormat) (int64, error)

	// Close closes the writer and releases resources.
	Close() error
}

// Router determines storage paths for drained batches.
type Router interface {
	// Route returns the directory for records staged through origin at the
	// given Unix timestamp (seconds).
	Route(origin record.Origin, timestamp int64) string
}

// RotationPolicy determines when a pending batch is written out.
type RotationPolicy interface {
	// ShouldRotate returns true if the batch should be flushed.
	ShouldRotate(stats record.BatchStats) bool
}
