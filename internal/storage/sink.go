package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jittakal/membuffers/pkg/record"
	"github.com/jittakal/membuffers/pkg/storage"
)

type pendingBatch struct {
	records []record.Record
	stats   record.BatchStats
}

// Sink groups drained records by origin and writes each group out once its
// rotation policy fires. Sink is safe for concurrent use by consumers.
type Sink struct {
	writer storage.Writer
	router storage.Router
	policy storage.RotationPolicy
	format record.FileFormat
	logger *slog.Logger

	mu      sync.Mutex
	pending map[record.Origin]*pendingBatch
	written int64
}

// NewSink creates a sink over the given writer.
func NewSink(
	writer storage.Writer,
	router storage.Router,
	policy storage.RotationPolicy,
	format record.FileFormat,
	logger *slog.Logger,
) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		writer:  writer,
		router:  router,
		policy:  policy,
		format:  format,
		logger:  logger,
		pending: make(map[record.Origin]*pendingBatch),
	}
}

// Add appends a record to its origin's batch and writes the batch if the
// policy says it should rotate.
func (s *Sink) Add(ctx context.Context, rec record.Record) error {
	origin := rec.Staging.Origin

	s.mu.Lock()
	batch, ok := s.pending[origin]
	if !ok {
		batch = &pendingBatch{}
		s.pending[origin] = batch
	}
	batch.records = append(batch.records, rec)
	batch.stats.Add(rec.Staging.Size, rec.DrainedAt)

	if !s.policy.ShouldRotate(batch.stats) {
		s.mu.Unlock()
		return nil
	}
	delete(s.pending, origin)
	s.mu.Unlock()

	return s.write(ctx, origin, batch)
}

// FlushDue writes every batch whose policy has fired, such as batches that
// went stale while their producer was idle.
func (s *Sink) FlushDue(ctx context.Context) error {
	return s.flush(ctx, false)
}

// Flush writes every pending batch regardless of policy.
func (s *Sink) Flush(ctx context.Context) error {
	return s.flush(ctx, true)
}

// Pending returns the number of records not yet written.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.pending {
		n += len(b.records)
	}
	return n
}

// Written returns the number of records written so far.
func (s *Sink) Written() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

func (s *Sink) flush(ctx context.Context, all bool) error {
	s.mu.Lock()
	origins := make([]record.Origin, 0, len(s.pending))
	batches := make(map[record.Origin]*pendingBatch)
	for origin, batch := range s.pending {
		if all || s.policy.ShouldRotate(batch.stats) {
			origins = append(origins, origin)
			batches[origin] = batch
			delete(s.pending, origin)
		}
	}
	s.mu.Unlock()

	sort.Slice(origins, func(i, j int) bool {
		return origins[i].String() < origins[j].String()
	})

	var errs []error
	for _, origin := range origins {
		if err := s.write(ctx, origin, batches[origin]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) write(ctx context.Context, origin record.Origin, batch *pendingBatch) error {
	// all records in a batch share the rotation window, so the first one
	// decides the partition
	path := s.router.Route(origin, batch.records[0].EventTimeUnix())

	bytesWritten, err := s.writer.Write(ctx, batch.records, path, s.format)
	if err != nil {
		s.logger.Error("failed to write to storage",
			"origin", origin.String(),
			"records", len(batch.records),
			"error", err,
		)
		return fmt.Errorf("write batch for %s: %w", origin, err)
	}

	s.mu.Lock()
	s.written += int64(len(batch.records))
	s.mu.Unlock()

	s.logger.Info("wrote batch to storage",
		"origin", origin.String(),
		"records", len(batch.records),
		"bytes", bytesWritten,
		"path", path,
		"age_ms", time.Since(batch.stats.FirstWriteTime).Milliseconds(),
	)
	return nil
}
