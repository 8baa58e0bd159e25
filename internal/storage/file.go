// Package storage implements the local file sink for drained batches.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jittakal/membuffers/internal/encoder"
	"github.com/jittakal/membuffers/internal/errors"
	"github.com/jittakal/membuffers/pkg/record"
	"github.com/jittakal/membuffers/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// MetricsCollector defines metrics operations for the sink.
type MetricsCollector interface {
	IncFilesWritten(buffer, format, status string)
	ObserveFileSize(buffer, format string, size float64)
	ObserveSinkWriteDuration(buffer string, duration float64)
	IncSinkErrors(operation string)
}

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileWriter implements storage.Writer for the local filesystem.
// Files are named batch_YYYYMMDD_HHMMSS_NNN with a per-second sequence.
type FileWriter struct {
	basePath       string
	encoderFactory *encoder.Factory
	logger         *slog.Logger
	metrics        MetricsCollector
	mu             sync.Mutex
	closed         bool
	fileSequence   int
	lastTimestamp  string
}

// NewFileWriter creates a new filesystem writer.
func NewFileWriter(
	config FileConfig,
	format record.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, &errors.StorageError{Operation: "create", Path: config.BasePath, Err: err}
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("filesystem writer created",
		"base_path", config.BasePath,
		"format", format,
		"compression", compression,
	)

	return &FileWriter{
		basePath:       config.BasePath,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes records into a new file under path, relative to the base
// path, and returns the file size.
func (w *FileWriter) Write(
	ctx context.Context,
	records []record.Record,
	path string,
	format record.FileFormat,
) (int64, error) {
	if len(records) == 0 {
		return 0, fmt.Errorf("no records to write")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errors.ErrWriterClosed
	}

	startTime := time.Now()

	fileEncoder, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		w.incErrors("encoder_create")
		return 0, fmt.Errorf("failed to create encoder: %w", err)
	}

	timestamp := startTime.Format("20060102_150405")
	if timestamp == w.lastTimestamp {
		w.fileSequence++
	} else {
		w.fileSequence = 1
		w.lastTimestamp = timestamp
	}
	filename := fmt.Sprintf("batch_%s_%03d%s", timestamp, w.fileSequence, fileEncoder.FileExtension())

	dir := filepath.Join(w.basePath, strings.TrimPrefix(path, "file://"))
	fullPath := filepath.Join(dir, filename)

	if err := os.MkdirAll(dir, 0755); err != nil {
		w.incErrors("mkdir")
		return 0, &errors.StorageError{Operation: "create", Path: dir, Err: err}
	}

	stats, err := fileEncoder.Encode(fullPath, records)
	if err != nil {
		w.incErrors("encode")
		if w.metrics != nil {
			w.metrics.IncFilesWritten(records[0].Staging.Origin.Buffer, string(format), "error")
		}
		return 0, &errors.StorageError{Operation: "write", Path: fullPath, Err: err}
	}

	duration := time.Since(startTime)
	w.logger.Info("wrote batch to file",
		"path", fullPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	if w.metrics != nil {
		buffer := records[0].Staging.Origin.Buffer
		w.metrics.IncFilesWritten(buffer, string(format), "success")
		w.metrics.ObserveFileSize(buffer, string(format), float64(stats.SizeBytes))
		w.metrics.ObserveSinkWriteDuration(buffer, duration.Seconds())
	}

	return stats.SizeBytes, nil
}

// Close closes the writer. Further writes fail with errors.ErrWriterClosed.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.logger.Info("closing filesystem writer")
	return nil
}

func (w *FileWriter) incErrors(operation string) {
	if w.metrics != nil {
		w.metrics.IncSinkErrors(operation)
	}
}
