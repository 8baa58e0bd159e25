// Package encoder defines interfaces for encoding drained batches to files.
package encoder

import "github.com/jittakal/membuffers/pkg/record"

// Encoder encodes records to a specific file format.
type Encoder interface {
	// Encode writes records to a file and returns batch statistics.
	Encode(filePath string, records []record.Record) (*record.BatchStats, error)

	// Format returns the file format this encoder produces.
	Format() record.FileFormat

	// FileExtension returns the file extension (e.g., ".parquet", ".avro").
	FileExtension() string
}
