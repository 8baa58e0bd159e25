package encoder

import (
	"fmt"
	"os"
	"strings"

	"github.com/jittakal/membuffers/pkg/encoder"
	"github.com/jittakal/membuffers/pkg/record"
	"github.com/parquet-go/parquet-go"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// ParquetEncoder implements encoder.Encoder for Apache Parquet.
// Supports SNAPPY, GZIP, LZ4, ZSTD or no compression.
type ParquetEncoder struct {
	compressionName string
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) *ParquetEncoder {
	return &ParquetEncoder{
		compressionName: compression,
	}
}

func compressionCodec(compression string) parquet.WriterOption {
	switch strings.ToLower(compression) {
	case "snappy":
		return parquet.Compression(&parquet.Snappy)
	case "gzip":
		return parquet.Compression(&parquet.Gzip)
	case "lz4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd":
		return parquet.Compression(&parquet.Zstd)
	default:
		return parquet.Compression(&parquet.Uncompressed)
	}
}

// Encode writes records to a Parquet file.
func (e *ParquetEncoder) Encode(filePath string, records []record.Record) (*record.BatchStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	rows := make([]StagedRow, len(records))
	for i, r := range records {
		row, err := toRow(r)
		if err != nil {
			return nil, fmt.Errorf("failed to convert record %d: %w", i, err)
		}
		rows[i] = row
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	writer := parquet.NewGenericWriter[StagedRow](
		file,
		compressionCodec(e.compressionName),
		parquet.CreatedBy("membuffers", "1.0", "0"),
	)

	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		file.Close()
		return nil, fmt.Errorf("failed to write records: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return batchStats(records, fileInfo.Size()), nil
}

// Format returns the file format.
func (e *ParquetEncoder) Format() record.FileFormat {
	return record.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}
