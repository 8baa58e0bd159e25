// Package encoder implements file format encoders for drained batches.
package encoder

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jittakal/membuffers/pkg/encoder"
	"github.com/jittakal/membuffers/pkg/record"
	"github.com/linkedin/goavro/v2"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for Avro Object Container Files.
// Block compression is handled by the OCF writer itself.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates a new Avro encoder. Supported compressions are
// uncompressed, deflate and snappy.
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	name, err := avroCompression(compression)
	if err != nil {
		return nil, err
	}
	codec, err := goavro.NewCodec(avroSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}
	return &AvroEncoder{codec: codec, compression: name}, nil
}

const avroSchema = `{
	"type": "record",
	"name": "StagedRecord",
	"namespace": "io.membuffers.staged",
	"fields": [
		{"name": "spec_version", "type": "string"},
		{"name": "id", "type": "string"},
		{"name": "source", "type": "string"},
		{"name": "type", "type": "string"},
		{"name": "subject", "type": ["null", "string"], "default": null},
		{"name": "data_content_type", "type": ["null", "string"], "default": null},
		{"name": "time", "type": ["null", "string"], "default": null},
		{"name": "data", "type": "string"},
		{"name": "buffer", "type": "string"},
		{"name": "producer", "type": "int"},
		{"name": "sequence", "type": "long"},
		{"name": "entry_size", "type": "int"},
		{"name": "staged_at", "type": "string"},
		{"name": "drained_at", "type": "string"},
		{"name": "latency_micros", "type": "long"}
	]
}`

func avroCompression(compression string) (string, error) {
	switch strings.ToLower(compression) {
	case "", "uncompressed", "none":
		return goavro.CompressionNullLabel, nil
	case "deflate":
		return goavro.CompressionDeflateLabel, nil
	case "snappy":
		return goavro.CompressionSnappyLabel, nil
	default:
		return "", fmt.Errorf("unsupported avro compression: %s", compression)
	}
}

// Encode writes records to an Avro file.
func (e *AvroEncoder) Encode(filePath string, records []record.Record) (*record.BatchStats, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	if err := e.write(file, records); err != nil {
		file.Close()
		return nil, err
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

// EncodeToBytes encodes records in memory.
func (e *AvroEncoder) EncodeToBytes(records []record.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to encode")
	}
	var buf bytes.Buffer
	if err := e.write(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *AvroEncoder) write(w io.Writer, records []record.Record) error {
	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           e.codec,
		CompressionName: e.compression,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	batch := make([]interface{}, 0, len(records))
	for i, r := range records {
		row, err := toRow(r)
		if err != nil {
			return fmt.Errorf("failed to convert record %d: %w", i, err)
		}
		batch = append(batch, avroDatum(row))
	}

	if err := ocfWriter.Append(batch); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return nil
}

// avroDatum maps a row onto the native form goavro expects, with
// goavro.Union wrapping the nullable fields.
func avroDatum(row StagedRow) map[string]interface{} {
	datum := map[string]interface{}{
		"spec_version":      row.SpecVersion,
		"id":                row.ID,
		"source":            row.Source,
		"type":              row.Type,
		"data":              row.Data,
		"subject":           nil,
		"data_content_type": nil,
		"time":              nil,
		"buffer":            row.Buffer,
		"producer":          row.Producer,
		"sequence":          row.Sequence,
		"entry_size":        row.EntrySize,
		"staged_at":         row.StagedAt.Format(time.RFC3339Nano),
		"drained_at":        row.DrainedAt.Format(time.RFC3339Nano),
		"latency_micros":    row.LatencyMicros,
	}
	if row.Subject != nil && *row.Subject != "" {
		datum["subject"] = goavro.Union("string", *row.Subject)
	}
	if row.DataContentType != nil && *row.DataContentType != "" {
		datum["data_content_type"] = goavro.Union("string", *row.DataContentType)
	}
	if row.Time != nil {
		datum["time"] = goavro.Union("string", row.Time.Format(time.RFC3339Nano))
	}
	return datum
}

// Format returns the file format.
func (e *AvroEncoder) Format() record.FileFormat {
	return record.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	return ".avro"
}
