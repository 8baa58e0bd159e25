package encoder

import (
	"path/filepath"
	"testing"

	"github.com/jittakal/membuffers/pkg/record"
	"github.com/parquet-go/parquet-go"
)

func TestParquetEncoder_FormatAndExtension(t *testing.T) {
	enc := NewParquetEncoder("snappy")
	if enc.Format() != record.FormatParquet {
		t.Errorf("Format() = %v, want %v", enc.Format(), record.FormatParquet)
	}
	if enc.FileExtension() != ".parquet" {
		t.Errorf("FileExtension() = %v, want .parquet", enc.FileExtension())
	}
}

func TestParquetEncoder_WriteAndRead(t *testing.T) {
	for _, compression := range SupportedCompressions(record.FormatParquet) {
		t.Run(compression, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "batch.parquet")
			records := testRecords(4)

			stats, err := NewParquetEncoder(compression).Encode(path, records)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if stats.RecordCount != 4 || stats.SizeBytes == 0 {
				t.Errorf("stats = %+v", stats)
			}

			rows, err := parquet.ReadFile[StagedRow](path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if len(rows) != 4 {
				t.Fatalf("read %d rows, want 4", len(rows))
			}
			row := rows[2]
			if row.ID != "evt-2" || row.Sequence != 2 || row.Producer != 0 {
				t.Errorf("row 2 = %+v", row)
			}
			if row.Time == nil || !row.Time.Equal(*records[2].Event.Time) {
				t.Errorf("Time = %v, want %v", row.Time, records[2].Event.Time)
			}
			if row.Subject != nil {
				t.Errorf("Subject = %v, want nil", *row.Subject)
			}
			if !row.StagedAt.Equal(records[2].Staging.StagedAt) {
				t.Errorf("StagedAt = %v", row.StagedAt)
			}
		})
	}
}

func TestParquetEncoder_Errors(t *testing.T) {
	enc := NewParquetEncoder("")
	if _, err := enc.Encode(filepath.Join(t.TempDir(), "empty.parquet"), nil); err == nil {
		t.Error("Encode() with no records should fail")
	}
	if _, err := enc.Encode(filepath.Join(t.TempDir(), "missing", "dir", "x.parquet"), testRecords(1)); err == nil {
		t.Error("Encode() into a missing directory should fail")
	}
	if _, err := enc.Encode(filepath.Join(t.TempDir(), "bad.parquet"), []record.Record{{}}); err == nil {
		t.Error("Encode() of a record without event should fail")
	}
}
