package encoder

import (
	"fmt"
	"time"

	"github.com/jittakal/membuffers/pkg/record"
)

// StagedRow is the flat, columnar shape of a drained record shared by all
// encoders. Optional values are pointers so they encode as NULL.
type StagedRow struct {
	SpecVersion string `parquet:"spec_version,dict"`
	ID          string `parquet:"id"`
	Source      string `parquet:"source,dict"`
	Type        string `parquet:"type,dict"`
	Data        string `parquet:"data"`

	Subject         *string    `parquet:"subject,dict,optional"`
	DataContentType *string    `parquet:"data_content_type,dict,optional"`
	Time            *time.Time `parquet:"time,timestamp(microsecond),optional"`

	Buffer    string    `parquet:"buffer,dict"`
	Producer  int32     `parquet:"producer"`
	Sequence  int64     `parquet:"sequence"`
	EntrySize int32     `parquet:"entry_size"`
	StagedAt  time.Time `parquet:"staged_at,timestamp(microsecond)"`
	DrainedAt time.Time `parquet:"drained_at,timestamp(microsecond)"`
	// LatencyMicros is the time the entry spent buffered.
	LatencyMicros int64 `parquet:"latency_micros"`
}

func toRow(r record.Record) (StagedRow, error) {
	if r.Event == nil {
		return StagedRow{}, fmt.Errorf("record %d from %s has no event", r.Staging.Sequence, r.Staging.Origin)
	}
	return StagedRow{
		SpecVersion:     r.Event.SpecVersion,
		ID:              r.Event.ID,
		Source:          r.Event.Source,
		Type:            r.Event.Type,
		Data:            string(r.Event.Data),
		Subject:         r.Event.Subject,
		DataContentType: r.Event.DataContentType,
		Time:            r.Event.Time,
		Buffer:          r.Staging.Origin.Buffer,
		Producer:        int32(r.Staging.Origin.Producer),
		Sequence:        r.Staging.Sequence,
		EntrySize:       int32(r.Staging.Size),
		StagedAt:        r.Staging.StagedAt,
		DrainedAt:       r.DrainedAt,
		LatencyMicros:   r.Latency().Microseconds(),
	}, nil
}

// batchStats summarises an encoded batch written to a file of the given size.
func batchStats(records []record.Record, size int64) *record.BatchStats {
	stats := &record.BatchStats{
		RecordCount: len(records),
		SizeBytes:   size,
	}
	if len(records) > 0 {
		stats.FirstWriteTime = records[0].DrainedAt
		stats.LastWriteTime = records[len(records)-1].DrainedAt
	}
	return stats
}
