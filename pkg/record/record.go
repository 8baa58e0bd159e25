// Package record defines the staged-record types that flow through the
// harness: serialized CloudEvents appended to a buffer by producers and
// drained in batches by consumers.
package record

import (
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Event is the flattened CloudEvents 1.0 view of a staged entry.
type Event struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	SpecVersion string `json:"specversion"`
	Type        string `json:"type"`

	DataContentType *string    `json:"datacontenttype,omitempty"`
	Subject         *string    `json:"subject,omitempty"`
	Time            *time.Time `json:"time,omitempty"`

	Data json.RawMessage `json:"data,omitempty"`
}

// FromCloudEvent flattens an SDK event.
func FromCloudEvent(e cloudevents.Event) *Event {
	out := &Event{
		ID:          e.ID(),
		Source:      e.Source(),
		SpecVersion: e.SpecVersion(),
		Type:        e.Type(),
		Data:        json.RawMessage(e.Data()),
	}
	if ct := e.DataContentType(); ct != "" {
		out.DataContentType = &ct
	}
	if s := e.Subject(); s != "" {
		out.Subject = &s
	}
	if t := e.Time(); !t.IsZero() {
		out.Time = &t
	}
	return out
}

// Origin identifies the buffer and producer an entry was staged by.
type Origin struct {
	Buffer   string
	Producer int
}

// String returns the origin in the format "buffer-pN".
func (o Origin) String() string {
	return fmt.Sprintf("%s-p%d", o.Buffer, o.Producer)
}

// Staging describes how an entry passed through its buffer.
type Staging struct {
	Origin   Origin
	Sequence int64
	// Size is the entry length in buffer units.
	Size     int
	StagedAt time.Time
}

// Record is a drained entry ready for the sink.
type Record struct {
	Event     *Event
	Staging   Staging
	DrainedAt time.Time
}

// EventTime returns the CloudEvent time if present, otherwise the time the
// entry was staged.
func (r *Record) EventTime() time.Time {
	if r.Event != nil && r.Event.Time != nil {
		return *r.Event.Time
	}
	return r.Staging.StagedAt
}

// EventTimeUnix returns EventTime as Unix seconds.
func (r *Record) EventTimeUnix() int64 {
	return r.EventTime().Unix()
}

// Latency returns how long the entry spent in its buffer.
func (r *Record) Latency() time.Duration {
	if r.DrainedAt.IsZero() || r.Staging.StagedAt.IsZero() {
		return 0
	}
	return r.DrainedAt.Sub(r.Staging.StagedAt)
}

// BatchStats contains statistics about a drained batch.
type BatchStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}

// Add accounts for one more record of the given size.
func (s *BatchStats) Add(size int, at time.Time) {
	if s.RecordCount == 0 {
		s.FirstWriteTime = at
	}
	s.RecordCount++
	s.SizeBytes += int64(size)
	s.LastWriteTime = at
}

// FileFormat represents the sink file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)

// Validator validates drained events.
type Validator interface {
	Validate(event *Event) error
}
