// Package validator checks allocator and buffer settings and validates the
// CloudEvents drained by the staging harness.
package validator

import (
	"fmt"

	"github.com/jittakal/membuffers/internal/errors"
	"github.com/jittakal/membuffers/internal/segment"
	"github.com/jittakal/membuffers/pkg/record"
)

// Ensure implementation satisfies interface at compile time.
var _ record.Validator = (*CloudEventsValidator)(nil)

// AllocatorSettings validates a segment size and the allocator ceilings.
func AllocatorSettings(segmentSize, maxReusableSegments, maxSegments int) error {
	if segmentSize < segment.MinSize {
		return &errors.ValidationError{
			Field:  "segment_size",
			Reason: fmt.Sprintf("must be at least %d, got %d", segment.MinSize, segmentSize),
		}
	}
	if maxSegments < 1 {
		return &errors.ValidationError{
			Field:  "max_segments",
			Reason: fmt.Sprintf("must be positive, got %d", maxSegments),
		}
	}
	if maxReusableSegments < 0 || maxReusableSegments > maxSegments {
		return &errors.ValidationError{
			Field:  "max_reusable_segments",
			Reason: fmt.Sprintf("must be between 0 and %d, got %d", maxSegments, maxReusableSegments),
		}
	}
	return nil
}

// SegmentBounds validates the min/max segment counts of a buffer.
func SegmentBounds(minSegments, maxSegments int) error {
	if minSegments < 1 {
		return &errors.ValidationError{
			Field:  "min_segments",
			Reason: fmt.Sprintf("must be positive, got %d", minSegments),
		}
	}
	if maxSegments < minSegments {
		return &errors.ValidationError{
			Field:  "max_segments",
			Reason: fmt.Sprintf("must be at least min_segments %d, got %d", minSegments, maxSegments),
		}
	}
	return nil
}

// CloudEventsValidator validates drained CloudEvents.
type CloudEventsValidator struct{}

// NewCloudEventsValidator creates a new CloudEvents validator.
func NewCloudEventsValidator() *CloudEventsValidator {
	return &CloudEventsValidator{}
}

// Validate validates a CloudEvent.
func (v *CloudEventsValidator) Validate(e *record.Event) error {
	if e == nil {
		return &errors.ValidationError{Field: "event", Reason: "event is nil"}
	}

	required := []struct {
		field string
		value string
	}{
		{"id", e.ID},
		{"source", e.Source},
		{"specversion", e.SpecVersion},
		{"type", e.Type},
	}
	for _, r := range required {
		if r.value == "" {
			return &errors.ValidationError{
				Field:  r.field,
				Reason: fmt.Sprintf("required field is missing (event %q)", e.ID),
			}
		}
	}

	// Normalize spec version (0.1 -> 1.0)
	if e.SpecVersion == "0.1" {
		e.SpecVersion = "1.0"
	}

	if e.SpecVersion != "1.0" {
		return &errors.ValidationError{
			Field:  "specversion",
			Reason: fmt.Sprintf("unsupported version: %s (supported: 1.0)", e.SpecVersion),
		}
	}

	return nil
}
