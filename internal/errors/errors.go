// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrBufferFull      = errors.New("buffer is full")
	ErrBufferClosed    = errors.New("buffer is closed")
	ErrEmpty           = errors.New("buffer is empty")
	ErrShortBuffer     = errors.New("destination too small for next entry")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAllocationLimit = errors.New("segment allocation limit exceeded")
	ErrWriterClosed    = errors.New("storage writer is closed")
)

// CapacityError reports an append or allocation that could not be satisfied
// within the configured segment bounds.
type CapacityError struct {
	Operation string
	Requested int
	Available int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("capacity error: operation=%s requested=%d available=%d: %v",
		e.Operation, e.Requested, e.Available, ErrBufferFull)
}

func (e *CapacityError) Unwrap() error {
	return ErrBufferFull
}

// ValidationError represents an invalid setting.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field=%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// InvariantError describes internal corruption: an illegal segment state
// transition, a malformed length prefix or a broken segment chain.
// It is only ever raised with panic and must not be recovered from.
type InvariantError struct {
	Component string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: component=%s: %s", e.Component, e.Detail)
}

// Invariantf panics with an InvariantError.
func Invariantf(component, format string, args ...any) {
	panic(&InvariantError{Component: component, Detail: fmt.Sprintf(format, args...)})
}

// Backpressure defines an interface for errors that can tell whether they
// signal a temporary lack of capacity.
type Backpressure interface {
	error
	IsBackpressure() bool
}

// IsBackpressure reports whether err means the caller may retry once
// buffered data has been consumed.
// It first checks the Backpressure interface, then falls back to the
// sentinel errors.
func IsBackpressure(err error) bool {
	if err == nil {
		return false
	}

	var bp Backpressure
	if errors.As(err, &bp) {
		return bp.IsBackpressure()
	}

	return errors.Is(err, ErrBufferFull) || errors.Is(err, ErrAllocationLimit)
}

// IsBackpressure is true for every capacity error.
func (e *CapacityError) IsBackpressure() bool {
	return true
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "create"
}
