package core

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrNotFound is returned when a memory with the requested id does not exist
	ErrNotFound = errors.New("memory not found")

	// ErrDimensionMismatch is returned when similarity is requested between
	// vectors of unequal length
	ErrDimensionMismatch = errors.New("vector dimensions do not match")

	// ErrStoreClosed is returned when trying to use a closed store
	ErrStoreClosed = errors.New("store is closed")

	// ErrEmptyContent is returned when a memory is added with no content
	ErrEmptyContent = errors.New("memory content cannot be empty")

	// ErrEmbeddingFailed is returned when the embedding model could not
	// produce a vector for a standalone embedding request
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrInvalidThreshold is returned when a search threshold falls outside [0, 1]
	ErrInvalidThreshold = errors.New("similarity threshold must be in [0, 1]")

	// ErrInvalidLimit is returned when a search limit is negative
	ErrInvalidLimit = errors.New("result limit cannot be negative")

	// ErrInvalidMetadata is returned when a metadata value is not a scalar
	ErrInvalidMetadata = errors.New("metadata values must be strings, numbers, or booleans")
)

// StoreError wraps errors with operation context
type StoreError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("memstore: %v", e.Err)
	}
	return fmt.Sprintf("memstore: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
