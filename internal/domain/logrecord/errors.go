package logrecord

import (
	"fmt"
	"strings"
)

// FieldError describes one invalid request parameter.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned when request parameters cannot be turned into
// a filter. It carries every offending field.
type ValidationError struct {
	Fields []FieldError
}

// Add records an invalid field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// HasErrors reports whether any field was recorded.
func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid query parameters: " + strings.Join(parts, "; ")
}

// StorageError wraps a failure of the log store.
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError wraps err as a StorageError for the named operation.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("log storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
