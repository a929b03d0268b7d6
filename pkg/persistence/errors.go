package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence errors that all implementations use.
var (
	ErrPipelineNotFound  = errors.New("pipeline not found")
	ErrTriggerNotFound   = errors.New("trigger not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrDatasetNotFound   = errors.New("dataset not found")
	ErrWatermarkNotFound = errors.New("watermark not found")
)

// EntityError wraps a persistence failure with the operation and target.
type EntityError struct {
	Op     string // operation being performed (e.g. "GetByID", "Save")
	Entity string // entity kind (e.g. "pipeline", "trigger")
	ID     string
	Err    error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsNotFound reports whether err is any of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPipelineNotFound) ||
		errors.Is(err, ErrTriggerNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrDatasetNotFound) ||
		errors.Is(err, ErrWatermarkNotFound)
}
