// Package services implements the orchestration use cases on top of the
// persistence layer: pipelines, triggers, the dataset catalog and watermarks.
package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/medallionhq/conductor/pkg/persistence"
	"github.com/medallionhq/conductor/pkg/schedule"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrTriggerTypeImmutable = errors.New("trigger type cannot be changed")

	// Integrity Errors (422 Unprocessable Entity).
	ErrSelfDependency     = errors.New("a pipeline cannot depend on itself")
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrUpstreamNotFound   = errors.New("upstream pipeline not found")

	// Conflicts (409 Conflict).
	ErrAmbiguousDataset = errors.New("dataset name matches several catalog entries")
	ErrDatasetsNotReady = errors.New("datasets not ready")
	ErrDatasetsNotFound = errors.New("datasets not found")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     ErrInvalidRequest,
	}
}

// CycleError rejects a dependency that would close a cycle. Chain holds
// pipeline ids from the candidate upstream back to the candidate downstream
// and Names the matching display names.
type CycleError struct {
	Reason string
	Chain  []string
	Names  []string
}

func (e *CycleError) Error() string {
	if e.Is(ErrSelfDependency) {
		return ErrSelfDependency.Error()
	}

	return fmt.Sprintf("adding this dependency would create a circular chain: %s", strings.Join(e.Names, " → "))
}

func (e *CycleError) Is(target error) bool {
	if target == ErrSelfDependency {
		return len(e.Chain) == 1
	}

	return target == ErrCircularDependency && len(e.Chain) > 1
}

// ReadinessError lists the datasets that blocked a readiness resolution.
type ReadinessError struct {
	NotFound []string
	NotReady []string
}

func (e *ReadinessError) Error() string {
	parts := make([]string, 0, 2)

	if len(e.NotFound) > 0 {
		parts = append(parts, "not found: "+strings.Join(e.NotFound, ", "))
	}

	if len(e.NotReady) > 0 {
		parts = append(parts, "not ready: "+strings.Join(e.NotReady, ", "))
	}

	return "datasets unavailable (" + strings.Join(parts, "; ") + ")"
}

// Is matches ErrDatasetsNotFound first, because a missing input outranks a
// pending one.
func (e *ReadinessError) Is(target error) bool {
	switch target {
	case ErrDatasetsNotFound:
		return len(e.NotFound) > 0
	case ErrDatasetsNotReady:
		return len(e.NotFound) == 0 && len(e.NotReady) > 0
	default:
		return false
	}
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTriggerTypeImmutable) ||
		errors.Is(err, schedule.ErrInvalidScheduleExpression) ||
		errors.Is(err, schedule.ErrInvalidTimezone)
}

// IsIntegrityError checks if an error breaks a graph invariant (HTTP 422).
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrSelfDependency) ||
		errors.Is(err, ErrCircularDependency) ||
		errors.Is(err, ErrUpstreamNotFound)
}

// IsNotFoundError checks if an error references an unknown entity (HTTP 404).
func IsNotFoundError(err error) bool {
	return persistence.IsNotFound(err) || errors.Is(err, ErrDatasetsNotFound)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAmbiguousDataset)
}

// IsNotReadyError checks if resolved datasets are not ready for consumption (HTTP 409).
func IsNotReadyError(err error) bool {
	return errors.Is(err, ErrDatasetsNotReady)
}
