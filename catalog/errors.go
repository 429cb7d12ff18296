package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a dataset or one of its records does not
// exist.
var ErrNotFound = errors.New("not found")

// ValidationError collects user-correctable problems keyed by field name.
type ValidationError struct {
	Fields map[string][]string
}

// NewValidationError returns a ValidationError with a single message.
func NewValidationError(field, msg string) *ValidationError {
	verr := &ValidationError{}
	verr.Add(field, msg)
	return verr
}

// Add appends a message to the given field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Merge copies every message of other into e.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	for field, msgs := range other.Fields {
		for _, msg := range msgs {
			e.Add(field, msg)
		}
	}
}

// Empty reports whether no messages were collected.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil returns nil when no messages were collected. It avoids returning a
// typed nil pointer through the error interface.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], " ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ConflictError reports an operation whose preconditions about other
// records do not hold, e.g. an existing draft or preservation copy.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Field, e.Message)
}

// ServiceUnavailableError wraps a failure of an external service. The
// operation can be retried.
type ServiceUnavailableError struct {
	Service string
	Err     error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable, try again later: %v", e.Service, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// LockUnavailableError is returned when a row lock cannot be acquired.
type LockUnavailableError struct {
	Resource string
	Err      error
}

func (e *LockUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("lock unavailable on %s", e.Resource)
	}
	return fmt.Sprintf("lock unavailable on %s: %v", e.Resource, e.Err)
}

func (e *LockUnavailableError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying as a whole operation.
func IsRetryable(err error) bool {
	var svcErr *ServiceUnavailableError
	if errors.As(err, &svcErr) {
		return true
	}
	var lockErr *LockUnavailableError
	return errors.As(err, &lockErr)
}

// ErrorKind classifies err for transports and metrics.
func ErrorKind(err error) string {
	var (
		verr    *ValidationError
		confErr *ConflictError
		svcErr  *ServiceUnavailableError
		lockErr *LockUnavailableError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &confErr):
		return "conflict"
	case errors.As(err, &svcErr):
		return "service_unavailable"
	case errors.As(err, &lockErr):
		return "lock_unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
