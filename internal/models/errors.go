package models

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for request validation.
var (
	ErrMissingLabel  = errors.New("label is required")
	ErrMissingSource = errors.New("from_id is required")
	ErrMissingTarget = errors.New("to_id is required")
	ErrEmptyPatch    = errors.New("properties must not be empty")
)

// Sentinel errors for entity lookups.
var (
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")
)

// ErrDuplicateKey indicates a unique constraint violation (maps to HTTP 409 Conflict).
var ErrDuplicateKey = errors.New("duplicate key")

// ErrPoolExhausted is returned when no handle became available before the acquire timeout.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ErrNotConnected is returned by operations on a database that has not been connected.
var ErrNotConnected = errors.New("database not connected")

// ErrFieldTooLong returns an error indicating a field exceeds its maximum length.
func ErrFieldTooLong(field string, maxLen int) error {
	return fmt.Errorf("%s exceeds maximum length of %d", field, maxLen)
}

// ValidationKind classifies an ontology violation.
type ValidationKind string

// Validation kinds.
const (
	MissingField     ValidationKind = "missing_field"
	TypeMismatch     ValidationKind = "type_mismatch"
	UnknownLabel     ValidationKind = "unknown_label"
	UnknownField     ValidationKind = "unknown_field"
	EndpointMismatch ValidationKind = "endpoint_mismatch"
	ParallelEdge     ValidationKind = "parallel_edge"
)

// ValidationError reports a schema violation. It is never sent to a backend.
type ValidationError struct {
	Kind   ValidationKind `json:"kind"`
	Label  string         `json:"label"`
	Field  string         `json:"field,omitempty"`
	Detail string         `json:"detail,omitempty"`
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("validation failed for %q: %s", e.Label, e.Kind)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %q)", e.Field)
	}

	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	return msg
}

// ConnectionError reports an unreachable backend or an authentication failure. Retryable.
type ConnectionError struct {
	Backend string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: connection error: %v", e.Backend, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError reports a malformed plan or a backend-side execution fault. Not retried.
type QueryError struct {
	Reason string
	Err    error
}

func (e *QueryError) Error() string {
	if e.Err == nil {
		return "query error: " + e.Reason
	}

	return fmt.Sprintf("query error: %s: %v", e.Reason, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ProviderError reports a failure of the external LLM capability.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying after a backoff.
func IsRetryable(err error) bool {
	var connErr *ConnectionError

	switch {
	case errors.As(err, &connErr):
		return true
	case errors.Is(err, ErrPoolExhausted):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	return false
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError

	return errors.As(err, &ve)
}
