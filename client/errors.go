package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError represents a structured error response from the graphrouter API.
type APIError struct {
	StatusCode int             `json:"-"`
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	RequestID  string          `json:"request_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	RetryAfter string          `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graphrouter: %d %s: %s (request_id=%s)", e.StatusCode, e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("graphrouter: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// FailedIndex returns the position of the failing item of a batch or
// transaction, when the server reported one.
func (e *APIError) FailedIndex() (int, bool) {
	var d struct {
		Index *int `json:"index"`
	}
	if len(e.Details) == 0 || json.Unmarshal(e.Details, &d) != nil || d.Index == nil {
		return 0, false
	}
	return *d.Index, true
}

func statusOf(err error) int {
	var e *APIError
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsNotFound returns true if the error is a 404 not found.
func IsNotFound(err error) bool { return statusOf(err) == http.StatusNotFound }

// IsValidation returns true if a write was rejected by the ontology.
func IsValidation(err error) bool { return statusOf(err) == http.StatusUnprocessableEntity }

// IsConflict returns true if the error is a 409 conflict.
func IsConflict(err error) bool { return statusOf(err) == http.StatusConflict }

// IsRateLimited returns true if the error is a 429 rate limit.
func IsRateLimited(err error) bool { return statusOf(err) == http.StatusTooManyRequests }

// IsRetryable returns true for failures worth retrying after a backoff: rate
// limiting and an unavailable backend.
func IsRetryable(err error) bool {
	s := statusOf(err)
	return s == http.StatusTooManyRequests || s == http.StatusServiceUnavailable
}

// parseAPIError attempts to decode a JSON error body; falls back to raw text.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = "unknown"
		apiErr.Message = string(body)
	}
	return apiErr
}
