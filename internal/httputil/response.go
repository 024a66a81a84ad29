// Package httputil provides shared HTTP response helpers.
package httputil

import "github.com/gin-gonic/gin"

// RequestIDKey is the gin context key holding the request ID.
const RequestIDKey = "request_id"

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// RespondError writes a standardized JSON error response and aborts the request.
func RespondError(c *gin.Context, status int, code, message string) {
	RespondErrorDetails(c, status, code, message, nil)
}

// RespondErrorDetails is RespondError with a structured details payload, such
// as the violated field of a schema error.
func RespondErrorDetails(c *gin.Context, status int, code, message string, details any) {
	body := ErrorBody{Code: code, Message: message, Details: details}

	if rid, ok := c.Get(RequestIDKey); ok {
		body.RequestID, _ = rid.(string)
	}

	c.AbortWithStatusJSON(status, body)
}
