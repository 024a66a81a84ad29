package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/httputil"
	"github.com/persistorai/graphrouter/internal/metrics"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/service"
	"github.com/persistorai/graphrouter/internal/txn"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest  = "invalid_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeInternalError   = "internal_error"
	ErrCodeRateLimited     = "rate_limited"
	ErrCodeValidationError = "validation_error"
	ErrCodeInvalidQuery    = "invalid_query"
	ErrCodeConflict        = "conflict"
	ErrCodeUnavailable     = "backend_unavailable"
	ErrCodeProviderError   = "provider_error"
	ErrCodeNotConfigured   = "not_configured"
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// batchDetails locates a failure inside a list payload.
type batchDetails struct {
	Index      int                     `json:"index"`
	Kind       txn.Kind                `json:"kind,omitempty"`
	Validation *models.ValidationError `json:"validation,omitempty"`
}

// respondServiceError maps a service error onto a status and code. Only
// unexpected errors are logged; the rest are the caller's fault or transient.
func respondServiceError(c *gin.Context, log *logrus.Logger, op string, err error) {
	status, code := classify(err)

	var details any

	var (
		ve    *models.ValidationError
		batch *service.BatchError
		opErr *txn.OpError
	)

	switch {
	case errors.As(err, &batch):
		bd := batchDetails{Index: batch.Index}
		if errors.As(err, &ve) {
			bd.Validation = ve
		}

		details = bd
	case errors.As(err, &opErr):
		bd := batchDetails{Index: opErr.Index, Kind: opErr.Kind}
		if errors.As(err, &ve) {
			bd.Validation = ve
		}

		details = bd
	case errors.As(err, &ve):
		details = ve
	}

	message := err.Error()

	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("op", op).Error("request failed")

		message = "internal server error"
	} else if status == http.StatusServiceUnavailable || status == http.StatusBadGateway {
		log.WithError(err).WithField("op", op).Warn("dependency unavailable")
	}

	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondErrorDetails(c, status, code, message, details)
}

func classify(err error) (int, string) {
	var (
		qe  *models.QueryError
		ce  *models.ConnectionError
		pe  *models.ProviderError
		be  *service.BatchError
		ope *txn.OpError
	)

	switch {
	case models.IsValidation(err):
		return http.StatusUnprocessableEntity, ErrCodeValidationError
	case errors.Is(err, models.ErrNodeNotFound), errors.Is(err, models.ErrEdgeNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, models.ErrDuplicateKey):
		return http.StatusConflict, ErrCodeConflict
	case errors.As(err, &qe):
		return http.StatusBadRequest, ErrCodeInvalidQuery
	case errors.Is(err, models.ErrNotConnected), errors.Is(err, models.ErrPoolExhausted), errors.As(err, &ce):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.As(err, &pe):
		return http.StatusBadGateway, ErrCodeProviderError
	case errors.As(err, &be), errors.As(err, &ope), isRequestError(err):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	}

	return http.StatusInternalServerError, ErrCodeInternalError
}

// isRequestError reports the payload errors raised by request validation.
func isRequestError(err error) bool {
	return errors.Is(err, models.ErrMissingLabel) ||
		errors.Is(err, models.ErrMissingSource) ||
		errors.Is(err, models.ErrMissingTarget) ||
		errors.Is(err, txn.ErrUnknownKind) ||
		errors.Is(err, models.ErrEmptyPatch)
}
