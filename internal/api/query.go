package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/query"
	"github.com/persistorai/graphrouter/internal/service"
)

// QueryHandler executes JSON query plans.
type QueryHandler struct {
	svc QueryService
	log *logrus.Logger
}

// NewQueryHandler creates a QueryHandler with the given service and logger.
func NewQueryHandler(svc QueryService, log *logrus.Logger) *QueryHandler {
	return &QueryHandler{svc: svc, log: log}
}

// QueryRequest is the POST /query payload.
type QueryRequest struct {
	Plan    query.Spec          `json:"plan"`
	Options service.ExecOptions `json:"options"`
}

// Execute handles POST /api/v1/query.
func (h *QueryHandler) Execute(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	if req.Options.MergeThreshold < 0 || req.Options.MergeThreshold > 1 {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "merge_threshold must be between 0 and 1")

		return
	}

	plan, err := req.Plan.Build()
	if err != nil {
		respondServiceError(c, h.log, "query", err)

		return
	}

	res, err := h.svc.Execute(c.Request.Context(), plan, req.Options)
	if err != nil {
		respondServiceError(c, h.log, "query", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action": "query", "plan": req.Plan.String(),
		"total": res.Total, "cached": res.Cached, "merge": req.Options.MergeOnQuery,
	}).Debug("audit")

	c.JSON(http.StatusOK, res)
}
