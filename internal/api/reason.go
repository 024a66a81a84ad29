package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ReasonHandler runs chain-of-thought retrieval.
type ReasonHandler struct {
	reasoner Reasoner
	log      *logrus.Logger
}

// NewReasonHandler creates a ReasonHandler. A nil reasoner answers 503.
func NewReasonHandler(reasoner Reasoner, log *logrus.Logger) *ReasonHandler {
	return &ReasonHandler{reasoner: reasoner, log: log}
}

// ReasonRequest is the POST /reason payload.
type ReasonRequest struct {
	Question string `json:"question" binding:"required,max=4000"`
}

// Reason handles POST /api/v1/reason.
func (h *ReasonHandler) Reason(c *gin.Context) {
	if h.reasoner == nil {
		respondError(c, http.StatusServiceUnavailable, ErrCodeNotConfigured, "reasoning requires LLM_ENABLED=true")

		return
	}

	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "question is required and must be at most 4000 characters")

		return
	}

	ans, err := h.reasoner.Run(c.Request.Context(), req.Question)
	if err != nil {
		respondServiceError(c, h.log, "reason", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action": "reason", "iterations": ans.Iterations,
		"stop_reason": ans.StopReason, "exhausted": ans.Exhausted,
	}).Debug("audit")

	c.JSON(http.StatusOK, ans)
}
