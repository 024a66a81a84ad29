package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/txn"
)

// TransactionHandler applies operation lists atomically.
type TransactionHandler struct {
	svc TransactionService
	log *logrus.Logger
}

// NewTransactionHandler creates a TransactionHandler.
func NewTransactionHandler(svc TransactionService, log *logrus.Logger) *TransactionHandler {
	return &TransactionHandler{svc: svc, log: log}
}

// TransactionRequest is the POST /transactions payload.
type TransactionRequest struct {
	Operations []txn.Op `json:"operations" binding:"required,min=1"`
}

// Execute handles POST /api/v1/transactions. Either every operation applies or
// none does; a failure reports the index of the offending operation.
func (h *TransactionHandler) Execute(c *gin.Context) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: operations must be a non-empty array")

		return
	}

	if !checkBatchSize(c, len(req.Operations)) {
		return
	}

	outcomes, err := h.svc.RunTransaction(c.Request.Context(), req.Operations)
	if err != nil {
		respondServiceError(c, h.log, "transaction", err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "transaction", "operations": len(outcomes)}).Debug("audit")

	c.JSON(http.StatusOK, gin.H{"committed": true, "outcomes": outcomes})
}
