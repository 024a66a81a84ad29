package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/service"
)

// BatchHandler serves all-or-nothing batch writes.
type BatchHandler struct {
	svc BatchService
	log *logrus.Logger
}

// NewBatchHandler creates a BatchHandler with the given service and logger.
func NewBatchHandler(svc BatchService, log *logrus.Logger) *BatchHandler {
	return &BatchHandler{svc: svc, log: log}
}

type batchNodesBody struct {
	Nodes []models.CreateNodeRequest `json:"nodes" binding:"required"`
}

type batchEdgesBody struct {
	Edges []models.CreateEdgeRequest `json:"edges" binding:"required"`
}

// Nodes handles POST /api/v1/batch/nodes.
func (h *BatchHandler) Nodes(c *gin.Context) {
	var body batchNodesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: nodes array is required")

		return
	}

	if !checkBatchSize(c, len(body.Nodes)) {
		return
	}

	nodes, err := h.svc.BatchCreateNodes(c.Request.Context(), body.Nodes)
	if err != nil {
		respondServiceError(c, h.log, "batch.nodes", err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "batch.nodes", "count": len(nodes)}).Debug("audit")

	c.JSON(http.StatusCreated, gin.H{"nodes": nodes, "count": len(nodes)})
}

// Edges handles POST /api/v1/batch/edges.
func (h *BatchHandler) Edges(c *gin.Context) {
	var body batchEdgesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body: edges array is required")

		return
	}

	if !checkBatchSize(c, len(body.Edges)) {
		return
	}

	edges, err := h.svc.BatchCreateEdges(c.Request.Context(), body.Edges)
	if err != nil {
		respondServiceError(c, h.log, "batch.edges", err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "batch.edges", "count": len(edges)}).Debug("audit")

	c.JSON(http.StatusCreated, gin.H{"edges": edges, "count": len(edges)})
}

func checkBatchSize(c *gin.Context, n int) bool {
	if n > service.MaxBatchSize {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest,
			fmt.Sprintf("batch of %d exceeds the limit of %d", n, service.MaxBatchSize))

		return false
	}

	return true
}
