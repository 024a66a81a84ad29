package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/models"
)

// EdgeHandler serves edge CRUD endpoints.
type EdgeHandler struct {
	svc EdgeService
	log *logrus.Logger
}

// NewEdgeHandler creates an EdgeHandler with the given service and logger.
func NewEdgeHandler(svc EdgeService, log *logrus.Logger) *EdgeHandler {
	return &EdgeHandler{svc: svc, log: log}
}

// Create handles POST /api/v1/edges.
func (h *EdgeHandler) Create(c *gin.Context) {
	var req models.CreateEdgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	if err := req.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	edge, err := h.svc.CreateEdge(c.Request.Context(), req.From, req.To, req.Label, req.Properties)
	if err != nil {
		respondServiceError(c, h.log, "edge.create", err)

		return
	}

	h.log.WithFields(logrus.Fields{
		"action": "edge.create", "edge_id": edge.ID,
		"from": edge.From, "to": edge.To, "label": edge.Label,
	}).Debug("audit")

	c.JSON(http.StatusCreated, edge)
}

// Get handles GET /api/v1/edges/:id.
func (h *EdgeHandler) Get(c *gin.Context) {
	edgeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	edge, err := h.svc.GetEdge(c.Request.Context(), edgeID)
	if err != nil {
		respondServiceError(c, h.log, "edge.get", err)

		return
	}

	c.JSON(http.StatusOK, edge)
}

// Update handles PATCH /api/v1/edges/:id.
func (h *EdgeHandler) Update(c *gin.Context) {
	edgeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	if err := req.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	edge, err := h.svc.UpdateEdge(c.Request.Context(), edgeID, req.Properties)
	if err != nil {
		respondServiceError(c, h.log, "edge.update", err)

		return
	}

	c.JSON(http.StatusOK, edge)
}

// Delete handles DELETE /api/v1/edges/:id.
func (h *EdgeHandler) Delete(c *gin.Context) {
	edgeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteEdge(c.Request.Context(), edgeID); err != nil {
		respondServiceError(c, h.log, "edge.delete", err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "edge.delete", "edge_id": edgeID}).Debug("audit")

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ListForNode handles GET /api/v1/nodes/:id/edges?label=&direction=.
func (h *EdgeHandler) ListForNode(c *gin.Context) {
	nodeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	dir := models.Direction(c.DefaultQuery("direction", string(models.DirectionBoth)))
	switch dir {
	case models.DirectionOut, models.DirectionIn, models.DirectionBoth:
	default:
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "direction must be one of out, in, both")

		return
	}

	edges, err := h.svc.ListEdges(c.Request.Context(), nodeID, c.Query("label"), dir)
	if err != nil {
		respondServiceError(c, h.log, "edge.list", err)

		return
	}

	if edges == nil {
		edges = []models.Edge{}
	}

	c.JSON(http.StatusOK, gin.H{"edges": edges})
}
