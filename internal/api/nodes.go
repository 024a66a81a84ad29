package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
	"github.com/persistorai/graphrouter/internal/service"
)

// NodeHandler serves node CRUD endpoints.
type NodeHandler struct {
	svc NodeService
	log *logrus.Logger
}

// NewNodeHandler creates a NodeHandler with the given service and logger.
func NewNodeHandler(svc NodeService, log *logrus.Logger) *NodeHandler {
	return &NodeHandler{svc: svc, log: log}
}

// createNodeBody is the POST /nodes payload.
type createNodeBody struct {
	Label      string               `json:"label"`
	Properties map[string]any       `json:"properties"`
	Dedup      service.DedupOptions `json:"dedup"`
}

// List handles GET /api/v1/nodes. It is a label-filtered, paginated query.
func (h *NodeHandler) List(c *gin.Context) {
	b := query.NewBuilder()
	if label := c.Query("label"); label != "" {
		b.LabelEquals(label)
	}

	plan, err := b.Page(parseOffset(c.Query("offset")), parseInt(c.Query("limit"), 50)).Build()
	if err != nil {
		respondServiceError(c, h.log, "node.list", err)

		return
	}

	res, err := h.svc.Execute(c.Request.Context(), plan, service.ExecOptions{})
	if err != nil {
		respondServiceError(c, h.log, "node.list", err)

		return
	}

	nodes := res.Nodes
	if nodes == nil {
		nodes = []models.Node{}
	}

	c.JSON(http.StatusOK, gin.H{"nodes": nodes, "total": res.Total, "cached": res.Cached})
}

// Create handles POST /api/v1/nodes. A deduplicated write that merged into an
// existing node answers 200 instead of 201.
func (h *NodeHandler) Create(c *gin.Context) {
	var body createNodeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	req := models.CreateNodeRequest{Label: body.Label, Properties: body.Properties}
	if err := req.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	res, err := h.svc.CreateNode(c.Request.Context(), body.Label, body.Properties, body.Dedup)
	if err != nil {
		respondServiceError(c, h.log, "node.create", err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "node.create", "node_id": res.Node.ID, "merged": res.Merged}).Debug("audit")

	status := http.StatusCreated
	if res.Merged {
		status = http.StatusOK
	}

	c.JSON(status, res)
}

// Get handles GET /api/v1/nodes/:id.
func (h *NodeHandler) Get(c *gin.Context) {
	nodeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	node, err := h.svc.GetNode(c.Request.Context(), nodeID)
	if err != nil {
		respondServiceError(c, h.log, "node.get", err)

		return
	}

	c.JSON(http.StatusOK, node)
}

// Update handles PATCH /api/v1/nodes/:id. Supplied properties overwrite
// existing ones; the rest are kept.
func (h *NodeHandler) Update(c *gin.Context) {
	nodeID, ok := pathID(c, "id")
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

	node, err := h.svc.UpdateNode(c.Request.Context(), nodeID, req.Properties)
	if err != nil {
		respondServiceError(c, h.log, "node.update", err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "node.update", "node_id": nodeID}).Debug("audit")

	c.JSON(http.StatusOK, node)
}

// Delete handles DELETE /api/v1/nodes/:id.
func (h *NodeHandler) Delete(c *gin.Context) {
	nodeID, ok := pathID(c, "id")
	if !ok {
		return
	}

	removed, err := h.svc.DeleteNode(c.Request.Context(), nodeID)
	if err != nil {
		respondServiceError(c, h.log, "node.delete", err)

		return
	}

	h.log.WithFields(logrus.Fields{"action": "node.delete", "node_id": nodeID, "removed_edges": removed}).Debug("audit")

	c.JSON(http.StatusOK, gin.H{"deleted": true, "removed_edges": removed})
}
