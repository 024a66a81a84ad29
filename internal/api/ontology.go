package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/ontology"
)

// OntologyHandler serves the type registry.
type OntologyHandler struct {
	svc OntologyService
	log *logrus.Logger
}

// NewOntologyHandler creates an OntologyHandler.
func NewOntologyHandler(svc OntologyService, log *logrus.Logger) *OntologyHandler {
	return &OntologyHandler{svc: svc, log: log}
}

type ontologyResponse struct {
	Version   uint64          `json:"version"`
	NodeTypes []ontology.Type `json:"node_types"`
	EdgeTypes []ontology.Type `json:"edge_types"`
	Summary   string          `json:"summary"`
}

// Get handles GET /api/v1/ontology.
func (h *OntologyHandler) Get(c *gin.Context) {
	reg := h.svc.Ontology()

	resp := ontologyResponse{
		Version:   reg.Version(),
		NodeTypes: []ontology.Type{},
		EdgeTypes: []ontology.Type{},
		Summary:   reg.Summary(),
	}

	for _, t := range reg.Types() {
		if t.Kind == ontology.EdgeKind {
			resp.EdgeTypes = append(resp.EdgeTypes, t)
		} else {
			resp.NodeTypes = append(resp.NodeTypes, t)
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Register handles POST /api/v1/ontology. Registering an existing name
// replaces its schema and bumps the ontology version.
func (h *OntologyHandler) Register(c *gin.Context) {
	var t ontology.Type
	if err := c.ShouldBindJSON(&t); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	if t.Kind != ontology.NodeKind && t.Kind != ontology.EdgeKind {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "kind must be node or edge")

		return
	}

	for name, pt := range t.Properties {
		parsed, err := ontology.ParseType(string(pt))
		if err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "property "+name+": "+err.Error())

			return
		}

		t.Properties[name] = parsed
	}

	if err := h.svc.RegisterType(t); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())

		return
	}

	version := h.svc.Ontology().Version()

	h.log.WithFields(logrus.Fields{"action": "ontology.register", "kind": t.Kind, "name": t.Name, "version": version}).Info("audit")

	c.JSON(http.StatusCreated, gin.H{"registered": t.Name, "kind": t.Kind, "version": version})
}
