package local

import (
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
)

// document is the on-disk layout of the embedded store.
type document struct {
	Nodes           map[string]models.Node `json:"nodes"`
	Edges           map[string]models.Edge `json:"edges"`
	OntologyVersion uint64                 `json:"ontology_version"`
}

func newDocument() *document {
	return &document{
		Nodes: make(map[string]models.Node),
		Edges: make(map[string]models.Edge),
	}
}

// clone copies the maps. Node and edge values are copied too; property maps are
// shared, so mutations must replace them rather than write through.
func (d *document) clone() *document {
	return &document{
		Nodes:           maps.Clone(d.Nodes),
		Edges:           maps.Clone(d.Edges),
		OntologyVersion: d.OntologyVersion,
	}
}

func (d *document) createNode(req models.CreateNodeRequest, now time.Time) (models.Node, error) {
	if _, exists := d.Nodes[req.ID]; exists {
		return models.Node{}, fmt.Errorf("node %s: %w", req.ID, models.ErrDuplicateKey)
	}

	n := backend.NewNode(req, now).Clone()
	d.Nodes[n.ID] = n

	return n.Clone(), nil
}

func (d *document) updateNode(id string, props map[string]any, now time.Time) (models.Node, error) {
	n, ok := d.Nodes[id]
	if !ok {
		return models.Node{}, models.ErrNodeNotFound
	}

	n = n.Clone()
	n.MergeProperties(props)
	n.UpdatedAt = now
	d.Nodes[id] = n

	return n.Clone(), nil
}

func (d *document) deleteNode(id string) (int, error) {
	if _, ok := d.Nodes[id]; !ok {
		return 0, models.ErrNodeNotFound
	}

	removed := 0

	for eid, e := range d.Edges {
		if e.From == id || e.To == id {
			delete(d.Edges, eid)
			removed++
		}
	}

	delete(d.Nodes, id)

	return removed, nil
}

func (d *document) createEdge(req models.CreateEdgeRequest, now time.Time) (models.Edge, error) {
	if _, exists := d.Edges[req.ID]; exists {
		return models.Edge{}, fmt.Errorf("edge %s: %w", req.ID, models.ErrDuplicateKey)
	}

	if _, ok := d.Nodes[req.From]; !ok {
		return models.Edge{}, fmt.Errorf("source %s: %w", req.From, models.ErrNodeNotFound)
	}

	if _, ok := d.Nodes[req.To]; !ok {
		return models.Edge{}, fmt.Errorf("target %s: %w", req.To, models.ErrNodeNotFound)
	}

	e := backend.NewEdge(req, now).Clone()
	d.Edges[e.ID] = e

	return e.Clone(), nil
}

func (d *document) updateEdge(id string, props map[string]any, now time.Time) (models.Edge, error) {
	e, ok := d.Edges[id]
	if !ok {
		return models.Edge{}, models.ErrEdgeNotFound
	}

	e = e.Clone()
	maps.Copy(e.Properties, props)
	e.UpdatedAt = now
	d.Edges[id] = e

	return e.Clone(), nil
}

func (d *document) deleteEdge(id string) error {
	if _, ok := d.Edges[id]; !ok {
		return models.ErrEdgeNotFound
	}

	delete(d.Edges, id)

	return nil
}

// sortedNodes returns cloned nodes ordered by id.
func (d *document) sortedNodes(keep func(models.Node) bool) []models.Node {
	out := make([]models.Node, 0, len(d.Nodes))

	for _, n := range d.Nodes {
		if keep(n) {
			out = append(out, n.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// sortedEdges returns cloned edges ordered by id.
func (d *document) sortedEdges(keep func(models.Edge) bool) []models.Edge {
	out := make([]models.Edge, 0)

	for _, e := range d.Edges {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}
