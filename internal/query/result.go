package query

import (
	"maps"
	"slices"

	"github.com/persistorai/graphrouter/internal/models"
)

// Element is one step of a path: exactly one of Node or Edge is set.
type Element struct {
	Node *models.Node `json:"node,omitempty"`
	Edge *models.Edge `json:"edge,omitempty"`
}

// Path is an alternating Node, Edge, Node, ... sequence.
type Path []Element

// Len returns the number of edges in the path.
func (p Path) Len() int { return len(p) / 2 }

// Nodes returns the nodes of the path in order.
func (p Path) Nodes() []models.Node {
	out := make([]models.Node, 0, len(p)/2+1)
	for _, el := range p {
		if el.Node != nil {
			out = append(out, *el.Node)
		}
	}

	return out
}

// Edges returns the edges of the path in order.
func (p Path) Edges() []models.Edge {
	out := make([]models.Edge, 0, len(p)/2)
	for _, el := range p {
		if el.Edge != nil {
			out = append(out, *el.Edge)
		}
	}

	return out
}

// Row is one aggregate output group.
type Row struct {
	Key    any            `json:"key"`
	Values map[string]any `json:"values"`
}

// Result is the outcome of executing a plan. Exactly one of Nodes, Paths or
// Rows is meaningful, depending on the plan shape.
type Result struct {
	Nodes    []models.Node       `json:"nodes,omitempty"`
	Paths    []Path              `json:"paths,omitempty"`
	Rows     []Row               `json:"rows,omitempty"`
	Scores   map[string]float64  `json:"scores,omitempty"`
	Total    int                 `json:"total"`
	Merged   map[string][]string `json:"merged,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
	Cached   bool                `json:"cached,omitempty"`
}

// NodeIDs returns the ids of the result nodes in order.
func (r *Result) NodeIDs() []string {
	ids := make([]string, len(r.Nodes))
	for i, n := range r.Nodes {
		ids[i] = n.ID
	}

	return ids
}

// Clone returns a deep copy of the result. Property values keep their
// concrete types.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}

	out := *r

	if r.Nodes != nil {
		out.Nodes = make([]models.Node, len(r.Nodes))
		for i, n := range r.Nodes {
			out.Nodes[i] = n.Clone()
		}
	}

	if r.Paths != nil {
		out.Paths = make([]Path, len(r.Paths))
		for i, p := range r.Paths {
			out.Paths[i] = p.clone()
		}
	}

	if r.Rows != nil {
		out.Rows = make([]Row, len(r.Rows))
		for i, row := range r.Rows {
			out.Rows[i] = Row{Key: models.CloneValue(row.Key), Values: cloneValues(row.Values)}
		}
	}

	out.Scores = maps.Clone(r.Scores)
	out.Warnings = slices.Clone(r.Warnings)

	if r.Merged != nil {
		out.Merged = make(map[string][]string, len(r.Merged))
		for k, v := range r.Merged {
			out.Merged[k] = slices.Clone(v)
		}
	}

	return &out
}

func (p Path) clone() Path {
	if p == nil {
		return nil
	}

	out := make(Path, len(p))

	for i, el := range p {
		if el.Node != nil {
			n := el.Node.Clone()
			out[i].Node = &n
		}

		if el.Edge != nil {
			e := el.Edge.Clone()
			out[i].Edge = &e
		}
	}

	return out
}

func cloneValues(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	return models.CloneProperties(m)
}
