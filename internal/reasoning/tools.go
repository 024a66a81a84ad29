package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/persistorai/graphrouter/internal/llm"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

const defaultToolLimit = 10

var toolOrder = []string{
	"query",
	"vector_search",
	"get_node",
	"get_edges",
	"get_connected_nodes",
	"get_node_by_property",
	"get_nodes_with_property",
}

type tool struct {
	spec llm.Tool
	run  func(ctx context.Context, in args) (any, error)
}

func (r *Retriever) toolset() map[string]tool {
	return map[string]tool{
		"query": {
			spec: llm.Tool{
				Name:        "query",
				Description: "Filter nodes by label and property values.",
				Example:     `{"filters": {"label": "Person", "name": "John Doe"}, "sort_key": "name", "limit": 10}`,
			},
			run: r.query,
		},
		"vector_search": {
			spec: llm.Tool{
				Name:        "vector_search",
				Description: "Find nodes whose embedding is closest to a text.",
				Example:     `{"embedding_field": "embedding", "query_text": "software engineer", "k": 5}`,
			},
			run: r.vectorSearch,
		},
		"get_node": {
			spec: llm.Tool{
				Name:        "get_node",
				Description: "Fetch one node by id.",
				Example:     `{"node_id": "abc123"}`,
			},
			run: r.getNode,
		},
		"get_edges": {
			spec: llm.Tool{
				Name:        "get_edges",
				Description: "List edges of a node, optionally by type and direction (out, in, both).",
				Example:     `{"node_id": "abc123", "edge_type": "friend", "direction": "both"}`,
			},
			run: r.getEdges,
		},
		"get_connected_nodes": {
			spec: llm.Tool{
				Name:        "get_connected_nodes",
				Description: "List the nodes at the other end of a node's edges.",
				Example:     `{"node_id": "abc123", "edge_type": "friend", "direction": "both"}`,
			},
			run: r.getConnected,
		},
		"get_node_by_property": {
			spec: llm.Tool{
				Name:        "get_node_by_property",
				Description: "Fetch the first node whose property equals a value.",
				Example:     `{"property_name": "name", "value": "Alice"}`,
			},
			run: r.getNodeByProperty,
		},
		"get_nodes_with_property": {
			spec: llm.Tool{
				Name:        "get_nodes_with_property",
				Description: "List nodes that have a property set.",
				Example:     `{"property_name": "email"}`,
			},
			run: r.getNodesWithProperty,
		},
	}
}

// args is the decoded action input of one step.
type args map[string]any

func (a args) str(key string) string {
	s, _ := a[key].(string)

	return strings.TrimSpace(s)
}

func (a args) required(key string) (string, error) {
	s := a.str(key)
	if s == "" {
		return "", fmt.Errorf("missing %q", key)
	}

	return s, nil
}

func (a args) num(key string, def float64) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}

	return def
}

func (a args) direction() (models.Direction, error) {
	switch d := models.Direction(strings.ToLower(a.str("direction"))); d {
	case "":
		return models.DirectionBoth, nil
	case models.DirectionOut, models.DirectionIn, models.DirectionBoth:
		return d, nil
	default:
		return "", fmt.Errorf("direction must be out, in or both, got %q", d)
	}
}

func (r *Retriever) query(ctx context.Context, in args) (any, error) {
	b := query.NewBuilder()

	filters, _ := in["filters"].(map[string]any)
	for _, k := range slices.Sorted(maps.Keys(filters)) {
		v := filters[k]
		if strings.EqualFold(k, "label") {
			label, ok := v.(string)
			if !ok {
				return nil, errors.New("label filter must be a string")
			}

			b.LabelEquals(label)

			continue
		}

		b.PropertyEquals(k, v)
	}

	if key := in.str("sort_key"); key != "" {
		desc, _ := in["sort_reverse"].(bool)
		b.OrderBy(key, desc)
	}

	b.Page(0, int(in.num("limit", defaultToolLimit)))

	return r.nodes(ctx, b)
}

func (r *Retriever) vectorSearch(ctx context.Context, in args) (any, error) {
	if r.embedder == nil {
		return nil, errors.New("no embedder configured")
	}

	field, err := in.required("embedding_field")
	if err != nil {
		return nil, err
	}

	text, err := in.required("query_text")
	if err != nil {
		return nil, err
	}

	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query text: %w", err)
	}

	b := query.NewBuilder().VectorNearest(field, vec, int(in.num("k", defaultToolLimit)), in.num("min_score", 0))
	if label := in.str("label"); label != "" {
		b.LabelEquals(label)
	}

	return r.nodes(ctx, b)
}

func (r *Retriever) getNode(ctx context.Context, in args) (any, error) {
	id, err := in.required("node_id")
	if err != nil {
		return nil, err
	}

	n, err := r.graph.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}

	return view(*n), nil
}

func (r *Retriever) getEdges(ctx context.Context, in args) (any, error) {
	id, err := in.required("node_id")
	if err != nil {
		return nil, err
	}

	dir, err := in.direction()
	if err != nil {
		return nil, err
	}

	return r.graph.ListEdges(ctx, id, in.str("edge_type"), dir)
}

func (r *Retriever) getConnected(ctx context.Context, in args) (any, error) {
	id, err := in.required("node_id")
	if err != nil {
		return nil, err
	}

	dir, err := in.direction()
	if err != nil {
		return nil, err
	}

	edges, err := r.graph.ListEdges(ctx, id, in.str("edge_type"), dir)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	out := make([]map[string]any, 0, len(edges))

	for _, e := range edges {
		other := e.To
		if other == id {
			other = e.From
		}

		if seen[other] {
			continue
		}

		seen[other] = true

		n, err := r.graph.GetNode(ctx, other)
		if err != nil {
			if errors.Is(err, models.ErrNodeNotFound) {
				continue
			}

			return nil, err
		}

		v := view(*n)
		v["via"] = e.Label
		out = append(out, v)
	}

	return out, nil
}

func (r *Retriever) getNodeByProperty(ctx context.Context, in args) (any, error) {
	name, err := in.required("property_name")
	if err != nil {
		return nil, err
	}

	value, ok := in["value"]
	if !ok {
		return nil, errors.New(`missing "value"`)
	}

	res, err := r.nodes(ctx, query.NewBuilder().PropertyEquals(name, value).Page(0, 1))
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, models.ErrNodeNotFound
	}

	return res[0], nil
}

func (r *Retriever) getNodesWithProperty(ctx context.Context, in args) (any, error) {
	name, err := in.required("property_name")
	if err != nil {
		return nil, err
	}

	b := query.NewBuilder().
		Where("has:"+name, func(n models.Node) bool {
			v, ok := n.Properties[name]

			return ok && v != nil
		}).
		Page(0, int(in.num("limit", defaultToolLimit)))

	return r.nodes(ctx, b)
}

func (r *Retriever) nodes(ctx context.Context, b *query.Builder) ([]map[string]any, error) {
	plan, err := b.Build()
	if err != nil {
		return nil, err
	}

	res, err := r.graph.Query(ctx, plan)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, len(res.Nodes))
	for i, n := range res.Nodes {
		out[i] = view(n)
	}

	return out, nil
}

// view is the compact node form shown to the reasoner.
func view(n models.Node) map[string]any {
	return map[string]any{
		"id":         n.ID,
		"label":      n.Label,
		"properties": llm.Salient(n),
	}
}
