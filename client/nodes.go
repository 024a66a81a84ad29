package client

import (
	"context"
	"net/url"
	"strconv"
)

// NodeService handles node operations.
type NodeService struct {
	c *Client
}

// ListOptions filter a node listing.
type ListOptions struct {
	Label  string
	Limit  int
	Offset int
}

// List returns a page of nodes, optionally restricted to one label.
func (s *NodeService) List(ctx context.Context, opts *ListOptions) (*NodeList, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Label != "" {
			params.Set("label", opts.Label)
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.Offset > 0 {
			params.Set("offset", strconv.Itoa(opts.Offset))
		}
	}

	var resp NodeList
	if err := s.c.get(ctx, "/api/v1/nodes", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Create stores a node. A nil dedup writes unconditionally.
func (s *NodeService) Create(ctx context.Context, label string, props map[string]any, dedup *Dedup) (*CreateResult, error) {
	body := struct {
		Label      string         `json:"label"`
		Properties map[string]any `json:"properties"`
		Dedup      *Dedup         `json:"dedup,omitempty"`
	}{Label: label, Properties: props, Dedup: dedup}

	var res CreateResult
	if err := s.c.post(ctx, "/api/v1/nodes", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Get retrieves a single node by ID.
func (s *NodeService) Get(ctx context.Context, id string) (*Node, error) {
	var node Node
	if err := s.c.get(ctx, "/api/v1/nodes/"+url.PathEscape(id), nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// Update overlays props onto a node.
func (s *NodeService) Update(ctx context.Context, id string, props map[string]any) (*Node, error) {
	var node Node
	body := map[string]any{"properties": props}
	if err := s.c.patch(ctx, "/api/v1/nodes/"+url.PathEscape(id), body, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// Delete removes a node and its incident edges, returning how many edges went
// with it.
func (s *NodeService) Delete(ctx context.Context, id string) (int, error) {
	var resp struct {
		RemovedEdges int `json:"removed_edges"`
	}
	if err := s.c.del(ctx, "/api/v1/nodes/"+url.PathEscape(id), &resp); err != nil {
		return 0, err
	}
	return resp.RemovedEdges, nil
}

// Edges lists the edges incident to a node. Direction is "out", "in" or
// "both"; empty means both.
func (s *NodeService) Edges(ctx context.Context, id, label, direction string) ([]Edge, error) {
	params := url.Values{}
	if label != "" {
		params.Set("label", label)
	}
	if direction != "" {
		params.Set("direction", direction)
	}

	var resp struct {
		Edges []Edge `json:"edges"`
	}
	if err := s.c.get(ctx, "/api/v1/nodes/"+url.PathEscape(id)+"/edges", params, &resp); err != nil {
		return nil, err
	}
	return resp.Edges, nil
}
