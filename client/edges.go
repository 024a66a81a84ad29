package client

import (
	"context"
	"net/url"
)

// EdgeService handles edge operations.
type EdgeService struct {
	c *Client
}

// Create stores an edge between two existing nodes.
func (s *EdgeService) Create(ctx context.Context, req CreateEdgeRequest) (*Edge, error) {
	var edge Edge
	if err := s.c.post(ctx, "/api/v1/edges", req, &edge); err != nil {
		return nil, err
	}
	return &edge, nil
}

// Get retrieves a single edge by ID.
func (s *EdgeService) Get(ctx context.Context, id string) (*Edge, error) {
	var edge Edge
	if err := s.c.get(ctx, "/api/v1/edges/"+url.PathEscape(id), nil, &edge); err != nil {
		return nil, err
	}
	return &edge, nil
}

// Update overlays props onto an edge.
func (s *EdgeService) Update(ctx context.Context, id string, props map[string]any) (*Edge, error) {
	var edge Edge
	body := map[string]any{"properties": props}
	if err := s.c.patch(ctx, "/api/v1/edges/"+url.PathEscape(id), body, &edge); err != nil {
		return nil, err
	}
	return &edge, nil
}

// Delete removes an edge.
func (s *EdgeService) Delete(ctx context.Context, id string) error {
	return s.c.del(ctx, "/api/v1/edges/"+url.PathEscape(id), nil)
}
