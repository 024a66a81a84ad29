package client

import "context"

// BatchService handles all-or-nothing bulk writes.
type BatchService struct {
	c *Client
}

// Nodes creates every node or none. On rejection the returned *APIError
// reports the failing position through FailedIndex.
func (s *BatchService) Nodes(ctx context.Context, reqs []CreateNodeRequest) ([]Node, error) {
	var resp struct {
		Nodes []Node `json:"nodes"`
	}
	if err := s.c.post(ctx, "/api/v1/batch/nodes", map[string]any{"nodes": reqs}, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// Edges creates every edge or none.
func (s *BatchService) Edges(ctx context.Context, reqs []CreateEdgeRequest) ([]Edge, error) {
	var resp struct {
		Edges []Edge `json:"edges"`
	}
	if err := s.c.post(ctx, "/api/v1/batch/edges", map[string]any{"edges": reqs}, &resp); err != nil {
		return nil, err
	}
	return resp.Edges, nil
}

// TransactionService runs multi-operation atomic writes.
type TransactionService struct {
	c *Client
}

// Execute commits ops atomically. When any operation fails nothing is
// applied and the error's FailedIndex names the operation.
func (s *TransactionService) Execute(ctx context.Context, ops []Operation) ([]Outcome, error) {
	var resp struct {
		Outcomes []Outcome `json:"outcomes"`
	}
	if err := s.c.post(ctx, "/api/v1/transactions", map[string]any{"operations": ops}, &resp); err != nil {
		return nil, err
	}
	return resp.Outcomes, nil
}
