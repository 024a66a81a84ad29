package client

import "context"

// OntologyService reads and extends the schema.
type OntologyService struct {
	c *Client
}

// Get returns the registered node and edge types.
func (s *OntologyService) Get(ctx context.Context) (*Ontology, error) {
	var o Ontology
	if err := s.c.get(ctx, "/api/v1/ontology", nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Register adds a type and returns the new ontology version.
func (s *OntologyService) Register(ctx context.Context, t Type) (uint64, error) {
	var resp struct {
		Version uint64 `json:"version"`
	}
	if err := s.c.post(ctx, "/api/v1/ontology", t, &resp); err != nil {
		return 0, err
	}
	return resp.Version, nil
}
