package service

import (
	"context"
	"fmt"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/ontology"
)

// MaxBatchSize bounds a single batch call.
const MaxBatchSize = 1000

// BatchError locates the first invalid item of a batch.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string { return fmt.Sprintf("item %d: %v", e.Index, e.Err) }

func (e *BatchError) Unwrap() error { return e.Err }

// BatchCreateNodes validates every request, then stores them in one backend
// call. Nothing is written when any request is invalid.
func (d *Database) BatchCreateNodes(ctx context.Context, reqs []models.CreateNodeRequest) ([]models.Node, error) {
	if len(reqs) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds the limit of %d", len(reqs), MaxBatchSize)
	}

	labels := make(map[string]bool)

	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}

		if err := d.reg.Validate(reqs[i].Label, reqs[i].Properties, ontology.NodeKind); err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}

		labels[reqs[i].Label] = true
	}

	if len(reqs) == 0 {
		return []models.Node{}, nil
	}

	var nodes []models.Node

	err := d.run(ctx, "batch_create_nodes", func(ctx context.Context, conn backend.Conn) error {
		var err error

		nodes, err = conn.BatchCreateNodes(ctx, reqs)
		if err != nil {
			return fmt.Errorf("batch creating nodes: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	for label := range labels {
		d.cache.InvalidateNodeWrite(label)
	}

	d.emit(EventNodesBatched, map[string]any{"count": len(nodes)})

	for i := range nodes {
		d.enqueueEmbedding(&nodes[i])
	}

	return nodes, nil
}

// BatchCreateEdges validates every request against the stored endpoints, then
// stores them in one backend call.
func (d *Database) BatchCreateEdges(ctx context.Context, reqs []models.CreateEdgeRequest) ([]models.Edge, error) {
	if len(reqs) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d exceeds the limit of %d", len(reqs), MaxBatchSize)
	}

	for i := range reqs {
		if err := reqs[i].Validate(); err != nil {
			return nil, &BatchError{Index: i, Err: err}
		}
	}

	if len(reqs) == 0 {
		return []models.Edge{}, nil
	}

	var edges []models.Edge

	err := d.run(ctx, "batch_create_edges", func(ctx context.Context, conn backend.Conn) error {
		pairs := make(map[[3]string]bool, len(reqs))

		for i, req := range reqs {
			if err := d.checkEdge(ctx, conn, req); err != nil {
				return &BatchError{Index: i, Err: err}
			}

			key := [3]string{req.From, req.To, req.Label}
			if pairs[key] && d.reg.ForbidsParallel(req.Label) {
				return &BatchError{Index: i, Err: &models.ValidationError{
					Kind: models.ParallelEdge, Label: req.Label, Detail: req.From + " -> " + req.To,
				}}
			}

			pairs[key] = true
		}

		var err error

		edges, err = conn.BatchCreateEdges(ctx, reqs)
		if err != nil {
			return fmt.Errorf("batch creating edges: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)

	for _, e := range edges {
		if !seen[e.Label] {
			seen[e.Label] = true
			d.cache.InvalidateEdgeWrite(e.Label)
		}
	}

	d.emit(EventEdgesBatched, map[string]any{"count": len(edges)})

	return edges, nil
}
