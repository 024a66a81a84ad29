package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/ontology"
)

// CreateEdge validates and stores an edge. Both endpoints must exist and
// satisfy the edge type's source and target lists.
func (d *Database) CreateEdge(
	ctx context.Context, from, to, label string, props map[string]any,
) (*models.Edge, error) {
	req := models.CreateEdgeRequest{From: from, To: to, Label: label, Properties: props}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var e *models.Edge

	err := d.run(ctx, "create_edge", func(ctx context.Context, conn backend.Conn) error {
		if err := d.checkEdge(ctx, conn, req); err != nil {
			return err
		}

		var err error

		e, err = conn.CreateEdge(ctx, req)
		if err != nil {
			return fmt.Errorf("creating edge: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	d.cache.InvalidateEdgeWrite(e.Label)
	d.emit(EventEdgeCreated, e)

	return e, nil
}

// checkEdge validates req against the ontology and the stored endpoints.
func (d *Database) checkEdge(ctx context.Context, conn backend.Reader, req models.CreateEdgeRequest) error {
	fromNode, err := conn.GetNode(ctx, req.From)
	if err != nil {
		return endpointErr(err, "from", req.From)
	}

	toNode, err := conn.GetNode(ctx, req.To)
	if err != nil {
		return endpointErr(err, "to", req.To)
	}

	if err := d.reg.ValidateEdge(req.Label, req.Properties, fromNode.Label, toNode.Label); err != nil {
		return err
	}

	if !d.reg.ForbidsParallel(req.Label) {
		return nil
	}

	existing, err := conn.ListEdges(ctx, req.From, req.Label, models.DirectionOut)
	if err != nil {
		return fmt.Errorf("checking parallel %s edges: %w", req.Label, err)
	}

	for _, e := range existing {
		if e.To == req.To {
			return &models.ValidationError{Kind: models.ParallelEdge, Label: req.Label, Detail: req.From + " -> " + req.To}
		}
	}

	return nil
}

func endpointErr(err error, side, id string) error {
	if errors.Is(err, models.ErrNodeNotFound) {
		return fmt.Errorf("%s node %s: %w", side, id, models.ErrNodeNotFound)
	}

	return err
}

// GetEdge returns an edge by id, serving repeat reads from the cache.
func (d *Database) GetEdge(ctx context.Context, id string) (*models.Edge, error) {
	if e, ok := d.cache.GetEdge(id); ok {
		return e, nil
	}

	gen := d.cache.Generation()

	var e *models.Edge

	err := d.run(ctx, "get_edge", func(ctx context.Context, conn backend.Conn) error {
		var err error
		e, err = conn.GetEdge(ctx, id)

		return err
	})
	if err != nil {
		return nil, err
	}

	d.cache.PutEdgeIfCurrent(e, gen)

	return e, nil
}

// UpdateEdge overlays props onto an edge.
func (d *Database) UpdateEdge(ctx context.Context, id string, props map[string]any) (*models.Edge, error) {
	upd := models.UpdateRequest{Properties: props}
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	var e *models.Edge

	err := d.run(ctx, "update_edge", func(ctx context.Context, conn backend.Conn) error {
		current, err := conn.GetEdge(ctx, id)
		if err != nil {
			return err
		}

		if err := d.reg.ValidatePatch(current.Label, props, ontology.EdgeKind); err != nil {
			return err
		}

		e, err = conn.UpdateEdge(ctx, id, props)
		if err != nil {
			return fmt.Errorf("updating edge %s: %w", id, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	d.cache.InvalidateEdgeWrite(e.Label)
	d.emit(EventEdgeUpdated, e)

	return e, nil
}

// DeleteEdge removes an edge.
func (d *Database) DeleteEdge(ctx context.Context, id string) error {
	var label string

	err := d.run(ctx, "delete_edge", func(ctx context.Context, conn backend.Conn) error {
		current, err := conn.GetEdge(ctx, id)
		if err != nil {
			return err
		}

		label = current.Label

		if err := conn.DeleteEdge(ctx, id); err != nil {
			return fmt.Errorf("deleting edge %s: %w", id, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	d.cache.InvalidateEdgeWrite(label)
	d.emit(EventEdgeDeleted, map[string]any{"id": id, "label": label})

	return nil
}

// ListEdges returns the edges incident to nodeID. An empty label matches all.
func (d *Database) ListEdges(ctx context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error) {
	if dir == "" {
		dir = models.DirectionBoth
	}

	var edges []models.Edge

	err := d.run(ctx, "list_edges", func(ctx context.Context, conn backend.Conn) error {
		var err error
		edges, err = conn.ListEdges(ctx, nodeID, models.NormalizeEdgeLabel(label), dir)

		return err
	})

	return edges, err
}
