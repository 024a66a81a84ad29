package local

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

// conn is a lightweight handle on the shared document.
type conn struct {
	store  *Store
	closed atomic.Bool
}

var _ backend.Conn = (*conn)(nil)

func (c *conn) check() error {
	if c.closed.Load() {
		return models.ErrNotConnected
	}

	return nil
}

func (c *conn) Ping(_ context.Context) error {
	if err := c.check(); err != nil {
		return err
	}

	return c.store.view(func(*document) error { return nil })
}

func (c *conn) Close() error {
	c.closed.Store(true)

	return nil
}

func (c *conn) CreateNode(_ context.Context, req models.CreateNodeRequest) (*models.Node, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var out models.Node

	err := c.store.mutate(func(d *document, now time.Time) error {
		n, err := d.createNode(req, now)
		out = n

		return err
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *conn) GetNode(_ context.Context, id string) (*models.Node, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var out models.Node

	err := c.store.view(func(d *document) error {
		n, ok := d.Nodes[id]
		if !ok {
			return models.ErrNodeNotFound
		}

		out = n.Clone()

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *conn) UpdateNode(_ context.Context, id string, props map[string]any) (*models.Node, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var out models.Node

	err := c.store.mutate(func(d *document, now time.Time) error {
		n, err := d.updateNode(id, props, now)
		out = n

		return err
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *conn) DeleteNode(_ context.Context, id string) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}

	var removed int

	err := c.store.mutate(func(d *document, _ time.Time) error {
		n, err := d.deleteNode(id)
		removed = n

		return err
	})

	return removed, err
}

func (c *conn) CreateEdge(_ context.Context, req models.CreateEdgeRequest) (*models.Edge, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var out models.Edge

	err := c.store.mutate(func(d *document, now time.Time) error {
		e, err := d.createEdge(req, now)
		out = e

		return err
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *conn) GetEdge(_ context.Context, id string) (*models.Edge, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var out models.Edge

	err := c.store.view(func(d *document) error {
		e, ok := d.Edges[id]
		if !ok {
			return models.ErrEdgeNotFound
		}

		out = e.Clone()

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *conn) UpdateEdge(_ context.Context, id string, props map[string]any) (*models.Edge, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var out models.Edge

	err := c.store.mutate(func(d *document, now time.Time) error {
		e, err := d.updateEdge(id, props, now)
		out = e

		return err
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (c *conn) DeleteEdge(_ context.Context, id string) error {
	if err := c.check(); err != nil {
		return err
	}

	return c.store.mutate(func(d *document, _ time.Time) error {
		return d.deleteEdge(id)
	})
}

func (c *conn) ListEdges(_ context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	label = models.NormalizeEdgeLabel(label)

	var out []models.Edge

	err := c.store.view(func(d *document) error {
		out = d.sortedEdges(func(e models.Edge) bool {
			return dir.Matches(e, nodeID) && (label == "" || e.Label == label)
		})

		return nil
	})

	return out, err
}

func (c *conn) ScanNodes(_ context.Context, pf query.Prefilter) ([]models.Node, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var out []models.Node

	err := c.store.view(func(d *document) error {
		out = d.sortedNodes(func(n models.Node) bool { return backend.MatchesPrefilter(n, pf) })

		return nil
	})

	return out, err
}

func (c *conn) OutgoingEdges(_ context.Context, nodeID string, labels []string) ([]models.Edge, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var out []models.Edge

	err := c.store.view(func(d *document) error {
		out = d.sortedEdges(func(e models.Edge) bool {
			return e.From == nodeID && backend.LabelMatches(e.Label, labels)
		})

		return nil
	})

	return out, err
}

func (c *conn) Execute(ctx context.Context, plan *query.Plan) (*query.Result, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	return query.Execute(ctx, c, plan)
}

func (c *conn) BatchCreateNodes(_ context.Context, reqs []models.CreateNodeRequest) ([]models.Node, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	out := make([]models.Node, 0, len(reqs))

	err := c.store.mutate(func(d *document, now time.Time) error {
		for i, req := range reqs {
			n, err := d.createNode(req, now)
			if err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}

			out = append(out, n)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (c *conn) BatchCreateEdges(_ context.Context, reqs []models.CreateEdgeRequest) ([]models.Edge, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	out := make([]models.Edge, 0, len(reqs))

	err := c.store.mutate(func(d *document, now time.Time) error {
		for i, req := range reqs {
			e, err := d.createEdge(req, now)
			if err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}

			out = append(out, e)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (c *conn) Begin(_ context.Context) (backend.Tx, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	preview, err := c.store.snapshot()
	if err != nil {
		return nil, err
	}

	return &tx{store: c.store, preview: preview}, nil
}
