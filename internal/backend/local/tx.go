package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
)

var errTxDone = errors.New("transaction already finished")

// op is one staged mutation, replayed against the committed document at commit.
type op func(d *document, now time.Time) error

// tx buffers mutations. Each one is applied immediately to a private preview
// so callers get results and early errors; nothing reaches the committed
// document until Commit replays the whole buffer on a fresh copy.
type tx struct {
	store   *Store
	preview *document
	ops     []op
	done    bool
}

var _ backend.Tx = (*tx)(nil)

func (t *tx) stage(o op) error {
	if t.done {
		return errTxDone
	}

	if err := o(t.preview, t.store.now()); err != nil {
		return err
	}

	t.ops = append(t.ops, o)

	return nil
}

func (t *tx) CreateNode(_ context.Context, req models.CreateNodeRequest) (*models.Node, error) {
	var out models.Node

	err := t.stage(func(d *document, now time.Time) error {
		n, err := d.createNode(req, now)
		out = n

		return err
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (t *tx) UpdateNode(_ context.Context, id string, props map[string]any) (*models.Node, error) {
	var out models.Node

	err := t.stage(func(d *document, now time.Time) error {
		n, err := d.updateNode(id, props, now)
		out = n

		return err
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (t *tx) DeleteNode(_ context.Context, id string) (int, error) {
	var removed int

	err := t.stage(func(d *document, _ time.Time) error {
		n, err := d.deleteNode(id)
		removed = n

		return err
	})

	return removed, err
}

func (t *tx) CreateEdge(_ context.Context, req models.CreateEdgeRequest) (*models.Edge, error) {
	var out models.Edge

	err := t.stage(func(d *document, now time.Time) error {
		e, err := d.createEdge(req, now)
		out = e

		return err
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (t *tx) UpdateEdge(_ context.Context, id string, props map[string]any) (*models.Edge, error) {
	var out models.Edge

	err := t.stage(func(d *document, now time.Time) error {
		e, err := d.updateEdge(id, props, now)
		out = e

		return err
	})
	if err != nil {
		return nil, err
	}

	return &out, nil
}

func (t *tx) DeleteEdge(_ context.Context, id string) error {
	return t.stage(func(d *document, _ time.Time) error {
		return d.deleteEdge(id)
	})
}

// Commit replays the buffer against the current committed document. If any
// op fails there (a concurrent writer changed the graph), nothing is applied.
func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return errTxDone
	}

	t.done = true

	return t.store.mutate(func(d *document, now time.Time) error {
		for i, o := range t.ops {
			if err := o(d, now); err != nil {
				return fmt.Errorf("replaying staged op %d: %w", i, err)
			}
		}

		return nil
	})
}

func (t *tx) Rollback(_ context.Context) error {
	t.done = true
	t.ops = nil
	t.preview = nil

	return nil
}
