package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
)

var errTxDone = errors.New("transaction already finished")

// tx is an explicit transaction bound to its own session. The session is
// closed when the transaction ends.
type tx struct {
	store   *Store
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	done    bool
}

var _ backend.Tx = (*tx)(nil)

func (t *tx) ops() (ops, error) {
	if t.done {
		return ops{}, errTxDone
	}

	return ops{tx: t.tx, now: t.store.now()}, nil
}

func (t *tx) CreateNode(ctx context.Context, req models.CreateNodeRequest) (*models.Node, error) {
	o, err := t.ops()
	if err != nil {
		return nil, err
	}

	n, err := o.createNode(ctx, req)

	return n, t.store.mapErr("tx_create_node", err)
}

func (t *tx) UpdateNode(ctx context.Context, id string, props map[string]any) (*models.Node, error) {
	o, err := t.ops()
	if err != nil {
		return nil, err
	}

	n, err := o.updateNode(ctx, id, props)

	return n, t.store.mapErr("tx_update_node", err)
}

func (t *tx) DeleteNode(ctx context.Context, id string) (int, error) {
	o, err := t.ops()
	if err != nil {
		return 0, err
	}

	removed, err := o.deleteNode(ctx, id)

	return removed, t.store.mapErr("tx_delete_node", err)
}

func (t *tx) CreateEdge(ctx context.Context, req models.CreateEdgeRequest) (*models.Edge, error) {
	o, err := t.ops()
	if err != nil {
		return nil, err
	}

	e, err := o.createEdge(ctx, req)

	return e, t.store.mapErr("tx_create_edge", err)
}

func (t *tx) UpdateEdge(ctx context.Context, id string, props map[string]any) (*models.Edge, error) {
	o, err := t.ops()
	if err != nil {
		return nil, err
	}

	e, err := o.updateEdge(ctx, id, props)

	return e, t.store.mapErr("tx_update_edge", err)
}

func (t *tx) DeleteEdge(ctx context.Context, id string) error {
	o, err := t.ops()
	if err != nil {
		return err
	}

	return t.store.mapErr("tx_delete_edge", o.deleteEdge(ctx, id))
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}

	t.done = true
	defer t.session.Close(ctx) //nolint:errcheck // session close errors carry no data.

	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing neo4j transaction: %w", t.store.mapErr("commit", err))
	}

	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}

	t.done = true
	defer t.session.Close(ctx) //nolint:errcheck // session close errors carry no data.

	if err := t.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("rolling back neo4j transaction: %w", t.store.mapErr("rollback", err))
	}

	return nil
}
