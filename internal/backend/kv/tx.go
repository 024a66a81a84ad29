package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
)

var errTxDone = errors.New("transaction already finished")

// tx wraps a read-write badger transaction. Writes are invisible to other
// readers until Commit.
type tx struct {
	conn *conn
	txn  *badger.Txn
	done bool
}

var _ backend.Tx = (*tx)(nil)

func (t *tx) ops() (ops, error) {
	if t.done {
		return ops{}, errTxDone
	}

	return ops{txn: t.txn, now: t.conn.store.now()}, nil
}

func (t *tx) CreateNode(_ context.Context, req models.CreateNodeRequest) (*models.Node, error) {
	o, err := t.ops()
	if err != nil {
		return nil, err
	}

	return o.createNode(req)
}

func (t *tx) UpdateNode(_ context.Context, id string, props map[string]any) (*models.Node, error) {
	o, err := t.ops()
	if err != nil {
		return nil, err
	}

	return o.updateNode(id, props)
}

func (t *tx) DeleteNode(_ context.Context, id string) (int, error) {
	o, err := t.ops()
	if err != nil {
		return 0, err
	}

	return o.deleteNode(id)
}

func (t *tx) CreateEdge(_ context.Context, req models.CreateEdgeRequest) (*models.Edge, error) {
	o, err := t.ops()
	if err != nil {
		return nil, err
	}

	return o.createEdge(req)
}

func (t *tx) UpdateEdge(_ context.Context, id string, props map[string]any) (*models.Edge, error) {
	o, err := t.ops()
	if err != nil {
		return nil, err
	}

	return o.updateEdge(id, props)
}

func (t *tx) DeleteEdge(_ context.Context, id string) error {
	o, err := t.ops()
	if err != nil {
		return err
	}

	return o.deleteEdge(id)
}

func (t *tx) Commit(_ context.Context) error {
	if t.done {
		return errTxDone
	}

	t.done = true

	if err := t.txn.Commit(); err != nil {
		return fmt.Errorf("committing badger transaction: %w", t.conn.mapErr("commit", err))
	}

	return nil
}

func (t *tx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}

	t.done = true
	t.txn.Discard()

	return nil
}
