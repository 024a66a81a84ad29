package service

import (
	"context"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/txn"
)

// Transaction queues writes and applies them all-or-nothing on Execute.
// The queueing methods come from the embedded txn.Manager.
type Transaction struct {
	*txn.Manager

	db *Database
}

// NewTransaction starts an empty transaction against the database's ontology.
func (d *Database) NewTransaction() *Transaction {
	return &Transaction{Manager: txn.New(d.reg, d.log), db: d}
}

// Execute applies the queued operations through one backend transaction.
// On success every cached entry is dropped, since a transaction may touch
// any label.
func (t *Transaction) Execute(ctx context.Context) ([]txn.Outcome, error) {
	var outcomes []txn.Outcome

	err := t.db.run(ctx, "transaction", func(ctx context.Context, conn backend.Conn) error {
		var err error
		outcomes, err = t.Manager.Execute(ctx, conn)

		return err
	})
	if err != nil {
		return nil, err
	}

	if len(outcomes) > 0 {
		t.db.cache.Clear()
		t.db.emit(EventTxnCommitted, map[string]any{"operations": outcomes})
	}

	return outcomes, nil
}

// RunTransaction queues ops in order and executes them as one transaction.
// An op rejected while queueing is reported with its index like an apply
// failure.
func (d *Database) RunTransaction(ctx context.Context, ops []txn.Op) ([]txn.Outcome, error) {
	t := d.NewTransaction()

	for i, op := range ops {
		if _, err := t.Add(op.Kind, op.Args); err != nil {
			return nil, &txn.OpError{Index: i, Kind: op.Kind, Err: err}
		}
	}

	return t.Execute(ctx)
}
