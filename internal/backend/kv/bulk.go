package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
)

// BatchCreateNodes checks every id in one read transaction and then streams the
// records through a WriteBatch, which is not bounded by transaction size.
func (c *conn) BatchCreateNodes(_ context.Context, reqs []models.CreateNodeRequest) ([]models.Node, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	err := c.view(func(o ops) error {
		seen := make(map[string]bool, len(reqs))

		for i, req := range reqs {
			found, err := o.exists(nodeKey(req.ID))
			if err != nil {
				return err
			}

			if found || seen[req.ID] {
				return fmt.Errorf("batch item %d: node %s: %w", i, req.ID, models.ErrDuplicateKey)
			}

			seen[req.ID] = true
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	now := c.store.now()
	out := make([]models.Node, 0, len(reqs))

	err = c.writeBatch(func(wb *badger.WriteBatch) error {
		for _, req := range reqs {
			n := backend.NewNode(req, now)

			data, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("encoding node %s: %w", n.ID, err)
			}

			if err := wb.Set(nodeKey(n.ID), data); err != nil {
				return err
			}

			if err := wb.Set(labelKey(n.Label, n.ID), nil); err != nil {
				return err
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

// BatchCreateEdges requires both endpoints of every edge to be stored already,
// then writes through a WriteBatch.
func (c *conn) BatchCreateEdges(_ context.Context, reqs []models.CreateEdgeRequest) ([]models.Edge, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	err := c.view(func(o ops) error {
		seen := make(map[string]bool, len(reqs))

		for i, req := range reqs {
			found, err := o.exists(edgeKey(req.ID))
			if err != nil {
				return err
			}

			if found || seen[req.ID] {
				return fmt.Errorf("batch item %d: edge %s: %w", i, req.ID, models.ErrDuplicateKey)
			}

			seen[req.ID] = true

			for _, endpoint := range []string{req.From, req.To} {
				ok, err := o.exists(nodeKey(endpoint))
				if err != nil {
					return err
				}

				if !ok {
					return fmt.Errorf("batch item %d: endpoint %s: %w", i, endpoint, models.ErrNodeNotFound)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	now := c.store.now()
	out := make([]models.Edge, 0, len(reqs))

	err = c.writeBatch(func(wb *badger.WriteBatch) error {
		for _, req := range reqs {
			e := backend.NewEdge(req, now)

			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encoding edge %s: %w", e.ID, err)
			}

			for _, kv := range []struct{ k, v []byte }{
				{edgeKey(e.ID), data},
				{outgoingKey(e.From, e.ID), nil},
				{incomingKey(e.To, e.ID), nil},
			} {
				if err := wb.Set(kv.k, kv.v); err != nil {
					return err
				}
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

func (c *conn) writeBatch(fn func(wb *badger.WriteBatch) error) error {
	if c.closed.Load() {
		return models.ErrNotConnected
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	if err := fn(wb); err != nil {
		return c.mapErr("bulk", fmt.Errorf("staging bulk write: %w", err))
	}

	if err := wb.Flush(); err != nil {
		return c.mapErr("bulk", fmt.Errorf("flushing bulk write: %w", err))
	}

	return nil
}
