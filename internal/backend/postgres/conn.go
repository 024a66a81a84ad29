package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

type conn struct {
	store *Store

	mu sync.Mutex
	pc *pgxpool.Conn
}

var _ backend.Conn = (*conn)(nil)

func (c *conn) handle() (*pgxpool.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc == nil {
		return nil, models.ErrNotConnected
	}

	return c.pc, nil
}

// run executes fn directly on the pooled connection.
func (c *conn) run(ctx context.Context, op string, fn func(o ops) error) error {
	pc, err := c.handle()
	if err != nil {
		return err
	}

	return c.store.mapErr(op, fn(c.store.ops(pc)))
}

// atomic executes fn inside a short transaction. Used for writes that touch
// several rows or publish notifications.
func (c *conn) atomic(ctx context.Context, op string, fn func(o ops) error) error {
	pc, err := c.handle()
	if err != nil {
		return err
	}

	tx, err := pc.Begin(ctx)
	if err != nil {
		return c.store.mapErr(op, err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	if err := fn(c.store.ops(tx)); err != nil {
		return c.store.mapErr(op, err)
	}

	return c.store.mapErr(op, tx.Commit(ctx))
}

func (c *conn) Ping(ctx context.Context) error {
	pc, err := c.handle()
	if err != nil {
		return err
	}

	return c.store.mapErr("ping", pc.Ping(ctx))
}

// Close releases the server connection back to pgxpool.
func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pc != nil {
		c.pc.Release()
		c.pc = nil
	}

	return nil
}

func (c *conn) CreateNode(ctx context.Context, req models.CreateNodeRequest) (*models.Node, error) {
	var n *models.Node

	err := c.atomic(ctx, "create_node", func(o ops) (err error) {
		n, err = o.createNode(ctx, req)

		return err
	})

	return n, err
}

func (c *conn) GetNode(ctx context.Context, id string) (*models.Node, error) {
	var n *models.Node

	err := c.run(ctx, "get_node", func(o ops) (err error) {
		n, err = o.getNode(ctx, id)

		return err
	})

	return n, err
}

func (c *conn) UpdateNode(ctx context.Context, id string, props map[string]any) (*models.Node, error) {
	var n *models.Node

	err := c.atomic(ctx, "update_node", func(o ops) (err error) {
		n, err = o.updateNode(ctx, id, props)

		return err
	})

	return n, err
}

func (c *conn) DeleteNode(ctx context.Context, id string) (int, error) {
	var removed int

	err := c.atomic(ctx, "delete_node", func(o ops) (err error) {
		removed, err = o.deleteNode(ctx, id)

		return err
	})

	return removed, err
}

func (c *conn) CreateEdge(ctx context.Context, req models.CreateEdgeRequest) (*models.Edge, error) {
	var e *models.Edge

	err := c.atomic(ctx, "create_edge", func(o ops) (err error) {
		e, err = o.createEdge(ctx, req)

		return err
	})

	return e, err
}

func (c *conn) GetEdge(ctx context.Context, id string) (*models.Edge, error) {
	var e *models.Edge

	err := c.run(ctx, "get_edge", func(o ops) (err error) {
		e, err = o.getEdge(ctx, id)

		return err
	})

	return e, err
}

func (c *conn) UpdateEdge(ctx context.Context, id string, props map[string]any) (*models.Edge, error) {
	var e *models.Edge

	err := c.atomic(ctx, "update_edge", func(o ops) (err error) {
		e, err = o.updateEdge(ctx, id, props)

		return err
	})

	return e, err
}

func (c *conn) DeleteEdge(ctx context.Context, id string) error {
	return c.atomic(ctx, "delete_edge", func(o ops) error { return o.deleteEdge(ctx, id) })
}

func (c *conn) ListEdges(ctx context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error) {
	var edges []models.Edge

	err := c.run(ctx, "list_edges", func(o ops) (err error) {
		edges, err = o.listEdges(ctx, nodeID, label, dir)

		return err
	})

	return edges, err
}

func (c *conn) ScanNodes(ctx context.Context, pf query.Prefilter) ([]models.Node, error) {
	var nodes []models.Node

	err := c.run(ctx, "scan_nodes", func(o ops) (err error) {
		nodes, err = o.scanNodes(ctx, pf)

		return err
	})

	return nodes, err
}

func (c *conn) OutgoingEdges(ctx context.Context, nodeID string, labels []string) ([]models.Edge, error) {
	var edges []models.Edge

	err := c.run(ctx, "outgoing_edges", func(o ops) (err error) {
		edges, err = o.outgoingEdges(ctx, nodeID, labels)

		return err
	})

	return edges, err
}

// Execute evaluates the plan inside a repeatable-read snapshot so a path
// search sees one consistent graph.
func (c *conn) Execute(ctx context.Context, plan *query.Plan) (*query.Result, error) {
	pc, err := c.handle()
	if err != nil {
		return nil, err
	}

	tx, err := pc.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, c.store.mapErr("execute", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // read-only snapshot, nothing to keep.

	res, err := query.Execute(ctx, &snapshot{store: c.store, tx: tx}, plan)
	if err != nil {
		return nil, backend.QueryFault("postgres execution", c.store.mapErr("execute", err))
	}

	return res, nil
}

func (c *conn) BatchCreateNodes(ctx context.Context, reqs []models.CreateNodeRequest) ([]models.Node, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	var nodes []models.Node

	err := c.atomic(ctx, "batch_create_nodes", func(o ops) (err error) {
		nodes, err = o.bulkNodes(ctx, reqs)

		return err
	})

	return nodes, err
}

func (c *conn) BatchCreateEdges(ctx context.Context, reqs []models.CreateEdgeRequest) ([]models.Edge, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	var edges []models.Edge

	err := c.atomic(ctx, "batch_create_edges", func(o ops) (err error) {
		edges, err = o.bulkEdges(ctx, reqs)

		return err
	})

	return edges, err
}

func (c *conn) Begin(ctx context.Context) (backend.Tx, error) {
	pc, err := c.handle()
	if err != nil {
		return nil, err
	}

	ptx, err := pc.Begin(ctx)
	if err != nil {
		return nil, c.store.mapErr("begin", err)
	}

	return &tx{store: c.store, tx: ptx}, nil
}

// snapshot is the query.Source view of a read-only transaction.
type snapshot struct {
	store *Store
	tx    pgx.Tx
}

func (s *snapshot) ScanNodes(ctx context.Context, pf query.Prefilter) ([]models.Node, error) {
	return s.store.ops(s.tx).scanNodes(ctx, pf)
}

func (s *snapshot) OutgoingEdges(ctx context.Context, nodeID string, labels []string) ([]models.Edge, error) {
	return s.store.ops(s.tx).outgoingEdges(ctx, nodeID, labels)
}

func (s *snapshot) GetNode(ctx context.Context, id string) (*models.Node, error) {
	return s.store.ops(s.tx).getNode(ctx, id)
}
