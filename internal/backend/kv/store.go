// Package kv implements the key-value graph backend on Badger. Nodes and edges
// are stored as JSON values under single-byte key families, with a label index
// and outgoing/incoming adjacency indexes maintained in the same transaction.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

// Options configures the Badger store.
type Options struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir        string
	InMemory   bool
	SyncWrites bool
}

// Store is the Badger backend driver.
type Store struct {
	opts Options
	log  *logrus.Logger
	now  func() time.Time

	mu sync.RWMutex
	db *badger.DB
}

var _ backend.Driver = (*Store)(nil)

// New creates a Badger store. Call Connect to open the database.
func New(opts Options, log *logrus.Logger) *Store {
	return &Store{opts: opts, log: log, now: time.Now}
}

// Name identifies the store for cache fingerprints.
func (s *Store) Name() string {
	if s.opts.InMemory {
		return "badger:memory"
	}

	return "badger:" + s.opts.Dir
}

// Capabilities reports native transactions and bulk loads.
func (s *Store) Capabilities() backend.Capabilities {
	return backend.Capabilities{NativeTransactions: true, NativeBulk: true, LabelPushdown: true}
}

// Connect opens the Badger database.
func (s *Store) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	opts := badger.DefaultOptions(s.opts.Dir).
		WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	if s.opts.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	if s.opts.SyncWrites {
		opts = opts.WithSyncWrites(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return &models.ConnectionError{Backend: s.Name(), Op: "connect", Err: err}
	}

	s.db = db
	s.log.WithField("backend", s.Name()).Info("badger store opened")

	return nil
}

// Disconnect closes the database.
func (s *Store) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	if err != nil {
		return fmt.Errorf("closing badger: %w", err)
	}

	return nil
}

// Open returns a connection sharing the store's database.
func (s *Store) Open(_ context.Context) (backend.Conn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, models.ErrNotConnected
	}

	return &conn{store: s, db: s.db}, nil
}

type conn struct {
	store  *Store
	db     *badger.DB
	closed atomic.Bool
}

var _ backend.Conn = (*conn)(nil)

func (c *conn) update(fn func(o ops) error) error {
	if c.closed.Load() {
		return models.ErrNotConnected
	}

	return c.mapErr("update", c.db.Update(func(txn *badger.Txn) error {
		return fn(ops{txn: txn, now: c.store.now()})
	}))
}

func (c *conn) view(fn func(o ops) error) error {
	if c.closed.Load() {
		return models.ErrNotConnected
	}

	return c.mapErr("view", c.db.View(func(txn *badger.Txn) error {
		return fn(ops{txn: txn, now: c.store.now()})
	}))
}

// mapErr turns a closed database into a connection error and leaves
// domain errors untouched.
func (c *conn) mapErr(op string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return &models.ConnectionError{Backend: c.store.Name(), Op: op, Err: err}
	}

	return err
}

func (c *conn) Ping(_ context.Context) error {
	if c.closed.Load() {
		return models.ErrNotConnected
	}

	if c.db.IsClosed() {
		return &models.ConnectionError{Backend: c.store.Name(), Op: "ping", Err: badger.ErrDBClosed}
	}

	return nil
}

func (c *conn) Close() error {
	c.closed.Store(true)

	return nil
}

func (c *conn) CreateNode(_ context.Context, req models.CreateNodeRequest) (*models.Node, error) {
	var n *models.Node

	err := c.update(func(o ops) (err error) {
		n, err = o.createNode(req)

		return err
	})

	return n, err
}

func (c *conn) GetNode(_ context.Context, id string) (*models.Node, error) {
	var n *models.Node

	err := c.view(func(o ops) (err error) {
		n, err = o.getNode(id)

		return err
	})

	return n, err
}

func (c *conn) UpdateNode(_ context.Context, id string, props map[string]any) (*models.Node, error) {
	var n *models.Node

	err := c.update(func(o ops) (err error) {
		n, err = o.updateNode(id, props)

		return err
	})

	return n, err
}

func (c *conn) DeleteNode(_ context.Context, id string) (int, error) {
	var removed int

	err := c.update(func(o ops) (err error) {
		removed, err = o.deleteNode(id)

		return err
	})

	return removed, err
}

func (c *conn) CreateEdge(_ context.Context, req models.CreateEdgeRequest) (*models.Edge, error) {
	var e *models.Edge

	err := c.update(func(o ops) (err error) {
		e, err = o.createEdge(req)

		return err
	})

	return e, err
}

func (c *conn) GetEdge(_ context.Context, id string) (*models.Edge, error) {
	var e *models.Edge

	err := c.view(func(o ops) (err error) {
		e, err = o.getEdge(id)

		return err
	})

	return e, err
}

func (c *conn) UpdateEdge(_ context.Context, id string, props map[string]any) (*models.Edge, error) {
	var e *models.Edge

	err := c.update(func(o ops) (err error) {
		e, err = o.updateEdge(id, props)

		return err
	})

	return e, err
}

func (c *conn) DeleteEdge(_ context.Context, id string) error {
	return c.update(func(o ops) error { return o.deleteEdge(id) })
}

func (c *conn) ListEdges(_ context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error) {
	var out []models.Edge

	err := c.view(func(o ops) (err error) {
		out, err = o.listEdges(nodeID, label, dir)

		return err
	})

	return out, err
}

func (c *conn) ScanNodes(_ context.Context, pf query.Prefilter) ([]models.Node, error) {
	var out []models.Node

	err := c.view(func(o ops) (err error) {
		out, err = o.scanNodes(pf)

		return err
	})

	return out, err
}

func (c *conn) OutgoingEdges(_ context.Context, nodeID string, labels []string) ([]models.Edge, error) {
	var out []models.Edge

	err := c.view(func(o ops) (err error) {
		out, err = o.edgesAt(outgoingPrefix(nodeID), func(e *models.Edge) bool {
			return backend.LabelMatches(e.Label, labels)
		})

		return err
	})

	return out, err
}

func (c *conn) Execute(ctx context.Context, plan *query.Plan) (*query.Result, error) {
	res, err := query.Execute(ctx, c, plan)
	if err != nil {
		return nil, backend.QueryFault("badger execution", err)
	}

	return res, nil
}

func (c *conn) Begin(_ context.Context) (backend.Tx, error) {
	if c.closed.Load() {
		return nil, models.ErrNotConnected
	}

	return &tx{conn: c, txn: c.db.NewTransaction(true)}, nil
}
