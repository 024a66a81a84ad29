// Package neo4j implements the remote ACID graph backend on Neo4j. Reads and
// single writes run in managed transactions (which the driver retries on
// transient faults); Begin opens an explicit transaction on its own session.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

// Options configures the Neo4j driver.
type Options struct {
	URI         string
	Username    string
	Password    string
	Database    string
	MaxPoolSize int
	// AcquireTimeout bounds the driver's own connection acquisition.
	AcquireTimeout time.Duration
}

// Store is the Neo4j backend driver.
type Store struct {
	opts Options
	log  *logrus.Logger
	now  func() time.Time

	mu     sync.RWMutex
	driver neo4j.DriverWithContext
}

var _ backend.Driver = (*Store)(nil)

// New creates a Neo4j store. Call Connect before opening connections.
func New(opts Options, log *logrus.Logger) *Store {
	return &Store{opts: opts, log: log, now: time.Now}
}

// Name identifies the store for cache fingerprints.
func (s *Store) Name() string {
	return "neo4j:" + s.opts.URI + "/" + s.opts.Database
}

// Capabilities reports native transactions and UNWIND bulk creates.
func (s *Store) Capabilities() backend.Capabilities {
	return backend.Capabilities{NativeTransactions: true, NativeBulk: true, LabelPushdown: true}
}

// schema is applied idempotently on connect.
var schema = []string{
	`CREATE CONSTRAINT gr_node_id IF NOT EXISTS FOR (n:GRNode) REQUIRE n.id IS UNIQUE`,
	`CREATE INDEX gr_node_label IF NOT EXISTS FOR (n:GRNode) ON (n.label)`,
	`CREATE INDEX gr_edge_id IF NOT EXISTS FOR ()-[r:GR_EDGE]-() ON (r.id)`,
}

// Connect creates the driver, verifies connectivity and applies the schema.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.driver != nil {
		return nil
	}

	auth := neo4j.BasicAuth(s.opts.Username, s.opts.Password, "")

	driver, err := neo4j.NewDriverWithContext(s.opts.URI, auth, func(cfg *neo4j.Config) {
		if s.opts.MaxPoolSize > 0 {
			cfg.MaxConnectionPoolSize = s.opts.MaxPoolSize
		}

		if s.opts.AcquireTimeout > 0 {
			cfg.ConnectionAcquisitionTimeout = s.opts.AcquireTimeout
		}
	})
	if err != nil {
		return &models.ConnectionError{Backend: s.Name(), Op: "connect", Err: err}
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx) //nolint:errcheck // best-effort cleanup after failed verify.

		return &models.ConnectionError{Backend: s.Name(), Op: "connect", Err: err}
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.opts.Database})
	defer session.Close(ctx) //nolint:errcheck // session close errors carry no data.

	for _, stmt := range schema {
		res, err := session.Run(ctx, stmt, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}

		if err != nil {
			driver.Close(ctx) //nolint:errcheck // best-effort cleanup.

			return fmt.Errorf("applying neo4j schema: %w", err)
		}
	}

	s.driver = driver
	s.log.WithFields(logrus.Fields{"uri": s.opts.URI, "database": s.opts.Database}).Info("neo4j connected")

	return nil
}

// Disconnect closes the driver and its connection pool.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.driver == nil {
		return nil
	}

	err := s.driver.Close(ctx)
	s.driver = nil

	if err != nil {
		return fmt.Errorf("closing neo4j driver: %w", err)
	}

	return nil
}

// Open returns a connection sharing the driver.
func (s *Store) Open(_ context.Context) (backend.Conn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.driver == nil {
		return nil, models.ErrNotConnected
	}

	return &conn{store: s, driver: s.driver}, nil
}

// mapErr classifies driver errors. Domain errors pass through untouched.
func (s *Store) mapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	if neo4j.IsConnectivityError(err) {
		return &models.ConnectionError{Backend: s.Name(), Op: op, Err: err}
	}

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		switch {
		case strings.HasPrefix(neoErr.Code, "Neo.ClientError.Security."):
			return &models.ConnectionError{Backend: s.Name(), Op: op, Err: err}
		case neoErr.Code == "Neo.ClientError.Schema.ConstraintValidationFailed":
			return fmt.Errorf("%s: %w", neoErr.Msg, models.ErrDuplicateKey)
		}
	}

	return err
}

type conn struct {
	store  *Store
	driver neo4j.DriverWithContext
	closed atomic.Bool
}

var _ backend.Conn = (*conn)(nil)

func (c *conn) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.store.opts.Database, AccessMode: mode})
}

func (c *conn) read(ctx context.Context, op string, fn func(o ops) (any, error)) (any, error) {
	if c.closed.Load() {
		return nil, models.ErrNotConnected
	}

	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx) //nolint:errcheck // session close errors carry no data.

	res, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return fn(ops{tx: tx, now: c.store.now()})
	})

	return res, c.store.mapErr(op, err)
}

func (c *conn) write(ctx context.Context, op string, fn func(o ops) (any, error)) (any, error) {
	if c.closed.Load() {
		return nil, models.ErrNotConnected
	}

	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx) //nolint:errcheck // session close errors carry no data.

	res, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return fn(ops{tx: tx, now: c.store.now()})
	})

	return res, c.store.mapErr(op, err)
}

func (c *conn) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return models.ErrNotConnected
	}

	return c.store.mapErr("ping", c.driver.VerifyConnectivity(ctx))
}

func (c *conn) Close() error {
	c.closed.Store(true)

	return nil
}

func (c *conn) CreateNode(ctx context.Context, req models.CreateNodeRequest) (*models.Node, error) {
	res, err := c.write(ctx, "create_node", func(o ops) (any, error) { return o.createNode(ctx, req) })
	if err != nil {
		return nil, err
	}

	return res.(*models.Node), nil
}

func (c *conn) GetNode(ctx context.Context, id string) (*models.Node, error) {
	res, err := c.read(ctx, "get_node", func(o ops) (any, error) { return o.getNode(ctx, id) })
	if err != nil {
		return nil, err
	}

	return res.(*models.Node), nil
}

func (c *conn) UpdateNode(ctx context.Context, id string, props map[string]any) (*models.Node, error) {
	res, err := c.write(ctx, "update_node", func(o ops) (any, error) { return o.updateNode(ctx, id, props) })
	if err != nil {
		return nil, err
	}

	return res.(*models.Node), nil
}

func (c *conn) DeleteNode(ctx context.Context, id string) (int, error) {
	res, err := c.write(ctx, "delete_node", func(o ops) (any, error) { return o.deleteNode(ctx, id) })
	if err != nil {
		return 0, err
	}

	return res.(int), nil
}

func (c *conn) CreateEdge(ctx context.Context, req models.CreateEdgeRequest) (*models.Edge, error) {
	res, err := c.write(ctx, "create_edge", func(o ops) (any, error) { return o.createEdge(ctx, req) })
	if err != nil {
		return nil, err
	}

	return res.(*models.Edge), nil
}

func (c *conn) GetEdge(ctx context.Context, id string) (*models.Edge, error) {
	res, err := c.read(ctx, "get_edge", func(o ops) (any, error) { return o.getEdge(ctx, id) })
	if err != nil {
		return nil, err
	}

	return res.(*models.Edge), nil
}

func (c *conn) UpdateEdge(ctx context.Context, id string, props map[string]any) (*models.Edge, error) {
	res, err := c.write(ctx, "update_edge", func(o ops) (any, error) { return o.updateEdge(ctx, id, props) })
	if err != nil {
		return nil, err
	}

	return res.(*models.Edge), nil
}

func (c *conn) DeleteEdge(ctx context.Context, id string) error {
	_, err := c.write(ctx, "delete_edge", func(o ops) (any, error) { return nil, o.deleteEdge(ctx, id) })

	return err
}

func (c *conn) ListEdges(ctx context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error) {
	res, err := c.read(ctx, "list_edges", func(o ops) (any, error) { return o.listEdges(ctx, nodeID, label, dir) })
	if err != nil {
		return nil, err
	}

	return res.([]models.Edge), nil
}

func (c *conn) ScanNodes(ctx context.Context, pf query.Prefilter) ([]models.Node, error) {
	res, err := c.read(ctx, "scan_nodes", func(o ops) (any, error) { return o.scanNodes(ctx, pf) })
	if err != nil {
		return nil, err
	}

	return res.([]models.Node), nil
}

func (c *conn) OutgoingEdges(ctx context.Context, nodeID string, labels []string) ([]models.Edge, error) {
	res, err := c.read(ctx, "outgoing_edges", func(o ops) (any, error) { return o.outgoingEdges(ctx, nodeID, labels) })
	if err != nil {
		return nil, err
	}

	return res.([]models.Edge), nil
}

func (c *conn) Execute(ctx context.Context, plan *query.Plan) (*query.Result, error) {
	res, err := query.Execute(ctx, c, plan)
	if err != nil {
		return nil, backend.QueryFault("neo4j execution", err)
	}

	return res, nil
}

func (c *conn) BatchCreateNodes(ctx context.Context, reqs []models.CreateNodeRequest) ([]models.Node, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	res, err := c.write(ctx, "batch_create_nodes", func(o ops) (any, error) { return o.bulkNodes(ctx, reqs) })
	if err != nil {
		return nil, err
	}

	return res.([]models.Node), nil
}

func (c *conn) BatchCreateEdges(ctx context.Context, reqs []models.CreateEdgeRequest) ([]models.Edge, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	res, err := c.write(ctx, "batch_create_edges", func(o ops) (any, error) { return o.bulkEdges(ctx, reqs) })
	if err != nil {
		return nil, err
	}

	return res.([]models.Edge), nil
}

func (c *conn) Begin(ctx context.Context) (backend.Tx, error) {
	if c.closed.Load() {
		return nil, models.ErrNotConnected
	}

	session := c.session(ctx, neo4j.AccessModeWrite)

	explicit, err := session.BeginTransaction(ctx)
	if err != nil {
		session.Close(ctx) //nolint:errcheck // best-effort cleanup.

		return nil, c.store.mapErr("begin", err)
	}

	return &tx{store: c.store, session: session, tx: explicit}, nil
}
