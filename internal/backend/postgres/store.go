// Package postgres implements the remote ACID graph backend on PostgreSQL.
//
// Nodes and edges live in gr_nodes and gr_edges with JSONB properties. The
// schema is managed by goose migrations applied on Connect. Each backend.Conn
// holds one pgxpool connection until it is closed.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/db"
	"github.com/persistorai/graphrouter/internal/db/migrations"
	"github.com/persistorai/graphrouter/internal/dbpool"
	"github.com/persistorai/graphrouter/internal/models"
)

// Options configures the PostgreSQL backend.
type Options struct {
	URL            string
	MaxConns       int32
	StatementLimit time.Duration
	// Notify publishes every committed write on db.ChangesChannel so other
	// instances can invalidate their caches.
	Notify bool
}

// Store is the PostgreSQL backend driver.
type Store struct {
	opts   Options
	log    *logrus.Logger
	now    func() time.Time
	origin string

	mu   sync.RWMutex
	pool *dbpool.Pool
}

var _ backend.Driver = (*Store)(nil)

// New creates a PostgreSQL store. Call Connect before opening connections.
func New(opts Options, log *logrus.Logger) *Store {
	return &Store{opts: opts, log: log, now: time.Now, origin: uuid.New().String()}
}

// Name identifies the store for cache fingerprints. Credentials are not included.
func (s *Store) Name() string {
	cfg, err := pgconn.ParseConfig(s.opts.URL)
	if err != nil {
		return "postgres"
	}

	return fmt.Sprintf("postgres:%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
}

// Origin is the id stamped on this instance's change notifications.
func (s *Store) Origin() string { return s.origin }

// Capabilities reports native transactions and multi-row INSERT bulk loads.
func (s *Store) Capabilities() backend.Capabilities {
	return backend.Capabilities{NativeTransactions: true, NativeBulk: true, LabelPushdown: true}
}

// Pool returns the underlying pool, or nil before Connect.
func (s *Store) Pool() *dbpool.Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pool
}

// Connect creates the pgx pool and applies pending migrations.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		return nil
	}

	pool, err := dbpool.NewPool(ctx, s.opts.URL, dbpool.Options{
		MaxConns:       s.opts.MaxConns,
		StatementLimit: s.opts.StatementLimit,
	})
	if err != nil {
		return &models.ConnectionError{Backend: s.Name(), Op: "connect", Err: err}
	}

	if err := db.RunMigrations(ctx, pool, s.log, migrations.FS); err != nil {
		pool.Close()

		return fmt.Errorf("migrating graph schema: %w", err)
	}

	s.pool = pool
	s.log.WithFields(logrus.Fields{
		"backend":        s.Name(),
		"schema_version": db.SchemaVersion(),
	}).Info("postgres connected")

	return nil
}

// Disconnect closes the pool.
func (s *Store) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}

	return nil
}

// Open acquires a pooled server connection for the lifetime of the Conn.
func (s *Store) Open(ctx context.Context) (backend.Conn, error) {
	s.mu.RLock()
	pool := s.pool
	s.mu.RUnlock()

	if pool == nil {
		return nil, models.ErrNotConnected
	}

	pc, err := pool.Acquire(ctx)
	if err != nil {
		return nil, s.mapErr("open", err)
	}

	return &conn{store: s, pc: pc}, nil
}

func (s *Store) ops(q queryer) ops {
	return ops{q: q, now: s.now(), origin: s.origin, notify: s.opts.Notify}
}

// mapErr classifies server and transport errors. Domain errors pass through.
func (s *Store) mapErr(op string, err error) error {
	return classify(s.Name(), op, err)
}

func classify(name, op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%s: %w", pgErr.Detail, models.ErrDuplicateKey)
		case pgErr.Code == "23503":
			return fmt.Errorf("%s: %w", pgErr.Detail, models.ErrNodeNotFound)
		case pgErr.Code == "57P01", len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "28"):
			return &models.ConnectionError{Backend: name, Op: op, Err: err}
		}

		return err
	}

	var (
		connectErr *pgconn.ConnectError
		netErr     net.Error
	)

	if errors.As(err, &connectErr) || errors.As(err, &netErr) {
		return &models.ConnectionError{Backend: name, Op: op, Err: err}
	}

	return err
}
