// Package service provides the Database facade: the one object callers use
// to read and write the graph. It owns the backend driver and its connection
// pool, the ontology registry, the result cache, the deduplication chain,
// the merge-on-query engine and the operation monitor.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/cache"
	"github.com/persistorai/graphrouter/internal/dedup"
	"github.com/persistorai/graphrouter/internal/llm"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/monitor"
	"github.com/persistorai/graphrouter/internal/ontology"
	"github.com/persistorai/graphrouter/internal/pool"
	"github.com/persistorai/graphrouter/internal/resolve"
)

const defaultOpTimeout = 30 * time.Second

// Options configure a Database. Zero values select the defaults of the
// component they feed.
type Options struct {
	// Timeout bounds every operation. A timeout surfaces as a retryable
	// *models.ConnectionError.
	Timeout time.Duration

	PoolSize       int
	AcquireTimeout time.Duration
	HealthInterval time.Duration

	CacheTTL time.Duration

	// Dedup is the default write-time rule chain.
	Dedup dedup.Options
	// Scorer backs the likelihood dedup rule and merge-on-query.
	Scorer llm.Scorer
	// Merge holds the merge-on-query defaults.
	Merge resolve.Options

	// Events receives write events. Nil disables them.
	Events EventSink

	// Embedder fills EmbedField on created nodes in the background. Nil
	// disables the embed workers.
	Embedder     llm.Embedder
	EmbedField   string
	EmbedWorkers int

	MonitorWindow int
}

// Database is one logical graph over one backend. Multiple instances are
// independent.
type Database struct {
	driver   backend.Driver
	reg      *ontology.Registry
	opts     Options
	log      *logrus.Logger
	cache    *cache.Cache
	chain    *dedup.Chain
	resolver *resolve.Engine
	monitor  *monitor.Monitor
	flight   singleflight.Group

	mu       sync.RWMutex
	pool     *pool.Pool[backend.Conn]
	events   *EventWorker
	embeds   *EmbedWorker
	stopWork context.CancelFunc
	workers  sync.WaitGroup
}

// New creates a disconnected Database. A nil registry starts empty.
func New(driver backend.Driver, reg *ontology.Registry, opts Options, log *logrus.Logger) *Database {
	if reg == nil {
		reg = ontology.NewRegistry()
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultOpTimeout
	}

	if opts.EmbedField == "" {
		opts.EmbedField = opts.Merge.Field
	}

	return &Database{
		driver:   driver,
		reg:      reg,
		opts:     opts,
		log:      log,
		cache:    cache.New(driver.Name(), reg.Version, opts.CacheTTL, log),
		chain:    dedup.Build(opts.Dedup, opts.Scorer, log),
		resolver: resolve.New(reg, opts.Scorer, log),
		monitor:  monitor.New(driver.Name(), opts.MonitorWindow),
	}
}

// Connect opens the backend and its connection pool.
func (d *Database) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pool != nil {
		return nil
	}

	if err := d.driver.Connect(ctx); err != nil {
		return fmt.Errorf("connecting %s: %w", d.driver.Name(), err)
	}

	p, err := pool.New(pool.Config[backend.Conn]{
		Size:           d.opts.PoolSize,
		AcquireTimeout: d.opts.AcquireTimeout,
		HealthInterval: d.opts.HealthInterval,
		Factory:        d.driver.Open,
		Probe:          func(ctx context.Context, c backend.Conn) error { return c.Ping(ctx) },
		Close:          func(c backend.Conn) error { return c.Close() },
	}, d.log)
	if err != nil {
		_ = d.driver.Disconnect(ctx)

		return fmt.Errorf("creating connection pool: %w", err)
	}

	d.pool = p
	d.startWorkers()

	d.log.WithFields(logrus.Fields{
		"backend":          d.driver.Name(),
		"ontology_version": d.reg.Version(),
	}).Info("database connected")

	return nil
}

// Disconnect closes the pool and the backend. Pending events are flushed.
func (d *Database) Disconnect(ctx context.Context) error {
	d.stopWorkers()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pool == nil {
		return nil
	}

	d.pool.Close()
	d.pool = nil

	d.cache.Clear()

	if err := d.driver.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnecting %s: %w", d.driver.Name(), err)
	}

	return nil
}

// startWorkers launches the cache purger and the event and embed workers. Callers hold d.mu.
func (d *Database) startWorkers() {
	workCtx, cancel := context.WithCancel(context.Background())
	d.stopWork = cancel

	if d.opts.Events != nil {
		d.events = NewEventWorker(d.opts.Events, d.log, 0)
		w := d.events

		d.workers.Go(func() { w.Run(workCtx) })
	}

	d.workers.Go(func() { d.purgeCache(workCtx) })

	if d.opts.Embedder != nil && d.opts.EmbedField != "" {
		d.embeds = NewEmbedWorker(d.opts.Embedder, d.storeEmbedding, d.log, 0, d.opts.EmbedWorkers)
		w := d.embeds

		d.workers.Go(func() { w.Run(workCtx) })
	}
}

// stopWorkers cancels the workers and waits for them outside d.mu, since an
// embed worker may be mid-write.
func (d *Database) stopWorkers() {
	d.mu.Lock()
	stop := d.stopWork
	d.stopWork = nil
	d.embeds = nil
	d.mu.Unlock()

	if stop == nil {
		return
	}

	stop()
	d.workers.Wait()

	d.mu.Lock()
	d.events = nil
	d.mu.Unlock()
}

// purgeCache drops expired cache entries once per TTL until ctx ends. Entries
// keyed under an old ontology version are never read again and only leave
// through here.
func (d *Database) purgeCache(ctx context.Context) {
	ticker := time.NewTicker(d.cache.TTL())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.cache.Purge(); n > 0 {
				d.log.WithField("purged", n).Debug("expired cache entries purged")
			}
		}
	}
}

// Name identifies the backend.
func (d *Database) Name() string { return d.driver.Name() }

// Ontology returns the registry writes are validated against.
func (d *Database) Ontology() *ontology.Registry { return d.reg }

// RegisterType adds a node or edge type to the ontology. Cached results are
// keyed by ontology version, so earlier entries stop matching.
func (d *Database) RegisterType(t ontology.Type) error {
	if err := d.reg.Register(t); err != nil {
		return err
	}

	d.cache.Clear()
	d.emit(EventOntologyChanged, map[string]any{"kind": t.Kind, "name": t.Name, "version": d.reg.Version()})

	return nil
}

// Cache exposes the result cache.
func (d *Database) Cache() *cache.Cache { return d.cache }

// Metrics returns per-operation statistics.
func (d *Database) Metrics() map[string]monitor.Stats { return d.monitor.Snapshot() }

// ResetMetrics clears the operation statistics.
func (d *Database) ResetMetrics() { d.monitor.Reset() }

// Health is the result of a readiness check.
type Health struct {
	Backend         string               `json:"backend"`
	Connected       bool                 `json:"connected"`
	Capabilities    backend.Capabilities `json:"capabilities"`
	Pool            pool.Stats           `json:"pool"`
	CacheEntries    int                  `json:"cache_entries"`
	OntologyVersion uint64               `json:"ontology_version"`
	Error           string               `json:"error,omitempty"`
}

// Health pings the backend through the pool.
func (d *Database) Health(ctx context.Context) Health {
	h := Health{
		Backend:         d.driver.Name(),
		Capabilities:    d.driver.Capabilities(),
		CacheEntries:    d.cache.Len(),
		OntologyVersion: d.reg.Version(),
	}

	p, err := d.connPool()
	if err != nil {
		h.Error = err.Error()

		return h
	}

	h.Pool = p.Stats()

	err = d.run(ctx, "ping", func(ctx context.Context, c backend.Conn) error { return c.Ping(ctx) })
	if err != nil {
		h.Error = err.Error()

		return h
	}

	h.Connected = true

	return h
}

func (d *Database) connPool() (*pool.Pool[backend.Conn], error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.pool == nil {
		return nil, models.ErrNotConnected
	}

	return d.pool, nil
}

// withTimeout creates a context with the configured operation timeout.
func (d *Database) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.opts.Timeout)
}

// run leases a connection for fn under the operation timeout and records the
// outcome under op.
func (d *Database) run(ctx context.Context, op string, fn func(context.Context, backend.Conn) error) (err error) {
	defer d.monitor.Track(op)(&err)

	p, err := d.connPool()
	if err != nil {
		return err
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	err = p.With(ctx, func(c backend.Conn) error { return fn(ctx, c) })
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		var connErr *models.ConnectionError
		if !errors.As(err, &connErr) {
			err = &models.ConnectionError{Backend: d.driver.Name(), Op: op, Err: err}
		}
	}

	return err
}
