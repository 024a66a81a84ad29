// Package pool provides a bounded, health-checked pool of backend handles.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/metrics"
	"github.com/persistorai/graphrouter/internal/models"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultSize           = 8
	DefaultAcquireTimeout = 5 * time.Second
	DefaultHealthInterval = 30 * time.Second
	DefaultProbeAfter     = 5 * time.Second
	probeTimeout          = 2 * time.Second
)

// Config describes how handles are created, checked and closed.
type Config[H any] struct {
	Size           int
	AcquireTimeout time.Duration
	// HealthInterval is the period of the background probe of idle handles.
	// A negative value disables the background loop.
	HealthInterval time.Duration
	// ProbeAfter is how long a handle may sit idle before Acquire probes it.
	ProbeAfter time.Duration
	Factory    func(ctx context.Context) (H, error)
	Probe      func(ctx context.Context, h H) error
	Close      func(h H) error
}

type slot[H any] struct {
	h        H
	lastUsed time.Time
}

// Lease is a checked-out handle. Return it with Release or Discard exactly once.
type Lease[H any] struct {
	Handle H
	slot   *slot[H]
	once   sync.Once
}

// Stats is a point-in-time view of pool occupancy.
type Stats struct {
	Size  int `json:"size"`
	InUse int `json:"in_use"`
	Idle  int `json:"idle"`
}

// Pool bounds the number of concurrently leased handles.
type Pool[H any] struct {
	cfg    Config[H]
	log    *logrus.Logger
	tokens chan struct{}

	mu     sync.Mutex
	idle   []*slot[H]
	inUse  int
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a pool and starts its background health loop.
func New[H any](cfg Config[H], log *logrus.Logger) (*Pool[H], error) {
	if cfg.Factory == nil {
		return nil, errors.New("pool: factory is required")
	}

	if cfg.Size <= 0 {
		cfg.Size = DefaultSize
	}

	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}

	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}

	if cfg.ProbeAfter <= 0 {
		cfg.ProbeAfter = DefaultProbeAfter
	}

	p := &Pool[H]{
		cfg:    cfg,
		log:    log,
		tokens: make(chan struct{}, cfg.Size),
		stop:   make(chan struct{}),
	}

	if cfg.HealthInterval > 0 && cfg.Probe != nil {
		p.wg.Add(1)

		go p.healthLoop()
	}

	return p, nil
}

// Acquire leases a handle, waiting at most the configured timeout. When the
// wait times out it fails with models.ErrPoolExhausted.
func (p *Pool[H]) Acquire(ctx context.Context) (*Lease[H], error) {
	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	select {
	case p.tokens <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("waited %s for a handle: %w", p.cfg.AcquireTimeout, models.ErrPoolExhausted)
	}

	metrics.PoolWait.Observe(time.Since(start).Seconds())

	s, err := p.checkout(ctx)
	if err != nil {
		<-p.tokens

		return nil, err
	}

	p.mu.Lock()
	p.inUse++
	p.mu.Unlock()
	metrics.PoolInUse.Inc()

	return &Lease[H]{Handle: s.h, slot: s}, nil
}

// checkout pops a healthy idle handle or creates a new one.
func (p *Pool[H]) checkout(ctx context.Context) (*slot[H], error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()

			return nil, models.ErrNotConnected
		}

		var s *slot[H]
		if n := len(p.idle); n > 0 {
			s = p.idle[n-1]
			p.idle = p.idle[:n-1]
		}
		p.mu.Unlock()

		if s == nil {
			h, err := p.cfg.Factory(ctx)
			if err != nil {
				return nil, err
			}

			return &slot[H]{h: h, lastUsed: time.Now()}, nil
		}

		if p.cfg.Probe == nil || time.Since(s.lastUsed) < p.cfg.ProbeAfter {
			return s, nil
		}

		if err := p.probe(ctx, s.h); err != nil {
			p.evict(s, err)

			continue
		}

		return s, nil
	}
}

// Release returns a leased handle to the pool.
func (p *Pool[H]) Release(l *Lease[H]) {
	l.once.Do(func() {
		l.slot.lastUsed = time.Now()

		p.mu.Lock()
		p.inUse--
		keep := !p.closed && len(p.idle) < p.cfg.Size
		if keep {
			p.idle = append(p.idle, l.slot)
		}
		p.mu.Unlock()

		if !keep {
			p.closeHandle(l.slot.h)
		}

		metrics.PoolInUse.Dec()
		<-p.tokens
	})
}

// Discard closes a leased handle instead of returning it, e.g. after a broken connection.
func (p *Pool[H]) Discard(l *Lease[H]) {
	l.once.Do(func() {
		p.mu.Lock()
		p.inUse--
		p.mu.Unlock()

		p.closeHandle(l.slot.h)
		metrics.PoolInUse.Dec()
		<-p.tokens
	})
}

// With leases a handle for the duration of fn and always releases it, including
// when fn panics. A connection error from fn discards the handle.
func (p *Pool[H]) With(ctx context.Context, fn func(H) error) (err error) {
	l, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	defer func() {
		var connErr *models.ConnectionError
		if err != nil && errors.As(err, &connErr) {
			p.Discard(l)

			return
		}

		p.Release(l)
	}()

	return fn(l.Handle)
}

// Stats reports current occupancy.
func (p *Pool[H]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{Size: p.cfg.Size, InUse: p.inUse, Idle: len(p.idle)}
}

// Close stops the health loop and closes idle handles. Handles still leased are
// closed when released.
func (p *Pool[H]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return
	}

	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	close(p.stop)
	p.wg.Wait()

	for _, s := range idle {
		p.closeHandle(s.h)
	}
}

func (p *Pool[H]) healthLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.checkIdle()
		}
	}
}

// checkIdle probes every idle handle and evicts the ones that fail.
func (p *Pool[H]) checkIdle() {
	p.mu.Lock()
	batch := p.idle
	p.idle = nil
	p.mu.Unlock()

	healthy := batch[:0]

	for _, s := range batch {
		if err := p.probe(context.Background(), s.h); err != nil {
			p.evict(s, err)

			continue
		}

		healthy = append(healthy, s)
	}

	p.mu.Lock()
	var overflow []*slot[H]
	for _, s := range healthy {
		if p.closed || len(p.idle) >= p.cfg.Size {
			overflow = append(overflow, s)

			continue
		}

		p.idle = append(p.idle, s)
	}
	p.mu.Unlock()

	for _, s := range overflow {
		p.closeHandle(s.h)
	}
}

func (p *Pool[H]) probe(ctx context.Context, h H) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	return p.cfg.Probe(ctx, h)
}

func (p *Pool[H]) evict(s *slot[H], cause error) {
	p.log.WithError(cause).Warn("evicting pooled handle after failed probe")
	metrics.PoolEvictions.Inc()
	p.closeHandle(s.h)
}

func (p *Pool[H]) closeHandle(h H) {
	if p.cfg.Close == nil {
		return
	}

	if err := p.cfg.Close(h); err != nil {
		p.log.WithError(err).Debug("closing pooled handle")
	}
}
