// Package cache provides the fingerprinted result cache with pattern invalidation.
//
// Fingerprints are derived from the canonical plan encoding, so two plans that
// differ only in predicate order get different keys. That costs hit rate, never
// correctness: writes invalidate by label tag and by the query:* family.
//
// Entries hold deep copies of the cached values, so a hit returns the same
// concrete types the miss produced. A checksum over the canonical JSON of each
// value is kept to detect an entry that changed after it was stored.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/metrics"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

// Key family prefixes.
const (
	prefixQuery = "query:"
	prefixNode  = "node:"
	prefixEdge  = "edge:"
)

// DefaultTTL applies when Put is called with a zero ttl.
const DefaultTTL = 5 * time.Minute

// ErrUncacheable is returned by Fingerprint for plans whose canonical encoding
// does not determine their result.
var ErrUncacheable = errors.New("plan contains function predicates")

type entry struct {
	tags      []string
	ident     []byte
	value     any
	sum       [sha256.Size]byte
	createdAt time.Time
	ttl       time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) >= e.ttl
}

// Cache stores private copies of query results and single-entity reads.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64
	backend string
	version func() uint64
	ttl     time.Duration
	now     func() time.Time
	log     *logrus.Logger
}

// New creates a cache for one backend identity. version reports the current
// ontology version, which is folded into every plan fingerprint.
func New(backend string, version func() uint64, ttl time.Duration, log *logrus.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if version == nil {
		version = func() uint64 { return 0 }
	}

	return &Cache{
		entries: make(map[string]*entry),
		backend: backend,
		version: version,
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
}

// TTL returns the default entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

type fingerprintEnvelope struct {
	Backend string          `json:"backend"`
	Version uint64          `json:"ontology_version"`
	Plan    json.RawMessage `json:"plan"`
}

// Fingerprint returns the cache key for plan and the identity bytes stored with
// the entry to detect collisions.
func (c *Cache) Fingerprint(plan *query.Plan) (string, []byte, error) {
	if !plan.Cacheable() {
		return "", nil, ErrUncacheable
	}

	canonical, err := plan.Canonical()
	if err != nil {
		return "", nil, fmt.Errorf("encoding plan: %w", err)
	}

	ident, err := json.Marshal(fingerprintEnvelope{Backend: c.backend, Version: c.version(), Plan: canonical})
	if err != nil {
		return "", nil, fmt.Errorf("encoding fingerprint: %w", err)
	}

	sum := sha256.Sum256(ident)

	return prefixQuery + hex.EncodeToString(sum[:]), ident, nil
}

// Generation returns a counter that advances on every invalidation and Clear.
// Capture it before reading the backend and hand it to a PutIfCurrent call.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gen
}

// Get returns the cached result for plan. Any inconsistency is a miss, and
// uncacheable plans always miss.
func (c *Cache) Get(plan *query.Plan) (*query.Result, bool) {
	key, ident, err := c.Fingerprint(plan)
	if err != nil {
		return nil, false
	}

	v, ok := c.load(key, ident)
	if !ok {
		return nil, false
	}

	res, ok := v.(*query.Result)
	if !ok {
		return nil, false
	}

	out := res.Clone()
	out.Cached = true

	return out, true
}

// Put stores a copy of result for plan. A zero ttl uses the cache default.
func (c *Cache) Put(plan *query.Plan, result *query.Result, ttl time.Duration) {
	c.putResult(plan, result, ttl, nil)
}

// PutIfCurrent stores a copy of result unless the cache was invalidated after
// gen was read. It reports whether the entry was stored.
func (c *Cache) PutIfCurrent(plan *query.Plan, result *query.Result, ttl time.Duration, gen uint64) bool {
	return c.putResult(plan, result, ttl, &gen)
}

func (c *Cache) putResult(plan *query.Plan, result *query.Result, ttl time.Duration, gen *uint64) bool {
	key, ident, err := c.Fingerprint(plan)
	if err != nil {
		if !errors.Is(err, ErrUncacheable) {
			c.log.WithError(err).Warn("skipping cache put: fingerprint failed")
		}

		return false
	}

	tags := make([]string, 0, len(plan.Labels()))
	for _, l := range plan.Labels() {
		tags = append(tags, prefixNode+l+":query")
	}

	snapshot := result.Clone()
	snapshot.Cached = false

	return c.store(key, ident, tags, snapshot, ttl, gen)
}

// GetNode returns a cached single-node read.
func (c *Cache) GetNode(id string) (*models.Node, bool) {
	v, ok := c.load(prefixNode+id, []byte(id))
	if !ok {
		return nil, false
	}

	n, ok := v.(*models.Node)
	if !ok {
		return nil, false
	}

	out := n.Clone()

	return &out, true
}

// PutNode caches a single-node read, tagged by label.
func (c *Cache) PutNode(n *models.Node) {
	c.putNode(n, nil)
}

// PutNodeIfCurrent caches a single-node read unless the cache was invalidated
// after gen was read.
func (c *Cache) PutNodeIfCurrent(n *models.Node, gen uint64) bool {
	return c.putNode(n, &gen)
}

func (c *Cache) putNode(n *models.Node, gen *uint64) bool {
	cp := n.Clone()

	return c.store(prefixNode+n.ID, []byte(n.ID), []string{NodeTag(n.Label, n.ID)}, &cp, 0, gen)
}

// GetEdge returns a cached single-edge read.
func (c *Cache) GetEdge(id string) (*models.Edge, bool) {
	v, ok := c.load(prefixEdge+id, []byte(id))
	if !ok {
		return nil, false
	}

	e, ok := v.(*models.Edge)
	if !ok {
		return nil, false
	}

	out := e.Clone()

	return &out, true
}

// PutEdge caches a single-edge read, tagged by label.
func (c *Cache) PutEdge(e *models.Edge) {
	c.putEdge(e, nil)
}

// PutEdgeIfCurrent caches a single-edge read unless the cache was invalidated
// after gen was read.
func (c *Cache) PutEdgeIfCurrent(e *models.Edge, gen uint64) bool {
	return c.putEdge(e, &gen)
}

func (c *Cache) putEdge(e *models.Edge, gen *uint64) bool {
	cp := e.Clone()

	return c.store(prefixEdge+e.ID, []byte(e.ID), []string{EdgeTag(e.Label, e.ID)}, &cp, 0, gen)
}

// NodeTag is the invalidation tag of a cached node.
func NodeTag(label, id string) string { return prefixNode + label + ":" + id }

// EdgeTag is the invalidation tag of a cached edge.
func EdgeTag(label, id string) string { return prefixEdge + label + ":" + id }

// Invalidate removes every entry whose key or any tag matches the glob pattern.
// It returns the number of entries removed. The generation advances even when
// nothing matched, so in-flight fills started earlier are dropped.
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	removed := 0

	for key, e := range c.entries {
		if matchEntry(pattern, key, e.tags) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// InvalidateNodeWrite drops entries a write of a node with label may have made stale.
func (c *Cache) InvalidateNodeWrite(label string) int {
	return c.Invalidate(prefixNode+label+":*") + c.Invalidate(prefixQuery+"*")
}

// InvalidateNodeDelete drops entries a node deletion may have made stale,
// including every cached edge since the cascade removes incident edges.
func (c *Cache) InvalidateNodeDelete(label string) int {
	return c.InvalidateNodeWrite(label) + c.Invalidate(prefixEdge+"*")
}

// InvalidateEdgeWrite drops entries a write of an edge with label may have made stale.
func (c *Cache) InvalidateEdgeWrite(label string) int {
	return c.Invalidate(prefixEdge+label+":*") + c.Invalidate(prefixQuery+"*")
}

// Purge removes expired entries and returns how many were dropped.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0

	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.gen++
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// store saves v, which the caller has already copied. With a non-nil gen the
// entry is dropped if the generation moved on.
func (c *Cache) store(key string, ident []byte, tags []string, v any, ttl time.Duration, gen *uint64) bool {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("skipping cache put: snapshot failed")

		return false
	}

	if ttl <= 0 {
		ttl = c.ttl
	}

	e := &entry{
		tags:      tags,
		ident:     bytes.Clone(ident),
		value:     v,
		sum:       sha256.Sum256(data),
		createdAt: c.now(),
		ttl:       ttl,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != nil && *gen != c.gen {
		return false
	}

	c.entries[key] = e

	return true
}

// load returns the stored value at key. A missing, expired, altered or
// colliding entry reports false; the last three are evicted.
func (c *Cache) load(key string, ident []byte) (any, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]

	if ok && e.expired(c.now()) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		metrics.CacheMisses.Inc()

		return nil, false
	}

	reason := ""

	if !bytes.Equal(e.ident, ident) {
		reason = "fingerprint collision"
	} else if data, err := json.Marshal(e.value); err != nil {
		reason = "unencodable entry"
	} else if sha256.Sum256(data) != e.sum {
		reason = "checksum mismatch"
	}

	if reason != "" {
		c.log.WithFields(logrus.Fields{"key": key, "reason": reason}).Warn("evicting unusable cache entry")
		c.evict(key, e)
		metrics.CacheMisses.Inc()

		return nil, false
	}

	metrics.CacheHits.Inc()

	return e.value, true
}

// evict removes key only if it still holds e.
func (c *Cache) evict(key string, e *entry) {
	c.mu.Lock()
	if c.entries[key] == e {
		delete(c.entries, key)
	}
	c.mu.Unlock()
}
