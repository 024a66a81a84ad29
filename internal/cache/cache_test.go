package cache_test

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/cache"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

func personPlan(t *testing.T) *query.Plan {
	t.Helper()

	p, err := query.NewBuilder().LabelEquals("Person").PropertyEquals("name", "Ada").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	return p
}

func sampleResult() *query.Result {
	return &query.Result{
		Nodes: []models.Node{{ID: "n1", Label: "Person", Properties: map[string]any{"name": "Ada"}}},
		Total: 1,
	}
}

func TestGetAfterPut(t *testing.T) {
	t.Parallel()

	c := cache.New("local:test", nil, time.Minute, testLogger())
	p := personPlan(t)

	if _, ok := c.Get(p); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put(p, sampleResult(), 0)

	got, ok := c.Get(p)
	if !ok {
		t.Fatal("expected hit after put")
	}

	if len(got.Nodes) != 1 || got.Nodes[0].ID != "n1" || got.Nodes[0].Properties["name"] != "Ada" {
		t.Errorf("unexpected cached result: %+v", got)
	}

	if !got.Cached {
		t.Error("expected Cached flag on hit")
	}
}

func TestInvalidate_TagPatterns(t *testing.T) {
	t.Parallel()

	for _, pattern := range []string{"query:*", "node:Person:*"} {
		c := cache.New("local:test", nil, time.Minute, testLogger())
		p := personPlan(t)
		c.Put(p, sampleResult(), 0)

		if n := c.Invalidate(pattern); n != 1 {
			t.Errorf("%s: expected 1 removal, got %d", pattern, n)
		}

		if _, ok := c.Get(p); ok {
			t.Errorf("%s: expected miss after invalidate", pattern)
		}
	}
}

func TestInvalidate_UnrelatedLabelKeepsNodeEntry(t *testing.T) {
	t.Parallel()

	c := cache.New("local:test", nil, time.Minute, testLogger())
	c.PutNode(&models.Node{ID: "n1", Label: "Person"})
	c.PutNode(&models.Node{ID: "c1", Label: "Company"})

	c.InvalidateNodeWrite("Company")

	if _, ok := c.GetNode("n1"); !ok {
		t.Error("Person node should survive a Company write")
	}

	if _, ok := c.GetNode("c1"); ok {
		t.Error("Company node should be invalidated")
	}
}

func TestTTLExpiry(t *testing.T) {
	t.Parallel()

	c := cache.New("local:test", nil, time.Minute, testLogger())

	now := time.Now()
	c.SetClock(func() time.Time { return now })

	p := personPlan(t)
	c.Put(p, sampleResult(), 10*time.Second)

	now = now.Add(9 * time.Second)
	if _, ok := c.Get(p); !ok {
		t.Fatal("expected hit within ttl")
	}

	now = now.Add(2 * time.Second)
	if _, ok := c.Get(p); ok {
		t.Fatal("expected miss after ttl")
	}
}

func TestOntologyVersionChangesFingerprint(t *testing.T) {
	t.Parallel()

	var version atomic.Uint64

	c := cache.New("local:test", version.Load, time.Minute, testLogger())
	p := personPlan(t)
	c.Put(p, sampleResult(), 0)

	version.Add(1)

	if _, ok := c.Get(p); ok {
		t.Error("schema change should make the old entry unreachable")
	}
}

func TestFailOpen_Corruption(t *testing.T) {
	t.Parallel()

	c := cache.New("local:test", nil, time.Minute, testLogger())
	p := personPlan(t)
	c.Put(p, sampleResult(), 0)

	key, _, err := c.Fingerprint(p)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}

	c.Corrupt(key)

	if _, ok := c.Get(p); ok {
		t.Fatal("corrupt entry must be a miss")
	}

	if c.Len() != 0 {
		t.Error("corrupt entry should be evicted")
	}
}

func TestFailOpen_Collision(t *testing.T) {
	t.Parallel()

	c := cache.New("local:test", nil, time.Minute, testLogger())
	p := personPlan(t)
	c.Put(p, sampleResult(), 0)

	key, _, err := c.Fingerprint(p)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}

	c.ForgeIdentity(key, []byte(`{"plan":"other"}`))

	if _, ok := c.Get(p); ok {
		t.Fatal("colliding entry must be a miss")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	t.Parallel()

	c := cache.New("local:test", nil, time.Minute, testLogger())
	p := personPlan(t)
	res := sampleResult()
	c.Put(p, res, 0)

	res.Nodes[0].Properties["name"] = "Mutated"

	got, ok := c.Get(p)
	if !ok {
		t.Fatal("expected hit")
	}

	if got.Nodes[0].Properties["name"] != "Ada" {
		t.Error("caller mutation leaked into cached snapshot")
	}
}

func TestHitPreservesValueTypes(t *testing.T) {
	t.Parallel()

	c := cache.New("local:test", nil, time.Minute, testLogger())
	p := personPlan(t)

	res := &query.Result{
		Nodes: []models.Node{{ID: "n1", Label: "Person", Properties: map[string]any{
			"name":      "Ada",
			"age":       36,
			"embedding": []float64{1, 0},
			"tags":      []any{"a", map[string]any{"k": 1}},
		}}},
		Rows:  []query.Row{{Key: "Ada", Values: map[string]any{"count": 1, "avg_age": 36.0}}},
		Total: 1,
	}
	c.Put(p, res, 0)

	got, ok := c.Get(p)
	if !ok {
		t.Fatal("expected hit")
	}

	if !reflect.DeepEqual(got.Nodes, res.Nodes) || !reflect.DeepEqual(got.Rows, res.Rows) {
		t.Errorf("hit differs from stored result:\ngot  %#v %#v\nwant %#v %#v", got.Nodes, got.Rows, res.Nodes, res.Rows)
	}

	got.Nodes[0].Properties["embedding"].([]float64)[0] = 5
	got.Nodes[0].Properties["tags"].([]any)[1].(map[string]any)["k"] = 2

	again, _ := c.Get(p)
	if !reflect.DeepEqual(again.Nodes, res.Nodes) {
		t.Error("mutating a hit changed the cached entry")
	}
}

func TestFunctionPlansAreUncacheable(t *testing.T) {
	t.Parallel()

	c := cache.New("local:test", nil, time.Minute, testLogger())

	p, err := query.NewBuilder().LabelEquals("Person").
		Where("adult", func(models.Node) bool { return true }).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	c.Put(p, sampleResult(), 0)

	if _, ok := c.Get(p); ok {
		t.Error("plan with a function predicate must never hit")
	}

	if c.Len() != 0 {
		t.Errorf("expected no stored entry, got %d", c.Len())
	}

	if _, _, err := c.Fingerprint(p); !errors.Is(err, cache.ErrUncacheable) {
		t.Errorf("expected ErrUncacheable, got %v", err)
	}
}

func TestPutIfCurrent(t *testing.T) {
	t.Parallel()

	c := cache.New("local:test", nil, time.Minute, testLogger())
	p := personPlan(t)

	gen := c.Generation()
	c.InvalidateNodeWrite("Company")

	if c.PutIfCurrent(p, sampleResult(), 0, gen) {
		t.Fatal("fill started before an invalidation must be dropped")
	}

	if _, ok := c.Get(p); ok {
		t.Fatal("dropped fill must not be readable")
	}

	gen = c.Generation()
	if !c.PutIfCurrent(p, sampleResult(), 0, gen) {
		t.Fatal("fill without intervening invalidation must be stored")
	}

	gen = c.Generation()
	c.Clear()

	if c.PutNodeIfCurrent(&models.Node{ID: "n1", Label: "Person"}, gen) {
		t.Error("Clear must also drop in-flight node fills")
	}
}

func TestPurge(t *testing.T) {
	t.Parallel()

	c := cache.New("local:test", nil, time.Minute, testLogger())

	now := time.Now()
	c.SetClock(func() time.Time { return now })

	c.PutNode(&models.Node{ID: "n1", Label: "Person"})
	now = now.Add(2 * time.Minute)

	if n := c.Purge(); n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := cache.New("local:test", nil, time.Minute, testLogger())
	p := personPlan(t)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(3)

		go func() { defer wg.Done(); c.Put(p, sampleResult(), 0) }()
		go func() { defer wg.Done(); c.Get(p) }()
		go func() { defer wg.Done(); c.Invalidate("query:*") }()
	}

	wg.Wait()
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern, s string
		want       bool
	}{
		{"node:*", "node:Person:n1", true},
		{"node:Person:*", "node:Person:a/b", true},
		{"node:Person:*", "node:Company:n1", false},
		{"query:*", "query:abc", true},
		{"edge:?", "edge:x", true},
		{"edge:?", "edge:xy", false},
		{"*", "", true},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "axxbyy", false},
	}

	for _, tt := range tests {
		if got := cache.Match(tt.pattern, tt.s); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.s, got, tt.want)
		}
	}
}
