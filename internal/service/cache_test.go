package service_test

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/backend/local"
	"github.com/persistorai/graphrouter/internal/llm"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
	"github.com/persistorai/graphrouter/internal/resolve"
	"github.com/persistorai/graphrouter/internal/service"
)

func mustBuild(t *testing.T, b *query.Builder) *query.Plan {
	t.Helper()

	plan, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	return plan
}

func TestExecute_HitMatchesMiss(t *testing.T) {
	t.Parallel()

	d := newDatabase(t, service.Options{})
	ctx := context.Background()

	props := map[string]any{"name": "Ada", "age": 36, "embedding": []float64{1, 0}}
	if _, err := d.CreateNode(ctx, "Person", props, service.DedupOptions{}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	plans := map[string]*query.Plan{
		"nodes": peoplePlan(t),
		"aggregate": mustBuild(t, query.NewBuilder().LabelEquals("Person").GroupBy("name").
			Aggregate(query.AggCount, "", "n").Aggregate(query.AggSum, "age", "")),
	}

	for name, plan := range plans {
		miss, err := d.Execute(ctx, plan, service.ExecOptions{})
		if err != nil {
			t.Fatalf("%s: Execute: %v", name, err)
		}

		hit, err := d.Execute(ctx, plan, service.ExecOptions{})
		if err != nil {
			t.Fatalf("%s: Execute: %v", name, err)
		}

		if miss.Cached || !hit.Cached {
			t.Fatalf("%s: expected miss then hit, got cached=%v/%v", name, miss.Cached, hit.Cached)
		}

		if !reflect.DeepEqual(miss.Nodes, hit.Nodes) || !reflect.DeepEqual(miss.Rows, hit.Rows) {
			t.Errorf("%s: hit differs from miss:\nmiss=%#v %#v\nhit=%#v %#v", name, miss.Nodes, miss.Rows, hit.Nodes, hit.Rows)
		}
	}

	res, err := d.Execute(ctx, peoplePlan(t), service.ExecOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, ok := res.Nodes[0].Properties["age"].(int); !ok {
		t.Errorf("cached age has type %T, want int", res.Nodes[0].Properties["age"])
	}

	if _, ok := res.Nodes[0].Properties["embedding"].([]float64); !ok {
		t.Errorf("cached embedding has type %T, want []float64", res.Nodes[0].Properties["embedding"])
	}

	res.Nodes[0].Properties["embedding"].([]float64)[0] = 9

	again, err := d.Execute(ctx, peoplePlan(t), service.ExecOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := again.Nodes[0].Properties["embedding"].([]float64)[0]; got != 1 {
		t.Errorf("caller mutation leaked into the cache, embedding[0] = %v", got)
	}
}

func TestExecute_FunctionPredicatesAreNotCached(t *testing.T) {
	t.Parallel()

	d := newDatabase(t, service.Options{})
	ctx := context.Background()

	for _, p := range []map[string]any{{"name": "Kid", "age": 10}, {"name": "Elder", "age": 70}} {
		if _, err := d.CreateNode(ctx, "Person", p, service.DedupOptions{}); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
	}

	ageIs := func(age int) func(models.Node) bool {
		return func(n models.Node) bool { return n.Properties["age"] == age }
	}

	young := mustBuild(t, query.NewBuilder().LabelEquals("Person").Where("age_filter", ageIs(10)))
	old := mustBuild(t, query.NewBuilder().LabelEquals("Person").Where("age_filter", ageIs(70)))

	for _, tt := range []struct {
		plan *query.Plan
		want string
	}{{young, "Kid"}, {old, "Elder"}, {young, "Kid"}} {
		res, err := d.Execute(ctx, tt.plan, service.ExecOptions{})
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}

		if res.Cached {
			t.Error("plans with function predicates must not be served from the cache")
		}

		if len(res.Nodes) != 1 || res.Nodes[0].Properties["name"] != tt.want {
			t.Errorf("expected %s, got %+v", tt.want, res.Nodes)
		}
	}
}

// gate holds the first Execute after its backend read until released.
type gate struct {
	armed   atomic.Bool
	reached chan struct{}
	release chan struct{}
}

func newGate() *gate {
	g := &gate{reached: make(chan struct{}), release: make(chan struct{})}
	g.armed.Store(true)

	return g
}

type gatedDriver struct {
	*local.Store
	gate *gate
}

func (g gatedDriver) Open(ctx context.Context) (backend.Conn, error) {
	c, err := g.Store.Open(ctx)
	if err != nil {
		return nil, err
	}

	return gatedConn{Conn: c, gate: g.gate}, nil
}

type gatedConn struct {
	backend.Conn
	gate *gate
}

func (c gatedConn) Execute(ctx context.Context, plan *query.Plan) (*query.Result, error) {
	res, err := c.Conn.Execute(ctx, plan)

	if c.gate.armed.CompareAndSwap(true, false) {
		close(c.gate.reached)
		<-c.gate.release

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
	}

	return res, err
}

func TestExecute_WriteDuringFillIsNotMasked(t *testing.T) {
	t.Parallel()

	g := newGate()
	d := connect(t, gatedDriver{Store: local.New(local.Options{}, testLogger()), gate: g}, service.Options{PoolSize: 4})
	ctx := context.Background()

	if _, err := d.CreateNode(ctx, "Person", map[string]any{"name": "Ada"}, service.DedupOptions{}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	plan := peoplePlan(t)
	done := make(chan error, 1)

	go func() {
		_, err := d.Execute(ctx, plan, service.ExecOptions{})
		done <- err
	}()

	<-g.reached

	if _, err := d.CreateNode(ctx, "Person", map[string]any{"name": "Grace"}, service.DedupOptions{}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	close(g.release)

	if err := <-done; err != nil {
		t.Fatalf("Execute: %v", err)
	}

	res, err := d.Execute(ctx, peoplePlan(t), service.ExecOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Total != 2 {
		t.Errorf("stale fill served after write: total=%d cached=%v", res.Total, res.Cached)
	}
}

func TestExecute_CallerCancelDoesNotAbortSharedRead(t *testing.T) {
	t.Parallel()

	g := newGate()
	d := connect(t, gatedDriver{Store: local.New(local.Options{}, testLogger()), gate: g}, service.Options{PoolSize: 4})

	if _, err := d.CreateNode(context.Background(), "Person", map[string]any{"name": "Ada"}, service.DedupOptions{}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	plan := peoplePlan(t)
	done := make(chan error, 1)

	go func() {
		_, err := d.Execute(ctx, plan, service.ExecOptions{})
		done <- err
	}()

	<-g.reached
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller should return its own error, got %v", err)
	}

	close(g.release)

	for range 100 {
		res, err := d.Execute(context.Background(), peoplePlan(t), service.ExecOptions{})
		if err != nil {
			t.Fatalf("Execute after cancel: %v", err)
		}

		if res.Cached {
			if res.Total != 1 {
				t.Errorf("unexpected cached total %d", res.Total)
			}

			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Error("the shared read never filled the cache")
}

func TestExecute_SimilarityTypeRegistrationClearsCache(t *testing.T) {
	t.Parallel()

	d := newDatabase(t, service.Options{
		Scorer: &llm.Static{Score: 0.1},
		Merge:  resolve.Options{Field: "embedding", MinScore: 0.9},
	})
	ctx := context.Background()

	if _, err := d.CreateNode(ctx, "Person", map[string]any{"name": "Ada", "embedding": []float64{1, 0}}, service.DedupOptions{}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	orgs := mustBuild(t, query.NewBuilder().LabelEquals("Organization"))
	if _, err := d.Execute(ctx, orgs, service.ExecOptions{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	before := d.Ontology().Version()

	if _, err := d.Execute(ctx, peoplePlan(t), service.ExecOptions{MergeOnQuery: true}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if d.Ontology().Version() == before {
		t.Fatal("expected merge-on-query to register the similarity type")
	}

	if n := d.Cache().Len(); n != 0 {
		t.Errorf("entries keyed under the old ontology version must be dropped, %d left", n)
	}
}

func TestCachePurgeRunsInBackground(t *testing.T) {
	t.Parallel()

	d := newDatabase(t, service.Options{CacheTTL: 20 * time.Millisecond})

	if _, err := d.Execute(context.Background(), peoplePlan(t), service.ExecOptions{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for range 100 {
		if d.Cache().Len() == 0 {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Errorf("expired entries were never purged, %d left", d.Cache().Len())
}
