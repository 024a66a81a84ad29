// Package backendtest holds the behaviour every backend variant must share.
// Each variant's tests call Run with a factory for fresh, empty connections.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

// Factory returns a connection to an empty graph. Cleanup is the factory's job.
type Factory func(t *testing.T) backend.Conn

// Run executes the conformance suite.
func Run(t *testing.T, open Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, c backend.Conn)
	}{
		{"NodeCRUD", testNodeCRUD},
		{"DuplicateNode", testDuplicateNode},
		{"EdgeRequiresEndpoints", testEdgeRequiresEndpoints},
		{"ListEdgesDirections", testListEdgesDirections},
		{"DeleteCascades", testDeleteCascades},
		{"ExecuteFilters", testExecuteFilters},
		{"ExecutePath", testExecutePath},
		{"BatchCreate", testBatchCreate},
		{"TxCommit", testTxCommit},
		{"TxRollback", testTxRollback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func mustNode(t *testing.T, c backend.Conn, id, label string, props map[string]any) *models.Node {
	t.Helper()

	n, err := c.CreateNode(context.Background(), models.CreateNodeRequest{ID: id, Label: label, Properties: props})
	if err != nil {
		t.Fatalf("CreateNode(%s): %v", id, err)
	}

	return n
}

func mustEdge(t *testing.T, c backend.Conn, id, from, to, label string) *models.Edge {
	t.Helper()

	e, err := c.CreateEdge(context.Background(), models.CreateEdgeRequest{ID: id, From: from, To: to, Label: label})
	if err != nil {
		t.Fatalf("CreateEdge(%s): %v", id, err)
	}

	return e
}

func testNodeCRUD(t *testing.T, c backend.Conn) {
	ctx := context.Background()

	mustNode(t, c, "p1", "Person", map[string]any{"name": "Ada", "age": 36})

	got, err := c.GetNode(ctx, "p1")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}

	if got.Label != "Person" || got.Properties["name"] != "Ada" {
		t.Errorf("unexpected node: %+v", got)
	}

	upd, err := c.UpdateNode(ctx, "p1", map[string]any{"age": 37, "city": "London"})
	if err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}

	if upd.Properties["name"] != "Ada" || upd.Properties["city"] != "London" {
		t.Errorf("update should overlay properties, got %+v", upd.Properties)
	}

	if age, _ := query.Compare(upd.Properties["age"], 37); age != 0 {
		t.Errorf("expected age 37, got %v", upd.Properties["age"])
	}

	if _, err := c.UpdateNode(ctx, "missing", map[string]any{"x": 1}); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound on update, got %v", err)
	}

	if _, err := c.DeleteNode(ctx, "p1"); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}

	if _, err := c.GetNode(ctx, "p1"); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound after delete, got %v", err)
	}

	if _, err := c.DeleteNode(ctx, "p1"); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound on second delete, got %v", err)
	}
}

func testDuplicateNode(t *testing.T, c backend.Conn) {
	mustNode(t, c, "dup", "Person", nil)

	_, err := c.CreateNode(context.Background(), models.CreateNodeRequest{ID: "dup", Label: "Person"})
	if !errors.Is(err, models.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func testEdgeRequiresEndpoints(t *testing.T, c backend.Conn) {
	ctx := context.Background()

	mustNode(t, c, "a", "Person", nil)

	_, err := c.CreateEdge(ctx, models.CreateEdgeRequest{ID: "e1", From: "a", To: "ghost", Label: "knows"})
	if !errors.Is(err, models.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound for missing target, got %v", err)
	}

	if _, err := c.GetEdge(ctx, "e1"); !errors.Is(err, models.ErrEdgeNotFound) {
		t.Errorf("failed edge must not persist, got %v", err)
	}
}

func testListEdgesDirections(t *testing.T, c backend.Conn) {
	ctx := context.Background()

	mustNode(t, c, "a", "Person", nil)
	mustNode(t, c, "b", "Person", nil)
	mustNode(t, c, "c", "Company", nil)
	mustEdge(t, c, "ab", "a", "b", "knows")
	mustEdge(t, c, "ac", "a", "c", "works_at")
	mustEdge(t, c, "ba", "b", "a", "knows")

	cases := []struct {
		label string
		dir   models.Direction
		want  int
	}{
		{"", models.DirectionOut, 2},
		{"", models.DirectionIn, 1},
		{"", models.DirectionBoth, 3},
		{"knows", models.DirectionBoth, 2},
		{"KNOWS", models.DirectionOut, 1},
	}

	for _, tc := range cases {
		edges, err := c.ListEdges(ctx, "a", tc.label, tc.dir)
		if err != nil {
			t.Fatalf("ListEdges: %v", err)
		}

		if len(edges) != tc.want {
			t.Errorf("ListEdges(a, %q, %s) = %d edges, want %d", tc.label, tc.dir, len(edges), tc.want)
		}
	}

	upd, err := c.UpdateEdge(ctx, "ab", map[string]any{"since": "2020"})
	if err != nil {
		t.Fatalf("UpdateEdge: %v", err)
	}

	if upd.Properties["since"] != "2020" || upd.From != "a" || upd.To != "b" {
		t.Errorf("unexpected updated edge: %+v", upd)
	}

	if err := c.DeleteEdge(ctx, "ab"); err != nil {
		t.Fatalf("DeleteEdge: %v", err)
	}

	if err := c.DeleteEdge(ctx, "ab"); !errors.Is(err, models.ErrEdgeNotFound) {
		t.Errorf("expected ErrEdgeNotFound, got %v", err)
	}
}

func testDeleteCascades(t *testing.T, c backend.Conn) {
	ctx := context.Background()

	mustNode(t, c, "a", "Person", nil)
	mustNode(t, c, "b", "Person", nil)
	mustNode(t, c, "c", "Person", nil)
	mustEdge(t, c, "ab", "a", "b", "knows")
	mustEdge(t, c, "ca", "c", "a", "knows")
	mustEdge(t, c, "bc", "b", "c", "knows")

	removed, err := c.DeleteNode(ctx, "a")
	if err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}

	if removed != 2 {
		t.Errorf("expected 2 cascaded edges, got %d", removed)
	}

	for _, id := range []string{"ab", "ca"} {
		if _, err := c.GetEdge(ctx, id); !errors.Is(err, models.ErrEdgeNotFound) {
			t.Errorf("edge %s should be gone, got %v", id, err)
		}
	}

	if _, err := c.GetEdge(ctx, "bc"); err != nil {
		t.Errorf("unrelated edge should survive: %v", err)
	}
}

func testExecuteFilters(t *testing.T, c backend.Conn) {
	ctx := context.Background()

	for i := range 5 {
		mustNode(t, c, fmt.Sprintf("p%d", i), "Person", map[string]any{"age": 20 + i*10, "team": "x"})
	}

	mustNode(t, c, "c1", "Company", map[string]any{"age": 50})

	plan, err := query.NewBuilder().
		LabelEquals("Person").
		PropertyEquals("team", "x").
		PropertyGreaterThan("age", 25).
		OrderBy("age", true).
		Page(0, 2).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	res, err := c.Execute(ctx, plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Total != 4 {
		t.Errorf("expected total 4, got %d", res.Total)
	}

	ids := res.NodeIDs()
	if len(ids) != 2 || ids[0] != "p4" || ids[1] != "p3" {
		t.Errorf("unexpected page: %v", ids)
	}
}

func testExecutePath(t *testing.T, c backend.Conn) {
	ctx := context.Background()

	mustNode(t, c, "a", "A", nil)
	mustNode(t, c, "b", "B", nil)
	mustNode(t, c, "d", "D", nil)
	mustEdge(t, c, "ab", "a", "b", "next")
	mustEdge(t, c, "bd", "b", "d", "next")

	plan, err := query.NewBuilder().FindPath("A", "D", nil, 1, 3).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	res, err := c.Execute(ctx, plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(res.Paths) != 1 || res.Paths[0].Len() != 2 {
		t.Fatalf("expected one 2-edge path, got %+v", res.Paths)
	}
}

func testBatchCreate(t *testing.T, c backend.Conn) {
	ctx := context.Background()

	reqs := make([]models.CreateNodeRequest, 0, 30)
	for i := range 30 {
		reqs = append(reqs, models.CreateNodeRequest{ID: fmt.Sprintf("n%02d", i), Label: "Row", Properties: map[string]any{"i": i}})
	}

	nodes, err := c.BatchCreateNodes(ctx, reqs)
	if err != nil {
		t.Fatalf("BatchCreateNodes: %v", err)
	}

	if len(nodes) != 30 {
		t.Fatalf("expected 30 nodes, got %d", len(nodes))
	}

	edges, err := c.BatchCreateEdges(ctx, []models.CreateEdgeRequest{
		{ID: "e1", From: "n00", To: "n01", Label: "next"},
		{ID: "e2", From: "n01", To: "n02", Label: "next"},
	})
	if err != nil {
		t.Fatalf("BatchCreateEdges: %v", err)
	}

	if len(edges) != 2 {
		t.Errorf("expected 2 edges, got %d", len(edges))
	}

	plan, _ := query.NewBuilder().LabelEquals("Row").Build()

	res, err := c.Execute(ctx, plan)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Total != 30 {
		t.Errorf("expected 30 rows, got %d", res.Total)
	}
}

func testTxCommit(t *testing.T, c backend.Conn) {
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if _, err := tx.CreateNode(ctx, models.CreateNodeRequest{ID: "t1", Label: "Person"}); err != nil {
		t.Fatalf("tx CreateNode: %v", err)
	}

	if _, err := tx.CreateNode(ctx, models.CreateNodeRequest{ID: "t2", Label: "Person"}); err != nil {
		t.Fatalf("tx CreateNode: %v", err)
	}

	if _, err := tx.CreateEdge(ctx, models.CreateEdgeRequest{ID: "t12", From: "t1", To: "t2", Label: "knows"}); err != nil {
		t.Fatalf("tx CreateEdge: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := c.GetEdge(ctx, "t12"); err != nil {
		t.Errorf("committed edge missing: %v", err)
	}
}

func testTxRollback(t *testing.T, c backend.Conn) {
	ctx := context.Background()

	tx, err := c.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if _, err := tx.CreateNode(ctx, models.CreateNodeRequest{ID: "r1", Label: "Person"}); err != nil {
		t.Fatalf("tx CreateNode: %v", err)
	}

	_, err = tx.CreateEdge(ctx, models.CreateEdgeRequest{ID: "r1x", From: "r1", To: "ghost", Label: "knows"})
	if err == nil {
		t.Fatal("expected edge to missing target to fail")
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := c.GetNode(ctx, "r1"); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("rolled back node must not persist, got %v", err)
	}
}
