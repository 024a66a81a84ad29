package txn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/backend/local"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/ontology"
	"github.com/persistorai/graphrouter/internal/query"
	"github.com/persistorai/graphrouter/internal/txn"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

func setup(t *testing.T) (*ontology.Registry, backend.Conn) {
	t.Helper()

	reg := ontology.NewRegistry()
	if err := reg.RegisterNodeType("Person", map[string]ontology.PropType{"name": ontology.String}, []string{"name"}); err != nil {
		t.Fatalf("RegisterNodeType: %v", err)
	}

	if err := reg.Register(ontology.Type{Name: "knows", Kind: ontology.EdgeKind, ForbidParallel: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	store := local.New(local.Options{}, testLogger())
	if err := store.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	conn, err := store.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return reg, conn
}

func countNodes(t *testing.T, c backend.Conn) int {
	t.Helper()

	nodes, err := c.ScanNodes(context.Background(), query.Prefilter{})
	if err != nil {
		t.Fatalf("ScanNodes: %v", err)
	}

	return len(nodes)
}

func TestExecute_CommitsInOrder(t *testing.T) {
	t.Parallel()

	reg, conn := setup(t)
	m := txn.New(reg, testLogger())

	a, _ := m.CreateNode("Person", map[string]any{"name": "Ada"})
	b, _ := m.CreateNode("Person", map[string]any{"name": "Grace"})
	e, _ := m.CreateEdge(a, b, "KNOWS", nil)

	if err := m.UpdateNode(a, map[string]any{"age": 36}); err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}

	outcomes, err := m.Execute(context.Background(), conn)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(outcomes) != 4 || outcomes[2].ID != e {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}

	edge, err := conn.GetEdge(context.Background(), e)
	if err != nil {
		t.Fatalf("GetEdge: %v", err)
	}

	if edge.Label != "knows" || edge.From != a || edge.To != b {
		t.Errorf("unexpected edge %+v", edge)
	}

	n, _ := conn.GetNode(context.Background(), a)
	if n.Properties["age"] != 36 && n.Properties["age"] != float64(36) {
		t.Errorf("update not applied: %v", n.Properties)
	}
}

func TestExecute_InvalidTargetLeavesNothing(t *testing.T) {
	t.Parallel()

	reg, conn := setup(t)
	m := txn.New(reg, testLogger())

	a, _ := m.CreateNode("Person", map[string]any{"name": "Ada"})
	_, _ = m.CreateNode("Person", map[string]any{"name": "Grace"})
	_, _ = m.CreateEdge(a, "ghost", "knows", nil)

	_, err := m.Execute(context.Background(), conn)

	var opErr *txn.OpError
	if !errors.As(err, &opErr) || opErr.Index != 2 || opErr.Kind != txn.CreateEdge {
		t.Fatalf("expected OpError at index 2, got %v", err)
	}

	if !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}

	if got := countNodes(t, conn); got != 0 {
		t.Errorf("expected zero nodes persisted, got %d", got)
	}
}

func TestExecute_BackendFailureRollsBack(t *testing.T) {
	t.Parallel()

	reg, conn := setup(t)

	if _, err := conn.CreateNode(context.Background(), models.CreateNodeRequest{
		ID: "taken", Label: "Person", Properties: map[string]any{"name": "Existing"},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := txn.New(reg, testLogger())
	_, _ = m.CreateNode("Person", map[string]any{"name": "New"})
	_, _ = m.Add(txn.CreateNode, txn.Args{ID: "taken", Label: "Person", Properties: map[string]any{"name": "Dup"}})
	_, _ = m.CreateNode("Person", map[string]any{"name": "Never"})

	_, err := m.Execute(context.Background(), conn)

	var opErr *txn.OpError
	if !errors.As(err, &opErr) || opErr.Index != 1 {
		t.Fatalf("expected OpError at index 1, got %v", err)
	}

	if !errors.Is(err, models.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	if got := countNodes(t, conn); got != 1 {
		t.Errorf("expected only the seed node, got %d", got)
	}
}

func TestExecute_ValidationRunsFirst(t *testing.T) {
	t.Parallel()

	reg, conn := setup(t)
	m := txn.New(reg, testLogger())

	_, _ = m.CreateNode("Person", map[string]any{"name": "Ada"})
	_, _ = m.CreateNode("Person", map[string]any{})

	_, err := m.Execute(context.Background(), conn)

	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Kind != models.MissingField || ve.Field != "name" {
		t.Fatalf("expected missing_field name, got %v", err)
	}

	if got := countNodes(t, conn); got != 0 {
		t.Errorf("expected nothing sent, got %d nodes", got)
	}
}

func TestExecute_ForbidsParallelWithinBatch(t *testing.T) {
	t.Parallel()

	reg, conn := setup(t)
	m := txn.New(reg, testLogger())

	a, _ := m.CreateNode("Person", map[string]any{"name": "Ada"})
	b, _ := m.CreateNode("Person", map[string]any{"name": "Grace"})
	_, _ = m.CreateEdge(a, b, "knows", nil)
	_, _ = m.CreateEdge(a, b, "knows", nil)

	_, err := m.Execute(context.Background(), conn)

	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Kind != models.ParallelEdge {
		t.Fatalf("expected parallel_edge, got %v", err)
	}
}

func TestExecute_DeleteThenReference(t *testing.T) {
	t.Parallel()

	reg, conn := setup(t)
	m := txn.New(reg, testLogger())

	a, _ := m.CreateNode("Person", map[string]any{"name": "Ada"})
	_ = m.DeleteNode(a)
	_ = m.UpdateNode(a, map[string]any{"name": "Ghost"})

	_, err := m.Execute(context.Background(), conn)
	if !errors.Is(err, models.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound for update after delete, got %v", err)
	}
}

func TestManager_RunsOnce(t *testing.T) {
	t.Parallel()

	reg, conn := setup(t)
	m := txn.New(reg, testLogger())
	_, _ = m.CreateNode("Person", map[string]any{"name": "Ada"})

	if _, err := m.Execute(context.Background(), conn); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, err := m.Execute(context.Background(), conn); !errors.Is(err, txn.ErrExecuted) {
		t.Errorf("expected ErrExecuted, got %v", err)
	}

	if _, err := m.CreateNode("Person", map[string]any{"name": "Late"}); !errors.Is(err, txn.ErrExecuted) {
		t.Errorf("expected ErrExecuted from Add, got %v", err)
	}
}

func TestAdd_RejectsBadInput(t *testing.T) {
	t.Parallel()

	m := txn.New(ontology.NewRegistry(), testLogger())

	if _, err := m.Add("merge_node", txn.Args{}); !errors.Is(err, txn.ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}

	if err := m.DeleteNode(""); err == nil {
		t.Error("expected error for delete without id")
	}

	if m.Len() != 0 {
		t.Errorf("rejected ops must not be queued, got %d", m.Len())
	}
}
