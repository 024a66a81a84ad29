package local_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/backend/backendtest"
	"github.com/persistorai/graphrouter/internal/backend/local"
	"github.com/persistorai/graphrouter/internal/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

func openStore(t *testing.T, path string) (*local.Store, backend.Conn) {
	t.Helper()

	s := local.New(local.Options{Path: path, OntologyVersion: func() uint64 { return 3 }}, testLogger())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	c, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return s, c
}

func TestConformance(t *testing.T) {
	t.Parallel()

	backendtest.Run(t, func(t *testing.T) backend.Conn {
		_, c := openStore(t, filepath.Join(t.TempDir(), "graph.json"))

		return c
	})
}

func TestConformance_InMemory(t *testing.T) {
	t.Parallel()

	backendtest.Run(t, func(t *testing.T) backend.Conn {
		_, c := openStore(t, "")

		return c
	})
}

func TestPersistsAcrossReconnect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.json")

	s, c := openStore(t, path)
	if _, err := c.CreateNode(ctx, models.CreateNodeRequest{ID: "n1", Label: "Person", Properties: map[string]any{"name": "Ada"}}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	if err := s.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var doc struct {
		Nodes           map[string]json.RawMessage `json:"nodes"`
		Edges           map[string]json.RawMessage `json:"edges"`
		OntologyVersion uint64                     `json:"ontology_version"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document is not valid JSON: %v", err)
	}

	if len(doc.Nodes) != 1 || doc.OntologyVersion != 3 {
		t.Errorf("unexpected document: nodes=%d version=%d", len(doc.Nodes), doc.OntologyVersion)
	}

	_, c2 := openStore(t, path)

	n, err := c2.GetNode(ctx, "n1")
	if err != nil {
		t.Fatalf("GetNode after reconnect: %v", err)
	}

	if n.Properties["name"] != "Ada" {
		t.Errorf("unexpected properties: %+v", n.Properties)
	}
}

func TestCorruptDocumentIsConnectionError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := local.New(local.Options{Path: path}, testLogger())

	err := s.Connect(context.Background())

	var connErr *models.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestOpenBeforeConnect(t *testing.T) {
	t.Parallel()

	s := local.New(local.Options{}, testLogger())

	if _, err := s.Open(context.Background()); !errors.Is(err, models.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestTxInvisibleUntilCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, c := openStore(t, "")

	tx, err := c.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if _, err := tx.CreateNode(ctx, models.CreateNodeRequest{ID: "staged", Label: "Person"}); err != nil {
		t.Fatalf("tx CreateNode: %v", err)
	}

	if _, err := c.GetNode(ctx, "staged"); !errors.Is(err, models.ErrNodeNotFound) {
		t.Fatalf("staged node visible before commit: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := c.GetNode(ctx, "staged"); err != nil {
		t.Errorf("committed node missing: %v", err)
	}
}

func TestTxCommitConflictAppliesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, c := openStore(t, "")

	if _, err := c.CreateNode(ctx, models.CreateNodeRequest{ID: "target", Label: "Person"}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	tx, _ := c.Begin(ctx)

	if _, err := tx.CreateNode(ctx, models.CreateNodeRequest{ID: "fresh", Label: "Person"}); err != nil {
		t.Fatalf("tx CreateNode: %v", err)
	}

	if _, err := tx.CreateEdge(ctx, models.CreateEdgeRequest{ID: "e", From: "fresh", To: "target", Label: "knows"}); err != nil {
		t.Fatalf("tx CreateEdge: %v", err)
	}

	if _, err := c.DeleteNode(ctx, "target"); err != nil {
		t.Fatalf("concurrent DeleteNode: %v", err)
	}

	if err := tx.Commit(ctx); !errors.Is(err, models.ErrNodeNotFound) {
		t.Fatalf("expected replay to fail with ErrNodeNotFound, got %v", err)
	}

	if _, err := c.GetNode(ctx, "fresh"); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("partial commit leaked node: %v", err)
	}
}

func TestClosedConnRejectsCalls(t *testing.T) {
	t.Parallel()

	_, c := openStore(t, "")
	_ = c.Close()

	if err := c.Ping(context.Background()); !errors.Is(err, models.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
