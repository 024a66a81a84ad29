package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/backend/backendtest"
	"github.com/persistorai/graphrouter/internal/backend/kv"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

func openMemory(t *testing.T) backend.Conn {
	t.Helper()

	s := kv.New(kv.Options{InMemory: true}, testLogger())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })

	c, err := s.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	return c
}

func TestConformance(t *testing.T) {
	t.Parallel()

	backendtest.Run(t, openMemory)
}

func TestPersistsOnDisk(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	s := kv.New(kv.Options{Dir: dir}, testLogger())
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	c, _ := s.Open(ctx)
	if _, err := c.CreateNode(ctx, models.CreateNodeRequest{ID: "n1", Label: "Person"}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	if err := s.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	if err := s.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer s.Disconnect(ctx) //nolint:errcheck // test cleanup.

	c, _ = s.Open(ctx)
	if _, err := c.GetNode(ctx, "n1"); err != nil {
		t.Errorf("node lost across reopen: %v", err)
	}
}

func TestLabelIndexScan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := openMemory(t)

	for _, req := range []models.CreateNodeRequest{
		{ID: "b", Label: "Person"},
		{ID: "a", Label: "Person"},
		{ID: "c", Label: "Company"},
		{ID: "d", Label: "person"},
	} {
		if _, err := c.CreateNode(ctx, req); err != nil {
			t.Fatalf("CreateNode: %v", err)
		}
	}

	nodes, err := c.ScanNodes(ctx, query.Prefilter{Label: "Person"})
	if err != nil {
		t.Fatalf("ScanNodes: %v", err)
	}

	if len(nodes) != 2 || nodes[0].ID != "a" || nodes[1].ID != "b" {
		t.Errorf("expected [a b] in id order, got %+v", nodes)
	}
}

func TestBatchRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := openMemory(t)

	_, err := c.BatchCreateNodes(ctx, []models.CreateNodeRequest{
		{ID: "x", Label: "Row"},
		{ID: "x", Label: "Row"},
	})
	if !errors.Is(err, models.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	if _, err := c.GetNode(ctx, "x"); !errors.Is(err, models.ErrNodeNotFound) {
		t.Errorf("rejected batch must write nothing, got %v", err)
	}
}

func TestBatchEdgesRequireStoredEndpoints(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := openMemory(t)

	if _, err := c.CreateNode(ctx, models.CreateNodeRequest{ID: "a", Label: "Row"}); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}

	_, err := c.BatchCreateEdges(ctx, []models.CreateEdgeRequest{{ID: "e", From: "a", To: "nope", Label: "next"}})
	if !errors.Is(err, models.ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestTxIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := openMemory(t)

	tx, err := c.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if _, err := tx.CreateNode(ctx, models.CreateNodeRequest{ID: "pending", Label: "Person"}); err != nil {
		t.Fatalf("tx CreateNode: %v", err)
	}

	if _, err := c.GetNode(ctx, "pending"); !errors.Is(err, models.ErrNodeNotFound) {
		t.Fatalf("uncommitted write visible: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Errorf("Rollback after Commit should be a no-op: %v", err)
	}

	if _, err := c.GetNode(ctx, "pending"); err != nil {
		t.Errorf("committed write missing: %v", err)
	}
}
