package neo4j_test

import (
	"context"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/backend/backendtest"
	graphneo4j "github.com/persistorai/graphrouter/internal/backend/neo4j"
	"github.com/persistorai/graphrouter/internal/query"
)

// TestConformance runs against a live server and wipes every GRNode it finds.
// Set TEST_NEO4J_URI (plus TEST_NEO4J_USER/TEST_NEO4J_PASSWORD) to enable it.
func TestConformance(t *testing.T) {
	uri := os.Getenv("TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("TEST_NEO4J_URI not set")
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := graphneo4j.New(graphneo4j.Options{
		URI:      uri,
		Username: os.Getenv("TEST_NEO4J_USER"),
		Password: os.Getenv("TEST_NEO4J_PASSWORD"),
	}, log)

	ctx := context.Background()
	if err := store.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	t.Cleanup(func() { _ = store.Disconnect(ctx) })

	backendtest.Run(t, func(t *testing.T) backend.Conn {
		c, err := store.Open(ctx)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}

		wipe(t, c)

		return c
	})
}

func wipe(t *testing.T, c backend.Conn) {
	t.Helper()

	ctx := context.Background()

	nodes, err := c.ScanNodes(ctx, query.Prefilter{})
	if err != nil {
		t.Fatalf("ScanNodes: %v", err)
	}

	for _, n := range nodes {
		if _, err := c.DeleteNode(ctx, n.ID); err != nil {
			t.Fatalf("DeleteNode(%s): %v", n.ID, err)
		}
	}
}
