package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend/kv"
	"github.com/persistorai/graphrouter/internal/backend/local"
	"github.com/persistorai/graphrouter/internal/backend/neo4j"
	"github.com/persistorai/graphrouter/internal/backend/postgres"
	"github.com/persistorai/graphrouter/internal/config"
	"github.com/persistorai/graphrouter/internal/ontology"
	"github.com/persistorai/graphrouter/internal/ws"
)

func serveConfig() *config.Config {
	return &config.Config{
		Backend:            config.BackendLocal,
		LocalPath:          "graph.json",
		DatabaseURL:        "postgres://u:p@localhost:5432/graph",
		DBMaxConns:         7,
		BadgerDir:          "data",
		Neo4jURI:           "neo4j://localhost:7687",
		Neo4jDatabase:      "neo4j",
		PoolSize:           4,
		PoolAcquireTimeout: time.Second,
		OpTimeout:          2 * time.Second,
		CacheTTL:           time.Minute,
		DedupMetadataKeys:  []string{"email"},
		DedupMinScore:      0.9,
		DedupLLMThreshold:  0.8,
		MergeThreshold:     0.85,
		EmbeddingField:     "embedding",
		OllamaURL:          "http://localhost:11434",
	}
}

func TestBuildDriver(t *testing.T) {
	log := logrus.New()
	reg := ontology.NewRegistry()

	tests := []struct {
		backend string
		check   func(t *testing.T, name string, isPG bool)
	}{
		{config.BackendLocal, func(t *testing.T, name string, isPG bool) {
			if !strings.HasPrefix(name, "local") || isPG {
				t.Errorf("local: name %q, pg %v", name, isPG)
			}
		}},
		{config.BackendBadger, func(t *testing.T, name string, isPG bool) {
			if name != "badger:data" || isPG {
				t.Errorf("badger: name %q, pg %v", name, isPG)
			}
		}},
		{config.BackendNeo4j, func(t *testing.T, name string, isPG bool) {
			if name != "neo4j:neo4j://localhost:7687/neo4j" || isPG {
				t.Errorf("neo4j: name %q, pg %v", name, isPG)
			}
		}},
		{config.BackendPostgres, func(t *testing.T, name string, isPG bool) {
			if !isPG {
				t.Errorf("postgres: expected the store to be returned for notifications")
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg := serveConfig()
			cfg.Backend = tt.backend

			driver, pg := buildDriver(cfg, reg, log)
			tt.check(t, driver.Name(), pg != nil)

			switch tt.backend {
			case config.BackendLocal:
				if _, ok := driver.(*local.Store); !ok {
					t.Errorf("got %T", driver)
				}
			case config.BackendBadger:
				if _, ok := driver.(*kv.Store); !ok {
					t.Errorf("got %T", driver)
				}
			case config.BackendNeo4j:
				if _, ok := driver.(*neo4j.Store); !ok {
					t.Errorf("got %T", driver)
				}
			case config.BackendPostgres:
				if _, ok := driver.(*postgres.Store); !ok {
					t.Errorf("got %T", driver)
				}
			}
		})
	}
}

func TestDatabaseOptions(t *testing.T) {
	cfg := serveConfig()
	hub := ws.NewHub(logrus.New())

	opts := databaseOptions(cfg, hub)

	if opts.Timeout != 2*time.Second || opts.PoolSize != 4 || opts.CacheTTL != time.Minute {
		t.Errorf("pool and timeouts: %+v", opts)
	}
	if opts.Dedup.MetadataKeys[0] != "email" || opts.Dedup.LikelihoodThreshold != 0.8 {
		t.Errorf("dedup: %+v", opts.Dedup)
	}
	if opts.Merge.Field != "embedding" || opts.Merge.MergeThreshold != 0.85 {
		t.Errorf("merge: %+v", opts.Merge)
	}
	if opts.Events == nil {
		t.Error("expected the hub as event sink")
	}
	if opts.Scorer != nil || opts.Embedder != nil {
		t.Error("LLM capabilities must stay unset until enabled")
	}
}

func TestLoadOntology(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ontology.yaml")
	writeFile(t, path, `
node_types:
  - name: Person
    properties: {name: string, age: int}
    required: [name]
edge_types:
  - name: knows
    source_types: [Person]
    target_types: [Person]
`)

	cfg := serveConfig()
	cfg.OntologyFile = path

	reg, err := loadOntology(cfg)
	if err != nil {
		t.Fatalf("loadOntology: %v", err)
	}
	if !reg.HasLabel(ontology.NodeKind, "Person") || !reg.HasLabel(ontology.EdgeKind, "knows") {
		t.Error("expected Person and knows to be registered")
	}

	cfg.OntologyFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := loadOntology(cfg); err == nil {
		t.Error("expected error for a missing ontology file")
	}
}

func TestNewLogger(t *testing.T) {
	if lvl := newLogger("debug").GetLevel(); lvl != logrus.DebugLevel {
		t.Errorf("got %v", lvl)
	}
	if lvl := newLogger("bogus").GetLevel(); lvl != logrus.InfoLevel {
		t.Errorf("unparseable level should keep the default, got %v", lvl)
	}
}

func TestOllamaURL(t *testing.T) {
	cfg := serveConfig()
	if ollamaURL(cfg) != "" {
		t.Error("disabled LLM should skip the readiness check")
	}
	cfg.LLMEnabled = true
	if ollamaURL(cfg) != cfg.OllamaURL {
		t.Error("enabled LLM should report its URL")
	}
}
