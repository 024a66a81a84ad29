package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/persistorai/graphrouter/internal/api"
	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/backend/kv"
	"github.com/persistorai/graphrouter/internal/backend/local"
	"github.com/persistorai/graphrouter/internal/backend/neo4j"
	"github.com/persistorai/graphrouter/internal/backend/postgres"
	"github.com/persistorai/graphrouter/internal/config"
	"github.com/persistorai/graphrouter/internal/db"
	"github.com/persistorai/graphrouter/internal/dedup"
	"github.com/persistorai/graphrouter/internal/llm"
	"github.com/persistorai/graphrouter/internal/ontology"
	"github.com/persistorai/graphrouter/internal/reasoning"
	"github.com/persistorai/graphrouter/internal/resolve"
	"github.com/persistorai/graphrouter/internal/service"
	"github.com/persistorai/graphrouter/internal/ws"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		Long:  "Run the server. Settings come from the environment (GRAPH_BACKEND, DATABASE_URL, PORT, ...).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, newLogger(cfg.LogLevel))
		},
	}
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

func loadOntology(cfg *config.Config) (*ontology.Registry, error) {
	reg := ontology.NewRegistry()
	if cfg.CoreOntology {
		if err := ontology.Core(reg); err != nil {
			return nil, fmt.Errorf("registering core ontology: %w", err)
		}
	}
	if cfg.OntologyFile != "" {
		if err := ontology.LoadFile(reg, cfg.OntologyFile); err != nil {
			return nil, fmt.Errorf("loading ontology: %w", err)
		}
	}
	return reg, nil
}

// buildDriver selects the backend. The postgres store is returned separately
// so the change-notification bridge can share its pool.
func buildDriver(cfg *config.Config, reg *ontology.Registry, log *logrus.Logger) (backend.Driver, *postgres.Store) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pg := postgres.New(postgres.Options{
			URL:            cfg.DatabaseURL.Value(),
			MaxConns:       int32(cfg.DBMaxConns), //nolint:gosec // bounded by config validation.
			StatementLimit: cfg.OpTimeout,
			Notify:         cfg.PGNotify,
		}, log)
		return pg, pg
	case config.BackendBadger:
		return kv.New(kv.Options{Dir: cfg.BadgerDir, InMemory: cfg.BadgerInMemory}, log), nil
	case config.BackendNeo4j:
		return neo4j.New(neo4j.Options{
			URI:            cfg.Neo4jURI,
			Username:       cfg.Neo4jUser,
			Password:       cfg.Neo4jPassword.Value(),
			Database:       cfg.Neo4jDatabase,
			MaxPoolSize:    cfg.PoolSize,
			AcquireTimeout: cfg.PoolAcquireTimeout,
		}, log), nil
	default:
		return local.New(local.Options{Path: cfg.LocalPath, OntologyVersion: reg.Version}, log), nil
	}
}

func databaseOptions(cfg *config.Config, hub *ws.Hub) service.Options {
	return service.Options{
		Timeout:        cfg.OpTimeout,
		PoolSize:       cfg.PoolSize,
		AcquireTimeout: cfg.PoolAcquireTimeout,
		CacheTTL:       cfg.CacheTTL,
		Dedup: dedup.Options{
			MetadataKeys:        cfg.DedupMetadataKeys,
			Field:               cfg.EmbeddingField,
			MinScore:            cfg.DedupMinScore,
			LikelihoodThreshold: cfg.DedupLLMThreshold,
		},
		Merge: resolve.Options{
			Field:          cfg.EmbeddingField,
			MergeThreshold: cfg.MergeThreshold,
			MinScore:       cfg.DedupMinScore,
		},
		EmbedField: cfg.EmbeddingField,
		Events:     hub,
	}
}

func runServe(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := loadOntology(cfg)
	if err != nil {
		return err
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	opts := databaseOptions(cfg, hub)

	var ollama *llm.OllamaClient
	if cfg.LLMEnabled {
		ollama = llm.NewOllama(llm.Config{
			URL:        cfg.OllamaURL,
			Model:      cfg.LLMModel,
			EmbedModel: cfg.EmbeddingModel,
			LocalOnly:  !cfg.OllamaAllowRemote,
		}, log)
		opts.Scorer = ollama
		opts.Embedder = ollama
	}

	driver, pg := buildDriver(cfg, reg, log)
	database := service.New(driver, reg, opts, log)

	if err := database.Connect(ctx); err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := database.Disconnect(dctx); err != nil {
			log.WithError(err).Warn("disconnecting database")
		}
	}()

	if pg != nil && cfg.PGNotify {
		bridge := db.NewNotifyBridge(log, pg.Pool(), pg.Origin(), database)
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("starting change notifications: %w", err)
		}
	}

	var reasoner api.Reasoner
	if ollama != nil {
		reasoner = reasoning.New(database, ollama, ollama, log, reasoning.Options{
			MaxIterations: cfg.COTMaxIterations,
			Schema:        reg.Summary,
		})
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewRouter(ctx, &api.RouterDeps{
			Log:         log,
			DB:          database,
			Hub:         hub,
			Reasoner:    reasoner,
			CORSOrigins: cfg.CORSOrigins,
			Version:     version,
			OllamaURL:   ollamaURL(cfg),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"backend": database.Name(),
			"version": version,
		}).Info("graphrouter listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	hub.Shutdown()

	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	return nil
}

// ollamaURL is reported by readiness only when the LLM is in use.
func ollamaURL(cfg *config.Config) string {
	if !cfg.LLMEnabled {
		return ""
	}
	return cfg.OllamaURL
}
