package api

import (
	"context"

	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/monitor"
	"github.com/persistorai/graphrouter/internal/ontology"
	"github.com/persistorai/graphrouter/internal/query"
	"github.com/persistorai/graphrouter/internal/reasoning"
	"github.com/persistorai/graphrouter/internal/service"
	"github.com/persistorai/graphrouter/internal/txn"
)

// NodeService defines node operations used by NodeHandler.
type NodeService interface {
	CreateNode(ctx context.Context, label string, props map[string]any, opts service.DedupOptions) (*service.CreateResult, error)
	GetNode(ctx context.Context, id string) (*models.Node, error)
	UpdateNode(ctx context.Context, id string, props map[string]any) (*models.Node, error)
	DeleteNode(ctx context.Context, id string) (int, error)
	Execute(ctx context.Context, plan *query.Plan, opts service.ExecOptions) (*query.Result, error)
}

// EdgeService defines edge operations used by EdgeHandler.
type EdgeService interface {
	CreateEdge(ctx context.Context, from, to, label string, props map[string]any) (*models.Edge, error)
	GetEdge(ctx context.Context, id string) (*models.Edge, error)
	UpdateEdge(ctx context.Context, id string, props map[string]any) (*models.Edge, error)
	DeleteEdge(ctx context.Context, id string) error
	ListEdges(ctx context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error)
}

// BatchService defines batch writes used by BatchHandler.
type BatchService interface {
	BatchCreateNodes(ctx context.Context, reqs []models.CreateNodeRequest) ([]models.Node, error)
	BatchCreateEdges(ctx context.Context, reqs []models.CreateEdgeRequest) ([]models.Edge, error)
}

// QueryService executes plans for QueryHandler.
type QueryService interface {
	Execute(ctx context.Context, plan *query.Plan, opts service.ExecOptions) (*query.Result, error)
}

// TransactionService applies operation lists atomically.
type TransactionService interface {
	RunTransaction(ctx context.Context, ops []txn.Op) ([]txn.Outcome, error)
}

// OntologyService exposes the type registry.
type OntologyService interface {
	Ontology() *ontology.Registry
	RegisterType(t ontology.Type) error
}

// StatsService exposes per-operation monitor statistics.
type StatsService interface {
	Metrics() map[string]monitor.Stats
	ResetMetrics()
}

// HealthChecker reports backend readiness.
type HealthChecker interface {
	Name() string
	Health(ctx context.Context) service.Health
}

// Reasoner answers natural-language questions over the graph.
type Reasoner interface {
	Run(ctx context.Context, question string) (*reasoning.Answer, error)
}

var (
	_ NodeService        = (*service.Database)(nil)
	_ EdgeService        = (*service.Database)(nil)
	_ BatchService       = (*service.Database)(nil)
	_ TransactionService = (*service.Database)(nil)
	_ OntologyService    = (*service.Database)(nil)
	_ StatsService       = (*service.Database)(nil)
	_ HealthChecker      = (*service.Database)(nil)
	_ Reasoner           = (*reasoning.Retriever)(nil)
)
