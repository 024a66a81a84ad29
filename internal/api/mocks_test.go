package api_test

import (
	"context"

	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
	"github.com/persistorai/graphrouter/internal/reasoning"
	"github.com/persistorai/graphrouter/internal/service"
)

// mockNodeService implements api.NodeService for testing.
type mockNodeService struct {
	createFn  func(ctx context.Context, label string, props map[string]any, opts service.DedupOptions) (*service.CreateResult, error)
	getFn     func(ctx context.Context, id string) (*models.Node, error)
	updateFn  func(ctx context.Context, id string, props map[string]any) (*models.Node, error)
	deleteFn  func(ctx context.Context, id string) (int, error)
	executeFn func(ctx context.Context, plan *query.Plan, opts service.ExecOptions) (*query.Result, error)
}

func (m *mockNodeService) CreateNode(ctx context.Context, label string, props map[string]any, opts service.DedupOptions) (*service.CreateResult, error) {
	return m.createFn(ctx, label, props, opts)
}

func (m *mockNodeService) GetNode(ctx context.Context, id string) (*models.Node, error) {
	return m.getFn(ctx, id)
}

func (m *mockNodeService) UpdateNode(ctx context.Context, id string, props map[string]any) (*models.Node, error) {
	return m.updateFn(ctx, id, props)
}

func (m *mockNodeService) DeleteNode(ctx context.Context, id string) (int, error) {
	return m.deleteFn(ctx, id)
}

func (m *mockNodeService) Execute(ctx context.Context, plan *query.Plan, opts service.ExecOptions) (*query.Result, error) {
	return m.executeFn(ctx, plan, opts)
}

// mockEdgeService implements api.EdgeService for testing.
type mockEdgeService struct {
	createFn func(ctx context.Context, from, to, label string, props map[string]any) (*models.Edge, error)
	getFn    func(ctx context.Context, id string) (*models.Edge, error)
	updateFn func(ctx context.Context, id string, props map[string]any) (*models.Edge, error)
	deleteFn func(ctx context.Context, id string) error
	listFn   func(ctx context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error)
}

func (m *mockEdgeService) CreateEdge(ctx context.Context, from, to, label string, props map[string]any) (*models.Edge, error) {
	return m.createFn(ctx, from, to, label, props)
}

func (m *mockEdgeService) GetEdge(ctx context.Context, id string) (*models.Edge, error) {
	return m.getFn(ctx, id)
}

func (m *mockEdgeService) UpdateEdge(ctx context.Context, id string, props map[string]any) (*models.Edge, error) {
	return m.updateFn(ctx, id, props)
}

func (m *mockEdgeService) DeleteEdge(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockEdgeService) ListEdges(ctx context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error) {
	return m.listFn(ctx, nodeID, label, dir)
}

// mockReasoner implements api.Reasoner for testing.
type mockReasoner struct {
	runFn func(ctx context.Context, question string) (*reasoning.Answer, error)
}

func (m *mockReasoner) Run(ctx context.Context, question string) (*reasoning.Answer, error) {
	return m.runFn(ctx, question)
}

// mockHealth implements api.HealthChecker for testing.
type mockHealth struct {
	health service.Health
}

func (m *mockHealth) Name() string { return m.health.Backend }

func (m *mockHealth) Health(context.Context) service.Health { return m.health }
