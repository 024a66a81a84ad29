// Package backend defines the uniform contract every graph storage variant
// implements. Variants live in sub-packages: local, postgres, kv and neo4j.
//
// Every variant evaluates query plans with query.Execute over its own
// query.Source, so filter, vector, path and aggregation semantics are the same
// whichever store is configured. Variants may push the label and equality
// prefilter down into the store.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

// Capabilities describes what a variant does natively.
type Capabilities struct {
	NativeTransactions bool `json:"native_transactions"`
	NativeBulk         bool `json:"native_bulk"`
	LabelPushdown      bool `json:"label_pushdown"`
}

// Writer is the mutation surface shared by connections and transactions.
// Requests must already be validated (ids assigned, edge labels normalized).
type Writer interface {
	CreateNode(ctx context.Context, req models.CreateNodeRequest) (*models.Node, error)
	// UpdateNode overlays props onto the node. Supplied keys win.
	UpdateNode(ctx context.Context, id string, props map[string]any) (*models.Node, error)
	// DeleteNode removes the node and every edge referencing it, returning the
	// number of edges removed.
	DeleteNode(ctx context.Context, id string) (int, error)
	// CreateEdge fails with models.ErrNodeNotFound when an endpoint is missing.
	CreateEdge(ctx context.Context, req models.CreateEdgeRequest) (*models.Edge, error)
	UpdateEdge(ctx context.Context, id string, props map[string]any) (*models.Edge, error)
	DeleteEdge(ctx context.Context, id string) error
}

// Reader is the read surface beyond what the plan evaluator needs.
type Reader interface {
	query.Source
	GetEdge(ctx context.Context, id string) (*models.Edge, error)
	// ListEdges returns edges incident to nodeID in direction dir. An empty
	// label matches every edge label.
	ListEdges(ctx context.Context, nodeID, label string, dir models.Direction) ([]models.Edge, error)
}

// Conn is one pooled handle to a backend.
type Conn interface {
	Reader
	Writer

	Ping(ctx context.Context) error
	Close() error
	Execute(ctx context.Context, plan *query.Plan) (*query.Result, error)
	BatchCreateNodes(ctx context.Context, reqs []models.CreateNodeRequest) ([]models.Node, error)
	BatchCreateEdges(ctx context.Context, reqs []models.CreateEdgeRequest) ([]models.Edge, error)
	// Begin opens an all-or-nothing unit of work on this connection.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is an open transaction. Exactly one of Commit or Rollback ends it;
// Rollback after Commit is a no-op.
type Tx interface {
	Writer

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Driver owns the process-level resources of one backend (a file, a client,
// a server pool) and hands out connections.
type Driver interface {
	// Name identifies the backend instance, e.g. "local:/var/lib/graph.json".
	Name() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Open(ctx context.Context) (Conn, error)
	Capabilities() Capabilities
}

// NewNode builds the stored form of a validated create request.
func NewNode(req models.CreateNodeRequest, now time.Time) models.Node {
	props := req.Properties
	if props == nil {
		props = map[string]any{}
	}

	return models.Node{
		ID:         req.ID,
		Label:      req.Label,
		Properties: props,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// NewEdge builds the stored form of a validated create request.
func NewEdge(req models.CreateEdgeRequest, now time.Time) models.Edge {
	props := req.Properties
	if props == nil {
		props = map[string]any{}
	}

	return models.Edge{
		ID:         req.ID,
		From:       req.From,
		To:         req.To,
		Label:      req.Label,
		Properties: props,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// LabelMatches reports whether an edge label passes a label filter.
func LabelMatches(label string, labels []string) bool {
	if len(labels) == 0 {
		return true
	}

	for _, l := range labels {
		if l == label {
			return true
		}
	}

	return false
}

// MatchesPrefilter reports whether n satisfies pf.
func MatchesPrefilter(n models.Node, pf query.Prefilter) bool {
	if pf.Label != "" && n.Label != pf.Label {
		return false
	}

	for k, want := range pf.Equals {
		got, ok := n.Properties[k]
		if !ok || !query.Equal(got, want) {
			return false
		}
	}

	return true
}

// QueryFault classifies a plan execution failure: connection problems,
// cancellation and already-typed query errors pass through, anything else
// becomes a *models.QueryError.
func QueryFault(reason string, err error) error {
	if err == nil {
		return nil
	}

	var (
		connErr  *models.ConnectionError
		queryErr *models.QueryError
	)

	switch {
	case errors.As(err, &connErr), errors.As(err, &queryErr):
		return err
	case errors.Is(err, models.ErrNotConnected), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	return &models.QueryError{Reason: reason, Err: err}
}
