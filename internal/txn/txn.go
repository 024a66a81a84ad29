// Package txn buffers graph writes and applies them all-or-nothing through a
// backend transaction. Every queued operation is validated against the
// ontology before the first one reaches the backend.
package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/ontology"
)

// Kind names a queued operation.
type Kind string

// Operation kinds.
const (
	CreateNode Kind = "create_node"
	UpdateNode Kind = "update_node"
	DeleteNode Kind = "delete_node"
	CreateEdge Kind = "create_edge"
	UpdateEdge Kind = "update_edge"
	DeleteEdge Kind = "delete_edge"
)

// ErrExecuted is returned when a manager is executed or extended a second time.
var ErrExecuted = errors.New("transaction already executed")

// ErrUnknownKind is returned by Add for an unsupported operation kind.
var ErrUnknownKind = errors.New("unknown operation kind")

// Args carries the arguments of one operation. Which fields matter depends on
// the kind: creates use Label/Properties (and From/To for edges), updates use
// ID/Properties, deletes use ID.
type Args struct {
	ID         string         `json:"id,omitempty"`
	Label      string         `json:"label,omitempty"`
	From       string         `json:"from_id,omitempty"`
	To         string         `json:"to_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Op is one queued operation.
type Op struct {
	Kind Kind `json:"kind"`
	Args
}

// Outcome reports what one applied operation did.
type Outcome struct {
	Kind    Kind   `json:"kind"`
	ID      string `json:"id"`
	Removed int    `json:"removed_edges,omitempty"`
}

// OpError wraps the first failure of a transaction with its position.
type OpError struct {
	Index int
	Kind  Kind
	Err   error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("operation %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Manager queues operations for one transaction. It is safe for concurrent
// Add calls; Execute runs once.
type Manager struct {
	reg *ontology.Registry
	log *logrus.Logger

	mu       sync.Mutex
	ops      []Op
	executed bool
}

// New creates an empty manager validating against reg.
func New(reg *ontology.Registry, log *logrus.Logger) *Manager {
	return &Manager{reg: reg, log: log}
}

// Add queues an operation. Creates without an id get a UUID so later
// operations in the same transaction can reference them. The id is returned.
func (m *Manager) Add(kind Kind, args Args) (string, error) {
	switch kind {
	case CreateNode, CreateEdge:
		if args.ID == "" {
			args.ID = uuid.New().String()
		}
	case UpdateNode, DeleteNode, UpdateEdge, DeleteEdge:
		if args.ID == "" {
			return "", fmt.Errorf("%s: id is required", kind)
		}
	default:
		return "", fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.executed {
		return "", ErrExecuted
	}

	m.ops = append(m.ops, Op{Kind: kind, Args: args})

	return args.ID, nil
}

// CreateNode queues a node creation and returns its pre-assigned id.
func (m *Manager) CreateNode(label string, props map[string]any) (string, error) {
	return m.Add(CreateNode, Args{Label: label, Properties: props})
}

// UpdateNode queues a property merge onto an existing node.
func (m *Manager) UpdateNode(id string, props map[string]any) error {
	_, err := m.Add(UpdateNode, Args{ID: id, Properties: props})

	return err
}

// DeleteNode queues a node deletion. Incident edges are removed with it.
func (m *Manager) DeleteNode(id string) error {
	_, err := m.Add(DeleteNode, Args{ID: id})

	return err
}

// CreateEdge queues an edge creation and returns its pre-assigned id.
func (m *Manager) CreateEdge(from, to, label string, props map[string]any) (string, error) {
	return m.Add(CreateEdge, Args{From: from, To: to, Label: label, Properties: props})
}

// UpdateEdge queues a property merge onto an existing edge.
func (m *Manager) UpdateEdge(id string, props map[string]any) error {
	_, err := m.Add(UpdateEdge, Args{ID: id, Properties: props})

	return err
}

// DeleteEdge queues an edge deletion.
func (m *Manager) DeleteEdge(id string) error {
	_, err := m.Add(DeleteEdge, Args{ID: id})

	return err
}

// Ops returns a copy of the queued operations.
func (m *Manager) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Op, len(m.ops))
	copy(out, m.ops)

	return out
}

// Len returns the number of queued operations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.ops)
}

// Execute validates every queued operation, then applies them in order inside
// one backend transaction. The first failure rolls everything back and is
// returned as an *OpError; later operations are not attempted.
func (m *Manager) Execute(ctx context.Context, conn backend.Conn) ([]Outcome, error) {
	m.mu.Lock()
	if m.executed {
		m.mu.Unlock()

		return nil, ErrExecuted
	}

	m.executed = true
	ops := m.ops
	m.mu.Unlock()

	if len(ops) == 0 {
		return nil, nil
	}

	prepared, err := m.prepare(ctx, conn, ops)
	if err != nil {
		return nil, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	outcomes := make([]Outcome, 0, len(prepared))

	for i, op := range prepared {
		out, err := apply(ctx, tx, op)
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				m.log.WithError(rbErr).WithField("index", i).Warn("transaction rollback failed")
			}

			return nil, &OpError{Index: i, Kind: op.kind, Err: err}
		}

		outcomes = append(outcomes, out)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	m.log.WithField("operations", len(outcomes)).Debug("transaction committed")

	return outcomes, nil
}

// prepared is a validated operation ready to send.
type prepared struct {
	kind  Kind
	node  models.CreateNodeRequest
	edge  models.CreateEdgeRequest
	id    string
	props map[string]any
}

func apply(ctx context.Context, tx backend.Tx, op prepared) (Outcome, error) {
	out := Outcome{Kind: op.kind, ID: op.id}

	var err error

	switch op.kind {
	case CreateNode:
		_, err = tx.CreateNode(ctx, op.node)
	case UpdateNode:
		_, err = tx.UpdateNode(ctx, op.id, op.props)
	case DeleteNode:
		out.Removed, err = tx.DeleteNode(ctx, op.id)
	case CreateEdge:
		_, err = tx.CreateEdge(ctx, op.edge)
	case UpdateEdge:
		_, err = tx.UpdateEdge(ctx, op.id, op.props)
	case DeleteEdge:
		err = tx.DeleteEdge(ctx, op.id)
	}

	return out, err
}
