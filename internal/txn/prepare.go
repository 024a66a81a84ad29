package txn

import (
	"context"
	"errors"
	"fmt"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/ontology"
)

// planState tracks what the queued operations will have done by the time a
// later operation runs, so validation sees earlier creates and deletes.
type planState struct {
	ctx  context.Context
	conn backend.Reader

	nodeLabels map[string]string
	edgeLabels map[string]string
	created    map[string]bool
	deleted    map[string]bool
	pairs      map[[3]string]bool
}

func (s *planState) nodeLabel(id string) (string, error) {
	if s.deleted[id] {
		return "", models.ErrNodeNotFound
	}

	if l, ok := s.nodeLabels[id]; ok {
		return l, nil
	}

	n, err := s.conn.GetNode(s.ctx, id)
	if err != nil {
		return "", err
	}

	s.nodeLabels[id] = n.Label

	return n.Label, nil
}

func (s *planState) edgeLabel(id string) (string, error) {
	if s.deleted["edge:"+id] {
		return "", models.ErrEdgeNotFound
	}

	if l, ok := s.edgeLabels[id]; ok {
		return l, nil
	}

	e, err := s.conn.GetEdge(s.ctx, id)
	if err != nil {
		return "", err
	}

	s.edgeLabels[id] = e.Label

	return e.Label, nil
}

// parallelExists reports whether an edge of label already joins from→to,
// either stored or queued earlier in this transaction.
func (s *planState) parallelExists(from, to, label string) (bool, error) {
	if s.pairs[[3]string{from, to, label}] {
		return true, nil
	}

	if s.created[from] {
		return false, nil
	}

	edges, err := s.conn.ListEdges(s.ctx, from, label, models.DirectionOut)
	if err != nil {
		return false, err
	}

	for _, e := range edges {
		if e.To == to && !s.deleted["edge:"+e.ID] {
			return true, nil
		}
	}

	return false, nil
}

// prepare validates every op against the ontology and the planned graph state.
// Nothing is written.
func (m *Manager) prepare(ctx context.Context, conn backend.Reader, ops []Op) ([]prepared, error) {
	st := &planState{
		ctx:        ctx,
		conn:       conn,
		nodeLabels: map[string]string{},
		edgeLabels: map[string]string{},
		created:    map[string]bool{},
		deleted:    map[string]bool{},
		pairs:      map[[3]string]bool{},
	}

	out := make([]prepared, 0, len(ops))

	for i, op := range ops {
		p, err := m.prepareOne(st, op)
		if err != nil {
			return nil, &OpError{Index: i, Kind: op.Kind, Err: err}
		}

		out = append(out, p)
	}

	return out, nil
}

func (m *Manager) prepareOne(st *planState, op Op) (prepared, error) { //nolint:gocyclo,cyclop // one branch per kind.
	p := prepared{kind: op.Kind, id: op.ID, props: op.Properties}

	switch op.Kind {
	case CreateNode:
		req := models.CreateNodeRequest{ID: op.ID, Label: op.Label, Properties: op.Properties}
		if err := req.Validate(); err != nil {
			return p, err
		}

		if err := m.reg.Validate(req.Label, req.Properties, ontology.NodeKind); err != nil {
			return p, err
		}

		st.nodeLabels[req.ID] = req.Label
		st.created[req.ID] = true
		delete(st.deleted, req.ID)
		p.node = req

	case UpdateNode:
		label, err := st.nodeLabel(op.ID)
		if err != nil {
			return p, err
		}

		if err := m.reg.ValidatePatch(label, op.Properties, ontology.NodeKind); err != nil {
			return p, err
		}

	case DeleteNode:
		if _, err := st.nodeLabel(op.ID); err != nil {
			return p, err
		}

		st.deleted[op.ID] = true

	case CreateEdge:
		req := models.CreateEdgeRequest{ID: op.ID, From: op.From, To: op.To, Label: op.Label, Properties: op.Properties}
		if err := req.Validate(); err != nil {
			return p, err
		}

		fromLabel, err := st.nodeLabel(req.From)
		if err != nil {
			return p, endpointErr(err, "from", req.From)
		}

		toLabel, err := st.nodeLabel(req.To)
		if err != nil {
			return p, endpointErr(err, "to", req.To)
		}

		if err := m.reg.ValidateEdge(req.Label, req.Properties, fromLabel, toLabel); err != nil {
			return p, err
		}

		if m.reg.ForbidsParallel(req.Label) {
			dup, err := st.parallelExists(req.From, req.To, req.Label)
			if err != nil {
				return p, err
			}

			if dup {
				return p, &models.ValidationError{Kind: models.ParallelEdge, Label: req.Label, Detail: req.From + " -> " + req.To}
			}
		}

		st.edgeLabels[req.ID] = req.Label
		st.pairs[[3]string{req.From, req.To, req.Label}] = true
		p.edge = req

	case UpdateEdge:
		label, err := st.edgeLabel(op.ID)
		if err != nil {
			return p, err
		}

		if err := m.reg.ValidatePatch(label, op.Properties, ontology.EdgeKind); err != nil {
			return p, err
		}

	case DeleteEdge:
		if _, err := st.edgeLabel(op.ID); err != nil {
			return p, err
		}

		st.deleted["edge:"+op.ID] = true
	}

	return p, nil
}

func endpointErr(err error, side, id string) error {
	if errors.Is(err, models.ErrNodeNotFound) {
		return fmt.Errorf("%s node %s: %w", side, id, models.ErrNodeNotFound)
	}

	return err
}
