package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/persistorai/graphrouter/internal/models"
)

// FindPaths enumerates simple directed paths described by spec, depth first.
// A path is emitted when it ends on a ToLabel node and its edge count lies in
// [MinDepth, MaxDepth]. No path visits a node twice.
func FindPaths(ctx context.Context, src Source, spec PathSpec) ([]Path, error) {
	starts, err := src.ScanNodes(ctx, Prefilter{Label: spec.FromLabel})
	if err != nil {
		return nil, fmt.Errorf("scanning path origins: %w", err)
	}

	sort.Slice(starts, func(i, j int) bool { return starts[i].ID < starts[j].ID })

	w := &walker{
		ctx:   ctx,
		src:   src,
		spec:  spec,
		nodes: make(map[string]*models.Node),
	}

	for i := range starts {
		if starts[i].Label != spec.FromLabel {
			continue
		}

		start := starts[i]
		w.nodes[start.ID] = &start

		visited := map[string]bool{start.ID: true}
		if err := w.walk(Path{{Node: &start}}, visited); err != nil {
			return nil, err
		}
	}

	return w.out, nil
}

type walker struct {
	ctx   context.Context //nolint:containedctx // scoped to one FindPaths call.
	src   Source
	spec  PathSpec
	nodes map[string]*models.Node
	out   []Path
}

func (w *walker) walk(path Path, visited map[string]bool) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	depth := path.Len()
	if depth >= w.spec.MaxDepth {
		return nil
	}

	tail := path[len(path)-1].Node

	edges, err := w.src.OutgoingEdges(w.ctx, tail.ID, w.spec.EdgeLabels)
	if err != nil {
		return fmt.Errorf("expanding %s: %w", tail.ID, err)
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}

		return edges[i].ID < edges[j].ID
	})

	for i := range edges {
		e := edges[i]
		if visited[e.To] {
			continue
		}

		next, err := w.node(e.To)
		if err != nil {
			return err
		}

		if next == nil {
			continue
		}

		extended := make(Path, len(path), len(path)+2)
		copy(extended, path)
		extended = append(extended, Element{Edge: &e}, Element{Node: next})

		if extended.Len() >= w.spec.MinDepth && next.Label == w.spec.ToLabel {
			w.out = append(w.out, extended)
		}

		visited[e.To] = true
		err = w.walk(extended, visited)
		delete(visited, e.To)

		if err != nil {
			return err
		}
	}

	return nil
}

// node resolves an id through a per-call memo. Dangling targets yield nil.
func (w *walker) node(id string) (*models.Node, error) {
	if n, ok := w.nodes[id]; ok {
		return n, nil
	}

	n, err := w.src.GetNode(w.ctx, id)
	if errors.Is(err, models.ErrNodeNotFound) {
		w.nodes[id] = nil

		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("resolving path node %s: %w", id, err)
	}

	w.nodes[id] = n

	return n, nil
}
