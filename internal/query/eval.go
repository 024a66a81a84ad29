package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/persistorai/graphrouter/internal/models"
)

// Source is the read surface a backend exposes to the evaluator.
type Source interface {
	// ScanNodes returns candidate nodes. Implementations may use the prefilter
	// to narrow the scan but must not drop nodes that satisfy it.
	ScanNodes(ctx context.Context, pf Prefilter) ([]models.Node, error)
	// OutgoingEdges returns edges leaving nodeID, restricted to labels when non-empty.
	OutgoingEdges(ctx context.Context, nodeID string, labels []string) ([]models.Edge, error)
	// GetNode returns one node or models.ErrNodeNotFound.
	GetNode(ctx context.Context, id string) (*models.Node, error)
}

// Execute runs p against src.
func Execute(ctx context.Context, src Source, p *Plan) (*Result, error) {
	if ps, ok := p.Path(); ok {
		paths, err := FindPaths(ctx, src, ps)
		if err != nil {
			return nil, err
		}

		return &Result{Paths: paginate(paths, p.offset, p.limit), Total: len(paths)}, nil
	}

	nodes, err := src.ScanNodes(ctx, p.Prefilter())
	if err != nil {
		return nil, fmt.Errorf("scanning nodes: %w", err)
	}

	return Evaluate(p, nodes), nil
}

// Evaluate applies the node-level parts of p (filters, vector search,
// aggregation, ordering and pagination) to an in-memory candidate set.
func Evaluate(p *Plan, nodes []models.Node) *Result {
	filtered := make([]models.Node, 0, len(nodes))

	for _, n := range nodes {
		if matchAll(p.predicates, n) {
			filtered = append(filtered, n)
		}
	}

	res := &Result{}

	if p.vector != nil {
		filtered, res.Scores = rankByVector(*p.vector, filtered)
	}

	if p.group != nil {
		rows := aggregate(*p.group, filtered)
		res.Rows = paginate(rows, p.offset, p.limit)
		res.Total = len(rows)

		return res
	}

	if len(p.sort) > 0 {
		sortNodes(filtered, p.sort)
	}

	res.Total = len(filtered)
	res.Nodes = paginate(filtered, p.offset, p.limit)

	return res
}

func matchAll(preds []Predicate, n models.Node) bool {
	for _, pr := range preds {
		if !pr.Match(n) {
			return false
		}
	}

	return true
}

type scored struct {
	node  models.Node
	score float64
}

func rankByVector(spec VectorSpec, nodes []models.Node) ([]models.Node, map[string]float64) {
	hits := make([]scored, 0, len(nodes))

	for _, n := range nodes {
		vec, ok := AsVector(n.Properties[spec.Field])
		if !ok {
			continue
		}

		s := Cosine(spec.Vector, vec)
		if s < spec.MinScore {
			continue
		}

		hits = append(hits, scored{node: n, score: s})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}

		return hits[i].node.ID < hits[j].node.ID
	})

	if len(hits) > spec.K {
		hits = hits[:spec.K]
	}

	out := make([]models.Node, len(hits))
	scores := make(map[string]float64, len(hits))

	for i, h := range hits {
		out[i] = h.node
		scores[h.node.ID] = h.score
	}

	return out, scores
}

// sortNodes orders nodes by keys. Nodes missing a key sort after those that have it.
func sortNodes(nodes []models.Node, keys []SortKey) {
	sort.SliceStable(nodes, func(i, j int) bool {
		for _, k := range keys {
			a, okA := nodes[i].Properties[k.Field]
			b, okB := nodes[j].Properties[k.Field]

			switch {
			case !okA && !okB:
				continue
			case !okA:
				return false
			case !okB:
				return true
			}

			c, ok := Compare(a, b)
			if !ok {
				c = compareFallback(a, b)
			}

			if c == 0 {
				continue
			}

			if k.Desc {
				return c > 0
			}

			return c < 0
		}

		return false
	})
}

func compareFallback(a, b any) int {
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)

	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}

	return 0
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}

	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
