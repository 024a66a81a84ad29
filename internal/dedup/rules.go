package dedup

import (
	"context"
	"fmt"
	"sort"

	"github.com/persistorai/graphrouter/internal/llm"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/query"
)

// MetadataRule merges when any trigger key carries the same non-empty value on
// the candidate and an existing node. A differing non-empty value under a
// conflict key vetoes that match and keeps the candidate distinct.
type MetadataRule struct {
	Keys         []string
	ConflictKeys []string
}

// Name implements Rule.
func (r *MetadataRule) Name() string { return "metadata" }

// Evaluate implements Rule.
func (r *MetadataRule) Evaluate(_ context.Context, ev *Evaluation) (Verdict, error) {
	for _, existing := range ev.Pool() {
		if !r.triggered(ev.Candidate, existing) {
			continue
		}

		if r.conflicts(ev.Candidate, existing) {
			return DecideDistinct, nil
		}

		ev.TargetID = existing.ID
		ev.Score = 1

		return DecideMerge, nil
	}

	return Abstain, nil
}

func (r *MetadataRule) triggered(a, b models.Node) bool {
	for _, k := range r.Keys {
		va, okA := a.Properties[k]
		vb, okB := b.Properties[k]

		if okA && okB && !blank(va) && query.Equal(va, vb) {
			return true
		}
	}

	return false
}

func (r *MetadataRule) conflicts(a, b models.Node) bool {
	for _, k := range r.ConflictKeys {
		va, okA := a.Properties[k]
		vb, okB := b.Properties[k]

		if okA && okB && !blank(va) && !blank(vb) && !query.Equal(va, vb) {
			return true
		}
	}

	return false
}

func blank(v any) bool {
	if v == nil {
		return true
	}

	s, ok := v.(string)

	return ok && s == ""
}

// SimilarityRule compares the candidate's embedding in Field with every
// existing embedding. Nodes at or above MinScore survive. When a
// LikelihoodRule follows, the survivors are handed to it; otherwise the best
// survivor is merged. No survivor keeps the candidate distinct. A candidate
// without an embedding makes the rule abstain.
type SimilarityRule struct {
	Field    string
	MinScore float64
}

// Name implements Rule.
func (r *SimilarityRule) Name() string { return "similarity" }

type match struct {
	node  models.Node
	score float64
}

// Evaluate implements Rule.
func (r *SimilarityRule) Evaluate(_ context.Context, ev *Evaluation) (Verdict, error) {
	vec, ok := query.AsVector(ev.Candidate.Properties[r.Field])
	if !ok {
		return Abstain, nil
	}

	var matches []match

	for _, n := range ev.Pool() {
		other, ok := query.AsVector(n.Properties[r.Field])
		if !ok {
			continue
		}

		if s := query.Cosine(vec, other); s >= r.MinScore {
			matches = append(matches, match{node: n, score: s})
		}
	}

	if len(matches) == 0 {
		return DecideDistinct, nil
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	if ev.LikelihoodFollows {
		narrowed := make([]models.Node, len(matches))
		for i, m := range matches {
			narrowed[i] = m.node
		}

		ev.Narrow(narrowed)
		ev.Score = matches[0].score

		return Abstain, nil
	}

	ev.TargetID = matches[0].node.ID
	ev.Score = matches[0].score

	return DecideMerge, nil
}

// DefaultMaxCandidates bounds the LLM calls of one LikelihoodRule evaluation.
const DefaultMaxCandidates = 5

// LikelihoodRule asks the Scorer about each remaining candidate, best first,
// and merges with the first one scoring at or above Threshold.
type LikelihoodRule struct {
	Scorer        llm.Scorer
	Threshold     float64
	MaxCandidates int
}

// Name implements Rule.
func (r *LikelihoodRule) Name() string { return "likelihood" }

// Evaluate implements Rule. A scorer error fails the rule, which the chain
// turns into keep-distinct.
func (r *LikelihoodRule) Evaluate(ctx context.Context, ev *Evaluation) (Verdict, error) {
	limit := r.MaxCandidates
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}

	pool := ev.Pool()
	if len(pool) > limit {
		pool = pool[:limit]
	}

	best := 0.0

	for _, n := range pool {
		score, err := r.Scorer.ScoreSimilarity(ctx, ev.Candidate, n)
		if err != nil {
			return Abstain, fmt.Errorf("scoring against %s: %w", n.ID, err)
		}

		if score >= r.Threshold {
			ev.TargetID = n.ID
			ev.Score = score

			return DecideMerge, nil
		}

		best = max(best, score)
	}

	ev.Score = best

	return DecideDistinct, nil
}
