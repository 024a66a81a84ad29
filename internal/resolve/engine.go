// Package resolve implements merge-on-query: read-time entity resolution that
// scores likely duplicates, persists the scores as advisory similarity edges,
// and presents confident pairs as one node for the duration of a single call.
//
// The engine never deletes or rewrites stored nodes.
package resolve

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/llm"
	"github.com/persistorai/graphrouter/internal/metrics"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/ontology"
	"github.com/persistorai/graphrouter/internal/query"
)

// Method is recorded on every similarity edge the engine writes.
const Method = "llm_likelihood"

// Defaults applied to zero Options fields.
const (
	DefaultCandidates     = 5
	DefaultMinScore       = 0.8
	DefaultMergeThreshold = 0.85
	defaultParallelism    = 4
)

// Options tune one Apply call.
type Options struct {
	// Field is the embedding property. Empty disables the pass.
	Field string
	// MergeThreshold is the likelihood at or above which a pair is merged logically.
	MergeThreshold float64
	// MinScore is the cosine similarity a neighbour needs to become a candidate.
	MinScore float64
	// Candidates bounds the neighbours examined per result node.
	Candidates int
	// Filters restrict the neighbour search to nodes with these property values.
	Filters map[string]any
}

func (o Options) withDefaults() Options {
	if o.MergeThreshold <= 0 {
		o.MergeThreshold = DefaultMergeThreshold
	}

	if o.MinScore <= 0 {
		o.MinScore = DefaultMinScore
	}

	if o.Candidates <= 0 {
		o.Candidates = DefaultCandidates
	}

	return o
}

// Report summarizes one Apply call.
type Report struct {
	Pairs     int      `json:"pairs"`
	Scored    int      `json:"scored"`
	Reused    int      `json:"reused"`
	Persisted int      `json:"persisted"`
	Merged    int      `json:"merged"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Engine runs merge-on-query passes.
type Engine struct {
	reg         *ontology.Registry
	scorer      llm.Scorer
	log         *logrus.Logger
	now         func() time.Time
	parallelism int
}

// New creates an engine. A nil scorer leaves existing similarity edges as
// the only source of merges.
func New(reg *ontology.Registry, scorer llm.Scorer, log *logrus.Logger) *Engine {
	return &Engine{
		reg:         reg,
		scorer:      scorer,
		log:         log,
		now:         time.Now,
		parallelism: defaultParallelism,
	}
}

type pair struct {
	a, b   models.Node // a holds the lower id
	score  float64
	known  bool
	failed error
}

func pairKey(x, y string) (string, string) {
	if x < y {
		return x, y
	}

	return y, x
}

// Apply resolves the nodes of res and returns the overlaid result. The
// logical merges live in the Scope carried by ctx, or in a throwaway scope
// when ctx has none.
func (e *Engine) Apply(ctx context.Context, conn backend.Conn, res *query.Result, opts Options) (*query.Result, Report, error) {
	var rep Report

	opts = opts.withDefaults()
	if opts.Field == "" || res == nil || len(res.Nodes) == 0 {
		return res, rep, nil
	}

	if _, err := e.reg.EnsureEdgeType(ontology.SimilarityType()); err != nil {
		return nil, rep, fmt.Errorf("registering similarity type: %w", err)
	}

	scope, ok := ScopeFrom(ctx)
	if !ok {
		scope = NewScope()
	}

	pairs, err := e.candidates(ctx, conn, res.Nodes, opts)
	if err != nil {
		return nil, rep, err
	}

	rep.Pairs = len(pairs)

	pending := make([]*pair, 0, len(pairs))

	for _, p := range pairs {
		score, found, err := existingScore(ctx, conn, p.a.ID, p.b.ID)
		if err != nil {
			return nil, rep, fmt.Errorf("checking similarity edge %s-%s: %w", p.a.ID, p.b.ID, err)
		}

		if found {
			p.score, p.known = score, true
			rep.Reused++

			continue
		}

		pending = append(pending, p)
	}

	e.score(ctx, pending)

	if err := ctx.Err(); err != nil {
		return nil, rep, err
	}

	for _, p := range pending {
		if p.failed != nil {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("scoring %s/%s: %v", p.a.ID, p.b.ID, p.failed))

			e.log.WithError(p.failed).WithFields(logrus.Fields{
				"from": p.a.ID,
				"to":   p.b.ID,
			}).Warn("likelihood scoring failed, pair left unmerged")

			continue
		}

		rep.Scored++

		if err := e.persist(ctx, conn, p); err != nil {
			return nil, rep, err
		}

		rep.Persisted++
	}

	for _, p := range pairs {
		if p.known && p.score >= opts.MergeThreshold && scope.Register(ctx, p.a.ID, p.b.ID) {
			rep.Merged++
		}
	}

	out, err := overlay(ctx, conn, res, scope)
	if err != nil {
		return nil, rep, err
	}

	if len(rep.Warnings) > 0 {
		out.Warnings = append(slices.Clone(out.Warnings), rep.Warnings...)
	}

	return out, rep, nil
}

// candidates finds neighbour pairs of the result nodes, each pair once.
func (e *Engine) candidates(ctx context.Context, conn backend.Conn, nodes []models.Node, opts Options) ([]*pair, error) {
	filterKeys := make([]string, 0, len(opts.Filters))
	for k := range opts.Filters {
		filterKeys = append(filterKeys, k)
	}

	sort.Strings(filterKeys)

	seen := make(map[[2]string]bool)

	var out []*pair

	for _, n := range nodes {
		vec, ok := query.AsVector(n.Properties[opts.Field])
		if !ok {
			continue
		}

		b := query.NewBuilder().LabelEquals(n.Label)
		for _, k := range filterKeys {
			b.PropertyEquals(k, opts.Filters[k])
		}

		plan, err := b.VectorNearest(opts.Field, vec, opts.Candidates+1, opts.MinScore).Build()
		if err != nil {
			return nil, fmt.Errorf("building neighbour search: %w", err)
		}

		hits, err := conn.Execute(ctx, plan)
		if err != nil {
			return nil, fmt.Errorf("searching neighbours of %s: %w", n.ID, err)
		}

		for _, h := range hits.Nodes {
			if h.ID == n.ID {
				continue
			}

			lo, hi := pairKey(n.ID, h.ID)
			if seen[[2]string{lo, hi}] {
				continue
			}

			seen[[2]string{lo, hi}] = true

			p := &pair{a: n, b: h}
			if n.ID != lo {
				p.a, p.b = h, n
			}

			out = append(out, p)
		}
	}

	return out, nil
}

func existingScore(ctx context.Context, conn backend.Conn, lo, hi string) (float64, bool, error) {
	edges, err := conn.ListEdges(ctx, lo, ontology.SimilarityLabel, models.DirectionBoth)
	if err != nil {
		return 0, false, err
	}

	for _, edge := range edges {
		if !edge.Connects(lo, hi) {
			continue
		}

		score, _ := edge.Properties["score"].(float64)

		return score, true, nil
	}

	return 0, false, nil
}

// score asks the scorer about every pending pair, a few at a time.
func (e *Engine) score(ctx context.Context, pending []*pair) {
	if len(pending) == 0 {
		return
	}

	if e.scorer == nil {
		for _, p := range pending {
			p.failed = &models.ProviderError{Provider: "none", Err: fmt.Errorf("no likelihood scorer configured")}
		}

		return
	}

	var g errgroup.Group

	g.SetLimit(e.parallelism)

	for _, p := range pending {
		g.Go(func() error {
			s, err := e.scorer.ScoreSimilarity(ctx, p.a, p.b)
			if err != nil {
				p.failed = err
				metrics.ProviderCalls.WithLabelValues("merge", "error").Inc()

				return nil
			}

			p.score = llm.Clamp(s)
			p.known = true
			metrics.ProviderCalls.WithLabelValues("merge", "ok").Inc()

			return nil
		})
	}

	_ = g.Wait()
}

func (e *Engine) persist(ctx context.Context, conn backend.Conn, p *pair) error {
	req := models.CreateEdgeRequest{
		From:  p.a.ID,
		To:    p.b.ID,
		Label: ontology.SimilarityLabel,
		Properties: map[string]any{
			"score":       p.score,
			"method":      Method,
			"computed_at": e.now().UTC().Format(time.RFC3339Nano),
		},
	}

	if err := req.Validate(); err != nil {
		return fmt.Errorf("validating similarity edge: %w", err)
	}

	if err := e.reg.ValidateEdge(req.Label, req.Properties, p.a.Label, p.b.Label); err != nil {
		return fmt.Errorf("validating similarity edge: %w", err)
	}

	if _, err := conn.CreateEdge(ctx, req); err != nil {
		return fmt.Errorf("persisting similarity edge %s-%s: %w", p.a.ID, p.b.ID, err)
	}

	metrics.SimilarityEdges.Inc()

	return nil
}

// overlay collapses every merge group of scope present in res into its
// canonical node. Alias properties fill keys the canonical node lacks.
func overlay(ctx context.Context, conn backend.Conn, res *query.Result, scope *Scope) (*query.Result, error) {
	out := *res

	groups := scope.Groups()
	if len(groups) == 0 {
		return &out, nil
	}

	out.Nodes = make([]models.Node, 0, len(res.Nodes))
	out.Merged = make(map[string][]string)

	if res.Scores != nil {
		out.Scores = make(map[string]float64, len(res.Scores))
	}

	byID := make(map[string]models.Node, len(res.Nodes))
	for _, n := range res.Nodes {
		byID[n.ID] = n
	}

	lookup := func(id string) (models.Node, error) {
		if n, ok := byID[id]; ok {
			return n, nil
		}

		fetched, err := conn.GetNode(ctx, id)
		if err != nil {
			return models.Node{}, fmt.Errorf("loading merged node %s: %w", id, err)
		}

		return *fetched, nil
	}

	emitted := make(map[string]bool)

	for _, n := range res.Nodes {
		canonical := scope.Canonical(n.ID)

		if s, scored := res.Scores[n.ID]; scored {
			if prev, seen := out.Scores[canonical]; !seen || s > prev {
				out.Scores[canonical] = s
			}
		}

		if emitted[canonical] {
			continue
		}

		emitted[canonical] = true

		base, err := lookup(canonical)
		if err != nil {
			return nil, err
		}

		merged := base.Clone()

		for _, alias := range groups[canonical] {
			an, err := lookup(alias)
			if err != nil {
				return nil, err
			}

			for k, v := range an.Properties {
				if _, taken := merged.Properties[k]; !taken {
					merged.Properties[k] = v
				}
			}
		}

		if aliases, ok := groups[canonical]; ok {
			out.Merged[canonical] = aliases
		}

		out.Nodes = append(out.Nodes, merged)
	}

	out.Total = res.Total - (len(res.Nodes) - len(out.Nodes))

	if len(out.Merged) == 0 {
		out.Merged = nil
	}

	return &out, nil
}
