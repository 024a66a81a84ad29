package service

import (
	"context"
	"maps"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/ontology"
	"github.com/persistorai/graphrouter/internal/query"
	"github.com/persistorai/graphrouter/internal/resolve"
)

// ExecOptions tune one Execute call.
type ExecOptions struct {
	// MergeOnQuery runs entity resolution over the result nodes.
	MergeOnQuery bool `json:"merge_on_query"`
	// MergeThreshold overrides the configured merge threshold when positive.
	MergeThreshold float64 `json:"merge_threshold,omitempty"`
	// MergeFilters restrict the neighbour search of the resolution pass.
	MergeFilters map[string]any `json:"merge_filters,omitempty"`
	// SkipCache bypasses the result cache for this call.
	SkipCache bool `json:"skip_cache,omitempty"`
}

// Execute runs plan. Raw backend results are cached by plan fingerprint and
// concurrent misses of one fingerprint share a single backend call. Logical
// merges are applied after the cache, so they never outlive the call.
func (d *Database) Execute(ctx context.Context, plan *query.Plan, opts ExecOptions) (*query.Result, error) {
	if plan == nil {
		return nil, &models.QueryError{Reason: "nil plan"}
	}

	res, err := d.fetch(ctx, plan, opts.SkipCache)
	if err != nil {
		return nil, err
	}

	if !opts.MergeOnQuery {
		return res, nil
	}

	return d.mergeOnQuery(ctx, res, opts)
}

// Query runs plan with default options.
func (d *Database) Query(ctx context.Context, plan *query.Plan) (*query.Result, error) {
	return d.Execute(ctx, plan, ExecOptions{})
}

func (d *Database) fetch(ctx context.Context, plan *query.Plan, skipCache bool) (*query.Result, error) {
	if skipCache || !plan.Cacheable() {
		return d.execute(ctx, plan)
	}

	if res, ok := d.cache.Get(plan); ok {
		return res, nil
	}

	key, _, err := d.cache.Fingerprint(plan)
	if err != nil {
		d.log.WithError(err).Warn("plan fingerprint failed, bypassing cache")

		return d.execute(ctx, plan)
	}

	// The shared call outlives any single caller; run still bounds it with the
	// operation timeout.
	shared := context.WithoutCancel(ctx)

	ch := d.flight.DoChan(key, func() (any, error) {
		gen := d.cache.Generation()

		res, err := d.execute(shared, plan)
		if err != nil {
			return nil, err
		}

		if !d.cache.PutIfCurrent(plan, res, d.opts.CacheTTL, gen) {
			d.log.WithField("key", key).Debug("cache fill dropped after concurrent invalidation")
		}

		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}

		res, _ := r.Val.(*query.Result)

		return res.Clone(), nil
	}
}

func (d *Database) execute(ctx context.Context, plan *query.Plan) (*query.Result, error) {
	var res *query.Result

	err := d.run(ctx, "execute", func(ctx context.Context, conn backend.Conn) error {
		var err error
		res, err = conn.Execute(ctx, plan)

		return err
	})

	return res, err
}

func (d *Database) mergeOnQuery(ctx context.Context, res *query.Result, opts ExecOptions) (*query.Result, error) {
	mopts := d.opts.Merge
	if opts.MergeThreshold > 0 {
		mopts.MergeThreshold = opts.MergeThreshold
	}

	if len(opts.MergeFilters) > 0 {
		mopts.Filters = maps.Clone(opts.MergeFilters)
	}

	if mopts.Field == "" {
		out := *res
		out.Warnings = append(slices.Clone(out.Warnings), "merge-on-query requested but no embedding field is configured")

		return &out, nil
	}

	scope := resolve.NewScope()
	ctx = resolve.WithScope(ctx, scope)
	version := d.reg.Version()

	var (
		out *query.Result
		rep resolve.Report
	)

	err := d.run(ctx, "merge_on_query", func(ctx context.Context, conn backend.Conn) error {
		var err error
		out, rep, err = d.resolver.Apply(ctx, conn, res, mopts)

		return err
	})
	if err != nil {
		return nil, err
	}

	if v := d.reg.Version(); v != version {
		d.cache.Clear()
		d.emit(EventOntologyChanged, map[string]any{"kind": ontology.EdgeKind, "name": ontology.SimilarityLabel, "version": v})
	} else if rep.Persisted > 0 {
		d.cache.InvalidateEdgeWrite(ontology.SimilarityLabel)
	}

	d.log.WithFields(logrus.Fields{
		"pairs":     rep.Pairs,
		"scored":    rep.Scored,
		"reused":    rep.Reused,
		"persisted": rep.Persisted,
		"merged":    rep.Merged,
	}).Debug("merge-on-query pass complete")

	return out, nil
}
