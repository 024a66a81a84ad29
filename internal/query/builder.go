package query

import (
	"errors"
	"fmt"
	"slices"

	"github.com/persistorai/graphrouter/internal/models"
)

// maxPathDepth bounds path-find traversal.
const maxPathDepth = 10

// Builder accumulates plan clauses. The first invalid clause is reported by Build.
type Builder struct {
	plan Plan
	errs []error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) add(p Predicate) *Builder {
	b.plan.predicates = append(b.plan.predicates, p)

	return b
}

func (b *Builder) fail(format string, args ...any) *Builder {
	b.errs = append(b.errs, fmt.Errorf(format, args...))

	return b
}

// LabelEquals keeps nodes whose label is label.
func (b *Builder) LabelEquals(label string) *Builder {
	if label == "" {
		return b.fail("label_equals: label is required")
	}

	return b.add(Predicate{op: OpLabelEquals, value: label})
}

// PropertyEquals keeps nodes whose field equals value.
func (b *Builder) PropertyEquals(field string, value any) *Builder {
	if field == "" {
		return b.fail("property_equals: field is required")
	}

	return b.add(Predicate{op: OpEquals, field: field, value: value})
}

// PropertyGreaterThan keeps nodes whose field orders after value.
func (b *Builder) PropertyGreaterThan(field string, value any) *Builder {
	if field == "" {
		return b.fail("property_greater_than: field is required")
	}

	return b.add(Predicate{op: OpGreaterThan, field: field, value: value})
}

// PropertyLessThan keeps nodes whose field orders before value.
func (b *Builder) PropertyLessThan(field string, value any) *Builder {
	if field == "" {
		return b.fail("property_less_than: field is required")
	}

	return b.add(Predicate{op: OpLessThan, field: field, value: value})
}

// PropertyContains keeps nodes whose string field contains value as a substring,
// whose list field contains value as an element, or whose map field has value as a key.
func (b *Builder) PropertyContains(field string, value any) *Builder {
	if field == "" {
		return b.fail("property_contains: field is required")
	}

	return b.add(Predicate{op: OpContains, field: field, value: value})
}

// Where keeps nodes for which fn returns true. Plans with a function predicate
// are never cached; the name only labels the predicate in the plan's Spec.
func (b *Builder) Where(name string, fn func(models.Node) bool) *Builder {
	if name == "" || fn == nil {
		return b.fail("where: name and function are required")
	}

	return b.add(Predicate{op: OpFunc, name: name, fn: fn})
}

// VectorNearest ranks candidates by cosine similarity of field to vec,
// keeping at most k with score at least minScore.
func (b *Builder) VectorNearest(field string, vec []float64, k int, minScore float64) *Builder {
	switch {
	case field == "":
		return b.fail("vector_nearest: field is required")
	case len(vec) == 0:
		return b.fail("vector_nearest: vector is required")
	case k <= 0:
		return b.fail("vector_nearest: k must be positive")
	case b.plan.vector != nil:
		return b.fail("vector_nearest: only one vector search per plan")
	}

	b.plan.vector = &VectorSpec{Field: field, Vector: slices.Clone(vec), K: k, MinScore: minScore}

	return b
}

// FindPath requests simple directed paths from a fromLabel node to a toLabel node
// whose edge count lies in [minDepth, maxDepth]. An empty edgeLabels follows any edge.
func (b *Builder) FindPath(fromLabel, toLabel string, edgeLabels []string, minDepth, maxDepth int) *Builder {
	switch {
	case fromLabel == "" || toLabel == "":
		return b.fail("find_path: from and to labels are required")
	case minDepth < 1:
		return b.fail("find_path: min_depth must be at least 1")
	case maxDepth < minDepth:
		return b.fail("find_path: max_depth %d is below min_depth %d", maxDepth, minDepth)
	case maxDepth > maxPathDepth:
		return b.fail("find_path: max_depth may not exceed %d", maxPathDepth)
	}

	labels := make([]string, 0, len(edgeLabels))
	for _, l := range edgeLabels {
		labels = append(labels, models.NormalizeEdgeLabel(l))
	}

	b.plan.path = &PathSpec{
		FromLabel:  fromLabel,
		ToLabel:    toLabel,
		EdgeLabels: labels,
		MinDepth:   minDepth,
		MaxDepth:   maxDepth,
	}

	return b
}

// GroupBy groups results by a property before aggregation.
func (b *Builder) GroupBy(field string) *Builder {
	b.ensureGroup().Key = field

	return b
}

// GroupByFunc groups results by a computed key. Like Where, it makes the plan
// uncacheable.
func (b *Builder) GroupByFunc(name string, fn func(models.Node) any) *Builder {
	if name == "" || fn == nil {
		return b.fail("group_by: name and function are required")
	}

	g := b.ensureGroup()
	g.Key = name
	g.keyFn = fn

	return b
}

// Aggregate adds a reduction. Count ignores field; the others read a numeric field.
func (b *Builder) Aggregate(op AggOp, field, alias string) *Builder {
	switch op {
	case AggCount:
	case AggSum, AggAvg, AggMin, AggMax:
		if field == "" {
			return b.fail("aggregate %s: field is required", op)
		}
	default:
		return b.fail("aggregate: unknown operator %q", op)
	}

	g := b.ensureGroup()
	g.Aggregations = append(g.Aggregations, Aggregation{Op: op, Field: field, Alias: alias})

	return b
}

func (b *Builder) ensureGroup() *GroupSpec {
	if b.plan.group == nil {
		b.plan.group = &GroupSpec{}
	}

	return b.plan.group
}

// OrderBy sorts results by field. Later calls break ties of earlier ones.
func (b *Builder) OrderBy(field string, desc bool) *Builder {
	if field == "" {
		return b.fail("order_by: field is required")
	}

	b.plan.sort = append(b.plan.sort, SortKey{Field: field, Desc: desc})

	return b
}

// Page skips offset results and returns at most limit. A zero limit is unbounded.
func (b *Builder) Page(offset, limit int) *Builder {
	if offset < 0 || limit < 0 {
		return b.fail("page: offset and limit must not be negative")
	}

	b.plan.offset = offset
	b.plan.limit = limit

	return b
}

// Build validates the accumulated clauses and returns an immutable plan.
func (b *Builder) Build() (*Plan, error) {
	errs := slices.Clone(b.errs)

	if b.plan.path != nil && (b.plan.vector != nil || b.plan.group != nil) {
		errs = append(errs, errors.New("find_path cannot be combined with vector search or aggregation"))
	}

	if b.plan.group != nil && len(b.plan.group.Aggregations) == 0 {
		errs = append(errs, errors.New("group_by requires at least one aggregation"))
	}

	if len(errs) > 0 {
		return nil, &models.QueryError{Reason: "invalid plan", Err: errors.Join(errs...)}
	}

	p := b.plan
	p.predicates = slices.Clone(p.predicates)
	p.sort = slices.Clone(p.sort)

	if p.vector != nil {
		v := *p.vector
		p.vector = &v
	}

	if p.path != nil {
		ps := *p.path
		p.path = &ps
	}

	if p.group != nil {
		g := *p.group
		g.Aggregations = slices.Clone(g.Aggregations)
		p.group = &g
	}

	return &p, nil
}
