// Package query defines the immutable query plan, its builder, and the
// backend-independent evaluator that gives every storage engine the same semantics.
package query

import (
	"encoding/json"
	"slices"

	"github.com/persistorai/graphrouter/internal/models"
)

// VectorSpec describes a nearest-neighbour search over an embedding property.
type VectorSpec struct {
	Field    string    `json:"field"`
	Vector   []float64 `json:"vector"`
	K        int       `json:"k"`
	MinScore float64   `json:"min_score"`
}

// PathSpec describes a bounded depth-first path search.
type PathSpec struct {
	FromLabel  string   `json:"from_label"`
	ToLabel    string   `json:"to_label"`
	EdgeLabels []string `json:"edge_labels,omitempty"`
	MinDepth   int      `json:"min_depth"`
	MaxDepth   int      `json:"max_depth"`
}

// AggOp is an aggregate reduction.
type AggOp string

// Aggregate operators.
const (
	AggCount AggOp = "count"
	AggSum   AggOp = "sum"
	AggAvg   AggOp = "avg"
	AggMin   AggOp = "min"
	AggMax   AggOp = "max"
)

// Aggregation is one reduction applied per group.
type Aggregation struct {
	Op    AggOp  `json:"op"`
	Field string `json:"field,omitempty"`
	Alias string `json:"alias,omitempty"`
}

// Name returns the output column of the aggregation.
func (a Aggregation) Name() string {
	if a.Alias != "" {
		return a.Alias
	}

	if a.Op == AggCount || a.Field == "" {
		return string(a.Op)
	}

	return string(a.Op) + "_" + a.Field
}

// GroupSpec describes grouping and the reductions applied to each group.
type GroupSpec struct {
	// Key names the grouping property, or the key function when keyFn is set.
	Key          string
	Aggregations []Aggregation
	keyFn        func(models.Node) any
}

// KeyOf returns the grouping key for n. Nodes without the key property map to nil.
func (g GroupSpec) KeyOf(n models.Node) any {
	if g.keyFn != nil {
		return g.keyFn(n)
	}

	if g.Key == "" {
		return nil
	}

	return n.Properties[g.Key]
}

// SortKey orders results by a property.
type SortKey struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Plan is an immutable description of a read. Build one with a Builder.
// A plan may be executed any number of times.
type Plan struct {
	predicates []Predicate
	vector     *VectorSpec
	path       *PathSpec
	group      *GroupSpec
	sort       []SortKey
	offset     int
	limit      int
}

// Predicates returns the conjunctive filter terms in insertion order.
func (p *Plan) Predicates() []Predicate { return slices.Clone(p.predicates) }

// Vector returns the vector search spec, if any.
func (p *Plan) Vector() (VectorSpec, bool) {
	if p.vector == nil {
		return VectorSpec{}, false
	}

	v := *p.vector
	v.Vector = slices.Clone(v.Vector)

	return v, true
}

// Path returns the path-find spec, if any.
func (p *Plan) Path() (PathSpec, bool) {
	if p.path == nil {
		return PathSpec{}, false
	}

	ps := *p.path
	ps.EdgeLabels = slices.Clone(ps.EdgeLabels)

	return ps, true
}

// Group returns the aggregation spec, if any.
func (p *Plan) Group() (GroupSpec, bool) {
	if p.group == nil {
		return GroupSpec{}, false
	}

	g := *p.group
	g.Aggregations = slices.Clone(g.Aggregations)

	return g, true
}

// Sort returns the ordering keys.
func (p *Plan) Sort() []SortKey { return slices.Clone(p.sort) }

// Offset returns the number of leading results skipped.
func (p *Plan) Offset() int { return p.offset }

// Limit returns the page size, 0 meaning unbounded.
func (p *Plan) Limit() int { return p.limit }

// Labels returns the node labels the plan is constrained to. An empty result
// means the plan may touch any label.
func (p *Plan) Labels() []string {
	var out []string

	if p.path != nil {
		out = append(out, p.path.FromLabel, p.path.ToLabel)
	}

	for _, pr := range p.predicates {
		if pr.op == OpLabelEquals {
			if s, ok := pr.value.(string); ok {
				out = append(out, s)
			}
		}
	}

	slices.Sort(out)

	return slices.Compact(out)
}

// Prefilter is a pushdown hint for backends: a label and exact property matches
// every result must satisfy. Backends may ignore it; the evaluator re-checks.
type Prefilter struct {
	Label  string
	Equals map[string]any
}

// Prefilter derives the pushdown hint from the plan's predicates.
func (p *Plan) Prefilter() Prefilter {
	var pf Prefilter

	for _, pr := range p.predicates {
		switch pr.op {
		case OpLabelEquals:
			if s, ok := pr.value.(string); ok && pf.Label == "" {
				pf.Label = s
			}
		case OpEquals:
			if pf.Equals == nil {
				pf.Equals = make(map[string]any)
			}

			if _, dup := pf.Equals[pr.field]; !dup {
				pf.Equals[pr.field] = pr.value
			}
		}
	}

	return pf
}

// Spec returns the serializable description of the plan. Function predicates
// and key functions appear by name only.
func (p *Plan) Spec() Spec {
	s := Spec{
		Sort:   p.Sort(),
		Offset: p.offset,
		Limit:  p.limit,
	}

	for _, pr := range p.predicates {
		s.Filters = append(s.Filters, Filter{Op: pr.op, Field: pr.field, Value: pr.value, Name: pr.name})
	}

	if v, ok := p.Vector(); ok {
		s.Vector = &v
	}

	if ps, ok := p.Path(); ok {
		s.Path = &ps
	}

	if g, ok := p.Group(); ok {
		s.GroupBy = g.Key
		s.GroupByFunc = g.keyFn != nil
		s.Aggregations = g.Aggregations
	}

	return s
}

// Cacheable reports whether the plan is fully described by its Canonical
// encoding. Function predicates and key functions are not.
func (p *Plan) Cacheable() bool {
	if p.group != nil && p.group.keyFn != nil {
		return false
	}

	for _, pr := range p.predicates {
		if pr.op == OpFunc {
			return false
		}
	}

	return true
}

// Canonical returns the deterministic encoding of the plan used for fingerprinting.
// Structurally different but equivalent plans encode differently.
func (p *Plan) Canonical() ([]byte, error) {
	return json.Marshal(p.Spec())
}
