package query

import "fmt"

// Filter is the serializable form of a predicate.
type Filter struct {
	Op    Op     `json:"op"`
	Field string `json:"field,omitempty"`
	Value any    `json:"value,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Spec is the JSON form of a plan, accepted by the HTTP API and the CLI.
type Spec struct {
	Filters      []Filter      `json:"filters,omitempty"`
	Vector       *VectorSpec   `json:"vector,omitempty"`
	Path         *PathSpec     `json:"path,omitempty"`
	GroupBy      string        `json:"group_by,omitempty"`
	GroupByFunc  bool          `json:"group_by_func,omitempty"`
	Aggregations []Aggregation `json:"aggregations,omitempty"`
	Sort         []SortKey     `json:"sort,omitempty"`
	Offset       int           `json:"offset,omitempty"`
	Limit        int           `json:"limit,omitempty"`
}

// Build converts the spec into a plan. Function predicates cannot be expressed
// in JSON and are rejected.
func (s Spec) Build() (*Plan, error) {
	b := NewBuilder()

	for i, f := range s.Filters {
		switch f.Op {
		case OpLabelEquals:
			label, ok := f.Value.(string)
			if !ok {
				b.fail("filter %d: label_equals value must be a string", i)

				continue
			}

			b.LabelEquals(label)
		case OpEquals:
			b.PropertyEquals(f.Field, f.Value)
		case OpGreaterThan:
			b.PropertyGreaterThan(f.Field, f.Value)
		case OpLessThan:
			b.PropertyLessThan(f.Field, f.Value)
		case OpContains:
			b.PropertyContains(f.Field, f.Value)
		default:
			b.fail("filter %d: unsupported operator %q", i, f.Op)
		}
	}

	if s.Vector != nil {
		b.VectorNearest(s.Vector.Field, s.Vector.Vector, s.Vector.K, s.Vector.MinScore)
	}

	if s.Path != nil {
		b.FindPath(s.Path.FromLabel, s.Path.ToLabel, s.Path.EdgeLabels, s.Path.MinDepth, s.Path.MaxDepth)
	}

	if s.GroupByFunc {
		b.fail("group_by_func cannot be expressed in JSON")
	}

	if s.GroupBy != "" {
		b.GroupBy(s.GroupBy)
	}

	for _, a := range s.Aggregations {
		b.Aggregate(a.Op, a.Field, a.Alias)
	}

	for _, k := range s.Sort {
		b.OrderBy(k.Field, k.Desc)
	}

	if s.Offset != 0 || s.Limit != 0 {
		b.Page(s.Offset, s.Limit)
	}

	return b.Build()
}

// String renders a short human-readable summary, used in logs.
func (s Spec) String() string {
	switch {
	case s.Path != nil:
		return fmt.Sprintf("path %s->%s depth %d..%d", s.Path.FromLabel, s.Path.ToLabel, s.Path.MinDepth, s.Path.MaxDepth)
	case s.Vector != nil:
		return fmt.Sprintf("vector %s k=%d filters=%d", s.Vector.Field, s.Vector.K, len(s.Filters))
	case len(s.Aggregations) > 0:
		return fmt.Sprintf("aggregate by %q filters=%d", s.GroupBy, len(s.Filters))
	}

	return fmt.Sprintf("filters=%d offset=%d limit=%d", len(s.Filters), s.Offset, s.Limit)
}
