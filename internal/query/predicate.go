package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/persistorai/graphrouter/internal/models"
)

// Op names a filter predicate.
type Op string

// Predicate operators.
const (
	OpLabelEquals Op = "label_equals"
	OpEquals      Op = "property_equals"
	OpGreaterThan Op = "property_greater_than"
	OpLessThan    Op = "property_less_than"
	OpContains    Op = "property_contains"
	OpFunc        Op = "func"
)

// Predicate is one conjunctive filter term.
type Predicate struct {
	op    Op
	field string
	value any
	name  string
	fn    func(models.Node) bool
}

// Op returns the predicate operator.
func (p Predicate) Op() Op { return p.op }

// Field returns the property the predicate reads.
func (p Predicate) Field() string { return p.field }

// Value returns the comparison operand.
func (p Predicate) Value() any { return p.value }

// Match reports whether n satisfies the predicate.
func (p Predicate) Match(n models.Node) bool {
	switch p.op {
	case OpLabelEquals:
		s, _ := p.value.(string)
		return n.Label == s
	case OpFunc:
		return p.fn != nil && p.fn(n)
	}

	v, ok := n.Properties[p.field]
	if !ok {
		return false
	}

	switch p.op {
	case OpEquals:
		return Equal(v, p.value)
	case OpGreaterThan:
		c, ok := Compare(v, p.value)
		return ok && c > 0
	case OpLessThan:
		c, ok := Compare(v, p.value)
		return ok && c < 0
	case OpContains:
		return contains(v, p.value)
	}

	return false
}

func (p Predicate) String() string {
	if p.op == OpFunc {
		return fmt.Sprintf("func(%s)", p.name)
	}

	if p.op == OpLabelEquals {
		return fmt.Sprintf("label = %v", p.value)
	}

	return fmt.Sprintf("%s %s %v", p.field, p.op, p.value)
}

// Equal compares two property values, treating all numeric kinds as float64.
func Equal(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)

	if okA && okB {
		return fa == fb
	}

	return reflect.DeepEqual(a, b)
}

// Compare orders two numbers or two strings. ok is false for any other pairing.
func Compare(a, b any) (int, bool) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)

	if okA && okB {
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}

		return 0, true
	}

	sa, okA := a.(string)
	sb, okB := b.(string)

	if okA && okB {
		return strings.Compare(sa, sb), true
	}

	return 0, false
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(h, s)
	case []any:
		for _, x := range h {
			if Equal(x, needle) {
				return true
			}
		}

		return false
	case []string:
		s, ok := needle.(string)
		if !ok {
			return false
		}

		for _, x := range h {
			if x == s {
				return true
			}
		}

		return false
	case map[string]any:
		s, ok := needle.(string)
		if !ok {
			return false
		}

		_, found := h[s]

		return found
	}

	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}

	return 0, false
}
