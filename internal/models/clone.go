package models

import (
	"maps"
	"slices"
)

// CloneProperties returns a deep copy of props. A nil map clones to an empty one.
func CloneProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = CloneValue(v)
	}

	return out
}

// CloneValue deep-copies the container types property values are built from.
// Scalars are returned as is; the concrete type of v is always preserved.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}

		return CloneProperties(t)
	case []any:
		if t == nil {
			return t
		}

		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}

		return out
	case []map[string]any:
		if t == nil {
			return t
		}

		out := make([]map[string]any, len(t))
		for i, m := range t {
			out[i] = CloneValue(m).(map[string]any)
		}

		return out
	case map[string]string:
		return maps.Clone(t)
	case []float64:
		return slices.Clone(t)
	case []float32:
		return slices.Clone(t)
	case []string:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	case []int64:
		return slices.Clone(t)
	case []bool:
		return slices.Clone(t)
	default:
		return v
	}
}
