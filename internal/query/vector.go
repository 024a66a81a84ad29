package query

import "math"

// AsVector converts a stored property value into a float vector. JSON-decoded
// arrays arrive as []any and are accepted when every element is numeric.
func AsVector(v any) ([]float64, bool) {
	switch vv := v.(type) {
	case []float64:
		return vv, len(vv) > 0
	case []float32:
		out := make([]float64, len(vv))
		for i, x := range vv {
			out[i] = float64(x)
		}

		return out, len(out) > 0
	case []any:
		out := make([]float64, len(vv))
		for i, x := range vv {
			f, ok := toFloat(x)
			if !ok {
				return nil, false
			}

			out[i] = f
		}

		return out, len(out) > 0
	}

	return nil, false
}

// Cosine returns the cosine similarity of a and b, or 0 when the vectors
// differ in length or either has zero magnitude.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}

	if na == 0 || nb == 0 {
		return 0
	}

	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
