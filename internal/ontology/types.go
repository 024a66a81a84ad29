package ontology

import (
	"fmt"
	"math"
	"strings"
)

// PropType is a primitive property type name.
type PropType string

// Supported property types.
const (
	String  PropType = "string"
	Int     PropType = "int"
	Float   PropType = "float"
	Bool    PropType = "bool"
	List    PropType = "list"
	Dict    PropType = "dict"
	Vector  PropType = "vector"
	AnyType PropType = "any"
)

var typeAliases = map[string]PropType{
	"string":  String,
	"str":     String,
	"int":     Int,
	"integer": Int,
	"float":   Float,
	"number":  Float,
	"bool":    Bool,
	"boolean": Bool,
	"list":    List,
	"array":   List,
	"dict":    Dict,
	"object":  Dict,
	"vector":  Vector,
	"any":     AnyType,
}

// ParseType resolves a type name or alias.
func ParseType(name string) (PropType, error) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown property type %q", name)
	}

	return t, nil
}

// Accepts reports whether v conforms to t. Values decoded from JSON are accepted
// where they represent the declared type (integral float64 for int, []any for vector).
func (t PropType) Accepts(v any) bool { //nolint:gocyclo,cyclop // one case per type.
	switch t {
	case AnyType:
		return true
	case String:
		_, ok := v.(string)
		return ok
	case Bool:
		_, ok := v.(bool)
		return ok
	case Int:
		switch n := v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return n == math.Trunc(n) && !math.IsInf(n, 0)
		}

		return false
	case Float:
		switch v.(type) {
		case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}

		return false
	case List:
		switch v.(type) {
		case []any, []string, []int, []float64, []float32:
			return true
		}

		return false
	case Dict:
		_, ok := v.(map[string]any)
		return ok
	case Vector:
		switch vv := v.(type) {
		case []float64, []float32:
			return true
		case []any:
			for _, x := range vv {
				if !Float.Accepts(x) {
					return false
				}
			}

			return true
		}

		return false
	}

	return false
}
