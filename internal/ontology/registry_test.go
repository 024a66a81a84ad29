package ontology_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/persistorai/graphrouter/internal/models"
	"github.com/persistorai/graphrouter/internal/ontology"
)

func personRegistry(t *testing.T) *ontology.Registry {
	t.Helper()

	r := ontology.NewRegistry()
	err := r.RegisterNodeType("Person", map[string]ontology.PropType{
		"name": ontology.String,
		"age":  ontology.Int,
	}, []string{"name"})
	if err != nil {
		t.Fatalf("RegisterNodeType: %v", err)
	}

	return r
}

func validationKind(t *testing.T, err error) *models.ValidationError {
	t.Helper()

	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	return ve
}

func TestValidate_MissingRequired(t *testing.T) {
	t.Parallel()

	r := personRegistry(t)

	ve := validationKind(t, r.Validate("Person", map[string]any{}, ontology.NodeKind))
	if ve.Kind != models.MissingField || ve.Field != "name" {
		t.Errorf("expected missing_field name, got %s %q", ve.Kind, ve.Field)
	}
}

func TestValidate_EmptyStringCountsAsMissing(t *testing.T) {
	t.Parallel()

	r := personRegistry(t)

	ve := validationKind(t, r.Validate("Person", map[string]any{"name": ""}, ontology.NodeKind))
	if ve.Kind != models.MissingField {
		t.Errorf("expected missing_field, got %s", ve.Kind)
	}
}

func TestValidate_TypeMismatch(t *testing.T) {
	t.Parallel()

	r := personRegistry(t)

	ve := validationKind(t, r.Validate("Person", map[string]any{"name": "Ada", "age": "old"}, ontology.NodeKind))
	if ve.Kind != models.TypeMismatch || ve.Field != "age" {
		t.Errorf("expected type_mismatch age, got %s %q", ve.Kind, ve.Field)
	}
}

func TestValidate_JSONNumbers(t *testing.T) {
	t.Parallel()

	r := personRegistry(t)

	if err := r.Validate("Person", map[string]any{"name": "Ada", "age": float64(36)}, ontology.NodeKind); err != nil {
		t.Errorf("integral float64 should satisfy int: %v", err)
	}

	if err := r.Validate("Person", map[string]any{"name": "Ada", "age": 36.5}, ontology.NodeKind); err == nil {
		t.Error("fractional float64 should not satisfy int")
	}
}

func TestValidate_UnknownLabel(t *testing.T) {
	t.Parallel()

	r := personRegistry(t)

	ve := validationKind(t, r.Validate("Robot", map[string]any{}, ontology.NodeKind))
	if ve.Kind != models.UnknownLabel {
		t.Errorf("expected unknown_label, got %s", ve.Kind)
	}
}

func TestValidate_StrictRejectsUnknownField(t *testing.T) {
	t.Parallel()

	r := ontology.NewRegistry()
	if err := r.Register(ontology.Type{
		Name:       "Tag",
		Kind:       ontology.NodeKind,
		Properties: map[string]ontology.PropType{"name": ontology.String},
		Strict:     true,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ve := validationKind(t, r.Validate("Tag", map[string]any{"name": "x", "color": "red"}, ontology.NodeKind))
	if ve.Kind != models.UnknownField || ve.Field != "color" {
		t.Errorf("expected unknown_field color, got %s %q", ve.Kind, ve.Field)
	}
}

func TestVersion_BumpsOnRegister(t *testing.T) {
	t.Parallel()

	r := ontology.NewRegistry()
	before := r.Version()

	if err := r.RegisterEdgeType("KNOWS", nil, nil, []string{"Person"}, []string{"Person"}); err != nil {
		t.Fatalf("RegisterEdgeType: %v", err)
	}

	if r.Version() != before+1 {
		t.Errorf("expected version %d, got %d", before+1, r.Version())
	}

	if !r.HasLabel(ontology.EdgeKind, "knows") {
		t.Error("edge label should be stored lower-cased")
	}
}

func TestValidateEndpoints(t *testing.T) {
	t.Parallel()

	r := personRegistry(t)
	if err := r.RegisterEdgeType("knows", nil, nil, []string{"Person"}, []string{"Person"}); err != nil {
		t.Fatalf("RegisterEdgeType: %v", err)
	}

	if err := r.ValidateEndpoints("KNOWS", "Person", "Person"); err != nil {
		t.Errorf("expected valid endpoints, got %v", err)
	}

	ve := validationKind(t, r.ValidateEndpoints("knows", "Person", "File"))
	if ve.Kind != models.EndpointMismatch {
		t.Errorf("expected endpoint_mismatch, got %s", ve.Kind)
	}
}

func TestEnsureEdgeType_Idempotent(t *testing.T) {
	t.Parallel()

	r := ontology.NewRegistry()

	added, err := r.EnsureEdgeType(ontology.SimilarityType())
	if err != nil || !added {
		t.Fatalf("first EnsureEdgeType: added=%v err=%v", added, err)
	}

	v := r.Version()

	added, err = r.EnsureEdgeType(ontology.SimilarityType())
	if err != nil || added {
		t.Fatalf("second EnsureEdgeType: added=%v err=%v", added, err)
	}

	if r.Version() != v {
		t.Error("version should not change when type already exists")
	}
}

func TestRegister_Concurrent(t *testing.T) {
	t.Parallel()

	r := ontology.NewRegistry()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			name := "T" + strings.Repeat("x", i)
			if err := r.RegisterNodeType(name, nil, nil); err != nil {
				t.Errorf("RegisterNodeType: %v", err)
			}

			_ = r.Validate(name, map[string]any{}, ontology.NodeKind)
		}()
	}

	wg.Wait()

	if r.Version() != 50 {
		t.Errorf("expected version 50, got %d", r.Version())
	}
}

func TestCore(t *testing.T) {
	t.Parallel()

	r := ontology.NewRegistry()
	if err := ontology.Core(r); err != nil {
		t.Fatalf("Core: %v", err)
	}

	for _, name := range []string{"DataSource", "File", "Row", "Log", "SearchResult", "Webhook"} {
		if !r.HasLabel(ontology.NodeKind, name) {
			t.Errorf("missing core node type %s", name)
		}
	}

	if err := r.ValidateEndpoints("HAS_FILE", "DataSource", "File"); err != nil {
		t.Errorf("has_file endpoints: %v", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	doc := `
node_types:
  - name: Person
    properties: {name: str, age: integer, embedding: vector}
    required: [name]
edge_types:
  - name: KNOWS
    properties: {since: int}
    source_types: [Person]
    target_types: [Person]
    forbid_parallel: true
`

	r := ontology.NewRegistry()
	if err := ontology.Load(r, strings.NewReader(doc)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := r.Validate("Person", map[string]any{"name": "Ada", "embedding": []any{0.1, 0.2}}, ontology.NodeKind); err != nil {
		t.Errorf("Validate: %v", err)
	}

	if !r.ForbidsParallel("knows") {
		t.Error("expected knows to forbid parallel edges")
	}
}

func TestLoad_BadType(t *testing.T) {
	t.Parallel()

	doc := `
node_types:
  - name: Person
    properties: {name: text}
`

	err := ontology.Load(ontology.NewRegistry(), strings.NewReader(doc))
	if err == nil || !strings.Contains(err.Error(), "unknown property type") {
		t.Errorf("expected unknown property type error, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	r := ontology.NewRegistry()
	if err := r.RegisterNodeType("Person", map[string]ontology.PropType{"name": ontology.String, "age": ontology.Int}, []string{"name"}); err != nil {
		t.Fatalf("RegisterNodeType: %v", err)
	}

	if err := r.RegisterEdgeType("works_at", nil, nil, []string{"Person"}, nil); err != nil {
		t.Fatalf("RegisterEdgeType: %v", err)
	}

	want := "node Person(age:int, name*:string)\nedge works_at() Person -> any\n"
	if got := r.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
