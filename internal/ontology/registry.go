// Package ontology holds the registered node and edge type schemas and validates writes against them.
package ontology

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/persistorai/graphrouter/internal/models"
)

// Kind distinguishes node types from edge types.
type Kind string

// Schema kinds.
const (
	NodeKind Kind = "node"
	EdgeKind Kind = "edge"
)

// Type is a registered node or edge schema.
type Type struct {
	Name           string              `json:"name"`
	Kind           Kind                `json:"kind"`
	Properties     map[string]PropType `json:"properties"`
	Required       []string            `json:"required,omitempty"`
	SourceTypes    []string            `json:"source_types,omitempty"`
	TargetTypes    []string            `json:"target_types,omitempty"`
	Strict         bool                `json:"strict,omitempty"`
	ForbidParallel bool                `json:"forbid_parallel,omitempty"`
}

func (t Type) clone() Type {
	t.Properties = maps.Clone(t.Properties)
	t.Required = slices.Clone(t.Required)
	t.SourceTypes = slices.Clone(t.SourceTypes)
	t.TargetTypes = slices.Clone(t.TargetTypes)

	return t
}

// Registry is the versioned set of node and edge types for one database instance.
type Registry struct {
	mu      sync.RWMutex
	nodes   map[string]Type
	edges   map[string]Type
	version uint64
}

// NewRegistry returns an empty registry at version 0.
func NewRegistry() *Registry {
	return &Registry{
		nodes: make(map[string]Type),
		edges: make(map[string]Type),
	}
}

// Version returns the schema version. It increases on every registration.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.version
}

// RegisterNodeType adds or replaces a node type.
func (r *Registry) RegisterNodeType(name string, schema map[string]PropType, required []string) error {
	return r.Register(Type{Name: name, Kind: NodeKind, Properties: schema, Required: required})
}

// RegisterEdgeType adds or replaces an edge type. The label is stored lower-cased.
func (r *Registry) RegisterEdgeType(name string, schema map[string]PropType, required, sources, targets []string) error {
	return r.Register(Type{
		Name:        name,
		Kind:        EdgeKind,
		Properties:  schema,
		Required:    required,
		SourceTypes: sources,
		TargetTypes: targets,
	})
}

// Register adds or replaces a fully described type.
func (r *Registry) Register(t Type) error {
	if t.Name == "" {
		return fmt.Errorf("type name is required")
	}

	t = t.clone()
	if t.Properties == nil {
		t.Properties = map[string]PropType{}
	}

	for _, req := range t.Required {
		if _, ok := t.Properties[req]; !ok {
			t.Properties[req] = AnyType
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch t.Kind {
	case NodeKind:
		r.nodes[t.Name] = t
	case EdgeKind:
		t.Name = models.NormalizeEdgeLabel(t.Name)
		r.edges[t.Name] = t
	default:
		return fmt.Errorf("unknown type kind %q", t.Kind)
	}

	r.version++

	return nil
}

// EnsureEdgeType registers t only if no edge type with that name exists.
// It reports whether a registration happened.
func (r *Registry) EnsureEdgeType(t Type) (bool, error) {
	t.Kind = EdgeKind

	r.mu.RLock()
	_, ok := r.edges[models.NormalizeEdgeLabel(t.Name)]
	r.mu.RUnlock()

	if ok {
		return false, nil
	}

	return true, r.Register(t)
}

// Lookup returns a copy of the named type.
func (r *Registry) Lookup(kind Kind, name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		t  Type
		ok bool
	)

	if kind == EdgeKind {
		t, ok = r.edges[models.NormalizeEdgeLabel(name)]
	} else {
		t, ok = r.nodes[name]
	}

	if !ok {
		return Type{}, false
	}

	return t.clone(), true
}

// HasLabel reports whether a type of the given kind is registered.
func (r *Registry) HasLabel(kind Kind, name string) bool {
	_, ok := r.Lookup(kind, name)

	return ok
}

// Types returns all registered types sorted by kind then name.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Type, 0, len(r.nodes)+len(r.edges))
	for _, t := range r.nodes {
		out = append(out, t.clone())
	}

	for _, t := range r.edges {
		out = append(out, t.clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind > out[j].Kind
		}

		return out[i].Name < out[j].Name
	})

	return out
}

// Validate checks props against the type registered for label. A nil return means the write may proceed.
func (r *Registry) Validate(label string, props map[string]any, kind Kind) error {
	t, ok := r.Lookup(kind, label)
	if !ok {
		return &models.ValidationError{Kind: models.UnknownLabel, Label: label}
	}

	return t.validate(props)
}

// ValidatePatch checks a partial property update. Required fields are not enforced
// for keys the patch does not touch, but a patch may not blank a required field.
func (r *Registry) ValidatePatch(label string, patch map[string]any, kind Kind) error {
	t, ok := r.Lookup(kind, label)
	if !ok {
		return &models.ValidationError{Kind: models.UnknownLabel, Label: label}
	}

	for _, req := range t.Required {
		if v, touched := patch[req]; touched && isEmpty(v) {
			return &models.ValidationError{Kind: models.MissingField, Label: t.Name, Field: req}
		}
	}

	return t.checkTypes(patch)
}

// ValidateEndpoints enforces the source/target type lists of an edge type.
func (r *Registry) ValidateEndpoints(label, fromLabel, toLabel string) error {
	t, ok := r.Lookup(EdgeKind, label)
	if !ok {
		return &models.ValidationError{Kind: models.UnknownLabel, Label: label}
	}

	if len(t.SourceTypes) > 0 && !slices.Contains(t.SourceTypes, fromLabel) {
		return &models.ValidationError{
			Kind:   models.EndpointMismatch,
			Label:  t.Name,
			Detail: fmt.Sprintf("source type %q not in %v", fromLabel, t.SourceTypes),
		}
	}

	if len(t.TargetTypes) > 0 && !slices.Contains(t.TargetTypes, toLabel) {
		return &models.ValidationError{
			Kind:   models.EndpointMismatch,
			Label:  t.Name,
			Detail: fmt.Sprintf("target type %q not in %v", toLabel, t.TargetTypes),
		}
	}

	return nil
}

// ValidateEdge checks an edge's properties and its endpoint labels in one call.
func (r *Registry) ValidateEdge(label string, props map[string]any, fromLabel, toLabel string) error {
	if err := r.Validate(label, props, EdgeKind); err != nil {
		return err
	}

	return r.ValidateEndpoints(label, fromLabel, toLabel)
}

// ForbidsParallel reports whether the edge type disallows repeated edges between one pair.
func (r *Registry) ForbidsParallel(label string) bool {
	t, ok := r.Lookup(EdgeKind, label)

	return ok && t.ForbidParallel
}

func (t Type) validate(props map[string]any) error {
	for _, req := range t.Required {
		v, ok := props[req]
		if !ok || isEmpty(v) {
			return &models.ValidationError{Kind: models.MissingField, Label: t.Name, Field: req}
		}
	}

	return t.checkTypes(props)
}

func (t Type) checkTypes(props map[string]any) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		pt, declared := t.Properties[k]
		if !declared {
			if t.Strict {
				return &models.ValidationError{Kind: models.UnknownField, Label: t.Name, Field: k}
			}

			continue
		}

		v := props[k]
		if v == nil {
			continue
		}

		if !pt.Accepts(v) {
			return &models.ValidationError{
				Kind:   models.TypeMismatch,
				Label:  t.Name,
				Field:  k,
				Detail: fmt.Sprintf("expected %s, got %T", pt, v),
			}
		}
	}

	return nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}

	s, ok := v.(string)

	return ok && s == ""
}
