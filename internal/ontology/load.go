package ontology

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileType is the YAML form of a type declaration.
type fileType struct {
	Name           string            `yaml:"name"`
	Properties     map[string]string `yaml:"properties"`
	Required       []string          `yaml:"required"`
	SourceTypes    []string          `yaml:"source_types"`
	TargetTypes    []string          `yaml:"target_types"`
	Strict         bool              `yaml:"strict"`
	ForbidParallel bool              `yaml:"forbid_parallel"`
}

type fileSchema struct {
	IncludeCore bool       `yaml:"include_core"`
	NodeTypes   []fileType `yaml:"node_types"`
	EdgeTypes   []fileType `yaml:"edge_types"`
}

// LoadFile reads a YAML ontology document from path into r.
func LoadFile(r *Registry, path string) error {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration.
	if err != nil {
		return fmt.Errorf("opening ontology file: %w", err)
	}
	defer f.Close()

	return Load(r, f)
}

// Load reads a YAML ontology document into r.
//
//	include_core: true
//	node_types:
//	  - name: Person
//	    properties: {name: string, age: int}
//	    required: [name]
//	edge_types:
//	  - name: knows
//	    source_types: [Person]
//	    target_types: [Person]
func Load(r *Registry, src io.Reader) error {
	var doc fileSchema
	if err := yaml.NewDecoder(src).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}

		return fmt.Errorf("decoding ontology: %w", err)
	}

	if doc.IncludeCore {
		if err := Core(r); err != nil {
			return fmt.Errorf("registering core ontology: %w", err)
		}
	}

	for _, ft := range doc.NodeTypes {
		t, err := ft.toType(NodeKind)
		if err != nil {
			return err
		}

		if err := r.Register(t); err != nil {
			return fmt.Errorf("registering node type %q: %w", ft.Name, err)
		}
	}

	for _, ft := range doc.EdgeTypes {
		t, err := ft.toType(EdgeKind)
		if err != nil {
			return err
		}

		if err := r.Register(t); err != nil {
			return fmt.Errorf("registering edge type %q: %w", ft.Name, err)
		}
	}

	return nil
}

func (ft fileType) toType(kind Kind) (Type, error) {
	props := make(map[string]PropType, len(ft.Properties))
	for name, typeName := range ft.Properties {
		pt, err := ParseType(typeName)
		if err != nil {
			return Type{}, fmt.Errorf("%s %q property %q: %w", kind, ft.Name, name, err)
		}

		props[name] = pt
	}

	return Type{
		Name:           ft.Name,
		Kind:           kind,
		Properties:     props,
		Required:       ft.Required,
		SourceTypes:    ft.SourceTypes,
		TargetTypes:    ft.TargetTypes,
		Strict:         ft.Strict,
		ForbidParallel: ft.ForbidParallel,
	}, nil
}
