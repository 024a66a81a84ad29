package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/graphrouter/client"
)

func newOntologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ontology",
		Short: "Inspect and extend the schema",
	}
	cmd.AddCommand(ontologyShowCmd())
	cmd.AddCommand(ontologyRegisterCmd())
	return cmd
}

func ontologyShowCmd() *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show registered node and edge types",
		Run: func(cmd *cobra.Command, args []string) {
			o, err := apiClient.Ontology.Get(context.Background())
			if err != nil {
				fatal("get ontology", err)
			}
			if summary {
				fmt.Println(o.Summary)
				return
			}
			if flagFmt == "table" {
				typeTable(append(o.NodeTypes, o.EdgeTypes...))
				return
			}
			output(o, fmt.Sprintf("%d", o.Version))
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "Print the compact text summary")
	return cmd
}

func ontologyRegisterCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a type read from a YAML or JSON document",
		Long: "Register one type. The document has the fields name, kind (node|edge), properties " +
			"(name -> type), required, source_types, target_types, strict and forbid_parallel.",
		Run: func(cmd *cobra.Command, args []string) {
			t, err := readTypeDoc(file)
			if err != nil {
				fatal("read type", err)
			}
			v, err := apiClient.Ontology.Register(context.Background(), t)
			if err != nil {
				fatal("register type", err)
			}
			output(map[string]any{"registered": t.Name, "version": v}, t.Name)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Type document (default stdin)")
	return cmd
}

// typeDoc mirrors client.Type with YAML tags. JSON documents parse as YAML.
type typeDoc struct {
	Name           string            `yaml:"name"`
	Kind           string            `yaml:"kind"`
	Properties     map[string]string `yaml:"properties"`
	Required       []string          `yaml:"required"`
	SourceTypes    []string          `yaml:"source_types"`
	TargetTypes    []string          `yaml:"target_types"`
	Strict         bool              `yaml:"strict"`
	ForbidParallel bool              `yaml:"forbid_parallel"`
}

func readTypeDoc(path string) (client.Type, error) {
	data, err := readInput(path)
	if err != nil {
		return client.Type{}, err
	}
	var doc typeDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return client.Type{}, fmt.Errorf("parse %s: %w", inputName(path), err)
	}
	if doc.Name == "" {
		return client.Type{}, fmt.Errorf("%s: name is required", inputName(path))
	}
	if doc.Kind == "" {
		doc.Kind = "node"
	}
	return client.Type(doc), nil
}

func typeTable(types []client.Type) {
	headers := []string{"KIND", "NAME", "PROPERTIES", "REQUIRED"}
	rows := make([][]string, 0, len(types))
	for _, t := range types {
		props := make([]string, 0, len(t.Properties))
		for name, typ := range t.Properties {
			props = append(props, name+":"+typ)
		}
		sort.Strings(props)
		rows = append(rows, []string{t.Kind, t.Name, strings.Join(props, " "), strings.Join(t.Required, ",")})
	}
	formatTable(headers, rows)
}
