package main

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// findCmd walks the command tree of the real root.
func findCmd(t *testing.T, path ...string) *cobra.Command {
	t.Helper()
	cmd, rest, err := newRootCmd().Find(path)
	if err != nil || len(rest) != 0 {
		t.Fatalf("command %v not found: %v", path, err)
	}
	return cmd
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		path    []string
		args    []string
		wantErr bool
	}{
		{path: []string{"node", "create"}, args: nil, wantErr: true},
		{path: []string{"node", "create"}, args: []string{"Person"}},
		{path: []string{"node", "create"}, args: []string{"Person", "extra"}, wantErr: true},
		{path: []string{"node", "get"}, args: []string{"n1"}},
		{path: []string{"node", "edges"}, args: nil, wantErr: true},
		{path: []string{"edge", "create"}, args: []string{"a", "b"}, wantErr: true},
		{path: []string{"edge", "create"}, args: []string{"a", "b", "knows"}},
		{path: []string{"reason"}, args: nil, wantErr: true},
		{path: []string{"reason"}, args: []string{"who", "knows", "Ada?"}},
		{path: []string{"serve"}, args: []string{"extra"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(strings.Join(append(tt.path, tt.args...), " "), func(t *testing.T) {
			cmd := findCmd(t, tt.path...)
			err := cmd.Args(cmd, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("Args(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestParseProps(t *testing.T) {
	props, err := parseProps(`{"name":"Ada","age":36}`)
	if err != nil {
		t.Fatalf("parseProps: %v", err)
	}
	if props["name"] != "Ada" || props["age"] != float64(36) {
		t.Errorf("got %v", props)
	}

	if props, err := parseProps(""); err != nil || props != nil {
		t.Errorf("empty input: got %v, %v", props, err)
	}

	if _, err := parseProps(`["not","an","object"]`); err == nil {
		t.Error("expected error for a JSON array")
	}
}

func TestReadTypeDoc(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/type.yaml"
	writeFile(t, path, "name: works_at\nkind: edge\nsource_types: [Person]\ntarget_types: [Organization]\n")

	typ, err := readTypeDoc(path)
	if err != nil {
		t.Fatalf("readTypeDoc: %v", err)
	}
	if typ.Name != "works_at" || typ.Kind != "edge" || typ.SourceTypes[0] != "Person" {
		t.Errorf("got %+v", typ)
	}

	writeFile(t, path, "kind: node\n")
	if _, err := readTypeDoc(path); err == nil {
		t.Error("expected error for a missing name")
	}
}

func TestReadJSONInputRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ops.json"
	writeFile(t, path, `[{"kind":"create_node","label":"Person","bogus":1}]`)

	var ops []map[string]any
	if err := readJSONInput(path, &ops); err != nil {
		t.Fatalf("maps accept any field: %v", err)
	}

	var spec struct {
		Limit int `json:"limit"`
	}
	writeFile(t, path, `{"limit":3,"lmit":4}`)
	if err := readJSONInput(path, &spec); err == nil {
		t.Error("expected unknown field error")
	}
}
