package ontology

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Summary renders the registry as short plain-text lines for model prompts,
// one type per line. Required properties are marked with '*'.
func (r *Registry) Summary() string {
	var b strings.Builder

	for _, t := range r.Types() {
		names := make([]string, 0, len(t.Properties))
		for name := range t.Properties {
			names = append(names, name)
		}

		sort.Strings(names)

		props := make([]string, len(names))
		for i, name := range names {
			mark := ""
			if slices.Contains(t.Required, name) {
				mark = "*"
			}

			props[i] = fmt.Sprintf("%s%s:%s", name, mark, t.Properties[name])
		}

		fmt.Fprintf(&b, "%s %s(%s)", t.Kind, t.Name, strings.Join(props, ", "))

		if t.Kind == EdgeKind && (len(t.SourceTypes) > 0 || len(t.TargetTypes) > 0) {
			fmt.Fprintf(&b, " %s -> %s", orAny(t.SourceTypes), orAny(t.TargetTypes))
		}

		b.WriteByte('\n')
	}

	return b.String()
}

func orAny(labels []string) string {
	if len(labels) == 0 {
		return "any"
	}

	return strings.Join(labels, "|")
}
