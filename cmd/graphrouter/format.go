package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/persistorai/graphrouter/client"
)

func formatJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode json: %v\n", err)
		os.Exit(1)
	}
}

func formatTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			w := 0
			if i < len(widths) {
				w = widths[i]
			}
			parts[i] = fmt.Sprintf("%-*s", w, cell)
		}
		fmt.Println(strings.Join(parts, "  "))
	}

	printRow(headers)
	seps := make([]string, len(headers))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	printRow(seps)
	for _, row := range rows {
		printRow(row)
	}
}

// output prints v as JSON, or only quietVal in quiet mode. Commands with a
// table layout render it themselves.
func output(v any, quietVal string) {
	if flagFmt == "quiet" {
		fmt.Println(quietVal)
		return
	}
	formatJSON(v)
}

// propsSummary renders scalar properties as sorted key=value pairs, truncated
// to max characters.
func propsSummary(props map[string]any, maxLen int) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := props[k].(type) {
		case []any, map[string]any:
			parts = append(parts, k+"=...")
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}

	s := strings.Join(parts, " ")
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen-3] + "..."
	}
	return s
}

func nodeTable(nodes []client.Node) {
	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{n.ID, n.Label, propsSummary(n.Properties, 60)})
	}
	formatTable([]string{"ID", "LABEL", "PROPERTIES"}, rows)
}

func edgeTable(edges []client.Edge) {
	rows := make([][]string, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, []string{e.ID, e.From, e.Label, e.To})
	}
	formatTable([]string{"ID", "FROM", "LABEL", "TO"}, rows)
}

// rowTable renders aggregate rows with one column per aggregate alias.
func rowTable(rows []client.Row) {
	var aliases []string
	seen := map[string]bool{}
	for _, r := range rows {
		for k := range r.Values {
			if !seen[k] {
				seen[k] = true
				aliases = append(aliases, k)
			}
		}
	}
	sort.Strings(aliases)

	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells := []string{fmt.Sprintf("%v", r.Key)}
		for _, a := range aliases {
			cells = append(cells, fmt.Sprintf("%v", r.Values[a]))
		}
		out = append(out, cells)
	}

	headers := append([]string{"KEY"}, aliases...)
	for i := range headers {
		headers[i] = strings.ToUpper(headers[i])
	}
	formatTable(headers, out)
}
