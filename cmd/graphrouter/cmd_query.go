package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/persistorai/graphrouter/client"
)

// readInput returns the contents of path, or of stdin when path is "-" or empty.
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// readJSONInput decodes v from path or stdin, rejecting unknown fields.
func readJSONInput(path string, v any) error {
	data, err := readInput(path)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", inputName(path), err)
	}
	return nil
}

func inputName(path string) string {
	if path == "" || path == "-" {
		return "stdin"
	}
	return path
}

func newQueryCmd() *cobra.Command {
	var (
		file      string
		label     string
		limit     int
		merge     bool
		threshold float64
		skipCache bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Execute a query plan",
		Long: "Execute a query plan read as JSON from --file (or stdin). " +
			"With --label the plan is a simple label filter instead.",
		Run: func(cmd *cobra.Command, args []string) {
			var spec client.QuerySpec
			if label != "" {
				spec.Filters = []client.Filter{{Op: "label_equals", Value: label}}
			} else if err := readJSONInput(file, &spec); err != nil {
				fatal("read plan", err)
			}
			if limit > 0 {
				spec.Limit = limit
			}
			res, err := apiClient.Query(context.Background(), spec, &client.QueryOptions{
				MergeOnQuery:   merge,
				MergeThreshold: threshold,
				SkipCache:      skipCache,
			})
			if err != nil {
				fatal("query", err)
			}
			for _, w := range res.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w)
			}
			switch {
			case flagFmt == "table" && len(res.Rows) > 0:
				rowTable(res.Rows)
			case flagFmt == "table":
				nodeTable(res.Nodes)
			case flagFmt == "quiet":
				for _, n := range res.Nodes {
					fmt.Println(n.ID)
				}
			default:
				output(res, "")
			}
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Plan JSON file (default stdin)")
	cmd.Flags().StringVar(&label, "label", "", "Shortcut: list nodes with this label")
	cmd.Flags().IntVar(&limit, "limit", 0, "Override the plan limit")
	cmd.Flags().BoolVar(&merge, "merge", false, "Apply merge-on-query entity resolution")
	cmd.Flags().Float64Var(&threshold, "merge-threshold", 0, "Override the merge threshold")
	cmd.Flags().BoolVar(&skipCache, "no-cache", false, "Bypass the result cache")
	return cmd
}

func newTxCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Run operations as one atomic transaction",
		Long:  "Reads a JSON array of operations ({kind, id, label, from_id, to_id, properties}) from --file or stdin.",
		Run: func(cmd *cobra.Command, args []string) {
			var ops []client.Operation
			if err := readJSONInput(file, &ops); err != nil {
				fatal("read operations", err)
			}
			outcomes, err := apiClient.Transactions.Execute(context.Background(), ops)
			if err != nil {
				fatal("transaction", err)
			}
			output(outcomes, fmt.Sprintf("%d", len(outcomes)))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Operations JSON file (default stdin)")
	return cmd
}

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "All-or-nothing bulk writes",
	}

	var nodesFile, edgesFile string

	nodes := &cobra.Command{
		Use:   "nodes",
		Short: "Create a JSON array of nodes",
		Run: func(cmd *cobra.Command, args []string) {
			var reqs []client.CreateNodeRequest
			if err := readJSONInput(nodesFile, &reqs); err != nil {
				fatal("read nodes", err)
			}
			created, err := apiClient.Batch.Nodes(context.Background(), reqs)
			if err != nil {
				fatal("batch nodes", err)
			}
			output(created, fmt.Sprintf("%d", len(created)))
		},
	}
	nodes.Flags().StringVarP(&nodesFile, "file", "f", "", "Nodes JSON file (default stdin)")

	edges := &cobra.Command{
		Use:   "edges",
		Short: "Create a JSON array of edges",
		Run: func(cmd *cobra.Command, args []string) {
			var reqs []client.CreateEdgeRequest
			if err := readJSONInput(edgesFile, &reqs); err != nil {
				fatal("read edges", err)
			}
			created, err := apiClient.Batch.Edges(context.Background(), reqs)
			if err != nil {
				fatal("batch edges", err)
			}
			output(created, fmt.Sprintf("%d", len(created)))
		},
	}
	edges.Flags().StringVarP(&edgesFile, "file", "f", "", "Edges JSON file (default stdin)")

	cmd.AddCommand(nodes, edges)
	return cmd
}
