package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/persistorai/graphrouter/client"
)

func newNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Manage nodes",
	}
	cmd.AddCommand(nodeCreateCmd())
	cmd.AddCommand(nodeGetCmd())
	cmd.AddCommand(nodeUpdateCmd())
	cmd.AddCommand(nodeDeleteCmd())
	cmd.AddCommand(nodeListCmd())
	cmd.AddCommand(nodeEdgesCmd())
	return cmd
}

// parseProps decodes a --props flag. Empty input yields nil.
func parseProps(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var props map[string]any
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		return nil, fmt.Errorf("props must be a JSON object: %w", err)
	}
	return props, nil
}

func nodeCreateCmd() *cobra.Command {
	var (
		propsJSON string
		dedupOn   bool
		dedupKeys string
	)
	cmd := &cobra.Command{
		Use:   "create <label>",
		Short: "Create a node",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			props, err := parseProps(propsJSON)
			if err != nil {
				fatal("parse props", err)
			}
			var dd *client.Dedup
			if dedupOn || dedupKeys != "" {
				dd = &client.Dedup{Enabled: true}
				if dedupKeys != "" {
					dd.Rules = &client.DedupRules{MetadataKeys: strings.Split(dedupKeys, ",")}
				}
			}
			res, err := apiClient.Nodes.Create(context.Background(), args[0], props, dd)
			if err != nil {
				fatal("create node", err)
			}
			output(res, res.Node.ID)
		},
	}
	cmd.Flags().StringVar(&propsJSON, "props", "", "Properties as JSON")
	cmd.Flags().BoolVar(&dedupOn, "dedup", false, "Run the server's deduplication rules first")
	cmd.Flags().StringVar(&dedupKeys, "dedup-keys", "", "Comma-separated metadata keys that identify duplicates (implies --dedup)")
	return cmd
}

func nodeGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a node by ID",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			node, err := apiClient.Nodes.Get(context.Background(), args[0])
			if err != nil {
				fatal("get node", err)
			}
			output(node, node.ID)
		},
	}
}

func nodeUpdateCmd() *cobra.Command {
	var propsJSON string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Overlay properties onto a node",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			props, err := parseProps(propsJSON)
			if err != nil {
				fatal("parse props", err)
			}
			if len(props) == 0 {
				fmt.Fprintln(os.Stderr, "Error: --props is required")
				os.Exit(1)
			}
			node, err := apiClient.Nodes.Update(context.Background(), args[0], props)
			if err != nil {
				fatal("update node", err)
			}
			output(node, node.ID)
		},
	}
	cmd.Flags().StringVar(&propsJSON, "props", "", "Properties as JSON")
	return cmd
}

func nodeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a node and its edges",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			removed, err := apiClient.Nodes.Delete(context.Background(), args[0])
			if err != nil {
				fatal("delete node", err)
			}
			fmt.Printf("deleted (%d edges removed)\n", removed)
		},
	}
}

func nodeListCmd() *cobra.Command {
	var label string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List nodes",
		Run: func(cmd *cobra.Command, args []string) {
			if limit < 0 {
				fmt.Fprintf(os.Stderr, "Error: --limit must be non-negative\n")
				os.Exit(1)
			}
			if offset < 0 {
				fmt.Fprintf(os.Stderr, "Error: --offset must be non-negative\n")
				os.Exit(1)
			}
			list, err := apiClient.Nodes.List(context.Background(), &client.ListOptions{
				Label:  label,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				fatal("list nodes", err)
			}
			switch flagFmt {
			case "table":
				nodeTable(list.Nodes)
			case "quiet":
				for _, n := range list.Nodes {
					fmt.Println(n.ID)
				}
			default:
				output(list, "")
			}
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Filter by label")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset")
	return cmd
}

func nodeEdgesCmd() *cobra.Command {
	var label, direction string
	cmd := &cobra.Command{
		Use:   "edges <id>",
		Short: "List the edges of a node",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			edges, err := apiClient.Nodes.Edges(context.Background(), args[0], label, direction)
			if err != nil {
				fatal("list edges", err)
			}
			if flagFmt == "table" {
				edgeTable(edges)
				return
			}
			output(edges, "")
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Filter by edge label")
	cmd.Flags().StringVar(&direction, "direction", "both", "out|in|both")
	return cmd
}
