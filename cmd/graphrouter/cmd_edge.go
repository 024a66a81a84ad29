package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/persistorai/graphrouter/client"
)

func newEdgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edge",
		Short: "Manage edges",
	}
	cmd.AddCommand(edgeCreateCmd())
	cmd.AddCommand(edgeGetCmd())
	cmd.AddCommand(edgeUpdateCmd())
	cmd.AddCommand(edgeDeleteCmd())
	return cmd
}

func edgeCreateCmd() *cobra.Command {
	var propsJSON string
	cmd := &cobra.Command{
		Use:   "create <from> <to> <label>",
		Short: "Create an edge",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			props, err := parseProps(propsJSON)
			if err != nil {
				fatal("parse props", err)
			}
			edge, err := apiClient.Edges.Create(context.Background(), client.CreateEdgeRequest{
				From:       args[0],
				To:         args[1],
				Label:      args[2],
				Properties: props,
			})
			if err != nil {
				fatal("create edge", err)
			}
			output(edge, edge.ID)
		},
	}
	cmd.Flags().StringVar(&propsJSON, "props", "", "Properties as JSON")
	return cmd
}

func edgeGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get an edge by ID",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			edge, err := apiClient.Edges.Get(context.Background(), args[0])
			if err != nil {
				fatal("get edge", err)
			}
			output(edge, edge.ID)
		},
	}
}

func edgeUpdateCmd() *cobra.Command {
	var propsJSON string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Overlay properties onto an edge",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			props, err := parseProps(propsJSON)
			if err != nil {
				fatal("parse props", err)
			}
			edge, err := apiClient.Edges.Update(context.Background(), args[0], props)
			if err != nil {
				fatal("update edge", err)
			}
			output(edge, edge.ID)
		},
	}
	cmd.Flags().StringVar(&propsJSON, "props", "", "Properties as JSON")
	_ = cmd.MarkFlagRequired("props")
	return cmd
}

func edgeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an edge",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient.Edges.Delete(context.Background(), args[0]); err != nil {
				fatal("delete edge", err)
			}
			fmt.Println("deleted")
		},
	}
}
