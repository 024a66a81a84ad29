package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-operation timings",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			if reset {
				if err := apiClient.ResetOperations(ctx); err != nil {
					fatal("reset stats", err)
				}
				fmt.Println("reset")
				return
			}
			ops, err := apiClient.Operations(ctx)
			if err != nil {
				fatal("get stats", err)
			}
			if flagFmt != "table" {
				output(ops, "")
				return
			}
			names := make([]string, 0, len(ops))
			for name := range ops {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				s := ops[name]
				rows = append(rows, []string{
					name,
					strconv.FormatInt(s.Count, 10),
					fmt.Sprintf("%.2f", s.AvgMs),
					fmt.Sprintf("%.2f", s.MedianMs),
					fmt.Sprintf("%.2f", s.MaxMs),
					fmt.Sprintf("%.1f%%", s.ErrorRate*100),
				})
			}
			formatTable([]string{"OPERATION", "COUNT", "AVG_MS", "MEDIAN_MS", "MAX_MS", "ERRORS"}, rows)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the statistics")
	return cmd
}

func newReasonCmd() *cobra.Command {
	var showSteps bool
	cmd := &cobra.Command{
		Use:   "reason <question>",
		Short: "Answer a question by reasoning over the graph",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ans, err := apiClient.Reason(context.Background(), strings.Join(args, " "))
			if err != nil {
				fatal("reason", err)
			}
			if flagFmt == "json" {
				output(ans, ans.Answer)
				return
			}
			if showSteps {
				for i, s := range ans.Steps {
					fmt.Printf("%d. %s -> %s\n", i+1, s.Thought, s.Action)
				}
				fmt.Println()
			}
			fmt.Println(ans.Answer)
		},
	}
	cmd.Flags().BoolVar(&showSteps, "steps", false, "Print each reasoning step (non-json formats)")
	return cmd
}
