package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/graphrouter/client"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		Long:  "Check the config file, server liveness and every readiness check",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(apiClient)
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func runDoctor(c *client.Client) error {
	fmt.Println("\ngraphrouter doctor")
	fmt.Println("==================")

	results := doctorChecks(c)

	fmt.Println()
	allPassed := true
	for _, r := range results {
		mark := "ok  "
		if !r.Passed {
			mark = "FAIL"
			allPassed = false
		}
		if r.Detail != "" {
			fmt.Printf("[%s] %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Printf("[%s] %s\n", mark, r.Name)
		}
		if !r.Passed && r.Hint != "" {
			fmt.Printf("       Hint: %s\n", r.Hint)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("Some checks failed.")
		return errors.New("doctor found issues")
	}
	fmt.Println("All checks passed!")
	return nil
}

func doctorChecks(c *client.Client) []checkResult {
	var results []checkResult

	if path, err := configPath(); err == nil {
		if _, err := loadProfiles(); err != nil {
			results = append(results, checkResult{
				Name: "Config file", Passed: true,
				Detail: "not found, using flags and environment",
			})
		} else {
			results = append(results, checkResult{Name: "Config file", Passed: true, Detail: path})
		}
	}

	results = append(results, checkResult{Name: "Server URL", Passed: true, Detail: flagURL})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := c.Health(ctx)
	if err != nil {
		return append(results, checkResult{
			Name:   "Server reachable",
			Detail: flagURL,
			Hint:   fmt.Sprintf("Is the server running? Try: graphrouter serve\n       Error: %v", err),
		})
	}
	results = append(results, checkResult{
		Name: "Server reachable", Passed: true,
		Detail: fmt.Sprintf("v%s, backend %s", h.Version, h.Backend),
	})

	r, err := c.Ready(ctx)
	if r == nil {
		return append(results, checkResult{Name: "Readiness", Hint: fmt.Sprint(err)})
	}
	results = append(results, checkResult{
		Name: "Readiness", Passed: err == nil, Detail: r.Status,
		Hint: "Check the backend connection settings (GRAPH_BACKEND, DATABASE_URL, NEO4J_URI)",
	})

	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		status := r.Checks[name]
		results = append(results, checkResult{
			Name:   "Check " + name,
			Passed: status == "ok" || status == "disabled",
			Detail: status,
		})
	}

	return results
}
