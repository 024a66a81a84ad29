// Command graphrouter runs the graph query and consistency server and talks to
// a running one from the shell.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/graphrouter/client"
)

// Build-time variables set via ldflags.
var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

const defaultURL = "http://localhost:3030"

var (
	apiClient   *client.Client
	flagURL     string
	flagFmt     string
	flagProfile string
	flagTimeout time.Duration
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("graphrouter version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("graphrouter version %s-dev", version)
}

// profileConfig holds connection settings for a single server.
type profileConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout,omitempty"`
}

// profilesFile is the layout of ~/.graphrouter/config.yaml.
type profilesFile struct {
	Profiles      map[string]profileConfig `yaml:"profiles"`
	ActiveProfile string                   `yaml:"active_profile"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "graphrouter",
		Short:   "graphrouter - one query and consistency layer over many graph backends",
		Version: versionString(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			resolveConfig()
			apiClient = client.New(flagURL,
				client.WithTimeout(flagTimeout),
				client.WithUserAgent("graphrouter-cli/"+version),
			)
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", defaultURL, "Server URL (env: GRAPHROUTER_URL)")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "Config profile (env: GRAPHROUTER_PROFILE)")
	rootCmd.PersistentFlags().StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 60*time.Second, "Request timeout")

	skipClient := func(cmd *cobra.Command, args []string) {}

	serveCmd := newServeCmd()
	serveCmd.PersistentPreRun = skipClient
	initCmd := newInitCmd()
	initCmd.PersistentPreRun = skipClient

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(newDoctorCmd())
	rootCmd.AddCommand(newNodeCmd())
	rootCmd.AddCommand(newEdgeCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newTxCmd())
	rootCmd.AddCommand(newOntologyCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newReasonCmd())

	return rootCmd
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".graphrouter", "config.yaml"), nil
}

func loadProfiles() (*profilesFile, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg profilesFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// resolveConfig fills flags left at their defaults. A flag takes precedence,
// then the environment, then the active profile of the config file.
func resolveConfig() {
	if flagURL == defaultURL {
		if v := os.Getenv("GRAPHROUTER_URL"); v != "" {
			flagURL = v
		}
	}
	if flagProfile == "" {
		flagProfile = os.Getenv("GRAPHROUTER_PROFILE")
	}

	cfg, err := loadProfiles()
	if err != nil {
		return
	}

	name := flagProfile
	if name == "" {
		name = cfg.ActiveProfile
	}
	if name == "" {
		name = "default"
	}

	p, ok := cfg.Profiles[name]
	if !ok {
		return
	}
	if flagURL == defaultURL && p.URL != "" {
		flagURL = p.URL
	}
	if p.Timeout != "" {
		if d, err := time.ParseDuration(p.Timeout); err == nil && flagTimeout == 60*time.Second {
			flagTimeout = d
		}
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}
