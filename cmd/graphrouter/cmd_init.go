package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/graphrouter/client"
)

func newInitCmd() *cobra.Command {
	var (
		initURL     string
		profileName string
		skipCheck   bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Save a server profile",
		Long:  "Create or update a profile in ~/.graphrouter/config.yaml and make it active",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(initURL, profileName, initURL != "", skipCheck)
		},
	}

	cmd.Flags().StringVar(&initURL, "server", "", "Server URL (non-interactive mode)")
	cmd.Flags().StringVar(&profileName, "name", "default", "Profile name")
	cmd.Flags().BoolVar(&skipCheck, "no-check", false, "Save without contacting the server")
	return cmd
}

func runInit(url, profile string, nonInteractive, skipCheck bool) error {
	if !nonInteractive {
		fmt.Println("\n  graphrouter setup")
		fmt.Println("  ─────────────────")
		fmt.Println()

		reader := bufio.NewReader(os.Stdin)

		fmt.Printf("  Server URL [%s]: ", defaultURL)
		line, _ := reader.ReadString('\n')
		url = strings.TrimSpace(line)
	}

	if url == "" {
		url = defaultURL
	}

	if !skipCheck {
		ver, backend, err := testConnection(url)
		if err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}
		fmt.Printf("Connected to %s (v%s, backend %s)\n", url, ver, backend)
	}

	cfgPath, err := writeProfile(profile, url)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Printf("Profile %q saved to %s\n", profile, cfgPath)
	return nil
}

func testConnection(url string) (version, backend string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := client.New(url).Health(ctx)
	if err != nil {
		return "", "", err
	}
	if h.Version == "" {
		h.Version = "unknown"
	}
	return h.Version, h.Backend, nil
}

// writeProfile stores url under profile, keeping other profiles intact.
func writeProfile(profile, url string) (string, error) {
	cfgPath, err := configPath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return "", err
	}

	cfg, err := loadProfiles()
	if err != nil || cfg == nil {
		cfg = &profilesFile{}
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profileConfig{}
	}

	p := cfg.Profiles[profile]
	p.URL = url
	cfg.Profiles[profile] = p
	cfg.ActiveProfile = profile

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return "", err
	}

	return cfgPath, nil
}
