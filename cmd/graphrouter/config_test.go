package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// resetFlags restores global flag state after each test.
func resetFlags(t *testing.T) {
	t.Helper()
	orig := struct {
		url, fmt, profile string
		timeout           time.Duration
	}{flagURL, flagFmt, flagProfile, flagTimeout}
	t.Cleanup(func() {
		flagURL = orig.url
		flagFmt = orig.fmt
		flagProfile = orig.profile
		flagTimeout = orig.timeout
	})
	flagURL = defaultURL
	flagProfile = ""
	flagTimeout = 60 * time.Second
}

// isolate points HOME at a temp dir and clears the CLI environment.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("GRAPHROUTER_URL", "")
	t.Setenv("GRAPHROUTER_PROFILE", "")
	return home
}

func writeConfigFile(t *testing.T, home, body string) {
	t.Helper()
	dir := filepath.Join(home, ".graphrouter")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestResolveConfigEnvURL(t *testing.T) {
	resetFlags(t)
	isolate(t)
	t.Setenv("GRAPHROUTER_URL", "http://env-server:9090")

	resolveConfig()

	if flagURL != "http://env-server:9090" {
		t.Errorf("flagURL: got %q, want %q", flagURL, "http://env-server:9090")
	}
}

func TestResolveConfigFlagTakesPrecedenceOverEnv(t *testing.T) {
	resetFlags(t)
	isolate(t)
	t.Setenv("GRAPHROUTER_URL", "http://env-server:9090")
	flagURL = "http://flag-server:1234"

	resolveConfig()

	if flagURL != "http://flag-server:1234" {
		t.Errorf("flagURL: got %q", flagURL)
	}
}

func TestResolveConfigActiveProfile(t *testing.T) {
	resetFlags(t)
	home := isolate(t)
	writeConfigFile(t, home, `
active_profile: staging
profiles:
  default:
    url: http://default:3030
  staging:
    url: http://staging:3030
    timeout: 5s
`)

	resolveConfig()

	if flagURL != "http://staging:3030" {
		t.Errorf("flagURL: got %q, want staging", flagURL)
	}
	if flagTimeout != 5*time.Second {
		t.Errorf("flagTimeout: got %v, want 5s", flagTimeout)
	}
}

func TestResolveConfigProfileFlagOverridesActive(t *testing.T) {
	resetFlags(t)
	home := isolate(t)
	writeConfigFile(t, home, `
active_profile: staging
profiles:
  staging:
    url: http://staging:3030
  prod:
    url: http://prod:3030
`)
	flagProfile = "prod"

	resolveConfig()

	if flagURL != "http://prod:3030" {
		t.Errorf("flagURL: got %q, want prod", flagURL)
	}
}

func TestResolveConfigDefaultProfile(t *testing.T) {
	resetFlags(t)
	home := isolate(t)
	writeConfigFile(t, home, "profiles:\n  default:\n    url: http://fallback:3030\n")

	resolveConfig()

	if flagURL != "http://fallback:3030" {
		t.Errorf("flagURL: got %q", flagURL)
	}
}

func TestResolveConfigEnvNotOverriddenByFile(t *testing.T) {
	resetFlags(t)
	home := isolate(t)
	t.Setenv("GRAPHROUTER_URL", "http://env:1")
	writeConfigFile(t, home, "profiles:\n  default:\n    url: http://file:2\n")

	resolveConfig()

	if flagURL != "http://env:1" {
		t.Errorf("flagURL: got %q, want env value", flagURL)
	}
}

func TestResolveConfigInvalidYAML(t *testing.T) {
	resetFlags(t)
	home := isolate(t)
	writeConfigFile(t, home, "profiles: [not: a map")

	resolveConfig()

	if flagURL != defaultURL {
		t.Errorf("flagURL: got %q, want default", flagURL)
	}
}

func TestWriteProfileKeepsOthers(t *testing.T) {
	resetFlags(t)
	home := isolate(t)
	writeConfigFile(t, home, "profiles:\n  prod:\n    url: http://prod:3030\n")

	path, err := writeProfile("local", "http://localhost:4000")
	if err != nil {
		t.Fatalf("writeProfile: %v", err)
	}
	if path != filepath.Join(home, ".graphrouter", "config.yaml") {
		t.Errorf("path: got %q", path)
	}

	cfg, err := loadProfiles()
	if err != nil {
		t.Fatalf("loadProfiles: %v", err)
	}
	if cfg.ActiveProfile != "local" {
		t.Errorf("active profile: got %q", cfg.ActiveProfile)
	}
	if cfg.Profiles["prod"].URL != "http://prod:3030" || cfg.Profiles["local"].URL != "http://localhost:4000" {
		t.Errorf("profiles: got %+v", cfg.Profiles)
	}
}
