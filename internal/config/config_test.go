package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"postbox/internal/config"
)

func TestDefaultsAreValidWithBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.API.BaseURL = "https://intake.example.gov"
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = filepath.Join(cfg.Paths.DataDir, "logs")

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRequiresBaseURL(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when api.base_url missing")
	}
}

func TestValidateRejectsBadScheme(t *testing.T) {
	cfg := config.Default()
	cfg.API.BaseURL = "ftp://intake.example.gov"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http scheme")
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.SpoolDir(), cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "postbox.toml")

	content := strings.Join([]string{
		"[paths]",
		`data_dir = "` + filepath.Join(tempDir, "data") + `"`,
		`log_dir = "` + filepath.Join(tempDir, "logs") + `"`,
		"[api]",
		`base_url = "https://intake.example.gov/"`,
		"[sync]",
		"sync_interval = 5",
	}, "\n")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be detected")
	}
	if resolved != configPath {
		t.Fatalf("expected resolved path %q, got %q", configPath, resolved)
	}
	if cfg.API.BaseURL != "https://intake.example.gov" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.Sync.SyncInterval != 5 {
		t.Fatalf("expected sync_interval override, got %d", cfg.Sync.SyncInterval)
	}
	if cfg.Sync.ProbeInterval != 10 {
		t.Fatalf("expected default probe_interval, got %d", cfg.Sync.ProbeInterval)
	}
}

func TestLoadMissingCustomPathUsesDefaults(t *testing.T) {
	t.Setenv("POSTBOX_API_URL", "https://intake.example.gov")

	missing := filepath.Join(t.TempDir(), "nope.toml")
	cfg, _, exists, err := config.Load(missing)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config to report exists=false")
	}
	if cfg.API.BaseURL != "https://intake.example.gov" {
		t.Fatalf("expected env fallback for base URL, got %q", cfg.API.BaseURL)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[api]") {
		t.Fatal("expected sample to contain [api] section")
	}
}
