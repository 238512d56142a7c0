package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sceneforge/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Fatal("expected missing config to report exists=false")
	}
	if cfg.Renderer.Binary != "manim" {
		t.Fatalf("unexpected renderer binary: %q", cfg.Renderer.Binary)
	}
	if cfg.Workflow.MaxAttempts != 3 {
		t.Fatalf("unexpected max attempts: %d", cfg.Workflow.MaxAttempts)
	}
}

func TestLoadParsesAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := strings.Join([]string{
		"[paths]",
		`data_dir = "` + filepath.Join(dir, "data") + `"`,
		"[renderer]",
		`quality = "HIGH"`,
		"[workflow]",
		"max_attempts = 5",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%q", exists, resolved)
	}
	if cfg.Renderer.Quality != "high" {
		t.Fatalf("expected quality normalized, got %q", cfg.Renderer.Quality)
	}
	if cfg.Workflow.MaxAttempts != 5 {
		t.Fatalf("unexpected max attempts: %d", cfg.Workflow.MaxAttempts)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("expected absolute data dir, got %q", cfg.Paths.DataDir)
	}
}

func TestValidateRejectsBadQuality(t *testing.T) {
	cfg := config.Default()
	cfg.Renderer.Quality = "ultra"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported quality")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[renderer]") {
		t.Fatal("sample config missing renderer section")
	}
}
