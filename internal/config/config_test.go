package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.DefaultConditioning != "sha256_chain" {
		t.Errorf("expected default conditioning sha256_chain, got %s", cfg.DefaultConditioning)
	}
	if cfg.CollectTimeoutSeconds != 5 {
		t.Errorf("expected collect timeout 5, got %d", cfg.CollectTimeoutSeconds)
	}
	if !strings.Contains(cfg.SessionDir, ".entropid") {
		t.Errorf("session dir should live under .entropid: %s", cfg.SessionDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate cleanly: %v", err)
	}
}

func TestPath(t *testing.T) {
	path := Path()
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
	if !strings.Contains(path, ".entropid") {
		t.Errorf("config path should contain .entropid: %s", path)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultConditioning != "sha256_chain" {
		t.Errorf("expected defaults when file is missing, got %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
default_conditioning = "von_neumann"
collect_timeout_seconds = 10
bootstrap_rounds = 100
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultConditioning != "von_neumann" {
		t.Errorf("expected overridden conditioning, got %s", cfg.DefaultConditioning)
	}
	if cfg.CollectTimeoutSeconds != 10 {
		t.Errorf("expected overridden timeout, got %d", cfg.CollectTimeoutSeconds)
	}
	if cfg.BootstrapRounds != 100 {
		t.Errorf("expected overridden bootstrap rounds, got %d", cfg.BootstrapRounds)
	}
	// Fields not present in the file should retain their defaults.
	if cfg.BootstrapWindows != 8 {
		t.Errorf("expected default bootstrap windows, got %d", cfg.BootstrapWindows)
	}
}

func TestValidateRejectsBadConditioning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultConditioning = "not_a_mode"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid conditioning mode")
	}
}

func TestValidateRejectsBadFDRAlpha(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CouplingFDRAlpha = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for out-of-range FDR alpha")
	}
}

func TestEnsureDirectoriesCreatesAll(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SessionDir = filepath.Join(dir, "sessions")
	cfg.SessionIndexPath = filepath.Join(dir, "db", "sessions.db")
	cfg.LogPath = filepath.Join(dir, "log", "entropid.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.SessionDir, filepath.Dir(cfg.SessionIndexPath), filepath.Dir(cfg.LogPath)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", dir)
		}
	}
}

func TestWatcherLoadsInitialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(`default_conditioning = "raw"`+"\n"), 0o644); err != nil {
		t.Fatalf("write initial config: %v", err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if w.Config().DefaultConditioning != "raw" {
		t.Fatalf("expected initial conditioning raw, got %s", w.Config().DefaultConditioning)
	}
}
