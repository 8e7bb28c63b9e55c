package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, ".cgrconfig"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg := Load(t.TempDir())

	if cfg.EffectiveResolution() != "fuzzy" {
		t.Errorf("resolution = %q, want fuzzy", cfg.EffectiveResolution())
	}
	if cfg.EffectiveGlobalFallback() {
		t.Error("global fallback should default to off")
	}
	if cfg.EffectiveWorkers() < 1 {
		t.Errorf("workers = %d", cfg.EffectiveWorkers())
	}
	if len(cfg.Graph.SkipDirs) != 0 || len(cfg.Graph.SourceExtensions) != 0 {
		t.Errorf("unexpected defaults: %+v", cfg.Graph)
	}
}

func TestLoadFullConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `graph:
  skip_dirs:
    - fixtures
    - "gen*"
  source_extensions: [".py"]
  resolution: precise
  global_fallback: true
  workers: 2
`)

	cfg := Load(dir)

	if len(cfg.Graph.SkipDirs) != 2 || cfg.Graph.SkipDirs[0] != "fixtures" {
		t.Errorf("skip_dirs = %v", cfg.Graph.SkipDirs)
	}
	if len(cfg.Graph.SourceExtensions) != 1 || cfg.Graph.SourceExtensions[0] != ".py" {
		t.Errorf("source_extensions = %v", cfg.Graph.SourceExtensions)
	}
	if cfg.EffectiveResolution() != "precise" {
		t.Errorf("resolution = %q", cfg.EffectiveResolution())
	}
	if !cfg.EffectiveGlobalFallback() {
		t.Error("global_fallback should be on")
	}
	if cfg.EffectiveWorkers() != 2 {
		t.Errorf("workers = %d", cfg.EffectiveWorkers())
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "graph: [unclosed\n  broken: {")

	cfg := Load(dir)
	if cfg.EffectiveResolution() != "fuzzy" || cfg.EffectiveGlobalFallback() {
		t.Errorf("invalid file should load defaults, got %+v", cfg.Graph)
	}
}

func TestResolutionNormalization(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "graph:\n  resolution: exact\n")

	if got := Load(dir).EffectiveResolution(); got != "fuzzy" {
		t.Errorf("unknown mode resolved to %q, want fuzzy", got)
	}
}

func TestWorkersNotPositive(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "graph:\n  workers: 0\n")

	if got := Load(dir).EffectiveWorkers(); got < 1 {
		t.Errorf("workers = %d", got)
	}
}
