package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv("PACING_DELAY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.PacingDelay != 13*time.Second {
		t.Fatalf("pacing delay = %s, want 13s", cfg.Pipeline.PacingDelay)
	}
	if cfg.Scorer.MaxRetries != 0 {
		t.Fatalf("max retries = %d, want 0", cfg.Scorer.MaxRetries)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("cache backend = %q", cfg.Cache.Backend)
	}
	if cfg.Sources.Tabular.Columns["City"] != "region" {
		t.Fatalf("default columns missing City mapping: %v", cfg.Sources.Tabular.Columns)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  driver: sqlite
  dsn: /tmp/reviews.sqlite
pipeline:
  pacingDelay: 2s
scorer:
  model: file-model
  maxRetries: 2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("PACING_DELAY", "5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DataSourceName() != "/tmp/reviews.sqlite" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Scorer.Model != "env-model" {
		t.Fatalf("scorer model = %q, want env override", cfg.Scorer.Model)
	}
	if cfg.Scorer.MaxRetries != 2 {
		t.Fatalf("max retries = %d, want 2", cfg.Scorer.MaxRetries)
	}
	if cfg.Pipeline.PacingDelay != 5*time.Second {
		t.Fatalf("pacing delay = %s, want 5s", cfg.Pipeline.PacingDelay)
	}
	if cfg.Scorer.Endpoint == "" {
		t.Fatalf("defaults lost after file merge")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("Load() expected error for missing explicit file")
	}
}

func TestDataSourceNameFromParts(t *testing.T) {
	t.Parallel()

	d := DatabaseConfig{Driver: "postgres", Host: "db", Port: "5432", Name: "reviews", User: "u", Password: "p@ss"}
	dsn := d.DataSourceName()
	if !strings.HasPrefix(dsn, "postgres://u:p%40ss@db:5432/reviews") {
		t.Fatalf("DataSourceName() = %q", dsn)
	}
	if !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("DataSourceName() missing sslmode: %q", dsn)
	}
}
