package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("expected default addr :8000, got %q", cfg.Server.Addr)
	}
	if cfg.Routing.MonolithURL != "http://monolith:8080" {
		t.Fatalf("unexpected monolith url %q", cfg.Routing.MonolithURL)
	}
	if cfg.Routing.GradualMigration {
		t.Fatal("gradual migration should default to off")
	}
	if len(cfg.Routing.Services) != 2 {
		t.Fatalf("expected 2 default services, got %d", len(cfg.Routing.Services))
	}
	movies := cfg.Routing.Services[0]
	if movies.Name != "movies" || movies.MigrationPercent == nil || *movies.MigrationPercent != 0 {
		t.Fatalf("unexpected movies defaults: %+v", movies)
	}
	if movies.HealthPath != "/api/movies/health" {
		t.Fatalf("unexpected movies health path %q", movies.HealthPath)
	}
	events := cfg.Routing.Services[1]
	if events.Name != "events" || events.MigrationPercent != nil {
		t.Fatalf("expected events fully migrated, got %+v", events)
	}
	if cfg.Upstream.RelayTimeoutSeconds != 30 {
		t.Fatalf("expected 30s relay timeout, got %d", cfg.Upstream.RelayTimeoutSeconds)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MONOLITH_URL", "http://legacy.internal:8080")
	t.Setenv("GRADUAL_MIGRATION", "true")
	t.Setenv("MOVIES_SERVICE_URL", "http://movies.internal:8081")
	t.Setenv("MOVIES_MIGRATION_PERCENT", "40")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("expected :9000, got %q", cfg.Server.Addr)
	}
	if cfg.Routing.MonolithURL != "http://legacy.internal:8080" {
		t.Fatalf("unexpected monolith url %q", cfg.Routing.MonolithURL)
	}
	if !cfg.Routing.GradualMigration {
		t.Fatal("expected gradual migration enabled")
	}
	movies := cfg.Routing.Services[0]
	if movies.Upstream != "http://movies.internal:8081" {
		t.Fatalf("unexpected movies upstream %q", movies.Upstream)
	}
	if movies.MigrationPercent == nil || *movies.MigrationPercent != 40 {
		t.Fatalf("expected movies percent 40, got %+v", movies.MigrationPercent)
	}
}

func TestLoadYAMLFileWithEnvWinning(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.yaml")
	data := `
server:
  addr: ":8100"
routing:
  monolith_url: "http://mono.file:8080"
  gradual_migration: true
  services:
    - name: movies
      path_prefix: /api/movies
      upstream: http://movies.file:8081
      health_path: /api/movies/health
      migration_percent: 25
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "8200")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8200" {
		t.Fatalf("env should win over file, got %q", cfg.Server.Addr)
	}
	if cfg.Routing.MonolithURL != "http://mono.file:8080" {
		t.Fatalf("unexpected monolith url %q", cfg.Routing.MonolithURL)
	}
	movies := cfg.Routing.Services[0]
	if movies.MigrationPercent == nil || *movies.MigrationPercent != 25 {
		t.Fatalf("expected file percent 25, got %+v", movies.MigrationPercent)
	}
}

func TestValidatePercentRange(t *testing.T) {
	for _, p := range []int{-1, 101} {
		var cfg Config
		applyDefaults(&cfg)
		cfg.Routing.Services[0].MigrationPercent = &p
		if err := Validate(&cfg); err == nil {
			t.Fatalf("expected validation error for percent %d", p)
		}
	}
}

func TestValidateDuplicateServiceName(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Routing.Services = append(cfg.Routing.Services, ServiceConfig{
		Name:       "movies",
		PathPrefix: "/api/movies2",
		Upstream:   "http://movies2:8083",
	})
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestValidateRateLimitRequiresPositiveRPS(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Routing.Services[0].RateLimit = ServiceRLConf{Enabled: true, RPS: 0, Burst: 5}
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected rate limit validation error")
	}
}
