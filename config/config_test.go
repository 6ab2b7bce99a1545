package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Workflow.MaxIterations != 5 {
		t.Errorf("max_iterations = %d, want 5", cfg.Workflow.MaxIterations)
	}
	if cfg.Workflow.MaxFallbackAttempts != 2 {
		t.Errorf("max_fallback_attempts = %d, want 2", cfg.Workflow.MaxFallbackAttempts)
	}
	if cfg.Memory.MergeAlpha != 0.3 {
		t.Errorf("merge_alpha = %v, want 0.3", cfg.Memory.MergeAlpha)
	}
	if cfg.Verify.LivenessTimeout != 5*time.Second {
		t.Errorf("liveness_timeout = %v, want 5s", cfg.Verify.LivenessTimeout)
	}
	if cfg.Server.Address != ":8000" {
		t.Errorf("server address = %q, want :8000", cfg.Server.Address)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  address: ":9001"
workflow:
  max_iterations: 3
search:
  brave_api_key: "test-key"
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Address != ":9001" {
		t.Errorf("server address = %q, want :9001", cfg.Server.Address)
	}
	if cfg.Workflow.MaxIterations != 3 {
		t.Errorf("max_iterations = %d, want 3", cfg.Workflow.MaxIterations)
	}
	if cfg.Search.BraveAPIKey != "test-key" {
		t.Errorf("brave key not read from file")
	}
	// Untouched sections keep their defaults.
	if cfg.Workflow.MaxFallbackAttempts != 2 {
		t.Errorf("max_fallback_attempts lost its default: %d", cfg.Workflow.MaxFallbackAttempts)
	}
}

func TestValidateRejectsBadBounds(t *testing.T) {
	base := func() *Config {
		return &Config{
			Workflow: WorkflowConfig{MaxIterations: 5, MaxFallbackAttempts: 2},
			Memory:   MemoryConfig{MergeAlpha: 0.3},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	c := base()
	c.Workflow.MaxIterations = 0
	if err := c.Validate(); err == nil {
		t.Errorf("zero max_iterations should fail validation")
	}

	c = base()
	c.Memory.MergeAlpha = 1.5
	if err := c.Validate(); err == nil {
		t.Errorf("merge_alpha outside (0,1) should fail validation")
	}
}

func TestPostgresDSN(t *testing.T) {
	c := PostgresConfig{User: "hw", Password: "pw", DBName: "handywriterz"}
	want := "postgres://hw:pw@localhost:5432/handywriterz?sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}

	c.URL = "postgres://other"
	if got := c.DSN(); got != "postgres://other" {
		t.Errorf("explicit URL should win, got %q", got)
	}
}

func TestRedisAddr(t *testing.T) {
	if got := (RedisConfig{}).Addr(); got != "localhost:6379" {
		t.Errorf("Addr() = %q, want localhost:6379", got)
	}
	if got := (RedisConfig{Host: "cache", Port: "7000"}).Addr(); got != "cache:7000" {
		t.Errorf("Addr() = %q, want cache:7000", got)
	}
}
