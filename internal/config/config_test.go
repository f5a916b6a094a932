package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsRunnable(t *testing.T) {
	cfg := Default()
	if cfg.Server.Addr == "" {
		t.Fatal("expected a default listen address")
	}
	if cfg.Server.Admission.MaxConcurrentRequests <= 0 {
		t.Fatal("expected a positive default concurrency limit")
	}
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
}

func TestLoadYAMLOverridesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "server:\n  addr: \":9999\"\n  admission:\n    maxConcurrentRequests: 4\npluginsPath: custom-plugins\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("expected overridden addr, got %q", cfg.Server.Addr)
	}
	if cfg.Server.Admission.MaxConcurrentRequests != 4 {
		t.Fatalf("expected overridden concurrency, got %d", cfg.Server.Admission.MaxConcurrentRequests)
	}
	if cfg.PluginsPath != "custom-plugins" {
		t.Fatalf("expected overridden plugins path, got %q", cfg.PluginsPath)
	}
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	t.Setenv("LLM_ADAPTER_ADDR", ":7777")
	t.Setenv("LLM_ADAPTER_API_KEYS", "key-a,key-b")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  addr: \":9999\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":7777" {
		t.Fatalf("expected env-overridden addr, got %q", cfg.Server.Addr)
	}
	if !cfg.Server.Auth.Enabled || !cfg.Server.Auth.AllowAPIKeyHeader {
		t.Fatal("expected setting LLM_ADAPTER_API_KEYS to enable auth")
	}
	if len(cfg.Server.Auth.APIKeys) != 2 {
		t.Fatalf("expected two parsed API keys, got %v", cfg.Server.Auth.APIKeys)
	}
}

func TestDurationHelpers(t *testing.T) {
	tc := TimeoutConfig{RequestTimeoutMs: 1500, StreamIdleTimeoutMs: 2000, BodyReadTimeoutMs: 500}
	if tc.RequestTimeout().Milliseconds() != 1500 {
		t.Fatal("unexpected RequestTimeout conversion")
	}
	if tc.StreamIdleTimeout().Milliseconds() != 2000 {
		t.Fatal("unexpected StreamIdleTimeout conversion")
	}
	if tc.BodyReadTimeout().Milliseconds() != 500 {
		t.Fatal("unexpected BodyReadTimeout conversion")
	}
}
