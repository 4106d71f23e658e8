package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tokens.RotationThreshold.Duration != 24*time.Hour {
		t.Errorf("RotationThreshold = %v, want 24h default", cfg.Tokens.RotationThreshold.Duration)
	}
	if cfg.Tokens.RefreshInterval.Duration != time.Hour {
		t.Errorf("RefreshInterval = %v, want 1h default", cfg.Tokens.RefreshInterval.Duration)
	}
	if cfg.Tokens.RefreshBuffer.Duration != 5*time.Minute {
		t.Errorf("RefreshBuffer = %v, want 5m default", cfg.Tokens.RefreshBuffer.Duration)
	}
	if cfg.Testing.Enabled {
		t.Error("testing mode enabled by default")
	}
}

func TestLoadFromBytes_DurationStrings(t *testing.T) {
	data := []byte(`
tokens:
  rotation_threshold: "1m"
  refresh_interval: "5m"
  refresh_buffer: "30s"
testing:
  enabled: true
  access_lifetime: "6m"
  refresh_lifetime: "18m"
`)
	cfg, err := LoadFromBytes(data)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tokens.RotationThreshold.Duration != time.Minute {
		t.Errorf("RotationThreshold = %v, want 1m", cfg.Tokens.RotationThreshold.Duration)
	}
	if !cfg.Testing.Enabled {
		t.Error("testing mode not enabled")
	}
	if cfg.Testing.AccessLifetime.Duration != 6*time.Minute {
		t.Errorf("AccessLifetime = %v, want 6m", cfg.Testing.AccessLifetime.Duration)
	}
	if cfg.Testing.RefreshLifetime.Duration != 18*time.Minute {
		t.Errorf("RefreshLifetime = %v, want 18m", cfg.Testing.RefreshLifetime.Duration)
	}
}

func TestLoadFromBytes_InvalidDuration(t *testing.T) {
	data := []byte("tokens:\n  refresh_interval: \"banana\"\n")
	if _, err := LoadFromBytes(data); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	if err := os.WriteFile(path, []byte("server:\n  url: \"https://file.example.com\"\n"), 0640); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JR_SERVER_URL", "https://env.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.URL != "https://env.example.com" {
		t.Errorf("URL = %q, want env override", cfg.Server.URL)
	}
}

func TestValidate_RequiresHTTPS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.URL = "http://remote.example.com"
	if err := cfg.Validate(); err == nil {
		t.Error("expected HTTPS validation error")
	}

	cfg.Server.URL = "http://localhost:5000"
	if err := cfg.Validate(); err != nil {
		t.Errorf("localhost should be allowed: %v", err)
	}
}

func TestValidate_TestingLifetimes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Testing.Enabled = true
	cfg.Testing.AccessLifetime = Duration{0}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero test lifetime")
	}
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "agent.yaml")

	cfg := DefaultConfig()
	cfg.Tokens.RefreshInterval = Duration{5 * time.Minute}

	if err := WriteConfig(cfg, path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Tokens.RefreshInterval.Duration != 5*time.Minute {
		t.Errorf("RefreshInterval = %v, want 5m", loaded.Tokens.RefreshInterval.Duration)
	}
}
