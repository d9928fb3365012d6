package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins:
    - "http://localhost:5173"
pipeline:
  step_interval: 50ms
  failure_rate: 0.5
  tasks:
    - id: 7
      code: "X-07"
      name: "Custom check"
      steps: ["look", "compare"]
client:
  recent_events: 8
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if len(cfg.Server.AllowedOrigins) != 1 {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Pipeline.StepInterval != 50*time.Millisecond {
		t.Errorf("Pipeline.StepInterval = %v, want 50ms", cfg.Pipeline.StepInterval)
	}
	if len(cfg.Pipeline.Tasks) != 1 || cfg.Pipeline.Tasks[0].Code != "X-07" {
		t.Errorf("Pipeline.Tasks = %+v, want only X-07", cfg.Pipeline.Tasks)
	}
	if cfg.Client.RecentEvents != 8 {
		t.Errorf("Client.RecentEvents = %d, want 8", cfg.Client.RecentEvents)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Client.BaseURL == "" {
		t.Error("Client.BaseURL should have default")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want default info", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadKeepsDefaultTasksWhenUnset(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: 8001\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := len(cfg.Pipeline.Tasks), len(DefaultTasks()); got != want {
		t.Errorf("len(Tasks) = %d, want %d", got, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want default 8000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Client.RecentEvents != DefaultRecentEvents {
		t.Errorf("Client.RecentEvents = %d, want %d", cfg.Client.RecentEvents, DefaultRecentEvents)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
	if _, err := LoadOrDefault(cfgPath); err == nil {
		t.Fatal("LoadOrDefault() with invalid YAML should return error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"recent events zero", func(c *Config) { c.Client.RecentEvents = 0 }},
		{"failure rate above one", func(c *Config) { c.Pipeline.FailureRate = 1.5 }},
		{"crash rate negative", func(c *Config) { c.Pipeline.CrashRate = -0.1 }},
		{"negative interval", func(c *Config) { c.Pipeline.StepInterval = -time.Second }},
		{"task without code", func(c *Config) { c.Pipeline.Tasks = []TaskDef{{ID: 1}} }},
		{"duplicate code", func(c *Config) {
			c.Pipeline.Tasks = []TaskDef{{ID: 1, Code: "H-01"}, {ID: 2, Code: "H-01"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.Addr(); got != "127.0.0.1:8000" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestGenerateToken(t *testing.T) {
	tok, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	if len(tok) != 32 { // 16 bytes = 32 hex chars
		t.Errorf("token length = %d, want 32", len(tok))
	}

	tok2, _ := GenerateToken()
	if tok == tok2 {
		t.Error("two generated tokens should not be identical")
	}
}
