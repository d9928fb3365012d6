package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRecentEvents is how many task events the detail view shows.
const DefaultRecentEvents = 5

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Client   ClientConfig   `yaml:"client"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
}

type PipelineConfig struct {
	StepInterval time.Duration `yaml:"step_interval"`
	FailureRate  float64       `yaml:"failure_rate"`
	CrashRate    float64       `yaml:"crash_rate"`
	Seed         int64         `yaml:"seed"`
	Tasks        []TaskDef     `yaml:"tasks"`
}

// TaskDef describes one investigation task run by the simulated pipeline.
type TaskDef struct {
	ID       int      `yaml:"id"`
	Code     string   `yaml:"code"`
	Name     string   `yaml:"name"`
	Severity string   `yaml:"severity"`
	Steps    []string `yaml:"steps"`
}

type ClientConfig struct {
	BaseURL      string `yaml:"base_url"`
	RecentEvents int    `yaml:"recent_events"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8000,
			Host:           "127.0.0.1",
			MaxConnections: 256,
		},
		Pipeline: PipelineConfig{
			StepInterval: 400 * time.Millisecond,
			FailureRate:  0.3,
			Tasks:        DefaultTasks(),
		},
		Client: ClientConfig{
			BaseURL:      "http://127.0.0.1:8000",
			RecentEvents: DefaultRecentEvents,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// DefaultTasks is the tender review checklist investigated when the
// config names none.
func DefaultTasks() []TaskDef {
	return []TaskDef{
		{ID: 1, Code: "H-01", Name: "Separate administrative and technical terms", Severity: "critical", Steps: []string{
			"Identifying administrative and technical sections",
			"Checking for an act approving the terms",
		}},
		{ID: 2, Code: "H-02", Name: "Technical terms describe the good or service", Severity: "high", Steps: []string{
			"Confirming an explicit technical section",
			"Checking quantities, standards and performance",
		}},
		{ID: 3, Code: "H-03", Name: "Administrative terms regulate stages and deadlines", Severity: "critical", Steps: []string{
			"Checking each criterion has a definition and scale",
			"Checking publication, questions, opening and award stages",
			"Checking deadlines carry dates and times",
		}},
		{ID: 4, Code: "H-04-2", Name: "Contract amount extraction", Severity: "medium"},
		{ID: 5, Code: "H-05", Name: "Declared reference budget", Severity: "high", Steps: []string{
			"Comparing amounts in the notice and the terms",
			"Checking taxes and currency",
		}},
		{ID: 6, Code: "H-06", Name: "Cost-benefit oriented award", Severity: "medium", Steps: []string{
			"Checking price does not carry nearly all the weight",
		}},
		{ID: 7, Code: "H-07", Name: "Weighted technical and economic criteria", Severity: "high", Steps: []string{
			"Checking every criterion has a numeric weight",
			"Checking the price scoring formula",
		}},
		{ID: 8, Code: "H-08", Name: "Objective criteria without excess discretion", Severity: "high", Steps: []string{
			"Searching for discretionary wording",
			"Checking tie-break rules",
		}},
		{ID: 9, Code: "H-09", Name: "No arbitrary differences between bidders", Severity: "critical", Steps: []string{
			"Detecting location as an exclusion requirement",
			"Detecting single brands without equivalents",
		}},
		{ID: 10, Code: "H-10", Name: "Handling of abnormally low bids", Severity: "medium", Steps: []string{
			"Checking objective criteria in the terms",
			"Checking whether a justification was requested",
		}},
	}
}

// Load reads path and overlays it on the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	// A task list in the file replaces the catalogue rather than extending it.
	cfg.Pipeline.Tasks = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Pipeline.Tasks) == 0 {
		cfg.Pipeline.Tasks = DefaultTasks()
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate checks ranges that the YAML decoder cannot.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalid, c.Server.Port)
	}
	if c.Client.RecentEvents < 1 {
		return fmt.Errorf("%w: client.recent_events must be at least 1", ErrInvalid)
	}
	if c.Pipeline.FailureRate < 0 || c.Pipeline.FailureRate > 1 {
		return fmt.Errorf("%w: pipeline.failure_rate %v not in [0,1]", ErrInvalid, c.Pipeline.FailureRate)
	}
	if c.Pipeline.CrashRate < 0 || c.Pipeline.CrashRate > 1 {
		return fmt.Errorf("%w: pipeline.crash_rate %v not in [0,1]", ErrInvalid, c.Pipeline.CrashRate)
	}
	if c.Pipeline.StepInterval < 0 {
		return fmt.Errorf("%w: pipeline.step_interval is negative", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Pipeline.Tasks))
	for _, t := range c.Pipeline.Tasks {
		if t.Code == "" {
			return fmt.Errorf("%w: task %d has no code", ErrInvalid, t.ID)
		}
		if seen[t.Code] {
			return fmt.Errorf("%w: duplicate task code %s", ErrInvalid, t.Code)
		}
		seen[t.Code] = true
	}
	return nil
}

// Addr is the listen address of the relay server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GenerateToken returns a random 128-bit hex token.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
