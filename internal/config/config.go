// Package config loads the daemon's runtime configuration from
// <project>/.fuel/config.yaml per §6 of the specification.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the recognized keys enumerated in the Glossary (§9), plus
// the store-backend keys added for the Go implementation.
type Config struct {
	IntervalMS    int    `yaml:"interval_ms"`
	ConcurrencyCap int   `yaml:"concurrency_cap"`
	ReviewEnabled bool   `yaml:"review_enabled"`
	ReviewAgent   string `yaml:"review_agent"`

	EpicMirrorsEnabled bool `yaml:"epic_mirrors_enabled"`

	Health struct {
		FailureThreshold int `yaml:"failure_threshold"`
		CooldownSeconds  int `yaml:"cooldown_seconds"`
	} `yaml:"health"`

	AgentTimeoutSeconds   int `yaml:"agent_timeout_seconds"`
	ShutdownGraceSeconds  int `yaml:"shutdown_grace_seconds"`

	Store struct {
		Driver string `yaml:"driver"` // "sqlite" | "postgres"
		DSN    string `yaml:"dsn"`
	} `yaml:"store"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns a Config populated with the spec's documented defaults.
func Default() Config {
	var c Config
	c.IntervalMS = 5000
	c.ConcurrencyCap = 1
	c.ReviewEnabled = false
	c.ReviewAgent = "claude"
	c.EpicMirrorsEnabled = false
	c.Health.FailureThreshold = 3
	c.Health.CooldownSeconds = 300
	c.AgentTimeoutSeconds = 30 * 60
	c.ShutdownGraceSeconds = 10
	c.Store.Driver = "sqlite"
	c.Log.Level = "info"
	c.Log.Format = "json"
	return c
}

// Interval returns IntervalMS as a time.Duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// AgentTimeout returns AgentTimeoutSeconds as a time.Duration.
func (c Config) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSeconds) * time.Second
}

// ShutdownGrace returns ShutdownGraceSeconds as a time.Duration.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// CooldownBase returns the health tracker's base cooldown duration.
func (c Config) CooldownBase() time.Duration {
	return time.Duration(c.Health.CooldownSeconds) * time.Second
}

// Load reads and parses config.yaml at path, layering it over Default().
// A missing file is not an error — the defaults apply.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}
