// Package config loads the engine's TOML configuration file.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	masumi "github.com/masumi-network/masumi-go"
)

// Config is the operator-provided configuration of one agent process.
type Config struct {
	Settlement Settlement `toml:"settlement"`
	Agent      Agent      `toml:"agent"`
	Vault      Vault      `toml:"vault"`
	Monitor    Monitor    `toml:"monitor"`
}

// Settlement configures the request client.
type Settlement struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxAttempts    int    `toml:"max_attempts"`
	InitialDelayMS int    `toml:"initial_delay_ms"`
}

// Agent names the service-providing identity payments are created for.
type Agent struct {
	Identifier string `toml:"identifier"`
	Network    string `toml:"network"`
}

// Vault locates the credential store.
type Vault struct {
	Dir        string `toml:"dir"`
	Passphrase string `toml:"passphrase"`
}

// Monitor configures the lifecycle poll loop.
type Monitor struct {
	IntervalSeconds int `toml:"interval_seconds"`
}

// Load reads and validates the configuration at path, applying defaults for
// optional fields.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Settlement.TimeoutSeconds == 0 {
		c.Settlement.TimeoutSeconds = 30
	}
	if c.Settlement.MaxAttempts == 0 {
		c.Settlement.MaxAttempts = 3
	}
	if c.Settlement.InitialDelayMS == 0 {
		c.Settlement.InitialDelayMS = 1000
	}
	if c.Monitor.IntervalSeconds == 0 {
		c.Monitor.IntervalSeconds = 30
	}
	if strings.TrimSpace(c.Agent.Network) == "" {
		c.Agent.Network = string(masumi.NetworkPreprod)
	}
}

// Validate rejects configuration missing a required identity or URL.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Settlement.BaseURL) == "" {
		return &masumi.ConfigurationError{Field: "settlement.base_url", Message: "settlement service URL is required"}
	}
	if strings.TrimSpace(c.Settlement.Token) == "" {
		return &masumi.ConfigurationError{Field: "settlement.token", Message: "settlement service token is required"}
	}
	if strings.TrimSpace(c.Agent.Identifier) == "" {
		return &masumi.ConfigurationError{Field: "agent.identifier", Message: "agent identifier is required"}
	}
	return nil
}

// Timeout returns the per-call deadline.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Settlement.TimeoutSeconds) * time.Second
}

// InitialDelay returns the retry backoff base.
func (c *Config) InitialDelay() time.Duration {
	return time.Duration(c.Settlement.InitialDelayMS) * time.Millisecond
}

// MonitorInterval returns the poll interval.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.IntervalSeconds) * time.Second
}

// Network returns the typed network name.
func (c *Config) Network() masumi.Network {
	return masumi.Network(c.Agent.Network)
}
