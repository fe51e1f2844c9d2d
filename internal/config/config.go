package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by Normalize when the config file leaves a field unset.
const (
	DefaultEnvironment           = "prod"
	DefaultConnectTimeoutSecs    = 5
	DefaultReconnectMaxAttempts  = 5
	DefaultReconnectBaseDelaySec = 1
	DefaultSearchTimeoutSecs     = 120
)

// Config represents the global ~/.tocata/config.toml.
type Config struct {
	Environment     string            `toml:"environment"`
	DefaultIdentity string            `toml:"default_identity"`
	Servers         map[string]string `toml:"servers"`

	ConnectTimeoutSecs    int `toml:"connect_timeout_seconds"`
	ReconnectMaxAttempts  int `toml:"reconnect_max_attempts"`
	ReconnectBaseDelaySec int `toml:"reconnect_base_delay_seconds"`
	SearchTimeoutSecs     int `toml:"search_timeout_seconds"`
}

// Load reads config from the given path and applies defaults.
// Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Default returns a config with all defaults applied and the built-in
// server table.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.Servers == nil {
		c.Servers = map[string]string{
			"dev":     "ws://localhost:4000/socket",
			"staging": "wss://staging.tocata.app/socket",
			"prod":    "wss://realtime.tocata.app/socket",
		}
	}
	if c.ConnectTimeoutSecs <= 0 {
		c.ConnectTimeoutSecs = DefaultConnectTimeoutSecs
	}
	if c.ReconnectMaxAttempts <= 0 {
		c.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}
	if c.ReconnectBaseDelaySec <= 0 {
		c.ReconnectBaseDelaySec = DefaultReconnectBaseDelaySec
	}
	if c.SearchTimeoutSecs <= 0 {
		c.SearchTimeoutSecs = DefaultSearchTimeoutSecs
	}
}

// ServerURL resolves the websocket endpoint for the configured environment.
func (c *Config) ServerURL() (string, error) {
	url, ok := c.Servers[c.Environment]
	if !ok || url == "" {
		return "", fmt.Errorf("no server configured for environment %q", c.Environment)
	}
	return url, nil
}

// ConnectTimeout returns the dial timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSecs) * time.Second
}

// ReconnectBaseDelay returns the backoff floor as a duration.
func (c *Config) ReconnectBaseDelay() time.Duration {
	return time.Duration(c.ReconnectBaseDelaySec) * time.Second
}

// SearchTimeout returns the musician-search bound as a duration.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSecs) * time.Second
}
