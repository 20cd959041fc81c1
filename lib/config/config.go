// Copyright 2026 The FastLine Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath is the environment variable naming the configuration
// file. Used when no --config flag is given.
const EnvConfigPath = "FASTLINE_DISPLAY_CONFIG"

// Config is the display agent configuration.
type Config struct {
	// Server configures the FastLine API the agent talks to.
	Server ServerConfig `yaml:"server"`

	// Panel configures what the device shows and how often it
	// re-fetches server truth.
	Panel PanelConfig `yaml:"panel"`

	// StateDir is the directory for durable local state: the
	// credential database and the cached last-known-good snapshot.
	// Environment variables in the path (e.g. ${HOME}) are expanded.
	StateDir string `yaml:"state_dir"`

	// Listen is the local address the renderer-facing HTTP surface
	// binds to. Loopback by default: the surface is for the on-device
	// renderer, not the network.
	Listen string `yaml:"listen"`
}

// ServerConfig configures the connection to the FastLine server.
type ServerConfig struct {
	// BaseURL is the API origin, e.g. "https://api.fastline.app".
	BaseURL string `yaml:"base_url"`

	// RequestTimeoutSeconds bounds every non-streaming request
	// (snapshot, pairing, token refresh). Default: 30.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	// StreamBackoffInitialSeconds is the first reconnect delay after
	// the event stream drops. Default: 1.
	StreamBackoffInitialSeconds int `yaml:"stream_backoff_initial_seconds"`

	// StreamBackoffMaxSeconds caps the exponential reconnect delay.
	// Default: 30.
	StreamBackoffMaxSeconds int `yaml:"stream_backoff_max_seconds"`
}

// PanelConfig configures the queue view.
type PanelConfig struct {
	// WaitingLimit is how many waiting tickets the snapshot carries
	// per queue. Default: 15.
	WaitingLimit int `yaml:"waiting_limit"`

	// RecentLimit is how many recently-called tickets the snapshot
	// carries per queue. Default: 10.
	RecentLimit int `yaml:"recent_limit"`

	// ResyncIntervalSeconds is the period of the safety-net full
	// refetch that runs even when the event stream is healthy.
	// Default: 300.
	ResyncIntervalSeconds int `yaml:"resync_interval_seconds"`
}

// Default returns a Config with development defaults: a local server
// and a state directory under the user's home.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:                     "http://localhost:8080",
			RequestTimeoutSeconds:       30,
			StreamBackoffInitialSeconds: 1,
			StreamBackoffMaxSeconds:     30,
		},
		Panel: PanelConfig{
			WaitingLimit:          15,
			RecentLimit:           10,
			ResyncIntervalSeconds: 300,
		},
		StateDir: "${HOME}/.local/state/fastline-display",
		Listen:   "127.0.0.1:8090",
	}
}

// Load reads the configuration from the file named by the
// FASTLINE_DISPLAY_CONFIG environment variable. Returns defaults when
// the variable is unset. There is no search path and no discovery.
func Load() (Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		cfg := Default()
		cfg.expand()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads the configuration from the given path. Fields absent
// from the file keep their defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expand()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// expand substitutes environment variables in path fields. Only the
// state directory carries paths; server URLs are taken literally.
func (c *Config) expand() {
	c.StateDir = os.ExpandEnv(c.StateDir)
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be positive, got %d", c.Server.RequestTimeoutSeconds)
	}
	if c.Server.StreamBackoffInitialSeconds <= 0 {
		return fmt.Errorf("server.stream_backoff_initial_seconds must be positive, got %d", c.Server.StreamBackoffInitialSeconds)
	}
	if c.Server.StreamBackoffMaxSeconds < c.Server.StreamBackoffInitialSeconds {
		return fmt.Errorf("server.stream_backoff_max_seconds (%d) must be >= the initial backoff (%d)",
			c.Server.StreamBackoffMaxSeconds, c.Server.StreamBackoffInitialSeconds)
	}
	if c.Panel.WaitingLimit <= 0 || c.Panel.RecentLimit <= 0 {
		return fmt.Errorf("panel limits must be positive (waiting_limit=%d, recent_limit=%d)",
			c.Panel.WaitingLimit, c.Panel.RecentLimit)
	}
	if c.Panel.ResyncIntervalSeconds <= 0 {
		return fmt.Errorf("panel.resync_interval_seconds must be positive, got %d", c.Panel.ResyncIntervalSeconds)
	}
	return nil
}

// RequestTimeout returns the request ceiling as a duration.
func (c *ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// StreamBackoffInitial returns the first reconnect delay.
func (c *ServerConfig) StreamBackoffInitial() time.Duration {
	return time.Duration(c.StreamBackoffInitialSeconds) * time.Second
}

// StreamBackoffMax returns the reconnect delay cap.
func (c *ServerConfig) StreamBackoffMax() time.Duration {
	return time.Duration(c.StreamBackoffMaxSeconds) * time.Second
}

// ResyncInterval returns the periodic resync period.
func (c *PanelConfig) ResyncInterval() time.Duration {
	return time.Duration(c.ResyncIntervalSeconds) * time.Second
}
