package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DreyConfig represents the top-level drey.yml configuration
type DreyConfig struct {
	Version   string           `yaml:"version"`
	Instance  string           `yaml:"instance,omitempty"`  // Instance name, default "default"
	Redis     *RedisConfig     `yaml:"redis,omitempty"`     // Redis connection settings
	Discovery *DiscoveryConfig `yaml:"discovery,omitempty"` // Agent discovery settings
	Worker    *WorkerConfig    `yaml:"worker,omitempty"`    // Worker daemon settings
}

// RedisConfig specifies how to reach the shared Redis backend
type RedisConfig struct {
	URL string `yaml:"url"`
}

// DiscoveryConfig specifies agent staleness windows
type DiscoveryConfig struct {
	MaxAgeSeconds       *int `yaml:"max_age_seconds,omitempty"`       // Silence window before an agent is considered stale (default 120)
	StaleRetentionHours *int `yaml:"stale_retention_hours,omitempty"` // How long stale records are kept before hard deletion (default 168)
}

// WorkerConfig specifies worker daemon cadence
type WorkerConfig struct {
	HeartbeatSeconds *int `yaml:"heartbeat_seconds,omitempty"` // Heartbeat interval (default 30)
	PollSeconds      *int `yaml:"poll_seconds,omitempty"`      // Pending-task poll interval (default 5)
}

// Defaults applied by Validate when the corresponding field is omitted.
const (
	DefaultInstance            = "default"
	DefaultRedisURL            = "redis://localhost:6379"
	DefaultMaxAgeSeconds       = 120
	DefaultStaleRetentionHours = 168
	DefaultHeartbeatSeconds    = 30
	DefaultPollSeconds         = 5
)

// Load reads and validates a drey.yml file.
// Returns an error if the file cannot be read, parsed, or validated.
func Load(path string) (*DreyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg DreyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every field at its default value,
// for callers running without a drey.yml.
func Default() *DreyConfig {
	cfg := &DreyConfig{Version: "1"}
	// Validate never fails on an empty config; it just fills defaults
	_ = cfg.Validate()
	return cfg
}

// Validate checks field values and fills in defaults for omitted sections.
// Returns the first validation error encountered.
func (c *DreyConfig) Validate() error {
	if c.Version != "" && c.Version != "1" {
		return fmt.Errorf("unsupported version: %s (expected: 1)", c.Version)
	}

	if c.Instance == "" {
		c.Instance = DefaultInstance
	}

	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	if c.Redis.URL == "" {
		c.Redis.URL = DefaultRedisURL
	}

	if c.Discovery == nil {
		c.Discovery = &DiscoveryConfig{}
	}
	if c.Discovery.MaxAgeSeconds == nil {
		defaultMaxAge := DefaultMaxAgeSeconds
		c.Discovery.MaxAgeSeconds = &defaultMaxAge
	}
	if *c.Discovery.MaxAgeSeconds <= 0 {
		return fmt.Errorf("discovery.max_age_seconds must be > 0, got %d", *c.Discovery.MaxAgeSeconds)
	}
	if c.Discovery.StaleRetentionHours == nil {
		defaultRetention := DefaultStaleRetentionHours
		c.Discovery.StaleRetentionHours = &defaultRetention
	}
	if *c.Discovery.StaleRetentionHours < 0 {
		return fmt.Errorf("discovery.stale_retention_hours must be >= 0 (0 = keep forever), got %d", *c.Discovery.StaleRetentionHours)
	}

	if c.Worker == nil {
		c.Worker = &WorkerConfig{}
	}
	if c.Worker.HeartbeatSeconds == nil {
		defaultHeartbeat := DefaultHeartbeatSeconds
		c.Worker.HeartbeatSeconds = &defaultHeartbeat
	}
	if *c.Worker.HeartbeatSeconds <= 0 {
		return fmt.Errorf("worker.heartbeat_seconds must be > 0, got %d", *c.Worker.HeartbeatSeconds)
	}
	if c.Worker.PollSeconds == nil {
		defaultPoll := DefaultPollSeconds
		c.Worker.PollSeconds = &defaultPoll
	}
	if *c.Worker.PollSeconds <= 0 {
		return fmt.Errorf("worker.poll_seconds must be > 0, got %d", *c.Worker.PollSeconds)
	}

	return nil
}

// MaxAge returns the discovery staleness window as a duration.
func (c *DreyConfig) MaxAge() time.Duration {
	return time.Duration(*c.Discovery.MaxAgeSeconds) * time.Second
}

// StaleRetention returns the stale-record retention window as a duration.
// Zero means records are kept forever.
func (c *DreyConfig) StaleRetention() time.Duration {
	return time.Duration(*c.Discovery.StaleRetentionHours) * time.Hour
}

// HeartbeatInterval returns the worker heartbeat cadence as a duration.
func (c *DreyConfig) HeartbeatInterval() time.Duration {
	return time.Duration(*c.Worker.HeartbeatSeconds) * time.Second
}

// PollInterval returns the worker poll cadence as a duration.
func (c *DreyConfig) PollInterval() time.Duration {
	return time.Duration(*c.Worker.PollSeconds) * time.Second
}
