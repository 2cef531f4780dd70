package worker

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the worker daemon's runtime configuration loaded from
// environment variables. Required fields are validated at startup to ensure
// fail-fast behavior.
type Config struct {
	// InstanceName is the drey instance identifier (from DREY_INSTANCE_NAME)
	InstanceName string

	// AgentName is the unique name of this worker (from DREY_AGENT_NAME).
	// May use the "role:instance" convention; the role is derived from it
	// when DREY_AGENT_ROLE is unset.
	AgentName string

	// AgentRole is the role of this worker (from DREY_AGENT_ROLE, optional)
	AgentRole string

	// AgentURL is the endpoint this worker advertises (from DREY_AGENT_URL, optional)
	AgentURL string

	// RedisURL is the Redis connection string (from REDIS_URL)
	RedisURL string

	// Command is the command array to execute per claimed task (from DREY_WORKER_COMMAND)
	// Expected format: JSON array like ["/app/run.sh"] or ["/usr/bin/python3", "work.py"]
	Command []string

	// ModelsSupported advertises supported model identifiers (from DREY_MODELS_SUPPORTED, optional JSON array)
	ModelsSupported []string

	// HeartbeatInterval is the cadence of roster heartbeats (from DREY_HEARTBEAT_SECONDS, default 30)
	HeartbeatInterval time.Duration

	// PollInterval is the cadence of pending-task polls (from DREY_POLL_SECONDS, default 5)
	PollInterval time.Duration
}

// LoadConfig reads and validates configuration from environment variables.
// Returns an error if any required variable is missing or invalid.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		InstanceName: os.Getenv("DREY_INSTANCE_NAME"),
		AgentName:    os.Getenv("DREY_AGENT_NAME"),
		AgentRole:    os.Getenv("DREY_AGENT_ROLE"),
		AgentURL:     os.Getenv("DREY_AGENT_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
	}

	if commandJSON := os.Getenv("DREY_WORKER_COMMAND"); commandJSON != "" {
		if err := json.Unmarshal([]byte(commandJSON), &cfg.Command); err != nil {
			return nil, fmt.Errorf("failed to parse DREY_WORKER_COMMAND as JSON array: %w", err)
		}
	}

	if modelsJSON := os.Getenv("DREY_MODELS_SUPPORTED"); modelsJSON != "" {
		if err := json.Unmarshal([]byte(modelsJSON), &cfg.ModelsSupported); err != nil {
			return nil, fmt.Errorf("failed to parse DREY_MODELS_SUPPORTED as JSON array: %w", err)
		}
	}

	heartbeat, err := intervalFromEnv("DREY_HEARTBEAT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.HeartbeatInterval = heartbeat

	poll, err := intervalFromEnv("DREY_POLL_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	cfg.PollInterval = poll

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns the first validation error encountered.
func (c *Config) Validate() error {
	if c.InstanceName == "" {
		return fmt.Errorf("DREY_INSTANCE_NAME environment variable is required")
	}

	if c.AgentName == "" {
		return fmt.Errorf("DREY_AGENT_NAME environment variable is required")
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL environment variable is required")
	}

	if len(c.Command) == 0 {
		return fmt.Errorf("DREY_WORKER_COMMAND environment variable is required (must be a non-empty JSON array)")
	}

	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("DREY_HEARTBEAT_SECONDS must be > 0")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("DREY_POLL_SECONDS must be > 0")
	}

	return nil
}

func intervalFromEnv(name string, defaultSeconds int) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return time.Duration(defaultSeconds) * time.Second, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s as integer: %w", name, err)
	}

	return time.Duration(seconds) * time.Second, nil
}
