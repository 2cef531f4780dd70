package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drey.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("loads a full config", func(t *testing.T) {
		path := writeConfig(t, `
version: "1"
instance: prod
redis:
  url: redis://redis.internal:6379/2
discovery:
  max_age_seconds: 60
  stale_retention_hours: 24
worker:
  heartbeat_seconds: 10
  poll_seconds: 2
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "prod", cfg.Instance)
		assert.Equal(t, "redis://redis.internal:6379/2", cfg.Redis.URL)
		assert.Equal(t, time.Minute, cfg.MaxAge())
		assert.Equal(t, 24*time.Hour, cfg.StaleRetention())
		assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval())
		assert.Equal(t, 2*time.Second, cfg.PollInterval())
	})

	t.Run("fills defaults for omitted sections", func(t *testing.T) {
		path := writeConfig(t, `version: "1"`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, DefaultInstance, cfg.Instance)
		assert.Equal(t, DefaultRedisURL, cfg.Redis.URL)
		assert.Equal(t, DefaultMaxAgeSeconds, *cfg.Discovery.MaxAgeSeconds)
		assert.Equal(t, DefaultStaleRetentionHours, *cfg.Discovery.StaleRetentionHours)
		assert.Equal(t, DefaultHeartbeatSeconds, *cfg.Worker.HeartbeatSeconds)
		assert.Equal(t, DefaultPollSeconds, *cfg.Worker.PollSeconds)
	})

	t.Run("rejects unsupported version", func(t *testing.T) {
		path := writeConfig(t, `version: "9"`)
		_, err := Load(path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported version")
	})

	t.Run("rejects non-positive windows", func(t *testing.T) {
		path := writeConfig(t, `
version: "1"
discovery:
  max_age_seconds: 0
`)
		_, err := Load(path)
		assert.Error(t, err)

		path = writeConfig(t, `
version: "1"
worker:
  heartbeat_seconds: -5
`)
		_, err = Load(path)
		assert.Error(t, err)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := writeConfig(t, "version: [unclosed")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultInstance, cfg.Instance)
	assert.Equal(t, DefaultRedisURL, cfg.Redis.URL)
	assert.Equal(t, 2*time.Minute, cfg.MaxAge())
	assert.Equal(t, 7*24*time.Hour, cfg.StaleRetention())
}

func TestStaleRetentionZeroMeansForever(t *testing.T) {
	zero := 0
	cfg := &DreyConfig{Discovery: &DiscoveryConfig{StaleRetentionHours: &zero}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Duration(0), cfg.StaleRetention())
}
