package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags(t *testing.T) {
	t.Helper()
	flagInstance = ""
	flagRedisURL = ""
	flagConfig = ""
	t.Cleanup(func() {
		flagInstance = ""
		flagRedisURL = ""
		flagConfig = ""
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults when no flags or file", func(t *testing.T) {
		resetFlags(t)

		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, "default", cfg.Instance)
		assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	})

	t.Run("flags override defaults", func(t *testing.T) {
		resetFlags(t)
		flagInstance = "prod"
		flagRedisURL = "redis://redis.internal:6379"

		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, "prod", cfg.Instance)
		assert.Equal(t, "redis://redis.internal:6379", cfg.Redis.URL)
	})

	t.Run("flags override file values", func(t *testing.T) {
		resetFlags(t)

		path := filepath.Join(t.TempDir(), "drey.yml")
		require.NoError(t, os.WriteFile(path, []byte(`
version: "1"
instance: staging
redis:
  url: redis://staging:6379
`), 0644))

		flagConfig = path
		flagInstance = "prod"

		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, "prod", cfg.Instance)
		assert.Equal(t, "redis://staging:6379", cfg.Redis.URL)
	})

	t.Run("missing config file is an error", func(t *testing.T) {
		resetFlags(t)
		flagConfig = "/nonexistent/drey.yml"

		_, err := loadConfig()
		assert.Error(t, err)
	})
}

func TestRootCommandRegistration(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}

	assert.True(t, names["task"], "task command should be registered")
	assert.True(t, names["agents"], "agents command should be registered")
	assert.True(t, names["watch"], "watch command should be registered")
}
