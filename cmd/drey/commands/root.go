package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/config"
	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/pkg/taskboard"
)

var (
	version string
	commit  string
	date    string
)

// Persistent flags shared by every subcommand
var (
	flagInstance string
	flagRedisURL string
	flagConfig   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "drey",
	Short: "Drey - distributed task board for agent fleets",
	Long: `Drey is a Redis-backed task board for coordinating fleets of worker
agents. Tasks are claimed atomically so each one is executed exactly
once, and agents advertise themselves through a heartbeat registry.

Every command operates on a named instance, letting multiple
independent boards share one Redis deployment.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagInstance, "name", "n", "", "Target instance name (default from config, else 'default')")
	rootCmd.PersistentFlags().StringVar(&flagRedisURL, "redis-url", "", "Redis URL (default from config, else redis://localhost:6379)")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to drey.yml")
}

// loadConfig resolves the effective configuration: file values when --config
// is given, defaults otherwise, with explicit flags overriding both.
func loadConfig() (*config.DreyConfig, error) {
	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if flagInstance != "" {
		cfg.Instance = flagInstance
	}
	if flagRedisURL != "" {
		cfg.Redis.URL = flagRedisURL
	}

	return cfg, nil
}

// newBoardClient connects to Redis per the resolved configuration and verifies
// connectivity. The caller owns the returned client and must Close it.
func newBoardClient(ctx context.Context) (*taskboard.Client, *config.DreyConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client, err := taskboard.NewClient(redisOpts, cfg.Instance)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create task board client: %w", err)
	}
	client.SetStaleRetention(cfg.StaleRetention())

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, nil, printer.Error(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", cfg.Redis.URL),
			[]string{
				"Check that Redis is running and reachable",
				"Point at a different deployment:\n  drey --redis-url redis://host:6379 ...",
			},
		)
	}

	return client, cfg, nil
}
