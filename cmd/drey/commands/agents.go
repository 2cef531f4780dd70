package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/boardfmt"
	"github.com/dyluth/drey/internal/printer"
)

var (
	agentsRole   string
	agentsOutput string
	agentsMaxAge time.Duration
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents registered on the board",
	Long: `List the worker agents currently registered on the instance.

Agents that have not sent a heartbeat within the staleness window are
marked stale and hidden from this listing; their records are retained
for a while so operators can inspect what disappeared.

Output Formats:
  default - Human-readable table with name, role, and last-seen age
  jsonl   - One JSON object per line, for piping into jq

Examples:
  # List all active agents
  drey agents

  # Only agents advertising the 'coder' role
  drey agents --role coder

  # Widen the staleness window to ten minutes
  drey agents --max-age 10m`,
	RunE: runAgents,
}

var agentsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Hard-delete stale agent records",
	Long: `Remove stale agent records older than the retention window.

Stale records are normally purged lazily during discovery; this command
forces an immediate sweep.`,
	RunE: runAgentsPurge,
}

func init() {
	agentsCmd.Flags().StringVarP(&agentsRole, "role", "r", "", "Filter by agent role")
	agentsCmd.Flags().StringVarP(&agentsOutput, "output", "o", "default", "Output format: default or jsonl")
	agentsCmd.Flags().DurationVar(&agentsMaxAge, "max-age", 0, "Staleness window (default from config)")

	agentsCmd.AddCommand(agentsPurgeCmd)
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if agentsOutput != "default" && agentsOutput != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", agentsOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	client, cfg, err := newBoardClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	maxAge := agentsMaxAge
	if maxAge == 0 {
		maxAge = cfg.MaxAge()
	}

	if agentsRole != "" {
		agents, err := client.DiscoverAgentsByRole(ctx, agentsRole, maxAge)
		if err != nil {
			return fmt.Errorf("failed to discover agents: %w", err)
		}
		if agentsOutput == "jsonl" {
			return boardfmt.FormatAgentJSONL(os.Stdout, agents)
		}
		boardfmt.FormatAgentTable(os.Stdout, agents, cfg.Instance)
		return nil
	}

	agents, err := client.DiscoverAgents(ctx, maxAge, true)
	if err != nil {
		return fmt.Errorf("failed to discover agents: %w", err)
	}

	if agentsOutput == "jsonl" {
		return boardfmt.FormatAgentJSONL(os.Stdout, agents)
	}
	boardfmt.FormatAgentTable(os.Stdout, agents, cfg.Instance)
	return nil
}

func runAgentsPurge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, cfg, err := newBoardClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	retention := cfg.StaleRetention()
	if retention == 0 {
		return printer.Error(
			"stale retention is disabled",
			"discovery.stale_retention_hours is 0, so stale records are kept forever.",
			[]string{"Set a retention window in drey.yml to enable purging"},
		)
	}

	purged, err := client.PurgeStaleAgents(ctx, retention)
	if err != nil {
		return fmt.Errorf("failed to purge stale agents: %w", err)
	}

	printer.Success("Purged %d stale agent record(s) older than %s\n", purged, retention)
	return nil
}
