package boardfmt

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/drey/pkg/taskboard"
)

// Output formatting for tasks and agents.
// Table output is for humans; JSONL is for streaming into tools like jq.

// FormatTaskTable writes tasks as a formatted table to the provided writer.
// Returns the number of tasks formatted.
func FormatTaskTable(w io.Writer, tasks []*taskboard.Task, instanceName string) int {
	if len(tasks) == 0 {
		fmt.Fprintf(w, "No tasks found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Tasks for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-15s %-18s %-6s %-8s %s\n",
		"ID", "STATUS", "WORKER", "PROG", "AGE", "TITLE")
	fmt.Fprintf(w, "%-10s %-15s %-18s %-6s %-8s %s\n",
		"----------", "---------------", "------------------", "------", "--------", "----------------------------------------")

	for _, task := range tasks {
		fmt.Fprintf(w, "%-10s %-15s %-18s %-6s %-8s %s\n",
			formatID(task.ID),
			string(task.Status),
			formatWorker(task.WorkerID),
			fmt.Sprintf("%3.0f%%", task.Progress*100),
			formatAge(task.CreatedAtMs),
			truncate(task.Title, 40),
		)
	}

	countMsg := "task"
	if len(tasks) != 1 {
		countMsg = "tasks"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(tasks), countMsg)

	return len(tasks)
}

// FormatTaskJSONL writes tasks as line-delimited JSON (JSONL) to the provided writer.
func FormatTaskJSONL(w io.Writer, tasks []*taskboard.Task) error {
	for _, task := range tasks {
		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatTaskJSON writes a single task as pretty-printed JSON to the provided writer.
// Used in get mode to display complete task details.
func FormatTaskJSON(w io.Writer, task *taskboard.Task) error {
	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task to JSON: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	return nil
}

// FormatAgentTable writes agents as a formatted table to the provided writer.
// Returns the number of agents formatted.
func FormatAgentTable(w io.Writer, agents []*taskboard.AgentInfo, instanceName string) int {
	if len(agents) == 0 {
		fmt.Fprintf(w, "No agents found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Agents for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-24s %-12s %-12s %-10s %s\n",
		"NAME", "ROLE", "INSTANCE", "SEEN", "MODELS")
	fmt.Fprintf(w, "%-24s %-12s %-12s %-10s %s\n",
		"------------------------", "------------", "------------", "----------", "--------------------")

	for _, agent := range agents {
		fmt.Fprintf(w, "%-24s %-12s %-12s %-10s %s\n",
			truncate(agent.Name, 24),
			truncate(agent.Role, 12),
			truncate(agent.InstanceID, 12),
			formatAge(agent.LastSeenMs),
			strings.Join(agent.ModelsSupported, ","),
		)
	}

	countMsg := "agent"
	if len(agents) != 1 {
		countMsg = "agents"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(agents), countMsg)

	return len(agents)
}

// FormatAgentJSONL writes agents as line-delimited JSON to the provided writer.
func FormatAgentJSONL(w io.Writer, agents []*taskboard.AgentInfo) error {
	for _, agent := range agents {
		data, err := json.Marshal(agent)
		if err != nil {
			return fmt.Errorf("failed to marshal agent to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", string(data)); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatEvent writes one event as a single human-readable line.
// Used by the watch command to tail the firehose.
func FormatEvent(w io.Writer, event *taskboard.Event) {
	timestamp := time.UnixMilli(event.TimestampMs).UTC().Format("15:04:05")

	var details []string
	for key, value := range event.Data {
		details = append(details, fmt.Sprintf("%s=%v", key, value))
	}

	fmt.Fprintf(w, "%s  %-20s %s\n", timestamp, event.Type, strings.Join(details, " "))
}

// formatID truncates an id to its first 8 characters for table display
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatWorker(workerID string) string {
	if workerID == "" {
		return "-"
	}
	return truncate(workerID, 18)
}

// formatAge renders a unix-ms timestamp as a compact age like "5m" or "2h"
func formatAge(unixMs int64) string {
	if unixMs == 0 {
		return "-"
	}

	age := time.Since(time.UnixMilli(unixMs))
	switch {
	case age < 0:
		return "0s"
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
