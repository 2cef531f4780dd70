package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/boardfmt"
	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/pkg/taskboard"
)

var (
	taskCreateDescription string
	taskCreateID          string
	taskListStatus        string
	taskListOutput        string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and inspect tasks",
	Long: `Create and inspect tasks on the board.

Tasks start in the 'pending' status and are picked up by worker agents,
which claim them atomically so each task runs exactly once.`,
}

var taskCreateCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Create a new pending task",
	Long: `Create a new task in the 'pending' status.

The task becomes immediately visible to worker agents, which race to
claim it. Prints the generated task ID on success.

Examples:
  # Create a simple task
  drey task create "Summarise the incident report"

  # Attach a longer description
  drey task create "Refactor billing" --description "Split the invoice module"

  # Supply your own id for idempotent submission
  drey task create "Nightly sync" --id nightly-sync-2026-03-01`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskCreate,
}

var taskGetCmd = &cobra.Command{
	Use:   "get TASK_ID",
	Short: "Show full details of a single task",
	Long: `Display the complete task record as pretty-printed JSON, including
its message history and claim metadata.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskGet,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks on the board",
	Long: `List tasks as a table or as line-delimited JSON.

Output Formats:
  default - Human-readable table with ID, status, worker, and progress
  jsonl   - One JSON object per line, for piping into jq

Examples:
  # List every task
  drey task list

  # Only tasks still waiting for a worker
  drey task list --status pending

  # Feed completed tasks into jq
  drey task list --status completed --output jsonl | jq .id`,
	RunE: runTaskList,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel TASK_ID",
	Short: "Cancel a task",
	Long: `Move a task to the terminal 'cancelled' status.

A worker currently executing the task will record its outcome against a
terminal record, which the board refuses, so the cancellation sticks.`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskCancel,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete TASK_ID",
	Short: "Delete a task record entirely",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

func init() {
	taskCreateCmd.Flags().StringVarP(&taskCreateDescription, "description", "d", "", "Longer task description")
	taskCreateCmd.Flags().StringVar(&taskCreateID, "id", "", "Explicit task id (generated if omitted)")
	taskListCmd.Flags().StringVarP(&taskListStatus, "status", "s", "", "Filter by status (e.g. pending, in-progress, completed)")
	taskListCmd.Flags().StringVarP(&taskListOutput, "output", "o", "default", "Output format: default or jsonl")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, cfg, err := newBoardClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	task, err := client.CreateTask(ctx, args[0], taskCreateDescription, taskCreateID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	printer.Success("Task created on instance '%s'\n", cfg.Instance)
	printer.Printf("  ID:     %s\n", task.ID)
	printer.Printf("  Status: %s\n", task.Status)
	return nil
}

func runTaskGet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, cfg, err := newBoardClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	task, err := client.GetTask(ctx, args[0])
	if err != nil {
		if taskboard.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("task '%s' not found", args[0]),
				fmt.Sprintf("No such task on instance '%s'.", cfg.Instance),
				[]string{"List all tasks:\n  drey task list"},
			)
		}
		return fmt.Errorf("failed to get task: %w", err)
	}

	return boardfmt.FormatTaskJSON(os.Stdout, task)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if taskListOutput != "default" && taskListOutput != "jsonl" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", taskListOutput),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	client, cfg, err := newBoardClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	tasks, err := client.ListTasks(ctx, taskboard.TaskStatus(taskListStatus))
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}

	if taskListOutput == "jsonl" {
		return boardfmt.FormatTaskJSONL(os.Stdout, tasks)
	}
	boardfmt.FormatTaskTable(os.Stdout, tasks, cfg.Instance)
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, _, err := newBoardClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	task, err := client.UpdateTask(ctx, args[0], taskboard.TaskUpdateRequest{
		Status:  taskboard.TaskStatusCancelled,
		Message: "cancelled via CLI",
		Final:   true,
	})
	if err != nil {
		if taskboard.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("task '%s' cannot be cancelled", args[0]),
				"The task does not exist or is already in a terminal status.",
				[]string{"Check its current state:\n  drey task get " + args[0]},
			)
		}
		return fmt.Errorf("failed to cancel task: %w", err)
	}

	printer.Success("Task %s cancelled\n", task.ID)
	return nil
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, _, err := newBoardClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	deleted, err := client.DeleteTask(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if !deleted {
		return printer.Error(
			fmt.Sprintf("task '%s' not found", args[0]),
			"Nothing to delete.",
			[]string{"List all tasks:\n  drey task list"},
		)
	}

	printer.Success("Task %s deleted\n", args[0])
	return nil
}
