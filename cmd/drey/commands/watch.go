package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/drey/internal/boardfmt"
	"github.com/dyluth/drey/internal/printer"
	"github.com/dyluth/drey/pkg/taskboard"
)

var watchEventType string

var watchCmd = &cobra.Command{
	Use:   "watch [TASK_ID]",
	Short: "Stream live activity from the board",
	Long: `Stream live activity until interrupted with Ctrl+C.

Without arguments, tails the instance's event firehose: task lifecycle
events and agent registrations as they happen. With a TASK_ID, follows
that single task's update stream and exits when the task reaches a
terminal status.

Examples:
  # Tail everything happening on the board
  drey watch

  # Only claim events
  drey watch --type task.claimed

  # Follow one task to completion
  drey watch 4f7c2a1e-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchEventType, "type", "t", taskboard.EventTypeAll, "Event type to follow (firehose mode only)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, cfg, err := newBoardClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 1 {
		return watchTask(ctx, client, cfg.Instance, args[0])
	}
	return watchFirehose(ctx, client, cfg.Instance)
}

func watchFirehose(ctx context.Context, client *taskboard.Client, instanceName string) error {
	bus := taskboard.NewEventBus(client)
	defer bus.Close()

	sub, err := bus.Subscribe(watchEventType, func(event *taskboard.Event) {
		boardfmt.FormatEvent(os.Stdout, event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	defer sub.Close()

	printer.Info("Watching events on instance '%s' (Ctrl+C to stop)...\n\n", instanceName)

	<-ctx.Done()
	printer.Info("\nStopped watching.\n")
	return nil
}

func watchTask(ctx context.Context, client *taskboard.Client, instanceName, taskID string) error {
	// Show the current state first so there's output even on a quiet task
	task, err := client.GetTask(ctx, taskID)
	if err != nil {
		if taskboard.IsNotFound(err) {
			return printer.Error(
				fmt.Sprintf("task '%s' not found", taskID),
				fmt.Sprintf("No such task on instance '%s'.", instanceName),
				[]string{"List all tasks:\n  drey task list"},
			)
		}
		return fmt.Errorf("failed to get task: %w", err)
	}

	notifier := taskboard.NewTaskNotifier(client)
	defer notifier.Close()

	done := make(chan struct{})
	watch, err := notifier.WatchTask(taskID, func(update *taskboard.TaskUpdate) {
		printer.Printf("status=%s progress=%.0f%%", update.Task.Status, update.Task.Progress*100)
		if len(update.Task.Messages) > 0 {
			printer.Printf("  %s", update.Task.Messages[len(update.Task.Messages)-1].Content)
		}
		printer.Println()
		if update.Final {
			close(done)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch task: %w", err)
	}
	defer watch.Close()

	printer.Info("Watching task %s (status=%s) on instance '%s'...\n", taskID, task.Status, instanceName)

	if task.Status.IsTerminal() {
		printer.Info("Task is already in terminal status '%s'.\n", task.Status)
		return nil
	}

	select {
	case <-done:
		printer.Success("Task reached a terminal status\n")
		return nil
	case <-ctx.Done():
		printer.Info("\nStopped watching.\n")
		return nil
	}
}
