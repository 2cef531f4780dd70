package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dyluth/drey/pkg/taskboard"
)

// CommandHandler returns a Handler that executes the configured command once
// per claimed task. The full task JSON is piped to the command's stdin; the
// command's stdout (trimmed) becomes the task's result message. A non-zero
// exit fails the task with the command's stderr in the error.
func CommandHandler(command []string) Handler {
	return func(ctx context.Context, task *taskboard.Task) (string, error) {
		if len(command) == 0 {
			return "", fmt.Errorf("no worker command configured")
		}

		taskJSON, err := json.Marshal(task)
		if err != nil {
			return "", fmt.Errorf("failed to marshal task for command: %w", err)
		}

		cmd := exec.CommandContext(ctx, command[0], command[1:]...)
		cmd.Stdin = bytes.NewReader(taskJSON)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			// Preserve the cancellation cause so the engine releases
			// instead of failing the task
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("worker command failed: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
		}

		return strings.TrimSpace(stdout.String()), nil
	}
}
