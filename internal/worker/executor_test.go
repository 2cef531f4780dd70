package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/drey/pkg/taskboard"
)

func TestCommandHandler(t *testing.T) {
	ctx := context.Background()
	task := &taskboard.Task{
		ID:     "t-1",
		Status: taskboard.TaskStatusInProgress,
		Title:  "Echo test",
	}

	t.Run("stdout becomes the result message", func(t *testing.T) {
		handler := CommandHandler([]string{"sh", "-c", "cat > /dev/null; echo task handled"})

		result, err := handler(ctx, task)
		require.NoError(t, err)
		assert.Equal(t, "task handled", result)
	})

	t.Run("command receives the task JSON on stdin", func(t *testing.T) {
		// Echo the id field back out via a tiny shell pipeline
		handler := CommandHandler([]string{"sh", "-c", `grep -o '"id":"[^"]*"' | head -1`})

		result, err := handler(ctx, task)
		require.NoError(t, err)
		assert.Contains(t, result, "t-1")
	})

	t.Run("non-zero exit fails with stderr attached", func(t *testing.T) {
		handler := CommandHandler([]string{"sh", "-c", "echo boom >&2; exit 3"})

		_, err := handler(ctx, task)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("empty command is an error", func(t *testing.T) {
		handler := CommandHandler(nil)

		_, err := handler(ctx, task)
		assert.Error(t, err)
	})

	t.Run("cancellation surfaces as context error", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		handler := CommandHandler([]string{"sleep", "10"})

		_, err := handler(cancelled, task)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
