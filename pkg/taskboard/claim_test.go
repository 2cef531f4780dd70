package taskboard

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimTask(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("claims a pending task", func(t *testing.T) {
		task, err := client.CreateTask(ctx, "Deploy v2", "", "")
		require.NoError(t, err)

		claimed, err := client.ClaimTask(ctx, task.ID, "worker-1")
		require.NoError(t, err)

		assert.Equal(t, TaskStatusInProgress, claimed.Status)
		assert.Equal(t, "worker-1", claimed.WorkerID)
		assert.NotZero(t, claimed.ClaimedAtMs)
		assert.Equal(t, claimed.ClaimedAtMs, claimed.UpdatedAtMs)

		// Index moved pending -> in-progress
		pending, err := client.rdb.SMembers(ctx, TaskIndexKey("test-instance", TaskStatusPending)).Result()
		require.NoError(t, err)
		assert.NotContains(t, pending, task.ID)

		inProgress, err := client.rdb.SMembers(ctx, TaskIndexKey("test-instance", TaskStatusInProgress)).Result()
		require.NoError(t, err)
		assert.Contains(t, inProgress, task.ID)
	})

	t.Run("second claimant gets absent", func(t *testing.T) {
		task, err := client.CreateTask(ctx, "Contested", "", "")
		require.NoError(t, err)

		_, err = client.ClaimTask(ctx, task.ID, "worker-1")
		require.NoError(t, err)

		_, err = client.ClaimTask(ctx, task.ID, "worker-2")
		assert.True(t, IsNotFound(err), "claim against an owned task must look absent")

		// Ownership unchanged
		current, err := client.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "worker-1", current.WorkerID)
	})

	t.Run("claim on unknown task is absent", func(t *testing.T) {
		_, err := client.ClaimTask(ctx, "no-such-task", "worker-1")
		assert.True(t, IsNotFound(err))
	})

	t.Run("claim on terminal task is absent", func(t *testing.T) {
		task, err := client.CreateTask(ctx, "Finished", "", "")
		require.NoError(t, err)
		_, err = client.ClaimTask(ctx, task.ID, "worker-1")
		require.NoError(t, err)
		_, err = client.UpdateTask(ctx, task.ID, TaskUpdateRequest{Status: TaskStatusCompleted, Final: true})
		require.NoError(t, err)

		_, err = client.ClaimTask(ctx, task.ID, "worker-3")
		assert.True(t, IsNotFound(err))
	})

	t.Run("rejects empty worker id", func(t *testing.T) {
		_, err := client.ClaimTask(ctx, "whatever", "")
		assert.Error(t, err)
	})
}

func TestReleaseTask(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("owner releases back to pending", func(t *testing.T) {
		task, err := client.CreateTask(ctx, "Boomerang", "", "")
		require.NoError(t, err)
		_, err = client.ClaimTask(ctx, task.ID, "worker-1")
		require.NoError(t, err)

		released, err := client.ReleaseTask(ctx, task.ID, "worker-1")
		require.NoError(t, err)

		assert.Equal(t, TaskStatusPending, released.Status)
		assert.Empty(t, released.WorkerID)
		assert.Zero(t, released.ClaimedAtMs)

		pending, err := client.rdb.SMembers(ctx, TaskIndexKey("test-instance", TaskStatusPending)).Result()
		require.NoError(t, err)
		assert.Contains(t, pending, task.ID)

		// Released task is claimable again
		_, err = client.ClaimTask(ctx, task.ID, "worker-2")
		assert.NoError(t, err)
	})

	t.Run("non-owner release is an absent no-op", func(t *testing.T) {
		task, err := client.CreateTask(ctx, "Held", "", "")
		require.NoError(t, err)
		_, err = client.ClaimTask(ctx, task.ID, "worker-1")
		require.NoError(t, err)

		_, err = client.ReleaseTask(ctx, task.ID, "worker-2")
		assert.True(t, IsNotFound(err))

		current, err := client.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, TaskStatusInProgress, current.Status)
		assert.Equal(t, "worker-1", current.WorkerID)
	})

	t.Run("release of unclaimed task is absent", func(t *testing.T) {
		task, err := client.CreateTask(ctx, "Unclaimed", "", "")
		require.NoError(t, err)

		_, err = client.ReleaseTask(ctx, task.ID, "worker-1")
		assert.True(t, IsNotFound(err))
	})

	t.Run("release of unknown task is absent", func(t *testing.T) {
		_, err := client.ReleaseTask(ctx, "no-such-task", "worker-1")
		assert.True(t, IsNotFound(err))
	})
}

// Racing claims on the same pending task: exactly one caller wins, every
// other observes absent. The claim script executes server-side in one round
// trip, so Redis serializes the check-and-write.
func TestClaimTaskRace(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	task, err := client.CreateTask(ctx, "Contested", "", "")
	require.NoError(t, err)

	const claimants = 16

	var wg sync.WaitGroup
	winners := make(chan string, claimants)

	for i := 0; i < claimants; i++ {
		workerID := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := client.ClaimTask(ctx, task.ID, workerID)
			if err != nil {
				assert.True(t, IsNotFound(err), "losers must see absent, got: %v", err)
				return
			}
			winners <- claimed.WorkerID
		}()
	}

	wg.Wait()
	close(winners)

	var won []string
	for w := range winners {
		won = append(won, w)
	}
	require.Len(t, won, 1, "exactly one claimant must win")

	current, err := client.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, won[0], current.WorkerID)
	assert.Equal(t, TaskStatusInProgress, current.Status)
}

// Scenario: full lifecycle through claim, contested claim, completion, and
// post-terminal claim attempts.
func TestClaimLifecycle(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	task, err := client.CreateTask(ctx, "Deploy v2", "", "")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusPending, task.Status)

	claimed, err := client.ClaimTask(ctx, task.ID, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusInProgress, claimed.Status)
	assert.Equal(t, "worker-1", claimed.WorkerID)

	_, err = client.ClaimTask(ctx, task.ID, "worker-2")
	assert.True(t, IsNotFound(err))

	completed, err := client.UpdateTask(ctx, task.ID, TaskUpdateRequest{Status: TaskStatusCompleted, Final: true})
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, completed.Status)

	_, err = client.ClaimTask(ctx, task.ID, "worker-3")
	assert.True(t, IsNotFound(err))
}
