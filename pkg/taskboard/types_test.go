package taskboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatusIsTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskStatusCompleted, TaskStatusCancelled, TaskStatusFailed, TaskStatusRejected}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}

	active := []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusInputRequired, TaskStatusAuthRequired}
	for _, s := range active {
		assert.False(t, s.IsTerminal(), "%s should not be terminal", s)
	}
}

func TestNormalizeTaskStatus(t *testing.T) {
	assert.Equal(t, TaskStatusPending, NormalizeTaskStatus("submitted"),
		"deprecated submitted alias folds into pending")
	assert.Equal(t, TaskStatusInProgress, NormalizeTaskStatus(TaskStatusInProgress))
	assert.Equal(t, TaskStatus("bogus"), NormalizeTaskStatus("bogus"),
		"unknown statuses pass through for Validate to reject")
}

func TestTaskStatusValidate(t *testing.T) {
	for _, s := range AllTaskStatuses {
		assert.NoError(t, s.Validate())
	}

	assert.Error(t, TaskStatus("bogus").Validate())
	assert.Error(t, taskStatusSubmitted.Validate(), "alias must be normalized before validation")
}

func TestTaskValidate(t *testing.T) {
	valid := &Task{ID: "t-1", Status: TaskStatusPending, Progress: 0.5}
	assert.NoError(t, valid.Validate())

	t.Run("rejects empty id", func(t *testing.T) {
		task := &Task{Status: TaskStatusPending}
		assert.Error(t, task.Validate())
	})

	t.Run("rejects out-of-range progress", func(t *testing.T) {
		task := &Task{ID: "t-1", Status: TaskStatusPending, Progress: 1.5}
		assert.Error(t, task.Validate())

		task.Progress = -0.1
		assert.Error(t, task.Validate())
	})

	t.Run("rejects claimed_at without owner", func(t *testing.T) {
		task := &Task{ID: "t-1", Status: TaskStatusInProgress, ClaimedAtMs: 12345}
		assert.Error(t, task.Validate())

		task.WorkerID = "worker-1"
		assert.NoError(t, task.Validate())
	})
}

func TestSplitAgentName(t *testing.T) {
	t.Run("splits on the first colon only", func(t *testing.T) {
		role, instance := SplitAgentName("reviewer:host-a:1")
		assert.Equal(t, "reviewer", role)
		assert.Equal(t, "host-a:1", instance)
	})

	t.Run("name without colon is all role", func(t *testing.T) {
		role, instance := SplitAgentName("monitor")
		assert.Equal(t, "monitor", role)
		assert.Empty(t, instance)
	})

	t.Run("leading colon yields empty role", func(t *testing.T) {
		role, instance := SplitAgentName(":orphan")
		assert.Empty(t, role)
		assert.Equal(t, "orphan", instance)
	})
}

func TestAgentInfoValidate(t *testing.T) {
	valid := &AgentInfo{Name: "reviewer:1", Role: "reviewer", Status: AgentStatusActive}
	assert.NoError(t, valid.Validate())

	assert.Error(t, (&AgentInfo{Role: "reviewer", Status: AgentStatusActive}).Validate())
	assert.Error(t, (&AgentInfo{Name: "x", Status: AgentStatusActive}).Validate())
	assert.Error(t, (&AgentInfo{Name: "x", Role: "r", Status: "bogus"}).Validate())
}
