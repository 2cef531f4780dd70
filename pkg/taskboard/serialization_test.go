package taskboard

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskHashRoundTrip(t *testing.T) {
	task := &Task{
		ID:          "t-1",
		Status:      TaskStatusInProgress,
		Title:       "Deploy v2",
		Description: "Roll out release 2.0",
		Progress:    0.25,
		Messages: []Message{
			{Content: "started", CreatedAtMs: 1700000000000},
		},
		WorkerID:    "deployer:host-a",
		ClaimedAtMs: 1700000000000,
		CreatedAtMs: 1699999999000,
		UpdatedAtMs: 1700000000000,
	}

	hash, err := TaskToHash(task)
	require.NoError(t, err)

	stringHash := make(map[string]string, len(hash))
	for k, v := range hash {
		switch value := v.(type) {
		case string:
			stringHash[k] = value
		case int64:
			stringHash[k] = strconv.FormatInt(value, 10)
		}
	}

	restored, err := HashToTask(stringHash)
	require.NoError(t, err)
	assert.Equal(t, task, restored)
}

func TestHashToTaskNormalizesDeprecatedStatus(t *testing.T) {
	restored, err := HashToTask(map[string]string{
		"id":       "t-1",
		"status":   "submitted",
		"progress": "0",
	})
	require.NoError(t, err)
	assert.Equal(t, TaskStatusPending, restored.Status)
	assert.Equal(t, []Message{}, restored.Messages, "nil messages become empty slice")
}

func TestHashToTaskRejectsBadProgress(t *testing.T) {
	_, err := HashToTask(map[string]string{
		"id":       "t-1",
		"status":   "pending",
		"progress": "not-a-number",
	})
	assert.Error(t, err)
}

func TestAgentHashRoundTrip(t *testing.T) {
	agent := &AgentInfo{
		Name:            "reviewer:host-a",
		Role:            "reviewer",
		InstanceID:      "host-a",
		Description:     "code reviewer",
		URL:             "http://localhost:9000",
		Capabilities:    map[string]bool{"streaming": true, "batch": false},
		ModelsSupported: []string{"model-alpha", "model-beta"},
		LastSeenMs:      1700000000000,
		Status:          AgentStatusActive,
	}

	hash, err := AgentToHash(agent)
	require.NoError(t, err)

	stringHash := make(map[string]string, len(hash))
	for k, v := range hash {
		switch value := v.(type) {
		case string:
			stringHash[k] = value
		case int64:
			stringHash[k] = strconv.FormatInt(value, 10)
		}
	}

	restored, err := HashToAgent(stringHash)
	require.NoError(t, err)
	assert.Equal(t, agent, restored)
}

func TestHashToAgentDefaults(t *testing.T) {
	restored, err := HashToAgent(map[string]string{
		"name":   "bare",
		"role":   "bare",
		"status": "active",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{}, restored.Capabilities, "nil capabilities become empty map")
	assert.Nil(t, restored.ModelsSupported)
}

func TestHashFromScriptReply(t *testing.T) {
	t.Run("converts field-value pairs", func(t *testing.T) {
		hash, err := hashFromScriptReply([]interface{}{"id", "t-1", "status", "pending"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"id": "t-1", "status": "pending"}, hash)
	})

	t.Run("rejects odd-length and non-array replies", func(t *testing.T) {
		_, err := hashFromScriptReply([]interface{}{"id"})
		assert.Error(t, err)

		_, err = hashFromScriptReply("not an array")
		assert.Error(t, err)
	})
}

