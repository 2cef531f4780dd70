package taskboard

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Redis stores records as string-to-string maps (hashes). Complex fields like
// the message history and capability flags are JSON-encoded into single hash
// fields. This keeps scalar fields individually queryable from Lua scripts
// while still allowing structured data.

// TaskToHash converts a Task struct to a Redis hash format.
// The messages array is JSON-encoded.
func TaskToHash(t *Task) (map[string]interface{}, error) {
	messagesJSON, err := json.Marshal(t.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %w", err)
	}

	hash := map[string]interface{}{
		"id":            t.ID,
		"status":        string(t.Status),
		"title":         t.Title,
		"description":   t.Description,
		"progress":      strconv.FormatFloat(t.Progress, 'f', -1, 64),
		"messages":      string(messagesJSON),
		"worker_id":     t.WorkerID,
		"claimed_at_ms": t.ClaimedAtMs,
		"created_at_ms": t.CreatedAtMs,
		"updated_at_ms": t.UpdatedAtMs,
	}

	return hash, nil
}

// HashToTask converts a Redis hash to a Task struct.
// JSON fields are decoded back to Go types.
func HashToTask(hash map[string]string) (*Task, error) {
	progress, err := strconv.ParseFloat(hash["progress"], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid progress field: %w", err)
	}

	var messages []Message
	if messagesJSON := hash["messages"]; messagesJSON != "" {
		if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
	}

	// Empty slice rather than nil for consistency
	if messages == nil {
		messages = []Message{}
	}

	claimedAtMs, _ := strconv.ParseInt(hash["claimed_at_ms"], 10, 64)
	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	updatedAtMs, _ := strconv.ParseInt(hash["updated_at_ms"], 10, 64)

	task := &Task{
		ID:          hash["id"],
		Status:      NormalizeTaskStatus(TaskStatus(hash["status"])),
		Title:       hash["title"],
		Description: hash["description"],
		Progress:    progress,
		Messages:    messages,
		WorkerID:    hash["worker_id"],
		ClaimedAtMs: claimedAtMs,
		CreatedAtMs: createdAtMs,
		UpdatedAtMs: updatedAtMs,
	}

	return task, nil
}

// AgentToHash converts an AgentInfo struct to a Redis hash format.
// Capabilities and models_supported are JSON-encoded.
func AgentToHash(a *AgentInfo) (map[string]interface{}, error) {
	capabilitiesJSON, err := json.Marshal(a.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal capabilities: %w", err)
	}

	modelsJSON, err := json.Marshal(a.ModelsSupported)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal models_supported: %w", err)
	}

	hash := map[string]interface{}{
		"name":             a.Name,
		"role":             a.Role,
		"instance_id":      a.InstanceID,
		"description":      a.Description,
		"url":              a.URL,
		"capabilities":     string(capabilitiesJSON),
		"models_supported": string(modelsJSON),
		"last_seen_ms":     a.LastSeenMs,
		"status":           string(a.Status),
		"stale_since_ms":   a.StaleSinceMs,
	}

	return hash, nil
}

// HashToAgent converts a Redis hash to an AgentInfo struct.
func HashToAgent(hash map[string]string) (*AgentInfo, error) {
	var capabilities map[string]bool
	if capabilitiesJSON := hash["capabilities"]; capabilitiesJSON != "" && capabilitiesJSON != "null" {
		if err := json.Unmarshal([]byte(capabilitiesJSON), &capabilities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal capabilities: %w", err)
		}
	}
	if capabilities == nil {
		capabilities = map[string]bool{}
	}

	var models []string
	if modelsJSON := hash["models_supported"]; modelsJSON != "" && modelsJSON != "null" {
		if err := json.Unmarshal([]byte(modelsJSON), &models); err != nil {
			return nil, fmt.Errorf("failed to unmarshal models_supported: %w", err)
		}
	}

	lastSeenMs, _ := strconv.ParseInt(hash["last_seen_ms"], 10, 64)
	staleSinceMs, _ := strconv.ParseInt(hash["stale_since_ms"], 10, 64)

	agent := &AgentInfo{
		Name:            hash["name"],
		Role:            hash["role"],
		InstanceID:      hash["instance_id"],
		Description:     hash["description"],
		URL:             hash["url"],
		Capabilities:    capabilities,
		ModelsSupported: models,
		LastSeenMs:      lastSeenMs,
		Status:          AgentStatus(hash["status"]),
		StaleSinceMs:    staleSinceMs,
	}

	return agent, nil
}

// hashFromScriptReply converts the flat field/value array a Lua HGETALL returns
// into the map form the Hash* converters expect.
func hashFromScriptReply(reply interface{}) (map[string]string, error) {
	arr, ok := reply.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script reply type %T", reply)
	}

	if len(arr)%2 != 0 {
		return nil, fmt.Errorf("unexpected script reply length %d", len(arr))
	}

	hash := make(map[string]string, len(arr)/2)
	for i := 0; i < len(arr); i += 2 {
		field, ok := arr[i].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected field type %T in script reply", arr[i])
		}
		value, ok := arr[i+1].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected value type %T in script reply", arr[i+1])
		}
		hash[field] = value
	}

	return hash, nil
}
