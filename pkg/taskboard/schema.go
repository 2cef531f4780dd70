package taskboard

import "fmt"

// Redis key pattern helpers
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// multiple drey instances can safely coexist on a single Redis server.
//
// Key pattern: drey:{instance_name}:{entity}:{identifier}
// Channel pattern: drey:{instance_name}:{channel}

// TaskKey returns the Redis key for a task record.
// Pattern: drey:{instance_name}:task:{task_id}
func TaskKey(instanceName, taskID string) string {
	return fmt.Sprintf("drey:%s:task:%s", instanceName, taskID)
}

// TaskIndexKey returns the Redis key for a status index bucket.
// The bucket is a SET of task ids whose current status matches.
// Pattern: drey:{instance_name}:tasks:{status}
func TaskIndexKey(instanceName string, status TaskStatus) string {
	return fmt.Sprintf("drey:%s:tasks:%s", instanceName, status)
}

// taskIndexPrefix returns the status index key prefix, for use inside Lua
// scripts that compute the bucket key from the task's stored status.
// Pattern: drey:{instance_name}:tasks:
func taskIndexPrefix(instanceName string) string {
	return fmt.Sprintf("drey:%s:tasks:", instanceName)
}

// AgentKey returns the Redis key for an agent record.
// Pattern: drey:{instance_name}:agent:{name}
func AgentKey(instanceName, agentName string) string {
	return fmt.Sprintf("drey:%s:agent:%s", instanceName, agentName)
}

// AgentRosterKey returns the Redis key for the agent roster.
// The roster is a ZSET of agent names scored by last_seen (unix ms).
// Pattern: drey:{instance_name}:agents
func AgentRosterKey(instanceName string) string {
	return fmt.Sprintf("drey:%s:agents", instanceName)
}

// AgentRoleKey returns the Redis key for a role index set.
// Pattern: drey:{instance_name}:agents:role:{role}
func AgentRoleKey(instanceName, role string) string {
	return fmt.Sprintf("drey:%s:agents:role:%s", instanceName, role)
}

// AgentStaleKey returns the Redis key for the stale-agent ZSET.
// Members are agent names scored by the unix ms they were soft-marked stale,
// which lets lazy retention sweeps find expired records by score range.
// Pattern: drey:{instance_name}:agents:stale
func AgentStaleKey(instanceName string) string {
	return fmt.Sprintf("drey:%s:agents:stale", instanceName)
}

// EventsChannel returns the Pub/Sub channel carrying every published event.
// Pattern: drey:{instance_name}:events
func EventsChannel(instanceName string) string {
	return fmt.Sprintf("drey:%s:events", instanceName)
}

// EventTypeChannel returns the per-type Pub/Sub channel for one event type.
// Pattern: drey:{instance_name}:events:{event_type}
func EventTypeChannel(instanceName, eventType string) string {
	return fmt.Sprintf("drey:%s:events:%s", instanceName, eventType)
}

// TaskUpdatesChannel returns the Pub/Sub channel carrying full task snapshots
// for every status-changing mutation. Per-task watchers share this one
// subscription and dispatch locally by task id.
// Pattern: drey:{instance_name}:task_updates
func TaskUpdatesChannel(instanceName string) string {
	return fmt.Sprintf("drey:%s:task_updates", instanceName)
}
