package taskboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Task store operations
//
// A task record and its status-index bucket membership are a single unit: they
// are always mutated together inside one server-side Lua script, so no reader
// can ever observe the record and the index out of sync, and no concurrent
// caller can interleave between the status check and the write. This is the
// property the whole store is built around - ordinary read-modify-write across
// two round trips is unsafe under concurrent callers.

// createTaskScript inserts a task record and its pending-index membership
// atomically. Refuses to overwrite an existing id.
//
// KEYS[1] = task key, KEYS[2] = pending index key
// ARGV[1] = task id, ARGV[2..] = alternating hash field/value pairs
var createTaskScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
for i = 2, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
redis.call('SADD', KEYS[2], ARGV[1])
return 1
`)

// updateTaskScript applies a status/message/progress update atomically,
// moving the id between index buckets when the status changes. Terminal
// statuses are frozen: updates against them return nil (absent).
//
// KEYS[1] = task key
// ARGV[1] = task id, ARGV[2] = now (unix ms), ARGV[3] = new status or '',
// ARGV[4] = message JSON or '', ARGV[5] = progress or '', ARGV[6] = index key prefix
var updateTaskScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local cur = redis.call('HGET', KEYS[1], 'status')
if cur == 'completed' or cur == 'cancelled' or cur == 'failed' or cur == 'rejected' then
  return false
end
local status = ARGV[3]
if status ~= '' and status ~= cur then
  redis.call('SREM', ARGV[6] .. cur, ARGV[1])
  redis.call('SADD', ARGV[6] .. status, ARGV[1])
  redis.call('HSET', KEYS[1], 'status', status)
end
if ARGV[4] ~= '' then
  local messages = cjson.decode(redis.call('HGET', KEYS[1], 'messages'))
  table.insert(messages, cjson.decode(ARGV[4]))
  redis.call('HSET', KEYS[1], 'messages', cjson.encode(messages))
end
if ARGV[5] ~= '' then
  redis.call('HSET', KEYS[1], 'progress', ARGV[5])
end
redis.call('HSET', KEYS[1], 'updated_at_ms', ARGV[2])
return redis.call('HGETALL', KEYS[1])
`)

// deleteTaskScript removes a task record and its index membership atomically.
//
// KEYS[1] = task key
// ARGV[1] = task id, ARGV[2] = index key prefix
var deleteTaskScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if cur == false then
  return 0
end
redis.call('SREM', ARGV[2] .. cur, ARGV[1])
redis.call('DEL', KEYS[1])
return 1
`)

// TaskUpdateRequest carries the optional fields of an UpdateTask call.
// Zero values mean "leave unchanged"; an empty Message is not appended.
type TaskUpdateRequest struct {
	Status   TaskStatus // New status; "" leaves the status unchanged
	Message  string     // Appended to the task's message history when non-empty
	Progress *float64   // New progress fraction; nil leaves it unchanged
	Final    bool       // Marks the per-task notification as the last one to expect
}

// CreateTask creates a new pending task and publishes a task.created event.
// When taskID is empty a fresh UUID is generated. Returns an error if a task
// with the given id already exists.
func (c *Client) CreateTask(ctx context.Context, title, description, taskID string) (*Task, error) {
	if taskID == "" {
		taskID = uuid.New().String()
	}

	now := time.Now().UnixMilli()
	task := &Task{
		ID:          taskID,
		Status:      TaskStatusPending,
		Title:       title,
		Description: description,
		Progress:    0.0,
		Messages:    []Message{},
		CreatedAtMs: now,
		UpdatedAtMs: now,
	}

	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	hash, err := TaskToHash(task)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize task: %w", err)
	}

	args := make([]interface{}, 0, 1+2*len(hash))
	args = append(args, task.ID)
	for field, value := range hash {
		args = append(args, field, value)
	}

	keys := []string{
		TaskKey(c.instanceName, task.ID),
		TaskIndexKey(c.instanceName, TaskStatusPending),
	}
	created, err := createTaskScript.Run(ctx, c.rdb, keys, args...).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to create task in Redis: %w", err)
	}
	if created == 0 {
		return nil, fmt.Errorf("task %q already exists", task.ID)
	}

	if err := c.PublishEvent(ctx, EventTaskCreated, map[string]any{
		"task_id": task.ID,
		"title":   task.Title,
		"status":  string(task.Status),
	}); err != nil {
		return nil, err
	}

	return task, nil
}

// GetTask retrieves a task by id.
// Returns (nil, redis.Nil) if the task doesn't exist.
// Use IsNotFound() to check for not-found errors.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	key := TaskKey(c.instanceName, taskID)

	hashData, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task from Redis: %w", err)
	}

	// HGetAll returns an empty map for non-existent keys
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	task, err := HashToTask(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize task: %w", err)
	}

	return task, nil
}

// UpdateTask applies a status change, message append, and/or progress update
// in one atomic round trip, keeping the status index in step with the record.
//
// Returns (nil, redis.Nil) when the task doesn't exist or is already in a
// terminal status - a terminal task is frozen and further updates are no-ops.
// Fires the per-task update notification and publishes a task.updated event.
func (c *Client) UpdateTask(ctx context.Context, taskID string, update TaskUpdateRequest) (*Task, error) {
	statusArg := ""
	if update.Status != "" {
		status := NormalizeTaskStatus(update.Status)
		if err := status.Validate(); err != nil {
			return nil, fmt.Errorf("invalid update: %w", err)
		}
		statusArg = string(status)
	}

	now := time.Now().UnixMilli()

	messageArg := ""
	if update.Message != "" {
		messageJSON, err := json.Marshal(&Message{Content: update.Message, CreatedAtMs: now})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message: %w", err)
		}
		messageArg = string(messageJSON)
	}

	progressArg := ""
	if update.Progress != nil {
		if *update.Progress < 0.0 || *update.Progress > 1.0 {
			return nil, fmt.Errorf("invalid update: progress must be in [0.0, 1.0], got %v", *update.Progress)
		}
		progressArg = strconv.FormatFloat(*update.Progress, 'f', -1, 64)
	}

	keys := []string{TaskKey(c.instanceName, taskID)}
	reply, err := updateTaskScript.Run(ctx, c.rdb, keys,
		taskID, now, statusArg, messageArg, progressArg, taskIndexPrefix(c.instanceName)).Result()
	if err != nil {
		if IsNotFound(err) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to update task in Redis: %w", err)
	}

	hash, err := hashFromScriptReply(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to decode updated task: %w", err)
	}

	task, err := HashToTask(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize updated task: %w", err)
	}

	if err := c.notifyTaskUpdate(ctx, task, update.Final); err != nil {
		return nil, err
	}

	if err := c.PublishEvent(ctx, EventTaskUpdated, map[string]any{
		"task_id": task.ID,
		"status":  string(task.Status),
		"final":   update.Final,
	}); err != nil {
		return nil, err
	}

	return task, nil
}

// ListTasks returns every task in the given status bucket, or every task on
// the board when status is empty. No ordering is guaranteed.
func (c *Client) ListTasks(ctx context.Context, status TaskStatus) ([]*Task, error) {
	statuses := AllTaskStatuses
	if status != "" {
		normalized := NormalizeTaskStatus(status)
		if err := normalized.Validate(); err != nil {
			return nil, err
		}
		statuses = []TaskStatus{normalized}
	}

	tasks := []*Task{}
	for _, s := range statuses {
		ids, err := c.rdb.SMembers(ctx, TaskIndexKey(c.instanceName, s)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s index from Redis: %w", s, err)
		}

		for _, id := range ids {
			task, err := c.GetTask(ctx, id)
			if err != nil {
				// Deleted between the index read and the fetch
				if IsNotFound(err) {
					continue
				}
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}

	return tasks, nil
}

// DeleteTask removes a task record and its index membership atomically.
// Returns false when the task doesn't exist. Publishes a task.deleted event
// on success.
func (c *Client) DeleteTask(ctx context.Context, taskID string) (bool, error) {
	keys := []string{TaskKey(c.instanceName, taskID)}
	deleted, err := deleteTaskScript.Run(ctx, c.rdb, keys, taskID, taskIndexPrefix(c.instanceName)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to delete task from Redis: %w", err)
	}

	if deleted == 0 {
		return false, nil
	}

	if err := c.PublishEvent(ctx, EventTaskDeleted, map[string]any{
		"task_id": taskID,
	}); err != nil {
		return true, err
	}

	return true, nil
}
