package taskboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Atomic claim/release protocol
//
// Two workers observing the same pending task and each issuing "read, then
// write" independently can both win unless the check-and-write sequence is a
// single atomic operation against the store. Both scripts below execute
// server-side in one round trip, so racing claimants are serialized by Redis:
// exactly one wins, every other caller gets nil (absent).
//
// A claim attempt that returns absent is a normal, expected outcome - the
// caller should move on to another task, never retry the same id.

// claimTaskScript transfers ownership of a pending task to a worker.
//
// KEYS[1] = task key, KEYS[2] = pending index key, KEYS[3] = in-progress index key
// ARGV[1] = task id, ARGV[2] = worker id, ARGV[3] = now (unix ms)
var claimTaskScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if cur ~= 'pending' then
  return false
end
redis.call('HSET', KEYS[1], 'status', 'in-progress', 'worker_id', ARGV[2], 'claimed_at_ms', ARGV[3], 'updated_at_ms', ARGV[3])
redis.call('SMOVE', KEYS[2], KEYS[3], ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

// releaseTaskScript returns an in-progress task to the pending pool, but only
// for the worker that currently owns it.
//
// KEYS[1] = task key, KEYS[2] = in-progress index key, KEYS[3] = pending index key
// ARGV[1] = task id, ARGV[2] = worker id, ARGV[3] = now (unix ms)
var releaseTaskScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if cur ~= 'in-progress' then
  return false
end
if redis.call('HGET', KEYS[1], 'worker_id') ~= ARGV[2] then
  return false
end
redis.call('HSET', KEYS[1], 'status', 'pending', 'updated_at_ms', ARGV[3])
redis.call('HDEL', KEYS[1], 'worker_id', 'claimed_at_ms')
redis.call('SMOVE', KEYS[2], KEYS[3], ARGV[1])
return redis.call('HGETALL', KEYS[1])
`)

// ClaimTask atomically claims a pending task for workerID.
//
// In one server-side round trip: if the task is missing or not pending the
// claim aborts and (nil, redis.Nil) is returned; otherwise the task moves to
// in-progress with workerID as owner and the id moves from the pending bucket
// to the in-progress bucket. Under racing claims on the same task exactly one
// caller wins.
//
// On success the per-task update notification fires (non-final) and a
// task.claimed event is published.
func (c *Client) ClaimTask(ctx context.Context, taskID, workerID string) (*Task, error) {
	if workerID == "" {
		return nil, fmt.Errorf("worker id cannot be empty")
	}

	now := time.Now().UnixMilli()
	keys := []string{
		TaskKey(c.instanceName, taskID),
		TaskIndexKey(c.instanceName, TaskStatusPending),
		TaskIndexKey(c.instanceName, TaskStatusInProgress),
	}

	reply, err := claimTaskScript.Run(ctx, c.rdb, keys, taskID, workerID, now).Result()
	if err != nil {
		if IsNotFound(err) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to claim task in Redis: %w", err)
	}

	task, err := c.taskFromScriptReply(reply)
	if err != nil {
		return nil, err
	}

	if err := c.notifyTaskUpdate(ctx, task, false); err != nil {
		return nil, err
	}

	if err := c.PublishEvent(ctx, EventTaskClaimed, map[string]any{
		"task_id":   task.ID,
		"worker_id": workerID,
	}); err != nil {
		return nil, err
	}

	return task, nil
}

// ReleaseTask atomically returns a claimed task to the pending pool.
//
// Succeeds only when the stored worker_id matches the caller AND the status is
// in-progress; any other state returns (nil, redis.Nil). On success the owner
// and claimed_at are cleared and the id moves back to the pending bucket.
func (c *Client) ReleaseTask(ctx context.Context, taskID, workerID string) (*Task, error) {
	if workerID == "" {
		return nil, fmt.Errorf("worker id cannot be empty")
	}

	now := time.Now().UnixMilli()
	keys := []string{
		TaskKey(c.instanceName, taskID),
		TaskIndexKey(c.instanceName, TaskStatusInProgress),
		TaskIndexKey(c.instanceName, TaskStatusPending),
	}

	reply, err := releaseTaskScript.Run(ctx, c.rdb, keys, taskID, workerID, now).Result()
	if err != nil {
		if IsNotFound(err) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to release task in Redis: %w", err)
	}

	task, err := c.taskFromScriptReply(reply)
	if err != nil {
		return nil, err
	}

	if err := c.notifyTaskUpdate(ctx, task, false); err != nil {
		return nil, err
	}

	if err := c.PublishEvent(ctx, EventTaskReleased, map[string]any{
		"task_id":   task.ID,
		"worker_id": workerID,
	}); err != nil {
		return nil, err
	}

	return task, nil
}

// taskFromScriptReply decodes the HGETALL array a claim/release script returns.
func (c *Client) taskFromScriptReply(reply interface{}) (*Task, error) {
	hash, err := hashFromScriptReply(reply)
	if err != nil {
		return nil, fmt.Errorf("failed to decode task from script reply: %w", err)
	}

	task, err := HashToTask(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize task: %w", err)
	}

	return task, nil
}
