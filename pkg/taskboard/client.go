package taskboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultStaleRetention is how long a soft-marked stale agent record is kept
// before a discovery sweep hard-deletes it. Override with SetStaleRetention.
const defaultStaleRetention = 7 * 24 * time.Hour

// Client provides instance-scoped Redis operations for the task board.
// All keys and channels are automatically namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb            *redis.Client
	instanceName   string
	staleRetention time.Duration
}

// NewClient creates a new task board client for the specified instance.
// The client automatically namespaces all keys and channels with the instance name.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: drey instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:            redis.NewClient(redisOpts),
		instanceName:   instanceName,
		staleRetention: defaultStaleRetention,
	}, nil
}

// InstanceName returns the drey instance this client is scoped to.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// SetStaleRetention overrides how long stale agent records are retained before
// discovery sweeps hard-delete them. Zero or negative disables hard deletion.
func (c *Client) SetStaleRetention(d time.Duration) {
	c.staleRetention = d
}

// Close closes the Redis connection. Implements io.Closer.
// After calling Close(), the client should not be used.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
// Returns an error if Redis is not reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// PublishEvent wraps data in an event envelope and fans it out to the
// all-events channel and the per-type channel. Delivery is at-most-once:
// subscribers connected after publish never see the event.
func (c *Client) PublishEvent(ctx context.Context, eventType string, data map[string]any) error {
	event := &Event{
		Type:        eventType,
		Data:        data,
		TimestampMs: time.Now().UnixMilli(),
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.rdb.Publish(ctx, EventsChannel(c.instanceName), eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish event to all-events channel: %w", err)
	}

	if err := c.rdb.Publish(ctx, EventTypeChannel(c.instanceName, eventType), eventJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish event to %q channel: %w", eventType, err)
	}

	return nil
}

// TaskUpdate is the payload delivered to per-task watchers on every
// status-changing mutation. Final marks the last update a streaming consumer
// should expect for this task.
type TaskUpdate struct {
	Task  *Task `json:"task"`
	Final bool  `json:"final"`
}

// notifyTaskUpdate publishes the full task snapshot on the task-updates
// channel so per-task watchers see every status-changing mutation.
func (c *Client) notifyTaskUpdate(ctx context.Context, task *Task, final bool) error {
	updateJSON, err := json.Marshal(&TaskUpdate{Task: task, Final: final})
	if err != nil {
		return fmt.Errorf("failed to marshal task update notification: %w", err)
	}

	if err := c.rdb.Publish(ctx, TaskUpdatesChannel(c.instanceName), updateJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish task update notification: %w", err)
	}

	return nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Absent results signal both "never existed" and "lost the race" - callers that
// need to distinguish must re-fetch.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
