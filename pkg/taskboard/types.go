package taskboard

import (
	"fmt"
	"strings"
)

// Task represents a unit of work tracked through a status lifecycle on the board.
// A task is created pending, claimed by exactly one worker at a time, and
// eventually reaches a terminal status from which no further transition is allowed.
type Task struct {
	ID          string     `json:"id"`                       // Unique identifier (UUID by default, caller-supplied ids allowed)
	Status      TaskStatus `json:"status"`                   // Current lifecycle state
	Title       string     `json:"title"`                    // Short human-readable summary
	Description string     `json:"description"`              // Longer free-form description
	Progress    float64    `json:"progress"`                 // Completion fraction, 0.0-1.0
	Messages    []Message  `json:"messages"`                 // Ordered message history, append-only
	WorkerID    string     `json:"worker_id,omitempty"`      // Name of the owning worker, empty when unclaimed
	ClaimedAtMs int64      `json:"claimed_at_ms,omitempty"`  // Unix ms when the current owner claimed the task
	CreatedAtMs int64      `json:"created_at_ms"`            // Unix ms when the task was created
	UpdatedAtMs int64      `json:"updated_at_ms"`            // Unix ms of the last mutation
}

// Message is a single entry in a task's message history.
type Message struct {
	Content     string `json:"content"`       // Free-form text attached by whoever performed the update
	CreatedAtMs int64  `json:"created_at_ms"` // Unix ms when the message was appended
}

// TaskStatus defines the lifecycle state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is unclaimed and available for workers
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusInProgress indicates the task is owned by exactly one worker
	TaskStatusInProgress TaskStatus = "in-progress"

	// TaskStatusInputRequired indicates the task is paused waiting for caller input
	TaskStatusInputRequired TaskStatus = "input-required"

	// TaskStatusCompleted indicates the task finished successfully (terminal)
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusCancelled indicates the task was cancelled by a caller (terminal)
	TaskStatusCancelled TaskStatus = "cancelled"

	// TaskStatusFailed indicates the task's worker reported failure (terminal)
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusRejected indicates no worker would accept the task (terminal)
	TaskStatusRejected TaskStatus = "rejected"

	// TaskStatusAuthRequired indicates the task is paused pending authorization
	TaskStatusAuthRequired TaskStatus = "auth-required"
)

// taskStatusSubmitted is a deprecated alias accepted on input and folded into
// TaskStatusPending. It is never stored or returned.
const taskStatusSubmitted TaskStatus = "submitted"

// AllTaskStatuses lists every canonical status. Used for full-board scans.
var AllTaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusInProgress,
	TaskStatusInputRequired,
	TaskStatusCompleted,
	TaskStatusCancelled,
	TaskStatusFailed,
	TaskStatusRejected,
	TaskStatusAuthRequired,
}

// NormalizeTaskStatus maps deprecated aliases onto their canonical status.
// Currently only "submitted" → "pending".
func NormalizeTaskStatus(s TaskStatus) TaskStatus {
	if s == taskStatusSubmitted {
		return TaskStatusPending
	}
	return s
}

// IsTerminal reports whether the status permits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusCancelled, TaskStatusFailed, TaskStatusRejected:
		return true
	default:
		return false
	}
}

// Validate checks if the TaskStatus is a valid canonical enum value.
// The deprecated "submitted" alias is rejected here; normalize first.
func (s TaskStatus) Validate() error {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusInputRequired,
		TaskStatusCompleted, TaskStatusCancelled, TaskStatusFailed,
		TaskStatusRejected, TaskStatusAuthRequired:
		return nil
	default:
		return fmt.Errorf("unknown task status: %q", s)
	}
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	if err := t.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	if t.Progress < 0.0 || t.Progress > 1.0 {
		return fmt.Errorf("invalid progress: must be in [0.0, 1.0], got %v", t.Progress)
	}

	// A claimed_at timestamp is only meaningful alongside an owner
	if t.WorkerID == "" && t.ClaimedAtMs != 0 {
		return fmt.Errorf("claimed_at_ms set without worker_id")
	}

	return nil
}

// AgentInfo represents a registered agent's roster entry.
// Agents are created on register, refreshed on heartbeat or re-registration,
// soft-marked stale when silent for too long, and marked inactive on unregister.
type AgentInfo struct {
	Name            string          `json:"name"`                       // Unique agent name, optionally "role:instance" encoded
	Role            string          `json:"role"`                       // Logical capability class (e.g. "reviewer")
	InstanceID      string          `json:"instance_id,omitempty"`      // Distinguishes instances serving the same role
	Description     string          `json:"description,omitempty"`      // Human-readable description
	URL             string          `json:"url,omitempty"`              // Endpoint where the agent can be reached
	Capabilities    map[string]bool `json:"capabilities"`               // Capability flags
	ModelsSupported []string        `json:"models_supported,omitempty"` // Optional list of supported model identifiers
	LastSeenMs      int64           `json:"last_seen_ms"`               // Unix ms of the last register/heartbeat
	Status          AgentStatus     `json:"status"`                     // active, stale, or inactive
	StaleSinceMs    int64           `json:"stale_since_ms,omitempty"`   // Unix ms when the agent was soft-marked stale
}

// AgentStatus defines the liveness state of a roster entry.
type AgentStatus string

const (
	// AgentStatusActive indicates the agent is in the roster and recently seen
	AgentStatusActive AgentStatus = "active"

	// AgentStatusStale indicates the agent was evicted from the roster for silence
	AgentStatusStale AgentStatus = "stale"

	// AgentStatusInactive indicates the agent explicitly unregistered
	AgentStatusInactive AgentStatus = "inactive"
)

// Validate checks if the AgentStatus is a valid enum value.
func (s AgentStatus) Validate() error {
	switch s {
	case AgentStatusActive, AgentStatusStale, AgentStatusInactive:
		return nil
	default:
		return fmt.Errorf("unknown agent status: %q", s)
	}
}

// Validate checks if the AgentInfo has valid field values.
func (a *AgentInfo) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}

	if a.Role == "" {
		return fmt.Errorf("agent role cannot be empty")
	}

	if err := a.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}

	return nil
}

// SplitAgentName splits a "role:instance" encoded agent name on the first colon.
// Names without a colon yield the whole name as role and an empty instance id.
// Explicit role/instance fields always take precedence over this convention;
// the split is a serialization shortcut, not a required data shape.
func SplitAgentName(name string) (role, instanceID string) {
	if idx := strings.Index(name, ":"); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return name, ""
}

// Event is the envelope published on the event channels.
// Events are ephemeral and delivered at-most-once to handlers subscribed at
// publish time; there is no replay.
type Event struct {
	Type        string         `json:"type"`         // Dotted event type, e.g. "task.created"
	Data        map[string]any `json:"data"`         // Arbitrary event payload
	TimestampMs int64          `json:"timestamp_ms"` // Unix ms when the event was published
}

// Well-known lifecycle event types published by the board itself.
const (
	EventTaskCreated       = "task.created"
	EventTaskUpdated       = "task.updated"
	EventTaskClaimed       = "task.claimed"
	EventTaskReleased      = "task.released"
	EventTaskDeleted       = "task.deleted"
	EventAgentRegistered   = "agent.registered"
	EventAgentUnregistered = "agent.unregistered"
)

// EventTypeAll is the wildcard type accepted by EventBus.Subscribe to receive
// every event regardless of type.
const EventTypeAll = "*"
