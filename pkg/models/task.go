package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true once the task can no longer change state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskPriority orders tasks within an agent's queue.
type TaskPriority string

const (
	// PriorityLow is for background housekeeping work.
	PriorityLow TaskPriority = "low"
	// PriorityMedium is the default priority.
	PriorityMedium TaskPriority = "medium"
	// PriorityHigh is for work that should preempt routine tasks.
	PriorityHigh TaskPriority = "high"
	// PriorityUrgent is for active incidents.
	PriorityUrgent TaskPriority = "urgent"
)

// Valid returns true if the priority is a known value.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Task represents a unit of asynchronous work assigned to an agent.
// A task belongs to exactly one agent for its entire life and its status
// strictly progresses pending -> running -> {completed|failed}.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// AgentID is the agent this task is assigned to.
	AgentID string `json:"agent_id"`
	// ProjectID is the project the task belongs to.
	ProjectID string `json:"project_id"`
	// Type is the domain-scoped task type (e.g. "incident-response").
	Type string `json:"type"`
	// Priority orders this task relative to others for the same agent.
	Priority TaskPriority `json:"priority"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// Input is the opaque task payload.
	Input map[string]any `json:"input,omitempty"`
	// Output is the handler result, set on completion.
	Output map[string]any `json:"output,omitempty"`
	// Error contains the failure message if the task failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was enqueued.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the executor began dispatch, if started.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
