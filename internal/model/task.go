package model

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been accepted but not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusProvisioning indicates an environment is being created for the task.
	TaskStatusProvisioning TaskStatus = "provisioning"
	// TaskStatusRunning indicates the remote agent is working on the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleting indicates a terminal marker was observed and the
	// result is being retrieved.
	TaskStatusCompleting TaskStatus = "completing"
	// TaskStatusCompleted indicates the task finished and the result was retrieved.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed (including timeouts).
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled externally.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal returns true when no further transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Task represents one autonomous coding task against a remote repository.
// A task is owned by a single orchestrator flow for its lifetime and becomes
// read-only once it reaches a terminal status.
type Task struct {
	ID            string
	RepositoryURL string
	Branch        string
	Objective     string
	Model         string
	Status        TaskStatus

	// EnvironmentID is the id of the live environment leased for this task.
	// Empty before provisioning and after teardown. A task never holds two
	// live environments at the same time.
	EnvironmentID string

	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	// Progress is the ordered, append-only list of entries relayed from the
	// remote agent.
	Progress []ProgressEntry

	// Result is the structured outcome, present only on Completed tasks.
	Result *TaskResult

	// Error carries the human-readable reason for Failed and Cancelled tasks.
	Error string
}

// TaskConfig is the static configuration for submitting a task.
type TaskConfig struct {
	RepositoryURL string
	Branch        string
	Objective     string
	Model         string
	Template      string
	Resources     Resources
}

// Resources defines the compute resources for a task environment.
type Resources struct {
	CPUs     int
	MemoryMB int
}

// Validate validates the task configuration.
func (c *TaskConfig) Validate() error {
	if c.RepositoryURL == "" {
		return fmt.Errorf("repository url is required: %w", ErrNotValid)
	}
	if c.Branch == "" {
		return fmt.Errorf("branch is required: %w", ErrNotValid)
	}
	if c.Objective == "" {
		return fmt.Errorf("objective is required: %w", ErrNotValid)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required: %w", ErrNotValid)
	}
	if c.Template == "" {
		return fmt.Errorf("environment template is required: %w", ErrNotValid)
	}
	if c.Resources.CPUs <= 0 {
		return fmt.Errorf("cpus must be positive: %w", ErrNotValid)
	}
	if c.Resources.MemoryMB <= 0 {
		return fmt.Errorf("memory_mb must be positive: %w", ErrNotValid)
	}
	return nil
}

// TaskResult is the structured outcome the remote agent persists when it
// finishes a task.
type TaskResult struct {
	Success      bool     `json:"success"`
	Summary      string   `json:"summary,omitempty"`
	FilesChanged []string `json:"files_changed,omitempty"`
	Error        string   `json:"error,omitempty"`
}
