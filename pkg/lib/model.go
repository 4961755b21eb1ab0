package lib

import (
	"errors"
	"time"

	"github.com/slok/agentbox/internal/model"
)

// EngineType identifies the environment engine implementation.
type EngineType string

const (
	// EngineDocker runs task environments as Docker containers.
	// Requires a reachable Docker daemon.
	EngineDocker EngineType = "docker"

	// EngineFake uses an in-memory simulation (no real environments). The fake
	// engine answers every relayed command as if the remote agent had already
	// completed the task. Use this for unit testing without infrastructure
	// dependencies.
	EngineFake EngineType = "fake"
)

// Sentinel errors returned by the SDK, inspectable with [errors.Is].
var (
	// ErrNotFound indicates the resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a resource with the same id already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid indicates invalid input or an invalid operation.
	ErrNotValid = errors.New("not valid")
	// ErrTimeout indicates a bounded wait hit its ceiling.
	ErrTimeout = errors.New("timed out")
)

// TaskStatus represents the lifecycle state of a task.
//
// The lifecycle is:
//
//	pending -> provisioning -> running -> completing -> completed
//
// A task can transition to failed or cancelled from any non-terminal state.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been accepted but not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusProvisioning indicates an environment is being created for the task.
	TaskStatusProvisioning TaskStatus = "provisioning"
	// TaskStatusRunning indicates the remote agent is working on the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleting indicates the result is being retrieved.
	TaskStatusCompleting TaskStatus = "completing"
	// TaskStatusCompleted indicates the task finished and the result was retrieved.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed (including deadline hits).
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task represents a coding task returned by the SDK.
//
// This is a read-only snapshot of the task state at the time of the API call.
// Use [Client.GetTask] to get the latest state.
type Task struct {
	// ID is the unique identifier (ULID) assigned at submission.
	ID string
	// RepositoryURL is the target repository.
	RepositoryURL string
	// Branch is the target branch.
	Branch string
	// Objective is the natural language coding objective.
	Objective string
	// Model is the model identifier the remote agent uses.
	Model string
	// Status is the current lifecycle state.
	Status TaskStatus
	// EnvironmentID is the id of the live environment leased for this task.
	// Empty before provisioning and after teardown.
	EnvironmentID string
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time
	// StartedAt is when the remote agent started. Nil if it never started.
	StartedAt *time.Time
	// CompletedAt is when the task reached a terminal state. Nil until then.
	CompletedAt *time.Time
	// Progress is the ordered list of entries relayed from the remote agent.
	Progress []ProgressEntry
	// Result is the structured outcome. Only present on completed tasks.
	Result *TaskResult
	// Error is the human-readable reason for failed and cancelled tasks.
	Error string
}

// TaskResult is the structured outcome the remote agent reports when it
// finishes a task.
type TaskResult struct {
	// Success indicates the agent considered the objective met.
	Success bool
	// Summary is the agent's description of what was done.
	Summary string
	// FilesChanged lists the repository files the agent touched.
	FilesChanged []string
	// Error is the agent-reported failure reason, if any.
	Error string
}

// ProgressKind tags a progress entry with its kind.
type ProgressKind string

const (
	ProgressKindInfo            ProgressKind = "info"
	ProgressKindAction          ProgressKind = "action"
	ProgressKindThought         ProgressKind = "thought"
	ProgressKindSuccess         ProgressKind = "success"
	ProgressKindError           ProgressKind = "error"
	ProgressKindTerminalSuccess ProgressKind = "terminal-success"
	ProgressKindTerminalFailure ProgressKind = "terminal-failure"
)

// ProgressEntry is one relayed line of the remote agent's progress feed.
type ProgressEntry struct {
	// Timestamp is the HH:MM:SS tag of the feed line, empty when it carried none.
	Timestamp string
	// Kind is the entry kind.
	Kind ProgressKind
	// Message is the entry text.
	Message string
}

// Resources defines the compute resources for a task environment.
type Resources struct {
	// CPUs is the number of CPUs.
	CPUs int
	// MemoryMB is the memory allocation in megabytes.
	MemoryMB int
}

// RunTaskOpts configures task submission.
//
// RepositoryURL and Objective are required, everything else has defaults.
type RunTaskOpts struct {
	// RepositoryURL is the target repository URL (required).
	RepositoryURL string
	// Objective is the natural language coding objective (required).
	Objective string
	// Branch is the target branch. Default: "main".
	Branch string
	// Model is the model identifier for the agent. Default: "gpt-4".
	Model string
	// Template is the environment template (image) to clone.
	// Default: "ghcr.io/slok/agentbox-env:latest".
	Template string
	// Resources defines compute resources. Default: 2 CPUs, 4096 MB.
	Resources Resources
}

// ListTasksOpts configures task listing.
//
// Pass nil to [Client.ListTasks] to list all tasks.
type ListTasksOpts struct {
	// Status filters tasks by status. Nil means all statuses.
	Status *TaskStatus
}

// --- Internal conversion helpers ---

func toInternalTaskConfig(opts RunTaskOpts) model.TaskConfig {
	cfg := model.TaskConfig{
		RepositoryURL: opts.RepositoryURL,
		Objective:     opts.Objective,
		Branch:        opts.Branch,
		Model:         opts.Model,
		Template:      opts.Template,
		Resources: model.Resources{
			CPUs:     opts.Resources.CPUs,
			MemoryMB: opts.Resources.MemoryMB,
		},
	}

	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	if cfg.Template == "" {
		cfg.Template = "ghcr.io/slok/agentbox-env:latest"
	}
	if cfg.Resources.CPUs == 0 {
		cfg.Resources.CPUs = 2
	}
	if cfg.Resources.MemoryMB == 0 {
		cfg.Resources.MemoryMB = 4096
	}

	return cfg
}

func fromInternalTask(t model.Task) Task {
	task := Task{
		ID:            t.ID,
		RepositoryURL: t.RepositoryURL,
		Branch:        t.Branch,
		Objective:     t.Objective,
		Model:         t.Model,
		Status:        TaskStatus(t.Status),
		EnvironmentID: t.EnvironmentID,
		CreatedAt:     t.CreatedAt,
		StartedAt:     t.StartedAt,
		CompletedAt:   t.CompletedAt,
		Progress:      fromInternalProgressList(t.Progress),
		Error:         t.Error,
	}

	if t.Result != nil {
		task.Result = &TaskResult{
			Success:      t.Result.Success,
			Summary:      t.Result.Summary,
			FilesChanged: t.Result.FilesChanged,
			Error:        t.Result.Error,
		}
	}

	return task
}

func fromInternalTaskList(ts []model.Task) []Task {
	result := make([]Task, len(ts))
	for i, t := range ts {
		result[i] = fromInternalTask(t)
	}
	return result
}

func fromInternalProgress(e model.ProgressEntry) ProgressEntry {
	return ProgressEntry{
		Timestamp: e.Timestamp,
		Kind:      ProgressKind(e.Kind),
		Message:   e.Message,
	}
}

func fromInternalProgressList(es []model.ProgressEntry) []ProgressEntry {
	if es == nil {
		return nil
	}
	result := make([]ProgressEntry, len(es))
	for i, e := range es {
		result[i] = fromInternalProgress(e)
	}
	return result
}

func toInternalStatusFilter(opts *ListTasksOpts) *model.TaskStatus {
	if opts == nil || opts.Status == nil {
		return nil
	}
	s := model.TaskStatus(*opts.Status)
	return &s
}

func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case isInternalError(err, model.ErrNotFound):
		return joinErrors(err, ErrNotFound)
	case isInternalError(err, model.ErrAlreadyExists):
		return joinErrors(err, ErrAlreadyExists)
	case isInternalError(err, model.ErrNotValid):
		return joinErrors(err, ErrNotValid)
	case isInternalError(err, model.ErrTimeout):
		return joinErrors(err, ErrTimeout)
	default:
		return err
	}
}

func isInternalError(err, target error) bool {
	for {
		if err == target {
			return true
		}
		unwrapped := unwrapSingle(err)
		if unwrapped == nil {
			return false
		}
		err = unwrapped
	}
}

func unwrapSingle(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

func joinErrors(original, sentinel error) error {
	return &mappedError{original: original, sentinel: sentinel}
}

type mappedError struct {
	original error
	sentinel error
}

func (e *mappedError) Error() string { return e.original.Error() }

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) Unwrap() error { return e.original }
