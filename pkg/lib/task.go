package lib

import (
	"context"
	"fmt"

	"github.com/slok/agentbox/internal/app/list"
	"github.com/slok/agentbox/internal/app/remove"
	"github.com/slok/agentbox/internal/app/status"
	"github.com/slok/agentbox/internal/orchestrator"
)

// TaskRun is the caller's view over one running task: a stream of progress
// entries and the final task record.
type TaskRun struct {
	// TaskID is the id assigned to the submitted task.
	TaskID string
	// Events receives relayed progress entries in append order. It is closed
	// once the task reaches a terminal state.
	Events <-chan ProgressEntry
	// Done is closed after the terminal task has been recorded.
	Done <-chan struct{}

	watch *orchestrator.Watch
}

// Task returns the task record. It is only final after Done is closed.
func (r *TaskRun) Task() Task {
	return fromInternalTask(r.watch.Task())
}

// RunTask submits a new coding task and returns immediately. Progress and the
// final state are observed through the returned [TaskRun].
//
// The given context owns the whole task lifecycle: cancelling it cancels the
// task (the environment is still torn down). Returns [ErrNotValid] if the
// client has no ModelAPIURL configured or the options are invalid.
func (c *Client) RunTask(ctx context.Context, opts RunTaskOpts) (*TaskRun, error) {
	if c.orch == nil {
		return nil, fmt.Errorf("client has no model api url configured: %w", ErrNotValid)
	}

	watch, err := c.orch.Submit(ctx, toInternalTaskConfig(opts))
	if err != nil {
		return nil, mapError(fmt.Errorf("could not submit task: %w", err))
	}

	events := make(chan ProgressEntry, cap(watch.Events))
	go func() {
		defer close(events)
		for entry := range watch.Events {
			events <- fromInternalProgress(entry)
		}
	}()

	return &TaskRun{
		TaskID: watch.TaskID,
		Events: events,
		Done:   watch.Done,
		watch:  watch,
	}, nil
}

// CancelTask cancels a running task. The owning flow stops at the next
// transition and the environment is torn down.
//
// Returns [ErrNotFound] if no task with that id is currently running.
func (c *Client) CancelTask(taskID string) error {
	if c.orch == nil {
		return fmt.Errorf("client has no model api url configured: %w", ErrNotValid)
	}
	return mapError(c.orch.Cancel(taskID))
}

// ListTasks returns all stored tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, opts *ListTasksOpts) ([]Task, error) {
	svc, err := list.NewService(list.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	tasks, err := svc.Run(ctx, list.Request{StatusFilter: toInternalStatusFilter(opts)})
	if err != nil {
		return nil, mapError(err)
	}

	return fromInternalTaskList(tasks), nil
}

// GetTask returns a task by id. A unique id prefix is accepted.
//
// Returns [ErrNotFound] if the task does not exist and [ErrNotValid] if the
// prefix is ambiguous.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	svc, err := status.NewService(status.ServiceConfig{
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create service: %w", err)
	}

	task, err := svc.Run(ctx, status.Request{TaskID: taskID})
	if err != nil {
		return nil, mapError(err)
	}

	result := fromInternalTask(*task)
	return &result, nil
}

// RemoveTask removes a task record. Non-terminal tasks are refused unless
// force is set. A leftover environment still attached to the task is reclaimed
// best effort before the record goes away.
//
// Returns [ErrNotFound] if the task does not exist and [ErrNotValid] when
// refusing a non-terminal task.
func (c *Client) RemoveTask(ctx context.Context, taskID string, force bool) error {
	svc, err := remove.NewService(remove.ServiceConfig{
		Engine:     c.engine,
		Repository: c.repo,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	_, err = svc.Run(ctx, remove.Request{TaskID: taskID, Force: force})
	return mapError(err)
}
