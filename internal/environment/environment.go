package environment

import (
	"context"
	"fmt"
	"time"

	"github.com/slok/agentbox/internal/model"
)

// Engine is the interface for environment lifecycle management. It mirrors the
// provisioning provider contract: every mutating call is addressed by the
// environment id, long operations are polled by an operation id and in-guest
// commands are polled by an exec id.
type Engine interface {
	// Clone creates a new environment from a template. The returned operation
	// id must be polled with PollOperation until it finishes.
	Clone(ctx context.Context, template, name string) (env *model.Environment, opID string, err error)

	// PollOperation returns the status of an asynchronous provider operation.
	PollOperation(ctx context.Context, opID string) (*model.OperationStatus, error)

	// Configure applies resources and the task-correlating tag to a cloned
	// environment.
	Configure(ctx context.Context, envID string, cfg model.EnvironmentConfig) error

	// Start starts the environment.
	Start(ctx context.Context, envID string) error

	// QueryNetwork returns the environment's non-loopback address, or an empty
	// string when the guest has not reported one yet.
	QueryNetwork(ctx context.Context, envID string) (string, error)

	// ExecStart submits a shell command to the guest and returns an exec id to
	// poll with ExecStatus.
	ExecStart(ctx context.Context, envID string, command string) (execID string, err error)

	// ExecStatus returns the status of a submitted command.
	ExecStatus(ctx context.Context, envID string, execID string) (*model.ExecStatus, error)

	// Stop stops the environment. With force it does not wait for a graceful
	// guest shutdown.
	Stop(ctx context.Context, envID string, force bool) error

	// Delete destroys the environment irreversibly.
	Delete(ctx context.Context, envID string) error
}

const execPollInterval = 1 * time.Second

// Accessor executes commands against one specific environment. It pre-binds
// the engine and environment so callers don't deal with ids or exec polling.
type Accessor interface {
	// Exec submits a command, polls for its completion with a short backoff
	// and returns the final result. It never blocks past the given ceiling:
	// past it the call fails with model.ErrTimeout.
	Exec(ctx context.Context, command string, timeout time.Duration) (*model.ExecResult, error)
}

// NewAccessor creates an Accessor bound to a specific environment. The address
// is checked up front: an accessor over an address-less environment fails
// every call fast with model.ErrUnreachable.
func NewAccessor(engine Engine, env *model.Environment) Accessor {
	return &accessor{
		engine: engine,
		envID:  env.ID,
		addr:   env.Address,
	}
}

type accessor struct {
	engine Engine
	envID  string
	addr   string
}

func (a *accessor) Exec(ctx context.Context, command string, timeout time.Duration) (*model.ExecResult, error) {
	if a.addr == "" {
		return nil, fmt.Errorf("environment %s has no address: %w", a.envID, model.ErrUnreachable)
	}

	execID, err := a.engine.ExecStart(ctx, a.envID, command)
	if err != nil {
		return nil, fmt.Errorf("could not submit command: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		status, err := a.engine.ExecStatus(ctx, a.envID, execID)
		if err != nil {
			return nil, fmt.Errorf("could not poll command %s: %w", execID, err)
		}
		if status.Done {
			return &model.ExecResult{
				ExitCode: status.ExitCode,
				Stdout:   status.Stdout,
				Stderr:   status.Stderr,
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("command %s did not finish within %s: %w", execID, timeout, model.ErrTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(execPollInterval):
		}
	}
}
