package fake

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/slok/agentbox/internal/environment"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
)

// CommandFunc produces the result of a command executed in a fake environment.
type CommandFunc func(envID, command string) *model.ExecStatus

// EngineConfig is the configuration for the fake engine.
type EngineConfig struct {
	// OnCommand is invoked for every submitted command. When nil every command
	// succeeds with empty output.
	OnCommand CommandFunc
	// OperationPolls is how many PollOperation calls an operation needs before
	// it reports done.
	OperationPolls int
	// Address is the address environments report once started.
	Address string
	Logger  log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.OnCommand == nil {
		c.OnCommand = func(_, _ string) *model.ExecStatus {
			return &model.ExecStatus{Done: true, ExitCode: 0}
		}
	}
	if c.OperationPolls <= 0 {
		c.OperationPolls = 1
	}
	if c.Address == "" {
		c.Address = "192.0.2.10"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "environment.Fake"})
	return nil
}

// Engine is a fake implementation of environment.Engine. It simulates the
// environment lifecycle without creating real containers or VMs, resolving
// commands through a configurable callback.
type Engine struct {
	onCommand CommandFunc
	opPolls   int
	address   string
	logger    log.Logger

	mu           sync.Mutex
	environments map[string]*model.Environment
	ops          map[string]int // Remaining polls until done.
	execs        map[string]*model.ExecStatus

	// DeleteCalls counts Delete invocations per environment id, so tests can
	// assert teardown happened exactly once.
	DeleteCalls map[string]int
	// StopCalls counts Stop invocations per environment id.
	StopCalls map[string]int
}

// NewEngine creates a new fake engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		onCommand:    cfg.OnCommand,
		opPolls:      cfg.OperationPolls,
		address:      cfg.Address,
		logger:       cfg.Logger,
		environments: map[string]*model.Environment{},
		ops:          map[string]int{},
		execs:        map[string]*model.ExecStatus{},
		DeleteCalls:  map[string]int{},
		StopCalls:    map[string]int{},
	}, nil
}

var _ environment.Engine = (*Engine)(nil)

// Clone simulates cloning a template.
func (e *Engine) Clone(ctx context.Context, template, name string) (*model.Environment, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	env := &model.Environment{
		ID:        id,
		Name:      name,
		Phase:     model.EnvironmentPhaseRequested,
		CreatedAt: time.Now().UTC(),
	}
	e.environments[id] = env

	opID := uuid.NewString()
	e.ops[opID] = e.opPolls

	e.logger.Debugf("Cloned fake environment %s from %s", id, template)

	envCopy := *env
	return &envCopy, opID, nil
}

// PollOperation resolves an operation after the configured number of polls.
func (e *Engine) PollOperation(ctx context.Context, opID string) (*model.OperationStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	remaining, ok := e.ops[opID]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", opID, model.ErrNotFound)
	}
	if remaining > 1 {
		e.ops[opID] = remaining - 1
		return &model.OperationStatus{Done: false}, nil
	}

	delete(e.ops, opID)
	return &model.OperationStatus{Done: true, OK: true}, nil
}

// Configure marks the environment as configured.
func (e *Engine) Configure(ctx context.Context, envID string, cfg model.EnvironmentConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, ok := e.environments[envID]
	if !ok {
		return fmt.Errorf("environment %s: %w", envID, model.ErrNotFound)
	}
	env.Phase = model.EnvironmentPhaseConfigured
	return nil
}

// Start marks the environment as running and assigns its fake address.
func (e *Engine) Start(ctx context.Context, envID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, ok := e.environments[envID]
	if !ok {
		return fmt.Errorf("environment %s: %w", envID, model.ErrNotFound)
	}
	env.Phase = model.EnvironmentPhaseRunning
	env.Address = e.address
	return nil
}

// QueryNetwork returns the fake address once the environment is running.
func (e *Engine) QueryNetwork(ctx context.Context, envID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	env, ok := e.environments[envID]
	if !ok {
		return "", fmt.Errorf("environment %s: %w", envID, model.ErrNotFound)
	}
	return env.Address, nil
}

// ExecStart resolves the command immediately through the callback.
func (e *Engine) ExecStart(ctx context.Context, envID string, command string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.environments[envID]; !ok {
		return "", fmt.Errorf("environment %s: %w", envID, model.ErrNotFound)
	}

	execID := uuid.NewString()
	e.execs[execID] = e.onCommand(envID, command)
	return execID, nil
}

// ExecStatus returns the precomputed command result.
func (e *Engine) ExecStatus(ctx context.Context, envID string, execID string) (*model.ExecStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	status, ok := e.execs[execID]
	if !ok {
		return nil, fmt.Errorf("exec %s: %w", execID, model.ErrNotFound)
	}
	if status.Done {
		delete(e.execs, execID)
	}
	statusCopy := *status
	return &statusCopy, nil
}

// Stop marks the environment as stopped.
func (e *Engine) Stop(ctx context.Context, envID string, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.StopCalls[envID]++

	env, ok := e.environments[envID]
	if !ok {
		return fmt.Errorf("environment %s: %w", envID, model.ErrNotFound)
	}
	env.Phase = model.EnvironmentPhaseStopped
	env.Address = ""
	return nil
}

// Delete destroys the environment.
func (e *Engine) Delete(ctx context.Context, envID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.DeleteCalls[envID]++

	env, ok := e.environments[envID]
	if !ok {
		return fmt.Errorf("environment %s: %w", envID, model.ErrNotFound)
	}
	env.Phase = model.EnvironmentPhaseDestroyed
	delete(e.environments, envID)
	return nil
}
