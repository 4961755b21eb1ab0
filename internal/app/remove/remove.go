package remove

import (
	"context"
	"errors"
	"fmt"

	"github.com/slok/agentbox/internal/environment"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage"
)

// ServiceConfig is the configuration for the remove service.
type ServiceConfig struct {
	Engine     environment.Engine
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}

	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service removes a task record, reclaiming any environment still attached to
// it.
type Service struct {
	engine environment.Engine
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new remove service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		engine: cfg.Engine,
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the remove request parameters.
type Request struct {
	// TaskID is the task id to remove.
	TaskID string
	// Force allows removing a task that is not in a terminal state.
	Force bool
}

// Run removes a task by id. Non-terminal tasks are refused unless Force is
// set; a leftover environment is reclaimed best effort before the record goes
// away.
func (s *Service) Run(ctx context.Context, req Request) (*model.Task, error) {
	s.logger.Debugf("removing task: %s (force: %v)", req.TaskID, req.Force)

	task, err := s.repo.GetTask(ctx, req.TaskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("task not found: %s: %w", req.TaskID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not get task: %w", err)
	}

	if !task.Status.IsTerminal() && !req.Force {
		return nil, fmt.Errorf("cannot remove non-terminal task without --force: %w", model.ErrNotValid)
	}

	// A task that still references an environment lost its teardown at some
	// point (crash, forced removal). Reclaim it best effort.
	if task.EnvironmentID != "" {
		s.logger.Infof("reclaiming leftover environment: %s", task.EnvironmentID)
		_ = s.engine.Stop(ctx, task.EnvironmentID, true)
		if err := s.engine.Delete(ctx, task.EnvironmentID); err != nil {
			s.logger.Warningf("could not delete environment %s: %v", task.EnvironmentID, err)
		}
	}

	if err := s.repo.DeleteTask(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("could not delete task: %w", err)
	}

	s.logger.Infof("removed task: %s", task.ID)
	return task, nil
}
