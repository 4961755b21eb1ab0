package status

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage"
)

// ServiceConfig is the configuration for the status service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service retrieves detailed task status.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the status request parameters.
type Request struct {
	// TaskID is the task id to query, a unique prefix is enough.
	TaskID string
}

// Run retrieves a task by id. Exact lookup first, unique prefix match as a
// fallback so short ids from `list` output work directly.
func (s *Service) Run(ctx context.Context, req Request) (*model.Task, error) {
	s.logger.Debugf("getting status for task: %s", req.TaskID)

	task, err := s.repo.GetTask(ctx, req.TaskID)
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not get task: %w", err)
	}

	task, err = s.findByPrefix(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Service) findByPrefix(ctx context.Context, prefix string) (*model.Task, error) {
	tasks, err := s.repo.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list tasks: %w", err)
	}

	var match *model.Task
	for i := range tasks {
		if !strings.HasPrefix(tasks[i].ID, strings.ToUpper(prefix)) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("task id prefix %s is ambiguous: %w", prefix, model.ErrNotValid)
		}
		match = &tasks[i]
	}

	if match == nil {
		return nil, fmt.Errorf("task not found: %s: %w", prefix, model.ErrNotFound)
	}
	return match, nil
}
