package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/agentbox/internal/conventions"
	"github.com/slok/agentbox/internal/environment"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/relay"
	"github.com/slok/agentbox/internal/storage"
)

// ServiceConfig is the configuration for the orchestrator service.
type ServiceConfig struct {
	Engine     environment.Engine
	Repository storage.Repository
	Relay      *relay.Relay
	Logger     log.Logger

	// ModelAPIURL and ModelAPIKey are handed to the remote agent so it can
	// reach the model service.
	ModelAPIURL string
	ModelAPIKey string

	// ProvisionTimeout bounds the clone operation polling.
	ProvisionTimeout time.Duration
	// AddressTimeout bounds waiting for the environment address. Hitting it is
	// not fatal: the task proceeds without address and downstream calls fail
	// fast.
	AddressTimeout time.Duration
	// ExecTimeout is the ceiling for every single relayed command.
	ExecTimeout time.Duration
	// TaskDeadline is the global wall clock bound for a whole task.
	TaskDeadline time.Duration
	// ProgressInterval is the progress feed polling cadence.
	ProgressInterval time.Duration
	// OperationInterval is the provisioning operation polling cadence.
	OperationInterval time.Duration
	// AddressInterval is the address polling cadence.
	AddressInterval time.Duration
}

func (c *ServiceConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Relay == nil {
		return fmt.Errorf("relay is required")
	}
	if c.ModelAPIURL == "" {
		return fmt.Errorf("model api url is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "orchestrator.Service"})

	if c.ProvisionTimeout == 0 {
		c.ProvisionTimeout = 5 * time.Minute
	}
	if c.AddressTimeout == 0 {
		c.AddressTimeout = 2 * time.Minute
	}
	if c.ExecTimeout == 0 {
		c.ExecTimeout = time.Minute
	}
	if c.TaskDeadline == 0 {
		c.TaskDeadline = time.Hour
	}
	if c.ProgressInterval == 0 {
		c.ProgressInterval = 3 * time.Second
	}
	if c.OperationInterval == 0 {
		c.OperationInterval = 2 * time.Second
	}
	if c.AddressInterval == 0 {
		c.AddressInterval = 5 * time.Second
	}
	return nil
}

// Service owns the task lifecycle state machine. Each submitted task gets its
// own flow goroutine that drives every transition for that task: there is no
// cross-task shared mutable state beyond the id-keyed registry.
type Service struct {
	engine environment.Engine
	repo   storage.Repository
	relay  *relay.Relay
	logger log.Logger
	cfg    ServiceConfig

	mu    sync.Mutex
	flows map[string]*flow
}

type flow struct {
	cancel context.CancelFunc
	watch  *Watch
}

// Watch is the caller's view over one running task: a stream of progress
// entries and the final task record.
type Watch struct {
	TaskID string
	// Events receives relayed progress entries in append order. It is closed
	// once the task reaches a terminal state.
	Events <-chan model.ProgressEntry
	// Done is closed after the terminal task has been recorded.
	Done <-chan struct{}

	events chan model.ProgressEntry
	done   chan struct{}

	mu   sync.Mutex
	task model.Task
}

// Task returns the task record. It is only final after Done is closed.
func (w *Watch) Task() model.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.task
}

func (w *Watch) setTask(t model.Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.task = t
}

// NewService creates a new orchestrator service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		engine: cfg.Engine,
		repo:   cfg.Repository,
		relay:  cfg.Relay,
		logger: cfg.Logger,
		cfg:    cfg,
		flows:  map[string]*flow{},
	}, nil
}

// Submit validates and registers a new task and starts its owning flow. It
// returns immediately: progress and the final state are observed through the
// returned Watch.
func (s *Service) Submit(ctx context.Context, cfg model.TaskConfig) (*Watch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task config: %w", err)
	}

	task := model.Task{
		ID:            ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		RepositoryURL: cfg.RepositoryURL,
		Branch:        cfg.Branch,
		Objective:     cfg.Objective,
		Model:         cfg.Model,
		Status:        model.TaskStatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("could not save task: %w", err)
	}

	flowCtx, cancel := context.WithCancel(ctx)
	w := &Watch{
		TaskID: task.ID,
		events: make(chan model.ProgressEntry, 128),
		done:   make(chan struct{}),
	}
	w.Events = w.events
	w.Done = w.done
	w.setTask(task)

	s.mu.Lock()
	s.flows[task.ID] = &flow{cancel: cancel, watch: w}
	s.mu.Unlock()

	go s.runTask(flowCtx, task, cfg, w)

	s.logger.Infof("Submitted task %s (%s@%s)", task.ID, cfg.RepositoryURL, cfg.Branch)
	return w, nil
}

// Cancel requests cancellation of a running task. The owning flow observes it
// at its next check point, transitions the task to cancelled and tears the
// environment down.
func (s *Service) Cancel(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flows[taskID]
	if !ok {
		return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}
	f.cancel()
	return nil
}

// runTask drives one task from Pending to a terminal state. Teardown is
// guaranteed on every exit path once an environment has been requested.
func (s *Service) runTask(ctx context.Context, task model.Task, cfg model.TaskConfig, w *Watch) {
	logger := s.logger.WithValues(log.Kv{"task": task.ID})
	start := time.Now()

	var env *model.Environment

	defer func() {
		if env != nil {
			s.teardown(task.ID, env.ID, logger)
			task.EnvironmentID = ""
		}

		now := time.Now().UTC()
		task.CompletedAt = &now
		s.persist(task, logger)
		w.setTask(task)

		s.mu.Lock()
		delete(s.flows, task.ID)
		s.mu.Unlock()

		close(w.events)
		close(w.done)
	}()

	fail := func(err error) {
		if errors.Is(err, context.Canceled) {
			task.Status = model.TaskStatusCancelled
			task.Error = "task cancelled"
			logger.Infof("Task cancelled")
			return
		}
		task.Status = model.TaskStatusFailed
		task.Error = err.Error()
		logger.Errorf("Task failed: %v", err)
	}

	// Pending -> Provisioning.
	task.Status = model.TaskStatusProvisioning
	s.persist(task, logger)
	w.setTask(task)

	var err error
	env, err = s.provision(ctx, &task, cfg, logger)
	if err != nil {
		fail(fmt.Errorf("provisioning failed: %w", err))
		return
	}
	task.EnvironmentID = env.ID
	s.persist(task, logger)

	accessor := environment.NewAccessor(s.engine, env)

	if err := s.injectConfig(ctx, accessor, task, cfg); err != nil {
		fail(fmt.Errorf("could not inject task configuration: %w", err))
		return
	}
	if err := s.startAgent(ctx, accessor); err != nil {
		fail(fmt.Errorf("could not start remote agent: %w", err))
		return
	}

	// Provisioning -> Running.
	now := time.Now().UTC()
	task.StartedAt = &now
	task.Status = model.TaskStatusRunning
	s.persist(task, logger)
	w.setTask(task)
	logger.Infof("Remote agent running in environment %s", env.ID)

	terminal, err := s.streamProgress(ctx, accessor, &task, w, start, logger)
	if err != nil {
		fail(err)
		return
	}

	if !terminal.Done {
		// The deadline elapsed without a terminal marker.
		fail(fmt.Errorf("task did not complete within %s: %w", s.cfg.TaskDeadline, model.ErrTimeout))
		return
	}

	// Running -> Completing.
	task.Status = model.TaskStatusCompleting
	s.persist(task, logger)
	w.setTask(task)

	result, err := s.retrieveResult(ctx, accessor)
	if err != nil {
		fail(fmt.Errorf("could not retrieve task result: %w", err))
		return
	}
	task.Result = result

	if !terminal.Success {
		reason := terminal.Reason
		if reason == "" {
			reason = "remote agent reported failure"
		}
		fail(errors.New(reason))
		return
	}

	// Completing -> Completed.
	task.Status = model.TaskStatusCompleted
	logger.Infof("Task completed: %s", result.Summary)
}

// provision runs the full provisioning protocol: clone the template, wait for
// the operation, configure resources, start and wait for an address. Address
// absence is non-fatal.
func (s *Service) provision(ctx context.Context, task *model.Task, cfg model.TaskConfig, logger log.Logger) (*model.Environment, error) {
	name := fmt.Sprintf("agent-%s", strings.ToLower(task.ID[:8]))

	env, opID, err := s.engine.Clone(ctx, cfg.Template, name)
	if err != nil {
		return nil, fmt.Errorf("could not clone template %s: %w", cfg.Template, err)
	}
	env.TaskID = task.ID
	logger.Infof("Provisioning environment %s from template %s", env.ID, cfg.Template)

	// From this point on the environment must always be torn down, even when
	// provisioning fails: the caller owns teardown as soon as we return the
	// environment, so every error path returns it too.
	if err := s.waitOperation(ctx, opID); err != nil {
		return env, err
	}

	err = s.engine.Configure(ctx, env.ID, model.EnvironmentConfig{
		Resources: cfg.Resources,
		Tag:       fmt.Sprintf("agentbox,task-%s", task.ID),
	})
	if err != nil {
		return env, fmt.Errorf("could not configure environment: %w", err)
	}
	env.Phase = model.EnvironmentPhaseConfigured

	if err := s.engine.Start(ctx, env.ID); err != nil {
		return env, fmt.Errorf("could not start environment: %w", err)
	}
	env.Phase = model.EnvironmentPhaseRunning

	addr, err := s.waitAddress(ctx, env.ID)
	if err != nil {
		return env, err
	}
	if addr == "" {
		logger.Warningf("Environment %s got no address within %s, downstream calls will fail fast", env.ID, s.cfg.AddressTimeout)
	}
	env.Address = addr

	return env, nil
}

func (s *Service) waitOperation(ctx context.Context, opID string) error {
	deadline := time.Now().Add(s.cfg.ProvisionTimeout)
	for {
		status, err := s.engine.PollOperation(ctx, opID)
		if err != nil {
			return fmt.Errorf("could not poll operation %s: %w", opID, err)
		}
		if status.Done {
			if !status.OK {
				return fmt.Errorf("provisioning operation failed: %s", status.Message)
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("provisioning operation %s did not finish within %s: %w", opID, s.cfg.ProvisionTimeout, model.ErrTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.OperationInterval):
		}
	}
}

func (s *Service) waitAddress(ctx context.Context, envID string) (string, error) {
	deadline := time.Now().Add(s.cfg.AddressTimeout)
	for {
		addr, err := s.engine.QueryNetwork(ctx, envID)
		if err == nil && addr != "" {
			return addr, nil
		}

		if time.Now().After(deadline) {
			// Non-fatal: the task proceeds without address.
			return "", nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.cfg.AddressInterval):
		}
	}
}

// agentConfig is the JSON configuration artifact injected into the guest.
type agentConfig struct {
	TaskID        string `json:"task_id"`
	RepositoryURL string `json:"repository_url"`
	Branch        string `json:"branch"`
	Objective     string `json:"objective"`
	Model         string `json:"model"`
	ModelAPIURL   string `json:"model_api_url"`
	ModelAPIKey   string `json:"model_api_key"`
}

func (s *Service) injectConfig(ctx context.Context, accessor environment.Accessor, task model.Task, cfg model.TaskConfig) error {
	payload, err := json.Marshal(agentConfig{
		TaskID:        task.ID,
		RepositoryURL: cfg.RepositoryURL,
		Branch:        cfg.Branch,
		Objective:     cfg.Objective,
		Model:         cfg.Model,
		ModelAPIURL:   s.cfg.ModelAPIURL,
		ModelAPIKey:   s.cfg.ModelAPIKey,
	})
	if err != nil {
		return fmt.Errorf("could not marshal agent config: %w", err)
	}

	// Single quoted for the guest shell, with embedded single quotes escaped.
	quoted := strings.ReplaceAll(string(payload), "'", `'\''`)
	command := fmt.Sprintf("mkdir -p %s && echo '%s' > %s", conventions.GuestDir, quoted, conventions.GuestConfigPath())

	result, err := accessor.Exec(ctx, command, s.cfg.ExecTimeout)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("config write exited with code %d: %s", result.ExitCode, result.Stderr)
	}
	return nil
}

func (s *Service) startAgent(ctx context.Context, accessor environment.Accessor) error {
	command := fmt.Sprintf("cd %s && nohup %s > %s 2>&1 &", conventions.GuestDir, conventions.GuestAgentBinary, conventions.GuestOutputPath())

	result, err := accessor.Exec(ctx, command, s.cfg.ExecTimeout)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("agent launch exited with code %d: %s", result.ExitCode, result.Stderr)
	}
	return nil
}

// streamProgress polls the progress feed until a terminal marker shows up, the
// deadline elapses or the flow context is cancelled. New entries are appended
// to the task and forwarded to the watch.
func (s *Service) streamProgress(ctx context.Context, accessor environment.Accessor, task *model.Task, w *Watch, start time.Time, logger log.Logger) (relay.Terminal, error) {
	feed := relay.FeedReaderFunc(func(ctx context.Context) (string, error) {
		result, err := accessor.Exec(ctx, fmt.Sprintf("cat %s 2>/dev/null || true", conventions.GuestProgressPath()), s.cfg.ExecTimeout)
		if err != nil {
			return "", err
		}
		return result.Stdout, nil
	})

	cursor := 0
	for {
		if time.Since(start) > s.cfg.TaskDeadline {
			return relay.Terminal{}, nil
		}

		entries, newCursor, terminal, err := s.relay.Poll(ctx, feed, cursor)
		if err != nil {
			if errors.Is(err, model.ErrUnreachable) || errors.Is(err, context.Canceled) {
				return relay.Terminal{}, err
			}
			// Transient read failures don't kill the task, the next poll
			// retries from the same cursor.
			logger.Warningf("Could not poll progress feed: %v", err)
		} else {
			cursor = newCursor
			for _, entry := range entries {
				task.Progress = append(task.Progress, entry)
				select {
				case w.events <- entry:
				case <-ctx.Done():
					return relay.Terminal{}, ctx.Err()
				}
			}
			if len(entries) > 0 {
				s.persist(*task, logger)
			}
			if terminal.Done {
				return terminal, nil
			}
		}

		select {
		case <-ctx.Done():
			return relay.Terminal{}, ctx.Err()
		case <-time.After(s.cfg.ProgressInterval):
		}
	}
}

func (s *Service) retrieveResult(ctx context.Context, accessor environment.Accessor) (*model.TaskResult, error) {
	result, err := accessor.Exec(ctx, fmt.Sprintf("cat %s 2>/dev/null || echo '{}'", conventions.GuestResultPath()), s.cfg.ExecTimeout)
	if err != nil {
		return nil, err
	}

	taskResult := &model.TaskResult{}
	if err := json.Unmarshal([]byte(result.Stdout), taskResult); err != nil {
		return nil, fmt.Errorf("could not parse result artifact: %w", err)
	}
	return taskResult, nil
}

// teardown reclaims the environment: graceful stop, forced stop on failure and
// unconditional deletion. It runs on its own context so cancellation never
// skips it. Only deletion failure is a real teardown problem and even that
// never changes the task's terminal state.
func (s *Service) teardown(taskID, envID string, logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := s.engine.Stop(ctx, envID, false); err != nil {
		logger.Warningf("Graceful stop of environment %s failed: %v", envID, err)
		if err := s.engine.Stop(ctx, envID, true); err != nil {
			logger.Warningf("Forced stop of environment %s failed: %v", envID, err)
		}
	}

	if err := s.engine.Delete(ctx, envID); err != nil {
		logger.Errorf("Could not delete environment %s, manual cleanup may be required: %v", envID, err)
		return
	}

	logger.Infof("Environment %s destroyed", envID)
}

func (s *Service) persist(task model.Task, logger log.Logger) {
	// Persistence is best effort: losing a state snapshot must not interfere
	// with the task flow itself.
	if err := s.repo.UpdateTask(context.Background(), task); err != nil {
		logger.Warningf("Could not persist task %s: %v", task.ID, err)
	}
}
