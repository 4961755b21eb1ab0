package lib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/slok/agentbox/internal/conventions"
	"github.com/slok/agentbox/internal/environment"
	"github.com/slok/agentbox/internal/environment/docker"
	"github.com/slok/agentbox/internal/environment/fake"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/orchestrator"
	"github.com/slok/agentbox/internal/relay"
	"github.com/slok/agentbox/internal/storage"
	"github.com/slok/agentbox/internal/storage/sqlite"
)

// Config configures the SDK client.
//
// All fields are optional except ModelAPIURL, which is only required to run
// tasks: a client without it can still list, inspect and remove tasks.
type Config struct {
	// DBPath is the SQLite database path.
	// Default: ~/.agentbox/agentbox.db.
	DBPath string

	// DataDir is the base directory for agentbox data.
	// Default: ~/.agentbox.
	DataDir string

	// Logger receives structured log output from the SDK.
	// Default: noop (silent). See the log sub-package for the interface.
	Logger log.Logger

	// Engine selects the environment engine for all operations.
	// Default: [EngineDocker]. Set to [EngineFake] for testing without real
	// infrastructure: the fake engine simulates an agent that completes every
	// task immediately.
	Engine EngineType

	// ModelAPIURL is the model service base URL handed to remote agents.
	// Required for [Client.RunTask].
	ModelAPIURL string

	// ModelAPIKey is the model service API key handed to remote agents.
	ModelAPIKey string

	// TaskDeadline is the global wall clock bound for a whole task.
	// Default: 1h.
	TaskDeadline time.Duration

	// PollInterval overrides the progress and provisioning polling cadences.
	// Mainly useful to speed up tests against the fake engine.
	PollInterval time.Duration
}

func (c *Config) defaults() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("could not get user home dir: %w", err)
		}
		c.DataDir = filepath.Join(home, conventions.DefaultDataDir)
	}

	if c.DBPath == "" {
		c.DBPath = conventions.DBPath(c.DataDir)
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	if c.Engine == "" {
		c.Engine = EngineDocker
	}

	return nil
}

// Client is the main SDK entry point for running and managing coding tasks
// programmatically.
//
// Create a Client with [New] and release its resources with [Client.Close].
// A Client is safe for concurrent use.
type Client struct {
	repo    storage.Repository
	engine  environment.Engine
	orch    *orchestrator.Service
	logger  log.Logger
	closeFn func() error
}

// New creates a new SDK client backed by a SQLite database.
//
// The caller must call [Client.Close] when done to release the database
// connection. Typically used with defer:
//
//	client, err := lib.New(ctx, lib.Config{ModelAPIURL: "https://api.openai.com"})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	engine, err := newEngine(cfg)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("could not create engine: %w", err)
	}

	// The orchestrator needs a model service to hand to remote agents. Without
	// one the client still serves the read and removal operations.
	var orch *orchestrator.Service
	if cfg.ModelAPIURL != "" {
		progressRelay, err := relay.NewRelay(relay.RelayConfig{Logger: cfg.Logger})
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("could not create relay: %w", err)
		}

		orch, err = orchestrator.NewService(orchestrator.ServiceConfig{
			Engine:            engine,
			Repository:        repo,
			Relay:             progressRelay,
			Logger:            cfg.Logger,
			ModelAPIURL:       cfg.ModelAPIURL,
			ModelAPIKey:       cfg.ModelAPIKey,
			TaskDeadline:      cfg.TaskDeadline,
			ProgressInterval:  cfg.PollInterval,
			OperationInterval: cfg.PollInterval,
			AddressInterval:   cfg.PollInterval,
		})
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("could not create orchestrator: %w", err)
		}
	}

	return &Client{
		repo:    repo,
		engine:  engine,
		orch:    orch,
		logger:  cfg.Logger,
		closeFn: repo.Close,
	}, nil
}

// Close releases resources held by the client, including the database connection.
// After Close returns, the client must not be used.
func (c *Client) Close() error {
	if c.closeFn != nil {
		return c.closeFn()
	}
	return nil
}

// newEngine creates the environment engine for the configured type.
func newEngine(cfg Config) (environment.Engine, error) {
	switch cfg.Engine {
	case EngineDocker:
		return docker.NewEngine(docker.EngineConfig{
			Logger: cfg.Logger,
		})
	case EngineFake:
		return fake.NewEngine(fake.EngineConfig{
			OnCommand: simulatedAgent(),
			Logger:    cfg.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported engine type: %s: %w", cfg.Engine, ErrNotValid)
	}
}

// simulatedAgent resolves the commands the orchestrator relays into a guest as
// if a remote agent had already completed the task. It keeps fake engine runs
// deterministic and terminal.
func simulatedAgent() fake.CommandFunc {
	const summary = "Simulated completion"

	feed := strings.Join([]string{
		"[00:00:01] [INFO] Iteration 1/50",
		`[00:00:02] [ACTION] 🔧 read_file: {"path": "README.md"}`,
		"[00:00:03] [SUCCESS] ✅ Task complete: " + summary,
		"[00:00:03] [DONE] " + model.ProgressMarkerComplete + " " + summary,
		"",
	}, "\n")
	result := fmt.Sprintf(`{"success": true, "summary": %q}`, summary)

	return func(_, command string) *model.ExecStatus {
		switch {
		case strings.Contains(command, conventions.GuestProgressFile):
			return &model.ExecStatus{Done: true, ExitCode: 0, Stdout: feed}
		case strings.Contains(command, conventions.GuestResultFile):
			return &model.ExecStatus{Done: true, ExitCode: 0, Stdout: result}
		default:
			return &model.ExecStatus{Done: true, ExitCode: 0}
		}
	}
}
