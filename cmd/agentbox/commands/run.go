package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/orchestrator"
	"github.com/slok/agentbox/internal/printer"
	"github.com/slok/agentbox/internal/relay"
	storageio "github.com/slok/agentbox/internal/storage/io"
	"github.com/slok/agentbox/internal/storage/sqlite"
)

type RunCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	// Task definition, either a YAML file or individual flags.
	taskFile  string
	repoURL   string
	branch    string
	objective string
	modelID   string
	template  string
	cpus      int
	memoryMB  int

	// Model service access, handed to the remote agent.
	modelAPIURL string
	modelAPIKey string

	engine   string
	deadline time.Duration
	format   string
}

// NewRunCommand returns the run command.
func NewRunCommand(rootCmd *RootCommand, app *kingpin.Application) *RunCommand {
	c := &RunCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("run", "Run a coding task in an isolated environment and stream its progress.")

	c.Cmd.Flag("file", "Task definition YAML file (takes precedence over the individual task flags).").Short('f').StringVar(&c.taskFile)
	c.Cmd.Flag("repo", "Target repository URL.").StringVar(&c.repoURL)
	c.Cmd.Flag("branch", "Target repository branch.").Default("main").StringVar(&c.branch)
	c.Cmd.Flag("objective", "Natural language coding objective.").StringVar(&c.objective)
	c.Cmd.Flag("model", "Model identifier for the agent.").Default("gpt-4").StringVar(&c.modelID)
	c.Cmd.Flag("template", "Environment template (image) to clone.").Default("ghcr.io/slok/agentbox-env:latest").StringVar(&c.template)
	c.Cmd.Flag("cpu", "Number of CPUs for the environment.").Default("2").IntVar(&c.cpus)
	c.Cmd.Flag("mem", "Memory in MB for the environment.").Default("4096").IntVar(&c.memoryMB)

	c.Cmd.Flag("model-api-url", "Model service base URL.").Envar("AGENTBOX_MODEL_API_URL").Required().StringVar(&c.modelAPIURL)
	c.Cmd.Flag("model-api-key", "Model service API key.").Envar("AGENTBOX_MODEL_API_KEY").StringVar(&c.modelAPIKey)

	c.Cmd.Flag("engine", "Environment engine type (docker, fake).").Default(engineDocker).EnumVar(&c.engine, engineDocker, engineFake)
	c.Cmd.Flag("deadline", "Global wall clock bound for the task.").Default("1h").DurationVar(&c.deadline)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c RunCommand) Name() string { return c.Cmd.FullCommand() }

func (c RunCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	taskCfg, err := c.taskConfig(ctx)
	if err != nil {
		return err
	}

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	engine, err := newEngine(c.engine, logger)
	if err != nil {
		return fmt.Errorf("could not create engine: %w", err)
	}

	progressRelay, err := relay.NewRelay(relay.RelayConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create relay: %w", err)
	}

	svc, err := orchestrator.NewService(orchestrator.ServiceConfig{
		Engine:       engine,
		Repository:   repo,
		Relay:        progressRelay,
		Logger:       logger,
		ModelAPIURL:  c.modelAPIURL,
		ModelAPIKey:  c.modelAPIKey,
		TaskDeadline: c.deadline,
	})
	if err != nil {
		return fmt.Errorf("could not create orchestrator: %w", err)
	}

	watch, err := svc.Submit(ctx, taskCfg)
	if err != nil {
		return fmt.Errorf("could not submit task: %w", err)
	}

	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintMessage(fmt.Sprintf("Task %s submitted", watch.TaskID)); err != nil {
		return err
	}

	// Stream progress until the task reaches a terminal state.
	for entry := range watch.Events {
		if err := p.PrintProgress(entry); err != nil {
			return fmt.Errorf("could not print progress: %w", err)
		}
	}
	<-watch.Done

	task := watch.Task()
	if err := p.PrintStatus(task); err != nil {
		return fmt.Errorf("could not print task: %w", err)
	}

	if task.Status != model.TaskStatusCompleted {
		return fmt.Errorf("task %s ended %s: %s", task.ID, task.Status, task.Error)
	}

	return nil
}

// taskConfig builds the task configuration from the YAML file when given,
// otherwise from the individual flags.
func (c RunCommand) taskConfig(ctx context.Context) (model.TaskConfig, error) {
	if c.taskFile != "" {
		abs, err := filepath.Abs(c.taskFile)
		if err != nil {
			return model.TaskConfig{}, fmt.Errorf("invalid task file path: %w", err)
		}
		loader := storageio.NewTaskYAMLRepository(os.DirFS(filepath.Dir(abs)))
		cfg, err := loader.GetConfig(ctx, filepath.Base(abs))
		if err != nil {
			return model.TaskConfig{}, fmt.Errorf("could not load task file: %w", err)
		}
		return cfg, nil
	}

	cfg := model.TaskConfig{
		RepositoryURL: c.repoURL,
		Branch:        c.branch,
		Objective:     c.objective,
		Model:         c.modelID,
		Template:      c.template,
		Resources: model.Resources{
			CPUs:     c.cpus,
			MemoryMB: c.memoryMB,
		},
	}
	if err := cfg.Validate(); err != nil {
		return model.TaskConfig{}, fmt.Errorf("invalid task configuration: %w", err)
	}
	return cfg, nil
}
