package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/slok/agentbox/internal/agent"
	"github.com/slok/agentbox/internal/capability"
	"github.com/slok/agentbox/internal/conventions"
	"github.com/slok/agentbox/internal/llm/openai"
	"github.com/slok/agentbox/internal/log"
	loglogrus "github.com/slok/agentbox/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

type cmdConfig struct {
	ConfigPath string
	Debug      bool
	NoLog      bool
}

// Run runs the in-guest agent runtime: it loads the injected task
// configuration, clones the target repository and drives the agent loop,
// reporting everything through the progress feed.
func Run(ctx context.Context, args []string) error {
	app := kingpin.New("agentbox-agent", "In-guest autonomous coding agent runtime.")
	app.DefaultEnvars()

	cfg := cmdConfig{}
	app.Flag("config", "Path to the injected task configuration file.").Default(conventions.GuestConfigPath()).StringVar(&cfg.ConfigPath)
	app.Flag("debug", "Enable debug mode.").BoolVar(&cfg.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&cfg.NoLog)

	if _, err := app.Parse(args[1:]); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	logger := getLogger(cfg)

	progress, err := agent.NewProgress(conventions.GuestProgressPath())
	if err != nil {
		return fmt.Errorf("could not create progress feed: %w", err)
	}

	taskCfg, err := agent.LoadConfig(cfg.ConfigPath)
	if err != nil {
		progress.Fail(fmt.Sprintf("Invalid task configuration: %v", err))
		return fmt.Errorf("could not load task configuration: %w", err)
	}
	logger = logger.WithValues(log.Kv{"task": taskCfg.TaskID})

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Agent loop.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := runAgent(ctx, taskCfg, progress, logger)
				if err != nil {
					progress.Fail(err.Error())
					return fmt.Errorf("agent failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

func runAgent(ctx context.Context, cfg agent.Config, progress *agent.Progress, logger log.Logger) error {
	progress.Info(fmt.Sprintf("Starting task %s", cfg.TaskID))

	progress.Info(fmt.Sprintf("Cloning %s (branch %s)", cfg.RepositoryURL, cfg.Branch))
	if err := agent.CloneWorkspace(ctx, cfg); err != nil {
		return fmt.Errorf("could not prepare workspace: %w", err)
	}
	progress.Success("Repository cloned")

	sandbox, err := capability.NewSandbox(capability.SandboxConfig{
		WorkspaceDir:   cfg.WorkspaceDir,
		MaxFileSize:    cfg.MaxFileSize,
		CommandTimeout: time.Duration(cfg.CommandTimeoutSeconds) * time.Second,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("could not create sandbox: %w", err)
	}

	registry, err := capability.NewRegistry(capability.RegistryConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create capability registry: %w", err)
	}

	caps := []capability.Capability{
		capability.NewReadFile(sandbox),
		capability.NewWriteFile(sandbox),
		capability.NewListFiles(sandbox),
		capability.NewSearchFiles(sandbox),
		capability.NewExecuteCommand(sandbox),
		capability.NewGitStatus(sandbox),
		capability.NewGitDiff(sandbox),
		capability.NewGitCommit(sandbox),
		capability.NewGitPush(sandbox, cfg.Branch),
		capability.NewTaskComplete(conventions.GuestResultPath()),
	}
	for _, c := range caps {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("could not register capability: %w", err)
		}
	}

	client, err := openai.NewClient(openai.ClientConfig{
		APIURL: cfg.ModelAPIURL,
		APIKey: cfg.ModelAPIKey,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create model client: %w", err)
	}

	ag, err := agent.NewAgent(agent.AgentConfig{
		TaskConfig: cfg,
		Client:     client,
		Registry:   registry,
		Progress:   progress,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create agent: %w", err)
	}

	return ag.Run(ctx)
}

// getLogger returns the application logger.
func getLogger(cfg cmdConfig) log.Logger {
	if cfg.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = os.Stderr // Stdout belongs to the progress feed echo.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if cfg.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}
	logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{DisableColors: true})

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
