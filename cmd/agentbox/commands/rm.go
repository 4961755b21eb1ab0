package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/agentbox/internal/app/remove"
	"github.com/slok/agentbox/internal/printer"
	"github.com/slok/agentbox/internal/storage/sqlite"
)

type RemoveCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
	engine string
	force  bool
}

// NewRemoveCommand returns the remove command.
func NewRemoveCommand(rootCmd *RootCommand, app *kingpin.Application) *RemoveCommand {
	c := &RemoveCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("rm", "Remove a task record, reclaiming any leftover environment.")
	c.Cmd.Arg("task-id", "Task id.").Required().StringVar(&c.taskID)
	c.Cmd.Flag("engine", "Environment engine type (docker, fake).").Default(engineDocker).EnumVar(&c.engine, engineDocker, engineFake)
	c.Cmd.Flag("force", "Force removal of a non-terminal task.").BoolVar(&c.force)

	return c
}

func (c RemoveCommand) Name() string { return c.Cmd.FullCommand() }

func (c RemoveCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Initialize storage (SQLite).
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.rootCmd.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create repository: %w", err)
	}
	defer repo.Close()

	eng, err := newEngine(c.engine, logger)
	if err != nil {
		return fmt.Errorf("could not create engine: %w", err)
	}

	// Create remove service.
	svc, err := remove.NewService(remove.ServiceConfig{
		Engine:     eng,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	// Execute remove.
	task, err := svc.Run(ctx, remove.Request{
		TaskID: c.taskID,
		Force:  c.force,
	})
	if err != nil {
		return fmt.Errorf("could not remove task: %w", err)
	}

	// Print success message.
	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	if err := p.PrintMessage(fmt.Sprintf("Removed task: %s", task.ID)); err != nil {
		return fmt.Errorf("could not print message: %w", err)
	}

	return nil
}
