package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/agentbox/internal/app/list"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/printer"
	"github.com/slok/agentbox/internal/storage/sqlite"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statusFilter string
	format       string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List all tasks.")
	c.Cmd.Flag("status", "Filter by status (pending, provisioning, running, completing, completed, failed, cancelled).").StringVar(&c.statusFilter)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Parse status filter if provided.
	var statusFilter *model.TaskStatus
	if c.statusFilter != "" {
		status := model.TaskStatus(strings.ToLower(c.statusFilter))
		// Validate status value.
		switch status {
		case model.TaskStatusPending, model.TaskStatusProvisioning, model.TaskStatusRunning,
			model.TaskStatusCompleting, model.TaskStatusCompleted, model.TaskStatusFailed, model.TaskStatusCancelled:
			statusFilter = &status
		default:
			return fmt.Errorf("invalid status filter: %s", c.statusFilter)
		}
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

	// Create list service.
	svc, err := list.NewService(list.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	// Execute list.
	tasks, err := svc.Run(ctx, list.Request{
		StatusFilter: statusFilter,
	})
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintList(tasks); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
