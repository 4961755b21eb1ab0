package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/slok/agentbox/internal/model"
)

// TablePrinter prints task information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintList prints tasks in a table format.
func (t *TablePrinter) PrintList(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header
	fmt.Fprintln(tw, "ID\tSTATUS\tREPOSITORY\tOBJECTIVE\tCREATED")

	// Print rows
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			task.ID, task.Status, task.RepositoryURL, ellipsis(task.Objective, 40), TimeAgo(task.CreatedAt))
	}

	return nil
}

// PrintStatus prints detailed task status.
func (t *TablePrinter) PrintStatus(task model.Task) error {
	fmt.Fprintf(t.writer, "ID:          %s\n", task.ID)
	fmt.Fprintf(t.writer, "Status:      %s\n", task.Status)
	fmt.Fprintf(t.writer, "Repository:  %s\n", task.RepositoryURL)
	fmt.Fprintf(t.writer, "Branch:      %s\n", task.Branch)
	fmt.Fprintf(t.writer, "Objective:   %s\n", task.Objective)
	fmt.Fprintf(t.writer, "Model:       %s\n", task.Model)
	fmt.Fprintf(t.writer, "Created:     %s\n", FormatTimestamp(task.CreatedAt))

	if task.EnvironmentID != "" {
		fmt.Fprintf(t.writer, "Environment: %s\n", task.EnvironmentID)
	}
	if task.StartedAt != nil {
		fmt.Fprintf(t.writer, "Started:     %s\n", FormatTimestamp(*task.StartedAt))
	}
	if task.CompletedAt != nil {
		fmt.Fprintf(t.writer, "Completed:   %s\n", FormatTimestamp(*task.CompletedAt))
		fmt.Fprintf(t.writer, "Duration:    %s\n", Duration(task.CreatedAt, *task.CompletedAt))
	}

	if task.Error != "" {
		fmt.Fprintf(t.writer, "Error:       %s\n", task.Error)
	}

	if task.Result != nil {
		fmt.Fprintf(t.writer, "\nResult:\n")
		fmt.Fprintf(t.writer, "  Success:   %t\n", task.Result.Success)
		if task.Result.Summary != "" {
			fmt.Fprintf(t.writer, "  Summary:   %s\n", task.Result.Summary)
		}
		for _, file := range task.Result.FilesChanged {
			fmt.Fprintf(t.writer, "  Changed:   %s\n", file)
		}
		if task.Result.Error != "" {
			fmt.Fprintf(t.writer, "  Error:     %s\n", task.Result.Error)
		}
	}

	return nil
}

// PrintProgress prints one progress feed entry.
func (t *TablePrinter) PrintProgress(entry model.ProgressEntry) error {
	if entry.Timestamp != "" {
		fmt.Fprintf(t.writer, "[%s] %s\n", entry.Timestamp, entry.Message)
		return nil
	}
	fmt.Fprintln(t.writer, entry.Message)
	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}

func ellipsis(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
