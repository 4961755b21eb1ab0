package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/slok/agentbox/internal/model"
)

// JSONPrinter prints task information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents a task in the list output (subset of fields).
type listItem struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	RepositoryURL string    `json:"repository_url"`
	Objective     string    `json:"objective"`
	CreatedAt     time.Time `json:"created_at"`
}

// statusOutput represents the full task status output.
type statusOutput struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	RepositoryURL string            `json:"repository_url"`
	Branch        string            `json:"branch"`
	Objective     string            `json:"objective"`
	Model         string            `json:"model"`
	EnvironmentID string            `json:"environment_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	StartedAt     *time.Time        `json:"started_at"`
	CompletedAt   *time.Time        `json:"completed_at"`
	Error         string            `json:"error,omitempty"`
	Result        *model.TaskResult `json:"result,omitempty"`
}

// progressOutput represents one progress feed entry.
type progressOutput struct {
	Timestamp string `json:"timestamp,omitempty"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintList prints tasks in JSON format with a subset of fields.
func (j *JSONPrinter) PrintList(tasks []model.Task) error {
	items := make([]listItem, len(tasks))
	for i, task := range tasks {
		items[i] = listItem{
			ID:            task.ID,
			Status:        string(task.Status),
			RepositoryURL: task.RepositoryURL,
			Objective:     task.Objective,
			CreatedAt:     task.CreatedAt.UTC(),
		}
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// PrintStatus prints detailed task status in JSON format.
func (j *JSONPrinter) PrintStatus(task model.Task) error {
	output := statusOutput{
		ID:            task.ID,
		Status:        string(task.Status),
		RepositoryURL: task.RepositoryURL,
		Branch:        task.Branch,
		Objective:     task.Objective,
		Model:         task.Model,
		EnvironmentID: task.EnvironmentID,
		CreatedAt:     task.CreatedAt.UTC(),
		Error:         task.Error,
		Result:        task.Result,
	}

	if task.StartedAt != nil {
		utcTime := task.StartedAt.UTC()
		output.StartedAt = &utcTime
	}
	if task.CompletedAt != nil {
		utcTime := task.CompletedAt.UTC()
		output.CompletedAt = &utcTime
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// PrintProgress prints one progress entry as a JSON line.
func (j *JSONPrinter) PrintProgress(entry model.ProgressEntry) error {
	return json.NewEncoder(j.writer).Encode(progressOutput{
		Timestamp: entry.Timestamp,
		Kind:      string(entry.Kind),
		Message:   entry.Message,
	})
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	output := messageOutput{Message: msg}
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
