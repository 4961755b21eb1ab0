package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slok/agentbox/internal/model"
)

// TaskComplete is the terminal capability: it persists the structured result
// where the orchestrator retrieves it and signals the agent loop to stop.
type TaskComplete struct {
	resultPath string
}

// NewTaskComplete creates the task_complete capability writing the result to
// the given path.
func NewTaskComplete(resultPath string) *TaskComplete {
	return &TaskComplete{resultPath: resultPath}
}

func (c *TaskComplete) Name() string        { return "task_complete" }
func (c *TaskComplete) Description() string { return "Mark the task as complete with a summary" }
func (c *TaskComplete) Terminal() bool      { return true }

func (c *TaskComplete) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"summary": map[string]interface{}{
				"type":        "string",
				"description": "Summary of what was accomplished",
			},
			"files_changed": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "List of files that were modified",
			},
		},
		"required": []string{"summary"},
	}
}

func (c *TaskComplete) Execute(ctx context.Context, args Args) (string, error) {
	result := model.TaskResult{
		Success:      true,
		Summary:      args.String("summary", ""),
		FilesChanged: args.StringSlice("files_changed"),
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("could not marshal result: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.resultPath), 0o755); err != nil {
		return "", fmt.Errorf("could not create result directory: %w", err)
	}
	if err := os.WriteFile(c.resultPath, payload, 0o644); err != nil {
		return "", fmt.Errorf("could not write result: %w", err)
	}

	return "Task marked as complete", nil
}
