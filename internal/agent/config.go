package agent

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/slok/agentbox/internal/conventions"
	"github.com/slok/agentbox/internal/model"
)

// Config is the task configuration the orchestrator injects into the guest,
// read once at agent startup.
type Config struct {
	TaskID        string `json:"task_id"`
	RepositoryURL string `json:"repository_url"`
	Branch        string `json:"branch"`
	Objective     string `json:"objective"`
	Model         string `json:"model"`
	ModelAPIURL   string `json:"model_api_url"`
	ModelAPIKey   string `json:"model_api_key"`

	WorkspaceDir  string `json:"workspace_dir"`
	MaxIterations int    `json:"max_iterations"`
	MaxFileSize   int64  `json:"max_file_size"`
	// CommandTimeoutSeconds bounds every sandboxed shell command.
	CommandTimeoutSeconds int `json:"command_timeout"`
}

// LoadConfig loads and validates the injected task configuration.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config: %w", err)
	}

	cfg := Config{}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}

	if cfg.TaskID == "" {
		return Config{}, fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}
	if cfg.RepositoryURL == "" {
		return Config{}, fmt.Errorf("repository url is required: %w", model.ErrNotValid)
	}
	if cfg.Objective == "" {
		return Config{}, fmt.Errorf("objective is required: %w", model.ErrNotValid)
	}
	if cfg.ModelAPIURL == "" {
		return Config{}, fmt.Errorf("model api url is required: %w", model.ErrNotValid)
	}

	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	if cfg.WorkspaceDir == "" {
		cfg.WorkspaceDir = conventions.GuestWorkspaceDir
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 50
	}
	if cfg.MaxFileSize == 0 {
		cfg.MaxFileSize = 1024 * 1024
	}
	if cfg.CommandTimeoutSeconds == 0 {
		cfg.CommandTimeoutSeconds = 300
	}

	return cfg, nil
}
