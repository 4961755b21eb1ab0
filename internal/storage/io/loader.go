package io

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/slok/agentbox/internal/model"
)

// TaskYAMLRepository loads task configuration from YAML files.
type TaskYAMLRepository struct {
	fs fs.FS
}

// NewTaskYAMLRepository creates a new YAML task config repository.
func NewTaskYAMLRepository(filesystem fs.FS) *TaskYAMLRepository {
	return &TaskYAMLRepository{fs: filesystem}
}

// GetConfig loads a task configuration from a YAML file and returns a
// validated domain model.
func (r *TaskYAMLRepository) GetConfig(ctx context.Context, path string) (model.TaskConfig, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.TaskConfig{}, fmt.Errorf("reading task file: %w", err)
	}

	if ctx.Err() != nil {
		return model.TaskConfig{}, ctx.Err()
	}

	var cfg TaskConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.TaskConfig{}, fmt.Errorf("parsing YAML: %w", err)
	}

	mcfg := cfg.toModel()
	if err := mcfg.Validate(); err != nil {
		return model.TaskConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return mcfg, nil
}

// TaskConfig represents the YAML structure for task configuration.
type TaskConfig struct {
	Repository RepositoryConfig `yaml:"repository"`
	Objective  string           `yaml:"objective"`
	Model      string           `yaml:"model"`
	Template   string           `yaml:"template"`
	Resources  ResourcesConfig  `yaml:"resources"`
}

// RepositoryConfig represents the YAML structure for the target repository.
type RepositoryConfig struct {
	URL    string `yaml:"url"`
	Branch string `yaml:"branch"`
}

// ResourcesConfig represents the YAML structure for environment resources.
type ResourcesConfig struct {
	CPUs     int `yaml:"cpus"`
	MemoryMB int `yaml:"memory_mb"`
}

func (c TaskConfig) toModel() model.TaskConfig {
	cfg := model.TaskConfig{
		RepositoryURL: c.Repository.URL,
		Branch:        c.Repository.Branch,
		Objective:     c.Objective,
		Model:         c.Model,
		Template:      c.Template,
		Resources: model.Resources{
			CPUs:     c.Resources.CPUs,
			MemoryMB: c.Resources.MemoryMB,
		},
	}

	// Defaults, flags may still override the zero values upstream.
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Resources.CPUs == 0 {
		cfg.Resources.CPUs = 2
	}
	if cfg.Resources.MemoryMB == 0 {
		cfg.Resources.MemoryMB = 4096
	}

	return cfg
}
