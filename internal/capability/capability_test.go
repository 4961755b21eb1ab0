package capability_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/capability"
	"github.com/slok/agentbox/internal/model"
)

func newRegistry(t *testing.T, workspace string, maxResult int) *capability.Registry {
	t.Helper()

	sandbox, err := capability.NewSandbox(capability.SandboxConfig{
		WorkspaceDir:   workspace,
		MaxFileSize:    1024 * 1024,
		CommandTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	registry, err := capability.NewRegistry(capability.RegistryConfig{MaxResultSize: maxResult})
	require.NoError(t, err)

	caps := []capability.Capability{
		capability.NewReadFile(sandbox),
		capability.NewWriteFile(sandbox),
		capability.NewListFiles(sandbox),
		capability.NewSearchFiles(sandbox),
		capability.NewExecuteCommand(sandbox),
		capability.NewTaskComplete(filepath.Join(workspace, "result.json")),
	}
	for _, c := range caps {
		require.NoError(t, registry.Register(c))
	}

	return registry
}

func TestRegistryTools(t *testing.T) {
	registry := newRegistry(t, t.TempDir(), 0)

	tools := registry.Tools()

	require.Len(t, tools, 6)
	// Registration order is preserved for the model.
	assert.Equal(t, "read_file", tools[0].Function.Name)
	assert.Equal(t, "task_complete", tools[5].Function.Name)
	for _, tool := range tools {
		assert.Equal(t, "function", tool.Type)
		assert.NotEmpty(t, tool.Function.Description)
		assert.NotNil(t, tool.Function.Parameters)
	}
}

func TestRegistryRegisterTwice(t *testing.T) {
	registry, err := capability.NewRegistry(capability.RegistryConfig{})
	require.NoError(t, err)

	sandbox, err := capability.NewSandbox(capability.SandboxConfig{WorkspaceDir: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, registry.Register(capability.NewReadFile(sandbox)))
	err = registry.Register(capability.NewReadFile(sandbox))
	assert.ErrorIs(t, err, model.ErrAlreadyExists)
}

func TestRegistryExecute(t *testing.T) {
	tests := map[string]struct {
		setup       func(t *testing.T, workspace string)
		maxResult   int
		name        string
		args        string
		expContent  string
		expContains string
		expTerminal bool
	}{
		"An unknown capability is a recoverable error result": {
			name:       "does_not_exist",
			args:       `{}`,
			expContent: "Error: Unknown capability 'does_not_exist'",
		},

		"Invalid JSON arguments are a recoverable error result": {
			name:        "read_file",
			args:        `{not json`,
			expContains: "Error: Invalid JSON arguments",
		},

		"A capability failure is folded into the content": {
			name:        "read_file",
			args:        `{"path": "../../etc/passwd"}`,
			expContains: "outside workspace",
		},

		"A successful read returns the file content": {
			setup: func(t *testing.T, workspace string) {
				require.NoError(t, os.WriteFile(filepath.Join(workspace, "f.txt"), []byte("content"), 0o644))
			},
			name:       "read_file",
			args:       `{"path": "f.txt"}`,
			expContent: "content",
		},

		"Oversized results are truncated with a marker": {
			setup: func(t *testing.T, workspace string) {
				require.NoError(t, os.WriteFile(filepath.Join(workspace, "f.txt"), []byte(strings.Repeat("x", 100)), 0o644))
			},
			maxResult:   10,
			name:        "read_file",
			args:        `{"path": "f.txt"}`,
			expContent:  strings.Repeat("x", 10) + "\n\n... (truncated)",
		},

		"The completion capability is terminal": {
			name:        "task_complete",
			args:        `{"summary": "All done", "files_changed": ["a.go", "b.go"]}`,
			expContent:  "Task marked as complete",
			expTerminal: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			workspace := t.TempDir()
			if tt.setup != nil {
				tt.setup(t, workspace)
			}
			registry := newRegistry(t, workspace, tt.maxResult)

			result := registry.Execute(context.TODO(), tt.name, tt.args)

			if tt.expContent != "" {
				assert.Equal(t, tt.expContent, result.Content)
			}
			if tt.expContains != "" {
				assert.Contains(t, result.Content, tt.expContains)
			}
			assert.Equal(t, tt.expTerminal, result.Terminal)
		})
	}
}

func TestTaskCompleteWritesResult(t *testing.T) {
	workspace := t.TempDir()
	registry := newRegistry(t, workspace, 0)

	result := registry.Execute(context.TODO(), "task_complete", `{"summary": "Fixed it", "files_changed": ["auth.py"]}`)
	require.True(t, result.Terminal)

	data, err := os.ReadFile(filepath.Join(workspace, "result.json"))
	require.NoError(t, err)

	got := model.TaskResult{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, got.Success)
	assert.Equal(t, "Fixed it", got.Summary)
	assert.Equal(t, []string{"auth.py"}, got.FilesChanged)
}
