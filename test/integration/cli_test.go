package integration_test

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage/sqlite"
	"github.com/slok/agentbox/test/integration/testutils"
)

const testBinary = "./agentbox-test"

// TestMain runs before all tests and after all tests for cleanup.
func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}

func buildTestBinary(t *testing.T) {
	buildCmd := exec.Command("go", "build", "-o", "agentbox-test", "../../cmd/agentbox")
	err := buildCmd.Run()
	require.NoError(t, err)
	t.Cleanup(func() {
		os.Remove("agentbox-test")
	})
}

// seedTask stores a task directly in the given database.
func seedTask(t *testing.T, dbPath string, task model.Task) {
	t.Helper()

	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{DBPath: dbPath})
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.CreateTask(context.Background(), task))
}

func terminalTask(id string, status model.TaskStatus) model.Task {
	created := time.Now().Add(-10 * time.Minute)
	completed := created.Add(5 * time.Minute)

	task := model.Task{
		ID:            id,
		RepositoryURL: "https://github.com/org/repo.git",
		Branch:        "main",
		Objective:     "Fix the flaky login test",
		Model:         "gpt-4",
		Status:        status,
		CreatedAt:     created,
		CompletedAt:   &completed,
	}
	if status == model.TaskStatusCompleted {
		task.Result = &model.TaskResult{Success: true, Summary: "Fixed"}
	}
	return task
}

func TestListCommand(t *testing.T) {
	buildTestBinary(t)

	tests := map[string]struct {
		setupTasks   func(t *testing.T, dbPath string)
		args         string
		expErr       bool
		expStdout    []string
		expNotStdout []string
		validateJSON func(t *testing.T, output string)
	}{
		"Empty database prints nothing": {
			setupTasks: func(t *testing.T, dbPath string) {},
			args:       "list",
		},

		"Tasks are listed with their status": {
			setupTasks: func(t *testing.T, dbPath string) {
				seedTask(t, dbPath, terminalTask("01TESTTASKAAAAAAAAAAAAAAAA", model.TaskStatusCompleted))
				seedTask(t, dbPath, terminalTask("01TESTTASKBBBBBBBBBBBBBBBB", model.TaskStatusFailed))
			},
			args: "list",
			expStdout: []string{
				"ID", "STATUS", "REPOSITORY", "OBJECTIVE",
				"01TESTTASKAAAAAAAAAAAAAAAA", "completed",
				"01TESTTASKBBBBBBBBBBBBBBBB", "failed",
				"Fix the flaky login test",
			},
		},

		"Status filter only shows matching tasks": {
			setupTasks: func(t *testing.T, dbPath string) {
				seedTask(t, dbPath, terminalTask("01TESTTASKAAAAAAAAAAAAAAAA", model.TaskStatusCompleted))
				seedTask(t, dbPath, terminalTask("01TESTTASKBBBBBBBBBBBBBBBB", model.TaskStatusFailed))
			},
			args:         "list --status failed",
			expStdout:    []string{"01TESTTASKBBBBBBBBBBBBBBBB"},
			expNotStdout: []string{"01TESTTASKAAAAAAAAAAAAAAAA"},
		},

		"Invalid status filter fails": {
			setupTasks: func(t *testing.T, dbPath string) {},
			args:       "list --status bananas",
			expErr:     true,
		},

		"JSON format is machine readable": {
			setupTasks: func(t *testing.T, dbPath string) {
				seedTask(t, dbPath, terminalTask("01TESTTASKAAAAAAAAAAAAAAAA", model.TaskStatusCompleted))
			},
			args: "list --format json",
			validateJSON: func(t *testing.T, output string) {
				var items []map[string]any
				require.NoError(t, json.Unmarshal([]byte(output), &items))
				require.Len(t, items, 1)
				assert.Equal(t, "01TESTTASKAAAAAAAAAAAAAAAA", items[0]["id"])
				assert.Equal(t, "completed", items[0]["status"])
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "agentbox.db")
			test.setupTasks(t, dbPath)

			stdout, stderr, err := testutils.RunAgentbox(context.Background(),
				[]string{"AGENTBOX_DB_PATH=" + dbPath}, testBinary, test.args, true)

			if test.expErr {
				assert.Error(t, err, "stderr: %s", stderr)
				return
			}
			require.NoError(t, err, "stderr: %s", stderr)

			out := string(stdout)
			for _, exp := range test.expStdout {
				assert.Contains(t, out, exp)
			}
			for _, notExp := range test.expNotStdout {
				assert.NotContains(t, out, notExp)
			}
			if test.validateJSON != nil {
				test.validateJSON(t, out)
			}
		})
	}
}

func TestStatusCommand(t *testing.T) {
	buildTestBinary(t)

	tests := map[string]struct {
		setupTasks   func(t *testing.T, dbPath string)
		args         []string
		expErr       bool
		expStdout    []string
		validateJSON func(t *testing.T, output string)
	}{
		"Status by full id": {
			setupTasks: func(t *testing.T, dbPath string) {
				seedTask(t, dbPath, terminalTask("01TESTTASKAAAAAAAAAAAAAAAA", model.TaskStatusCompleted))
			},
			args: []string{"status", "01TESTTASKAAAAAAAAAAAAAAAA"},
			expStdout: []string{
				"ID:          01TESTTASKAAAAAAAAAAAAAAAA",
				"Status:      completed",
				"Repository:  https://github.com/org/repo.git",
				"Summary:   Fixed",
			},
		},

		"Status by unique prefix": {
			setupTasks: func(t *testing.T, dbPath string) {
				seedTask(t, dbPath, terminalTask("01TESTTASKAAAAAAAAAAAAAAAA", model.TaskStatusCompleted))
			},
			args:      []string{"status", "01TESTTASKA"},
			expStdout: []string{"01TESTTASKAAAAAAAAAAAAAAAA"},
		},

		"Ambiguous prefix fails": {
			setupTasks: func(t *testing.T, dbPath string) {
				seedTask(t, dbPath, terminalTask("01TESTTASKAAAAAAAAAAAAAAAA", model.TaskStatusCompleted))
				seedTask(t, dbPath, terminalTask("01TESTTASKABBBBBBBBBBBBBBB", model.TaskStatusFailed))
			},
			args:   []string{"status", "01TESTTASKA"},
			expErr: true,
		},

		"Unknown task fails": {
			setupTasks: func(t *testing.T, dbPath string) {},
			args:       []string{"status", "01MISSING"},
			expErr:     true,
		},

		"JSON format carries the result": {
			setupTasks: func(t *testing.T, dbPath string) {
				seedTask(t, dbPath, terminalTask("01TESTTASKAAAAAAAAAAAAAAAA", model.TaskStatusCompleted))
			},
			args: []string{"status", "01TESTTASKAAAAAAAAAAAAAAAA", "--format", "json"},
			validateJSON: func(t *testing.T, output string) {
				var status map[string]any
				require.NoError(t, json.Unmarshal([]byte(output), &status))
				assert.Equal(t, "completed", status["status"])
				result, ok := status["result"].(map[string]any)
				require.True(t, ok)
				assert.Equal(t, true, result["success"])
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "agentbox.db")
			test.setupTasks(t, dbPath)

			stdout, stderr, err := testutils.RunAgentboxArgs(context.Background(),
				[]string{"AGENTBOX_DB_PATH=" + dbPath}, testBinary, test.args, true)

			if test.expErr {
				assert.Error(t, err, "stderr: %s", stderr)
				return
			}
			require.NoError(t, err, "stderr: %s", stderr)

			out := string(stdout)
			for _, exp := range test.expStdout {
				assert.Contains(t, out, exp)
			}
			if test.validateJSON != nil {
				test.validateJSON(t, out)
			}
		})
	}
}

func TestRemoveCommand(t *testing.T) {
	buildTestBinary(t)

	tests := map[string]struct {
		task      model.Task
		args      []string
		expErr    bool
		expStdout []string
		expGone   bool
	}{
		"Terminal task is removed": {
			task:      terminalTask("01TESTTASKAAAAAAAAAAAAAAAA", model.TaskStatusCompleted),
			args:      []string{"rm", "01TESTTASKAAAAAAAAAAAAAAAA", "--engine", "fake"},
			expStdout: []string{"Removed task: 01TESTTASKAAAAAAAAAAAAAAAA"},
			expGone:   true,
		},

		"Non-terminal task is refused without force": {
			task: model.Task{
				ID:            "01TESTTASKAAAAAAAAAAAAAAAA",
				RepositoryURL: "https://github.com/org/repo.git",
				Branch:        "main",
				Objective:     "Fix things",
				Model:         "gpt-4",
				Status:        model.TaskStatusRunning,
				CreatedAt:     time.Now(),
			},
			args:   []string{"rm", "01TESTTASKAAAAAAAAAAAAAAAA", "--engine", "fake"},
			expErr: true,
		},

		"Non-terminal task is removed with force": {
			task: model.Task{
				ID:            "01TESTTASKAAAAAAAAAAAAAAAA",
				RepositoryURL: "https://github.com/org/repo.git",
				Branch:        "main",
				Objective:     "Fix things",
				Model:         "gpt-4",
				Status:        model.TaskStatusRunning,
				CreatedAt:     time.Now(),
			},
			args:    []string{"rm", "01TESTTASKAAAAAAAAAAAAAAAA", "--engine", "fake", "--force"},
			expGone: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "agentbox.db")
			seedTask(t, dbPath, test.task)

			stdout, stderr, err := testutils.RunAgentboxArgs(context.Background(),
				[]string{"AGENTBOX_DB_PATH=" + dbPath}, testBinary, test.args, true)

			if test.expErr {
				assert.Error(t, err, "stderr: %s", stderr)
			} else {
				require.NoError(t, err, "stderr: %s", stderr)
			}

			out := string(stdout)
			for _, exp := range test.expStdout {
				assert.Contains(t, out, exp)
			}

			repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{DBPath: dbPath})
			require.NoError(t, err)
			defer repo.Close()

			_, err = repo.GetTask(context.Background(), test.task.ID)
			if test.expGone {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
