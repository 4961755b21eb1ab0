package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage/sqlite"
)

func newTestRepository(t *testing.T) *sqlite.Repository {
	t.Helper()

	repo, err := sqlite.NewRepository(context.TODO(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "agentbox.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestRepositoryUsableAfterReopen(t *testing.T) {
	ctx := context.TODO()
	dbPath := filepath.Join(t.TempDir(), "agentbox.db")

	task := model.Task{
		ID:            "01HRW9YZTEST000000000009",
		RepositoryURL: "https://github.com/user/repo",
		Branch:        "main",
		Objective:     "objective",
		Model:         "gpt-4",
		Status:        model.TaskStatusPending,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}

	// The connection must survive the migration run at construction time.
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath})
	require.NoError(t, err)
	require.NoError(t, repo.CreateTask(ctx, task))
	require.NoError(t, repo.Close())

	// Same for an already migrated database.
	repo, err = sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	got, err := repo.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
}

func TestRepositoryTaskRoundTrip(t *testing.T) {
	ctx := context.TODO()
	repo := newTestRepository(t)

	started := time.Now().UTC().Truncate(time.Second)
	completed := started.Add(5 * time.Minute)
	task := model.Task{
		ID:            "01HRW9YZTEST000000000000",
		RepositoryURL: "https://github.com/user/repo",
		Branch:        "main",
		Objective:     "add a health endpoint",
		Model:         "gpt-4",
		Status:        model.TaskStatusCompleted,
		EnvironmentID: "env-1",
		CreatedAt:     started,
		StartedAt:     &started,
		CompletedAt:   &completed,
		Progress: []model.ProgressEntry{
			{Timestamp: "09:00:01", Kind: model.ProgressKindInfo, Message: "cloning repository"},
			{Timestamp: "09:00:09", Kind: model.ProgressKindTerminalSuccess, Message: "[TASK_COMPLETE] done"},
		},
		Result: &model.TaskResult{
			Success:      true,
			Summary:      "added /healthz",
			FilesChanged: []string{"server.go", "server_test.go"},
		},
	}

	require.NoError(t, repo.CreateTask(ctx, task))

	got, err := repo.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task, *got)

	// Duplicated creation fails.
	err = repo.CreateTask(ctx, task)
	assert.ErrorIs(t, err, model.ErrAlreadyExists)
}

func TestRepositoryTaskUpdate(t *testing.T) {
	ctx := context.TODO()
	repo := newTestRepository(t)

	task := model.Task{
		ID:            "01HRW9YZTEST000000000001",
		RepositoryURL: "https://github.com/user/repo",
		Branch:        "main",
		Objective:     "fix the login bug",
		Model:         "gpt-4",
		Status:        model.TaskStatusPending,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.CreateTask(ctx, task))

	task.Status = model.TaskStatusFailed
	task.Error = "timed out waiting for completion"
	require.NoError(t, repo.UpdateTask(ctx, task))

	got, err := repo.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
	assert.Equal(t, "timed out waiting for completion", got.Error)

	// Unknown task update fails.
	task.ID = "missing"
	assert.ErrorIs(t, repo.UpdateTask(ctx, task), model.ErrNotFound)
}

func TestRepositoryTaskListAndDelete(t *testing.T) {
	ctx := context.TODO()
	repo := newTestRepository(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"task-a", "task-b", "task-c"} {
		require.NoError(t, repo.CreateTask(ctx, model.Task{
			ID:            id,
			RepositoryURL: "https://github.com/user/repo",
			Branch:        "main",
			Objective:     "objective",
			Model:         "gpt-4",
			Status:        model.TaskStatusPending,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	tasks, err := repo.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "task-a", tasks[0].ID)
	assert.Equal(t, "task-c", tasks[2].ID)

	require.NoError(t, repo.DeleteTask(ctx, "task-b"))
	assert.ErrorIs(t, repo.DeleteTask(ctx, "task-b"), model.ErrNotFound)

	tasks, err = repo.ListTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	_, err = repo.GetTask(ctx, "task-b")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
