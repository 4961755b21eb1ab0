package orchestrator_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/environment/fake"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/orchestrator"
	"github.com/slok/agentbox/internal/relay"
	"github.com/slok/agentbox/internal/storage/memory"
)

// guest simulates the in-environment side of a task: the progress feed and the
// result artifact the remote agent would write.
type guest struct {
	mu     sync.Mutex
	feed   string
	result string
}

func (g *guest) onCommand(_, command string) *model.ExecStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case strings.Contains(command, "progress.log"):
		return &model.ExecStatus{Done: true, ExitCode: 0, Stdout: g.feed}
	case strings.Contains(command, "result.json"):
		out := g.result
		if out == "" {
			out = "{}"
		}
		return &model.ExecStatus{Done: true, ExitCode: 0, Stdout: out}
	default:
		return &model.ExecStatus{Done: true, ExitCode: 0}
	}
}

func newMemRepo(t *testing.T) *memory.Repository {
	t.Helper()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	return repo
}

func testConfig(engine *fake.Engine, repo *memory.Repository) orchestrator.ServiceConfig {
	rel, _ := relay.NewRelay(relay.RelayConfig{})
	return orchestrator.ServiceConfig{
		Engine:            engine,
		Repository:        repo,
		Relay:             rel,
		ModelAPIURL:       "http://llm.test",
		ModelAPIKey:       "test-key",
		ProvisionTimeout:  time.Second,
		AddressTimeout:    time.Second,
		ExecTimeout:       time.Second,
		TaskDeadline:      5 * time.Second,
		ProgressInterval:  10 * time.Millisecond,
		OperationInterval: 5 * time.Millisecond,
		AddressInterval:   5 * time.Millisecond,
	}
}

func testTaskConfig() model.TaskConfig {
	return model.TaskConfig{
		RepositoryURL: "https://github.com/user/repo",
		Branch:        "main",
		Objective:     "Fix the login bug",
		Model:         "gpt-4",
		Template:      "agentbox/agent:latest",
		Resources:     model.Resources{CPUs: 2, MemoryMB: 4096},
	}
}

func waitDone(t *testing.T, w *orchestrator.Watch) model.Task {
	t.Helper()
	select {
	case <-w.Done:
	case <-time.After(10 * time.Second):
		t.Fatal("task did not finish in time")
	}
	return w.Task()
}

func TestServiceTaskCompletes(t *testing.T) {
	g := &guest{
		feed: "[10:00:01] [INFO] Starting task\n" +
			"[10:00:05] [ACTION] Editing auth.py\n" +
			"[10:00:09] [SUCCESS] [TASK_COMPLETE]\n",
		result: `{"success": true, "summary": "Fixed the bug", "files_changed": ["auth.py"]}`,
	}
	engine, err := fake.NewEngine(fake.EngineConfig{OnCommand: g.onCommand, OperationPolls: 3})
	require.NoError(t, err)
	repo := newMemRepo(t)

	svc, err := orchestrator.NewService(testConfig(engine, repo))
	require.NoError(t, err)

	w, err := svc.Submit(context.Background(), testTaskConfig())
	require.NoError(t, err)

	var entries []model.ProgressEntry
	for entry := range w.Events {
		entries = append(entries, entry)
	}
	task := waitDone(t, w)

	assert.Equal(t, model.TaskStatusCompleted, task.Status)
	assert.Empty(t, task.Error)
	require.NotNil(t, task.Result)
	assert.True(t, task.Result.Success)
	assert.Equal(t, "Fixed the bug", task.Result.Summary)
	assert.Equal(t, []string{"auth.py"}, task.Result.FilesChanged)

	require.Len(t, entries, 3)
	assert.Equal(t, model.ProgressKindAction, entries[1].Kind)
	assert.Equal(t, model.ProgressKindTerminalSuccess, entries[2].Kind)

	require.NotNil(t, task.StartedAt)
	require.NotNil(t, task.CompletedAt)

	// The persisted task matches the terminal snapshot.
	stored, err := repo.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, stored.Status)

	// The environment was torn down exactly once.
	require.Len(t, engine.DeleteCalls, 1)
	for _, calls := range engine.DeleteCalls {
		assert.Equal(t, 1, calls)
	}
}

func TestServiceTaskFails(t *testing.T) {
	g := &guest{
		feed: "[10:00:01] [INFO] Starting task\n" +
			"[10:00:05] [ERROR] [TASK_FAILED] disk full\n",
		result: `{"success": false, "error": "disk full"}`,
	}
	engine, err := fake.NewEngine(fake.EngineConfig{OnCommand: g.onCommand})
	require.NoError(t, err)
	repo := newMemRepo(t)

	svc, err := orchestrator.NewService(testConfig(engine, repo))
	require.NoError(t, err)

	w, err := svc.Submit(context.Background(), testTaskConfig())
	require.NoError(t, err)
	for range w.Events {
	}
	task := waitDone(t, w)

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Equal(t, "disk full", task.Error)
	require.NotNil(t, task.Result)
	assert.False(t, task.Result.Success)

	require.Len(t, engine.DeleteCalls, 1)
}

func TestServiceTaskDeadline(t *testing.T) {
	// The feed never reaches a terminal marker.
	g := &guest{feed: "[10:00:01] [INFO] Working\n"}
	engine, err := fake.NewEngine(fake.EngineConfig{OnCommand: g.onCommand})
	require.NoError(t, err)
	repo := newMemRepo(t)

	cfg := testConfig(engine, repo)
	cfg.TaskDeadline = 100 * time.Millisecond
	svc, err := orchestrator.NewService(cfg)
	require.NoError(t, err)

	w, err := svc.Submit(context.Background(), testTaskConfig())
	require.NoError(t, err)
	for range w.Events {
	}
	task := waitDone(t, w)

	assert.Equal(t, model.TaskStatusFailed, task.Status)
	assert.Contains(t, task.Error, "did not complete within")
	assert.Nil(t, task.Result)

	require.Len(t, engine.DeleteCalls, 1)
}

func TestServiceTaskCancel(t *testing.T) {
	g := &guest{feed: "[10:00:01] [INFO] Working\n"}
	engine, err := fake.NewEngine(fake.EngineConfig{OnCommand: g.onCommand})
	require.NoError(t, err)
	repo := newMemRepo(t)

	svc, err := orchestrator.NewService(testConfig(engine, repo))
	require.NoError(t, err)

	w, err := svc.Submit(context.Background(), testTaskConfig())
	require.NoError(t, err)

	// Wait until the task is running before cancelling.
	select {
	case <-w.Events:
	case <-time.After(5 * time.Second):
		t.Fatal("no progress observed")
	}
	require.NoError(t, svc.Cancel(w.TaskID))

	for range w.Events {
	}
	task := waitDone(t, w)

	assert.Equal(t, model.TaskStatusCancelled, task.Status)
	assert.Equal(t, "task cancelled", task.Error)

	// Cancellation still tears the environment down.
	require.Len(t, engine.DeleteCalls, 1)
}

func TestServiceCancelUnknownTask(t *testing.T) {
	engine, err := fake.NewEngine(fake.EngineConfig{})
	require.NoError(t, err)

	svc, err := orchestrator.NewService(testConfig(engine, newMemRepo(t)))
	require.NoError(t, err)

	err = svc.Cancel("missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestServiceSubmitInvalidConfig(t *testing.T) {
	engine, err := fake.NewEngine(fake.EngineConfig{})
	require.NoError(t, err)

	svc, err := orchestrator.NewService(testConfig(engine, newMemRepo(t)))
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), model.TaskConfig{})
	assert.Error(t, err)
}
