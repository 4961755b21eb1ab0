package integration_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/environment"
	"github.com/slok/agentbox/internal/environment/docker"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/relay"
)

const (
	envActivation = "AGENTBOX_INTEGRATION"
	envTemplate   = "AGENTBOX_INTEGRATION_TEMPLATE"
)

// newDockerEngine skips the test unless real-infrastructure integration tests
// are activated, and returns a Docker engine plus the template image to use.
func newDockerEngine(t *testing.T) (*docker.Engine, string) {
	t.Helper()

	if os.Getenv(envActivation) != "true" {
		t.Skipf("Skipping integration test: %s is not set to 'true'", envActivation)
	}

	template := os.Getenv(envTemplate)
	if template == "" {
		template = "ubuntu:22.04"
	}

	engine, err := docker.NewEngine(docker.EngineConfig{})
	require.NoError(t, err)

	return engine, template
}

// waitOperation polls the provisioning operation until done.
func waitOperation(t *testing.T, ctx context.Context, engine environment.Engine, opID string) {
	t.Helper()

	for {
		status, err := engine.PollOperation(ctx, opID)
		require.NoError(t, err)
		if status.Done {
			require.True(t, status.OK, "operation failed: %s", status.Message)
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("operation %s did not finish: %v", opID, ctx.Err())
		case <-time.After(time.Second):
		}
	}
}

func TestDockerEnvironmentLifecycle(t *testing.T) {
	engine, template := newDockerEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Clone and wait for provisioning.
	env, opID, err := engine.Clone(ctx, template, fmt.Sprintf("agentbox-it-%d", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = engine.Stop(context.Background(), env.ID, true)
		_ = engine.Delete(context.Background(), env.ID)
	})
	waitOperation(t, ctx, engine, opID)

	// Configure and start.
	err = engine.Configure(ctx, env.ID, model.EnvironmentConfig{
		Resources: model.Resources{CPUs: 1, MemoryMB: 256},
		Tag:       "agentbox,integration",
	})
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, env.ID))

	// A started environment reports an address.
	addr, err := engine.QueryNetwork(ctx, env.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, addr)

	// Commands run in the guest.
	env.Address = addr
	accessor := environment.NewAccessor(engine, env)
	result, err := accessor.Exec(ctx, "echo hello from the guest", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Stdout, "hello from the guest")

	// Stop and delete.
	require.NoError(t, engine.Stop(ctx, env.ID, false))
	require.NoError(t, engine.Delete(ctx, env.ID))
}

func TestDockerEnvironmentProgressFeed(t *testing.T) {
	engine, template := newDockerEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	env, opID, err := engine.Clone(ctx, template, fmt.Sprintf("agentbox-it-feed-%d", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = engine.Stop(context.Background(), env.ID, true)
		_ = engine.Delete(context.Background(), env.ID)
	})
	waitOperation(t, ctx, engine, opID)

	err = engine.Configure(ctx, env.ID, model.EnvironmentConfig{
		Resources: model.Resources{CPUs: 1, MemoryMB: 256},
		Tag:       "agentbox,integration",
	})
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx, env.ID))

	addr, err := engine.QueryNetwork(ctx, env.ID)
	require.NoError(t, err)
	env.Address = addr
	accessor := environment.NewAccessor(engine, env)

	// Write a progress feed in the guest the way the agent runtime does.
	feedLines := "[10:00:00] [INFO] Iteration 1/50\\n[10:00:01] [DONE] [TASK_COMPLETE] All good"
	_, err = accessor.Exec(ctx, fmt.Sprintf(`mkdir -p /opt/agentbox && printf '%s\n' > /opt/agentbox/progress.log`, feedLines), time.Minute)
	require.NoError(t, err)

	// The relay reads and parses it through the accessor.
	progressRelay, err := relay.NewRelay(relay.RelayConfig{})
	require.NoError(t, err)

	feed := relay.FeedReaderFunc(func(ctx context.Context) (string, error) {
		result, err := accessor.Exec(ctx, "cat /opt/agentbox/progress.log 2>/dev/null || true", time.Minute)
		if err != nil {
			return "", err
		}
		return result.Stdout, nil
	})

	entries, cursor, terminal, err := progressRelay.Poll(ctx, feed, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, cursor)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ProgressKindInfo, entries[0].Kind)
	assert.Equal(t, model.ProgressKindTerminalSuccess, entries[1].Kind)
	assert.True(t, terminal.Done)
	assert.True(t, terminal.Success)
}
