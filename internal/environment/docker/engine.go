package docker

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/oklog/ulid/v2"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/slok/agentbox/internal/environment"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
)

// DockerClient is the interface for Docker operations that we use.
// This allows us to mock the Docker client for testing.
type DockerClient interface {
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerUpdate(ctx context.Context, containerID string, updateConfig container.UpdateConfig) (container.UpdateResponse, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
}

// EngineConfig is the configuration for the Docker engine.
type EngineConfig struct {
	Client DockerClient
	Logger log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.Client == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("could not create Docker client: %w", err)
		}
		c.Client = cli
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "environment.Docker"})
	return nil
}

// Engine is the Docker implementation of environment.Engine. Containers act as
// the leased environments: cloning pulls the template image and creates a
// container, in-guest commands run through the exec API and are polled by
// exec id.
type Engine struct {
	client DockerClient
	logger log.Logger

	mu    sync.Mutex
	ops   map[string]*model.OperationStatus
	execs map[string]*execCapture
}

type execCapture struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
	done   chan struct{}
}

// NewEngine creates a new Docker engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		client: cfg.Client,
		logger: cfg.Logger,
		ops:    map[string]*model.OperationStatus{},
		execs:  map[string]*execCapture{},
	}, nil
}

var _ environment.Engine = (*Engine)(nil)

func containerName(envID string) string {
	return fmt.Sprintf("agentbox-%s", strings.ToLower(envID))
}

// Clone pulls the template image and creates a container from it. Docker
// operations are synchronous, so the returned operation id resolves on the
// first poll.
func (e *Engine) Clone(ctx context.Context, template, name string) (*model.Environment, string, error) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()

	op := &model.OperationStatus{Done: true, OK: true}
	opID := fmt.Sprintf("clone-%s", strings.ToLower(id))

	err := func() error {
		e.logger.Infof("Pulling template image: %s", template)
		pullResp, err := e.client.ImagePull(ctx, template, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("could not pull image %s: %w", template, err)
		}
		// Consume the pull response to ensure it completes.
		_, _ = io.Copy(io.Discard, pullResp)
		pullResp.Close()

		e.logger.Infof("Creating container: %s", containerName(id))
		containerConfig := &container.Config{
			Image: template,
			Cmd:   []string{"tail", "-f", "/dev/null"}, // Keep container running.
		}
		_, err = e.client.ContainerCreate(ctx, containerConfig, &container.HostConfig{}, nil, nil, containerName(id))
		if err != nil {
			return fmt.Errorf("could not create container: %w", err)
		}
		return nil
	}()
	if err != nil {
		op.OK = false
		op.Message = err.Error()
	}

	e.mu.Lock()
	e.ops[opID] = op
	e.mu.Unlock()

	env := &model.Environment{
		ID:        id,
		Name:      name,
		Phase:     model.EnvironmentPhaseRequested,
		CreatedAt: time.Now().UTC(),
	}

	return env, opID, nil
}

// PollOperation returns the status of a clone operation.
func (e *Engine) PollOperation(ctx context.Context, opID string) (*model.OperationStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op, ok := e.ops[opID]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", opID, model.ErrNotFound)
	}
	statusCopy := *op
	return &statusCopy, nil
}

// Configure applies resource limits to the container.
func (e *Engine) Configure(ctx context.Context, envID string, cfg model.EnvironmentConfig) error {
	update := container.UpdateConfig{
		Resources: container.Resources{
			NanoCPUs: int64(cfg.Resources.CPUs) * 1e9,
			Memory:   int64(cfg.Resources.MemoryMB) * 1024 * 1024,
		},
	}

	_, err := e.client.ContainerUpdate(ctx, containerName(envID), update)
	if err != nil {
		return fmt.Errorf("could not update container resources: %w", err)
	}

	e.logger.Debugf("Configured environment %s (cpus=%d memory=%dMB tag=%s)", envID, cfg.Resources.CPUs, cfg.Resources.MemoryMB, cfg.Tag)
	return nil
}

// Start starts the container.
func (e *Engine) Start(ctx context.Context, envID string) error {
	if err := e.client.ContainerStart(ctx, containerName(envID), container.StartOptions{}); err != nil {
		return fmt.Errorf("could not start container %s: %w", containerName(envID), err)
	}
	e.logger.Infof("Started environment: %s", envID)
	return nil
}

// QueryNetwork inspects the container and returns its first non-loopback
// address, or an empty string when there is none yet.
func (e *Engine) QueryNetwork(ctx context.Context, envID string) (string, error) {
	inspect, err := e.client.ContainerInspect(ctx, containerName(envID))
	if err != nil {
		return "", fmt.Errorf("could not inspect container: %w", err)
	}

	if inspect.NetworkSettings == nil {
		return "", nil
	}
	if ip := inspect.NetworkSettings.IPAddress; ip != "" && !strings.HasPrefix(ip, "127.") {
		return ip, nil
	}
	for _, nw := range inspect.NetworkSettings.Networks {
		if nw.IPAddress != "" && !strings.HasPrefix(nw.IPAddress, "127.") {
			return nw.IPAddress, nil
		}
	}

	return "", nil
}

// ExecStart submits a shell command to the container through the exec API and
// starts capturing its output.
func (e *Engine) ExecStart(ctx context.Context, envID string, command string) (string, error) {
	createResp, err := e.client.ContainerExecCreate(ctx, containerName(envID), container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("could not create exec: %w", err)
	}

	attachResp, err := e.client.ContainerExecAttach(ctx, createResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("could not attach exec: %w", err)
	}

	capture := &execCapture{done: make(chan struct{})}
	e.mu.Lock()
	e.execs[createResp.ID] = capture
	e.mu.Unlock()

	go func() {
		defer close(capture.done)
		defer attachResp.Close()
		// The attached stream multiplexes stdout and stderr.
		_, _ = stdcopy.StdCopy(&capture.stdout, &capture.stderr, attachResp.Reader)
	}()

	e.logger.Debugf("Submitted command in environment %s: %s", envID, command)
	return createResp.ID, nil
}

// ExecStatus polls a submitted command for completion.
func (e *Engine) ExecStatus(ctx context.Context, envID string, execID string) (*model.ExecStatus, error) {
	e.mu.Lock()
	capture, ok := e.execs[execID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("exec %s: %w", execID, model.ErrNotFound)
	}

	inspect, err := e.client.ContainerExecInspect(ctx, execID)
	if err != nil {
		return nil, fmt.Errorf("could not inspect exec: %w", err)
	}

	if inspect.Running {
		return &model.ExecStatus{Done: false}, nil
	}

	// Wait for the output copy to drain before reading the buffers.
	select {
	case <-capture.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	status := &model.ExecStatus{
		Done:     true,
		ExitCode: inspect.ExitCode,
		Stdout:   capture.stdout.String(),
		Stderr:   capture.stderr.String(),
	}

	e.mu.Lock()
	delete(e.execs, execID)
	e.mu.Unlock()

	return status, nil
}

// Stop stops the container, gracefully by default and with SIGKILL when
// forced.
func (e *Engine) Stop(ctx context.Context, envID string, force bool) error {
	if force {
		if err := e.client.ContainerKill(ctx, containerName(envID), "SIGKILL"); err != nil {
			return fmt.Errorf("could not kill container: %w", err)
		}
		e.logger.Infof("Force stopped environment: %s", envID)
		return nil
	}

	timeout := 10
	if err := e.client.ContainerStop(ctx, containerName(envID), container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("could not stop container: %w", err)
	}
	e.logger.Infof("Stopped environment: %s", envID)
	return nil
}

// Delete removes the container.
func (e *Engine) Delete(ctx context.Context, envID string) error {
	err := e.client.ContainerRemove(ctx, containerName(envID), container.RemoveOptions{Force: true})
	if err != nil {
		if strings.Contains(err.Error(), "No such container") {
			return fmt.Errorf("container %s: %w", containerName(envID), model.ErrNotFound)
		}
		return fmt.Errorf("could not remove container: %w", err)
	}

	e.logger.Infof("Deleted environment: %s", envID)
	return nil
}
