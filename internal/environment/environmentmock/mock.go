package environmentmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/agentbox/internal/model"
)

// MockEngine is a testify mock of environment.Engine.
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) Clone(ctx context.Context, template, name string) (*model.Environment, string, error) {
	args := m.Called(ctx, template, name)
	env, _ := args.Get(0).(*model.Environment)
	return env, args.String(1), args.Error(2)
}

func (m *MockEngine) PollOperation(ctx context.Context, opID string) (*model.OperationStatus, error) {
	args := m.Called(ctx, opID)
	status, _ := args.Get(0).(*model.OperationStatus)
	return status, args.Error(1)
}

func (m *MockEngine) Configure(ctx context.Context, envID string, cfg model.EnvironmentConfig) error {
	args := m.Called(ctx, envID, cfg)
	return args.Error(0)
}

func (m *MockEngine) Start(ctx context.Context, envID string) error {
	args := m.Called(ctx, envID)
	return args.Error(0)
}

func (m *MockEngine) QueryNetwork(ctx context.Context, envID string) (string, error) {
	args := m.Called(ctx, envID)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) ExecStart(ctx context.Context, envID string, command string) (string, error) {
	args := m.Called(ctx, envID, command)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) ExecStatus(ctx context.Context, envID string, execID string) (*model.ExecStatus, error) {
	args := m.Called(ctx, envID, execID)
	status, _ := args.Get(0).(*model.ExecStatus)
	return status, args.Error(1)
}

func (m *MockEngine) Stop(ctx context.Context, envID string, force bool) error {
	args := m.Called(ctx, envID, force)
	return args.Error(0)
}

func (m *MockEngine) Delete(ctx context.Context, envID string) error {
	args := m.Called(ctx, envID)
	return args.Error(0)
}
