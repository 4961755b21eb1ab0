package list_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/app/list"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config list.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: list.ServiceConfig{
				Repository: &storagemock.MockRepository{},
				Logger:     log.Noop,
			},
			expErr: false,
		},
		"missing repository should fail": {
			config: list.ServiceConfig{
				Logger: log.Noop,
			},
			expErr: true,
		},
		"nil logger should default to noop": {
			config: list.ServiceConfig{
				Repository: &storagemock.MockRepository{},
			},
			expErr: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			svc, err := list.NewService(test.config)

			if test.expErr {
				require.Error(err)
				require.Nil(svc)
			} else {
				require.NoError(err)
				require.NotNil(svc)
			}
		})
	}
}

func TestService_Run(t *testing.T) {
	createdAt := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	running := model.TaskStatusRunning
	completed := model.TaskStatusCompleted

	tests := map[string]struct {
		mock      func(m *storagemock.MockRepository)
		req       list.Request
		expResult func() []model.Task
		expErr    bool
	}{
		"list all tasks without filter": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything).Once().Return([]model.Task{
					{ID: "id1", Status: model.TaskStatusRunning, CreatedAt: createdAt},
					{ID: "id2", Status: model.TaskStatusCompleted, CreatedAt: createdAt},
				}, nil)
			},
			req: list.Request{},
			expResult: func() []model.Task {
				return []model.Task{
					{ID: "id1", Status: model.TaskStatusRunning, CreatedAt: createdAt},
					{ID: "id2", Status: model.TaskStatusCompleted, CreatedAt: createdAt},
				}
			},
			expErr: false,
		},
		"filter by running status": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything).Once().Return([]model.Task{
					{ID: "id1", Status: model.TaskStatusRunning, CreatedAt: createdAt},
					{ID: "id2", Status: model.TaskStatusCompleted, CreatedAt: createdAt},
					{ID: "id3", Status: model.TaskStatusRunning, CreatedAt: createdAt},
				}, nil)
			},
			req: list.Request{StatusFilter: &running},
			expResult: func() []model.Task {
				return []model.Task{
					{ID: "id1", Status: model.TaskStatusRunning, CreatedAt: createdAt},
					{ID: "id3", Status: model.TaskStatusRunning, CreatedAt: createdAt},
				}
			},
			expErr: false,
		},
		"filter with no matches returns empty list": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything).Once().Return([]model.Task{
					{ID: "id1", Status: model.TaskStatusRunning, CreatedAt: createdAt},
				}, nil)
			},
			req: list.Request{StatusFilter: &completed},
			expResult: func() []model.Task {
				return []model.Task{}
			},
			expErr: false,
		},
		"repository error should propagate": {
			mock: func(m *storagemock.MockRepository) {
				m.On("ListTasks", mock.Anything).Once().Return(nil, fmt.Errorf("database error"))
			},
			req:       list.Request{},
			expResult: nil,
			expErr:    true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			// Setup
			m := &storagemock.MockRepository{}
			test.mock(m)

			svc, err := list.NewService(list.ServiceConfig{
				Repository: m,
				Logger:     log.Noop,
			})
			require.NoError(err)

			// Execute
			result, err := svc.Run(context.Background(), test.req)

			// Verify
			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
				if test.expResult != nil {
					assert.Equal(test.expResult(), result)
				}
			}

			m.AssertExpectations(t)
		})
	}
}
