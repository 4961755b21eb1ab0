package llmmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/agentbox/internal/llm"
)

// MockClient is a testify mock of llm.Client.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Chat(ctx context.Context, req llm.ChatRequest) (*llm.Message, error) {
	args := m.Called(ctx, req)
	msg, _ := args.Get(0).(*llm.Message)
	return msg, args.Error(1)
}
