package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/agentbox/internal/llm"
	"github.com/slok/agentbox/internal/llm/openai"
)

func TestClientChat(t *testing.T) {
	tests := map[string]struct {
		handler func(t *testing.T) http.HandlerFunc
		req     llm.ChatRequest
		expMsg  *llm.Message
		expErr  bool
	}{
		"A plain completion returns the assistant message": {
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					assert.Equal(t, "/v1/chat/completions", r.URL.Path)
					assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

					body, _ := io.ReadAll(r.Body)
					var got map[string]interface{}
					require.NoError(t, json.Unmarshal(body, &got))
					assert.Equal(t, "gpt-4", got["model"])
					assert.NotContains(t, got, "tool_choice")

					_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "hello"}}]}`))
				}
			},
			req: llm.ChatRequest{
				Model:    "gpt-4",
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
			},
			expMsg: &llm.Message{Role: llm.RoleAssistant, Content: "hello"},
		},

		"A request with tools sets auto tool choice and parses tool calls": {
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					body, _ := io.ReadAll(r.Body)
					var got map[string]interface{}
					require.NoError(t, json.Unmarshal(body, &got))
					assert.Equal(t, "auto", got["tool_choice"])

					_, _ = w.Write([]byte(`{"choices": [{"message": {
						"role": "assistant",
						"content": "",
						"tool_calls": [{"id": "call-1", "type": "function", "function": {"name": "read_file", "arguments": "{\"path\": \"main.go\"}"}}]
					}}]}`))
				}
			},
			req: llm.ChatRequest{
				Model:    "gpt-4",
				Messages: []llm.Message{{Role: llm.RoleUser, Content: "read main.go"}},
				Tools: []llm.Tool{{
					Type:     "function",
					Function: llm.ToolFunction{Name: "read_file", Parameters: map[string]interface{}{"type": "object"}},
				}},
			},
			expMsg: &llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					ID:   "call-1",
					Type: "function",
					Function: llm.FunctionCall{
						Name:      "read_file",
						Arguments: `{"path": "main.go"}`,
					},
				}},
			},
		},

		"A non 200 status fails": {
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`boom`))
				}
			},
			req:    llm.ChatRequest{Model: "gpt-4"},
			expErr: true,
		},

		"An empty choice list fails": {
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte(`{"choices": []}`))
				}
			},
			req:    llm.ChatRequest{Model: "gpt-4"},
			expErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler(t))
			defer server.Close()

			client, err := openai.NewClient(openai.ClientConfig{
				APIURL: server.URL,
				APIKey: "test-key",
			})
			require.NoError(t, err)

			msg, err := client.Chat(context.TODO(), tt.req)

			if tt.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expMsg, msg)
		})
	}
}

func TestClientConfigURLNormalization(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`))
	}))
	defer server.Close()

	// An URL already ending in /v1 is not doubled.
	client, err := openai.NewClient(openai.ClientConfig{APIURL: server.URL + "/v1/"})
	require.NoError(t, err)

	_, err = client.Chat(context.TODO(), llm.ChatRequest{Model: "gpt-4"})
	require.NoError(t, err)
	assert.Equal(t, "/v1/chat/completions", gotPath)
}
