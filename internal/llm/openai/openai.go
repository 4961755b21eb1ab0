package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/slok/agentbox/internal/llm"
	"github.com/slok/agentbox/internal/log"
)

// ClientConfig is the configuration for the OpenAI compatible chat client.
type ClientConfig struct {
	// APIURL is the service base URL. A missing "/v1" suffix is appended so
	// both "http://host:8080" and "http://host:8080/v1" work.
	APIURL string
	APIKey string
	// MaxTokens caps the completion size per request.
	MaxTokens int
	Client    *http.Client
	Logger    log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.APIURL == "" {
		return fmt.Errorf("api url is required")
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if !strings.HasSuffix(c.APIURL, "/v1") {
		c.APIURL += "/v1"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 120 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "llm.OpenAI"})
	return nil
}

// Client talks to any OpenAI compatible chat completions endpoint.
type Client struct {
	apiURL    string
	apiKey    string
	maxTokens int
	client    *http.Client
	logger    log.Logger
}

// NewClient creates a new OpenAI compatible chat client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		apiURL:    cfg.APIURL,
		apiKey:    cfg.APIKey,
		maxTokens: cfg.MaxTokens,
		client:    cfg.Client,
		logger:    cfg.Logger,
	}, nil
}

var _ llm.Client = (*Client)(nil)

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []llm.Message `json:"messages"`
	Tools      []llm.Tool    `json:"tools,omitempty"`
	ToolChoice string        `json:"tool_choice,omitempty"`
	MaxTokens  int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message llm.Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat runs one chat completion round trip.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.Message, error) {
	body := chatRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		Tools:     req.Tools,
		MaxTokens: c.maxTokens,
	}
	if len(req.Tools) > 0 {
		body.ToolChoice = "auto"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("could not marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debugf("Chat completion request with %d messages", len(req.Messages))

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("could not read chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode, truncate(string(respBody), 512))
	}

	chatResp := chatResponse{}
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("could not parse chat response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("chat completion error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	msg := chatResp.Choices[0].Message
	return &msg, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
