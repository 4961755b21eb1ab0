package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/slok/agentbox/internal/capability"
	"github.com/slok/agentbox/internal/llm"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
)

const systemPrompt = `You are an autonomous coding agent. Your task is to complete coding objectives by reading, understanding, and modifying codebases.

## Guidelines

1. **Understand First**: Before making changes, explore the codebase structure and understand the existing patterns.

2. **Work Incrementally**: Make small, focused changes. Test frequently.

3. **Follow Conventions**: Match the existing code style and patterns in the repository.

4. **Be Thorough**: Consider edge cases, error handling, and testing.

5. **Document Your Work**: Add comments where appropriate and update documentation if needed.

## Process

1. Analyze the repository structure
2. Understand the existing code and patterns
3. Plan your implementation
4. Make changes incrementally
5. Test your changes
6. Commit with clear messages
7. Mark task complete when done

## Available Tools

You have tools for file operations (read, write, list, search), command execution, and git operations. Use them systematically to accomplish the task.

When you're done, use the task_complete tool to mark the task as finished.`

// AgentConfig is the configuration for the agent loop.
type AgentConfig struct {
	TaskConfig Config
	Client     llm.Client
	Registry   *capability.Registry
	Progress   *Progress
	Logger     log.Logger
}

func (c *AgentConfig) defaults() error {
	if c.Client == nil {
		return fmt.Errorf("llm client is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("capability registry is required")
	}
	if c.Progress == nil {
		return fmt.Errorf("progress writer is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "agent.Agent", "task": c.TaskConfig.TaskID})
	return nil
}

// Agent drives the bounded tool-calling conversation: one model call per
// iteration, its requested capability invocations executed sequentially in
// request order, until an explicit completion signal, a fatal error or
// iteration exhaustion.
type Agent struct {
	cfg      Config
	client   llm.Client
	registry *capability.Registry
	progress *Progress
	logger   log.Logger
}

// NewAgent creates a new agent.
func NewAgent(cfg AgentConfig) (*Agent, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Agent{
		cfg:      cfg.TaskConfig,
		client:   cfg.Client,
		registry: cfg.Registry,
		progress: cfg.Progress,
		logger:   cfg.Logger,
	}, nil
}

// Run executes the agent loop. It returns nil when the task completed, a
// wrapped exhaustion error when the iteration ceiling is reached, and the
// context error on cancellation. Single-iteration model errors are recovered
// with a corrective conversation turn.
func (a *Agent) Run(ctx context.Context) error {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: a.initialUserMessage()},
	}

	for iteration := 1; iteration <= a.cfg.MaxIterations; iteration++ {
		a.progress.Info(fmt.Sprintf("Iteration %d/%d", iteration, a.cfg.MaxIterations))

		msg, err := a.client.Chat(ctx, llm.ChatRequest{
			Model:    a.cfg.Model,
			Messages: messages,
			Tools:    a.registry.Tools(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.progress.Error(fmt.Sprintf("Error in iteration %d: %v", iteration, err))
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: fmt.Sprintf("An error occurred: %v. Please try a different approach.", err),
			})
			continue
		}

		if len(msg.ToolCalls) > 0 {
			messages = append(messages, *msg)

			done, results := a.executeToolCalls(ctx, msg.ToolCalls)
			messages = append(messages, results...)
			if done {
				return nil
			}
			continue
		}

		if msg.Content == "" {
			a.progress.Error("Empty response from model")
			continue
		}

		a.progress.Thinking(msg.Content)
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: msg.Content})
	}

	a.progress.Fail("Max iterations reached without completing task")
	return fmt.Errorf("no completion within %d iterations: %w", a.cfg.MaxIterations, model.ErrExhausted)
}

// executeToolCalls runs the requested capabilities sequentially, in request
// order, since later invocations may depend on earlier filesystem effects. It
// stops at the first terminal invocation.
func (a *Agent) executeToolCalls(ctx context.Context, calls []llm.ToolCall) (done bool, results []llm.Message) {
	for _, call := range calls {
		a.progress.Action(call.Function.Name, summarizeArgs(call.Function.Arguments))

		result := a.registry.Execute(ctx, call.Function.Name, call.Function.Arguments)
		results = append(results, llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Content:    result.Content,
		})

		if result.Terminal {
			summary := completionSummary(call.Function.Arguments)
			a.progress.Success(fmt.Sprintf("Task complete: %s", summary))
			a.progress.Complete(summary)
			return true, results
		}
	}
	return false, results
}

func (a *Agent) initialUserMessage() string {
	return fmt.Sprintf(`## Task

%s

## Repository

URL: %s
Branch: %s
Working Directory: %s

Please begin by exploring the repository structure to understand the codebase, then implement the requested changes.
`, a.cfg.Objective, a.cfg.RepositoryURL, a.cfg.Branch, a.cfg.WorkspaceDir)
}

// summarizeArgs keeps action feed entries short: just the first argument
// values, capped.
func summarizeArgs(rawArgs string) string {
	if len(rawArgs) > 100 {
		rawArgs = rawArgs[:100] + "..."
	}
	return rawArgs
}

func completionSummary(rawArgs string) string {
	args := struct {
		Summary string `json:"summary"`
	}{}
	_ = json.Unmarshal([]byte(rawArgs), &args)
	return args.Summary
}
