package capability

import (
	"context"
	"fmt"
	"strings"
)

// ExecuteCommand runs a sandboxed shell command.
type ExecuteCommand struct {
	sandbox *Sandbox
}

// NewExecuteCommand creates the execute_command capability.
func NewExecuteCommand(sandbox *Sandbox) *ExecuteCommand {
	return &ExecuteCommand{sandbox: sandbox}
}

func (c *ExecuteCommand) Name() string { return "execute_command" }
func (c *ExecuteCommand) Description() string {
	return fmt.Sprintf("Execute a shell command. Allowed commands: %s", strings.Join(AllowedCommandList(), ", "))
}
func (c *ExecuteCommand) Terminal() bool { return false }

func (c *ExecuteCommand) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to execute",
			},
		},
		"required": []string{"command"},
	}
}

func (c *ExecuteCommand) Execute(ctx context.Context, args Args) (string, error) {
	return c.sandbox.RunCommand(ctx, args.String("command", ""))
}
