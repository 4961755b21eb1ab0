package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const (
	gitUserEmail = "agent@agentbox.local"
	gitUserName  = "Agentbox Agent"
)

// CloneWorkspace clones the target repository branch into a fresh workspace
// directory and sets the commit identity the agent commits with.
func CloneWorkspace(ctx context.Context, cfg Config) error {
	// The workspace is exclusively ours, a stale one is always discardable.
	if err := os.RemoveAll(cfg.WorkspaceDir); err != nil {
		return fmt.Errorf("could not clean workspace: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkspaceDir, 0o755); err != nil {
		return fmt.Errorf("could not create workspace: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "-b", cfg.Branch, "--single-branch", cfg.RepositoryURL, cfg.WorkspaceDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("could not clone repository: %s", strings.TrimSpace(string(out)))
	}

	for _, kv := range [][2]string{
		{"user.email", gitUserEmail},
		{"user.name", gitUserName},
	} {
		cmd := exec.CommandContext(ctx, "git", "config", kv[0], kv[1])
		cmd.Dir = cfg.WorkspaceDir
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("could not set git %s: %w", kv[0], err)
		}
	}

	return nil
}
