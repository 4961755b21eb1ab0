package capability

import (
	"context"
)

// GitStatus reports the repository working tree status.
type GitStatus struct {
	sandbox *Sandbox
}

// NewGitStatus creates the git_status capability.
func NewGitStatus(sandbox *Sandbox) *GitStatus { return &GitStatus{sandbox: sandbox} }

func (c *GitStatus) Name() string        { return "git_status" }
func (c *GitStatus) Description() string { return "Check git status of the repository" }
func (c *GitStatus) Terminal() bool      { return false }

func (c *GitStatus) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
		"required":   []string{},
	}
}

func (c *GitStatus) Execute(ctx context.Context, args Args) (string, error) {
	return c.sandbox.RunGit(ctx, "status")
}

// GitDiff shows pending repository changes.
type GitDiff struct {
	sandbox *Sandbox
}

// NewGitDiff creates the git_diff capability.
func NewGitDiff(sandbox *Sandbox) *GitDiff { return &GitDiff{sandbox: sandbox} }

func (c *GitDiff) Name() string        { return "git_diff" }
func (c *GitDiff) Description() string { return "Show git diff of changes" }
func (c *GitDiff) Terminal() bool      { return false }

func (c *GitDiff) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"staged": map[string]interface{}{
				"type":        "boolean",
				"description": "Show only staged changes",
				"default":     false,
			},
		},
		"required": []string{},
	}
}

func (c *GitDiff) Execute(ctx context.Context, args Args) (string, error) {
	gitArgs := []string{"diff"}
	if args.Bool("staged", false) {
		gitArgs = append(gitArgs, "--staged")
	}
	out, err := c.sandbox.RunGit(ctx, gitArgs...)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "(No changes)", nil
	}
	return out, nil
}

// GitCommit stages everything and creates a commit.
type GitCommit struct {
	sandbox *Sandbox
}

// NewGitCommit creates the git_commit capability.
func NewGitCommit(sandbox *Sandbox) *GitCommit { return &GitCommit{sandbox: sandbox} }

func (c *GitCommit) Name() string        { return "git_commit" }
func (c *GitCommit) Description() string { return "Stage all changes and create a commit" }
func (c *GitCommit) Terminal() bool      { return false }

func (c *GitCommit) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Commit message",
			},
		},
		"required": []string{"message"},
	}
}

func (c *GitCommit) Execute(ctx context.Context, args Args) (string, error) {
	if _, err := c.sandbox.RunGit(ctx, "add", "-A"); err != nil {
		return "", err
	}
	return c.sandbox.RunGit(ctx, "commit", "-m", args.String("message", ""))
}

// GitPush pushes commits to the remote.
type GitPush struct {
	sandbox       *Sandbox
	defaultBranch string
}

// NewGitPush creates the git_push capability. The default branch is used when
// the model omits one.
func NewGitPush(sandbox *Sandbox, defaultBranch string) *GitPush {
	return &GitPush{sandbox: sandbox, defaultBranch: defaultBranch}
}

func (c *GitPush) Name() string        { return "git_push" }
func (c *GitPush) Description() string { return "Push commits to the remote repository" }
func (c *GitPush) Terminal() bool      { return false }

func (c *GitPush) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"branch": map[string]interface{}{
				"type":        "string",
				"description": "Branch to push (default: task branch)",
			},
			"force": map[string]interface{}{
				"type":        "boolean",
				"description": "Force push",
				"default":     false,
			},
		},
		"required": []string{},
	}
}

func (c *GitPush) Execute(ctx context.Context, args Args) (string, error) {
	branch := args.String("branch", c.defaultBranch)

	gitArgs := []string{"push"}
	if args.Bool("force", false) {
		gitArgs = append(gitArgs, "-f")
	}
	gitArgs = append(gitArgs, "origin", branch)

	return c.sandbox.RunGit(ctx, gitArgs...)
}
