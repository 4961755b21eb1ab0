package capability

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
)

// allowedCommands is the fixed set of executables the shell capability may
// run, matched against the basename of the leading command token.
var allowedCommands = map[string]struct{}{
	"npm": {}, "yarn": {}, "pnpm": {}, "npx": {},
	"pip": {}, "pip3": {}, "python": {}, "python3": {},
	"node": {},
	"go":   {}, "cargo": {}, "rustc": {},
	"make": {}, "cmake": {},
	"ls": {}, "cat": {}, "head": {}, "tail": {}, "grep": {}, "find": {}, "wc": {},
	"git":  {},
	"curl": {}, "wget": {},
	"jq": {}, "yq": {},
	"echo": {}, "printf": {}, "test": {}, "mkdir": {}, "cp": {}, "mv": {}, "rm": {}, "touch": {},
	"chmod": {}, "pwd": {}, "cd": {}, "which": {}, "env": {},
}

// blockedPatterns reject destructive commands regardless of the allowlist:
// recursive root deletion, raw device writes, filesystem formatting and piping
// a network download into a shell interpreter.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf\s+/`),
	regexp.MustCompile(`(?i)>\s*/dev/`),
	regexp.MustCompile(`(?i)mkfs\.`),
	regexp.MustCompile(`(?i)dd\s+if=`),
	regexp.MustCompile(`(?i)curl.*\|\s*(ba)?sh`),
	regexp.MustCompile(`(?i)wget.*\|\s*(ba)?sh`),
}

// boundCommand configures a command so a timeout cannot hang the caller: the
// command runs in its own process group, cancellation kills the whole group,
// and Wait stops waiting on the output pipes shortly after instead of
// blocking on orphaned descendants that inherited them.
func boundCommand(cmd *exec.Cmd) *exec.Cmd {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

// AllowedCommandList returns the shell allowlist, sorted, for capability
// descriptions.
func AllowedCommandList() []string {
	cmds := make([]string, 0, len(allowedCommands))
	for cmd := range allowedCommands {
		cmds = append(cmds, cmd)
	}
	sort.Strings(cmds)
	return cmds
}

// SandboxConfig is the configuration for the execution sandbox.
type SandboxConfig struct {
	// WorkspaceDir is the root every path argument is confined to and the
	// working directory of every command.
	WorkspaceDir string
	// MaxFileSize is the read size ceiling in bytes.
	MaxFileSize int64
	// CommandTimeout is the wall clock bound per shell command.
	CommandTimeout time.Duration
	Logger         log.Logger
}

func (c *SandboxConfig) defaults() error {
	if c.WorkspaceDir == "" {
		return fmt.Errorf("workspace dir is required")
	}
	abs, err := filepath.Abs(c.WorkspaceDir)
	if err != nil {
		return fmt.Errorf("invalid workspace dir: %w", err)
	}
	// Canonicalize the root so the containment check compares real paths.
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	c.WorkspaceDir = abs

	if c.MaxFileSize == 0 {
		c.MaxFileSize = 1024 * 1024
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "capability.Sandbox"})
	return nil
}

// Sandbox validates and executes capability operations against the workspace:
// path confinement, read/result size bounds and shell command allowlisting. It
// has no knowledge of tasks or the model.
type Sandbox struct {
	workspace      string
	maxFileSize    int64
	commandTimeout time.Duration
	logger         log.Logger
}

// NewSandbox creates a new execution sandbox.
func NewSandbox(cfg SandboxConfig) (*Sandbox, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Sandbox{
		workspace:      cfg.WorkspaceDir,
		maxFileSize:    cfg.MaxFileSize,
		commandTimeout: cfg.CommandTimeout,
		logger:         cfg.Logger,
	}, nil
}

// WorkspaceDir returns the confined workspace root.
func (s *Sandbox) WorkspaceDir() string { return s.workspace }

// ResolvePath resolves a path argument against the workspace root and ensures
// the result stays inside it. Absolute paths are checked against the root as
// they are, never rebased under it. Symlinks are canonicalized so a link
// cannot point the result outside the workspace.
func (s *Sandbox) ResolvePath(path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(s.workspace, resolved)
	}
	resolved = canonicalPath(filepath.Clean(resolved))

	if resolved != s.workspace && !strings.HasPrefix(resolved, s.workspace+string(filepath.Separator)) {
		return "", fmt.Errorf("path '%s' is outside workspace: %w", path, model.ErrForbidden)
	}
	return resolved, nil
}

// canonicalPath resolves symlinks on the deepest existing ancestor of the
// path. The leaf may not exist yet (writes create it), so missing components
// are joined back on after canonicalization.
func canonicalPath(path string) string {
	suffix := ""
	for p := path; ; {
		real, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(real, suffix)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path
		}
		suffix = filepath.Join(filepath.Base(p), suffix)
		p = parent
	}
}

// ReadFile reads a workspace file, refusing files above the size ceiling.
func (s *Sandbox) ReadFile(path string) (string, error) {
	full, err := s.ResolvePath(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file '%s' does not exist: %w", path, model.ErrNotFound)
		}
		return "", fmt.Errorf("could not stat file: %w", err)
	}
	if info.Size() > s.maxFileSize {
		return "", fmt.Errorf("file too large (max %d bytes): %w", s.maxFileSize, model.ErrForbidden)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("could not read file: %w", err)
	}
	return string(data), nil
}

// WriteFile writes a workspace file, creating parent directories as needed.
func (s *Sandbox) WriteFile(path, content string) error {
	full, err := s.ResolvePath(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("could not create parent directories: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("could not write file: %w", err)
	}
	return nil
}

// ListFiles lists a workspace directory, hiding dotfiles. Directories get a
// trailing slash in the flat listing.
func (s *Sandbox) ListFiles(path string, recursive bool) (string, error) {
	full, err := s.ResolvePath(path)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("path '%s' does not exist: %w", path, model.ErrNotFound)
		}
		return "", fmt.Errorf("could not stat path: %w", err)
	}

	if !recursive {
		entries, err := os.ReadDir(full)
		if err != nil {
			return "", fmt.Errorf("could not list directory: %w", err)
		}
		names := []string{}
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		return strings.Join(names, "\n"), nil
	}

	files := []string{}
	err = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != full {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(s.workspace, p)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("could not walk directory: %w", err)
	}
	sort.Strings(files)
	return strings.Join(files, "\n"), nil
}

// Search greps the workspace for a pattern, constrained to a glob of file
// names. Result paths are workspace relative.
func (s *Sandbox) Search(ctx context.Context, pattern, path, filePattern string) (string, error) {
	full, err := s.ResolvePath(path)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cmd := boundCommand(exec.CommandContext(ctx, "grep", "-r", "-n", "-I", "--include", filePattern, pattern, full))
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("search timed out: %w", model.ErrTimeout)
	}
	if err != nil {
		// Exit code 1 means no matches.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return "No matches found", nil
		}
		return "", fmt.Errorf("search failed: %s", strings.TrimSpace(string(out)))
	}

	result := strings.ReplaceAll(string(out), s.workspace+string(filepath.Separator), "")
	if strings.TrimSpace(result) == "" {
		return "No matches found", nil
	}
	return result, nil
}

// ValidateCommand applies the sandbox command rules: blocked destructive
// patterns first, then the leading token allowlist. Pattern rejection
// dominates allowlist approval.
func (s *Sandbox) ValidateCommand(command string) error {
	for _, pattern := range blockedPatterns {
		if pattern.MatchString(command) {
			return fmt.Errorf("command matches blocked pattern: %w", model.ErrForbidden)
		}
	}

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("empty command: %w", model.ErrNotValid)
	}
	base := filepath.Base(fields[0])
	if _, ok := allowedCommands[base]; !ok {
		return fmt.Errorf("command '%s' not allowed: %w", base, model.ErrForbidden)
	}

	return nil
}

// RunCommand validates and runs a shell command in the workspace with a
// bounded wall clock timeout. Stdout and stderr are combined, a nonzero exit
// code is appended as a note rather than returned as an error so the model can
// see it.
func (s *Sandbox) RunCommand(ctx context.Context, command string) (string, error) {
	if err := s.ValidateCommand(command); err != nil {
		return "", fmt.Errorf("command blocked: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	s.logger.Debugf("Running command: %s", command)

	cmd := boundCommand(exec.CommandContext(ctx, "/bin/sh", "-c", command))
	cmd.Dir = s.workspace

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("command timed out after %s: %w", s.commandTimeout, model.ErrTimeout)
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			output += fmt.Sprintf("\n(Exit code: %d)", exitErr.ExitCode())
			return output, nil
		}
		return "", fmt.Errorf("could not run command: %w", err)
	}

	return output, nil
}

// RunGit runs a fixed, parameterized git invocation in the workspace. Version
// control operations bypass the generic allowlist: they are never arbitrary
// command strings.
func (s *Sandbox) RunGit(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	s.logger.Debugf("Running git %s", strings.Join(args, " "))

	cmd := boundCommand(exec.CommandContext(ctx, "git", args...))
	cmd.Dir = s.workspace

	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("git command timed out: %w", model.ErrTimeout)
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// Git failures (nothing to commit, push rejected) are content for
			// the model, not sandbox errors.
			return string(out), nil
		}
		return "", fmt.Errorf("could not run git: %w", err)
	}

	return string(out), nil
}
