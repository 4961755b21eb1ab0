package capability

import (
	"context"
	"fmt"
)

// ReadFile reads a workspace file.
type ReadFile struct {
	sandbox *Sandbox
}

// NewReadFile creates the read_file capability.
func NewReadFile(sandbox *Sandbox) *ReadFile { return &ReadFile{sandbox: sandbox} }

func (c *ReadFile) Name() string        { return "read_file" }
func (c *ReadFile) Description() string { return "Read the contents of a file" }
func (c *ReadFile) Terminal() bool      { return false }

func (c *ReadFile) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Relative path to the file within the workspace",
			},
		},
		"required": []string{"path"},
	}
}

func (c *ReadFile) Execute(ctx context.Context, args Args) (string, error) {
	return c.sandbox.ReadFile(args.String("path", ""))
}

// WriteFile writes a workspace file.
type WriteFile struct {
	sandbox *Sandbox
}

// NewWriteFile creates the write_file capability.
func NewWriteFile(sandbox *Sandbox) *WriteFile { return &WriteFile{sandbox: sandbox} }

func (c *WriteFile) Name() string { return "write_file" }
func (c *WriteFile) Description() string {
	return "Write content to a file (creates directories if needed)"
}
func (c *WriteFile) Terminal() bool { return false }

func (c *WriteFile) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Relative path to the file within the workspace",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to write to the file",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (c *WriteFile) Execute(ctx context.Context, args Args) (string, error) {
	path := args.String("path", "")
	content := args.String("content", "")
	if err := c.sandbox.WriteFile(path, content); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

// ListFiles lists workspace files and directories.
type ListFiles struct {
	sandbox *Sandbox
}

// NewListFiles creates the list_files capability.
func NewListFiles(sandbox *Sandbox) *ListFiles { return &ListFiles{sandbox: sandbox} }

func (c *ListFiles) Name() string        { return "list_files" }
func (c *ListFiles) Description() string { return "List files and directories in a path" }
func (c *ListFiles) Terminal() bool      { return false }

func (c *ListFiles) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Relative path to list (default: current directory)",
				"default":     ".",
			},
			"recursive": map[string]interface{}{
				"type":        "boolean",
				"description": "List files recursively",
				"default":     false,
			},
		},
		"required": []string{},
	}
}

func (c *ListFiles) Execute(ctx context.Context, args Args) (string, error) {
	return c.sandbox.ListFiles(args.String("path", "."), args.Bool("recursive", false))
}

// SearchFiles greps the workspace for a pattern.
type SearchFiles struct {
	sandbox *Sandbox
}

// NewSearchFiles creates the search_files capability.
func NewSearchFiles(sandbox *Sandbox) *SearchFiles { return &SearchFiles{sandbox: sandbox} }

func (c *SearchFiles) Name() string        { return "search_files" }
func (c *SearchFiles) Description() string { return "Search for a pattern in files using grep" }
func (c *SearchFiles) Terminal() bool      { return false }

func (c *SearchFiles) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Search pattern (regex)",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to search in",
				"default":     ".",
			},
			"file_pattern": map[string]interface{}{
				"type":        "string",
				"description": "File glob pattern (e.g., '*.py')",
				"default":     "*",
			},
		},
		"required": []string{"pattern"},
	}
}

func (c *SearchFiles) Execute(ctx context.Context, args Args) (string, error) {
	return c.sandbox.Search(ctx, args.String("pattern", ""), args.String("path", "."), args.String("file_pattern", "*"))
}
