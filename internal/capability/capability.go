package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/slok/agentbox/internal/llm"
	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
)

// Args is the decoded argument mapping of one capability invocation.
type Args map[string]interface{}

// String returns a string argument or a default when absent.
func (a Args) String(key, def string) string {
	v, ok := a[key].(string)
	if !ok {
		return def
	}
	return v
}

// Bool returns a boolean argument or a default when absent.
func (a Args) Bool(key string, def bool) bool {
	v, ok := a[key].(bool)
	if !ok {
		return def
	}
	return v
}

// StringSlice returns a string list argument, tolerating the JSON decoded
// []interface{} form.
func (a Args) StringSlice(key string) []string {
	raw, ok := a[key].([]interface{})
	if !ok {
		return nil
	}
	res := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			res = append(res, s)
		}
	}
	return res
}

// Capability is one named, schema described operation the agent can invoke.
type Capability interface {
	Name() string
	Description() string
	// Parameters returns the JSON schema of the capability arguments.
	Parameters() map[string]interface{}
	// Terminal reports whether a successful invocation ends the agent run.
	Terminal() bool
	Execute(ctx context.Context, args Args) (string, error)
}

// Result is the outcome of one capability invocation. Errors are folded into
// the content so the model can observe and recover from them.
type Result struct {
	Content  string
	Terminal bool
}

// RegistryConfig is the configuration for the capability registry.
type RegistryConfig struct {
	// MaxResultSize caps every capability result before it reaches the
	// conversation.
	MaxResultSize int
	Logger        log.Logger
}

func (c *RegistryConfig) defaults() error {
	if c.MaxResultSize == 0 {
		c.MaxResultSize = 10000
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "capability.Registry"})
	return nil
}

// Registry maps capability names to implementations and exposes their model
// facing invocation schemas.
type Registry struct {
	caps      map[string]Capability
	order     []string
	maxResult int
	logger    log.Logger
}

// NewRegistry creates a new capability registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Registry{
		caps:      map[string]Capability{},
		maxResult: cfg.MaxResultSize,
		logger:    cfg.Logger,
	}, nil
}

// Register adds a capability to the registry.
func (r *Registry) Register(c Capability) error {
	if _, ok := r.caps[c.Name()]; ok {
		return fmt.Errorf("capability %s: %w", c.Name(), model.ErrAlreadyExists)
	}
	r.caps[c.Name()] = c
	r.order = append(r.order, c.Name())
	return nil
}

// Tools returns the model facing tool declarations, in registration order.
func (r *Registry) Tools() []llm.Tool {
	tools := make([]llm.Tool, 0, len(r.caps))
	for _, name := range r.order {
		c := r.caps[name]
		tools = append(tools, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        c.Name(),
				Description: c.Description(),
				Parameters:  c.Parameters(),
			},
		})
	}
	return tools
}

// Names returns the registered capability names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const truncationMarker = "\n\n... (truncated)"

// Execute decodes the arguments and runs the named capability. Invocation
// errors (unknown capability, bad arguments, capability failures) are
// recoverable: they come back as result content for the model to react to,
// never as Go errors.
func (r *Registry) Execute(ctx context.Context, name, rawArgs string) Result {
	c, ok := r.caps[name]
	if !ok {
		return Result{Content: fmt.Sprintf("Error: Unknown capability '%s'", name)}
	}

	args := Args{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return Result{Content: fmt.Sprintf("Error: Invalid JSON arguments: %s", rawArgs)}
		}
	}

	r.logger.Debugf("Executing capability %s", name)

	content, err := c.Execute(ctx, args)
	if err != nil {
		return Result{Content: fmt.Sprintf("Error: %v", err)}
	}
	if content == "" {
		content = "(No output)"
	}
	if len(content) > r.maxResult {
		content = content[:r.maxResult] + truncationMarker
	}

	return Result{Content: content, Terminal: c.Terminal()}
}
