package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/slok/agentbox/internal/model"
)

// Progress writes the append-only, line-delimited progress feed the
// orchestrator polls. Every entry is also echoed to stdout so the process
// output log stays useful on its own.
type Progress struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewProgress creates a progress feed writer at the given path.
func NewProgress(path string) (*Progress, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("could not create progress directory: %w", err)
	}

	return &Progress{
		path: path,
		now:  time.Now,
	}, nil
}

func (p *Progress) log(level, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := fmt.Sprintf("[%s] [%s] %s", p.now().Format("15:04:05"), level, message)
	fmt.Println(line)

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(line + "\n")
}

// Info logs an informational entry.
func (p *Progress) Info(message string) {
	p.log("INFO", message)
}

// Action logs an action being taken.
func (p *Progress) Action(action, details string) {
	msg := fmt.Sprintf("🔧 %s", action)
	if details != "" {
		msg += fmt.Sprintf(": %s", details)
	}
	p.log("ACTION", msg)
}

// Thinking logs a model reasoning snippet, truncated to keep the feed compact.
func (p *Progress) Thinking(thought string) {
	if len(thought) > 200 {
		thought = thought[:200] + "..."
	}
	p.log("THINK", fmt.Sprintf("💭 %s", thought))
}

// Success logs a success entry.
func (p *Progress) Success(message string) {
	p.log("SUCCESS", fmt.Sprintf("✅ %s", message))
}

// Error logs an error entry.
func (p *Progress) Error(message string) {
	p.log("ERROR", fmt.Sprintf("❌ %s", message))
}

// Complete writes the terminal success marker.
func (p *Progress) Complete(summary string) {
	p.log("DONE", fmt.Sprintf("%s %s", model.ProgressMarkerComplete, summary))
}

// Fail writes the terminal failure marker followed by the reason.
func (p *Progress) Fail(reason string) {
	p.log("FAIL", fmt.Sprintf("%s %s", model.ProgressMarkerFailed, reason))
}
