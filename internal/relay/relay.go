package relay

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
)

// FeedReader reads the full remote progress feed content.
type FeedReader interface {
	ReadFeed(ctx context.Context) (string, error)
}

// FeedReaderFunc is a convenience adapter to allow the use of ordinary
// functions as FeedReaders.
type FeedReaderFunc func(ctx context.Context) (string, error)

func (f FeedReaderFunc) ReadFeed(ctx context.Context) (string, error) { return f(ctx) }

// Terminal describes the terminal marker state observed in a feed.
type Terminal struct {
	Done    bool
	Success bool
	// Reason is the free text after the failure marker.
	Reason string
}

// RelayConfig is the configuration for the progress relay.
type RelayConfig struct {
	Logger log.Logger
}

func (c *RelayConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "relay.Progress"})
	return nil
}

// Relay polls a remote progress feed and computes the incremental delta since
// the last poll. The cursor is a count of previously observed lines: entries
// are line-delimited and only appended, so lines below the cursor are never
// re-delivered nor reordered.
type Relay struct {
	logger log.Logger
}

// NewRelay creates a new progress relay.
func NewRelay(cfg RelayConfig) (*Relay, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Relay{logger: cfg.Logger}, nil
}

// Poll reads the feed once and returns the entries past the cursor, the new
// cursor and the terminal marker state. Marker detection always scans the
// full feed content, not just the delta: a marker that landed in an already
// scanned chunk must still be noticed.
func (r *Relay) Poll(ctx context.Context, feed FeedReader, cursor int) ([]model.ProgressEntry, int, Terminal, error) {
	content, err := feed.ReadFeed(ctx)
	if err != nil {
		return nil, cursor, Terminal{}, fmt.Errorf("could not read progress feed: %w", err)
	}

	var lines []string
	if trimmed := strings.TrimRight(content, "\n"); trimmed != "" {
		lines = strings.Split(trimmed, "\n")
	}

	var entries []model.ProgressEntry
	if len(lines) > cursor {
		for _, line := range lines[cursor:] {
			if strings.TrimSpace(line) == "" {
				continue
			}
			entries = append(entries, ParseEntry(line))
		}
		cursor = len(lines)
	}

	return entries, cursor, detectTerminal(content), nil
}

// feedLineRegexp matches the optional leading timestamp and level tags written
// by the agent: "[HH:MM:SS] [LEVEL] message".
var feedLineRegexp = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2})\]\s*(?:\[([A-Z]+)\]\s*)?(.*)$`)

// ParseEntry parses one feed line into a progress entry. Lines without a
// leading timestamp tag are kept verbatim as info messages.
func ParseEntry(line string) model.ProgressEntry {
	match := feedLineRegexp.FindStringSubmatch(line)
	if match == nil {
		return model.ProgressEntry{Kind: model.ProgressKindInfo, Message: line}
	}

	return model.ProgressEntry{
		Timestamp: match[1],
		Kind:      kindFromLevel(match[2], match[3]),
		Message:   match[3],
	}
}

func kindFromLevel(level, message string) model.ProgressKind {
	if strings.Contains(message, model.ProgressMarkerComplete) {
		return model.ProgressKindTerminalSuccess
	}
	if strings.Contains(message, model.ProgressMarkerFailed) {
		return model.ProgressKindTerminalFailure
	}

	switch level {
	case "ACTION":
		return model.ProgressKindAction
	case "THINK":
		return model.ProgressKindThought
	case "SUCCESS":
		return model.ProgressKindSuccess
	case "ERROR":
		return model.ProgressKindError
	default:
		return model.ProgressKindInfo
	}
}

var failureReasonRegexp = regexp.MustCompile(regexp.QuoteMeta(model.ProgressMarkerFailed) + `\s*(.*)`)

func detectTerminal(content string) Terminal {
	if strings.Contains(content, model.ProgressMarkerFailed) {
		reason := ""
		if match := failureReasonRegexp.FindStringSubmatch(content); match != nil {
			reason = strings.TrimSpace(match[1])
		}
		return Terminal{Done: true, Success: false, Reason: reason}
	}
	if strings.Contains(content, model.ProgressMarkerComplete) {
		return Terminal{Done: true, Success: true}
	}
	return Terminal{}
}
