package model

// ProgressKind tags a progress entry with its severity/kind.
type ProgressKind string

const (
	ProgressKindInfo            ProgressKind = "info"
	ProgressKindAction          ProgressKind = "action"
	ProgressKindThought         ProgressKind = "thought"
	ProgressKindSuccess         ProgressKind = "success"
	ProgressKindError           ProgressKind = "error"
	ProgressKindTerminalSuccess ProgressKind = "terminal-success"
	ProgressKindTerminalFailure ProgressKind = "terminal-failure"
)

const (
	// ProgressMarkerComplete is the reserved substring that marks terminal
	// success in the progress feed.
	ProgressMarkerComplete = "[TASK_COMPLETE]"
	// ProgressMarkerFailed is the reserved substring that marks terminal
	// failure in the progress feed. The free text after it is the reason.
	ProgressMarkerFailed = "[TASK_FAILED]"
)

// ProgressEntry is one line of the append-only progress feed written by the
// remote agent.
type ProgressEntry struct {
	// Timestamp is the HH:MM:SS tag at the start of the feed line, empty when
	// the line carried none.
	Timestamp string
	Kind      ProgressKind
	Message   string
}
