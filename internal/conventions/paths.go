package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default agentbox data directory name (relative to home).
	DefaultDataDir = ".agentbox"
	// DBFile is the SQLite database filename.
	DBFile = "agentbox.db"

	// Guest-side artifacts. These paths are the message-passing boundary
	// between the orchestrator and the in-guest agent: config in, progress
	// and result out.

	// GuestDir is the directory inside the environment holding the agent
	// runtime and its artifacts.
	GuestDir = "/opt/agentbox"
	// GuestConfigFile is the injected task configuration filename.
	GuestConfigFile = "task.json"
	// GuestProgressFile is the append-only progress feed filename.
	GuestProgressFile = "progress.log"
	// GuestResultFile is the structured result artifact filename.
	GuestResultFile = "result.json"
	// GuestOutputFile captures the agent process stdout/stderr.
	GuestOutputFile = "output.log"
	// GuestAgentBinary is the agent runtime binary name inside the guest.
	GuestAgentBinary = "agentbox-agent"

	// GuestWorkspaceDir is where the agent clones the target repository.
	GuestWorkspaceDir = "/home/agent/workspace"
)

// GuestConfigPath returns the injected task configuration path inside the guest.
func GuestConfigPath() string { return filepath.Join(GuestDir, GuestConfigFile) }

// GuestProgressPath returns the progress feed path inside the guest.
func GuestProgressPath() string { return filepath.Join(GuestDir, GuestProgressFile) }

// GuestResultPath returns the result artifact path inside the guest.
func GuestResultPath() string { return filepath.Join(GuestDir, GuestResultFile) }

// GuestOutputPath returns the agent process output path inside the guest.
func GuestOutputPath() string { return filepath.Join(GuestDir, GuestOutputFile) }

// DBPath returns the full path of the database file inside a data directory.
func DBPath(dataDir string) string { return filepath.Join(dataDir, DBFile) }
