package model

import "time"

// EnvironmentPhase represents the lifecycle phase of a leased environment.
type EnvironmentPhase string

const (
	// EnvironmentPhaseRequested indicates the environment is being cloned
	// from its template.
	EnvironmentPhaseRequested EnvironmentPhase = "requested"
	// EnvironmentPhaseConfigured indicates resources and tags were applied.
	EnvironmentPhaseConfigured EnvironmentPhase = "configured"
	// EnvironmentPhaseRunning indicates the environment is started.
	EnvironmentPhaseRunning EnvironmentPhase = "running"
	// EnvironmentPhaseStopped indicates the environment has been stopped.
	EnvironmentPhaseStopped EnvironmentPhase = "stopped"
	// EnvironmentPhaseDestroyed indicates the environment was deleted.
	// Destroyed environments can't be revived, a new provisioning cycle is
	// required.
	EnvironmentPhaseDestroyed EnvironmentPhase = "destroyed"
)

// Environment is the lease over one isolated remote execution target for one
// task.
type Environment struct {
	ID     string
	Name   string
	TaskID string
	Phase  EnvironmentPhase

	// Address is the environment's network address. Empty until assigned;
	// it may stay empty if the guest never reports one, in which case exec
	// calls fail fast with ErrUnreachable.
	Address string

	CreatedAt time.Time
}

// EnvironmentConfig is the resource configuration applied to an environment
// before starting it.
type EnvironmentConfig struct {
	Resources Resources
	// Tag correlates the environment with its owning task on the provider side.
	Tag string
}

// OperationStatus is the status of an asynchronous provider operation.
type OperationStatus struct {
	Done bool
	OK   bool
	// Message carries the provider error detail when the operation finished
	// without success.
	Message string
}

// ExecStatus is the status of a command running inside an environment.
type ExecStatus struct {
	Done     bool
	ExitCode int
	Stdout   string
	Stderr   string
}

// ExecResult contains the final result of a command executed inside an
// environment.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}
