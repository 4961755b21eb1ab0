package model

import "errors"

var (
	// ErrNotFound is returned when a resource is not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource is not valid.
	ErrNotValid = errors.New("not valid")
	// ErrTimeout is returned when a bounded wait (provisioning, address
	// acquisition, command execution or the task deadline) hits its ceiling.
	ErrTimeout = errors.New("timed out")
	// ErrUnreachable is returned when the environment has no usable address.
	ErrUnreachable = errors.New("environment unreachable")
	// ErrExhausted is returned when the agent loop hits its iteration ceiling
	// without the completion capability having been invoked.
	ErrExhausted = errors.New("iterations exhausted")
	// ErrForbidden is returned when a capability invocation is rejected by the
	// execution sandbox (path containment, allowlist or blocked pattern).
	ErrForbidden = errors.New("forbidden")
)
