package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when using an agent, conversation or project
	// after Close.
	ErrClosed = errors.New("agent: resource closed")
	// ErrNoAgents is returned when creating a conversation without agents.
	ErrNoAgents = errors.New("agent: at least one agent is required to create a conversation")
	// ErrInvalidConfig wraps configuration problems.
	ErrInvalidConfig = errors.New("agent: invalid config")
	// ErrNilHandle is returned when the runtime reports success but hands
	// back no handle.
	ErrNilHandle = errors.New("agent: runtime returned no handle")
)

// RuntimeError is an ERROR event reported by the runtime during a streamed
// reply.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("agent runtime error: %s", e.Message) }
