package agent

import (
	"context"

	"github.com/HPD-AI/HPD-Agent-Framework/streaming"
)

// Runtime is the external agent runtime. Orchestration, conversation
// history and model-provider traffic all live behind it; this package only
// creates, drives and destroys the handles it returns.
//
// Configuration and function lists cross the boundary as JSON text.
type Runtime interface {
	CreateAgent(ctx context.Context, configJSON, functionsJSON string) (AgentHandle, error)
	CreateConversation(ctx context.Context, agents []AgentHandle) (ConversationHandle, error)
	CreateProject(ctx context.Context, name, storageDir string) (ProjectHandle, error)
}

// AgentHandle is an opaque runtime-side agent.
type AgentHandle interface {
	Destroy() error
}

// ConversationHandle is an opaque runtime-side conversation.
type ConversationHandle interface {
	// Send blocks until the runtime produces the full reply.
	Send(ctx context.Context, message string) (string, error)
	// SendStreaming starts a reply and returns. The runtime delivers the
	// reply as event JSON through sink under token, from a goroutine of its
	// choosing, and finishes with sink.End or sink.Fail.
	SendStreaming(ctx context.Context, message, token string, sink streaming.Sink) error
	// SendSimple is SendStreaming without the event envelope: each pushed
	// item is a plain chunk of reply text.
	SendSimple(ctx context.Context, message, token string, sink streaming.Sink) error
	Destroy() error
}

// ProjectHandle is an opaque runtime-side project: a scope whose
// conversations share memory and documents.
type ProjectHandle interface {
	// Info returns the project metadata as JSON text.
	Info(ctx context.Context) (string, error)
	CreateConversation(ctx context.Context, agents []AgentHandle) (ConversationHandle, error)
	Destroy() error
}

// ExportsBinder is implemented by runtimes that call back into the host's
// capabilities. NewHost hands them the host's Exports.
type ExportsBinder interface {
	BindExports(x *Exports)
}

// FunctionsObserver is implemented by runtimes that re-advertise the host's
// functions when the registry changes. NewHost calls FunctionsChanged with
// Exports.FunctionListJSON after every registration until the host is
// closed.
type FunctionsObserver interface {
	FunctionsChanged(functionListJSON string)
}
