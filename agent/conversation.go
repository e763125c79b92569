package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/HPD-AI/HPD-Agent-Framework/internal/logctx"
	"github.com/HPD-AI/HPD-Agent-Framework/streaming"
	"github.com/google/uuid"
)

// Conversation is a runtime-side conversation among one or more agents.
// Close destroys the runtime handle exactly once; the agents remain owned by
// their creator.
type Conversation struct {
	host   *Host
	id     string
	agents []string
	handle ConversationHandle

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewConversation creates a conversation among agents.
func (h *Host) NewConversation(ctx context.Context, agents ...*Agent) (*Conversation, error) {
	handles, names, err := agentHandles(agents)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ctx = logctx.WithAgentData(ctx, &logctx.AgentData{Name: names[0], Conversation: id})
	handle, err := h.runtime.CreateConversation(ctx, handles)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return h.newConversation(ctx, id, names, handle)
}

func (h *Host) newConversation(ctx context.Context, id string, names []string, handle ConversationHandle) (*Conversation, error) {
	if handle == nil {
		return nil, fmt.Errorf("create conversation: %w", ErrNilHandle)
	}
	h.logger.DebugContext(ctx, "conversation created", "agents", names)
	return &Conversation{host: h, id: id, agents: names, handle: handle}, nil
}

func agentHandles(agents []*Agent) ([]AgentHandle, []string, error) {
	if len(agents) == 0 {
		return nil, nil, ErrNoAgents
	}
	handles := make([]AgentHandle, len(agents))
	names := make([]string, len(agents))
	for i, a := range agents {
		h, err := a.liveHandle()
		if err != nil {
			return nil, nil, err
		}
		handles[i] = h
		names[i] = a.Name()
	}
	return handles, names, nil
}

// ID is a host-assigned identifier used in logs.
func (c *Conversation) ID() string { return c.id }

// Agents returns the names of the participating agents.
func (c *Conversation) Agents() []string { return append([]string(nil), c.agents...) }

func (c *Conversation) context(ctx context.Context) context.Context {
	return logctx.WithAgentData(ctx, &logctx.AgentData{Name: c.agents[0], Conversation: c.id})
}

// Send delivers message and blocks until the full reply is available.
func (c *Conversation) Send(ctx context.Context, message string) (string, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}
	ctx = c.context(ctx)
	reply, err := c.handle.Send(ctx, message)
	if err != nil {
		return "", fmt.Errorf("conversation send: %w", err)
	}
	return reply, nil
}

// SendStreaming delivers message and returns the reply as a stream of event
// JSON (see ParseEvent and Events). The caller must drain or Close the
// stream.
func (c *Conversation) SendStreaming(ctx context.Context, message string) (*streaming.Stream, error) {
	s, err := c.openReply(ctx, message, c.handle.SendStreaming)
	if err != nil {
		return nil, fmt.Errorf("conversation send streaming: %w", err)
	}
	return s, nil
}

// SendSimple delivers message and returns the reply as a stream of plain
// text chunks. Concatenating the chunks gives the full reply.
func (c *Conversation) SendSimple(ctx context.Context, message string) (*streaming.Stream, error) {
	s, err := c.openReply(ctx, message, c.handle.SendSimple)
	if err != nil {
		return nil, fmt.Errorf("conversation send simple: %w", err)
	}
	return s, nil
}

type sendFunc func(ctx context.Context, message, token string, sink streaming.Sink) error

func (c *Conversation) openReply(ctx context.Context, message string, send sendFunc) (*streaming.Stream, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	ctx = c.context(ctx)
	s := c.host.bridge.Open(ctx)
	if err := send(ctx, message, s.Token(), c.host.bridge); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close destroys the conversation. Later calls return the first call's
// result.
func (c *Conversation) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.handle.Destroy()
		c.host.logger.DebugContext(c.context(context.Background()), "conversation destroyed")
	})
	return c.closeErr
}
