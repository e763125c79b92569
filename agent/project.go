package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/HPD-AI/HPD-Agent-Framework/internal/logctx"
	"github.com/google/uuid"
)

// ProjectInfo is the metadata the runtime keeps for a project.
type ProjectInfo struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	ConversationCount int    `json:"conversation_count"`
	CreatedAt         string `json:"created_at"`
	LastActivity      string `json:"last_activity"`
}

// Project scopes conversations that share memory and documents in the
// runtime.
type Project struct {
	host   *Host
	name   string
	handle ProjectHandle

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewProject creates a project. An empty storageDir lets the runtime pick
// its default location.
func (h *Host) NewProject(ctx context.Context, name, storageDir string) (*Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidConfig)
	}
	handle, err := h.runtime.CreateProject(ctx, name, storageDir)
	if err != nil {
		return nil, fmt.Errorf("create project %s: %w", name, err)
	}
	if handle == nil {
		return nil, fmt.Errorf("create project %s: %w", name, ErrNilHandle)
	}
	return &Project{host: h, name: name, handle: handle}, nil
}

func (p *Project) Name() string { return p.name }

// Info fetches the project's metadata from the runtime.
func (p *Project) Info(ctx context.Context) (ProjectInfo, error) {
	if p.closed.Load() {
		return ProjectInfo{}, ErrClosed
	}
	text, err := p.handle.Info(ctx)
	if err != nil {
		return ProjectInfo{}, fmt.Errorf("project info: %w", err)
	}
	var info ProjectInfo
	if err := json.Unmarshal([]byte(text), &info); err != nil {
		return ProjectInfo{}, fmt.Errorf("decode project info: %w", err)
	}
	return info, nil
}

// NewConversation creates a conversation scoped to the project.
func (p *Project) NewConversation(ctx context.Context, agents ...*Agent) (*Conversation, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	handles, names, err := agentHandles(agents)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ctx = logctx.WithAgentData(ctx, &logctx.AgentData{Name: names[0], Conversation: id})
	handle, err := p.handle.CreateConversation(ctx, handles)
	if err != nil {
		return nil, fmt.Errorf("create project conversation: %w", err)
	}
	return p.host.newConversation(ctx, id, names, handle)
}

// Close destroys the project. Later calls return the first call's result.
func (p *Project) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.closeErr = p.handle.Destroy()
	})
	return p.closeErr
}
