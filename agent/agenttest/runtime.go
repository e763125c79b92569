// Package agenttest provides an in-memory agent.Runtime for tests.
//
// The fake runtime answers every message itself. A message of the form
//
//	/call <capability> <json args>
//
// is executed through the host's agent.Exports, exactly as a real runtime
// calling back into the host would, and "/fail <reason>" makes a streamed
// reply fail. A /call whose arguments are not valid JSON fails a streamed
// reply because its FUNCTION_CALL_STARTED event cannot be encoded. Streamed replies are pushed from a goroutine the consumer does
// not control.
package agenttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/HPD-AI/HPD-Agent-Framework/agent"
	"github.com/HPD-AI/HPD-Agent-Framework/streaming"
	"github.com/google/uuid"
)

// ErrDestroyed is returned when a handle is destroyed twice or used after
// being destroyed.
var ErrDestroyed = errors.New("agenttest: handle already destroyed")

// Runtime is a fake agent.Runtime.
type Runtime struct {
	mu        sync.Mutex
	exports   *agent.Exports
	agents    map[*AgentHandle]struct{}
	convs     map[*ConversationHandle]struct{}
	projects  map[*ProjectHandle]struct{}
	destroyed int
	failNext  error
	functions []string
}

var (
	_ agent.Runtime           = (*Runtime)(nil)
	_ agent.ExportsBinder     = (*Runtime)(nil)
	_ agent.FunctionsObserver = (*Runtime)(nil)
)

func New() *Runtime {
	return &Runtime{
		agents:   make(map[*AgentHandle]struct{}),
		convs:    make(map[*ConversationHandle]struct{}),
		projects: make(map[*ProjectHandle]struct{}),
	}
}

// BindExports implements agent.ExportsBinder.
func (r *Runtime) BindExports(x *agent.Exports) {
	r.mu.Lock()
	r.exports = x
	r.mu.Unlock()
}

// FunctionsChanged implements agent.FunctionsObserver.
func (r *Runtime) FunctionsChanged(functionListJSON string) {
	r.mu.Lock()
	r.functions = append(r.functions, functionListJSON)
	r.mu.Unlock()
}

// FunctionLists returns every function list the host advertised, oldest first.
func (r *Runtime) FunctionLists() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.functions...)
}

// FailNextCreate makes the next Create* call return err.
func (r *Runtime) FailNextCreate(err error) {
	r.mu.Lock()
	r.failNext = err
	r.mu.Unlock()
}

func (r *Runtime) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

// Live returns the number of handles created and not yet destroyed.
func (r *Runtime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents) + len(r.convs) + len(r.projects)
}

// Destroyed returns the number of successful Destroy calls.
func (r *Runtime) Destroyed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// AgentHandle records what the agent was created with.
type AgentHandle struct {
	rt        *Runtime
	Config    agent.Config
	Functions []agent.FunctionInfo
}

func (r *Runtime) CreateAgent(ctx context.Context, configJSON, functionsJSON string) (agent.AgentHandle, error) {
	h := &AgentHandle{rt: r}
	if err := json.Unmarshal([]byte(configJSON), &h.Config); err != nil {
		return nil, fmt.Errorf("agenttest: config: %w", err)
	}
	if err := json.Unmarshal([]byte(functionsJSON), &h.Functions); err != nil {
		return nil, fmt.Errorf("agenttest: functions: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	r.agents[h] = struct{}{}
	return h, nil
}

func (h *AgentHandle) Destroy() error {
	r := h.rt
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[h]; !ok {
		return ErrDestroyed
	}
	delete(r.agents, h)
	r.destroyed++
	return nil
}

func (r *Runtime) CreateConversation(ctx context.Context, agents []agent.AgentHandle) (agent.ConversationHandle, error) {
	return r.newConversation(agents)
}

func (r *Runtime) newConversation(agents []agent.AgentHandle) (*ConversationHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		return nil, errors.New("agenttest: conversation without agents")
	}
	c := &ConversationHandle{rt: r}
	for _, a := range agents {
		ah, ok := a.(*AgentHandle)
		if !ok {
			return nil, fmt.Errorf("agenttest: foreign agent handle %T", a)
		}
		if _, live := r.agents[ah]; !live {
			return nil, ErrDestroyed
		}
		c.agents = append(c.agents, ah)
	}
	r.convs[c] = struct{}{}
	return c, nil
}

// ConversationHandle answers messages on behalf of its first agent.
type ConversationHandle struct {
	rt     *Runtime
	agents []*AgentHandle

	mu      sync.Mutex
	history []string
}

// History returns the messages the conversation received.
func (c *ConversationHandle) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.history...)
}

func (c *ConversationHandle) live() bool {
	c.rt.mu.Lock()
	defer c.rt.mu.Unlock()
	_, ok := c.rt.convs[c]
	return ok
}

func (c *ConversationHandle) record(message string) {
	c.mu.Lock()
	c.history = append(c.history, message)
	c.mu.Unlock()
}

// parseCall splits "/call name {args}".
func parseCall(message string) (name, args string, ok bool) {
	rest, found := strings.CutPrefix(message, "/call ")
	if !found {
		return "", "", false
	}
	name, args, _ = strings.Cut(strings.TrimSpace(rest), " ")
	return name, strings.TrimSpace(args), name != ""
}

func (c *ConversationHandle) execute(ctx context.Context, name, args string) string {
	c.rt.mu.Lock()
	x := c.rt.exports
	c.rt.mu.Unlock()
	if x == nil {
		return `{"success":false,"error":"no exports bound"}`
	}
	return x.Execute(ctx, name, args)
}

func (c *ConversationHandle) Send(ctx context.Context, message string) (string, error) {
	if !c.live() {
		return "", ErrDestroyed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.record(message)
	return c.reply(ctx, message), nil
}

func (c *ConversationHandle) SendStreaming(ctx context.Context, message, token string, sink streaming.Sink) error {
	if !c.live() {
		return ErrDestroyed
	}
	c.record(message)
	// The reply outlives the call; it is not tied to the caller's context.
	go c.stream(context.WithoutCancel(ctx), message, token, sink)
	return nil
}

// SendSimple pushes the reply as plain word chunks with no event envelope.
func (c *ConversationHandle) SendSimple(ctx context.Context, message, token string, sink streaming.Sink) error {
	if !c.live() {
		return ErrDestroyed
	}
	c.record(message)
	go func(ctx context.Context) {
		if reason, ok := strings.CutPrefix(message, "/fail "); ok {
			sink.Fail(token, reason)
			return
		}
		for _, word := range strings.SplitAfter(c.reply(ctx, message), " ") {
			sink.Push(token, word)
			time.Sleep(time.Microsecond)
		}
		sink.End(token)
	}(context.WithoutCancel(ctx))
	return nil
}

func (c *ConversationHandle) reply(ctx context.Context, message string) string {
	if name, args, ok := parseCall(message); ok {
		if args == "" {
			args = "{}"
		}
		return c.execute(ctx, name, args)
	}
	return c.agents[0].Config.Name + ": " + message
}

func (c *ConversationHandle) stream(ctx context.Context, message, token string, sink streaming.Sink) {
	// emit reports false once the reply has been failed.
	emit := func(ev agent.Event) bool {
		text, err := ev.Encode()
		if err != nil {
			sink.Fail(token, err.Error())
			return false
		}
		sink.Push(token, text)
		time.Sleep(time.Microsecond)
		return true
	}

	if !emit(agent.Event{Type: agent.EventStepStarted, Step: "respond"}) {
		return
	}
	if reason, ok := strings.CutPrefix(message, "/fail "); ok {
		sink.Fail(token, reason)
		return
	}

	reply := c.agents[0].Config.Name + ": " + message
	if name, args, ok := parseCall(message); ok {
		if args == "" {
			args = "{}"
		}
		if !emit(agent.Event{Type: agent.EventFunctionCallStarted, FunctionName: name, Arguments: json.RawMessage(args)}) {
			return
		}
		reply = c.execute(ctx, name, args)
		if !emit(agent.Event{Type: agent.EventFunctionCallResult, FunctionName: name, Result: reply}) {
			return
		}
	}
	for _, word := range strings.SplitAfter(reply, " ") {
		if !emit(agent.Event{Type: agent.EventTextMessageContent, Content: word}) {
			return
		}
	}
	if emit(agent.Event{Type: agent.EventStepCompleted, Step: "respond"}) &&
		emit(agent.Event{Type: agent.EventConversationEnded}) {
		sink.End(token)
	}
}

func (c *ConversationHandle) Destroy() error {
	r := c.rt
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[c]; !ok {
		return ErrDestroyed
	}
	delete(r.convs, c)
	r.destroyed++
	return nil
}

func (r *Runtime) CreateProject(ctx context.Context, name, storageDir string) (agent.ProjectHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return nil, err
	}
	p := &ProjectHandle{
		rt:         r,
		id:         uuid.NewString(),
		name:       name,
		storageDir: storageDir,
		created:    time.Now().UTC(),
	}
	r.projects[p] = struct{}{}
	return p, nil
}

// ProjectHandle counts the conversations created in it.
type ProjectHandle struct {
	rt         *Runtime
	id         string
	name       string
	storageDir string
	created    time.Time

	mu            sync.Mutex
	conversations int
	lastActivity  time.Time
}

func (p *ProjectHandle) Info(ctx context.Context) (string, error) {
	p.mu.Lock()
	last := p.lastActivity
	if last.IsZero() {
		last = p.created
	}
	info := agent.ProjectInfo{
		ID:                p.id,
		Name:              p.name,
		Description:       "storage: " + p.storageDir,
		ConversationCount: p.conversations,
		CreatedAt:         p.created.Format(time.RFC3339),
		LastActivity:      last.Format(time.RFC3339),
	}
	p.mu.Unlock()
	b, err := json.Marshal(info)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *ProjectHandle) CreateConversation(ctx context.Context, agents []agent.AgentHandle) (agent.ConversationHandle, error) {
	c, err := p.rt.newConversation(agents)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.conversations++
	p.lastActivity = time.Now().UTC()
	p.mu.Unlock()
	return c, nil
}

func (p *ProjectHandle) Destroy() error {
	r := p.rt
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[p]; !ok {
		return ErrDestroyed
	}
	delete(r.projects, p)
	r.destroyed++
	return nil
}
