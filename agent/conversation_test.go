package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/HPD-AI/HPD-Agent-Framework/agent"
	"github.com/HPD-AI/HPD-Agent-Framework/agent/agenttest"
	"github.com/HPD-AI/HPD-Agent-Framework/capability"
	"github.com/HPD-AI/HPD-Agent-Framework/streaming"
	"github.com/google/go-cmp/cmp"
)

type addArgs struct {
	A float64 `json:"a" jsonschema:"description=First addend"`
	B float64 `json:"b" jsonschema:"description=Second addend"`
}

func mathPlugin() capability.Plugin {
	add := capability.New("add", func(ctx context.Context, args addArgs) (any, error) {
		return args.A + args.B, nil
	}, capability.WithDescription("Adds two numbers"))
	return capability.NewPlugin("math", "Basic arithmetic", add)
}

func newHost(t *testing.T) (*agent.Host, *agenttest.Runtime) {
	t.Helper()
	rt := agenttest.New()
	h := agent.NewHost(rt, agent.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(h.Close)
	return h, rt
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func buildAgent(t *testing.T, h *agent.Host, name string) *agent.Agent {
	t.Helper()
	a, err := h.NewBuilder(name).
		WithInstructions("You are a calculator.").
		WithOllama("llama3.2").
		WithPlugin(mathPlugin()).
		Build(testContext(t))
	if err != nil {
		t.Fatalf("Build(%s): %v", name, err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestBuilder_AdvertisesPluginFunctions(t *testing.T) {
	h, _ := newHost(t)
	a := buildAgent(t, h, "calc")

	fns := a.Functions()
	if len(fns) != 1 {
		t.Fatalf("expected 1 function, got %d", len(fns))
	}
	fi := fns[0]
	if fi.Name != "add" || fi.Description != "Adds two numbers" || fi.Plugin != "math" {
		t.Fatalf("unexpected function info %+v", fi)
	}
	var schema capability.FunctionSchema
	if err := json.Unmarshal([]byte(fi.Schema), &schema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, schema.Function.Parameters.Required); diff != "" {
		t.Fatalf("required (-want +got):\n%s", diff)
	}

	// A second agent reuses the already registered plugin.
	buildAgent(t, h, "calc2")
	if got := h.Registry().Stats().Capabilities; got != 1 {
		t.Fatalf("registry holds %d capabilities, want 1", got)
	}
}

func TestHost_AdvertisesFunctionChanges(t *testing.T) {
	h, rt := newHost(t)
	if err := h.Registry().RegisterPlugin(mathPlugin()); err != nil {
		t.Fatalf("RegisterPlugin: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		lists := rt.FunctionLists()
		if len(lists) > 0 && lists[len(lists)-1] == `["add"]` {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("function lists = %q, want a final [\"add\"]", lists)
		}
		time.Sleep(time.Millisecond)
	}

	h.Close()
	before := len(rt.FunctionLists())
	if err := h.Registry().Add(capability.Define("late", nil, capability.ExecutorFunc(
		func(ctx context.Context, args capability.Args) (any, error) { return nil, nil }))); err == nil {
		t.Fatalf("registration after Close succeeded")
	}
	time.Sleep(10 * time.Millisecond)
	if got := len(rt.FunctionLists()); got != before {
		t.Fatalf("function lists grew after Close: %d -> %d", before, got)
	}
}

func TestBuilder_Errors(t *testing.T) {
	h, _ := newHost(t)
	if _, err := h.NewBuilder("x").WithCapabilities("nope").Build(testContext(t)); !errors.Is(err, capability.ErrUnknownCapability) {
		t.Fatalf("expected ErrUnknownCapability, got %v", err)
	}
	if _, err := h.NewBuilder("").Build(testContext(t)); !errors.Is(err, agent.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuilder_RuntimeFailure(t *testing.T) {
	h, rt := newHost(t)
	boom := errors.New("runtime unavailable")
	rt.FailNextCreate(boom)
	if _, err := h.NewBuilder("x").Build(testContext(t)); !errors.Is(err, boom) {
		t.Fatalf("expected runtime error, got %v", err)
	}
	if rt.Live() != 0 {
		t.Fatalf("failed create left %d live handles", rt.Live())
	}
}

func TestConversation_RequiresAgents(t *testing.T) {
	h, _ := newHost(t)
	if _, err := h.NewConversation(testContext(t)); !errors.Is(err, agent.ErrNoAgents) {
		t.Fatalf("expected ErrNoAgents, got %v", err)
	}
}

func TestConversation_Send(t *testing.T) {
	h, _ := newHost(t)
	a := buildAgent(t, h, "calc")
	ctx := testContext(t)

	conv, err := h.NewConversation(ctx, a)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	defer conv.Close()

	reply, err := conv.Send(ctx, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply != "calc: hello" {
		t.Fatalf("reply = %q", reply)
	}

	// The runtime calls back into the host's capabilities.
	reply, err = conv.Send(ctx, `/call add {"a":2,"b":3}`)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply != `{"success":true,"result":5}` {
		t.Fatalf("reply = %s", reply)
	}
}

func TestConversation_SendStreaming(t *testing.T) {
	h, _ := newHost(t)
	a := buildAgent(t, h, "calc")
	ctx := testContext(t)

	conv, err := h.NewConversation(ctx, a)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	defer conv.Close()

	s, err := conv.SendStreaming(ctx, `/call add {"a":2,"b":3}`)
	if err != nil {
		t.Fatalf("SendStreaming: %v", err)
	}
	var types []agent.EventType
	var text string
	for ev, err := range agent.Events(ctx, s) {
		if err != nil {
			t.Fatalf("event: %v", err)
		}
		types = append(types, ev.Type)
		if ev.Type == agent.EventTextMessageContent {
			text += ev.Content
		}
	}
	want := []agent.EventType{
		agent.EventStepStarted,
		agent.EventFunctionCallStarted,
		agent.EventFunctionCallResult,
		agent.EventTextMessageContent,
		agent.EventStepCompleted,
		agent.EventConversationEnded,
	}
	if diff := cmp.Diff(want, types); diff != "" {
		t.Fatalf("event types (-want +got):\n%s", diff)
	}
	if text != `{"success":true,"result":5}` {
		t.Fatalf("text = %s", text)
	}

	s, err = conv.SendStreaming(ctx, "stream me please")
	if err != nil {
		t.Fatalf("SendStreaming: %v", err)
	}
	reply, err := agent.Reply(ctx, s)
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply != "calc: stream me please" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestConversation_SendSimple(t *testing.T) {
	h, _ := newHost(t)
	a := buildAgent(t, h, "calc")
	ctx := testContext(t)

	conv, err := h.NewConversation(ctx, a)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	defer conv.Close()

	s, err := conv.SendSimple(ctx, "plain text please")
	if err != nil {
		t.Fatalf("SendSimple: %v", err)
	}
	chunks, err := s.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if diff := cmp.Diff([]string{"calc: ", "plain ", "text ", "please"}, chunks); diff != "" {
		t.Fatalf("chunks (-want +got):\n%s", diff)
	}

	s, err = conv.SendSimple(ctx, `/call add {"a":2,"b":3}`)
	if err != nil {
		t.Fatalf("SendSimple: %v", err)
	}
	chunks, err = s.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := strings.Join(chunks, ""); got != `{"success":true,"result":5}` {
		t.Fatalf("reply = %s", got)
	}

	s, err = conv.SendSimple(ctx, "/fail quota exceeded")
	if err != nil {
		t.Fatalf("SendSimple: %v", err)
	}
	_, err = s.Collect(ctx)
	var se *streaming.StreamError
	if !errors.As(err, &se) || se.Reason != "quota exceeded" {
		t.Fatalf("Collect err = %v, want StreamError", err)
	}

	if err := conv.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := conv.SendSimple(ctx, "hi"); !errors.Is(err, agent.ErrClosed) {
		t.Fatalf("SendSimple after Close = %v, want ErrClosed", err)
	}
	if h.Bridge().Len() != 0 {
		t.Fatalf("bridge still holds %d sessions", h.Bridge().Len())
	}
}

func TestConversation_StreamingFailure(t *testing.T) {
	h, _ := newHost(t)
	a := buildAgent(t, h, "calc")
	ctx := testContext(t)

	conv, err := h.NewConversation(ctx, a)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	defer conv.Close()

	s, err := conv.SendStreaming(ctx, "/fail provider timeout")
	if err != nil {
		t.Fatalf("SendStreaming: %v", err)
	}
	_, err = agent.Reply(ctx, s)
	var se *streaming.StreamError
	if !errors.As(err, &se) || se.Reason != "provider timeout" {
		t.Fatalf("Reply err = %v, want StreamError", err)
	}
	if h.Bridge().Len() != 0 {
		t.Fatalf("failed stream still registered")
	}
}

func TestConversation_CloseExactlyOnce(t *testing.T) {
	h, rt := newHost(t)
	ctx := testContext(t)
	a, err := h.NewBuilder("solo").Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	conv, err := h.NewConversation(ctx, a)
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if rt.Live() != 2 {
		t.Fatalf("live handles = %d, want 2", rt.Live())
	}

	for range 3 {
		if err := conv.Close(); err != nil {
			t.Fatalf("conv.Close: %v", err)
		}
		if err := a.Close(); err != nil {
			t.Fatalf("agent.Close: %v", err)
		}
	}
	if rt.Destroyed() != 2 || rt.Live() != 0 {
		t.Fatalf("destroyed=%d live=%d, want 2 and 0", rt.Destroyed(), rt.Live())
	}

	if _, err := conv.Send(ctx, "hi"); !errors.Is(err, agent.ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
	if _, err := conv.SendStreaming(ctx, "hi"); !errors.Is(err, agent.ErrClosed) {
		t.Fatalf("SendStreaming after Close = %v, want ErrClosed", err)
	}
	if _, err := h.NewConversation(ctx, a); !errors.Is(err, agent.ErrClosed) {
		t.Fatalf("NewConversation with closed agent = %v, want ErrClosed", err)
	}
}

func TestProject(t *testing.T) {
	h, _ := newHost(t)
	a := buildAgent(t, h, "researcher")
	ctx := testContext(t)

	p, err := h.NewProject(ctx, "Market Study", "./storage")
	if err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	for range 2 {
		conv, err := p.NewConversation(ctx, a)
		if err != nil {
			t.Fatalf("NewConversation: %v", err)
		}
		if err := conv.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	info, err := p.Info(ctx)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name != "Market Study" || info.ConversationCount != 2 || info.ID == "" {
		t.Fatalf("unexpected info %+v", info)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := p.Info(ctx); !errors.Is(err, agent.ErrClosed) {
		t.Fatalf("Info after Close = %v, want ErrClosed", err)
	}
	if _, err := h.NewProject(ctx, " ", ""); !errors.Is(err, agent.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for blank name, got %v", err)
	}
}
