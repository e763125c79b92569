package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/HPD-AI/HPD-Agent-Framework/capability"
	"github.com/HPD-AI/HPD-Agent-Framework/internal/logctx"
)

// FunctionInfo advertises one capability to the runtime.
type FunctionInfo struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	Plugin              string   `json:"plugin,omitempty"`
	Schema              string   `json:"schema"`
	RequiresPermission  bool     `json:"requiresPermission"`
	RequiredPermissions []string `json:"requiredPermissions"`
}

func functionInfo(e capability.Entry) FunctionInfo {
	perms := e.Descriptor.RequiredPermissions
	if perms == nil {
		perms = []string{}
	}
	return FunctionInfo{
		Name:                e.Descriptor.Name,
		Description:         e.Descriptor.Description,
		Plugin:              e.Descriptor.Plugin,
		Schema:              string(e.Schema),
		RequiresPermission:  e.Descriptor.RequiresPermission,
		RequiredPermissions: perms,
	}
}

// Builder assembles an agent's configuration and the capabilities it may
// call. Errors from With* calls are held and returned by Build.
type Builder struct {
	host      *Host
	config    Config
	functions []FunctionInfo
	err       error
}

// NewBuilder starts an agent named name with the default configuration.
func (h *Host) NewBuilder(name string) *Builder {
	cfg := DefaultConfig()
	cfg.Name = name
	return &Builder{host: h, config: cfg}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithInstructions(instructions string) *Builder {
	b.config.SystemInstructions = instructions
	return b
}

func (b *Builder) WithMaxFunctionCalls(n int) *Builder {
	b.config.MaxFunctionCalls = n
	return b
}

func (b *Builder) WithMaxConversationHistory(n int) *Builder {
	b.config.MaxConversationHistory = n
	return b
}

func (b *Builder) WithProvider(pc ProviderConfig) *Builder {
	b.config.Provider = &pc
	return b
}

func (b *Builder) WithOllama(model string) *Builder {
	return b.WithProvider(ProviderConfig{Provider: ProviderOllama, ModelName: model})
}

func (b *Builder) WithOpenAI(model, apiKey string) *Builder {
	return b.WithProvider(ProviderConfig{Provider: ProviderOpenAI, ModelName: model, APIKey: apiKey})
}

func (b *Builder) WithOpenRouter(model, apiKey string) *Builder {
	return b.WithProvider(ProviderConfig{Provider: ProviderOpenRouter, ModelName: model, APIKey: apiKey})
}

func (b *Builder) WithAzureOpenAI(model, apiKey, endpoint string) *Builder {
	return b.WithProvider(ProviderConfig{Provider: ProviderAzureOpenAI, ModelName: model, APIKey: apiKey, Endpoint: endpoint})
}

// WithPlugin registers p's capabilities with the host registry and
// advertises them to the agent. A plugin already registered under the same
// name (for example by another agent) is reused as-is.
func (b *Builder) WithPlugin(p capability.Plugin) *Builder {
	if b.err != nil {
		return b
	}
	caps := p.Capabilities()
	if !b.pluginRegistered(p.Name(), caps) {
		if err := b.host.registry.RegisterPlugin(p); err != nil {
			b.err = fmt.Errorf("register plugin %s: %w", p.Name(), err)
			return b
		}
	}
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.Descriptor.Name
	}
	return b.WithCapabilities(names...)
}

func (b *Builder) pluginRegistered(plugin string, caps []capability.Capability) bool {
	if len(caps) == 0 {
		return slices.ContainsFunc(b.host.registry.Plugins(), func(pi capability.PluginInfo) bool { return pi.Name == plugin })
	}
	for _, c := range caps {
		e, err := b.host.registry.Lookup(c.Descriptor.Name)
		if err != nil || e.Descriptor.Plugin != plugin {
			return false
		}
	}
	return true
}

// WithCapabilities advertises already registered capabilities by name.
func (b *Builder) WithCapabilities(names ...string) *Builder {
	if b.err != nil {
		return b
	}
	for _, name := range names {
		if slices.ContainsFunc(b.functions, func(fi FunctionInfo) bool { return fi.Name == name }) {
			continue
		}
		e, err := b.host.registry.Lookup(name)
		if err != nil {
			b.err = err
			return b
		}
		b.functions = append(b.functions, functionInfo(e))
	}
	return b
}

// WithRegisteredCapabilities advertises every capability currently in the
// host registry.
func (b *Builder) WithRegisteredCapabilities() *Builder {
	return b.WithCapabilities(b.host.registry.Names()...)
}

// Config returns the configuration built so far.
func (b *Builder) Config() Config { return b.config }

// Functions returns the capabilities advertised so far.
func (b *Builder) Functions() []FunctionInfo { return slices.Clone(b.functions) }

// ConfigJSON renders the configuration as the runtime receives it.
func (b *Builder) ConfigJSON() (string, error) {
	out, err := json.Marshal(b.config)
	if err != nil {
		return "", fmt.Errorf("serialize config: %w", err)
	}
	return string(out), nil
}

// FunctionsJSON renders the advertised functions as the runtime receives
// them. An agent without functions sends an empty array.
func (b *Builder) FunctionsJSON() (string, error) {
	fns := b.functions
	if fns == nil {
		fns = []FunctionInfo{}
	}
	out, err := json.Marshal(fns)
	if err != nil {
		return "", fmt.Errorf("serialize functions: %w", err)
	}
	return string(out), nil
}

// Build validates the configuration and creates the agent in the runtime.
// The caller owns the returned Agent and must Close it.
func (b *Builder) Build(ctx context.Context) (*Agent, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	cfgJSON, err := b.ConfigJSON()
	if err != nil {
		return nil, err
	}
	fnJSON, err := b.FunctionsJSON()
	if err != nil {
		return nil, err
	}

	ctx = logctx.WithAgentData(ctx, &logctx.AgentData{Name: b.config.Name})
	handle, err := b.host.runtime.CreateAgent(ctx, cfgJSON, fnJSON)
	if err != nil {
		return nil, fmt.Errorf("create agent %s: %w", b.config.Name, err)
	}
	if handle == nil {
		return nil, fmt.Errorf("create agent %s: %w", b.config.Name, ErrNilHandle)
	}
	b.host.logger.DebugContext(ctx, "agent created", "functions", len(b.functions))

	return &Agent{
		host:      b.host,
		config:    b.config,
		functions: slices.Clone(b.functions),
		handle:    handle,
	}, nil
}

// Agent is a runtime-side agent owned by the caller. Close destroys the
// runtime handle exactly once.
type Agent struct {
	host      *Host
	config    Config
	functions []FunctionInfo
	handle    AgentHandle

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (a *Agent) Name() string              { return a.config.Name }
func (a *Agent) Config() Config            { return a.config }
func (a *Agent) Functions() []FunctionInfo { return slices.Clone(a.functions) }

func (a *Agent) liveHandle() (AgentHandle, error) {
	if a == nil {
		return nil, errors.New("agent: nil agent")
	}
	if a.closed.Load() {
		return nil, fmt.Errorf("agent %s: %w", a.config.Name, ErrClosed)
	}
	return a.handle, nil
}

// Close destroys the agent. Later calls return the first call's result.
// Conversations already created with the agent are not affected.
func (a *Agent) Close() error {
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		a.closeErr = a.handle.Destroy()
		ctx := logctx.WithAgentData(context.Background(), &logctx.AgentData{Name: a.config.Name})
		a.host.logger.DebugContext(ctx, "agent destroyed")
	})
	return a.closeErr
}
