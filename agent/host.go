package agent

import (
	"log/slog"

	"github.com/HPD-AI/HPD-Agent-Framework/capability"
	"github.com/HPD-AI/HPD-Agent-Framework/dispatch"
	"github.com/HPD-AI/HPD-Agent-Framework/streaming"
)

// Host owns everything on this side of the runtime boundary: the capability
// registry, the dispatcher the runtime calls back through, and the bridge
// streamed replies are delivered on. Create one during start-up and pass it
// to whatever builds agents.
type Host struct {
	runtime    Runtime
	registry   *capability.Registry
	dispatcher *dispatch.Dispatcher
	bridge     *streaming.Bridge
	exports    *Exports
	logger     *slog.Logger
}

type hostConfig struct {
	registry     *capability.Registry
	bridge       *streaming.Bridge
	logger       *slog.Logger
	dispatchOpts []dispatch.Option
}

// HostOption configures a Host.
type HostOption func(*hostConfig)

// WithRegistry uses reg instead of a fresh registry.
func WithRegistry(reg *capability.Registry) HostOption {
	return func(c *hostConfig) { c.registry = reg }
}

// WithBridge uses b for streamed replies instead of a fresh bridge.
func WithBridge(b *streaming.Bridge) HostOption {
	return func(c *hostConfig) { c.bridge = b }
}

// WithLogger sets the logger shared by the host's components.
func WithLogger(l *slog.Logger) HostOption {
	return func(c *hostConfig) { c.logger = l }
}

// WithDispatchOptions passes options through to dispatch.New.
func WithDispatchOptions(opts ...dispatch.Option) HostOption {
	return func(c *hostConfig) { c.dispatchOpts = append(c.dispatchOpts, opts...) }
}

// NewHost wires a host around rt. If rt implements ExportsBinder it is given
// the host's Exports before NewHost returns; if it implements
// FunctionsObserver it is told about every later registration.
func NewHost(rt Runtime, opts ...HostOption) *Host {
	var cfg hostConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.registry == nil {
		cfg.registry = capability.NewRegistry()
	}
	if cfg.bridge == nil {
		cfg.bridge = streaming.NewBridge(streaming.WithLogger(cfg.logger))
	}
	dopts := append([]dispatch.Option{dispatch.WithLogger(cfg.logger)}, cfg.dispatchOpts...)
	d := dispatch.New(cfg.registry, dopts...)

	h := &Host{
		runtime:    rt,
		registry:   cfg.registry,
		dispatcher: d,
		bridge:     cfg.bridge,
		exports:    NewExports(d, cfg.logger),
		logger:     cfg.logger,
	}
	if b, ok := rt.(ExportsBinder); ok {
		b.BindExports(h.exports)
	}
	if o, ok := rt.(FunctionsObserver); ok {
		go h.watchFunctions(o, cfg.registry.Subscribe())
	}
	return h
}

// watchFunctions forwards registry changes to o until the registry is closed.
func (h *Host) watchFunctions(o FunctionsObserver, changes <-chan struct{}) {
	for range changes {
		o.FunctionsChanged(h.exports.FunctionListJSON())
	}
	h.logger.Debug("function watch stopped")
}

func (h *Host) Registry() *capability.Registry   { return h.registry }
func (h *Host) Dispatcher() *dispatch.Dispatcher { return h.dispatcher }
func (h *Host) Bridge() *streaming.Bridge        { return h.bridge }
func (h *Host) Exports() *Exports                { return h.exports }

// Close ends the registration phase and stops function change
// notifications. Registered capabilities stay callable.
func (h *Host) Close() {
	h.registry.Close()
}
