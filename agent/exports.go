package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/HPD-AI/HPD-Agent-Framework/capability"
	"github.com/HPD-AI/HPD-Agent-Framework/dispatch"
)

// Exports is the surface the runtime calls back into. Every method returns
// text and never panics, so it can sit directly behind a process or
// language boundary.
type Exports struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewExports exposes d's registry and dispatcher.
func NewExports(d *dispatch.Dispatcher, logger *slog.Logger) *Exports {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exports{dispatcher: d, logger: logger}
}

func (x *Exports) registry() *capability.Registry { return x.dispatcher.Registry() }

// Execute invokes a capability and always returns a result envelope:
// {"success":true,"result":...} or {"success":false,"error":"..."}.
func (x *Exports) Execute(ctx context.Context, name, argsJSON string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.ErrorContext(ctx, "export execute panicked", slog.String("capability", name), slog.Any("panic", r))
			out = dispatch.ErrorEnvelope(fmt.Errorf("internal error: %v", r))
		}
	}()
	return x.dispatcher.InvokeEnvelope(ctx, name, argsJSON)
}

type pluginRegistry struct {
	Plugins []capability.PluginInfo `json:"plugins"`
}

// PluginRegistryJSON lists registered plugins and their functions:
// {"plugins":[{"name":...,"description":...,"functions":[...]}]}.
func (x *Exports) PluginRegistryJSON() string {
	return x.render("plugin registry", pluginRegistry{Plugins: x.registry().Plugins()}, `{"plugins":[]}`)
}

// SchemasJSON maps every capability name to its function schema.
func (x *Exports) SchemasJSON() string {
	return x.render("schemas", x.registry().Schemas(), `{}`)
}

// FunctionListJSON lists capability names in registration order.
func (x *Exports) FunctionListJSON() string {
	return x.render("function list", x.registry().Names(), `[]`)
}

// StatsJSON reports plugin and function counts.
func (x *Exports) StatsJSON() string {
	return x.render("stats", x.registry().Stats(), `{}`)
}

func (x *Exports) render(what string, v any, fallback string) string {
	b, err := json.Marshal(v)
	if err != nil {
		x.logger.Error("export render failed", slog.String("what", what), slog.String("err", err.Error()))
		return fallback
	}
	return string(b)
}
