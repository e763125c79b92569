package capability

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Entry is a registered capability together with its rendered schema.
type Entry struct {
	Descriptor Descriptor
	Executor   Executor
	// Schema is the FunctionSchema of Descriptor rendered as JSON.
	Schema json.RawMessage
}

// Stats summarizes registry contents.
type Stats struct {
	Plugins      int            `json:"totalPlugins"`
	Capabilities int            `json:"totalFunctions"`
	PerPlugin    map[string]int `json:"functionsPerPlugin"`
}

// Registry maps capability names to their descriptor and executor.
//
// A Registry is meant to be populated during start-up and then shared by
// reference with the dispatcher. It is safe for concurrent use: lookups take
// a read lock and may interleave freely with late registrations. Registered
// entries are never removed; Close only stops further registration.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	plugins []PluginInfo
	closed  bool

	notifier changeNotifier

	skipSchemaValidation bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithoutSchemaValidation disables JSON Schema compilation of generated
// schemas at registration time.
func WithoutSchemaValidation() RegistryOption {
	return func(r *Registry) { r.skipSchemaValidation = true }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{entries: make(map[string]*Entry)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores exec under d.Name. Registering a name twice fails with
// ErrDuplicateCapability and leaves the original entry untouched.
func (r *Registry) Register(d Descriptor, exec Executor) error {
	e, err := r.prepare(d, exec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.entries[e.Descriptor.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCapability, e.Descriptor.Name)
	}
	r.insertLocked(e)
	r.notifier.notify()
	return nil
}

// Add registers a Capability.
func (r *Registry) Add(c Capability) error {
	return r.Register(c.Descriptor, c.Executor)
}

// RegisterPlugin registers every capability of p. Either all of them are
// registered or, if any fails validation or collides with an existing name,
// none are.
func (r *Registry) RegisterPlugin(p Plugin) error {
	if p == nil {
		return fmt.Errorf("%w: nil plugin", ErrInvalidDescriptor)
	}
	caps := p.Capabilities()
	prepared := make([]*Entry, 0, len(caps))
	names := make([]string, 0, len(caps))
	seen := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		c.Descriptor.Plugin = p.Name()
		e, err := r.prepare(c.Descriptor, c.Executor)
		if err != nil {
			return fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		if _, dup := seen[e.Descriptor.Name]; dup {
			return fmt.Errorf("plugin %s: %w: %s", p.Name(), ErrDuplicateCapability, e.Descriptor.Name)
		}
		seen[e.Descriptor.Name] = struct{}{}
		prepared = append(prepared, e)
		names = append(names, e.Descriptor.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	for _, e := range prepared {
		if _, exists := r.entries[e.Descriptor.Name]; exists {
			return fmt.Errorf("plugin %s: %w: %s", p.Name(), ErrDuplicateCapability, e.Descriptor.Name)
		}
	}
	for _, e := range prepared {
		r.insertLocked(e)
	}
	r.plugins = append(r.plugins, PluginInfo{Name: p.Name(), Description: p.Description(), Capabilities: names})
	r.notifier.notify()
	return nil
}

func (r *Registry) prepare(d Descriptor, exec Executor) (*Entry, error) {
	if exec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilExecutor, d.Name)
	}
	d = d.withDefaults()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if !r.skipSchemaValidation {
		if err := ValidateSchema(d); err != nil {
			return nil, err
		}
	}
	schema, err := MarshalSchema(d)
	if err != nil {
		return nil, err
	}
	return &Entry{Descriptor: d, Executor: exec, Schema: schema}, nil
}

func (r *Registry) insertLocked(e *Entry) {
	r.entries[e.Descriptor.Name] = e
	r.order = append(r.order, e.Descriptor.Name)
}

// Lookup returns the entry registered under name, or an error wrapping
// ErrUnknownCapability.
func (r *Registry) Lookup(name string) (Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	out := *e
	out.Descriptor = e.Descriptor.clone()
	out.Schema = append(json.RawMessage(nil), e.Schema...)
	return out, nil
}

// List returns all descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].Descriptor.clone())
	}
	return out
}

// Names returns the registered capability names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Schemas returns the rendered schema of every capability keyed by name.
func (r *Registry) Schemas() map[string]json.RawMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(r.entries))
	for name, e := range r.entries {
		out[name] = e.Schema
	}
	return out
}

// Plugins returns the registered plugins in registration order.
func (r *Registry) Plugins() []PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PluginInfo, len(r.plugins))
	for i, p := range r.plugins {
		p.Capabilities = append([]string(nil), p.Capabilities...)
		out[i] = p
	}
	return out
}

// Stats reports plugin and capability counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{
		Plugins:      len(r.plugins),
		Capabilities: len(r.order),
		PerPlugin:    make(map[string]int, len(r.plugins)),
	}
	for _, p := range r.plugins {
		s.PerPlugin[p.Name] = len(p.Capabilities)
	}
	return s
}

// Subscribe returns a channel signalled after every successful registration.
// The channel is closed when the registry is closed.
func (r *Registry) Subscribe() <-chan struct{} {
	return r.notifier.subscribe()
}

// Close rejects further registrations and releases subscribers. Lookups
// continue to work.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.notifier.close()
}
