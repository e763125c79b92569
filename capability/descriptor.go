package capability

import (
	"fmt"
	"reflect"
	"slices"
)

// Parameter describes one named input of a capability.
type Parameter struct {
	Name        string  `json:"name"`
	Type        TypeTag `json:"type"`
	Description string  `json:"description,omitempty"`
	// Optional marks a parameter that may be omitted from the payload.
	Optional bool `json:"optional,omitempty"`
	// Default is used when the parameter is omitted. A nil Default means none.
	Default any `json:"default,omitempty"`

	// goType is the struct field type for parameters reflected by New.
	goType reflect.Type
}

// Required reports whether the parameter must be present in every payload:
// it is neither optional nor defaulted.
func (p Parameter) Required() bool {
	return !p.Optional && p.Default == nil
}

// Descriptor is the metadata record of a capability. Descriptors are copied
// into the registry at registration time; later mutation of the caller's value
// has no effect on the registered copy.
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	// RequiresPermission and RequiredPermissions are advisory metadata. They are
	// only acted upon when the dispatcher is given a permission policy.
	RequiresPermission  bool     `json:"requiresPermission"`
	RequiredPermissions []string `json:"requiredPermissions"`
	// Async executors run on their own goroutine; the invoking caller waits
	// for them without holding any registry state.
	Async bool `json:"isAsync"`
	// Plugin names the plugin the capability was registered with, if any.
	Plugin string `json:"plugin,omitempty"`
}

// Param returns the named parameter declaration.
func (d Descriptor) Param(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Validate checks the structural invariants of a descriptor.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidDescriptor)
	}
	seen := make(map[string]struct{}, len(d.Parameters))
	for i, p := range d.Parameters {
		if p.Name == "" {
			return fmt.Errorf("%w: %s: parameter %d has no name", ErrInvalidDescriptor, d.Name, i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate parameter %q", ErrInvalidDescriptor, d.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
		if !p.Type.Valid() {
			return fmt.Errorf("%w: %s: parameter %q has unknown type %q", ErrInvalidDescriptor, d.Name, p.Name, p.Type)
		}
		if _, err := p.DefaultValue(); err != nil {
			return fmt.Errorf("%w: %s: parameter %q: %v", ErrInvalidDescriptor, d.Name, p.Name, err)
		}
	}
	return nil
}

// clone returns a deep enough copy that the registry owns its slices.
func (d Descriptor) clone() Descriptor {
	out := d
	out.Parameters = slices.Clone(d.Parameters)
	out.RequiredPermissions = slices.Clone(d.RequiredPermissions)
	return out
}

// withDefaults fills in the descriptions the schema always carries.
func (d Descriptor) withDefaults() Descriptor {
	d = d.clone()
	if d.Description == "" {
		d.Description = "Function: " + d.Name
	}
	for i := range d.Parameters {
		if d.Parameters[i].Description == "" {
			d.Parameters[i].Description = "Parameter " + d.Parameters[i].Name
		}
		if d.Parameters[i].Type == "" {
			d.Parameters[i].Type = TypeObject
		}
	}
	if len(d.RequiredPermissions) > 0 {
		d.RequiresPermission = true
	}
	return d
}

// ParamOption configures a Parameter built with Param.
type ParamOption func(*Parameter)

// Optional marks the parameter as optional.
func Optional() ParamOption {
	return func(p *Parameter) { p.Optional = true }
}

// Default sets the parameter's default value.
func Default(v any) ParamOption {
	return func(p *Parameter) { p.Default = v }
}

// Describe sets the parameter description.
func Describe(desc string) ParamOption {
	return func(p *Parameter) { p.Description = desc }
}

// Param declares a parameter from a type name, resolving its tag with TagFor.
// Nullable type names (*T, T?, Option<T>) produce optional parameters.
func Param(name, typeName string, opts ...ParamOption) Parameter {
	p := Parameter{
		Name:     name,
		Type:     TagFor(typeName),
		Optional: isNullableName(typeName),
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
