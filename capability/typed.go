package capability

import (
	"context"
	"reflect"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
)

// Option configures a capability built with New or Define.
type Option func(*capConfig)

type capConfig struct {
	description        string
	async              bool
	requiresPermission bool
	permissions        []string
}

// WithDescription sets the human description published in the schema.
func WithDescription(desc string) Option {
	return func(c *capConfig) { c.description = desc }
}

// WithAsync marks the capability as asynchronous. The dispatcher runs its
// executor on a separate goroutine and waits for it under the caller's context.
func WithAsync() Option {
	return func(c *capConfig) { c.async = true }
}

// WithPermissions records the permissions the capability requires. Passing no
// names still flags the capability as permission-gated.
func WithPermissions(perms ...string) Option {
	return func(c *capConfig) {
		c.requiresPermission = true
		c.permissions = append(c.permissions, perms...)
	}
}

func buildConfig(opts []Option) capConfig {
	var cfg capConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c capConfig) descriptor(name string, params []Parameter) Descriptor {
	return Descriptor{
		Name:                name,
		Description:         c.description,
		Parameters:          params,
		RequiresPermission:  c.requiresPermission,
		RequiredPermissions: slices.Clone(c.permissions),
		Async:               c.async,
	}
}

// Define builds a capability from an explicit parameter list and executor.
func Define(name string, params []Parameter, exec Executor, opts ...Option) Capability {
	cfg := buildConfig(opts)
	return Capability{Descriptor: cfg.descriptor(name, slices.Clone(params)), Executor: exec}
}

// New builds a capability whose parameters are reflected from the fields of
// the args struct A:
//   - the parameter name is the json tag name (or the field name)
//   - the type tag comes from TagOf on the field's Go type
//   - description and default come from the jsonschema tag
//     (`jsonschema:"description=...,default=..."`)
//   - pointer fields and fields tagged omitempty are optional
//
// The executor binds the coerced arguments into a fresh A and calls fn.
func New[A any](name string, fn func(ctx context.Context, args A) (any, error), opts ...Option) Capability {
	cfg := buildConfig(opts)
	exec := ExecutorFunc(func(ctx context.Context, args Args) (any, error) {
		var a A
		if err := args.Bind(&a); err != nil {
			return nil, err
		}
		return fn(ctx, a)
	})
	return Capability{Descriptor: cfg.descriptor(name, reflectParameters[A]()), Executor: exec}
}

// reflectParameters reflects A with invopop/jsonschema and projects the
// resulting object schema onto Parameters, preserving field order.
func reflectParameters[A any]() []Parameter {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(new(A))
	if s == nil || s.Type != "object" || s.Properties == nil {
		return nil
	}
	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}
	fields := jsonFields(reflect.TypeOf((*A)(nil)).Elem())

	params := make([]Parameter, 0, s.Properties.Len())
	for el := s.Properties.Oldest(); el != nil; el = el.Next() {
		prop := el.Value
		p := Parameter{Name: el.Key, Optional: !required[el.Key]}
		if prop != nil {
			p.Type = tagForSchemaType(prop.Type)
			p.Description = prop.Description
			p.Default = prop.Default
		}
		if ft, ok := fields[el.Key]; ok {
			p.Type = TagOf(ft)
			p.goType = ft
			if ft.Kind() == reflect.Ptr {
				p.Optional = true
			}
		}
		if p.Type == "" {
			p.Type = TypeObject
		}
		params = append(params, p)
	}
	return params
}

// jsonFields maps the JSON names of the exported top-level fields of t to
// their Go types.
func jsonFields(t reflect.Type) map[string]reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	out := make(map[string]reflect.Type)
	if t.Kind() != reflect.Struct {
		return out
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name := f.Name
		if tag != "" {
			if n := strings.Split(tag, ",")[0]; n != "" {
				name = n
			}
		}
		out[name] = f.Type
	}
	return out
}
