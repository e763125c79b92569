package capability

import (
	"context"
	"encoding/json"
	"fmt"
)

// Executor runs a capability with arguments already coerced to the
// descriptor's declared types.
type Executor interface {
	Execute(ctx context.Context, args Args) (any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, args Args) (any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, args Args) (any, error) { return f(ctx, args) }

// Capability pairs a descriptor with the executor bound to it.
type Capability struct {
	Descriptor Descriptor
	Executor   Executor
}

// Args holds coerced argument values keyed by parameter name. Values have the
// Go type matching the parameter's TypeTag:
//
//	string  -> string
//	integer -> int64
//	number  -> float64
//	boolean -> bool
//	array   -> []any
//	object  -> json.RawMessage
//
// Optional parameters that were not supplied are absent.
type Args map[string]any

// Has reports whether name was supplied (or defaulted).
func (a Args) Has(name string) bool {
	_, ok := a[name]
	return ok
}

func (a Args) String(name string) (string, bool) {
	v, ok := a[name].(string)
	return v, ok
}

func (a Args) Int(name string) (int64, bool) {
	v, ok := a[name].(int64)
	return v, ok
}

func (a Args) Float(name string) (float64, bool) {
	switch v := a[name].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func (a Args) Bool(name string) (bool, bool) {
	v, ok := a[name].(bool)
	return v, ok
}

func (a Args) Slice(name string) ([]any, bool) {
	v, ok := a[name].([]any)
	return v, ok
}

// Raw returns the JSON encoding of an argument. Object parameters are stored
// raw; other kinds are re-encoded.
func (a Args) Raw(name string) (json.RawMessage, bool) {
	v, ok := a[name]
	if !ok {
		return nil, false
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Decode unmarshals a single argument into dst.
func (a Args) Decode(name string, dst any) error {
	raw, ok := a.Raw(name)
	if !ok {
		return fmt.Errorf("argument %q not present", name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode argument %q: %w", name, err)
	}
	return nil
}

// Bind unmarshals the whole argument set into dst, typically a pointer to the
// args struct a capability was declared with.
func (a Args) Bind(dst any) error {
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("bind arguments: %w", err)
	}
	return nil
}
