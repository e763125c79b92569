package dispatch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/HPD-AI/HPD-Agent-Framework/capability"
	"github.com/google/go-cmp/cmp"
)

func mustPayload(t *testing.T, text string) Payload {
	t.Helper()
	p, err := ParsePayload(text)
	if err != nil {
		t.Fatalf("ParsePayload(%q): %v", text, err)
	}
	return p
}

func TestParsePayload(t *testing.T) {
	for _, text := range []string{"", "   ", "null", "{}"} {
		p, err := ParsePayload(text)
		if err != nil {
			t.Fatalf("ParsePayload(%q): %v", text, err)
		}
		if len(p) != 0 {
			t.Fatalf("ParsePayload(%q) = %v, want empty", text, p)
		}
	}
	for _, text := range []string{"[1,2]", `"str"`, "42", "{", `{"a":1} {"b":2}`} {
		if _, err := ParsePayload(text); err == nil {
			t.Fatalf("ParsePayload(%q) succeeded, want error", text)
		}
	}
}

func TestCoerce_CollectsEveryViolation(t *testing.T) {
	d := capability.Descriptor{
		Name: "mixed",
		Parameters: []capability.Parameter{
			capability.Param("a", "f64"),
			capability.Param("b", "f64"),
			capability.Param("flag", "bool"),
			capability.Param("label", "String"),
		},
	}
	_, err := Coerce(d, mustPayload(t, `{"flag":"maybe","label":7}`))
	var mae *MalformedArgumentsError
	if !errors.As(err, &mae) {
		t.Fatalf("expected *MalformedArgumentsError, got %v", err)
	}
	if !errors.Is(err, ErrMalformedArguments) {
		t.Fatalf("expected errors.Is(err, ErrMalformedArguments)")
	}
	if diff := cmp.Diff([]string{"a", "b", "flag", "label"}, mae.Params()); diff != "" {
		t.Fatalf("violation params (-want +got):\n%s", diff)
	}
}

func TestCoerce_MissingSingleParameter(t *testing.T) {
	d := capability.Descriptor{
		Name:       "add",
		Parameters: []capability.Parameter{capability.Param("a", "f64"), capability.Param("b", "f64")},
	}
	_, err := Coerce(d, mustPayload(t, `{"a":2}`))
	var mae *MalformedArgumentsError
	if !errors.As(err, &mae) {
		t.Fatalf("expected *MalformedArgumentsError, got %v", err)
	}
	if diff := cmp.Diff([]string{"b"}, mae.Params()); diff != "" {
		t.Fatalf("violation params (-want +got):\n%s", diff)
	}
}

func TestCoerce_Conversions(t *testing.T) {
	d := capability.Descriptor{
		Name: "convert",
		Parameters: []capability.Parameter{
			capability.Param("count", "i32"),
			capability.Param("ratio", "f32"),
			capability.Param("enabled", "bool"),
			capability.Param("name", "&str"),
			capability.Param("items", "Vec<String>"),
			capability.Param("extra", "Config"),
			capability.Param("note", "Option<String>"),
			capability.Param("times", "u32", capability.Default(3)),
		},
	}
	args, err := Coerce(d, mustPayload(t, `{
		"count": "42",
		"ratio": 1.5,
		"enabled": "true",
		"name": "ada",
		"items": ["x", 2],
		"extra": {"k": [1, 2]},
		"undeclared": true
	}`))
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}

	want := capability.Args{
		"count":   int64(42),
		"ratio":   1.5,
		"enabled": true,
		"name":    "ada",
		"items":   []any{"x", float64(2)},
		"extra":   json.RawMessage(`{"k":[1,2]}`),
		"times":   int64(3),
	}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Fatalf("coerced args (-want +got):\n%s", diff)
	}
	if args.Has("note") {
		t.Fatalf("optional parameter without default should be absent")
	}
	if args.Has("undeclared") {
		t.Fatalf("undeclared keys must be ignored")
	}
}

func TestCoerce_NullIsAbsent(t *testing.T) {
	d := capability.Descriptor{
		Name: "n",
		Parameters: []capability.Parameter{
			capability.Param("req", "String"),
			capability.Param("opt", "String", capability.Optional()),
		},
	}
	_, err := Coerce(d, mustPayload(t, `{"req":null,"opt":null}`))
	var mae *MalformedArgumentsError
	if !errors.As(err, &mae) {
		t.Fatalf("expected *MalformedArgumentsError, got %v", err)
	}
	if diff := cmp.Diff([]string{"req"}, mae.Params()); diff != "" {
		t.Fatalf("violation params (-want +got):\n%s", diff)
	}
}

func TestCoerce_RejectsBadNumbers(t *testing.T) {
	d := capability.Descriptor{
		Name:       "ints",
		Parameters: []capability.Parameter{capability.Param("n", "i64")},
	}
	for _, text := range []string{`{"n":2.5}`, `{"n":"two"}`, `{"n":true}`, `{"n":1e300}`} {
		if _, err := Coerce(d, mustPayload(t, text)); !errors.Is(err, ErrMalformedArguments) {
			t.Fatalf("Coerce(%s) = %v, want MalformedArguments", text, err)
		}
	}
	args, err := Coerce(d, mustPayload(t, `{"n":4.0}`))
	if err != nil {
		t.Fatalf("Coerce integral float: %v", err)
	}
	if n, _ := args.Int("n"); n != 4 {
		t.Fatalf("n = %d, want 4", n)
	}
}
