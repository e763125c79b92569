package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/HPD-AI/HPD-Agent-Framework/capability"
	"github.com/google/go-cmp/cmp"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(t *testing.T, caps ...capability.Capability) *Dispatcher {
	t.Helper()
	reg := capability.NewRegistry()
	for _, c := range caps {
		if err := reg.Add(c); err != nil {
			t.Fatalf("Add(%s): %v", c.Descriptor.Name, err)
		}
	}
	return New(reg, WithLogger(quietLogger()))
}

func addCapability() capability.Capability {
	return capability.Define("add",
		[]capability.Parameter{capability.Param("a", "f64"), capability.Param("b", "f64")},
		capability.ExecutorFunc(func(ctx context.Context, args capability.Args) (any, error) {
			a, _ := args.Float("a")
			b, _ := args.Float("b")
			return a + b, nil
		}),
		capability.WithDescription("Adds two numbers"),
	)
}

type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, text string) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		t.Fatalf("envelope %q is not JSON: %v", text, err)
	}
	return env
}

func TestInvoke_Add(t *testing.T) {
	d := newTestDispatcher(t, addCapability())
	out, err := d.Invoke(context.Background(), "add", `{"a":2,"b":3}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	env := decodeEnvelope(t, out)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", out)
	}
	var sum float64
	if err := json.Unmarshal(env.Result, &sum); err != nil {
		t.Fatalf("result %s: %v", env.Result, err)
	}
	if sum != 5 {
		t.Fatalf("sum = %v, want 5", sum)
	}
}

func TestInvoke_MissingArgument(t *testing.T) {
	d := newTestDispatcher(t, addCapability())
	_, err := d.Invoke(context.Background(), "add", `{"a":2}`)
	if !errors.Is(err, ErrMalformedArguments) {
		t.Fatalf("expected ErrMalformedArguments, got %v", err)
	}
	var de *Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if diff := cmp.Diff([]string{"b"}, de.Params); diff != "" {
		t.Fatalf("params (-want +got):\n%s", diff)
	}
}

func TestInvoke_UnparseablePayload(t *testing.T) {
	d := newTestDispatcher(t, addCapability())
	_, err := d.Invoke(context.Background(), "add", `{"a":`)
	if KindOf(err) != KindMalformedArguments {
		t.Fatalf("kind = %q, want %q (err %v)", KindOf(err), KindMalformedArguments, err)
	}
}

type levelArgs struct {
	Level uint8 `json:"level,omitempty"`
	IDs   []int `json:"ids,omitempty"`
}

func TestInvoke_ReflectedFieldTypeMismatch(t *testing.T) {
	ran := false
	c := capability.New("levels", func(ctx context.Context, a levelArgs) (any, error) {
		ran = true
		return a.Level, nil
	})
	d := newTestDispatcher(t, c)

	cases := map[string]struct {
		payload string
		param   string
	}{
		"uint8 overflow": {`{"level":300}`, "level"},
		"negative uint":  {`{"level":-1}`, "level"},
		"element type":   {`{"ids":["x"]}`, "ids"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.Invoke(context.Background(), "levels", tc.payload)
			if KindOf(err) != KindMalformedArguments {
				t.Fatalf("kind = %q, want %q (err %v)", KindOf(err), KindMalformedArguments, err)
			}
			var de *Error
			if !errors.As(err, &de) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if diff := cmp.Diff([]string{tc.param}, de.Params); diff != "" {
				t.Fatalf("params (-want +got):\n%s", diff)
			}
		})
	}
	if ran {
		t.Fatalf("executor ran for malformed arguments")
	}

	out, err := d.Invoke(context.Background(), "levels", `{"level":255,"ids":[1,2]}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != `{"success":true,"result":255}` {
		t.Fatalf("out = %s", out)
	}
}

func TestInvoke_UnknownCapability(t *testing.T) {
	d := newTestDispatcher(t, addCapability())
	_, err := d.Invoke(context.Background(), "missing", `{}`)
	if !errors.Is(err, ErrUnknownCapability) {
		t.Fatalf("expected ErrUnknownCapability, got %v", err)
	}
	if !errors.Is(err, capability.ErrUnknownCapability) {
		t.Fatalf("expected the registry error to be wrapped, got %v", err)
	}
}

func TestInvoke_PanicBecomesExecutionFailure(t *testing.T) {
	boom := capability.Define("boom", nil, capability.ExecutorFunc(func(ctx context.Context, args capability.Args) (any, error) {
		panic("kaboom")
	}))
	d := newTestDispatcher(t, boom, addCapability())

	_, err := d.Invoke(context.Background(), "boom", `{}`)
	if !errors.Is(err, ErrExecutionFailure) {
		t.Fatalf("expected ErrExecutionFailure, got %v", err)
	}
	var pe *PanicError
	if !errors.As(err, &pe) || pe.Value != "kaboom" {
		t.Fatalf("expected wrapped PanicError with value kaboom, got %v", err)
	}

	// The dispatcher and registry are still usable.
	if _, err := d.Invoke(context.Background(), "add", `{"a":1,"b":1}`); err != nil {
		t.Fatalf("Invoke after panic: %v", err)
	}
}

func TestInvoke_ExecutorError(t *testing.T) {
	sentinel := errors.New("disk full")
	failing := capability.Define("save", nil, capability.ExecutorFunc(func(ctx context.Context, args capability.Args) (any, error) {
		return nil, sentinel
	}))
	d := newTestDispatcher(t, failing)
	_, err := d.Invoke(context.Background(), "save", "")
	if !errors.Is(err, ErrExecutionFailure) || !errors.Is(err, sentinel) {
		t.Fatalf("expected execution failure wrapping sentinel, got %v", err)
	}
}

func TestInvoke_AsyncCancellation(t *testing.T) {
	started := make(chan struct{})
	slow := capability.Define("slow", nil,
		capability.ExecutorFunc(func(ctx context.Context, args capability.Args) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}),
		capability.WithAsync(),
	)
	d := newTestDispatcher(t, slow)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := d.Invoke(ctx, "slow", `{}`)
		errc <- err
	}()
	<-started
	cancel()
	err := <-errc
	if !errors.Is(err, ErrExecutionFailure) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled execution failure, got %v", err)
	}
}

func TestInvoke_AsyncResult(t *testing.T) {
	echo := capability.Define("echo",
		[]capability.Parameter{capability.Param("text", "String")},
		capability.ExecutorFunc(func(ctx context.Context, args capability.Args) (any, error) {
			s, _ := args.String("text")
			return s, nil
		}),
		capability.WithAsync(),
	)
	d := newTestDispatcher(t, echo)
	out, err := d.Invoke(context.Background(), "echo", `{"text":"hi"}`)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != `{"success":true,"result":"hi"}` {
		t.Fatalf("out = %s", out)
	}
}

func TestInvoke_ConcurrentNoCrossDelivery(t *testing.T) {
	const n = 32
	caps := make([]capability.Capability, n)
	for i := range n {
		id := i
		caps[i] = capability.Define(fmt.Sprintf("cap%d", i),
			[]capability.Parameter{capability.Param("x", "i64")},
			capability.ExecutorFunc(func(ctx context.Context, args capability.Args) (any, error) {
				x, _ := args.Int("x")
				return map[string]int64{"id": int64(id), "x": x}, nil
			}),
			capability.WithAsync(),
		)
	}
	d := newTestDispatcher(t, caps...)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := d.Invoke(context.Background(), fmt.Sprintf("cap%d", i), fmt.Sprintf(`{"x":%d}`, i*10))
			if err != nil {
				errs <- err
				return
			}
			var env struct {
				Result map[string]int64 `json:"result"`
			}
			if err := json.Unmarshal([]byte(out), &env); err != nil {
				errs <- err
				return
			}
			if env.Result["id"] != int64(i) || env.Result["x"] != int64(i*10) {
				errs <- fmt.Errorf("caller %d got %v", i, env.Result)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if got := len(d.Registry().List()); got != n {
		t.Fatalf("registry has %d entries after concurrent dispatch, want %d", got, n)
	}
}

func TestInvoke_StructuredRoundTrip(t *testing.T) {
	value := map[string]any{
		"name":  "widget",
		"tags":  []any{"a", "b"},
		"size":  float64(3),
		"inner": map[string]any{"ok": true},
	}
	structured := capability.Define("structured", nil, capability.ExecutorFunc(func(ctx context.Context, args capability.Args) (any, error) {
		return value, nil
	}))
	text := capability.Define("text", nil, capability.ExecutorFunc(func(ctx context.Context, args capability.Args) (any, error) {
		return ` {"inner":{"ok":true},"size":3,"tags":["a","b"],"name":"widget"}`, nil
	}))
	d := newTestDispatcher(t, structured, text)

	for _, name := range []string{"structured", "text"} {
		out, err := d.Invoke(context.Background(), name, "{}")
		if err != nil {
			t.Fatalf("Invoke(%s): %v", name, err)
		}
		var got map[string]any
		if err := json.Unmarshal(decodeEnvelope(t, out).Result, &got); err != nil {
			t.Fatalf("%s result: %v", name, err)
		}
		if diff := cmp.Diff(value, got); diff != "" {
			t.Fatalf("%s round trip (-want +got):\n%s", name, diff)
		}
	}
}

func TestInvoke_SerializationFailure(t *testing.T) {
	bad := capability.Define("chan", nil, capability.ExecutorFunc(func(ctx context.Context, args capability.Args) (any, error) {
		return make(chan int), nil
	}))
	d := newTestDispatcher(t, bad)
	_, err := d.Invoke(context.Background(), "chan", "{}")
	if !errors.Is(err, ErrSerializationFailure) {
		t.Fatalf("expected ErrSerializationFailure, got %v", err)
	}
}

func TestInvokeEnvelope(t *testing.T) {
	d := newTestDispatcher(t, addCapability())
	env := decodeEnvelope(t, d.InvokeEnvelope(context.Background(), "missing", "{}"))
	if env.Success || env.Error == "" {
		t.Fatalf("expected failure envelope with message, got %+v", env)
	}
	env = decodeEnvelope(t, d.InvokeEnvelope(context.Background(), "add", `{"a":1,"b":2}`))
	if !env.Success || string(env.Result) != "3" {
		t.Fatalf("expected success envelope with 3, got %+v", env)
	}
}

func TestInvoke_PermissionPolicy(t *testing.T) {
	write := capability.Define("write",
		[]capability.Parameter{capability.Param("path", "String")},
		capability.ExecutorFunc(func(ctx context.Context, args capability.Args) (any, error) {
			return "written", nil
		}),
		capability.WithPermissions("fs.write"),
	)

	t.Run("no policy runs", func(t *testing.T) {
		d := newTestDispatcher(t, write)
		if _, err := d.Invoke(context.Background(), "write", `{"path":"/tmp/x"}`); err != nil {
			t.Fatalf("Invoke: %v", err)
		}
	})

	t.Run("policy denies", func(t *testing.T) {
		reg := capability.NewRegistry()
		if err := reg.Add(write); err != nil {
			t.Fatalf("Add: %v", err)
		}
		d := New(reg, WithLogger(quietLogger()), WithPermissionPolicy(GrantedPermissions{"fs.read"}))
		_, err := d.Invoke(context.Background(), "write", `{"path":"/tmp/x"}`)
		if !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("expected ErrPermissionDenied, got %v", err)
		}
	})

	t.Run("policy grants", func(t *testing.T) {
		reg := capability.NewRegistry()
		if err := reg.Add(write); err != nil {
			t.Fatalf("Add: %v", err)
		}
		d := New(reg, WithLogger(quietLogger()), WithPermissionPolicy(GrantedPermissions{"fs.read", "fs.write"}))
		if _, err := d.Invoke(context.Background(), "write", `{"path":"/tmp/x"}`); err != nil {
			t.Fatalf("Invoke: %v", err)
		}
	})
}

func TestEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   string
	}{
		{"nil", nil, `{"success":true,"result":null}`},
		{"plain string", "hello", `{"success":true,"result":"hello"}`},
		{"json-looking but invalid", "{not json", `{"success":true,"result":"{not json"}`},
		{"structured string", `[1, 2]`, `{"success":true,"result":[1,2]}`},
		{"raw message", json.RawMessage(`{"a":1}`), `{"success":true,"result":{"a":1}}`},
		{"number", 5, `{"success":true,"result":5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Envelope(tt.result)
			if err != nil {
				t.Fatalf("Envelope: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Envelope = %s, want %s", got, tt.want)
			}
		})
	}
}
