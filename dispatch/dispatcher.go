package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/HPD-AI/HPD-Agent-Framework/capability"
	"github.com/HPD-AI/HPD-Agent-Framework/internal/logctx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/HPD-AI/HPD-Agent-Framework/dispatch"

// Dispatcher invokes registered capabilities by name with untyped payloads.
//
// A Dispatcher holds no per-call state and may be shared by any number of
// goroutines. The only shared mutable structure it touches is the registry,
// and only through Lookup.
type Dispatcher struct {
	registry *capability.Registry
	logger   *slog.Logger
	policy   PermissionPolicy
	tracer   trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithPermissionPolicy installs a policy consulted before permission-gated
// capabilities run. Without one, permission metadata is not enforced.
func WithPermissionPolicy(p PermissionPolicy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// WithTracerProvider sets the tracer provider. The default is the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		if tp != nil {
			d.tracer = tp.Tracer(tracerName)
		}
	}
}

// New returns a Dispatcher over reg.
func New(reg *capability.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the registry the dispatcher reads from.
func (d *Dispatcher) Registry() *capability.Registry { return d.registry }

// Invoke parses payload as a JSON object, runs the named capability and
// returns the result envelope text ({"success":true,"result":...}).
//
// Every failure is returned as an *Error; Invoke never panics because an
// executor did.
func (d *Dispatcher) Invoke(ctx context.Context, name string, payload string) (string, error) {
	ctx, span := d.tracer.Start(ctx, "capability.invoke",
		trace.WithAttributes(attribute.String("capability.name", name)))
	defer span.End()

	out, err := d.invoke(ctx, name, payload)
	if err != nil {
		span.SetAttributes(attribute.String("capability.outcome", string(KindOf(err))))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("capability.outcome", "ok"))
	return out, nil
}

// InvokeEnvelope is Invoke for callers that can only handle text: failures
// are rendered as {"success":false,"error":"..."} instead of being returned.
func (d *Dispatcher) InvokeEnvelope(ctx context.Context, name string, payload string) string {
	out, err := d.Invoke(ctx, name, payload)
	if err != nil {
		return ErrorEnvelope(err)
	}
	return out
}

func (d *Dispatcher) invoke(ctx context.Context, name string, payload string) (string, error) {
	p, err := ParsePayload(payload)
	if err != nil {
		return "", &Error{Kind: KindMalformedArguments, Capability: name, Message: err.Error(), Err: err}
	}
	result, err := d.Call(ctx, name, p)
	if err != nil {
		return "", err
	}
	text, err := Envelope(result)
	if err != nil {
		d.logger.WarnContext(ctx, "capability result not serializable", slog.String("capability", name), slog.String("err", err.Error()))
		return "", &Error{Kind: KindSerializationFailure, Capability: name, Message: err.Error(), Err: err}
	}
	return text, nil
}

// Call runs the named capability with an already decoded payload and returns
// the executor's raw result.
func (d *Dispatcher) Call(ctx context.Context, name string, payload Payload) (any, error) {
	entry, err := d.registry.Lookup(name)
	if err != nil {
		return nil, &Error{Kind: KindUnknownCapability, Capability: name, Message: fmt.Sprintf("no capability named %q", name), Err: err}
	}
	desc := entry.Descriptor
	ctx = logctx.WithCapabilityData(ctx, &logctx.CapabilityData{Name: desc.Name, Plugin: desc.Plugin, Async: desc.Async})

	args, err := Coerce(desc, payload)
	if err != nil {
		e := &Error{Kind: KindMalformedArguments, Capability: name, Message: err.Error(), Err: err}
		var mae *MalformedArgumentsError
		if errors.As(err, &mae) {
			e.Params = mae.Params()
		}
		d.logger.DebugContext(ctx, "capability arguments rejected", slog.Any("params", e.Params))
		return nil, e
	}

	if desc.RequiresPermission && d.policy != nil {
		if err := d.policy.Authorize(ctx, desc, args); err != nil {
			d.logger.InfoContext(ctx, "capability permission denied", slog.String("err", err.Error()))
			return nil, &Error{Kind: KindPermissionDenied, Capability: name, Message: err.Error(), Err: err}
		}
	}

	result, err := d.execute(ctx, entry, args)
	if err != nil {
		var pe *PanicError
		if errors.As(err, &pe) {
			d.logger.ErrorContext(ctx, "capability panicked", slog.Any("panic", pe.Value), slog.String("stack", string(pe.Stack)))
		} else {
			d.logger.WarnContext(ctx, "capability failed", slog.String("err", err.Error()))
		}
		return nil, &Error{Kind: KindExecutionFailure, Capability: name, Message: err.Error(), Err: err}
	}
	d.logger.DebugContext(ctx, "capability invoked")
	return result, nil
}

// execute runs the executor. Synchronous capabilities run on the calling
// goroutine. Asynchronous ones run on their own goroutine while the caller
// waits on the result or its context, whichever comes first; an abandoned
// executor keeps running until it observes its (cancelled) context.
func (d *Dispatcher) execute(ctx context.Context, e capability.Entry, args capability.Args) (any, error) {
	if !e.Descriptor.Async {
		return runProtected(ctx, e.Executor, args)
	}
	type outcome struct {
		v   any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := runProtected(ctx, e.Executor, args)
		done <- outcome{v: v, err: err}
	}()
	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func runProtected(ctx context.Context, exec capability.Executor, args capability.Args) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return exec.Execute(ctx, args)
}
