// Package dispatch turns (name, untyped JSON payload) requests into calls on
// capabilities held in a capability.Registry.
//
// Invoke parses the payload, looks the capability up, coerces every declared
// parameter to its type tag, optionally consults a PermissionPolicy, runs the
// executor with panic recovery and renders the outcome as a result envelope:
//
//	d := dispatch.New(reg)
//	out, err := d.Invoke(ctx, "add", `{"a":2,"b":3}`)
//	// out == `{"success":true,"result":5}`
//
// Failures are *Error values classified by Kind and matchable with errors.Is
// against ErrUnknownCapability, ErrMalformedArguments, ErrExecutionFailure,
// ErrSerializationFailure and ErrPermissionDenied. Callers that can only pass
// text across a boundary use InvokeEnvelope, which folds failures into
// {"success":false,"error":"..."}.
package dispatch
