package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a dispatch failure.
type Kind string

const (
	KindUnknownCapability    Kind = "UnknownCapability"
	KindMalformedArguments   Kind = "MalformedArguments"
	KindExecutionFailure     Kind = "ExecutionFailure"
	KindSerializationFailure Kind = "SerializationFailure"
	KindPermissionDenied     Kind = "PermissionDenied"
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrUnknownCapability    = errors.New("unknown capability")
	ErrMalformedArguments   = errors.New("malformed arguments")
	ErrExecutionFailure     = errors.New("execution failure")
	ErrSerializationFailure = errors.New("serialization failure")
	ErrPermissionDenied     = errors.New("permission denied")
)

var kindSentinels = map[Kind]error{
	KindUnknownCapability:    ErrUnknownCapability,
	KindMalformedArguments:   ErrMalformedArguments,
	KindExecutionFailure:     ErrExecutionFailure,
	KindSerializationFailure: ErrSerializationFailure,
	KindPermissionDenied:     ErrPermissionDenied,
}

// Error is the typed failure returned by Dispatcher.Invoke.
type Error struct {
	Kind       Kind
	Capability string
	Message    string
	// Params lists the offending parameter names for KindMalformedArguments.
	Params []string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Capability != "" {
		b.WriteString(" (")
		b.WriteString(e.Capability)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the Kind of err, or "" if err is not a dispatch error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Violation is one problem found while coercing a payload.
type Violation struct {
	Parameter string
	Reason    string
}

// MalformedArgumentsError collects every violation found for one payload.
type MalformedArgumentsError struct {
	Capability string
	Violations []Violation
}

func (e *MalformedArgumentsError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Parameter, v.Reason)
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.Capability, strings.Join(parts, "; "))
}

// Params returns the offending parameter names, sorted and de-duplicated.
func (e *MalformedArgumentsError) Params() []string {
	seen := make(map[string]struct{}, len(e.Violations))
	out := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if _, ok := seen[v.Parameter]; ok {
			continue
		}
		seen[v.Parameter] = struct{}{}
		out = append(out, v.Parameter)
	}
	sort.Strings(out)
	return out
}

// Is lets a bare MalformedArgumentsError match ErrMalformedArguments.
func (e *MalformedArgumentsError) Is(target error) bool { return target == ErrMalformedArguments }

// PanicError wraps a value recovered from a panicking executor.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("executor panicked: %v", e.Value) }
