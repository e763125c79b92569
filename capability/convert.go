package capability

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Convert converts a decoded JSON value to the representation Args uses for
// tag. Numbers may arrive as json.Number, float64 or int64.
//
// Accepted inputs per tag:
//
//	string  : JSON string
//	integer : JSON number with integral value, or a string holding one
//	number  : JSON number, or a string holding one
//	boolean : JSON boolean, or the strings "true"/"false"
//	array   : JSON array
//	object  : any JSON value, passed through as json.RawMessage
func Convert(tag TypeTag, v any) (any, error) {
	switch tag {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %s", jsonKind(v))
		}
		return s, nil
	case TypeInteger:
		return toInteger(v)
	case TypeNumber:
		return toNumber(v)
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("expected boolean, got string %q", b)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("expected boolean, got %s", jsonKind(v))
	case TypeArray:
		a, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array, got %s", jsonKind(v))
		}
		return normalize(a).([]any), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("re-encode value: %w", err)
		}
		return json.RawMessage(b), nil
	}
}

// Coerce converts a supplied value for p. Parameters reflected by New also
// have the value checked against the Go type of their struct field, so width,
// sign and element type mismatches are reported here rather than when the
// executor binds its arguments.
func (p Parameter) Coerce(v any) (any, error) {
	out, err := Convert(p.Type, v)
	if err != nil {
		return nil, err
	}
	if err := p.checkGoType(out); err != nil {
		return nil, err
	}
	return out, nil
}

// DefaultValue returns p.Default converted like a supplied value. It returns
// nil, nil when p has no default.
func (p Parameter) DefaultValue() (any, error) {
	if p.Default == nil {
		return nil, nil
	}
	b, err := json.Marshal(p.Default)
	if err != nil {
		return nil, fmt.Errorf("default value: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("default value: %w", err)
	}
	out, err := p.Coerce(v)
	if err != nil {
		return nil, fmt.Errorf("default value: %w", err)
	}
	return out, nil
}

func (p Parameter) checkGoType(v any) error {
	if p.goType == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("re-encode value: %w", err)
	}
	if err := json.Unmarshal(b, reflect.New(p.goType).Interface()); err != nil {
		var ute *json.UnmarshalTypeError
		if errors.As(err, &ute) {
			return fmt.Errorf("%s does not fit %s", ute.Value, ute.Type)
		}
		return fmt.Errorf("not a valid %s: %v", p.goType, err)
	}
	return nil
}

func toInteger(v any) (int64, error) {
	var text string
	switch n := v.(type) {
	case json.Number:
		text = n.String()
	case string:
		text = strings.TrimSpace(n)
	case float64:
		text = strconv.FormatFloat(n, 'f', -1, 64)
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %s", jsonKind(v))
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("expected integer, got %q", text)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("expected integer, got %q", text)
	}
	return int64(f), nil
}

func toNumber(v any) (float64, error) {
	var text string
	switch n := v.(type) {
	case json.Number:
		text = n.String()
	case string:
		text = strings.TrimSpace(n)
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected number, got %s", jsonKind(v))
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("expected number, got %q", text)
	}
	return f, nil
}

// normalize converts json.Number leaves into float64 so array elements look
// like values produced by a plain json.Unmarshal.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int64, int:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
