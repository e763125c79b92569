package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type successEnvelope struct {
	Success bool `json:"success"`
	Result  any  `json:"result"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Envelope renders an executor result as {"success":true,"result":...}.
//
// A string result that is itself a JSON object or array is embedded as that
// structured value rather than as a string. json.RawMessage and []byte
// results holding valid JSON are embedded as-is. Any other value is encoded
// with encoding/json.
func Envelope(result any) (string, error) {
	var embedded any = result
	switch v := result.(type) {
	case string:
		if raw, ok := structuredText(v); ok {
			embedded = raw
		}
	case json.RawMessage:
		if raw, ok := structuredBytes(v); ok {
			embedded = raw
		} else {
			embedded = string(v)
		}
	case []byte:
		if raw, ok := structuredBytes(v); ok {
			embedded = raw
		} else {
			embedded = string(v)
		}
	}
	b, err := json.Marshal(successEnvelope{Success: true, Result: embedded})
	if err != nil {
		return "", fmt.Errorf("encode result of type %T: %w", result, err)
	}
	return string(b), nil
}

// ErrorEnvelope renders err as {"success":false,"error":"..."}.
func ErrorEnvelope(err error) string {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	b, mErr := json.Marshal(errorEnvelope{Success: false, Error: msg})
	if mErr != nil {
		return `{"success":false,"error":"unrenderable error"}`
	}
	return string(b)
}

// structuredText reports whether s is a JSON object or array, detected by its
// first non-space character and confirmed by a validity check.
func structuredText(s string) (json.RawMessage, bool) {
	t := strings.TrimSpace(s)
	if t == "" || (t[0] != '{' && t[0] != '[') {
		return nil, false
	}
	if !json.Valid([]byte(t)) {
		return nil, false
	}
	return json.RawMessage(t), true
}

func structuredBytes(b []byte) (json.RawMessage, bool) {
	t := bytes.TrimSpace(b)
	if len(t) == 0 || !json.Valid(t) {
		return nil, false
	}
	return json.RawMessage(t), true
}
