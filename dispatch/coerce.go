package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HPD-AI/HPD-Agent-Framework/capability"
)

// Payload is an untyped argument set decoded from JSON with numbers kept as
// json.Number.
type Payload map[string]any

// ParsePayload decodes JSON object text into a Payload. Empty or
// whitespace-only text is an empty payload.
func ParsePayload(text string) (Payload, error) {
	if strings.TrimSpace(text) == "" {
		return Payload{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("payload has trailing data")
	}
	if p == nil {
		// literal null
		p = Payload{}
	}
	return p, nil
}

// Coerce converts payload into the typed argument set d declares.
//
// Every declared parameter is checked; all problems are reported together in
// a *MalformedArgumentsError. Absent (or null) parameters take their default
// if one is declared, are skipped if optional, and are a violation otherwise.
// Undeclared payload keys are ignored. Per-tag conversion rules are those of
// capability.Convert.
func Coerce(d capability.Descriptor, payload Payload) (capability.Args, error) {
	args := make(capability.Args, len(d.Parameters))
	var violations []Violation
	for _, p := range d.Parameters {
		raw, present := payload[p.Name]
		if !present || raw == nil {
			switch {
			case p.Default != nil:
				v, err := p.DefaultValue()
				if err != nil {
					violations = append(violations, Violation{Parameter: p.Name, Reason: err.Error()})
					continue
				}
				args[p.Name] = v
			case p.Optional:
			default:
				violations = append(violations, Violation{Parameter: p.Name, Reason: "missing required parameter"})
			}
			continue
		}
		v, err := p.Coerce(raw)
		if err != nil {
			violations = append(violations, Violation{Parameter: p.Name, Reason: err.Error()})
			continue
		}
		args[p.Name] = v
	}
	if len(violations) > 0 {
		return nil, &MalformedArgumentsError{Capability: d.Name, Violations: violations}
	}
	return args, nil
}
