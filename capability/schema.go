package capability

import (
	"bytes"
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// FunctionSchema is the externally published description of a capability in
// the function-calling shape:
//
//	{"type":"function","function":{"name":...,"description":...,"parameters":{...}}}
type FunctionSchema struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec is the "function" member of a FunctionSchema.
type FunctionSpec struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  ParametersSchema `json:"parameters"`
}

// ParametersSchema is the object schema describing a capability's arguments.
// Required is always present, possibly empty.
type ParametersSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

// PropertySchema describes a single parameter.
type PropertySchema struct {
	Type        TypeTag `json:"type"`
	Description string  `json:"description"`
	Default     any     `json:"default,omitempty"`
}

// BuildSchema assembles the FunctionSchema for d. It is pure: equal
// descriptors always produce equal schemas, and MarshalSchema renders them to
// identical bytes because encoding/json sorts map keys.
func BuildSchema(d Descriptor) FunctionSchema {
	d = d.withDefaults()
	props := make(map[string]PropertySchema, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		props[p.Name] = PropertySchema{
			Type:        p.Type,
			Description: p.Description,
			Default:     p.Default,
		}
		if p.Required() {
			required = append(required, p.Name)
		}
	}
	return FunctionSchema{
		Type: "function",
		Function: FunctionSpec{
			Name:        d.Name,
			Description: d.Description,
			Parameters: ParametersSchema{
				Type:       "object",
				Properties: props,
				Required:   required,
			},
		},
	}
}

// MarshalSchema renders the schema of d as JSON text.
func MarshalSchema(d Descriptor) ([]byte, error) {
	b, err := json.Marshal(BuildSchema(d))
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %q: %w", d.Name, err)
	}
	return b, nil
}

// ValidateSchema compiles the parameters schema of d as a JSON Schema
// document and reports an error if a conforming validator would reject it.
func ValidateSchema(d Descriptor) error {
	b, err := json.Marshal(BuildSchema(d).Function.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters schema for %q: %w", d.Name, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("decode parameters schema for %q: %w", d.Name, err)
	}
	c := jsonschema.NewCompiler()
	const url = "mem://parameters.json"
	if err := c.AddResource(url, doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, d.Name, err)
	}
	if _, err := c.Compile(url); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, d.Name, err)
	}
	return nil
}
