package capability

import (
	"encoding/json"
	"reflect"
	"strings"
)

var rawMessageType = reflect.TypeOf(json.RawMessage(nil))

// TypeTag is the schema type assigned to a parameter.
type TypeTag string

const (
	TypeString  TypeTag = "string"
	TypeInteger TypeTag = "integer"
	TypeNumber  TypeTag = "number"
	TypeBoolean TypeTag = "boolean"
	TypeArray   TypeTag = "array"
	TypeObject  TypeTag = "object"
)

// Valid reports whether t is one of the fixed tags.
func (t TypeTag) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// TagOf maps a Go type to a TypeTag. Pointers are unwrapped first, so *int is
// an integer. Anything that is not text, numeric, boolean or a sequence is an
// object. json.RawMessage is an object: it carries an arbitrary structured
// value for the executor to parse.
func TagOf(t reflect.Type) TypeTag {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t == rawMessageType {
		return TypeObject
	}
	switch t.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger
	case reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Bool:
		return TypeBoolean
	case reflect.Slice, reflect.Array:
		return TypeArray
	default:
		return TypeObject
	}
}

// TagFor maps a declared type name to a TypeTag. It understands Go spellings
// ("string", "int64", "[]string", "*bool") as well as the common spellings of
// other declaration languages ("String", "&str", "i32", "u64", "f64", "Vec<T>",
// "&[T]", "Option<T>"). Precedence is text, integer, floating point, boolean,
// sequence; unrecognized names map to TypeObject.
func TagFor(typeName string) TypeTag {
	name := stripReference(unwrapOptional(strings.TrimSpace(typeName)))
	if name == "" {
		return TypeObject
	}
	if strings.HasPrefix(name, "[") {
		return TypeArray
	}
	lower := strings.ToLower(name)
	switch {
	case lower == "string" || lower == "str" || lower == "text" || lower == "char" || lower == "rune":
		return TypeString
	case isIntegerName(lower):
		return TypeInteger
	case lower == "float" || lower == "float32" || lower == "float64" || lower == "f32" || lower == "f64" ||
		lower == "double" || lower == "number" || lower == "decimal":
		return TypeNumber
	case lower == "bool" || lower == "boolean":
		return TypeBoolean
	case strings.HasPrefix(lower, "vec<") || strings.HasPrefix(lower, "array") ||
		strings.HasPrefix(lower, "list<") || strings.HasSuffix(lower, "[]"):
		return TypeArray
	}
	return TypeObject
}

func isIntegerName(lower string) bool {
	switch lower {
	case "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr", "byte",
		"i8", "i16", "i32", "i64", "i128", "isize",
		"u8", "u16", "u32", "u64", "u128", "usize",
		"integer", "long", "short":
		return true
	}
	return false
}

// stripReference drops a leading & or &mut from a borrowed type name.
func stripReference(name string) string {
	if rest, ok := strings.CutPrefix(name, "&"); ok {
		rest = strings.TrimSpace(rest)
		if after, ok := strings.CutPrefix(rest, "mut "); ok {
			return strings.TrimSpace(after)
		}
		return rest
	}
	return name
}

// unwrapOptional strips nullable wrappers: *T, T?, Option<T>.
func unwrapOptional(name string) string {
	for {
		switch {
		case strings.HasPrefix(name, "*"):
			name = strings.TrimSpace(name[1:])
		case strings.HasSuffix(name, "?"):
			name = strings.TrimSpace(name[:len(name)-1])
		case strings.HasPrefix(name, "Option<") && strings.HasSuffix(name, ">"):
			name = strings.TrimSpace(name[len("Option<") : len(name)-1])
		default:
			return name
		}
	}
}

// isNullableName reports whether a declared type name is explicitly nullable.
func isNullableName(typeName string) bool {
	name := strings.TrimSpace(typeName)
	return strings.HasPrefix(name, "*") || strings.HasSuffix(name, "?") || strings.HasPrefix(name, "Option<")
}

// tagForSchemaType maps a JSON Schema "type" keyword to a TypeTag.
func tagForSchemaType(t string) TypeTag {
	tag := TypeTag(t)
	if tag.Valid() {
		return tag
	}
	return TypeObject
}
