package property

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

type valueKind uint8

const (
	valueUndefined valueKind = iota
	valueNull
	valueString
	valueNumber
	valueBool
)

// Value is a property value as carried by the transport. It remembers
// whether it was absent, null, a string, a number or a boolean.
type Value struct {
	kind valueKind
	str  string
	num  float64
	b    bool
}

// Undefined is the absent value
var Undefined = Value{}

// StringValue returns a string value
func StringValue(s string) Value {
	return Value{kind: valueString, str: s}
}

// NumberValue returns a numeric value
func NumberValue(f float64) Value {
	return Value{kind: valueNumber, num: f}
}

// BoolValue returns a boolean value
func BoolValue(b bool) Value {
	return Value{kind: valueBool, b: b}
}

// NullValue returns an explicit null
func NullValue() Value {
	return Value{kind: valueNull}
}

// IsDefined reports whether the value was supplied at all
func (v Value) IsDefined() bool { return v.kind != valueUndefined }

// IsZero reports whether the value is undefined (used by omitzero/omitempty)
func (v Value) IsZero() bool { return v.kind == valueUndefined }

// IsNull reports whether the value is an explicit null
func (v Value) IsNull() bool { return v.kind == valueNull }

// IsString reports whether the value is a string
func (v Value) IsString() bool { return v.kind == valueString }

// IsNumber reports whether the value is numeric
func (v Value) IsNumber() bool { return v.kind == valueNumber }

// IsBool reports whether the value is a native boolean
func (v Value) IsBool() bool { return v.kind == valueBool }

// TypeName returns the transport type of the value
func (v Value) TypeName() string {
	switch v.kind {
	case valueNull:
		return "null"
	case valueString:
		return "string"
	case valueNumber:
		return "number"
	case valueBool:
		return "boolean"
	}
	return "undefined"
}

// String returns the form used for validation and display.
// Undefined and null values stringify to "".
func (v Value) String() string {
	switch v.kind {
	case valueString:
		return v.str
	case valueNumber:
		return formatNumber(v.num)
	case valueBool:
		return strconv.FormatBool(v.b)
	}
	return ""
}

// Equal compares kind and content
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.String() == o.String()
}

func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.IsNaN(f):
		return "NaN"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// MarshalJSON encodes undefined values as null; use omitzero to drop them
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case valueString:
		return json.Marshal(v.str)
	case valueNumber:
		if math.IsInf(v.num, 0) || math.IsNaN(v.num) {
			return json.Marshal(formatNumber(v.num))
		}
		return json.Marshal(v.num)
	case valueBool:
		return json.Marshal(v.b)
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes any JSON scalar
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case nil:
		*v = NullValue()
	case string:
		*v = StringValue(t)
	case float64:
		*v = NumberValue(t)
	case bool:
		*v = BoolValue(t)
	default:
		return fmt.Errorf("unsupported property value: %s", data)
	}
	return nil
}

// UnmarshalYAML decodes a YAML scalar, keeping its resolved tag
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: property values must be scalars", node.Line)
	}
	switch node.Tag {
	case "!!null":
		*v = NullValue()
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*v = NumberValue(f)
	default:
		*v = StringValue(node.Value)
	}
	return nil
}

// MarshalYAML encodes the value as its native YAML scalar
func (v Value) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case valueString:
		return v.str, nil
	case valueNumber:
		return v.num, nil
	case valueBool:
		return v.b, nil
	}
	return nil, nil
}
