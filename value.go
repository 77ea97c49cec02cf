// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ValueKind declares which Value variants a feature or property may
// produce. It mirrors the "type" field of the configuration document.
type ValueKind int

const (
	// ValueKindNumeric accepts the Int64, UInt64 and Float64 variants.
	ValueKindNumeric ValueKind = iota
	// ValueKindBoolean accepts the Bool variant.
	ValueKindBoolean
	// ValueKindString accepts the String variant.
	ValueKindString
)

// String returns the wire name of the kind.
func (k ValueKind) String() string {
	switch k {
	case ValueKindNumeric:
		return "NUMERIC"
	case ValueKindBoolean:
		return "BOOLEAN"
	case ValueKindString:
		return "STRING"
	}
	return "UNKNOWN"
}

func parseValueKind(s string) (ValueKind, error) {
	switch s {
	case "NUMERIC":
		return ValueKindNumeric, nil
	case "BOOLEAN":
		return ValueKindBoolean, nil
	case "STRING":
		return ValueKindString, nil
	}
	return 0, newProtocolError("unknown value type %q", s)
}

// Value is a typed configuration or attribute value. It is a closed
// union over the Int64Value, UInt64Value, Float64Value, BoolValue and
// StringValue variants; a type switch is the intended discriminator.
type Value interface {
	isValue()
	// String renders the value for logs and error messages.
	String() string
}

// Int64Value is the signed integer variant of Value.
type Int64Value int64

// UInt64Value is the unsigned integer variant of Value. It is only
// produced for JSON integers that do not fit in an int64.
type UInt64Value uint64

// Float64Value is the floating point variant of Value.
type Float64Value float64

// BoolValue is the boolean variant of Value.
type BoolValue bool

// StringValue is the string variant of Value.
type StringValue string

func (Int64Value) isValue()   {}
func (UInt64Value) isValue()  {}
func (Float64Value) isValue() {}
func (BoolValue) isValue()    {}
func (StringValue) isValue()  {}

func (v Int64Value) String() string   { return strconv.FormatInt(int64(v), 10) }
func (v UInt64Value) String() string  { return strconv.FormatUint(uint64(v), 10) }
func (v Float64Value) String() string { return strconv.FormatFloat(float64(v), 'g', -1, 64) }
func (v BoolValue) String() string    { return strconv.FormatBool(bool(v)) }
func (v StringValue) String() string  { return string(v) }

// valueFromRaw tags a JSON scalar with the widest variant that holds it
// exactly: int64 before uint64 before float64. Booleans and strings map
// onto their variants directly; anything else is a protocol error.
func valueFromRaw(raw json.RawMessage) (Value, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, newProtocolError("missing value")
	}
	switch s[0] {
	case '"':
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, newProtocolError("malformed string value %s", s)
		}
		return StringValue(str), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, newProtocolError("malformed boolean value %s", s)
		}
		return BoolValue(b), nil
	default:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int64Value(i), nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return UInt64Value(u), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float64Value(f), nil
		}
		return nil, newProtocolError("unsupported JSON value %s", s)
	}
}

// coerceValue checks v against the declared kind of its feature or
// property. Numeric mismatches are protocol errors because the document
// stores rule values untyped; boolean and string mismatches surface as
// MismatchTypeError.
func coerceValue(v Value, kind ValueKind) (Value, error) {
	switch kind {
	case ValueKindNumeric:
		switch v.(type) {
		case Int64Value, UInt64Value, Float64Value:
			return v, nil
		}
		return nil, newProtocolError("numeric value expected, got %q", v.String())
	case ValueKindBoolean:
		if b, ok := v.(BoolValue); ok {
			return b, nil
		}
		return nil, &MismatchTypeError{Expected: "BOOLEAN", Actual: v.String()}
	case ValueKindString:
		if s, ok := v.(StringValue); ok {
			return s, nil
		}
		return nil, &MismatchTypeError{Expected: "STRING", Actual: v.String()}
	}
	return nil, newProtocolError("unknown value kind %d", int(kind))
}
