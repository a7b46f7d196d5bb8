// Package feature defines the domain types shared by the cache, store and
// serving layers: the typed feature value variant and the registry dtype tags.
package feature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DType tags accepted by the registry.
const (
	DTypeFloat64 = "float64"
	DTypeInt64   = "int64"
	DTypeString  = "string"
	DTypeBool    = "bool"
)

// ValidDType reports whether s is one of the accepted dtype tags.
func ValidDType(s string) bool {
	switch s {
	case DTypeFloat64, DTypeInt64, DTypeString, DTypeBool:
		return true
	}
	return false
}

// Kind identifies the concrete type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindFloat64
	KindInt64
	KindString
	KindBool
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindFloat64:
		return "float64"
	case KindInt64:
		return "int64"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a tagged variant over the four permitted feature dtypes plus null.
// The zero Value is null.
type Value struct {
	Kind  Kind
	Float float64
	Int   int64
	Str   string
	Bool  bool
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Float64 returns a float64 Value.
func Float64(f float64) Value { return Value{Kind: KindFloat64, Float: f} }

// Int64 returns an int64 Value.
func Int64(i int64) Value { return Value{Kind: KindInt64, Int: i} }

// String returns a string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool returns a bool Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Interface returns the value as a plain Go value (nil for null).
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindFloat64:
		return v.Float
	case KindInt64:
		return v.Int
	case KindString:
		return v.Str
	case KindBool:
		return v.Bool
	default:
		return nil
	}
}

// Equal reports whether two values hold the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindFloat64:
		return v.Float == o.Float
	case KindInt64:
		return v.Int == o.Int
	case KindString:
		return v.Str == o.Str
	case KindBool:
		return v.Bool == o.Bool
	default:
		return true
	}
}

// MatchesDType reports whether the value is assignable to a registered dtype.
// Null matches any dtype. An int64 value is acceptable for a float64 feature
// because JSON producers routinely emit whole numbers without a decimal point.
func (v Value) MatchesDType(dtype string) bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindFloat64:
		return dtype == DTypeFloat64
	case KindInt64:
		return dtype == DTypeInt64 || dtype == DTypeFloat64
	case KindString:
		return dtype == DTypeString
	case KindBool:
		return dtype == DTypeBool
	}
	return false
}

// MarshalJSON encodes the value as a bare JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindFloat64:
		return json.Marshal(v.Float)
	case KindInt64:
		return json.Marshal(v.Int)
	case KindString:
		return json.Marshal(v.Str)
	case KindBool:
		return json.Marshal(v.Bool)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a bare JSON scalar into the variant. Numbers without
// a fraction or exponent become int64, everything else numeric becomes
// float64. Arrays and objects are rejected.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("invalid feature value: %w", err)
	}

	switch t := raw.(type) {
	case nil:
		*v = Null()
	case bool:
		*v = Bool(t)
	case string:
		*v = String(t)
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			*v = Int64(i)
			return nil
		}
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("invalid numeric feature value %q: %w", t.String(), err)
		}
		*v = Float64(f)
	default:
		return fmt.Errorf("unsupported feature value type %T", raw)
	}
	return nil
}
