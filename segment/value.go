package segment

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind enumerates the scalar types a segment column value can take.
type Kind uint8

const (
	// KindNull is the SQL NULL sentinel. NULL sorts after every other value.
	KindNull Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
)

// Value is an immutable scalar stored on a segment axis or in a cell.
//
// Only int64, float64, bool, string and the NULL sentinel are representable;
// these are the value types that compare and serialize deterministically
// across processes. Value is comparable and can be used as a map key.
type Value struct {
	K Kind    `json:"k"`
	I int64   `json:"i,omitempty"`
	F float64 `json:"f,omitempty"`
	B bool    `json:"b,omitempty"`
	S string  `json:"s,omitempty"`
}

// Null is the NULL sentinel value.
var Null = Value{K: KindNull}

// IntValue returns an integer Value.
func IntValue(i int64) Value { return Value{K: KindInt, I: i} }

// FloatValue returns a floating-point Value.
func FloatValue(f float64) Value { return Value{K: KindFloat, F: f} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{K: KindBool, B: b} }

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{K: KindString, S: s} }

// IsNull reports whether v is the NULL sentinel.
func (v Value) IsNull() bool { return v.K == KindNull }

// IsNumeric reports whether v is an int or float.
func (v Value) IsNumeric() bool { return v.K == KindInt || v.K == KindFloat }

// Float64 returns the numeric value of v as a float64.
// Only meaningful for numeric values.
func (v Value) Float64() float64 {
	if v.K == KindInt {
		return float64(v.I)
	}
	return v.F
}

// rank orders value kinds relative to each other: numerics first, then
// booleans, then strings, with NULL always last.
func (v Value) rank() int {
	switch v.K {
	case KindInt, KindFloat:
		return 0
	case KindBool:
		return 1
	case KindString:
		return 2
	default:
		return 3
	}
}

// Compare imposes the total order used on segment axes: numerics compare
// numerically across int/float, false < true, strings compare
// lexicographically, and NULL sorts last. Returns -1, 0 or 1.
func Compare(a, b Value) int {
	ra, rb := a.rank(), b.rank()
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		if a.K == KindInt && b.K == KindInt {
			switch {
			case a.I < b.I:
				return -1
			case a.I > b.I:
				return 1
			}
			return 0
		}
		af, bf := a.Float64(), b.Float64()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case 1:
		switch {
		case !a.B && b.B:
			return -1
		case a.B && !b.B:
			return 1
		}
		return 0
	case 2:
		switch {
		case a.S < b.S:
			return -1
		case a.S > b.S:
			return 1
		}
		return 0
	default:
		return 0 // both NULL
	}
}

// String returns the textual form of v. This is the form that feeds the
// header digest, so it must be stable across releases.
func (v Value) String() string {
	switch v.K {
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindString:
		return v.S
	default:
		return "#null"
	}
}

// valueFromAny converts a plain Go scalar into a Value. Unsupported types
// return an error; nil maps to the NULL sentinel.
func valueFromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null, nil
	case int:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case float32:
		return FloatValue(float64(t)), nil
	case float64:
		return FloatValue(t), nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case Value:
		return t, nil
	default:
		return Null, fmt.Errorf("segment: unsupported value type %T", x)
	}
}

// MustValue converts a plain Go scalar into a Value and panics on
// unsupported types. Intended for literals in tests and wiring code.
func MustValue(x any) Value {
	v, err := valueFromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

var _ json.Marshaler = Value{}

// MarshalJSON emits a compact tagged encoding so that integers survive a
// round trip without being widened to float64.
func (v Value) MarshalJSON() ([]byte, error) {
	type wire Value
	return json.Marshal(wire(v))
}

// UnmarshalJSON decodes the tagged encoding produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	type wire Value
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*v = Value(w)
	return nil
}
