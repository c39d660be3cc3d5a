package bytecode

import (
	"fmt"
	"strconv"
)

// ValueKind discriminates the runtime value representation.
type ValueKind uint8

const (
	ValueNumber ValueKind = iota // IEEE-754 double
	ValueString                  // immutable string
	ValueNil                     // absence of a value
	ValueArray                   // mutable array of values
	ValueTagged                  // tagged value (pattern matching)
)

// String returns a human-readable name for ValueKind.
func (k ValueKind) String() string {
	switch k {
	case ValueNumber:
		return "number"
	case ValueString:
		return "string"
	case ValueNil:
		return "nil"
	case ValueArray:
		return "array"
	case ValueTagged:
		return "tagged"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

// Value is the interpreter's runtime value. Numbers are IEEE-754 doubles;
// booleans are represented as the numbers 1 and 0, so comparison results
// stay inside the numeric model that compiled code shares with the
// interpreter.
type Value struct {
	Kind  ValueKind
	Num   float64
	Str   string
	Elems []Value // array elements, or single-element payload for tagged values
	Tag   uint8   // tag for ValueTagged
}

// Nil is the canonical nil value.
var Nil = Value{Kind: ValueNil}

// Number wraps a float64 as a Value.
func Number(n float64) Value {
	return Value{Kind: ValueNumber, Num: n}
}

// Str wraps a string as a Value.
func Str(s string) Value {
	return Value{Kind: ValueString, Str: s}
}

// Boolean returns the numeric encoding of a boolean: 1 or 0.
func Boolean(b bool) Value {
	if b {
		return Value{Kind: ValueNumber, Num: 1}
	}
	return Value{Kind: ValueNumber, Num: 0}
}

// Array wraps a slice of values as a Value.
func Array(elems []Value) Value {
	return Value{Kind: ValueArray, Elems: elems}
}

// Tagged wraps a payload value with a tag.
func Tagged(tag uint8, payload Value) Value {
	return Value{Kind: ValueTagged, Tag: tag, Elems: []Value{payload}}
}

// IsNumber returns true for numeric values.
func (v Value) IsNumber() bool {
	return v.Kind == ValueNumber
}

// Truthy implements the language's truthiness rules: nil and the number 0
// are falsy, everything else (including the empty string) is truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case ValueNil:
		return false
	case ValueNumber:
		return v.Num != 0
	default:
		return true
	}
}

// Equals compares two values. Numbers compare by IEEE equality (NaN is
// never equal to anything, including itself), strings by content, nil only
// to nil. Arrays and tagged values compare by identity of structure.
func (v Value) Equals(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueNumber:
		return v.Num == o.Num
	case ValueString:
		return v.Str == o.Str
	case ValueNil:
		return true
	case ValueTagged:
		return v.Tag == o.Tag && len(v.Elems) == 1 && len(o.Elems) == 1 && v.Elems[0].Equals(o.Elems[0])
	case ValueArray:
		if len(v.Elems) != len(o.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equals(o.Elems[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders a value for diagnostics and the CLI.
func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case ValueString:
		return strconv.Quote(v.Str)
	case ValueNil:
		return "nil"
	case ValueTagged:
		return fmt.Sprintf("#%d(%s)", v.Tag, v.Elems[0])
	case ValueArray:
		s := "["
		for i, e := range v.Elems {
			if i > 0 {
				s += ", "
			}
			s += e.String()
		}
		return s + "]"
	default:
		return fmt.Sprintf("Value(kind=%d)", v.Kind)
	}
}
