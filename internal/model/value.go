// SPDX-License-Identifier: Apache-2.0

// Package model defines the typed document tree (values, rules, resources,
// links) that the rest of cfgcenter is built on.
package model

import "fmt"

// Kind tags the concrete type carried by a Value.
type Kind int

// The concrete kinds a Value can hold.
const (
	KindNull Kind = iota
	KindStr
	KindInt
	KindFloat
	KindBool
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindStr:
		return "str"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is the tagged union WhoAmI attributes, resource items, and rule
// literals are built from.
type Value struct {
	Kind  Kind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	List  []Value
}

// Null is the zero Value.
var Null = Value{Kind: KindNull}

// Str constructs a string Value.
func Str(s string) Value { return Value{Kind: KindStr, Str: s} }

// Int constructs an integer Value.
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

// Float constructs a float Value.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// Bool constructs a boolean Value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// List constructs a list Value.
func List(items ...Value) Value { return Value{Kind: KindList, List: items} }

// Equal reports deep equality. Values of different kinds are never equal.
// Float equality uses plain float64 comparison, so NaN is equal to nothing
// (including another NaN) while finite values and infinities compare
// bitwise as usual.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindStr:
		return v.Str == o.Str
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindBool:
		return v.Bool == o.Bool
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two Values of the same Kind. ok is false when the kinds
// differ or the kind has no defined ordering (Null, Bool, List).
func (v Value) Compare(o Value) (cmp int, ok bool) {
	if v.Kind != o.Kind {
		return 0, false
	}
	switch v.Kind {
	case KindStr:
		switch {
		case v.Str < o.Str:
			return -1, true
		case v.Str > o.Str:
			return 1, true
		default:
			return 0, true
		}
	case KindInt:
		switch {
		case v.Int < o.Int:
			return -1, true
		case v.Int > o.Int:
			return 1, true
		default:
			return 0, true
		}
	case KindFloat:
		switch {
		case v.Float < o.Float:
			return -1, true
		case v.Float > o.Float:
			return 1, true
		case v.Float == o.Float:
			return 0, true
		default:
			// NaN on either side: unordered.
			return 0, false
		}
	default:
		return 0, false
	}
}

// String renders a debug-friendly representation; not used for equality.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindStr:
		return fmt.Sprintf("%q", v.Str)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindList:
		return fmt.Sprintf("%v", v.List)
	default:
		return "<invalid>"
	}
}

// WhoAmI is the mapping from identifier to Value describing the querying
// principal, evaluated against rule Conditions.
type WhoAmI map[string]Value
