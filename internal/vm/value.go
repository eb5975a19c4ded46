// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/light4/luster/internal/vmcode"
)

// Type is an enumeration of the value kinds this core dispatches on.
type Type int

const (
	TypeNil Type = iota
	TypeBoolean
	TypeInteger
	TypeNumber
	TypeString
	TypeTable
	TypeClosure
	TypeCallback
)

func (t Type) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeInteger, TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	case TypeClosure, TypeCallback:
		return "function"
	default:
		return fmt.Sprintf("vm.Type(%d)", int(t))
	}
}

// Value is the internal representation of a value that can live in a
// register, upvalue, or table slot.
//
// A nil Go interface value represents Lua nil rather than a dedicated
// Nil type: every concrete case below is non-nil, so type-switching on
// "case nil" is unambiguous.
type Value interface {
	valueType() Type
}

// ValueType returns the [Type] of v, treating a nil v as [TypeNil].
func ValueType(v Value) Type {
	if v == nil {
		return TypeNil
	}
	return v.valueType()
}

// Boolean is a Lua boolean value.
type Boolean bool

func (Boolean) valueType() Type { return TypeBoolean }

// Integer is a Lua integer value.
type Integer int64

func (Integer) valueType() Type { return TypeInteger }

// Number is a Lua floating-point value.
type Number float64

func (Number) valueType() Type { return TypeNumber }

// String is a Lua string value.
//
// String interning is a non-dispatch concern the core assumes an
// external collaborator handles; this type is a plain Go string.
type String string

func (String) valueType() Type { return TypeString }

var idCounter struct {
	mu sync.Mutex
	n  uint64
}

// nextID returns a process-wide unique id, used to give tables,
// closures, and callbacks an identity-comparable and orderable handle
// without relying on pointer comparison (which Go does not let us use
// as a sort key).
func nextID() uint64 {
	idCounter.mu.Lock()
	defer idCounter.mu.Unlock()
	idCounter.n++
	return idCounter.n
}

// ToBoolean reports the truthiness of v: false and nil are false,
// everything else (including the number 0 and the empty string) is true.
func ToBoolean(v Value) bool {
	switch v := v.(type) {
	case nil:
		return false
	case Boolean:
		return bool(v)
	default:
		return true
	}
}

// Not returns the logical negation of v's truthiness.
func Not(v Value) Value {
	return Boolean(!ToBoolean(v))
}

// toNumber coerces v to a float64, accepting integers, floats, and
// numeric strings, matching Lua's arithmetic coercion rules.
func toNumber(v Value) (float64, bool) {
	switch v := v.(type) {
	case Integer:
		return float64(v), true
	case Number:
		return float64(v), true
	case String:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// bothIntegers reports whether a and b are both [Integer], returning
// their values. Lua keeps integer arithmetic exact when both operands
// are integers and only falls back to floating point otherwise.
func bothIntegers(a, b Value) (x, y int64, ok bool) {
	ai, aok := a.(Integer)
	bi, bok := b.(Integer)
	if aok && bok {
		return int64(ai), int64(bi), true
	}
	return 0, 0, false
}

// Add implements the Lua "+" operator.
func Add(a, b Value) (Value, bool) {
	if x, y, ok := bothIntegers(a, b); ok {
		return Integer(x + y), true
	}
	x, ok := toNumber(a)
	if !ok {
		return nil, false
	}
	y, ok := toNumber(b)
	if !ok {
		return nil, false
	}
	return Number(x + y), true
}

// Subtract implements the Lua "-" operator.
func Subtract(a, b Value) (Value, bool) {
	if x, y, ok := bothIntegers(a, b); ok {
		return Integer(x - y), true
	}
	x, ok := toNumber(a)
	if !ok {
		return nil, false
	}
	y, ok := toNumber(b)
	if !ok {
		return nil, false
	}
	return Number(x - y), true
}

// Multiply implements the Lua "*" operator.
func Multiply(a, b Value) (Value, bool) {
	if x, y, ok := bothIntegers(a, b); ok {
		return Integer(x * y), true
	}
	x, ok := toNumber(a)
	if !ok {
		return nil, false
	}
	y, ok := toNumber(b)
	if !ok {
		return nil, false
	}
	return Number(x * y), true
}

// LessThan implements the Lua "<" operator for numbers and strings.
func LessThan(a, b Value) (bool, bool) {
	if as, ok := a.(String); ok {
		if bs, ok := b.(String); ok {
			return as < bs, true
		}
		return false, false
	}
	x, ok := toNumber(a)
	if !ok {
		return false, false
	}
	y, ok := toNumber(b)
	if !ok {
		return false, false
	}
	return x < y, true
}

// Equal implements Lua's "==": structural for scalars and strings,
// identity for tables, closures, and callbacks. Mixed integer/float
// comparisons compare numerically.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Boolean:
		bv, ok := b.(Boolean)
		return ok && av == bv
	case Integer:
		switch bv := b.(type) {
		case Integer:
			return av == bv
		case Number:
			return float64(av) == float64(bv)
		default:
			return false
		}
	case Number:
		switch bv := b.(type) {
		case Integer:
			return float64(av) == float64(bv)
		case Number:
			return av == bv
		default:
			return false
		}
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case *Table:
		bv, ok := b.(*Table)
		return ok && av == bv
	case *Closure:
		bv, ok := b.(*Closure)
		return ok && av == bv
	case Callback:
		bv, ok := b.(Callback)
		return ok && av.id() == bv.id()
	default:
		panic("vm: unhandled value type in Equal")
	}
}

// compareValues imposes a total order over values of any kind, used
// only to keep a [Table]'s entries sorted for binary search. Values of
// differing types are ordered by their [Type], except that integers and
// floats compare numerically with each other.
func compareValues(a, b Value) int {
	switch av := a.(type) {
	case nil:
		return cmp.Compare(TypeNil, ValueType(b))
	case Boolean:
		bv, ok := b.(Boolean)
		if !ok {
			return cmp.Compare(TypeBoolean, ValueType(b))
		}
		return cmp.Compare(boolToInt(bool(av)), boolToInt(bool(bv)))
	case Integer:
		switch bv := b.(type) {
		case Integer:
			return cmp.Compare(av, bv)
		case Number:
			return cmp.Compare(float64(av), float64(bv))
		default:
			return cmp.Compare(TypeInteger, ValueType(b))
		}
	case Number:
		switch bv := b.(type) {
		case Integer:
			return cmp.Compare(float64(av), float64(bv))
		case Number:
			return cmp.Compare(av, bv)
		default:
			return cmp.Compare(TypeNumber, ValueType(b))
		}
	case String:
		bv, ok := b.(String)
		if !ok {
			return cmp.Compare(TypeString, ValueType(b))
		}
		return cmp.Compare(av, bv)
	case *Table:
		bv, ok := b.(*Table)
		if !ok {
			return cmp.Compare(TypeTable, ValueType(b))
		}
		return cmp.Compare(av.id, bv.id)
	case *Closure:
		bv, ok := b.(*Closure)
		if !ok {
			return cmp.Compare(TypeClosure, ValueType(b))
		}
		return cmp.Compare(av.id, bv.id)
	case Callback:
		bv, ok := b.(Callback)
		if !ok {
			return cmp.Compare(TypeCallback, ValueType(b))
		}
		return cmp.Compare(av.id(), bv.id())
	default:
		panic("vm: unhandled value type in compareValues")
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ToString renders v the way Lua's tostring would for the types this
// core supports (no __tostring metamethod, since metatables are out
// of scope).
func ToString(v Value) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case Boolean:
		if v {
			return "true"
		}
		return "false"
	case Integer:
		return strconv.FormatInt(int64(v), 10)
	case Number:
		return formatNumber(float64(v))
	case String:
		return string(v)
	case *Table:
		return fmt.Sprintf("table: %#x", v.id)
	case *Closure:
		return fmt.Sprintf("function: %#x", v.id)
	case Callback:
		return fmt.Sprintf("function: builtin: %#x", v.id())
	default:
		panic("vm: unhandled value type in ToString")
	}
}

func formatNumber(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', 14, 64)
}

// Concat implements the Lua ".." operator over a sequence of values,
// each of which must coerce to a string (string, integer, or float).
func Concat(values []Value) (Value, bool) {
	if len(values) == 1 {
		switch values[0].(type) {
		case String, Integer, Number:
			return String(ToString(values[0])), true
		default:
			return nil, false
		}
	}
	var sb []byte
	for _, v := range values {
		switch v.(type) {
		case String, Integer, Number:
			sb = append(sb, ToString(v)...)
		default:
			return nil, false
		}
	}
	return String(sb), true
}

// importConstant converts a compile-time [vmcode.Constant] to a runtime
// [Value], crossing the boundary between the bytecode representation
// and the VM's own value types.
func importConstant(c vmcode.Constant) Value {
	switch c.Kind {
	case vmcode.ConstNil:
		return nil
	case vmcode.ConstBoolean:
		return Boolean(c.Bool)
	case vmcode.ConstInteger:
		return Integer(c.Int)
	case vmcode.ConstNumber:
		return Number(c.Num)
	case vmcode.ConstString:
		return String(c.Str)
	default:
		panic("vm: unhandled constant kind")
	}
}
