// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vmcode

// ConstantKind is the tag of a [Constant].
type ConstantKind uint8

const (
	ConstNil ConstantKind = iota
	ConstBoolean
	ConstInteger
	ConstNumber
	ConstString
)

// Constant is a compile-time literal stored in a [Prototype]'s
// constant table. It is a smaller tagged union than the runtime
// Value: constants can never be tables, closures, or callbacks.
type Constant struct {
	Kind ConstantKind
	Bool bool
	Int  int64
	Num  float64
	Str  string
}

// NilConstant is the nil literal.
var NilConstant = Constant{Kind: ConstNil}

// BoolConstant returns a boolean literal.
func BoolConstant(b bool) Constant { return Constant{Kind: ConstBoolean, Bool: b} }

// IntConstant returns an integer literal.
func IntConstant(i int64) Constant { return Constant{Kind: ConstInteger, Int: i} }

// NumConstant returns a floating-point literal.
func NumConstant(f float64) Constant { return Constant{Kind: ConstNumber, Num: f} }

// StringConstant returns a string literal.
func StringConstant(s string) Constant { return Constant{Kind: ConstString, Str: s} }

// UpvalueKind is the tag of an [UpvalueDescriptor].
type UpvalueKind uint8

const (
	// UpvalueEnvironment marks the implicit _ENV upvalue. It is only
	// legal on a top-level (main chunk) prototype; any other prototype
	// whose Upvalues names it is malformed.
	UpvalueEnvironment UpvalueKind = iota
	// UpvalueParentLocal captures a register of the immediately
	// enclosing Lua frame.
	UpvalueParentLocal
	// UpvalueOuter re-shares an upvalue cell already held by the
	// immediately enclosing closure.
	UpvalueOuter
)

// UpvalueDescriptor tells a [OpClosure] instruction how to resolve one
// of a nested prototype's upvalues at closure-construction time.
type UpvalueDescriptor struct {
	Kind UpvalueKind
	// Index is the register number for [UpvalueParentLocal] or the
	// enclosing closure's upvalue index for [UpvalueOuter]. Unused for
	// [UpvalueEnvironment].
	Index int
	// Name is debug-only.
	Name string
}

// Prototype is the immutable compiled form of a function: its opcode
// vector, constants, nested prototypes, and upvalue descriptors.
//
// A Prototype is produced by an external compiler (out of scope for
// this repository) and consumed read-only by the dispatcher.
type Prototype struct {
	Code       []Instruction
	Constants  []Constant
	Prototypes []*Prototype
	Upvalues   []UpvalueDescriptor

	// FixedParams is the number of named (non-vararg) parameters.
	FixedParams int
	// StackSize is the number of registers this function's frame needs.
	StackSize int

	// Name is debug-only: used in runtime error messages.
	Name string
}
