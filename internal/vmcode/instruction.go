// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vmcode

// VarCount encodes either a fixed non-negative count of return or
// argument values, or "variable": take all values up to the stack
// top, leaving the stack top as the marker for the consumer.
//
// This mirrors the VarCount type from the Rust implementation this
// core was distilled from: a constant count or the variable sentinel,
// nothing else.
type VarCount int32

// AllValues is the VarCount sentinel meaning "variable count".
const AllValues VarCount = -1

// FixedCount returns a VarCount representing exactly n values.
// FixedCount panics if n is negative.
func FixedCount(n int) VarCount {
	if n < 0 {
		panic("vmcode: negative fixed count")
	}
	return VarCount(n)
}

// IsVariable reports whether v represents "variable count".
func (v VarCount) IsVariable() bool {
	return v < 0
}

// Constant returns the fixed count and true, or (0, false) if v is variable.
func (v VarCount) Constant() (int, bool) {
	if v < 0 {
		return 0, false
	}
	return int(v), true
}

// Instruction is one decoded bytecode operation.
//
// Every opcode addresses its operands through some combination of A,
// B, and C; which of B and C (if any) index the constant table rather
// than a register is encoded in the opcode itself (the "R"/"C" suffix
// on opcodes such as [OpAddRC]), not in a runtime flag: every
// register/constant combination gets its own opcode rather than a
// per-instruction constant bit.
//
// Field meaning by opcode:
//
//   - [OpMove]: A=dest register, B=source register.
//   - [OpLoadConstant]: A=dest register, B=constant index.
//   - [OpLoadBool]: A=dest register, B=value (0 or 1), C=skip_next (0 or 1).
//   - [OpLoadNil]: A=dest register, B=count.
//   - [OpNewTable]: A=dest register.
//   - [OpGetTableR]/[OpGetTableC]: A=dest, B=table register, C=key (register or constant).
//   - [OpSetTableRR]/RC/CR/CC: A=table register, B=key, C=value (register-or-constant per suffix).
//   - [OpGetUpTableR]/C: A=dest, B=upvalue index (holding the table), C=key.
//   - [OpSetUpTableRR]/RC/CR/CC: A=upvalue index (holding the table), B=key, C=value.
//   - [OpGetUpValue]: A=dest register, B=upvalue index.
//   - [OpSetUpValue]: A=upvalue index, B=source register.
//   - [OpAddRR]/RC/CR/CC, [OpSubRR]/.../[OpMulCC]: A=dest, B=left, C=right.
//   - [OpNot]: A=dest, B=source.
//   - [OpLength]: A=dest, B=source (table register).
//   - [OpConcat]: A=dest, B=first source register, C=count of registers to concatenate.
//   - [OpTest]: A=value register, B=is_true (0 or 1).
//   - [OpTestSet]: A=dest, B=value register, C=is_true.
//   - [OpEqRR]/RC/CR/CC: A=skip_if (0 or 1), B=left, C=right.
//   - [OpJump]: A=signed pc offset, B=close-upvalues register, or -1 for none.
//   - [OpCall]: A=function register (frame-relative), B=argument [VarCount], C=result [VarCount].
//   - [OpTailCall]: A=function register, B=argument [VarCount].
//   - [OpReturn]: A=first result register, B=result [VarCount].
//   - [OpVarArgs]: A=dest register, B=count [VarCount].
//   - [OpClosure]: A=dest register, B=nested prototype index.
//   - [OpNumericForPrep]/[OpNumericForLoop]: A=loop base register, B=signed pc jump.
//   - [OpGenericForCall]: A=loop base register, B=number of loop variables.
//   - [OpGenericForLoop]: A=loop base register, B=signed pc jump.
//   - [OpSelfR]/C: A=dest base register (A and A+1 are both written), B=table register, C=key.
type Instruction struct {
	Op OpCode
	A  int32
	B  int32
	C  int32
}

// ABC returns an [Instruction] with all three operand fields set.
func ABC(op OpCode, a, b, c int32) Instruction {
	return Instruction{Op: op, A: a, B: b, C: c}
}

// AB returns an [Instruction] with only A and B set; C is zero.
func AB(op OpCode, a, b int32) Instruction {
	return Instruction{Op: op, A: a, B: b}
}

// A1 returns an [Instruction] with only A set.
func A1(op OpCode, a int32) Instruction {
	return Instruction{Op: op, A: a}
}
