// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import "github.com/light4/luster/internal/vmcode"

// stepLua executes instructions of f's closure starting at f.pc, one
// at a time, until the opcode budget (granularity, counted in *ops
// across the whole [Resumable.Step] call) runs out, the frame issues a
// call, or the frame returns.
func (th *Thread) stepLua(f *Frame, ops *int, granularity int) (signal, []Value, error) {
	code := f.closure.proto.Code
	for {
		if *ops >= granularity {
			return sigPaused, nil, nil
		}
		if f.pc >= len(code) {
			return 0, nil, newRuntimeError("vm: program counter ran off the end of %q", f.closure.proto.Name)
		}
		instr := code[f.pc]
		f.pc++
		*ops++

		switch instr.Op {
		case vmcode.OpMove:
			th.setReg(f, instr.A, th.reg(f, instr.B))

		case vmcode.OpLoadConstant:
			th.setReg(f, instr.A, th.constant(f, instr.B))

		case vmcode.OpLoadBool:
			th.setReg(f, instr.A, Boolean(instr.B != 0))
			if instr.C != 0 {
				f.pc++
			}

		case vmcode.OpLoadNil:
			for i := int32(0); i < instr.B; i++ {
				th.setReg(f, instr.A+i, nil)
			}

		case vmcode.OpNewTable:
			th.setReg(f, instr.A, NewTable())

		case vmcode.OpGetTableR, vmcode.OpGetTableC:
			t, ok := th.reg(f, instr.B).(*Table)
			if !ok {
				return 0, nil, typeErrorf(th.reg(f, instr.B), "index")
			}
			key := th.rk(f, instr.Op == vmcode.OpGetTableC, instr.C)
			th.setReg(f, instr.A, t.Get(key))

		case vmcode.OpSetTableRR, vmcode.OpSetTableRC, vmcode.OpSetTableCR, vmcode.OpSetTableCC:
			t, ok := th.reg(f, instr.A).(*Table)
			if !ok {
				return 0, nil, typeErrorf(th.reg(f, instr.A), "index")
			}
			key := th.rk(f, instr.Op == vmcode.OpSetTableCR || instr.Op == vmcode.OpSetTableCC, instr.B)
			val := th.rk(f, instr.Op == vmcode.OpSetTableRC || instr.Op == vmcode.OpSetTableCC, instr.C)
			if err := t.Set(key, val); err != nil {
				return 0, nil, err
			}

		case vmcode.OpGetUpTableR, vmcode.OpGetUpTableC:
			t, err := th.upvalueTable(f, instr.B)
			if err != nil {
				return 0, nil, err
			}
			key := th.rk(f, instr.Op == vmcode.OpGetUpTableC, instr.C)
			th.setReg(f, instr.A, t.Get(key))

		case vmcode.OpSetUpTableRR, vmcode.OpSetUpTableRC, vmcode.OpSetUpTableCR, vmcode.OpSetUpTableCC:
			t, err := th.upvalueTable(f, instr.A)
			if err != nil {
				return 0, nil, err
			}
			key := th.rk(f, instr.Op == vmcode.OpSetUpTableCR || instr.Op == vmcode.OpSetUpTableCC, instr.B)
			val := th.rk(f, instr.Op == vmcode.OpSetUpTableRC || instr.Op == vmcode.OpSetUpTableCC, instr.C)
			if err := t.Set(key, val); err != nil {
				return 0, nil, err
			}

		case vmcode.OpGetUpValue:
			th.setReg(f, instr.A, f.closure.upvalues[instr.B].Get())

		case vmcode.OpSetUpValue:
			f.closure.upvalues[instr.A].Set(th.reg(f, instr.B))

		case vmcode.OpAddRR, vmcode.OpAddRC, vmcode.OpAddCR, vmcode.OpAddCC:
			l, r := th.binaryOperands(f, instr)
			v, ok := Add(l, r)
			if !ok {
				return 0, nil, arithError(l, r)
			}
			th.setReg(f, instr.A, v)

		case vmcode.OpSubRR, vmcode.OpSubRC, vmcode.OpSubCR, vmcode.OpSubCC:
			l, r := th.binaryOperands(f, instr)
			v, ok := Subtract(l, r)
			if !ok {
				return 0, nil, arithError(l, r)
			}
			th.setReg(f, instr.A, v)

		case vmcode.OpMulRR, vmcode.OpMulRC, vmcode.OpMulCR, vmcode.OpMulCC:
			l, r := th.binaryOperands(f, instr)
			v, ok := Multiply(l, r)
			if !ok {
				return 0, nil, arithError(l, r)
			}
			th.setReg(f, instr.A, v)

		case vmcode.OpNot:
			th.setReg(f, instr.A, Not(th.reg(f, instr.B)))

		case vmcode.OpLength:
			v := th.reg(f, instr.B)
			switch v := v.(type) {
			case String:
				th.setReg(f, instr.A, Integer(len(v)))
			case *Table:
				th.setReg(f, instr.A, Integer(v.Length()))
			default:
				return 0, nil, typeErrorf(v, "get length of")
			}

		case vmcode.OpConcat:
			values := make([]Value, instr.C)
			for i := int32(0); i < instr.C; i++ {
				values[i] = th.reg(f, instr.B+i)
			}
			v, ok := Concat(values)
			if !ok {
				return 0, nil, newRuntimeError("attempt to concatenate a non-string/number value")
			}
			th.setReg(f, instr.A, v)

		case vmcode.OpTest:
			if ToBoolean(th.reg(f, instr.A)) != (instr.B != 0) {
				f.pc++
			}

		case vmcode.OpTestSet:
			v := th.reg(f, instr.B)
			if ToBoolean(v) == (instr.C != 0) {
				th.setReg(f, instr.A, v)
			} else {
				f.pc++
			}

		case vmcode.OpEqRR, vmcode.OpEqRC, vmcode.OpEqCR, vmcode.OpEqCC:
			l := th.rk(f, instr.Op == vmcode.OpEqCR || instr.Op == vmcode.OpEqCC, instr.B)
			r := th.rk(f, instr.Op == vmcode.OpEqRC || instr.Op == vmcode.OpEqCC, instr.C)
			if Equal(l, r) == (instr.A != 0) {
				f.pc++
			}

		case vmcode.OpJump:
			if instr.B >= 0 {
				th.closeUpvalues(f.bottom + int(instr.B))
			}
			f.pc += int(instr.A)

		case vmcode.OpSelfR, vmcode.OpSelfC:
			table := th.reg(f, instr.B)
			t, ok := table.(*Table)
			if !ok {
				return 0, nil, typeErrorf(table, "index")
			}
			key := th.rk(f, instr.Op == vmcode.OpSelfC, instr.C)
			th.setReg(f, instr.A, t.Get(key))
			th.setReg(f, instr.A+1, table)

		case vmcode.OpClosure:
			proto := f.closure.proto.Prototypes[instr.B]
			th.setReg(f, instr.A, newClosure(proto, f.closure, th, f.bottom))

		case vmcode.OpVarArgs:
			th.execVarArgs(f, instr)

		case vmcode.OpNumericForPrep:
			if err := th.execNumericForPrep(f, instr); err != nil {
				return 0, nil, err
			}

		case vmcode.OpNumericForLoop:
			th.execNumericForLoop(f, instr)

		case vmcode.OpGenericForCall:
			sig, values, err := th.pushCall(
				th.reg(f, instr.A),
				[]Value{th.reg(f, instr.A+1), th.reg(f, instr.A+2)},
				upperReturn(instr.A+3, vmcode.FixedCount(int(instr.B))),
			)
			if err != nil {
				return 0, nil, err
			}
			return sig, values, nil

		case vmcode.OpGenericForLoop:
			if th.reg(f, instr.A+3) != nil {
				th.setReg(f, instr.A+2, th.reg(f, instr.A+3))
				f.pc += int(instr.B)
			}

		case vmcode.OpCall:
			fn := th.reg(f, instr.A)
			args := th.collectVar(f, instr.A+1, vmcode.VarCount(instr.B))
			sig, values, err := th.pushCall(fn, args, upperReturn(instr.A, vmcode.VarCount(instr.C)))
			if err != nil {
				return 0, nil, err
			}
			return sig, values, nil

		case vmcode.OpTailCall:
			fn := th.reg(f, instr.A)
			args := th.collectVar(f, instr.A+1, vmcode.VarCount(instr.B))
			ret, bottom := f.ret, f.bottom
			th.closeUpvalues(bottom)
			th.popFrame()
			th.truncateStack(bottom)
			sig, values, err := th.pushCall(fn, args, ret)
			if err != nil {
				return 0, nil, err
			}
			return sig, values, nil

		case vmcode.OpReturn:
			values := th.collectVar(f, instr.A, vmcode.VarCount(instr.B))
			ret, bottom := f.ret, f.bottom
			th.closeUpvalues(bottom)
			th.popFrame()
			th.truncateStack(bottom)
			sig, outValues, err := th.finishFrame(ret, values)
			if err != nil {
				return 0, nil, err
			}
			return sig, outValues, nil

		default:
			return 0, nil, newRuntimeError("vm: unimplemented opcode %v", instr.Op)
		}
	}
}

// rk reads an operand that is either a register or a constant index,
// depending on which the opcode variant names.
func (th *Thread) rk(f *Frame, isConst bool, i int32) Value {
	if isConst {
		return th.constant(f, i)
	}
	return th.reg(f, i)
}

// binaryOperands reads the left/right operands of an RR/RC/CR/CC
// arithmetic opcode.
func (th *Thread) binaryOperands(f *Frame, instr vmcode.Instruction) (Value, Value) {
	var leftConst, rightConst bool
	switch instr.Op {
	case vmcode.OpAddRC, vmcode.OpSubRC, vmcode.OpMulRC:
		rightConst = true
	case vmcode.OpAddCR, vmcode.OpSubCR, vmcode.OpMulCR:
		leftConst = true
	case vmcode.OpAddCC, vmcode.OpSubCC, vmcode.OpMulCC:
		leftConst, rightConst = true, true
	}
	return th.rk(f, leftConst, instr.B), th.rk(f, rightConst, instr.C)
}

func arithError(l, r Value) error {
	if _, ok := toNumber(l); !ok {
		return typeErrorf(l, "perform arithmetic on")
	}
	return typeErrorf(r, "perform arithmetic on")
}

func (th *Thread) execVarArgs(f *Frame, instr vmcode.Instruction) {
	extra := f.extraArgs
	count := vmcode.VarCount(instr.B)
	from := f.bottom + int(instr.A)
	if n, ok := count.Constant(); ok {
		th.ensureStack(from + n)
		if len(th.stack) < from+n {
			th.stack = th.stack[:from+n]
		}
		for i := 0; i < n; i++ {
			var v Value
			if i < len(extra) {
				v = extra[i]
			}
			th.stack[from+i] = v
		}
		return
	}
	needed := from + len(extra)
	th.ensureStack(needed)
	th.stack = th.stack[:needed]
	copy(th.stack[from:needed], extra)
	f.top = needed
}

func (th *Thread) execNumericForPrep(f *Frame, instr vmcode.Instruction) error {
	init, ok1 := toNumber(th.reg(f, instr.A))
	limit, ok2 := toNumber(th.reg(f, instr.A+1))
	step, ok3 := toNumber(th.reg(f, instr.A+2))
	if !ok1 || !ok2 || !ok3 {
		return newRuntimeError("'for' initial value, limit, or step must be a number")
	}
	if step == 0 {
		return errForStepZero
	}
	th.setReg(f, instr.A, Number(init))
	th.setReg(f, instr.A+1, Number(limit))
	th.setReg(f, instr.A+2, Number(step))
	skip := (step > 0 && init > limit) || (step < 0 && init < limit)
	if skip {
		f.pc += int(instr.B)
	} else {
		th.setReg(f, instr.A+3, Number(init))
	}
	return nil
}

func (th *Thread) execNumericForLoop(f *Frame, instr vmcode.Instruction) {
	cur := float64(th.reg(f, instr.A).(Number))
	limit := float64(th.reg(f, instr.A+1).(Number))
	step := float64(th.reg(f, instr.A+2).(Number))
	next := cur + step
	if (step > 0 && next <= limit) || (step < 0 && next >= limit) {
		th.setReg(f, instr.A, Number(next))
		th.setReg(f, instr.A+3, Number(next))
		f.pc += int(instr.B)
	}
}
