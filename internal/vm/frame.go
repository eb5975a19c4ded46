// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import "github.com/light4/luster/internal/vmcode"

// frameKind discriminates the three shapes a call-stack entry can take.
type frameKind int

const (
	// frameLua is a normal Lua closure activation: bottom..top is its
	// register window, closure is the running function, and pc is the
	// next instruction to execute.
	frameLua frameKind = iota
	// frameCallback is a native callback mid-flight: continuation is
	// re-driven with whatever the nested call below it returned.
	frameCallback
	// frameYield is a marker left behind by a yielded thread in place
	// of the frame that issued the yield, so the frame stack's depth
	// and bottoms stay consistent while the thread is suspended.
	frameYield
)

// returnTargetKind discriminates how a frame's results are delivered
// to whatever is beneath it.
type returnTargetKind int

const (
	// returnCallBoundary means the frame below is not a Lua frame this
	// dispatcher loop owns (a Go caller of [CallClosure], or another
	// callback frame): results are handed back out of the slice instead
	// of being copied into a register window.
	returnCallBoundary returnTargetKind = iota
	// returnUpper means results should be copied down into the calling
	// Lua frame's registers starting at destReg, the way a Lua-to-Lua
	// OpCall's results land.
	returnUpper
	// returnContinuation means the frame immediately below this one on
	// the stack is a frameCallback: pop it and re-drive its
	// Continuation with this frame's results.
	returnContinuation
)

// returnTarget says where a frame's results should go once it finishes.
type returnTarget struct {
	kind    returnTargetKind
	destReg int32
	count   vmcode.VarCount
}

func callBoundary() returnTarget {
	return returnTarget{kind: returnCallBoundary}
}

func upperReturn(destReg int32, count vmcode.VarCount) returnTarget {
	return returnTarget{kind: returnUpper, destReg: destReg, count: count}
}

func continuationReturn() returnTarget {
	return returnTarget{kind: returnContinuation}
}

// Frame is one entry in a [Thread]'s call stack.
type Frame struct {
	// bottom is the first register index belonging to this frame.
	bottom int
	// top is one past the last register this frame currently occupies.
	// It moves when a variable-count call or return leaves a different
	// number of values than the frame's declared stack size.
	top int

	kind frameKind
	ret  returnTarget

	// Valid when kind == frameLua.
	closure *Closure
	pc      int
	// extraArgs holds arguments supplied beyond the closure's fixed
	// parameters, retrieved by OpVarArgs. They live off the register
	// file since they have no fixed register slot of their own.
	extraArgs []Value

	// Valid when kind == frameCallback.
	continuation Continuation
}
