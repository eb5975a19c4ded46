// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/light4/luster/internal/vmcode"
	"github.com/light4/luster/internal/xmaps"
	"github.com/light4/luster/internal/xslices"
)

// Thread is one Lua thread (coroutine): an operand/register stack, a
// call-frame stack, and the upvalue cells still open onto that stack.
//
// Thread is not safe for concurrent use; a host running several
// threads concurrently (see package vmhost) must serialize access to
// any Thread whose upvalues another Thread might alias.
type Thread struct {
	// id is a debug-only identity label, surfaced in logs so a host
	// juggling many threads can tell them apart without printing a
	// pointer.
	id uuid.UUID

	stack  []Value
	frames []Frame

	// openUpvalues maps a stack index to the cell currently aliasing
	// it. closeUpvalues needs the indices at or above a returning
	// frame's bottom in order, which xmaps.SortedKeys gives over a
	// plain map without a sorted-map type.
	openUpvalues map[int]*UpvalueCell
}

// NewThread returns a new, empty Thread.
func NewThread() *Thread {
	return &Thread{
		id:           uuid.New(),
		openUpvalues: make(map[int]*UpvalueCell),
	}
}

// ID returns the thread's debug identity label.
func (th *Thread) ID() uuid.UUID { return th.id }

// Depth reports the current call-frame depth, for hosts that want to
// cap recursion or report it in diagnostics.
func (th *Thread) Depth() int { return len(th.frames) }

func (th *Thread) ensureStack(n int) {
	for len(th.stack) < n {
		th.stack = append(th.stack, nil)
	}
}

// findOrOpenUpvalue returns the cell already open on stack index, or
// opens and registers a new one if none exists yet. Two closures
// capturing the same enclosing local must observe each other's writes,
// so the cell has to be shared, not duplicated.
func (th *Thread) findOrOpenUpvalue(index int) *UpvalueCell {
	if c, ok := th.openUpvalues[index]; ok {
		return c
	}
	c := newOpenUpvalue(th, index)
	th.openUpvalues[index] = c
	return c
}

// closeUpvalues closes every open upvalue cell aliasing a stack index
// at or after bottom, the way a returning (or tail-calling) frame must
// before its registers are reused by another frame.
func (th *Thread) closeUpvalues(bottom int) {
	if len(th.openUpvalues) == 0 {
		return
	}
	for _, index := range xmaps.SortedKeys(th.openUpvalues) {
		if index < bottom {
			continue
		}
		cell := th.openUpvalues[index]
		if !cell.isOpenOnOrAfter(bottom) {
			panicf("vm: open-upvalue index corrupted: key %d maps to a cell open at %d", index, cell.index)
		}
		cell.close()
		delete(th.openUpvalues, index)
	}
}

func (th *Thread) reg(f *Frame, i int32) Value {
	return th.stack[f.bottom+int(i)]
}

func (th *Thread) setReg(f *Frame, i int32, v Value) {
	th.stack[f.bottom+int(i)] = v
}

func (th *Thread) constant(f *Frame, i int32) Value {
	return importConstant(f.closure.proto.Constants[i])
}

// upvalueTable resolves the table an upvalue-indexed GetUpTable/SetUpTable
// instruction addresses: the closure's shared environment for the
// UpvalueEnvironment descriptor, or whatever value the corresponding
// cell holds otherwise.
func (th *Thread) upvalueTable(f *Frame, idx int32) (*Table, error) {
	d := f.closure.proto.Upvalues[idx]
	var v Value
	if d.Kind == vmcode.UpvalueEnvironment {
		v = f.closure.env
	} else {
		v = f.closure.upvalues[idx].Get()
	}
	t, ok := v.(*Table)
	if !ok {
		return nil, typeErrorf(v, "index")
	}
	return t, nil
}

// collectVar reads count values starting at register start, either a
// fixed number of them or everything up to the frame's current top
// (the "variable count" convention OpCall/OpReturn/OpVarArgs share).
func (th *Thread) collectVar(f *Frame, start int32, count vmcode.VarCount) []Value {
	from := f.bottom + int(start)
	if n, ok := count.Constant(); ok {
		out := make([]Value, n)
		for i := 0; i < n; i++ {
			if from+i < len(th.stack) {
				out[i] = th.stack[from+i]
			}
		}
		return out
	}
	if from > f.top {
		return nil
	}
	return append([]Value(nil), th.stack[from:f.top]...)
}

// pushClosureFrame pushes a new Lua frame for fn, placing args into its
// fixed parameter registers and stashing any excess as varargs for a
// later [OpVarArgs] to retrieve.
func (th *Thread) pushClosureFrame(fn *Closure, args []Value, ret returnTarget) {
	proto := fn.proto
	bottom := len(th.stack)
	top := bottom + proto.StackSize
	th.ensureStack(top)
	th.stack = th.stack[:top]

	n := proto.FixedParams
	for i := 0; i < n; i++ {
		var v Value
		if i < len(args) {
			v = args[i]
		}
		th.stack[bottom+i] = v
	}
	var extra []Value
	if len(args) > n {
		extra = append([]Value(nil), args[n:]...)
	}

	th.frames = append(th.frames, Frame{
		bottom:    bottom,
		top:       top,
		kind:      frameLua,
		closure:   fn,
		pc:        0,
		ret:       ret,
		extraArgs: extra,
	})
}

func (th *Thread) currentFrame() *Frame {
	return &th.frames[len(th.frames)-1]
}

// popFrame discards the top frame, zeroing its slot so a dead Lua
// frame's closure reference doesn't keep pinning heap values the GC
// arena could otherwise reclaim.
func (th *Thread) popFrame() {
	th.frames = xslices.Pop(th.frames, 1)
}

// truncateStack shrinks the stack down to bottom, clearing the
// discarded slots for the same reason popFrame clears its frame: a
// stale Value reference left in a dead register slot outlives the
// frame that put it there.
func (th *Thread) truncateStack(bottom int) {
	th.stack = xslices.Pop(th.stack, len(th.stack)-bottom)
}

func panicf(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}
