// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/light4/luster/internal/vmcode"
)

// mainClosure wraps proto as a closure with no upvalues and an empty
// environment table, enough to run a hand-assembled chunk that never
// touches _ENV.
func mainClosure(proto *vmcode.Prototype) *Closure {
	return &Closure{id: nextID(), proto: proto, env: NewTable()}
}

func runToCompletion(t *testing.T, th *Thread, fn Value, args []Value) []Value {
	t.Helper()
	r, err := CallClosure(th, fn, args)
	if err != nil {
		t.Fatalf("CallClosure: %v", err)
	}
	for {
		res, err := r.Step(64)
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		switch res.Status {
		case StepReturned:
			return res.Values
		case StepYielded:
			t.Fatalf("unexpected yield: %v", res.Values)
		}
	}
}

// TestReturnArithmetic builds the equivalent of "return 1+2" and checks
// it produces a single integer result of 3.
func TestReturnArithmetic(t *testing.T) {
	b := vmcode.NewBuilder(0, 2)
	one := b.Const(vmcode.IntConstant(1))
	two := b.Const(vmcode.IntConstant(2))
	b.Emit(vmcode.AB(vmcode.OpLoadConstant, 0, int32(one)))
	b.Emit(vmcode.AB(vmcode.OpLoadConstant, 1, int32(two)))
	b.Emit(vmcode.ABC(vmcode.OpAddRR, 0, 0, 1))
	b.Emit(vmcode.AB(vmcode.OpReturn, 0, int32(vmcode.FixedCount(1))))
	proto := b.Build()

	th := NewThread()
	got := runToCompletion(t, th, mainClosure(proto), nil)
	want := []Value{Integer(3)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}
}

// TestNumericForBuildsTable runs a numeric for loop from 1 to 3
// appending each counter value to a table, and checks the table's
// length and contents come out to {1,2,3}.
func TestNumericForBuildsTable(t *testing.T) {
	// Registers: 0=table, 1=i, 2=limit, 3=step, 4=loopvar.
	b := vmcode.NewBuilder(0, 6)
	cInit := b.Const(vmcode.IntConstant(1))
	cLimit := b.Const(vmcode.IntConstant(3))
	cStep := b.Const(vmcode.IntConstant(1))
	b.Emit(vmcode.AB(vmcode.OpNewTable, 0, 0))
	b.Emit(vmcode.AB(vmcode.OpLoadConstant, 1, int32(cInit)))
	b.Emit(vmcode.AB(vmcode.OpLoadConstant, 2, int32(cLimit)))
	b.Emit(vmcode.AB(vmcode.OpLoadConstant, 3, int32(cStep)))
	prepPC := b.Emit(vmcode.AB(vmcode.OpNumericForPrep, 1, 0)) // patched below
	bodyStart := b.Here()
	// t[i] = i  (SetTableRR: A=table reg, B=key reg, C=value reg)
	b.Emit(vmcode.ABC(vmcode.OpSetTableRR, 0, 4, 4))
	loopPC := b.Emit(vmcode.AB(vmcode.OpNumericForLoop, 1, 0)) // patched below
	loopEnd := b.Here()
	b.Emit(vmcode.AB(vmcode.OpReturn, 0, int32(vmcode.FixedCount(1))))

	b.Patch(prepPC, vmcode.AB(vmcode.OpNumericForPrep, 1, int32(loopEnd-bodyStart)))
	b.Patch(loopPC, vmcode.AB(vmcode.OpNumericForLoop, 1, int32(bodyStart-(loopPC+1))))
	proto := b.Build()

	th := NewThread()
	got := runToCompletion(t, th, mainClosure(proto), nil)
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	tbl, ok := got[0].(*Table)
	if !ok {
		t.Fatalf("result is %T, want *Table", got[0])
	}
	if n := tbl.Length(); n != 3 {
		t.Fatalf("table length = %d, want 3", n)
	}
	for i := int64(1); i <= 3; i++ {
		if v := tbl.Get(Integer(i)); !Equal(v, Integer(i)) {
			t.Errorf("t[%d] = %v, want %d", i, v, i)
		}
	}
}

// TestClosureCounterSharesUpvalue builds a closure factory that returns
// a counter function sharing one upvalue, and checks three successive
// calls observe the same running total.
func TestClosureCounterSharesUpvalue(t *testing.T) {
	// counter(): registers 0 = result of add.
	counter := vmcode.NewBuilder(0, 1)
	counter.Emit(vmcode.AB(vmcode.OpGetUpValue, 0, 0))
	one := counter.Const(vmcode.IntConstant(1))
	counter.Emit(vmcode.ABC(vmcode.OpAddRC, 0, 0, int32(one)))
	counter.Emit(vmcode.AB(vmcode.OpSetUpValue, 0, 0))
	counter.Emit(vmcode.AB(vmcode.OpGetUpValue, 0, 0))
	counter.Emit(vmcode.AB(vmcode.OpReturn, 0, int32(vmcode.FixedCount(1))))
	counter.AddUpvalue(vmcode.UpvalueDescriptor{Kind: vmcode.UpvalueParentLocal, Index: 0, Name: "n"})
	counterProto := counter.Build()

	// factory(): register 0 = n (local, captured), register 1 = the new closure.
	factory := vmcode.NewBuilder(0, 2)
	zero := factory.Const(vmcode.IntConstant(0))
	factory.Emit(vmcode.AB(vmcode.OpLoadConstant, 0, int32(zero)))
	closureIdx := factory.AddPrototype(counterProto)
	factory.Emit(vmcode.AB(vmcode.OpClosure, 1, int32(closureIdx)))
	factory.Emit(vmcode.AB(vmcode.OpReturn, 1, int32(vmcode.FixedCount(1))))
	factoryProto := factory.Build()

	th := NewThread()
	results := runToCompletion(t, th, mainClosure(factoryProto), nil)
	counterFn, ok := results[0].(*Closure)
	if !ok {
		t.Fatalf("factory result is %T, want *Closure", results[0])
	}

	for i, want := range []int64{1, 2, 3} {
		got := runToCompletion(t, th, counterFn, nil)
		if len(got) != 1 || !Equal(got[0], Integer(want)) {
			t.Errorf("call %d: got %v, want [%d]", i+1, got, want)
		}
	}
}

// TestCallbackYieldThenResume checks that a callback yielding mid-call
// suspends the thread, and that resuming it with a value lets the
// original Lua call see that value as the callback's return.
func TestCallbackYieldThenResume(t *testing.T) {
	yielder := NewResumableCallback("yield", func(th *Thread, args []Value) (CallbackResult, error) {
		return Yield(args...), nil
	})

	// wrapper(x): loads the captured yielder into register 1, moves x
	// into register 2 as its argument, calls it, and returns whatever
	// the callback's Call/Step chain eventually resolves to.
	b2 := vmcode.NewBuilder(1, 3)
	b2.Emit(vmcode.AB(vmcode.OpGetUpValue, 1, 0))
	b2.Emit(vmcode.AB(vmcode.OpMove, 2, 0))
	b2.Emit(vmcode.ABC(vmcode.OpCall, 1, int32(vmcode.FixedCount(1)), int32(vmcode.FixedCount(1))))
	b2.Emit(vmcode.AB(vmcode.OpReturn, 1, int32(vmcode.FixedCount(1))))
	b2.AddUpvalue(vmcode.UpvalueDescriptor{Kind: vmcode.UpvalueOuter, Index: 0})
	proto2 := b2.Build()

	wrapper := &Closure{id: nextID(), proto: proto2, env: NewTable(), upvalues: []*UpvalueCell{newClosedUpvalue(yielder)}}

	th := NewThread()
	r, err := CallClosure(th, wrapper, []Value{String("hello")})
	if err != nil {
		t.Fatalf("CallClosure: %v", err)
	}
	res, err := r.Step(64)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if res.Status != StepYielded {
		t.Fatalf("status = %v, want StepYielded", res.Status)
	}

	res, err = r.Resume(64, []Value{String("world")})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if res.Status != StepReturned {
		t.Fatalf("status = %v, want StepReturned", res.Status)
	}
	if len(res.Values) != 1 || !Equal(res.Values[0], String("world")) {
		t.Errorf("resume result = %v, want [world]", res.Values)
	}
}

func newClosedUpvalue(v Value) *UpvalueCell {
	return &UpvalueCell{closedValue: v}
}

// TestGranularityNeverGrowsFrameStack runs an unconditional backward
// jump under a granularity of 1 for many slices and checks the frame
// depth never exceeds 1: a tight loop must not grow the call stack.
func TestGranularityNeverGrowsFrameStack(t *testing.T) {
	b := vmcode.NewBuilder(0, 1)
	top := b.Here()
	jumpPC := b.Emit(vmcode.AB(vmcode.OpJump, 0, -1))
	b.Patch(jumpPC, vmcode.AB(vmcode.OpJump, int32(top-(jumpPC+1)), -1))
	proto := b.Build()

	th := NewThread()
	r, err := CallClosure(th, mainClosure(proto), nil)
	if err != nil {
		t.Fatalf("CallClosure: %v", err)
	}
	for i := 0; i < 1000; i++ {
		res, err := r.Step(1)
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if res.Status != StepRunning {
			t.Fatalf("iteration %d: status = %v, want StepRunning", i, res.Status)
		}
		if depth := th.Depth(); depth != 1 {
			t.Fatalf("iteration %d: frame depth = %d, want 1", i, depth)
		}
	}
}

// TestTailCallClosesCallerUpvalues checks that a tail call closes the
// caller's open upvalues before the callee runs, so a closure captured
// over the caller's local observes the value it had at the tail call,
// not whatever ends up in that stack slot afterward.
func TestTailCallClosesCallerUpvalues(t *testing.T) {
	// reader(): returns its one upvalue.
	reader := vmcode.NewBuilder(0, 1)
	reader.Emit(vmcode.AB(vmcode.OpGetUpValue, 0, 0))
	reader.Emit(vmcode.AB(vmcode.OpReturn, 0, int32(vmcode.FixedCount(1))))
	reader.AddUpvalue(vmcode.UpvalueDescriptor{Kind: vmcode.UpvalueParentLocal, Index: 0})
	readerProto := reader.Build()

	// callee(r): tail-calls r().
	callee := vmcode.NewBuilder(1, 1)
	callee.Emit(vmcode.AB(vmcode.OpTailCall, 0, int32(vmcode.FixedCount(0))))
	calleeProto := callee.Build()

	// caller(): local n=42 (register 0), builds a reader closure over n
	// (register 1) and a callee closure (register 2), moves the reader
	// into the argument slot (register 3), and tail-calls callee(reader).
	caller := vmcode.NewBuilder(0, 4)
	c42 := caller.Const(vmcode.IntConstant(42))
	caller.Emit(vmcode.AB(vmcode.OpLoadConstant, 0, int32(c42)))
	readerIdx := caller.AddPrototype(readerProto)
	caller.Emit(vmcode.AB(vmcode.OpClosure, 1, int32(readerIdx)))
	calleeIdx := caller.AddPrototype(calleeProto)
	caller.Emit(vmcode.AB(vmcode.OpClosure, 2, int32(calleeIdx)))
	caller.Emit(vmcode.AB(vmcode.OpMove, 3, 1))
	caller.Emit(vmcode.AB(vmcode.OpTailCall, 2, int32(vmcode.FixedCount(1))))
	callerProto := caller.Build()

	th := NewThread()
	got := runToCompletion(t, th, mainClosure(callerProto), nil)
	if len(got) != 1 || !Equal(got[0], Integer(42)) {
		t.Fatalf("result = %v, want [42]", got)
	}
}

// buildStatelessINext builds a stateless iterator closure equivalent to
//
//	function(t, i) i = i + 1; local v = t[i]; if v == nil then return end; return i, v end
//
// the iterator ipairs uses in real Lua: given the table (invariant
// state) and the previous key (control variable), it returns the next
// key/value pair, or no results once the run of integer keys ends.
func buildStatelessINext() *vmcode.Prototype {
	// Registers: 0=t, 1=i (params), 2=i+1, 3=t[i+1].
	b := vmcode.NewBuilder(2, 4)
	one := b.Const(vmcode.IntConstant(1))
	b.Emit(vmcode.ABC(vmcode.OpAddRC, 2, 1, int32(one)))
	b.Emit(vmcode.ABC(vmcode.OpGetTableR, 3, 0, 2))
	b.Emit(vmcode.AB(vmcode.OpTest, 3, 0)) // skip the next instr when R3 is truthy
	jumpPC := b.Emit(vmcode.AB(vmcode.OpJump, 0, -1))
	b.Emit(vmcode.AB(vmcode.OpReturn, 2, int32(vmcode.FixedCount(2))))
	noneLabel := b.Here()
	b.Emit(vmcode.AB(vmcode.OpReturn, 0, int32(vmcode.FixedCount(0))))
	b.Patch(jumpPC, vmcode.AB(vmcode.OpJump, int32(noneLabel-(jumpPC+1)), -1))
	return b.Build()
}

// TestGenericForSumsTable drives a generic-for loop — [vmcode.OpGenericForCall]
// paired with [vmcode.OpGenericForLoop] — over a table {1=10, 2=20, 3=30}
// using a stateless iterator closure, and checks the loop body sees
// each key/value pair exactly once and sums the values to 60.
func TestGenericForSumsTable(t *testing.T) {
	// Registers: 0=table, 1=iterator, 2=state, 3=control,
	// 4=key, 5=value (loop variables), 6=sum.
	b := vmcode.NewBuilder(0, 7)
	k1, v10 := b.Const(vmcode.IntConstant(1)), b.Const(vmcode.IntConstant(10))
	k2, v20 := b.Const(vmcode.IntConstant(2)), b.Const(vmcode.IntConstant(20))
	k3, v30 := b.Const(vmcode.IntConstant(3)), b.Const(vmcode.IntConstant(30))
	cZero := b.Const(vmcode.IntConstant(0))

	b.Emit(vmcode.AB(vmcode.OpNewTable, 0, 0))
	b.Emit(vmcode.ABC(vmcode.OpSetTableCC, 0, int32(k1), int32(v10)))
	b.Emit(vmcode.ABC(vmcode.OpSetTableCC, 0, int32(k2), int32(v20)))
	b.Emit(vmcode.ABC(vmcode.OpSetTableCC, 0, int32(k3), int32(v30)))

	iterIdx := b.AddPrototype(buildStatelessINext())
	b.Emit(vmcode.AB(vmcode.OpClosure, 1, int32(iterIdx)))
	b.Emit(vmcode.AB(vmcode.OpMove, 2, 0))                    // state = table
	b.Emit(vmcode.AB(vmcode.OpLoadConstant, 3, int32(cZero))) // control = 0
	b.Emit(vmcode.AB(vmcode.OpLoadConstant, 6, int32(cZero))) // sum = 0

	jumpToCallPC := b.Emit(vmcode.AB(vmcode.OpJump, 0, -1))
	bodyStart := b.Here()
	b.Emit(vmcode.ABC(vmcode.OpAddRR, 6, 6, 5)) // sum += value
	callLabel := b.Here()
	b.Emit(vmcode.AB(vmcode.OpGenericForCall, 1, 2))
	loopPC := b.Emit(vmcode.AB(vmcode.OpGenericForLoop, 1, 0)) // patched below
	b.Emit(vmcode.AB(vmcode.OpReturn, 6, int32(vmcode.FixedCount(1))))

	b.Patch(jumpToCallPC, vmcode.AB(vmcode.OpJump, int32(callLabel-(jumpToCallPC+1)), -1))
	b.Patch(loopPC, vmcode.AB(vmcode.OpGenericForLoop, 1, int32(bodyStart-(loopPC+1))))
	proto := b.Build()

	th := NewThread()
	got := runToCompletion(t, th, mainClosure(proto), nil)
	if len(got) != 1 || !Equal(got[0], Integer(60)) {
		t.Fatalf("result = %v, want [60]", got)
	}
}
