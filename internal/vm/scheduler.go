// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import "errors"

// signal is the internal control-flow result threaded through the
// dispatcher: what the outer run loop should do once an opcode, a
// return, or a callback step has been handled.
type signal int

const (
	// sigSwitch means the frame stack changed (a frame was pushed,
	// popped, or both) and the run loop should re-dispatch whatever is
	// now on top.
	sigSwitch signal = iota
	// sigPaused means the slice's opcode budget ran out mid-frame; the
	// caller should stop and let the host decide when to resume.
	sigPaused
	// sigReturned means the outermost call (the one CallClosure
	// started) has finished; Values holds its results.
	sigReturned
	// sigYielded means the thread suspended itself via a callback
	// [Yield]; Values holds the yielded values.
	sigYielded
)

// StepStatus is the externally visible outcome of one [Resumable] step.
type StepStatus int

const (
	StepRunning StepStatus = iota
	StepReturned
	StepYielded
)

// StepResult reports what a [Resumable] did during one call to
// [Resumable.Step] or [Resumable.Resume].
type StepResult struct {
	Status StepStatus
	Values []Value
}

// Resumable drives a [Thread] through a call in opcode-bounded slices,
// the handle a host uses to interleave VM execution with its own event
// loop instead of blocking until the whole call tree completes.
type Resumable struct {
	th    *Thread
	done  bool

	// frameDepth is the thread's frame count as of this Resumable's own
	// last step. It must match th.frames' length at the start of every
	// subsequent Step/Resume: a mismatch means some other Resumable on
	// the same Thread ran in between, which is a usage error (multiple
	// concurrent resumables on one thread are not allowed; completion
	// must be LIFO).
	frameDepth int
	pending    *StepResult
}

// CallClosure begins calling fn with args on th and returns a
// [Resumable] that executes it in bounded slices. fn may be a
// [*Closure] or a [Callback].
func CallClosure(th *Thread, fn Value, args []Value) (*Resumable, error) {
	sig, values, err := th.pushCall(fn, args, callBoundary())
	if err != nil {
		return nil, err
	}
	r := &Resumable{th: th, frameDepth: len(th.frames)}
	switch sig {
	case sigReturned:
		r.pending = &StepResult{Status: StepReturned, Values: values}
	case sigYielded:
		r.pending = &StepResult{Status: StepYielded, Values: values}
	}
	return r, nil
}

// Step runs th until it returns, yields, or has executed granularity
// opcodes, whichever happens first. granularity must be positive.
func (r *Resumable) Step(granularity int) (StepResult, error) {
	if granularity <= 0 {
		return StepResult{}, errors.New("vm: granularity must be positive")
	}
	if r.done {
		return StepResult{Status: StepReturned}, errors.New("vm: resumable already finished")
	}
	if len(r.th.frames) != r.frameDepth {
		return StepResult{}, errors.New("vm: resumable stepped out of LIFO order: another resumable on this thread ran since this one's last step")
	}
	if r.pending != nil {
		res := *r.pending
		r.pending = nil
		if res.Status == StepReturned {
			r.done = true
		}
		return res, nil
	}
	sig, values, err := r.th.run(granularity)
	if err != nil {
		r.done = true
		return StepResult{}, err
	}
	r.frameDepth = len(r.th.frames)
	switch sig {
	case sigReturned:
		r.done = true
		return StepResult{Status: StepReturned, Values: values}, nil
	case sigYielded:
		return StepResult{Status: StepYielded, Values: values}, nil
	default:
		return StepResult{Status: StepRunning}, nil
	}
}

// Resume continues a thread suspended by [StepYielded], supplying
// values as the results of whatever callback yielded it.
func (r *Resumable) Resume(granularity int, values []Value) (StepResult, error) {
	if granularity <= 0 {
		return StepResult{}, errors.New("vm: granularity must be positive")
	}
	if r.done {
		return StepResult{}, errors.New("vm: resumable already finished")
	}
	if len(r.th.frames) != r.frameDepth {
		return StepResult{}, errors.New("vm: resumable stepped out of LIFO order: another resumable on this thread ran since this one's last step")
	}
	if len(r.th.frames) == 0 || r.th.frames[len(r.th.frames)-1].kind != frameYield {
		return StepResult{}, errors.New("vm: thread is not suspended")
	}
	yf := r.th.frames[len(r.th.frames)-1]
	r.th.popFrame()
	sig, retValues, err := r.th.finishFrame(yf.ret, values)
	if err != nil {
		r.done = true
		return StepResult{}, err
	}
	r.frameDepth = len(r.th.frames)
	switch sig {
	case sigReturned:
		r.done = true
		return StepResult{Status: StepReturned, Values: retValues}, nil
	case sigYielded:
		return StepResult{Status: StepYielded, Values: retValues}, nil
	}
	res, resValues, err := r.th.run(granularity)
	if err != nil {
		r.done = true
		return StepResult{}, err
	}
	r.frameDepth = len(r.th.frames)
	switch res {
	case sigReturned:
		r.done = true
		return StepResult{Status: StepReturned, Values: resValues}, nil
	case sigYielded:
		return StepResult{Status: StepYielded, Values: resValues}, nil
	default:
		return StepResult{Status: StepRunning}, nil
	}
}

// pushCall resolves fn as something callable and either pushes a Lua
// frame for it (signalling sigSwitch) or invokes it synchronously if
// it is a native [Callback], delivering or yielding its result.
func (th *Thread) pushCall(fn Value, args []Value, ret returnTarget) (signal, []Value, error) {
	switch fn := fn.(type) {
	case *Closure:
		th.pushClosureFrame(fn, args, ret)
		return sigSwitch, nil, nil
	case Callback:
		result, err := fn.Call(th, args)
		if err != nil {
			return 0, nil, err
		}
		return th.handleCallbackResult(ret, result)
	default:
		panicNotCallable(fn)
		panic("unreachable")
	}
}

// handleCallbackResult acts on what a [Callback] or [Continuation]
// asked to happen next.
func (th *Thread) handleCallbackResult(ret returnTarget, result CallbackResult) (signal, []Value, error) {
	switch result.Kind {
	case CallbackReturn:
		return th.finishFrame(ret, result.Values)
	case CallbackYield:
		th.frames = append(th.frames, Frame{kind: frameYield, ret: ret})
		return sigYielded, result.Values, nil
	case CallbackCall:
		th.frames = append(th.frames, Frame{kind: frameCallback, continuation: result.Continuation, ret: ret})
		if len(result.Values) == 0 {
			panicf("vm: internal error: CallbackCall result carries no function value")
		}
		fn := result.Values[0]
		args := result.Values[1:]
		return th.pushCall(fn, args, continuationReturn())
	default:
		panic("vm: unhandled CallbackResult kind")
	}
}

// finishFrame delivers values to ret: the thread as a whole (call
// boundary), a caller's registers (upper), or a waiting
// [Continuation] (continuation).
func (th *Thread) finishFrame(ret returnTarget, values []Value) (signal, []Value, error) {
	switch ret.kind {
	case returnCallBoundary:
		return sigReturned, values, nil
	case returnUpper:
		f := th.currentFrame()
		from := f.bottom + int(ret.destReg)
		if n, ok := ret.count.Constant(); ok {
			th.ensureStack(from + n)
			if len(th.stack) < from+n {
				th.stack = th.stack[:from+n]
			}
			for i := 0; i < n; i++ {
				var v Value
				if i < len(values) {
					v = values[i]
				}
				th.stack[from+i] = v
			}
		} else {
			needed := from + len(values)
			th.ensureStack(needed)
			th.stack = th.stack[:needed]
			copy(th.stack[from:needed], values)
			f.top = needed
		}
		return sigSwitch, nil, nil
	case returnContinuation:
		n := len(th.frames)
		if n == 0 || th.frames[n-1].kind != frameCallback {
			panic("vm: returnContinuation target is not a callback frame")
		}
		cb := th.frames[n-1]
		th.popFrame()
		result, err := cb.continuation.Step(th, values)
		if err != nil {
			return 0, nil, err
		}
		return th.handleCallbackResult(cb.ret, result)
	default:
		panic("vm: unhandled returnTarget kind")
	}
}

// run executes th for up to granularity Lua opcodes, stopping early if
// the thread returns or yields.
func (th *Thread) run(granularity int) (signal, []Value, error) {
	ops := 0
	for {
		if len(th.frames) == 0 {
			return sigReturned, nil, nil
		}
		f := th.currentFrame()
		switch f.kind {
		case frameYield:
			panic("vm: internal error: cannot run a suspended thread")
		case frameCallback:
			panic("vm: internal error: callback frame left on top of stack")
		case frameLua:
			sig, values, err := th.stepLua(f, &ops, granularity)
			if err != nil {
				return th.unwind(err)
			}
			switch sig {
			case sigPaused:
				return sigPaused, nil, nil
			case sigSwitch:
				continue
			default:
				return sig, values, nil
			}
		default:
			panic("vm: unhandled frame kind")
		}
	}
}

// unwind pops frames down to the nearest call-boundary return target,
// closing upvalues as it goes, and reports err as the call's result.
// This is the Lua-level analogue of a panic/recover boundary: a
// runtime error inside a closure aborts that closure and everything it
// called, but not the Go caller of [CallClosure].
func (th *Thread) unwind(err error) (signal, []Value, error) {
	for len(th.frames) > 0 {
		f := th.frames[len(th.frames)-1]
		th.popFrame()
		if f.kind == frameLua {
			th.closeUpvalues(f.bottom)
			th.truncateStack(f.bottom)
		}
		if f.ret.kind == returnCallBoundary {
			break
		}
	}
	return 0, nil, err
}
