// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

// Callback is a native (Go) function value callable from Lua code. It
// is the escape hatch host programs use to give a [Thread] access to
// the outside world: I/O, yielding, or anything else a closure cannot
// express on its own.
type Callback interface {
	Value
	id() uint64

	// Call invokes the callback with args and reports what should
	// happen next via a [CallbackResult].
	Call(th *Thread, args []Value) (CallbackResult, error)
}

// Continuation resumes a [Callback] that previously asked to [Call]:
// it is driven again once the frame(s) it pushed have returned, seeing
// those frames' results, and may itself return, yield, or continue again.
//
// A callback frame is not necessarily one-shot, and a Continuation is
// how a callback observes a nested Lua call's result without the host
// needing a full coroutine of its own.
type Continuation interface {
	Step(th *Thread, results []Value) (CallbackResult, error)
}

// CallbackResultKind discriminates the three things a [Callback] or
// [Continuation] step can ask the scheduler to do next.
type CallbackResultKind int

const (
	// CallbackReturn finishes the callback's frame, handing Values back
	// to its caller as the call's results.
	CallbackReturn CallbackResultKind = iota
	// CallbackYield suspends the entire thread, handing Values out to
	// whatever resumed it. The thread can later be resumed with new
	// values, which are delivered to the callback's caller as the
	// results of the call.
	CallbackYield
	// CallbackCall pushes a new call using Values as (function, args...)
	// and re-drives Continuation once that call returns.
	CallbackCall
)

// CallbackResult is the tagged result of a [Callback.Call] or
// [Continuation.Step]: one of Return/Yield/Call, as a flat struct
// rather than a Go sum type.
type CallbackResult struct {
	Kind Kind
	// Values is the return values for CallbackReturn, the yielded
	// values for CallbackYield, or (function, args...) for CallbackCall.
	Values []Value
	// Continuation is set only for CallbackCall: it is stepped with the
	// pushed call's results once that call completes.
	Continuation Continuation
}

// Kind is an alias kept for readability at CallbackResult construction
// sites ([Return], [Yield], [Call]).
type Kind = CallbackResultKind

// Return constructs a CallbackReturn result.
func Return(values ...Value) CallbackResult {
	return CallbackResult{Kind: CallbackReturn, Values: values}
}

// Yield constructs a CallbackYield result.
func Yield(values ...Value) CallbackResult {
	return CallbackResult{Kind: CallbackYield, Values: values}
}

// Call constructs a CallbackCall result: push a call to fn with args,
// then resume cont with its results.
func Call(cont Continuation, fn Value, args ...Value) CallbackResult {
	return CallbackResult{Kind: CallbackCall, Values: append([]Value{fn}, args...), Continuation: cont}
}

// nativeCallback adapts a plain Go function to [Callback] for the
// common case of a callback that always returns immediately: it never
// yields and never issues a nested call.
type nativeCallback struct {
	idv  uint64
	name string
	fn   func(th *Thread, args []Value) ([]Value, error)
}

// NewCallback wraps fn as a [Callback] named name. The name is kept
// as a debugging label only: [ToString] renders a callback by its id.
func NewCallback(name string, fn func(th *Thread, args []Value) ([]Value, error)) Callback {
	return &nativeCallback{idv: nextID(), name: name, fn: fn}
}

func (*nativeCallback) valueType() Type { return TypeCallback }
func (c *nativeCallback) id() uint64    { return c.idv }

func (c *nativeCallback) Call(th *Thread, args []Value) (CallbackResult, error) {
	values, err := c.fn(th, args)
	if err != nil {
		return CallbackResult{}, err
	}
	return Return(values...), nil
}

// resumableCallback adapts a function that builds its own
// [Continuation] up front, for native callbacks that need to yield or
// make a nested call before producing a result (e.g. a coroutine
// resume/yield bridge or a pcall-style protected call).
type resumableCallback struct {
	idv   uint64
	name  string
	start func(th *Thread, args []Value) (CallbackResult, error)
}

// NewResumableCallback wraps start as a [Callback] that may return any
// [CallbackResult] kind, including CallbackYield and CallbackCall.
func NewResumableCallback(name string, start func(th *Thread, args []Value) (CallbackResult, error)) Callback {
	return &resumableCallback{idv: nextID(), name: name, start: start}
}

func (*resumableCallback) valueType() Type { return TypeCallback }
func (c *resumableCallback) id() uint64    { return c.idv }

func (c *resumableCallback) Call(th *Thread, args []Value) (CallbackResult, error) {
	return c.start(th, args)
}
