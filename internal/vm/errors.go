// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import (
	"errors"
	"fmt"
)

// RuntimeError is a Lua-level runtime error raised by the dispatcher
// itself (for example, arithmetic or indexing on a value of the wrong
// type), as opposed to a Go error bubbling up from host code.
type RuntimeError struct {
	Value Value
}

func (e *RuntimeError) Error() string {
	if s, ok := e.Value.(String); ok {
		return string(s)
	}
	return "vm error: " + ToString(e.Value)
}

func newRuntimeError(format string, args ...any) error {
	return &RuntimeError{Value: String(fmt.Sprintf(format, args...))}
}

var errAttemptToIndexNil = newRuntimeError("attempt to index a nil value")

func typeErrorf(v Value, action string) error {
	return newRuntimeError("attempt to %s a %s value", action, ValueType(v))
}

// panicNotCallable reports that v was resolved to a call position despite
// not being a [*Closure] or [Callback]. The compiler that produced this
// bytecode is responsible for only ever emitting calls against callable
// values, so this is an internal error, not a recoverable Lua one.
func panicNotCallable(v Value) {
	panicf("vm: internal error: attempt to call a %s value", ValueType(v))
}

var errForStepZero = errors.New("vm: 'for' step is zero")
