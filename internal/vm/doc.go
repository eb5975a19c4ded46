// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

/*
Package vm implements the execution core of a Lua-dialect virtual
machine: the per-thread interpreter loop, its call-frame discipline,
upvalue capture and closure semantics, and the cooperative scheduling
contract that lets host code interleave VM execution with native
callbacks.

A [Thread] owns a register stack, a call-frame stack, and the set of
upvalues still open onto that stack. [CallClosure] drives a [Closure]
to completion (or a native-callback yield) in bounded slices of at
most granularity opcodes, returning a [Resumable] the host steps at
its own pace.

# Design

Value is a small closed interface hierarchy rather than an enum so nil
Go interfaces double as Lua nil; tables use a sorted-slice binary
search rather than a hash map; tables, closures, and callbacks carry an
id from a process-wide counter, which orders them as table keys, since
table keys need a total order to sort by and pointers give none. Errors are
plain Go errors, not a tagged result type.

# Non-goals

Metatables, metamethods, error objects with tracebacks, debug hooks,
and real OS-thread concurrency are not implemented. The dispatcher is
a dense switch, not a computed-goto or JIT.
*/
package vm
