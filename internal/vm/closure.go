// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import "github.com/light4/luster/internal/vmcode"

// Closure is a Lua function value: a compiled [vmcode.Prototype] paired
// with the upvalue cells it closed over at construction time.
type Closure struct {
	id        uint64
	proto     *vmcode.Prototype
	upvalues  []*UpvalueCell
	// env, when non-nil, backs this closure's implicit _ENV upvalue for
	// a top-level chunk. Nested closures copy their enclosing closure's
	// env at construction; they may not carry an UpvalueEnvironment
	// descriptor themselves.
	env *Table
}

func (*Closure) valueType() Type { return TypeClosure }

// newClosure builds a closure for proto, resolving each upvalue
// descriptor against the currently executing frame: UpvalueParentLocal
// opens a cell onto the enclosing frame's register (reusing one already
// open there, if any), and UpvalueOuter shares a cell already held by
// the enclosing closure. An UpvalueEnvironment descriptor is an internal
// error here and panics.
func newClosure(proto *vmcode.Prototype, enclosing *Closure, th *Thread, frameBottom int) *Closure {
	c := &Closure{
		id:    nextID(),
		proto: proto,
		env:   enclosing.environment(),
	}
	if len(proto.Upvalues) == 0 {
		return c
	}
	c.upvalues = make([]*UpvalueCell, len(proto.Upvalues))
	for i, d := range proto.Upvalues {
		switch d.Kind {
		case vmcode.UpvalueEnvironment:
			// Only the root chunk (built by NewChunk, which never calls
			// newClosure) may carry an Environment descriptor; a compiler
			// emitting one for a nested prototype has a bug.
			panic("vm: illegal Environment upvalue descriptor in nested closure")
		case vmcode.UpvalueParentLocal:
			c.upvalues[i] = th.findOrOpenUpvalue(frameBottom + d.Index)
		case vmcode.UpvalueOuter:
			c.upvalues[i] = enclosing.upvalues[d.Index]
		default:
			panic("vm: unhandled upvalue descriptor kind")
		}
	}
	return c
}

// NewChunk wraps proto as a top-level closure (no enclosing function,
// so it has no upvalues beyond its implicit _ENV) backed by env as its
// global table. This is the entry point a host uses to turn an
// assembled [vmcode.Prototype] into something [CallClosure] accepts,
// standing in for what "load" does in a full Lua distribution.
func NewChunk(proto *vmcode.Prototype, env *Table) *Closure {
	return &Closure{id: nextID(), proto: proto, env: env}
}

// environment returns the table a closure's _ENV resolves to: its own
// if set, or else the table it inherited at construction.
func (c *Closure) environment() *Table {
	if c == nil {
		return nil
	}
	return c.env
}
