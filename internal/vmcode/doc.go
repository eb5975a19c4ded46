// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

// Package vmcode holds the data a bytecode compiler hands to the
// execution core: [Prototype], [Instruction], [OpCode], and the
// upvalue descriptors a closure resolves at construction time.
//
// Nothing in this package executes an instruction; it is the contract
// the dispatcher in package vm consumes read-only. The lexer, parser,
// and compiler that would normally produce a [Prototype] are out of
// scope for this repository, so tests and cmd/luster build one by
// hand with [Builder].
package vmcode
