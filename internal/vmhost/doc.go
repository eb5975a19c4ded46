// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

// Package vmhost is a reference host for package vm: it owns one or
// more threads, drives them cooperatively, and supplies the native
// callback library a Lua program needs to be useful at all (printing,
// and a yield/resume bridge standing in for a richer coroutine
// library).
//
// [Host.RunAll] gives each thread its own goroutine, but no two threads
// execute a slice at the same time; they take turns, the same
// cooperative-scheduling contract package vm's dispatcher is built
// around. What does run concurrently is slice execution overlapping
// with logging and other host bookkeeping, coordinated through a
// mutex guarding the Host's shared state.
package vmhost
