// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vmhost

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"zombiezen.com/go/log"

	"github.com/light4/luster/internal/vm"
)

// Host drives one or more [vm.Thread] values to completion, giving
// each a fair share of execution via bounded [vm.Resumable] slices.
//
// A Host serializes all VM execution behind a single mutex (its
// "mutation token"): only one thread's slice actually runs at a time,
// but several goroutines can be blocked waiting their turn while
// logging, callback I/O, and other host bookkeeping for other threads
// proceeds concurrently.
type Host struct {
	mu          sync.Mutex
	granularity int
}

// DefaultGranularity bounds a single [vm.Resumable.Step] to this many
// opcodes when a Host is constructed with granularity <= 0.
const DefaultGranularity = 1000

// New returns a Host that runs each thread in slices of granularity
// opcodes. A non-positive granularity uses [DefaultGranularity].
func New(granularity int) *Host {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	return &Host{granularity: granularity}
}

// Call is one thread's unit of work for [Host.RunAll]: call Fn with
// Args on a fresh [vm.Thread].
type Call struct {
	Fn   vm.Value
	Args []vm.Value
}

// Result is the outcome of running one [Call] to completion.
type Result struct {
	Values []vm.Value
	Err    error
}

// RunAll runs every call concurrently, each on its own [vm.Thread],
// and returns one [Result] per call in the same order. A call that
// yields without anything to resume it is treated as an error: Host
// has no external resumer, so a bare yield can never be satisfied.
//
// Errors do not abort sibling calls: RunAll always runs every call to
// completion and reports each one's outcome independently, unlike
// [errgroup.Group]'s fail-fast default.
func (h *Host) RunAll(ctx context.Context, calls []Call) []Result {
	results := make([]Result, len(calls))
	var g errgroup.Group
	for i, c := range calls {
		g.Go(func() error {
			values, err := h.run(ctx, c)
			results[i] = Result{Values: values, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (h *Host) run(ctx context.Context, c Call) ([]vm.Value, error) {
	th := vm.NewThread()
	log.Debugf(ctx, "thread %s: starting call", th.ID())

	h.mu.Lock()
	r, err := vm.CallClosure(th, c.Fn, c.Args)
	h.mu.Unlock()
	if err != nil {
		log.Errorf(ctx, "thread %s: %v", th.ID(), err)
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		h.mu.Lock()
		res, err := r.Step(h.granularity)
		h.mu.Unlock()
		if err != nil {
			log.Warnf(ctx, "thread %s: unwound: %v", th.ID(), err)
			return nil, err
		}
		log.Debugf(ctx, "thread %s: slice complete, status %v", th.ID(), res.Status)
		switch res.Status {
		case vm.StepReturned:
			log.Debugf(ctx, "thread %s: returned %d values", th.ID(), len(res.Values))
			return res.Values, nil
		case vm.StepYielded:
			log.Errorf(ctx, "thread %s: yielded with no resumer available", th.ID())
			return nil, fmt.Errorf("thread %s: yielded outside a coroutine context", th.ID())
		}
	}
}
