// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/light4/luster/internal/vm"
	"github.com/light4/luster/internal/vmcode"
	"github.com/light4/luster/internal/vmhost"
)

var errYieldedAtTopLevel = errors.New("luster: chunk yielded outside a coroutine context")

type runOptions struct {
	inputFilename string
	granularity   int
	yieldDemo     bool
}

// newRunCommand returns the "luster run" command.
//
// Package vmcode has no lexer, parser, or compiler (see its doc
// comment): run does not compile its argument as Lua source. Instead
// it exercises the whole pipeline end to end — preprocessing,
// dispatch, and the native callback library — by stripping the
// file's BOM/shebang prefix and handing the remaining text to a
// one-statement chunk equivalent to print(<file contents>).
func newRunCommand() *cobra.Command {
	opts := new(runOptions)
	c := &cobra.Command{
		Use:                   "run FILE",
		Short:                 "preprocess a source file and print its contents through the execution core",
		Args:                  cobra.ExactArgs(1),
		DisableFlagsInUseLine: true,
	}
	c.Flags().IntVar(&opts.granularity, "granularity", vmhost.DefaultGranularity, "opcodes to execute per scheduling slice")
	c.Flags().BoolVar(&opts.yieldDemo, "yield-demo", false, "pass the file's contents through vmhost.Yielder and resume it, instead of printing directly")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.inputFilename = args[0]
		return runFile(cmd.Context(), opts)
	}
	return c
}

func runFile(ctx context.Context, opts *runOptions) error {
	f, err := os.Open(opts.inputFilename)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if err := vm.SkipSourcePrefix(br); err != nil {
		return err
	}
	contents, err := io.ReadAll(br)
	if err != nil {
		return err
	}

	if opts.yieldDemo {
		return runYieldDemo(ctx, opts, string(contents))
	}

	proto := buildPrintChunk(opts.inputFilename, string(contents))

	env := vm.NewTable()
	if err := env.Set(vm.String("print"), vmhost.Print(os.Stdout)); err != nil {
		return err
	}
	chunk := vm.NewChunk(proto, env)

	th := vm.NewThread()
	r, err := vm.CallClosure(th, chunk, nil)
	if err != nil {
		return err
	}
	for {
		res, err := r.Step(opts.granularity)
		if err != nil {
			return err
		}
		switch res.Status {
		case vm.StepReturned:
			return nil
		case vm.StepYielded:
			return errYieldedAtTopLevel
		}
	}
}

// buildPrintChunk assembles a chunk equivalent to the one statement
// print(text), using the hand-built [vmcode.Builder] in place of a
// real Lua front end.
func buildPrintChunk(name, text string) *vmcode.Prototype {
	b := vmcode.NewBuilder(0, 2)
	b.Name(name)
	b.AddUpvalue(vmcode.UpvalueDescriptor{Kind: vmcode.UpvalueEnvironment})
	printKey := b.Const(vmcode.StringConstant("print"))
	textConst := b.Const(vmcode.StringConstant(text))
	b.Emit(vmcode.ABC(vmcode.OpGetUpTableC, 0, 0, int32(printKey)))
	b.Emit(vmcode.AB(vmcode.OpLoadConstant, 1, int32(textConst)))
	b.Emit(vmcode.ABC(vmcode.OpCall, 0, int32(vmcode.FixedCount(1)), int32(vmcode.FixedCount(0))))
	b.Emit(vmcode.AB(vmcode.OpReturn, 0, int32(vmcode.FixedCount(0))))
	return b.Build()
}

// runYieldDemo runs a chunk equivalent to print(yield(text)) against
// [vmhost.Yielder], demonstrating scenario 4 of spec.md §8 end to end:
// the callback's Yield suspends call_closure with the yielded value,
// and resuming the same thread with a new value lets the suspended
// call observe it and carry on to its print.
func runYieldDemo(ctx context.Context, opts *runOptions, text string) error {
	proto := buildYieldDemoChunk(opts.inputFilename, text)

	env := vm.NewTable()
	if err := env.Set(vm.String("print"), vmhost.Print(os.Stdout)); err != nil {
		return err
	}
	if err := env.Set(vm.String("yield"), vmhost.Yielder(ctx)); err != nil {
		return err
	}
	chunk := vm.NewChunk(proto, env)

	th := vm.NewThread()
	r, err := vm.CallClosure(th, chunk, nil)
	if err != nil {
		return err
	}
	for {
		res, err := r.Step(opts.granularity)
		if err != nil {
			return err
		}
		switch res.Status {
		case vm.StepReturned:
			return nil
		case vm.StepYielded:
			res, err = r.Resume(opts.granularity, []vm.Value{vm.String("resumed")})
			if err != nil {
				return err
			}
			if res.Status == vm.StepYielded {
				// This core's Yield frames are not re-stepped; a demo
				// chunk that yields twice is a bug in the demo itself.
				return errYieldedAtTopLevel
			}
			if res.Status == vm.StepReturned {
				return nil
			}
		}
	}
}

// buildYieldDemoChunk assembles a chunk equivalent to
//
//	print(yield(text))
//
// using the hand-built [vmcode.Builder] in place of a real Lua front
// end.
func buildYieldDemoChunk(name, text string) *vmcode.Prototype {
	b := vmcode.NewBuilder(0, 3)
	b.Name(name)
	b.AddUpvalue(vmcode.UpvalueDescriptor{Kind: vmcode.UpvalueEnvironment})
	yieldKey := b.Const(vmcode.StringConstant("yield"))
	printKey := b.Const(vmcode.StringConstant("print"))
	textConst := b.Const(vmcode.StringConstant(text))

	b.Emit(vmcode.ABC(vmcode.OpGetUpTableC, 0, 0, int32(yieldKey)))
	b.Emit(vmcode.AB(vmcode.OpLoadConstant, 1, int32(textConst)))
	b.Emit(vmcode.ABC(vmcode.OpCall, 0, int32(vmcode.FixedCount(1)), int32(vmcode.FixedCount(1))))
	b.Emit(vmcode.ABC(vmcode.OpGetUpTableC, 1, 0, int32(printKey)))
	b.Emit(vmcode.AB(vmcode.OpMove, 2, 0))
	b.Emit(vmcode.ABC(vmcode.OpCall, 1, int32(vmcode.FixedCount(1)), int32(vmcode.FixedCount(0))))
	b.Emit(vmcode.AB(vmcode.OpReturn, 0, int32(vmcode.FixedCount(0))))
	return b.Build()
}
