// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vmhost

import (
	"context"
	"io"
	"strings"

	"zombiezen.com/go/log"

	"github.com/light4/luster/internal/vm"
)

// Print returns a [vm.Callback] that writes its arguments to w,
// tab-separated and newline-terminated, the way the baseline "print"
// global works in a real Lua distribution.
func Print(w io.Writer) vm.Callback {
	return vm.NewCallback("print", func(th *vm.Thread, args []vm.Value) ([]vm.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = vm.ToString(a)
		}
		if _, err := io.WriteString(w, strings.Join(parts, "\t")+"\n"); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// Yielder returns a [vm.Callback] that suspends its thread with
// whatever arguments it was called with, standing in for a full
// coroutine library's yield primitive: the thread's [vm.Resumable]
// must be driven by [vm.Resumable.Resume] to supply the values this
// call resolves to.
func Yielder(ctx context.Context) vm.Callback {
	return vm.NewResumableCallback("yield", func(th *vm.Thread, args []vm.Value) (vm.CallbackResult, error) {
		log.Debugf(ctx, "thread %s: yielding %d values", th.ID(), len(args))
		return vm.Yield(args...), nil
	})
}
