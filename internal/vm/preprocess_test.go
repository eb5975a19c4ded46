// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import (
	"bufio"
	"io"
	"strings"
	"testing"
)

func TestSkipSourcePrefix(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bomAndShebang", "\xef\xbb\xbf#A\nB", "\nB"},
		{"shebangOnly", "#A", ""},
		{"plain", "A", "A"},
		{"bomOnly", "\xef\xbb\xbfA", "A"},
		{"shebangNoNewline", "#no newline here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := bufio.NewReader(strings.NewReader(tt.in))
			if err := SkipSourcePrefix(br); err != nil {
				t.Fatalf("SkipSourcePrefix: %v", err)
			}
			rest, err := io.ReadAll(br)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if got := string(rest); got != tt.want {
				t.Errorf("remaining = %q, want %q", got, tt.want)
			}
		})
	}
}
