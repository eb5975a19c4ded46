// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import (
	"bufio"
	"io"
)

// SkipSourcePrefix consumes a leading UTF-8 byte-order mark (EF BB BF),
// if present, followed by a leading shebang line ("#" through the end
// of the line, exclusive of the newline itself), if present, leaving
// br positioned at the start of the actual source text.
//
// Both are stripped before handing a chunk to its lexer: a BOM a text
// editor may have inserted, then a "#!/usr/bin/lua"-style shebang a
// script runner may have added, neither of which is part of the Lua
// grammar.
func SkipSourcePrefix(br *bufio.Reader) error {
	bom, err := br.Peek(3)
	if err == nil && len(bom) == 3 && bom[0] == 0xef && bom[1] == 0xbb && bom[2] == 0xbf {
		if _, err := br.Discard(3); err != nil {
			return err
		}
	}

	first, err := br.Peek(1)
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	if first[0] != '#' {
		return nil
	}
	for {
		b, err := br.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if b == '\n' {
			return br.UnreadByte()
		}
	}
}
