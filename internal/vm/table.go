// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import (
	"errors"
	"math"
	"slices"
	"sort"
)

// Table is a Lua table: a single associative structure covering both
// the "array part" and the "hash part" of a real Lua implementation.
//
// Entries are kept in a slice sorted by key and looked up with
// [slices.BinarySearchFunc] rather than a Go map, since Lua's key
// ordering and its notion of a table "length" both depend on an
// ordering over keys that a map cannot give us.
type Table struct {
	id      uint64
	entries []tableEntry
}

type tableEntry struct {
	key   Value
	value Value
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{id: nextID()}
}

func (*Table) valueType() Type { return TypeTable }

func (t *Table) findEntry(key Value) (int, bool) {
	return findEntryIn(t.entries, key)
}

func findEntryIn(entries []tableEntry, key Value) (int, bool) {
	return slices.BinarySearchFunc(entries, key, func(e tableEntry, k Value) int {
		return compareValues(e.key, k)
	})
}

// ErrInvalidKey is returned by [Table.Set] when key is nil or a NaN
// float, neither of which Lua permits as a table key.
var ErrInvalidKey = errors.New("vm: table index is nil or NaN")

// Get returns the value stored at key, or nil if key is absent.
// A nil or NaN key simply misses, matching Lua's read semantics.
func (t *Table) Get(key Value) Value {
	if t == nil || isInvalidKey(key) {
		return nil
	}
	i, ok := t.findEntry(key)
	if !ok {
		return nil
	}
	return t.entries[i].value
}

// Set stores value at key, removing the entry if value is nil.
// It returns [ErrInvalidKey] if key is nil or a NaN float: a production
// VM surfaces this as a runtime error rather than silently discarding
// the write or panicking.
func (t *Table) Set(key, value Value) error {
	if t == nil {
		return errAttemptToIndexNil
	}
	if isInvalidKey(key) {
		return ErrInvalidKey
	}
	i, ok := t.findEntry(key)
	if value == nil {
		if ok {
			t.entries = slices.Delete(t.entries, i, i+1)
		}
		return nil
	}
	if ok {
		t.entries[i].value = value
		return nil
	}
	t.entries = slices.Insert(t.entries, i, tableEntry{key: key, value: value})
	return nil
}

func isInvalidKey(key Value) bool {
	if key == nil {
		return true
	}
	if f, ok := key.(Number); ok && math.IsNaN(float64(f)) {
		return true
	}
	return false
}

// Length returns a Lua "border" of t: an integer n such that t[n] is
// non-nil (or n is 0) and t[n+1] is nil. When the table's integer keys
// starting at 1 form a contiguous run, this is that run's length.
//
// The search is a binary search over the sorted entries rather than a
// linear probe of successive integer keys: find where key 1 sits, cap
// the search space by how many entries remain after it, then binary
// search that space for the first absent successor.
func (t *Table) Length() int64 {
	if t == nil {
		return 0
	}
	start, ok := t.findEntry(Integer(1))
	if !ok {
		return 0
	}

	maxKey := len(t.entries) - start
	searchSpace := t.entries[start+1:]
	n := sort.Search(len(searchSpace), func(i int) bool {
		switch k := searchSpace[i].key.(type) {
		case Integer:
			return int64(k) > int64(maxKey)
		case Number:
			return float64(k) > float64(maxKey)
		default:
			return true
		}
	})
	searchSpace = searchSpace[:n]
	maxKey = n + 1

	i := sort.Search(maxKey, func(i int) bool {
		_, found := findEntryIn(searchSpace, Integer(i)+2)
		return !found
	})
	return int64(i) + 1
}
