// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

// UpvalueCell is the shared storage a closure captures. While open, it
// aliases a slot on its owning [Thread]'s stack, so writes made through
// a register and writes made through the upvalue observe each other.
// Once the owning frame returns, the cell is closed: it copies the
// value out of the stack and owns it directly from then on.
//
// Go has no sum type for the two Open/Closed states, so they live side
// by side in one struct, discriminated by owner being non-nil.
type UpvalueCell struct {
	// owner is the Thread whose stack this cell aliases while open, or
	// nil once the cell is closed.
	owner *Thread
	// index is the stack slot this cell aliases while open.
	index int
	// closedValue holds the cell's value once closed. Only meaningful
	// when owner is nil.
	closedValue Value
}

// newOpenUpvalue returns a cell aliasing stack slot index on thread.
func newOpenUpvalue(owner *Thread, index int) *UpvalueCell {
	return &UpvalueCell{owner: owner, index: index}
}

// Get reads the cell's current value.
//
// Reads and writes to an open cell must route through the owning
// thread's stack, not whichever thread happens to hold the closure: in
// a multi-thread host a coroutine can capture another thread's local
// as an upvalue, and every access has to observe the owner's stack,
// not a stale copy.
func (c *UpvalueCell) Get() Value {
	if c.owner != nil {
		return c.owner.stack[c.index]
	}
	return c.closedValue
}

// Set writes the cell's current value.
func (c *UpvalueCell) Set(v Value) {
	if c.owner != nil {
		c.owner.stack[c.index] = v
		return
	}
	c.closedValue = v
}

// close detaches the cell from its owning thread's stack, copying the
// current value out so it survives the stack slot being reused.
func (c *UpvalueCell) close() {
	if c.owner == nil {
		return
	}
	c.closedValue = c.owner.stack[c.index]
	c.owner = nil
	c.index = 0
}

// isOpenOnOrAfter reports whether the cell is still open and aliases a
// stack slot at or after bottom. [Thread.closeUpvalues] picks the cells
// to close by their open-upvalue keys and uses this only to check that
// each key agrees with its cell.
func (c *UpvalueCell) isOpenOnOrAfter(bottom int) bool {
	return c.owner != nil && c.index >= bottom
}
