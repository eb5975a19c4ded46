// Copyright 2024 The zb Authors
// Copyright 2025 The luster Authors
// SPDX-License-Identifier: MIT

package vm

import (
	"errors"
	"math"
	"testing"
)

func TestTableGetSet(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Set(String("a"), Integer(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tbl.Set(Integer(2), String("b")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := tbl.Get(String("a")); !Equal(got, Integer(1)) {
		t.Errorf("Get(a) = %v, want 1", got)
	}
	if got := tbl.Get(Integer(2)); !Equal(got, String("b")) {
		t.Errorf("Get(2) = %v, want b", got)
	}
	if got := tbl.Get(String("missing")); got != nil {
		t.Errorf("Get(missing) = %v, want nil", got)
	}
}

func TestTableSetNilValueRemoves(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Set(Integer(1), String("x")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := tbl.Set(Integer(1), nil); err != nil {
		t.Fatalf("Set nil: %v", err)
	}
	if got := tbl.Get(Integer(1)); got != nil {
		t.Errorf("Get(1) after delete = %v, want nil", got)
	}
}

func TestTableInvalidKeys(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Set(nil, Integer(1)); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Set(nil, ...) error = %v, want ErrInvalidKey", err)
	}
	if err := tbl.Set(Number(math.NaN()), Integer(1)); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Set(NaN, ...) error = %v, want ErrInvalidKey", err)
	}
}

func TestTableLength(t *testing.T) {
	tbl := NewTable()
	for i := int64(1); i <= 5; i++ {
		if err := tbl.Set(Integer(i), Integer(i*10)); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}
	if n := tbl.Length(); n != 5 {
		t.Errorf("Length() = %d, want 5", n)
	}
	if err := tbl.Set(Integer(3), nil); err != nil {
		t.Fatalf("Set(3, nil): %v", err)
	}
	if n := tbl.Length(); n != 2 {
		t.Errorf("Length() after removing a middle element = %d, want 2", n)
	}
}
