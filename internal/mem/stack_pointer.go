// Package mem provides the modular stack pointer used to address the bounded
// emulator stack. There is no virtual memory: a StackPointer is an offset into
// a fixed-size buffer and all arithmetic wraps inside that buffer.
package mem

import "fmt"

// StackPointer is an offset into a stack buffer of a fixed capacity.
// The offset is always in [0, capacity).
type StackPointer struct {
	offset   uint64
	capacity uint64
}

// NewStackPointer returns a pointer at value mod capacity.
// It panics if capacity is zero.
func NewStackPointer(value, capacity uint64) StackPointer {
	if capacity == 0 {
		panic("mem: stack pointer with zero capacity")
	}
	return StackPointer{offset: value % capacity, capacity: capacity}
}

// Value returns the normalized offset.
func (sp StackPointer) Value() uint64 {
	return sp.offset
}

// Cap returns the capacity of the buffer the pointer addresses.
func (sp StackPointer) Cap() uint64 {
	return sp.capacity
}

// SetWrapping moves the pointer to value mod capacity.
func (sp *StackPointer) SetWrapping(value uint64) {
	sp.offset = value % sp.capacity
}

// Add returns the pointer advanced by n, wrapping past the top of the buffer.
func (sp StackPointer) Add(n uint64) StackPointer {
	n %= sp.capacity
	return NewStackPointer(sp.offset+n, sp.capacity)
}

// Sub returns the pointer moved back by n. Moving below zero wraps to
// capacity - (n - offset).
func (sp StackPointer) Sub(n uint64) StackPointer {
	n %= sp.capacity
	if sp.offset >= n {
		return NewStackPointer(sp.offset-n, sp.capacity)
	}
	return NewStackPointer(sp.capacity-(n-sp.offset), sp.capacity)
}

// Equal reports whether the normalized offset equals v.
func (sp StackPointer) Equal(v uint64) bool {
	return sp.offset == v
}

// Compare compares the normalized offset against v and returns -1, 0 or +1.
func (sp StackPointer) Compare(v uint64) int {
	switch {
	case sp.offset < v:
		return -1
	case sp.offset > v:
		return 1
	}
	return 0
}

func (sp StackPointer) String() string {
	return fmt.Sprintf("0x%x/0x%x", sp.offset, sp.capacity)
}
