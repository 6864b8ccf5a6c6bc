// Package arena provides a generational arena: values are addressed by an
// Index carrying a slot and a generation, so a handle to a removed value is
// never confused with a later value that reuses the slot.
package arena

import "fmt"

// Index encodes a 32-bit slot in the lower bits and a 32-bit generation in the
// upper bits. Generations start at 1, so the zero Index never names a value.
type Index uint64

func NewIndex(slot uint32, generation uint32) Index {
	return Index(uint64(generation)<<32 | uint64(slot))
}

func (i Index) Slot() uint32       { return uint32(i) }
func (i Index) Generation() uint32 { return uint32(i >> 32) }
func (i Index) IsZero() bool       { return i == 0 }

func (i Index) String() string {
	return fmt.Sprintf("%d.%d", i.Slot(), i.Generation())
}

type entry[T any] struct {
	generation uint32
	occupied   bool
	value      T
}

// Arena stores values of type T in reusable slots.
type Arena[T any] struct {
	entries  []entry[T]
	freeList []uint32
	count    int
}

func New[T any]() *Arena[T] {
	return &Arena[T]{
		entries:  make([]entry[T], 0, 16),
		freeList: make([]uint32, 0, 16),
	}
}

// Insert stores v and returns its index. Freed slots are reused last-in first-out.
func (a *Arena[T]) Insert(v T) Index {
	a.count++
	if len(a.freeList) > 0 {
		slot := a.freeList[len(a.freeList)-1]
		a.freeList = a.freeList[:len(a.freeList)-1]
		e := &a.entries[slot]
		e.occupied = true
		e.value = v
		return NewIndex(slot, e.generation)
	}
	slot := uint32(len(a.entries))
	a.entries = append(a.entries, entry[T]{generation: 1, occupied: true, value: v})
	return NewIndex(slot, 1)
}

// Contains reports whether idx names a live value.
func (a *Arena[T]) Contains(idx Index) bool {
	return a.lookup(idx) != nil
}

// Get returns the value at idx, or false if idx is stale or was never issued.
func (a *Arena[T]) Get(idx Index) (T, bool) {
	if e := a.lookup(idx); e != nil {
		return e.value, true
	}
	var zero T
	return zero, false
}

// Ptr returns a pointer to the value at idx for in-place mutation, or nil.
// The pointer is invalidated by the next Insert.
func (a *Arena[T]) Ptr(idx Index) *T {
	if e := a.lookup(idx); e != nil {
		return &e.value
	}
	return nil
}

// GetBySlot ignores the generation and returns whatever lives in slot.
func (a *Arena[T]) GetBySlot(slot uint32) (Index, T, bool) {
	var zero T
	if int(slot) >= len(a.entries) {
		return 0, zero, false
	}
	e := &a.entries[slot]
	if !e.occupied {
		return 0, zero, false
	}
	return NewIndex(slot, e.generation), e.value, true
}

// Remove frees the slot at idx and bumps its generation.
func (a *Arena[T]) Remove(idx Index) (T, bool) {
	e := a.lookup(idx)
	if e == nil {
		var zero T
		return zero, false
	}
	v := e.value
	var zero T
	e.value = zero
	e.occupied = false
	e.generation++
	a.freeList = append(a.freeList, idx.Slot())
	a.count--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	return a.count
}

// Each visits live values in slot order.
func (a *Arena[T]) Each(fn func(Index, T)) {
	for slot := range a.entries {
		e := &a.entries[slot]
		if e.occupied {
			fn(NewIndex(uint32(slot), e.generation), e.value)
		}
	}
}

func (a *Arena[T]) lookup(idx Index) *entry[T] {
	slot := idx.Slot()
	if int(slot) >= len(a.entries) {
		return nil
	}
	e := &a.entries[slot]
	if !e.occupied || e.generation != idx.Generation() {
		return nil
	}
	return e
}
