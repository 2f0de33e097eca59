package vm

import (
	"github.com/pkg/errors"

	"njvm/heap"
)

// Slot is a tagged stack/register cell: either an object reference or a
// raw primitive int32. Only reference-tagged slots are GC roots; primitive
// slots hold bookkeeping values the collector must never try to interpret
// as heap offsets (saved pc/fp pairs pushed by asf/call).
type Slot struct {
	ref       heap.Ref
	primitive int32
	isRef     bool
}

// RefSlot wraps a heap reference as a Slot.
func RefSlot(r heap.Ref) Slot {
	return Slot{ref: r, isRef: true}
}

// PrimSlot wraps a raw int32 as a non-reference Slot.
func PrimSlot(v int32) Slot {
	return Slot{primitive: v}
}

// NilSlot is the reference-tagged nil slot, the zero value pushed by asf
// for a frame's local variables.
var NilSlot = RefSlot(heap.Nil)

// IsRef reports whether the slot holds an object reference.
func (s Slot) IsRef() bool { return s.isRef }

// AsRef returns the slot's reference, failing if it holds a primitive.
func (s Slot) AsRef() (heap.Ref, error) {
	if !s.isRef {
		return heap.Nil, errors.Wrapf(ErrLogic, "expected a reference slot, found a primitive")
	}
	return s.ref, nil
}

// AsPrimitive returns the slot's raw int32, failing if it holds a
// reference.
func (s Slot) AsPrimitive() (int32, error) {
	if s.isRef {
		return 0, errors.Wrapf(ErrLogic, "expected a primitive slot, found a reference")
	}
	return s.primitive, nil
}

// registers holds the VM's scalar machine state: the program counter,
// stack pointer, frame pointer, and the bigint scratch registers used as
// the opaque boundary between the VM and the bigint adapter.
type registers struct {
	pc int32
	sp int32
	fp int32

	ret heap.Ref
	op1 heap.Ref
	op2 heap.Ref
	res heap.Ref
	rem heap.Ref
}
