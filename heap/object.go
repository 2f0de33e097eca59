// Package heap implements the Ninja VM's two-space copying heap: tagged
// objects, object references, and the bump allocator that backs them.
package heap

import "github.com/pkg/errors"

// ErrInvalidArgument mirrors the VM-wide "invalid argument" error class for
// allocation requests that are malformed rather than merely too large for
// the current half-space.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrOutOfMemory is returned when a collection still leaves insufficient
// room for the requested allocation.
var ErrOutOfMemory = errors.New("out of memory")

const (
	compoundFlag uint32 = 1 << 31
	copiedFlag   uint32 = 1 << 30
	sizeMask     uint32 = copiedFlag - 1

	// MaxObjectSize is the largest size (member count or byte count) a
	// single object header can encode in its low 30 bits.
	MaxObjectSize = int(sizeMask)

	// HeaderSize is the width, in bytes, of every object's tag header.
	HeaderSize = 4
)

// Ref is a reference to a heap object: either Nil or a byte offset into the
// active half of the owning Heap. Offsets (rather than raw pointers) let a
// collection relocate objects without invalidating Go-level aliasing rules.
type Ref struct {
	offset int32
	valid  bool
}

// Nil is the distinguished null reference.
var Nil = Ref{}

// IsNil reports whether r is the null reference.
func (r Ref) IsNil() bool { return !r.valid }

// Identical reports pointer identity between two references, matching
// refeq/refne semantics (nil equals nil).
func (r Ref) Identical(other Ref) bool {
	if r.valid != other.valid {
		return false
	}
	return !r.valid || r.offset == other.offset
}

func refAt(offset int32) Ref {
	return Ref{offset: offset, valid: true}
}

// header is the raw 32-bit tag word of an object: compound flag, copied
// flag, and a 30-bit size/forwarding-offset field, packed exactly as
// described by spec.md §3.
type header uint32

func makeHeader(size int, compound bool) header {
	h := header(uint32(size) & sizeMask)
	if compound {
		h |= header(compoundFlag)
	}
	return h
}

func (h header) isCompound() bool { return uint32(h)&compoundFlag != 0 }
func (h header) isCopied() bool   { return uint32(h)&copiedFlag != 0 }
func (h header) size() int        { return int(uint32(h) & sizeMask) }

func (h header) forwardingOffset() int32 {
	return int32(uint32(h) & sizeMask)
}

func markCopied(offset int32) header {
	return header(copiedFlag | (uint32(offset) & sizeMask))
}

// PayloadSize computes the number of payload bytes required for an object
// of the given member/byte count, per spec.md's payload_size formula.
func PayloadSize(size int, compound bool) int {
	if compound {
		return size * RefSize
	}
	return size
}

// RefSize is sizeof(ObjRef) as used by compound-object payload math. Ninja
// references are stored on-heap as 4-byte offsets.
const RefSize = 4
