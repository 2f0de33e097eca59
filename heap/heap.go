package heap

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Heap is the VM's two-space copying heap: a contiguous byte buffer split
// into an active and an unused half, with bump allocation in the active
// half and a Cheney-style copying collector that swaps halves on demand.
type Heap struct {
	buf        []byte
	halfBytes  int
	activeBase int
	unusedBase int

	bytesUsed   int
	allocations int

	purge bool
	stats bool
	log   *zap.SugaredLogger
}

// Config selects heap geometry and collector behavior, mirroring the CLI
// flags of spec.md §6 (--heap, --gcpurge, --gcstats).
type Config struct {
	HeapKB int
	Purge  bool
	Stats  bool
	Logger *zap.SugaredLogger
}

// New allocates a heap of 2*(HeapKB*1024/2) bytes, split into equal active
// and unused halves.
func New(cfg Config) *Heap {
	half := (cfg.HeapKB * 1024) / 2
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	h := &Heap{
		buf:        make([]byte, half*2),
		halfBytes:  half,
		activeBase: 0,
		unusedBase: half,
		purge:      cfg.Purge,
		stats:      cfg.Stats,
		log:        log,
	}
	if h.purge {
		for i := range h.buf {
			h.buf[i] = 0
		}
	}
	return h
}

// BytesUsed and Allocations expose the current active-half bump-allocator
// counters, reset on every collection.
func (h *Heap) BytesUsed() int   { return h.bytesUsed }
func (h *Heap) Allocations() int { return h.allocations }
func (h *Heap) HalfBytes() int   { return h.halfBytes }

func (h *Heap) headerAt(base, offset int) header {
	return header(le32(h.buf[base+offset:]))
}

func (h *Heap) writeHeaderAt(base, offset int, hd header) {
	putLE32(h.buf[base+offset:], uint32(hd))
}

func (h *Heap) readRefAt(base, offset int) Ref {
	v := le32(h.buf[base+offset:])
	if v == 0xFFFFFFFF {
		return Nil
	}
	return refAt(int32(v))
}

func (h *Heap) writeRefAt(base, offset int, r Ref) {
	if r.IsNil() {
		putLE32(h.buf[base+offset:], 0xFFFFFFFF)
		return
	}
	putLE32(h.buf[base+offset:], uint32(r.offset))
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// bumpAllocate reserves total bytes in the active half, assuming the
// caller already verified there is room.
func (h *Heap) bumpAllocate(total int) int {
	offset := h.bytesUsed
	h.bytesUsed += total
	h.allocations++
	return offset
}

// Alloc reserves a new object of the given member/byte count, running a
// collection first (via collect) if the active half doesn't currently have
// room. size is interpreted as a member count for compound objects or a
// byte count for integer objects.
func (h *Heap) Alloc(size int, compound bool, collect func()) (Ref, error) {
	if size < 0 || size > MaxObjectSize {
		return Nil, errors.Wrapf(ErrInvalidArgument, "object size %d out of range", size)
	}
	total := HeaderSize + PayloadSize(size, compound)
	if total > MaxObjectSize || total > h.halfBytes {
		return Nil, errors.Wrapf(ErrInvalidArgument, "object of %d bytes exceeds heap half of %d bytes", total, h.halfBytes)
	}

	if total > h.halfBytes-h.bytesUsed {
		collect()
		if total > h.halfBytes-h.bytesUsed {
			return Nil, errors.Wrapf(ErrOutOfMemory, "unable to allocate %d bytes after collection", total)
		}
	}

	offset := h.bumpAllocate(total)
	h.writeHeaderAt(h.activeBase, offset, makeHeader(size, compound))

	ref := refAt(int32(offset))
	if compound {
		for i := 0; i < size; i++ {
			h.writeRefAt(h.activeBase, offset+HeaderSize+i*RefSize, Nil)
		}
	}
	return ref, nil
}

func (h *Heap) header(r Ref) header {
	return h.headerAt(h.activeBase, int(r.offset))
}

// Size returns the member/byte count of r, per its header.
func (h *Heap) Size(r Ref) int {
	return h.header(r).size()
}

// IsCompound reports whether r holds references (true) or raw integer
// payload bytes (false). Calling this on Nil is a programming error.
func (h *Heap) IsCompound(r Ref) bool {
	return h.header(r).isCompound()
}

// Payload returns the raw byte payload of an integer object.
func (h *Heap) Payload(r Ref) []byte {
	hd := h.header(r)
	start := h.activeBase + int(r.offset) + HeaderSize
	return h.buf[start : start+hd.size()]
}

// Member returns the reference stored at index idx of a compound object,
// without bounds checking (callers validate against Size first).
func (h *Heap) Member(r Ref, idx int) Ref {
	offset := int(r.offset) + HeaderSize + idx*RefSize
	return h.readRefAt(h.activeBase, offset)
}

// SetMember overwrites the reference stored at index idx of a compound
// object, without bounds checking.
func (h *Heap) SetMember(r Ref, idx int, v Ref) {
	offset := int(r.offset) + HeaderSize + idx*RefSize
	h.writeRefAt(h.activeBase, offset, v)
}
