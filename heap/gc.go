package heap

// Collect runs one stop-the-world Cheney-style copying collection. roots is
// every root location the caller wants rescued — bigint scratch registers,
// the return register, every static_data slot, and every stack slot
// currently holding an object reference. Each *Ref is read, rescued, and
// overwritten in place with the (possibly relocated) reference.
func (h *Heap) Collect(roots []*Ref) {
	if h.stats {
		h.log.Infof("gc: allocated since last collection: %d objects (%d bytes)", h.allocations, h.bytesUsed)
	}

	h.bytesUsed = 0
	h.allocations = 0
	h.activeBase, h.unusedBase = h.unusedBase, h.activeBase

	for _, loc := range roots {
		*loc = h.rescue(*loc)
	}

	if h.stats {
		h.log.Infof("gc: live objects: %d (%d bytes)", h.allocations, h.bytesUsed)
		h.log.Infof("gc: %d bytes available for use", h.halfBytes-h.bytesUsed)
	}

	if h.purge {
		for i := h.unusedBase; i < h.unusedBase+h.halfBytes; i++ {
			h.buf[i] = 0
		}
	}
}

// rescue copies the object r (if not already copied) from the now-unused
// half into the new active half, recursing into compound members before
// the payload bytes are copied so cycles terminate on the second visit.
func (h *Heap) rescue(r Ref) Ref {
	if r.IsNil() {
		return Nil
	}

	oldOffset := int(r.offset)
	hd := h.headerAt(h.unusedBase, oldOffset)
	if hd.isCopied() {
		return refAt(hd.forwardingOffset())
	}

	compound := hd.isCompound()
	size := hd.size()
	payload := PayloadSize(size, compound)
	total := HeaderSize + payload

	newOffset := h.bumpAllocate(total)
	h.writeHeaderAt(h.activeBase, newOffset, hd)
	h.writeHeaderAt(h.unusedBase, oldOffset, markCopied(int32(newOffset)))

	if compound {
		for i := 0; i < size; i++ {
			memberOffset := oldOffset + HeaderSize + i*RefSize
			child := h.readRefAt(h.unusedBase, memberOffset)
			h.writeRefAt(h.unusedBase, memberOffset, h.rescue(child))
		}
	}

	copy(
		h.buf[h.activeBase+newOffset+HeaderSize:h.activeBase+newOffset+HeaderSize+payload],
		h.buf[h.unusedBase+oldOffset+HeaderSize:h.unusedBase+oldOffset+HeaderSize+payload],
	)

	return refAt(int32(newOffset))
}
