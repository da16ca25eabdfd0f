package wheel

// Spin is the lock-free spin-wheel protocol: allocate, publish, peek,
// return over a shared memory wheel, with no suspension points of its own.
// Callers that get back InvalidOffset busy-wait outside the wheel, poll, or
// give up; see wheelutil for a backoff-based convenience wrapper.
//
// A Spin is thread-compatible, not thread-safe: it is meant to be held by
// exactly one producer and one consumer, each single-threaded with respect
// to it, per the wheel's single-producer/single-consumer contract.
type Spin struct {
	buf []byte
	hdr header
}

// NewSpin installs a fresh wheel header into buf and returns a Spin that
// owns it. buf is the whole shared region: one Align-sized header quantum
// followed by the payload area. This is the "server" side of construction;
// the peer should map the same region and call OpenSpin instead of
// installing a second header over it.
func NewSpin(buf []byte) (*Spin, error) {
	if err := ValidateSize(uint64(len(buf))); err != nil {
		return nil, &InitError{Op: "wheel.NewSpin", Err: err}
	}
	hdr := headerAt(buf)
	hdr.setAlignedSize(AlignedSize(uint64(len(buf))))
	hdr.pair().Store(InvalidPair)
	return &Spin{buf: buf, hdr: hdr}, nil
}

// OpenSpin wraps a region whose header has already been installed by the
// peer (typically via NewSpin or NewEventfd on the other side of a
// handshake). It performs no writes of its own.
func OpenSpin(buf []byte) (*Spin, error) {
	if len(buf) < Align {
		return nil, initErrorf("wheel.OpenSpin", "buffer of %d bytes is smaller than one header quantum (%d)", len(buf), Align)
	}
	return &Spin{buf: buf, hdr: headerAt(buf)}, nil
}

func (w *Spin) sliceAt(offset Offset) sliceHeader {
	return sliceHeaderAt(w.buf, Align+int(offset)*Align)
}

// chooseOffset implements the placement policy of spec.md section 4.C given
// a snapshot of the head/last pair. On a wrap decision it performs the
// backfill side effect (growing the old last slice's wheelUnits to cover
// the skipped gap) so the consumer's head-walk stays contiguous.
func (w *Spin) chooseOffset(pair uint64, need, alignedSize Offset) (Offset, bool) {
	if pair == InvalidPair {
		if need <= alignedSize {
			return 0, true
		}
		return InvalidOffset, false
	}

	head, last := unpackPair(pair)
	lastSlice := w.sliceAt(last)
	lastUnits := Offset(lastSlice.wheelUnits().Load())
	lastEnd := last + lastUnits

	if last < head {
		// Wrapped: the only free space is the gap between the end of the
		// last slice and the head of the chain.
		if need <= head-lastEnd {
			return lastEnd, true
		}
		return InvalidOffset, false
	}

	if need <= alignedSize-lastEnd {
		return lastEnd, true
	}
	if need <= head {
		// Wrap to the start. The old last slice now has dead space after
		// it that the consumer's head-walk must not misread as a slice, so
		// grow it to span the gap.
		lastSlice.wheelUnits().Store(uint32(alignedSize - last))
		return 0, true
	}
	return InvalidOffset, false
}

// Allocate reserves a contiguous region large enough for a slice header
// plus size bytes, rounded up to Align, and returns its offset and the
// payload slice the caller should write into before calling Publish. It
// returns InvalidOffset and a nil slice if the wheel has no room right now
// -- not an error, just "try again".
func (w *Spin) Allocate(size int) (Offset, []byte) {
	need := Offset(unitsFor(size))
	alignedSize := Offset(w.hdr.alignedSize())
	if need == 0 || need > alignedSize {
		return InvalidOffset, nil
	}

	pair := w.hdr.pair().Load()
	offset, ok := w.chooseOffset(pair, need, alignedSize)
	if !ok {
		return InvalidOffset, nil
	}

	sh := w.sliceAt(offset)
	sh.setUserSize(uint64(size))
	sh.wheelUnits().Store(uint32(need))
	sh.state().Store(uint8(SliceUninit))

	for {
		if pair == InvalidPair {
			if w.hdr.pair().CompareAndSwap(pair, packPair(offset, offset)) {
				return offset, sh.payload(uint32(need))[:size:size]
			}
		} else {
			head, _ := unpackPair(pair)
			if w.hdr.pair().CompareAndSwap(pair, packPair(head, offset)) {
				return offset, sh.payload(uint32(need))[:size:size]
			}
		}
		// The consumer may have emptied the wheel (valid -> InvalidPair)
		// between our snapshot and this compare-exchange. Reload and, if
		// so, fall back to the empty-wheel branch with the offset we
		// already chose -- it is still correct, since the consumer only
		// ever shrinks the in-use region, never grows it past what we
		// assumed when we chose offset.
		pair = w.hdr.pair().Load()
	}
}

// Publish marks offset readable, release-ordered: after this call the
// consumer may observe the payload written into the slice returned by
// Allocate.
func (w *Spin) Publish(offset Offset) {
	w.sliceAt(offset).state().Store(uint8(SliceReadable))
}

// Peek returns the oldest not-yet-returned readable slice's offset and
// payload, or InvalidOffset and nil if the head of the chain is empty or
// not yet published. It is idempotent: repeated calls without an
// intervening Return yield the same slice.
func (w *Spin) Peek() (Offset, []byte) {
	packed := w.hdr.pair().Load()
	if packed == InvalidPair {
		return InvalidOffset, nil
	}
	head, _ := unpackPair(packed)
	sh := w.sliceAt(head)
	if SliceState(sh.state().Load()) != SliceReadable {
		return InvalidOffset, nil
	}
	units := sh.wheelUnits().Load()
	size := sh.userSize()
	return head, sh.payload(units)[:size:size]
}

// Return marks offset returned and then advances head past any prefix of
// the chain whose slices are all returned -- ordinarily a single slice, but
// the loop tolerates an out-of-order returned prefix for a possible future
// multi-producer/multi-consumer mode (untested; see DESIGN.md). It returns
// the number of slices reclaimed, zero if offset had already been returned.
func (w *Spin) Return(offset Offset) int {
	sh := w.sliceAt(offset)
	if SliceState(sh.state().Swap(uint8(SliceReturned))) == SliceReturned {
		return 0
	}

	alignedSize := Offset(w.hdr.alignedSize())
	returns := 0
	for {
		packed := w.hdr.pair().Load()
		if packed == InvalidPair {
			return returns
		}
		head, last := unpackPair(packed)
		headSlice := w.sliceAt(head)
		if SliceState(headSlice.state().Load()) != SliceReturned {
			return returns
		}

		if head == last {
			if w.hdr.pair().CompareAndSwap(packed, InvalidPair) {
				returns++
			}
			continue
		}

		units := headSlice.wheelUnits().Load()
		nextHead := Offset((uint64(head) + uint64(units)) % uint64(alignedSize))
		w.hdr.storeHead(nextHead)
		returns++
	}
}
