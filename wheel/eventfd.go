package wheel

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// eventfdFlags are the flags every event descriptor in this layer is
// created with: non-blocking (the wheel never wants to block a syscall on
// them), close-on-exec, and counting-semaphore mode. Semaphore mode is what
// lets the +1/-1 operations issued from opposite ends of the wheel
// accumulate in any order without losing a wakeup; see EventfdWheel's doc
// comment for the race it closes.
const eventfdFlags = unix.EFD_NONBLOCK | unix.EFD_CLOEXEC | unix.EFD_SEMAPHORE

// writableInitialTokens is pushed onto the writable_fd's counter at
// construction to represent "plenty of room". eventfd(2)'s initval
// parameter is a 32-bit unsigned int, too narrow to express "writable" as a
// single huge token count directly, so construction creates the descriptor
// at 0 and then writes this value in one shot.
const writableInitialTokens = uint64(1) << 62

// EventfdWheel adds two counting-semaphore event descriptors and two
// shared is_readable/is_writable flags on top of a Spin, so producer and
// consumer can block or poll instead of busy-waiting.
//
// Race this closes: a consumer observes an empty wheel, flips is_readable
// 1->0 via exchange, and then must drain readable_fd. Between those two
// steps the producer can publish a slice, observe is_readable 0->1, and
// write readable_fd. Without an accumulating counter, the producer's write
// and the consumer's drain would race and one could be lost; counting
// semaphore mode serializes their effects on the descriptor instead.
//
// Caveat (documented, not fixed): if a producer requests a slice larger
// than the wheel can ever hold, Allocate will repeatedly fail, latch
// is_writable to 0, and never be revived -- the consumer has nothing to
// Return. Size requests to fit; this is not detected or recovered from.
type EventfdWheel struct {
	spin *Spin
	hdr  header

	readableFD int
	writableFD int
}

// NewEventfd installs a fresh eventfd-layer header into buf (the spin
// header plus is_readable=0, is_writable=1) and creates both event
// descriptors locally. This is the producer side of construction; ship the
// resulting descriptors to the peer with wheel/scm and have it call
// OpenEventfd with the descriptors it received.
func NewEventfd(buf []byte) (*EventfdWheel, error) {
	spin, err := NewSpin(buf)
	if err != nil {
		return nil, err
	}
	hdr := headerAt(buf)
	hdr.isReadable().Store(0)
	hdr.isWritable().Store(1)

	readableFD, writableFD, err := createEventfds(0)
	if err != nil {
		return nil, &InitError{Op: "wheel.NewEventfd", Err: err}
	}

	return &EventfdWheel{spin: spin, hdr: hdr, readableFD: readableFD, writableFD: writableFD}, nil
}

// OpenEventfd wraps a region whose eventfd-layer header the peer already
// installed, pairing it with the two event descriptors received over the
// handshake (in the order {readableFD, writableFD}).
func OpenEventfd(buf []byte, readableFD, writableFD int) (*EventfdWheel, error) {
	spin, err := OpenSpin(buf)
	if err != nil {
		return nil, err
	}
	return &EventfdWheel{spin: spin, hdr: headerAt(buf), readableFD: readableFD, writableFD: writableFD}, nil
}

// createEventfds creates the readable/writable descriptor pair for a fresh
// header, given is_readable's initial value (always 0 at construction).
func createEventfds(initialIsReadable uint32) (readableFD, writableFD int, err error) {
	readableFD, err = unix.Eventfd(initialIsReadable, eventfdFlags)
	if err != nil {
		return -1, -1, err
	}

	writableFD, err = unix.Eventfd(0, eventfdFlags)
	if err != nil {
		unix.Close(readableFD)
		return -1, -1, err
	}

	if err := writeEventfd(writableFD, writableInitialTokens); err != nil {
		unix.Close(writableFD)
		unix.Close(readableFD)
		return -1, -1, err
	}

	return readableFD, writableFD, nil
}

// FDs returns the two event descriptors so the caller can send them to the
// peer over wheel/scm, or poll them in its own event loop.
func (e *EventfdWheel) FDs() (readableFD, writableFD int) {
	return e.readableFD, e.writableFD
}

// Close closes both event descriptors. It does not unmap or otherwise
// touch the shared region.
func (e *EventfdWheel) Close() error {
	err1 := unix.Close(e.readableFD)
	err2 := unix.Close(e.writableFD)
	if err1 != nil {
		return err1
	}
	return err2
}

func writeEventfd(fd int, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	for {
		_, err := unix.Write(fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

func readEventfd(fd int) error {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// Allocate behaves like Spin.Allocate. If it fails and is_writable was
// signalled, it clears is_writable and writes 1 to writable_fd.
// Any syscall failure on that path is recorded (see LastEventfdError) but
// never changes the offset this returns.
func (e *EventfdWheel) Allocate(size int) (Offset, []byte) {
	offset, buf := e.spin.Allocate(size)
	if offset == InvalidOffset {
		if e.hdr.isWritable().Swap(0) == 1 {
			setLastEventfdError(writeEventfd(e.writableFD, 1))
		}
	}
	return offset, buf
}

// Publish behaves like Spin.Publish. If is_readable was unset, it sets it
// and adds a token to readable_fd.
func (e *EventfdWheel) Publish(offset Offset) {
	e.spin.Publish(offset)
	if e.hdr.isReadable().Swap(1) == 0 {
		setLastEventfdError(writeEventfd(e.readableFD, 1))
	}
}

// Peek behaves like Spin.Peek. If it fails and is_readable was set, it
// clears is_readable and drains a token from readable_fd.
func (e *EventfdWheel) Peek() (Offset, []byte) {
	offset, buf := e.spin.Peek()
	if offset == InvalidOffset {
		if e.hdr.isReadable().Swap(0) == 1 {
			setLastEventfdError(readEventfd(e.readableFD))
		}
	}
	return offset, buf
}

// Return behaves like Spin.Return. Whether or not it reclaimed any slice, if
// is_writable was unset it sets is_writable and drains a token from
// writable_fd, re-signalling room for the producer.
func (e *EventfdWheel) Return(offset Offset) int {
	n := e.spin.Return(offset)
	if e.hdr.isWritable().Swap(1) == 0 {
		setLastEventfdError(readEventfd(e.writableFD))
	}
	return n
}
