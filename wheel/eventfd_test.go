package wheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func mustReadEventfdValue(t *testing.T, fd int) uint64 {
	t.Helper()
	var buf [8]byte
	n, err := unix.Read(fd, buf[:])
	require.NoError(t, err)
	require.Equal(t, 8, n)
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

func newEventfdWheel(t *testing.T, size int) *EventfdWheel {
	t.Helper()
	w, err := NewEventfd(make([]byte, size))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestEventfdInitialFlags(t *testing.T) {
	w := newEventfdWheel(t, 256)
	assert.Equal(t, uint8(0), w.hdr.isReadable().Load())
	assert.Equal(t, uint8(1), w.hdr.isWritable().Load())
}

// Publish signals readable_fd exactly once across consecutive publishes,
// matching the edge-triggered accounting the spec assigns to is_readable.
func TestEventfdPublishSignalsReadableOnce(t *testing.T) {
	w := newEventfdWheel(t, 256)

	a, bufA := w.Allocate(16)
	require.NotEqual(t, InvalidOffset, a)
	_ = bufA
	w.Publish(a)
	assert.Equal(t, uint8(1), w.hdr.isReadable().Load())

	b, bufB := w.Allocate(16)
	require.NotEqual(t, InvalidOffset, b)
	_ = bufB
	w.Publish(b)

	readableFD, _ := w.FDs()
	// Only one token should have accumulated: the second Publish saw
	// is_readable already 1 and did not write again.
	assert.Equal(t, uint64(1), mustReadEventfdValue(t, readableFD))
	// In semaphore mode each read takes one token, so a second read must
	// find the counter empty.
	var extra [8]byte
	_, err := unix.Read(readableFD, extra[:])
	assert.ErrorIs(t, err, unix.EAGAIN)
}

// Peek clears is_readable and drains readable_fd once the wheel empties.
func TestEventfdPeekClearsReadableWhenEmpty(t *testing.T) {
	w := newEventfdWheel(t, 256)

	offset, buf := w.Allocate(16)
	require.NotEqual(t, InvalidOffset, offset)
	_ = buf
	w.Publish(offset)
	require.Equal(t, uint8(1), w.hdr.isReadable().Load())

	got, payload := w.Peek()
	require.Equal(t, offset, got)
	assert.NotNil(t, payload)
	assert.Equal(t, uint8(1), w.hdr.isReadable().Load(), "wheel still has the slice; is_readable stays set")

	w.Return(offset)
	emptyOffset, emptyBuf := w.Peek()
	assert.Equal(t, InvalidOffset, emptyOffset)
	assert.Nil(t, emptyBuf)
	assert.Equal(t, uint8(0), w.hdr.isReadable().Load())
}

// Allocate clears is_writable and signals writable_fd once the wheel fills.
func TestEventfdAllocateClearsWritableWhenFull(t *testing.T) {
	w := newEventfdWheel(t, 256) // 3 usable quanta

	for i := 0; i < 3; i++ {
		offset, buf := w.Allocate(16)
		require.NotEqual(t, InvalidOffset, offset, "allocate #%d", i)
		_ = buf
		w.Publish(offset)
		assert.Equal(t, uint8(1), w.hdr.isWritable().Load())
	}

	offset, buf := w.Allocate(16)
	assert.Equal(t, InvalidOffset, offset)
	assert.Nil(t, buf)
	assert.Equal(t, uint8(0), w.hdr.isWritable().Load())
}

// Return unconditionally re-signals writable regardless of whether it
// reclaimed any slices, matching the original's unconditional exchange.
func TestEventfdReturnAlwaysSignalsWritable(t *testing.T) {
	w := newEventfdWheel(t, 256)

	offset, buf := w.Allocate(16)
	require.NotEqual(t, InvalidOffset, offset)
	_ = buf
	w.Publish(offset)

	w.hdr.isWritable().Store(0) // simulate a prior Allocate having cleared it
	n := w.Return(offset)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint8(1), w.hdr.isWritable().Load())

	w.hdr.isWritable().Store(0)
	n = w.Return(offset) // already returned: reclaims nothing
	assert.Equal(t, 0, n)
	assert.Equal(t, uint8(1), w.hdr.isWritable().Load())
}

func TestOpenEventfdSeesPeerHeader(t *testing.T) {
	buf := make([]byte, 256)
	producer, err := NewEventfd(buf)
	require.NoError(t, err)
	defer producer.Close()
	readableFD, writableFD := producer.FDs()

	consumer, err := OpenEventfd(buf, readableFD, writableFD)
	require.NoError(t, err)

	offset, payload := producer.Allocate(16)
	require.NotEqual(t, InvalidOffset, offset)
	_ = payload
	producer.Publish(offset)

	got, consumerPayload := consumer.Peek()
	require.Equal(t, offset, got)
	assert.NotNil(t, consumerPayload)
}
