package wheelutil_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqwishy/memorywheel/wheel"
	"github.com/sqwishy/memorywheel/wheel/wheelutil"
)

func TestBlockingAllocateSucceedsImmediatelyWhenRoomExists(t *testing.T) {
	w, err := wheel.NewSpin(make([]byte, 256))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	offset, buf, err := wheelutil.BlockingAllocate(ctx, w, 16)
	require.NoError(t, err)
	assert.NotEqual(t, wheel.InvalidOffset, offset)
	assert.Len(t, buf, 16)
}

func TestBlockingAllocateRetriesUntilRoomFrees(t *testing.T) {
	w, err := wheel.NewSpin(make([]byte, 256)) // 3 usable quanta
	require.NoError(t, err)

	var offsets []wheel.Offset
	for i := 0; i < 3; i++ {
		offset, buf := w.Allocate(16)
		require.NotEqual(t, wheel.InvalidOffset, offset)
		_ = buf
		w.Publish(offset)
		offsets = append(offsets, offset)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		w.Return(offsets[0])
	}()

	offset, buf, err := wheelutil.BlockingAllocate(ctx, w, 16)
	require.NoError(t, err)
	assert.Equal(t, offsets[0], offset)
	assert.Len(t, buf, 16)
}

func TestBlockingAllocateRespectsCancellation(t *testing.T) {
	w, err := wheel.NewSpin(make([]byte, 128)) // 1 usable quantum
	require.NoError(t, err)

	offset, buf := w.Allocate(16)
	require.NotEqual(t, wheel.InvalidOffset, offset)
	_ = buf
	w.Publish(offset)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err = wheelutil.BlockingAllocate(ctx, w, 16)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBlockingPeekRetriesUntilPublished(t *testing.T) {
	w, err := wheel.NewSpin(make([]byte, 256))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		offset, buf := w.Allocate(16)
		copy(buf, []byte("0123456789123456"))
		w.Publish(offset)
	}()

	offset, buf, err := wheelutil.BlockingPeek(ctx, w)
	require.NoError(t, err)
	assert.NotEqual(t, wheel.InvalidOffset, offset)
	assert.NotNil(t, buf)
}
