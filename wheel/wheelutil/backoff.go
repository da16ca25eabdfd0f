// Package wheelutil provides blocking convenience wrappers around the
// non-blocking wheel core. The core itself has no suspension points by
// design (see spec.md section 5); these wrappers are sugar for a caller
// that would otherwise busy-wait in a tight loop.
package wheelutil

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sqwishy/memorywheel/wheel"
)

// newSpinBackoff builds the exponential backoff schedule used by every
// blocking wrapper in this package, matching the retry policy the pack
// uses for its own reconnect loop: a short initial interval growing
// geometrically up to a one-minute ceiling.
func newSpinBackoff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         time.Minute,
	}
	b.Reset()
	return b
}

// BlockingAllocate retries w.Allocate(size) with exponential backoff until
// it succeeds or ctx is done. It returns wheel.InvalidOffset and ctx.Err()
// on cancellation.
func BlockingAllocate(ctx context.Context, w interface {
	Allocate(size int) (wheel.Offset, []byte)
}, size int) (wheel.Offset, []byte, error) {
	b := newSpinBackoff()
	for {
		if offset, buf := w.Allocate(size); offset != wheel.InvalidOffset {
			return offset, buf, nil
		}
		if err := sleepBackoff(ctx, b); err != nil {
			return wheel.InvalidOffset, nil, err
		}
	}
}

// BlockingPeek retries w.Peek() with exponential backoff until a slice is
// readable or ctx is done.
func BlockingPeek(ctx context.Context, w interface {
	Peek() (wheel.Offset, []byte)
}) (wheel.Offset, []byte, error) {
	b := newSpinBackoff()
	for {
		if offset, buf := w.Peek(); offset != wheel.InvalidOffset {
			return offset, buf, nil
		}
		if err := sleepBackoff(ctx, b); err != nil {
			return wheel.InvalidOffset, nil, err
		}
	}
}

func sleepBackoff(ctx context.Context, b *backoff.ExponentialBackOff) error {
	timer := time.NewTimer(b.NextBackOff())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
