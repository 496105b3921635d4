package grabber

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhpc/hhpc/pkg/pointer"
	"github.com/hhpc/hhpc/pkg/pointer/pointertest"
)

const testBackoff = 20 * time.Millisecond

func TestClassify(t *testing.T) {
	tests := []struct {
		status   pointer.GrabStatus
		expected Outcome
	}{
		{pointer.GrabSuccess, Granted},
		{pointer.AlreadyGrabbed, Retryable},
		{pointer.Frozen, Retryable},
		{pointer.NotViewable, Fatal},
		{pointer.InvalidTime, Fatal},
		{pointer.GrabStatus(99), Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.status))
		})
	}
}

func TestAcquireImmediateSuccess(t *testing.T) {
	dev := pointertest.New()
	g := New(dev, WithBackoff(testBackoff))

	h, err := g.Acquire(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, h)

	assert.True(t, h.Held())
	assert.True(t, dev.Grabbed())
	assert.Equal(t, 1, dev.LiveCursors())
	assert.Equal(t, Stats{Attempts: 1, Granted: 1}, g.Stats())
}

func TestAcquireRetriesContention(t *testing.T) {
	tests := []struct {
		name   string
		script []pointer.GrabStatus
	}{
		{"already grabbed twice", []pointer.GrabStatus{pointer.AlreadyGrabbed, pointer.AlreadyGrabbed, pointer.GrabSuccess}},
		{"frozen then grabbed", []pointer.GrabStatus{pointer.Frozen, pointer.AlreadyGrabbed, pointer.GrabSuccess}},
		{"single frozen", []pointer.GrabStatus{pointer.Frozen, pointer.GrabSuccess}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := pointertest.New(tt.script...)
			g := New(dev, WithBackoff(testBackoff))

			h, err := g.Acquire(context.Background(), 1)
			require.NoError(t, err)
			assert.True(t, h.Held())

			contention := len(tt.script) - 1
			assert.Equal(t, contention, g.Stats().Retries)
			assert.Equal(t, len(tt.script), dev.GrabCalls())
			assert.Equal(t, 1, dev.LiveCursors(), "one cursor reused across retries")
		})
	}
}

func TestAcquireFatalNoRetry(t *testing.T) {
	for _, status := range []pointer.GrabStatus{pointer.NotViewable, pointer.InvalidTime, pointer.GrabStatus(17)} {
		t.Run(status.String(), func(t *testing.T) {
			dev := pointertest.New(status, pointer.GrabSuccess)
			g := New(dev, WithBackoff(time.Second))

			start := time.Now()
			h, err := g.Acquire(context.Background(), 1)
			elapsed := time.Since(start)

			assert.Nil(t, h)
			var grabErr *GrabError
			require.True(t, errors.As(err, &grabErr))
			assert.Equal(t, status, grabErr.Status)
			assert.Contains(t, err.Error(), status.String())

			assert.Equal(t, 1, dev.GrabCalls())
			assert.Equal(t, 0, g.Stats().Retries)
			assert.Less(t, elapsed, 500*time.Millisecond, "no backoff on fatal rejection")
			assert.Equal(t, 0, dev.LiveCursors(), "cursor freed on failure")
		})
	}
}

func TestAcquireCancelledDuringBackoff(t *testing.T) {
	dev := pointertest.New(pointer.AlreadyGrabbed)
	g := New(dev, WithBackoff(500*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	h, err := g.Acquire(ctx, 1)
	elapsed := time.Since(start)

	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Less(t, elapsed, 500*time.Millisecond, "returns within one backoff interval")
	assert.Equal(t, 1, dev.GrabCalls())
	assert.Equal(t, 0, dev.LiveCursors())
}

func TestAcquireAlreadyCancelled(t *testing.T) {
	dev := pointertest.New()
	g := New(dev)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Acquire(ctx, 1)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, dev.GrabCalls())
	assert.Equal(t, 0, dev.LiveCursors())
}

func TestAcquireRequestError(t *testing.T) {
	dev := pointertest.New()
	dev.SetGrabError(errors.New("connection reset"))
	g := New(dev)

	_, err := g.Acquire(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 0, dev.LiveCursors())
}

func TestAcquireCursorError(t *testing.T) {
	dev := pointertest.New()
	dev.SetCursorError(errors.New("bad drawable"))
	g := New(dev)

	_, err := g.Acquire(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, 0, dev.GrabCalls())
}

func TestRetryCadence(t *testing.T) {
	dev := pointertest.New(pointer.AlreadyGrabbed)
	g := New(dev, WithBackoff(50*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 275*time.Millisecond)
	defer cancel()

	_, err := g.Acquire(ctx, 1)
	assert.ErrorIs(t, err, ErrCancelled)

	// 275ms / 50ms gives 5 full retries, plus the first attempt
	calls := dev.GrabCalls()
	assert.InDelta(t, 6, calls, 1)

	times := dev.GrabTimes()
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), 50*time.Millisecond)
	}
}

func TestHandleReleaseIdempotent(t *testing.T) {
	dev := pointertest.New()
	g := New(dev)

	h, err := g.Acquire(context.Background(), 1)
	require.NoError(t, err)

	require.NoError(t, h.Release())
	assert.False(t, h.Held())
	assert.False(t, dev.Grabbed())
	assert.Equal(t, 1, dev.Ungrabs())
	assert.Equal(t, 1, dev.FreedCursors())

	assert.NoError(t, h.Release())
	assert.Equal(t, 1, dev.Ungrabs(), "second release has no effect")
	assert.Equal(t, 1, dev.FreedCursors(), "cursor is not freed twice")
}

func TestHandleReleaseErrors(t *testing.T) {
	dev := pointertest.New()
	g := New(dev)

	h, err := g.Acquire(context.Background(), 1)
	require.NoError(t, err)

	dev.SetUngrabError(errors.New("bad access"))
	err = h.Release()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ungrab")
	assert.Equal(t, 1, dev.FreedCursors(), "cursor freed even when ungrab fails")
	assert.False(t, h.Held())
}
