package loop_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-loop/loop"
)

func TestAsyncSendFromBackgroundGoroutine(t *testing.T) {
	l := newTestLoop(t)
	var calls int
	a, err := loop.NewAsync(l, func(a *loop.Async) {
		calls++
		a.Close(nil)
	})
	require.NoError(t, err)

	go func() {
		require.NoError(t, a.Send())
	}()

	l.Run(loop.RunDefault)
	require.Equal(t, 1, calls)
	require.NoError(t, l.Close())
}

func TestAsyncCoalescesRepeatedSends(t *testing.T) {
	const sends = 1_000_000
	l := newTestLoop(t)

	var invocations int64
	var producerDone int32
	handle, err := loop.NewAsync(l, func(x *loop.Async) {
		atomic.AddInt64(&invocations, 1)
		if atomic.LoadInt32(&producerDone) == 1 {
			x.Close(nil)
		}
	})
	require.NoError(t, err)

	go func() {
		for i := 0; i < sends; i++ {
			handle.Send()
		}
		atomic.StoreInt32(&producerDone, 1)
		handle.Send()
	}()

	l.Run(loop.RunDefault)

	n := atomic.LoadInt64(&invocations)
	require.GreaterOrEqual(t, n, int64(1))
	require.LessOrEqual(t, n, int64(sends+1))
	require.NoError(t, l.Close())
}

func TestAsyncSendAfterCloseFails(t *testing.T) {
	l := newTestLoop(t)
	a, err := loop.NewAsync(l, func(*loop.Async) {})
	require.NoError(t, err)
	a.Close(nil)
	require.Error(t, a.Send())
	l.Run(loop.RunDefault)
	require.NoError(t, l.Close())
}

func TestAsyncRequiresCallback(t *testing.T) {
	l := newTestLoop(t)
	_, err := loop.NewAsync(l, nil)
	require.Error(t, err)
	require.NoError(t, l.Close())
}
