package loop_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/loop"
)

func TestWorkPoolBoundedParallelism(t *testing.T) {
	const jobs = 100
	const poolSize = 4

	l, err := loop.NewWithConfig(loop.Config{WorkPoolSize: poolSize})
	require.NoError(t, err)

	var running, peak int32
	done := 0
	start := time.Now()
	for i := 0; i < jobs; i++ {
		_, err := l.QueueWork(func() {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		}, func(err error) {
			require.NoError(t, err)
			done++
		})
		require.NoError(t, err)
	}

	require.Equal(t, 0, l.Run(loop.RunDefault))
	elapsed := time.Since(start)

	require.Equal(t, jobs, done, "every completion delivered exactly once")
	require.GreaterOrEqual(t, elapsed, 250*time.Millisecond, "100 x 10ms on 4 workers")
	require.LessOrEqual(t, atomic.LoadInt32(&peak), int32(poolSize), "no more than pool-size jobs run concurrently")
	require.NoError(t, l.Close())
}

func TestWorkCancelQueuedJob(t *testing.T) {
	l, err := loop.NewWithConfig(loop.Config{WorkPoolSize: 1})
	require.NoError(t, err)

	blocker := make(chan struct{})
	var order []string

	_, err = l.QueueWork(func() { <-blocker }, func(err error) {
		require.NoError(t, err)
		order = append(order, "blocker")
	})
	require.NoError(t, err)

	victim, err := l.QueueWork(func() {
		t.Error("cancelled work must not run")
	}, func(err error) {
		require.Equal(t, api.ECANCELED, err)
		order = append(order, "cancelled")
	})
	require.NoError(t, err)

	require.NoError(t, victim.Cancel())
	require.Error(t, victim.Cancel(), "double cancel fails")
	close(blocker)

	l.Run(loop.RunDefault)
	require.Equal(t, []string{"cancelled", "blocker"}, order)
	require.NoError(t, l.Close())
}

func TestWorkKeepsLoopAlive(t *testing.T) {
	l := newTestLoop(t)
	ran := false
	_, err := l.QueueWork(func() {
		time.Sleep(20 * time.Millisecond)
	}, func(err error) {
		require.NoError(t, err)
		ran = true
	})
	require.NoError(t, err)
	require.True(t, l.Alive())
	require.Equal(t, 0, l.Run(loop.RunDefault))
	require.True(t, ran)
	require.NoError(t, l.Close())
}

func TestQueueWorkValidation(t *testing.T) {
	l := newTestLoop(t)
	_, err := l.QueueWork(nil, func(error) {})
	require.Error(t, err)
	_, err = l.QueueWork(func() {}, nil)
	require.Error(t, err)
	require.NoError(t, l.Close())
}
