package loop_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-loop/loop"
)

func newTestLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l, err := loop.New()
	require.NoError(t, err)
	return l
}

func TestTimerFiresOnceAndLoopExits(t *testing.T) {
	l := newTestLoop(t)
	fired := 0
	timer := loop.NewTimer(l)
	start := time.Now()
	require.NoError(t, timer.Start(50, 0, func(tm *loop.Timer) {
		fired++
		tm.Close(nil)
	}))

	rc := l.Run(loop.RunDefault)
	elapsed := time.Since(start)

	require.Equal(t, 0, rc)
	require.Equal(t, 1, fired)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	require.NoError(t, l.Close())
}

func TestRepeatingTimerIntervals(t *testing.T) {
	l := newTestLoop(t)
	var stamps []time.Time
	timer := loop.NewTimer(l)
	require.NoError(t, timer.Start(10, 20, func(tm *loop.Timer) {
		stamps = append(stamps, time.Now())
		if len(stamps) == 4 {
			tm.Close(nil)
		}
	}))

	l.Run(loop.RunDefault)
	require.Len(t, stamps, 4)
	for i := 1; i < len(stamps); i++ {
		require.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 20*time.Millisecond)
	}
	require.NoError(t, l.Close())
}

func TestZeroTimeoutTimerFiresNextIteration(t *testing.T) {
	l := newTestLoop(t)
	iteration := 0
	prep := loop.NewPrepare(l)
	require.NoError(t, prep.Start(func(*loop.Prepare) { iteration++ }))

	firstIter, secondIter := 0, 0
	inner := loop.NewTimer(l)
	outer := loop.NewTimer(l)
	require.NoError(t, outer.Start(10, 0, func(tm *loop.Timer) {
		firstIter = iteration
		require.NoError(t, inner.Start(0, 0, func(tm2 *loop.Timer) {
			secondIter = iteration
			tm2.Close(nil)
			prep.Close(nil)
		}))
		tm.Close(nil)
	}))

	l.Run(loop.RunDefault)
	require.Greater(t, secondIter, firstIter, "zero-timeout timer must not fire in the iteration that armed it")
	require.NoError(t, l.Close())
}

func TestTimerStopInsideCallbackCancelsRepeat(t *testing.T) {
	l := newTestLoop(t)
	fired := 0
	timer := loop.NewTimer(l)
	require.NoError(t, timer.Start(5, 5, func(tm *loop.Timer) {
		fired++
		tm.Stop()
		tm.Close(nil)
	}))
	l.Run(loop.RunDefault)
	require.Equal(t, 1, fired)
	require.NoError(t, l.Close())
}

func TestTimerAgain(t *testing.T) {
	l := newTestLoop(t)
	timer := loop.NewTimer(l)
	require.Error(t, timer.Again(), "never started")

	fired := 0
	require.NoError(t, timer.Start(5, 10, func(tm *loop.Timer) {
		fired++
		if fired == 2 {
			tm.Close(nil)
		}
	}))
	require.NoError(t, timer.Again())
	l.Run(loop.RunDefault)
	require.Equal(t, 2, fired)
	require.NoError(t, l.Close())
}

func TestTimerStartValidation(t *testing.T) {
	l := newTestLoop(t)
	timer := loop.NewTimer(l)
	require.Error(t, timer.Start(10, 0, nil))
	require.Error(t, timer.Start(-1, 0, func(*loop.Timer) {}))
	timer.Close(nil)
	require.Error(t, timer.Start(10, 0, func(*loop.Timer) {}))
	l.Run(loop.RunDefault)
	require.NoError(t, l.Close())
}
