package pool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-loop/pool"
)

func TestRingFIFO(t *testing.T) {
	r := pool.NewRing[int](3)
	require.True(t, r.Push(1))
	require.True(t, r.Push(2))
	require.True(t, r.Push(3))
	require.False(t, r.Push(4), "full ring rejects")
	require.Equal(t, 3, r.Len())

	v, ok := r.Pop()
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.True(t, r.Push(4))

	for _, want := range []int{2, 3, 4} {
		v, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, want, v)
	}
	_, ok = r.Pop()
	require.False(t, ok)
}

func TestRingZeroCapacityClamped(t *testing.T) {
	r := pool.NewRing[string](0)
	require.Equal(t, 1, r.Cap())
}
