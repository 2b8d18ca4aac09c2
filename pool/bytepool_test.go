package pool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-loop/pool"
)

func TestBytePoolSizesAndReuse(t *testing.T) {
	p := pool.NewBytePool()
	b := p.Get(100)
	require.GreaterOrEqual(t, len(b), 100)
	p.Put(b)

	b2 := p.Get(64)
	require.GreaterOrEqual(t, len(b2), 64)
}

func TestBytePoolLargeRequestsBypass(t *testing.T) {
	p := pool.NewBytePool()
	b := p.Get(1 << 20)
	require.Equal(t, 1<<20, len(b))
	p.Put(b) // dropped, not pooled; must not panic
}

func TestBytePoolForeignBufferDropped(t *testing.T) {
	p := pool.NewBytePool()
	p.Put(make([]byte, 100)) // non power-of-two cap; dropped
	p.Put(nil)
}

func TestDefaultPoolShared(t *testing.T) {
	require.Same(t, pool.Default(), pool.Default())
	b := pool.Default().Get(64 * 1024)
	require.Equal(t, 64*1024, len(b))
	pool.Default().Put(b)
}
