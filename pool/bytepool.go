// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"math/bits"
	"sync"
)

// maxClassBits caps pooled buffers at 64 KiB; larger requests allocate directly.
const (
	minClassBits = 9 // 512 B
	maxClassBits = 16
)

// BytePool hands out byte buffers in power-of-two size classes.
type BytePool struct {
	classes [maxClassBits - minClassBits + 1]sync.Pool
}

// NewBytePool creates an empty pool.
func NewBytePool() *BytePool {
	p := &BytePool{}
	for i := range p.classes {
		size := 1 << (minClassBits + i)
		p.classes[i].New = func() any {
			return make([]byte, size)
		}
	}
	return p
}

func classFor(size int) int {
	if size <= 1<<minClassBits {
		return 0
	}
	c := bits.Len(uint(size - 1))
	if c > maxClassBits {
		return -1
	}
	return c - minClassBits
}

// Get returns a buffer with len >= size. Requests above the largest class
// are allocated directly and never pooled.
func (p *BytePool) Get(size int) []byte {
	c := classFor(size)
	if c < 0 {
		return make([]byte, size)
	}
	return p.classes[c].Get().([]byte)
}

// Put recycles a buffer obtained from Get. Foreign or oversized buffers are
// dropped for the GC.
func (p *BytePool) Put(buf []byte) {
	n := cap(buf)
	if n == 0 || n&(n-1) != 0 {
		return
	}
	c := classFor(n)
	if c < 0 || 1<<(c+minClassBits) != n {
		return
	}
	p.classes[c].Put(buf[:n]) //nolint:staticcheck
}

var defaultPool = NewBytePool()

// Default returns the shared pool used by stream reads.
func Default() *BytePool { return defaultPool }
