// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer pooling for the stream read path and small fixed rings for
// completion-model accept bookkeeping. The byte pool is size-classed over
// sync.Pool; streams draw read buffers from the shared default pool unless
// the caller installs its own allocator.
package pool
