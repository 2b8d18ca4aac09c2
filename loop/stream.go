// File: loop/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral stream surface: callback shapes and the request records
// shared by the readiness and completion engines. Completion callbacks are
// deferred through the loop's pending queue so they never run re-entrantly
// inside the submitting call; teardown delivers them inline instead, on the
// iteration that requested the close.

package loop

// AllocCallback returns a buffer for the next read. The suggested size is a
// hint; returning a smaller or larger buffer is fine.
type AllocCallback func(suggested int) []byte

// ReadCallback delivers read data. err is api.EOF at end of stream, nil on
// data, or a portable error. buf is nil unless err is nil.
type ReadCallback func(buf []byte, err error)

// ConnectionCallback announces an incoming connection on a listener, or
// ECANCELED for peers discarded when the listener closes.
type ConnectionCallback func(err error)

// WriteReq tracks one queued write. Buffers complete in submission order;
// partial progress is tracked by (idx, off) into bufs.
type WriteReq struct {
	Request
	s    *Stream
	bufs [][]byte
	idx  int
	off  int
	cb   func(error)
}

// Stream returns the stream the write was submitted to.
func (r *WriteReq) Stream() *Stream { return r.s }

func (r *WriteReq) finishNow(err error) {
	r.unregister()
	if r.cb != nil {
		r.cb(err)
	}
}

func (r *WriteReq) finish(err error) {
	r.loop.queuePending(func() { r.finishNow(err) })
}

// advance consumes n written bytes, reporting completion.
func (r *WriteReq) advance(n int) bool {
	for n > 0 {
		left := len(r.bufs[r.idx]) - r.off
		if n < left {
			r.off += n
			return false
		}
		n -= left
		r.idx++
		r.off = 0
	}
	return r.idx == len(r.bufs)
}

// remaining counts unwritten bytes.
func (r *WriteReq) remaining() int {
	n := len(r.bufs[r.idx]) - r.off
	for _, b := range r.bufs[r.idx+1:] {
		n += len(b)
	}
	return n
}

// ShutdownReq tracks a pending write-side half-close.
type ShutdownReq struct {
	Request
	s  *Stream
	cb func(error)
}

func (r *ShutdownReq) finishNow(err error) {
	r.unregister()
	if r.cb != nil {
		r.cb(err)
	}
}

func (r *ShutdownReq) finish(err error) {
	r.loop.queuePending(func() { r.finishNow(err) })
}

// ConnectReq tracks a pending outbound connection.
type ConnectReq struct {
	Request
	s  *Stream
	cb func(error)
}

func (r *ConnectReq) finishNow(err error) {
	r.unregister()
	if r.cb != nil {
		r.cb(err)
	}
}

func (r *ConnectReq) finish(err error) {
	r.loop.queuePending(func() { r.finishNow(err) })
}

// readBufferSize is the allocation hint handed to alloc callbacks.
const readBufferSize = 64 * 1024

// defaultPendingInstances is the advisory pre-post depth for completion-model
// listeners; readiness backends accept but ignore it.
const defaultPendingInstances = 4
