// File: loop/async.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Async is the only thread-safe signalling primitive. Send flips an atomic
// pending flag and kicks the poller's wakeup; any number of Sends between two
// loop iterations coalesce into a single callback invocation on the loop
// goroutine.

package loop

import (
	"sync/atomic"

	"github.com/momentics/hioload-loop/api"
)

// Async delivers cross-thread signals to the loop goroutine.
type Async struct {
	Handle
	cb      func(*Async)
	pending int32
	closed  int32 // atomic mirror of the closing flag, readable off-loop
}

// NewAsync initializes an async handle bound to l. The handle is active from
// creation and keeps the loop alive until closed or unref'd.
func NewAsync(l *Loop, cb func(*Async)) (*Async, error) {
	if cb == nil {
		return nil, api.EINVAL
	}
	a := &Async{cb: cb}
	a.Handle.init(l, KindAsync, a.teardown)
	l.asyncs = append(l.asyncs, a)
	a.start()
	return a, nil
}

// Send requests one callback invocation on the loop goroutine. It is safe to
// call from any goroutine, never blocks, and coalesces with other pending
// sends. The callback runs after the current poll phase returns.
func (a *Async) Send() error {
	if atomic.LoadInt32(&a.closed) != 0 {
		return api.EINVAL
	}
	if !atomic.CompareAndSwapInt32(&a.pending, 0, 1) {
		return nil
	}
	return a.loop.poller.Wake()
}

func (a *Async) teardown() {
	atomic.StoreInt32(&a.closed, 1)
	a.loop.asyncs = removeFrom(a.loop.asyncs, a)
	atomic.StoreInt32(&a.pending, 0)
}
