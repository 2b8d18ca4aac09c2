// File: loop/work.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Work requests bridge the worker pool back into the loop: the blocking
// function runs on a pool worker, the after-callback runs on the loop
// goroutine in completion order.

package loop

import (
	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/workpool"
)

// WorkReq tracks one blocking job submitted to the loop's worker pool.
type WorkReq struct {
	Request
	task  *workpool.Task
	after func(err error)
}

// QueueWork runs work on the loop's pool and delivers after(err) on the loop
// goroutine exactly once. err is ECANCELED when the job was cancelled before
// a worker picked it up, nil otherwise.
func (l *Loop) QueueWork(work func(), after func(err error)) (*WorkReq, error) {
	if work == nil || after == nil {
		return nil, api.EINVAL
	}
	r := &WorkReq{after: after}
	r.Request.register(l, ReqWork)
	r.task = &workpool.Task{
		Run: work,
		Finish: func(cancelled bool) {
			l.pushCompletion(func() {
				r.unregister()
				if cancelled {
					r.after(api.ECANCELED)
				} else {
					r.after(nil)
				}
			})
		},
	}
	if err := l.workPool().Submit(r.task); err != nil {
		r.unregister()
		return nil, err
	}
	return r, nil
}

// Cancel withdraws the job if no worker has started it. EBUSY when running,
// EINVAL when already finished.
func (r *WorkReq) Cancel() error {
	return r.loop.workPool().Cancel(r.task)
}

// workPool lazily constructs the loop's pool.
func (l *Loop) workPool() *workpool.Pool {
	if l.pool == nil {
		l.pool = workpool.New(l.poolSize)
	}
	return l.pool
}

// pushCompletion enqueues fn for the loop goroutine and wakes the poller.
// Safe from any goroutine.
func (l *Loop) pushCompletion(fn func()) {
	l.compMu.Lock()
	l.compQ.Add(fn)
	l.compMu.Unlock()
	l.poller.Wake()
}

// drainCompletions runs queued completions FIFO on the loop goroutine.
func (l *Loop) drainCompletions() {
	for {
		l.compMu.Lock()
		if l.compQ.Length() == 0 {
			l.compMu.Unlock()
			return
		}
		fn := l.compQ.Remove().(func())
		l.compMu.Unlock()
		fn()
	}
}
