// File: workpool/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-size pool of long-lived workers around a mutex/condvar FIFO. A job
// runs exactly once on some worker; its finish hook runs exactly once and is
// responsible for re-entering the owning loop. Queued jobs may be cancelled
// before a worker picks them up; running jobs are not cancellable.

package workpool

import (
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/control"
)

// DefaultMaxThreads caps the default pool size.
const DefaultMaxThreads = 4

// SizeEnv overrides the default pool size, clamped to [1, 128].
const SizeEnv = "HIOLOAD_THREADPOOL_SIZE"

// task states
const (
	taskQueued int32 = iota
	taskRunning
	taskDone
	taskCancelled
)

// Task is one unit of blocking work.
type Task struct {
	// Run executes on a worker and may block arbitrarily.
	Run func()
	// Finish runs exactly once after Run (or instead of it when cancelled).
	// It executes on the worker for completed jobs and on the cancelling
	// goroutine for cancelled ones; implementations hand off to the loop.
	Finish func(cancelled bool)

	state int32 // guarded by the pool mutex
}

// Pool is a fixed-size worker pool.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	jobs    *queue.Queue // *Task
	size    int
	closed  bool
	idle    int
	wg      sync.WaitGroup
}

// DefaultSize resolves the pool size: the SizeEnv override when set, else
// min(NumCPU, DefaultMaxThreads), never below one.
func DefaultSize() int {
	if v := os.Getenv(SizeEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if n < 1 {
				n = 1
			}
			if n > 128 {
				n = 128
			}
			return n
		}
	}
	n := runtime.NumCPU()
	if n > DefaultMaxThreads {
		n = DefaultMaxThreads
	}
	if n < 1 {
		n = 1
	}
	return n
}

// New starts a pool of size workers; size <= 0 selects DefaultSize.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	p := &Pool{jobs: queue.New(), size: size}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	control.Logger().WithField("size", size).Debug("work pool started")
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Submit enqueues t. Safe from any goroutine.
func (p *Pool) Submit(t *Task) error {
	if t == nil || t.Run == nil || t.Finish == nil {
		return api.EINVAL
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return api.ECANCELED
	}
	t.state = taskQueued
	p.jobs.Add(t)
	p.mu.Unlock()
	p.cond.Signal()
	return nil
}

// Cancel withdraws a queued task. It returns EBUSY when the task already
// started running and EINVAL when it already finished or was cancelled.
// On success the task's Finish hook runs (cancelled=true) before Cancel
// returns.
func (p *Pool) Cancel(t *Task) error {
	p.mu.Lock()
	if t.state != taskQueued {
		st := t.state
		p.mu.Unlock()
		if st == taskRunning {
			return api.EBUSY
		}
		return api.EINVAL
	}
	t.state = taskCancelled
	p.mu.Unlock()
	t.Finish(true)
	return nil
}

// Close stops accepting jobs, drains the queue and waits for workers to exit.
// Queued-but-unstarted jobs still run; Close is a shutdown barrier, not a
// cancellation.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.jobs.Length() == 0 && !p.closed {
			p.idle++
			p.cond.Wait()
			p.idle--
		}
		if p.jobs.Length() == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		t := p.jobs.Remove().(*Task)
		if t.state != taskQueued {
			// cancelled while queued; Finish already ran
			p.mu.Unlock()
			continue
		}
		t.state = taskRunning
		p.mu.Unlock()

		t.Run()

		p.mu.Lock()
		t.state = taskDone
		p.mu.Unlock()
		t.Finish(false)
	}
}
