// File: loop/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The event loop driver. Each iteration executes the same phase sequence:
//
//	1. update cached now
//	2. run due timers
//	3. run pending callbacks deferred from the previous iteration
//	4. run idle handles
//	5. run prepare handles
//	6. compute the poll timeout
//	7. block in the poller
//	8. run I/O callbacks produced by the poller
//	9. run check handles
//	10. run close callbacks queued on previous iterations
//
// The loop exits when no active-and-ref'd handles, no in-flight requests and
// no closing handles remain.

package loop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/control"
	"github.com/momentics/hioload-loop/reactor"
	"github.com/momentics/hioload-loop/workpool"
)

// RunMode selects how Run drives the loop.
type RunMode int

const (
	// RunDefault iterates until no live work remains or Stop is called.
	RunDefault RunMode = iota
	// RunOnce performs one iteration, blocking in the poller at most once.
	RunOnce
	// RunNoWait performs one iteration with a zero poll timeout.
	RunNoWait
)

// Config tunes loop construction. The zero value selects the platform poller
// and the default work pool sizing, and publishes no metrics.
type Config struct {
	// Poller overrides the platform backend, mainly for tests.
	Poller api.Poller
	// WorkPoolSize bounds the loop's worker pool; 0 selects the default.
	WorkPoolSize int
	// Metrics receives loop counters when non-nil.
	Metrics *control.MetricsRegistry
	// Probes receives a handle-table probe when non-nil.
	Probes *control.DebugProbes
}

// Loop is a single-threaded reactor. Exactly one goroutine may run it at a
// time; only Async.Send and work submission are safe from other goroutines.
type Loop struct {
	id     string
	poller api.Poller

	base time.Time
	now  int64 // cached monotonic milliseconds since base
	seq  uint64

	timers  timerHeap
	handles map[*Handle]struct{}

	activeHandles  int
	activeRequests int

	pendingQ       *queue.Queue // func() deferred to phase 3
	closingReady   *queue.Queue // *Handle, close cb due this iteration
	closingPending *queue.Queue // *Handle, closed this iteration

	idles    []*Idle
	prepares []*Prepare
	checks   []*Check
	asyncs   []*Async

	evbuf    []api.Event
	stopFlag bool

	iterations  uint64
	timersFired uint64

	pool     *workpool.Pool
	poolSize int
	compMu   sync.Mutex
	compQ    *queue.Queue // completed work tasks

	processes      map[int]*Process
	sigchldPending int32

	metrics *control.MetricsRegistry

	platform loopPlatform
}

// New constructs a loop with the platform poller.
func New() (*Loop, error) {
	return NewWithConfig(Config{})
}

// NewWithConfig constructs a loop from cfg.
func NewWithConfig(cfg Config) (*Loop, error) {
	p := cfg.Poller
	if p == nil {
		var err error
		p, err = reactor.NewPoller()
		if err != nil {
			return nil, err
		}
	}
	l := &Loop{
		id:             uuid.NewString(),
		poller:         p,
		base:           time.Now(),
		handles:        make(map[*Handle]struct{}),
		pendingQ:       queue.New(),
		closingReady:   queue.New(),
		closingPending: queue.New(),
		evbuf:          make([]api.Event, reactor.WaitBatch),
		compQ:          queue.New(),
		processes:      make(map[int]*Process),
		poolSize:       cfg.WorkPoolSize,
		metrics:        cfg.Metrics,
	}
	l.platformInit()
	if cfg.Probes != nil {
		cfg.Probes.RegisterProbe("loop."+l.id, l.probe)
	}
	control.Logger().WithField("loop", l.id).Debug("loop created")
	return l, nil
}

// ID returns the loop's stable identity, used in logs and metrics keys.
func (l *Loop) ID() string { return l.id }

// Poller exposes the backend, mainly for handle implementations.
func (l *Loop) Poller() api.Poller { return l.poller }

// Now returns the cached monotonic clock in milliseconds.
func (l *Loop) Now() int64 { return l.now }

// UpdateTime refreshes the cached clock. The loop does this once per phase
// cycle; callers only need it around long-running callbacks.
func (l *Loop) UpdateTime() {
	l.now = int64(time.Since(l.base) / time.Millisecond)
}

// Alive reports whether any live work would keep Run going.
func (l *Loop) Alive() bool {
	return l.activeHandles > 0 ||
		l.activeRequests > 0 ||
		l.closingReady.Length() > 0 ||
		l.closingPending.Length() > 0
}

// Stop makes Run return after the current iteration completes.
func (l *Loop) Stop() { l.stopFlag = true }

// Walk visits every handle known to the loop, including closing ones.
func (l *Loop) Walk(fn func(*Handle)) {
	for h := range l.handles {
		fn(h)
	}
}

// Close releases the loop's resources. It fails with EBUSY while handles or
// requests are still live.
func (l *Loop) Close() error {
	if l.Alive() || len(l.handles) > 0 {
		return api.EBUSY
	}
	if l.pool != nil {
		l.pool.Close()
	}
	l.publishMetrics()
	return l.poller.Close()
}

// Run drives the loop in the given mode. It returns 0 when no live work
// remains and a positive value when more work is pending (meaningful for
// RunOnce and RunNoWait, and for RunDefault interrupted by Stop).
func (l *Loop) Run(mode RunMode) int {
	alive := l.Alive()
	if !alive {
		l.UpdateTime()
	}
	for alive && !l.stopFlag {
		l.iterations++
		l.UpdateTime()
		l.runTimers()
		ranPending := l.runPending()
		l.runIdle()
		l.runPrepare()

		timeout := 0
		if (mode == RunOnce && !ranPending) || mode == RunDefault {
			timeout = l.backendTimeout()
		}
		l.pollIO(timeout)
		l.runCheck()
		l.runClosing()

		if mode == RunOnce {
			// RunOnce implies forward progress: a blocking poll may have
			// carried the clock past the nearest deadline.
			l.UpdateTime()
			l.runTimers()
		}

		alive = l.Alive()
		if mode == RunOnce || mode == RunNoWait {
			break
		}
	}
	if l.stopFlag {
		l.stopFlag = false
	}
	l.publishMetrics()
	if alive {
		return 1
	}
	return 0
}

func (l *Loop) nextSeq() uint64 {
	l.seq++
	return l.seq
}

// queuePending defers fn to phase 3 of the next iteration.
func (l *Loop) queuePending(fn func()) {
	l.pendingQ.Add(fn)
}

func (l *Loop) runTimers() {
	var due []*Timer
	for l.timers.len() > 0 && l.timers.peek().deadline <= l.now {
		t := l.timers.pop()
		t.stop()
		due = append(due, t)
	}
	for _, t := range due {
		if t.IsClosing() {
			continue
		}
		l.timersFired++
		t.running = true
		t.cb(t)
		t.running = false
		if t.period > 0 && !t.IsActive() && !t.manualStop && !t.IsClosing() {
			t.rearm()
		}
		t.manualStop = false
	}
}

func (l *Loop) runPending() bool {
	n := l.pendingQ.Length()
	for i := 0; i < n; i++ {
		fn := l.pendingQ.Remove().(func())
		fn()
	}
	return n > 0
}

// backendTimeout computes phase 6: zero whenever anything is already
// runnable, else the nearest timer, else block indefinitely.
func (l *Loop) backendTimeout() int {
	if l.stopFlag || !l.Alive() {
		return 0
	}
	if len(l.idles) > 0 {
		return 0
	}
	if l.pendingQ.Length() > 0 {
		return 0
	}
	if l.closingReady.Length() > 0 || l.closingPending.Length() > 0 {
		return 0
	}
	return l.timers.nextTimeout(l.now)
}

func (l *Loop) pollIO(timeoutMS int) {
	n, err := l.poller.Wait(timeoutMS, l.evbuf)
	if err != nil {
		control.Logger().WithError(err).WithField("loop", l.id).Error("poller wait failed")
		return
	}
	for i := 0; i < n; i++ {
		ev := l.evbuf[i]
		if ev.Key == api.WakeKey {
			continue
		}
		l.dispatchEvent(ev)
	}
	l.drainAsyncs()
	l.drainCompletions()
	if atomic.SwapInt32(&l.sigchldPending, 0) != 0 {
		l.sweepProcesses()
	}
}

func (l *Loop) drainAsyncs() {
	if len(l.asyncs) == 0 {
		return
	}
	snapshot := make([]*Async, len(l.asyncs))
	copy(snapshot, l.asyncs)
	for _, a := range snapshot {
		if atomic.CompareAndSwapInt32(&a.pending, 1, 0) && a.cb != nil && !a.IsClosing() {
			a.cb(a)
		}
	}
}

func (l *Loop) runClosing() {
	for l.closingReady.Length() > 0 {
		h := l.closingReady.Remove().(*Handle)
		h.finalize()
	}
	for l.closingPending.Length() > 0 {
		l.closingReady.Add(l.closingPending.Remove())
	}
}

func (l *Loop) probe() any {
	out := make(map[string]int)
	for h := range l.handles {
		out[h.kind.String()]++
	}
	return map[string]any{
		"handles":    out,
		"active":     l.activeHandles,
		"requests":   l.activeRequests,
		"iterations": l.iterations,
	}
}

func (l *Loop) publishMetrics() {
	if l.metrics == nil {
		return
	}
	prefix := "loop." + l.id + "."
	l.metrics.Set(prefix+"iterations", l.iterations)
	l.metrics.Set(prefix+"handles.active", l.activeHandles)
	l.metrics.Set(prefix+"requests.active", l.activeRequests)
	l.metrics.Set(prefix+"timers.fired", l.timersFired)
}
