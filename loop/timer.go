// File: loop/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Timer handle and the loop's deadline min-heap. Deadlines compare against
// the now value cached once per iteration; ties break by start order, so a
// zero-timeout timer armed inside a callback cannot fire before the next
// iteration and cannot starve I/O.

package loop

import "github.com/momentics/hioload-loop/api"

// Timer invokes a callback after a timeout, optionally repeating.
type Timer struct {
	Handle

	cb       func(*Timer)
	deadline int64 // ms on the loop clock
	period   int64 // ms, 0 = one-shot
	seq      uint64
	heapIdx  int

	// set while the callback runs so an in-callback Stop wins over re-arm
	running    bool
	manualStop bool
}

// NewTimer initializes a timer bound to l.
func NewTimer(l *Loop) *Timer {
	t := &Timer{heapIdx: -1}
	t.Handle.init(l, KindTimer, t.teardown)
	return t
}

// Start arms the timer to fire cb after timeoutMS, then every periodMS when
// periodMS > 0. Restarting an armed timer re-arms it.
func (t *Timer) Start(timeoutMS, periodMS int64, cb func(*Timer)) error {
	if cb == nil || timeoutMS < 0 || periodMS < 0 {
		return api.EINVAL
	}
	if t.IsClosing() {
		return api.EINVAL
	}
	if t.IsActive() {
		t.Stop()
	}
	t.cb = cb
	t.manualStop = false
	t.deadline = t.loop.now + timeoutMS
	t.period = periodMS
	t.seq = t.loop.nextSeq()
	t.loop.timers.push(t)
	t.start()
	return nil
}

// Stop disarms the timer.
func (t *Timer) Stop() {
	if t.running {
		t.manualStop = true
	}
	if !t.IsActive() {
		return
	}
	t.loop.timers.remove(t)
	t.stop()
}

// Again restarts a repeating timer from its period. Returns EINVAL when the
// timer has never been started or has no period.
func (t *Timer) Again() error {
	if t.cb == nil {
		return api.EINVAL
	}
	if t.period == 0 {
		return api.EINVAL
	}
	t.Stop()
	return t.Start(t.period, t.period, t.cb)
}

// Period returns the repeat interval in milliseconds.
func (t *Timer) Period() int64 { return t.period }

// DueIn returns milliseconds until the deadline on the cached clock,
// clamped at zero.
func (t *Timer) DueIn() int64 {
	d := t.deadline - t.loop.now
	if d < 0 {
		return 0
	}
	return d
}

func (t *Timer) teardown() {
	t.Stop()
}

// rearm applies the repeat policy after the callback returned: the next
// deadline is max(now, prev+period), which neither drifts under clock skew
// nor fires catch-up bursts.
func (t *Timer) rearm() {
	next := t.deadline + t.period
	if next < t.loop.now {
		next = t.loop.now
	}
	t.deadline = next
	t.seq = t.loop.nextSeq()
	t.loop.timers.push(t)
	t.start()
}

// timerHeap is a binary min-heap ordered by (deadline, seq).
type timerHeap struct {
	items []*Timer
}

func timerLess(a, b *Timer) bool {
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.seq < b.seq
}

func (h *timerHeap) len() int { return len(h.items) }

func (h *timerHeap) peek() *Timer {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

func (h *timerHeap) push(t *Timer) {
	h.items = append(h.items, t)
	t.heapIdx = len(h.items) - 1
	h.siftUp(t.heapIdx)
}

func (h *timerHeap) pop() *Timer {
	t := h.items[0]
	h.swapOut(0)
	t.heapIdx = -1
	return t
}

func (h *timerHeap) remove(t *Timer) {
	i := t.heapIdx
	if i < 0 || i >= len(h.items) || h.items[i] != t {
		return
	}
	h.swapOut(i)
	t.heapIdx = -1
}

// swapOut replaces slot i with the last element and restores heap order.
func (h *timerHeap) swapOut(i int) {
	last := len(h.items) - 1
	h.items[i] = h.items[last]
	h.items[i].heapIdx = i
	h.items[last] = nil
	h.items = h.items[:last]
	if i < last {
		h.siftDown(i)
		h.siftUp(i)
	}
}

func (h *timerHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !timerLess(h.items[i], h.items[parent]) {
			return
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *timerHeap) siftDown(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		min := left
		if right := left + 1; right < n && timerLess(h.items[right], h.items[left]) {
			min = right
		}
		if !timerLess(h.items[min], h.items[i]) {
			return
		}
		h.swap(i, min)
		i = min
	}
}

func (h *timerHeap) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].heapIdx = i
	h.items[j].heapIdx = j
}

// nextTimeout converts the earliest deadline into a poll timeout.
func (h *timerHeap) nextTimeout(now int64) int {
	top := h.peek()
	if top == nil {
		return -1
	}
	diff := top.deadline - now
	if diff <= 0 {
		return 0
	}
	if diff > int64(api.MaxTimeout) {
		return api.MaxTimeout
	}
	return int(diff)
}
