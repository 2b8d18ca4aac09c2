// File: loop/idle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Idle, prepare and check handles. Within each phase, callbacks run in FIFO
// registration order. Active idle handles force a zero poll timeout.

package loop

import "github.com/momentics/hioload-loop/api"

// Idle runs its callback once per iteration while the loop has work.
type Idle struct {
	Handle
	cb func(*Idle)
}

// NewIdle initializes an idle handle bound to l.
func NewIdle(l *Loop) *Idle {
	i := &Idle{}
	i.Handle.init(l, KindIdle, i.teardown)
	return i
}

// Start registers the callback.
func (i *Idle) Start(cb func(*Idle)) error {
	if cb == nil {
		return api.EINVAL
	}
	if i.IsClosing() {
		return api.EINVAL
	}
	if i.IsActive() {
		i.cb = cb
		return nil
	}
	i.cb = cb
	i.loop.idles = append(i.loop.idles, i)
	i.start()
	return nil
}

// Stop unregisters the callback.
func (i *Idle) Stop() {
	if !i.IsActive() {
		return
	}
	i.loop.idles = removeFrom(i.loop.idles, i)
	i.stop()
}

func (i *Idle) teardown() { i.Stop() }

// Prepare runs its callback just before the loop blocks in the poller.
type Prepare struct {
	Handle
	cb func(*Prepare)
}

// NewPrepare initializes a prepare handle bound to l.
func NewPrepare(l *Loop) *Prepare {
	p := &Prepare{}
	p.Handle.init(l, KindPrepare, p.teardown)
	return p
}

// Start registers the callback.
func (p *Prepare) Start(cb func(*Prepare)) error {
	if cb == nil {
		return api.EINVAL
	}
	if p.IsClosing() {
		return api.EINVAL
	}
	if p.IsActive() {
		p.cb = cb
		return nil
	}
	p.cb = cb
	p.loop.prepares = append(p.loop.prepares, p)
	p.start()
	return nil
}

// Stop unregisters the callback.
func (p *Prepare) Stop() {
	if !p.IsActive() {
		return
	}
	p.loop.prepares = removeFrom(p.loop.prepares, p)
	p.stop()
}

func (p *Prepare) teardown() { p.Stop() }

// Check runs its callback right after the poller returns.
type Check struct {
	Handle
	cb func(*Check)
}

// NewCheck initializes a check handle bound to l.
func NewCheck(l *Loop) *Check {
	c := &Check{}
	c.Handle.init(l, KindCheck, c.teardown)
	return c
}

// Start registers the callback.
func (c *Check) Start(cb func(*Check)) error {
	if cb == nil {
		return api.EINVAL
	}
	if c.IsClosing() {
		return api.EINVAL
	}
	if c.IsActive() {
		c.cb = cb
		return nil
	}
	c.cb = cb
	c.loop.checks = append(c.loop.checks, c)
	c.start()
	return nil
}

// Stop unregisters the callback.
func (c *Check) Stop() {
	if !c.IsActive() {
		return
	}
	c.loop.checks = removeFrom(c.loop.checks, c)
	c.stop()
}

func (c *Check) teardown() { c.Stop() }

func removeFrom[T comparable](list []T, item T) []T {
	for i, v := range list {
		if v == item {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (l *Loop) runIdle() {
	for _, i := range snapshotOf(l.idles) {
		if i.IsActive() && !i.IsClosing() {
			i.cb(i)
		}
	}
}

func (l *Loop) runPrepare() {
	for _, p := range snapshotOf(l.prepares) {
		if p.IsActive() && !p.IsClosing() {
			p.cb(p)
		}
	}
}

func (l *Loop) runCheck() {
	for _, c := range snapshotOf(l.checks) {
		if c.IsActive() && !c.IsClosing() {
			c.cb(c)
		}
	}
}

func snapshotOf[T any](list []T) []T {
	if len(list) == 0 {
		return nil
	}
	out := make([]T, len(list))
	copy(out, list)
	return out
}
