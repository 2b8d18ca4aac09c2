// File: loop/poll_unix.go
//go:build unix
// +build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Poll watches a foreign descriptor the caller manages itself.

package loop

import "github.com/momentics/hioload-loop/api"

// Poll delivers readiness events for an arbitrary descriptor.
type Poll struct {
	Handle
	watcher fdWatcher
	cb      func(mask api.EventMask)
}

// NewPoll initializes a poll handle for fd. The descriptor stays owned by
// the caller and is not closed on handle close.
func NewPoll(l *Loop, fd int) (*Poll, error) {
	if fd < 0 {
		return nil, api.EBADF
	}
	p := &Poll{}
	p.watcher.fd = fd
	p.watcher.cb = p.onIO
	p.Handle.init(l, KindPoll, p.teardown)
	return p, nil
}

// Start registers interest in mask, replacing any previous interest.
func (p *Poll) Start(mask api.EventMask, cb func(mask api.EventMask)) error {
	if cb == nil || mask&^(api.Readable|api.Writable) != 0 {
		return api.EINVAL
	}
	if p.IsClosing() {
		return api.EINVAL
	}
	p.cb = cb
	if p.watcher.registered {
		if err := p.loop.watcherStop(&p.watcher, api.Readable|api.Writable); err != nil {
			return err
		}
	}
	if err := p.loop.watcherStart(&p.watcher, mask); err != nil {
		return err
	}
	p.start()
	return nil
}

// Stop removes all interest.
func (p *Poll) Stop() error {
	if !p.IsActive() {
		return nil
	}
	err := p.loop.watcherClose(&p.watcher)
	p.stop()
	return err
}

func (p *Poll) onIO(mask api.EventMask) {
	if p.cb != nil && !p.IsClosing() {
		p.cb(mask)
	}
}

func (p *Poll) teardown() {
	p.loop.watcherClose(&p.watcher)
}
