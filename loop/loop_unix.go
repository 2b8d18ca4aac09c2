// File: loop/loop_unix.go
//go:build unix
// +build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness dispatch. Every watched descriptor owns an fdWatcher; the poller
// reports (fd, mask) pairs and the loop routes them to the watcher callback,
// masked to the interest that is still registered.

package loop

import "github.com/momentics/hioload-loop/api"

type loopPlatform struct {
	watchers map[int]*fdWatcher
}

func (l *Loop) platformInit() {
	l.platform.watchers = make(map[int]*fdWatcher)
}

// fdWatcher ties one descriptor to its event callback.
type fdWatcher struct {
	fd         int
	interest   api.EventMask
	registered bool
	cb         func(mask api.EventMask)
}

func (l *Loop) watcherStart(w *fdWatcher, mask api.EventMask) error {
	want := w.interest | mask
	if w.registered && want == w.interest {
		return nil
	}
	if !w.registered {
		if err := l.poller.Add(uintptr(w.fd), uintptr(w.fd), want); err != nil {
			return err
		}
		w.registered = true
		l.platform.watchers[w.fd] = w
	} else {
		if err := l.poller.Mod(uintptr(w.fd), uintptr(w.fd), want); err != nil {
			return err
		}
	}
	w.interest = want
	return nil
}

func (l *Loop) watcherStop(w *fdWatcher, mask api.EventMask) error {
	if !w.registered {
		return nil
	}
	want := w.interest &^ mask
	if want == w.interest {
		return nil
	}
	if want == 0 {
		return l.watcherClose(w)
	}
	if err := l.poller.Mod(uintptr(w.fd), uintptr(w.fd), want); err != nil {
		return err
	}
	w.interest = want
	return nil
}

func (l *Loop) watcherClose(w *fdWatcher) error {
	if !w.registered {
		return nil
	}
	w.registered = false
	w.interest = 0
	delete(l.platform.watchers, w.fd)
	return l.poller.Del(uintptr(w.fd))
}

func (l *Loop) dispatchEvent(ev api.Event) {
	w, ok := l.platform.watchers[int(ev.Key)]
	if !ok || w.cb == nil {
		return
	}
	mask := ev.Mask & (w.interest | api.Disconnect)
	if mask == 0 {
		return
	}
	w.cb(mask)
}
