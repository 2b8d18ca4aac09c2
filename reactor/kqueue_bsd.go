// File: reactor/kqueue_bsd.go
//go:build darwin || dragonfly || freebsd || netbsd || openbsd
// +build darwin dragonfly freebsd netbsd openbsd

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// kqueue(2) poller for macOS and the BSDs. Read and write interest are
// separate kevent filters; the wakeup primitive is a non-blocking self-pipe.

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-loop/api"
)

type kqueuePoller struct {
	kq       int
	wakeR    int
	wakeW    int
	keys     map[int]uintptr
	interest map[int]api.EventMask
}

// NewPoller constructs the kqueue-backed poller.
func NewPoller() (api.Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, api.FromOS(err)
	}
	unix.CloseOnExec(kq)
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		unix.Close(kq)
		return nil, api.FromOS(err)
	}
	for _, fd := range fds {
		unix.SetNonblock(fd, true)
		unix.CloseOnExec(fd)
	}
	p := &kqueuePoller{
		kq:       kq,
		wakeR:    fds[0],
		wakeW:    fds[1],
		keys:     make(map[int]uintptr),
		interest: make(map[int]api.EventMask),
	}
	var ev unix.Kevent_t
	unix.SetKevent(&ev, p.wakeR, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE)
	if _, err := unix.Kevent(kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		p.Close()
		return nil, api.FromOS(err)
	}
	return p, nil
}

func (p *kqueuePoller) Kind() api.PollerKind { return api.KindReadiness }

// apply reconciles the kernel filter set with the requested mask.
func (p *kqueuePoller) apply(fd int, old, mask api.EventMask) error {
	var changes []unix.Kevent_t
	set := func(filter int16, on bool) {
		var ev unix.Kevent_t
		flags := unix.EV_DELETE
		if on {
			flags = unix.EV_ADD | unix.EV_ENABLE
		}
		unix.SetKevent(&ev, fd, int(filter), flags)
		changes = append(changes, ev)
	}
	if mask&api.Readable != old&api.Readable {
		set(unix.EVFILT_READ, mask&api.Readable != 0)
	}
	if mask&api.Writable != old&api.Writable {
		set(unix.EVFILT_WRITE, mask&api.Writable != 0)
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(p.kq, changes, nil, nil); err != nil {
		return api.FromOS(err)
	}
	return nil
}

func (p *kqueuePoller) Add(fd uintptr, key uintptr, mask api.EventMask) error {
	if err := p.apply(int(fd), 0, mask); err != nil {
		return err
	}
	p.keys[int(fd)] = key
	p.interest[int(fd)] = mask
	return nil
}

func (p *kqueuePoller) Mod(fd uintptr, key uintptr, mask api.EventMask) error {
	if err := p.apply(int(fd), p.interest[int(fd)], mask); err != nil {
		return err
	}
	p.keys[int(fd)] = key
	p.interest[int(fd)] = mask
	return nil
}

func (p *kqueuePoller) Del(fd uintptr) error {
	err := p.apply(int(fd), p.interest[int(fd)], 0)
	delete(p.keys, int(fd))
	delete(p.interest, int(fd))
	return err
}

func (p *kqueuePoller) Wait(timeoutMS int, events []api.Event) (int, error) {
	var ts *unix.Timespec
	if t := clampTimeout(timeoutMS); t >= 0 {
		spec := unix.NsecToTimespec(int64(t) * 1e6)
		ts = &spec
	}
	raw := make([]unix.Kevent_t, len(events))
	n, err := unix.Kevent(p.kq, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, api.FromOS(err)
	}
	out := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Ident)
		if fd == p.wakeR {
			p.drainWake()
			events[out] = api.Event{Key: api.WakeKey, Mask: api.Readable}
			out++
			continue
		}
		key, ok := p.keys[fd]
		if !ok {
			continue
		}
		var mask api.EventMask
		switch raw[i].Filter {
		case unix.EVFILT_READ:
			mask = api.Readable
		case unix.EVFILT_WRITE:
			mask = api.Writable
		}
		if raw[i].Flags&unix.EV_EOF != 0 {
			mask |= api.Disconnect
		}
		events[out] = api.Event{Key: key, Mask: mask}
		out++
	}
	return out, nil
}

func (p *kqueuePoller) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.wakeR, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n < len(buf) {
			return
		}
	}
}

func (p *kqueuePoller) Wake() error {
	var one = [1]byte{1}
	for {
		_, err := unix.Write(p.wakeW, one[:])
		switch err {
		case nil, unix.EAGAIN:
			// A full pipe already carries a pending wakeup.
			return nil
		case unix.EINTR:
			continue
		default:
			return api.FromOS(err)
		}
	}
}

func (p *kqueuePoller) Close() error {
	unix.Close(p.wakeR)
	unix.Close(p.wakeW)
	return api.FromOS(unix.Close(p.kq))
}
