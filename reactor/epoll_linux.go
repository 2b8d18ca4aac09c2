// File: reactor/epoll_linux.go
//go:build linux
// +build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll(7) poller. The wakeup primitive is an eventfd registered with
// the reserved wake key; eventfd's counter semantics give coalescing for free.

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-loop/api"
)

type epollPoller struct {
	epfd   int
	wakefd int
	keys   map[int]uintptr // fd -> registration key, loop thread only
}

// NewPoller constructs the epoll-backed poller for Linux.
func NewPoller() (api.Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, api.FromOS(err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, api.FromOS(err)
	}
	p := &epollPoller{epfd: epfd, wakefd: wakefd, keys: make(map[int]uintptr)}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, api.FromOS(err)
	}
	return p, nil
}

func (p *epollPoller) Kind() api.PollerKind { return api.KindReadiness }

func epollEvents(mask api.EventMask) uint32 {
	var ev uint32
	if mask&api.Readable != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if mask&api.Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (p *epollPoller) Add(fd uintptr, key uintptr, mask api.EventMask) error {
	ev := unix.EpollEvent{Events: epollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return api.FromOS(err)
	}
	p.keys[int(fd)] = key
	return nil
}

func (p *epollPoller) Mod(fd uintptr, key uintptr, mask api.EventMask) error {
	ev := unix.EpollEvent{Events: epollEvents(mask), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev); err != nil {
		return api.FromOS(err)
	}
	p.keys[int(fd)] = key
	return nil
}

func (p *epollPoller) Del(fd uintptr) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	delete(p.keys, int(fd))
	if err != nil {
		return api.FromOS(err)
	}
	return nil
}

func (p *epollPoller) Wait(timeoutMS int, events []api.Event) (int, error) {
	raw := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(p.epfd, raw, clampTimeout(timeoutMS))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, api.FromOS(err)
	}
	out := 0
	for i := 0; i < n; i++ {
		fd := int(raw[i].Fd)
		if fd == p.wakefd {
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
		if raw[i].Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
			mask |= api.Readable
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			mask |= api.Writable
		}
		if raw[i].Events&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
			mask |= api.Readable | api.Disconnect
		}
		if raw[i].Events&unix.EPOLLERR != 0 {
			mask |= api.Readable | api.Writable
		}
		events[out] = api.Event{Key: key, Mask: mask}
		out++
	}
	return out, nil
}

// drainWake resets the eventfd counter so the next Wake re-arms it.
func (p *epollPoller) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakefd, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}

func (p *epollPoller) Wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(p.wakefd, buf[:])
		switch err {
		case nil, unix.EAGAIN:
			// EAGAIN means the counter is saturated; a wakeup is already pending.
			return nil
		case unix.EINTR:
			continue
		default:
			return api.FromOS(err)
		}
	}
}

func (p *epollPoller) Close() error {
	err1 := unix.Close(p.wakefd)
	err2 := unix.Close(p.epfd)
	if err1 != nil {
		return api.FromOS(err1)
	}
	return api.FromOS(err2)
}
