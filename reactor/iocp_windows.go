// File: reactor/iocp_windows.go
//go:build windows
// +build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Windows I/O completion port poller. Registration associates a handle with
// the port under its completion key; Wait translates completion packets into
// api.Event values carrying the overlapped pointer as the operation context.
// Wakeups are zero-byte packets posted under the reserved wake key, coalesced
// with an atomic pending flag so a slow loop never accumulates a backlog.

package reactor

import (
	"sync/atomic"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-loop/api"
)

type iocpPoller struct {
	port        windows.Handle
	wakePending int32
}

// NewPoller constructs the IOCP-backed poller for Windows.
func NewPoller() (api.Poller, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 1)
	if err != nil {
		return nil, api.FromOS(err)
	}
	return &iocpPoller{port: port}, nil
}

func (p *iocpPoller) Kind() api.PollerKind { return api.KindCompletion }

// Add associates fd with the port. The interest mask is meaningless under the
// completion model; owners prepost operations instead.
func (p *iocpPoller) Add(fd uintptr, key uintptr, _ api.EventMask) error {
	if key == api.WakeKey {
		return api.EINVAL
	}
	_, err := windows.CreateIoCompletionPort(windows.Handle(fd), p.port, key, 0)
	if err != nil {
		return api.FromOS(err)
	}
	return nil
}

// Mod is a no-op under the completion model.
func (p *iocpPoller) Mod(fd uintptr, key uintptr, mask api.EventMask) error {
	return nil
}

// Del is a no-op: IOCP associations last for the lifetime of the handle.
// In-flight operations are cancelled by the owner via CancelIoEx.
func (p *iocpPoller) Del(fd uintptr) error {
	return nil
}

func (p *iocpPoller) Wait(timeoutMS int, events []api.Event) (int, error) {
	var wait *uint32
	if t := clampTimeout(timeoutMS); t >= 0 {
		ms := uint32(t)
		wait = &ms
	}
	out := 0
	for out < len(events) {
		var bytes uint32
		var key uintptr
		var ov *windows.Overlapped
		err := windows.GetQueuedCompletionStatus(p.port, &bytes, &key, &ov, wait)
		// Only the first dequeue may block; the rest drain what is ready.
		zero := uint32(0)
		wait = &zero
		if err != nil && ov == nil {
			if errno, ok := err.(syscall.Errno); ok && errno == windows.WAIT_TIMEOUT {
				break
			}
			return out, api.FromOS(err)
		}
		if key == api.WakeKey {
			atomic.StoreInt32(&p.wakePending, 0)
			events[out] = api.Event{Key: api.WakeKey, Mask: api.Readable}
			out++
			continue
		}
		events[out] = api.Event{
			Key:    key,
			Ctx:    uintptr(unsafe.Pointer(ov)),
			Bytes:  bytes,
			Status: api.FromOS(err),
		}
		out++
	}
	return out, nil
}

func (p *iocpPoller) Wake() error {
	if !atomic.CompareAndSwapInt32(&p.wakePending, 0, 1) {
		return nil
	}
	if err := windows.PostQueuedCompletionStatus(p.port, 0, api.WakeKey, nil); err != nil {
		atomic.StoreInt32(&p.wakePending, 0)
		return api.FromOS(err)
	}
	return nil
}

func (p *iocpPoller) Close() error {
	return api.FromOS(windows.CloseHandle(p.port))
}
