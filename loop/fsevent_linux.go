// File: loop/fsevent_linux.go
//go:build linux
// +build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// inotify-backed change notification. Each handle owns a non-blocking
// inotify descriptor with a single watch, driven through an fdWatcher like
// the poll handle. ATTRIB and MODIFY report as Change; everything else
// (create, delete, moves, self-deletion) reports as Rename.

package loop

import (
	"bytes"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-loop/api"
)

// FsEvent watches a path for filesystem changes.
type FsEvent struct {
	Handle
	fd      int
	wd      int
	path    string
	watcher fdWatcher
	cb      FsEventCallback
}

// NewFsEvent initializes a filesystem watcher bound to l.
func NewFsEvent(l *Loop) (*FsEvent, error) {
	f := &FsEvent{fd: -1, wd: -1}
	f.watcher.fd = -1
	f.watcher.cb = f.onReadable
	f.Handle.init(l, KindFsEvent, f.teardown)
	return f, nil
}

// Path returns the watched path, or "" while stopped.
func (f *FsEvent) Path() string { return f.path }

// Start watches path, delivering notifications through cb until Stop or
// Close. A handle watches one path at a time.
func (f *FsEvent) Start(path string, cb FsEventCallback) error {
	if path == "" || cb == nil {
		return api.EINVAL
	}
	if f.IsClosing() || f.IsActive() {
		return api.EINVAL
	}
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return api.FromOS(err)
	}
	wd, err := unix.InotifyAddWatch(fd, path,
		unix.IN_ATTRIB|unix.IN_CREATE|unix.IN_MODIFY|
			unix.IN_DELETE|unix.IN_DELETE_SELF|unix.IN_MOVE_SELF|
			unix.IN_MOVED_FROM|unix.IN_MOVED_TO)
	if err != nil {
		unix.Close(fd)
		return api.FromOS(err)
	}
	f.fd = fd
	f.wd = wd
	f.path = path
	f.cb = cb
	f.watcher.fd = fd
	if werr := f.loop.watcherStart(&f.watcher, api.Readable); werr != nil {
		f.disarm()
		return werr
	}
	f.start()
	return nil
}

// Stop cancels the watch. The handle may be started again.
func (f *FsEvent) Stop() error {
	if !f.IsActive() {
		return nil
	}
	f.loop.watcherClose(&f.watcher)
	f.disarm()
	f.stop()
	return nil
}

func (f *FsEvent) disarm() {
	if f.fd >= 0 {
		unix.InotifyRmWatch(f.fd, uint32(f.wd))
		unix.Close(f.fd)
	}
	f.fd = -1
	f.wd = -1
	f.watcher.fd = -1
	f.path = ""
}

func (f *FsEvent) onReadable(api.EventMask) {
	var buf [4096]byte
	for f.IsActive() && !f.IsClosing() {
		n, err := unix.Read(f.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return
		}
		if err != nil {
			f.cb("", 0, api.FromOS(err))
			return
		}
		for off := 0; off+unix.SizeofInotifyEvent <= n; {
			ev := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
			off += unix.SizeofInotifyEvent
			name := ""
			if ev.Len > 0 {
				raw := buf[off : off+int(ev.Len)]
				name = string(bytes.TrimRight(raw, "\x00"))
				off += int(ev.Len)
			} else {
				// watching a single file yields no name; report the
				// file's own base name
				name = filepath.Base(f.path)
			}
			if ev.Mask&unix.IN_Q_OVERFLOW != 0 {
				continue
			}
			var events FsEventType
			if ev.Mask&(unix.IN_ATTRIB|unix.IN_MODIFY) != 0 {
				events |= FsEventChange
			}
			if ev.Mask&^uint32(unix.IN_ATTRIB|unix.IN_MODIFY) != 0 {
				events |= FsEventRename
			}
			cb := f.cb
			cb(name, events, nil)
			if !f.IsActive() || f.IsClosing() {
				return
			}
		}
	}
}

func (f *FsEvent) teardown() {
	f.loop.watcherClose(&f.watcher)
	f.disarm()
}
