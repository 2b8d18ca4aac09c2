// File: loop/fs.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Filesystem requests. Blocking syscalls run on the worker pool; completion
// callbacks run on the loop goroutine. Passing a nil callback selects the
// synchronous form: the operation runs inline and the request is returned
// with its result fields populated.

package loop

import (
	"io"
	"os"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/workpool"
)

// FsOp identifies the filesystem operation carried by an FsReq.
type FsOp int

const (
	FsOpen FsOp = iota + 1
	FsRead
	FsWrite
	FsClose
	FsStat
	FsRename
	FsUnlink
	FsMkdir
	FsRmdir
	FsFsync
	FsReadDir
)

// FsReq records one filesystem operation and its result.
type FsReq struct {
	Request
	Op      FsOp
	Path    string
	NewPath string

	// results
	File    *os.File
	Size    int
	Stat    os.FileInfo
	Entries []os.DirEntry
	Err     error

	cb   func(*FsReq)
	task *workpool.Task
}

// Cancel withdraws a queued request; see WorkReq.Cancel for the error
// contract. The callback still runs once, with Err = ECANCELED.
func (r *FsReq) Cancel() error {
	if r.task == nil {
		return api.EINVAL
	}
	return r.loop.workPool().Cancel(r.task)
}

func (l *Loop) fsSubmit(r *FsReq, cb func(*FsReq), run func()) (*FsReq, error) {
	if cb == nil {
		run()
		return r, r.Err
	}
	r.cb = cb
	r.Request.register(l, ReqFs)
	r.task = &workpool.Task{
		Run: run,
		Finish: func(cancelled bool) {
			l.pushCompletion(func() {
				r.unregister()
				if cancelled {
					r.Err = api.ECANCELED
				}
				r.cb(r)
			})
		},
	}
	if err := l.workPool().Submit(r.task); err != nil {
		r.unregister()
		return nil, err
	}
	return r, nil
}

// FsOpen opens path with the os.OpenFile flag and mode semantics.
func (l *Loop) FsOpen(path string, flag int, perm os.FileMode, cb func(*FsReq)) (*FsReq, error) {
	r := &FsReq{Op: FsOpen, Path: path}
	return l.fsSubmit(r, cb, func() {
		f, err := os.OpenFile(path, flag, perm)
		r.File = f
		r.Err = api.FromOS(err)
	})
}

// FsRead reads into buf at offset; a negative offset reads from the current
// position. EOF is reported as api.EOF with Size holding the bytes read.
func (l *Loop) FsRead(f *os.File, buf []byte, offset int64, cb func(*FsReq)) (*FsReq, error) {
	r := &FsReq{Op: FsRead}
	return l.fsSubmit(r, cb, func() {
		var n int
		var err error
		if offset >= 0 {
			n, err = f.ReadAt(buf, offset)
		} else {
			n, err = f.Read(buf)
		}
		r.Size = n
		if err == io.EOF {
			r.Err = api.EOF
			return
		}
		r.Err = api.FromOS(err)
	})
}

// FsWrite writes buf at offset; a negative offset writes at the current
// position.
func (l *Loop) FsWrite(f *os.File, buf []byte, offset int64, cb func(*FsReq)) (*FsReq, error) {
	r := &FsReq{Op: FsWrite}
	return l.fsSubmit(r, cb, func() {
		var n int
		var err error
		if offset >= 0 {
			n, err = f.WriteAt(buf, offset)
		} else {
			n, err = f.Write(buf)
		}
		r.Size = n
		r.Err = api.FromOS(err)
	})
}

// FsClose closes f.
func (l *Loop) FsClose(f *os.File, cb func(*FsReq)) (*FsReq, error) {
	r := &FsReq{Op: FsClose}
	return l.fsSubmit(r, cb, func() {
		r.Err = api.FromOS(f.Close())
	})
}

// FsStat stats path.
func (l *Loop) FsStat(path string, cb func(*FsReq)) (*FsReq, error) {
	r := &FsReq{Op: FsStat, Path: path}
	return l.fsSubmit(r, cb, func() {
		st, err := os.Stat(path)
		r.Stat = st
		r.Err = api.FromOS(err)
	})
}

// FsRename renames path to newPath.
func (l *Loop) FsRename(path, newPath string, cb func(*FsReq)) (*FsReq, error) {
	r := &FsReq{Op: FsRename, Path: path, NewPath: newPath}
	return l.fsSubmit(r, cb, func() {
		r.Err = api.FromOS(os.Rename(path, newPath))
	})
}

// FsUnlink removes a file.
func (l *Loop) FsUnlink(path string, cb func(*FsReq)) (*FsReq, error) {
	r := &FsReq{Op: FsUnlink, Path: path}
	return l.fsSubmit(r, cb, func() {
		r.Err = api.FromOS(os.Remove(path))
	})
}

// FsMkdir creates a directory.
func (l *Loop) FsMkdir(path string, perm os.FileMode, cb func(*FsReq)) (*FsReq, error) {
	r := &FsReq{Op: FsMkdir, Path: path}
	return l.fsSubmit(r, cb, func() {
		r.Err = api.FromOS(os.Mkdir(path, perm))
	})
}

// FsRmdir removes an empty directory.
func (l *Loop) FsRmdir(path string, cb func(*FsReq)) (*FsReq, error) {
	r := &FsReq{Op: FsRmdir, Path: path}
	return l.fsSubmit(r, cb, func() {
		r.Err = api.FromOS(os.Remove(path))
	})
}

// FsFsync flushes f to stable storage.
func (l *Loop) FsFsync(f *os.File, cb func(*FsReq)) (*FsReq, error) {
	r := &FsReq{Op: FsFsync}
	return l.fsSubmit(r, cb, func() {
		r.Err = api.FromOS(f.Sync())
	})
}

// FsReadDir lists a directory in name order.
func (l *Loop) FsReadDir(path string, cb func(*FsReq)) (*FsReq, error) {
	r := &FsReq{Op: FsReadDir, Path: path}
	return l.fsSubmit(r, cb, func() {
		entries, err := os.ReadDir(path)
		r.Entries = entries
		r.Err = api.FromOS(err)
	})
}
