// File: loop/pipe_windows.go
//go:build windows
// +build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pipes are overlapped named pipes. A listener keeps a ring of pre-created
// instances with ConnectNamedPipe posted on each; the pending-instances
// count sizes the ring. Each completed instance IS the connection: Accept
// hands its handle to the client stream and creates a replacement instance.

package loop

import (
	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-loop/api"
)

// Pipe is a stream handle over a local named pipe.
type Pipe struct {
	Stream
	name *uint16
	path string
}

// NewPipe initializes a pipe handle bound to l.
func NewPipe(l *Loop) (*Pipe, error) {
	p := &Pipe{}
	p.initStream(l, KindPipe)
	return p, nil
}

// Open adopts an existing pipe handle, typically the parent end of a stdio
// pair created by Spawn.
func (p *Pipe) Open(h windows.Handle) error {
	return p.open(h, false)
}

// Bind reserves the pipe name for a subsequent Listen.
func (p *Pipe) Bind(path string) error {
	if path == "" {
		return api.EINVAL
	}
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return api.EINVAL
	}
	p.path = path
	p.name = name
	return nil
}

// Listen creates the instance ring and posts a connect on each instance.
func (p *Pipe) Listen(backlog int, cb ConnectionCallback) error {
	if cb == nil {
		return api.EINVAL
	}
	if p.name == nil {
		return api.EINVAL
	}
	p.connCb = cb
	p.flags |= flagListening
	p.postAcceptFn = p.postInstance
	if err := p.armAccepts(); err != nil {
		p.flags &^= flagListening
		return err
	}
	p.updateActive()
	return nil
}

func (p *Pipe) postInstance() error {
	flags := uint32(windows.PIPE_ACCESS_DUPLEX | windows.FILE_FLAG_OVERLAPPED)
	if p.inflight == 0 && p.accepts.Len() == 0 {
		flags |= windows.FILE_FLAG_FIRST_PIPE_INSTANCE
	}
	h, err := windows.CreateNamedPipe(p.name, flags,
		windows.PIPE_TYPE_BYTE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT,
		windows.PIPE_UNLIMITED_INSTANCES, 65536, 65536, 0, nil)
	if err != nil {
		return api.FromOS(err)
	}
	if err := p.loop.poller.Add(uintptr(h), 1, 0); err != nil {
		windows.CloseHandle(h)
		return err
	}
	op := &overlappedOp{kind: opAccept, s: &p.Stream, sock: h}
	cerr := windows.ConnectNamedPipe(h, &op.ov)
	switch cerr {
	case nil, windows.ERROR_IO_PENDING:
		p.inflight++
		return nil
	case windows.ERROR_PIPE_CONNECTED:
		// client raced us; deliver synchronously through the pending queue
		p.inflight++
		p.loop.queuePending(func() { p.completeAccept(op, nil) })
		return nil
	default:
		windows.CloseHandle(h)
		return api.FromOS(cerr)
	}
}

// Accept retrieves a connected instance into client and creates a
// replacement instance to keep the ring full.
func (p *Pipe) Accept(client *Pipe) error {
	op, ok := p.accepts.Pop()
	if !ok {
		return api.EAGAIN
	}
	if err := client.open(op.sock, false); err != nil {
		windows.CloseHandle(op.sock)
		return err
	}
	client.flags |= flagConnected
	if p.flags&flagListening != 0 && !p.IsClosing() {
		return p.armAccepts()
	}
	return nil
}

// Connect opens the client end of the pipe at path. Named pipe connects
// complete synchronously; the callback is still deferred to the pending
// phase so it never runs inside the call.
func (p *Pipe) Connect(path string, cb func(error)) (*ConnectReq, error) {
	if path == "" {
		return nil, api.EINVAL
	}
	if p.h != windows.InvalidHandle || p.connectReq != nil {
		return nil, api.EBUSY
	}
	name, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, api.EINVAL
	}
	req := &ConnectReq{s: &p.Stream, cb: cb}
	req.register(p.loop, ReqConnect)
	h, cerr := windows.CreateFile(name,
		windows.GENERIC_READ|windows.GENERIC_WRITE, 0, nil,
		windows.OPEN_EXISTING, windows.FILE_FLAG_OVERLAPPED, 0)
	if cerr != nil {
		code := api.FromOS(cerr)
		if cerr == windows.ERROR_PIPE_BUSY {
			code = api.EAGAIN
		}
		req.finish(code)
		return req, nil
	}
	if oerr := p.open(h, false); oerr != nil {
		windows.CloseHandle(h)
		req.finish(oerr)
		return req, nil
	}
	p.flags |= flagConnected
	req.finish(nil)
	return req, nil
}

// SetPendingInstances sets the pre-post depth used by Listen. It has no
// effect on an armed listener.
func (p *Pipe) SetPendingInstances(n int) {
	if n > 0 && p.flags&flagListening == 0 {
		p.pendingInstances = n
	}
}
