// File: loop/stream_windows.go
//go:build windows
// +build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion-model stream engine. Reads keep exactly one WSARecv/ReadFile
// posted while the stream is in read mode; writes keep the head of the FIFO
// queue in flight so completion order equals submission order; listeners
// maintain a ring of pre-posted accepts sized by the pending-instances
// count.

package loop

import (
	"unsafe"

	"github.com/eapache/queue"
	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/pool"
)

// Stream is the base of the connection-oriented handles (TCP, Pipe).
type Stream struct {
	Handle

	h      windows.Handle
	isSock bool

	allocCb AllocCallback
	readCb  ReadCallback
	readOp  *overlappedOp

	writeQ    *queue.Queue // *WriteReq; head is in flight
	writeOp   *overlappedOp
	writeSize int

	shutdownReq *ShutdownReq
	connectReq  *ConnectReq

	connCb       ConnectionCallback
	accepts      *pool.Ring[*overlappedOp] // completed, unretrieved accepts
	inflight     int                       // posted accept count
	postAcceptFn func() error              // set by the concrete kind at listen

	pendingInstances int
}

func (s *Stream) initStream(l *Loop, kind HandleKind) {
	s.h = windows.InvalidHandle
	s.writeQ = queue.New()
	s.pendingInstances = defaultPendingInstances
	s.Handle.init(l, kind, s.teardownStream)
}

// open adopts an OS handle and associates it with the completion port.
func (s *Stream) open(h windows.Handle, isSock bool) error {
	if s.h != windows.InvalidHandle {
		return api.EBUSY
	}
	if err := s.loop.poller.Add(uintptr(h), 1, 0); err != nil {
		return err
	}
	s.h = h
	s.isSock = isSock
	s.flags |= flagReadable | flagWritable
	return nil
}

// OSHandle exposes the underlying handle.
func (s *Stream) OSHandle() windows.Handle { return s.h }

// IsReadable reports whether reads may be started.
func (s *Stream) IsReadable() bool { return s.flags&flagReadable != 0 }

// IsWritable reports whether writes may be submitted.
func (s *Stream) IsWritable() bool { return s.flags&flagWritable != 0 }

// WriteQueueSize returns the number of bytes queued but not yet written.
func (s *Stream) WriteQueueSize() int { return s.writeSize }

func (s *Stream) updateActive() {
	busy := s.flags&(flagReading|flagListening|flagConnecting) != 0 ||
		s.writeQ.Length() > 0 || s.shutdownReq != nil || s.inflight > 0
	if busy {
		s.start()
	} else {
		s.stop()
	}
}

func (s *Stream) allocBuffer() []byte {
	if s.allocCb != nil {
		return s.allocCb(readBufferSize)
	}
	return pool.Default().Get(readBufferSize)
}

// ReadStart switches the stream into read mode by pre-posting one receive.
func (s *Stream) ReadStart(alloc AllocCallback, cb ReadCallback) error {
	if cb == nil {
		return api.EINVAL
	}
	if s.IsClosing() {
		return api.EINVAL
	}
	if s.h == windows.InvalidHandle {
		return api.EBADF
	}
	if s.flags&flagEOF != 0 {
		return api.EOF
	}
	s.allocCb = alloc
	s.readCb = cb
	s.flags |= flagReading
	if s.readOp == nil {
		if err := s.postRead(); err != nil {
			s.flags &^= flagReading
			return err
		}
	}
	s.updateActive()
	return nil
}

// ReadStop cancels future read delivery. An in-flight receive completes into
// the void.
func (s *Stream) ReadStop() {
	s.flags &^= flagReading
	s.updateActive()
}

func (s *Stream) postRead() error {
	op := &overlappedOp{kind: opRead, s: s, buf: s.allocBuffer()}
	var err error
	if s.isSock {
		wsabuf := windows.WSABuf{Len: uint32(len(op.buf)), Buf: &op.buf[0]}
		var flags, recvd uint32
		err = windows.WSARecv(s.h, &wsabuf, 1, &recvd, &flags, &op.ov, nil)
	} else {
		var done uint32
		err = windows.ReadFile(s.h, op.buf, &done, &op.ov)
	}
	if err != nil && err != windows.ERROR_IO_PENDING {
		return api.FromOS(err)
	}
	s.readOp = op
	return nil
}

func (s *Stream) completeRead(op *overlappedOp, bytes uint32, status error) {
	s.readOp = nil
	if s.IsClosing() || s.flags&flagReading == 0 {
		return
	}
	switch {
	case status != nil:
		var code error = api.ErrnoOf(status)
		if !s.isSock && code == api.EPIPE {
			// the write end of a pipe going away is end of stream
			code = api.EOF
		}
		if code == api.EOF {
			s.flags |= flagEOF
		}
		s.flags &^= flagReading
		s.updateActive()
		s.readCb(nil, code)
	case bytes == 0:
		s.flags |= flagEOF
		s.flags &^= flagReading
		s.updateActive()
		s.readCb(nil, api.EOF)
	default:
		s.readCb(op.buf[:bytes], nil)
		if s.flags&flagReading != 0 && !s.IsClosing() {
			if err := s.postRead(); err != nil {
				s.flags &^= flagReading
				s.updateActive()
				s.readCb(nil, err)
			}
		}
	}
}

// Write enqueues bufs; the head request is kept in flight so completions
// preserve submission order.
func (s *Stream) Write(bufs [][]byte, cb func(error)) (*WriteReq, error) {
	if len(bufs) == 0 {
		return nil, api.EINVAL
	}
	if s.h == windows.InvalidHandle {
		return nil, api.EBADF
	}
	if s.IsClosing() || s.flags&(flagShutting|flagShut) != 0 {
		return nil, api.EPIPE
	}
	req := &WriteReq{s: s, bufs: bufs, cb: cb}
	req.register(s.loop, ReqWrite)
	for _, b := range bufs {
		s.writeSize += len(b)
	}
	s.writeQ.Add(req)
	if s.writeOp == nil {
		if err := s.postWrite(); err != nil {
			s.failWrites(err)
			return req, nil
		}
	}
	s.updateActive()
	return req, nil
}

// TryWrite is unsupported under the completion model.
func (s *Stream) TryWrite(buf []byte) (int, error) {
	return 0, api.ENOTSUP
}

// postWrite keeps the head request in flight, resuming from its recorded
// (idx, off) progress after a short completion.
func (s *Stream) postWrite() error {
	if s.writeQ.Length() == 0 {
		return nil
	}
	req := s.writeQ.Peek().(*WriteReq)
	op := &overlappedOp{kind: opWrite, s: s, wreq: req}
	var err error
	if s.isSock {
		wsabufs := make([]windows.WSABuf, 0, len(req.bufs)-req.idx)
		head := req.bufs[req.idx][req.off:]
		wsabufs = append(wsabufs, windows.WSABuf{Len: uint32(len(head))})
		if len(head) > 0 {
			wsabufs[0].Buf = &head[0]
		}
		for _, b := range req.bufs[req.idx+1:] {
			wb := windows.WSABuf{Len: uint32(len(b))}
			if len(b) > 0 {
				wb.Buf = &b[0]
			}
			wsabufs = append(wsabufs, wb)
		}
		var sent uint32
		err = windows.WSASend(s.h, &wsabufs[0], uint32(len(wsabufs)), &sent, 0, &op.ov, nil)
	} else {
		var done uint32
		err = windows.WriteFile(s.h, req.bufs[req.idx][req.off:], &done, &op.ov)
	}
	if err != nil && err != windows.ERROR_IO_PENDING {
		return api.FromOS(err)
	}
	s.writeOp = op
	return nil
}

func (s *Stream) completeWrite(op *overlappedOp, bytes uint32, status error) {
	s.writeOp = nil
	req := op.wreq
	if status != nil {
		if s.writeQ.Length() > 0 && s.writeQ.Peek() == req {
			s.writeQ.Remove()
		}
		s.writeSize -= req.remaining()
		req.finish(api.FromOS(status))
		s.failWrites(api.FromOS(status))
		return
	}
	s.writeSize -= int(bytes)
	if req.advance(int(bytes)) {
		if s.writeQ.Length() > 0 && s.writeQ.Peek() == req {
			s.writeQ.Remove()
		}
		req.finish(nil)
	}
	if err := s.postWrite(); err != nil {
		s.failWrites(err)
		return
	}
	if s.writeQ.Length() == 0 && s.flags&flagShutting != 0 && s.shutdownReq != nil {
		s.doShutdown()
	}
	s.updateActive()
}

func (s *Stream) failWrites(err error) {
	for s.writeQ.Length() > 0 {
		req := s.writeQ.Remove().(*WriteReq)
		s.writeSize -= req.remaining()
		req.finish(err)
	}
	s.updateActive()
}

// Shutdown half-closes the write side once queued writes have drained.
func (s *Stream) Shutdown(cb func(error)) (*ShutdownReq, error) {
	if s.h == windows.InvalidHandle {
		return nil, api.EBADF
	}
	if s.IsClosing() || s.flags&(flagShutting|flagShut) != 0 {
		return nil, api.EINVAL
	}
	req := &ShutdownReq{s: s, cb: cb}
	req.register(s.loop, ReqShutdown)
	s.flags |= flagShutting
	s.shutdownReq = req
	if s.writeQ.Length() == 0 && s.writeOp == nil {
		s.doShutdown()
	}
	s.updateActive()
	return req, nil
}

func (s *Stream) doShutdown() {
	req := s.shutdownReq
	s.shutdownReq = nil
	var err error
	if s.isSock {
		err = api.FromOS(windows.Shutdown(s.h, windows.SHUT_WR))
	} else {
		err = api.FromOS(windows.FlushFileBuffers(s.h))
	}
	if err == nil {
		s.flags &^= flagShutting
		s.flags |= flagShut
	}
	req.finish(err)
}

func (s *Stream) onCompletion(op *overlappedOp, bytes uint32, status error) {
	switch op.kind {
	case opRead:
		s.completeRead(op, bytes, status)
	case opWrite:
		s.completeWrite(op, bytes, status)
	case opAccept:
		s.completeAccept(op, status)
	case opConnect:
		s.completeConnect(op, status)
	}
}

// armAccepts tops up the pre-posted accept ring; the concrete handle supplies
// the post function via postAcceptFn.
func (s *Stream) armAccepts() error {
	if s.accepts == nil {
		s.accepts = pool.NewRing[*overlappedOp](s.pendingInstances)
	}
	for s.inflight+s.accepts.Len() < s.pendingInstances {
		if err := s.postAcceptFn(); err != nil {
			if s.inflight > 0 || s.accepts.Len() > 0 {
				break
			}
			return err
		}
	}
	return nil
}

func (s *Stream) completeAccept(op *overlappedOp, status error) {
	s.inflight--
	if s.IsClosing() || s.flags&flagListening == 0 {
		if op.sock != windows.InvalidHandle {
			windows.Closesocket(op.sock)
		}
		s.updateActive()
		return
	}
	if status != nil {
		if op.sock != windows.InvalidHandle {
			windows.Closesocket(op.sock)
		}
		s.connCb(api.FromOS(status))
		return
	}
	s.accepts.Push(op)
	s.connCb(nil)
	// A retrieved peer frees a ring slot; repost lazily on the next accept.
}

func (s *Stream) completeConnect(op *overlappedOp, status error) {
	req := s.connectReq
	s.connectReq = nil
	s.flags &^= flagConnecting
	if req == nil {
		return
	}
	if status != nil {
		req.finish(api.FromOS(status))
	} else {
		s.finishConnectSocket()
		s.flags |= flagConnected | flagReadable | flagWritable
		req.finish(nil)
	}
	s.updateActive()
}

// finishConnectSocket applies SO_UPDATE_CONNECT_CONTEXT after ConnectEx.
func (s *Stream) finishConnectSocket() {
	if s.isSock {
		_ = windows.Setsockopt(s.h, windows.SOL_SOCKET, windows.SO_UPDATE_CONNECT_CONTEXT, nil, 0)
	}
}

func (s *Stream) teardownStream() {
	if s.connectReq != nil {
		req := s.connectReq
		s.connectReq = nil
		req.finishNow(api.ECANCELED)
	}
	if s.writeOp != nil && s.writeQ.Length() > 0 && s.writeQ.Peek() == s.writeOp.wreq {
		s.writeQ.Remove()
		s.writeOp.wreq.finishNow(api.ECANCELED)
	}
	for s.writeQ.Length() > 0 {
		req := s.writeQ.Remove().(*WriteReq)
		req.finishNow(api.ECANCELED)
	}
	s.writeSize = 0
	if s.shutdownReq != nil {
		req := s.shutdownReq
		s.shutdownReq = nil
		req.finishNow(api.ECANCELED)
	}
	if s.accepts != nil {
		for {
			op, ok := s.accepts.Pop()
			if !ok {
				break
			}
			if op.sock != windows.InvalidHandle {
				windows.Closesocket(op.sock)
			}
			if s.connCb != nil {
				s.connCb(api.ECANCELED)
			}
		}
	}
	s.flags &^= flagReading | flagListening | flagConnecting
	if s.h != windows.InvalidHandle {
		_ = windows.CancelIoEx(s.h, nil)
		if s.isSock {
			windows.Closesocket(s.h)
		} else {
			windows.CloseHandle(s.h)
		}
		s.h = windows.InvalidHandle
	}
}

// acceptAddrSpace is the per-side address scratch AcceptEx requires.
const acceptAddrSpace = uint32(unsafe.Sizeof(windows.RawSockaddrAny{})) + 16
