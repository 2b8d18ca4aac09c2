// File: loop/stream_unix.go
//go:build unix
// +build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness-model stream engine. Reads pump until the descriptor would
// block; writes drain a FIFO queue with partial progress tracked per
// request; shutdown waits for the queue to empty before the half-close.

package loop

import (
	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/pool"
)

// Stream is the base of the connection-oriented handles (TCP, Pipe).
type Stream struct {
	Handle

	fd      int
	watcher fdWatcher

	allocCb AllocCallback
	readCb  ReadCallback

	writeQ    *queue.Queue // *WriteReq
	writeSize int

	shutdownReq *ShutdownReq
	connectReq  *ConnectReq

	connCb     ConnectionCallback
	acceptedFd int

	pendingInstances int
}

func (s *Stream) initStream(l *Loop, kind HandleKind) {
	s.fd = -1
	s.acceptedFd = -1
	s.writeQ = queue.New()
	s.pendingInstances = defaultPendingInstances
	s.watcher.fd = -1
	s.watcher.cb = s.onIO
	s.Handle.init(l, kind, s.teardownStream)
}

// open adopts fd into the stream, switching it to non-blocking mode.
func (s *Stream) open(fd int) error {
	if s.fd >= 0 {
		return api.EBUSY
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return api.FromOS(err)
	}
	unix.CloseOnExec(fd)
	s.fd = fd
	s.watcher.fd = fd
	s.flags |= flagReadable | flagWritable
	return nil
}

// Fd exposes the underlying descriptor, or -1 before open.
func (s *Stream) Fd() int { return s.fd }

// IsReadable reports whether reads may be started.
func (s *Stream) IsReadable() bool { return s.flags&flagReadable != 0 }

// IsWritable reports whether writes may be submitted.
func (s *Stream) IsWritable() bool { return s.flags&flagWritable != 0 }

// WriteQueueSize returns the number of bytes queued but not yet written.
func (s *Stream) WriteQueueSize() int { return s.writeSize }

// updateActive reconciles the handle's liveness contribution with what the
// stream is actually doing.
func (s *Stream) updateActive() {
	busy := s.flags&(flagReading|flagListening|flagConnecting) != 0 ||
		s.writeQ.Length() > 0 || s.shutdownReq != nil
	if busy {
		s.start()
	} else {
		s.stop()
	}
}

func (s *Stream) onIO(mask api.EventMask) {
	if s.IsClosing() {
		return
	}
	if s.flags&flagListening != 0 {
		if mask&api.Readable != 0 {
			s.onConnection()
		}
		return
	}
	if s.connectReq != nil {
		s.onConnectDone()
		if s.IsClosing() {
			return
		}
	}
	if mask&api.Readable != 0 {
		s.onReadable()
		if s.IsClosing() {
			return
		}
	}
	if mask&api.Writable != 0 {
		s.flushWrites()
	}
}

// ReadStart switches the stream into read mode. alloc may be nil to use the
// shared buffer pool.
func (s *Stream) ReadStart(alloc AllocCallback, cb ReadCallback) error {
	if cb == nil {
		return api.EINVAL
	}
	if s.IsClosing() {
		return api.EINVAL
	}
	if s.fd < 0 {
		return api.EBADF
	}
	if s.flags&flagEOF != 0 {
		return api.EOF
	}
	s.allocCb = alloc
	s.readCb = cb
	s.flags |= flagReading
	if err := s.loop.watcherStart(&s.watcher, api.Readable); err != nil {
		s.flags &^= flagReading
		return err
	}
	s.updateActive()
	return nil
}

// ReadStop cancels future read delivery. Reads stopped from inside a read
// callback deliver no further data.
func (s *Stream) ReadStop() {
	if s.flags&flagReading == 0 {
		return
	}
	s.stopReading()
	s.updateActive()
}

func (s *Stream) stopReading() {
	s.flags &^= flagReading
	s.loop.watcherStop(&s.watcher, api.Readable)
}

func (s *Stream) allocBuffer() []byte {
	if s.allocCb != nil {
		return s.allocCb(readBufferSize)
	}
	return pool.Default().Get(readBufferSize)
}

func (s *Stream) onReadable() {
	for s.flags&flagReading != 0 && !s.IsClosing() {
		buf := s.allocBuffer()
		if len(buf) == 0 {
			s.readCb(nil, api.ENOMEM)
			return
		}
		n, err := unix.Read(s.fd, buf)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return
		case err != nil:
			s.stopReading()
			s.updateActive()
			s.readCb(nil, api.FromOS(err))
			return
		case n == 0:
			s.flags |= flagEOF
			s.stopReading()
			s.updateActive()
			s.readCb(nil, api.EOF)
			return
		default:
			s.readCb(buf[:n], nil)
		}
	}
}

// Write enqueues bufs for transmission. A best-effort inline write happens
// when the queue is empty; the remainder drains on writability in FIFO
// order. cb fires once with nil on success or the fatal error.
func (s *Stream) Write(bufs [][]byte, cb func(error)) (*WriteReq, error) {
	if len(bufs) == 0 {
		return nil, api.EINVAL
	}
	if s.fd < 0 {
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
	wasEmpty := s.writeQ.Length() == 0
	s.writeQ.Add(req)
	if wasEmpty {
		s.flushWrites()
	}
	s.updateActive()
	return req, nil
}

// TryWrite performs one non-blocking write, bypassing the queue. It fails
// with EAGAIN when writes are already queued or the descriptor is not ready.
func (s *Stream) TryWrite(buf []byte) (int, error) {
	if s.fd < 0 {
		return 0, api.EBADF
	}
	if s.writeQ.Length() > 0 {
		return 0, api.EAGAIN
	}
	for {
		n, err := unix.Write(s.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, api.FromOS(err)
		}
		return n, nil
	}
}

// flushWrites drains the queue until it empties or the descriptor would
// block. A fatal error fails the head request and every queued one with the
// same code.
func (s *Stream) flushWrites() {
	for s.writeQ.Length() > 0 {
		req := s.writeQ.Peek().(*WriteReq)
		vecs := make([][]byte, 0, len(req.bufs)-req.idx)
		vecs = append(vecs, req.bufs[req.idx][req.off:])
		vecs = append(vecs, req.bufs[req.idx+1:]...)
		n, err := unix.Writev(s.fd, vecs)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			s.loop.watcherStart(&s.watcher, api.Writable)
			return
		}
		if err != nil {
			s.failWrites(api.FromOS(err))
			return
		}
		s.writeSize -= n
		if req.advance(n) {
			s.writeQ.Remove()
			req.finish(nil)
		}
	}
	s.loop.watcherStop(&s.watcher, api.Writable)
	if s.flags&flagShutting != 0 && s.shutdownReq != nil {
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
	s.loop.watcherStop(&s.watcher, api.Writable)
	s.updateActive()
}

// Shutdown half-closes the write side once queued writes have drained.
// Subsequent writes fail with EPIPE.
func (s *Stream) Shutdown(cb func(error)) (*ShutdownReq, error) {
	if s.fd < 0 {
		return nil, api.EBADF
	}
	if s.IsClosing() || s.flags&(flagShutting|flagShut) != 0 {
		return nil, api.EINVAL
	}
	req := &ShutdownReq{s: s, cb: cb}
	req.register(s.loop, ReqShutdown)
	s.flags |= flagShutting
	s.shutdownReq = req
	if s.writeQ.Length() == 0 {
		s.doShutdown()
	}
	s.updateActive()
	return req, nil
}

func (s *Stream) doShutdown() {
	req := s.shutdownReq
	s.shutdownReq = nil
	err := api.FromOS(unix.Shutdown(s.fd, unix.SHUT_WR))
	if err == nil {
		s.flags &^= flagShutting
		s.flags |= flagShut
	}
	req.finish(err)
}

// listen arms the stream as a listener.
func (s *Stream) listen(backlog int, cb ConnectionCallback) error {
	if cb == nil {
		return api.EINVAL
	}
	if s.fd < 0 {
		return api.EBADF
	}
	if err := unix.Listen(s.fd, backlog); err != nil {
		return api.FromOS(err)
	}
	s.connCb = cb
	s.flags |= flagListening
	if err := s.loop.watcherStart(&s.watcher, api.Readable); err != nil {
		return err
	}
	s.updateActive()
	return nil
}

// onConnection accepts until the descriptor would block. When user code does
// not retrieve the peer inside the callback, the listener is disarmed until
// the next accept call re-arms it.
func (s *Stream) onConnection() {
	for s.flags&flagListening != 0 && !s.IsClosing() {
		fd, _, err := unix.Accept(s.fd)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN || err == unix.ECONNABORTED {
			return
		}
		if err != nil {
			s.connCb(api.FromOS(err))
			return
		}
		s.acceptedFd = fd
		s.connCb(nil)
		if s.acceptedFd != -1 {
			s.loop.watcherStop(&s.watcher, api.Readable)
			return
		}
	}
}

// acceptInto hands the pending peer to client and re-arms the listener.
func (s *Stream) acceptInto(client *Stream) error {
	if s.acceptedFd == -1 {
		return api.EAGAIN
	}
	if err := client.open(s.acceptedFd); err != nil {
		return err
	}
	client.flags |= flagConnected
	s.acceptedFd = -1
	if s.flags&flagListening != 0 && !s.IsClosing() {
		return s.loop.watcherStart(&s.watcher, api.Readable)
	}
	return nil
}

// startConnect issues a non-blocking connect, completing through the
// writability path on EINPROGRESS.
func (s *Stream) startConnect(sa unix.Sockaddr, cb func(error)) (*ConnectReq, error) {
	if s.connectReq != nil || s.flags&flagConnecting != 0 {
		return nil, api.EBUSY
	}
	err := unix.Connect(s.fd, sa)
	req := &ConnectReq{s: s, cb: cb}
	req.register(s.loop, ReqConnect)
	if err == nil {
		s.flags |= flagConnected | flagReadable | flagWritable
		req.finish(nil)
		return req, nil
	}
	if err != unix.EINPROGRESS {
		req.unregister()
		return nil, api.FromOS(err)
	}
	s.flags |= flagConnecting
	s.connectReq = req
	if werr := s.loop.watcherStart(&s.watcher, api.Writable); werr != nil {
		s.flags &^= flagConnecting
		s.connectReq = nil
		req.unregister()
		return nil, werr
	}
	s.updateActive()
	return req, nil
}

func (s *Stream) onConnectDone() {
	req := s.connectReq
	s.connectReq = nil
	s.flags &^= flagConnecting
	s.loop.watcherStop(&s.watcher, api.Writable)
	soerr, gerr := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	var err error
	switch {
	case gerr != nil:
		err = api.FromOS(gerr)
	case soerr != 0:
		err = api.FromOS(unix.Errno(soerr))
	default:
		s.flags |= flagConnected | flagReadable | flagWritable
	}
	req.finish(err)
	s.updateActive()
}

// teardownStream runs on Close: queued requests flush with ECANCELED on the
// current iteration, the pending peer (if any) is discarded with a
// cancellation notice, and the descriptor is released.
func (s *Stream) teardownStream() {
	if s.connectReq != nil {
		req := s.connectReq
		s.connectReq = nil
		req.finishNow(api.ECANCELED)
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
	if s.acceptedFd != -1 {
		unix.Close(s.acceptedFd)
		s.acceptedFd = -1
		if s.connCb != nil {
			s.connCb(api.ECANCELED)
		}
	}
	s.flags &^= flagReading | flagListening | flagConnecting
	s.loop.watcherClose(&s.watcher)
	if s.fd >= 0 {
		unix.Close(s.fd)
		s.fd = -1
	}
}
