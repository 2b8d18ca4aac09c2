// File: loop/tcp_windows.go
//go:build windows
// +build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP over winsock: AcceptEx ring for listeners, ConnectEx for outbound
// connections, WSARecv/WSASend in the shared stream engine.

package loop

import (
	"net"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-loop/api"
)

// TCP is a stream handle over a TCP socket.
type TCP struct {
	Stream
	family int
}

// NewTCP initializes a TCP handle bound to l. The socket is created lazily
// on Bind, Connect or Open.
func NewTCP(l *Loop) (*TCP, error) {
	t := &TCP{}
	t.initStream(l, KindTCP)
	return t, nil
}

// Open adopts an existing connected socket.
func (t *TCP) Open(h windows.Handle) error {
	t.family = windows.AF_INET
	return t.open(h, true)
}

func newOverlappedSocket(family int) (windows.Handle, error) {
	h, err := windows.WSASocket(int32(family), windows.SOCK_STREAM, windows.IPPROTO_TCP,
		nil, 0, windows.WSA_FLAG_OVERLAPPED|windows.WSA_FLAG_NO_HANDLE_INHERIT)
	if err != nil {
		return windows.InvalidHandle, api.FromOS(err)
	}
	return h, nil
}

func (t *TCP) maybeNewSocket(family int) error {
	if t.h != windows.InvalidHandle {
		return nil
	}
	h, err := newOverlappedSocket(family)
	if err != nil {
		return err
	}
	if err := t.open(h, true); err != nil {
		windows.Closesocket(h)
		return err
	}
	t.family = family
	return nil
}

// Bind binds the socket to addr.
func (t *TCP) Bind(addr *net.TCPAddr) error {
	sa, family, err := tcpSockaddr(addr)
	if err != nil {
		return err
	}
	if err := t.maybeNewSocket(family); err != nil {
		return err
	}
	return api.FromOS(windows.Bind(t.h, sa))
}

// Listen starts accepting connections, pre-posting the accept ring.
func (t *TCP) Listen(backlog int, cb ConnectionCallback) error {
	if cb == nil {
		return api.EINVAL
	}
	if t.h == windows.InvalidHandle {
		return api.EBADF
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := windows.Listen(t.h, backlog); err != nil {
		return api.FromOS(err)
	}
	t.connCb = cb
	t.flags |= flagListening
	t.postAcceptFn = t.postAccept
	if err := t.armAccepts(); err != nil {
		t.flags &^= flagListening
		return err
	}
	t.updateActive()
	return nil
}

func (t *TCP) postAccept() error {
	sock, err := newOverlappedSocket(t.family)
	if err != nil {
		return err
	}
	op := &overlappedOp{
		kind: opAccept,
		s:    &t.Stream,
		sock: sock,
		abuf: make([]byte, 2*acceptAddrSpace),
	}
	var recvd uint32
	aerr := windows.AcceptEx(t.h, sock, &op.abuf[0], 0,
		acceptAddrSpace, acceptAddrSpace, &recvd, &op.ov)
	if aerr != nil && aerr != windows.ERROR_IO_PENDING {
		windows.Closesocket(sock)
		return api.FromOS(aerr)
	}
	t.inflight++
	return nil
}

// Accept retrieves a completed peer into client and refills the ring.
func (t *TCP) Accept(client *TCP) error {
	op, ok := t.accepts.Pop()
	if !ok {
		return api.EAGAIN
	}
	lh := t.h
	_ = windows.Setsockopt(op.sock, windows.SOL_SOCKET, windows.SO_UPDATE_ACCEPT_CONTEXT,
		(*byte)(unsafe.Pointer(&lh)), int32(unsafe.Sizeof(lh)))
	if err := client.open(op.sock, true); err != nil {
		windows.Closesocket(op.sock)
		return err
	}
	client.family = t.family
	client.flags |= flagConnected
	if t.flags&flagListening != 0 && !t.IsClosing() {
		return t.armAccepts()
	}
	return nil
}

// Connect starts a non-blocking connection to addr. ConnectEx requires a
// bound socket, so unbound sockets are bound to the wildcard address first.
func (t *TCP) Connect(addr *net.TCPAddr, cb func(error)) (*ConnectReq, error) {
	sa, family, err := tcpSockaddr(addr)
	if err != nil {
		return nil, err
	}
	if t.connectReq != nil || t.flags&flagConnecting != 0 {
		return nil, api.EBUSY
	}
	if err := t.maybeNewSocket(family); err != nil {
		return nil, err
	}
	if err := t.bindAny(family); err != nil {
		return nil, err
	}
	req := &ConnectReq{s: &t.Stream, cb: cb}
	req.register(t.loop, ReqConnect)
	op := &overlappedOp{kind: opConnect, s: &t.Stream}
	cerr := windows.ConnectEx(t.h, sa, nil, 0, nil, &op.ov)
	if cerr != nil && cerr != windows.ERROR_IO_PENDING {
		req.unregister()
		return nil, api.FromOS(cerr)
	}
	t.flags |= flagConnecting
	t.connectReq = req
	t.updateActive()
	return req, nil
}

func (t *TCP) bindAny(family int) error {
	var sa windows.Sockaddr
	if family == windows.AF_INET6 {
		sa = &windows.SockaddrInet6{}
	} else {
		sa = &windows.SockaddrInet4{}
	}
	err := windows.Bind(t.h, sa)
	if err == windows.WSAEINVAL {
		// already bound
		return nil
	}
	return api.FromOS(err)
}

// Sockname returns the locally bound address.
func (t *TCP) Sockname() (*net.TCPAddr, error) {
	if t.h == windows.InvalidHandle {
		return nil, api.EBADF
	}
	sa, err := windows.Getsockname(t.h)
	if err != nil {
		return nil, api.FromOS(err)
	}
	return sockaddrToTCP(sa)
}

// Peername returns the remote address of a connected socket.
func (t *TCP) Peername() (*net.TCPAddr, error) {
	if t.h == windows.InvalidHandle {
		return nil, api.EBADF
	}
	sa, err := windows.Getpeername(t.h)
	if err != nil {
		return nil, api.FromOS(err)
	}
	return sockaddrToTCP(sa)
}

// NoDelay toggles Nagle's algorithm.
func (t *TCP) NoDelay(on bool) error {
	if t.h == windows.InvalidHandle {
		return api.EBADF
	}
	v := 0
	if on {
		v = 1
	}
	return api.FromOS(windows.SetsockoptInt(t.h, windows.IPPROTO_TCP, windows.TCP_NODELAY, v))
}

// KeepAlive toggles TCP keep-alive probing.
func (t *TCP) KeepAlive(on bool) error {
	if t.h == windows.InvalidHandle {
		return api.EBADF
	}
	v := 0
	if on {
		v = 1
	}
	return api.FromOS(windows.SetsockoptInt(t.h, windows.SOL_SOCKET, windows.SO_KEEPALIVE, v))
}

func tcpSockaddr(addr *net.TCPAddr) (windows.Sockaddr, int, error) {
	if addr == nil {
		return nil, 0, api.EINVAL
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &windows.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, windows.AF_INET, nil
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		sa := &windows.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip6)
		return sa, windows.AF_INET6, nil
	}
	return nil, 0, api.EINVAL
}

func sockaddrToTCP(sa windows.Sockaddr) (*net.TCPAddr, error) {
	switch v := sa.(type) {
	case *windows.SockaddrInet4:
		return &net.TCPAddr{IP: append(net.IP(nil), v.Addr[:]...), Port: v.Port}, nil
	case *windows.SockaddrInet6:
		return &net.TCPAddr{IP: append(net.IP(nil), v.Addr[:]...), Port: v.Port}, nil
	default:
		return nil, api.ENOTSOCK
	}
}
