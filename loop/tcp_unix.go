// File: loop/tcp_unix.go
//go:build unix
// +build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-loop/api"
)

// TCP is a stream handle over a TCP socket.
type TCP struct {
	Stream
}

// NewTCP initializes a TCP handle bound to l. The socket is created lazily
// on Bind, Connect or Open.
func NewTCP(l *Loop) (*TCP, error) {
	t := &TCP{}
	t.initStream(l, KindTCP)
	return t, nil
}

// Open adopts an existing connected socket descriptor.
func (t *TCP) Open(fd int) error {
	return t.open(fd)
}

func (t *TCP) maybeNewSocket(family int) error {
	if t.fd >= 0 {
		return nil
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return api.FromOS(err)
	}
	if err := t.open(fd); err != nil {
		unix.Close(fd)
		return err
	}
	return nil
}

// Bind binds the socket to addr, with SO_REUSEADDR so restarting listeners
// do not trip over TIME_WAIT peers.
func (t *TCP) Bind(addr *net.TCPAddr) error {
	sa, family, err := tcpSockaddr(addr)
	if err != nil {
		return err
	}
	if err := t.maybeNewSocket(family); err != nil {
		return err
	}
	if err := unix.SetsockoptInt(t.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return api.FromOS(err)
	}
	return api.FromOS(unix.Bind(t.fd, sa))
}

// Listen starts accepting connections, announcing each through cb.
func (t *TCP) Listen(backlog int, cb ConnectionCallback) error {
	if backlog <= 0 {
		backlog = 128
	}
	return t.listen(backlog, cb)
}

// Accept retrieves the pending peer into client.
func (t *TCP) Accept(client *TCP) error {
	return t.acceptInto(&client.Stream)
}

// Connect starts a non-blocking connection to addr.
func (t *TCP) Connect(addr *net.TCPAddr, cb func(error)) (*ConnectReq, error) {
	sa, family, err := tcpSockaddr(addr)
	if err != nil {
		return nil, err
	}
	if err := t.maybeNewSocket(family); err != nil {
		return nil, err
	}
	return t.startConnect(sa, cb)
}

// Sockname returns the locally bound address, resolving port 0 binds.
func (t *TCP) Sockname() (*net.TCPAddr, error) {
	if t.fd < 0 {
		return nil, api.EBADF
	}
	sa, err := unix.Getsockname(t.fd)
	if err != nil {
		return nil, api.FromOS(err)
	}
	return sockaddrToTCP(sa)
}

// Peername returns the remote address of a connected socket.
func (t *TCP) Peername() (*net.TCPAddr, error) {
	if t.fd < 0 {
		return nil, api.EBADF
	}
	sa, err := unix.Getpeername(t.fd)
	if err != nil {
		return nil, api.FromOS(err)
	}
	return sockaddrToTCP(sa)
}

// NoDelay toggles Nagle's algorithm.
func (t *TCP) NoDelay(on bool) error {
	if t.fd < 0 {
		return api.EBADF
	}
	v := 0
	if on {
		v = 1
	}
	return api.FromOS(unix.SetsockoptInt(t.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v))
}

// KeepAlive toggles TCP keep-alive probing.
func (t *TCP) KeepAlive(on bool) error {
	if t.fd < 0 {
		return api.EBADF
	}
	v := 0
	if on {
		v = 1
	}
	return api.FromOS(unix.SetsockoptInt(t.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, v))
}

func tcpSockaddr(addr *net.TCPAddr) (unix.Sockaddr, int, error) {
	if addr == nil {
		return nil, 0, api.EINVAL
	}
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip6)
		return sa, unix.AF_INET6, nil
	}
	return nil, 0, api.EINVAL
}

func sockaddrToTCP(sa unix.Sockaddr) (*net.TCPAddr, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append(net.IP(nil), v.Addr[:]...), Port: v.Port}, nil
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append(net.IP(nil), v.Addr[:]...), Port: v.Port}, nil
	default:
		return nil, api.ENOTSOCK
	}
}
