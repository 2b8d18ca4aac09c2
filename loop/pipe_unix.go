// File: loop/pipe_unix.go
//go:build unix
// +build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pipes are AF_UNIX stream sockets. They double as the parent side of
// child-process stdio plumbing: Spawn wires one end of a socketpair into the
// child and opens the other end here.

package loop

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-loop/api"
)

// Pipe is a stream handle over a local (named or anonymous) pipe.
type Pipe struct {
	Stream
}

// NewPipe initializes a pipe handle bound to l.
func NewPipe(l *Loop) (*Pipe, error) {
	p := &Pipe{}
	p.initStream(l, KindPipe)
	return p, nil
}

// Open adopts an existing descriptor, typically the parent end of a stdio
// pair created by Spawn.
func (p *Pipe) Open(fd int) error {
	return p.open(fd)
}

func (p *Pipe) maybeNewSocket() error {
	if p.fd >= 0 {
		return nil
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return api.FromOS(err)
	}
	if err := p.open(fd); err != nil {
		unix.Close(fd)
		return err
	}
	return nil
}

// Bind binds the pipe to a filesystem path.
func (p *Pipe) Bind(path string) error {
	if path == "" {
		return api.EINVAL
	}
	if err := p.maybeNewSocket(); err != nil {
		return err
	}
	return api.FromOS(unix.Bind(p.fd, &unix.SockaddrUnix{Name: path}))
}

// Listen starts accepting connections, announcing each through cb.
func (p *Pipe) Listen(backlog int, cb ConnectionCallback) error {
	if backlog <= 0 {
		backlog = 128
	}
	return p.listen(backlog, cb)
}

// Accept retrieves the pending peer into client.
func (p *Pipe) Accept(client *Pipe) error {
	return p.acceptInto(&client.Stream)
}

// Connect starts a connection to the pipe at path.
func (p *Pipe) Connect(path string, cb func(error)) (*ConnectReq, error) {
	if path == "" {
		return nil, api.EINVAL
	}
	if err := p.maybeNewSocket(); err != nil {
		return nil, err
	}
	return p.startConnect(&unix.SockaddrUnix{Name: path}, cb)
}

// SetPendingInstances sets the advisory pre-post depth for completion-model
// listeners. Readiness backends accept and ignore it.
func (p *Pipe) SetPendingInstances(n int) {
	if n > 0 {
		p.pendingInstances = n
	}
}
