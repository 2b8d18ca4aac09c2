// File: loop/getaddrinfo.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Name resolution runs on the worker pool; results are delivered on the loop
// goroutine.

package loop

import (
	"context"
	"errors"
	"net"

	"github.com/momentics/hioload-loop/api"
	"github.com/momentics/hioload-loop/workpool"
)

// AddrInfoReq records one name resolution request.
type AddrInfoReq struct {
	Request
	Node    string
	Service string

	Addrs []net.IP
	Port  int
	Err   error

	cb   func(*AddrInfoReq)
	task *workpool.Task
}

// Cancel withdraws a queued request; the callback still runs once with
// Err = ECANCELED.
func (r *AddrInfoReq) Cancel() error {
	return r.loop.workPool().Cancel(r.task)
}

// Getaddrinfo resolves node and service ("tcp" port name or number) on the
// worker pool and invokes cb on the loop goroutine.
func (l *Loop) Getaddrinfo(node, service string, cb func(*AddrInfoReq)) (*AddrInfoReq, error) {
	if cb == nil {
		return nil, api.EINVAL
	}
	r := &AddrInfoReq{Node: node, Service: service, cb: cb}
	r.Request.register(l, ReqGetaddrinfo)
	r.task = &workpool.Task{
		Run: func() {
			if node != "" {
				addrs, err := net.DefaultResolver.LookupIP(context.Background(), "ip", node)
				r.Addrs = addrs
				if err != nil {
					r.Err = mapLookupErr(err)
					return
				}
			}
			if service != "" {
				port, err := net.DefaultResolver.LookupPort(context.Background(), "tcp", service)
				r.Port = port
				if err != nil {
					r.Err = mapLookupErr(err)
				}
			}
		},
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

func mapLookupErr(err error) error {
	var dns *net.DNSError
	if errors.As(err, &dns) {
		if dns.IsTimeout {
			return api.ETIMEDOUT
		}
		if dns.IsNotFound {
			return api.ENOENT
		}
	}
	return api.FromOS(err)
}
