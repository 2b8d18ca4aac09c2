// File: loop/loop_windows.go
//go:build windows
// +build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion dispatch. Every submitted operation embeds a windows.Overlapped
// as its first field; the poller hands the overlapped pointer back and the
// loop recovers the operation record from it.

package loop

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/momentics/hioload-loop/api"
)

type loopPlatform struct{}

func (l *Loop) platformInit() {}

type opKind int

const (
	opRead opKind = iota + 1
	opWrite
	opAccept
	opConnect
)

// overlappedOp heads every overlapped submission. The Overlapped field must
// stay first: completion packets are mapped back by pointer identity.
type overlappedOp struct {
	ov   windows.Overlapped
	kind opKind
	s    *Stream

	buf  []byte      // read payload
	wreq *WriteReq   // opWrite
	creq *ConnectReq // opConnect
	sock windows.Handle // opAccept: the pre-created accept socket
	abuf []byte         // opAccept: address scratch
}

func opFromEvent(ev api.Event) *overlappedOp {
	if ev.Ctx == 0 {
		return nil
	}
	return (*overlappedOp)(unsafe.Pointer(ev.Ctx))
}

func (l *Loop) dispatchEvent(ev api.Event) {
	op := opFromEvent(ev)
	if op == nil || op.s == nil {
		return
	}
	op.s.onCompletion(op, ev.Bytes, ev.Status)
}
