// File: loop/poll_windows.go
//go:build windows
// +build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import "github.com/momentics/hioload-loop/api"

// Poll delivers readiness events for a foreign descriptor. The completion
// backend has no readiness surface, so poll handles are unsupported here.
type Poll struct {
	Handle
}

// NewPoll reports ENOTSUP under the completion backend.
func NewPoll(l *Loop, fd int) (*Poll, error) {
	return nil, api.ENOTSUP
}

// Start reports ENOTSUP under the completion backend.
func (p *Poll) Start(mask api.EventMask, cb func(mask api.EventMask)) error {
	return api.ENOTSUP
}

// Stop is a no-op under the completion backend.
func (p *Poll) Stop() error { return nil }
