// File: reactor/reactor_stub.go
//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd && !windows
// +build !linux,!darwin,!dragonfly,!freebsd,!netbsd,!openbsd,!windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "github.com/momentics/hioload-loop/api"

// NewPoller reports ENOSYS on platforms without a poller backend.
func NewPoller() (api.Poller, error) {
	return nil, api.ENOSYS
}
