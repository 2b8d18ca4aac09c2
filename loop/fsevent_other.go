// File: loop/fsevent_other.go
//go:build unix && !linux
// +build unix,!linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import "github.com/momentics/hioload-loop/api"

// FsEvent watches a path for filesystem changes. Only the inotify backend
// is implemented; other Unix platforms report ENOSYS.
type FsEvent struct {
	Handle
}

// NewFsEvent reports ENOSYS on platforms without a change-notification
// backend.
func NewFsEvent(l *Loop) (*FsEvent, error) {
	return nil, api.ENOSYS
}

// Start reports ENOSYS on platforms without a backend.
func (f *FsEvent) Start(path string, cb FsEventCallback) error {
	return api.ENOSYS
}

// Stop is a no-op without a backend.
func (f *FsEvent) Stop() error { return nil }

// Path returns "" without a backend.
func (f *FsEvent) Path() string { return "" }
