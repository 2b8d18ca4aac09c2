// File: loop/fsevent_windows.go
//go:build windows
// +build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loop

import "github.com/momentics/hioload-loop/api"

// FsEvent watches a path for filesystem changes. Only the inotify backend
// is implemented; Windows reports ENOSYS.
type FsEvent struct {
	Handle
}

// NewFsEvent reports ENOSYS: no change-notification backend on Windows.
func NewFsEvent(l *Loop) (*FsEvent, error) {
	return nil, api.ENOSYS
}

// Start reports ENOSYS on Windows.
func (f *FsEvent) Start(path string, cb FsEventCallback) error {
	return api.ENOSYS
}

// Stop is a no-op on Windows.
func (f *FsEvent) Stop() error { return nil }

// Path returns "" on Windows.
func (f *FsEvent) Path() string { return "" }
