// File: loop/fsevent.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral filesystem-change surface. Watching a directory reports
// the affected entry name; watching a single file reports the file's own
// base name.

package loop

// FsEventType classifies a filesystem change notification.
type FsEventType uint32

const (
	// FsEventRename covers creation, deletion and moves.
	FsEventRename FsEventType = 1 << iota
	// FsEventChange covers content and attribute modification.
	FsEventChange
)

// FsEventCallback delivers one change notification. filename is relative to
// the watched path; events is a FsEventRename/FsEventChange mask.
type FsEventCallback func(filename string, events FsEventType, err error)
