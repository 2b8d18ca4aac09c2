// File: api/errno_windows.go
//go:build windows
// +build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Win32 / Winsock error normalization.

package api

import (
	"errors"

	"golang.org/x/sys/windows"
)

var osErrnos = map[windows.Errno]Errno{
	windows.ERROR_ACCESS_DENIED:     EACCES,
	windows.ERROR_NOACCESS:          EACCES,
	windows.WSAEACCES:               EACCES,
	windows.WSAEADDRINUSE:           EADDRINUSE,
	windows.ERROR_ADDRESS_ALREADY_ASSOCIATED: EADDRINUSE,
	windows.WSAEWOULDBLOCK:          EAGAIN,
	windows.ERROR_INVALID_HANDLE:    EBADF,
	windows.WSAEBADF:                EBADF,
	windows.ERROR_BUSY:              EBUSY,
	windows.ERROR_OPERATION_ABORTED: ECANCELED,
	windows.WSAECONNREFUSED:         ECONNREFUSED,
	windows.ERROR_NETNAME_DELETED:   ECONNRESET,
	windows.WSAECONNRESET:           ECONNRESET,
	windows.ERROR_FILE_EXISTS:       EEXIST,
	windows.ERROR_ALREADY_EXISTS:    EEXIST,
	windows.ERROR_INVALID_PARAMETER: EINVAL,
	windows.WSAEINVAL:               EINVAL,
	windows.ERROR_CANT_RESOLVE_FILENAME: ELOOP,
	windows.ERROR_TOO_MANY_OPEN_FILES:   EMFILE,
	windows.WSAEMFILE:               EMFILE,
	windows.ERROR_BUFFER_OVERFLOW:   ENAMETOOLONG,
	windows.ERROR_FILE_NOT_FOUND:    ENOENT,
	windows.ERROR_PATH_NOT_FOUND:    ENOENT,
	windows.ERROR_MOD_NOT_FOUND:     ENOENT,
	windows.ERROR_NOT_ENOUGH_MEMORY: ENOMEM,
	windows.ERROR_OUTOFMEMORY:       ENOMEM,
	windows.ERROR_DISK_FULL:         ENOSPC,
	windows.ERROR_CALL_NOT_IMPLEMENTED: ENOSYS,
	windows.WSAENOTCONN:             ENOTCONN,
	windows.ERROR_DIRECTORY:         ENOTDIR,
	windows.ERROR_DIR_NOT_EMPTY:     ENOTEMPTY,
	windows.WSAENOTSOCK:             ENOTSOCK,
	windows.ERROR_NOT_SUPPORTED:     ENOTSUP,
	windows.ERROR_BROKEN_PIPE:       EPIPE,
	windows.ERROR_NO_DATA:           EPIPE,
	windows.WSAETIMEDOUT:            ETIMEDOUT,
	windows.ERROR_SEM_TIMEOUT:       ETIMEDOUT,
}

// FromOS normalizes an OS-level error into the portable taxonomy.
// nil maps to nil; already-portable errors pass through unchanged.
// ERROR_HANDLE_EOF folds into EOF so read paths need no special case.
func FromOS(err error) error {
	if err == nil {
		return nil
	}
	var code Errno
	if errors.As(err, &code) {
		return code
	}
	var sys windows.Errno
	if errors.As(err, &sys) {
		if sys == windows.ERROR_HANDLE_EOF {
			return EOF
		}
		if mapped, ok := osErrnos[sys]; ok {
			return mapped
		}
	}
	return &OSError{Errno: UNKNOWN, Raw: err}
}

// ErrnoOf reduces any error to its portable code, collapsing to UNKNOWN.
func ErrnoOf(err error) Errno {
	switch e := FromOS(err).(type) {
	case Errno:
		return e
	case *OSError:
		return e.Errno
	default:
		return UNKNOWN
	}
}
