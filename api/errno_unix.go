// File: api/errno_unix.go
//go:build unix
// +build unix

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unix errno normalization.

package api

import (
	"errors"

	"golang.org/x/sys/unix"
)

var osErrnos = map[unix.Errno]Errno{
	unix.EACCES:       EACCES,
	unix.EADDRINUSE:   EADDRINUSE,
	unix.EAGAIN:       EAGAIN,
	unix.EBADF:        EBADF,
	unix.EBUSY:        EBUSY,
	unix.ECANCELED:    ECANCELED,
	unix.ECONNREFUSED: ECONNREFUSED,
	unix.ECONNRESET:   ECONNRESET,
	unix.EEXIST:       EEXIST,
	unix.EINTR:        EINTR,
	unix.EINVAL:       EINVAL,
	unix.EIO:          EIO,
	unix.EISDIR:       EISDIR,
	unix.ELOOP:        ELOOP,
	unix.EMFILE:       EMFILE,
	unix.ENAMETOOLONG: ENAMETOOLONG,
	unix.ENOENT:       ENOENT,
	unix.ENOMEM:       ENOMEM,
	unix.ENOSPC:       ENOSPC,
	unix.ENOSYS:       ENOSYS,
	unix.ENOTCONN:     ENOTCONN,
	unix.ENOTDIR:      ENOTDIR,
	unix.ENOTEMPTY:    ENOTEMPTY,
	unix.ENOTSOCK:     ENOTSOCK,
	unix.ENOTSUP:      ENOTSUP,
	unix.EPIPE:        EPIPE,
	unix.ESRCH:        ESRCH,
	unix.ETIMEDOUT:    ETIMEDOUT,
}

// FromOS normalizes an OS-level error into the portable taxonomy.
// nil maps to nil; already-portable errors pass through unchanged.
func FromOS(err error) error {
	if err == nil {
		return nil
	}
	var code Errno
	if errors.As(err, &code) {
		return code
	}
	var sys unix.Errno
	if errors.As(err, &sys) {
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
