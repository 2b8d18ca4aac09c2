// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Portable error taxonomy. OS errors are normalized into a closed set of
// negative codes; anything unmapped collapses to UNKNOWN with the raw OS
// value retained for logging.

package api

import "fmt"

// Errno is a portable negative error code.
type Errno int

const (
	// EOF reports end of stream. It is distinct from every OS code.
	EOF Errno = -4095
	// UNKNOWN reports an OS error with no portable mapping.
	UNKNOWN Errno = -4094
)

const (
	EACCES Errno = -4000 - iota
	EADDRINUSE
	EAGAIN
	EBADF
	EBUSY
	ECANCELED
	ECONNREFUSED
	ECONNRESET
	EEXIST
	EINTR
	EINVAL
	EIO
	EISDIR
	ELOOP
	EMFILE
	ENAMETOOLONG
	ENOENT
	ENOMEM
	ENOSPC
	ENOSYS
	ENOTCONN
	ENOTDIR
	ENOTEMPTY
	ENOTSOCK
	ENOTSUP
	EPIPE
	ESRCH
	ETIMEDOUT
)

var errnoNames = map[Errno]string{
	EOF:          "EOF",
	UNKNOWN:      "UNKNOWN",
	EACCES:       "EACCES",
	EADDRINUSE:   "EADDRINUSE",
	EAGAIN:       "EAGAIN",
	EBADF:        "EBADF",
	EBUSY:        "EBUSY",
	ECANCELED:    "ECANCELED",
	ECONNREFUSED: "ECONNREFUSED",
	ECONNRESET:   "ECONNRESET",
	EEXIST:       "EEXIST",
	EINTR:        "EINTR",
	EINVAL:       "EINVAL",
	EIO:          "EIO",
	EISDIR:       "EISDIR",
	ELOOP:        "ELOOP",
	EMFILE:       "EMFILE",
	ENAMETOOLONG: "ENAMETOOLONG",
	ENOENT:       "ENOENT",
	ENOMEM:       "ENOMEM",
	ENOSPC:       "ENOSPC",
	ENOSYS:       "ENOSYS",
	ENOTCONN:     "ENOTCONN",
	ENOTDIR:      "ENOTDIR",
	ENOTEMPTY:    "ENOTEMPTY",
	ENOTSOCK:     "ENOTSOCK",
	ENOTSUP:      "ENOTSUP",
	EPIPE:        "EPIPE",
	ESRCH:        "ESRCH",
	ETIMEDOUT:    "ETIMEDOUT",
}

var errnoMessages = map[Errno]string{
	EOF:          "end of file",
	UNKNOWN:      "unknown error",
	EACCES:       "permission denied",
	EADDRINUSE:   "address already in use",
	EAGAIN:       "resource temporarily unavailable",
	EBADF:        "bad file descriptor",
	EBUSY:        "resource busy or locked",
	ECANCELED:    "operation canceled",
	ECONNREFUSED: "connection refused",
	ECONNRESET:   "connection reset by peer",
	EEXIST:       "file already exists",
	EINTR:        "interrupted system call",
	EINVAL:       "invalid argument",
	EIO:          "i/o error",
	EISDIR:       "illegal operation on a directory",
	ELOOP:        "too many symbolic links encountered",
	EMFILE:       "too many open files",
	ENAMETOOLONG: "name too long",
	ENOENT:       "no such file or directory",
	ENOMEM:       "not enough memory",
	ENOSPC:       "no space left on device",
	ENOSYS:       "function not implemented",
	ENOTCONN:     "socket is not connected",
	ENOTDIR:      "not a directory",
	ENOTEMPTY:    "directory not empty",
	ENOTSOCK:     "socket operation on non-socket",
	ENOTSUP:      "operation not supported",
	EPIPE:        "broken pipe",
	ESRCH:        "no such process",
	ETIMEDOUT:    "connection timed out",
}

// Error implements the error interface.
func (e Errno) Error() string {
	if name, ok := errnoNames[e]; ok {
		return name + ": " + errnoMessages[e]
	}
	return fmt.Sprintf("errno(%d)", int(e))
}

// Name returns the symbolic name, or a numeric form for unlisted values.
func (e Errno) Name() string {
	if name, ok := errnoNames[e]; ok {
		return name
	}
	return fmt.Sprintf("errno(%d)", int(e))
}

// Temporary reports whether the operation may be retried as-is.
func (e Errno) Temporary() bool {
	return e == EAGAIN || e == EINTR
}

// Timeout reports whether the error is a timeout.
func (e Errno) Timeout() bool { return e == ETIMEDOUT }

// OSError pairs UNKNOWN with the raw OS error it collapsed from.
type OSError struct {
	Errno Errno
	Raw   error
}

// Error implements the error interface.
func (e *OSError) Error() string {
	return fmt.Sprintf("%s (os: %v)", e.Errno.Name(), e.Raw)
}

// Unwrap exposes the portable code to errors.Is.
func (e *OSError) Unwrap() error { return e.Errno }
