// File: api/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the portable contracts shared by every hioload-loop
// package: the error taxonomy and the poller abstraction that unifies
// readiness backends (epoll, kqueue) with the completion backend (IOCP).
package api
