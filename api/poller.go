// File: api/poller.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unified poller contract over readiness backends (epoll, kqueue) and the
// completion backend (IOCP). The event loop dispatches on PollerKind once at
// construction time; everything above the poller is platform-neutral.

package api

import "math"

// EventMask describes interest in, or occurrence of, I/O conditions.
type EventMask uint32

const (
	// Readable means non-blocking reads or accepts will make progress.
	Readable EventMask = 1 << iota
	// Writable means non-blocking writes or connects will make progress.
	Writable
	// Disconnect means the peer hung up; delivered with Readable on most backends.
	Disconnect
)

// PollerKind selects the stream engine's read/accept strategy.
type PollerKind int

const (
	// KindReadiness backends report that non-blocking syscalls will not block.
	KindReadiness PollerKind = iota
	// KindCompletion backends report previously submitted operations that finished.
	KindCompletion
)

// MaxTimeout is the largest poll timeout, in milliseconds.
const MaxTimeout = math.MaxInt32

// Event is one occurrence reported by Wait.
//
// Readiness backends fill Key and Mask. The completion backend fills Key with
// the registration key, Ctx with the per-operation token it was handed at
// submission time, and Bytes/Status with the transfer result.
type Event struct {
	Key    uintptr
	Ctx    uintptr
	Mask   EventMask
	Bytes  uint32
	Status error
}

// Poller multiplexes I/O for one loop. All methods except Wake must be called
// from the loop thread.
type Poller interface {
	// Kind reports the dispatch model this poller implements.
	Kind() PollerKind

	// Add registers fd with the given interest mask under key.
	Add(fd uintptr, key uintptr, mask EventMask) error

	// Mod replaces the interest mask of a registered fd.
	Mod(fd uintptr, key uintptr, mask EventMask) error

	// Del removes a registered fd.
	Del(fd uintptr) error

	// Wait blocks for up to timeoutMS milliseconds and fills events.
	// A timeout of 0 polls, -1 blocks indefinitely. EINTR is swallowed.
	Wait(timeoutMS int, events []Event) (int, error)

	// Wake unblocks a concurrent Wait. Safe to call from any thread, never
	// blocks the caller, and repeated calls coalesce into one wakeup event.
	Wake() error

	// Close releases the backend.
	Close() error
}

// WakeKey is the reserved registration key carried by wakeup events.
const WakeKey = ^uintptr(0)
