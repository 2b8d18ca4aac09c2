// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package workpool provides the fixed-size worker pool that runs blocking
// jobs (filesystem ops, DNS resolution, user work) off the loop goroutine.
// Jobs are dispatched FIFO; completions re-enter the owning loop through its
// completion queue and async wakeup.
package workpool
