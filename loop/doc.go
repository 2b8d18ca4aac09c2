// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package loop implements the event loop core: a single-threaded reactor
// driving timers, streams, child processes, filesystem requests and worker
// pool completions through ten strictly ordered phases per iteration.
//
// A Loop is owned by exactly one goroutine. The only operations that may be
// invoked from other goroutines are Async.Send and work submission; all other
// handle mutation must happen on the loop goroutine.
package loop
