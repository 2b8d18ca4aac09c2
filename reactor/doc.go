// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package reactor provides the platform poller implementations behind the
// api.Poller contract: epoll on Linux, kqueue on the BSDs and macOS, and an
// I/O completion port on Windows. Each poller owns the loop wakeup primitive
// for its platform (eventfd, self-pipe, posted completion packet).
package reactor
