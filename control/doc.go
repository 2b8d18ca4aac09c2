// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package control carries the observability surface: a metrics registry the
// loops publish counters into, a probe registry for live state inspection,
// and the library logger.
package control
