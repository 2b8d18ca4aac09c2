// control/logging.go
// Author: momentics <momentics@gmail.com>
//
// Library logger. Quiet by default so embedding applications opt in; loops
// tag entries with their identity.

package control

import (
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var logger atomic.Pointer[logrus.Logger]

func init() {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.ErrorLevel)
	logger.Store(l)
}

// Logger returns the current library logger.
func Logger() *logrus.Logger {
	return logger.Load()
}

// SetLogger replaces the library logger. Passing nil restores the silent
// default.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		d := logrus.New()
		d.SetOutput(io.Discard)
		d.SetLevel(logrus.ErrorLevel)
		logger.Store(d)
		return
	}
	logger.Store(l)
}
