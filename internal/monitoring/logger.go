// Package monitoring holds the diagnostic logging hooks shared by the radar
// packages.
package monitoring

import (
	"log"
	"sync/atomic"
)

// LogFunc is the signature of the package logger.
type LogFunc func(format string, v ...interface{})

var (
	logger  atomic.Pointer[LogFunc]
	verbose atomic.Bool
)

func init() {
	SetLogger(log.Printf)
}

// Logf writes through the current package logger. It defaults to log.Printf
// and may be swapped by SetLogger at any time, including while radar
// goroutines are logging.
func Logf(format string, v ...interface{}) {
	(*logger.Load())(format, v...)
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f LogFunc) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	logger.Store(&f)
}

// Logger returns the current package logger, for restoring after SetLogger.
func Logger() LogFunc {
	return *logger.Load()
}

// SetVerbose turns Debugf output on or off.
func SetVerbose(on bool) {
	verbose.Store(on)
}

// Debugf logs through Logf only when verbose logging is on. Per-frame
// details such as resynchronisation skips go here.
func Debugf(format string, v ...interface{}) {
	if verbose.Load() {
		Logf(format, v...)
	}
}
