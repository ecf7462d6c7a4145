// Package monitoring holds the process-wide diagnostic logger.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debugEnabled atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug toggles emission of Debugf lines.
func SetDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether Debugf lines are emitted.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Logger writes lines tagged with a bracketed component name, e.g. "[Poll] ...".
type Logger struct {
	prefix string
}

// Component returns a Logger for the named component.
func Component(name string) Logger {
	return Logger{prefix: "[" + name + "] "}
}

// Printf logs unconditionally through Logf.
func (l Logger) Printf(format string, v ...interface{}) {
	Logf(l.prefix+format, v...)
}

// Debugf logs only when debug output is enabled. Per-tick chatter (fetch
// failures, frame stats) goes here so a dead backend does not flood the log.
func (l Logger) Debugf(format string, v ...interface{}) {
	if !debugEnabled.Load() {
		return
	}
	Logf(l.prefix+format, v...)
}
