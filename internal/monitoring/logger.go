// Package monitoring holds process-wide diagnostics hooks shared by the
// training and reporting packages.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or embedding programs can redirect or
// mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Verbose gates Debugf. Off by default; the depthreport CLI enables it with
// the -v flag.
var Verbose = false

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Debugf logs through Logf only when Verbose is set. Use it for per-step
// training chatter that would swamp normal output.
func Debugf(format string, v ...interface{}) {
	if Verbose {
		Logf(format, v...)
	}
}
