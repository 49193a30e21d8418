// Package diag is a minimal logging shim shared by the core packages.
//
// It deliberately stays a thin io.Writer wrapper rather than pulling in a
// structured logging framework: callers that care about structure (the CLI)
// decide what to do with the lines it produces.
package diag

import (
	"fmt"
	"io"
)

// Logger wraps an io.Writer with a handful of formatting helpers.
type Logger struct {
	io.Writer
}

// New returns a new Logger which writes to w.
func New(w io.Writer) *Logger {
	return &Logger{Writer: w}
}

// Logln logs a line.
func (l *Logger) Logln(args ...interface{}) {
	fmt.Fprintln(l, args...)
}

// Logf logs a formatted string, without a trailing newline.
func (l *Logger) Logf(f string, args ...interface{}) {
	fmt.Fprintf(l, f, args...)
}

// LogDopfln logs a formatted line, prefixed with "dop: ".
func (l *Logger) LogDopfln(format string, args ...interface{}) {
	fmt.Fprintf(l, "dop: "+format+"\n", args...)
}

// Warnf logs a formatted warning line, prefixed with "warning: ".
func (l *Logger) Warnf(format string, args ...interface{}) {
	fmt.Fprintf(l, "warning: "+format+"\n", args...)
}
