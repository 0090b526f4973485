// Package kernlog is a minimal console logger: no levels, no structured
// fields, just a swappable sink so tests can capture what the kernel
// would otherwise print to the console.
package kernlog

import (
	"fmt"
	"io"
	"os"
)

// Out is the console sink. Tests may replace it with a bytes.Buffer to
// assert on diagnostic output without touching package-level state races
// across parallel tests (prefer constructing a private *Logger instead).
var Out io.Writer = os.Stdout

// Printf writes a formatted diagnostic line to Out.
func Printf(format string, args ...interface{}) {
	fmt.Fprintf(Out, format, args...)
}

// Logger is an instance-scoped alternative to the package-level Out for
// callers (like tests) that need isolation.
type Logger struct {
	w io.Writer
}

// New returns a Logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{w: w}
}

// Printf writes a formatted diagnostic line.
func (l *Logger) Printf(format string, args ...interface{}) {
	fmt.Fprintf(l.w, format, args...)
}
