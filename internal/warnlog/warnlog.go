// Package warnlog is the compiler's minimal recoverable-warning logger
// (spec.md §4.10/§7: UnsupportedFeature and InvalidInputValue are
// "recoverable, compilation continues" rather than aborting). The
// compiler itself performs no I/O and needs no structured log shipping —
// this is deliberately a thin colorized console writer on
// github.com/fatih/color rather than a logging framework (see DESIGN.md).
package warnlog

import (
	"io"
	"os"

	"github.com/fatih/color"
)

// Logger writes leveled messages to an underlying writer, colorized when
// it is a terminal.
type Logger struct {
	out     io.Writer
	warn    *color.Color
	debug   *color.Color
	debugOn bool
}

// New returns a Logger writing to os.Stderr.
func New() *Logger {
	return &Logger{
		out:   os.Stderr,
		warn:  color.New(color.FgYellow),
		debug: color.New(color.FgCyan),
	}
}

// EnableDebug turns on Debugf output; disabled by default so a compile
// running inside a request path stays quiet.
func (l *Logger) EnableDebug() { l.debugOn = true }

// Warnf logs a recoverable compile-time degradation (spec.md §7
// UnsupportedFeature/InvalidInputValue).
func (l *Logger) Warnf(format string, args ...any) {
	l.warn.Fprintf(l.out, "warn: "+format+"\n", args...)
}

// Debugf logs pipeline-internal detail, no-op unless EnableDebug was called.
func (l *Logger) Debugf(format string, args ...any) {
	if !l.debugOn {
		return
	}

	l.debug.Fprintf(l.out, "debug: "+format+"\n", args...)
}

// UnsupportedFeature logs the spec.md §7 recoverable path for a dialect
// capability flag that gated a requested operation off.
func (l *Logger) UnsupportedFeature(op, dialectName string) {
	l.Warnf("%s is not supported on %s; degrading", op, dialectName)
}

// InvalidInputValue logs a value that was dropped rather than bound.
func (l *Logger) InvalidInputValue(member string, value any) {
	l.Warnf("dropping invalid value for %s: %v", member, value)
}
