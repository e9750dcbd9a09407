// Package logx is a thin leveled wrapper over the standard library's
// *log.Logger, matching the ambient logging style the teacher already
// uses (serialPort.Logger *log.Logger, serialPort.logf) rather than
// reaching for a third-party logging library the teacher never imports.
package logx

import "log"

// Logger gates Debugf on a verbosity flag; Infof and Errorf always print.
type Logger struct {
	base    *log.Logger
	verbose bool
}

// New wraps base with the given verbosity.
func New(base *log.Logger, verbose bool) *Logger {
	return &Logger{base: base, verbose: verbose}
}

// Debugf logs only when verbose logging is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil || !l.verbose {
		return
	}
	l.base.Printf("DEBUG "+format, args...)
}

// Infof always logs.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.base.Printf("INFO "+format, args...)
}

// Errorf always logs.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.base.Printf("ERROR "+format, args...)
}
