// Package logging provides colored, leveled log output for the orgsync CLI.
//
// A Logger is built once by the process entry point and handed to every
// component that reports progress. A nil *Logger discards all output, so
// library code never has to guard its calls.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	infoPrefix    = color.New(color.FgBlue).SprintFunc()
	successPrefix = color.New(color.FgGreen).SprintFunc()
	warnPrefix    = color.New(color.FgYellow).SprintFunc()
	errorPrefix   = color.New(color.FgRed).SprintFunc()
	phasePrefix   = color.New(color.FgCyan).SprintFunc()
	debugPrefix   = color.New(color.FgMagenta).SprintFunc()
)

// Logger writes prefixed log lines. Errors go to errOut, everything else to out.
type Logger struct {
	out     io.Writer
	errOut  io.Writer
	verbose bool
}

// New creates a logger writing to the given writers.
func New(out, errOut io.Writer, verbose bool) *Logger {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	return &Logger{out: out, errOut: errOut, verbose: verbose}
}

// Default creates a logger on stdout/stderr.
func Default(verbose bool) *Logger {
	return New(os.Stdout, os.Stderr, verbose)
}

// ConfigureColor turns color off when requested or when stdout is not a terminal.
func ConfigureColor(disable bool) {
	if disable || !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}
}

// Verbose reports whether debug output is enabled.
func (l *Logger) Verbose() bool {
	return l != nil && l.verbose
}

// Info prints an informational message.
func (l *Logger) Info(format string, args ...any) {
	l.print(l.outWriter(), infoPrefix("[INFO]"), format, args...)
}

// Success prints a success message.
func (l *Logger) Success(format string, args ...any) {
	l.print(l.outWriter(), successPrefix("[SUCCESS]"), format, args...)
}

// Warn prints a warning. Warnings never stop a run.
func (l *Logger) Warn(format string, args ...any) {
	l.print(l.outWriter(), warnPrefix("[WARN]"), format, args...)
}

// Error prints an error message to the error writer.
func (l *Logger) Error(format string, args ...any) {
	if l == nil {
		return
	}
	l.print(l.errOut, errorPrefix("[ERROR]"), format, args...)
}

// Debug prints only in verbose mode.
func (l *Logger) Debug(format string, args ...any) {
	if !l.Verbose() {
		return
	}
	l.print(l.out, debugPrefix("[DEBUG]"), format, args...)
}

// Phase prints a section header surrounded by separator lines.
func (l *Logger) Phase(format string, args ...any) {
	if l == nil {
		return
	}
	sep := phasePrefix("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintln(l.out, sep)
	l.print(l.out, phasePrefix("[PHASE]"), format, args...)
	fmt.Fprintln(l.out, sep)
}

func (l *Logger) outWriter() io.Writer {
	if l == nil {
		return nil
	}
	return l.out
}

func (l *Logger) print(w io.Writer, prefix, format string, args ...any) {
	if l == nil || w == nil {
		return
	}
	fmt.Fprintln(w, prefix+" "+fmt.Sprintf(format, args...))
}
