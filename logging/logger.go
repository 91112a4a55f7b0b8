// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package logging reports compiler diagnostics and progress on a terminal.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/ozanh/aeonc"
)

// Level controls how much the Logger prints.
type Level int

// Log levels.
const (
	LevelSilent  Level = iota // nothing at all
	LevelError                // errors and the closing summary
	LevelWarning              // errors, warnings and the closing summary
	LevelVerbose              // everything including phase progress (default)
)

var levelNames = map[string]Level{
	"silent":  LevelSilent,
	"error":   LevelError,
	"warning": LevelWarning,
	"verbose": LevelVerbose,
}

// LevelNames lists the accepted level names in increasing order.
var LevelNames = []string{"silent", "error", "warning", "verbose"}

// ParseLevel returns the level named name, LevelVerbose if unknown.
func ParseLevel(name string) Level {
	if lvl, ok := levelNames[strings.ToLower(name)]; ok {
		return lvl
	}
	return LevelVerbose
}

func (l Level) String() string {
	if l >= 0 && int(l) < len(LevelNames) {
		return LevelNames[l]
	}
	return "verbose"
}

// Logger prints diagnostics as they arrive. Errors are shown immediately,
// warnings are held until Finish. It is safe for concurrent use.
type Logger struct {
	Level Level
	Out   io.Writer
	// Progress enables the phase spinner. It writes to the terminal directly
	// so it should only be set when Out is the standard output.
	Progress bool

	m          sync.Mutex
	errorCount int
	warnings   []*aeonc.Diagnostic

	spinner    *pterm.SpinnerPrinter
	phase      string
	phaseStart time.Time
}

// New returns a Logger writing to out, or to the standard output if out is
// nil.
func New(out io.Writer, level Level) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{Level: level, Out: out}
}

// Log records d and displays it if it is an error.
func (l *Logger) Log(d *aeonc.Diagnostic) {
	l.m.Lock()
	defer l.m.Unlock()

	if d.Severity == aeonc.SeverityWarning {
		l.warnings = append(l.warnings, d)
		return
	}
	l.errorCount++
	if l.Level > LevelSilent {
		l.endPhase(false)
		l.display(d)
	}
}

// LogAll logs every diagnostic in ds.
func (l *Logger) LogAll(ds []*aeonc.Diagnostic) {
	for _, d := range ds {
		l.Log(d)
	}
}

// LogError displays a plain error under tag, counting it as an error.
func (l *Logger) LogError(tag string, err error) {
	l.m.Lock()
	defer l.m.Unlock()

	l.errorCount++
	if l.Level > LevelSilent {
		l.endPhase(false)
		writeMessage(l.Out, ErrorStyleBG, ErrorColorFG, tag, err.Error())
	}
}

// LogInfo displays an informational message in verbose mode.
func (l *Logger) LogInfo(tag, msg string) {
	l.m.Lock()
	defer l.m.Unlock()

	if l.Level == LevelVerbose {
		writeMessage(l.Out, InfoStyleBG, InfoColorFG, tag, msg)
	}
}

// ErrorCount returns the number of errors logged so far.
func (l *Logger) ErrorCount() int {
	l.m.Lock()
	defer l.m.Unlock()
	return l.errorCount
}

// WarningCount returns the number of warnings logged so far.
func (l *Logger) WarningCount() int {
	l.m.Lock()
	defer l.m.Unlock()
	return len(l.warnings)
}

// BeginPhase announces the start of a compilation phase.
func (l *Logger) BeginPhase(phase string) {
	l.m.Lock()
	defer l.m.Unlock()

	if l.Level < LevelVerbose {
		return
	}
	l.endPhase(true)
	l.phase = phase
	l.phaseStart = time.Now()
	if l.Progress {
		l.spinner = beginSpinner(phase)
	}
}

// EndPhase closes the current phase.
func (l *Logger) EndPhase(success bool) {
	l.m.Lock()
	defer l.m.Unlock()
	l.endPhase(success)
}

func (l *Logger) endPhase(success bool) {
	if l.phase == "" {
		return
	}
	elapsed := time.Since(l.phaseStart)
	if l.spinner != nil {
		endSpinner(l.spinner, l.phase, success, elapsed)
		l.spinner = nil
	} else {
		writePhase(l.Out, l.phase, success, elapsed)
	}
	l.phase = ""
}

// Finish flushes held warnings, prints the closing summary and reports
// whether no errors were logged.
func (l *Logger) Finish() bool {
	l.m.Lock()
	defer l.m.Unlock()

	success := l.errorCount == 0
	l.endPhase(success)
	if l.Level >= LevelWarning {
		for _, w := range l.warnings {
			l.display(w)
		}
	}
	if l.Level > LevelSilent {
		writeSummary(l.Out, success, l.errorCount, len(l.warnings))
	}
	return success
}
