// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/ozanh/aeonc"
)

var (
	SuccessColorFG = pterm.FgLightGreen
	SuccessStyleBG = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	WarnColorFG    = pterm.FgYellow
	WarnStyleBG    = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	ErrorColorFG   = pterm.FgRed
	ErrorStyleBG   = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	InfoColorFG    = SuccessColorFG
	InfoStyleBG    = SuccessStyleBG
)

// PrintErrorMessage prints err to the console under tag.
func PrintErrorMessage(tag string, err error) {
	writeMessage(os.Stdout, ErrorStyleBG, ErrorColorFG, tag, err.Error())
}

// PrintWarningMessage prints a warning message to the console.
func PrintWarningMessage(tag, msg string) {
	writeMessage(os.Stdout, WarnStyleBG, WarnColorFG, tag, msg)
}

// PrintInfoMessage prints an informational message to the console.
func PrintInfoMessage(tag, msg string) {
	writeMessage(os.Stdout, InfoStyleBG, InfoColorFG, tag, msg)
}

func writeMessage(w io.Writer, tagStyle *pterm.Style, color pterm.Color, tag, msg string) {
	fmt.Fprintln(w, tagStyle.Sprint(tag)+color.Sprint(" "+msg))
}

var kindTitles = map[aeonc.DiagnosticKind]string{
	aeonc.DuplicateDefinition:    "Definition",
	aeonc.TypeNotFound:           "Type",
	aeonc.UndefinedSymbol:        "Name",
	aeonc.ConstraintViolation:    "Generic",
	aeonc.ThrowSignatureMismatch: "Throw",
	aeonc.SerializationError:     "Serialization",
	aeonc.TypeMismatch:           "Type",
	aeonc.ArgumentCountMismatch:  "Argument",
	aeonc.ReassignImmutable:      "Mutability",
	aeonc.AmbiguousDefaultMethod: "Trait",
	aeonc.MissingTraitMethod:     "Trait",
	aeonc.UnknownKeywordArgument: "Argument",
	aeonc.InvalidCompilerOption:  "Option",
	aeonc.ModuleNotFound:         "Import",
	aeonc.ImportCycle:            "Import",
	aeonc.InternalError:          "Internal",
	aeonc.IncompleteImport:       "Import",
}

const fatalPostlude = `This is likely a bug in the compiler.`

func (l *Logger) display(d *aeonc.Diagnostic) {
	if d.Kind == aeonc.InternalError {
		fmt.Fprint(l.Out, "\n\n")
		fmt.Fprintln(l.Out, ErrorStyleBG.Sprint("Fatal Error ")+ErrorColorFG.Sprint(d.Message))
		fmt.Fprintln(l.Out, InfoColorFG.Sprint(fatalPostlude))
		return
	}
	l.displayBanner(d)
	fmt.Fprintln(l.Out, d.Message)
	if d.Location.Line > 0 {
		l.displayCodeSelection(d)
	}
}

// displayBanner prints "-- Kind Error ------ file".
func (l *Logger) displayBanner(d *aeonc.Diagnostic) {
	title, ok := kindTitles[d.Kind]
	if !ok {
		title = d.Kind.String()
	}
	var label string
	if d.Severity == aeonc.SeverityWarning {
		label = title + " Warning"
		title = WarnStyleBG.Sprint(label)
	} else {
		label = title + " Error"
		title = ErrorStyleBG.Sprint(label)
	}

	name := d.Module
	if d.Location.File != "" {
		name = filepath.Base(d.Location.File)
	}
	bannerLen := pterm.GetTerminalWidth() / 2
	if bannerLen > 50 || bannerLen <= 0 {
		bannerLen = 50
	}
	dashCount := bannerLen - len(name) - len(label) - 1
	if dashCount < 2 {
		dashCount = 2
	}
	fmt.Fprintf(l.Out, "\n\n-- %s %s %s\n",
		title, strings.Repeat("-", dashCount), InfoColorFG.Sprint(name))
}

// displayCodeSelection prints the offending line with a caret under the
// column. Nothing is printed if the source cannot be read.
func (l *Logger) displayCodeSelection(d *aeonc.Diagnostic) {
	f, err := os.Open(d.Location.File)
	if err != nil {
		return
	}
	defer f.Close()

	var line string
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		if n == d.Location.Line {
			line = strings.ReplaceAll(sc.Text(), "\t", "    ")
			break
		}
	}
	if line == "" {
		return
	}

	trimmed := strings.TrimLeft(line, " ")
	indent := len(line) - len(trimmed)
	width := len(strconv.Itoa(d.Location.Line)) + 1

	fmt.Fprintln(l.Out)
	fmt.Fprintf(l.Out, "%s|  %s\n",
		InfoColorFG.Sprint(fmt.Sprintf("%-"+strconv.Itoa(width)+"d", d.Location.Line)), trimmed)
	if col := d.Location.Column - 1 - indent; col >= 0 {
		fmt.Fprintf(l.Out, "%s|  %s%s\n",
			strings.Repeat(" ", width), strings.Repeat(" ", col), ErrorColorFG.Sprint("^"))
	}
	fmt.Fprintln(l.Out)
}

const maxPhaseLength = len("Optimizing")

func padPhase(phase string) string {
	n := maxPhaseLength - len(phase) + 2
	if n < 1 {
		n = 1
	}
	return phase + strings.Repeat(" ", n)
}

func beginSpinner(phase string) *pterm.SpinnerPrinter {
	spinner := pterm.DefaultSpinner.WithStyle(pterm.NewStyle(InfoColorFG))
	spinner.SuccessPrinter = &pterm.PrefixPrinter{
		MessageStyle: pterm.NewStyle(pterm.FgDefault),
		Prefix:       pterm.Prefix{Style: SuccessStyleBG, Text: "Done"},
	}
	spinner.FailPrinter = &pterm.PrefixPrinter{
		MessageStyle: pterm.NewStyle(pterm.FgDefault),
		Prefix:       pterm.Prefix{Style: ErrorStyleBG, Text: "Fail"},
	}
	started, _ := spinner.Start(phase + "...")
	return started
}

func endSpinner(spinner *pterm.SpinnerPrinter, phase string, success bool, elapsed time.Duration) {
	if success {
		spinner.Success(padPhase(phase), fmt.Sprintf("(%.3fs)", elapsed.Seconds()))
	} else {
		spinner.Fail(padPhase(phase))
	}
}

func writePhase(w io.Writer, phase string, success bool, elapsed time.Duration) {
	if success {
		fmt.Fprintf(w, "%s %s(%.3fs)\n", SuccessStyleBG.Sprint("Done"), padPhase(phase), elapsed.Seconds())
	} else {
		fmt.Fprintf(w, "%s %s\n", ErrorStyleBG.Sprint("Fail"), padPhase(phase))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// writeSummary prints "All done! (0 errors, 1 warning)" or the failing
// equivalent.
func writeSummary(w io.Writer, success bool, errorCount, warningCount int) {
	fmt.Fprintln(w)
	if success {
		fmt.Fprint(w, SuccessColorFG.Sprint("All done! "))
	} else {
		fmt.Fprint(w, ErrorColorFG.Sprint("Oh no! "))
	}

	errColor := SuccessColorFG
	if errorCount > 0 {
		errColor = ErrorColorFG
	}
	warnColor := SuccessColorFG
	if warningCount > 0 {
		warnColor = WarnColorFG
	}
	fmt.Fprintf(w, "(%s %s, %s %s)\n",
		errColor.Sprint(errorCount), plural(errorCount, "error"),
		warnColor.Sprint(warningCount), plural(warningCount, "warning"))
}
