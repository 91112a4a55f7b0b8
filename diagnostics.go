// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"fmt"
	"strings"

	"github.com/ozanh/aeonc/ast"
)

// DiagnosticKind classifies a diagnostic.
type DiagnosticKind int

// Diagnostic kinds.
const (
	DuplicateDefinition DiagnosticKind = iota + 1
	TypeNotFound
	UndefinedSymbol
	ConstraintViolation
	ThrowSignatureMismatch
	SerializationError
	TypeMismatch
	ArgumentCountMismatch
	ReassignImmutable
	AmbiguousDefaultMethod
	MissingTraitMethod
	UnknownKeywordArgument
	InvalidCompilerOption
	ModuleNotFound
	ImportCycle
	InternalError
	IncompleteImport
)

var diagnosticKindNames = map[DiagnosticKind]string{
	DuplicateDefinition:    "DuplicateDefinition",
	TypeNotFound:           "TypeNotFound",
	UndefinedSymbol:        "UndefinedSymbol",
	ConstraintViolation:    "ConstraintViolation",
	ThrowSignatureMismatch: "ThrowSignatureMismatch",
	SerializationError:     "SerializationError",
	TypeMismatch:           "TypeMismatch",
	ArgumentCountMismatch:  "ArgumentCountMismatch",
	ReassignImmutable:      "ReassignImmutable",
	AmbiguousDefaultMethod: "AmbiguousDefaultMethod",
	MissingTraitMethod:     "MissingTraitMethod",
	UnknownKeywordArgument: "UnknownKeywordArgument",
	InvalidCompilerOption:  "InvalidCompilerOption",
	ModuleNotFound:         "ModuleNotFound",
	ImportCycle:            "ImportCycle",
	InternalError:          "InternalError",
	IncompleteImport:       "IncompleteImport",
}

func (k DiagnosticKind) String() string {
	if s, ok := diagnosticKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("DiagnosticKind(%d)", int(k))
}

// Fatal reports whether diagnostics of kind k halt the pipeline.
func (k DiagnosticKind) Fatal() bool {
	switch k {
	case SerializationError, ModuleNotFound, ImportCycle, InternalError:
		return true
	}
	return false
}

// Severity of a diagnostic.
type Severity int

// Severities, in increasing order.
const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	}
	return "unknown"
}

// Diagnostic is a structured message produced by a pass.
type Diagnostic struct {
	Kind     DiagnosticKind
	Severity Severity
	Module   string
	Location ast.Location
	Message  string
}

func (d *Diagnostic) String() string {
	return fmt.Sprintf("%s: %s %s: %s", d.Location, d.Severity, d.Kind, d.Message)
}

// Diagnostics is an append-only, ordered diagnostics sink.
type Diagnostics struct {
	list []*Diagnostic
}

// Add appends d.
func (ds *Diagnostics) Add(d *Diagnostic) *Diagnostic {
	ds.list = append(ds.list, d)
	return d
}

func (ds *Diagnostics) add(sev Severity, kind DiagnosticKind, module string,
	loc ast.Location, format string, args ...interface{}) *Diagnostic {

	if kind.Fatal() && sev < SeverityFatal {
		sev = SeverityFatal
	}
	return ds.Add(&Diagnostic{
		Kind:     kind,
		Severity: sev,
		Module:   module,
		Location: loc,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Errorf records an error. Kinds that are always fatal are escalated.
func (ds *Diagnostics) Errorf(kind DiagnosticKind, module string,
	loc ast.Location, format string, args ...interface{}) *Diagnostic {
	return ds.add(SeverityError, kind, module, loc, format, args...)
}

// Warnf records a warning.
func (ds *Diagnostics) Warnf(kind DiagnosticKind, module string,
	loc ast.Location, format string, args ...interface{}) *Diagnostic {
	return ds.add(SeverityWarning, kind, module, loc, format, args...)
}

// Fatalf records a fatal diagnostic.
func (ds *Diagnostics) Fatalf(kind DiagnosticKind, module string,
	loc ast.Location, format string, args ...interface{}) *Diagnostic {
	return ds.add(SeverityFatal, kind, module, loc, format, args...)
}

// Len returns the number of diagnostics.
func (ds *Diagnostics) Len() int {
	return len(ds.list)
}

// All returns a copy of all diagnostics in order.
func (ds *Diagnostics) All() []*Diagnostic {
	out := make([]*Diagnostic, len(ds.list))
	copy(out, ds.list)
	return out
}

// Since returns the diagnostics recorded after the first n.
func (ds *Diagnostics) Since(n int) []*Diagnostic {
	if n >= len(ds.list) {
		return nil
	}
	return ds.list[n:]
}

// Errors returns error and fatal diagnostics.
func (ds *Diagnostics) Errors() []*Diagnostic {
	var out []*Diagnostic
	for _, d := range ds.list {
		if d.Severity >= SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// Warnings returns warnings.
func (ds *Diagnostics) Warnings() []*Diagnostic {
	var out []*Diagnostic
	for _, d := range ds.list {
		if d.Severity == SeverityWarning {
			out = append(out, d)
		}
	}
	return out
}

// HasErrors reports whether an error or fatal diagnostic was recorded.
func (ds *Diagnostics) HasErrors() bool {
	for _, d := range ds.list {
		if d.Severity >= SeverityError {
			return true
		}
	}
	return false
}

// ModuleHas reports whether a diagnostic of at least sev was recorded for
// module.
func (ds *Diagnostics) ModuleHas(module string, sev Severity) bool {
	for _, d := range ds.list {
		if d.Module == module && d.Severity >= sev {
			return true
		}
	}
	return false
}

// Kinds returns the kinds of all diagnostics in order.
func (ds *Diagnostics) Kinds() []DiagnosticKind {
	out := make([]DiagnosticKind, len(ds.list))
	for i, d := range ds.list {
		out[i] = d.Kind
	}
	return out
}

func (ds *Diagnostics) String() string {
	var sb strings.Builder
	for _, d := range ds.list {
		sb.WriteString(d.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
