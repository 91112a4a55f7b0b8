// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"fmt"
	"strings"

	"github.com/ozanh/aeonc/ast"
)

var (
	// ErrCompilationFailed is returned by State.Compile if any error
	// diagnostic was recorded during the run. No bytecode is emitted.
	ErrCompilationFailed = &Error{
		Name:    "CompilationError",
		Message: "compilation failed",
	}

	// ErrModuleNotFound is returned if no source provider knows a module.
	ErrModuleNotFound = &Error{Name: "ModuleNotFoundError"}

	// ErrDuplicateDefinition represents a name defined twice in one scope.
	ErrDuplicateDefinition = &Error{Name: "DuplicateDefinitionError"}

	// ErrTypeNotFound represents a failed type lookup.
	ErrTypeNotFound = &Error{Name: "TypeNotFoundError"}

	// ErrInternal represents a compiler bug detected by a pass.
	ErrInternal = &Error{Name: "InternalError"}

	// ErrInvalidOption represents an unknown or malformed compiler option.
	ErrInvalidOption = &Error{Name: "InvalidOptionError"}
)

// Error is the error type of the compiler core. Sentinel values are
// declared as package variables and derived errors wrap them with NewError.
type Error struct {
	Name    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	name := e.Name
	if name == "" {
		name = "error"
	}
	if e.Message == "" {
		return name
	}
	return fmt.Sprintf("%s: %s", name, e.Message)
}

// Unwrap returns the cause of the error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error from e with the given message. The new error
// wraps e, so errors.Is reports true for the sentinel.
func (e *Error) NewError(messages ...string) *Error {
	return &Error{
		Name:    e.Name,
		Message: strings.Join(messages, " "),
		Cause:   e,
	}
}

// CompilerError is an internal failure of a pass, reported with the module
// and source location it occurred at.
type CompilerError struct {
	Module   string
	Pass     string
	Location ast.Location
	Err      error
}

func (e *CompilerError) Error() string {
	return fmt.Sprintf("Compile Error: %s\n\tat %s (%s, %s)",
		e.Err.Error(), e.Location, e.Module, e.Pass)
}

func (e *CompilerError) Unwrap() error {
	return e.Err
}
