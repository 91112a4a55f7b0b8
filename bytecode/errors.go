// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package bytecode

import (
	"fmt"
	"strings"
)

var (
	// ErrLiteralNotFound is returned by Literals.Get for values never added.
	ErrLiteralNotFound = &Error{
		Name:    "LiteralNotFoundError",
		Message: "literal not found",
	}

	// ErrLiteralPoolFrozen is returned when a new value is added to a frozen
	// pool.
	ErrLiteralPoolFrozen = &Error{
		Name:    "LiteralPoolFrozenError",
		Message: "literal pool is frozen",
	}
)

// Error is the error type of literal pools.
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

// NewError creates a new error from e with the given message that wraps e.
func (e *Error) NewError(messages ...string) *Error {
	return &Error{
		Name:    e.Name,
		Message: strings.Join(messages, " "),
		Cause:   e,
	}
}
