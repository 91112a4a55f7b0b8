// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"fmt"
	"io"
)

const traceDots = ". . . . . . . . . . . . . . . . . . . . . . . . . . . . . . . "

func printTrace(w io.Writer, indent int, a ...interface{}) {
	const n = len(traceDots)

	i := 2 * indent
	for i > n {
		_, _ = fmt.Fprint(w, traceDots)
		i -= n
	}
	_, _ = fmt.Fprint(w, traceDots[0:i])
	_, _ = fmt.Fprintln(w, a...)
}

func (s *State) printTrace(a ...interface{}) {
	printTrace(s.trace, s.indent, a...)
}

func traces(s *State, msg string) *State {
	s.printTrace(msg, "{")
	s.indent++
	return s
}

func untraces(s *State) {
	s.indent--
	s.printTrace("}")
}
