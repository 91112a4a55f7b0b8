// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/ozanh/aeonc"
	"github.com/ozanh/aeonc/bytecode"
	"github.com/ozanh/aeonc/config"
	"github.com/ozanh/aeonc/internal/interp"
	"github.com/ozanh/aeonc/logging"
)

const (
	promptPrefix = ">>> "
	history      = ".compile main\n.modules\n.tir\n.bytecode\n.call main\n"
)

// Sentinel errors for the inspector.
var (
	errExit  = errors.New("exit")
	errReset = errors.New("reset")
)

type suggest struct {
	text        string
	description string
	typ         string
}

var commandSuggestions = []suggest{
	{text: ".commands", description: "Print inspector commands"},
	{text: ".compile", description: "Compile a module: .compile a::b"},
	{text: ".modules", description: "Print compiled modules"},
	{text: ".tir", description: "Print the TIR of a module"},
	{text: ".bytecode", description: "Print the bytecode of a module"},
	{text: ".load", description: "Decode and print a serialized module file"},
	{text: ".symbols", description: "Print the globals of a module"},
	{text: ".types", description: "Print the type database"},
	{text: ".diagnostics", description: "Print all diagnostics of the last run"},
	{text: ".call", description: "Call a method: .call name [args...]"},
	{text: ".stats", description: "Print evaluator statistics"},
	{text: ".reset", description: "Reset"},
	{text: ".exit", description: "Exit"},
}

type inspector struct {
	cfg         *config.Config
	out         io.Writer
	logger      *logging.Logger
	state       *aeonc.State
	current     *aeonc.Module
	interp      *interp.Interpreter
	commands    map[string]func(string) error
	suggestions []suggest
}

func newInspector(cfg *config.Config, out io.Writer) *inspector {
	if out == nil {
		out = os.Stdout
	}
	r := &inspector{
		cfg:    cfg,
		out:    out,
		logger: logging.New(out, logging.LevelWarning),
	}
	r.commands = map[string]func(string) error{
		".commands":    r.cmdCommands,
		".compile":     r.cmdCompile,
		".modules":     r.cmdModules,
		".tir":         r.cmdTIR,
		".bytecode":    r.cmdBytecode,
		".load":        r.cmdLoad,
		".symbols":     r.cmdSymbols,
		".types":       r.cmdTypes,
		".diagnostics": r.cmdDiagnostics,
		".call":        r.cmdCall,
		".stats":       r.cmdStats,
		".reset":       func(string) error { return errReset },
		".exit":        func(string) error { return errExit },
	}
	r.setSuggestions()
	return r
}

// argument returns the first word after the command in line.
func argument(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func (r *inspector) writeString(msg string) {
	_, _ = fmt.Fprintln(r.out, msg)
}

func (r *inspector) cmdCommands(_ string) error {
	r.printSuggestions(func(s suggest) bool { return s.typ == "" })
	return nil
}

func (r *inspector) printSuggestions(filter func(suggest) bool) {
	var suggs []suggest
	var maxtext int
	for _, v := range r.suggestions {
		if !filter(v) {
			continue
		}
		suggs = append(suggs, v)
		if maxtext < len(v.text) {
			maxtext = len(v.text)
		}
	}
	for _, s := range suggs {
		_, _ = fmt.Fprint(r.out, s.text)
		if s.description != "" {
			_, _ = fmt.Fprint(r.out, strings.Repeat(" ", maxtext-len(s.text)))
			_, _ = fmt.Fprintf(r.out, "\t%s", s.description)
		}
		_, _ = fmt.Fprintln(r.out)
	}
}

func (r *inspector) cmdCompile(line string) error {
	name := argument(line)
	if name == "" {
		r.writeString("usage: .compile <module>")
		return nil
	}
	r.logger = logging.New(r.out, r.logger.Level)
	s, m, ok := compile(r.cfg, name, r.logger, r.out)
	r.logger.Finish()
	r.state = s
	r.interp = nil
	if ok {
		r.current = m
		r.interp = interp.New(compiledModules(s))
		r.interp.Stdout = r.out
	} else {
		r.current = nil
	}
	r.setSuggestions()
	return nil
}

// module returns the module named in line or the current one.
func (r *inspector) module(line string) (*aeonc.Module, bool) {
	if r.state == nil {
		r.writeString("no module compiled, use .compile <module>")
		return nil, false
	}
	if name := argument(line); name != "" {
		m, ok := r.state.Module(name)
		if !ok {
			r.writeString(fmt.Sprintf("unknown module %q", name))
		}
		return m, ok
	}
	if r.current == nil {
		r.writeString("last compilation failed")
		return nil, false
	}
	return r.current, true
}

func (r *inspector) cmdModules(_ string) error {
	if r.state == nil {
		r.writeString("[]")
		return nil
	}
	for _, m := range r.state.Modules() {
		_, _ = fmt.Fprintf(r.out, "%d\t%s\t%s\t%d bytes\n", m.ID, m.Name, m.Status, len(m.Bytes))
	}
	return nil
}

func (r *inspector) cmdTIR(line string) error {
	m, ok := r.module(line)
	if !ok {
		return nil
	}
	if m.Body == nil {
		r.writeString("no TIR")
		return nil
	}
	_, _ = fmt.Fprint(r.out, m.Body.String())
	return nil
}

func (r *inspector) cmdBytecode(line string) error {
	m, ok := r.module(line)
	if !ok {
		return nil
	}
	if m.Compiled == nil {
		r.writeString("no bytecode")
		return nil
	}
	_, _ = fmt.Fprint(r.out, m.Compiled.String())
	return nil
}

func (r *inspector) cmdLoad(line string) error {
	path := argument(line)
	if path == "" {
		r.writeString("usage: .load <file" + outputExt + ">")
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		r.writeString(fmt.Sprintf("!   %v", err))
		return nil
	}
	defer f.Close()

	mod, err := bytecode.Decode(f)
	if err != nil {
		r.writeString(fmt.Sprintf("!   %v", err))
		return nil
	}
	_, _ = fmt.Fprint(r.out, mod.String())
	return nil
}

func (r *inspector) cmdSymbols(line string) error {
	m, ok := r.module(line)
	if !ok {
		return nil
	}
	for _, sym := range m.Globals.Symbols() {
		_, _ = fmt.Fprintln(r.out, sym)
	}
	return nil
}

func (r *inspector) cmdTypes(_ string) error {
	if r.state == nil {
		r.writeString("[]")
		return nil
	}
	r.writeString(strings.Join(r.state.Types.Names(), "\n"))
	return nil
}

func (r *inspector) cmdDiagnostics(_ string) error {
	if r.state == nil || r.state.Diagnostics.Len() == 0 {
		r.writeString("no diagnostics")
		return nil
	}
	_, _ = fmt.Fprint(r.out, r.state.Diagnostics.String())
	return nil
}

// parseValue reads an integer, float, boolean, nil or string argument.
func parseValue(s string) interp.Value {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "nil":
		return nil
	}
	if v, err := strconv.Unquote(s); err == nil {
		return v
	}
	return s
}

func (r *inspector) cmdCall(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		r.writeString("usage: .call <method> [args...]")
		return nil
	}
	if r.interp == nil || r.current == nil {
		r.writeString("no module compiled, use .compile <module>")
		return nil
	}
	args := make([]interp.Value, 0, len(fields)-2)
	for _, f := range fields[2:] {
		args = append(args, parseValue(f))
	}
	v, err := r.interp.Call(r.current.Name, fields[1], args...)
	if err != nil {
		r.writeString(fmt.Sprintf("!   %v", err))
		return nil
	}
	r.writeString(fmt.Sprintf("⇦   %s", interp.Format(v)))
	return nil
}

func (r *inspector) cmdStats(_ string) error {
	if r.interp == nil {
		r.writeString("no evaluator")
		return nil
	}
	st := r.interp.Stats
	r.writeString(fmt.Sprintf("Calls = %d\tTailCalls = %d\tMaxDepth = %d",
		st.Calls, st.TailCalls, st.MaxDepth))
	return nil
}

func (r *inspector) execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd := strings.Fields(line)[0]
	if fn, ok := r.commands[cmd]; ok {
		return fn(line)
	}
	if strings.HasPrefix(line, ".") {
		r.writeString(fmt.Sprintf("unknown command %s, see .commands", cmd))
		return nil
	}
	// a bare name compiles that module
	return r.cmdCompile(".compile " + line)
}

func (r *inspector) setSuggestions() {
	r.suggestions = append(r.suggestions[:0], commandSuggestions...)
	if r.state == nil {
		return
	}
	var names []string
	for _, m := range r.state.Modules() {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.suggestions = append(r.suggestions, suggest{
			text:        name,
			description: "module",
			typ:         "module",
		})
	}
}

func (r *inspector) complete(line string) (completions []string) {
	// complete the argument of a command with module names
	prefix, word := "", line
	if i := strings.LastIndexByte(line, ' '); i >= 0 {
		prefix, word = line[:i+1], line[i+1:]
	}
	var contains []string
	for _, v := range r.suggestions {
		if (prefix == "") != (v.typ == "") {
			continue
		}
		if strings.HasPrefix(v.text, word) {
			completions = append(completions, prefix+v.text)
		} else if strings.Contains(v.text, word) {
			contains = append(contains, prefix+v.text)
		}
	}
	completions = append(completions, contains...)
	return
}

func (r *inspector) printInfo() {
	_, _ = fmt.Fprintln(r.out, "Copyright (c) 2020 Ozan Hacıbekiroğlu")
	_, _ = fmt.Fprintln(r.out, title, "v"+version, "License: MIT",
		"Build:", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintln(r.out, "Write .commands to list available commands")
	_, _ = fmt.Fprintln(r.out, "Press Ctrl+D or write .exit command to exit")
	_, _ = fmt.Fprintln(r.out)
}

func (r *inspector) run(hist io.Reader) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCompleter(r.complete)
	if _, err := line.ReadHistory(hist); err != nil {
		return aeonc.ErrInternal.NewError("failed history read: " + err.Error())
	}
	r.printInfo()

	for {
		str, err := line.Prompt(promptPrefix)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return aeonc.ErrInternal.NewError("prompt error: " + err.Error())
		}
		if err := r.execute(str); err != nil {
			return err
		}
		if v := strings.TrimSpace(str); v != "" {
			line.AppendHistory(v)
		}
	}
}
