// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ozanh/aeonc/ast"
	"github.com/ozanh/aeonc/bytecode"
)

// CompilerOptions represents customizable options for a compilation run.
type CompilerOptions struct {
	ModuleMap *ModuleMap
	// ImplicitImports are glob-imported into every module that does not
	// disable them with the import_prelude option.
	ImplicitImports  []string
	DisableTailCalls bool
	DisableDeadCode  bool
	Trace            io.Writer
	TraceCompiler    bool
	TraceOptimizer   bool
	// Passes replaces DefaultPasses if not nil.
	Passes []Pass
}

var (
	// DefaultCompilerOptions holds default Compiler options.
	DefaultCompilerOptions = CompilerOptions{}
	// TraceCompilerOptions holds Compiler options to print trace output
	// to stdout for passes, TIR generation and the optimizer.
	TraceCompilerOptions = CompilerOptions{
		Trace:          os.Stdout,
		TraceCompiler:  true,
		TraceOptimizer: true,
	}
)

// Pass is a step of the per-module pipeline.
type Pass struct {
	Name string
	Run  func(s *State, m *Module) error
	// Emits marks passes producing output. They do not run for modules
	// with error diagnostics.
	Emits bool
}

// DefaultPasses is the fixed pass order. It is filled in init, since
// compiling imports runs the passes again.
var DefaultPasses []Pass

func init() {
	DefaultPasses = []Pass{
		{Name: "SourceToAST", Run: sourceToAST},
		{Name: "InsertImplicitImports", Run: insertImplicitImports},
		{Name: "CompileImportedModules", Run: compileImportedModules},
		{Name: "DefineTypes", Run: defineTypes},
		{Name: "ValidateConstraints", Run: validateConstraints},
		{Name: "ValidateThrow", Run: validateThrow},
		{Name: "OptimizeKeywordArguments", Run: optimizeKeywordArguments},
		{Name: "GenerateTIR", Run: generateTIR},
		{Name: "ConfigureModule", Run: configureModule},
		{Name: "DeadCode", Run: deadCode},
		{Name: "TailCallElimination", Run: tailCallElimination},
		{Name: "CodeGeneration", Run: codeGeneration, Emits: true},
		{Name: "Serialization", Run: serialization, Emits: true},
	}
}

// State is the context of one compilation run. It is threaded through all
// passes explicitly and must not be shared between runs.
type State struct {
	Options     CompilerOptions
	Types       *TypeDatabase
	Diagnostics *Diagnostics
	modules     *moduleArena
	trace       io.Writer
	indent      int
}

// NewState creates a State for a compilation run.
func NewState(opts CompilerOptions) *State {
	if opts.ModuleMap == nil {
		opts.ModuleMap = NewModuleMap()
	}
	var trace io.Writer
	if opts.TraceCompiler || opts.TraceOptimizer {
		trace = opts.Trace
	}
	return &State{
		Options:     opts,
		Types:       NewTypeDatabase(),
		Diagnostics: &Diagnostics{},
		modules:     newModuleArena(),
		trace:       trace,
	}
}

// Module returns the module registered under name.
func (s *State) Module(name string) (*Module, bool) {
	return s.modules.get(name)
}

// ModuleByID returns the module with the arena index id or nil.
func (s *State) ModuleByID(id int) *Module {
	return s.modules.byID(id)
}

// Modules returns all modules in registration order.
func (s *State) Modules() []*Module {
	return s.modules.all()
}

// ResolveOrCompile returns the module named name, compiling it first if it
// is not known yet. A module whose compilation is in flight is returned as
// is; its types are partial until its DefineTypes pass completes.
func (s *State) ResolveOrCompile(name string) (*Module, error) {
	if m, ok := s.modules.get(name); ok {
		return m, nil
	}
	src, err := s.Options.ModuleMap.Import(name)
	if err != nil {
		return nil, ErrModuleNotFound.NewError(fmt.Sprintf("%q: %v", name, err))
	}
	m, created := s.modules.claim(name, func(id int) *Module {
		return &Module{
			ID:      id,
			Name:    name,
			AST:     src,
			Type:    NewModuleType(name),
			Globals: NewSymbolTable(),
			Config: ModuleConfig{
				ImportPrelude: true,
				TailCalls:     !s.Options.DisableTailCalls,
				DeadCode:      !s.Options.DisableDeadCode,
			},
			ann: newAnnotations(),
		}
	})
	if !created {
		return m, nil
	}
	return m, s.runPasses(m)
}

// Compile compiles the module name and its imports. It returns
// ErrCompilationFailed if any error diagnostic was recorded.
func (s *State) Compile(name string) (*Module, error) {
	m, err := s.ResolveOrCompile(name)
	if err != nil {
		return m, err
	}
	if s.Diagnostics.HasErrors() {
		return m, ErrCompilationFailed
	}
	return m, nil
}

func (s *State) passes() []Pass {
	if s.Options.Passes != nil {
		return s.Options.Passes
	}
	return DefaultPasses
}

// runPasses runs the pipeline for m. It stops after the first pass that
// recorded a fatal diagnostic or returned an error. Errors returned by
// passes are recorded as fatal diagnostics and returned.
func (s *State) runPasses(m *Module) error {
	if s.trace != nil {
		defer untraces(traces(s, "Module "+m.Name))
	}
	for _, p := range s.passes() {
		if p.Emits && s.Diagnostics.ModuleHas(m.Name, SeverityError) {
			if s.trace != nil {
				s.printTrace("SKIP", p.Name)
			}
			continue
		}
		if s.trace != nil {
			s.printTrace("PASS", p.Name)
		}
		if err := p.Run(s, m); err != nil {
			kind := InternalError
			var serr *bytecode.SerializationError
			if errors.As(err, &serr) {
				kind = SerializationError
			}
			loc := moduleLocation(m)
			s.Diagnostics.Fatalf(kind, m.Name, loc, "%s: %v", p.Name, err)
			m.Status = ModuleFailed
			return &CompilerError{Module: m.Name, Pass: p.Name, Location: loc, Err: err}
		}
		if s.Diagnostics.ModuleHas(m.Name, SeverityFatal) {
			m.Status = ModuleFailed
			return nil
		}
	}
	m.Status = ModuleDone
	return nil
}

func moduleLocation(m *Module) ast.Location {
	if m.AST == nil {
		return ast.Location{}
	}
	return m.AST.Loc()
}

// CompileModule compiles mod with opts. The module is added to a copy of
// the module map, so its imports are resolved with opts.ModuleMap.
func CompileModule(mod *ast.Module, opts CompilerOptions) (*State, *Module, error) {
	if opts.ModuleMap == nil {
		opts.ModuleMap = NewModuleMap()
	} else {
		opts.ModuleMap = opts.ModuleMap.Copy()
	}
	opts.ModuleMap.AddSourceModule(mod.Name, mod)
	s := NewState(opts)
	m, err := s.Compile(mod.Name)
	return s, m, err
}
