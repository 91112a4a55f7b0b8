// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"errors"
	"strconv"
	"strings"

	"github.com/ozanh/aeonc/ast"
)

// Names of the module compiler options.
const (
	OptionImportPrelude = "import_prelude"
	OptionTailCalls     = "tail_calls"
	OptionDeadCode      = "dead_code"
)

func sourceToAST(s *State, m *Module) error {
	if m.AST == nil {
		return ErrInternal.NewError("no syntax tree for module", m.Name)
	}
	if m.AST.Body == nil {
		m.AST.Body = &ast.Body{Base: m.AST.Base}
	}
	return nil
}

// moduleOption returns the value of the compiler option key, or def if the
// module does not set it or sets it to something that is not a boolean.
// Malformed values are reported by ConfigureModule.
func moduleOption(mod *ast.Module, key string, def bool) bool {
	for _, opt := range mod.Options {
		if opt.Key != key {
			continue
		}
		if b, err := strconv.ParseBool(opt.Value); err == nil {
			return b
		}
	}
	return def
}

func insertImplicitImports(s *State, m *Module) error {
	m.imports = append([]*ast.Import(nil), m.AST.Imports...)
	if !moduleOption(m.AST, OptionImportPrelude, true) {
		return nil
	}
	explicit := make(map[string]bool, len(m.imports))
	for _, imp := range m.imports {
		explicit[imp.ModuleName()] = true
	}
	var implicit []*ast.Import
	for _, name := range s.Options.ImplicitImports {
		if name == m.Name || explicit[name] {
			continue
		}
		explicit[name] = true
		implicit = append(implicit, &ast.Import{
			Base:     ast.Base{Location: m.AST.Loc()},
			Path:     strings.Split(name, "::"),
			Glob:     true,
			Implicit: true,
		})
	}
	m.imports = append(implicit, m.imports...)
	return nil
}

func compileImportedModules(s *State, m *Module) error {
	for _, imp := range m.imports {
		name := imp.ModuleName()
		if name == m.Name {
			s.Diagnostics.Fatalf(ImportCycle, m.Name, imp.Loc(),
				"module %s imports itself", name)
			continue
		}
		dep, err := s.ResolveOrCompile(name)
		if err != nil {
			if errors.Is(err, ErrModuleNotFound) {
				s.Diagnostics.Fatalf(ModuleNotFound, m.Name, imp.Loc(),
					"module %s not found", name)
				continue
			}
			return err
		}
		m.Imports = append(m.Imports, dep)
		bindImport(s, m, imp, dep)
	}
	return nil
}

// bindImport defines the globals an import binds: the module object, the
// listed symbols or, for glob imports, every attribute of the module. The
// attributes of a module in an import cycle are not known yet, so a glob
// import of it binds nothing and is reported.
func bindImport(s *State, m *Module, imp *ast.Import, dep *Module) {
	define := func(bound, attr string, t Type, loc ast.Location) {
		sym, err := m.Globals.DefineGlobal(bound, t, false)
		if err != nil {
			if !imp.Glob {
				s.Diagnostics.Errorf(DuplicateDefinition, m.Name, loc,
					"%s", err.(*Error).Message)
			}
			return
		}
		switch t.(type) {
		case *ObjectType, *TraitType, *DynamicType:
			if attr != "" {
				m.ann.typeNames[bound] = t
				m.ann.typeSymbols[bound] = sym
			}
		}
		m.ann.imports = append(m.ann.imports, &importBinding{
			module: dep.Name,
			attr:   attr,
			symbol: sym,
			loc:    loc,
		})
	}
	switch {
	case imp.Glob:
		if dep.Status == ModuleInFlight {
			s.Diagnostics.Warnf(IncompleteImport, m.Name, imp.Loc(),
				"glob import of %s binds nothing, %s is still being compiled",
				dep.Name, dep.Name)
			return
		}
		dep.Type.Attributes.Each(func(name string, t Type) {
			define(name, name, t, imp.Loc())
		})
	case len(imp.Symbols) > 0:
		for _, sym := range imp.Symbols {
			t, ok := LookupAttribute(dep.Type, sym.Name)
			if !ok {
				if mt, isMethod := dep.Type.Methods.Get(sym.Name); isMethod {
					t = mt
				} else {
					s.Diagnostics.Errorf(UndefinedSymbol, m.Name, sym.Loc(),
						"module %s has no symbol %s", dep.Name, sym.Name)
					t = TypeError
				}
			}
			define(sym.BoundName(), sym.Name, t, sym.Loc())
		}
	default:
		define(imp.Path[len(imp.Path)-1], "", dep.Type, imp.Loc())
	}
}

func configureModule(s *State, m *Module) error {
	for _, opt := range m.AST.Options {
		b, err := strconv.ParseBool(opt.Value)
		if err != nil {
			s.Diagnostics.Errorf(InvalidCompilerOption, m.Name, opt.Loc(),
				"invalid value %q for compiler option %s", opt.Value, opt.Key)
			continue
		}
		switch opt.Key {
		case OptionImportPrelude:
			m.Config.ImportPrelude = b
		case OptionTailCalls:
			m.Config.TailCalls = b && !s.Options.DisableTailCalls
		case OptionDeadCode:
			m.Config.DeadCode = b && !s.Options.DisableDeadCode
		default:
			s.Diagnostics.Errorf(InvalidCompilerOption, m.Name, opt.Loc(),
				"unknown compiler option %s", opt.Key)
		}
	}
	return nil
}
