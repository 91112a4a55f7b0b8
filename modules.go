// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"errors"
	"sort"
	"sync"

	"github.com/ozanh/aeonc/ast"
	"github.com/ozanh/aeonc/bytecode"
	"github.com/ozanh/aeonc/tir"
)

// Importable interface represents importable module source.
type Importable interface {
	// Import should return the AST of the module.
	Import(moduleName string) (*ast.Module, error)
}

// ErrNoSource is returned by importers that do not know a module.
var ErrNoSource = errors.New("module source not found")

// ModuleMap represents a set of named module sources. Use NewModuleMap to
// create a new module map. Names not added to the map are looked up with the
// external importer, if one is set.
type ModuleMap struct {
	mu  sync.Mutex
	m   map[string]Importable
	ext Importable
}

// NewModuleMap creates a new module map.
func NewModuleMap() *ModuleMap {
	return &ModuleMap{m: make(map[string]Importable)}
}

// Add adds an importable module.
func (m *ModuleMap) Add(name string, module Importable) *ModuleMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[name] = module
	return m
}

// AddSourceModule adds a module with an already built AST.
func (m *ModuleMap) AddSourceModule(name string, mod *ast.Module) *ModuleMap {
	return m.Add(name, &SourceModule{AST: mod})
}

// SetExtImporter sets the importer used for names not in the map.
func (m *ModuleMap) SetExtImporter(imp Importable) *ModuleMap {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ext = imp
	return m
}

// Remove removes a named module.
func (m *ModuleMap) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, name)
}

// Get returns an import module identified by name.
// It returns nil if the name is not found.
func (m *ModuleMap) Get(name string) Importable {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Import implements Importable.
func (m *ModuleMap) Import(name string) (*ast.Module, error) {
	if m == nil {
		return nil, ErrNoSource
	}
	m.mu.Lock()
	imp, ok := m.m[name]
	ext := m.ext
	m.mu.Unlock()
	if ok {
		return imp.Import(name)
	}
	if ext != nil {
		return ext.Import(name)
	}
	return nil, ErrNoSource
}

// Range calls given function for each module in name order.
func (m *ModuleMap) Range(fn func(name string, mod Importable) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.m))
	for name := range m.m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !fn(name, m.m[name]) {
			break
		}
	}
}

// Copy creates a copy of the module map.
func (m *ModuleMap) Copy() *ModuleMap {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := &ModuleMap{m: make(map[string]Importable), ext: m.ext}

	for name, mod := range m.m {
		c.m[name] = mod
	}
	return c
}

// Len returns the number of modules.
func (m *ModuleMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.m)
}

// Merge merges modules from other ModuleMap.
func (m *ModuleMap) Merge(other *ModuleMap) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, mod := range other.m {
		m.m[name] = mod
	}
}

// SourceModule is an importable module with an AST built in Go.
type SourceModule struct {
	AST *ast.Module
}

// Import returns the module AST.
func (m *SourceModule) Import(_ string) (*ast.Module, error) {
	if m.AST == nil {
		return nil, ErrNoSource
	}
	return m.AST, nil
}

// ModuleStatus is the compilation status of a module.
type ModuleStatus int

// Module statuses.
const (
	ModuleInFlight ModuleStatus = iota
	ModuleDone
	ModuleFailed
)

func (s ModuleStatus) String() string {
	switch s {
	case ModuleInFlight:
		return "in-flight"
	case ModuleDone:
		return "done"
	case ModuleFailed:
		return "failed"
	}
	return "unknown"
}

// ModuleConfig holds per-module settings applied from compiler options.
type ModuleConfig struct {
	ImportPrelude bool
	TailCalls     bool
	DeadCode      bool
}

// Module is a compilation unit. Modules are owned by the module cache of a
// State and referred to by ID.
type Module struct {
	ID      int
	Name    string
	AST     *ast.Module
	Imports []*Module
	Globals *SymbolTable
	Type    *ObjectType
	Body    *tir.CodeObject
	// Compiled and Bytes are set by the emission passes.
	Compiled *bytecode.CompiledModule
	Bytes    []byte
	Config   ModuleConfig
	Status   ModuleStatus

	// imports are the explicit imports plus the implicit ones.
	imports []*ast.Import
	ann     *annotations
}

// Done reports whether the pipeline completed without a fatal halt.
func (m *Module) Done() bool {
	return m.Status == ModuleDone
}

// TypeOf returns the type annotated to an expression of the module.
func (m *Module) TypeOf(node ast.Node) (Type, bool) {
	if m.ann == nil {
		return nil, false
	}
	t, ok := m.ann.types[node]
	return t, ok
}

// SymbolOf returns the symbol an identifier, definition or assignment of
// the module was bound to.
func (m *Module) SymbolOf(node ast.Node) (*Symbol, bool) {
	if m.ann == nil {
		return nil, false
	}
	s, ok := m.ann.symbols[node]
	return s, ok
}

// moduleArena is the module cache of a compilation run. It is a single
// assignment memo keyed by qualified name; modules are held by index.
type moduleArena struct {
	mu      sync.Mutex
	modules []*Module
	byName  map[string]int
}

func newModuleArena() *moduleArena {
	return &moduleArena{byName: make(map[string]int)}
}

// claim returns the module registered for name, or registers a new in-flight
// module created by newFn. created reports whether the caller owns the
// compilation of the returned module.
func (a *moduleArena) claim(name string, newFn func(id int) *Module) (m *Module, created bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if idx, ok := a.byName[name]; ok {
		return a.modules[idx], false
	}
	m = newFn(len(a.modules))
	a.byName[name] = m.ID
	a.modules = append(a.modules, m)
	return m, true
}

func (a *moduleArena) get(name string) (*Module, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.byName[name]
	if !ok {
		return nil, false
	}
	return a.modules[idx], true
}

func (a *moduleArena) byID(id int) *Module {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id < 0 || id >= len(a.modules) {
		return nil
	}
	return a.modules[id]
}

func (a *moduleArena) all() []*Module {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Module, len(a.modules))
	copy(out, a.modules)
	return out
}
