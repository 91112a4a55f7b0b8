// A modified version of Tengo SymbolTable.

// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Copyright (c) 2019 Daniel Kang.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE.tengo file.

package aeonc

import (
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// SymbolScope represents a symbol scope.
type SymbolScope string

// List of symbol scopes
const (
	ScopeGlobal SymbolScope = "GLOBAL"
	ScopeLocal  SymbolScope = "LOCAL"
)

// Symbol represents a symbol in the symbol table.
type Symbol struct {
	Name    string
	Index   int
	Scope   SymbolScope
	Type    Type
	Mutable bool
	// Depth is the code object nesting depth of the defining scope.
	Depth int
	// Captured is set on a local once a nested code object refers to it.
	Captured bool
	// Original is set on aliases returned for captured symbols.
	Original *Symbol
}

func (s *Symbol) String() string {
	return fmt.Sprintf("Symbol{Name:%s Index:%d Scope:%s Depth:%d Mutable:%v Captured:%v}",
		s.Name, s.Index, s.Scope, s.Depth, s.Mutable, s.Captured)
}

// Target returns the symbol an alias refers to, or s.
func (s *Symbol) Target() *Symbol {
	if s.Original != nil {
		return s.Original
	}
	return s
}

// SymbolTable represents a symbol table. A table forked with block set
// shares the local slots of its code object with its parent; other forks
// start a nested code object.
type SymbolTable struct {
	id            int
	store         *linkedhashmap.Map
	aliases       map[string]*Symbol
	parent        *SymbolTable
	numParams     int
	maxDefinition int
	numDefinition int
	numGlobals    int
	block         bool
	depth         int
	ids           *int
}

// NewSymbolTable creates new symbol table object.
func NewSymbolTable() *SymbolTable {
	ids := 0
	return &SymbolTable{
		store:   linkedhashmap.New(),
		aliases: make(map[string]*Symbol),
		ids:     &ids,
	}
}

// Fork creates a new symbol table for a new scope.
func (st *SymbolTable) Fork(block bool) *SymbolTable {
	*st.ids++
	fork := &SymbolTable{
		id:      *st.ids,
		store:   linkedhashmap.New(),
		aliases: make(map[string]*Symbol),
		parent:  st,
		block:   block,
		depth:   st.depth,
		ids:     st.ids,
	}
	if !block && st.parent != nil {
		fork.depth++
	}
	return fork
}

// ID returns the unique identifier of the scope within its root table.
func (st *SymbolTable) ID() int {
	return st.id
}

// Depth returns the code object nesting depth of the scope. The root table
// holds globals; its direct non-block fork is the module body at depth 0.
func (st *SymbolTable) Depth() int {
	return st.depth
}

// Parent returns the outer scope of the current symbol table.
func (st *SymbolTable) Parent(skipBlock bool) *SymbolTable {
	if skipBlock && st.block {
		return st.parent.Parent(skipBlock)
	}
	return st.parent
}

// InBlock returns true if symbol table belongs to a block.
func (st *SymbolTable) InBlock() bool {
	return st.block
}

func (st *SymbolTable) lookup(name string) (*Symbol, bool) {
	v, ok := st.store.Get(name)
	if !ok {
		return nil, false
	}
	return v.(*Symbol), true
}

// Resolve resolves a symbol with a given name, walking from the innermost
// scope outwards. A local defined in an enclosing code object is returned
// as an alias that shares its slot; the original is marked as captured.
func (st *SymbolTable) Resolve(name string) (*Symbol, bool) {
	if symbol, ok := st.lookup(name); ok {
		return symbol, true
	}
	if alias, ok := st.aliases[name]; ok {
		return alias, true
	}
	if st.parent == nil {
		return nil, false
	}
	symbol, ok := st.parent.Resolve(name)
	if !ok {
		return nil, false
	}
	if st.block || symbol.Scope == ScopeGlobal {
		return symbol, true
	}
	original := symbol.Target()
	original.Captured = true
	alias := &Symbol{
		Name:     original.Name,
		Index:    original.Index,
		Scope:    ScopeLocal,
		Type:     original.Type,
		Mutable:  original.Mutable,
		Depth:    original.Depth,
		Captured: true,
		Original: original,
	}
	st.aliases[name] = alias
	return alias, true
}

// ResolveLocal returns a symbol defined in this scope only.
func (st *SymbolTable) ResolveLocal(name string) (*Symbol, bool) {
	return st.lookup(name)
}

// DefineLocal adds a new symbol with ScopeLocal in the current scope.
// Defining a name twice in one scope fails with ErrDuplicateDefinition;
// shadowing an outer symbol is allowed.
func (st *SymbolTable) DefineLocal(name string, typ Type, mutable bool) (*Symbol, error) {
	if _, ok := st.lookup(name); ok {
		return nil, ErrDuplicateDefinition.NewError(
			fmt.Sprintf("%q is already defined in this scope", name))
	}
	symbol := &Symbol{
		Name:    name,
		Index:   st.NextIndex(),
		Scope:   ScopeLocal,
		Type:    typ,
		Mutable: mutable,
		Depth:   st.depth,
	}
	st.numDefinition++
	st.store.Put(name, symbol)
	st.updateMaxDefs(symbol.Index + 1)
	return symbol, nil
}

// SetParams defines the arguments of a code object. This can be called
// only once per scope.
func (st *SymbolTable) SetParams(names []string, types []Type) error {
	if len(names) == 0 {
		return nil
	}
	if st.numParams > 0 {
		return ErrInternal.NewError("parameters already defined")
	}
	if st.block {
		return ErrInternal.NewError("parameters cannot be defined in a block scope")
	}
	st.numParams = len(names)
	for i, name := range names {
		if _, err := st.DefineLocal(name, types[i], true); err != nil {
			return err
		}
	}
	return nil
}

func (st *SymbolTable) updateMaxDefs(numDefs int) {
	if numDefs > st.maxDefinition {
		st.maxDefinition = numDefs
	}
	if st.block {
		st.parent.updateMaxDefs(numDefs)
	}
}

// NextIndex returns the next symbol index.
func (st *SymbolTable) NextIndex() int {
	if st.block {
		return st.parent.NextIndex() + st.numDefinition
	}
	return st.numDefinition
}

// DefineGlobal adds a new symbol with ScopeGlobal. Globals can only be
// defined in the root table.
func (st *SymbolTable) DefineGlobal(name string, typ Type, mutable bool) (*Symbol, error) {
	if st.parent != nil {
		return nil, ErrInternal.NewError("global declaration can be at top scope")
	}
	if _, ok := st.lookup(name); ok {
		return nil, ErrDuplicateDefinition.NewError(
			fmt.Sprintf("%q is already defined in this module", name))
	}
	s := &Symbol{
		Name:    name,
		Index:   st.numGlobals,
		Scope:   ScopeGlobal,
		Type:    typ,
		Mutable: mutable,
		Depth:   -1,
	}
	st.numGlobals++
	st.store.Put(name, s)
	return s, nil
}

// Root returns the outermost table.
func (st *SymbolTable) Root() *SymbolTable {
	for st.parent != nil {
		st = st.parent
	}
	return st
}

// IsGlobal returns true if given name is registered global name.
func (st *SymbolTable) IsGlobal(name string) bool {
	sym, ok := st.Resolve(name)
	return ok && sym.Scope == ScopeGlobal
}

// MaxSymbols returns the total number of symbols defined in the scope.
func (st *SymbolTable) MaxSymbols() int {
	return st.maxDefinition
}

// NumGlobals returns the number of globals of the root table.
func (st *SymbolTable) NumGlobals() int {
	return st.Root().numGlobals
}

// NumParams returns number of parameters for the scope.
func (st *SymbolTable) NumParams() int {
	return st.numParams
}

// Symbols returns registered symbols for the scope in definition order.
func (st *SymbolTable) Symbols() []*Symbol {
	vals := st.store.Values()
	out := make([]*Symbol, len(vals))
	for i, v := range vals {
		out[i] = v.(*Symbol)
	}
	return out
}
