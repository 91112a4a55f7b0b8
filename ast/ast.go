// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package ast defines the typed syntax tree consumed by the compiler. Trees
// are produced by an external parser or loaded from the YAML interchange
// format with LoadYAML.
package ast

import (
	"fmt"
	"strings"
)

// Location is a position in a source file.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Node represents a node in the AST.
type Node interface {
	Loc() Location
}

// Expr is a node producing a value.
type Expr interface {
	Node
	exprNode()
}

// Base carries the location of a node.
type Base struct {
	Location Location
}

// Loc implements Node.
func (b *Base) Loc() Location { return b.Location }

// Module is the root of a single source file.
type Module struct {
	Base
	Name    string
	Imports []*Import
	Options []*CompilerOption
	Body    *Body
}

// QualifiedName splits the module name on "::".
func (m *Module) QualifiedName() []string {
	return strings.Split(m.Name, "::")
}

// Body is an ordered list of expressions.
type Body struct {
	Base
	Exprs []Expr
}

// Import imports a module and optionally some of its symbols.
type Import struct {
	Base
	Path    []string
	Symbols []*ImportSymbol
	Glob    bool
	// Implicit is set for imports inserted by the compiler.
	Implicit bool
}

// ModuleName returns the qualified name of the imported module.
func (i *Import) ModuleName() string {
	return strings.Join(i.Path, "::")
}

// ImportSymbol is a single imported name, optionally aliased.
type ImportSymbol struct {
	Base
	Name  string
	Alias string
}

// BoundName returns the name the symbol is bound to in the importing module.
func (s *ImportSymbol) BoundName() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Name
}

// CompilerOption is a module-level option such as `![tail_calls: false]`.
type CompilerOption struct {
	Base
	Key   string
	Value string
}

// TypeParameter declares a generic type parameter with upper bounds.
type TypeParameter struct {
	Base
	Name   string
	Bounds []TypeExpr
}

// Argument declares a method or block argument.
type Argument struct {
	Base
	Name    string
	Type    TypeExpr
	Default Expr
	Rest    bool
	Mutable bool
}

// Object defines a new object type.
type Object struct {
	Base
	Name           string
	TypeParameters []*TypeParameter
	Body           *Body
}

// ReopenObject adds methods to an existing object.
type ReopenObject struct {
	Base
	Name string
	Body *Body
}

// Trait defines a trait. Methods without a body are required methods.
type Trait struct {
	Base
	Name           string
	TypeParameters []*TypeParameter
	Requires       []TypeExpr
	Body           *Body
}

// TraitImplementation implements a trait for an existing object.
type TraitImplementation struct {
	Base
	Trait  TypeExpr
	Object string
	Body   *Body
}

// Method defines a method. Required methods have a nil Body.
type Method struct {
	Base
	Name           string
	TypeParameters []*TypeParameter
	Arguments      []*Argument
	Returns        TypeExpr
	Throws         TypeExpr
	Body           *Body
}

// Required reports whether the method has no implementation.
func (m *Method) Required() bool { return m.Body == nil }

// Block is a closure literal.
type Block struct {
	Base
	Arguments []*Argument
	Returns   TypeExpr
	Throws    TypeExpr
	Body      *Body
}

// DefineVariable defines a local (`let x`), an attribute (`let @x`) or a
// constant (`let X`).
type DefineVariable struct {
	Base
	Name    string
	Type    TypeExpr
	Value   Expr
	Mutable bool
}

// ReassignVariable assigns to an existing local or attribute.
type ReassignVariable struct {
	Base
	Name  string
	Value Expr
}

// Identifier is a local variable reference or a receiverless send without
// arguments.
type Identifier struct {
	Base
	Name string
}

// Attribute reads an attribute of self, written as `@name`.
type Attribute struct {
	Base
	Name string
}

// Constant refers to a constant, optionally on a receiver.
type Constant struct {
	Base
	Name     string
	Receiver Expr
}

// Global refers to a module global, written as `::Name`.
type Global struct {
	Base
	Name string
}

// Self refers to the current receiver.
type Self struct {
	Base
}

// Send sends a message to a receiver. A nil Receiver sends to self.
type Send struct {
	Base
	Receiver      Expr
	Message       string
	Arguments     []Expr
	TypeArguments []TypeExpr
}

// KeywordArgument is a named argument of a Send.
type KeywordArgument struct {
	Base
	Name  string
	Value Expr
}

// IntegerLiteral is an integer constant.
type IntegerLiteral struct {
	Base
	Value int64
}

// FloatLiteral is a float constant.
type FloatLiteral struct {
	Base
	Value float64
}

// StringLiteral is a string constant.
type StringLiteral struct {
	Base
	Value string
}

// BoolLiteral is `true` or `false`.
type BoolLiteral struct {
	Base
	Value bool
}

// NilLiteral is `nil`.
type NilLiteral struct {
	Base
}

// ArrayLiteral is `[a, b]`.
type ArrayLiteral struct {
	Base
	Values []Expr
}

// HashMapLiteral is `%[k: v]`.
type HashMapLiteral struct {
	Base
	Keys   []Expr
	Values []Expr
}

// Return returns from the current method or block.
type Return struct {
	Base
	Value Expr
}

// Throw throws a value.
type Throw struct {
	Base
	Value Expr
}

// Try runs Expr and evaluates Else when it throws. ElseArgument names the
// local bound to the thrown value.
type Try struct {
	Base
	Expr         Expr
	ElseArgument string
	Else         *Body
}

// If is a conditional. Else may be nil.
type If struct {
	Base
	Condition Expr
	Then      *Body
	Else      *Body
}

// While loops while Condition is truthy.
type While struct {
	Base
	Condition Expr
	Body      *Body
}

// TypeCast changes the static type of an expression.
type TypeCast struct {
	Base
	Expr Expr
	Type TypeExpr
}

func (*Object) exprNode()              {}
func (*ReopenObject) exprNode()        {}
func (*Trait) exprNode()               {}
func (*TraitImplementation) exprNode() {}
func (*Method) exprNode()              {}
func (*Block) exprNode()               {}
func (*DefineVariable) exprNode()      {}
func (*ReassignVariable) exprNode()    {}
func (*Identifier) exprNode()          {}
func (*Attribute) exprNode()           {}
func (*Constant) exprNode()            {}
func (*Global) exprNode()              {}
func (*Self) exprNode()                {}
func (*Send) exprNode()                {}
func (*KeywordArgument) exprNode()     {}
func (*IntegerLiteral) exprNode()      {}
func (*FloatLiteral) exprNode()        {}
func (*StringLiteral) exprNode()       {}
func (*BoolLiteral) exprNode()         {}
func (*NilLiteral) exprNode()          {}
func (*ArrayLiteral) exprNode()        {}
func (*HashMapLiteral) exprNode()      {}
func (*Return) exprNode()              {}
func (*Throw) exprNode()               {}
func (*Try) exprNode()                 {}
func (*If) exprNode()                  {}
func (*While) exprNode()               {}
func (*TypeCast) exprNode()            {}
