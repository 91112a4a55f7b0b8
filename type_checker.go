// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"fmt"
	"strings"

	"github.com/ozanh/aeonc/ast"
	"github.com/ozanh/aeonc/bytecode"
)

// vmReceiver is the constant receiving raw VM instructions.
const vmReceiver = "_VM"

type rawInstruction struct {
	op      bytecode.Opcode
	arity   int
	returns string
}

// rawInstructions maps messages sent to _VM to the opcodes they lower to.
// An empty return name means Dynamic.
var rawInstructions = map[string]rawInstruction{
	"integer_add":       {bytecode.OpIntegerAdd, 2, IntegerName},
	"integer_sub":       {bytecode.OpIntegerSub, 2, IntegerName},
	"integer_mul":       {bytecode.OpIntegerMul, 2, IntegerName},
	"integer_smaller":   {bytecode.OpIntegerSmaller, 2, BooleanName},
	"integer_greater":   {bytecode.OpIntegerGreater, 2, BooleanName},
	"integer_equals":    {bytecode.OpIntegerEquals, 2, BooleanName},
	"integer_to_string": {bytecode.OpIntegerToString, 1, StringName},
	"object_equals":     {bytecode.OpObjectEquals, 2, BooleanName},
	"array_length":      {bytecode.OpArrayLength, 1, IntegerName},
	"array_at":          {bytecode.OpArrayAt, 2, ""},
	"array_insert":      {bytecode.OpArrayInsert, 3, ""},
	"stdout_write":      {bytecode.OpStdoutWrite, 1, IntegerName},
}

// sendInfo is the resolution of a message send, or of an identifier that
// turned out to be a send to self.
type sendInfo struct {
	Receiver Type
	// Method is nil for sends resolved dynamically.
	Method *BlockType
	Raw    bytecode.Opcode
	IsRaw  bool
	// RunBlock is set for `call` sent to a value of a block type.
	RunBlock   bool
	Positional []ast.Expr
	Keywords   []*ast.KeywordArgument
}

// instanceUse is a generic instantiation found in a type expression,
// validated by the ValidateConstraints pass.
type instanceUse struct {
	params []*TypeParameter
	args   []Type
	name   string
	loc    ast.Location
	self   Type
}

type defaultCopy struct {
	name     string
	provider *TraitType
}

// annotations hold what the DefineTypes pass attaches to the AST. Later
// passes read them instead of resolving names again.
type annotations struct {
	types   map[ast.Node]Type
	symbols map[ast.Node]*Symbol
	sends   map[ast.Node]*sendInfo
	scopes  map[ast.Node]*SymbolTable
	methods map[*ast.Method]*BlockType
	blocks  map[*ast.Block]*BlockType
	defs    map[ast.Node]Type
	traits  map[*ast.TraitImplementation]*TraitType
	// typeNames and typeSymbols bind the constant names visible in the
	// module to their types and global symbols.
	typeNames   map[string]Type
	typeSymbols map[string]*Symbol
	imports     []*importBinding
	instances   []instanceUse
	defaults    map[*ast.TraitImplementation][]defaultCopy
	// throwing marks try expressions whose guarded expression may throw.
	throwTypes map[ast.Node]Type
}

func newAnnotations() *annotations {
	return &annotations{
		types:       make(map[ast.Node]Type),
		symbols:     make(map[ast.Node]*Symbol),
		sends:       make(map[ast.Node]*sendInfo),
		scopes:      make(map[ast.Node]*SymbolTable),
		methods:     make(map[*ast.Method]*BlockType),
		blocks:      make(map[*ast.Block]*BlockType),
		defs:        make(map[ast.Node]Type),
		traits:      make(map[*ast.TraitImplementation]*TraitType),
		typeNames:   make(map[string]Type),
		typeSymbols: make(map[string]*Symbol),
		defaults:    make(map[*ast.TraitImplementation][]defaultCopy),
		throwTypes:  make(map[ast.Node]Type),
	}
}

// importBinding is a global bound by an import: the module object itself
// or one of its attributes.
type importBinding struct {
	module string
	attr   string
	symbol *Symbol
	loc    ast.Location
}

// scope is the lexical context of the checker.
type scope struct {
	table  *SymbolTable
	self   Type
	code   *BlockType
	params map[string]*TypeParameter
	parent *scope
	// toplevel is set for the module body itself, where definitions
	// become globals.
	toplevel bool
}

func (sc *scope) param(name string) (*TypeParameter, bool) {
	for s := sc; s != nil; s = s.parent {
		if p, ok := s.params[name]; ok {
			return p, true
		}
	}
	return nil, false
}

func (sc *scope) block() *scope {
	return &scope{table: sc.table.Fork(true), self: sc.self, code: sc.code, parent: sc}
}

func (sc *scope) withParams(params []*TypeParameter) *scope {
	if len(params) == 0 {
		return sc
	}
	ns := *sc
	ns.parent = sc
	ns.toplevel = false
	ns.params = make(map[string]*TypeParameter, len(params))
	for _, p := range params {
		ns.params[p.Name] = p
	}
	return &ns
}

func (sc *scope) context() *TypeContext {
	return NewTypeContext(sc.self)
}

type checker struct {
	s   *State
	m   *Module
	ann *annotations
}

func (c *checker) errorf(kind DiagnosticKind, node ast.Node, format string, args ...interface{}) {
	c.s.Diagnostics.Errorf(kind, c.m.Name, node.Loc(), format, args...)
}

func (c *checker) builtin(name string) *ObjectType {
	return c.s.Types.Builtin(name)
}

func (c *checker) annotate(node ast.Node, t Type) Type {
	c.ann.types[node] = t
	return t
}

func defineTypes(s *State, m *Module) error {
	c := &checker{s: s, m: m, ann: m.ann}
	body := moduleBody(m)
	top := &scope{
		table:    m.Globals.Fork(false),
		self:     m.Type,
		toplevel: true,
	}
	c.ann.scopes[m.AST] = top.table

	for _, expr := range body {
		c.declare(expr)
	}
	for _, expr := range body {
		c.signatures(top, expr)
	}
	m.Type.Partial = false
	if _, err := top.table.DefineLocal("self", m.Type, false); err != nil {
		return err
	}
	for _, expr := range body {
		c.checkToplevel(top, expr)
	}
	return nil
}

func moduleBody(m *Module) []ast.Expr {
	if m.AST == nil || m.AST.Body == nil {
		return nil
	}
	return m.AST.Body.Exprs
}

func bodyExprs(b *ast.Body) []ast.Expr {
	if b == nil {
		return nil
	}
	return b.Exprs
}

// declare registers the object and trait definitions of the module body.
func (c *checker) declare(expr ast.Expr) {
	var (
		name   string
		t      Type
		tps    []*ast.TypeParameter
		params []*TypeParameter
	)
	switch node := expr.(type) {
	case *ast.Object:
		name, tps = node.Name, node.TypeParameters
		params = newTypeParameters(tps)
		ot := NewObjectType(c.m.Name, name, c.builtin(ObjectName))
		ot.TypeParameters = params
		t = ot
	case *ast.Trait:
		name, tps = node.Name, node.TypeParameters
		params = newTypeParameters(tps)
		tt := NewTraitType(c.m.Name, name)
		tt.TypeParameters = params
		t = tt
	default:
		return
	}
	if err := c.s.Types.Define(c.m.Name, name, t); err != nil {
		c.errorf(DuplicateDefinition, expr, "%s", err.(*Error).Message)
		c.ann.defs[expr] = t
		return
	}
	sym, err := c.m.Globals.DefineGlobal(name, t, false)
	if err != nil {
		c.errorf(DuplicateDefinition, expr, "%s", err.(*Error).Message)
	} else {
		c.ann.symbols[expr] = sym
		c.ann.typeSymbols[name] = sym
	}
	c.ann.defs[expr] = t
	c.ann.typeNames[name] = t
	c.m.Type.Attributes.Put(name, t)
}

func newTypeParameters(tps []*ast.TypeParameter) []*TypeParameter {
	out := make([]*TypeParameter, len(tps))
	for i, tp := range tps {
		out[i] = &TypeParameter{Name: tp.Name}
	}
	return out
}

func (c *checker) resolveBounds(sc *scope, tps []*ast.TypeParameter, params []*TypeParameter) {
	for i, tp := range tps {
		for _, b := range tp.Bounds {
			params[i].Bounds = append(params[i].Bounds, c.resolveType(sc, b))
		}
	}
}

// signatures resolves type parameter bounds, method signatures, attributes
// and trait implementation edges.
func (c *checker) signatures(sc *scope, expr ast.Expr) {
	switch node := expr.(type) {
	case *ast.Object:
		t, ok := c.ann.defs[node].(*ObjectType)
		if !ok {
			return
		}
		osc := sc.withParams(t.TypeParameters)
		osc.self = t
		c.resolveBounds(osc, node.TypeParameters, t.TypeParameters)
		c.objectMembers(osc, t, node.Body)
	case *ast.Trait:
		t, ok := c.ann.defs[node].(*TraitType)
		if !ok {
			return
		}
		tsc := sc.withParams(t.TypeParameters)
		tsc.self = t
		c.resolveBounds(tsc, node.TypeParameters, t.TypeParameters)
		for _, r := range node.Requires {
			rt := c.resolveType(tsc, r)
			tr, ok := rt.(*TraitType)
			if !ok {
				if rt != TypeError {
					c.errorf(TypeMismatch, r, "%s is not a trait", rt)
				}
				continue
			}
			t.Requires = append(t.Requires, tr)
		}
		for _, e := range bodyExprs(node.Body) {
			meth, ok := e.(*ast.Method)
			if !ok {
				continue
			}
			sig := c.methodSignature(tsc, meth)
			members := t.DefaultMethods
			if meth.Required() {
				members = t.RequiredMethods
			}
			if t.RequiredMethods.Has(meth.Name) || t.DefaultMethods.Has(meth.Name) {
				c.errorf(DuplicateDefinition, meth, "method %q is already defined in %s",
					meth.Name, t)
				continue
			}
			members.Put(meth.Name, sig)
		}
	case *ast.TraitImplementation:
		obj := c.lookupObject(sc, node.Object, node)
		if obj == nil {
			return
		}
		osc := sc.withParams(obj.TypeParameters)
		osc.self = obj
		tt := c.resolveType(osc, node.Trait)
		tr, ok := tt.(*TraitType)
		if !ok {
			if tt != TypeError {
				c.errorf(TypeMismatch, node.Trait, "%s is not a trait", tt)
			}
			c.ann.defs[node] = obj
			c.objectMembers(osc, obj, node.Body)
			return
		}
		if !obj.ImplementTrait(tr) {
			c.errorf(DuplicateDefinition, node, "%s already implements %s", obj, tr)
		}
		c.ann.defs[node] = obj
		c.ann.traits[node] = tr
		c.objectMembers(osc, obj, node.Body)
	case *ast.ReopenObject:
		obj := c.lookupObject(sc, node.Name, node)
		if obj == nil {
			return
		}
		osc := sc.withParams(obj.TypeParameters)
		osc.self = obj
		c.ann.defs[node] = obj
		c.objectMembers(osc, obj, node.Body)
	case *ast.Method:
		sig := c.methodSignature(sc, node)
		if c.m.Type.Methods.Has(node.Name) {
			c.errorf(DuplicateDefinition, node, "method %q is already defined in %s",
				node.Name, c.m.Name)
			return
		}
		c.m.Type.Methods.Put(node.Name, sig)
	}
}

func (c *checker) lookupObject(sc *scope, name string, node ast.Node) *ObjectType {
	t := c.resolveTypeName(sc, &ast.TypeName{Base: ast.Base{Location: node.Loc()}, Name: name})
	obj, ok := t.(*ObjectType)
	if !ok {
		if t != TypeError {
			c.errorf(TypeMismatch, node, "%s is not an object", t)
		}
		return nil
	}
	return obj.Definition()
}

// objectMembers declares the methods and attributes defined in an object,
// reopen or trait implementation body.
func (c *checker) objectMembers(sc *scope, obj *ObjectType, body *ast.Body) {
	for _, e := range bodyExprs(body) {
		switch node := e.(type) {
		case *ast.Method:
			sig := c.methodSignature(sc, node)
			if obj.Methods.Has(node.Name) {
				c.errorf(DuplicateDefinition, node, "method %q is already defined in %s",
					node.Name, obj)
				continue
			}
			obj.Methods.Put(node.Name, sig)
			if node.Body == nil {
				continue
			}
			msc := sc.withParams(sig.TypeParameters)
			for _, be := range node.Body.Exprs {
				if def, ok := be.(*ast.DefineVariable); ok && isAttributeName(def.Name) {
					c.declareAttribute(msc, obj, def)
				}
			}
		case *ast.DefineVariable:
			if isAttributeName(node.Name) {
				c.declareAttribute(sc, obj, node)
			}
		}
	}
}

func isAttributeName(name string) bool {
	return strings.HasPrefix(name, "@")
}

func (c *checker) declareAttribute(sc *scope, obj *ObjectType, def *ast.DefineVariable) {
	name := strings.TrimPrefix(def.Name, "@")
	if obj.Attributes.Has(name) {
		return
	}
	var t Type = TypeDynamic
	if def.Type != nil {
		t = c.resolveType(sc, def.Type)
	}
	obj.Attributes.Put(name, t)
}

func (c *checker) methodSignature(sc *scope, node *ast.Method) *BlockType {
	if sig, ok := c.ann.methods[node]; ok {
		return sig
	}
	params := newTypeParameters(node.TypeParameters)
	msc := sc.withParams(params)
	c.resolveBounds(msc, node.TypeParameters, params)
	sig := &BlockType{
		Name:           node.Name,
		TypeParameters: params,
		Method:         true,
	}
	sig.Arguments = c.argumentTypes(msc, node.Arguments)
	if node.Returns != nil {
		sig.Returns = c.resolveType(msc, node.Returns)
	}
	if node.Throws != nil {
		sig.Throws = c.resolveType(msc, node.Throws)
	}
	c.ann.methods[node] = sig
	return sig
}

func (c *checker) argumentTypes(sc *scope, args []*ast.Argument) []*ArgumentType {
	out := make([]*ArgumentType, len(args))
	for i, a := range args {
		var t Type = TypeDynamic
		if a.Type != nil {
			t = c.resolveType(sc, a.Type)
		}
		if a.Rest {
			t = c.builtin(ArrayName).Instantiate([]Type{t})
		}
		out[i] = &ArgumentType{Name: a.Name, Type: t, Default: a.Default != nil, Rest: a.Rest}
	}
	return out
}

// resolveType converts a type expression. Unknown names are reported and
// resolve to the error type.
func (c *checker) resolveType(sc *scope, te ast.TypeExpr) Type {
	switch te := te.(type) {
	case *ast.TypeName:
		return c.resolveTypeName(sc, te)
	case *ast.OptionalTypeExpr:
		return &OptionalType{Type: c.resolveType(sc, te.Type)}
	case *ast.BlockTypeExpr:
		bt := &BlockType{}
		for _, a := range te.Arguments {
			bt.Arguments = append(bt.Arguments, &ArgumentType{Type: c.resolveType(sc, a)})
		}
		if te.Returns != nil {
			bt.Returns = c.resolveType(sc, te.Returns)
		}
		if te.Throws != nil {
			bt.Throws = c.resolveType(sc, te.Throws)
		}
		return bt
	case nil:
		return TypeDynamic
	default:
		panic(fmt.Sprintf("unknown type expression %T", te))
	}
}

func (c *checker) resolveTypeName(sc *scope, te *ast.TypeName) Type {
	var t Type
	switch te.Name {
	case "Self":
		t = &SelfType{}
	case "Dynamic":
		t = TypeDynamic
	case "Nil":
		t = TypeNil
	case "Void":
		t = TypeVoid
	default:
		if p, ok := sc.param(te.Name); ok {
			t = p
		} else if named, ok := c.ann.typeNames[te.Name]; ok {
			t = named
		} else if found, err := c.s.Types.Lookup(te.Name); err == nil {
			t = found
		} else {
			c.errorf(TypeNotFound, te, "type %s is not defined", te.Name)
			return TypeError
		}
	}
	if len(te.Arguments) == 0 {
		return t
	}
	args := make([]Type, len(te.Arguments))
	for i, a := range te.Arguments {
		args[i] = c.resolveType(sc, a)
	}
	var params []*TypeParameter
	switch g := t.(type) {
	case *ObjectType:
		params = g.Definition().TypeParameters
		if len(params) == len(args) {
			t = g.Instantiate(args)
		}
	case *TraitType:
		params = g.Definition().TypeParameters
		if len(params) == len(args) {
			t = g.Instantiate(args)
		}
	case *DynamicType, *ErrorType:
		return t
	}
	if len(params) != len(args) {
		c.errorf(TypeMismatch, te, "%s expects %d type arguments, got %d",
			te.Name, len(params), len(args))
		return TypeError
	}
	c.ann.instances = append(c.ann.instances, instanceUse{
		params: params, args: args, name: te.Name, loc: te.Loc(), self: sc.self,
	})
	return t
}

// checkToplevel checks an expression of the module body.
func (c *checker) checkToplevel(sc *scope, expr ast.Expr) {
	switch node := expr.(type) {
	case *ast.Object:
		if t, ok := c.ann.defs[node].(*ObjectType); ok {
			c.checkObjectBody(sc, t, t.TypeParameters, node.Body)
		}
		c.annotate(node, c.ann.defs[node])
	case *ast.Trait:
		t, ok := c.ann.defs[node].(*TraitType)
		if !ok {
			return
		}
		tsc := sc.block().withParams(t.TypeParameters)
		tsc.self = t
		for _, e := range bodyExprs(node.Body) {
			if meth, ok := e.(*ast.Method); ok {
				c.checkMethod(tsc, meth, c.methodSignature(tsc, meth))
			} else {
				c.check(tsc, e)
			}
		}
		c.annotate(node, t)
	case *ast.TraitImplementation, *ast.ReopenObject:
		if t, ok := c.ann.defs[node].(*ObjectType); ok {
			var body *ast.Body
			switch n := node.(type) {
			case *ast.TraitImplementation:
				body = n.Body
			case *ast.ReopenObject:
				body = n.Body
			}
			c.checkObjectBody(sc, t, t.TypeParameters, body)
			c.annotate(node, t)
		}
	case *ast.Method:
		sig, ok := c.ann.methods[node]
		if !ok {
			sig = c.methodSignature(sc, node)
		}
		c.checkMethod(sc, node, sig)
		c.annotate(node, sig)
	default:
		c.check(sc, expr)
	}
}

func (c *checker) checkObjectBody(sc *scope, t *ObjectType, params []*TypeParameter, body *ast.Body) {
	osc := sc.block().withParams(params)
	osc.self = t
	for _, e := range bodyExprs(body) {
		if meth, ok := e.(*ast.Method); ok {
			c.checkMethod(osc, meth, c.methodSignature(osc, meth))
			c.annotate(meth, c.ann.methods[meth])
			continue
		}
		c.check(osc, e)
	}
}

// codeScope opens the scope of a new code object: slot 0 holds self,
// followed by the arguments.
func (c *checker) codeScope(sc *scope, node ast.Node, sig *BlockType, args []*ast.Argument) *scope {
	table := sc.table.Fork(false)
	if _, err := table.DefineLocal("self", sc.self, false); err != nil {
		c.errorf(InternalError, node, "%v", err)
	}
	names := make([]string, len(args))
	types := make([]Type, len(args))
	for i, a := range args {
		names[i] = a.Name
		types[i] = sig.Arguments[i].Type
	}
	if err := table.SetParams(names, types); err != nil {
		c.errorf(DuplicateDefinition, node, "%s", err.Error())
	}
	for i, a := range args {
		if sym, ok := table.ResolveLocal(a.Name); ok && sym.Index == i+1 {
			c.ann.symbols[a] = sym
		}
	}
	c.ann.scopes[node] = table
	ns := &scope{table: table, self: sc.self, code: sig, parent: sc}
	return ns.withParams(sig.TypeParameters)
}

func (c *checker) checkMethod(sc *scope, node *ast.Method, sig *BlockType) {
	if node.Body == nil {
		return
	}
	msc := c.codeScope(sc, node, sig, node.Arguments)
	c.checkDefaults(msc, node.Arguments, sig)
	last := c.checkBody(msc, node.Body)
	c.checkImplicitReturn(msc, node.Body, last, sig)
}

func (c *checker) checkDefaults(sc *scope, args []*ast.Argument, sig *BlockType) {
	for i, a := range args {
		if a.Default == nil {
			continue
		}
		t := c.check(sc, a.Default)
		if !Compatible(t, sig.Arguments[i].Type, sc.context()) {
			c.errorf(TypeMismatch, a.Default, "default of argument %q: expected %s, got %s",
				a.Name, sig.Arguments[i].Type, t)
		}
	}
}

func (c *checker) checkImplicitReturn(sc *scope, body *ast.Body, last Type, sig *BlockType) {
	if sig.Returns == nil || len(body.Exprs) == 0 {
		return
	}
	lastExpr := body.Exprs[len(body.Exprs)-1]
	switch lastExpr.(type) {
	case *ast.Return, *ast.Throw:
		return
	}
	if !Compatible(last, sig.Returns, sc.context()) {
		c.errorf(TypeMismatch, lastExpr, "expected a return value of type %s, got %s",
			sig.Returns, last)
	}
}

func (c *checker) checkBody(sc *scope, body *ast.Body) Type {
	var last Type = TypeNil
	for _, e := range bodyExprs(body) {
		last = c.check(sc, e)
	}
	return last
}

// check type checks expr and returns its type.
func (c *checker) check(sc *scope, expr ast.Expr) Type {
	return c.annotate(expr, c.checkExpr(sc, expr))
}

func (c *checker) checkExpr(sc *scope, expr ast.Expr) Type {
	switch node := expr.(type) {
	case *ast.IntegerLiteral:
		return c.builtin(IntegerName)
	case *ast.FloatLiteral:
		return c.builtin(FloatName)
	case *ast.StringLiteral:
		return c.builtin(StringName)
	case *ast.BoolLiteral:
		return c.builtin(BooleanName)
	case *ast.NilLiteral:
		return TypeNil
	case *ast.ArrayLiteral:
		var elem Type
		for _, v := range node.Values {
			elem = unify(elem, c.check(sc, v), sc)
		}
		if elem == nil {
			elem = TypeDynamic
		}
		return c.builtin(ArrayName).Instantiate([]Type{elem})
	case *ast.HashMapLiteral:
		var k, v Type
		for i := range node.Keys {
			k = unify(k, c.check(sc, node.Keys[i]), sc)
			v = unify(v, c.check(sc, node.Values[i]), sc)
		}
		if k == nil {
			k, v = TypeDynamic, TypeDynamic
		}
		return c.builtin(HashMapName).Instantiate([]Type{k, v})
	case *ast.Self:
		return sc.self
	case *ast.Identifier:
		return c.checkIdentifier(sc, node)
	case *ast.Attribute:
		t, ok := LookupAttribute(sc.self, node.Name)
		if !ok {
			c.errorf(UndefinedSymbol, node, "undefined attribute @%s for %s", node.Name, sc.self)
			return TypeError
		}
		return t
	case *ast.Constant:
		return c.checkConstant(sc, node)
	case *ast.Global:
		sym, ok := c.m.Globals.ResolveLocal(node.Name)
		if !ok {
			c.errorf(UndefinedSymbol, node, "undefined global ::%s", node.Name)
			return TypeError
		}
		c.ann.symbols[node] = sym
		return sym.Type
	case *ast.DefineVariable:
		return c.checkDefine(sc, node)
	case *ast.ReassignVariable:
		return c.checkReassign(sc, node)
	case *ast.Send:
		return c.checkSend(sc, node)
	case *ast.KeywordArgument:
		return c.check(sc, node.Value)
	case *ast.Return:
		var t Type = TypeNil
		if node.Value != nil {
			t = c.check(sc, node.Value)
		}
		if sc.code != nil && sc.code.Returns != nil &&
			!Compatible(t, sc.code.Returns, sc.context()) {
			c.errorf(TypeMismatch, node, "expected a return value of type %s, got %s",
				sc.code.Returns, t)
		}
		return TypeVoid
	case *ast.Throw:
		c.check(sc, node.Value)
		return TypeVoid
	case *ast.Try:
		return c.checkTry(sc, node)
	case *ast.If:
		c.check(sc, node.Condition)
		then := c.checkBody(sc.block(), node.Then)
		if node.Else == nil {
			return &OptionalType{Type: then}
		}
		els := c.checkBody(sc.block(), node.Else)
		if Compatible(els, then, sc.context()) {
			return then
		}
		return TypeDynamic
	case *ast.While:
		c.check(sc, node.Condition)
		c.checkBody(sc.block(), node.Body)
		return TypeNil
	case *ast.TypeCast:
		c.check(sc, node.Expr)
		return c.resolveType(sc, node.Type)
	case *ast.Block:
		return c.checkBlock(sc, node)
	case *ast.Method:
		sig := c.methodSignature(sc, node)
		c.checkMethod(sc, node, sig)
		return sig
	case *ast.Object, *ast.Trait, *ast.TraitImplementation, *ast.ReopenObject:
		c.errorf(TypeMismatch, node, "definitions are only allowed at the top level of a module")
		return TypeError
	default:
		panic(fmt.Sprintf("unknown expression %T", expr))
	}
}

// unify returns the common type of a sequence of values.
func unify(have, t Type, sc *scope) Type {
	switch {
	case have == nil:
		return t
	case Compatible(t, have, sc.context()):
		return have
	}
	return TypeDynamic
}

func (c *checker) checkIdentifier(sc *scope, node *ast.Identifier) Type {
	if sym, ok := sc.table.Resolve(node.Name); ok {
		c.ann.symbols[node] = sym
		return sym.Type
	}
	if mt, ok := LookupMethod(sc.self, node.Name); ok {
		info := &sendInfo{Receiver: sc.self}
		c.ann.sends[node] = info
		sig, isBlock := mt.(*BlockType)
		if !isBlock {
			return TypeDynamic
		}
		info.Method = sig
		if sig.RequiredArguments() > 0 {
			c.errorf(ArgumentCountMismatch, node, "%s expects %d arguments, got 0",
				node.Name, sig.RequiredArguments())
		}
		return ResolveSelf(sig.ReturnType(), sc.self)
	}
	c.errorf(UndefinedSymbol, node, "undefined variable or method %q", node.Name)
	return TypeError
}

func (c *checker) checkConstant(sc *scope, node *ast.Constant) Type {
	if node.Receiver != nil {
		rt := c.check(sc, node.Receiver)
		t, ok := LookupAttribute(rt, node.Name)
		if !ok {
			c.errorf(UndefinedSymbol, node, "undefined constant %s for %s", node.Name, rt)
			return TypeError
		}
		return t
	}
	if node.Name == vmReceiver {
		c.errorf(UndefinedSymbol, node, "%s can only receive VM instructions", vmReceiver)
		return TypeError
	}
	if sym, ok := c.ann.typeSymbols[node.Name]; ok {
		c.ann.symbols[node] = sym
		return sym.Type
	}
	if sym, ok := c.m.Globals.ResolveLocal(node.Name); ok {
		c.ann.symbols[node] = sym
		return sym.Type
	}
	if t, err := c.s.Types.Lookup(node.Name); err == nil {
		return t
	}
	c.errorf(UndefinedSymbol, node, "undefined constant %s", node.Name)
	return TypeError
}

func (c *checker) checkDefine(sc *scope, node *ast.DefineVariable) Type {
	vt := c.check(sc, node.Value)
	t := vt
	if node.Type != nil {
		t = c.resolveType(sc, node.Type)
		if !Compatible(vt, t, sc.context()) {
			c.errorf(TypeMismatch, node, "cannot assign %s to %s of type %s", vt, node.Name, t)
		}
	}
	if isAttributeName(node.Name) {
		name := strings.TrimPrefix(node.Name, "@")
		at, ok := LookupAttribute(sc.self, name)
		if ok && !Compatible(vt, at, sc.context()) {
			c.errorf(TypeMismatch, node, "cannot assign %s to @%s of type %s", vt, name, at)
		}
		if !ok {
			if obj, isObj := sc.self.(*ObjectType); isObj {
				obj.Definition().Attributes.Put(name, t)
			}
		}
		return t
	}
	var (
		sym *Symbol
		err error
	)
	if sc.toplevel {
		sym, err = c.m.Globals.DefineGlobal(node.Name, t, node.Mutable)
	} else {
		sym, err = sc.table.DefineLocal(node.Name, t, node.Mutable)
	}
	if err != nil {
		c.errorf(DuplicateDefinition, node, "%s", err.(*Error).Message)
		return t
	}
	c.ann.symbols[node] = sym
	return t
}

func (c *checker) checkReassign(sc *scope, node *ast.ReassignVariable) Type {
	vt := c.check(sc, node.Value)
	if isAttributeName(node.Name) {
		name := strings.TrimPrefix(node.Name, "@")
		at, ok := LookupAttribute(sc.self, name)
		if !ok {
			c.errorf(UndefinedSymbol, node, "undefined attribute @%s for %s", name, sc.self)
			return vt
		}
		if !Compatible(vt, at, sc.context()) {
			c.errorf(TypeMismatch, node, "cannot assign %s to @%s of type %s", vt, name, at)
		}
		return vt
	}
	sym, ok := sc.table.Resolve(node.Name)
	if !ok {
		c.errorf(UndefinedSymbol, node, "undefined variable %q", node.Name)
		return vt
	}
	c.ann.symbols[node] = sym
	if !sym.Mutable {
		c.errorf(ReassignImmutable, node, "cannot reassign immutable variable %q", node.Name)
	}
	if !Compatible(vt, sym.Type, sc.context()) {
		c.errorf(TypeMismatch, node, "cannot assign %s to %s of type %s", vt, node.Name, sym.Type)
	}
	return vt
}

func (c *checker) checkTry(sc *scope, node *ast.Try) Type {
	t := c.check(sc, node.Expr)
	var thrown Type = TypeDynamic
	if send, ok := node.Expr.(*ast.Send); ok {
		if info := c.ann.sends[send]; info != nil && info.Method != nil &&
			info.Method.Throws != nil {
			thrown = ResolveSelf(info.Method.Throws, info.Receiver)
		}
	}
	c.ann.throwTypes[node] = thrown
	if node.Else == nil {
		return t
	}
	esc := sc.block()
	if node.ElseArgument != "" {
		sym, err := esc.table.DefineLocal(node.ElseArgument, thrown, false)
		if err != nil {
			c.errorf(DuplicateDefinition, node, "%s", err.(*Error).Message)
		} else {
			c.ann.symbols[node] = sym
		}
	}
	et := c.checkBody(esc, node.Else)
	if Compatible(et, t, sc.context()) {
		return t
	}
	return TypeDynamic
}

func (c *checker) checkBlock(sc *scope, node *ast.Block) Type {
	sig := &BlockType{Arguments: c.argumentTypes(sc, node.Arguments)}
	if node.Returns != nil {
		sig.Returns = c.resolveType(sc, node.Returns)
	}
	if node.Throws != nil {
		sig.Throws = c.resolveType(sc, node.Throws)
	}
	c.ann.blocks[node] = sig
	bsc := c.codeScope(sc, node, sig, node.Arguments)
	c.checkDefaults(bsc, node.Arguments, sig)
	last := c.checkBody(bsc, node.Body)
	if sig.Returns == nil {
		sig.Returns = last
	} else {
		c.checkImplicitReturn(bsc, node.Body, last, sig)
	}
	return sig
}

func (c *checker) checkSend(sc *scope, node *ast.Send) Type {
	if k, ok := node.Receiver.(*ast.Constant); ok && k.Receiver == nil && k.Name == vmReceiver {
		return c.checkRawSend(sc, node)
	}
	var recv Type = sc.self
	if node.Receiver != nil {
		recv = c.check(sc, node.Receiver)
	}
	var (
		positional []ast.Expr
		keywords   []*ast.KeywordArgument
		argTypes   []Type
		kwTypes    []Type
	)
	for _, a := range node.Arguments {
		if kw, ok := a.(*ast.KeywordArgument); ok {
			keywords = append(keywords, kw)
			kwTypes = append(kwTypes, c.check(sc, kw))
			continue
		}
		positional = append(positional, a)
		argTypes = append(argTypes, c.check(sc, a))
	}
	info := &sendInfo{Receiver: recv, Positional: positional, Keywords: keywords}
	c.ann.sends[node] = info

	if bt, ok := recv.(*BlockType); ok && node.Message == "call" {
		info.RunBlock = true
		info.Method = bt
		c.checkArguments(sc, node, bt, NewTypeContext(sc.self), argTypes, kwTypes)
		return bt.ReturnType()
	}
	mt, ok := LookupMethod(recv, node.Message)
	if !ok {
		c.errorf(UndefinedSymbol, node, "undefined method %q for %s", node.Message, recv)
		return TypeError
	}
	sig, ok := mt.(*BlockType)
	if !ok {
		return TypeDynamic
	}
	info.Method = sig
	ctx := NewTypeContext(recv)
	if len(node.TypeArguments) > 0 {
		if len(node.TypeArguments) != len(sig.TypeParameters) {
			c.errorf(TypeMismatch, node, "%s expects %d type arguments, got %d",
				node.Message, len(sig.TypeParameters), len(node.TypeArguments))
		} else {
			args := make([]Type, len(node.TypeArguments))
			for i, ta := range node.TypeArguments {
				args[i] = c.resolveType(sc, ta)
				ctx.Bind(sig.TypeParameters[i], args[i])
			}
			c.ann.instances = append(c.ann.instances, instanceUse{
				params: sig.TypeParameters, args: args, name: node.Message,
				loc: node.Loc(), self: recv,
			})
		}
	}
	c.checkArguments(sc, node, sig, ctx, argTypes, kwTypes)
	ret := ResolveSelf(sig.ReturnType(), recv)
	return Substitute(ret, ctx.Substitutions())
}

func (c *checker) checkArguments(sc *scope, node *ast.Send, sig *BlockType,
	ctx *TypeContext, argTypes, kwTypes []Type) {

	info := c.ann.sends[node]
	n := len(argTypes) + len(kwTypes)
	req := sig.RequiredArguments()
	limit := len(sig.Arguments)
	if sig.Rest() {
		limit = -1
	}
	if n < req || (limit >= 0 && n > limit) {
		c.errorf(ArgumentCountMismatch, node, "%s expects %s arguments, got %d",
			node.Message, arityString(req, limit), n)
		return
	}
	expected := func(i int) Type {
		a := sig.Arguments[i]
		if a.Rest {
			if inst, ok := a.Type.(*ObjectType); ok && len(inst.TypeArguments) == 1 {
				return inst.TypeArguments[0]
			}
			return TypeDynamic
		}
		return a.Type
	}
	for i, at := range argTypes {
		idx := i
		if idx >= len(sig.Arguments) {
			idx = len(sig.Arguments) - 1
		}
		want := ResolveSelf(expected(idx), ctx.Self)
		if !Compatible(at, want, ctx) {
			c.errorf(TypeMismatch, info.Positional[i],
				"argument %d of %s: expected %s, got %s", i+1, node.Message, want, at)
		}
	}
	for i, kw := range info.Keywords {
		idx := sig.ArgumentIndex(kw.Name)
		if idx < 0 {
			c.errorf(UnknownKeywordArgument, kw, "%s has no argument named %q",
				node.Message, kw.Name)
			continue
		}
		want := ResolveSelf(expected(idx), ctx.Self)
		if !Compatible(kwTypes[i], want, ctx) {
			c.errorf(TypeMismatch, kw, "argument %q of %s: expected %s, got %s",
				kw.Name, node.Message, want, kwTypes[i])
		}
	}
}

func arityString(req, limit int) string {
	switch {
	case limit < 0:
		return fmt.Sprintf("at least %d", req)
	case req == limit:
		return fmt.Sprint(req)
	}
	return fmt.Sprintf("%d to %d", req, limit)
}

func (c *checker) checkRawSend(sc *scope, node *ast.Send) Type {
	raw, ok := rawInstructions[node.Message]
	if !ok {
		c.errorf(UndefinedSymbol, node, "unknown VM instruction %q", node.Message)
		return TypeError
	}
	info := &sendInfo{Receiver: TypeDynamic, Raw: raw.op, IsRaw: true}
	for _, a := range node.Arguments {
		if _, isKw := a.(*ast.KeywordArgument); isKw {
			c.errorf(UnknownKeywordArgument, a, "VM instructions take positional arguments only")
			continue
		}
		info.Positional = append(info.Positional, a)
		c.check(sc, a)
	}
	c.ann.sends[node] = info
	if len(info.Positional) != raw.arity {
		c.errorf(ArgumentCountMismatch, node, "%s expects %d arguments, got %d",
			node.Message, raw.arity, len(info.Positional))
	}
	if raw.returns == "" {
		return TypeDynamic
	}
	return c.builtin(raw.returns)
}
