// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"fmt"
	"strings"

	"github.com/ozanh/aeonc/ast"
	"github.com/ozanh/aeonc/bytecode"
	"github.com/ozanh/aeonc/tir"
)

var builtinPrototypes = map[string]bytecode.Opcode{
	ObjectName:  bytecode.OpGetObjectPrototype,
	IntegerName: bytecode.OpGetIntegerPrototype,
	FloatName:   bytecode.OpGetFloatPrototype,
	StringName:  bytecode.OpGetStringPrototype,
	ArrayName:   bytecode.OpGetArrayPrototype,
	HashMapName: bytecode.OpGetHashMapPrototype,
	BlockName:   bytecode.OpGetBlockPrototype,
	BooleanName: bytecode.OpGetBooleanPrototype,
	NilName:     bytecode.OpGetNilPrototype,
}

// codeGen lowers the expressions of one code object.
type codeGen struct {
	s     *State
	m     *Module
	ann   *annotations
	code  *tir.CodeObject
	block *tir.BasicBlock
	depth int
	// self is set while lowering the body of an object definition, where
	// self refers to the object being defined.
	self  *tir.VirtualRegister
	tries int
}

// generateTIR lowers the annotated syntax tree of m into code objects.
// Modules with error diagnostics are not lowered.
func generateTIR(s *State, m *Module) error {
	if s.Diagnostics.ModuleHas(m.Name, SeverityError) {
		return nil
	}
	table := m.ann.scopes[m.AST]
	if table == nil {
		return ErrInternal.NewError("module scope of", m.Name, "not found")
	}
	code := tir.NewCodeObject(m.Name, m.AST.Loc())
	g := &codeGen{s: s, m: m, ann: m.ann, code: code, depth: table.Depth()}
	g.block = code.Entry()

	for _, imp := range m.ann.imports {
		r := g.reg(nil)
		g.emit(tir.LoadModule(r, imp.module, imp.loc))
		if imp.attr != "" {
			attr := g.reg(nil)
			g.emit(tir.GetAttribute(attr, r, imp.attr, imp.loc))
			r = attr
		}
		g.emit(tir.SetGlobal(imp.symbol.Index, r, imp.loc))
	}
	for _, expr := range moduleBody(m) {
		g.toplevel(expr)
	}
	g.emit(tir.Return(g.selfReg(m.AST.Loc()), m.AST.Loc()))
	code.Locals = table.MaxSymbols()
	m.Body = code

	if s.trace != nil && s.Options.TraceCompiler {
		s.printTrace("TIR", m.Name)
		var sb strings.Builder
		code.Fprint(&sb)
		for _, line := range strings.Split(strings.TrimRight(sb.String(), "\n"), "\n") {
			s.printTrace(line)
		}
	}
	return nil
}

func (g *codeGen) reg(t Type) *tir.VirtualRegister {
	return g.code.Registers.Allocate(t)
}

func (g *codeGen) emit(inst *tir.Instruction) {
	g.block.Append(inst)
	if inst.Terminator() {
		g.block = g.code.AddBlock()
	}
}

// split ends the current block and continues in a new one.
func (g *codeGen) split() *tir.BasicBlock {
	if len(g.block.Instructions) > 0 {
		g.block = g.code.AddBlock()
	}
	return g.block
}

func (g *codeGen) selfReg(loc ast.Location) *tir.VirtualRegister {
	if g.self != nil {
		return g.self
	}
	r := g.reg(nil)
	g.emit(tir.GetLocal(r, 0, loc))
	return r
}

func (g *codeGen) nilReg(loc ast.Location) *tir.VirtualRegister {
	r := g.reg(TypeNil)
	g.emit(tir.Get(bytecode.OpGetNil, r, loc))
	return r
}

func (g *codeGen) load(sym *Symbol, loc ast.Location) *tir.VirtualRegister {
	r := g.reg(sym.Type)
	target := sym.Target()
	switch {
	case target.Scope == ScopeGlobal:
		g.emit(tir.GetGlobal(r, target.Index, loc))
	case target.Depth == g.depth:
		g.emit(tir.GetLocal(r, target.Index, loc))
	default:
		g.emit(tir.GetParentLocal(r, g.depth-target.Depth, target.Index, loc))
	}
	return r
}

func (g *codeGen) store(sym *Symbol, v *tir.VirtualRegister, loc ast.Location) {
	target := sym.Target()
	switch {
	case target.Scope == ScopeGlobal:
		g.emit(tir.SetGlobal(target.Index, v, loc))
	case target.Depth == g.depth:
		g.emit(tir.SetLocal(target.Index, v, loc))
	default:
		g.emit(tir.SetParentLocal(g.depth-target.Depth, target.Index, v, loc))
	}
}

// loadConstant loads the object or trait name defined by module.
func (g *codeGen) loadConstant(module, name string, loc ast.Location) *tir.VirtualRegister {
	if module == g.m.Name {
		if sym, ok := g.m.Globals.ResolveLocal(name); ok {
			return g.load(sym, loc)
		}
	}
	if sym, ok := g.ann.typeSymbols[name]; ok {
		if t, isObj := sym.Type.(*ObjectType); isObj && t.Module == module {
			return g.load(sym, loc)
		}
		if t, isTrait := sym.Type.(*TraitType); isTrait && t.Module == module {
			return g.load(sym, loc)
		}
	}
	mod := g.reg(nil)
	g.emit(tir.LoadModule(mod, module, loc))
	r := g.reg(nil)
	g.emit(tir.GetAttribute(r, mod, name, loc))
	return r
}

func (g *codeGen) toplevel(expr ast.Expr) {
	loc := expr.Loc()
	switch node := expr.(type) {
	case *ast.Object, *ast.Trait:
		var body *ast.Body
		name := ""
		switch n := node.(type) {
		case *ast.Object:
			body, name = n.Body, n.Name
		case *ast.Trait:
			body, name = n.Body, n.Name
		}
		proto := g.reg(nil)
		g.emit(tir.Get(bytecode.OpGetObjectPrototype, proto, loc))
		obj := g.reg(g.ann.defs[node])
		g.emit(tir.SetObject(obj, proto, loc))
		if sym, ok := g.ann.symbols[node]; ok {
			g.store(sym, obj, loc)
		}
		g.emit(tir.SetAttribute(g.reg(nil), g.selfReg(loc), name, obj, loc))
		g.objectBody(obj, body)
	case *ast.TraitImplementation:
		obj := g.objectRef(node.Object, loc)
		g.objectBody(obj, node.Body)
		for _, d := range g.ann.defaults[node] {
			tr := g.loadConstant(d.provider.Module, d.provider.Name, loc)
			fn := g.reg(nil)
			g.emit(tir.GetAttribute(fn, tr, d.name, loc))
			g.emit(tir.SetAttribute(g.reg(nil), obj, d.name, fn, loc))
		}
	case *ast.ReopenObject:
		obj := g.objectRef(node.Name, loc)
		g.objectBody(obj, node.Body)
	default:
		g.expr(expr, false)
	}
}

func (g *codeGen) objectRef(name string, loc ast.Location) *tir.VirtualRegister {
	if sym, ok := g.ann.typeSymbols[name]; ok {
		return g.load(sym, loc)
	}
	if t, ok := g.ann.typeNames[name].(*ObjectType); ok {
		return g.loadConstant(t.Module, t.Name, loc)
	}
	panic(fmt.Sprintf("object %s not bound in %s", name, g.m.Name))
}

func (g *codeGen) objectBody(obj *tir.VirtualRegister, body *ast.Body) {
	saved := g.self
	g.self = obj
	defer func() { g.self = saved }()
	for _, e := range bodyExprs(body) {
		if meth, ok := e.(*ast.Method); ok && meth.Required() {
			continue
		}
		g.expr(e, false)
	}
}

// method lowers a method definition into a child code object stored in an
// attribute of self.
func (g *codeGen) method(node *ast.Method) *tir.VirtualRegister {
	sig := g.ann.methods[node]
	child := g.child(node, node.Name, sig, node.Arguments, node.Body)
	child.Method = true
	r := g.reg(sig)
	g.emit(tir.SetBlock(r, child, node.Loc()))
	g.emit(tir.SetAttribute(g.reg(nil), g.selfReg(node.Loc()), node.Name, r, node.Loc()))
	return r
}

func (g *codeGen) child(node ast.Node, name string, sig *BlockType,
	args []*ast.Argument, body *ast.Body) *tir.CodeObject {

	table := g.ann.scopes[node]
	code := tir.NewCodeObject(name, node.Loc())
	g.code.AddChild(code)
	cg := &codeGen{s: g.s, m: g.m, ann: g.ann, code: code, depth: table.Depth()}
	cg.block = code.Entry()
	for i, a := range args {
		code.Arguments = append(code.Arguments, a.Name)
		if a.Rest {
			code.Rest = true
			continue
		}
		if a.Default == nil {
			code.Required++
			continue
		}
		// LocalExists jumps to the default block when the caller did not
		// pass the argument.
		exists := cg.reg(nil)
		cg.emit(tir.LocalExists(exists, i+1, a.Loc()))
		branch := tir.GotoNextBlockIfTrue(exists, nil, a.Loc())
		cg.emit(branch)
		cg.split()
		skip := tir.Goto(nil, a.Loc())
		cg.emit(skip)
		branch.Target = cg.block
		v := cg.expr(a.Default, false)
		cg.emit(tir.SetLocal(i+1, v, a.Loc()))
		skip.Target = cg.split()
	}
	cg.body(body, sig, true)
	code.Locals = table.MaxSymbols()
	return code
}

// body lowers the expressions of a code object and returns the value of
// the last one.
func (g *codeGen) body(body *ast.Body, sig *BlockType, tail bool) {
	exprs := bodyExprs(body)
	var last *tir.VirtualRegister
	for i, e := range exprs {
		last = g.expr(e, tail && i == len(exprs)-1)
	}
	if last == nil {
		last = g.nilReg(g.code.Location)
	}
	g.emit(tir.Return(last, g.code.Location))
}

func (g *codeGen) exprs(body *ast.Body) *tir.VirtualRegister {
	var last *tir.VirtualRegister
	for _, e := range bodyExprs(body) {
		last = g.expr(e, false)
	}
	if last == nil {
		return g.nilReg(body.Loc())
	}
	return last
}

// expr lowers expr and returns the register holding its value. tail marks
// sends whose result is returned directly.
func (g *codeGen) expr(expr ast.Expr, tail bool) *tir.VirtualRegister {
	loc := expr.Loc()
	typ := g.ann.types[expr]
	switch node := expr.(type) {
	case *ast.IntegerLiteral:
		r := g.reg(typ)
		g.emit(tir.SetLiteral(r, bytecode.Integer(node.Value), loc))
		return r
	case *ast.FloatLiteral:
		r := g.reg(typ)
		g.emit(tir.SetLiteral(r, bytecode.Float(node.Value), loc))
		return r
	case *ast.StringLiteral:
		r := g.reg(typ)
		g.emit(tir.SetLiteral(r, bytecode.String(node.Value), loc))
		return r
	case *ast.BoolLiteral:
		r := g.reg(typ)
		op := bytecode.OpGetFalse
		if node.Value {
			op = bytecode.OpGetTrue
		}
		g.emit(tir.Get(op, r, loc))
		return r
	case *ast.NilLiteral:
		return g.nilReg(loc)
	case *ast.ArrayLiteral:
		values := make([]*tir.VirtualRegister, len(node.Values))
		for i, v := range node.Values {
			values[i] = g.expr(v, false)
		}
		r := g.reg(typ)
		g.emit(tir.SetArray(r, values, loc))
		return r
	case *ast.HashMapLiteral:
		pairs := make([]*tir.VirtualRegister, 0, 2*len(node.Keys))
		for i := range node.Keys {
			pairs = append(pairs, g.expr(node.Keys[i], false), g.expr(node.Values[i], false))
		}
		r := g.reg(typ)
		g.emit(tir.SetHashMap(r, pairs, loc))
		return r
	case *ast.Self:
		return g.selfReg(loc)
	case *ast.Identifier:
		if sym, ok := g.ann.symbols[node]; ok {
			return g.load(sym, loc)
		}
		return g.send(node, node.Name, g.ann.sends[node], nil, tail)
	case *ast.Attribute:
		r := g.reg(typ)
		g.emit(tir.GetAttribute(r, g.selfReg(loc), node.Name, loc))
		return r
	case *ast.Constant:
		if node.Receiver != nil {
			recv := g.expr(node.Receiver, false)
			r := g.reg(typ)
			g.emit(tir.GetAttribute(r, recv, node.Name, loc))
			return r
		}
		if sym, ok := g.ann.symbols[node]; ok {
			return g.load(sym, loc)
		}
		if op, ok := builtinPrototypes[node.Name]; ok {
			r := g.reg(typ)
			g.emit(tir.Get(op, r, loc))
			return r
		}
		panic(fmt.Sprintf("constant %s not bound in %s", node.Name, g.m.Name))
	case *ast.Global:
		return g.load(g.ann.symbols[node], loc)
	case *ast.DefineVariable:
		v := g.expr(node.Value, false)
		if isAttributeName(node.Name) {
			r := g.reg(typ)
			g.emit(tir.SetAttribute(r, g.selfReg(loc), strings.TrimPrefix(node.Name, "@"), v, loc))
			return r
		}
		g.store(g.ann.symbols[node], v, loc)
		return v
	case *ast.ReassignVariable:
		v := g.expr(node.Value, false)
		if isAttributeName(node.Name) {
			r := g.reg(typ)
			g.emit(tir.SetAttribute(r, g.selfReg(loc), strings.TrimPrefix(node.Name, "@"), v, loc))
			return r
		}
		g.store(g.ann.symbols[node], v, loc)
		return v
	case *ast.Send:
		return g.send(node, node.Message, g.ann.sends[node], node.Receiver, tail)
	case *ast.KeywordArgument:
		return g.expr(node.Value, tail)
	case *ast.Return:
		var v *tir.VirtualRegister
		if node.Value != nil {
			v = g.expr(node.Value, g.tries == 0)
		} else {
			v = g.nilReg(loc)
		}
		g.emit(tir.Return(v, loc))
		return v
	case *ast.Throw:
		v := g.expr(node.Value, false)
		g.emit(tir.Throw(v, loc))
		return v
	case *ast.Try:
		return g.try(node, typ)
	case *ast.If:
		return g.ifExpr(node, typ)
	case *ast.While:
		header := g.split()
		cond := g.expr(node.Condition, false)
		branch := tir.GotoNextBlockIfTrue(cond, nil, loc)
		g.emit(branch)
		g.split()
		g.exprs(node.Body)
		g.emit(tir.Goto(header, loc))
		branch.Target = g.split()
		return g.nilReg(loc)
	case *ast.TypeCast:
		return g.expr(node.Expr, tail)
	case *ast.Block:
		sig := g.ann.blocks[node]
		child := g.child(node, "block", sig, node.Arguments, node.Body)
		r := g.reg(sig)
		g.emit(tir.SetBlock(r, child, loc))
		return r
	case *ast.Method:
		return g.method(node)
	default:
		panic(fmt.Sprintf("cannot lower %T", expr))
	}
}

func (g *codeGen) send(node ast.Expr, message string, info *sendInfo,
	receiver ast.Expr, tail bool) *tir.VirtualRegister {

	loc := node.Loc()
	typ := g.ann.types[node]
	if info == nil {
		info = &sendInfo{}
		if send, ok := node.(*ast.Send); ok {
			info.Positional = send.Arguments
		}
	}
	if info.IsRaw {
		args := make([]*tir.VirtualRegister, len(info.Positional))
		for i, a := range info.Positional {
			args[i] = g.expr(a, false)
		}
		r := g.reg(typ)
		g.emit(tir.Primitive(info.Raw, r, loc, args...))
		return r
	}
	var recv *tir.VirtualRegister
	if receiver != nil {
		recv = g.expr(receiver, false)
	} else {
		recv = g.selfReg(loc)
	}
	args := make([]*tir.VirtualRegister, len(info.Positional))
	for i, a := range info.Positional {
		args[i] = g.expr(a, false)
	}
	var kws []tir.Keyword
	for _, kw := range info.Keywords {
		kws = append(kws, tir.Keyword{Name: kw.Name, Register: g.expr(kw.Value, false)})
	}
	r := g.reg(typ)
	if info.RunBlock && len(kws) == 0 {
		g.emit(tir.RunBlock(r, recv, args, loc))
		return r
	}
	inst := tir.SendObjectMessage(r, recv, message, args, kws, loc)
	inst.Tail = tail && g.tries == 0
	g.emit(inst)
	return r
}

func (g *codeGen) ifExpr(node *ast.If, typ Type) *tir.VirtualRegister {
	loc := node.Loc()
	result := g.reg(typ)
	cond := g.expr(node.Condition, false)
	branch := tir.GotoNextBlockIfTrue(cond, nil, loc)
	g.emit(branch)
	g.split()
	g.emit(tir.SetRegister(result, g.exprs(node.Then), loc))
	jump := tir.Goto(nil, loc)
	g.emit(jump)
	branch.Target = g.split()
	if node.Else != nil {
		g.emit(tir.SetRegister(result, g.exprs(node.Else), loc))
	} else {
		g.emit(tir.SetRegister(result, g.nilReg(loc), loc))
	}
	jump.Target = g.split()
	return result
}

// try lowers the guarded expression into its own range of blocks. Catch
// entries of nested try expressions are added first, keeping the catch
// table ordered innermost first.
func (g *codeGen) try(node *ast.Try, typ Type) *tir.VirtualRegister {
	loc := node.Loc()
	if node.Else == nil {
		return g.expr(node.Expr, false)
	}
	result := g.reg(typ)
	start := g.split()
	g.tries++
	v := g.expr(node.Expr, false)
	g.tries--
	g.emit(tir.SetRegister(result, v, loc))
	end := g.block
	jump := tir.Goto(nil, loc)
	g.emit(jump)

	handler := g.split()
	thrown := g.reg(g.ann.throwTypes[node])
	if sym, ok := g.ann.symbols[node]; ok {
		g.store(sym, thrown, loc)
	}
	g.emit(tir.SetRegister(result, g.exprs(node.Else), loc))
	jump.Target = g.split()
	g.code.AddCatchEntry(&tir.CatchEntry{
		Start:    start,
		End:      end,
		Handler:  handler,
		Register: thrown,
	})
	return result
}
