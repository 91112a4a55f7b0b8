// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"strings"

	"github.com/ozanh/aeonc/ast"
)

func validateConstraints(s *State, m *Module) error {
	ann := m.ann
	for _, use := range ann.instances {
		for _, v := range CheckConstraints(use.params, use.args, NewTypeContext(use.self)) {
			s.Diagnostics.Errorf(ConstraintViolation, m.Name, use.loc,
				"%s does not satisfy the bound %s of %s in %s",
				v.Argument, v.Bound, v.Parameter, use.name)
		}
	}

	var (
		objects []*ObjectType
		sites   = map[*ObjectType]ast.Node{}
	)
	for _, expr := range moduleBody(m) {
		node, ok := expr.(*ast.TraitImplementation)
		if !ok {
			continue
		}
		obj, _ := ann.defs[node].(*ObjectType)
		tr := ann.traits[node]
		if obj == nil || tr == nil {
			continue
		}
		if _, seen := sites[obj]; !seen {
			sites[obj] = node
			objects = append(objects, obj)
		}
		validateImplementation(s, m, node, obj, tr)
	}
	for _, obj := range objects {
		validateDefaults(s, m, sites[obj], obj)
	}
	return nil
}

// traitClosure returns the definitions of tr and every trait it requires,
// transitively.
func traitClosure(tr *TraitType) []*TraitType {
	var out []*TraitType
	seen := map[*TraitType]bool{}
	var walk func(t *TraitType)
	walk = func(t *TraitType) {
		def := t.Definition()
		if seen[def] {
			return
		}
		seen[def] = true
		out = append(out, def)
		for _, r := range def.Requires {
			walk(r)
		}
	}
	walk(tr)
	return out
}

func ownMethod(obj *ObjectType, name string) (Type, bool) {
	for p := obj.Definition(); p != nil; p = p.Prototype {
		if t, ok := p.Methods.Get(name); ok {
			return t, true
		}
	}
	return nil, false
}

func validateImplementation(s *State, m *Module, node *ast.TraitImplementation,
	obj *ObjectType, tr *TraitType) {

	for _, r := range tr.Definition().Requires {
		if !obj.Implements(r) {
			s.Diagnostics.Errorf(MissingTraitMethod, m.Name, node.Loc(),
				"%s implements %s but not the required trait %s", obj, tr, r)
		}
	}
	ctx := NewTypeContext(obj)
	requiredMethods(tr, func(name string, sig Type) {
		have, ok := ownMethod(obj, name)
		if !ok {
			provider, ambiguous := DefaultMethodProvider(obj, name)
			if provider == nil && len(ambiguous) == 0 {
				s.Diagnostics.Errorf(MissingTraitMethod, m.Name, node.Loc(),
					"%s does not implement the method %s required by %s", obj, name, tr)
			}
			return
		}
		want := ResolveSelf(sig, obj)
		if !Compatible(ResolveSelf(have, obj), want, ctx.Fork()) {
			s.Diagnostics.Errorf(TypeMismatch, m.Name, node.Loc(),
				"method %s of %s is %s, but %s requires %s", name, obj, have, tr, want)
		}
	})

	closure := traitClosure(tr)
	inClosure := func(t *TraitType) bool {
		for _, c := range closure {
			if c == t.Definition() {
				return true
			}
		}
		return false
	}
	seen := map[string]bool{}
	for _, t := range closure {
		for _, name := range t.DefaultMethods.Names() {
			if seen[name] {
				continue
			}
			seen[name] = true
			provider, _ := DefaultMethodProvider(obj, name)
			if provider != nil && inClosure(provider) {
				m.ann.defaults[node] = append(m.ann.defaults[node], defaultCopy{
					name:     name,
					provider: provider.Definition(),
				})
			}
		}
	}
}

func validateDefaults(s *State, m *Module, site ast.Node, obj *ObjectType) {
	seen := map[string]bool{}
	for _, tr := range obj.Implementations() {
		for _, t := range traitClosure(tr) {
			for _, name := range t.DefaultMethods.Names() {
				if seen[name] {
					continue
				}
				seen[name] = true
				_, ambiguous := DefaultMethodProvider(obj, name)
				if len(ambiguous) == 0 {
					continue
				}
				names := make([]string, len(ambiguous))
				for i, a := range ambiguous {
					names[i] = a.String()
				}
				s.Diagnostics.Errorf(AmbiguousDefaultMethod, m.Name, site.Loc(),
					"%s inherits conflicting default implementations of %s from %s",
					obj, name, strings.Join(names, ", "))
			}
		}
	}
}

// throwContext is the state of the throw validation within one code object.
type throwContext struct {
	name   string
	throws Type
	self   Type
	thrown bool
	tries  []*ast.Try
}

// caught reports whether a throw at the current position is handled in
// the same code object.
func (tc *throwContext) caught() bool {
	for _, t := range tc.tries {
		if t.Else != nil {
			return true
		}
	}
	return false
}

type throwChecker struct {
	s *State
	m *Module
}

func validateThrow(s *State, m *Module) error {
	tc := &throwChecker{s: s, m: m}
	tc.code(&throwContext{name: m.Name, self: m.Type}, m.AST.Body, nil)
	return nil
}

func (c *throwChecker) code(ctx *throwContext, body *ast.Body, loc ast.Node) {
	if body == nil {
		return
	}
	for _, e := range body.Exprs {
		c.visit(ctx, e)
	}
	if ctx.throws != nil && !ctx.thrown && loc != nil {
		c.s.Diagnostics.Warnf(ThrowSignatureMismatch, c.m.Name, loc.Loc(),
			"%s declares that it throws %s but never throws", ctx.name, ctx.throws)
	}
}

func (c *throwChecker) visit(ctx *throwContext, node ast.Node) {
	ast.Inspect(node, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.Method:
			sig := c.m.ann.methods[n]
			if sig == nil || n.Body == nil {
				return false
			}
			for _, a := range n.Arguments {
				if a.Default != nil {
					c.visit(ctx, a.Default)
				}
			}
			c.code(&throwContext{name: n.Name, throws: sig.Throws, self: ctx.self}, n.Body, n)
			return false
		case *ast.Block:
			sig := c.m.ann.blocks[n]
			if sig == nil {
				return false
			}
			c.code(&throwContext{name: "block", throws: sig.Throws, self: ctx.self}, n.Body, n)
			return false
		case *ast.Object, *ast.TraitImplementation, *ast.ReopenObject, *ast.Trait:
			if t, ok := c.m.ann.defs[n]; ok {
				inner := *ctx
				inner.self = t
				inner.tries = nil
				ast.Inspect(n, func(child ast.Node) bool {
					if child == n {
						return true
					}
					c.visit(&inner, child)
					return false
				})
				ctx.thrown = ctx.thrown || inner.thrown
			}
			return false
		case *ast.Try:
			ctx.tries = append(ctx.tries, n)
			c.visit(ctx, n.Expr)
			ctx.tries = ctx.tries[:len(ctx.tries)-1]
			if n.Else != nil {
				for _, e := range n.Else.Exprs {
					c.visit(ctx, e)
				}
			}
			return false
		case *ast.Throw:
			t, _ := c.m.TypeOf(n.Value)
			c.throw(ctx, n, t)
			return true
		case *ast.Send:
			info := c.m.ann.sends[n]
			if info == nil || info.Method == nil || info.Method.Throws == nil {
				return true
			}
			thrown := ResolveSelf(info.Method.Throws, info.Receiver)
			if len(ctx.tries) == 0 {
				c.s.Diagnostics.Errorf(ThrowSignatureMismatch, c.m.Name, n.Loc(),
					"%s may throw %s and must be called with try", n.Message, thrown)
				return true
			}
			c.throw(ctx, n, thrown)
			return true
		}
		return true
	})
}

// throw checks a value of type t leaving the current position.
func (c *throwChecker) throw(ctx *throwContext, node ast.Node, t Type) {
	if ctx.caught() {
		return
	}
	if t == nil {
		t = TypeDynamic
	}
	if ctx.throws == nil {
		c.s.Diagnostics.Errorf(ThrowSignatureMismatch, c.m.Name, node.Loc(),
			"%s throws %s but does not declare a throw type", ctx.name, t)
		return
	}
	ctx.thrown = true
	if !Compatible(t, ctx.throws, NewTypeContext(ctx.self)) {
		c.s.Diagnostics.Errorf(ThrowSignatureMismatch, c.m.Name, node.Loc(),
			"%s throws %s, expected %s", ctx.name, t, ctx.throws)
	}
}

// optimizeKeywordArguments rewrites keyword arguments of statically
// resolved sends to positional ones when together with the positional
// arguments they fill the leading argument slots without a gap. Keywords
// written out of slot order are only rewritten if their values have no
// side effects, so the evaluation order stays as written.
func optimizeKeywordArguments(s *State, m *Module) error {
	for _, info := range m.ann.sends {
		if info.Method == nil || len(info.Keywords) == 0 || info.Method.Rest() {
			continue
		}
		slots := make([]ast.Expr, len(info.Method.Arguments))
		filled := len(info.Positional)
		if filled > len(slots) {
			continue
		}
		copy(slots, info.Positional)
		valid, ordered, last := true, true, -1
		for _, kw := range info.Keywords {
			idx := info.Method.ArgumentIndex(kw.Name)
			if idx < 0 || slots[idx] != nil {
				valid = false
				break
			}
			slots[idx] = kw.Value
			ordered = ordered && idx > last
			last = idx
		}
		if !valid || (!ordered && !keywordsPure(info.Keywords)) {
			continue
		}
		n := len(info.Positional) + len(info.Keywords)
		gapFree := true
		for i := 0; i < n; i++ {
			if slots[i] == nil {
				gapFree = false
				break
			}
		}
		if !gapFree {
			continue
		}
		info.Positional = slots[:n]
		info.Keywords = nil
	}
	return nil
}

// keywordsPure reports whether evaluating the keyword values cannot have
// side effects.
func keywordsPure(kws []*ast.KeywordArgument) bool {
	for _, kw := range kws {
		switch kw.Value.(type) {
		case *ast.Identifier, *ast.Attribute, *ast.Constant, *ast.Global,
			*ast.Self, *ast.IntegerLiteral, *ast.FloatLiteral,
			*ast.StringLiteral, *ast.BoolLiteral, *ast.NilLiteral, *ast.Block:
		default:
			return false
		}
	}
	return true
}
