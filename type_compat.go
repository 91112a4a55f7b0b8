// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

// TypeContext is a scoped constraint context. It binds Self and records
// type parameter substitutions made while unifying generics. Forked
// contexts see the bindings of their parents; bindings made in a fork do
// not leak into the parent.
type TypeContext struct {
	Self   Type
	parent *TypeContext
	subst  map[*TypeParameter]Type
}

// NewTypeContext returns a root context with self bound to the enclosing
// definition, which may be nil.
func NewTypeContext(self Type) *TypeContext {
	return &TypeContext{Self: self}
}

// Fork returns a child context.
func (c *TypeContext) Fork() *TypeContext {
	return &TypeContext{Self: c.Self, parent: c}
}

// Lookup returns the substitution recorded for p.
func (c *TypeContext) Lookup(p *TypeParameter) (Type, bool) {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if t, ok := ctx.subst[p]; ok {
			return t, true
		}
	}
	return nil, false
}

// Bind records a substitution for p in this context.
func (c *TypeContext) Bind(p *TypeParameter, t Type) {
	if c.subst == nil {
		c.subst = make(map[*TypeParameter]Type)
	}
	c.subst[p] = t
}

// Substitutions returns all visible substitutions.
func (c *TypeContext) Substitutions() map[*TypeParameter]Type {
	out := make(map[*TypeParameter]Type)
	var chain []*TypeContext
	for ctx := c; ctx != nil; ctx = ctx.parent {
		chain = append(chain, ctx)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for p, t := range chain[i].subst {
			out[p] = t
		}
	}
	return out
}

// ResolveSelf replaces unbound SelfType occurrences in t with the context's
// Self. Types that cannot be resolved are returned unchanged.
func (c *TypeContext) ResolveSelf(t Type) Type {
	var self Type
	if c != nil {
		self = c.Self
	}
	return resolveSelf(t, self)
}

// ResolveSelf replaces unbound SelfType occurrences in t with self.
func ResolveSelf(t Type, self Type) Type {
	return resolveSelf(t, self)
}

func resolveSelf(t Type, self Type) Type {
	if t == nil {
		return nil
	}
	switch t := t.(type) {
	case *SelfType:
		if t.Bound != nil {
			return t.Bound
		}
		if self == nil {
			return t
		}
		if _, ok := self.(*SelfType); ok {
			return t
		}
		return self
	case *OptionalType:
		return &OptionalType{Type: resolveSelf(t.Type, self)}
	case *BlockType:
		out := *t
		out.Arguments = make([]*ArgumentType, len(t.Arguments))
		for i, a := range t.Arguments {
			ca := *a
			ca.Type = resolveSelf(a.Type, self)
			out.Arguments[i] = &ca
		}
		out.Returns = resolveSelf(t.Returns, self)
		out.Throws = resolveSelf(t.Throws, self)
		return &out
	case *ObjectType:
		if len(t.TypeArguments) == 0 {
			return t
		}
		return t.Definition().Instantiate(resolveSelfAll(t.TypeArguments, self))
	case *TraitType:
		if len(t.TypeArguments) == 0 {
			return t
		}
		return t.Definition().Instantiate(resolveSelfAll(t.TypeArguments, self))
	case *TypeParameter, *NilType, *VoidType, *DynamicType, *ErrorType:
		return t
	default:
		panic(unknownVariant(t))
	}
}

func resolveSelfAll(ts []Type, self Type) []Type {
	out := make([]Type, len(ts))
	for i, t := range ts {
		out[i] = resolveSelf(t, self)
	}
	return out
}

func isUnresolvedSelf(t Type) bool {
	s, ok := t.(*SelfType)
	return ok && s.Bound == nil
}

// Compatible reports whether a value of type actual may be used where
// expected is expected. Self types are resolved against ctx first; an
// unresolved Self on either side is never compatible. Type parameters of
// expected are unified with actual and recorded in ctx. A nil ctx is
// treated as an empty root context.
func Compatible(actual, expected Type, ctx *TypeContext) bool {
	if ctx == nil {
		ctx = NewTypeContext(nil)
	}
	actual = ctx.ResolveSelf(actual)
	expected = ctx.ResolveSelf(expected)

	if isOptOut(actual) || isOptOut(expected) {
		return true
	}
	if _, ok := expected.(*VoidType); ok {
		return true
	}
	if isUnresolvedSelf(actual) || isUnresolvedSelf(expected) {
		return false
	}
	if a, ok := actual.(*TypeParameter); ok {
		if sub, ok := ctx.Lookup(a); ok && sub != a {
			return Compatible(sub, expected, ctx)
		}
	}
	if a, ok := actual.(*OptionalType); ok {
		if _, isOpt := expected.(*OptionalType); !isOpt {
			return Compatible(a.Type, expected, ctx)
		}
	}

	switch e := expected.(type) {
	case *OptionalType:
		switch a := actual.(type) {
		case *NilType:
			return true
		case *OptionalType:
			return Compatible(a.Type, e.Type, ctx)
		default:
			return Compatible(actual, e.Type, ctx)
		}
	case *TypeParameter:
		if a, ok := actual.(*TypeParameter); ok && a == e {
			return true
		}
		if sub, ok := ctx.Lookup(e); ok {
			return Compatible(actual, sub, ctx)
		}
		for _, bound := range e.Bounds {
			if !Compatible(actual, bound, ctx.Fork()) {
				return false
			}
		}
		ctx.Bind(e, actual)
		return true
	case *TraitType:
		return compatibleWithTrait(actual, e, ctx)
	case *ObjectType:
		return compatibleWithObject(actual, e, ctx)
	case *BlockType:
		a, ok := actual.(*BlockType)
		return ok && compatibleBlocks(a, e, ctx)
	case *NilType:
		_, ok := actual.(*NilType)
		return ok
	case *SelfType:
		// bound self types were resolved above
		return false
	case *VoidType, *DynamicType, *ErrorType:
		return true
	default:
		panic(unknownVariant(expected))
	}
}

func isOptOut(t Type) bool {
	switch t.(type) {
	case *DynamicType, *ErrorType:
		return true
	}
	return false
}

func compatibleWithTrait(actual Type, e *TraitType, ctx *TypeContext) bool {
	switch a := actual.(type) {
	case *ObjectType:
		if a.Implements(e) {
			return compatibleTraitArguments(a, e, ctx)
		}
		return satisfiesStructurally(a, e, ctx)
	case *TraitType:
		if a.Definition() == e.Definition() {
			return compatibleArguments(a.TypeArguments, e.TypeArguments, ctx)
		}
		return TraitRequires(a, e)
	case *TypeParameter:
		for _, bound := range a.Bounds {
			if Compatible(bound, e, ctx.Fork()) {
				return true
			}
		}
		return false
	case *BlockType, *NilType, *VoidType, *OptionalType, *SelfType:
		return false
	case *DynamicType, *ErrorType:
		return true
	default:
		panic(unknownVariant(actual))
	}
}

// compatibleTraitArguments checks the type arguments of the implementation
// edge of a against those expected.
func compatibleTraitArguments(a *ObjectType, e *TraitType, ctx *TypeContext) bool {
	if len(e.TypeArguments) == 0 {
		return true
	}
	for p := a.Definition(); p != nil; p = p.Prototype {
		for _, have := range p.implements {
			if have.Definition() == e.Definition() {
				return compatibleArguments(have.TypeArguments, e.TypeArguments,
					NewTypeContextFork(ctx, a))
			}
		}
	}
	return true
}

// NewTypeContextFork forks ctx and binds Self to self.
func NewTypeContextFork(ctx *TypeContext, self Type) *TypeContext {
	f := ctx.Fork()
	f.Self = self
	return f
}

func compatibleWithObject(actual Type, e *ObjectType, ctx *TypeContext) bool {
	switch a := actual.(type) {
	case *ObjectType:
		for p := a; p != nil; p = p.Definition().Prototype {
			if p.Definition() == e.Definition() {
				if p == a {
					return compatibleArguments(a.TypeArguments, e.TypeArguments, ctx)
				}
				return true
			}
		}
		return false
	case *BlockType:
		return e.Definition().Name == "Block" && e.Definition().Module == ""
	case *NilType:
		return e.Definition().Name == "Nil" && e.Definition().Module == ""
	case *TypeParameter:
		for _, bound := range a.Bounds {
			if Compatible(bound, e, ctx.Fork()) {
				return true
			}
		}
		return false
	case *TraitType, *VoidType, *OptionalType, *SelfType:
		return false
	case *DynamicType, *ErrorType:
		return true
	default:
		panic(unknownVariant(actual))
	}
}

// compatibleArguments compares type arguments pairwise. A raw generic on
// either side is compatible with any instance.
func compatibleArguments(actual, expected []Type, ctx *TypeContext) bool {
	if len(actual) == 0 || len(expected) == 0 {
		return true
	}
	if len(actual) != len(expected) {
		return false
	}
	for i := range actual {
		if !Compatible(actual[i], expected[i], ctx) {
			return false
		}
	}
	return true
}

func compatibleBlocks(a, e *BlockType, ctx *TypeContext) bool {
	if len(a.Arguments) != len(e.Arguments) {
		return false
	}
	for i := range a.Arguments {
		// arguments are contravariant
		if !Compatible(e.Arguments[i].Type, a.Arguments[i].Type, ctx) {
			return false
		}
	}
	if e.Returns != nil && !Compatible(a.ReturnType(), e.Returns, ctx) {
		return false
	}
	if a.Throws != nil {
		if e.Throws == nil {
			return false
		}
		return Compatible(a.Throws, e.Throws, ctx)
	}
	return true
}

// satisfiesStructurally reports whether obj provides every method the
// trait and its required traits declare as required.
func satisfiesStructurally(obj *ObjectType, tr *TraitType, ctx *TypeContext) bool {
	ok := true
	requiredMethods(tr, func(name string, sig Type) {
		if !ok {
			return
		}
		have, found := LookupMethod(obj, name)
		if !found {
			ok = false
			return
		}
		ok = Compatible(have, ResolveSelf(sig, obj), NewTypeContextFork(ctx, obj))
	})
	return ok
}

// requiredMethods calls fn for each required method of tr and the traits
// it requires, substituted for the type arguments of tr.
func requiredMethods(tr *TraitType, fn func(name string, sig Type)) {
	seen := map[*TraitType]bool{}
	var walk func(t *TraitType)
	walk = func(t *TraitType) {
		def := t.Definition()
		if seen[def] {
			return
		}
		seen[def] = true
		sub := Bindings(def.TypeParameters, t.TypeArguments)
		def.RequiredMethods.Each(func(name string, sig Type) {
			fn(name, Substitute(sig, sub))
		})
		for _, r := range def.Requires {
			walk(r)
		}
	}
	walk(tr)
}

// LookupMethod finds the signature of the method name on t. Objects search
// their own methods, then the methods of implemented traits, then the
// prototype chain. Lookups on Dynamic, on the error type and on modules
// still in flight yield Dynamic.
func LookupMethod(t Type, name string) (Type, bool) {
	switch t := t.(type) {
	case *ObjectType:
		if t.IsPartial() {
			return TypeDynamic, true
		}
		sub := Bindings(t.Definition().TypeParameters, t.TypeArguments)
		for p := t.Definition(); p != nil; p = p.Prototype {
			if m, ok := p.Methods.Get(name); ok {
				return Substitute(m, sub), true
			}
			for _, tr := range p.implements {
				if m, ok := lookupTraitMethod(tr, name); ok {
					return Substitute(m, sub), true
				}
			}
		}
		return nil, false
	case *TraitType:
		return lookupTraitMethod(t, name)
	case *TypeParameter:
		for _, bound := range t.Bounds {
			if m, ok := LookupMethod(bound, name); ok {
				return m, true
			}
		}
		return nil, false
	case *OptionalType:
		return LookupMethod(t.Type, name)
	case *SelfType:
		if t.Bound == nil {
			return nil, false
		}
		return LookupMethod(t.Bound, name)
	case *BlockType, *NilType, *VoidType:
		return nil, false
	case *DynamicType, *ErrorType:
		return TypeDynamic, true
	default:
		panic(unknownVariant(t))
	}
}

func lookupTraitMethod(tr *TraitType, name string) (Type, bool) {
	seen := map[*TraitType]bool{}
	var walk func(t *TraitType) (Type, bool)
	walk = func(t *TraitType) (Type, bool) {
		def := t.Definition()
		if seen[def] {
			return nil, false
		}
		seen[def] = true
		sub := Bindings(def.TypeParameters, t.TypeArguments)
		if m, ok := def.RequiredMethods.Get(name); ok {
			return Substitute(m, sub), true
		}
		if m, ok := def.DefaultMethods.Get(name); ok {
			return Substitute(m, sub), true
		}
		for _, r := range def.Requires {
			if m, ok := walk(r); ok {
				return m, true
			}
		}
		return nil, false
	}
	return walk(tr)
}

// LookupAttribute finds the attribute name on t along the prototype chain.
func LookupAttribute(t Type, name string) (Type, bool) {
	switch t := t.(type) {
	case *ObjectType:
		if t.IsPartial() {
			return TypeDynamic, true
		}
		sub := Bindings(t.Definition().TypeParameters, t.TypeArguments)
		for p := t.Definition(); p != nil; p = p.Prototype {
			if a, ok := p.Attributes.Get(name); ok {
				return Substitute(a, sub), true
			}
		}
		return nil, false
	case *OptionalType:
		return LookupAttribute(t.Type, name)
	case *SelfType:
		if t.Bound == nil {
			return nil, false
		}
		return LookupAttribute(t.Bound, name)
	case *TraitType, *TypeParameter, *BlockType, *NilType, *VoidType:
		return nil, false
	case *DynamicType, *ErrorType:
		return TypeDynamic, true
	default:
		panic(unknownVariant(t))
	}
}

// Violation is a type argument that does not satisfy a bound of its
// parameter.
type Violation struct {
	Parameter *TypeParameter
	Bound     Type
	Argument  Type
}

// CheckConstraints verifies that each argument satisfies all bounds of the
// parameter at the same position. Bounds may refer to other parameters of
// the same list.
func CheckConstraints(params []*TypeParameter, args []Type, ctx *TypeContext) []Violation {
	if ctx == nil {
		ctx = NewTypeContext(nil)
	}
	sub := Bindings(params, args)
	var out []Violation
	for i, p := range params {
		if i >= len(args) {
			break
		}
		for _, bound := range p.Bounds {
			if !Compatible(args[i], Substitute(bound, sub), ctx.Fork()) {
				out = append(out, Violation{Parameter: p, Bound: bound, Argument: args[i]})
			}
		}
	}
	return out
}

// DefaultMethodProvider returns the trait whose default implementation of
// name obj uses. An object's own method always wins, in which case nil is
// returned. If several implemented traits provide a default and one of them
// requires all others, the most specific one wins; otherwise the providers
// are returned as ambiguous.
func DefaultMethodProvider(obj *ObjectType, name string) (*TraitType, []*TraitType) {
	def := obj.Definition()
	if def.Methods.Has(name) {
		return nil, nil
	}
	var providers []*TraitType
	seen := map[*TraitType]bool{}
	var walk func(t *TraitType)
	walk = func(t *TraitType) {
		d := t.Definition()
		if seen[d] {
			return
		}
		seen[d] = true
		if d.DefaultMethods.Has(name) {
			providers = append(providers, t)
		}
		for _, r := range d.Requires {
			walk(r)
		}
	}
	for _, tr := range def.implements {
		walk(tr)
	}
	switch len(providers) {
	case 0:
		return nil, nil
	case 1:
		return providers[0], nil
	}
	for _, p := range providers {
		specific := true
		for _, q := range providers {
			if p != q && !TraitRequires(p, q) {
				specific = false
				break
			}
		}
		if specific {
			return p, nil
		}
	}
	return nil, providers
}
