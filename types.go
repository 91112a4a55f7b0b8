// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Type is a static type. The set of variants is closed: ObjectType,
// TraitType, TypeParameter, OptionalType, SelfType, BlockType, NilType,
// VoidType, DynamicType and ErrorType. Code switching over variants must
// handle all of them and panic on anything else.
type Type interface {
	String() string
	typeVariant()
}

// Singleton types.
var (
	TypeNil     = &NilType{}
	TypeVoid    = &VoidType{}
	TypeDynamic = &DynamicType{}
	// TypeError is substituted for anything that failed to resolve, so later
	// passes can continue without reporting the same problem again.
	TypeError = &ErrorType{}
)

func unknownVariant(t Type) string {
	return fmt.Sprintf("unknown type variant %T", t)
}

// Members is an insertion ordered set of named types, used for attributes
// and methods.
type Members struct {
	m *linkedhashmap.Map
}

// NewMembers returns an empty member set.
func NewMembers() *Members {
	return &Members{m: linkedhashmap.New()}
}

// Get returns the member named name.
func (ms *Members) Get(name string) (Type, bool) {
	v, ok := ms.m.Get(name)
	if !ok {
		return nil, false
	}
	return v.(Type), true
}

// Has reports whether name is a member.
func (ms *Members) Has(name string) bool {
	_, ok := ms.m.Get(name)
	return ok
}

// Put sets the member named name, keeping the original position if it
// already exists.
func (ms *Members) Put(name string, t Type) {
	ms.m.Put(name, t)
}

// Len returns the number of members.
func (ms *Members) Len() int {
	return ms.m.Size()
}

// Names returns the member names in insertion order.
func (ms *Members) Names() []string {
	keys := ms.m.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.(string)
	}
	return out
}

// Each calls fn for each member in insertion order.
func (ms *Members) Each(fn func(name string, t Type)) {
	it := ms.m.Iterator()
	for it.Next() {
		fn(it.Key().(string), it.Value().(Type))
	}
}

// ObjectType is a nominal object type. Objects are prototypes: the type of
// a defined object and of the objects created from it is the same.
// A generic instance points at its definition with Base and carries the
// positional TypeArguments.
type ObjectType struct {
	Name           string
	Module         string
	Prototype      *ObjectType
	TypeParameters []*TypeParameter
	Attributes     *Members
	Methods        *Members
	Base           *ObjectType
	TypeArguments  []Type
	// IsModule is set for the types of module objects. Partial is set while
	// such a module is still being compiled.
	IsModule bool
	Partial  bool

	implements []*TraitType
}

// NewObjectType returns a new object definition.
func NewObjectType(module, name string, proto *ObjectType) *ObjectType {
	return &ObjectType{
		Name:       name,
		Module:     module,
		Prototype:  proto,
		Attributes: NewMembers(),
		Methods:    NewMembers(),
	}
}

// NewModuleType returns the type of a module object.
func NewModuleType(name string) *ObjectType {
	t := NewObjectType(name, name, nil)
	t.IsModule = true
	t.Partial = true
	return t
}

func (*ObjectType) typeVariant() {}

// Definition returns the generic definition of an instance, or t itself.
func (t *ObjectType) Definition() *ObjectType {
	if t.Base != nil {
		return t.Base
	}
	return t
}

// QualifiedName returns the name prefixed with the defining module.
func (t *ObjectType) QualifiedName() string {
	return qualify(t.Definition().Module, t.Definition().Name)
}

func (t *ObjectType) String() string {
	return formatGeneric(t.Definition().Name, t.TypeArguments)
}

// Instantiate returns a generic instance of t with args.
func (t *ObjectType) Instantiate(args []Type) *ObjectType {
	def := t.Definition()
	return &ObjectType{
		Name:          def.Name,
		Module:        def.Module,
		Prototype:     def.Prototype,
		Attributes:    def.Attributes,
		Methods:       def.Methods,
		Base:          def,
		TypeArguments: args,
		IsModule:      def.IsModule,
	}
}

// ImplementTrait records that t implements tr. It returns false if the edge
// already exists.
func (t *ObjectType) ImplementTrait(tr *TraitType) bool {
	def := t.Definition()
	for _, have := range def.implements {
		if have.Definition() == tr.Definition() {
			return false
		}
	}
	def.implements = append(def.implements, tr)
	return true
}

// Implementations returns the traits t implements directly, in the order
// they were recorded.
func (t *ObjectType) Implementations() []*TraitType {
	impls := t.Definition().implements
	out := make([]*TraitType, len(impls))
	copy(out, impls)
	return out
}

// Implements reports whether t implements tr, directly, through a required
// trait or through its prototype chain.
func (t *ObjectType) Implements(tr *TraitType) bool {
	for p := t.Definition(); p != nil; p = p.Prototype {
		for _, have := range p.implements {
			if have.Definition() == tr.Definition() || TraitRequires(have, tr) {
				return true
			}
		}
	}
	return false
}

// IsPartial reports whether t is the type of a module still in flight.
func (t *ObjectType) IsPartial() bool {
	def := t.Definition()
	return def.IsModule && def.Partial
}

// TraitType is a trait: a set of required and default methods, optionally
// requiring other traits.
type TraitType struct {
	Name            string
	Module          string
	TypeParameters  []*TypeParameter
	Requires        []*TraitType
	RequiredMethods *Members
	DefaultMethods  *Members
	Base            *TraitType
	TypeArguments   []Type
}

// NewTraitType returns a new trait definition.
func NewTraitType(module, name string) *TraitType {
	return &TraitType{
		Name:            name,
		Module:          module,
		RequiredMethods: NewMembers(),
		DefaultMethods:  NewMembers(),
	}
}

func (*TraitType) typeVariant() {}

// Definition returns the generic definition of an instance, or t itself.
func (t *TraitType) Definition() *TraitType {
	if t.Base != nil {
		return t.Base
	}
	return t
}

// QualifiedName returns the name prefixed with the defining module.
func (t *TraitType) QualifiedName() string {
	return qualify(t.Definition().Module, t.Definition().Name)
}

func (t *TraitType) String() string {
	return formatGeneric(t.Definition().Name, t.TypeArguments)
}

// Instantiate returns a generic instance of t with args.
func (t *TraitType) Instantiate(args []Type) *TraitType {
	def := t.Definition()
	return &TraitType{
		Name:            def.Name,
		Module:          def.Module,
		TypeParameters:  def.TypeParameters,
		Requires:        def.Requires,
		RequiredMethods: def.RequiredMethods,
		DefaultMethods:  def.DefaultMethods,
		Base:            def,
		TypeArguments:   args,
	}
}

// TraitRequires reports whether a requires b transitively.
func TraitRequires(a, b *TraitType) bool {
	seen := map[*TraitType]bool{}
	var walk func(t *TraitType) bool
	walk = func(t *TraitType) bool {
		def := t.Definition()
		if seen[def] {
			return false
		}
		seen[def] = true
		for _, r := range def.Requires {
			if r.Definition() == b.Definition() || walk(r) {
				return true
			}
		}
		return false
	}
	return walk(a)
}

// TypeParameter is a generic type parameter with upper bounds.
type TypeParameter struct {
	Name   string
	Bounds []Type
}

func (*TypeParameter) typeVariant() {}

func (t *TypeParameter) String() string { return t.Name }

// OptionalType is a value of Type or nil.
type OptionalType struct {
	Type Type
}

func (*OptionalType) typeVariant() {}

func (t *OptionalType) String() string { return "?" + t.Type.String() }

// SelfType refers to the enclosing definition. Bound is nil until resolved.
type SelfType struct {
	Bound Type
}

func (*SelfType) typeVariant() {}

func (t *SelfType) String() string { return "Self" }

// ArgumentType is an argument of a block signature.
type ArgumentType struct {
	Name    string
	Type    Type
	Default bool
	Rest    bool
}

// BlockType is the signature of a block or method. Throws is nil if the
// block does not throw.
type BlockType struct {
	Name           string
	TypeParameters []*TypeParameter
	Arguments      []*ArgumentType
	Returns        Type
	Throws         Type
	Method         bool
}

func (*BlockType) typeVariant() {}

func (t *BlockType) String() string {
	var sb strings.Builder
	sb.WriteString("do (")
	for i, a := range t.Arguments {
		if i > 0 {
			sb.WriteString(", ")
		}
		if a.Rest {
			sb.WriteString("*")
		}
		sb.WriteString(a.Type.String())
	}
	sb.WriteString(")")
	if t.Throws != nil {
		sb.WriteString(" !! ")
		sb.WriteString(t.Throws.String())
	}
	if t.Returns != nil {
		sb.WriteString(" -> ")
		sb.WriteString(t.Returns.String())
	}
	return sb.String()
}

// RequiredArguments returns the number of arguments without a default.
func (t *BlockType) RequiredArguments() int {
	n := 0
	for _, a := range t.Arguments {
		if !a.Default && !a.Rest {
			n++
		}
	}
	return n
}

// Rest reports whether the last argument collects remaining values.
func (t *BlockType) Rest() bool {
	return len(t.Arguments) > 0 && t.Arguments[len(t.Arguments)-1].Rest
}

// ArgumentIndex returns the position of the argument named name or -1.
func (t *BlockType) ArgumentIndex(name string) int {
	for i, a := range t.Arguments {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// ReturnType returns the declared return type or Dynamic.
func (t *BlockType) ReturnType() Type {
	if t.Returns == nil {
		return TypeDynamic
	}
	return t.Returns
}

// NilType is the type of nil.
type NilType struct{}

func (*NilType) typeVariant() {}

func (*NilType) String() string { return "Nil" }

// VoidType accepts any value when expected and is used for expressions
// whose value is ignored.
type VoidType struct{}

func (*VoidType) typeVariant() {}

func (*VoidType) String() string { return "Void" }

// DynamicType opts out of static checking.
type DynamicType struct{}

func (*DynamicType) typeVariant() {}

func (*DynamicType) String() string { return "Dynamic" }

// ErrorType is the placeholder for types that failed to resolve.
type ErrorType struct{}

func (*ErrorType) typeVariant() {}

func (*ErrorType) String() string { return "<error>" }

func qualify(module, name string) string {
	if module == "" || module == name {
		return name
	}
	return module + "::" + name
}

func formatGeneric(name string, args []Type) string {
	if len(args) == 0 {
		return name
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return name + "!(" + strings.Join(parts, ", ") + ")"
}

// Substitute replaces type parameters in t according to sub.
func Substitute(t Type, sub map[*TypeParameter]Type) Type {
	if len(sub) == 0 || t == nil {
		return t
	}
	switch t := t.(type) {
	case *TypeParameter:
		if r, ok := sub[t]; ok {
			return r
		}
		return t
	case *ObjectType:
		if len(t.TypeArguments) == 0 {
			return t
		}
		return t.Definition().Instantiate(substituteAll(t.TypeArguments, sub))
	case *TraitType:
		if len(t.TypeArguments) == 0 {
			return t
		}
		return t.Definition().Instantiate(substituteAll(t.TypeArguments, sub))
	case *OptionalType:
		return &OptionalType{Type: Substitute(t.Type, sub)}
	case *SelfType:
		if t.Bound == nil {
			return t
		}
		return &SelfType{Bound: Substitute(t.Bound, sub)}
	case *BlockType:
		out := *t
		out.Arguments = make([]*ArgumentType, len(t.Arguments))
		for i, a := range t.Arguments {
			ca := *a
			ca.Type = Substitute(a.Type, sub)
			out.Arguments[i] = &ca
		}
		out.Returns = Substitute(t.Returns, sub)
		out.Throws = Substitute(t.Throws, sub)
		return &out
	case *NilType, *VoidType, *DynamicType, *ErrorType:
		return t
	default:
		panic(unknownVariant(t))
	}
}

func substituteAll(ts []Type, sub map[*TypeParameter]Type) []Type {
	out := make([]Type, len(ts))
	for i, t := range ts {
		out[i] = Substitute(t, sub)
	}
	return out
}

// Bindings maps the type parameters of a generic definition to the type
// arguments of one of its instances.
func Bindings(params []*TypeParameter, args []Type) map[*TypeParameter]Type {
	if len(args) == 0 {
		return nil
	}
	sub := make(map[*TypeParameter]Type, len(params))
	for i, p := range params {
		if i < len(args) {
			sub[p] = args[i]
		}
	}
	return sub
}
