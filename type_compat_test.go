package aeonc_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/ozanh/aeonc"
)

type typeFixture struct {
	db      *TypeDatabase
	object  *ObjectType
	integer *ObjectType
	str     *ObjectType
	array   *ObjectType
	show    *TraitType
	point   *ObjectType
}

func newTypeFixture() *typeFixture {
	db := NewTypeDatabase()
	f := &typeFixture{
		db:      db,
		object:  db.Builtin(ObjectName),
		integer: db.Builtin(IntegerName),
		str:     db.Builtin(StringName),
		array:   db.Builtin(ArrayName),
	}
	f.show = NewTraitType("main", "Show")
	f.show.RequiredMethods.Put("show", &BlockType{Name: "show", Returns: f.str, Method: true})
	f.point = NewObjectType("main", "Point", f.object)
	return f
}

func TestTypeDatabase(t *testing.T) {
	f := newTypeFixture()
	require.NoError(t, f.db.Define("main", "Point", f.point))
	require.True(t, f.db.Has("main::Point"))
	require.False(t, f.db.Has("Point"))

	typ, err := f.db.Lookup("main::Point")
	require.NoError(t, err)
	require.Same(t, f.point, typ)

	err = f.db.Define("main", "Point", NewObjectType("main", "Point", nil))
	require.True(t, errors.Is(err, ErrDuplicateDefinition))

	typ, err = f.db.Lookup("main::Missing")
	require.True(t, errors.Is(err, ErrTypeNotFound))
	require.Same(t, TypeError, typ)

	names := f.db.Names()
	require.Equal(t, ObjectName, names[0])
	require.Equal(t, "main::Point", names[len(names)-1])
	require.Equal(t, len(names), f.db.Len())
	require.Panics(t, func() { f.db.Builtin("Nope") })
}

func TestCompatibleOptOut(t *testing.T) {
	f := newTypeFixture()
	for _, opt := range []Type{TypeDynamic, TypeError} {
		require.True(t, Compatible(opt, f.integer, nil))
		require.True(t, Compatible(f.integer, opt, nil))
		require.True(t, Compatible(opt, f.show, nil))
	}
	require.True(t, Compatible(f.str, TypeVoid, nil))
}

func TestCompatibleObjects(t *testing.T) {
	f := newTypeFixture()
	require.True(t, Compatible(f.integer, f.integer, nil))
	require.True(t, Compatible(f.integer, f.object, nil))
	require.False(t, Compatible(f.object, f.integer, nil))
	require.False(t, Compatible(f.str, f.integer, nil))
	require.True(t, Compatible(f.point, f.object, nil))

	ints := f.array.Instantiate([]Type{f.integer})
	strs := f.array.Instantiate([]Type{f.str})
	require.True(t, Compatible(ints, ints, nil))
	require.False(t, Compatible(ints, strs, nil))
	require.True(t, Compatible(f.array, ints, nil))
	require.True(t, Compatible(ints, f.array, nil))
	require.Equal(t, "Array!(Integer)", ints.String())
}

func TestCompatibleNil(t *testing.T) {
	f := newTypeFixture()
	opt := &OptionalType{Type: f.integer}
	require.True(t, Compatible(TypeNil, opt, nil))
	require.False(t, Compatible(TypeNil, f.integer, nil))
	require.True(t, Compatible(TypeNil, f.db.Builtin(NilName), nil))
	require.True(t, Compatible(f.integer, opt, nil))
	require.True(t, Compatible(&OptionalType{Type: f.integer}, &OptionalType{Type: f.object}, nil))
	require.False(t, Compatible(&OptionalType{Type: f.str}, opt, nil))
}

func TestCompatibleTraits(t *testing.T) {
	f := newTypeFixture()
	require.False(t, Compatible(f.point, f.show, nil))

	// structural
	f.point.Methods.Put("show", &BlockType{Name: "show", Returns: f.str, Method: true})
	require.True(t, Compatible(f.point, f.show, nil))

	// wrong signature
	other := NewObjectType("main", "Other", f.object)
	other.Methods.Put("show", &BlockType{Name: "show", Returns: f.integer, Method: true})
	require.False(t, Compatible(other, f.show, nil))

	// nominal, through a required trait and the prototype chain
	pretty := NewTraitType("main", "Pretty")
	pretty.Requires = []*TraitType{f.show}
	fancy := NewObjectType("main", "Fancy", f.object)
	require.True(t, fancy.ImplementTrait(pretty))
	require.False(t, fancy.ImplementTrait(pretty))
	child := NewObjectType("main", "Child", fancy)
	require.True(t, child.Implements(f.show))
	require.True(t, Compatible(child, pretty, nil))
	require.True(t, Compatible(child, f.show, nil))

	require.True(t, Compatible(pretty, f.show, nil))
	require.False(t, Compatible(f.show, pretty, nil))
	require.True(t, TraitRequires(pretty, f.show))
	require.False(t, TraitRequires(f.show, pretty))

	require.False(t, Compatible(f.show, f.object, nil))
}

func TestCompatibleTypeParameters(t *testing.T) {
	f := newTypeFixture()
	tp := &TypeParameter{Name: "T"}
	ctx := NewTypeContext(nil)

	fork := ctx.Fork()
	require.True(t, Compatible(f.integer, tp, fork))
	bound, ok := fork.Lookup(tp)
	require.True(t, ok)
	require.Same(t, f.integer, bound)
	_, ok = ctx.Lookup(tp)
	require.False(t, ok)

	require.True(t, Compatible(f.integer, tp, ctx))
	require.False(t, Compatible(f.str, tp, ctx))
	require.Len(t, ctx.Substitutions(), 1)

	shown := &TypeParameter{Name: "S", Bounds: []Type{f.show}}
	require.False(t, Compatible(f.integer, shown, NewTypeContext(nil)))
	f.point.Methods.Put("show", &BlockType{Name: "show", Returns: f.str, Method: true})
	require.True(t, Compatible(f.point, shown, NewTypeContext(nil)))

	// a bounded parameter satisfies its bounds
	require.True(t, Compatible(shown, f.show, nil))
	require.False(t, Compatible(tp, f.show, nil))

	violations := CheckConstraints([]*TypeParameter{shown}, []Type{f.integer}, nil)
	require.Len(t, violations, 1)
	require.Same(t, shown, violations[0].Parameter)
	require.Same(t, f.integer, violations[0].Argument)
	require.Empty(t, CheckConstraints([]*TypeParameter{shown}, []Type{f.point}, nil))
}

func TestCompatibleSelf(t *testing.T) {
	f := newTypeFixture()
	self := &SelfType{}
	require.False(t, Compatible(self, f.point, nil))
	require.False(t, Compatible(f.point, self, nil))
	require.True(t, Compatible(self, f.point, NewTypeContext(f.point)))
	require.True(t, Compatible(f.point, self, NewTypeContext(f.point)))
	require.False(t, Compatible(f.integer, self, NewTypeContext(f.point)))

	opt := ResolveSelf(&OptionalType{Type: self}, f.point)
	require.Equal(t, "?Point", opt.String())
	require.Same(t, self, ResolveSelf(self, nil))
}

func TestCompatibleBlocks(t *testing.T) {
	f := newTypeFixture()
	block := func(arg Type, returns, throws Type) *BlockType {
		return &BlockType{
			Arguments: []*ArgumentType{{Name: "x", Type: arg}},
			Returns:   returns,
			Throws:    throws,
		}
	}

	// arguments are contravariant, returns covariant
	require.True(t, Compatible(block(f.object, f.integer, nil), block(f.integer, f.object, nil), nil))
	require.False(t, Compatible(block(f.integer, f.integer, nil), block(f.object, f.integer, nil), nil))
	require.False(t, Compatible(block(f.integer, f.object, nil), block(f.integer, f.integer, nil), nil))

	require.False(t, Compatible(block(f.integer, nil, f.str), block(f.integer, nil, nil), nil))
	require.True(t, Compatible(block(f.integer, nil, f.str), block(f.integer, nil, f.object), nil))
	require.True(t, Compatible(block(f.integer, nil, nil), block(f.integer, nil, f.str), nil))

	require.False(t, Compatible(&BlockType{}, block(f.integer, nil, nil), nil))
	require.True(t, Compatible(&BlockType{}, f.db.Builtin(BlockName), nil))
	require.Equal(t, "do (Integer) !! String -> Object", block(f.integer, f.object, f.str).String())
}

func TestLookupMethod(t *testing.T) {
	f := newTypeFixture()

	m, ok := LookupMethod(f.integer, "+")
	require.True(t, ok)
	require.Same(t, f.integer, m.(*BlockType).Returns)

	// inherited from Object
	_, ok = LookupMethod(f.point, "new")
	require.True(t, ok)
	_, ok = LookupMethod(f.point, "missing")
	require.False(t, ok)

	ints := f.array.Instantiate([]Type{f.integer})
	m, ok = LookupMethod(ints, "at")
	require.True(t, ok)
	require.Equal(t, "?Integer", m.(*BlockType).Returns.String())

	// trait defaults
	f.show.DefaultMethods.Put("describe", &BlockType{Name: "describe", Returns: f.str, Method: true})
	f.point.ImplementTrait(f.show)
	_, ok = LookupMethod(f.point, "describe")
	require.True(t, ok)
	_, ok = LookupMethod(f.show, "show")
	require.True(t, ok)

	mod := NewModuleType("util")
	m, ok = LookupMethod(mod, "anything")
	require.True(t, ok)
	require.Same(t, TypeDynamic, m)
	attr, ok := LookupAttribute(mod, "anything")
	require.True(t, ok)
	require.Same(t, TypeDynamic, attr)
	mod.Partial = false
	_, ok = LookupMethod(mod, "anything")
	require.False(t, ok)

	m, ok = LookupMethod(TypeDynamic, "x")
	require.True(t, ok)
	require.Same(t, TypeDynamic, m)
	_, ok = LookupMethod(TypeNil, "x")
	require.False(t, ok)

	f.point.Attributes.Put("value", f.integer)
	child := NewObjectType("main", "Child", f.point)
	attr, ok = LookupAttribute(&OptionalType{Type: child}, "value")
	require.True(t, ok)
	require.Same(t, f.integer, attr)
}

func TestDefaultMethodProvider(t *testing.T) {
	f := newTypeFixture()
	sig := &BlockType{Name: "describe", Returns: f.str, Method: true}

	base := NewTraitType("main", "Base")
	base.DefaultMethods.Put("describe", sig)
	derived := NewTraitType("main", "Derived")
	derived.Requires = []*TraitType{base}
	derived.DefaultMethods.Put("describe", sig)
	unrelated := NewTraitType("main", "Unrelated")
	unrelated.DefaultMethods.Put("describe", sig)

	obj := NewObjectType("main", "A", f.object)
	provider, ambiguous := DefaultMethodProvider(obj, "describe")
	require.Nil(t, provider)
	require.Nil(t, ambiguous)

	obj.ImplementTrait(base)
	provider, _ = DefaultMethodProvider(obj, "describe")
	require.Same(t, base, provider)

	obj.ImplementTrait(derived)
	provider, ambiguous = DefaultMethodProvider(obj, "describe")
	require.Same(t, derived, provider)
	require.Nil(t, ambiguous)

	obj.ImplementTrait(unrelated)
	provider, ambiguous = DefaultMethodProvider(obj, "describe")
	require.Nil(t, provider)
	require.Len(t, ambiguous, 3)

	// own methods win
	obj.Methods.Put("describe", sig)
	provider, ambiguous = DefaultMethodProvider(obj, "describe")
	require.Nil(t, provider)
	require.Nil(t, ambiguous)
}
