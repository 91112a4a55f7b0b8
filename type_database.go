// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Names of the builtin prototypes.
const (
	ObjectName  = "Object"
	BooleanName = "Boolean"
	IntegerName = "Integer"
	FloatName   = "Float"
	StringName  = "String"
	ArrayName   = "Array"
	HashMapName = "HashMap"
	BlockName   = "Block"
	NilName     = "Nil"
)

// TypeDatabase maps qualified names to type definitions. It is append-only
// and keeps insertion order.
type TypeDatabase struct {
	types *linkedhashmap.Map
}

// NewTypeDatabase returns a database holding the builtin prototypes.
func NewTypeDatabase() *TypeDatabase {
	db := &TypeDatabase{types: linkedhashmap.New()}
	db.bootstrap()
	return db
}

// Define registers t under name in module. It fails with
// ErrDuplicateDefinition if the qualified name is taken.
func (db *TypeDatabase) Define(module, name string, t Type) error {
	qn := qualify(module, name)
	if _, ok := db.types.Get(qn); ok {
		return ErrDuplicateDefinition.NewError(qn, "is already defined")
	}
	db.types.Put(qn, t)
	return nil
}

// Lookup returns the type with the qualified name. Unknown names yield the
// error type and ErrTypeNotFound.
func (db *TypeDatabase) Lookup(name string) (Type, error) {
	if v, ok := db.types.Get(name); ok {
		return v.(Type), nil
	}
	return TypeError, ErrTypeNotFound.NewError(name)
}

// Has reports whether the qualified name is defined.
func (db *TypeDatabase) Has(name string) bool {
	_, ok := db.types.Get(name)
	return ok
}

// Names returns all qualified names in definition order.
func (db *TypeDatabase) Names() []string {
	keys := db.types.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.(string)
	}
	return out
}

// Len returns the number of definitions.
func (db *TypeDatabase) Len() int {
	return db.types.Size()
}

// Builtin returns a builtin prototype. It panics for unknown names.
func (db *TypeDatabase) Builtin(name string) *ObjectType {
	v, ok := db.types.Get(name)
	if !ok {
		panic("aeonc: unknown builtin " + name)
	}
	return v.(*ObjectType)
}

func (db *TypeDatabase) bootstrap() {
	object := NewObjectType("", ObjectName, nil)
	define := func(name string) *ObjectType {
		t := NewObjectType("", name, object)
		db.types.Put(name, t)
		return t
	}
	db.types.Put(ObjectName, object)
	boolean := define(BooleanName)
	integer := define(IntegerName)
	float := define(FloatName)
	str := define(StringName)
	array := define(ArrayName)
	define(HashMapName)
	define(BlockName)
	define(NilName)

	method := func(recv *ObjectType, name string, returns Type, args ...*ArgumentType) {
		recv.Methods.Put(name, &BlockType{
			Name:      name,
			Arguments: args,
			Returns:   returns,
			Method:    true,
		})
	}
	arg := func(name string, t Type) *ArgumentType {
		return &ArgumentType{Name: name, Type: t}
	}

	self := &SelfType{}
	method(object, "new", self, &ArgumentType{Name: "values", Type: TypeDynamic, Rest: true})
	method(object, "==", boolean, arg("other", object))

	for _, op := range []string{"+", "-", "*"} {
		method(integer, op, integer, arg("other", integer))
	}
	for _, op := range []string{"<", ">", "=="} {
		method(integer, op, boolean, arg("other", integer))
	}
	method(integer, "to_string", str)
	method(float, "to_string", str)
	method(str, "+", str, arg("other", str))
	method(str, "==", boolean, arg("other", str))
	method(boolean, "==", boolean, arg("other", boolean))

	elem := &TypeParameter{Name: "T"}
	array.TypeParameters = []*TypeParameter{elem}
	method(array, "length", integer)
	method(array, "at", &OptionalType{Type: elem}, arg("index", integer))
	method(array, "push", elem, arg("value", elem))

	hm := db.Builtin(HashMapName)
	hm.TypeParameters = []*TypeParameter{{Name: "K"}, {Name: "V"}}
}
