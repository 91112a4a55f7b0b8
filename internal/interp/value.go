// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package interp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ozanh/aeonc/bytecode"
)

// Value is a runtime value: int64, float64, string, bool, nil, *Object,
// *Array, *HashMap, *Block or *Native.
type Value interface{}

// Object is a prototype based object. Modules, object definitions, traits
// and instances are all objects.
type Object struct {
	Name  string
	Proto *Object
	Attrs map[string]Value
}

// NewObject returns an empty object with proto.
func NewObject(proto *Object) *Object {
	return &Object{Proto: proto, Attrs: make(map[string]Value)}
}

// Lookup finds name along the prototype chain.
func (o *Object) Lookup(name string) (Value, bool) {
	for p := o; p != nil; p = p.Proto {
		if v, ok := p.Attrs[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Array is a mutable array.
type Array struct {
	Elems []Value
}

// HashMap is an insertion ordered map.
type HashMap struct {
	Keys   []Value
	Values []Value
}

// Get returns the value stored for key.
func (m *HashMap) Get(key Value) (Value, bool) {
	for i, k := range m.Keys {
		if Equal(k, key) {
			return m.Values[i], true
		}
	}
	return nil, false
}

// Put stores value for key.
func (m *HashMap) Put(key, value Value) {
	for i, k := range m.Keys {
		if Equal(k, key) {
			m.Values[i] = value
			return
		}
	}
	m.Keys = append(m.Keys, key)
	m.Values = append(m.Values, value)
}

// Block is a closure over the frame it was created in.
type Block struct {
	Code   *bytecode.CompiledCode
	Module *moduleInstance
	Parent *frame
	Self   Value
}

// Native is a method implemented in Go.
type Native struct {
	Name string
	Fn   func(in *Interpreter, self Value, args []Value) (Value, error)
}

// Equal compares primitives by value and everything else by identity.
func Equal(a, b Value) bool {
	return a == b
}

// Truthy reports whether v continues a conditional branch. Only false and
// nil are falsy.
func Truthy(v Value) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	}
	return true
}

// Format returns a printable form of v.
func Format(v Value) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case *Array:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = Format(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *HashMap:
		parts := make([]string, len(v.Keys))
		for i := range v.Keys {
			parts[i] = Format(v.Keys[i]) + ": " + Format(v.Values[i])
		}
		return "%[" + strings.Join(parts, ", ") + "]"
	case *Object:
		if v.Name != "" {
			return v.Name
		}
		return "<object>"
	case *Block:
		return "<block>"
	case *Native:
		return "<native " + v.Name + ">"
	}
	return fmt.Sprintf("<%T>", v)
}

// prototypes hold the builtin prototype objects of an interpreter.
type prototypes struct {
	object, integer, float, str, array, hashMap, block, boolean, nilProto *Object
}

func (in *Interpreter) initPrototypes() {
	p := &in.protos
	p.object = &Object{Name: "Object", Attrs: make(map[string]Value)}
	mk := func(name string) *Object {
		o := NewObject(p.object)
		o.Name = name
		return o
	}
	p.integer = mk("Integer")
	p.float = mk("Float")
	p.str = mk("String")
	p.array = mk("Array")
	p.hashMap = mk("HashMap")
	p.block = mk("Block")
	p.boolean = mk("Boolean")
	p.nilProto = mk("Nil")

	def := func(o *Object, name string, fn func(in *Interpreter, self Value, args []Value) (Value, error)) {
		o.Attrs[name] = &Native{Name: name, Fn: fn}
	}
	def(p.object, "new", func(in *Interpreter, self Value, args []Value) (Value, error) {
		proto, ok := self.(*Object)
		if !ok {
			return nil, typeError("new", self)
		}
		obj := NewObject(proto)
		if _, ok := obj.Lookup("init"); ok {
			if _, err := in.Send(obj, "init", args); err != nil {
				return nil, err
			}
		}
		return obj, nil
	})
	def(p.object, "==", func(_ *Interpreter, self Value, args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, argumentError("==", 1, len(args))
		}
		return Equal(self, args[0]), nil
	})
	def(p.object, "to_string", func(_ *Interpreter, self Value, _ []Value) (Value, error) {
		return Format(self), nil
	})

	intOp := func(name string, fn func(a, b int64) Value) {
		def(p.integer, name, func(_ *Interpreter, self Value, args []Value) (Value, error) {
			if len(args) != 1 {
				return nil, argumentError(name, 1, len(args))
			}
			a, ok1 := self.(int64)
			b, ok2 := args[0].(int64)
			if !ok1 || !ok2 {
				return nil, typeError(name, args[0])
			}
			return fn(a, b), nil
		})
	}
	intOp("+", func(a, b int64) Value { return a + b })
	intOp("-", func(a, b int64) Value { return a - b })
	intOp("*", func(a, b int64) Value { return a * b })
	intOp("<", func(a, b int64) Value { return a < b })
	intOp(">", func(a, b int64) Value { return a > b })
	intOp("==", func(a, b int64) Value { return a == b })

	def(p.str, "+", func(_ *Interpreter, self Value, args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, argumentError("+", 1, len(args))
		}
		a, ok1 := self.(string)
		b, ok2 := args[0].(string)
		if !ok1 || !ok2 {
			return nil, typeError("+", args[0])
		}
		return a + b, nil
	})

	def(p.array, "length", func(_ *Interpreter, self Value, _ []Value) (Value, error) {
		arr, ok := self.(*Array)
		if !ok {
			return nil, typeError("length", self)
		}
		return int64(len(arr.Elems)), nil
	})
	def(p.array, "at", func(_ *Interpreter, self Value, args []Value) (Value, error) {
		arr, ok := self.(*Array)
		if !ok || len(args) != 1 {
			return nil, typeError("at", self)
		}
		return arrayAt(arr, args[0])
	})
	def(p.array, "push", func(_ *Interpreter, self Value, args []Value) (Value, error) {
		arr, ok := self.(*Array)
		if !ok || len(args) != 1 {
			return nil, typeError("push", self)
		}
		arr.Elems = append(arr.Elems, args[0])
		return args[0], nil
	})
	def(p.block, "call", func(in *Interpreter, self Value, args []Value) (Value, error) {
		b, ok := self.(*Block)
		if !ok {
			return nil, typeError("call", self)
		}
		return in.callBlock(b, b.Self, args, nil)
	})
}

func arrayAt(arr *Array, index Value) (Value, error) {
	i, ok := index.(int64)
	if !ok {
		return nil, typeError("at", index)
	}
	if i < 0 || i >= int64(len(arr.Elems)) {
		return nil, nil
	}
	return arr.Elems[i], nil
}

// prototypeOf returns the prototype messages to v are looked up in.
func (in *Interpreter) prototypeOf(v Value) *Object {
	switch v := v.(type) {
	case *Object:
		return v
	case int64:
		return in.protos.integer
	case float64:
		return in.protos.float
	case string:
		return in.protos.str
	case bool:
		return in.protos.boolean
	case *Array:
		return in.protos.array
	case *HashMap:
		return in.protos.hashMap
	case *Block, *Native:
		return in.protos.block
	case nil:
		return in.protos.nilProto
	}
	return in.protos.object
}
