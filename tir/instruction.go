// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package tir

import (
	"strconv"
	"strings"

	"github.com/ozanh/aeonc/ast"
	"github.com/ozanh/aeonc/bytecode"
)

// Keyword is a named argument register of a message send.
type Keyword struct {
	Name     string
	Register *VirtualRegister
}

// Instruction is a single TIR instruction. Which fields are used depends on
// Op, following bytecode.OpcodeOperands: Register is the written register,
// Args the fixed register operands in order, Ints the immediates, Varargs
// and Keywords the variadic operands.
type Instruction struct {
	Op       bytecode.Opcode
	Register *VirtualRegister
	Args     []*VirtualRegister
	Varargs  []*VirtualRegister
	Keywords []Keyword
	Literal  bytecode.Literal
	Ints     []int
	Target   *BasicBlock
	Code     *CodeObject
	// Tail marks a send in tail position.
	Tail     bool
	Location ast.Location
}

// Name returns the opcode name.
func (i *Instruction) Name() string {
	return bytecode.OpcodeNames[i.Op]
}

// Terminator reports whether the instruction ends its block.
func (i *Instruction) Terminator() bool {
	return bytecode.IsTerminator(i.Op)
}

// Reads returns all registers read by the instruction.
func (i *Instruction) Reads() []*VirtualRegister {
	out := make([]*VirtualRegister, 0, len(i.Args)+len(i.Varargs)+len(i.Keywords))
	out = append(out, i.Args...)
	out = append(out, i.Varargs...)
	for _, kw := range i.Keywords {
		out = append(out, kw.Register)
	}
	return out
}

func (i *Instruction) String() string {
	var sb strings.Builder
	if i.Register != nil {
		sb.WriteString(i.Register.String())
		sb.WriteString(" = ")
	}
	sb.WriteString(i.Name())
	var ops []string
	for _, r := range i.Args {
		ops = append(ops, r.String())
	}
	if !i.Literal.IsZero() {
		ops = append(ops, i.Literal.Format())
	}
	for _, n := range i.Ints {
		ops = append(ops, strconv.Itoa(n))
	}
	for _, r := range i.Varargs {
		ops = append(ops, r.String())
	}
	for _, kw := range i.Keywords {
		ops = append(ops, kw.Name+": "+kw.Register.String())
	}
	if i.Target != nil {
		ops = append(ops, "->"+i.Target.Label())
	}
	if i.Code != nil {
		ops = append(ops, "<"+i.Code.Name+">")
	}
	if len(ops) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(ops, ", "))
	}
	if i.Tail {
		sb.WriteString(" (tail)")
	}
	return sb.String()
}

func newInst(op bytecode.Opcode, dst *VirtualRegister, loc ast.Location) *Instruction {
	return &Instruction{Op: op, Register: dst, Location: loc}
}

// SetLiteral loads a literal into dst. The opcode is derived from the kind.
func SetLiteral(dst *VirtualRegister, lit bytecode.Literal, loc ast.Location) *Instruction {
	var op bytecode.Opcode
	switch lit.Kind {
	case bytecode.LiteralInteger:
		op = bytecode.OpSetInteger
	case bytecode.LiteralFloat:
		op = bytecode.OpSetFloat
	default:
		op = bytecode.OpSetString
	}
	i := newInst(op, dst, loc)
	i.Literal = lit
	return i
}

// Get returns an instruction without operands that writes dst, such as
// GetNil or GetIntegerPrototype.
func Get(op bytecode.Opcode, dst *VirtualRegister, loc ast.Location) *Instruction {
	return newInst(op, dst, loc)
}

// Primitive returns an instruction reading args and writing dst, such as
// IntegerAdd.
func Primitive(op bytecode.Opcode, dst *VirtualRegister, loc ast.Location, args ...*VirtualRegister) *Instruction {
	i := newInst(op, dst, loc)
	i.Args = args
	return i
}

// SetObject creates an object with the given prototype.
func SetObject(dst, proto *VirtualRegister, loc ast.Location) *Instruction {
	return Primitive(bytecode.OpSetObject, dst, loc, proto)
}

// SetArray creates an array from values.
func SetArray(dst *VirtualRegister, values []*VirtualRegister, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpSetArray, dst, loc)
	i.Varargs = values
	return i
}

// SetHashMap creates a hash map from alternating key and value registers.
func SetHashMap(dst *VirtualRegister, pairs []*VirtualRegister, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpSetHashMap, dst, loc)
	i.Varargs = pairs
	return i
}

// SetBlock creates a block from a child code object.
func SetBlock(dst *VirtualRegister, code *CodeObject, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpSetBlock, dst, loc)
	i.Code = code
	return i
}

// SetRegister copies src into dst.
func SetRegister(dst, src *VirtualRegister, loc ast.Location) *Instruction {
	return Primitive(bytecode.OpSetRegister, dst, loc, src)
}

// GetLocal reads local slot into dst.
func GetLocal(dst *VirtualRegister, slot int, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpGetLocal, dst, loc)
	i.Ints = []int{slot}
	return i
}

// SetLocal stores src in local slot.
func SetLocal(slot int, src *VirtualRegister, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpSetLocal, nil, loc)
	i.Ints = []int{slot}
	i.Args = []*VirtualRegister{src}
	return i
}

// LocalExists tests whether local slot was set.
func LocalExists(dst *VirtualRegister, slot int, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpLocalExists, dst, loc)
	i.Ints = []int{slot}
	return i
}

// GetParentLocal reads slot of the scope depth levels up.
func GetParentLocal(dst *VirtualRegister, depth, slot int, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpGetParentLocal, dst, loc)
	i.Ints = []int{depth, slot}
	return i
}

// SetParentLocal stores src in slot of the scope depth levels up.
func SetParentLocal(depth, slot int, src *VirtualRegister, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpSetParentLocal, nil, loc)
	i.Ints = []int{depth, slot}
	i.Args = []*VirtualRegister{src}
	return i
}

// GetAttribute reads attribute name of receiver.
func GetAttribute(dst, receiver *VirtualRegister, name string, loc ast.Location) *Instruction {
	i := Primitive(bytecode.OpGetAttribute, dst, loc, receiver)
	i.Literal = bytecode.String(name)
	return i
}

// SetAttribute stores value in attribute name of receiver, writing the value
// to dst.
func SetAttribute(dst, receiver *VirtualRegister, name string, value *VirtualRegister, loc ast.Location) *Instruction {
	i := Primitive(bytecode.OpSetAttribute, dst, loc, receiver, value)
	i.Literal = bytecode.String(name)
	return i
}

// GetGlobal reads module global slot.
func GetGlobal(dst *VirtualRegister, slot int, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpGetGlobal, dst, loc)
	i.Ints = []int{slot}
	return i
}

// SetGlobal stores src in module global slot.
func SetGlobal(slot int, src *VirtualRegister, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpSetGlobal, nil, loc)
	i.Ints = []int{slot}
	i.Args = []*VirtualRegister{src}
	return i
}

// SetPrototype sets the prototype of obj, writing obj to dst.
func SetPrototype(dst, obj, proto *VirtualRegister, loc ast.Location) *Instruction {
	return Primitive(bytecode.OpSetPrototype, dst, loc, obj, proto)
}

// LoadModule loads and runs a module once, writing the module object.
func LoadModule(dst *VirtualRegister, name string, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpLoadModule, dst, loc)
	i.Literal = bytecode.String(name)
	return i
}

// SendObjectMessage sends name to receiver.
func SendObjectMessage(dst, receiver *VirtualRegister, name string, args []*VirtualRegister, kws []Keyword, loc ast.Location) *Instruction {
	i := Primitive(bytecode.OpSendObjectMessage, dst, loc, receiver)
	i.Literal = bytecode.String(name)
	i.Varargs = args
	i.Keywords = kws
	return i
}

// TailCall sends name to receiver, replacing the current frame.
func TailCall(receiver *VirtualRegister, name string, args []*VirtualRegister, kws []Keyword, loc ast.Location) *Instruction {
	i := Primitive(bytecode.OpTailCall, nil, loc, receiver)
	i.Literal = bytecode.String(name)
	i.Varargs = args
	i.Keywords = kws
	return i
}

// RunBlock calls block with args.
func RunBlock(dst, block *VirtualRegister, args []*VirtualRegister, loc ast.Location) *Instruction {
	i := Primitive(bytecode.OpRunBlock, dst, loc, block)
	i.Varargs = args
	return i
}

// Return returns value from the code object.
func Return(value *VirtualRegister, loc ast.Location) *Instruction {
	return Primitive(bytecode.OpReturn, nil, loc, value)
}

// Throw throws value.
func Throw(value *VirtualRegister, loc ast.Location) *Instruction {
	return Primitive(bytecode.OpThrow, nil, loc, value)
}

// Goto jumps to target.
func Goto(target *BasicBlock, loc ast.Location) *Instruction {
	i := newInst(bytecode.OpGoto, nil, loc)
	i.Target = target
	return i
}

// GotoNextBlockIfTrue continues with the next block if cond is truthy and
// jumps to target otherwise.
func GotoNextBlockIfTrue(cond *VirtualRegister, target *BasicBlock, loc ast.Location) *Instruction {
	i := Primitive(bytecode.OpGotoNextBlockIfTrue, nil, loc, cond)
	i.Target = target
	return i
}
