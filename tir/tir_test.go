package tir_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozanh/aeonc/ast"
	"github.com/ozanh/aeonc/bytecode"
	. "github.com/ozanh/aeonc/tir"
)

func TestVirtualRegisters(t *testing.T) {
	var pool, other VirtualRegisters
	r0 := pool.Allocate(nil)
	r1 := pool.Allocate(nil)
	require.Equal(t, 0, r0.ID)
	require.Equal(t, 1, r1.ID)
	require.Equal(t, 2, pool.Len())
	require.Equal(t, "r1", r1.String())
	require.True(t, pool.Contains(r1))
	require.Nil(t, pool.Get(2))

	foreign := other.Allocate(nil)
	require.False(t, pool.Contains(foreign))
	require.False(t, pool.Contains(nil))
}

func TestSuccessors(t *testing.T) {
	var loc ast.Location
	c := NewCodeObject("main", loc)
	entry := c.Entry()
	then := c.AddBlock()
	els := c.AddBlock()
	join := c.AddBlock()

	cond := c.Registers.Allocate(nil)
	entry.Append(Get(bytecode.OpGetTrue, cond, loc))
	entry.Append(GotoNextBlockIfTrue(cond, els, loc))
	then.Append(Goto(join, loc))
	els.Append(Get(bytecode.OpGetNil, c.Registers.Allocate(nil), loc))
	join.Append(Return(cond, loc))

	require.Equal(t, []*BasicBlock{els, then}, c.Successors(entry))
	require.Equal(t, []*BasicBlock{join}, c.Successors(then))
	require.Equal(t, []*BasicBlock{join}, c.Successors(els))
	require.Empty(t, c.Successors(join))
	require.True(t, join.Terminated())
	require.False(t, els.Terminated())
}

func TestCatchEntries(t *testing.T) {
	var loc ast.Location
	c := NewCodeObject("main", loc)
	b1 := c.AddBlock()
	b2 := c.AddBlock()
	inner := c.AddBlock()
	outer := c.AddBlock()
	errReg := c.Registers.Allocate(nil)

	c.AddCatchEntry(&CatchEntry{Start: b1, End: b1, Handler: inner, Register: errReg})
	c.AddCatchEntry(&CatchEntry{Start: b1, End: b2, Handler: outer, Register: errReg})

	entries := c.CatchEntriesFor(b1)
	require.Len(t, entries, 2)
	require.Equal(t, inner, entries[0].Handler)
	require.Len(t, c.CatchEntriesFor(b2), 1)
	require.Empty(t, c.CatchEntriesFor(c.Entry()))

	b1.Append(Throw(errReg, loc))
	require.Equal(t, []*BasicBlock{inner, outer}, c.Successors(b1))
}

func TestRemoveBlocks(t *testing.T) {
	var loc ast.Location
	c := NewCodeObject("main", loc)
	b1 := c.AddBlock()
	b2 := c.AddBlock()
	b3 := c.AddBlock()
	h := c.AddBlock()
	r := c.Registers.Allocate(nil)
	c.AddCatchEntry(&CatchEntry{Start: b1, End: b3, Handler: h, Register: r})
	c.AddCatchEntry(&CatchEntry{Start: b2, End: b2, Handler: b3, Register: r})

	n := c.RemoveBlocks(func(b *BasicBlock) bool { return b != b1 && b != b3 })
	require.Equal(t, 2, n)
	require.Equal(t, []*BasicBlock{c.Entry(), b2, h}, c.Blocks)
	require.Len(t, c.CatchTable, 1)
	require.Equal(t, b2, c.CatchTable[0].Start)
	require.Equal(t, b2, c.CatchTable[0].End)

	// the entry block always survives
	c.RemoveBlocks(func(*BasicBlock) bool { return false })
	require.Len(t, c.Blocks, 1)
	require.Empty(t, c.CatchTable)

	// block ids are never reused
	require.Equal(t, 5, c.AddBlock().ID)
}

func TestInstructionString(t *testing.T) {
	var loc ast.Location
	c := NewCodeObject("main", loc)
	self := c.Registers.Allocate(nil)
	arg := c.Registers.Allocate(nil)
	dst := c.Registers.Allocate(nil)

	send := SendObjectMessage(dst, self, "add", []*VirtualRegister{arg},
		[]Keyword{{Name: "by", Register: arg}}, loc)
	send.Tail = true
	require.Equal(t, `r2 = SendObjectMessage r0, "add", r1, by: r1 (tail)`, send.String())
	require.Equal(t, []*VirtualRegister{self, arg, arg}, send.Reads())

	require.Equal(t, "SetLocal r1, 3", SetLocal(3, arg, loc).String())
	require.Equal(t, "r0 = SetInteger 7",
		SetLiteral(self, bytecode.Integer(7), loc).String())
	require.Equal(t, bytecode.OpSetFloat, SetLiteral(self, bytecode.Float(1), loc).Op)
	require.Equal(t, bytecode.OpSetString, SetLiteral(self, bytecode.String(""), loc).Op)

	child := NewCodeObject("block", loc)
	c.AddChild(child)
	require.Equal(t, c, child.Parent)
	require.Equal(t, 0, c.ChildIndex(child))
	c.Entry().Append(SetBlock(dst, child, loc))
	c.Entry().Append(Return(dst, loc))

	out := c.String()
	require.True(t, strings.Contains(out, "r2 = SetBlock <block>"), out)
	require.True(t, strings.Contains(out, "\tCode block"), out)
	require.Equal(t, []bytecode.Opcode{bytecode.OpSetBlock, bytecode.OpReturn}, c.Opcodes())
	require.Equal(t, 2, c.InstructionCount())

	var names []string
	c.Walk(func(co *CodeObject) { names = append(names, co.Name) })
	require.Equal(t, []string{"main", "block"}, names)
}
