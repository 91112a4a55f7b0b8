package aeonc_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/ozanh/aeonc"
	"github.com/ozanh/aeonc/ast"
	"github.com/ozanh/aeonc/bytecode"
	"github.com/ozanh/aeonc/tir"
)

var loc = ast.Location{File: "test", Line: 1, Column: 1}

// diamond builds:
//
//	b0: r0 = true; if r0 -> b1 else b2
//	b1: goto b3
//	b2: goto b3
//	b3: return r0
//	b4: return r0 (unreachable)
func diamond() (*tir.CodeObject, []*tir.BasicBlock) {
	c := tir.NewCodeObject("diamond", loc)
	b0 := c.Entry()
	b1, b2, b3, b4 := c.AddBlock(), c.AddBlock(), c.AddBlock(), c.AddBlock()
	r := c.Registers.Allocate(nil)
	b0.Append(tir.Get(bytecode.OpGetTrue, r, loc))
	b0.Append(tir.GotoNextBlockIfTrue(r, b2, loc))
	b1.Append(tir.Goto(b3, loc))
	b2.Append(tir.Goto(b3, loc))
	b3.Append(tir.Return(r, loc))
	b4.Append(tir.Return(r, loc))
	return c, []*tir.BasicBlock{b0, b1, b2, b3, b4}
}

func TestReachable(t *testing.T) {
	c, blocks := diamond()
	set := Reachable(c)
	require.Equal(t, 4, set.Size())
	for _, b := range blocks[:4] {
		require.True(t, set.Contains(b), b.Label())
	}
	require.False(t, set.Contains(blocks[4]))
}

func TestEliminateDeadCode(t *testing.T) {
	c, blocks := diamond()
	child, _ := diamond()
	c.AddChild(child)

	opt := NewOptimizer(nil)
	require.Equal(t, 2, opt.EliminateDeadCode(c))
	require.Equal(t, blocks[:4], c.Blocks)
	require.Len(t, child.Blocks, 4)
	require.Equal(t, 2, opt.Total())

	// every remaining block is reachable
	for _, code := range []*tir.CodeObject{c, child} {
		set := Reachable(code)
		require.Equal(t, len(code.Blocks), set.Size())
	}
	require.Zero(t, opt.EliminateDeadCode(c))
}

func TestEliminateDeadCodeKeepsHandlers(t *testing.T) {
	c := tir.NewCodeObject("guarded", loc)
	body := c.AddBlock()
	handler := c.AddBlock()
	dead := c.AddBlock()
	deadHandler := c.AddBlock()

	r := c.Registers.Allocate(nil)
	thrown := c.Registers.Allocate(nil)
	c.Entry().Append(tir.Get(bytecode.OpGetNil, r, loc))
	body.Append(tir.Throw(r, loc))
	handler.Append(tir.Return(thrown, loc))
	dead.Append(tir.Return(r, loc))
	deadHandler.Append(tir.Return(thrown, loc))
	c.AddCatchEntry(&tir.CatchEntry{Start: body, End: body, Handler: handler, Register: thrown})
	c.AddCatchEntry(&tir.CatchEntry{Start: dead, End: dead, Handler: deadHandler, Register: thrown})

	removed := NewOptimizer(nil).EliminateDeadCode(c)
	require.Equal(t, 2, removed)
	require.Equal(t, []*tir.BasicBlock{c.Entry(), body, handler}, c.Blocks)
	require.Len(t, c.CatchTable, 1)
	require.Same(t, handler, c.CatchTable[0].Handler)
}

// recursive builds method name(a, b) whose body ends with a tail send of
// message to the receiver produced by recv.
func recursive(name, message string, recv func(c *tir.CodeObject, b *tir.BasicBlock) *tir.VirtualRegister) *tir.CodeObject {
	c := tir.NewCodeObject(name, loc)
	c.Method = true
	c.Arguments = []string{"a", "b"}
	c.Required = 2
	c.Locals = 3
	b := c.Entry()
	a := c.Registers.Allocate(nil)
	bb := c.Registers.Allocate(nil)
	b.Append(tir.GetLocal(a, 1, loc))
	b.Append(tir.GetLocal(bb, 2, loc))
	self := recv(c, b)
	dst := c.Registers.Allocate(nil)
	send := tir.SendObjectMessage(dst, self, message, []*tir.VirtualRegister{bb, a}, nil, loc)
	send.Tail = true
	b.Append(send)
	b.Append(tir.Return(dst, loc))
	c.AddBlock()
	return c
}

func selfReceiver(c *tir.CodeObject, b *tir.BasicBlock) *tir.VirtualRegister {
	r := c.Registers.Allocate(nil)
	b.Append(tir.GetLocal(r, 0, loc))
	return r
}

func otherReceiver(c *tir.CodeObject, b *tir.BasicBlock) *tir.VirtualRegister {
	r := c.Registers.Allocate(nil)
	b.Append(tir.Get(bytecode.OpGetObjectPrototype, r, loc))
	return r
}

func TestEliminateTailCalls(t *testing.T) {
	t.Run("self", func(t *testing.T) {
		c := recursive("swap", "swap", selfReceiver)
		opt := NewOptimizer(nil)
		require.Equal(t, 1, opt.EliminateTailCalls(c))
		require.Equal(t, []bytecode.Opcode{
			bytecode.OpGetLocal,
			bytecode.OpGetLocal,
			bytecode.OpGetLocal,
			bytecode.OpSetLocal,
			bytecode.OpSetLocal,
			bytecode.OpGoto,
		}, c.Opcodes())
		last := c.Entry().Last()
		require.Same(t, c.Entry(), last.Target)
		require.Equal(t, []int{2}, c.Entry().Instructions[4].Ints)
	})

	t.Run("other message", func(t *testing.T) {
		c := recursive("swap", "other", selfReceiver)
		require.Equal(t, 1, NewOptimizer(nil).EliminateTailCalls(c))
		last := c.Entry().Last()
		require.Equal(t, bytecode.OpTailCall, last.Op)
		require.Equal(t, "other", last.Literal.String)
		require.Len(t, last.Varargs, 2)
	})

	t.Run("other receiver", func(t *testing.T) {
		c := recursive("swap", "swap", otherReceiver)
		require.Equal(t, 1, NewOptimizer(nil).EliminateTailCalls(c))
		require.Equal(t, bytecode.OpTailCall, c.Entry().Last().Op)
	})

	t.Run("block", func(t *testing.T) {
		c := recursive("block", "block", selfReceiver)
		c.Method = false
		require.Equal(t, 1, NewOptimizer(nil).EliminateTailCalls(c))
		require.Equal(t, bytecode.OpTailCall, c.Entry().Last().Op)
	})

	// nested blocks reading parent slots keep the frame of the method alive
	capture := func(c *tir.CodeObject, levels, depth int) {
		parent := c
		for i := 0; i < levels; i++ {
			child := tir.NewCodeObject("block", loc)
			child.Locals = 1
			parent.AddChild(child)
			parent = child
		}
		r := parent.Registers.Allocate(nil)
		parent.Entry().Append(tir.GetParentLocal(r, depth, 1, loc))
		parent.Entry().Append(tir.Return(r, loc))
	}

	t.Run("captured argument", func(t *testing.T) {
		c := recursive("swap", "swap", selfReceiver)
		capture(c, 1, 1)
		require.Equal(t, 1, NewOptimizer(nil).EliminateTailCalls(c))
		last := c.Entry().Last()
		require.Equal(t, bytecode.OpTailCall, last.Op)
		require.Equal(t, "swap", last.Literal.String)
	})

	t.Run("captured by nested block", func(t *testing.T) {
		c := recursive("swap", "swap", selfReceiver)
		capture(c, 2, 2)
		require.Equal(t, 1, NewOptimizer(nil).EliminateTailCalls(c))
		require.Equal(t, bytecode.OpTailCall, c.Entry().Last().Op)
	})

	t.Run("block locals only", func(t *testing.T) {
		c := recursive("swap", "swap", selfReceiver)
		capture(c, 2, 1)
		require.Equal(t, 1, NewOptimizer(nil).EliminateTailCalls(c))
		last := c.Entry().Last()
		require.Equal(t, bytecode.OpGoto, last.Op)
		require.Same(t, c.Entry(), last.Target)
	})

	t.Run("not returned", func(t *testing.T) {
		c := recursive("swap", "swap", selfReceiver)
		ret := c.Entry().Last()
		ret.Args[0] = c.Registers.Allocate(nil)
		require.Zero(t, NewOptimizer(nil).EliminateTailCalls(c))
	})

	t.Run("not tail", func(t *testing.T) {
		c := recursive("swap", "swap", selfReceiver)
		insts := c.Entry().Instructions
		insts[len(insts)-2].Tail = false
		require.Zero(t, NewOptimizer(nil).EliminateTailCalls(c))
	})
}

func TestOptimizerTrace(t *testing.T) {
	var buf bytes.Buffer
	opt := NewOptimizer(&buf)
	c, _ := diamond()
	opt.EliminateDeadCode(c)
	opt.EliminateTailCalls(recursive("swap", "swap", selfReceiver))
	out := buf.String()
	require.Contains(t, out, "DeadCode diamond {")
	require.Contains(t, out, ". diamond removed 1 blocks")
	require.Contains(t, out, "TailCallElimination swap {")
	require.Contains(t, out, "self call -> Goto b0")
	require.True(t, opt.Duration() >= 0)
}
