package aeonc_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/ozanh/aeonc"
	"github.com/ozanh/aeonc/bytecode"
	"github.com/ozanh/aeonc/tir"
)

// guardedCode builds:
//
//	b0: r0 = 1
//	b1: r2 = block; throw r0        (guarded by b2, thrown value in r1)
//	b2: return r1
func guardedCode() *tir.CodeObject {
	c := tir.NewCodeObject("main", loc)
	c.Locals = 1
	b1, b2 := c.AddBlock(), c.AddBlock()
	r0 := c.Registers.Allocate(nil)
	r1 := c.Registers.Allocate(nil)
	r2 := c.Registers.Allocate(nil)

	child := tir.NewCodeObject("<block>", loc)
	child.Arguments = []string{"x"}
	child.Required = 1
	child.Locals = 1
	cr := child.Registers.Allocate(nil)
	child.Entry().Append(tir.GetLocal(cr, 0, loc))
	child.Entry().Append(tir.Return(cr, loc))
	c.AddChild(child)

	c.Entry().Append(tir.SetLiteral(r0, bytecode.Integer(1), loc))
	b1.Append(tir.SetBlock(r2, child, loc))
	b1.Append(tir.Throw(r0, loc))
	b2.Append(tir.Return(r1, loc))
	c.AddCatchEntry(&tir.CatchEntry{Start: b1, End: b1, Handler: b2, Register: r1})
	return c
}

func TestGenerateCode(t *testing.T) {
	mod, err := GenerateCode("app::main", guardedCode())
	require.NoError(t, err)
	require.NoError(t, mod.Validate())

	require.Equal(t, 0, mod.Name)
	require.Equal(t, []bytecode.Literal{
		bytecode.String("app::main"),
		bytecode.String("main"),
		bytecode.Integer(1),
		bytecode.String("<block>"),
		bytecode.String("x"),
	}, mod.Literals)

	body := mod.Body
	require.Equal(t, 1, body.Name)
	require.Equal(t, 3, body.Registers)
	require.Equal(t, []int{0, 1, 3}, body.Blocks)
	require.Equal(t, []bytecode.Instruction{
		{Op: bytecode.OpSetInteger, Line: 1, Operands: []int{0, 2}},
		{Op: bytecode.OpSetBlock, Line: 1, Operands: []int{2, 0}},
		{Op: bytecode.OpThrow, Line: 1, Operands: []int{0}},
		{Op: bytecode.OpReturn, Line: 1, Operands: []int{1}},
	}, body.Instructions)

	// End is exclusive
	require.Equal(t, []bytecode.CatchEntry{
		{Start: 1, End: 3, Handler: 3, Register: 1},
	}, body.CatchTable)

	require.Len(t, body.Code, 1)
	child := body.Code[0]
	require.Equal(t, 3, child.Name)
	require.Equal(t, []int{4}, child.Arguments)
	require.Equal(t, 1, child.Required)
}

func TestGenerateCodeDeterministic(t *testing.T) {
	a, err := GenerateCode("main", guardedCode())
	require.NoError(t, err)
	b, err := GenerateCode("main", guardedCode())
	require.NoError(t, err)

	da, err := a.MarshalBinary()
	require.NoError(t, err)
	db, err := b.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, da, db)
}

func TestGenerateCodeKeywords(t *testing.T) {
	c := tir.NewCodeObject("main", loc)
	recv := c.Registers.Allocate(nil)
	arg := c.Registers.Allocate(nil)
	dst := c.Registers.Allocate(nil)
	c.Entry().Append(tir.Get(bytecode.OpGetToplevel, recv, loc))
	c.Entry().Append(tir.SetLiteral(arg, bytecode.Integer(7), loc))
	c.Entry().Append(tir.SendObjectMessage(dst, recv, "sub", nil,
		[]tir.Keyword{{Name: "b", Register: arg}}, loc))
	c.Entry().Append(tir.Return(dst, loc))

	mod, err := GenerateCode("main", c)
	require.NoError(t, err)
	send := mod.Body.Instructions[2]
	require.Equal(t, bytecode.OpSendObjectMessage, send.Op)
	// dst, receiver, message, 0 positional, 1 keyword (name, register)
	require.Equal(t, []int{2, 0, 2, 0, 1, 3, 1}, send.Operands)
	require.Equal(t, bytecode.String("sub"), mod.Literals[2])
	require.Equal(t, bytecode.String("b"), mod.Literals[3])
}

func TestGenerateCodeErrors(t *testing.T) {
	serializationError := func(t *testing.T, err error) *bytecode.SerializationError {
		t.Helper()
		require.Error(t, err)
		var serr *bytecode.SerializationError
		require.True(t, errors.As(err, &serr), err.Error())
		return serr
	}

	t.Run("nil body", func(t *testing.T) {
		mod, err := GenerateCode("main", nil)
		require.Nil(t, mod)
		serializationError(t, err)
	})

	t.Run("foreign register", func(t *testing.T) {
		other := tir.NewCodeObject("other", loc)
		c := tir.NewCodeObject("main", loc)
		c.Registers.Allocate(nil)
		c.Entry().Append(tir.Return(other.Registers.Allocate(nil), loc))
		serr := serializationError(t, func() error { _, err := GenerateCode("main", c); return err }())
		require.Equal(t, "main", serr.Code)
		require.Equal(t, 0, serr.Offset)
	})

	t.Run("foreign target", func(t *testing.T) {
		other := tir.NewCodeObject("other", loc)
		c := tir.NewCodeObject("main", loc)
		c.Entry().Append(tir.Goto(other.Entry(), loc))
		_, err := GenerateCode("main", c)
		serializationError(t, err)
	})

	t.Run("foreign code", func(t *testing.T) {
		c := tir.NewCodeObject("main", loc)
		r := c.Registers.Allocate(nil)
		c.Entry().Append(tir.SetBlock(r, tir.NewCodeObject("orphan", loc), loc))
		c.Entry().Append(tir.Return(r, loc))
		_, err := GenerateCode("main", c)
		serializationError(t, err)
	})

	t.Run("foreign catch handler", func(t *testing.T) {
		other := tir.NewCodeObject("other", loc)
		c := tir.NewCodeObject("main", loc)
		r := c.Registers.Allocate(nil)
		c.Entry().Append(tir.Get(bytecode.OpGetNil, r, loc))
		c.Entry().Append(tir.Return(r, loc))
		c.AddCatchEntry(&tir.CatchEntry{Start: c.Entry(), End: c.Entry(),
			Handler: other.Entry(), Register: r})
		serr := serializationError(t, func() error { _, err := GenerateCode("main", c); return err }())
		require.Equal(t, -1, serr.Offset)
	})

	t.Run("child error", func(t *testing.T) {
		c := guardedCode()
		child := c.Code[0]
		child.Entry().Instructions[1].Args[0] = c.Registers.Get(0)
		serr := serializationError(t, func() error { _, err := GenerateCode("main", c); return err }())
		require.Equal(t, "<block>", serr.Code)
		require.Equal(t, 1, serr.Offset)
	})
}
