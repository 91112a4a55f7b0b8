package aeonc_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/ozanh/aeonc"
)

func TestSymbolTableGlobals(t *testing.T) {
	root := NewSymbolTable()
	g, err := root.DefineGlobal("g", nil, false)
	require.NoError(t, err)
	require.Equal(t, ScopeGlobal, g.Scope)
	require.Equal(t, 0, g.Index)
	require.Equal(t, -1, g.Depth)

	h, err := root.DefineGlobal("h", nil, true)
	require.NoError(t, err)
	require.Equal(t, 1, h.Index)
	require.Equal(t, 2, root.NumGlobals())

	_, err = root.DefineGlobal("g", nil, false)
	require.True(t, errors.Is(err, ErrDuplicateDefinition))

	body := root.Fork(false)
	_, err = body.DefineGlobal("x", nil, false)
	require.True(t, errors.Is(err, ErrInternal))

	sym, ok := body.Fork(false).Resolve("g")
	require.True(t, ok)
	require.Same(t, g, sym)
	require.True(t, body.IsGlobal("h"))
	require.False(t, body.IsGlobal("missing"))
	require.Equal(t, 2, body.NumGlobals())
	require.Same(t, root, body.Fork(true).Root())
}

func TestSymbolTableDepth(t *testing.T) {
	root := NewSymbolTable()
	body := root.Fork(false)
	method := body.Fork(false)
	block := method.Fork(true)
	inner := block.Fork(false)

	require.Equal(t, 0, root.Depth())
	require.Equal(t, 0, body.Depth())
	require.Equal(t, 1, method.Depth())
	require.Equal(t, 1, block.Depth())
	require.Equal(t, 2, inner.Depth())

	require.True(t, block.InBlock())
	require.False(t, inner.InBlock())
	require.Same(t, method, block.Parent(false))
	require.Same(t, body, block.Parent(true))
	require.Same(t, block, inner.Parent(true))

	ids := map[int]bool{}
	for _, st := range []*SymbolTable{root, body, method, block, inner} {
		require.False(t, ids[st.ID()])
		ids[st.ID()] = true
	}
}

func TestSymbolTableLocals(t *testing.T) {
	method := NewSymbolTable().Fork(false).Fork(false)
	require.NoError(t, method.SetParams([]string{"a", "b"}, []Type{nil, nil}))
	require.Equal(t, 2, method.NumParams())
	require.Error(t, method.SetParams([]string{"c"}, []Type{nil}))

	x, err := method.DefineLocal("x", nil, false)
	require.NoError(t, err)
	require.Equal(t, 2, x.Index)
	require.Equal(t, ScopeLocal, x.Scope)
	require.Equal(t, 1, x.Depth)

	_, err = method.DefineLocal("a", nil, false)
	require.True(t, errors.Is(err, ErrDuplicateDefinition))

	// blocks continue numbering in the slots of their code object and
	// siblings reuse them
	blk := method.Fork(true)
	require.Error(t, blk.SetParams([]string{"p"}, []Type{nil}))
	y, err := blk.DefineLocal("y", nil, true)
	require.NoError(t, err)
	require.Equal(t, 3, y.Index)
	shadow, err := blk.DefineLocal("x", nil, true)
	require.NoError(t, err)
	require.Equal(t, 4, shadow.Index)
	_, err = blk.DefineLocal("y", nil, true)
	require.True(t, errors.Is(err, ErrDuplicateDefinition))

	sibling := method.Fork(true)
	z, err := sibling.DefineLocal("z", nil, false)
	require.NoError(t, err)
	require.Equal(t, 3, z.Index)

	require.Equal(t, 5, method.MaxSymbols())
	require.Equal(t, 5, blk.MaxSymbols())

	sym, ok := blk.Resolve("x")
	require.True(t, ok)
	require.Same(t, shadow, sym)
	sym, ok = blk.Resolve("a")
	require.True(t, ok)
	require.Nil(t, sym.Original)
	require.False(t, sym.Captured)

	_, ok = blk.ResolveLocal("a")
	require.False(t, ok)

	names := []string{}
	for _, s := range method.Symbols() {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"a", "b", "x"}, names)
}

func TestSymbolTableCapture(t *testing.T) {
	body := NewSymbolTable().Fork(false)
	n, err := body.DefineLocal("n", nil, true)
	require.NoError(t, err)

	closure := body.Fork(false)
	alias, ok := closure.Resolve("n")
	require.True(t, ok)
	require.NotSame(t, n, alias)
	require.Same(t, n, alias.Original)
	require.Same(t, n, alias.Target())
	require.Same(t, n, n.Target())
	require.Equal(t, n.Index, alias.Index)
	require.Equal(t, 0, alias.Depth)
	require.True(t, alias.Mutable)
	require.True(t, n.Captured)

	again, ok := closure.Resolve("n")
	require.True(t, ok)
	require.Same(t, alias, again)

	// an alias of an alias still points at the defining symbol
	nested := closure.Fork(true).Fork(false)
	deep, ok := nested.Resolve("n")
	require.True(t, ok)
	require.Same(t, n, deep.Original)
	require.Equal(t, 2, nested.Depth())

	_, ok = closure.ResolveLocal("n")
	require.False(t, ok)
	_, ok = closure.Resolve("missing")
	require.False(t, ok)
}
