package bytecode_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/ozanh/aeonc/bytecode"
)

func TestLiteralsDedup(t *testing.T) {
	p := NewLiterals()
	require.False(t, p.Include(String("foo")))
	_, err := p.Get(String("foo"))
	require.True(t, errors.Is(err, ErrLiteralNotFound))

	for i := 0; i < 5; i++ {
		require.Equal(t, 0, p.Add(String("foo")))
	}
	require.Equal(t, 1, p.Len())
	require.True(t, p.Include(String("foo")))

	idx, err := p.Get(String("foo"))
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestLiteralsFirstComeIndex(t *testing.T) {
	p := NewLiterals()
	require.Equal(t, 0, p.Add(String("a")))
	require.Equal(t, 1, p.Add(Integer(1)))
	require.Equal(t, 2, p.Add(Float(1)))
	require.Equal(t, 3, p.Add(String("1")))
	require.Equal(t, 1, p.Add(Integer(1)))
	require.Equal(t, 0, p.Add(String("a")))

	require.Equal(t, []Literal{
		String("a"), Integer(1), Float(1), String("1"),
	}, p.Slice())
}

func TestLiteralsNaN(t *testing.T) {
	p := NewLiterals()
	a := p.Add(Float(math.NaN()))
	b := p.Add(Float(math.NaN()))
	require.Equal(t, a, b)
	require.Equal(t, 1, p.Len())
}

func TestLiteralsFreeze(t *testing.T) {
	p := NewLiterals()
	p.Add(String("x"))
	p.Freeze()
	require.True(t, p.Frozen())

	idx, err := p.TryAdd(String("x"))
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	_, err = p.TryAdd(String("y"))
	require.True(t, errors.Is(err, ErrLiteralPoolFrozen))
	require.Panics(t, func() { p.Add(Integer(2)) })
	require.Equal(t, 1, p.Len())
}

func TestLiteralsSliceIsCopy(t *testing.T) {
	p := NewLiterals()
	p.Add(String("x"))
	s := p.Slice()
	s[0] = String("y")
	lit, ok := p.At(0)
	require.True(t, ok)
	require.Equal(t, String("x"), lit)
	_, ok = p.At(1)
	require.False(t, ok)
}

func TestLiteralsErrors(t *testing.T) {
	p := NewLiterals()
	_, err := p.Get(Integer(7))
	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, "LiteralNotFoundError", e.Name)
	require.Equal(t, "LiteralNotFoundError: integer 7", err.Error())
	require.Same(t, ErrLiteralNotFound, errors.Unwrap(err))

	p.Freeze()
	_, err = p.TryAdd(String("y"))
	require.True(t, errors.As(err, &e))
	require.Equal(t, "LiteralPoolFrozenError", e.Name)
	require.True(t, errors.Is(err, ErrLiteralPoolFrozen))
	require.False(t, errors.Is(err, ErrLiteralNotFound))

	require.Equal(t, "LiteralPoolFrozenError: literal pool is frozen",
		ErrLiteralPoolFrozen.Error())
	require.Equal(t, "error", (&Error{}).Error())
}
