// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package bytecode

import (
	"fmt"
	"math"
	"strconv"
)

// LiteralKind is the tag written before each literal value.
type LiteralKind byte

// List of literal kinds
const (
	LiteralInteger LiteralKind = iota + 1
	LiteralFloat
	LiteralString
)

func (k LiteralKind) String() string {
	switch k {
	case LiteralInteger:
		return "integer"
	case LiteralFloat:
		return "float"
	case LiteralString:
		return "string"
	}
	return "invalid"
}

// Literal is a constant value referenced by index from instructions.
type Literal struct {
	Kind   LiteralKind
	Int    int64
	Float  float64
	String string
}

// Integer returns an integer literal.
func Integer(v int64) Literal { return Literal{Kind: LiteralInteger, Int: v} }

// Float returns a float literal.
func Float(v float64) Literal { return Literal{Kind: LiteralFloat, Float: v} }

// String returns a string literal.
func String(v string) Literal { return Literal{Kind: LiteralString, String: v} }

// IsZero reports whether l holds no value.
func (l Literal) IsZero() bool { return l.Kind == 0 }

// Format returns a human readable form of the literal.
func (l Literal) Format() string {
	switch l.Kind {
	case LiteralInteger:
		return strconv.FormatInt(l.Int, 10)
	case LiteralFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case LiteralString:
		return strconv.Quote(l.String)
	}
	return "<invalid>"
}

type literalKey struct {
	kind LiteralKind
	i    int64
	bits uint64
	s    string
}

func keyOf(l Literal) literalKey {
	k := literalKey{kind: l.Kind}
	switch l.Kind {
	case LiteralInteger:
		k.i = l.Int
	case LiteralFloat:
		// NaN is not equal to itself, so floats are keyed by bit pattern.
		k.bits = math.Float64bits(l.Float)
	case LiteralString:
		k.s = l.String
	}
	return k
}

// Literals is an insertion ordered, deduplicating pool of literal values.
// The index of a value is assigned on its first insertion and never changes.
type Literals struct {
	values []Literal
	cache  map[literalKey]int
	frozen bool
}

// NewLiterals returns an empty literal pool.
func NewLiterals() *Literals {
	return &Literals{cache: make(map[literalKey]int)}
}

// Add inserts v if absent and returns its index. It panics if the pool is
// frozen and v is new; use TryAdd to get an error instead.
func (p *Literals) Add(v Literal) int {
	idx, err := p.TryAdd(v)
	if err != nil {
		panic(err)
	}
	return idx
}

// TryAdd is like Add but returns ErrLiteralPoolFrozen instead of panicking.
func (p *Literals) TryAdd(v Literal) (int, error) {
	if v.IsZero() {
		return 0, fmt.Errorf("invalid literal kind %d", v.Kind)
	}
	k := keyOf(v)
	if idx, ok := p.cache[k]; ok {
		return idx, nil
	}
	if p.frozen {
		return 0, ErrLiteralPoolFrozen.NewError("cannot add", v.Format())
	}
	idx := len(p.values)
	p.values = append(p.values, v)
	p.cache[k] = idx
	return idx, nil
}

// Include reports whether v was added before.
func (p *Literals) Include(v Literal) bool {
	_, ok := p.cache[keyOf(v)]
	return ok
}

// Get returns the index of v or ErrLiteralNotFound.
func (p *Literals) Get(v Literal) (int, error) {
	if idx, ok := p.cache[keyOf(v)]; ok {
		return idx, nil
	}
	return 0, ErrLiteralNotFound.NewError(v.Kind.String(), v.Format())
}

// At returns the literal at index i.
func (p *Literals) At(i int) (Literal, bool) {
	if i < 0 || i >= len(p.values) {
		return Literal{}, false
	}
	return p.values[i], true
}

// Len returns the number of distinct values.
func (p *Literals) Len() int {
	return len(p.values)
}

// Slice returns a copy of the values in insertion order.
func (p *Literals) Slice() []Literal {
	out := make([]Literal, len(p.values))
	copy(out, p.values)
	return out
}

// Freeze prevents insertion of new values.
func (p *Literals) Freeze() {
	p.frozen = true
}

// Frozen reports whether Freeze was called.
func (p *Literals) Frozen() bool {
	return p.frozen
}
