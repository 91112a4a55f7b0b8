// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package ast

import (
	"fmt"
	"strings"
	"unicode"
)

// TypeExpr is a type annotation in the source.
type TypeExpr interface {
	Node
	String() string
	typeNode()
}

// TypeName is a named type with optional type arguments, as in
// `std::map::Map!(String, Integer)`. The names `Self`, `Dynamic`, `Nil` and
// `Void` denote the builtin type variants.
type TypeName struct {
	Base
	Name      string
	Arguments []TypeExpr
}

// OptionalTypeExpr is `?T`.
type OptionalTypeExpr struct {
	Base
	Type TypeExpr
}

// BlockTypeExpr is `do (A, B) !! E -> R`.
type BlockTypeExpr struct {
	Base
	Arguments []TypeExpr
	Throws    TypeExpr
	Returns   TypeExpr
}

func (*TypeName) typeNode()         {}
func (*OptionalTypeExpr) typeNode() {}
func (*BlockTypeExpr) typeNode()    {}

func (t *TypeName) String() string {
	if len(t.Arguments) == 0 {
		return t.Name
	}
	return t.Name + "!(" + joinTypes(t.Arguments) + ")"
}

func (t *OptionalTypeExpr) String() string {
	return "?" + t.Type.String()
}

func (t *BlockTypeExpr) String() string {
	var sb strings.Builder
	sb.WriteString("do (")
	sb.WriteString(joinTypes(t.Arguments))
	sb.WriteString(")")
	if t.Throws != nil {
		sb.WriteString(" !! ")
		sb.WriteString(t.Throws.String())
	}
	if t.Returns != nil {
		sb.WriteString(" -> ")
		sb.WriteString(t.Returns.String())
	}
	return sb.String()
}

func joinTypes(types []TypeExpr) string {
	s := make([]string, len(types))
	for i, t := range types {
		s[i] = t.String()
	}
	return strings.Join(s, ", ")
}

// ParseType parses a type annotation. loc is attached to every node.
func ParseType(src string, loc Location) (TypeExpr, error) {
	p := &typeParser{src: []rune(src), loc: loc}
	t, err := p.parseType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, p.errorf("unexpected %q", string(p.src[p.pos:]))
	}
	return t, nil
}

type typeParser struct {
	src []rune
	pos int
	loc Location
}

func (p *typeParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: invalid type %q: %s", p.loc,
		string(p.src), fmt.Sprintf(format, args...))
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *typeParser) accept(tok string) bool {
	p.skipSpace()
	r := []rune(tok)
	if p.pos+len(r) > len(p.src) {
		return false
	}
	for i := range r {
		if p.src[p.pos+i] != r[i] {
			return false
		}
	}
	p.pos += len(r)
	return true
}

func (p *typeParser) expect(tok string) error {
	if !p.accept(tok) {
		return p.errorf("expected %q at %d", tok, p.pos)
	}
	return nil
}

func (p *typeParser) ident() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		if r == '_' || unicode.IsLetter(r) || (p.pos > start && unicode.IsDigit(r)) {
			p.pos++
			continue
		}
		break
	}
	return string(p.src[start:p.pos])
}

func (p *typeParser) parseType() (TypeExpr, error) {
	if p.accept("?") {
		inner, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &OptionalTypeExpr{Base: Base{p.loc}, Type: inner}, nil
	}
	save := p.pos
	if name := p.ident(); name == "do" {
		return p.parseBlock()
	}
	p.pos = save
	return p.parseName()
}

func (p *typeParser) parseName() (TypeExpr, error) {
	parts := []string{p.ident()}
	if parts[0] == "" {
		return nil, p.errorf("expected type name at %d", p.pos)
	}
	for p.accept("::") {
		part := p.ident()
		if part == "" {
			return nil, p.errorf("expected name after '::'")
		}
		parts = append(parts, part)
	}
	t := &TypeName{Base: Base{p.loc}, Name: strings.Join(parts, "::")}
	if p.accept("!(") {
		args, err := p.parseList()
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, p.errorf("empty type argument list")
		}
		t.Arguments = args
	}
	return t, nil
}

// parseList parses `T, U)` after the opening parenthesis.
func (p *typeParser) parseList() ([]TypeExpr, error) {
	var out []TypeExpr
	if p.accept(")") {
		return out, nil
	}
	for {
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if p.accept(")") {
			return out, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

func (p *typeParser) parseBlock() (TypeExpr, error) {
	t := &BlockTypeExpr{Base: Base{p.loc}}
	if p.accept("(") {
		args, err := p.parseList()
		if err != nil {
			return nil, err
		}
		t.Arguments = args
	}
	if p.accept("!!") {
		throws, err := p.parseType()
		if err != nil {
			return nil, err
		}
		t.Throws = throws
	}
	if p.accept("->") {
		ret, err := p.parseType()
		if err != nil {
			return nil, err
		}
		t.Returns = ret
	}
	return t, nil
}
