package ast_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/ozanh/aeonc/ast"
)

func TestParseType(t *testing.T) {
	testCases := []struct {
		src  string
		want string
	}{
		{"Integer", "Integer"},
		{"std::map::Map!(String, ?Integer)", "std::map::Map!(String, ?Integer)"},
		{"??T", "??T"},
		{"do", "do ()"},
		{"do (Integer, String) !! Error -> Boolean", "do (Integer, String) !! Error -> Boolean"},
		{"do -> Self", "do () -> Self"},
		{" Array!( do (T) -> T ) ", "Array!(do (T) -> T)"},
		{"Document", "Document"},
	}
	for _, tC := range testCases {
		typ, err := ParseType(tC.src, Location{})
		require.NoError(t, err, tC.src)
		require.Equal(t, tC.want, typ.String())
	}

	for _, src := range []string{"", "Foo!()", "Foo::", "Foo bar", "do (A", "?"} {
		_, err := ParseType(src, Location{File: "x", Line: 1})
		require.Error(t, err, src)
	}
}

func TestParseTypeStructure(t *testing.T) {
	typ, err := ParseType("?Map!(K, do (V) !! E)", Location{Line: 3})
	require.NoError(t, err)
	opt := typ.(*OptionalTypeExpr)
	name := opt.Type.(*TypeName)
	require.Equal(t, "Map", name.Name)
	require.Len(t, name.Arguments, 2)
	blk := name.Arguments[1].(*BlockTypeExpr)
	require.Len(t, blk.Arguments, 1)
	require.Equal(t, "E", blk.Throws.String())
	require.Nil(t, blk.Returns)
	require.Equal(t, 3, blk.Loc().Line)
}

const sampleModule = `
module: app::main
file: main.aeon
options:
  tail_calls: "false"
imports:
  - std::io
  - path: std::map
    symbols: [Map, {name: new_map, as: nm}]
body:
  - kind: object
    name: Box
    type_parameters:
      - {name: T, bounds: [Equal]}
    body:
      - kind: method
        name: get
        returns: T
        body: ["@value"]
  - kind: let
    name: x
    mutable: true
    value: 10
  - kind: send
    receiver: x
    message: "+"
    arguments: [1, {kind: keyword, name: other, value: 2.5}]
  - kind: if
    condition: true
    then:
      - {kind: string, value: "yes"}
    else:
      - nil
  - kind: try
    expr: {kind: send, message: fail}
    else_argument: error
    else: [error]
  - kind: method
    name: required
`

func TestLoadYAML(t *testing.T) {
	m, err := LoadYAML("ignored.yml", []byte(sampleModule))
	require.NoError(t, err)
	require.Equal(t, "app::main", m.Name)
	require.Equal(t, []string{"app", "main"}, m.QualifiedName())
	require.Len(t, m.Options, 1)
	require.Equal(t, "tail_calls", m.Options[0].Key)
	require.Equal(t, "false", m.Options[0].Value)

	require.Len(t, m.Imports, 2)
	require.Equal(t, "std::io", m.Imports[0].ModuleName())
	require.Len(t, m.Imports[1].Symbols, 2)
	require.Equal(t, "nm", m.Imports[1].Symbols[1].BoundName())
	require.Equal(t, "Map", m.Imports[1].Symbols[0].BoundName())

	require.Len(t, m.Body.Exprs, 6)
	obj := m.Body.Exprs[0].(*Object)
	require.Equal(t, "Box", obj.Name)
	require.Equal(t, "T", obj.TypeParameters[0].Name)
	require.Equal(t, "Equal", obj.TypeParameters[0].Bounds[0].String())
	get := obj.Body.Exprs[0].(*Method)
	require.False(t, get.Required())
	require.Equal(t, "T", get.Returns.String())
	require.Equal(t, "value", get.Body.Exprs[0].(*Attribute).Name)

	let := m.Body.Exprs[1].(*DefineVariable)
	require.True(t, let.Mutable)
	require.Equal(t, int64(10), let.Value.(*IntegerLiteral).Value)

	send := m.Body.Exprs[2].(*Send)
	require.Equal(t, "x", send.Receiver.(*Identifier).Name)
	kw := send.Arguments[1].(*KeywordArgument)
	require.Equal(t, 2.5, kw.Value.(*FloatLiteral).Value)

	cond := m.Body.Exprs[3].(*If)
	require.True(t, cond.Condition.(*BoolLiteral).Value)
	require.Equal(t, "yes", cond.Then.Exprs[0].(*StringLiteral).Value)
	require.IsType(t, &NilLiteral{}, cond.Else.Exprs[0])

	try := m.Body.Exprs[4].(*Try)
	require.Equal(t, "error", try.ElseArgument)
	require.Nil(t, try.Expr.(*Send).Receiver)

	require.True(t, m.Body.Exprs[5].(*Method).Required())

	loc := send.Loc()
	require.Equal(t, "main.aeon", loc.File)
	require.Greater(t, loc.Line, 1)
}

func TestLoadYAMLErrors(t *testing.T) {
	testCases := []struct {
		src    string
		errMsg string
	}{
		{"", "empty document"},
		{"body: []", `missing field "module"`},
		{"module: a\nextra: 1", `unknown field "extra"`},
		{"module: a\nbody:\n  - {kind: nope}", `unknown kind "nope"`},
		{"module: a\nbody:\n  - {name: x}", `missing field "kind"`},
		{"module: a\nbody:\n  - {kind: let, name: x}", `missing field "value"`},
		{"module: a\nbody:\n  - {kind: send, message: x, bogus: 1}", `unknown field "bogus"`},
		{"module: a\nbody:\n  - {kind: cast, expr: 1, type: \"Foo!(\"}", "invalid type"},
		{"module: a\nbody: {}", "expected a sequence"},
	}
	for _, tC := range testCases {
		_, err := LoadYAML("t.yml", []byte(tC.src))
		require.Error(t, err, tC.src)
		require.True(t, strings.Contains(err.Error(), tC.errMsg),
			"%q does not contain %q", err.Error(), tC.errMsg)
	}
}

func TestInspect(t *testing.T) {
	m, err := LoadYAML("t.yml", []byte(sampleModule))
	require.NoError(t, err)

	var sends, methods int
	Inspect(m, func(n Node) bool {
		switch n.(type) {
		case *Send:
			sends++
		case *Method:
			methods++
		}
		return true
	})
	require.Equal(t, 2, sends)
	require.Equal(t, 2, methods)

	// skipping children of objects hides the nested method
	methods = 0
	Inspect(m, func(n Node) bool {
		if _, ok := n.(*Method); ok {
			methods++
		}
		_, isObject := n.(*Object)
		return !isObject
	})
	require.Equal(t, 1, methods)
}
