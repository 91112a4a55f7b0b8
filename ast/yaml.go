// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package ast

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAML decodes a module from the YAML interchange format.
//
// A document is a mapping with the keys `module`, `file`, `options`,
// `imports` and `body`. Expressions are mappings with a `kind` key naming
// the node kind. Scalars are shorthands: integers, floats, booleans, null and
// `nil` become literals, `self` and `@name` refer to the receiver and its
// attributes, other plain strings become identifiers.
//
//	module: main
//	body:
//	  - kind: let
//	    name: x
//	    value: 10
//	  - kind: send
//	    receiver: x
//	    message: "+"
//	    arguments: [1]
func LoadYAML(filename string, src []byte) (*Module, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return nil, fmt.Errorf("ast: parse %s: %w", filename, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("ast: parse %s: empty document", filename)
	}
	l := &loader{file: filename}
	return l.module(doc.Content[0])
}

// DecodeYAML reads all of r and decodes it with LoadYAML.
func DecodeYAML(filename string, r io.Reader) (*Module, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return LoadYAML(filename, src)
}

type loader struct {
	file string
}

func (l *loader) loc(n *yaml.Node) Location {
	return Location{File: l.file, Line: n.Line, Column: n.Column}
}

func (l *loader) base(n *yaml.Node) Base {
	return Base{Location: l.loc(n)}
}

func (l *loader) errorf(n *yaml.Node, format string, args ...interface{}) error {
	return fmt.Errorf("ast: %s: %s", l.loc(n), fmt.Sprintf(format, args...))
}

// fields returns the values of mapping n and rejects keys not in allowed.
func (l *loader) fields(n *yaml.Node, allowed ...string) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, l.errorf(n, "expected a mapping")
	}
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		if !contains(allowed, key.Value) {
			return nil, l.errorf(key, "unknown field %q", key.Value)
		}
		if _, ok := out[key.Value]; ok {
			return nil, l.errorf(key, "duplicate field %q", key.Value)
		}
		out[key.Value] = value
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (l *loader) str(n *yaml.Node) (string, error) {
	if n == nil {
		return "", nil
	}
	if n.Kind != yaml.ScalarNode {
		return "", l.errorf(n, "expected a scalar")
	}
	return n.Value, nil
}

func (l *loader) requiredStr(f map[string]*yaml.Node, parent *yaml.Node, key string) (string, error) {
	n, ok := f[key]
	if !ok {
		return "", l.errorf(parent, "missing field %q", key)
	}
	s, err := l.str(n)
	if err == nil && s == "" {
		err = l.errorf(n, "field %q is empty", key)
	}
	return s, err
}

func (l *loader) boolean(n *yaml.Node) (bool, error) {
	if n == nil {
		return false, nil
	}
	var v bool
	if err := n.Decode(&v); err != nil {
		return false, l.errorf(n, "%v", err)
	}
	return v, nil
}

func (l *loader) seq(n *yaml.Node) ([]*yaml.Node, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, l.errorf(n, "expected a sequence")
	}
	return n.Content, nil
}

func (l *loader) module(n *yaml.Node) (*Module, error) {
	f, err := l.fields(n, "module", "file", "options", "imports", "body")
	if err != nil {
		return nil, err
	}
	if file, ok := f["file"]; ok {
		if l.file, err = l.str(file); err != nil {
			return nil, err
		}
	}
	m := &Module{Base: l.base(n)}
	if m.Name, err = l.requiredStr(f, n, "module"); err != nil {
		return nil, err
	}
	if opts, ok := f["options"]; ok {
		if m.Options, err = l.options(opts); err != nil {
			return nil, err
		}
	}
	imports, err := l.seq(f["imports"])
	if err != nil {
		return nil, err
	}
	for _, in := range imports {
		imp, err := l.importNode(in)
		if err != nil {
			return nil, err
		}
		m.Imports = append(m.Imports, imp)
	}
	if m.Body, err = l.body(f["body"], n); err != nil {
		return nil, err
	}
	return m, nil
}

func (l *loader) options(n *yaml.Node) ([]*CompilerOption, error) {
	if n.Kind != yaml.MappingNode {
		return nil, l.errorf(n, "expected a mapping")
	}
	var out []*CompilerOption
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, value := n.Content[i], n.Content[i+1]
		v, err := l.str(value)
		if err != nil {
			return nil, err
		}
		out = append(out, &CompilerOption{
			Base:  l.base(key),
			Key:   key.Value,
			Value: v,
		})
	}
	return out, nil
}

func (l *loader) importNode(n *yaml.Node) (*Import, error) {
	if n.Kind == yaml.ScalarNode {
		return &Import{Base: l.base(n), Path: strings.Split(n.Value, "::")}, nil
	}
	f, err := l.fields(n, "path", "symbols", "glob")
	if err != nil {
		return nil, err
	}
	path, err := l.requiredStr(f, n, "path")
	if err != nil {
		return nil, err
	}
	imp := &Import{Base: l.base(n), Path: strings.Split(path, "::")}
	if imp.Glob, err = l.boolean(f["glob"]); err != nil {
		return nil, err
	}
	symbols, err := l.seq(f["symbols"])
	if err != nil {
		return nil, err
	}
	for _, sn := range symbols {
		sym := &ImportSymbol{Base: l.base(sn)}
		if sn.Kind == yaml.ScalarNode {
			sym.Name = sn.Value
		} else {
			sf, err := l.fields(sn, "name", "as")
			if err != nil {
				return nil, err
			}
			if sym.Name, err = l.requiredStr(sf, sn, "name"); err != nil {
				return nil, err
			}
			if sym.Alias, err = l.str(sf["as"]); err != nil {
				return nil, err
			}
		}
		imp.Symbols = append(imp.Symbols, sym)
	}
	return imp, nil
}

// body decodes an expression list. A missing list yields an empty body
// located at parent.
func (l *loader) body(n *yaml.Node, parent *yaml.Node) (*Body, error) {
	if n == nil {
		return &Body{Base: l.base(parent)}, nil
	}
	items, err := l.seq(n)
	if err != nil {
		return nil, err
	}
	b := &Body{Base: l.base(n)}
	for _, item := range items {
		e, err := l.expr(item)
		if err != nil {
			return nil, err
		}
		b.Exprs = append(b.Exprs, e)
	}
	return b, nil
}

func (l *loader) optionalBody(n *yaml.Node, parent *yaml.Node) (*Body, error) {
	if n == nil {
		return nil, nil
	}
	return l.body(n, parent)
}

func (l *loader) exprs(n *yaml.Node) ([]Expr, error) {
	items, err := l.seq(n)
	if err != nil {
		return nil, err
	}
	var out []Expr
	for _, item := range items {
		e, err := l.expr(item)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *loader) optionalExpr(n *yaml.Node) (Expr, error) {
	if n == nil {
		return nil, nil
	}
	return l.expr(n)
}

func (l *loader) typeExpr(n *yaml.Node) (TypeExpr, error) {
	if n == nil {
		return nil, nil
	}
	s, err := l.str(n)
	if err != nil {
		return nil, err
	}
	return ParseType(s, l.loc(n))
}

func (l *loader) typeExprs(n *yaml.Node) ([]TypeExpr, error) {
	items, err := l.seq(n)
	if err != nil {
		return nil, err
	}
	var out []TypeExpr
	for _, item := range items {
		t, err := l.typeExpr(item)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (l *loader) typeParameters(n *yaml.Node) ([]*TypeParameter, error) {
	items, err := l.seq(n)
	if err != nil {
		return nil, err
	}
	var out []*TypeParameter
	for _, item := range items {
		tp := &TypeParameter{Base: l.base(item)}
		if item.Kind == yaml.ScalarNode {
			tp.Name = item.Value
		} else {
			f, err := l.fields(item, "name", "bounds")
			if err != nil {
				return nil, err
			}
			if tp.Name, err = l.requiredStr(f, item, "name"); err != nil {
				return nil, err
			}
			if tp.Bounds, err = l.typeExprs(f["bounds"]); err != nil {
				return nil, err
			}
		}
		out = append(out, tp)
	}
	return out, nil
}

func (l *loader) arguments(n *yaml.Node) ([]*Argument, error) {
	items, err := l.seq(n)
	if err != nil {
		return nil, err
	}
	var out []*Argument
	for _, item := range items {
		arg := &Argument{Base: l.base(item)}
		if item.Kind == yaml.ScalarNode {
			arg.Name = item.Value
		} else {
			f, err := l.fields(item, "name", "type", "default", "rest", "mutable")
			if err != nil {
				return nil, err
			}
			if arg.Name, err = l.requiredStr(f, item, "name"); err != nil {
				return nil, err
			}
			if arg.Type, err = l.typeExpr(f["type"]); err != nil {
				return nil, err
			}
			if arg.Default, err = l.optionalExpr(f["default"]); err != nil {
				return nil, err
			}
			if arg.Rest, err = l.boolean(f["rest"]); err != nil {
				return nil, err
			}
			if arg.Mutable, err = l.boolean(f["mutable"]); err != nil {
				return nil, err
			}
		}
		out = append(out, arg)
	}
	return out, nil
}

var exprFields = map[string][]string{
	"object":     {"name", "type_parameters", "body"},
	"reopen":     {"name", "body"},
	"trait":      {"name", "type_parameters", "requires", "body"},
	"impl":       {"trait", "for", "body"},
	"method":     {"name", "type_parameters", "arguments", "returns", "throws", "body"},
	"block":      {"arguments", "returns", "throws", "body"},
	"let":        {"name", "type", "value", "mutable"},
	"assign":     {"name", "value"},
	"identifier": {"name"},
	"attribute":  {"name"},
	"constant":   {"name", "receiver"},
	"global":     {"name"},
	"self":       {},
	"send":       {"receiver", "message", "arguments", "type_arguments"},
	"keyword":    {"name", "value"},
	"integer":    {"value"},
	"float":      {"value"},
	"string":     {"value"},
	"true":       {},
	"false":      {},
	"nil":        {},
	"array":      {"values"},
	"hashmap":    {"entries"},
	"return":     {"value"},
	"throw":      {"value"},
	"try":        {"expr", "else_argument", "else"},
	"if":         {"condition", "then", "else"},
	"while":      {"condition", "body"},
	"cast":       {"expr", "type"},
}

// ExprKinds returns the node kinds accepted by LoadYAML, sorted.
func ExprKinds() []string {
	out := make([]string, 0, len(exprFields))
	for k := range exprFields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (l *loader) scalar(n *yaml.Node) (Expr, error) {
	b := l.base(n)
	switch n.ShortTag() {
	case "!!int":
		var v int64
		if err := n.Decode(&v); err != nil {
			return nil, l.errorf(n, "%v", err)
		}
		return &IntegerLiteral{Base: b, Value: v}, nil
	case "!!float":
		var v float64
		if err := n.Decode(&v); err != nil {
			return nil, l.errorf(n, "%v", err)
		}
		return &FloatLiteral{Base: b, Value: v}, nil
	case "!!bool":
		var v bool
		if err := n.Decode(&v); err != nil {
			return nil, l.errorf(n, "%v", err)
		}
		return &BoolLiteral{Base: b, Value: v}, nil
	case "!!null":
		return &NilLiteral{Base: b}, nil
	case "!!str":
		switch n.Value {
		case "self":
			return &Self{Base: b}, nil
		case "nil":
			return &NilLiteral{Base: b}, nil
		}
		if strings.HasPrefix(n.Value, "@") && len(n.Value) > 1 {
			return &Attribute{Base: b, Name: n.Value[1:]}, nil
		}
		return &Identifier{Base: b, Name: n.Value}, nil
	}
	return nil, l.errorf(n, "unsupported scalar %s", n.ShortTag())
}

func (l *loader) expr(n *yaml.Node) (Expr, error) {
	if n.Kind == yaml.ScalarNode {
		return l.scalar(n)
	}
	if n.Kind != yaml.MappingNode {
		return nil, l.errorf(n, "expected an expression")
	}
	var kind string
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "kind" {
			kind = n.Content[i+1].Value
		}
	}
	allowed, ok := exprFields[kind]
	if !ok {
		if kind == "" {
			return nil, l.errorf(n, "missing field \"kind\"")
		}
		return nil, l.errorf(n, "unknown kind %q", kind)
	}
	f, err := l.fields(n, append([]string{"kind"}, allowed...)...)
	if err != nil {
		return nil, err
	}
	b := l.base(n)
	switch kind {
	case "object":
		e := &Object{Base: b}
		if e.Name, err = l.requiredStr(f, n, "name"); err != nil {
			return nil, err
		}
		if e.TypeParameters, err = l.typeParameters(f["type_parameters"]); err != nil {
			return nil, err
		}
		e.Body, err = l.body(f["body"], n)
		return e, err
	case "reopen":
		e := &ReopenObject{Base: b}
		if e.Name, err = l.requiredStr(f, n, "name"); err != nil {
			return nil, err
		}
		e.Body, err = l.body(f["body"], n)
		return e, err
	case "trait":
		e := &Trait{Base: b}
		if e.Name, err = l.requiredStr(f, n, "name"); err != nil {
			return nil, err
		}
		if e.TypeParameters, err = l.typeParameters(f["type_parameters"]); err != nil {
			return nil, err
		}
		if e.Requires, err = l.typeExprs(f["requires"]); err != nil {
			return nil, err
		}
		e.Body, err = l.body(f["body"], n)
		return e, err
	case "impl":
		e := &TraitImplementation{Base: b}
		if _, ok := f["trait"]; !ok {
			return nil, l.errorf(n, "missing field %q", "trait")
		}
		if e.Trait, err = l.typeExpr(f["trait"]); err != nil {
			return nil, err
		}
		if e.Object, err = l.requiredStr(f, n, "for"); err != nil {
			return nil, err
		}
		e.Body, err = l.body(f["body"], n)
		return e, err
	case "method":
		e := &Method{Base: b}
		if e.Name, err = l.requiredStr(f, n, "name"); err != nil {
			return nil, err
		}
		if e.TypeParameters, err = l.typeParameters(f["type_parameters"]); err != nil {
			return nil, err
		}
		if e.Arguments, err = l.arguments(f["arguments"]); err != nil {
			return nil, err
		}
		if e.Returns, err = l.typeExpr(f["returns"]); err != nil {
			return nil, err
		}
		if e.Throws, err = l.typeExpr(f["throws"]); err != nil {
			return nil, err
		}
		e.Body, err = l.optionalBody(f["body"], n)
		return e, err
	case "block":
		e := &Block{Base: b}
		if e.Arguments, err = l.arguments(f["arguments"]); err != nil {
			return nil, err
		}
		if e.Returns, err = l.typeExpr(f["returns"]); err != nil {
			return nil, err
		}
		if e.Throws, err = l.typeExpr(f["throws"]); err != nil {
			return nil, err
		}
		e.Body, err = l.body(f["body"], n)
		return e, err
	case "let":
		e := &DefineVariable{Base: b}
		if e.Name, err = l.requiredStr(f, n, "name"); err != nil {
			return nil, err
		}
		if e.Type, err = l.typeExpr(f["type"]); err != nil {
			return nil, err
		}
		if e.Mutable, err = l.boolean(f["mutable"]); err != nil {
			return nil, err
		}
		if _, ok := f["value"]; !ok {
			return nil, l.errorf(n, "missing field %q", "value")
		}
		e.Value, err = l.expr(f["value"])
		return e, err
	case "assign":
		e := &ReassignVariable{Base: b}
		if e.Name, err = l.requiredStr(f, n, "name"); err != nil {
			return nil, err
		}
		if _, ok := f["value"]; !ok {
			return nil, l.errorf(n, "missing field %q", "value")
		}
		e.Value, err = l.expr(f["value"])
		return e, err
	case "identifier":
		e := &Identifier{Base: b}
		e.Name, err = l.requiredStr(f, n, "name")
		return e, err
	case "attribute":
		e := &Attribute{Base: b}
		e.Name, err = l.requiredStr(f, n, "name")
		e.Name = strings.TrimPrefix(e.Name, "@")
		return e, err
	case "constant":
		e := &Constant{Base: b}
		if e.Name, err = l.requiredStr(f, n, "name"); err != nil {
			return nil, err
		}
		e.Receiver, err = l.optionalExpr(f["receiver"])
		return e, err
	case "global":
		e := &Global{Base: b}
		e.Name, err = l.requiredStr(f, n, "name")
		return e, err
	case "self":
		return &Self{Base: b}, nil
	case "send":
		e := &Send{Base: b}
		if e.Receiver, err = l.optionalExpr(f["receiver"]); err != nil {
			return nil, err
		}
		if e.Message, err = l.requiredStr(f, n, "message"); err != nil {
			return nil, err
		}
		if e.Arguments, err = l.exprs(f["arguments"]); err != nil {
			return nil, err
		}
		e.TypeArguments, err = l.typeExprs(f["type_arguments"])
		return e, err
	case "keyword":
		e := &KeywordArgument{Base: b}
		if e.Name, err = l.requiredStr(f, n, "name"); err != nil {
			return nil, err
		}
		if _, ok := f["value"]; !ok {
			return nil, l.errorf(n, "missing field %q", "value")
		}
		e.Value, err = l.expr(f["value"])
		return e, err
	case "integer":
		e := &IntegerLiteral{Base: b}
		err = l.decodeValue(f, n, &e.Value)
		return e, err
	case "float":
		e := &FloatLiteral{Base: b}
		err = l.decodeValue(f, n, &e.Value)
		return e, err
	case "string":
		e := &StringLiteral{Base: b}
		err = l.decodeValue(f, n, &e.Value)
		return e, err
	case "true":
		return &BoolLiteral{Base: b, Value: true}, nil
	case "false":
		return &BoolLiteral{Base: b}, nil
	case "nil":
		return &NilLiteral{Base: b}, nil
	case "array":
		e := &ArrayLiteral{Base: b}
		e.Values, err = l.exprs(f["values"])
		return e, err
	case "hashmap":
		e := &HashMapLiteral{Base: b}
		entries, err := l.seq(f["entries"])
		if err != nil {
			return nil, err
		}
		for _, en := range entries {
			ef, err := l.fields(en, "key", "value")
			if err != nil {
				return nil, err
			}
			if ef["key"] == nil || ef["value"] == nil {
				return nil, l.errorf(en, "entry needs a key and a value")
			}
			k, err := l.expr(ef["key"])
			if err != nil {
				return nil, err
			}
			v, err := l.expr(ef["value"])
			if err != nil {
				return nil, err
			}
			e.Keys = append(e.Keys, k)
			e.Values = append(e.Values, v)
		}
		return e, nil
	case "return":
		e := &Return{Base: b}
		e.Value, err = l.optionalExpr(f["value"])
		return e, err
	case "throw":
		e := &Throw{Base: b}
		if _, ok := f["value"]; !ok {
			return nil, l.errorf(n, "missing field %q", "value")
		}
		e.Value, err = l.expr(f["value"])
		return e, err
	case "try":
		e := &Try{Base: b}
		if _, ok := f["expr"]; !ok {
			return nil, l.errorf(n, "missing field %q", "expr")
		}
		if e.Expr, err = l.expr(f["expr"]); err != nil {
			return nil, err
		}
		if e.ElseArgument, err = l.str(f["else_argument"]); err != nil {
			return nil, err
		}
		e.Else, err = l.optionalBody(f["else"], n)
		return e, err
	case "if":
		e := &If{Base: b}
		if _, ok := f["condition"]; !ok {
			return nil, l.errorf(n, "missing field %q", "condition")
		}
		if e.Condition, err = l.expr(f["condition"]); err != nil {
			return nil, err
		}
		if e.Then, err = l.body(f["then"], n); err != nil {
			return nil, err
		}
		e.Else, err = l.optionalBody(f["else"], n)
		return e, err
	case "while":
		e := &While{Base: b}
		if _, ok := f["condition"]; !ok {
			return nil, l.errorf(n, "missing field %q", "condition")
		}
		if e.Condition, err = l.expr(f["condition"]); err != nil {
			return nil, err
		}
		e.Body, err = l.body(f["body"], n)
		return e, err
	case "cast":
		e := &TypeCast{Base: b}
		if _, ok := f["expr"]; !ok {
			return nil, l.errorf(n, "missing field %q", "expr")
		}
		if e.Expr, err = l.expr(f["expr"]); err != nil {
			return nil, err
		}
		if e.Type, err = l.typeExpr(f["type"]); err != nil {
			return nil, err
		}
		if e.Type == nil {
			return nil, l.errorf(n, "missing field %q", "type")
		}
		return e, nil
	}
	panic("unreachable kind " + kind)
}

func (l *loader) decodeValue(f map[string]*yaml.Node, parent *yaml.Node, dst interface{}) error {
	n, ok := f["value"]
	if !ok {
		return l.errorf(parent, "missing field %q", "value")
	}
	if err := n.Decode(dst); err != nil {
		return l.errorf(n, "%v", err)
	}
	return nil
}
