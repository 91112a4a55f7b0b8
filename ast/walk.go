// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package ast

// Inspect traverses the tree rooted at node in depth-first order. fn is
// called for each node; if it returns false, the children of that node are
// skipped. Type annotations are not visited.
func Inspect(node Node, fn func(Node) bool) {
	if node == nil || isNilNode(node) || !fn(node) {
		return
	}
	walkBody := func(b *Body) {
		if b != nil {
			Inspect(b, fn)
		}
	}
	walkExprs := func(exprs []Expr) {
		for _, e := range exprs {
			Inspect(e, fn)
		}
	}
	walkArgs := func(args []*Argument) {
		for _, a := range args {
			Inspect(a, fn)
		}
	}
	switch n := node.(type) {
	case *Module:
		for _, imp := range n.Imports {
			Inspect(imp, fn)
		}
		walkBody(n.Body)
	case *Body:
		walkExprs(n.Exprs)
	case *Argument:
		if n.Default != nil {
			Inspect(n.Default, fn)
		}
	case *Object:
		walkBody(n.Body)
	case *ReopenObject:
		walkBody(n.Body)
	case *Trait:
		walkBody(n.Body)
	case *TraitImplementation:
		walkBody(n.Body)
	case *Method:
		walkArgs(n.Arguments)
		walkBody(n.Body)
	case *Block:
		walkArgs(n.Arguments)
		walkBody(n.Body)
	case *DefineVariable:
		Inspect(n.Value, fn)
	case *ReassignVariable:
		Inspect(n.Value, fn)
	case *Constant:
		if n.Receiver != nil {
			Inspect(n.Receiver, fn)
		}
	case *Send:
		if n.Receiver != nil {
			Inspect(n.Receiver, fn)
		}
		walkExprs(n.Arguments)
	case *KeywordArgument:
		Inspect(n.Value, fn)
	case *ArrayLiteral:
		walkExprs(n.Values)
	case *HashMapLiteral:
		for i := range n.Keys {
			Inspect(n.Keys[i], fn)
			Inspect(n.Values[i], fn)
		}
	case *Return:
		if n.Value != nil {
			Inspect(n.Value, fn)
		}
	case *Throw:
		Inspect(n.Value, fn)
	case *Try:
		Inspect(n.Expr, fn)
		walkBody(n.Else)
	case *If:
		Inspect(n.Condition, fn)
		walkBody(n.Then)
		walkBody(n.Else)
	case *While:
		Inspect(n.Condition, fn)
		walkBody(n.Body)
	case *TypeCast:
		Inspect(n.Expr, fn)
	}
}

// isNilNode reports typed nil pointers stored in a Node interface.
func isNilNode(node Node) bool {
	switch n := node.(type) {
	case *Body:
		return n == nil
	case *Module:
		return n == nil
	}
	return false
}
