// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"fmt"

	"github.com/ozanh/aeonc/bytecode"
	"github.com/ozanh/aeonc/tir"
)

// GenerateCode flattens the code object tree rooted at body into a
// bytecode module named name. The module name is the first literal of the
// pool; literals are then added in traversal order, so equal inputs yield
// equal output. References to registers, blocks or code objects not owned
// by the referring code object fail with a *bytecode.SerializationError.
func GenerateCode(name string, body *tir.CodeObject) (*bytecode.CompiledModule, error) {
	if body == nil {
		return nil, &bytecode.SerializationError{Code: name, Offset: -1,
			Message: "module has no body"}
	}
	g := &generator{pool: bytecode.NewLiterals()}
	nameIdx := g.pool.Add(bytecode.String(name))
	compiled, err := g.code(body)
	if err != nil {
		return nil, err
	}
	g.pool.Freeze()
	mod := &bytecode.CompiledModule{
		Name:     nameIdx,
		Literals: g.pool.Slice(),
		Body:     compiled,
	}
	if err := mod.Validate(); err != nil {
		return nil, err
	}
	return mod, nil
}

type generator struct {
	pool *bytecode.Literals
}

func (g *generator) code(c *tir.CodeObject) (*bytecode.CompiledCode, error) {
	out := &bytecode.CompiledCode{
		Name:      g.pool.Add(bytecode.String(c.Name)),
		Line:      c.Location.Line,
		Required:  c.Required,
		Rest:      c.Rest,
		Locals:    c.Locals,
		Registers: c.Registers.Len(),
	}
	for _, a := range c.Arguments {
		out.Arguments = append(out.Arguments, g.pool.Add(bytecode.String(a)))
	}

	offsets := make(map[*tir.BasicBlock]int, len(c.Blocks))
	n := 0
	for _, b := range c.Blocks {
		offsets[b] = n
		out.Blocks = append(out.Blocks, n)
		n += len(b.Instructions)
	}

	serr := func(off int, format string, args ...interface{}) error {
		return &bytecode.SerializationError{Code: c.Name, Offset: off,
			Message: fmt.Sprintf(format, args...)}
	}
	reg := func(off int, r *tir.VirtualRegister) (int, error) {
		if !c.Registers.Contains(r) {
			return 0, serr(off, "register %v is not owned by the code object", r)
		}
		return r.ID, nil
	}

	off := 0
	for _, b := range c.Blocks {
		for _, inst := range b.Instructions {
			operands, err := g.operands(c, inst, offsets, off, serr, reg)
			if err != nil {
				return nil, err
			}
			out.Instructions = append(out.Instructions, bytecode.Instruction{
				Op:       inst.Op,
				Line:     inst.Location.Line,
				Operands: operands,
			})
			off++
		}
	}

	for _, e := range c.CatchTable {
		start, ok1 := offsets[e.Start]
		end, ok2 := offsets[e.End]
		handler, ok3 := offsets[e.Handler]
		if !ok1 || !ok2 || !ok3 {
			return nil, serr(-1, "catch entry refers to a block of another code object")
		}
		r, err := reg(-1, e.Register)
		if err != nil {
			return nil, err
		}
		out.CatchTable = append(out.CatchTable, bytecode.CatchEntry{
			Start:    start,
			End:      end + len(e.End.Instructions),
			Handler:  handler,
			Register: r,
		})
	}

	for _, child := range c.Code {
		cc, err := g.code(child)
		if err != nil {
			return nil, err
		}
		out.Code = append(out.Code, cc)
	}
	return out, nil
}

func (g *generator) operands(
	c *tir.CodeObject,
	inst *tir.Instruction,
	offsets map[*tir.BasicBlock]int,
	off int,
	serr func(int, string, ...interface{}) error,
	reg func(int, *tir.VirtualRegister) (int, error),
) ([]int, error) {

	var out []int
	if !bytecode.ValidOpcode(inst.Op) {
		return nil, serr(off, "unknown opcode %d", inst.Op)
	}
	if bytecode.OpcodeWrites[inst.Op] {
		r, err := reg(off, inst.Register)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	args, ints := inst.Args, inst.Ints
	for _, kind := range bytecode.OpcodeOperands[inst.Op] {
		switch kind {
		case bytecode.OperandRegister:
			if len(args) == 0 {
				return nil, serr(off, "%s: missing register operand", inst.Name())
			}
			r, err := reg(off, args[0])
			if err != nil {
				return nil, err
			}
			args = args[1:]
			out = append(out, r)
		case bytecode.OperandLiteral:
			idx, err := g.pool.TryAdd(inst.Literal)
			if err != nil {
				return nil, serr(off, "%s: %v", inst.Name(), err)
			}
			out = append(out, idx)
		case bytecode.OperandInt:
			if len(ints) == 0 {
				return nil, serr(off, "%s: missing immediate operand", inst.Name())
			}
			out = append(out, ints[0])
			ints = ints[1:]
		case bytecode.OperandTarget:
			target, ok := offsets[inst.Target]
			if inst.Target == nil || !ok {
				return nil, serr(off, "%s: jump target is not a block of the code object",
					inst.Name())
			}
			out = append(out, target)
		case bytecode.OperandCode:
			idx := c.ChildIndex(inst.Code)
			if inst.Code == nil || idx < 0 {
				return nil, serr(off, "%s: code object is not a child", inst.Name())
			}
			out = append(out, idx)
		case bytecode.OperandRegisters:
			out = append(out, len(inst.Varargs))
			for _, v := range inst.Varargs {
				r, err := reg(off, v)
				if err != nil {
					return nil, err
				}
				out = append(out, r)
			}
		case bytecode.OperandKeywords:
			out = append(out, len(inst.Keywords))
			for _, kw := range inst.Keywords {
				r, err := reg(off, kw.Register)
				if err != nil {
					return nil, err
				}
				out = append(out, g.pool.Add(bytecode.String(kw.Name)), r)
			}
		}
	}
	if len(args) > 0 || len(ints) > 0 {
		return nil, serr(off, "%s: unexpected operands", inst.Name())
	}
	return out, nil
}

func codeGeneration(s *State, m *Module) error {
	mod, err := GenerateCode(m.Name, m.Body)
	if err != nil {
		return err
	}
	m.Compiled = mod
	if s.trace != nil && s.Options.TraceCompiler {
		s.printTrace("BYTECODE", m.Name, "literals:", len(mod.Literals))
	}
	return nil
}

func serialization(s *State, m *Module) error {
	data, err := m.Compiled.MarshalBinary()
	if err != nil {
		return err
	}
	m.Bytes = data
	return nil
}
