// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package bytecode

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Instruction is a single flattened instruction with resolved operands.
type Instruction struct {
	Op       Opcode
	Line     int
	Operands []int
}

// CatchEntry guards the instructions in [Start, End) with the handler at
// Handler. The thrown value is stored in Register.
type CatchEntry struct {
	Start    int
	End      int
	Handler  int
	Register int
}

// CompiledCode is the flattened form of one code object.
type CompiledCode struct {
	// Name is the literal index of the code object name.
	Name int
	Line int
	// Arguments holds literal indexes of argument names, in order.
	Arguments []int
	Required  int
	Rest      bool
	Locals    int
	Registers int
	// Blocks holds the start offset of each basic block.
	Blocks       []int
	Instructions []Instruction
	CatchTable   []CatchEntry
	Code         []*CompiledCode
}

// CompiledModule is a serializable bytecode module.
type CompiledModule struct {
	// Name is the literal index of the qualified module name.
	Name     int
	Literals []Literal
	Body     *CompiledCode
}

// SerializationError reports an instruction or table entry that references
// something not present in its owning code object. It always indicates a
// bug in an earlier compilation stage.
type SerializationError struct {
	Code    string
	Offset  int
	Message string
}

func (e *SerializationError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("SerializationError: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("SerializationError: %s at %04d: %s",
		e.Code, e.Offset, e.Message)
}

// Validate checks that every operand of the module references an existing
// register, literal, target or child code object.
func (m *CompiledModule) Validate() error {
	if m.Body == nil {
		return &SerializationError{Code: "<module>", Offset: -1,
			Message: "missing body"}
	}
	if err := checkLiteral(m.Literals, m.Name, "<module>", -1); err != nil {
		return err
	}
	return m.Body.validate(m.Literals)
}

func checkLiteral(lits []Literal, idx int, code string, off int) error {
	if idx < 0 || idx >= len(lits) {
		return &SerializationError{Code: code, Offset: off,
			Message: "literal index " + strconv.Itoa(idx) + " out of range"}
	}
	return nil
}

func (c *CompiledCode) name(lits []Literal) string {
	if c.Name >= 0 && c.Name < len(lits) {
		return lits[c.Name].String
	}
	return "<code#" + strconv.Itoa(c.Name) + ">"
}

func (c *CompiledCode) validate(lits []Literal) error {
	name := c.name(lits)
	if err := checkLiteral(lits, c.Name, name, -1); err != nil {
		return err
	}
	for _, arg := range c.Arguments {
		if err := checkLiteral(lits, arg, name, -1); err != nil {
			return err
		}
	}
	serr := func(off int, format string, args ...interface{}) error {
		return &SerializationError{Code: name, Offset: off,
			Message: fmt.Sprintf(format, args...)}
	}
	reg := func(off, r int) error {
		if r < 0 || r >= c.Registers {
			return serr(off, "register r%d not allocated (registers: %d)",
				r, c.Registers)
		}
		return nil
	}
	n := len(c.Instructions)
	for off, inst := range c.Instructions {
		if !ValidOpcode(inst.Op) {
			return serr(off, "unknown opcode %d", inst.Op)
		}
		ops := inst.Operands
		i := 0
		next := func() (int, error) {
			if i >= len(ops) {
				return 0, serr(off, "%s: missing operand", OpcodeNames[inst.Op])
			}
			v := ops[i]
			i++
			return v, nil
		}
		if OpcodeWrites[inst.Op] {
			v, err := next()
			if err != nil {
				return err
			}
			if err := reg(off, v); err != nil {
				return err
			}
		}
		for _, kind := range OpcodeOperands[inst.Op] {
			v, err := next()
			if err != nil {
				return err
			}
			switch kind {
			case OperandRegister:
				err = reg(off, v)
			case OperandLiteral:
				err = checkLiteral(lits, v, name, off)
			case OperandInt:
				if v < 0 {
					err = serr(off, "negative immediate %d", v)
				}
			case OperandTarget:
				if v < 0 || v > n {
					err = serr(off, "jump target %d out of range", v)
				}
			case OperandCode:
				if v < 0 || v >= len(c.Code) {
					err = serr(off, "code object %d not found", v)
				}
			case OperandRegisters:
				for j := 0; j < v && err == nil; j++ {
					var r int
					if r, err = next(); err == nil {
						err = reg(off, r)
					}
				}
			case OperandKeywords:
				for j := 0; j < v && err == nil; j++ {
					var lit, r int
					if lit, err = next(); err != nil {
						break
					}
					if err = checkLiteral(lits, lit, name, off); err != nil {
						break
					}
					if r, err = next(); err == nil {
						err = reg(off, r)
					}
				}
			}
			if err != nil {
				return err
			}
		}
		if i != len(ops) {
			return serr(off, "%s: %d extra operands",
				OpcodeNames[inst.Op], len(ops)-i)
		}
	}
	for _, e := range c.CatchTable {
		if e.Start < 0 || e.Start > e.End || e.End > n ||
			e.Handler < 0 || e.Handler >= n {
			return serr(-1, "invalid catch entry %+v", e)
		}
		if err := reg(-1, e.Register); err != nil {
			return err
		}
	}
	for _, child := range c.Code {
		if err := child.validate(lits); err != nil {
			return err
		}
	}
	return nil
}

// Fprint writes the module in a human readable form.
func (m *CompiledModule) Fprint(w io.Writer) {
	name := "<invalid>"
	if m.Name >= 0 && m.Name < len(m.Literals) {
		name = m.Literals[m.Name].String
	}
	_, _ = fmt.Fprintf(w, "Module %s\n", name)
	_, _ = fmt.Fprintf(w, "Literals:\n")
	for i, l := range m.Literals {
		_, _ = fmt.Fprintf(w, "%4d: %-7s %s\n", i, l.Kind, l.Format())
	}
	if m.Body != nil {
		m.Body.fprint(w, m.Literals, "")
	}
}

func (m *CompiledModule) String() string {
	var buf bytes.Buffer
	m.Fprint(&buf)
	return buf.String()
}

func (c *CompiledCode) fprint(w io.Writer, lits []Literal, indent string) {
	_, _ = fmt.Fprintf(w, "%sCode %s Args:%d Required:%d Rest:%t Locals:%d Registers:%d\n",
		indent, c.name(lits), len(c.Arguments), c.Required, c.Rest,
		c.Locals, c.Registers)
	_, _ = fmt.Fprintf(w, "%sBlocks:%v\n", indent, c.Blocks)
	for i, inst := range c.Instructions {
		_, _ = fmt.Fprintf(w, "%s%04d %-20s", indent, i, OpcodeNames[inst.Op])
		for _, op := range inst.Operands {
			_, _ = fmt.Fprint(w, " ", strconv.Itoa(op))
		}
		_, _ = fmt.Fprintln(w)
	}
	for _, e := range c.CatchTable {
		_, _ = fmt.Fprintf(w, "%sCatch [%04d, %04d) -> %04d r%d\n",
			indent, e.Start, e.End, e.Handler, e.Register)
	}
	for _, child := range c.Code {
		child.fprint(w, lits, indent+"\t")
	}
}
