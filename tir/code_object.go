// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package tir

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/ozanh/aeonc/ast"
	"github.com/ozanh/aeonc/bytecode"
)

// BasicBlock is an ordered sequence of instructions. A block that does not
// end with a terminator falls through to the next block in program order.
type BasicBlock struct {
	// ID is unique within the owning code object and never reused.
	ID           int
	Instructions []*Instruction
}

// Label returns the printable name of the block.
func (b *BasicBlock) Label() string {
	return "b" + strconv.Itoa(b.ID)
}

// Append adds an instruction to the end of the block.
func (b *BasicBlock) Append(inst *Instruction) {
	b.Instructions = append(b.Instructions, inst)
}

// Last returns the last instruction or nil.
func (b *BasicBlock) Last() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	return b.Instructions[len(b.Instructions)-1]
}

// Terminated reports whether the last instruction is a terminator.
func (b *BasicBlock) Terminated() bool {
	last := b.Last()
	return last != nil && last.Terminator()
}

// CatchEntry guards the blocks from Start to End, both inclusive in program
// order, with Handler. Register receives the thrown value.
type CatchEntry struct {
	Start    *BasicBlock
	End      *BasicBlock
	Handler  *BasicBlock
	Register *VirtualRegister
}

// CodeObject is a compiled method, block or module body.
type CodeObject struct {
	Name     string
	Location ast.Location
	// Arguments holds argument names; self is not an argument.
	Arguments []string
	Required  int
	Rest      bool
	// Locals is the number of local slots, including self and arguments.
	Locals     int
	Registers  VirtualRegisters
	Blocks     []*BasicBlock
	CatchTable []*CatchEntry
	Code       []*CodeObject
	Parent     *CodeObject
	// Method is set for code objects defined with `method`; self-recursive
	// tail calls are only rewritten for methods.
	Method bool

	nextBlock int
}

// NewCodeObject returns a code object with an empty entry block.
func NewCodeObject(name string, loc ast.Location) *CodeObject {
	c := &CodeObject{Name: name, Location: loc}
	c.AddBlock()
	return c
}

// Entry returns the entry block.
func (c *CodeObject) Entry() *BasicBlock {
	return c.Blocks[0]
}

// AddBlock appends a new block in program order.
func (c *CodeObject) AddBlock() *BasicBlock {
	b := &BasicBlock{ID: c.nextBlock}
	c.nextBlock++
	c.Blocks = append(c.Blocks, b)
	return b
}

// AddChild adds a nested code object and returns its index.
func (c *CodeObject) AddChild(child *CodeObject) int {
	child.Parent = c
	c.Code = append(c.Code, child)
	return len(c.Code) - 1
}

// ChildIndex returns the index of child or -1.
func (c *CodeObject) ChildIndex(child *CodeObject) int {
	for i, cc := range c.Code {
		if cc == child {
			return i
		}
	}
	return -1
}

// BlockIndex returns the program order position of b or -1.
func (c *CodeObject) BlockIndex(b *BasicBlock) int {
	for i, bb := range c.Blocks {
		if bb == b {
			return i
		}
	}
	return -1
}

// AddCatchEntry appends a catch entry. Nested entries must be added
// innermost first.
func (c *CodeObject) AddCatchEntry(e *CatchEntry) {
	c.CatchTable = append(c.CatchTable, e)
}

// covers reports whether e guards the block at program position idx.
func (c *CodeObject) covers(e *CatchEntry, idx int) bool {
	start, end := c.BlockIndex(e.Start), c.BlockIndex(e.End)
	return start >= 0 && end >= 0 && idx >= start && idx <= end
}

// CatchEntriesFor returns the entries guarding b, innermost first. An empty
// result means a throw from b leaves the code object unhandled.
func (c *CodeObject) CatchEntriesFor(b *BasicBlock) []*CatchEntry {
	idx := c.BlockIndex(b)
	if idx < 0 {
		return nil
	}
	var out []*CatchEntry
	for _, e := range c.CatchTable {
		if c.covers(e, idx) {
			out = append(out, e)
		}
	}
	return out
}

// Successors returns the blocks control may transfer to from b: jump
// targets, the fall-through block and catch handlers guarding b. A throw
// only reaches the innermost handler, but a call inside the guarded range
// may throw as well, so all guarding handlers are returned.
func (c *CodeObject) Successors(b *BasicBlock) []*BasicBlock {
	idx := c.BlockIndex(b)
	if idx < 0 {
		return nil
	}
	var out []*BasicBlock
	for _, inst := range b.Instructions {
		if inst.Target != nil {
			out = append(out, inst.Target)
		}
	}
	if !b.Terminated() && idx+1 < len(c.Blocks) {
		out = append(out, c.Blocks[idx+1])
	}
	for _, e := range c.CatchEntriesFor(b) {
		out = append(out, e.Handler)
	}
	return out
}

// RemoveBlocks removes the blocks for which keep returns false. Catch
// entries are shrunk to the surviving blocks of their range and dropped if
// none survive or their handler was removed.
func (c *CodeObject) RemoveBlocks(keep func(*BasicBlock) bool) (removed int) {
	type span struct{ start, end int }
	spans := make([]span, len(c.CatchTable))
	for i, e := range c.CatchTable {
		spans[i] = span{c.BlockIndex(e.Start), c.BlockIndex(e.End)}
	}
	kept := make([]bool, len(c.Blocks))
	for i, b := range c.Blocks {
		kept[i] = i == 0 || keep(b)
	}
	var table []*CatchEntry
	for i, e := range c.CatchTable {
		var first, last *BasicBlock
		for j := spans[i].start; j >= 0 && j <= spans[i].end; j++ {
			if kept[j] {
				if first == nil {
					first = c.Blocks[j]
				}
				last = c.Blocks[j]
			}
		}
		h := c.BlockIndex(e.Handler)
		if first == nil || h < 0 || !kept[h] {
			continue
		}
		e.Start, e.End = first, last
		table = append(table, e)
	}
	c.CatchTable = table

	blocks := c.Blocks[:0]
	for i, b := range c.Blocks {
		if kept[i] {
			blocks = append(blocks, b)
		} else {
			removed++
		}
	}
	for i := len(blocks); i < len(c.Blocks); i++ {
		c.Blocks[i] = nil
	}
	c.Blocks = blocks
	return
}

// InstructionCount returns the number of instructions in all blocks.
func (c *CodeObject) InstructionCount() int {
	n := 0
	for _, b := range c.Blocks {
		n += len(b.Instructions)
	}
	return n
}

// Walk calls fn for c and all nested code objects, depth first.
func (c *CodeObject) Walk(fn func(*CodeObject)) {
	fn(c)
	for _, child := range c.Code {
		child.Walk(fn)
	}
}

// Fprint writes the code object in a human readable form.
func (c *CodeObject) Fprint(w io.Writer) {
	c.fprint(w, "")
}

func (c *CodeObject) String() string {
	var buf bytes.Buffer
	c.Fprint(&buf)
	return buf.String()
}

func (c *CodeObject) fprint(w io.Writer, indent string) {
	_, _ = fmt.Fprintf(w, "%sCode %s Args:%v Locals:%d Registers:%d\n",
		indent, c.Name, c.Arguments, c.Locals, c.Registers.Len())
	for _, b := range c.Blocks {
		_, _ = fmt.Fprintf(w, "%s%s:\n", indent, b.Label())
		for _, inst := range b.Instructions {
			_, _ = fmt.Fprintf(w, "%s    %s\n", indent, inst)
		}
	}
	for _, e := range c.CatchTable {
		_, _ = fmt.Fprintf(w, "%sCatch %s..%s -> %s %s\n", indent,
			e.Start.Label(), e.End.Label(), e.Handler.Label(), e.Register)
	}
	for _, child := range c.Code {
		child.fprint(w, indent+"\t")
	}
}

// Opcodes returns the opcodes of all blocks in program order.
func (c *CodeObject) Opcodes() []bytecode.Opcode {
	var out []bytecode.Opcode
	for _, b := range c.Blocks {
		for _, inst := range b.Instructions {
			out = append(out, inst.Op)
		}
	}
	return out
}
