// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package aeonc

import (
	"io"
	"time"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/emirpasic/gods/stacks/arraystack"

	"github.com/ozanh/aeonc/bytecode"
	"github.com/ozanh/aeonc/tir"
)

// Optimizer rewrites the code objects of a module in place. Optimizations
// only remove or rewrite instructions; they never renumber registers.
type Optimizer struct {
	removedBlocks int
	tailCalls     int
	selfCalls     int
	duration      time.Duration
	indent        int
	trace         io.Writer
}

// NewOptimizer creates an Optimizer. trace may be nil.
func NewOptimizer(trace io.Writer) *Optimizer {
	return &Optimizer{trace: trace}
}

// EliminateDeadCode removes the blocks of code and its children that are
// not reachable from their entry blocks. Reachability follows jump
// targets, fallthrough edges and the handlers of catch entries guarding a
// block. It returns the number of removed blocks.
func (opt *Optimizer) EliminateDeadCode(code *tir.CodeObject) int {
	if opt.trace != nil {
		defer untraceoptim(traceoptim(opt, "DeadCode "+code.Name))
	}
	start := time.Now()
	defer func() { opt.duration += time.Since(start) }()

	total := 0
	code.Walk(func(c *tir.CodeObject) {
		reachable := Reachable(c)
		removed := c.RemoveBlocks(func(b *tir.BasicBlock) bool {
			return reachable.Contains(b)
		})
		if removed > 0 && opt.trace != nil {
			opt.printTrace(c.Name, "removed", removed, "blocks")
		}
		total += removed
	})
	opt.removedBlocks += total
	return total
}

// Reachable returns the set of blocks of code reachable from its entry.
func Reachable(code *tir.CodeObject) *hashset.Set {
	seen := hashset.New()
	work := arraystack.New()
	work.Push(code.Entry())
	seen.Add(code.Entry())
	for !work.Empty() {
		v, _ := work.Pop()
		for _, succ := range code.Successors(v.(*tir.BasicBlock)) {
			if !seen.Contains(succ) {
				seen.Add(succ)
				work.Push(succ)
			}
		}
	}
	return seen
}

// EliminateTailCalls rewrites sends marked as tail calls in code and its
// children. A method sending its own message to self with exactly its
// positional arguments is turned into argument stores and a jump to its
// entry block. Other tail sends directly followed by a return of their
// result become TailCall instructions. It returns the number of rewritten
// sends.
func (opt *Optimizer) EliminateTailCalls(code *tir.CodeObject) int {
	if opt.trace != nil {
		defer untraceoptim(traceoptim(opt, "TailCallElimination "+code.Name))
	}
	start := time.Now()
	defer func() { opt.duration += time.Since(start) }()

	total := 0
	code.Walk(func(c *tir.CodeObject) {
		for _, b := range c.Blocks {
			total += opt.tailCallsInBlock(c, b)
		}
	})
	return total
}

func (opt *Optimizer) tailCallsInBlock(c *tir.CodeObject, b *tir.BasicBlock) int {
	n := 0
	for i := 0; i+1 < len(b.Instructions); i++ {
		send := b.Instructions[i]
		if send.Op != bytecode.OpSendObjectMessage || !send.Tail {
			continue
		}
		ret := b.Instructions[i+1]
		if ret.Op != bytecode.OpReturn || len(ret.Args) != 1 || ret.Args[0] != send.Register {
			continue
		}
		if isSelfRecursive(c, send) && !capturesLocals(c) {
			rewritten := make([]*tir.Instruction, 0, len(send.Varargs)+1)
			for j, arg := range send.Varargs {
				rewritten = append(rewritten, tir.SetLocal(j+1, arg, send.Location))
			}
			rewritten = append(rewritten, tir.Goto(c.Entry(), send.Location))
			b.Instructions = append(b.Instructions[:i], rewritten...)
			opt.selfCalls++
			if opt.trace != nil {
				opt.printTrace(c.Name, b.Label(), "self call ->", "Goto", c.Entry().Label())
			}
			n++
			break
		}
		tail := tir.TailCall(send.Args[0], send.Literal.String, send.Varargs,
			send.Keywords, send.Location)
		b.Instructions = append(b.Instructions[:i], tail)
		opt.tailCalls++
		if opt.trace != nil {
			opt.printTrace(c.Name, b.Label(), "send", send.Literal.String, "-> TailCall")
		}
		n++
		break
	}
	return n
}

// isSelfRecursive reports whether send sends the message of method c to
// the receiver of c with exactly c's positional arguments.
func isSelfRecursive(c *tir.CodeObject, send *tir.Instruction) bool {
	if !c.Method || c.Rest || send.Literal.String != c.Name {
		return false
	}
	if len(send.Keywords) > 0 || len(send.Varargs) != len(c.Arguments) {
		return false
	}
	return definedBySelf(c, send.Args[0])
}

// capturesLocals reports whether a code object nested in c reads or
// writes a local slot of c. Such slots must outlive the frame, so the
// frame cannot be reused for a self call.
func capturesLocals(c *tir.CodeObject) bool {
	var visit func(child *tir.CodeObject, level int) bool
	visit = func(child *tir.CodeObject, level int) bool {
		for _, b := range child.Blocks {
			for _, inst := range b.Instructions {
				switch inst.Op {
				case bytecode.OpGetParentLocal, bytecode.OpSetParentLocal:
					if inst.Ints[0] >= level {
						return true
					}
				}
			}
		}
		for _, cc := range child.Code {
			if visit(cc, level+1) {
				return true
			}
		}
		return false
	}
	for _, child := range c.Code {
		if visit(child, 1) {
			return true
		}
	}
	return false
}

// definedBySelf reports whether r is written only by a GetLocal of slot 0.
func definedBySelf(c *tir.CodeObject, r *tir.VirtualRegister) bool {
	found := false
	for _, b := range c.Blocks {
		for _, inst := range b.Instructions {
			if inst.Register != r {
				continue
			}
			if inst.Op != bytecode.OpGetLocal || inst.Ints[0] != 0 {
				return false
			}
			found = true
		}
	}
	return found
}

// Total returns the number of removed blocks and rewritten sends.
func (opt *Optimizer) Total() int {
	return opt.removedBlocks + opt.tailCalls + opt.selfCalls
}

// Duration returns the time spent optimizing.
func (opt *Optimizer) Duration() time.Duration {
	return opt.duration
}

func (opt *Optimizer) printTrace(a ...interface{}) {
	printTrace(opt.trace, opt.indent, a...)
}

func traceoptim(opt *Optimizer, msg string) *Optimizer {
	opt.printTrace(msg, "{")
	opt.indent++
	return opt
}

func untraceoptim(opt *Optimizer) {
	opt.indent--
	opt.printTrace("}")
}

func (s *State) optimizerTrace() io.Writer {
	if s.Options.TraceOptimizer {
		return s.trace
	}
	return nil
}

func deadCode(s *State, m *Module) error {
	if m.Body == nil || !m.Config.DeadCode || s.Options.DisableDeadCode {
		return nil
	}
	NewOptimizer(s.optimizerTrace()).EliminateDeadCode(m.Body)
	return nil
}

func tailCallElimination(s *State, m *Module) error {
	if m.Body == nil || !m.Config.TailCalls || s.Options.DisableTailCalls {
		return nil
	}
	NewOptimizer(s.optimizerTrace()).EliminateTailCalls(m.Body)
	return nil
}
