// Copyright (c) 2020 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package interp evaluates compiled bytecode modules. It is a reference
// evaluator used by the command line tool and by tests of the compiler; it
// is not optimized.
package interp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ozanh/aeonc/bytecode"
)

// DefaultMaxFrames is the default bound of nested frames.
const DefaultMaxFrames = 10000

var (
	// ErrStackOverflow is returned when the frame bound is exceeded.
	ErrStackOverflow = errors.New("stack overflow")
	// ErrModuleNotFound is returned by LoadModule for unknown modules.
	ErrModuleNotFound = errors.New("module not found")
	// ErrMessageNotUnderstood is returned for sends without a receiving
	// method.
	ErrMessageNotUnderstood = errors.New("message not understood")
)

// ThrowError carries a thrown value that was not caught.
type ThrowError struct {
	Value Value
}

func (e *ThrowError) Error() string {
	return "uncaught throw: " + Format(e.Value)
}

// RuntimeError is an error raised by an instruction.
type RuntimeError struct {
	Code   string
	Offset int
	Line   int
	Err    error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("Runtime Error: %s\n\tat %s:%04d (line %d)", e.Err, e.Code, e.Offset, e.Line)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func typeError(op string, v Value) error {
	return fmt.Errorf("%s: unsupported operand %s", op, Format(v))
}

func argumentError(op string, want, got int) error {
	return fmt.Errorf("%s: want %d arguments, got %d", op, want, got)
}

// Stats are collected during evaluation.
type Stats struct {
	Calls     int
	TailCalls int
	MaxDepth  int
}

type moduleInstance struct {
	name    string
	mod     *bytecode.CompiledModule
	globals []Value
	object  *Object
}

func (mi *moduleInstance) literal(idx int) bytecode.Literal {
	return mi.mod.Literals[idx]
}

type frame struct {
	code   *bytecode.CompiledCode
	module *moduleInstance
	locals []Value
	set    []bool
	regs   []Value
	parent *frame
}

// Interpreter evaluates modules. An Interpreter is not safe for concurrent
// use.
type Interpreter struct {
	Stdout    io.Writer
	MaxFrames int
	Stats     Stats

	modules map[string]*bytecode.CompiledModule
	loaded  map[string]*moduleInstance
	protos  prototypes
	depth   int
}

// New returns an interpreter for modules keyed by qualified name.
func New(modules map[string]*bytecode.CompiledModule) *Interpreter {
	in := &Interpreter{
		Stdout:    os.Stdout,
		MaxFrames: DefaultMaxFrames,
		modules:   modules,
		loaded:    make(map[string]*moduleInstance),
	}
	in.initPrototypes()
	return in
}

// LoadModule runs the body of module name once and returns its module
// object. Loading a module whose body is still running returns the
// partially initialized object.
func (in *Interpreter) LoadModule(name string) (*Object, error) {
	if mi, ok := in.loaded[name]; ok {
		return mi.object, nil
	}
	mod, ok := in.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	obj := NewObject(in.protos.object)
	obj.Name = name
	mi := &moduleInstance{name: name, mod: mod, object: obj}
	in.loaded[name] = mi
	f, err := in.newFrame(&Block{Code: mod.Body, Module: mi}, obj, nil, nil)
	if err != nil {
		return nil, err
	}
	if _, err := in.run(f); err != nil {
		return nil, err
	}
	return obj, nil
}

// Call loads module and sends method to its module object.
func (in *Interpreter) Call(module, method string, args ...Value) (Value, error) {
	obj, err := in.LoadModule(module)
	if err != nil {
		return nil, err
	}
	return in.Send(obj, method, args)
}

// Send sends name to recv.
func (in *Interpreter) Send(recv Value, name string, args []Value) (Value, error) {
	return in.send(recv, name, args, nil)
}

func (in *Interpreter) lookup(recv Value, name string) (Value, error) {
	v, ok := in.prototypeOf(recv).Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s for %s", ErrMessageNotUnderstood, name, Format(recv))
	}
	return v, nil
}

func (in *Interpreter) send(recv Value, name string, args []Value, kws map[string]Value) (Value, error) {
	m, err := in.lookup(recv, name)
	if err != nil {
		return nil, err
	}
	switch m := m.(type) {
	case *Native:
		return m.Fn(in, recv, args)
	case *Block:
		return in.callBlock(m, recv, args, kws)
	}
	if len(args) > 0 {
		return nil, fmt.Errorf("%w: %s is not a method", ErrMessageNotUnderstood, name)
	}
	return m, nil
}

func (in *Interpreter) callBlock(b *Block, self Value, args []Value, kws map[string]Value) (Value, error) {
	f, err := in.newFrame(b, self, args, kws)
	if err != nil {
		return nil, err
	}
	return in.run(f)
}

func (in *Interpreter) newFrame(b *Block, self Value, args []Value, kws map[string]Value) (*frame, error) {
	code := b.Code
	n := code.Locals
	if need := len(code.Arguments) + 1; n < need {
		n = need
	}
	f := &frame{
		code:   code,
		module: b.Module,
		locals: make([]Value, n),
		set:    make([]bool, n),
		regs:   make([]Value, code.Registers),
		parent: b.Parent,
	}
	f.locals[0], f.set[0] = self, true
	fixed := len(code.Arguments)
	if code.Rest {
		fixed--
	}
	if len(args) > fixed && !code.Rest {
		return nil, argumentError(in.codeName(f), fixed, len(args))
	}
	for i, a := range args {
		if i >= fixed {
			break
		}
		f.locals[i+1], f.set[i+1] = a, true
	}
	if code.Rest {
		rest := &Array{}
		if len(args) > fixed {
			rest.Elems = append(rest.Elems, args[fixed:]...)
		}
		f.locals[fixed+1], f.set[fixed+1] = rest, true
	}
	for name, v := range kws {
		idx := -1
		for i, a := range code.Arguments {
			if b.Module.literal(a).String == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%s: unknown keyword argument %s", in.codeName(f), name)
		}
		f.locals[idx+1], f.set[idx+1] = v, true
	}
	for i := 0; i < code.Required; i++ {
		if !f.set[i+1] {
			return nil, fmt.Errorf("%s: missing argument %s", in.codeName(f),
				b.Module.literal(code.Arguments[i]).String)
		}
	}
	return f, nil
}

func (in *Interpreter) codeName(f *frame) string {
	return f.module.literal(f.code.Name).String
}

// handler returns the catch entry guarding offset, innermost first.
func (f *frame) handler(offset int) (bytecode.CatchEntry, bool) {
	for _, e := range f.code.CatchTable {
		if e.Start <= offset && offset < e.End {
			return e, true
		}
	}
	return bytecode.CatchEntry{}, false
}

func (f *frame) up(depth int) *frame {
	p := f
	for i := 0; i < depth && p != nil; i++ {
		p = p.parent
	}
	return p
}

func (in *Interpreter) literalValue(f *frame, idx int) Value {
	l := f.module.literal(idx)
	switch l.Kind {
	case bytecode.LiteralInteger:
		return l.Int
	case bytecode.LiteralFloat:
		return l.Float
	}
	return l.String
}

func (in *Interpreter) run(f *frame) (Value, error) {
	in.depth++
	defer func() { in.depth-- }()
	if in.MaxFrames > 0 && in.depth > in.MaxFrames {
		return nil, ErrStackOverflow
	}
	if in.depth > in.Stats.MaxDepth {
		in.Stats.MaxDepth = in.depth
	}
	in.Stats.Calls++

	pc := 0
	for {
		insts := f.code.Instructions
		if pc >= len(insts) {
			return nil, nil
		}
		cur := pc
		inst := insts[pc]
		pc++
		ops := inst.Operands
		regs := f.regs
		var err error

		switch inst.Op {
		case bytecode.OpSetInteger, bytecode.OpSetFloat, bytecode.OpSetString:
			regs[ops[0]] = in.literalValue(f, ops[1])
		case bytecode.OpSetObject:
			proto, ok := regs[ops[1]].(*Object)
			if !ok {
				err = typeError("SetObject", regs[ops[1]])
				break
			}
			regs[ops[0]] = NewObject(proto)
		case bytecode.OpSetArray:
			arr := &Array{}
			for _, r := range ops[2 : 2+ops[1]] {
				arr.Elems = append(arr.Elems, regs[r])
			}
			regs[ops[0]] = arr
		case bytecode.OpSetHashMap:
			hm := &HashMap{}
			pairs := ops[2 : 2+ops[1]]
			for i := 0; i+1 < len(pairs); i += 2 {
				hm.Put(regs[pairs[i]], regs[pairs[i+1]])
			}
			regs[ops[0]] = hm
		case bytecode.OpSetBlock:
			regs[ops[0]] = &Block{
				Code:   f.code.Code[ops[1]],
				Module: f.module,
				Parent: f,
				Self:   f.locals[0],
			}
		case bytecode.OpSetRegister:
			regs[ops[0]] = regs[ops[1]]
		case bytecode.OpSetPrototype:
			obj, ok1 := regs[ops[1]].(*Object)
			proto, ok2 := regs[ops[2]].(*Object)
			if !ok1 || !ok2 {
				err = typeError("SetPrototype", regs[ops[1]])
				break
			}
			obj.Proto = proto
			regs[ops[0]] = obj
		case bytecode.OpGetLocal:
			regs[ops[0]] = f.locals[ops[1]]
		case bytecode.OpSetLocal:
			f.locals[ops[0]], f.set[ops[0]] = regs[ops[1]], true
		case bytecode.OpLocalExists:
			regs[ops[0]] = f.set[ops[1]]
		case bytecode.OpGetParentLocal:
			p := f.up(ops[1])
			if p == nil {
				err = fmt.Errorf("no scope %d levels up", ops[1])
				break
			}
			regs[ops[0]] = p.locals[ops[2]]
		case bytecode.OpSetParentLocal:
			p := f.up(ops[0])
			if p == nil {
				err = fmt.Errorf("no scope %d levels up", ops[0])
				break
			}
			p.locals[ops[1]], p.set[ops[1]] = regs[ops[2]], true
		case bytecode.OpGetAttribute:
			name := f.module.literal(ops[2]).String
			v, ok := in.prototypeOf(regs[ops[1]]).Lookup(name)
			if !ok {
				err = fmt.Errorf("undefined attribute %s of %s", name, Format(regs[ops[1]]))
				break
			}
			regs[ops[0]] = v
		case bytecode.OpSetAttribute:
			obj, ok := regs[ops[1]].(*Object)
			if !ok {
				err = typeError("SetAttribute", regs[ops[1]])
				break
			}
			obj.Attrs[f.module.literal(ops[2]).String] = regs[ops[3]]
			regs[ops[0]] = regs[ops[3]]
		case bytecode.OpGetGlobal:
			if ops[1] < len(f.module.globals) {
				regs[ops[0]] = f.module.globals[ops[1]]
			} else {
				regs[ops[0]] = nil
			}
		case bytecode.OpSetGlobal:
			for len(f.module.globals) <= ops[0] {
				f.module.globals = append(f.module.globals, nil)
			}
			f.module.globals[ops[0]] = regs[ops[1]]
		case bytecode.OpGetToplevel:
			regs[ops[0]] = f.module.object
		case bytecode.OpGetTrue:
			regs[ops[0]] = true
		case bytecode.OpGetFalse:
			regs[ops[0]] = false
		case bytecode.OpGetNil:
			regs[ops[0]] = nil
		case bytecode.OpGetObjectPrototype:
			regs[ops[0]] = in.protos.object
		case bytecode.OpGetIntegerPrototype:
			regs[ops[0]] = in.protos.integer
		case bytecode.OpGetFloatPrototype:
			regs[ops[0]] = in.protos.float
		case bytecode.OpGetStringPrototype:
			regs[ops[0]] = in.protos.str
		case bytecode.OpGetArrayPrototype:
			regs[ops[0]] = in.protos.array
		case bytecode.OpGetHashMapPrototype:
			regs[ops[0]] = in.protos.hashMap
		case bytecode.OpGetBlockPrototype:
			regs[ops[0]] = in.protos.block
		case bytecode.OpGetBooleanPrototype:
			regs[ops[0]] = in.protos.boolean
		case bytecode.OpGetNilPrototype:
			regs[ops[0]] = in.protos.nilProto
		case bytecode.OpLoadModule:
			regs[ops[0]], err = in.LoadModule(f.module.literal(ops[1]).String)
		case bytecode.OpSendObjectMessage:
			recv, name, args, kws := in.decodeSend(f, ops[1:])
			regs[ops[0]], err = in.send(recv, name, args, kws)
		case bytecode.OpTailCall:
			recv, name, args, kws := in.decodeSend(f, ops)
			var m Value
			if m, err = in.lookup(recv, name); err != nil {
				break
			}
			b, ok := m.(*Block)
			if !ok {
				return in.send(recv, name, args, kws)
			}
			next, ferr := in.newFrame(b, recv, args, kws)
			if ferr != nil {
				err = ferr
				break
			}
			in.Stats.TailCalls++
			f, pc = next, 0
			continue
		case bytecode.OpRunBlock:
			b, ok := regs[ops[1]].(*Block)
			if !ok {
				err = typeError("RunBlock", regs[ops[1]])
				break
			}
			args := make([]Value, ops[2])
			for i, r := range ops[3 : 3+ops[2]] {
				args[i] = regs[r]
			}
			regs[ops[0]], err = in.callBlock(b, b.Self, args, nil)
		case bytecode.OpReturn:
			return regs[ops[0]], nil
		case bytecode.OpThrow:
			err = &ThrowError{Value: regs[ops[0]]}
		case bytecode.OpGoto:
			pc = ops[0]
		case bytecode.OpGotoNextBlockIfTrue:
			if !Truthy(regs[ops[0]]) {
				pc = ops[1]
			}
		case bytecode.OpIntegerAdd, bytecode.OpIntegerSub, bytecode.OpIntegerMul,
			bytecode.OpIntegerSmaller, bytecode.OpIntegerGreater, bytecode.OpIntegerEquals:
			regs[ops[0]], err = integerOp(inst.Op, regs[ops[1]], regs[ops[2]])
		case bytecode.OpIntegerToString:
			v, ok := regs[ops[1]].(int64)
			if !ok {
				err = typeError("IntegerToString", regs[ops[1]])
				break
			}
			regs[ops[0]] = strconv.FormatInt(v, 10)
		case bytecode.OpObjectEquals:
			regs[ops[0]] = Equal(regs[ops[1]], regs[ops[2]])
		case bytecode.OpArrayLength:
			arr, ok := regs[ops[1]].(*Array)
			if !ok {
				err = typeError("ArrayLength", regs[ops[1]])
				break
			}
			regs[ops[0]] = int64(len(arr.Elems))
		case bytecode.OpArrayAt:
			arr, ok := regs[ops[1]].(*Array)
			if !ok {
				err = typeError("ArrayAt", regs[ops[1]])
				break
			}
			regs[ops[0]], err = arrayAt(arr, regs[ops[2]])
		case bytecode.OpArrayInsert:
			arr, ok := regs[ops[1]].(*Array)
			idx, ok2 := regs[ops[2]].(int64)
			if !ok || !ok2 || idx < 0 || idx > int64(len(arr.Elems)) {
				err = typeError("ArrayInsert", regs[ops[2]])
				break
			}
			arr.Elems = append(arr.Elems, nil)
			copy(arr.Elems[idx+1:], arr.Elems[idx:])
			arr.Elems[idx] = regs[ops[3]]
			regs[ops[0]] = regs[ops[3]]
		case bytecode.OpStdoutWrite:
			n, werr := fmt.Fprint(in.Stdout, Format(regs[ops[1]]))
			regs[ops[0]], err = int64(n), werr
		default:
			err = fmt.Errorf("unknown opcode %d", inst.Op)
		}

		if err == nil {
			continue
		}
		var thrown *ThrowError
		if errors.As(err, &thrown) {
			if e, ok := f.handler(cur); ok {
				f.regs[e.Register] = thrown.Value
				pc = e.Handler
				continue
			}
			return nil, thrown
		}
		var rerr *RuntimeError
		if errors.As(err, &rerr) || errors.Is(err, ErrStackOverflow) {
			return nil, err
		}
		return nil, &RuntimeError{Code: in.codeName(f), Offset: cur, Line: inst.Line, Err: err}
	}
}

// decodeSend decodes the operands receiver, name, arguments and keywords.
func (in *Interpreter) decodeSend(f *frame, ops []int) (Value, string, []Value, map[string]Value) {
	recv := f.regs[ops[0]]
	name := f.module.literal(ops[1]).String
	n := ops[2]
	args := make([]Value, n)
	for i := 0; i < n; i++ {
		args[i] = f.regs[ops[3+i]]
	}
	rest := ops[3+n:]
	var kws map[string]Value
	if k := rest[0]; k > 0 {
		kws = make(map[string]Value, k)
		for i := 0; i < k; i++ {
			kws[f.module.literal(rest[1+2*i]).String] = f.regs[rest[2+2*i]]
		}
	}
	return recv, name, args, kws
}

func integerOp(op bytecode.Opcode, a, b Value) (Value, error) {
	x, ok1 := a.(int64)
	y, ok2 := b.(int64)
	if !ok1 || !ok2 {
		return nil, typeError(bytecode.OpcodeNames[op], b)
	}
	switch op {
	case bytecode.OpIntegerAdd:
		return x + y, nil
	case bytecode.OpIntegerSub:
		return x - y, nil
	case bytecode.OpIntegerMul:
		return x * y, nil
	case bytecode.OpIntegerSmaller:
		return x < y, nil
	case bytecode.OpIntegerGreater:
		return x > y, nil
	}
	return x == y, nil
}
