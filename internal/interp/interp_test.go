package interp_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozanh/aeonc/bytecode"
	. "github.com/ozanh/aeonc/internal/interp"
)

// mathModule defines double(x), boom() which throws, safe() which catches
// its own throw and echo() which writes "bad" to stdout.
func mathModule() *bytecode.CompiledModule {
	method := func(name int, insts ...bytecode.Instruction) *bytecode.CompiledCode {
		return &bytecode.CompiledCode{
			Name: name, Locals: 1, Registers: 2, Blocks: []int{0},
			Instructions: insts,
		}
	}
	define := func(code, name int) []bytecode.Instruction {
		return []bytecode.Instruction{
			{Op: bytecode.OpSetBlock, Operands: []int{1, code}},
			{Op: bytecode.OpSetAttribute, Operands: []int{1, 0, name, 1}},
		}
	}

	body := &bytecode.CompiledCode{Name: 0, Locals: 1, Registers: 2, Blocks: []int{0}}
	body.Instructions = append(body.Instructions,
		bytecode.Instruction{Op: bytecode.OpGetToplevel, Operands: []int{0}})
	for i, name := range []int{1, 5, 7, 8} {
		body.Instructions = append(body.Instructions, define(i, name)...)
	}
	body.Instructions = append(body.Instructions,
		bytecode.Instruction{Op: bytecode.OpReturn, Operands: []int{0}})

	double := &bytecode.CompiledCode{
		Name: 1, Arguments: []int{2}, Required: 1, Locals: 2, Registers: 3,
		Blocks: []int{0},
		Instructions: []bytecode.Instruction{
			{Op: bytecode.OpGetLocal, Operands: []int{0, 1}},
			{Op: bytecode.OpSetInteger, Operands: []int{1, 3}},
			{Op: bytecode.OpIntegerMul, Operands: []int{2, 0, 1}},
			{Op: bytecode.OpReturn, Operands: []int{2}},
		},
	}
	boom := method(5,
		bytecode.Instruction{Op: bytecode.OpSetString, Line: 4, Operands: []int{0, 6}},
		bytecode.Instruction{Op: bytecode.OpThrow, Line: 4, Operands: []int{0}},
	)
	safe := method(7,
		bytecode.Instruction{Op: bytecode.OpSetString, Operands: []int{0, 6}},
		bytecode.Instruction{Op: bytecode.OpThrow, Operands: []int{0}},
		bytecode.Instruction{Op: bytecode.OpReturn, Operands: []int{1}},
	)
	safe.Blocks = []int{0, 2}
	safe.CatchTable = []bytecode.CatchEntry{{Start: 0, End: 2, Handler: 2, Register: 1}}
	echo := method(8,
		bytecode.Instruction{Op: bytecode.OpSetString, Operands: []int{0, 6}},
		bytecode.Instruction{Op: bytecode.OpStdoutWrite, Operands: []int{1, 0}},
		bytecode.Instruction{Op: bytecode.OpReturn, Operands: []int{1}},
	)
	body.Code = []*bytecode.CompiledCode{double, boom, safe, echo}

	return &bytecode.CompiledModule{
		Name: 0,
		Literals: []bytecode.Literal{
			bytecode.String("math"),
			bytecode.String("double"),
			bytecode.String("x"),
			bytecode.Integer(2),
			bytecode.String("*"),
			bytecode.String("boom"),
			bytecode.String("bad"),
			bytecode.String("safe"),
			bytecode.String("echo"),
		},
		Body: body,
	}
}

func newInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	mod := mathModule()
	require.NoError(t, mod.Validate())
	return New(map[string]*bytecode.CompiledModule{"math": mod})
}

func TestInterpreterCall(t *testing.T) {
	in := newInterpreter(t)
	v, err := in.Call("math", "double", int64(21))
	require.NoError(t, err)
	require.Equal(t, int64(42), v)
	require.Equal(t, 2, in.Stats.Calls)
	require.Equal(t, 1, in.Stats.MaxDepth)

	// loaded once
	obj, err := in.LoadModule("math")
	require.NoError(t, err)
	require.Equal(t, "math", obj.Name)
	require.Equal(t, 2, in.Stats.Calls)

	// instances inherit the methods of their prototype
	inst, err := in.Send(obj, "new", nil)
	require.NoError(t, err)
	require.Same(t, obj, inst.(*Object).Proto)
	v, err = in.Send(inst, "double", []Value{int64(4)})
	require.NoError(t, err)
	require.Equal(t, int64(8), v)
}

func TestInterpreterErrors(t *testing.T) {
	in := newInterpreter(t)

	_, err := in.Call("missing", "x")
	require.True(t, errors.Is(err, ErrModuleNotFound))

	_, err = in.Call("math", "nope")
	require.True(t, errors.Is(err, ErrMessageNotUnderstood))

	_, err = in.Call("math", "double")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing argument x")

	_, err = in.Call("math", "double", int64(1), int64(2))
	require.Error(t, err)
	require.Contains(t, err.Error(), "want 1 arguments, got 2")

	_, err = in.Call("math", "double", "str")
	var rerr *RuntimeError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, "double", rerr.Code)
	require.Equal(t, 2, rerr.Offset)
}

func TestInterpreterThrow(t *testing.T) {
	in := newInterpreter(t)
	_, err := in.Call("math", "boom")
	var thrown *ThrowError
	require.True(t, errors.As(err, &thrown))
	require.Equal(t, "bad", thrown.Value)
	require.Equal(t, "uncaught throw: bad", err.Error())

	v, err := in.Call("math", "safe")
	require.NoError(t, err)
	require.Equal(t, "bad", v)
}

func TestInterpreterStdout(t *testing.T) {
	in := newInterpreter(t)
	var buf bytes.Buffer
	in.Stdout = &buf
	v, err := in.Call("math", "echo")
	require.NoError(t, err)
	require.Equal(t, int64(3), v)
	require.Equal(t, "bad", buf.String())
}

func TestBuiltinPrototypes(t *testing.T) {
	in := New(nil)
	send := func(recv Value, name string, args ...Value) Value {
		t.Helper()
		v, err := in.Send(recv, name, args)
		require.NoError(t, err)
		return v
	}

	require.Equal(t, int64(5), send(int64(2), "+", int64(3)))
	require.Equal(t, int64(-1), send(int64(2), "-", int64(3)))
	require.Equal(t, true, send(int64(2), "<", int64(3)))
	require.Equal(t, false, send(int64(2), "==", int64(3)))
	require.Equal(t, "ab", send("a", "+", "b"))
	require.Equal(t, "7", send(int64(7), "to_string"))
	require.Equal(t, true, send(nil, "==", nil))

	arr := &Array{}
	require.Equal(t, "x", send(arr, "push", "x"))
	require.Equal(t, int64(1), send(arr, "length"))
	require.Equal(t, "x", send(arr, "at", int64(0)))
	require.Nil(t, send(arr, "at", int64(5)))

	_, err := in.Send(int64(1), "+", []Value{"s"})
	require.Error(t, err)
	_, err = in.Send(int64(1), "+", nil)
	require.Error(t, err)
	_, err = in.Send(true, "length", nil)
	require.True(t, errors.Is(err, ErrMessageNotUnderstood))
}

func TestTruthy(t *testing.T) {
	require.False(t, Truthy(nil))
	require.False(t, Truthy(false))
	require.True(t, Truthy(true))
	require.True(t, Truthy(int64(0)))
	require.True(t, Truthy(""))
	require.True(t, Truthy(&Array{}))
}

func TestFormat(t *testing.T) {
	hm := &HashMap{}
	hm.Put("a", int64(1))
	hm.Put("b", nil)
	named := NewObject(nil)
	named.Name = "Point"

	testCases := []struct {
		v    Value
		want string
	}{
		{nil, "nil"},
		{int64(-3), "-3"},
		{1.5, "1.5"},
		{"text", "text"},
		{true, "true"},
		{&Array{Elems: []Value{int64(1), "a", &Array{}}}, "[1, a, []]"},
		{hm, "%[a: 1, b: nil]"},
		{named, "Point"},
		{NewObject(nil), "<object>"},
		{&Block{}, "<block>"},
		{&Native{Name: "new"}, "<native new>"},
		{int32(1), "<int32>"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, Format(tc.v))
	}
}

func TestHashMap(t *testing.T) {
	hm := &HashMap{}
	hm.Put("k", int64(1))
	hm.Put(int64(2), "two")
	hm.Put("k", int64(3))
	require.Equal(t, []Value{"k", int64(2)}, hm.Keys)

	v, ok := hm.Get("k")
	require.True(t, ok)
	require.Equal(t, int64(3), v)
	_, ok = hm.Get("missing")
	require.False(t, ok)
}

func TestObjectLookup(t *testing.T) {
	base := NewObject(nil)
	base.Attrs["x"] = int64(1)
	child := NewObject(base)
	child.Attrs["y"] = int64(2)

	v, ok := child.Lookup("x")
	require.True(t, ok)
	require.Equal(t, int64(1), v)
	_, ok = base.Lookup("y")
	require.False(t, ok)

	child.Attrs["x"] = int64(5)
	v, _ = child.Lookup("x")
	require.Equal(t, int64(5), v)
	require.True(t, Equal(child, child))
	require.False(t, Equal(child, base))
}
