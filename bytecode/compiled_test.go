package bytecode_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/ozanh/aeonc/bytecode"
)

func sampleModule() *CompiledModule {
	return &CompiledModule{
		Name:     0,
		Literals: []Literal{String("main"), String("<block>"), Integer(42), String("x")},
		Body: &CompiledCode{
			Name:      0,
			Line:      1,
			Locals:    1,
			Registers: 2,
			Blocks:    []int{0},
			Instructions: []Instruction{
				{Op: OpSetInteger, Line: 1, Operands: []int{0, 2}},
				{Op: OpSetLocal, Line: 1, Operands: []int{0, 0}},
				{Op: OpSetBlock, Line: 2, Operands: []int{1, 0}},
				{Op: OpReturn, Line: 2, Operands: []int{1}},
			},
			CatchTable: []CatchEntry{{Start: 0, End: 2, Handler: 3, Register: 1}},
			Code: []*CompiledCode{{
				Name:      1,
				Arguments: []int{3},
				Required:  1,
				Locals:    1,
				Registers: 1,
				Blocks:    []int{0},
				Instructions: []Instruction{
					{Op: OpGetLocal, Operands: []int{0, 0}},
					{Op: OpReturn, Operands: []int{0}},
				},
			}},
		},
	}
}

func TestModuleHeader(t *testing.T) {
	data, err := sampleModule().MarshalBinary()
	require.NoError(t, err)
	require.Greater(t, len(data), HeaderSize)
	require.Equal(t, ModuleSignature, binary.BigEndian.Uint32(data[0:4]))
	require.Equal(t, ModuleVersion, binary.BigEndian.Uint16(data[4:6]))
	require.Equal(t, []byte("AEON"), data[0:4])
}

func TestModuleDecode(t *testing.T) {
	m := sampleModule()
	var buf bytes.Buffer
	require.NoError(t, m.Encode(&buf))

	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, m.Literals, got.Literals)
	require.Equal(t, m.Body.Instructions, got.Body.Instructions)
	require.Equal(t, m.Body.CatchTable, got.Body.CatchTable)
	require.Len(t, got.Body.Code, 1)
	require.Equal(t, []int{3}, got.Body.Code[0].Arguments)
}

func TestModuleEncodingDeterministic(t *testing.T) {
	a, err := sampleModule().MarshalBinary()
	require.NoError(t, err)
	b, err := sampleModule().MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestModuleDecodeErrors(t *testing.T) {
	data, err := sampleModule().MarshalBinary()
	require.NoError(t, err)

	_, err = Decode(bytes.NewReader(data[:3]))
	require.Error(t, err)

	bad := append([]byte{}, data...)
	bad[0] = 'X'
	_, err = Decode(bytes.NewReader(bad))
	require.EqualError(t, err, "bytecode: signature mismatch")

	bad = append([]byte{}, data...)
	bad[5] = 9
	_, err = Decode(bytes.NewReader(bad))
	require.EqualError(t, err, "bytecode: unsupported version:9")

	_, err = Decode(bytes.NewReader(data[:len(data)-1]))
	require.Error(t, err)

	_, err = Decode(bytes.NewReader(append(data, 0)))
	require.EqualError(t, err, "bytecode: unread bytes")
}

func TestModuleValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(m *CompiledModule)
		errMsg string
	}{
		{
			name: "register",
			modify: func(m *CompiledModule) {
				m.Body.Instructions[3].Operands[0] = 7
			},
			errMsg: "register r7 not allocated",
		},
		{
			name: "literal",
			modify: func(m *CompiledModule) {
				m.Body.Instructions[0].Operands[1] = 99
			},
			errMsg: "literal index 99 out of range",
		},
		{
			name: "code",
			modify: func(m *CompiledModule) {
				m.Body.Instructions[2].Operands[1] = 3
			},
			errMsg: "code object 3 not found",
		},
		{
			name: "missing operand",
			modify: func(m *CompiledModule) {
				m.Body.Instructions[1].Operands = []int{0}
			},
			errMsg: "SetLocal: missing operand",
		},
		{
			name: "extra operand",
			modify: func(m *CompiledModule) {
				m.Body.Instructions[3].Operands = []int{0, 1}
			},
			errMsg: "Return: 1 extra operands",
		},
		{
			name: "catch entry",
			modify: func(m *CompiledModule) {
				m.Body.CatchTable[0].Handler = 10
			},
			errMsg: "invalid catch entry",
		},
		{
			name: "child register",
			modify: func(m *CompiledModule) {
				m.Body.Code[0].Registers = 0
			},
			errMsg: "register r0 not allocated",
		},
	}
	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			m := sampleModule()
			tC.modify(m)
			_, err := m.MarshalBinary()
			require.Error(t, err)
			var serr *SerializationError
			require.True(t, errors.As(err, &serr), "%T", err)
			require.True(t, strings.Contains(err.Error(), tC.errMsg), err.Error())
		})
	}
}

func TestModuleFprint(t *testing.T) {
	s := sampleModule().String()
	require.Contains(t, s, "Module main")
	require.Contains(t, s, `   2: integer 42`)
	require.Contains(t, s, "SetInteger")
	require.Contains(t, s, "Catch [0000, 0002) -> 0003 r1")
}
