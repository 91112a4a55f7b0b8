// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package bytecode

// Opcode represents a single byte operation code.
type Opcode = byte

// List of opcodes
const (
	OpSetInteger Opcode = iota
	OpSetFloat
	OpSetString
	OpSetObject
	OpSetArray
	OpSetHashMap
	OpSetBlock
	OpSetRegister
	OpSetPrototype
	OpGetLocal
	OpSetLocal
	OpLocalExists
	OpGetParentLocal
	OpSetParentLocal
	OpGetAttribute
	OpSetAttribute
	OpGetGlobal
	OpSetGlobal
	OpGetToplevel
	OpGetTrue
	OpGetFalse
	OpGetNil
	OpGetObjectPrototype
	OpGetIntegerPrototype
	OpGetFloatPrototype
	OpGetStringPrototype
	OpGetArrayPrototype
	OpGetHashMapPrototype
	OpGetBlockPrototype
	OpGetBooleanPrototype
	OpGetNilPrototype
	OpLoadModule
	OpSendObjectMessage
	OpTailCall
	OpRunBlock
	OpReturn
	OpThrow
	OpGoto
	OpGotoNextBlockIfTrue
	OpIntegerAdd
	OpIntegerSub
	OpIntegerMul
	OpIntegerSmaller
	OpIntegerGreater
	OpIntegerEquals
	OpIntegerToString
	OpObjectEquals
	OpArrayLength
	OpArrayAt
	OpArrayInsert
	OpStdoutWrite
	numOpcodes
)

// OpcodeNames are string representation of opcodes.
var OpcodeNames = [...]string{
	OpSetInteger:          "SetInteger",
	OpSetFloat:            "SetFloat",
	OpSetString:           "SetString",
	OpSetObject:           "SetObject",
	OpSetArray:            "SetArray",
	OpSetHashMap:          "SetHashMap",
	OpSetBlock:            "SetBlock",
	OpSetRegister:         "SetRegister",
	OpSetPrototype:        "SetPrototype",
	OpGetLocal:            "GetLocal",
	OpSetLocal:            "SetLocal",
	OpLocalExists:         "LocalExists",
	OpGetParentLocal:      "GetParentLocal",
	OpSetParentLocal:      "SetParentLocal",
	OpGetAttribute:        "GetAttribute",
	OpSetAttribute:        "SetAttribute",
	OpGetGlobal:           "GetGlobal",
	OpSetGlobal:           "SetGlobal",
	OpGetToplevel:         "GetToplevel",
	OpGetTrue:             "GetTrue",
	OpGetFalse:            "GetFalse",
	OpGetNil:              "GetNil",
	OpGetObjectPrototype:  "GetObjectPrototype",
	OpGetIntegerPrototype: "GetIntegerPrototype",
	OpGetFloatPrototype:   "GetFloatPrototype",
	OpGetStringPrototype:  "GetStringPrototype",
	OpGetArrayPrototype:   "GetArrayPrototype",
	OpGetHashMapPrototype: "GetHashMapPrototype",
	OpGetBlockPrototype:   "GetBlockPrototype",
	OpGetBooleanPrototype: "GetBooleanPrototype",
	OpGetNilPrototype:     "GetNilPrototype",
	OpLoadModule:          "LoadModule",
	OpSendObjectMessage:   "SendObjectMessage",
	OpTailCall:            "TailCall",
	OpRunBlock:            "RunBlock",
	OpReturn:              "Return",
	OpThrow:               "Throw",
	OpGoto:                "Goto",
	OpGotoNextBlockIfTrue: "GotoNextBlockIfTrue",
	OpIntegerAdd:          "IntegerAdd",
	OpIntegerSub:          "IntegerSub",
	OpIntegerMul:          "IntegerMul",
	OpIntegerSmaller:      "IntegerSmaller",
	OpIntegerGreater:      "IntegerGreater",
	OpIntegerEquals:       "IntegerEquals",
	OpIntegerToString:     "IntegerToString",
	OpObjectEquals:        "ObjectEquals",
	OpArrayLength:         "ArrayLength",
	OpArrayAt:             "ArrayAt",
	OpArrayInsert:         "ArrayInsert",
	OpStdoutWrite:         "StdoutWrite",
}

// OperandKind describes how a single operand of an instruction is resolved.
type OperandKind byte

// List of operand kinds
const (
	// OperandRegister is a register index of the owning code object.
	OperandRegister OperandKind = iota
	// OperandLiteral is an index into the module literal pool.
	OperandLiteral
	// OperandInt is an immediate integer such as a local slot or scope depth.
	OperandInt
	// OperandTarget is an absolute instruction offset in the owning code.
	OperandTarget
	// OperandCode is an index into the owning code object's children.
	OperandCode
	// OperandRegisters is a count followed by that many registers.
	OperandRegisters
	// OperandKeywords is a count followed by (literal, register) pairs.
	OperandKeywords
)

// OpcodeOperands holds the operand layout of each opcode. The register
// written by an instruction is always the first operand and is not part of
// the layout, see OpcodeWrites.
var OpcodeOperands = [...][]OperandKind{
	OpSetInteger:          {OperandLiteral},
	OpSetFloat:            {OperandLiteral},
	OpSetString:           {OperandLiteral},
	OpSetObject:           {OperandRegister},
	OpSetArray:            {OperandRegisters},
	OpSetHashMap:          {OperandRegisters},
	OpSetBlock:            {OperandCode},
	OpSetRegister:         {OperandRegister},
	OpSetPrototype:        {OperandRegister, OperandRegister},
	OpGetLocal:            {OperandInt},
	OpSetLocal:            {OperandInt, OperandRegister},
	OpLocalExists:         {OperandInt},
	OpGetParentLocal:      {OperandInt, OperandInt},
	OpSetParentLocal:      {OperandInt, OperandInt, OperandRegister},
	OpGetAttribute:        {OperandRegister, OperandLiteral},
	OpSetAttribute:        {OperandRegister, OperandLiteral, OperandRegister},
	OpGetGlobal:           {OperandInt},
	OpSetGlobal:           {OperandInt, OperandRegister},
	OpGetToplevel:         {},
	OpGetTrue:             {},
	OpGetFalse:            {},
	OpGetNil:              {},
	OpGetObjectPrototype:  {},
	OpGetIntegerPrototype: {},
	OpGetFloatPrototype:   {},
	OpGetStringPrototype:  {},
	OpGetArrayPrototype:   {},
	OpGetHashMapPrototype: {},
	OpGetBlockPrototype:   {},
	OpGetBooleanPrototype: {},
	OpGetNilPrototype:     {},
	OpLoadModule:          {OperandLiteral},
	OpSendObjectMessage:   {OperandRegister, OperandLiteral, OperandRegisters, OperandKeywords},
	OpTailCall:            {OperandRegister, OperandLiteral, OperandRegisters, OperandKeywords},
	OpRunBlock:            {OperandRegister, OperandRegisters},
	OpReturn:              {OperandRegister},
	OpThrow:               {OperandRegister},
	OpGoto:                {OperandTarget},
	OpGotoNextBlockIfTrue: {OperandRegister, OperandTarget},
	OpIntegerAdd:          {OperandRegister, OperandRegister},
	OpIntegerSub:          {OperandRegister, OperandRegister},
	OpIntegerMul:          {OperandRegister, OperandRegister},
	OpIntegerSmaller:      {OperandRegister, OperandRegister},
	OpIntegerGreater:      {OperandRegister, OperandRegister},
	OpIntegerEquals:       {OperandRegister, OperandRegister},
	OpIntegerToString:     {OperandRegister},
	OpObjectEquals:        {OperandRegister, OperandRegister},
	OpArrayLength:         {OperandRegister},
	OpArrayAt:             {OperandRegister, OperandRegister},
	OpArrayInsert:         {OperandRegister, OperandRegister, OperandRegister},
	OpStdoutWrite:         {OperandRegister},
}

// OpcodeWrites reports whether an opcode writes a result register.
var OpcodeWrites = [...]bool{
	OpSetInteger:          true,
	OpSetFloat:            true,
	OpSetString:           true,
	OpSetObject:           true,
	OpSetArray:            true,
	OpSetHashMap:          true,
	OpSetBlock:            true,
	OpSetRegister:         true,
	OpSetPrototype:        true,
	OpGetLocal:            true,
	OpLocalExists:         true,
	OpGetParentLocal:      true,
	OpGetAttribute:        true,
	OpSetAttribute:        true,
	OpGetGlobal:           true,
	OpGetToplevel:         true,
	OpGetTrue:             true,
	OpGetFalse:            true,
	OpGetNil:              true,
	OpGetObjectPrototype:  true,
	OpGetIntegerPrototype: true,
	OpGetFloatPrototype:   true,
	OpGetStringPrototype:  true,
	OpGetArrayPrototype:   true,
	OpGetHashMapPrototype: true,
	OpGetBlockPrototype:   true,
	OpGetBooleanPrototype: true,
	OpGetNilPrototype:     true,
	OpLoadModule:          true,
	OpSendObjectMessage:   true,
	OpRunBlock:            true,
	OpIntegerAdd:          true,
	OpIntegerSub:          true,
	OpIntegerMul:          true,
	OpIntegerSmaller:      true,
	OpIntegerGreater:      true,
	OpIntegerEquals:       true,
	OpIntegerToString:     true,
	OpObjectEquals:        true,
	OpArrayLength:         true,
	OpArrayAt:             true,
	OpArrayInsert:         true,
	OpStdoutWrite:         true,
}

// IsTerminator reports whether an opcode unconditionally transfers control,
// so that no instruction of the same block may follow it.
func IsTerminator(op Opcode) bool {
	switch op {
	case OpReturn, OpThrow, OpGoto, OpTailCall:
		return true
	}
	return false
}

// ValidOpcode reports whether op is a known opcode.
func ValidOpcode(op Opcode) bool {
	return op < numOpcodes
}
