// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strconv"
)

// Module signature and version are written to the header of encoded modules.
// Modules are encoded with current ModuleVersion and its format.
const (
	ModuleSignature uint32 = 0x41454F4E
	ModuleVersion   uint16 = 1
)

// HeaderSize is the size of the fixed module header.
const HeaderSize = 6

// MarshalBinary implements encoding.BinaryMarshaler. The module is validated
// first and a *SerializationError is returned for dangling references.
func (m *CompiledModule) MarshalBinary() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := putModuleHeader(&buf); err != nil {
		return nil, err
	}
	e := encoder{w: &buf}
	e.uvarint(m.Name)
	e.uvarint(len(m.Literals))
	for _, l := range m.Literals {
		e.literal(l)
	}
	e.code(m.Body)
	return buf.Bytes(), nil
}

// Encode writes encoded module to writer.
func (m *CompiledModule) Encode(w io.Writer) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	n, err := w.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return errors.New("short write")
	}
	return nil
}

func putModuleHeader(w io.Writer) (err error) {
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], ModuleSignature)
	binary.BigEndian.PutUint16(header[4:6], ModuleVersion)
	_, err = w.Write(header[:])
	return
}

type encoder struct {
	w   *bytes.Buffer
	buf [binary.MaxVarintLen64]byte
}

func (e *encoder) uvarint(v int) {
	n := binary.PutUvarint(e.buf[:], uint64(v))
	e.w.Write(e.buf[:n])
}

func (e *encoder) varint(v int64) {
	n := binary.PutVarint(e.buf[:], v)
	e.w.Write(e.buf[:n])
}

func (e *encoder) bool(v bool) {
	if v {
		e.w.WriteByte(1)
		return
	}
	e.w.WriteByte(0)
}

func (e *encoder) literal(l Literal) {
	e.w.WriteByte(byte(l.Kind))
	switch l.Kind {
	case LiteralInteger:
		e.varint(l.Int)
	case LiteralFloat:
		binary.BigEndian.PutUint64(e.buf[:8], math.Float64bits(l.Float))
		e.w.Write(e.buf[:8])
	case LiteralString:
		e.uvarint(len(l.String))
		e.w.WriteString(l.String)
	}
}

func (e *encoder) code(c *CompiledCode) {
	e.uvarint(c.Name)
	e.uvarint(c.Line)
	e.uvarint(len(c.Arguments))
	for _, a := range c.Arguments {
		e.uvarint(a)
	}
	e.uvarint(c.Required)
	e.bool(c.Rest)
	e.uvarint(c.Locals)
	e.uvarint(c.Registers)
	e.uvarint(len(c.Blocks))
	for _, b := range c.Blocks {
		e.uvarint(b)
	}
	e.uvarint(len(c.Instructions))
	for _, inst := range c.Instructions {
		e.w.WriteByte(inst.Op)
		e.uvarint(inst.Line)
		e.uvarint(len(inst.Operands))
		for _, op := range inst.Operands {
			e.varint(int64(op))
		}
	}
	e.uvarint(len(c.CatchTable))
	for _, entry := range c.CatchTable {
		e.uvarint(entry.Start)
		e.uvarint(entry.End)
		e.uvarint(entry.Handler)
		e.uvarint(entry.Register)
	}
	e.uvarint(len(c.Code))
	for _, child := range c.Code {
		e.code(child)
	}
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (m *CompiledModule) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return errors.New("bytecode: invalid data")
	}
	if sig := binary.BigEndian.Uint32(data[0:4]); sig != ModuleSignature {
		return errors.New("bytecode: signature mismatch")
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version != ModuleVersion {
		return errors.New("bytecode: unsupported version:" +
			strconv.Itoa(int(version)))
	}
	d := decoder{r: bytes.NewReader(data[HeaderSize:])}
	m.Name = d.uvarint()
	n := d.uvarint()
	m.Literals = make([]Literal, 0, d.capped(n))
	for i := 0; i < n && d.err == nil; i++ {
		m.Literals = append(m.Literals, d.literal())
	}
	m.Body = d.code(0)
	if d.err != nil {
		return d.err
	}
	if d.r.Len() > 0 {
		return errors.New("bytecode: unread bytes")
	}
	return nil
}

// Decode reads an encoded module from r.
func Decode(r io.Reader) (*CompiledModule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m := &CompiledModule{}
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return m, nil
}

// maxCodeDepth limits nesting while decoding untrusted input.
const maxCodeDepth = 1 << 10

type decoder struct {
	r   *bytes.Reader
	err error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// capped bounds preallocation by the bytes left, as every element takes at
// least one byte.
func (d *decoder) capped(n int) int {
	if n > d.r.Len() {
		return d.r.Len()
	}
	return n
}

func (d *decoder) uvarint() int {
	if d.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(d.r)
	if err != nil {
		d.fail(err)
		return 0
	}
	if v > math.MaxInt32 {
		d.fail(errors.New("bytecode: value out of range"))
		return 0
	}
	return int(v)
}

func (d *decoder) varint() int64 {
	if d.err != nil {
		return 0
	}
	v, err := binary.ReadVarint(d.r)
	if err != nil {
		d.fail(err)
	}
	return v
}

func (d *decoder) readByte() byte {
	if d.err != nil {
		return 0
	}
	b, err := d.r.ReadByte()
	if err != nil {
		d.fail(err)
	}
	return b
}

func (d *decoder) literal() Literal {
	kind := LiteralKind(d.readByte())
	switch kind {
	case LiteralInteger:
		return Integer(d.varint())
	case LiteralFloat:
		var buf [8]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			d.fail(err)
			return Literal{}
		}
		return Float(math.Float64frombits(binary.BigEndian.Uint64(buf[:])))
	case LiteralString:
		n := d.uvarint()
		if d.err != nil {
			return Literal{}
		}
		if n > d.r.Len() {
			d.fail(io.ErrUnexpectedEOF)
			return Literal{}
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(d.r, buf); err != nil {
			d.fail(err)
			return Literal{}
		}
		return String(string(buf))
	}
	d.fail(errors.New("bytecode: unknown literal kind:" +
		strconv.Itoa(int(kind))))
	return Literal{}
}

func (d *decoder) ints() []int {
	n := d.uvarint()
	out := make([]int, 0, d.capped(n))
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, d.uvarint())
	}
	return out
}

func (d *decoder) code(depth int) *CompiledCode {
	if depth > maxCodeDepth {
		d.fail(errors.New("bytecode: code objects nested too deeply"))
		return nil
	}
	c := &CompiledCode{}
	c.Name = d.uvarint()
	c.Line = d.uvarint()
	c.Arguments = d.ints()
	c.Required = d.uvarint()
	c.Rest = d.readByte() == 1
	c.Locals = d.uvarint()
	c.Registers = d.uvarint()
	c.Blocks = d.ints()
	n := d.uvarint()
	c.Instructions = make([]Instruction, 0, d.capped(n))
	for i := 0; i < n && d.err == nil; i++ {
		inst := Instruction{Op: d.readByte(), Line: d.uvarint()}
		if !ValidOpcode(inst.Op) {
			d.fail(errors.New("bytecode: unknown opcode:" +
				strconv.Itoa(int(inst.Op))))
			break
		}
		m := d.uvarint()
		inst.Operands = make([]int, 0, d.capped(m))
		for j := 0; j < m && d.err == nil; j++ {
			inst.Operands = append(inst.Operands, int(d.varint()))
		}
		c.Instructions = append(c.Instructions, inst)
	}
	n = d.uvarint()
	for i := 0; i < n && d.err == nil; i++ {
		c.CatchTable = append(c.CatchTable, CatchEntry{
			Start:    d.uvarint(),
			End:      d.uvarint(),
			Handler:  d.uvarint(),
			Register: d.uvarint(),
		})
	}
	n = d.uvarint()
	for i := 0; i < n && d.err == nil; i++ {
		c.Code = append(c.Code, d.code(depth+1))
	}
	return c
}
