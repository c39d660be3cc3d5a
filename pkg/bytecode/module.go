package bytecode

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// Magic bytes for bytecode files: "HPBC" (HotPath ByteCode)
var BytecodeMagic = []byte{'H', 'P', 'B', 'C'}

// ConstKind discriminates entries in the constant pool.
type ConstKind uint8

const (
	ConstNumber ConstKind = 0
	ConstString ConstKind = 1
	ConstNil    ConstKind = 2
)

// Constant is a single constant-pool entry.
type Constant struct {
	Kind ConstKind
	Num  float64
	Str  string
}

// NumberConst builds a numeric constant.
func NumberConst(n float64) Constant {
	return Constant{Kind: ConstNumber, Num: n}
}

// StringConst builds a string constant.
func StringConst(s string) Constant {
	return Constant{Kind: ConstString, Str: s}
}

// Value converts a constant to a runtime value.
func (c Constant) Value() Value {
	switch c.Kind {
	case ConstNumber:
		return Number(c.Num)
	case ConstString:
		return Str(c.Str)
	default:
		return Nil
	}
}

// String renders a constant for disassembly.
func (c Constant) String() string {
	return c.Value().String()
}

// FuncInfo describes one function inside a module's flat code buffer.
// Start is the function's identity everywhere in the runtime: profiling
// counters, the code cache and persisted artifacts are all keyed by it.
type FuncInfo struct {
	Name       string
	Start      uint32 // first byte of the function's code, inclusive
	End        uint32 // one past the last byte, exclusive
	ParamCount uint8  // parameters occupy local slots [0, ParamCount)
	LocalCount uint8  // total local slots, including parameters
}

// Module is a compiled bytecode unit: one flat code buffer, a shared
// constant pool and a function table. Functions are contiguous slices of
// the code buffer, addressed by byte offset.
type Module struct {
	Version   uint16
	Code      []byte
	Constants []Constant
	Functions []FuncInfo

	open *FuncInfo // function currently being emitted, nil between functions
}

// NewModule creates an empty module with the current format version.
func NewModule() *Module {
	return &Module{
		Version:   BytecodeVersion,
		Code:      make([]byte, 0, 256),
		Constants: make([]Constant, 0, 8),
	}
}

// AddConstant adds a constant to the pool and returns its index.
// If an equal constant already exists, returns the existing index.
func (m *Module) AddConstant(c Constant) uint16 {
	for i, existing := range m.Constants {
		if existing == c {
			return uint16(i)
		}
	}
	idx := uint16(len(m.Constants))
	m.Constants = append(m.Constants, c)
	return idx
}

// GetConstant returns the constant at the given index.
// Panics if the index is out of bounds.
func (m *Module) GetConstant(index uint16) Constant {
	return m.Constants[index]
}

// BeginFunction starts emitting a new function at the current end of the
// code buffer. Emissions go into this function until EndFunction.
func (m *Module) BeginFunction(name string, paramCount, localCount uint8) {
	if m.open != nil {
		panic("bytecode: BeginFunction while another function is open")
	}
	if localCount < paramCount {
		localCount = paramCount
	}
	m.Functions = append(m.Functions, FuncInfo{
		Name:       name,
		Start:      uint32(len(m.Code)),
		ParamCount: paramCount,
		LocalCount: localCount,
	})
	m.open = &m.Functions[len(m.Functions)-1]
}

// EndFunction finishes the open function and returns its table index.
func (m *Module) EndFunction() int {
	if m.open == nil {
		panic("bytecode: EndFunction without BeginFunction")
	}
	m.open.End = uint32(len(m.Code))
	m.open = nil
	return len(m.Functions) - 1
}

// FuncByName returns the function with the given name, or nil.
func (m *Module) FuncByName(name string) *FuncInfo {
	for i := range m.Functions {
		if m.Functions[i].Name == name {
			return &m.Functions[i]
		}
	}
	return nil
}

// FuncAt returns the function starting at the given offset, or nil.
func (m *Module) FuncAt(start uint32) *FuncInfo {
	for i := range m.Functions {
		if m.Functions[i].Start == start {
			return &m.Functions[i]
		}
	}
	return nil
}

// FuncCode returns the code slice for a function.
func (m *Module) FuncCode(fn *FuncInfo) []byte {
	return m.Code[fn.Start:fn.End]
}

// FuncChecksum returns a CRC-32 of a function's code slice, used to detect
// stale persisted artifacts after recompilation.
func (m *Module) FuncChecksum(fn *FuncInfo) uint32 {
	return crc32.ChecksumIEEE(m.FuncCode(fn))
}

// Emit appends a single-byte opcode to the code section.
func (m *Module) Emit(op Opcode) int {
	offset := len(m.Code)
	m.Code = append(m.Code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (m *Module) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(m.Code)
	m.Code = append(m.Code, byte(op))
	m.Code = append(m.Code, operands...)
	return offset
}

// EmitNumber emits an OpConst instruction pushing the given number.
// Adds the constant to the pool if not already present.
func (m *Module) EmitNumber(n float64) int {
	idx := m.AddConstant(NumberConst(n))
	return m.EmitWithOperand(OpConst, byte(idx>>8), byte(idx))
}

// EmitString emits an OpConst instruction pushing the given string.
func (m *Module) EmitString(s string) int {
	idx := m.AddConstant(StringConst(s))
	return m.EmitWithOperand(OpConst, byte(idx>>8), byte(idx))
}

// EmitLocal emits a local load or store for the given slot.
func (m *Module) EmitLocal(op Opcode, slot uint8) int {
	return m.EmitWithOperand(op, slot)
}

// EmitJump emits a jump instruction with a placeholder offset.
// Returns the offset of the placeholder for later patching.
func (m *Module) EmitJump(op Opcode) int {
	offset := len(m.Code)
	m.Code = append(m.Code, byte(op), 0xFF, 0xFF) // Placeholder
	return offset + 1                             // Offset of the placeholder bytes
}

// PatchJump patches a jump instruction's offset to jump to the current position.
func (m *Module) PatchJump(placeholderOffset int) {
	// Relative jump measured from after the 2-byte offset
	jumpFrom := placeholderOffset + 2
	jumpTo := len(m.Code)
	delta := jumpTo - jumpFrom

	m.Code[placeholderOffset] = byte(delta >> 8)
	m.Code[placeholderOffset+1] = byte(delta)
}

// EmitLoop emits a backward jump to the given loop start.
func (m *Module) EmitLoop(loopStart int) {
	jumpFrom := len(m.Code) + 3 // After this instruction
	delta := loopStart - jumpFrom

	m.Code = append(m.Code, byte(OpJump))
	m.Code = append(m.Code, byte(delta>>8), byte(delta))
}

// CurrentOffset returns the current offset in the code section.
func (m *Module) CurrentOffset() int {
	return len(m.Code)
}

// Serialize encodes the module to bytes for storage/transport.
// Format:
//
//	[magic:4] [version:2]
//	[code_len:4] [code:...]
//	[const_count:2] [constants:...]
//	[func_count:2] [functions:...]
func (m *Module) Serialize() ([]byte, error) {
	if m.open != nil {
		return nil, fmt.Errorf("bytecode: cannot serialize with an open function")
	}

	buf := make([]byte, 0, 16+len(m.Code)+len(m.Constants)*10)

	buf = append(buf, BytecodeMagic...)
	buf = binary.BigEndian.AppendUint16(buf, m.Version)

	// Code section
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Code)))
	buf = append(buf, m.Code...)

	// Constants
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Constants)))
	for _, c := range m.Constants {
		buf = append(buf, byte(c.Kind))
		switch c.Kind {
		case ConstNumber:
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(c.Num))
		case ConstString:
			buf = binary.BigEndian.AppendUint16(buf, uint16(len(c.Str)))
			buf = append(buf, c.Str...)
		}
	}

	// Function table
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Functions)))
	for _, fn := range m.Functions {
		buf = append(buf, byte(len(fn.Name)))
		buf = append(buf, fn.Name...)
		buf = binary.BigEndian.AppendUint32(buf, fn.Start)
		buf = binary.BigEndian.AppendUint32(buf, fn.End)
		buf = append(buf, fn.ParamCount, fn.LocalCount)
	}

	return buf, nil
}

// Deserialize decodes a module from bytes.
func Deserialize(data []byte) (*Module, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("bytecode too short: need at least 6 bytes, got %d", len(data))
	}
	if string(data[0:4]) != string(BytecodeMagic) {
		return nil, fmt.Errorf("invalid bytecode magic: expected %q, got %q", BytecodeMagic, data[0:4])
	}

	m := &Module{Version: binary.BigEndian.Uint16(data[4:6])}
	if m.Version > BytecodeVersion {
		return nil, fmt.Errorf("bytecode version %d is newer than supported version %d", m.Version, BytecodeVersion)
	}
	pos := 6

	// Code section
	if pos+4 > len(data) {
		return nil, fmt.Errorf("unexpected end of bytecode reading code length at pos %d", pos)
	}
	codeLen := binary.BigEndian.Uint32(data[pos:])
	pos += 4
	if pos+int(codeLen) > len(data) {
		return nil, fmt.Errorf("unexpected end of bytecode reading code section: need %d bytes at pos %d", codeLen, pos)
	}
	m.Code = make([]byte, codeLen)
	copy(m.Code, data[pos:pos+int(codeLen)])
	pos += int(codeLen)

	// Constants
	if pos+2 > len(data) {
		return nil, fmt.Errorf("unexpected end of bytecode reading constant count")
	}
	constCount := binary.BigEndian.Uint16(data[pos:])
	pos += 2
	m.Constants = make([]Constant, constCount)
	for i := range m.Constants {
		if pos >= len(data) {
			return nil, fmt.Errorf("unexpected end of bytecode reading constant %d kind", i)
		}
		kind := ConstKind(data[pos])
		pos++
		switch kind {
		case ConstNumber:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("unexpected end of bytecode reading constant %d number", i)
			}
			m.Constants[i] = Constant{Kind: ConstNumber, Num: math.Float64frombits(binary.BigEndian.Uint64(data[pos:]))}
			pos += 8
		case ConstString:
			if pos+2 > len(data) {
				return nil, fmt.Errorf("unexpected end of bytecode reading constant %d length", i)
			}
			strLen := binary.BigEndian.Uint16(data[pos:])
			pos += 2
			if pos+int(strLen) > len(data) {
				return nil, fmt.Errorf("unexpected end of bytecode reading constant %d", i)
			}
			m.Constants[i] = Constant{Kind: ConstString, Str: string(data[pos : pos+int(strLen)])}
			pos += int(strLen)
		case ConstNil:
			m.Constants[i] = Constant{Kind: ConstNil}
		default:
			return nil, fmt.Errorf("unknown constant kind %d at index %d", kind, i)
		}
	}

	// Function table
	if pos+2 > len(data) {
		return nil, fmt.Errorf("unexpected end of bytecode reading function count")
	}
	funcCount := binary.BigEndian.Uint16(data[pos:])
	pos += 2
	m.Functions = make([]FuncInfo, funcCount)
	for i := range m.Functions {
		if pos >= len(data) {
			return nil, fmt.Errorf("unexpected end of bytecode reading function %d name length", i)
		}
		nameLen := data[pos]
		pos++
		if pos+int(nameLen)+10 > len(data) {
			return nil, fmt.Errorf("unexpected end of bytecode reading function %d", i)
		}
		m.Functions[i].Name = string(data[pos : pos+int(nameLen)])
		pos += int(nameLen)
		m.Functions[i].Start = binary.BigEndian.Uint32(data[pos:])
		pos += 4
		m.Functions[i].End = binary.BigEndian.Uint32(data[pos:])
		pos += 4
		m.Functions[i].ParamCount = data[pos]
		pos++
		m.Functions[i].LocalCount = data[pos]
		pos++

		if m.Functions[i].End > uint32(len(m.Code)) || m.Functions[i].Start > m.Functions[i].End {
			return nil, fmt.Errorf("function %q has invalid code range [%d, %d)", m.Functions[i].Name, m.Functions[i].Start, m.Functions[i].End)
		}
	}

	return m, nil
}
