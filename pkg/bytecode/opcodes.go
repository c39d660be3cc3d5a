package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpPop  Opcode = 0x01 // Pop top of stack
	OpDup  Opcode = 0x02 // Duplicate top of stack
	OpSwap Opcode = 0x03 // Swap top two stack elements

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConst     Opcode = 0x10 // Push constant from pool: OpConst <index:u16>
	OpConstZero Opcode = 0x11 // Push 0
	OpConstOne  Opcode = 0x12 // Push 1
	OpConstNil  Opcode = 0x13 // Push nil

	// ========================================================================
	// Local variables (0x20-0x2F)
	// ========================================================================

	OpLoadLocal  Opcode = 0x20 // Push local slot: OpLoadLocal <slot:u8>
	OpStoreLocal Opcode = 0x21 // Pop and store to local slot: OpStoreLocal <slot:u8>

	// ========================================================================
	// Global variables (0x30-0x3F)
	// ========================================================================

	OpLoadGlobal  Opcode = 0x30 // Push global: OpLoadGlobal <index:u16>
	OpStoreGlobal Opcode = 0x31 // Pop and store to global: OpStoreGlobal <index:u16>

	// ========================================================================
	// Arithmetic (0x50-0x5F)
	// ========================================================================

	OpAdd Opcode = 0x50 // Pop two, push sum
	OpSub Opcode = 0x51 // Pop two, push difference (a - b where b is TOS)
	OpMul Opcode = 0x52 // Pop two, push product
	OpDiv Opcode = 0x53 // Pop two, push quotient; traps on zero divisor
	OpMod Opcode = 0x54 // Pop two, push remainder; traps on zero divisor
	OpNeg Opcode = 0x55 // Negate top of stack

	// ========================================================================
	// Comparison (0x60-0x6F)
	// ========================================================================
	//
	// Comparisons push a numeric boolean: 1 for true, 0 for false.

	OpEq Opcode = 0x60 // Pop two, push 1 if equal, 0 otherwise
	OpNe Opcode = 0x61 // Pop two, push 1 if not equal
	OpLt Opcode = 0x62 // Pop two, push 1 if a < b
	OpLe Opcode = 0x63 // Pop two, push 1 if a <= b
	OpGt Opcode = 0x64 // Pop two, push 1 if a > b
	OpGe Opcode = 0x65 // Pop two, push 1 if a >= b

	OpNot Opcode = 0x68 // Logical NOT: push 1 if TOS is falsy, 0 otherwise

	// ========================================================================
	// String operations (0x70-0x7F)
	// ========================================================================

	OpConcat Opcode = 0x70 // Concatenate top two strings
	OpStrLen Opcode = 0x71 // Pop string, push its length

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJump      Opcode = 0x80 // Unconditional jump: OpJump <offset:i16>
	OpJumpTrue  Opcode = 0x81 // Jump if top is truthy: OpJumpTrue <offset:i16>
	OpJumpFalse Opcode = 0x82 // Jump if top is falsy: OpJumpFalse <offset:i16>

	// ========================================================================
	// Function calls (0x90-0x9F)
	// ========================================================================

	OpCall Opcode = 0x90 // Call function: OpCall <func:u16> <argc:u8>

	// ========================================================================
	// Array operations (0xB0-0xB7)
	// ========================================================================

	OpArrayNew Opcode = 0xB0 // Create empty array, push it
	OpArrayGet Opcode = 0xB1 // array[index] -> value
	OpArraySet Opcode = 0xB2 // array[index] = value -> modified array
	OpArrayLen Opcode = 0xB3 // array -> length

	// ========================================================================
	// Tagged values and pattern matching (0xC0-0xC7)
	// ========================================================================

	OpTagNew  Opcode = 0xC0 // Wrap TOS in a tagged value: OpTagNew <tag:u8>
	OpTagTest Opcode = 0xC1 // Push 1 if TOS carries tag, 0 otherwise: OpTagTest <tag:u8>
	OpUntag   Opcode = 0xC2 // Unwrap a tagged value, push payload

	// ========================================================================
	// Return (0xF0-0xFF)
	// ========================================================================

	OpReturn Opcode = 0xF0 // Return top of stack from function
	OpHalt   Opcode = 0xF1 // Stop execution; result is top of stack
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack (-1 = variable)
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:  {"NOP", 0, 0, 0},
	OpPop:  {"POP", 1, 0, 0},
	OpDup:  {"DUP", 1, 2, 0},
	OpSwap: {"SWAP", 2, 2, 0},

	// Constants
	OpConst:     {"CONST", 0, 1, 2},
	OpConstZero: {"CONST_ZERO", 0, 1, 0},
	OpConstOne:  {"CONST_ONE", 0, 1, 0},
	OpConstNil:  {"CONST_NIL", 0, 1, 0},

	// Local variables
	OpLoadLocal:  {"LOAD_LOCAL", 0, 1, 1},
	OpStoreLocal: {"STORE_LOCAL", 1, 0, 1},

	// Global variables
	OpLoadGlobal:  {"LOAD_GLOBAL", 0, 1, 2},
	OpStoreGlobal: {"STORE_GLOBAL", 1, 0, 2},

	// Arithmetic
	OpAdd: {"ADD", 2, 1, 0},
	OpSub: {"SUB", 2, 1, 0},
	OpMul: {"MUL", 2, 1, 0},
	OpDiv: {"DIV", 2, 1, 0},
	OpMod: {"MOD", 2, 1, 0},
	OpNeg: {"NEG", 1, 1, 0},

	// Comparison
	OpEq: {"EQ", 2, 1, 0},
	OpNe: {"NE", 2, 1, 0},
	OpLt: {"LT", 2, 1, 0},
	OpLe: {"LE", 2, 1, 0},
	OpGt: {"GT", 2, 1, 0},
	OpGe: {"GE", 2, 1, 0},

	OpNot: {"NOT", 1, 1, 0},

	// String
	OpConcat: {"CONCAT", 2, 1, 0},
	OpStrLen: {"STRLEN", 1, 1, 0},

	// Control flow
	OpJump:      {"JUMP", 0, 0, 2},
	OpJumpTrue:  {"JUMP_TRUE", 1, 0, 2},
	OpJumpFalse: {"JUMP_FALSE", 1, 0, 2},

	// Calls
	OpCall: {"CALL", -1, 1, 3}, // Pops argc arguments

	// Array operations
	OpArrayNew: {"ARRAY_NEW", 0, 1, 0},
	OpArrayGet: {"ARRAY_GET", 2, 1, 0},
	OpArraySet: {"ARRAY_SET", 3, 1, 0},
	OpArrayLen: {"ARRAY_LEN", 1, 1, 0},

	// Tagged values
	OpTagNew:  {"TAG_NEW", 1, 1, 1},
	OpTagTest: {"TAG_TEST", 1, 2, 1},
	OpUntag:   {"UNTAG", 1, 1, 0},

	// Return
	OpReturn: {"RETURN", 1, 0, 0},
	OpHalt:   {"HALT", 1, 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), StackPop: 0, StackPush: 0, OperandLen: 0}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsDefined returns true if the opcode is part of the instruction set.
func (op Opcode) IsDefined() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpJumpFalse
}

// IsReturn returns true if this opcode terminates execution.
func (op Opcode) IsReturn() bool {
	return op == OpReturn || op == OpHalt
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
