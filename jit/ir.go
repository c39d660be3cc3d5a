package jit

import (
	"fmt"
	"strings"
)

// Op is an IR operation. The IR is a validated, straight-line stack
// program over float64 values: no jumps, no calls, no non-numeric
// operands. Division and modulo carry their zero-divisor guard in the
// operation itself, so every backend reproduces the interpreter's trap.
//
// The set is closed: every backend must handle every Op, and the
// translator's classification table must cover every bytecode opcode.
// TestOpcodeClassificationIsTotal enforces the latter against the full
// instruction set.
type Op uint8

const (
	IRConst Op = iota // push Imm
	IRLoad            // push slot A
	IRStore           // pop into slot A
	IRDup             // duplicate top
	IRDrop            // discard top
	IRSwap            // swap top two
	IRAdd             // pop b, a; push a+b
	IRSub             // pop b, a; push a-b
	IRMul             // pop b, a; push a*b
	IRDiv             // pop b, a; trap if b == 0; push a/b
	IRMod             // pop b, a; trap if b == 0; push mod(a, b)
	IRNeg             // negate top
	IREq              // pop b, a; push 1 if a == b else 0
	IRNe              // pop b, a; push 1 if a != b else 0
	IRLt              // pop b, a; push 1 if a < b else 0
	IRLe              // pop b, a; push 1 if a <= b else 0
	IRGt              // pop b, a; push 1 if a > b else 0
	IRGe              // pop b, a; push 1 if a >= b else 0
	IRNot             // pop a; push 1 if a == 0 else 0
	IRReturn          // pop result, end execution
)

// irNames indexes Op for diagnostics.
var irNames = [...]string{
	IRConst: "const", IRLoad: "load", IRStore: "store", IRDup: "dup",
	IRDrop: "drop", IRSwap: "swap", IRAdd: "add", IRSub: "sub",
	IRMul: "mul", IRDiv: "div", IRMod: "mod", IRNeg: "neg",
	IREq: "eq", IRNe: "ne", IRLt: "lt", IRLe: "le", IRGt: "gt",
	IRGe: "ge", IRNot: "not", IRReturn: "return",
}

// String returns the IR operation mnemonic.
func (op Op) String() string {
	if int(op) < len(irNames) {
		return irNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// stackEffect returns (pops, pushes) for an operation.
func (op Op) stackEffect() (pops, pushes int) {
	switch op {
	case IRConst, IRLoad:
		return 0, 1
	case IRStore, IRDrop, IRReturn:
		return 1, 0
	case IRDup:
		return 1, 2
	case IRSwap:
		return 2, 2
	case IRNeg, IRNot:
		return 1, 1
	case IRAdd, IRSub, IRMul, IRDiv, IRMod, IREq, IRNe, IRLt, IRLe, IRGt, IRGe:
		return 2, 1
	default:
		panic(fmt.Sprintf("jit: stack effect of unknown op %d", op))
	}
}

// Instr is one IR instruction. A holds a slot index for IRLoad/IRStore;
// Imm holds the constant for IRConst.
type Instr struct {
	Op  Op
	A   int     `cbor:"a,omitempty"`
	Imm float64 `cbor:"imm,omitempty"`
}

// String renders an instruction for IR dumps.
func (in Instr) String() string {
	switch in.Op {
	case IRConst:
		return fmt.Sprintf("%-6s %g", in.Op, in.Imm)
	case IRLoad, IRStore:
		return fmt.Sprintf("%-6s slot %d", in.Op, in.A)
	default:
		return in.Op.String()
	}
}

// Program is a validated IR program for one function. It is the unit the
// backend compiles and the unit the persistence store serializes; all
// fields are exported for CBOR encoding.
type Program struct {
	Name     string  `cbor:"name"`
	Start    uint32  `cbor:"start"`    // module offset of the source function
	Checksum uint32  `cbor:"checksum"` // CRC-32 of the source bytecode slice
	Ops      []Instr `cbor:"ops"`
	NumSlots int     `cbor:"slots"`     // local slots, parameters first
	NumArgs  int     `cbor:"args"`      // parameter count
	MaxStack int     `cbor:"max_stack"` // operand stack high-water mark
}

// Dump renders the program for debugging, in the same spirit as the
// bytecode disassembler.
func (p *Program) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== IR %s (start=%d args=%d slots=%d stack=%d) ==\n",
		p.Name, p.Start, p.NumArgs, p.NumSlots, p.MaxStack)
	for i, in := range p.Ops {
		fmt.Fprintf(&sb, "%4d  %s\n", i, in)
	}
	return sb.String()
}
