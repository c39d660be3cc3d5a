package jit

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/hotpath/pkg/bytecode"
)

// opClass says what the translator does with a bytecode opcode.
type opClass uint8

const (
	classSupported   opClass = iota // has a translation arm below
	classUnsupported                // permanently declines the function
)

// classification pairs a class with the decline reason shown in logs.
type classification struct {
	class  opClass
	reason string
}

// opClassification covers the complete instruction set. Every defined
// opcode must appear here with an explicit verdict; a bytecode opcode
// missing from this table is a bug, caught by
// TestOpcodeClassificationIsTotal and by the panic in classify. Adding an
// instruction to package bytecode therefore forces a translator decision.
var opClassification = map[bytecode.Opcode]classification{
	// Supported: the numeric, straight-line subset.
	bytecode.OpNop:        {class: classSupported},
	bytecode.OpPop:        {class: classSupported},
	bytecode.OpDup:        {class: classSupported},
	bytecode.OpSwap:       {class: classSupported},
	bytecode.OpConst:      {class: classSupported}, // numeric pool entries only
	bytecode.OpConstZero:  {class: classSupported},
	bytecode.OpConstOne:   {class: classSupported},
	bytecode.OpLoadLocal:  {class: classSupported},
	bytecode.OpStoreLocal: {class: classSupported},
	bytecode.OpAdd:        {class: classSupported},
	bytecode.OpSub:        {class: classSupported},
	bytecode.OpMul:        {class: classSupported},
	bytecode.OpDiv:        {class: classSupported},
	bytecode.OpMod:        {class: classSupported},
	bytecode.OpNeg:        {class: classSupported},
	bytecode.OpEq:         {class: classSupported},
	bytecode.OpNe:         {class: classSupported},
	bytecode.OpLt:         {class: classSupported},
	bytecode.OpLe:         {class: classSupported},
	bytecode.OpGt:         {class: classSupported},
	bytecode.OpGe:         {class: classSupported},
	bytecode.OpNot:        {class: classSupported},
	bytecode.OpReturn:     {class: classSupported},
	bytecode.OpHalt:       {class: classSupported},

	// Unsupported: anything that can produce or consume non-numeric
	// values, escape the function, or branch.
	bytecode.OpConstNil:    {classUnsupported, "nil constant"},
	bytecode.OpLoadGlobal:  {classUnsupported, "global access"},
	bytecode.OpStoreGlobal: {classUnsupported, "global access"},
	bytecode.OpConcat:      {classUnsupported, "string operation"},
	bytecode.OpStrLen:      {classUnsupported, "string operation"},
	bytecode.OpJump:        {classUnsupported, "control flow"},
	bytecode.OpJumpTrue:    {classUnsupported, "control flow"},
	bytecode.OpJumpFalse:   {classUnsupported, "control flow"},
	bytecode.OpCall:        {classUnsupported, "function call"},
	bytecode.OpArrayNew:    {classUnsupported, "array operation"},
	bytecode.OpArrayGet:    {classUnsupported, "array operation"},
	bytecode.OpArraySet:    {classUnsupported, "array operation"},
	bytecode.OpArrayLen:    {classUnsupported, "array operation"},
	bytecode.OpTagNew:      {classUnsupported, "tagged value"},
	bytecode.OpTagTest:     {classUnsupported, "tagged value"},
	bytecode.OpUntag:       {classUnsupported, "tagged value"},
}

// classify returns the verdict for an opcode. Panicking on a gap is
// deliberate: an unclassified opcode is a programming error in this
// package, not a runtime condition to decline on.
func classify(op bytecode.Opcode) classification {
	c, ok := opClassification[op]
	if !ok {
		panic(fmt.Sprintf("jit: opcode %s has no translator classification", op))
	}
	return c
}

// Translator converts function bytecode into validated IR. It is
// stateless; a single instance is safe for concurrent use.
type Translator struct{}

// NewTranslator creates a translator.
func NewTranslator() *Translator {
	return &Translator{}
}

// Translate scans a function in program order and produces a validated IR
// program, or the first reason it cannot. The scan covers the whole
// function body, including code after the first return: one unsupported
// instruction anywhere declines the entire function, and no partial IR is
// ever returned.
//
// Beyond the opcode whitelist the translator rejects:
//   - non-numeric constant loads (strings, nil)
//   - reads of local slots that are not parameters and have not been
//     stored to yet (the interpreter would produce nil)
//   - a halt with an empty operand stack (the interpreter yields nil)
//   - malformed bytecode: truncated operands, out-of-range slots or
//     constant indexes, stack underflow, missing terminal return
func (t *Translator) Translate(mod *bytecode.Module, fn *bytecode.FuncInfo) (*Program, error) {
	if fn.End > uint32(len(mod.Code)) || fn.Start > fn.End {
		return nil, &MalformedError{Offset: fn.Start, Detail: "function range outside code buffer"}
	}

	code := mod.Code
	prog := &Program{
		Name:     fn.Name,
		Start:    fn.Start,
		Checksum: mod.FuncChecksum(fn),
		NumSlots: int(fn.LocalCount),
		NumArgs:  int(fn.ParamCount),
		Ops:      make([]Instr, 0, fn.End-fn.Start),
	}

	var initialized [256]bool
	for i := 0; i < int(fn.ParamCount); i++ {
		initialized[i] = true
	}

	depth := 0
	reachable := true // false once the first return/halt has been seen

	emit := func(in Instr) error {
		if !reachable {
			return nil
		}
		pops, pushes := in.Op.stackEffect()
		if depth < pops {
			return &MalformedError{Offset: fn.Start, Detail: fmt.Sprintf("operand stack underflow at %s", in.Op)}
		}
		depth += pushes - pops
		if depth > prog.MaxStack {
			prog.MaxStack = depth
		}
		prog.Ops = append(prog.Ops, in)
		return nil
	}

	ip := int(fn.Start)
	for ip < int(fn.End) {
		offset := uint32(ip)
		op := bytecode.Opcode(code[ip])
		if !op.IsDefined() {
			return nil, &MalformedError{Offset: offset, Detail: fmt.Sprintf("unknown opcode 0x%02X", byte(op))}
		}
		if ip+op.InstructionLen() > int(fn.End) {
			return nil, &MalformedError{Offset: offset, Detail: fmt.Sprintf("truncated %s", op)}
		}

		if c := classify(op); c.class == classUnsupported {
			return nil, &UnsupportedError{Offset: offset, Op: op, Reason: c.reason}
		}

		ip++
		var err error
		switch op {
		case bytecode.OpNop:
			// nothing

		case bytecode.OpPop:
			err = emit(Instr{Op: IRDrop})

		case bytecode.OpDup:
			err = emit(Instr{Op: IRDup})

		case bytecode.OpSwap:
			err = emit(Instr{Op: IRSwap})

		case bytecode.OpConst:
			idx := binary.BigEndian.Uint16(code[ip:])
			ip += 2
			if int(idx) >= len(mod.Constants) {
				return nil, &MalformedError{Offset: offset, Detail: fmt.Sprintf("constant index %d out of range", idx)}
			}
			c := mod.Constants[idx]
			if c.Kind != bytecode.ConstNumber {
				return nil, &UnsupportedError{Offset: offset, Op: op, Reason: "non-numeric constant"}
			}
			err = emit(Instr{Op: IRConst, Imm: c.Num})

		case bytecode.OpConstZero:
			err = emit(Instr{Op: IRConst, Imm: 0})

		case bytecode.OpConstOne:
			err = emit(Instr{Op: IRConst, Imm: 1})

		case bytecode.OpLoadLocal:
			slot := code[ip]
			ip++
			if int(slot) >= prog.NumSlots {
				return nil, &MalformedError{Offset: offset, Detail: fmt.Sprintf("local slot %d out of range", slot)}
			}
			if reachable && !initialized[slot] {
				return nil, &UnsupportedError{Offset: offset, Op: op, Reason: "read of uninitialized local"}
			}
			err = emit(Instr{Op: IRLoad, A: int(slot)})

		case bytecode.OpStoreLocal:
			slot := code[ip]
			ip++
			if int(slot) >= prog.NumSlots {
				return nil, &MalformedError{Offset: offset, Detail: fmt.Sprintf("local slot %d out of range", slot)}
			}
			if reachable {
				initialized[slot] = true
			}
			err = emit(Instr{Op: IRStore, A: int(slot)})

		case bytecode.OpAdd:
			err = emit(Instr{Op: IRAdd})
		case bytecode.OpSub:
			err = emit(Instr{Op: IRSub})
		case bytecode.OpMul:
			err = emit(Instr{Op: IRMul})
		case bytecode.OpDiv:
			err = emit(Instr{Op: IRDiv})
		case bytecode.OpMod:
			err = emit(Instr{Op: IRMod})
		case bytecode.OpNeg:
			err = emit(Instr{Op: IRNeg})
		case bytecode.OpEq:
			err = emit(Instr{Op: IREq})
		case bytecode.OpNe:
			err = emit(Instr{Op: IRNe})
		case bytecode.OpLt:
			err = emit(Instr{Op: IRLt})
		case bytecode.OpLe:
			err = emit(Instr{Op: IRLe})
		case bytecode.OpGt:
			err = emit(Instr{Op: IRGt})
		case bytecode.OpGe:
			err = emit(Instr{Op: IRGe})
		case bytecode.OpNot:
			err = emit(Instr{Op: IRNot})

		case bytecode.OpReturn:
			err = emit(Instr{Op: IRReturn})
			reachable = false

		case bytecode.OpHalt:
			if reachable && depth == 0 {
				return nil, &UnsupportedError{Offset: offset, Op: op, Reason: "halt with empty stack yields nil"}
			}
			err = emit(Instr{Op: IRReturn})
			reachable = false

		default:
			panic(fmt.Sprintf("jit: supported opcode %s has no translation arm", op))
		}
		if err != nil {
			return nil, err
		}
	}

	if reachable {
		return nil, &MalformedError{Offset: fn.End, Detail: "function does not end in return or halt"}
	}
	return prog, nil
}
