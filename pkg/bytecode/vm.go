package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Runtime trap sentinels. Compiled native code must raise exactly these
// errors where the interpreter would, so callers can rely on errors.Is
// regardless of which tier executed the function.
var (
	ErrDivideByZero  = errors.New("division by zero")
	ErrTypeMismatch  = errors.New("type mismatch")
	ErrStackOverflow = errors.New("stack overflow")
)

// MaxCallDepth bounds interpreter recursion through OpCall.
const MaxCallDepth = 256

// maxOperandStack bounds a single frame's operand stack.
const maxOperandStack = 1024

// VM is the reference stack interpreter. It executes every opcode in the
// instruction set; the compilation tier handles only the numeric subset
// and defers everything else here.
type VM struct {
	module  *Module
	globals map[uint16]Value

	// Trace enables per-instruction dumps to stdout.
	Trace bool
}

// NewVM creates an interpreter for a module.
func NewVM(module *Module) *VM {
	return &VM{
		module:  module,
		globals: make(map[uint16]Value),
	}
}

// Module returns the module this VM executes.
func (vm *VM) Module() *Module {
	return vm.module
}

// SetGlobal stores a global by pool index.
func (vm *VM) SetGlobal(index uint16, v Value) {
	vm.globals[index] = v
}

// GetGlobal reads a global by pool index; missing globals read as nil.
func (vm *VM) GetGlobal(index uint16) Value {
	if v, ok := vm.globals[index]; ok {
		return v
	}
	return Nil
}

// haltSignal unwinds the frame stack when OpHalt executes.
type haltSignal struct {
	value Value
}

func (h *haltSignal) Error() string {
	return "halt"
}

// Run executes a function with the given arguments and returns its result.
// Arguments fill the first ParamCount local slots; remaining slots start
// as nil.
func (vm *VM) Run(fn *FuncInfo, args []Value) (Value, error) {
	if fn == nil {
		return Nil, fmt.Errorf("bytecode: run of nil function")
	}
	if len(args) != int(fn.ParamCount) {
		return Nil, fmt.Errorf("bytecode: %s expects %d arguments, got %d", fn.Name, fn.ParamCount, len(args))
	}
	result, err := vm.runFrame(fn, args, 0)
	if err != nil {
		var halt *haltSignal
		if errors.As(err, &halt) {
			return halt.value, nil
		}
		return Nil, err
	}
	return result, nil
}

// RunNumeric is a convenience wrapper taking and returning raw float64
// values, matching the compiled calling convention.
func (vm *VM) RunNumeric(fn *FuncInfo, args []float64) (float64, error) {
	values := make([]Value, len(args))
	for i, a := range args {
		values[i] = Number(a)
	}
	result, err := vm.Run(fn, values)
	if err != nil {
		return 0, err
	}
	if !result.IsNumber() {
		return 0, fmt.Errorf("bytecode: %s returned %s, not a number: %w", fn.Name, result.Kind, ErrTypeMismatch)
	}
	return result.Num, nil
}

// runFrame interprets one call frame.
func (vm *VM) runFrame(fn *FuncInfo, args []Value, depth int) (Value, error) {
	if depth >= MaxCallDepth {
		return Nil, fmt.Errorf("bytecode: call depth %d: %w", depth, ErrStackOverflow)
	}

	code := vm.module.Code
	ip := int(fn.Start)
	end := int(fn.End)

	locals := make([]Value, fn.LocalCount)
	for i := range locals {
		locals[i] = Nil
	}
	copy(locals, args)

	stack := make([]Value, 0, 16)

	push := func(v Value) error {
		if len(stack) >= maxOperandStack {
			return fmt.Errorf("bytecode: operand stack at %s+%d: %w", fn.Name, ip-int(fn.Start), ErrStackOverflow)
		}
		stack = append(stack, v)
		return nil
	}
	pop := func() (Value, error) {
		if len(stack) == 0 {
			return Nil, fmt.Errorf("bytecode: operand stack underflow in %s at offset %d", fn.Name, ip-int(fn.Start))
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}
	popNumber := func(op Opcode) (float64, error) {
		v, err := pop()
		if err != nil {
			return 0, err
		}
		if !v.IsNumber() {
			return 0, fmt.Errorf("bytecode: %s on %s: %w", op, v.Kind, ErrTypeMismatch)
		}
		return v.Num, nil
	}
	popTwoNumbers := func(op Opcode) (a, b float64, err error) {
		b, err = popNumber(op)
		if err != nil {
			return 0, 0, err
		}
		a, err = popNumber(op)
		return a, b, err
	}

	for ip < end {
		op := Opcode(code[ip])
		if vm.Trace {
			fmt.Printf("%6d %-14s stack=%d\n", ip, op, len(stack))
		}

		if ip+op.InstructionLen() > end {
			return Nil, fmt.Errorf("bytecode: truncated %s at offset %d", op, ip)
		}
		ip++

		switch op {
		case OpNop:
			// nothing

		case OpPop:
			if _, err := pop(); err != nil {
				return Nil, err
			}

		case OpDup:
			v, err := pop()
			if err != nil {
				return Nil, err
			}
			if err := push(v); err != nil {
				return Nil, err
			}
			if err := push(v); err != nil {
				return Nil, err
			}

		case OpSwap:
			b, err := pop()
			if err != nil {
				return Nil, err
			}
			a, err := pop()
			if err != nil {
				return Nil, err
			}
			if err := push(b); err != nil {
				return Nil, err
			}
			if err := push(a); err != nil {
				return Nil, err
			}

		case OpConst:
			idx := binary.BigEndian.Uint16(code[ip:])
			ip += 2
			if int(idx) >= len(vm.module.Constants) {
				return Nil, fmt.Errorf("bytecode: constant index %d out of range in %s", idx, fn.Name)
			}
			if err := push(vm.module.Constants[idx].Value()); err != nil {
				return Nil, err
			}

		case OpConstZero:
			if err := push(Number(0)); err != nil {
				return Nil, err
			}

		case OpConstOne:
			if err := push(Number(1)); err != nil {
				return Nil, err
			}

		case OpConstNil:
			if err := push(Nil); err != nil {
				return Nil, err
			}

		case OpLoadLocal:
			slot := code[ip]
			ip++
			if int(slot) >= len(locals) {
				return Nil, fmt.Errorf("bytecode: local slot %d out of range in %s", slot, fn.Name)
			}
			if err := push(locals[slot]); err != nil {
				return Nil, err
			}

		case OpStoreLocal:
			slot := code[ip]
			ip++
			if int(slot) >= len(locals) {
				return Nil, fmt.Errorf("bytecode: local slot %d out of range in %s", slot, fn.Name)
			}
			v, err := pop()
			if err != nil {
				return Nil, err
			}
			locals[slot] = v

		case OpLoadGlobal:
			idx := binary.BigEndian.Uint16(code[ip:])
			ip += 2
			if err := push(vm.GetGlobal(idx)); err != nil {
				return Nil, err
			}

		case OpStoreGlobal:
			idx := binary.BigEndian.Uint16(code[ip:])
			ip += 2
			v, err := pop()
			if err != nil {
				return Nil, err
			}
			vm.globals[idx] = v

		case OpAdd:
			a, b, err := popTwoNumbers(op)
			if err != nil {
				return Nil, err
			}
			if err := push(Number(a + b)); err != nil {
				return Nil, err
			}

		case OpSub:
			a, b, err := popTwoNumbers(op)
			if err != nil {
				return Nil, err
			}
			if err := push(Number(a - b)); err != nil {
				return Nil, err
			}

		case OpMul:
			a, b, err := popTwoNumbers(op)
			if err != nil {
				return Nil, err
			}
			if err := push(Number(a * b)); err != nil {
				return Nil, err
			}

		case OpDiv:
			a, b, err := popTwoNumbers(op)
			if err != nil {
				return Nil, err
			}
			if b == 0 {
				return Nil, ErrDivideByZero
			}
			if err := push(Number(a / b)); err != nil {
				return Nil, err
			}

		case OpMod:
			a, b, err := popTwoNumbers(op)
			if err != nil {
				return Nil, err
			}
			if b == 0 {
				return Nil, ErrDivideByZero
			}
			if err := push(Number(math.Mod(a, b))); err != nil {
				return Nil, err
			}

		case OpNeg:
			a, err := popNumber(op)
			if err != nil {
				return Nil, err
			}
			if err := push(Number(-a)); err != nil {
				return Nil, err
			}

		case OpEq, OpNe:
			b, err := pop()
			if err != nil {
				return Nil, err
			}
			a, err := pop()
			if err != nil {
				return Nil, err
			}
			eq := a.Equals(b)
			if op == OpNe {
				eq = !eq
			}
			if err := push(Boolean(eq)); err != nil {
				return Nil, err
			}

		case OpLt, OpLe, OpGt, OpGe:
			a, b, err := popTwoNumbers(op)
			if err != nil {
				return Nil, err
			}
			var r bool
			switch op {
			case OpLt:
				r = a < b
			case OpLe:
				r = a <= b
			case OpGt:
				r = a > b
			case OpGe:
				r = a >= b
			}
			if err := push(Boolean(r)); err != nil {
				return Nil, err
			}

		case OpNot:
			v, err := pop()
			if err != nil {
				return Nil, err
			}
			if err := push(Boolean(!v.Truthy())); err != nil {
				return Nil, err
			}

		case OpConcat:
			b, err := pop()
			if err != nil {
				return Nil, err
			}
			a, err := pop()
			if err != nil {
				return Nil, err
			}
			if a.Kind != ValueString || b.Kind != ValueString {
				return Nil, fmt.Errorf("bytecode: CONCAT on %s and %s: %w", a.Kind, b.Kind, ErrTypeMismatch)
			}
			if err := push(Str(a.Str + b.Str)); err != nil {
				return Nil, err
			}

		case OpStrLen:
			v, err := pop()
			if err != nil {
				return Nil, err
			}
			if v.Kind != ValueString {
				return Nil, fmt.Errorf("bytecode: STRLEN on %s: %w", v.Kind, ErrTypeMismatch)
			}
			if err := push(Number(float64(len(v.Str)))); err != nil {
				return Nil, err
			}

		case OpJump:
			delta := int(int16(binary.BigEndian.Uint16(code[ip:])))
			ip += 2 + delta

		case OpJumpTrue, OpJumpFalse:
			delta := int(int16(binary.BigEndian.Uint16(code[ip:])))
			ip += 2
			v, err := pop()
			if err != nil {
				return Nil, err
			}
			if v.Truthy() == (op == OpJumpTrue) {
				ip += delta
			}

		case OpCall:
			fnIdx := binary.BigEndian.Uint16(code[ip:])
			argc := code[ip+2]
			ip += 3
			if int(fnIdx) >= len(vm.module.Functions) {
				return Nil, fmt.Errorf("bytecode: call to undefined function %d in %s", fnIdx, fn.Name)
			}
			callee := &vm.module.Functions[fnIdx]
			if argc != callee.ParamCount {
				return Nil, fmt.Errorf("bytecode: %s expects %d arguments, got %d", callee.Name, callee.ParamCount, argc)
			}
			callArgs := make([]Value, argc)
			for i := int(argc) - 1; i >= 0; i-- {
				v, err := pop()
				if err != nil {
					return Nil, err
				}
				callArgs[i] = v
			}
			result, err := vm.runFrame(callee, callArgs, depth+1)
			if err != nil {
				return Nil, err
			}
			if err := push(result); err != nil {
				return Nil, err
			}

		case OpArrayNew:
			if err := push(Array(nil)); err != nil {
				return Nil, err
			}

		case OpArrayGet:
			idx, err := popNumber(op)
			if err != nil {
				return Nil, err
			}
			arr, err := pop()
			if err != nil {
				return Nil, err
			}
			if arr.Kind != ValueArray {
				return Nil, fmt.Errorf("bytecode: ARRAY_GET on %s: %w", arr.Kind, ErrTypeMismatch)
			}
			i := int(idx)
			if i < 0 || i >= len(arr.Elems) {
				return Nil, fmt.Errorf("bytecode: array index %d out of bounds (len %d)", i, len(arr.Elems))
			}
			if err := push(arr.Elems[i]); err != nil {
				return Nil, err
			}

		case OpArraySet:
			v, err := pop()
			if err != nil {
				return Nil, err
			}
			idx, err := popNumber(op)
			if err != nil {
				return Nil, err
			}
			arr, err := pop()
			if err != nil {
				return Nil, err
			}
			if arr.Kind != ValueArray {
				return Nil, fmt.Errorf("bytecode: ARRAY_SET on %s: %w", arr.Kind, ErrTypeMismatch)
			}
			i := int(idx)
			if i < 0 || i > len(arr.Elems) {
				return Nil, fmt.Errorf("bytecode: array index %d out of bounds (len %d)", i, len(arr.Elems))
			}
			if i == len(arr.Elems) {
				arr.Elems = append(arr.Elems, v)
			} else {
				arr.Elems[i] = v
			}
			if err := push(arr); err != nil {
				return Nil, err
			}

		case OpArrayLen:
			arr, err := pop()
			if err != nil {
				return Nil, err
			}
			if arr.Kind != ValueArray {
				return Nil, fmt.Errorf("bytecode: ARRAY_LEN on %s: %w", arr.Kind, ErrTypeMismatch)
			}
			if err := push(Number(float64(len(arr.Elems)))); err != nil {
				return Nil, err
			}

		case OpTagNew:
			tag := code[ip]
			ip++
			v, err := pop()
			if err != nil {
				return Nil, err
			}
			if err := push(Tagged(tag, v)); err != nil {
				return Nil, err
			}

		case OpTagTest:
			tag := code[ip]
			ip++
			if len(stack) == 0 {
				return Nil, fmt.Errorf("bytecode: operand stack underflow in %s at offset %d", fn.Name, ip-int(fn.Start))
			}
			top := stack[len(stack)-1]
			if err := push(Boolean(top.Kind == ValueTagged && top.Tag == tag)); err != nil {
				return Nil, err
			}

		case OpUntag:
			v, err := pop()
			if err != nil {
				return Nil, err
			}
			if v.Kind != ValueTagged || len(v.Elems) != 1 {
				return Nil, fmt.Errorf("bytecode: UNTAG on %s: %w", v.Kind, ErrTypeMismatch)
			}
			if err := push(v.Elems[0]); err != nil {
				return Nil, err
			}

		case OpReturn:
			return pop()

		case OpHalt:
			if len(stack) == 0 {
				return Nil, &haltSignal{value: Nil}
			}
			return Nil, &haltSignal{value: stack[len(stack)-1]}

		default:
			return Nil, fmt.Errorf("bytecode: unknown opcode 0x%02X at offset %d in %s", byte(op), ip-1, fn.Name)
		}
	}

	// Falling off the end of a function returns nil.
	return Nil, nil
}
