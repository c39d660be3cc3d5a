package jit

import (
	"math"

	"github.com/chazu/hotpath/pkg/bytecode"
)

// MaxOptLevel is the highest optimization level ClosureBackend accepts.
// Higher requests clamp to it.
const MaxOptLevel = 2

// ClosureBackend compiles IR to Go closures. It is portable across every
// platform the runtime builds on and needs no executable memory:
//
//	level 0  direct dispatch loop over the IR
//	level 1  level 0 after constant folding
//	level 2  folded IR lowered to a threaded chain of per-instruction
//	         closures, removing the dispatch switch from the hot loop
//
// The zero value is ready to use.
type ClosureBackend struct{}

// NewClosureBackend creates the backend.
func NewClosureBackend() *ClosureBackend {
	return &ClosureBackend{}
}

// Name implements Backend.
func (b *ClosureBackend) Name() string { return "closure" }

// Compile implements Backend.
func (b *ClosureBackend) Compile(prog *Program, optLevel int) (*Artifact, error) {
	if prog == nil || len(prog.Ops) == 0 {
		return nil, &BackendError{Backend: b.Name(), Detail: "empty program"}
	}
	if optLevel < 0 {
		optLevel = 0
	}
	if optLevel > MaxOptLevel {
		optLevel = MaxOptLevel
	}

	ops := prog.Ops
	if optLevel >= 1 {
		var err error
		if ops, err = foldConstants(ops); err != nil {
			return nil, &BackendError{Backend: b.Name(), Detail: err.Error()}
		}
	}

	var entry NativeFunc
	if optLevel == 2 {
		fn, err := threadProgram(ops, prog)
		if err != nil {
			return nil, err
		}
		entry = fn
	} else {
		entry = dispatchProgram(ops, prog)
	}

	return &Artifact{
		Name:     prog.Name,
		Start:    prog.Start,
		Checksum: prog.Checksum,
		OptLevel: optLevel,
		Size:     artifactSize(ops),
		Entry:    entry,
	}, nil
}

// artifactSize is the cache accounting charge for a compiled program.
// Closures have no literal byte size, so the charge is proportional to
// instruction count: a fixed per-artifact overhead plus a per-instruction
// cost approximating the footprint of one closure frame.
func artifactSize(ops []Instr) int {
	return 64 + 24*len(ops)
}

func b2f(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// dispatchProgram builds the level 0/1 entry point: a plain loop with a
// switch per instruction. The operand stack and slot file live on the
// caller's stack so concurrent invocations never share state.
func dispatchProgram(ops []Instr, prog *Program) NativeFunc {
	numSlots := prog.NumSlots
	numArgs := prog.NumArgs
	maxStack := prog.MaxStack

	return func(args []float64) (float64, error) {
		if len(args) < numArgs {
			return 0, &BackendError{Backend: "closure", Detail: "argument count mismatch"}
		}
		slots := make([]float64, numSlots)
		copy(slots, args[:numArgs])
		stack := make([]float64, 0, maxStack)

		for _, in := range ops {
			switch in.Op {
			case IRConst:
				stack = append(stack, in.Imm)
			case IRLoad:
				stack = append(stack, slots[in.A])
			case IRStore:
				slots[in.A] = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			case IRDup:
				stack = append(stack, stack[len(stack)-1])
			case IRDrop:
				stack = stack[:len(stack)-1]
			case IRSwap:
				n := len(stack)
				stack[n-1], stack[n-2] = stack[n-2], stack[n-1]
			case IRAdd:
				n := len(stack)
				stack[n-2] += stack[n-1]
				stack = stack[:n-1]
			case IRSub:
				n := len(stack)
				stack[n-2] -= stack[n-1]
				stack = stack[:n-1]
			case IRMul:
				n := len(stack)
				stack[n-2] *= stack[n-1]
				stack = stack[:n-1]
			case IRDiv:
				n := len(stack)
				if stack[n-1] == 0 {
					return 0, bytecode.ErrDivideByZero
				}
				stack[n-2] /= stack[n-1]
				stack = stack[:n-1]
			case IRMod:
				n := len(stack)
				if stack[n-1] == 0 {
					return 0, bytecode.ErrDivideByZero
				}
				stack[n-2] = math.Mod(stack[n-2], stack[n-1])
				stack = stack[:n-1]
			case IRNeg:
				stack[len(stack)-1] = -stack[len(stack)-1]
			case IREq:
				n := len(stack)
				stack[n-2] = b2f(stack[n-2] == stack[n-1])
				stack = stack[:n-1]
			case IRNe:
				n := len(stack)
				stack[n-2] = b2f(stack[n-2] != stack[n-1])
				stack = stack[:n-1]
			case IRLt:
				n := len(stack)
				stack[n-2] = b2f(stack[n-2] < stack[n-1])
				stack = stack[:n-1]
			case IRLe:
				n := len(stack)
				stack[n-2] = b2f(stack[n-2] <= stack[n-1])
				stack = stack[:n-1]
			case IRGt:
				n := len(stack)
				stack[n-2] = b2f(stack[n-2] > stack[n-1])
				stack = stack[:n-1]
			case IRGe:
				n := len(stack)
				stack[n-2] = b2f(stack[n-2] >= stack[n-1])
				stack = stack[:n-1]
			case IRNot:
				stack[len(stack)-1] = b2f(stack[len(stack)-1] == 0)
			case IRReturn:
				return stack[len(stack)-1], nil
			}
		}
		// Unreachable: translation guarantees a terminal return.
		return 0, &BackendError{Backend: "closure", Detail: "program fell off the end"}
	}
}

// nativeFrame is the execution state threaded through level 2 steps.
type nativeFrame struct {
	stack []float64
	slots []float64
	sp    int
	ret   float64
	done  bool
	err   error
}

// step is one threaded instruction.
type step func(*nativeFrame)

// threadProgram builds the level 2 entry point: each instruction becomes
// its own closure specialized on its operand, and invocation is a flat
// loop over the chain with no dispatch switch.
func threadProgram(ops []Instr, prog *Program) (NativeFunc, error) {
	steps := make([]step, len(ops))
	for i, in := range ops {
		s, err := compileStep(in)
		if err != nil {
			return nil, err
		}
		steps[i] = s
	}

	numSlots := prog.NumSlots
	numArgs := prog.NumArgs
	maxStack := prog.MaxStack

	return func(args []float64) (float64, error) {
		if len(args) < numArgs {
			return 0, &BackendError{Backend: "closure", Detail: "argument count mismatch"}
		}
		f := nativeFrame{
			stack: make([]float64, maxStack),
			slots: make([]float64, numSlots),
		}
		copy(f.slots, args[:numArgs])
		for _, s := range steps {
			s(&f)
			if f.done {
				return f.ret, f.err
			}
		}
		return 0, &BackendError{Backend: "closure", Detail: "program fell off the end"}
	}, nil
}

func compileStep(in Instr) (step, error) {
	switch in.Op {
	case IRConst:
		imm := in.Imm
		return func(f *nativeFrame) {
			f.stack[f.sp] = imm
			f.sp++
		}, nil
	case IRLoad:
		slot := in.A
		return func(f *nativeFrame) {
			f.stack[f.sp] = f.slots[slot]
			f.sp++
		}, nil
	case IRStore:
		slot := in.A
		return func(f *nativeFrame) {
			f.sp--
			f.slots[slot] = f.stack[f.sp]
		}, nil
	case IRDup:
		return func(f *nativeFrame) {
			f.stack[f.sp] = f.stack[f.sp-1]
			f.sp++
		}, nil
	case IRDrop:
		return func(f *nativeFrame) { f.sp-- }, nil
	case IRSwap:
		return func(f *nativeFrame) {
			f.stack[f.sp-1], f.stack[f.sp-2] = f.stack[f.sp-2], f.stack[f.sp-1]
		}, nil
	case IRAdd:
		return func(f *nativeFrame) {
			f.sp--
			f.stack[f.sp-1] += f.stack[f.sp]
		}, nil
	case IRSub:
		return func(f *nativeFrame) {
			f.sp--
			f.stack[f.sp-1] -= f.stack[f.sp]
		}, nil
	case IRMul:
		return func(f *nativeFrame) {
			f.sp--
			f.stack[f.sp-1] *= f.stack[f.sp]
		}, nil
	case IRDiv:
		return func(f *nativeFrame) {
			f.sp--
			if f.stack[f.sp] == 0 {
				f.done, f.err = true, bytecode.ErrDivideByZero
				return
			}
			f.stack[f.sp-1] /= f.stack[f.sp]
		}, nil
	case IRMod:
		return func(f *nativeFrame) {
			f.sp--
			if f.stack[f.sp] == 0 {
				f.done, f.err = true, bytecode.ErrDivideByZero
				return
			}
			f.stack[f.sp-1] = math.Mod(f.stack[f.sp-1], f.stack[f.sp])
		}, nil
	case IRNeg:
		return func(f *nativeFrame) { f.stack[f.sp-1] = -f.stack[f.sp-1] }, nil
	case IREq:
		return func(f *nativeFrame) {
			f.sp--
			f.stack[f.sp-1] = b2f(f.stack[f.sp-1] == f.stack[f.sp])
		}, nil
	case IRNe:
		return func(f *nativeFrame) {
			f.sp--
			f.stack[f.sp-1] = b2f(f.stack[f.sp-1] != f.stack[f.sp])
		}, nil
	case IRLt:
		return func(f *nativeFrame) {
			f.sp--
			f.stack[f.sp-1] = b2f(f.stack[f.sp-1] < f.stack[f.sp])
		}, nil
	case IRLe:
		return func(f *nativeFrame) {
			f.sp--
			f.stack[f.sp-1] = b2f(f.stack[f.sp-1] <= f.stack[f.sp])
		}, nil
	case IRGt:
		return func(f *nativeFrame) {
			f.sp--
			f.stack[f.sp-1] = b2f(f.stack[f.sp-1] > f.stack[f.sp])
		}, nil
	case IRGe:
		return func(f *nativeFrame) {
			f.sp--
			f.stack[f.sp-1] = b2f(f.stack[f.sp-1] >= f.stack[f.sp])
		}, nil
	case IRNot:
		return func(f *nativeFrame) { f.stack[f.sp-1] = b2f(f.stack[f.sp-1] == 0) }, nil
	case IRReturn:
		return func(f *nativeFrame) {
			f.done = true
			f.ret = f.stack[f.sp-1]
		}, nil
	default:
		return nil, &BackendError{Backend: "closure", Detail: "unknown IR op " + in.Op.String()}
	}
}
