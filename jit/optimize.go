package jit

import "math"

// foldConstants runs a peephole pass over straight-line IR, collapsing
// operations whose inputs are literal constants. Folding evaluates the
// exact operation the backend would execute, so IEEE-754 edge cases
// (NaN, infinities, signed zero) come out bit-identical; no algebraic
// identities are applied. Division and modulo by a literal zero are left
// in place so the runtime trap still fires in program order.
func foldConstants(ops []Instr) ([]Instr, error) {
	out := make([]Instr, 0, len(ops))

	// lastConst reports whether the n most recently emitted instructions
	// are all IRConst, returning their values.
	lastConst := func(n int) ([]float64, bool) {
		if len(out) < n {
			return nil, false
		}
		vals := make([]float64, n)
		for i := 0; i < n; i++ {
			in := out[len(out)-n+i]
			if in.Op != IRConst {
				return nil, false
			}
			vals[i] = in.Imm
		}
		return vals, true
	}

	replace := func(n int, imm float64) {
		out = out[:len(out)-n]
		out = append(out, Instr{Op: IRConst, Imm: imm})
	}

	for _, in := range ops {
		switch in.Op {
		case IRAdd, IRSub, IRMul, IRDiv, IRMod, IREq, IRNe, IRLt, IRLe, IRGt, IRGe:
			if v, ok := lastConst(2); ok {
				a, b := v[0], v[1]
				folded := true
				var r float64
				switch in.Op {
				case IRAdd:
					r = a + b
				case IRSub:
					r = a - b
				case IRMul:
					r = a * b
				case IRDiv:
					if b == 0 {
						folded = false
					} else {
						r = a / b
					}
				case IRMod:
					if b == 0 {
						folded = false
					} else {
						r = math.Mod(a, b)
					}
				case IREq:
					r = b2f(a == b)
				case IRNe:
					r = b2f(a != b)
				case IRLt:
					r = b2f(a < b)
				case IRLe:
					r = b2f(a <= b)
				case IRGt:
					r = b2f(a > b)
				case IRGe:
					r = b2f(a >= b)
				}
				if folded {
					replace(2, r)
					continue
				}
			}

		case IRNeg:
			if v, ok := lastConst(1); ok {
				replace(1, -v[0])
				continue
			}

		case IRNot:
			if v, ok := lastConst(1); ok {
				replace(1, b2f(v[0] == 0))
				continue
			}

		case IRDup:
			if v, ok := lastConst(1); ok {
				out = append(out, Instr{Op: IRConst, Imm: v[0]})
				continue
			}

		case IRDrop:
			if _, ok := lastConst(1); ok {
				out = out[:len(out)-1]
				continue
			}

		case IRSwap:
			if v, ok := lastConst(2); ok {
				out = out[:len(out)-2]
				out = append(out,
					Instr{Op: IRConst, Imm: v[1]},
					Instr{Op: IRConst, Imm: v[0]})
				continue
			}
		}
		out = append(out, in)
	}
	return out, nil
}
