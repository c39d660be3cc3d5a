package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble renders a whole module as human-readable text, one function
// at a time.
func Disassemble(m *Module) string {
	var sb strings.Builder
	for i := range m.Functions {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(DisassembleFunc(m, &m.Functions[i]))
	}
	return sb.String()
}

// DisassembleFunc renders a single function.
func DisassembleFunc(m *Module, fn *FuncInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "== %s (start=%d params=%d locals=%d) ==\n", fn.Name, fn.Start, fn.ParamCount, fn.LocalCount)

	ip := int(fn.Start)
	end := int(fn.End)
	for ip < end {
		next, line := disassembleInstruction(m, ip, end)
		sb.WriteString(line)
		sb.WriteByte('\n')
		ip = next
	}
	return sb.String()
}

// disassembleInstruction renders one instruction and returns the offset of
// the next one.
func disassembleInstruction(m *Module, ip, end int) (int, string) {
	op := Opcode(m.Code[ip])
	if ip+op.InstructionLen() > end {
		return end, fmt.Sprintf("%6d  %s <truncated>", ip, op)
	}

	switch {
	case op == OpConst:
		idx := binary.BigEndian.Uint16(m.Code[ip+1:])
		operand := "<bad index>"
		if int(idx) < len(m.Constants) {
			operand = m.Constants[idx].String()
		}
		return ip + 3, fmt.Sprintf("%6d  %-14s %d (%s)", ip, op, idx, operand)

	case op == OpLoadLocal || op == OpStoreLocal:
		return ip + 2, fmt.Sprintf("%6d  %-14s slot %d", ip, op, m.Code[ip+1])

	case op == OpLoadGlobal || op == OpStoreGlobal:
		idx := binary.BigEndian.Uint16(m.Code[ip+1:])
		return ip + 3, fmt.Sprintf("%6d  %-14s global %d", ip, op, idx)

	case op.IsJump():
		delta := int(int16(binary.BigEndian.Uint16(m.Code[ip+1:])))
		return ip + 3, fmt.Sprintf("%6d  %-14s %+d -> %d", ip, op, delta, ip+3+delta)

	case op == OpCall:
		fnIdx := binary.BigEndian.Uint16(m.Code[ip+1:])
		argc := m.Code[ip+3]
		name := "<bad index>"
		if int(fnIdx) < len(m.Functions) {
			name = m.Functions[fnIdx].Name
		}
		return ip + 4, fmt.Sprintf("%6d  %-14s %s/%d", ip, op, name, argc)

	case op == OpTagNew || op == OpTagTest:
		return ip + 2, fmt.Sprintf("%6d  %-14s tag %d", ip, op, m.Code[ip+1])

	default:
		return ip + op.InstructionLen(), fmt.Sprintf("%6d  %s", ip, op)
	}
}
