package bytecode

import (
	"strings"
	"testing"
)

func TestOpcodeTableConsistency(t *testing.T) {
	ops := AllOpcodes()
	if len(ops) != OpcodeCount() {
		t.Fatalf("AllOpcodes returned %d opcodes, OpcodeCount says %d", len(ops), OpcodeCount())
	}
	seen := map[string]Opcode{}
	for _, op := range ops {
		if !op.IsDefined() {
			t.Errorf("%s (0x%02X) listed but not defined", op, byte(op))
		}
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("opcode 0x%02X has no name", byte(op))
		}
		if prev, dup := seen[info.Name]; dup {
			t.Errorf("name %s used by both 0x%02X and 0x%02X", info.Name, byte(prev), byte(op))
		}
		seen[info.Name] = op
		if op.InstructionLen() != 1+op.OperandLen() {
			t.Errorf("%s: InstructionLen %d != 1 + OperandLen %d", op, op.InstructionLen(), op.OperandLen())
		}
		if info.OperandLen != op.OperandLen() {
			t.Errorf("%s: info.OperandLen %d != OperandLen() %d", op, info.OperandLen, op.OperandLen())
		}
	}
}

func TestUndefinedOpcode(t *testing.T) {
	op := Opcode(0xEE)
	if op.IsDefined() {
		t.Fatalf("0xEE should not be defined")
	}
	if !strings.HasPrefix(op.String(), "UNKNOWN") {
		t.Errorf("String of undefined opcode: got %q", op.String())
	}
	if op.InstructionLen() != 1 {
		t.Errorf("undefined opcode InstructionLen: got %d, want 1", op.InstructionLen())
	}
}

func TestJumpAndReturnFlags(t *testing.T) {
	for _, op := range []Opcode{OpJump, OpJumpTrue, OpJumpFalse} {
		if !op.IsJump() {
			t.Errorf("%s should be a jump", op)
		}
	}
	for _, op := range []Opcode{OpReturn, OpHalt} {
		if !op.IsReturn() {
			t.Errorf("%s should be a return", op)
		}
	}
	if OpAdd.IsJump() || OpAdd.IsReturn() {
		t.Error("OpAdd misclassified")
	}
}
