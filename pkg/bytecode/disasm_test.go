package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleListsFunctionsAndOperands(t *testing.T) {
	m := NewModule()
	m.BeginFunction("main", 1, 2)
	m.EmitNumber(42)
	m.EmitLocal(OpStoreLocal, 1)
	m.EmitLocal(OpLoadLocal, 1)
	m.Emit(OpReturn)
	m.EndFunction()

	out := Disassemble(m)
	for _, want := range []string{"main", "CONST", "STORE_LOCAL", "RETURN", "42"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestDisassembleTruncated(t *testing.T) {
	m := NewModule()
	m.BeginFunction("trunc", 0, 0)
	m.Emit(OpConst) // operand bytes missing
	m.EndFunction()

	out := DisassembleFunc(m, m.FuncByName("trunc"))
	if !strings.Contains(strings.ToLower(out), "truncated") {
		t.Errorf("expected truncation marker:\n%s", out)
	}
}
