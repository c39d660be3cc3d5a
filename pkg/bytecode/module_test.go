package bytecode

import (
	"testing"
)

func TestAddConstantDedup(t *testing.T) {
	m := NewModule()
	a := m.AddConstant(NumberConst(3.14))
	b := m.AddConstant(StringConst("x"))
	c := m.AddConstant(NumberConst(3.14))
	if a != c {
		t.Errorf("equal constants got distinct indexes %d and %d", a, c)
	}
	if a == b {
		t.Errorf("distinct constants share index %d", a)
	}
	if len(m.Constants) != 2 {
		t.Errorf("pool has %d entries, want 2", len(m.Constants))
	}
}

func TestFunctionBounds(t *testing.T) {
	m := NewModule()
	m.BeginFunction("first", 1, 2)
	m.EmitLocal(OpLoadLocal, 0)
	m.Emit(OpReturn)
	m.EndFunction()
	m.BeginFunction("second", 0, 0)
	m.Emit(OpConstZero)
	m.Emit(OpReturn)
	m.EndFunction()

	first := m.FuncByName("first")
	second := m.FuncByName("second")
	if first == nil || second == nil {
		t.Fatal("functions missing from table")
	}
	if first.Start != 0 || first.End != 3 {
		t.Errorf("first spans [%d, %d), want [0, 3)", first.Start, first.End)
	}
	if second.Start != first.End {
		t.Errorf("second starts at %d, want %d", second.Start, first.End)
	}
	if got := m.FuncAt(second.Start); got == nil || got.Name != "second" {
		t.Errorf("FuncAt(%d) = %v", second.Start, got)
	}
	if m.FuncAt(999) != nil {
		t.Error("FuncAt(999) should be nil")
	}
}

func TestFuncChecksumTracksCode(t *testing.T) {
	m := NewModule()
	m.BeginFunction("f", 0, 0)
	m.EmitNumber(1)
	m.Emit(OpReturn)
	m.EndFunction()
	fn := m.FuncByName("f")

	before := m.FuncChecksum(fn)
	m.Code[fn.Start] = byte(OpConstOne) // patch in place
	if after := m.FuncChecksum(fn); after == before {
		t.Error("checksum unchanged after patching code")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	m := NewModule()
	m.BeginFunction("calc", 2, 3)
	m.EmitLocal(OpLoadLocal, 0)
	m.EmitLocal(OpLoadLocal, 1)
	m.Emit(OpAdd)
	m.EmitNumber(2.5)
	m.Emit(OpMul)
	m.Emit(OpReturn)
	m.EndFunction()
	m.BeginFunction("label", 0, 0)
	m.EmitString("hello")
	m.Emit(OpReturn)
	m.EndFunction()
	m.AddConstant(Constant{Kind: ConstNil})

	data, err := m.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Deserialize(data)
	if err != nil {
		t.Fatal(err)
	}

	if got.Version != m.Version {
		t.Errorf("version %d, want %d", got.Version, m.Version)
	}
	if string(got.Code) != string(m.Code) {
		t.Error("code sections differ")
	}
	if len(got.Constants) != len(m.Constants) {
		t.Fatalf("constant count %d, want %d", len(got.Constants), len(m.Constants))
	}
	for i := range m.Constants {
		if got.Constants[i] != m.Constants[i] {
			t.Errorf("constant %d: %v, want %v", i, got.Constants[i], m.Constants[i])
		}
	}
	if len(got.Functions) != 2 {
		t.Fatalf("function count %d, want 2", len(got.Functions))
	}
	for i := range m.Functions {
		if got.Functions[i] != m.Functions[i] {
			t.Errorf("function %d: %+v, want %+v", i, got.Functions[i], m.Functions[i])
		}
	}

	// The round-tripped module must execute identically.
	want, err := NewVM(m).RunNumeric(m.FuncByName("calc"), []float64{1, 3})
	if err != nil {
		t.Fatal(err)
	}
	have, err := NewVM(got).RunNumeric(got.FuncByName("calc"), []float64{1, 3})
	if err != nil {
		t.Fatal(err)
	}
	if have != want {
		t.Errorf("round-tripped calc(1, 3) = %g, want %g", have, want)
	}
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":       {},
		"short":       {'H', 'P'},
		"bad magic":   {'N', 'O', 'P', 'E', 0, 1},
		"bad version": {'H', 'P', 'B', 'C', 0xFF, 0xFF},
	}
	for name, data := range cases {
		if _, err := Deserialize(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSerializeRejectsOpenFunction(t *testing.T) {
	m := NewModule()
	m.BeginFunction("open", 0, 0)
	if _, err := m.Serialize(); err == nil {
		t.Error("expected error serializing with an open function")
	}
}

func TestJumpPatching(t *testing.T) {
	m := NewModule()
	m.BeginFunction("pick", 1, 1)
	m.EmitLocal(OpLoadLocal, 0)
	skip := m.EmitJump(OpJumpFalse)
	m.EmitNumber(10)
	m.Emit(OpReturn)
	m.PatchJump(skip)
	m.EmitNumber(20)
	m.Emit(OpReturn)
	m.EndFunction()

	fn := m.FuncByName("pick")
	if got := runNumeric(t, m, fn, 1); got != 10 {
		t.Errorf("pick(1) = %g, want 10", got)
	}
	if got := runNumeric(t, m, fn, 0); got != 20 {
		t.Errorf("pick(0) = %g, want 20", got)
	}
}
