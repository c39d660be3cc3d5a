package jit

import (
	"errors"
	"testing"

	"github.com/chazu/hotpath/pkg/bytecode"
)

func TestTranslatePoly(t *testing.T) {
	m, fn := buildFn(t, "poly", 1, 1, emitPoly)
	prog := translateFn(t, m, fn)

	if prog.Name != "poly" || prog.Start != fn.Start {
		t.Errorf("identity: got (%s, %d)", prog.Name, prog.Start)
	}
	if prog.NumArgs != 1 || prog.NumSlots != 1 {
		t.Errorf("arity: got args=%d slots=%d", prog.NumArgs, prog.NumSlots)
	}
	if prog.Checksum != m.FuncChecksum(fn) {
		t.Error("checksum does not match source bytecode")
	}
	if prog.MaxStack < 3 {
		t.Errorf("MaxStack = %d, want at least 3", prog.MaxStack)
	}
	if last := prog.Ops[len(prog.Ops)-1]; last.Op != IRReturn {
		t.Errorf("last op = %s, want return", last.Op)
	}
}

func TestTranslateDeclinesControlFlow(t *testing.T) {
	m, fn := buildFn(t, "branchy", 1, 1, func(m *bytecode.Module) {
		m.EmitLocal(bytecode.OpLoadLocal, 0)
		skip := m.EmitJump(bytecode.OpJumpFalse)
		m.EmitNumber(1)
		m.Emit(bytecode.OpReturn)
		m.PatchJump(skip)
		m.EmitNumber(2)
		m.Emit(bytecode.OpReturn)
	})

	_, err := NewTranslator().Translate(m, fn)
	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("got %v, want UnsupportedError", err)
	}
	if unsupported.Op != bytecode.OpJumpFalse {
		t.Errorf("offending op = %s, want JUMP_FALSE", unsupported.Op)
	}
}

func TestFirstUnsupportedWins(t *testing.T) {
	var firstOffset uint32
	m, fn := buildFn(t, "multi", 0, 0, func(m *bytecode.Module) {
		m.EmitString("x")
		firstOffset = uint32(m.CurrentOffset())
		m.Emit(bytecode.OpStrLen) // first unsupported by opcode
		m.EmitWithOperand(bytecode.OpCall, 0, 0, 0)
		m.Emit(bytecode.OpReturn)
	})

	_, err := NewTranslator().Translate(m, fn)
	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("got %v, want UnsupportedError", err)
	}
	// The string constant load itself is the first failure, before the
	// STRLEN ever gets classified.
	if unsupported.Offset >= firstOffset {
		t.Errorf("offset %d, want the earlier constant load", unsupported.Offset)
	}
	if unsupported.Op != bytecode.OpConst {
		t.Errorf("offending op = %s, want CONST", unsupported.Op)
	}
}

func TestDeadCodeAfterReturnStillDeclines(t *testing.T) {
	m, fn := buildFn(t, "deadcode", 0, 0, func(m *bytecode.Module) {
		m.EmitNumber(1)
		m.Emit(bytecode.OpReturn)
		m.Emit(bytecode.OpArrayNew) // unreachable, still scanned
	})

	_, err := NewTranslator().Translate(m, fn)
	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("got %v, want UnsupportedError", err)
	}
	if unsupported.Op != bytecode.OpArrayNew {
		t.Errorf("offending op = %s, want ARRAY_NEW", unsupported.Op)
	}
}

func TestNonNumericConstantDeclines(t *testing.T) {
	m, fn := buildFn(t, "stringly", 0, 0, func(m *bytecode.Module) {
		m.EmitString("nope")
		m.Emit(bytecode.OpReturn)
	})
	_, err := NewTranslator().Translate(m, fn)
	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("got %v, want UnsupportedError", err)
	}
}

func TestUninitializedLocalReadDeclines(t *testing.T) {
	m, fn := buildFn(t, "uninit", 1, 2, func(m *bytecode.Module) {
		m.EmitLocal(bytecode.OpLoadLocal, 1) // never stored, interpreter sees nil
		m.Emit(bytecode.OpReturn)
	})
	_, err := NewTranslator().Translate(m, fn)
	var unsupported *UnsupportedError
	if !errors.As(err, &unsupported) {
		t.Fatalf("got %v, want UnsupportedError", err)
	}

	// Storing first makes the same read fine.
	m2, fn2 := buildFn(t, "init", 1, 2, func(m *bytecode.Module) {
		m.EmitLocal(bytecode.OpLoadLocal, 0)
		m.EmitLocal(bytecode.OpStoreLocal, 1)
		m.EmitLocal(bytecode.OpLoadLocal, 1)
		m.Emit(bytecode.OpReturn)
	})
	translateFn(t, m2, fn2)
}

func TestHaltTranslation(t *testing.T) {
	m, fn := buildFn(t, "haltVal", 0, 0, func(m *bytecode.Module) {
		m.EmitNumber(7)
		m.Emit(bytecode.OpHalt)
	})
	prog := translateFn(t, m, fn)
	if last := prog.Ops[len(prog.Ops)-1]; last.Op != IRReturn {
		t.Errorf("halt should lower to return, got %s", last.Op)
	}

	// A halt with nothing on the stack yields nil in the interpreter, so
	// it cannot compile.
	m2, fn2 := buildFn(t, "haltEmpty", 0, 0, func(m *bytecode.Module) {
		m.Emit(bytecode.OpHalt)
	})
	var unsupported *UnsupportedError
	if _, err := NewTranslator().Translate(m2, fn2); !errors.As(err, &unsupported) {
		t.Fatalf("got %v, want UnsupportedError", err)
	}
}

func TestMalformedBytecode(t *testing.T) {
	cases := []struct {
		name string
		emit func(m *bytecode.Module)
	}{
		{"truncated operand", func(m *bytecode.Module) {
			m.Emit(bytecode.OpConst)
		}},
		{"missing return", func(m *bytecode.Module) {
			m.EmitNumber(1)
			m.Emit(bytecode.OpPop)
		}},
		{"stack underflow", func(m *bytecode.Module) {
			m.Emit(bytecode.OpAdd)
			m.Emit(bytecode.OpReturn)
		}},
		{"slot out of range", func(m *bytecode.Module) {
			m.EmitLocal(bytecode.OpLoadLocal, 5)
			m.Emit(bytecode.OpReturn)
		}},
		{"constant index out of range", func(m *bytecode.Module) {
			m.EmitWithOperand(bytecode.OpConst, 0xFF, 0xFF)
			m.Emit(bytecode.OpReturn)
		}},
		{"empty return", func(m *bytecode.Module) {
			m.Emit(bytecode.OpReturn)
		}},
	}
	for _, tc := range cases {
		m, fn := buildFn(t, "bad", 0, 1, tc.emit)
		_, err := NewTranslator().Translate(m, fn)
		var malformed *MalformedError
		if !errors.As(err, &malformed) {
			t.Errorf("%s: got %v, want MalformedError", tc.name, err)
		}
	}
}

// Every opcode the interpreter knows must have an explicit translator
// verdict. This is what turns "new opcode added" into a test failure
// instead of a silent misclassification.
func TestOpcodeClassificationIsTotal(t *testing.T) {
	for _, op := range bytecode.AllOpcodes() {
		if _, ok := opClassification[op]; !ok {
			t.Errorf("opcode %s has no classification", op)
		}
	}
	if len(opClassification) != bytecode.OpcodeCount() {
		t.Errorf("classification table has %d entries, instruction set has %d",
			len(opClassification), bytecode.OpcodeCount())
	}
}
