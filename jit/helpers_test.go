package jit

import (
	"testing"

	"github.com/chazu/hotpath/pkg/bytecode"
)

// buildFn assembles a module holding a single function and returns both.
func buildFn(t *testing.T, name string, params, locals uint8, emit func(m *bytecode.Module)) (*bytecode.Module, *bytecode.FuncInfo) {
	t.Helper()
	m := bytecode.NewModule()
	m.BeginFunction(name, params, locals)
	emit(m)
	m.EndFunction()
	fn := m.FuncByName(name)
	if fn == nil {
		t.Fatalf("function %s missing after build", name)
	}
	return m, fn
}

// emitPoly writes poly(x) = 3x^2 + 2x + 1.
func emitPoly(m *bytecode.Module) {
	m.EmitNumber(3)
	m.EmitLocal(bytecode.OpLoadLocal, 0)
	m.EmitLocal(bytecode.OpLoadLocal, 0)
	m.Emit(bytecode.OpMul)
	m.Emit(bytecode.OpMul)
	m.EmitNumber(2)
	m.EmitLocal(bytecode.OpLoadLocal, 0)
	m.Emit(bytecode.OpMul)
	m.Emit(bytecode.OpAdd)
	m.Emit(bytecode.OpConstOne)
	m.Emit(bytecode.OpAdd)
	m.Emit(bytecode.OpReturn)
}

// emitRatio writes ratio(a, b) = a / b, trapping when b is zero.
func emitRatio(m *bytecode.Module) {
	m.EmitLocal(bytecode.OpLoadLocal, 0)
	m.EmitLocal(bytecode.OpLoadLocal, 1)
	m.Emit(bytecode.OpDiv)
	m.Emit(bytecode.OpReturn)
}

// emitStringly writes a function the translator must decline.
func emitStringly(m *bytecode.Module) {
	m.EmitString("a")
	m.EmitString("b")
	m.Emit(bytecode.OpConcat)
	m.Emit(bytecode.OpStrLen)
	m.Emit(bytecode.OpReturn)
}

// translateFn translates a single-function module, failing the test on
// error.
func translateFn(t *testing.T, m *bytecode.Module, fn *bytecode.FuncInfo) *Program {
	t.Helper()
	prog, err := NewTranslator().Translate(m, fn)
	if err != nil {
		t.Fatalf("translate %s: %v", fn.Name, err)
	}
	return prog
}
