package jit

import (
	"path/filepath"
	"reflect"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "jit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleProgram(start uint32) *Program {
	return &Program{
		Name:     "poly",
		Start:    start,
		Checksum: 0xDEADBEEF,
		Ops: []Instr{
			{Op: IRLoad, A: 0},
			{Op: IRConst, Imm: 2.5},
			{Op: IRMul},
			{Op: IRReturn},
		},
		NumSlots: 1,
		NumArgs:  1,
		MaxStack: 2,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	want := sampleProgram(16)
	if err := store.Save(want, 2); err != nil {
		t.Fatal(err)
	}

	rec, ok, err := store.Load(16)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if rec.OptLevel != 2 {
		t.Errorf("opt level %d, want 2", rec.OptLevel)
	}
	if !reflect.DeepEqual(rec.Program, want) {
		t.Errorf("program round trip:\n got %+v\nwant %+v", rec.Program, want)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	store := openTestStore(t)
	if _, ok, err := store.Load(99); ok || err != nil {
		t.Errorf("missing record: ok=%v err=%v", ok, err)
	}
}

func TestStoreUpsert(t *testing.T) {
	store := openTestStore(t)
	prog := sampleProgram(16)
	if err := store.Save(prog, 0); err != nil {
		t.Fatal(err)
	}

	prog.Checksum = 0xCAFE
	if err := store.Save(prog, 2); err != nil {
		t.Fatal(err)
	}

	if n, _ := store.Count(); n != 1 {
		t.Errorf("count %d after upsert, want 1", n)
	}
	rec, ok, err := store.Load(16)
	if err != nil || !ok {
		t.Fatal(err)
	}
	if rec.OptLevel != 2 || rec.Program.Checksum != 0xCAFE {
		t.Errorf("stale record survived upsert: %+v", rec)
	}
}

func TestStoreLoadAllOrdersByStart(t *testing.T) {
	store := openTestStore(t)
	for _, start := range []uint32{200, 8, 64} {
		if err := store.Save(sampleProgram(start), 1); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := store.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("loaded %d records, want 3", len(recs))
	}
	for i, want := range []uint32{8, 64, 200} {
		if recs[i].Program.Start != want {
			t.Errorf("record %d starts at %d, want %d", i, recs[i].Program.Start, want)
		}
	}
}

func TestStoreDelete(t *testing.T) {
	store := openTestStore(t)
	if err := store.Save(sampleProgram(16), 1); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(16); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Load(16); ok {
		t.Error("record survived delete")
	}
	if err := store.Delete(16); err != nil {
		t.Errorf("deleting a missing record should be a no-op, got %v", err)
	}
}
