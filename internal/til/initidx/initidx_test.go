package initidx

import (
	"testing"
	"testing/fstest"
)

func TestIndexFileRegistersTopLevelDecls(t *testing.T) {
	fsys := fstest.MapFS{
		"main.til": &fstest.MapFile{Data: []byte(`mode script
greeting := "hi"
Point := struct { x := 0 }
Color := enum { Red, Green }
area := func(p: Point) returns I64 { return p.x }
`)},
	}
	ix := New(fsys, nil)
	idx, err := ix.IndexFile("main.til")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.Global.ArenaIndex["greeting"]; !ok {
		t.Error("expected 'greeting' registered in global arena index")
	}
	if _, ok := idx.Global.Structs["Point"]; !ok {
		t.Error("expected 'Point' registered as a struct")
	}
	if _, ok := idx.Global.Enums["Color"]; !ok {
		t.Error("expected 'Color' registered as an enum")
	}
	if _, ok := idx.Global.Funcs["area"]; !ok {
		t.Error("expected 'area' registered as a func")
	}
}

func TestIndexFileDuplicateDeclaration(t *testing.T) {
	fsys := fstest.MapFS{
		"main.til": &fstest.MapFile{Data: []byte(`mode script
x := 1
x := 2
`)},
	}
	_, err := New(fsys, nil).IndexFile("main.til")
	if err == nil {
		t.Fatal("expected a duplicate-declaration error")
	}
}

func TestIndexFileResolvesImport(t *testing.T) {
	fsys := fstest.MapFS{
		"lib/greet.til": &fstest.MapFile{Data: []byte(`mode lib
hello := func() returns Str { return "hello" }
`)},
		"main.til": &fstest.MapFile{Data: []byte(`mode script
import("lib.greet")
x := hello()
`)},
	}
	ix := New(fsys, []string{"."})
	idx, err := ix.IndexFile("main.til")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.Global.Funcs["hello"]; !ok {
		t.Error("expected 'hello' pulled in from the imported file")
	}
	if len(idx.Files) != 2 {
		t.Errorf("got %d files, want 2 (import + entry)", len(idx.Files))
	}
}

func TestIndexFileImportCycleDetected(t *testing.T) {
	fsys := fstest.MapFS{
		"a.til": &fstest.MapFile{Data: []byte(`mode lib
import("b")
`)},
		"b.til": &fstest.MapFile{Data: []byte(`mode lib
import("a")
`)},
	}
	_, err := New(fsys, []string{"."}).IndexFile("a.til")
	if err == nil {
		t.Fatal("expected an import-cycle error")
	}
}

func TestIndexFileUnresolvedImport(t *testing.T) {
	fsys := fstest.MapFS{
		"main.til": &fstest.MapFile{Data: []byte(`mode script
import("nonexistent.module")
`)},
	}
	_, err := New(fsys, []string{"."}).IndexFile("main.til")
	if err == nil {
		t.Fatal("expected an unresolved-import error")
	}
}
