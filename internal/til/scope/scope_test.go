package scope

import (
	"testing"

	"github.com/saruga/til/internal/til/ast"
)

func TestDeclareAndLookupVar(t *testing.T) {
	s := NewStack()
	s.DeclareVar("x", 7)
	off, ok := s.LookupVar("x")
	if !ok || off != 7 {
		t.Fatalf("LookupVar(x) = (%d, %v), want (7, true)", off, ok)
	}
}

func TestBlockFrameIsTransparent(t *testing.T) {
	s := NewStack()
	s.DeclareVar("g", 1)
	s.Push(KindBlock)
	defer s.Pop()
	s.DeclareVar("b", 2)

	if off, ok := s.LookupVar("g"); !ok || off != 1 {
		t.Errorf("global var not visible from block frame: (%d, %v)", off, ok)
	}
	if off, ok := s.LookupVar("b"); !ok || off != 2 {
		t.Errorf("block var not visible in its own frame: (%d, %v)", off, ok)
	}
}

func TestFunctionFrameBoundary(t *testing.T) {
	s := NewStack()
	s.DeclareVar("g", 1)
	s.Push(KindBlock)
	s.DeclareVar("outerLocal", 2)
	s.Push(KindFunction)
	defer s.Pop()
	s.DeclareVar("inner", 3)

	if _, ok := s.LookupVar("outerLocal"); ok {
		t.Error("a function frame must not see its caller's block locals")
	}
	if off, ok := s.LookupVar("g"); !ok || off != 1 {
		t.Errorf("global frame must remain visible past a function boundary: (%d, %v)", off, ok)
	}
	if off, ok := s.LookupVar("inner"); !ok || off != 3 {
		t.Errorf("function's own locals must be visible: (%d, %v)", off, ok)
	}
}

func TestPopGlobalPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic popping the global frame")
		}
	}()
	NewStack().Pop()
}

func TestStructsAndEnumsVisibleAcrossFrames(t *testing.T) {
	s := NewStack()
	s.Global().DeclareStruct("Point", &ast.StructDef{Name: "Point"})
	s.Global().DeclareEnum("Color", &ast.EnumDef{Name: "Color"})

	s.Push(KindFunction)
	defer s.Pop()

	if _, ok := s.LookupStruct("Point"); !ok {
		t.Error("struct defs must be visible across function boundaries")
	}
	if _, ok := s.LookupEnum("Color"); !ok {
		t.Error("enum defs must be visible across function boundaries")
	}
}

func TestAllFramesIncludesEveryFrame(t *testing.T) {
	s := NewStack()
	s.Push(KindBlock)
	s.Push(KindFunction)
	if got := len(s.AllFrames()); got != 3 {
		t.Errorf("AllFrames() returned %d frames, want 3", got)
	}
	if s.AllFrames()[0].Kind != KindGlobal {
		t.Error("AllFrames()[0] must be the global frame")
	}
}
