package ast_test

import (
	"testing"

	"github.com/saruga/til/internal/til/ast"
)

func TestWalkVisitsDepthFirstInEntryAndExitOrder(t *testing.T) {
	leaf1 := ast.NewExpr(ast.KIdentifier, nil, 1, 1)
	leaf1.Name = "a"
	leaf2 := ast.NewExpr(ast.KIdentifier, nil, 1, 2)
	leaf2.Name = "b"
	root := ast.NewExpr(ast.KFCall, []*ast.Expr{leaf1, leaf2}, 1, 0)
	root.Name = "add"

	var entries, exits []string
	root.Walk(
		func(e *ast.Expr) bool {
			entries = append(entries, e.Name)
			return true
		},
		func(e *ast.Expr) {
			exits = append(exits, e.Name)
		},
	)

	wantEntries := []string{"add", "a", "b"}
	wantExits := []string{"a", "b", "add"}
	if !equalSlices(entries, wantEntries) {
		t.Errorf("entry order = %v, want %v", entries, wantEntries)
	}
	if !equalSlices(exits, wantExits) {
		t.Errorf("exit order = %v, want %v", exits, wantExits)
	}
}

func TestWalkSkipsSubtreeWhenInReturnsFalse(t *testing.T) {
	leaf := ast.NewExpr(ast.KIdentifier, nil, 1, 1)
	leaf.Name = "skipped"
	root := ast.NewExpr(ast.KFCall, []*ast.Expr{leaf}, 1, 0)
	root.Name = "root"

	var visited []string
	root.Walk(func(e *ast.Expr) bool {
		visited = append(visited, e.Name)
		return e.Name != "root"
	}, nil)

	if !equalSlices(visited, []string{"root"}) {
		t.Errorf("expected only the root to be visited, got %v", visited)
	}
}

func TestWalkOnNilNodeIsNoOp(t *testing.T) {
	var e *ast.Expr
	called := false
	e.Walk(func(*ast.Expr) bool { called = true; return true }, nil)
	if called {
		t.Error("Walk on a nil node must not invoke the callback")
	}
}

func TestValueTypeStringRendersEachKind(t *testing.T) {
	sd := &ast.StructDef{Name: "Point"}
	ed := &ast.EnumDef{Name: "Color"}

	cases := []struct {
		name string
		vt   ast.ValueType
		want string
	}{
		{"custom", ast.Custom("I64"), "I64"},
		{"type-of-struct", ast.TypeOfStruct(sd), "Type<Point>"},
		{"type-of-enum", ast.TypeOfEnum(ed), "Type<Color>"},
		{"multi", ast.Multi(ast.Custom("Str")), "Str.."},
	}
	for _, c := range cases {
		if got := c.vt.String(); got != c.want {
			t.Errorf("%s: String() = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestInferIsRecognisedOnlyByItsPlaceholder(t *testing.T) {
	if !ast.Infer().IsInfer() {
		t.Error("Infer() should report IsInfer() == true")
	}
	if ast.Custom("I64").IsInfer() {
		t.Error("a concrete type must not report IsInfer() == true")
	}
}

func TestValueTypeEqualCustomAndMulti(t *testing.T) {
	a := ast.Custom("I64")
	b := ast.Custom("I64")
	c := ast.Custom("U8")
	if !a.Equal(b) {
		t.Error("two Custom(\"I64\") values should compare equal")
	}
	if a.Equal(c) {
		t.Error("Custom(\"I64\") and Custom(\"U8\") must not compare equal")
	}

	m1 := ast.Multi(ast.Custom("Str"))
	m2 := ast.Multi(ast.Custom("Str"))
	m3 := ast.Multi(ast.Custom("I64"))
	if !m1.Equal(m2) {
		t.Error("two Multi(Custom(\"Str\")) values should compare equal")
	}
	if m1.Equal(m3) {
		t.Error("Multi(Str) and Multi(I64) must not compare equal")
	}
}

func TestFuncDefIsVariadicChecksLastArg(t *testing.T) {
	fixed := &ast.FuncDef{Args: []ast.Declaration{{Name: "a", Type: ast.Custom("I64")}}}
	if fixed.IsVariadic() {
		t.Error("a fixed-arity func must not report IsVariadic()")
	}

	variadic := &ast.FuncDef{Args: []ast.Declaration{
		{Name: "a", Type: ast.Custom("I64")},
		{Name: "rest", Type: ast.Multi(ast.Custom("I64"))},
	}}
	if !variadic.IsVariadic() {
		t.Error("a func whose last arg is a Multi type must report IsVariadic()")
	}

	empty := &ast.FuncDef{}
	if empty.IsVariadic() {
		t.Error("a func with no args must not report IsVariadic()")
	}
}

func TestStructDefFieldsExcludesNamespacedConstants(t *testing.T) {
	sd := &ast.StructDef{
		Name: "Point",
		Members: []ast.Declaration{
			{Name: "x", Type: ast.Custom("I64"), IsMut: true},
			{Name: "y", Type: ast.Custom("I64"), IsMut: true},
			{Name: "helper", Type: ast.FunctionType(&ast.FuncDef{}), IsMut: false},
		},
	}

	fields := sd.Fields()
	if len(fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(fields))
	}
	if fields[0].Name != "x" || fields[1].Name != "y" {
		t.Errorf("fields out of order: %+v", fields)
	}

	if _, ok := sd.Field("helper"); ok {
		t.Error("Field should not resolve a namespaced constant")
	}
	f, ok := sd.Field("x")
	if !ok || f.Name != "x" {
		t.Error("Field should resolve a declared mutable field")
	}
	if _, ok := sd.Field("z"); ok {
		t.Error("Field should report false for an undeclared name")
	}
}

func TestEnumDefVariantLookup(t *testing.T) {
	payload := ast.Custom("Bool")
	ed := &ast.EnumDef{
		Name: "Color",
		Variants: []ast.Variant{
			{Name: "Red"},
			{Name: "Green", Payload: &payload},
		},
	}

	if idx := ed.VariantIndex("Red"); idx != 0 {
		t.Errorf("Red index = %d, want 0", idx)
	}
	if idx := ed.VariantIndex("Green"); idx != 1 {
		t.Errorf("Green index = %d, want 1", idx)
	}
	if idx := ed.VariantIndex("Blue"); idx != -1 {
		t.Errorf("Blue index = %d, want -1", idx)
	}

	v, ok := ed.Variant("Green")
	if !ok || v.Payload == nil || v.Payload.Custom != "Bool" {
		t.Errorf("unexpected Green variant: %+v", v)
	}
	if _, ok := ed.Variant("Blue"); ok {
		t.Error("Variant should report false for an undeclared name")
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
