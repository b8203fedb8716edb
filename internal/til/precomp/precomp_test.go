package precomp

import (
	"testing"

	"github.com/saruga/til/internal/til/ast"
	"github.com/saruga/til/internal/til/scope"
)

func declStmt(name string, typeName string) *ast.Expr {
	e := ast.NewExpr(ast.KDeclaration, []*ast.Expr{{Kind: ast.KLiteralNumber, Lit: ast.Literal{Num: "0"}}}, 1, 1)
	e.Decl = &ast.Declaration{Name: name, Type: ast.Custom(typeName)}
	return e
}

func TestRewriteUFCSKnownReceiver(t *testing.T) {
	call := ast.NewExpr(ast.KFCall, []*ast.Expr{{Kind: ast.KLiteralNumber, Lit: ast.Literal{Num: "1"}}}, 1, 1)
	call.Name = "p.area"

	p := New("t.til", scope.NewStack().Global())
	p.Body([]*ast.Expr{declStmt("p", "Point"), call}, map[string]string{})

	if call.Name != "Point.area" {
		t.Errorf("got call name %q, want %q", call.Name, "Point.area")
	}
	if len(call.Params) != 2 || call.Params[0].Kind != ast.KIdentifier || call.Params[0].Name != "p" {
		t.Errorf("expected the receiver prepended as the first argument, got %+v", call.Params)
	}
}

func TestRewriteUFCSLeavesQualifiedCallAlone(t *testing.T) {
	call := ast.NewExpr(ast.KFCall, nil, 1, 1)
	call.Name = "Point.area"

	p := New("t.til", scope.NewStack().Global())
	p.Body([]*ast.Expr{call}, map[string]string{})

	if call.Name != "Point.area" {
		t.Errorf("a call on an unknown receiver must be left untouched, got %q", call.Name)
	}
	if len(call.Params) != 0 {
		t.Errorf("no argument should be prepended, got %+v", call.Params)
	}
}

func TestRewriteUFCSUnknownReceiverLeftAlone(t *testing.T) {
	call := ast.NewExpr(ast.KFCall, nil, 1, 1)
	call.Name = "unknown.method"

	p := New("t.til", scope.NewStack().Global())
	p.Body([]*ast.Expr{call}, map[string]string{})

	if call.Name != "unknown.method" {
		t.Errorf("a call on a receiver with no known static type must be left untouched, got %q", call.Name)
	}
}

func TestInlineIntrinsicLoc(t *testing.T) {
	call := ast.NewExpr(ast.KFCall, nil, 3, 7)
	call.Name = "loc"

	p := New("prog.til", scope.NewStack().Global())
	p.Body([]*ast.Expr{call}, map[string]string{})

	if call.Kind != ast.KLiteralStr {
		t.Fatalf("expected loc() to become a string literal, got kind %v", call.Kind)
	}
	if call.Lit.Str != "prog.til:3:7" {
		t.Errorf("got %q, want %q", call.Lit.Str, "prog.til:3:7")
	}
}

func TestInlineIntrinsicLineAndCol(t *testing.T) {
	line := ast.NewExpr(ast.KFCall, nil, 5, 9)
	line.Name = "_line"
	col := ast.NewExpr(ast.KFCall, nil, 5, 9)
	col.Name = "_col"

	p := New("t.til", scope.NewStack().Global())
	p.Body([]*ast.Expr{line, col}, map[string]string{})

	if line.Kind != ast.KLiteralNumber || line.Lit.Num != "5" {
		t.Errorf("got _line -> %+v, want number literal 5", line)
	}
	if col.Kind != ast.KLiteralNumber || col.Lit.Num != "9" {
		t.Errorf("got _col -> %+v, want number literal 9", col)
	}
}

func TestUFCSInsideFuncBodySeesItsOwnArgs(t *testing.T) {
	inner := ast.NewExpr(ast.KFCall, nil, 1, 1)
	inner.Name = "self.area"
	fnBody := []*ast.Expr{inner}
	fn := &ast.FuncDef{
		Args: []ast.Declaration{{Name: "self", Type: ast.Custom("Point")}},
		Body: fnBody,
	}
	fnExpr := ast.NewExpr(ast.KFuncDef, nil, 1, 1)
	fnExpr.Func = fn
	decl := ast.NewExpr(ast.KDeclaration, []*ast.Expr{fnExpr}, 1, 1)
	decl.Decl = &ast.Declaration{Name: "area", Type: ast.Infer()}

	p := New("t.til", scope.NewStack().Global())
	p.Body([]*ast.Expr{decl}, map[string]string{})

	if inner.Name != "Point.area" {
		t.Errorf("got %q, want %q", inner.Name, "Point.area")
	}
}
