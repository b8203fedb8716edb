package eval_test

import (
	"testing"

	"github.com/saruga/til/internal/til/arena"
	"github.com/saruga/til/internal/til/ast"
	"github.com/saruga/til/internal/til/builtins"
	"github.com/saruga/til/internal/til/eval"
	"github.com/saruga/til/internal/til/scope"
)

func newCtx() *eval.Context {
	a := arena.New()
	s := scope.NewStack()
	return eval.NewContext("t.til", a, s, s.Global(), builtins.New(), nil, nil)
}

func litNum(n string) *ast.Expr {
	return &ast.Expr{Kind: ast.KLiteralNumber, Lit: ast.Literal{Num: n}}
}

func litBool(b bool) *ast.Expr {
	return &ast.Expr{Kind: ast.KLiteralBool, Lit: ast.Literal{Bool: b}}
}

func ident(name string) *ast.Expr {
	return &ast.Expr{Kind: ast.KIdentifier, Name: name}
}

func call(name string, args ...*ast.Expr) *ast.Expr {
	return &ast.Expr{Kind: ast.KFCall, Name: name, Params: args}
}

func declStmt(name string, t ast.ValueType, val *ast.Expr) *ast.Expr {
	return &ast.Expr{Kind: ast.KDeclaration, Params: []*ast.Expr{val}, Decl: &ast.Declaration{Name: name, Type: t}}
}

func assignStmt(name string, val *ast.Expr) *ast.Expr {
	return &ast.Expr{Kind: ast.KAssignment, Name: name, Params: []*ast.Expr{val}}
}

func body(stmts ...*ast.Expr) *ast.Expr {
	return &ast.Expr{Kind: ast.KBody, Params: stmts}
}

func TestExprArithmeticCall(t *testing.T) {
	c := newCtx()
	v, err := c.Expr(call("add", litNum("2"), litNum("3")))
	if err != nil {
		t.Fatal(err)
	}
	n, err := c.Arena.ReadI64(v.Offset)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("got %d, want 5", n)
	}
}

func TestDeclarationThenIdentifierLookup(t *testing.T) {
	c := newCtx()
	if _, err := c.Stmt(declStmt("x", ast.Custom("I64"), litNum("5"))); err != nil {
		t.Fatal(err)
	}
	v, err := c.Expr(ident("x"))
	if err != nil {
		t.Fatal(err)
	}
	n, err := c.Arena.ReadI64(v.Offset)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("got %d, want 5", n)
	}
}

func TestAssignmentOverwritesVariableBytes(t *testing.T) {
	c := newCtx()
	if _, err := c.Stmt(declStmt("x", ast.Custom("I64"), litNum("1"))); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Stmt(assignStmt("x", litNum("9"))); err != nil {
		t.Fatal(err)
	}
	offset, ok := c.Scope.LookupVar("x")
	if !ok {
		t.Fatal("x not found after assignment")
	}
	n, err := c.Arena.ReadI64(offset)
	if err != nil {
		t.Fatal(err)
	}
	if n != 9 {
		t.Errorf("got %d, want 9", n)
	}
}

func TestAssignmentToUndeclaredVariableErrors(t *testing.T) {
	c := newCtx()
	if _, err := c.Stmt(assignStmt("nope", litNum("1"))); err == nil {
		t.Error("expected an error assigning to an undeclared variable")
	}
}

func TestIfEvaluatesThenBranch(t *testing.T) {
	c := newCtx()
	ifExpr := &ast.Expr{Kind: ast.KIf, Params: []*ast.Expr{
		litBool(true),
		body(declStmt("x", ast.Custom("I64"), litNum("1"))),
		body(declStmt("x", ast.Custom("I64"), litNum("2"))),
	}}
	r, err := c.Stmt(ifExpr)
	if err != nil {
		t.Fatal(err)
	}
	n, err := c.Arena.ReadI64(r.Value.Offset)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("got %d, want 1 (then branch)", n)
	}
}

func TestIfEvaluatesElseBranch(t *testing.T) {
	c := newCtx()
	ifExpr := &ast.Expr{Kind: ast.KIf, Params: []*ast.Expr{
		litBool(false),
		body(declStmt("x", ast.Custom("I64"), litNum("1"))),
		body(declStmt("x", ast.Custom("I64"), litNum("2"))),
	}}
	r, err := c.Stmt(ifExpr)
	if err != nil {
		t.Fatal(err)
	}
	n, err := c.Arena.ReadI64(r.Value.Offset)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("got %d, want 2 (else branch)", n)
	}
}

func TestWhileLoopRunsUntilConditionFalse(t *testing.T) {
	c := newCtx()
	if _, err := c.Stmt(declStmt("i", ast.Custom("I64"), litNum("0"))); err != nil {
		t.Fatal(err)
	}
	whileExpr := &ast.Expr{Kind: ast.KWhile, Params: []*ast.Expr{
		call("lt", ident("i"), litNum("3")),
		body(assignStmt("i", call("add", ident("i"), litNum("1")))),
	}}
	if _, err := c.Stmt(whileExpr); err != nil {
		t.Fatal(err)
	}
	offset, _ := c.Scope.LookupVar("i")
	n, err := c.Arena.ReadI64(offset)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("got %d, want 3", n)
	}
}

func TestWhileLoopBreakStopsEarly(t *testing.T) {
	c := newCtx()
	if _, err := c.Stmt(declStmt("i", ast.Custom("I64"), litNum("0"))); err != nil {
		t.Fatal(err)
	}
	whileExpr := &ast.Expr{Kind: ast.KWhile, Params: []*ast.Expr{
		call("lt", ident("i"), litNum("10")),
		body(
			assignStmt("i", call("add", ident("i"), litNum("1"))),
			&ast.Expr{Kind: ast.KBreak},
		),
	}}
	if _, err := c.Stmt(whileExpr); err != nil {
		t.Fatal(err)
	}
	offset, _ := c.Scope.LookupVar("i")
	n, err := c.Arena.ReadI64(offset)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("got %d, want 1 (loop should break after one iteration)", n)
	}
}

func funcDef(args []ast.Declaration, bodyStmts []*ast.Expr) *ast.FuncDef {
	return &ast.FuncDef{Kind: ast.FKFunc, Args: args, Body: bodyStmts}
}

func TestUserCallMutArgumentWritesBackToCaller(t *testing.T) {
	c := newCtx()
	fn := funcDef(
		[]ast.Declaration{{Name: "n", Type: ast.Custom("I64"), IsMut: true}},
		[]*ast.Expr{assignStmt("n", call("add", ident("n"), litNum("1")))},
	)
	c.Global.Funcs["increment"] = fn

	if _, err := c.Stmt(declStmt("x", ast.Custom("I64"), litNum("5"))); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Stmt(call("increment", ident("x"))); err != nil {
		t.Fatal(err)
	}
	offset, _ := c.Scope.LookupVar("x")
	n, err := c.Arena.ReadI64(offset)
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Errorf("got %d, want 6 after mut write-back", n)
	}
}

func TestUserCallCopyArgumentLeavesCallerUntouched(t *testing.T) {
	c := newCtx()
	fn := funcDef(
		[]ast.Declaration{{Name: "n", Type: ast.Custom("I64"), IsCopy: true}},
		[]*ast.Expr{assignStmt("n", call("add", ident("n"), litNum("100")))},
	)
	c.Global.Funcs["bump"] = fn

	if _, err := c.Stmt(declStmt("x", ast.Custom("I64"), litNum("5"))); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Stmt(call("bump", ident("x"))); err != nil {
		t.Fatal(err)
	}
	offset, _ := c.Scope.LookupVar("x")
	n, err := c.Arena.ReadI64(offset)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("got %d, want 5 (copy must not mutate the caller's binding)", n)
	}
}

func TestUserCallOwnArgumentRemovesCallerBinding(t *testing.T) {
	c := newCtx()
	fn := funcDef([]ast.Declaration{{Name: "n", Type: ast.Custom("I64"), IsOwn: true}}, nil)
	c.Global.Funcs["consume"] = fn

	if _, err := c.Stmt(declStmt("x", ast.Custom("I64"), litNum("5"))); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Stmt(call("consume", ident("x"))); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Scope.LookupVar("x"); ok {
		t.Error("expected 'x' binding to be removed after an 'own' transfer")
	}
}

func TestUserCallReturnValue(t *testing.T) {
	c := newCtx()
	fn := funcDef(
		[]ast.Declaration{{Name: "a", Type: ast.Custom("I64")}, {Name: "b", Type: ast.Custom("I64")}},
		[]*ast.Expr{{Kind: ast.KReturn, Params: []*ast.Expr{call("add", ident("a"), ident("b"))}}},
	)
	c.Global.Funcs["sum"] = fn

	v, err := c.Expr(call("sum", litNum("2"), litNum("40")))
	if err != nil {
		t.Fatal(err)
	}
	n, err := c.Arena.ReadI64(v.Offset)
	if err != nil {
		t.Fatal(err)
	}
	if n != 42 {
		t.Errorf("got %d, want 42", n)
	}
}

func TestStructDefaultAppliesDefaultsThenOverridesArgs(t *testing.T) {
	c := newCtx()
	sd := &ast.StructDef{
		Name: "Point",
		Members: []ast.Declaration{
			{Name: "x", Type: ast.Custom("I64"), IsMut: true},
			{Name: "y", Type: ast.Custom("I64"), IsMut: true},
		},
		Defaults: map[string]*ast.Expr{"x": litNum("0"), "y": litNum("0")},
	}
	c.Global.Structs["Point"] = sd

	v, err := c.Expr(call("Point", litNum("3")))
	if err != nil {
		t.Fatal(err)
	}
	xOff, ok := fieldOffsetForTest(sd, v.Offset, "x")
	if !ok {
		t.Fatal("could not resolve field 'x'")
	}
	x, err := c.Arena.ReadI64(xOff)
	if err != nil {
		t.Fatal(err)
	}
	if x != 3 {
		t.Errorf("got x=%d, want 3 (positional override)", x)
	}

	yOff, ok := fieldOffsetForTest(sd, v.Offset, "y")
	if !ok {
		t.Fatal("could not resolve field 'y'")
	}
	y, err := c.Arena.ReadI64(yOff)
	if err != nil {
		t.Fatal(err)
	}
	if y != 0 {
		t.Errorf("got y=%d, want 0 (left at its default)", y)
	}
}

func TestEnumConstructWritesTagAndPayload(t *testing.T) {
	c := newCtx()
	i64 := ast.Custom("I64")
	ed := &ast.EnumDef{Name: "Maybe", Variants: []ast.Variant{
		{Name: "None"},
		{Name: "Some", Payload: &i64},
	}}
	c.Global.Enums["Maybe"] = ed

	v, err := c.Expr(call("Maybe.Some", litNum("7")))
	if err != nil {
		t.Fatal(err)
	}
	tag, err := c.Arena.ReadI64(v.Offset)
	if err != nil {
		t.Fatal(err)
	}
	if tag != 1 {
		t.Errorf("got tag %d, want 1 (Some is the second variant)", tag)
	}
	payload, err := c.Arena.ReadI64(v.Offset + 8)
	if err != nil {
		t.Fatal(err)
	}
	if payload != 7 {
		t.Errorf("got payload %d, want 7", payload)
	}
}

func TestBodyWithCatchHandlesThrow(t *testing.T) {
	c := newCtx()
	fn := funcDef(nil, []*ast.Expr{
		{Kind: ast.KThrow, Params: []*ast.Expr{call("DivisionByZeroError")}},
	})
	dz := &ast.StructDef{Name: "DivisionByZeroError"}
	c.Global.Funcs["fail"] = fn
	c.Global.Structs["DivisionByZeroError"] = dz

	throwingCall := call("fail")
	throwingCall.Throws = true
	catch := &ast.Expr{Kind: ast.KCatch, Name: "e", TypeName: "DivisionByZeroError",
		Params: []*ast.Expr{body(declStmt("handled", ast.Custom("I64"), litNum("1")))}}
	wrapper := body(throwingCall, catch)

	r, err := c.Stmt(wrapper)
	if err != nil {
		t.Fatal(err)
	}
	if r.IsThrow {
		t.Error("the throw should have been caught, not propagated")
	}
}

// fieldOffsetForTest recomputes the field-offset arithmetic evalStructDefault
// uses internally (private to the eval package), for structs whose fields
// are all I64-sized in these tests.
func fieldOffsetForTest(sd *ast.StructDef, baseOffset int, field string) (int, bool) {
	off := baseOffset
	for _, f := range sd.Fields() {
		sz := 8 // every field in these tests is I64
		if f.Name == field {
			return off, true
		}
		off += sz
	}
	return 0, false
}
