package types

import (
	"testing"

	"github.com/saruga/til/internal/til/ast"
	"github.com/saruga/til/internal/til/lexer"
	"github.com/saruga/til/internal/til/modereg"
	"github.com/saruga/til/internal/til/parser"
	"github.com/saruga/til/internal/til/scope"
)

func checkSource(t *testing.T, mode, src string) *Checker {
	t.Helper()
	toks, errs := lexer.Lex("t.til", src)
	if len(errs) != 0 {
		t.Fatalf("lex errors: %v", errs)
	}
	_, start, err := parser.ParseModePrologue("t.til", toks)
	if err != nil {
		t.Fatalf("ParseModePrologue: %v", err)
	}
	body, err := parser.ParseProgram("t.til", toks, start)
	if err != nil {
		t.Fatalf("ParseProgram: %v", err)
	}
	m, err := modereg.Lookup("t.til", 1, 1, mode)
	if err != nil {
		t.Fatal(err)
	}
	c := NewChecker("t.til", scope.NewStack().Global(), m)
	c.Check(body)
	return c
}

func TestAssignableExactMatch(t *testing.T) {
	if !Assignable(ast.Custom("I64"), ast.Custom("I64")) {
		t.Error("I64 should be assignable to I64")
	}
	if Assignable(ast.Custom("I64"), ast.Custom("Str")) {
		t.Error("I64 should not be assignable to Str")
	}
}

func TestAssignableI64ToU8Narrowing(t *testing.T) {
	if !Assignable(ast.Custom("I64"), ast.Custom("U8")) {
		t.Error("I64 should narrow-assign to U8")
	}
	if Assignable(ast.Custom("U8"), ast.Custom("I64")) {
		t.Error("U8 should not widen-assign to I64 (narrowing is one-directional)")
	}
}

func TestCheckArityExact(t *testing.T) {
	f := &ast.FuncDef{Args: []ast.Declaration{{Name: "a", Type: ast.Custom("I64")}}}
	if err := CheckArity(f, 1); err != nil {
		t.Errorf("expected no error for matching arity, got %v", err)
	}
	if err := CheckArity(f, 2); err == nil {
		t.Error("expected an error for too many arguments")
	}
}

func TestCheckArityVariadic(t *testing.T) {
	f := &ast.FuncDef{Args: []ast.Declaration{
		{Name: "a", Type: ast.Custom("I64")},
		{Name: "rest", Type: ast.Multi(ast.Custom("I64"))},
	}}
	if err := CheckArity(f, 1); err != nil {
		t.Errorf("expected no error for the minimum variadic arity, got %v", err)
	}
	if err := CheckArity(f, 5); err != nil {
		t.Errorf("expected no error for extra variadic arguments, got %v", err)
	}
	if err := CheckArity(f, 0); err == nil {
		t.Error("expected an error for too few arguments")
	}
}

func TestModeRulesRejectBaseMutationInLib(t *testing.T) {
	c := checkSource(t, "lib", `mode lib
mut x := 1
`)
	if len(c.Diagnostics()) == 0 {
		t.Fatal("expected a diagnostic for base-level mutation in lib mode")
	}
}

func TestModeRulesAllowAnythingInScript(t *testing.T) {
	c := checkSource(t, "script", `mode script
mut x := 1
f(x)
`)
	for _, d := range c.Diagnostics() {
		if d.Severity == SeverityError {
			t.Errorf("unexpected error diagnostic in script mode: %v", d)
		}
	}
}

func TestProcDisallowedInPureMode(t *testing.T) {
	c := checkSource(t, "pure", `mode pure
work := proc() {
	x := 1
}
`)
	found := false
	for _, d := range c.Diagnostics() {
		found = found || d.Severity == SeverityError
	}
	if !found {
		t.Error("expected an error for a proc definition in pure mode")
	}
}

func TestReturnCoverageMissingReturn(t *testing.T) {
	c := checkSource(t, "script", `mode script
f := func() returns I64 {
	x := 1
}
`)
	found := false
	for _, d := range c.Diagnostics() {
		found = found || d.Severity == SeverityError
	}
	if !found {
		t.Error("expected a return-coverage error when not all paths return")
	}
}

func TestReturnCoverageIfElseBothReturn(t *testing.T) {
	c := checkSource(t, "script", `mode script
f := func() returns I64 {
	if true {
		return 1
	} else {
		return 2
	}
}
`)
	for _, d := range c.Diagnostics() {
		if d.Severity == SeverityError {
			t.Errorf("unexpected error: %v", d)
		}
	}
}

func TestUndeclaredThrowIsFlagged(t *testing.T) {
	c := checkSource(t, "script", `mode script
f := func() {
	throw DivisionByZeroError(0)
}
`)
	found := false
	for _, d := range c.Diagnostics() {
		found = found || d.Severity == SeverityError
	}
	if !found {
		t.Error("expected an error for a throw not declared in the function's 'throws' clause")
	}
}
