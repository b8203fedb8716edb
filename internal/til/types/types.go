// Package types is the type checker: assignability, call-arity, the
// switch/if condition rules, throws-contract, mode rules, and the
// return-coverage analysis. It builds on the init pass in initidx for
// name resolution; diagnostics accumulate across a whole file rather
// than failing at the first error.
package types

import (
	"fmt"
	"strings"

	"github.com/saruga/til/internal/til/ast"
	"github.com/saruga/til/internal/til/scope"
)

// Severity distinguishes a hard TypeError from a non-fatal warning (e.g.
// a declared-but-never-thrown throws type).
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Diagnostic is one TypeError or warning, accumulated rather than
// returned immediately.
type Diagnostic struct {
	Path      string
	Line, Col int
	Message   string
	Severity  Severity
}

func (d *Diagnostic) Error() string {
	tag := "Type"
	if d.Severity == SeverityWarning {
		tag = "Type Warning"
	}
	return fmt.Sprintf("%s:%d:%d: %s ERROR: %s", d.Path, d.Line, d.Col, tag, d.Message)
}

// Primitive type names recognised without a struct/enum lookup.
const (
	TI64  = "I64"
	TU8   = "U8"
	TStr  = "Str"
	TBool = "Bool"
)

// Checker type-checks one file's body against a shared global frame
// built by initidx.
type Checker struct {
	Path   string
	Global *scope.Frame
	Mode   ast.ModeDef

	diags []*Diagnostic
}

// NewChecker builds a Checker for one file.
func NewChecker(path string, global *scope.Frame, mode ast.ModeDef) *Checker {
	return &Checker{Path: path, Global: global, Mode: mode}
}

// Diagnostics returns every TypeError/warning accumulated so far.
func (c *Checker) Diagnostics() []*Diagnostic { return c.diags }

func (c *Checker) errorf(e *ast.Expr, format string, args ...interface{}) {
	c.diags = append(c.diags, &Diagnostic{Path: c.Path, Line: e.Line, Col: e.Col, Message: fmt.Sprintf(format, args...)})
}

func (c *Checker) warnf(e *ast.Expr, format string, args ...interface{}) {
	c.diags = append(c.diags, &Diagnostic{Path: c.Path, Line: e.Line, Col: e.Col, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning})
}

// Check type-checks every top-level statement of body, accumulating
// diagnostics and returning an error (errHasDiagnostics) only if at
// least one SeverityError diagnostic was recorded. checkBody's
// call-site/declaration flow pass runs over the whole top-level body in
// addition to checkTopLevel's per-statement mode-rule/func-def dispatch.
func (c *Checker) Check(body *ast.Expr) error {
	for _, stmt := range body.Params {
		c.checkTopLevel(stmt)
	}
	c.checkBody(body.Params, typeEnv{})
	c.checkMainProc(body)

	for _, d := range c.diags {
		if d.Severity == SeverityError {
			return errHasDiagnostics{}
		}
	}
	return nil
}

type errHasDiagnostics struct{}

func (errHasDiagnostics) Error() string { return "type checking found errors" }

func (c *Checker) checkTopLevel(stmt *ast.Expr) {
	if stmt.Kind != ast.KDeclaration || len(stmt.Params) != 1 {
		c.checkModeRules(stmt)
		return
	}
	rhs := stmt.Params[0]
	if rhs.Kind == ast.KFuncDef {
		c.checkFuncDef(rhs.Func)
		return
	}
	c.checkModeRules(stmt)
}

// checkMainProc enforces that a mode requiring an entry point (cli's
// NeedsMainProc) actually declares a top-level 'main' func/proc. The
// implicit call to main itself is synthesised by the interpreter, once
// this check has confirmed main exists.
func (c *Checker) checkMainProc(body *ast.Expr) {
	if !c.Mode.NeedsMainProc {
		return
	}
	if _, ok := c.Global.Funcs["main"]; ok {
		return
	}
	anchor := body
	if len(body.Params) > 0 {
		anchor = body.Params[0]
	}
	c.errorf(anchor, "mode '%s' requires a 'main' proc/func, but none is declared in this file", c.Mode.Name)
}

// checkModeRules enforces the active mode's per-mode capability flags
// for base-level (outside any func/proc) mutation and calls.
func (c *Checker) checkModeRules(stmt *ast.Expr) {
	if c.Mode.AllowsBaseAnything {
		return
	}
	switch stmt.Kind {
	case ast.KAssignment:
		if !c.Mode.AllowsBaseMut {
			c.errorf(stmt, "mode '%s' does not allow mutation at the top level", c.Mode.Name)
		}
	case ast.KFCall:
		if !c.Mode.AllowsBaseCalls {
			c.errorf(stmt, "mode '%s' does not allow function calls at the top level", c.Mode.Name)
		}
	case ast.KDeclaration:
		if stmt.Decl != nil && stmt.Decl.IsMut && !c.Mode.AllowsBaseMut {
			c.errorf(stmt, "mode '%s' does not allow 'mut' declarations at the top level", c.Mode.Name)
		}
	}
}

// checkFuncDef type-checks one function body: throws contract,
// return-coverage, and (via checkBody) call-site arity/assignability
// and switch exhaustiveness within the function's own body.
func (c *Checker) checkFuncDef(f *ast.FuncDef) {
	if f.Kind == ast.FKProc && !c.Mode.AllowsProcs {
		// attribute the diagnostic to the function's first body statement if present
		if len(f.Body) > 0 {
			c.errorf(f.Body[0], "mode '%s' does not allow 'proc' definitions", c.Mode.Name)
		}
	}

	local := map[string]bool{}
	for _, t := range f.Throws {
		local[t.String()] = false
	}
	c.checkThrowsInBody(f.Body, local)
	for name, thrown := range local {
		if !thrown {
			if len(f.Body) > 0 {
				c.warnf(f.Body[0], "declared throws type '%s' is never thrown in this function", name)
			}
		}
	}

	if len(f.Returns) > 0 && !allPathsReturn(f.Body) {
		if len(f.Body) > 0 {
			c.errorf(f.Body[len(f.Body)-1], "not all code paths return a value")
		}
	}

	for _, a := range f.Args {
		mods := 0
		if a.IsMut {
			mods++
		}
		if a.IsCopy {
			mods++
		}
		if a.IsOwn {
			mods++
		}
		if mods > 1 {
			c.errorf(f.Body[0], "argument '%s' cannot combine mut/copy/own modifiers", a.Name)
		}
	}
	if f.IsVariadic() {
		for _, a := range f.Args[:len(f.Args)-1] {
			if a.Type.Kind == ast.VKMulti {
				c.errorf(f.Body[0], "variadic argument must be last")
			}
		}
	}

	env := typeEnv{}
	for _, a := range f.Args {
		env[a.Name] = a.Type
	}
	c.checkBody(f.Body, env)
}

// checkThrowsInBody walks a function body marking which declared throws
// types are actually used by a `throw` statement, and flags throw sites
// whose type was never declared.
func (c *Checker) checkThrowsInBody(body []*ast.Expr, declared map[string]bool) {
	for _, stmt := range body {
		stmt.Walk(func(e *ast.Expr) bool {
			if e.Kind == ast.KThrow && len(e.Params) == 1 {
				typeName := throwTypeName(e.Params[0])
				if typeName != "" {
					if _, ok := declared[typeName]; ok {
						declared[typeName] = true
					} else {
						c.errorf(e, "throws type '%s' is not declared in this function's 'throws' clause", typeName)
					}
				}
			}
			return true
		}, nil)
	}
}

// throwTypeName extracts the constructed exception type's name from a
// throw expression, when it is a direct `Type.Variant(...)`/`Type(...)`
// call.
func throwTypeName(e *ast.Expr) string {
	if e.Kind != ast.KFCall {
		return ""
	}
	name := e.Name
	if i := lastDot(name); i >= 0 {
		return name[:i]
	}
	return name
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// splitDot splits a dotted "Type.Member" name; ok is false for a bare
// identifier with no dot.
func splitDot(s string) (head, tail string, ok bool) {
	i := lastDot(s)
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

// allPathsReturn is the return-coverage analysis: every branch of
// If/While/Switch must itself return or throw for the enclosing body to
// be considered covering.
func allPathsReturn(body []*ast.Expr) bool {
	for i := len(body) - 1; i >= 0; i-- {
		stmt := body[i]
		switch stmt.Kind {
		case ast.KReturn, ast.KThrow:
			return true
		case ast.KIf:
			if len(stmt.Params) == 3 {
				thenOK := allPathsReturn(stmt.Params[1].Params)
				elseOK := allPathsReturn(stmt.Params[2].Params)
				if thenOK && elseOK {
					return true
				}
			}
			return false
		case ast.KSwitch:
			if switchCovers(stmt) {
				return true
			}
			return false
		default:
			return false
		}
	}
	return false
}

// switchCovers reports whether every case arm (and a default, if
// present) of a switch statement returns or throws.
func switchCovers(sw *ast.Expr) bool {
	hasDefault := false
	for i := 1; i+1 < len(sw.Params); i += 2 {
		pat := sw.Params[i]
		body := sw.Params[i+1]
		if pat.Kind == ast.KDefaultCase {
			hasDefault = true
		}
		if !allPathsReturn(body.Params) {
			return false
		}
	}
	return hasDefault
}

// typeEnv is a best-effort map of in-scope variable names to their
// static type, built up from explicit declaration types and constructor
// call shapes as checkBody walks a statement sequence. It is
// intentionally partial: a name with no recoverable static type is
// simply absent rather than an error, and checks that need one just
// skip when it's missing.
type typeEnv map[string]ast.ValueType

func cloneTypeEnv(env typeEnv) typeEnv {
	out := make(typeEnv, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// checkBody walks a statement sequence checking call-site arity and
// assignability (CheckArity/Assignable) and enum-switch exhaustiveness,
// recursing into nested control-flow blocks with a forked copy of the
// running type environment so a declaration or case-arm binding made on
// one branch never leaks into a sibling branch.
func (c *Checker) checkBody(stmts []*ast.Expr, env typeEnv) {
	for _, stmt := range stmts {
		c.checkStmtFlow(stmt, env)
	}
}

func (c *Checker) checkStmtFlow(e *ast.Expr, env typeEnv) {
	switch e.Kind {
	case ast.KDeclaration:
		c.checkDeclaration(e, env)
	case ast.KAssignment, ast.KReturn, ast.KThrow:
		if len(e.Params) == 1 {
			c.checkExprCalls(e.Params[0], env)
		}
	case ast.KFCall:
		c.checkExprCalls(e, env)
	case ast.KIf:
		if len(e.Params) > 0 {
			c.checkExprCalls(e.Params[0], env)
		}
		if len(e.Params) > 1 {
			c.checkBody(e.Params[1].Params, cloneTypeEnv(env))
		}
		if len(e.Params) > 2 {
			c.checkBody(e.Params[2].Params, cloneTypeEnv(env))
		}
	case ast.KWhile:
		if len(e.Params) > 0 {
			c.checkExprCalls(e.Params[0], env)
		}
		if len(e.Params) > 1 {
			c.checkBody(e.Params[1].Params, cloneTypeEnv(env))
		}
	case ast.KBody:
		c.checkBody(e.Params, cloneTypeEnv(env))
	case ast.KCatch:
		for _, p := range e.Params {
			if p.Kind == ast.KBody {
				c.checkBody(p.Params, cloneTypeEnv(env))
			}
		}
	case ast.KSwitch:
		c.checkSwitchExhaustiveness(e, env)
	case ast.KForIn:
		if len(e.Params) > 0 {
			c.checkExprCalls(e.Params[0], env)
		}
		if len(e.Params) > 1 {
			inner := cloneTypeEnv(env)
			inner[e.Name] = ast.Custom(e.TypeName)
			c.checkBody(e.Params[1].Params, inner)
		}
	}
}

// checkDeclaration records the declared variable's static type in env
// (explicit, or inferred from its initializer's recognisable shape) and,
// when both the declared type and the initializer's type can be
// determined, checks assignability between them.
func (c *Checker) checkDeclaration(e *ast.Expr, env typeEnv) {
	if len(e.Params) != 1 || e.Decl == nil {
		return
	}
	init := e.Params[0]
	if init.Kind == ast.KFuncDef {
		return
	}
	c.checkExprCalls(init, env)

	declType := e.Decl.Type
	initType, initOK := c.inferExprType(init, env)

	if !declType.IsInfer() && initOK && !Assignable(initType, declType) {
		c.errorf(e, "cannot assign a value of type '%s' to '%s', declared as '%s'", initType.String(), e.Decl.Name, declType.String())
	}

	if !declType.IsInfer() {
		env[e.Decl.Name] = declType
	} else if initOK {
		env[e.Decl.Name] = initType
	}
}

// checkExprCalls walks an expression looking for KFCall nodes naming a
// known user-defined function, checking each one's argument count
// (CheckArity) and, where an argument's type is staticatically
// recoverable, its assignability to the declared parameter type.
func (c *Checker) checkExprCalls(e *ast.Expr, env typeEnv) {
	if e == nil {
		return
	}
	if e.Kind == ast.KFCall {
		c.checkCallSite(e, env)
	}
	for _, p := range e.Params {
		c.checkExprCalls(p, env)
	}
}

func (c *Checker) checkCallSite(e *ast.Expr, env typeEnv) {
	fn, ok := c.Global.Funcs[e.Name]
	if !ok {
		return
	}
	if err := CheckArity(fn, len(e.Params)); err != nil {
		c.errorf(e, "call to '%s': %s", e.Name, err)
		return
	}
	nFixed := len(fn.Args)
	if fn.IsVariadic() {
		nFixed--
	}
	for i := 0; i < nFixed && i < len(e.Params); i++ {
		argType, ok := c.inferExprType(e.Params[i], env)
		if !ok {
			continue
		}
		want := fn.Args[i].Type
		if !Assignable(argType, want) {
			c.errorf(e.Params[i], "argument %d to '%s': cannot assign '%s' to parameter '%s' of type '%s'",
				i+1, e.Name, argType.String(), fn.Args[i].Name, want.String())
		}
	}
}

// inferExprType is a best-effort static type recovery for an expression:
// literals, a variable already present in env, and direct struct/enum
// constructor calls or single-return user function calls. Anything else
// (field access, builtin calls, arithmetic) reports ok=false rather than
// guessing.
func (c *Checker) inferExprType(e *ast.Expr, env typeEnv) (ast.ValueType, bool) {
	switch e.Kind {
	case ast.KLiteralNumber:
		return ast.Custom(TI64), true
	case ast.KLiteralStr:
		return ast.Custom(TStr), true
	case ast.KLiteralBool:
		return ast.Custom(TBool), true
	case ast.KIdentifier:
		if lastDot(e.Name) >= 0 {
			return ast.ValueType{}, false
		}
		t, ok := env[e.Name]
		return t, ok
	case ast.KFCall:
		if ed, ok := c.enumConstructorType(e.Name); ok {
			return ast.TypeOfEnum(ed), true
		}
		if sd, ok := c.structConstructorType(e.Name); ok {
			return ast.TypeOfStruct(sd), true
		}
		if fn, ok := c.Global.Funcs[e.Name]; ok && len(fn.Returns) == 1 {
			return fn.Returns[0], true
		}
	}
	return ast.ValueType{}, false
}

// enumConstructorType recognises a `EnumType.Variant` call name and
// returns the enum definition it constructs.
func (c *Checker) enumConstructorType(name string) (*ast.EnumDef, bool) {
	typeName, variant, ok := splitDot(name)
	if !ok {
		return nil, false
	}
	ed, ok := c.Global.Enums[typeName]
	if !ok {
		return nil, false
	}
	if _, ok := ed.Variant(variant); !ok {
		return nil, false
	}
	return ed, true
}

// structConstructorType recognises a bare `Type(...)` or `Type.default(...)`
// call name and returns the struct definition it constructs.
func (c *Checker) structConstructorType(name string) (*ast.StructDef, bool) {
	if strings.HasSuffix(name, ".default") {
		name = name[:len(name)-len(".default")]
	}
	sd, ok := c.Global.Structs[name]
	return sd, ok
}

// checkSwitchExhaustiveness enforces that when a switch's scrutinee is
// staticatically known to be an enum type, every variant appears in some
// case unless a default arm is present; dropping any variant with no
// default is a TypeError. Case bodies are still walked for their own
// call-site/exhaustiveness checks regardless of whether the scrutinee's
// type could be resolved.
func (c *Checker) checkSwitchExhaustiveness(sw *ast.Expr, env typeEnv) {
	if len(sw.Params) == 0 {
		return
	}
	scrutinee := sw.Params[0]
	c.checkExprCalls(scrutinee, env)
	ed, resolved := c.resolveSwitchEnumType(scrutinee, env)

	hasDefault := false
	covered := map[string]bool{}
	for i := 1; i+1 < len(sw.Params); i += 2 {
		pat := sw.Params[i]
		body := sw.Params[i+1]
		switch pat.Kind {
		case ast.KDefaultCase:
			hasDefault = true
		case ast.KPattern:
			covered[pat.Name] = true
		}
		c.checkBody(body.Params, cloneTypeEnv(env))
	}

	if !resolved || hasDefault {
		return
	}
	var missing []string
	for _, v := range ed.Variants {
		if !covered[v.Name] {
			missing = append(missing, v.Name)
		}
	}
	if len(missing) > 0 {
		c.errorf(sw, "switch over enum '%s' is not exhaustive: missing case(s) for %s (add them or a 'default')",
			ed.Name, strings.Join(missing, ", "))
	}
}

// resolveSwitchEnumType recovers the scrutinee's static enum type, either
// from a variable whose declared/inferred type in env is an enum, or from
// a scrutinee that is itself a direct enum-constructor call.
func (c *Checker) resolveSwitchEnumType(scrutinee *ast.Expr, env typeEnv) (*ast.EnumDef, bool) {
	t, ok := c.inferExprType(scrutinee, env)
	if !ok || t.Kind != ast.VKType || t.TypeOfEnum == nil {
		return nil, false
	}
	return t.TypeOfEnum, true
}

// Assignable reports whether a value of type from may be assigned/passed
// where a value of type to is expected: exact nominal match, any type
// into a Dynamic or Type parameter, plus one narrowing rule (an I64
// literal may initialize a U8 declaration).
func Assignable(from, to ast.ValueType) bool {
	if from.Equal(to) {
		return true
	}
	if to.Kind == ast.VKCustom && (to.Custom == "Dynamic" || to.Custom == "Type") {
		return true
	}
	if from.Kind == ast.VKCustom && to.Kind == ast.VKCustom && from.Custom == TI64 && to.Custom == TU8 {
		return true
	}
	return false
}

// CheckArity validates a call's argument count against a function
// definition: exact match for a non-variadic function, at-least
// (len(args)-1) for a variadic one.
func CheckArity(f *ast.FuncDef, argCount int) error {
	if f.IsVariadic() {
		min := len(f.Args) - 1
		if argCount < min {
			return fmt.Errorf("expected at least %d argument(s), got %d", min, argCount)
		}
		return nil
	}
	if argCount != len(f.Args) {
		return fmt.Errorf("expected %d argument(s), got %d", len(f.Args), argCount)
	}
	return nil
}
