// Package precomp runs the two AST-rewrite passes that happen after
// desugaring and before evaluation: UFCS call rewriting (`x.f(y)` becomes
// `Type.f(x, y)`, resolved here rather than through vtable dispatch) and
// intrinsic inlining (`loc()`, `_file`, `_line`, `_col` become literal
// constants baked in at their call site).
//
// Precomputation is a fixpoint: running it again on its own output is a
// no-op, since every UFCS call it rewrites becomes a directly-qualified
// `Type.method(...)` call that no longer matches the `obj.method(...)`
// shape the rewrite looks for.
package precomp

import (
	"fmt"

	"github.com/saruga/til/internal/til/ast"
	"github.com/saruga/til/internal/til/scope"
)

// Precomputer rewrites a file's body in place.
type Precomputer struct {
	Global *scope.Frame
	Path   string
}

// New builds a Precomputer bound to the file's global declarations
// (needed to resolve a receiver's static type for the UFCS rewrite).
func New(path string, global *scope.Frame) *Precomputer {
	return &Precomputer{Global: global, Path: path}
}

// Body rewrites every statement of a body and its nested blocks/function
// definitions.
func (p *Precomputer) Body(stmts []*ast.Expr, receiverTypes map[string]string) {
	for _, stmt := range stmts {
		p.expr(stmt, receiverTypes)
	}
}

// expr rewrites e in place, recursing into every kind that carries a
// nested body or sub-expression.
func (p *Precomputer) expr(e *ast.Expr, receiverTypes map[string]string) {
	if e == nil {
		return
	}
	switch e.Kind {
	case ast.KFCall:
		p.rewriteUFCS(e, receiverTypes)
		p.inlineIntrinsic(e)
		for _, a := range e.Params {
			p.expr(a, receiverTypes)
		}
	case ast.KDeclaration:
		if len(e.Params) == 1 {
			p.expr(e.Params[0], receiverTypes)
			if e.Params[0].Kind == ast.KFuncDef {
				inner := childScope(receiverTypes, e.Params[0].Func.Args)
				p.Body(e.Params[0].Func.Body, inner)
				return
			}
		}
		if e.Decl != nil && !e.Decl.Type.IsInfer() {
			receiverTypes[e.Decl.Name] = e.Decl.Type.String()
		}
	case ast.KAssignment:
		for _, v := range e.Params {
			p.expr(v, receiverTypes)
		}
	case ast.KIf:
		p.expr(e.Params[0], receiverTypes)
		p.Body(e.Params[1].Params, receiverTypes)
		if len(e.Params) == 3 {
			p.Body(e.Params[2].Params, receiverTypes)
		}
	case ast.KWhile:
		p.expr(e.Params[0], receiverTypes)
		p.Body(e.Params[1].Params, receiverTypes)
	case ast.KBody:
		p.Body(e.Params, receiverTypes)
	case ast.KCatch:
		p.Body(e.Params[0].Params, receiverTypes)
	case ast.KReturn, ast.KThrow:
		for _, v := range e.Params {
			p.expr(v, receiverTypes)
		}
	}
}

// childScope copies the known receiver-type map and adds a function's
// own arguments, so UFCS resolution inside a function body sees its
// parameters' static types.
func childScope(outer map[string]string, args []ast.Declaration) map[string]string {
	inner := make(map[string]string, len(outer)+len(args))
	for k, v := range outer {
		inner[k] = v
	}
	for _, a := range args {
		inner[a.Name] = a.Type.String()
	}
	return inner
}

// rewriteUFCS turns a call whose Name is a dotted `obj.method` path,
// where `obj` is a known local/parameter (not itself a type name), into
// a `Type.method` call with obj prepended as the first argument.
// Qualified calls already of the form `Type.method(...)` are left alone
// because their receiver segment does not resolve in receiverTypes.
func (p *Precomputer) rewriteUFCS(e *ast.Expr, receiverTypes map[string]string) {
	dot := lastDotIndex(e.Name)
	if dot < 0 {
		return
	}
	recv := e.Name[:dot]
	method := e.Name[dot+1:]
	typeName, isLocal := receiverTypes[recv]
	if !isLocal {
		return
	}
	recvExpr := ast.NewExpr(ast.KIdentifier, nil, e.Line, e.Col)
	recvExpr.Name = recv
	e.Params = append([]*ast.Expr{recvExpr}, e.Params...)
	e.Name = typeName + "." + method
}

func lastDotIndex(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// inlineIntrinsic replaces a zero-argument `loc()`, `_file()`, `_line()`
// or `_col()` call with the literal it denotes at this call site.
func (p *Precomputer) inlineIntrinsic(e *ast.Expr) {
	switch e.Name {
	case "loc":
		e.Kind = ast.KLiteralStr
		e.Lit.Str = fmt.Sprintf("%s:%d:%d", p.Path, e.Line, e.Col)
		e.Params = nil
		e.Name = ""
	case "_file":
		e.Kind = ast.KLiteralStr
		e.Lit.Str = p.Path
		e.Params = nil
		e.Name = ""
	case "_line":
		e.Kind = ast.KLiteralNumber
		e.Lit.Num = fmt.Sprintf("%d", e.Line)
		e.Params = nil
		e.Name = ""
	case "_col":
		e.Kind = ast.KLiteralNumber
		e.Lit.Num = fmt.Sprintf("%d", e.Col)
		e.Params = nil
		e.Name = ""
	}
}
