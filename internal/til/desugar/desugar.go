// Package desugar lowers ForIn loops and Switch statements into the
// simpler While/If forms the evaluator actually runs: `for v: T in coll {}`
// becomes an index-counter While loop guarded by a `get()` call wrapped
// in a catch(IndexOutOfBoundsError), and switch statements become an
// if/else chain. Desugaring runs to a fixpoint: the output tree contains
// no KForIn or KSwitch nodes.
package desugar

import (
	"fmt"

	"github.com/saruga/til/internal/til/ast"
	"github.com/saruga/til/internal/til/scope"
)

// Desugarer lowers ForIn/Switch nodes in place, given the enclosing
// file's global frame (for enum-default construction and for looking up
// the collection element's declared struct/enum shape).
type Desugarer struct {
	Global *scope.Frame

	forInCounter int
	funcName     string
}

// New builds a Desugarer bound to the file's indexed declarations.
func New(global *scope.Frame) *Desugarer {
	return &Desugarer{Global: global}
}

// Body desugars every statement of a top-level body, recursing into
// nested blocks and function bodies. The per-function fresh-name counter
// resets whenever a new FuncDef is entered.
func (d *Desugarer) Body(stmts []*ast.Expr) ([]*ast.Expr, error) {
	out := make([]*ast.Expr, 0, len(stmts))
	for _, stmt := range stmts {
		lowered, err := d.stmt(stmt)
		if err != nil {
			return nil, err
		}
		out = append(out, lowered...)
	}
	return out, nil
}

// stmt desugars one statement, which may expand into more than one
// (ForIn expands to a declaration + while loop).
func (d *Desugarer) stmt(e *ast.Expr) ([]*ast.Expr, error) {
	switch e.Kind {
	case ast.KForIn:
		return d.forIn(e)
	case ast.KSwitch:
		lowered, err := d.switchStmt(e)
		if err != nil {
			return nil, err
		}
		return []*ast.Expr{lowered}, nil
	case ast.KIf:
		if err := d.recurseInto(e.Params[1]); err != nil {
			return nil, err
		}
		if len(e.Params) == 3 {
			if err := d.recurseInto(e.Params[2]); err != nil {
				return nil, err
			}
		}
		return []*ast.Expr{e}, nil
	case ast.KWhile:
		if err := d.recurseInto(e.Params[1]); err != nil {
			return nil, err
		}
		return []*ast.Expr{e}, nil
	case ast.KCatch:
		if err := d.recurseInto(e.Params[0]); err != nil {
			return nil, err
		}
		return []*ast.Expr{e}, nil
	case ast.KBody:
		if err := d.recurseInto(e); err != nil {
			return nil, err
		}
		return []*ast.Expr{e}, nil
	case ast.KDeclaration:
		if len(e.Params) == 1 && e.Params[0].Kind == ast.KFuncDef {
			prevCounter, prevName := d.forInCounter, d.funcName
			d.forInCounter = 0
			d.funcName = e.Decl.Name
			lowered, err := d.Body(e.Params[0].Func.Body)
			d.forInCounter, d.funcName = prevCounter, prevName
			if err != nil {
				return nil, err
			}
			e.Params[0].Func.Body = lowered
		}
		return []*ast.Expr{e}, nil
	default:
		return []*ast.Expr{e}, nil
	}
}

func (d *Desugarer) recurseInto(body *ast.Expr) error {
	lowered, err := d.Body(body.Params)
	if err != nil {
		return err
	}
	body.Params = lowered
	return nil
}

// forIn lowers `for v: T in coll { body }` into:
//
//	_for_i_<fn>_<n> := 0
//	while lt(_for_i_<fn>_<n>, len(coll)) {
//	    v: T = default(T)
//	    v = get(coll, _for_i_<fn>_<n>)
//	    catch(_e: IndexOutOfBoundsError) { break }
//	    body...
//	    _for_i_<fn>_<n> = add(_for_i_<fn>_<n>, 1)
//	}
//
// The loop condition bounds the counter by len(coll); the
// catch(IndexOutOfBoundsError) guard after get also ends the loop if get
// throws.
func (d *Desugarer) forIn(e *ast.Expr) ([]*ast.Expr, error) {
	varName := e.Name
	elemType := e.TypeName
	coll := e.Params[0]
	body := e.Params[1]

	loweredBody, err := d.Body(body.Params)
	if err != nil {
		return nil, err
	}

	d.forInCounter++
	counter := fmt.Sprintf("_for_i_%s_%d", d.funcName, d.forInCounter)
	line, col := e.Line, e.Col

	counterDecl := declExpr(counter, ast.Custom("I64"), litNum("0", line, col), line, col)

	lenCall := call("len", []*ast.Expr{coll}, line, col)
	cond := call("lt", []*ast.Expr{ident(counter, line, col), lenCall}, line, col)

	elemDecl := declExpr(varName, ast.Custom(elemType), defaultValue(d.Global, elemType, line, col), line, col)
	getCall := call("get", []*ast.Expr{coll, ident(counter, line, col)}, line, col)
	getCall.Throws = true
	assign := ast.NewExpr(ast.KAssignment, []*ast.Expr{getCall}, line, col)
	assign.Name = varName

	catchBreak := ast.NewExpr(ast.KCatch, []*ast.Expr{
		ast.NewExpr(ast.KBody, []*ast.Expr{ast.NewExpr(ast.KBreak, nil, line, col)}, line, col),
	}, line, col)
	catchBreak.Name = "_e"
	catchBreak.TypeName = "IndexOutOfBoundsError"

	increment := ast.NewExpr(ast.KAssignment, []*ast.Expr{
		call("add", []*ast.Expr{ident(counter, line, col), litNum("1", line, col)}, line, col),
	}, line, col)
	increment.Name = counter

	whileBody := []*ast.Expr{elemDecl, assign, catchBreak}
	whileBody = append(whileBody, loweredBody...)
	whileBody = append(whileBody, increment)

	whileLoop := ast.NewExpr(ast.KWhile, []*ast.Expr{cond, ast.NewExpr(ast.KBody, whileBody, line, col)}, line, col)

	return []*ast.Expr{counterDecl, whileLoop}, nil
}

// switchStmt lowers a switch statement into an if/else chain. An enum
// scrutinee compares via enum_to_str/Str.eq and binds a pattern's payload
// with enum_get_payload; a non-enum scrutinee compares via Type.eq or a
// range check. The scrutinee is evaluated once into a synthetic
// temporary so side-effecting scrutinee expressions aren't duplicated
// per case.
func (d *Desugarer) switchStmt(e *ast.Expr) (*ast.Expr, error) {
	line, col := e.Line, e.Col
	scrutinee := e.Params[0]
	cases := e.Params[1:]

	d.forInCounter++
	tempName := fmt.Sprintf("_switch_v_%s_%d", d.funcName, d.forInCounter)
	scrutineeDecl := declExpr(tempName, ast.Infer(), scrutinee, line, col)

	var defaultBody *ast.Expr
	type arm struct {
		cond *ast.Expr
		body *ast.Expr
	}
	var arms []arm

	for i := 0; i+1 < len(cases); i += 2 {
		pat := cases[i]
		body := cases[i+1]
		loweredBody, err := d.Body(body.Params)
		if err != nil {
			return nil, err
		}
		body.Params = loweredBody

		if pat.Kind == ast.KDefaultCase {
			defaultBody = body
			continue
		}

		cond, bindings := d.casePattern(pat, tempName, line, col)
		if len(bindings) > 0 {
			body.Params = append(bindings, body.Params...)
		}
		arms = append(arms, arm{cond: cond, body: body})
	}

	var chain *ast.Expr
	if defaultBody != nil {
		chain = defaultBody
	} else {
		chain = ast.NewExpr(ast.KBody, nil, line, col)
	}
	for i := len(arms) - 1; i >= 0; i-- {
		a := arms[i]
		params := []*ast.Expr{a.cond, a.body}
		if chain != nil {
			if chain.Kind == ast.KIf {
				// an else branch is a body; the next arm's if goes inside one
				chain = ast.NewExpr(ast.KBody, []*ast.Expr{chain}, line, col)
			}
			params = append(params, chain)
		}
		chain = ast.NewExpr(ast.KIf, params, line, col)
	}

	return ast.NewExpr(ast.KBody, []*ast.Expr{scrutineeDecl, chain}, line, col), nil
}

// casePattern builds the boolean condition expression for one case
// pattern plus any payload-binding declarations it introduces.
func (d *Desugarer) casePattern(pat *ast.Expr, scrutinee string, line, col int) (*ast.Expr, []*ast.Expr) {
	switch pat.Kind {
	case ast.KRange:
		lo, hi := pat.Params[0], pat.Params[1]
		geCond := call("gteq", []*ast.Expr{ident(scrutinee, line, col), lo}, line, col)
		leCond := call("lt", []*ast.Expr{ident(scrutinee, line, col), hi}, line, col)
		return call("and", []*ast.Expr{geCond, leCond}, line, col), nil
	case ast.KPattern:
		variantStr := litStr(pat.Name, line, col)
		tagCall := call("enum_to_str", []*ast.Expr{ident(scrutinee, line, col)}, line, col)
		cond := call("Str.eq", []*ast.Expr{tagCall, variantStr}, line, col)
		var bindings []*ast.Expr
		if len(pat.Params) == 1 {
			payloadCall := call("enum_get_payload", []*ast.Expr{ident(scrutinee, line, col)}, line, col)
			bindings = append(bindings, declExpr(pat.Params[0].Name, ast.Infer(), payloadCall, line, col))
		}
		return cond, bindings
	case ast.KIdentifier:
		cond := call(pat.TypeName+".eq", []*ast.Expr{ident(scrutinee, line, col), pat}, line, col)
		if pat.TypeName == "" {
			cond = call("eq", []*ast.Expr{ident(scrutinee, line, col), pat}, line, col)
		}
		return cond, nil
	default:
		// literal case (number/string/bool)
		return call("eq", []*ast.Expr{ident(scrutinee, line, col), pat}, line, col), nil
	}
}

// defaultValue builds the zero-value expression for a primitive, struct,
// or enum element type: primitives get a literal zero/empty value; a
// struct gets its own default-instance construction; an enum gets its
// first variant's constructor call (invoked with a default payload when
// that variant carries one).
func defaultValue(global *scope.Frame, typeName string, line, col int) *ast.Expr {
	switch typeName {
	case "I64", "U8":
		return litNum("0", line, col)
	case "Bool":
		e := ast.NewExpr(ast.KLiteralBool, nil, line, col)
		e.Lit.Bool = false
		return e
	case "Str":
		return litStr("", line, col)
	}
	if global != nil {
		if ed, ok := global.Enums[typeName]; ok && len(ed.Variants) > 0 {
			first := ed.Variants[0]
			if first.Payload != nil {
				payload := defaultValue(global, first.Payload.String(), line, col)
				return call(typeName+"."+first.Name, []*ast.Expr{payload}, line, col)
			}
			return call(typeName+"."+first.Name, nil, line, col)
		}
		if _, ok := global.Structs[typeName]; ok {
			return call(typeName+".default", nil, line, col)
		}
	}
	return call(typeName+".default", nil, line, col)
}

func declExpr(name string, t ast.ValueType, val *ast.Expr, line, col int) *ast.Expr {
	e := ast.NewExpr(ast.KDeclaration, []*ast.Expr{val}, line, col)
	e.Decl = &ast.Declaration{Name: name, Type: t}
	return e
}

func ident(name string, line, col int) *ast.Expr {
	e := ast.NewExpr(ast.KIdentifier, nil, line, col)
	e.Name = name
	return e
}

func call(name string, args []*ast.Expr, line, col int) *ast.Expr {
	e := ast.NewExpr(ast.KFCall, args, line, col)
	e.Name = name
	return e
}

func litNum(n string, line, col int) *ast.Expr {
	e := ast.NewExpr(ast.KLiteralNumber, nil, line, col)
	e.Lit.Num = n
	return e
}

func litStr(s string, line, col int) *ast.Expr {
	e := ast.NewExpr(ast.KLiteralStr, nil, line, col)
	e.Lit.Str = s
	return e
}
