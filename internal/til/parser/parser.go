// Package parser is a single-pass recursive-descent parser for til
// source: mode prologue, body, statement, primary expression, function
// and struct/enum argument lists, switch statements, declarations, plus
// the newer for..in/catch/enum-payload/range/named-argument/break-continue
// forms, all following the same control-flow and error-wording style.
package parser

import (
	"fmt"

	"github.com/saruga/til/internal/til/ast"
	"github.com/saruga/til/internal/til/token"
)

// Error is a ParseError: unexpected token, missing closing delimiter, or a
// malformed construct, reported at the offending token's position.
type Error struct {
	Path      string
	Line, Col int
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: Parse ERROR: %s", e.Path, e.Line, e.Col, e.Message)
}

// Parser consumes a token stream for one file.
type Parser struct {
	path string
	toks []token.Token
	pos  int
}

// New builds a Parser over a fully lexed token stream (caller already
// folded the lexer's forbidden-token diagnostics into a separate pass).
func New(path string, toks []token.Token) *Parser {
	return &Parser{path: path, toks: toks}
}

func (p *Parser) cur() token.Token {
	if p.pos >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos]
}

func (p *Parser) at(off int) token.Token {
	i := p.pos + off
	if i < 0 || i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) errf(t token.Token, format string, args ...interface{}) *Error {
	return &Error{Path: p.path, Line: t.Line, Col: t.Col, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(k token.Kind, what string) (token.Token, error) {
	t := p.cur()
	if t.Kind != k {
		return t, p.errf(t, "expected %s, found %q", what, t.Text)
	}
	return p.advance(), nil
}

// ParseModePrologue parses the mandatory `mode <identifier>;` prologue that
// must appear before any other token in a file.
func ParseModePrologue(path string, toks []token.Token) (string, int, error) {
	p := New(path, toks)
	t := p.cur()
	if t.Kind != token.Mode {
		return "", 0, p.errf(t, "every file must begin with 'mode <name>;', found %q", t.Text)
	}
	p.advance()
	name, err := p.expect(token.Identifier, "mode name")
	if err != nil {
		return "", 0, err
	}
	if p.cur().Kind == token.Semicolon {
		p.advance()
	}
	return name.Text, p.pos, nil
}

// ParseProgram parses a body of statements, starting at startPos, until
// Eof. It is the parser's second entry point, called after
// ParseModePrologue consumes the leading mode declaration.
func ParseProgram(path string, toks []token.Token, startPos int) (*ast.Expr, error) {
	p := New(path, toks)
	p.pos = startPos
	return p.parseBody(token.Eof)
}

func (p *Parser) parseBody(end token.Kind) (*ast.Expr, error) {
	startTok := p.cur()
	var stmts []*ast.Expr
	for {
		t := p.cur()
		if t.Kind == end {
			break
		}
		if t.Kind == token.Eof {
			return nil, p.errf(t, "expected %q to end body, found end of file", end.String())
		}
		if t.Kind == token.Semicolon {
			p.advance()
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return ast.NewExpr(ast.KBody, stmts, startTok.Line, startTok.Col), nil
}

func (p *Parser) parseStatement() (*ast.Expr, error) {
	t := p.cur()
	switch t.Kind {
	case token.Return:
		return p.parseReturn()
	case token.Throw:
		return p.parseThrow()
	case token.Break:
		p.advance()
		return ast.NewExpr(ast.KBreak, nil, t.Line, t.Col), nil
	case token.Continue:
		p.advance()
		return ast.NewExpr(ast.KContinue, nil, t.Line, t.Col), nil
	case token.If:
		return p.parseIf()
	case token.While:
		return p.parseWhile()
	case token.For:
		return p.parseForIn()
	case token.Switch:
		return p.parseSwitch()
	case token.Catch:
		return p.parseCatch()
	case token.Mut:
		return p.parseMutDeclaration()
	case token.Identifier:
		return p.parseStatementIdentifier()
	case token.Func, token.Proc, token.Macro:
		// `proc name(...) {...}` declares name as `name := proc(...) {...}` does.
		if p.at(1).Kind == token.Identifier && p.at(2).Kind == token.LeftParen {
			nameTok := p.at(1)
			p.pos++ // parseFuncDef consumes the name in the keyword's place
			kinds := map[token.Kind]ast.FuncKind{token.Func: ast.FKFunc, token.Proc: ast.FKProc, token.Macro: ast.FKMacro}
			val, err := p.parseFuncDef(kinds[t.Kind], true)
			if err != nil {
				return nil, err
			}
			e := ast.NewExpr(ast.KDeclaration, []*ast.Expr{val}, nameTok.Line, nameTok.Col)
			e.Decl = &ast.Declaration{Name: nameTok.Text, Type: ast.Infer()}
			return e, nil
		}
		return nil, p.errf(t, "expected statement, found %q", t.Text)
	default:
		return nil, p.errf(t, "expected statement, found %q", t.Text)
	}
}

// parseStatementIdentifier disambiguates declaration / assignment /
// call-as-statement by looking ahead past the leading identifier.
func (p *Parser) parseStatementIdentifier() (*ast.Expr, error) {
	t := p.cur()
	next := p.at(1)

	switch next.Kind {
	case token.LeftParen, token.Dot:
		e, err := p.parseIdentifierChain()
		if err != nil {
			return nil, err
		}
		if e.Kind == ast.KFCall {
			if p.cur().Kind == token.Catch {
				return p.attachCatch(e)
			}
			return e, nil
		}
		// bare identifier chain followed by '=' is a field assignment
		if p.cur().Kind == token.Equal {
			return p.parseAssignment(t, e.Name)
		}
		return nil, p.errf(p.cur(), "expected '(' or '=' after identifier chain, found %q", p.cur().Text)
	case token.Equal:
		p.advance() // identifier
		return p.parseAssignment(t, t.Text)
	case token.Colon:
		nextNext := p.at(2)
		switch nextNext.Kind {
		case token.Identifier, token.Mut:
			return p.parseDeclaration(false)
		case token.Equal:
			return p.parseDeclarationInferred(false)
		default:
			return nil, p.errf(t, "expected type or '=' after '%s :', found %q", t.Text, nextNext.Text)
		}
	default:
		return nil, p.errf(t, "expected '(', '.', ':' or '=' after identifier in statement, found %q", next.Text)
	}
}

// parseIdentifierChain parses `ident(.ident)*` optionally followed by a
// call argument list. The full dotted path is stored in Name; a trailing
// '(' makes this an FCall.
func (p *Parser) parseIdentifierChain() (*ast.Expr, error) {
	start := p.cur()
	name := start.Text
	p.advance()
	for p.cur().Kind == token.Dot {
		p.advance()
		seg, err := p.expect(token.Identifier, "identifier after '.'")
		if err != nil {
			return nil, err
		}
		name += "." + seg.Text
	}
	if p.cur().Kind == token.LeftParen {
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		call := ast.NewExpr(ast.KFCall, args, start.Line, start.Col)
		call.Name = name
		return call, nil
	}
	id := ast.NewExpr(ast.KIdentifier, nil, start.Line, start.Col)
	id.Name = name
	return id, nil
}

// parseArgs parses a comma-separated, parenthesised argument list. An
// argument of the form `name = expr` becomes a KNamedArg.
func (p *Parser) parseArgs() ([]*ast.Expr, error) {
	open := p.cur()
	p.advance() // '('
	var args []*ast.Expr
	expectComma := false
	for {
		t := p.cur()
		if t.Kind == token.Eof {
			return nil, p.errf(open, "expected closing parenthesis")
		}
		if t.Kind == token.RightParen {
			p.advance()
			break
		}
		if t.Kind == token.Comma {
			if !expectComma {
				return nil, p.errf(t, "unexpected ','")
			}
			expectComma = false
			p.advance()
			continue
		}
		if expectComma {
			return nil, p.errf(t, "expected ')' or ',', found %q", t.Text)
		}
		var arg *ast.Expr
		var err error
		if t.Kind == token.Identifier && p.at(1).Kind == token.Equal {
			name := t.Text
			p.advance()
			p.advance()
			val, verr := p.parsePrimary()
			if verr != nil {
				return nil, verr
			}
			arg = ast.NewExpr(ast.KNamedArg, []*ast.Expr{val}, t.Line, t.Col)
			arg.Name = name
		} else {
			arg, err = p.parsePrimary()
			if err != nil {
				return nil, err
			}
		}
		args = append(args, arg)
		expectComma = true
	}
	return args, nil
}

func (p *Parser) parseAssignment(t token.Token, name string) (*ast.Expr, error) {
	p.advance() // '='
	val, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	e := ast.NewExpr(ast.KAssignment, []*ast.Expr{val}, t.Line, t.Col)
	e.Name = name
	return e, nil
}

// parsePrimary parses one expression: literal, identifier chain/call,
// func/proc/macro/ext definition, struct definition, or enum definition.
func (p *Parser) parsePrimary() (*ast.Expr, error) {
	t := p.cur()
	switch t.Kind {
	case token.Number:
		p.advance()
		e := ast.NewExpr(ast.KLiteralNumber, nil, t.Line, t.Col)
		e.Lit.Num = t.Text
		return e, nil
	case token.Str:
		p.advance()
		e := ast.NewExpr(ast.KLiteralStr, nil, t.Line, t.Col)
		e.Lit.Str = t.Text
		return e, nil
	case token.True, token.False:
		p.advance()
		e := ast.NewExpr(ast.KLiteralBool, nil, t.Line, t.Col)
		e.Lit.Bool = t.Kind == token.True
		return e, nil
	case token.Func:
		return p.parseFuncDef(ast.FKFunc, true)
	case token.Proc:
		return p.parseFuncDef(ast.FKProc, true)
	case token.Macro:
		return p.parseFuncDef(ast.FKMacro, true)
	case token.FuncExt:
		return p.parseFuncDef(ast.FKFuncExt, false)
	case token.ProcExt:
		return p.parseFuncDef(ast.FKProcExt, false)
	case token.Enum:
		return p.parseEnumDef()
	case token.Struct:
		return p.parseStructDef()
	case token.Identifier:
		return p.parseIdentifierChainWithRange()
	default:
		return nil, p.errf(t, "expected expression, found %q", t.Text)
	}
}

// parseIdentifierChainWithRange extends parseIdentifierChain with the
// `lo..hi` range form used in switch cases.
func (p *Parser) parseIdentifierChainWithRange() (*ast.Expr, error) {
	e, err := p.parseIdentifierChain()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind == token.DoubleDot {
		t := p.cur()
		p.advance()
		hi, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return ast.NewExpr(ast.KRange, []*ast.Expr{e, hi}, t.Line, t.Col), nil
	}
	return e, nil
}

// ---------- declarations

func (p *Parser) parseMutDeclaration() (*ast.Expr, error) {
	t := p.cur() // 'mut'
	name, err := p.expectAt(1, token.Identifier, "identifier after 'mut'")
	if err != nil {
		return nil, err
	}
	colon := p.at(2)
	if colon.Kind != token.Colon {
		return nil, p.errf(t, "expected ':' after 'mut %s', found %q", name.Text, colon.Text)
	}
	typeTok := p.at(3)
	p.pos += 1 // consume 'mut', land on identifier
	switch typeTok.Kind {
	case token.Identifier:
		return p.parseDeclaration(true)
	case token.Equal:
		return p.parseDeclarationInferred(true)
	default:
		return nil, p.errf(t, "expected a type or '=' after 'mut %s :', found %q", name.Text, typeTok.Text)
	}
}

func (p *Parser) expectAt(off int, k token.Kind, what string) (token.Token, error) {
	t := p.at(off)
	if t.Kind != k {
		return t, p.errf(t, "expected %s, found %q", what, t.Text)
	}
	return t, nil
}

// parseDeclaration parses `name : Type = expr`. Entry: current token is
// the declared name.
func (p *Parser) parseDeclaration(isMut bool) (*ast.Expr, error) {
	nameTok := p.advance()
	if _, err := p.expect(token.Colon, "':'"); err != nil {
		return nil, err
	}
	typeTok, err := p.expect(token.Identifier, "type name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Equal, "'='"); err != nil {
		return nil, err
	}
	val, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	e := ast.NewExpr(ast.KDeclaration, []*ast.Expr{val}, nameTok.Line, nameTok.Col)
	e.Decl = &ast.Declaration{Name: nameTok.Text, Type: ast.Custom(typeTok.Text), IsMut: isMut}
	return e, nil
}

// parseDeclarationInferred parses `name := expr`.
func (p *Parser) parseDeclarationInferred(isMut bool) (*ast.Expr, error) {
	nameTok := p.advance()
	if _, err := p.expect(token.Colon, "':'"); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Equal, "'='"); err != nil {
		return nil, err
	}
	val, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	e := ast.NewExpr(ast.KDeclaration, []*ast.Expr{val}, nameTok.Line, nameTok.Col)
	e.Decl = &ast.Declaration{Name: nameTok.Text, Type: ast.Infer(), IsMut: isMut}
	return e, nil
}

// ---------- control flow

func (p *Parser) parseReturn() (*ast.Expr, error) {
	t := p.advance()
	var params []*ast.Expr
	if canStartPrimary(p.cur().Kind) {
		val, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		params = append(params, val)
	}
	return ast.NewExpr(ast.KReturn, params, t.Line, t.Col), nil
}

func (p *Parser) parseThrow() (*ast.Expr, error) {
	t := p.advance()
	val, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return ast.NewExpr(ast.KThrow, []*ast.Expr{val}, t.Line, t.Col), nil
}

func canStartPrimary(k token.Kind) bool {
	switch k {
	case token.Number, token.Str, token.True, token.False, token.Func, token.Proc,
		token.Macro, token.FuncExt, token.ProcExt, token.Enum, token.Struct, token.Identifier:
		return true
	}
	return false
}

func (p *Parser) parseIf() (*ast.Expr, error) {
	t := p.advance()
	cond, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LeftBrace, "'{' after 'if' condition"); err != nil {
		return nil, err
	}
	thenBody, err := p.parseBody(token.RightBrace)
	if err != nil {
		return nil, err
	}
	p.advance() // '}'
	params := []*ast.Expr{cond, thenBody}
	if p.cur().Kind == token.Else {
		p.advance()
		if _, err := p.expect(token.LeftBrace, "'{' after 'else'"); err != nil {
			return nil, err
		}
		elseBody, err := p.parseBody(token.RightBrace)
		if err != nil {
			return nil, err
		}
		p.advance()
		params = append(params, elseBody)
	}
	return ast.NewExpr(ast.KIf, params, t.Line, t.Col), nil
}

func (p *Parser) parseWhile() (*ast.Expr, error) {
	t := p.advance()
	cond, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LeftBrace, "'{' after 'while' condition"); err != nil {
		return nil, err
	}
	body, err := p.parseBody(token.RightBrace)
	if err != nil {
		return nil, err
	}
	p.advance()
	return ast.NewExpr(ast.KWhile, []*ast.Expr{cond, body}, t.Line, t.Col), nil
}

// parseForIn parses `for v: T in coll { body }`.
func (p *Parser) parseForIn() (*ast.Expr, error) {
	t := p.advance()
	nameTok, err := p.expect(token.Identifier, "loop variable name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Colon, "':' after loop variable"); err != nil {
		return nil, err
	}
	typeTok, err := p.expect(token.Identifier, "loop variable type")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.In, "'in'"); err != nil {
		return nil, err
	}
	coll, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LeftBrace, "'{' after for-in collection"); err != nil {
		return nil, err
	}
	body, err := p.parseBody(token.RightBrace)
	if err != nil {
		return nil, err
	}
	p.advance()
	e := ast.NewExpr(ast.KForIn, []*ast.Expr{coll, body}, t.Line, t.Col)
	e.Name = nameTok.Text
	e.TypeName = typeTok.Text
	return e, nil
}

// parseSwitch parses `switch v { case P : body ... default: body }`.
// Case patterns support a bare variant name, `Type.Variant`,
// `Type.Variant(binding)`, a range `lo..hi`, or a literal, plus an
// optional `default:` clause (rejecting a second one).
func (p *Parser) parseSwitch() (*ast.Expr, error) {
	t := p.advance()
	scrutinee, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LeftBrace, "'{' after switch scrutinee"); err != nil {
		return nil, err
	}
	params := []*ast.Expr{scrutinee}
	sawDefault := false
	for {
		ct := p.cur()
		if ct.Kind == token.RightBrace {
			p.advance()
			break
		}
		if ct.Kind == token.Default {
			if sawDefault {
				return nil, p.errf(ct, "duplicate 'default' case in switch")
			}
			sawDefault = true
			p.advance()
			if _, err := p.expect(token.Colon, "':' after 'default'"); err != nil {
				return nil, err
			}
			params = append(params, ast.NewExpr(ast.KDefaultCase, nil, ct.Line, ct.Col))
			body, err := p.parseCaseBody()
			if err != nil {
				return nil, err
			}
			params = append(params, body)
			continue
		}
		if ct.Kind != token.Case {
			return nil, p.errf(ct, "expected 'case' or 'default' in switch, found %q", ct.Text)
		}
		p.advance()
		pat, err := p.parseCasePattern()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon, "':' after case pattern"); err != nil {
			return nil, err
		}
		params = append(params, pat)
		body, err := p.parseCaseBody()
		if err != nil {
			return nil, err
		}
		params = append(params, body)
	}
	return ast.NewExpr(ast.KSwitch, params, t.Line, t.Col), nil
}

// parseCasePattern parses one `case` pattern (everything between `case`
// and the following `:`).
func (p *Parser) parseCasePattern() (*ast.Expr, error) {
	t := p.cur()
	switch t.Kind {
	case token.Number, token.Str, token.True, token.False:
		lo, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		if p.cur().Kind != token.DoubleDot {
			return lo, nil
		}
		dd := p.advance()
		hi, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return ast.NewExpr(ast.KRange, []*ast.Expr{lo, hi}, dd.Line, dd.Col), nil
	}
	if t.Kind != token.Identifier {
		return p.parsePrimary()
	}
	// Identifier-led pattern: Variant | Type.Variant | Type.Variant(binding) | lo..hi
	name := t.Text
	p.advance()
	typeName := ""
	if p.cur().Kind == token.Dot {
		p.advance()
		variant, err := p.expect(token.Identifier, "variant name after '.'")
		if err != nil {
			return nil, err
		}
		typeName = name
		name = variant.Text
	}
	if p.cur().Kind == token.LeftParen {
		p.advance()
		binding, err := p.expect(token.Identifier, "payload binding name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RightParen, "')' after payload binding"); err != nil {
			return nil, err
		}
		pat := ast.NewExpr(ast.KPattern, []*ast.Expr{{Kind: ast.KIdentifier, Name: binding.Text, Line: binding.Line, Col: binding.Col}}, t.Line, t.Col)
		pat.Name = name
		pat.TypeName = typeName
		return pat, nil
	}
	if p.cur().Kind == token.DoubleDot {
		// lo..hi range where lo happens to be a bare identifier/const name
		dd := p.cur()
		p.advance()
		hi, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		lo := ast.NewExpr(ast.KIdentifier, nil, t.Line, t.Col)
		lo.Name = name
		return ast.NewExpr(ast.KRange, []*ast.Expr{lo, hi}, dd.Line, dd.Col), nil
	}
	pat := ast.NewExpr(ast.KPattern, nil, t.Line, t.Col)
	pat.Name = name
	pat.TypeName = typeName
	return pat, nil
}

// parseCaseBody parses the statements after a case's ':' up to the next
// `case`, `default`, or the switch's closing brace.
func (p *Parser) parseCaseBody() (*ast.Expr, error) {
	start := p.cur()
	var stmts []*ast.Expr
	for {
		t := p.cur()
		if t.Kind == token.RightBrace || t.Kind == token.Case || t.Kind == token.Default {
			break
		}
		if t.Kind == token.Eof {
			return nil, p.errf(t, "expected '}' to end switch")
		}
		if t.Kind == token.Semicolon {
			p.advance()
			continue
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return ast.NewExpr(ast.KBody, stmts, start.Line, start.Col), nil
}

// parseCatch parses a `catch (var: Type) { body }` block following a
// throwing call in the same body.
func (p *Parser) parseCatch() (*ast.Expr, error) {
	t := p.advance()
	if _, err := p.expect(token.LeftParen, "'(' after 'catch'"); err != nil {
		return nil, err
	}
	nameTok, err := p.expect(token.Identifier, "caught variable name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Colon, "':' after caught variable name"); err != nil {
		return nil, err
	}
	typeTok, err := p.expect(token.Identifier, "caught exception type")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.RightParen, "')' after caught variable type"); err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LeftBrace, "'{' after catch header"); err != nil {
		return nil, err
	}
	body, err := p.parseBody(token.RightBrace)
	if err != nil {
		return nil, err
	}
	p.advance()
	e := ast.NewExpr(ast.KCatch, []*ast.Expr{body}, t.Line, t.Col)
	e.Name = nameTok.Text
	e.TypeName = typeTok.Text
	return e, nil
}

// attachCatch wraps a throwing call expression together with its trailing
// catch block (if any) so later phases see them as a single statement
// pair: [FCall, Catch?].
func (p *Parser) attachCatch(call *ast.Expr) (*ast.Expr, error) {
	call.Throws = true
	catch, err := p.parseCatch()
	if err != nil {
		return nil, err
	}
	wrap := ast.NewExpr(ast.KBody, []*ast.Expr{call, catch}, call.Line, call.Col)
	return wrap, nil
}

// ---------- function / struct / enum definitions

func (p *Parser) parseFuncDef(kind ast.FuncKind, parseBody bool) (*ast.Expr, error) {
	t := p.advance() // func/proc/macro/ext_func/ext_proc
	if _, err := p.expect(token.LeftParen, "'(' after function keyword"); err != nil {
		return nil, err
	}
	args, err := p.parseFuncArgs()
	if err != nil {
		return nil, err
	}
	var returns []ast.ValueType
	if p.cur().Kind == token.Returns {
		p.advance()
		returns, err = p.parseTypeList(token.Throws, token.LeftBrace)
		if err != nil {
			return nil, err
		}
	}
	var throwsList []ast.ValueType
	if p.cur().Kind == token.Throws {
		p.advance()
		throwsList, err = p.parseTypeList(token.LeftBrace)
		if err != nil {
			return nil, err
		}
	}
	var body []*ast.Expr
	if parseBody {
		if _, err := p.expect(token.LeftBrace, "'{' to begin function body"); err != nil {
			return nil, err
		}
		b, err := p.parseBody(token.RightBrace)
		if err != nil {
			return nil, err
		}
		p.advance()
		body = b.Params
	}
	e := ast.NewExpr(ast.KFuncDef, nil, t.Line, t.Col)
	e.Func = &ast.FuncDef{Kind: kind, Args: args, Returns: returns, Throws: throwsList, Body: body, SourcePath: p.path}
	return e, nil
}

// parseTypeList parses a comma-separated list of type names, stopping
// before any of the given stop kinds.
func (p *Parser) parseTypeList(stop ...token.Kind) ([]ast.ValueType, error) {
	isStop := func(k token.Kind) bool {
		for _, s := range stop {
			if s == k {
				return true
			}
		}
		return false
	}
	var types []ast.ValueType
	for {
		t, err := p.expect(token.Identifier, "type name")
		if err != nil {
			return nil, err
		}
		types = append(types, ast.Custom(t.Text))
		if p.cur().Kind == token.Comma {
			p.advance()
			continue
		}
		if isStop(p.cur().Kind) {
			break
		}
		break
	}
	return types, nil
}

// parseFuncArgs parses `(a: T, b: mut T, c: U..)`; the mut/copy/own
// modifier sits between ':' and the type name.
func (p *Parser) parseFuncArgs() ([]ast.Declaration, error) {
	var args []ast.Declaration
	if p.cur().Kind == token.RightParen {
		p.advance()
		return args, nil
	}
	for {
		nameTok, err := p.expect(token.Identifier, "argument name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Colon, "':' after argument name"); err != nil {
			return nil, err
		}
		isMut, isCopy, isOwn := false, false, false
		switch {
		case p.cur().Kind == token.Mut:
			isMut = true
			p.advance()
		case p.cur().Kind == token.Identifier && p.cur().Text == "copy":
			isCopy = true
			p.advance()
		case p.cur().Kind == token.Identifier && p.cur().Text == "own":
			isOwn = true
			p.advance()
		}
		typeTok, err := p.expect(token.Identifier, "argument type")
		if err != nil {
			return nil, err
		}
		vt := ast.Custom(typeTok.Text)
		if p.cur().Kind == token.DoubleDot {
			p.advance()
			vt = ast.Multi(vt)
		}
		args = append(args, ast.Declaration{Name: nameTok.Text, Type: vt, IsMut: isMut, IsCopy: isCopy, IsOwn: isOwn})
		if p.cur().Kind == token.Comma {
			p.advance()
			continue
		}
		if _, err := p.expect(token.RightParen, "')' to close argument list"); err != nil {
			return nil, err
		}
		break
	}
	return args, nil
}

// parseEnumDef parses `enum { A, B: PayloadType, C }`.
func (p *Parser) parseEnumDef() (*ast.Expr, error) {
	t := p.advance() // 'enum'
	if _, err := p.expect(token.LeftBrace, "'{' after 'enum'"); err != nil {
		return nil, err
	}
	def := &ast.EnumDef{}
	for {
		ct := p.cur()
		if ct.Kind == token.RightBrace {
			p.advance()
			break
		}
		if ct.Kind == token.Comma {
			p.advance()
			continue
		}
		if ct.Kind != token.Identifier {
			return nil, p.errf(ct, "expected '}' to end enum or a new identifier, found %q", ct.Text)
		}
		p.advance()
		variant := ast.Variant{Name: ct.Text}
		if p.cur().Kind == token.Colon {
			p.advance()
			payloadTok, err := p.expect(token.Identifier, "payload type after ':'")
			if err != nil {
				return nil, err
			}
			pvt := ast.Custom(payloadTok.Text)
			variant.Payload = &pvt
		}
		def.Variants = append(def.Variants, variant)
	}
	e := ast.NewExpr(ast.KEnumDef, nil, t.Line, t.Col)
	e.Enum = def
	return e, nil
}

// parseStructDef parses `struct { member := default ... }`. Every member
// must be a Declaration with exactly one default-value expression; bare
// `name : Type` members with no default are rejected.
func (p *Parser) parseStructDef() (*ast.Expr, error) {
	t := p.advance() // 'struct'
	if _, err := p.expect(token.LeftBrace, "'{' after 'struct'"); err != nil {
		return nil, err
	}
	body, err := p.parseBody(token.RightBrace)
	if err != nil {
		return nil, err
	}
	p.advance()
	def := &ast.StructDef{Defaults: map[string]*ast.Expr{}}
	for _, stmt := range body.Params {
		if stmt.Kind != ast.KDeclaration {
			return nil, p.errf(t, "expected only declarations inside struct definition")
		}
		if len(stmt.Params) != 1 {
			return nil, p.errf(t, "all declarations inside struct definitions must have a value")
		}
		// `member := default` inside a struct body declares an instance
		// field; a member is a namespaced constant only when its default
		// value is itself a callable (func/proc/macro literal), which
		// never needs per-instance storage.
		member := *stmt.Decl
		member.IsMut = stmt.Params[0].Kind != ast.KFuncDef
		def.Members = append(def.Members, member)
		def.Defaults[stmt.Decl.Name] = stmt.Params[0]
	}
	e := ast.NewExpr(ast.KStructDef, nil, t.Line, t.Col)
	e.Struct = def
	return e, nil
}
