// Package eval is the tree-walking evaluator: it executes an already
// desugared, precomputed AST against a scope-frame stack and a single
// arena heap, walking one node tree against a frame per call. It carries
// its own Result{value, is_return, is_throw, ...} control-signal shape
// rather than panic/recover-based control flow, since til has explicitly
// typed throws rather than Go-style panics.
package eval

import (
	"fmt"
	"io"

	"github.com/saruga/til/internal/til/arena"
	"github.com/saruga/til/internal/til/ast"
	"github.com/saruga/til/internal/til/builtins"
	"github.com/saruga/til/internal/til/scope"
)

// ReturnTempPrefix is a reserved name prefix for synthetic bindings of
// struct/enum return values. The evaluator binds no names under it:
// evalUserCall hands the callee's result Value straight back to the
// caller.
const ReturnTempPrefix = "___temp_return_val_"

// Result is the outcome of evaluating one statement or expression,
// carrying both a value and the control-flow signal that caused
// evaluation of the enclosing body to stop early (return/throw/break/
// continue).
type Result struct {
	Value      Value
	IsReturn   bool
	IsThrow    bool
	IsBreak    bool
	IsContinue bool
	ThrownType string
}

// Value is a runtime value: a type tag plus the arena offset holding its
// bytes. Primitives are stored inline: an I64 in 8 bytes, a U8 in one
// byte, and a Bool in one byte (AllocBool reserves an 8-byte slot, but
// reads and copies use only its first byte, matching sizeOfTypeName);
// Str is a 16-byte {CString, Cap} pair; structs and enums occupy their
// own computed-size block.
type Value struct {
	TypeName string
	Offset   int
	Func     *ast.FuncDef // set only for function-valued bindings
}

func voidValue() Value { return Value{TypeName: "Void"} }

// Context bundles everything one evaluation run needs: the arena, the
// scope stack, the global declarations (funcs/structs/enums) produced by
// initidx, the builtins table, and the source path for diagnostics.
type Context struct {
	Arena      *arena.Arena
	Scope      *scope.Stack
	Global     *scope.Frame
	Table      builtins.Table
	SourcePath string

	// Out/In back the single_print/println/input_read_line builtins
	// (builtins.Host's Stdout/Stdin), so a program's I/O goes through
	// the Interpreter's configured Options.Stdout/Stdin rather than the
	// process's own os.Stdout/os.Stdin directly.
	Out io.Writer
	In  io.Reader
}

// NewContext builds a fresh evaluation context sharing one arena and
// scope stack for the whole interpreter run.
func NewContext(path string, a *arena.Arena, s *scope.Stack, global *scope.Frame, table builtins.Table, out io.Writer, in io.Reader) *Context {
	return &Context{Arena: a, Scope: s, Global: global, Table: table, SourcePath: path, Out: out, In: in}
}

// Error is an EvalError: an uncaught thrown value, or a runtime
// constraint violation (out-of-bounds arena access, division by zero)
// that the type checker cannot rule out statically.
type Error struct {
	Path      string
	Line, Col int
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: Eval ERROR: %s", e.Path, e.Line, e.Col, e.Message)
}

func (c *Context) errAt(e *ast.Expr, format string, args ...interface{}) error {
	return &Error{Path: c.SourcePath, Line: e.Line, Col: e.Col, Message: fmt.Sprintf(format, args...)}
}

// Body evaluates a sequence of statements in order, stopping as soon as
// one produces a control-flow signal (return/throw/break/continue).
func (c *Context) Body(stmts []*ast.Expr) (Result, error) {
	var last Result
	for _, stmt := range stmts {
		r, err := c.Stmt(stmt)
		if err != nil {
			return Result{}, err
		}
		last = r
		if r.IsReturn || r.IsThrow || r.IsBreak || r.IsContinue {
			return r, nil
		}
	}
	return last, nil
}

// Stmt evaluates one statement/expression node.
func (c *Context) Stmt(e *ast.Expr) (Result, error) {
	switch e.Kind {
	case ast.KBody:
		return c.evalBodyWithCatch(e)
	case ast.KDeclaration:
		return c.evalDeclaration(e)
	case ast.KAssignment:
		return c.evalAssignment(e)
	case ast.KFCall:
		return c.evalCall(e)
	case ast.KReturn:
		return c.evalReturn(e)
	case ast.KThrow:
		return c.evalThrow(e)
	case ast.KIf:
		return c.evalIf(e)
	case ast.KWhile:
		return c.evalWhile(e)
	case ast.KBreak:
		return Result{IsBreak: true}, nil
	case ast.KContinue:
		return Result{IsContinue: true}, nil
	case ast.KCatch:
		// A bare catch with no preceding call is only reachable via
		// evalBodyWithCatch; as a standalone statement it is a no-op.
		return Result{}, nil
	default:
		v, err := c.Expr(e)
		return Result{Value: v}, err
	}
}

// evalBodyWithCatch handles desugar/parser's [call, catch] pairing: a
// KBody of exactly two statements, a throwing KFCall followed by a
// KCatch, is executed as a unit so the catch can observe the call's
// thrown type. Any other KBody is evaluated as a plain statement list.
func (c *Context) evalBodyWithCatch(e *ast.Expr) (Result, error) {
	if len(e.Params) == 2 && e.Params[0].Kind == ast.KFCall && e.Params[0].Throws && e.Params[1].Kind == ast.KCatch {
		call, catch := e.Params[0], e.Params[1]
		r, err := c.evalCall(call)
		if err != nil {
			return Result{}, err
		}
		if r.IsThrow {
			frame := c.Scope.Push(scope.KindBlock)
			frame.ArenaIndex[catch.Name] = r.Value.Offset
			frame.VarTypes[catch.Name] = r.Value.TypeName
			defer c.Scope.Pop()
			return c.Body(catch.Params[0].Params)
		}
		return r, nil
	}
	return c.Body(e.Params)
}

func (c *Context) evalDeclaration(e *ast.Expr) (Result, error) {
	if k := e.Params[0].Kind; k == ast.KStructDef || k == ast.KEnumDef {
		// Struct and enum definitions are registered in Global by initidx
		// before evaluation; the declaration binds no runtime value.
		return Result{}, nil
	}
	val, err := c.Expr(e.Params[0])
	if err != nil {
		return Result{}, err
	}
	c.Scope.DeclareVar(e.Decl.Name, val.Offset)
	c.Scope.Top().VarTypes[e.Decl.Name] = val.TypeName
	c.bindTypeMeta(e.Decl.Name, val)
	return Result{Value: val}, nil
}

// bindTypeMeta records a function value's definition against its name so
// later calls can resolve it; primitives/structs/enums need no extra
// bookkeeping beyond the arena offset already stored in ArenaIndex.
func (c *Context) bindTypeMeta(name string, v Value) {
	if v.Func != nil {
		c.Scope.Top().Funcs[name] = v.Func
	}
}

func (c *Context) evalAssignment(e *ast.Expr) (Result, error) {
	val, err := c.Expr(e.Params[0])
	if err != nil {
		return Result{}, err
	}
	offset, ok := c.resolveTargetOffset(e.Name)
	if !ok {
		return Result{}, c.errAt(e, "assignment to undeclared variable '%s'", e.Name)
	}
	size, err := c.sizeOfValue(val)
	if err != nil {
		return Result{}, err
	}
	data, err := c.Arena.ReadBytes(val.Offset, size)
	if err != nil {
		return Result{}, err
	}
	if err := c.Arena.WriteBytes(offset, data); err != nil {
		return Result{}, err
	}
	return Result{Value: val}, nil
}

// resolveTargetOffset resolves a (possibly dotted) assignment target to
// the arena offset its bytes should be written to. A dotted path
// ("s.field") resolves the base variable and then adds the field's
// byte offset within its struct layout.
func (c *Context) resolveTargetOffset(path string) (int, bool) {
	base, field := splitFirstDot(path)
	baseOffset, ok := c.Scope.LookupVar(base)
	if !ok {
		return 0, false
	}
	if field == "" {
		return baseOffset, true
	}
	return c.fieldOffset(base, baseOffset, field)
}

func splitFirstDot(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

// fieldOffset finds a struct field's absolute arena offset given the
// struct variable's own base offset, by looking up its declared type.
func (c *Context) fieldOffset(varName string, baseOffset int, field string) (int, bool) {
	typeName, ok := c.varStructType(varName)
	if !ok {
		return 0, false
	}
	sd, ok := c.lookupStruct(typeName)
	if !ok {
		return 0, false
	}
	off := baseOffset
	for _, f := range sd.Fields() {
		sz := c.sizeOfType(f.Type)
		if f.Name == field {
			return off, true
		}
		off += sz
	}
	return 0, false
}

// varStructType looks up a variable's struct type name the way
// typeNameOfVar does: the type recorded for it in the scope stack's
// VarTypes when present, else a struct-table entry of the same name.
func (c *Context) varStructType(varName string) (string, bool) {
	return c.typeNameOfVar(varName), true
}

func (c *Context) lookupStruct(name string) (*ast.StructDef, bool) {
	if sd, ok := c.Scope.LookupStruct(name); ok {
		return sd, true
	}
	if sd, ok := c.Global.Structs[name]; ok {
		return sd, true
	}
	return nil, false
}

func (c *Context) lookupEnum(name string) (*ast.EnumDef, bool) {
	if ed, ok := c.Scope.LookupEnum(name); ok {
		return ed, true
	}
	if ed, ok := c.Global.Enums[name]; ok {
		return ed, true
	}
	return nil, false
}

func (c *Context) evalReturn(e *ast.Expr) (Result, error) {
	if len(e.Params) == 0 {
		return Result{IsReturn: true, Value: voidValue()}, nil
	}
	v, err := c.Expr(e.Params[0])
	if err != nil {
		return Result{}, err
	}
	return Result{IsReturn: true, Value: v}, nil
}

func (c *Context) evalThrow(e *ast.Expr) (Result, error) {
	v, err := c.Expr(e.Params[0])
	if err != nil {
		return Result{}, err
	}
	return Result{IsThrow: true, Value: v, ThrownType: v.TypeName}, nil
}

func (c *Context) evalIf(e *ast.Expr) (Result, error) {
	cond, err := c.Expr(e.Params[0])
	if err != nil {
		return Result{}, err
	}
	b, err := c.boolOf(e, cond)
	if err != nil {
		return Result{}, err
	}
	if b {
		return c.runBlock(e.Params[1])
	}
	if len(e.Params) == 3 {
		return c.runBlock(e.Params[2])
	}
	return Result{}, nil
}

func (c *Context) evalWhile(e *ast.Expr) (Result, error) {
	for {
		cond, err := c.Expr(e.Params[0])
		if err != nil {
			return Result{}, err
		}
		b, err := c.boolOf(e, cond)
		if err != nil {
			return Result{}, err
		}
		if !b {
			return Result{}, nil
		}
		r, err := c.runBlock(e.Params[1])
		if err != nil {
			return Result{}, err
		}
		if r.IsBreak {
			return Result{}, nil
		}
		if r.IsReturn || r.IsThrow {
			return r, nil
		}
		// IsContinue falls through to the next iteration.
	}
}

func (c *Context) runBlock(body *ast.Expr) (Result, error) {
	c.Scope.Push(scope.KindBlock)
	defer c.Scope.Pop()
	return c.Body(body.Params)
}

func (c *Context) boolOf(e *ast.Expr, v Value) (bool, error) {
	if v.TypeName != "Bool" {
		return false, c.errAt(e, "condition must be of type Bool, found %s", v.TypeName)
	}
	n, err := c.Arena.ReadU8(v.Offset)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}
