package eval

import (
	"fmt"
	"io"

	"github.com/saruga/til/internal/til/arena"
	"github.com/saruga/til/internal/til/ast"
	"github.com/saruga/til/internal/til/builtins"
	"github.com/saruga/til/internal/til/scope"
)

// Expr evaluates one value-producing expression node (literal,
// identifier, call) and returns its runtime Value.
func (c *Context) Expr(e *ast.Expr) (Value, error) {
	switch e.Kind {
	case ast.KLiteralNumber:
		return Value{TypeName: "I64", Offset: c.AllocI64(parseI64(e.Lit.Num))}, nil
	case ast.KLiteralStr:
		return Value{TypeName: "Str", Offset: c.AllocStr(e.Lit.Str)}, nil
	case ast.KLiteralBool:
		return Value{TypeName: "Bool", Offset: c.AllocBool(e.Lit.Bool)}, nil
	case ast.KIdentifier:
		return c.evalIdentifier(e)
	case ast.KFCall:
		r, err := c.evalCall(e)
		if err != nil {
			return Value{}, err
		}
		if r.IsThrow {
			return Value{}, c.errAt(e, "uncaught throw of type '%s'", r.ThrownType)
		}
		return r.Value, nil
	case ast.KFuncDef:
		return Value{TypeName: "Func", Func: e.Func}, nil
	default:
		return Value{}, c.errAt(e, "cannot evaluate node kind %d as an expression", int(e.Kind))
	}
}

func parseI64(s string) int64 {
	var n int64
	neg := false
	for i, ch := range s {
		if i == 0 && ch == '-' {
			neg = true
			continue
		}
		if ch < '0' || ch > '9' {
			break
		}
		n = n*10 + int64(ch-'0')
	}
	if neg {
		n = -n
	}
	return n
}

// evalIdentifier resolves a (possibly dotted) identifier chain to a
// Value: a bare local/global variable, a struct field access, or an
// unqualified struct/enum type name used as a namespace (e.g.
// `MyEnum.Variant` handled by evalCall, but `MyStruct` alone referring to
// the type itself for `has_field`/reflection callers).
func (c *Context) evalIdentifier(e *ast.Expr) (Value, error) {
	base, rest := splitFirstDot(e.Name)
	if offset, ok := c.Scope.LookupVar(base); ok {
		if rest == "" {
			return Value{TypeName: c.typeNameOfVar(base), Offset: offset}, nil
		}
		fieldOffset, ok := c.fieldOffset(base, offset, rest)
		if !ok {
			return Value{}, c.errAt(e, "unknown field '%s' on '%s'", rest, base)
		}
		return Value{TypeName: c.fieldTypeName(base, rest), Offset: fieldOffset}, nil
	}
	if fn, ok := c.Scope.LookupFunc(e.Name); ok {
		return Value{TypeName: "Func", Func: fn}, nil
	}
	return Value{}, c.errAt(e, "undeclared identifier '%s'", e.Name)
}

// typeNameOfVar is a best-effort static-type recovery for a bare
// variable; full static typing lives in the type checker, so at eval
// time we only need enough to route field lookups and size_of. The
// scope stack's VarTypes entry (stamped at declaration/bind time) is
// authoritative when present; the struct-table fallback exists for
// variables bound before VarTypes covered every bind site.
func (c *Context) typeNameOfVar(name string) string {
	if tn, ok := c.Scope.LookupVarType(name); ok {
		return tn
	}
	if sd, ok := c.lookupStruct(name); ok {
		return sd.Name
	}
	return name
}

func (c *Context) fieldTypeName(varName, field string) string {
	typeName, ok := c.varStructType(varName)
	if !ok {
		return "I64"
	}
	sd, ok := c.lookupStruct(typeName)
	if !ok {
		return "I64"
	}
	if f, ok := sd.Field(field); ok {
		return f.Type.String()
	}
	return "I64"
}

// evalCall dispatches a KFCall to the struct constructor, enum
// constructor, user func/proc, or builtin table.
func (c *Context) evalCall(e *ast.Expr) (Result, error) {
	if sd, ok := c.typeIsStructConstructor(e.Name); ok {
		return c.evalStructDefault(e, sd)
	}
	if typeName, variant, ok := splitEnumConstructor(e.Name, c); ok {
		return c.evalEnumConstruct(e, typeName, variant)
	}
	if e.Name == "enum_to_str" && len(e.Params) == 1 {
		return c.evalEnumToStr(e)
	}
	if e.Name == "enum_get_payload" && len(e.Params) == 1 {
		return c.evalEnumGetPayload(e)
	}
	if e.Name == "collection_len" && len(e.Params) == 1 {
		return c.evalCollectionLen(e)
	}
	if e.Name == "collection_get" && len(e.Params) == 2 {
		return c.evalCollectionGet(e)
	}
	if e.Name == "size_of" && len(e.Params) == 1 {
		arg, err := c.Expr(e.Params[0])
		if err != nil {
			return Result{}, err
		}
		return Result{Value: Value{TypeName: "I64", Offset: c.AllocI64(int64(c.sizeOfTypeName(arg.TypeName)))}}, nil
	}
	if fn, ok := c.lookupCallableFunc(e.Name); ok {
		return c.evalUserCall(e, fn)
	}
	if bf, ok := c.Table[e.Name]; ok {
		return c.evalBuiltinCall(e, bf)
	}
	return Result{}, c.errAt(e, "call to undeclared function '%s'", e.Name)
}

func (c *Context) lookupCallableFunc(name string) (*ast.FuncDef, bool) {
	if fn, ok := c.Scope.LookupFunc(name); ok {
		return fn, true
	}
	if fn, ok := c.Global.Funcs[name]; ok {
		return fn, true
	}
	return nil, false
}

// typeIsStructConstructor recognises a call naming a known struct type,
// either bare (`Type(field=value, ...)` named-argument struct literal
// syntax) or with the explicit `.default` suffix the
// precomp/desugar passes use internally when they need to construct a
// default instance without risking a collision with a same-named
// function.
func (c *Context) typeIsStructConstructor(name string) (*ast.StructDef, bool) {
	if hasSuffix(name, ".default") {
		return c.lookupStruct(name[:len(name)-len(".default")])
	}
	return c.lookupStruct(name)
}

func hasSuffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}

// splitEnumConstructor recognises `EnumType.Variant` and reports whether
// EnumType names a known enum with that variant.
func splitEnumConstructor(name string, c *Context) (string, string, bool) {
	typeName, variant := splitLastDot(name)
	if variant == "" {
		return "", "", false
	}
	ed, ok := c.lookupEnum(typeName)
	if !ok {
		return "", "", false
	}
	if _, ok := ed.Variant(variant); !ok {
		return "", "", false
	}
	return typeName, variant, true
}

func splitLastDot(s string) (string, string) {
	idx := lastDotIdx(s)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

func lastDotIdx(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// evalEnumConstruct builds an EnumVal: an 8-byte tag (the variant's
// position) followed by the evaluated payload bytes, if the variant
// carries one.
func (c *Context) evalEnumConstruct(e *ast.Expr, typeName, variant string) (Result, error) {
	ed, _ := c.lookupEnum(typeName)
	idx := ed.VariantIndex(variant)
	v, _ := ed.Variant(variant)

	var payload []byte
	if v.Payload != nil && len(e.Params) == 1 {
		pv, err := c.Expr(e.Params[0])
		if err != nil {
			return Result{}, err
		}
		size := c.sizeOfType(*v.Payload)
		data, err := c.Arena.ReadBytes(pv.Offset, size)
		if err != nil {
			return Result{}, err
		}
		payload = data
	}

	offset := c.Arena.InsertEnum(arena.EnumLayout{Tag: int64(idx), Payload: payload})
	return Result{Value: Value{TypeName: typeName, Offset: offset}}, nil
}

// evalEnumToStr resolves an enum value's tag back to its declared
// variant name, the inverse of evalEnumConstruct's tag assignment.
func (c *Context) evalEnumToStr(e *ast.Expr) (Result, error) {
	arg, err := c.Expr(e.Params[0])
	if err != nil {
		return Result{}, err
	}
	ed, ok := c.lookupEnum(arg.TypeName)
	if !ok {
		return Result{}, c.errAt(e, "enum_to_str: '%s' is not an enum type", arg.TypeName)
	}
	tag, err := c.Arena.ReadEnumTag(arg.Offset)
	if err != nil {
		return Result{}, err
	}
	if tag < 0 || int(tag) >= len(ed.Variants) {
		return Result{}, c.errAt(e, "enum_to_str: tag %d out of range for enum '%s'", tag, ed.Name)
	}
	return Result{Value: Value{TypeName: "Str", Offset: c.AllocStr(ed.Variants[tag].Name)}}, nil
}

// evalEnumGetPayload reads the payload bytes stored immediately after an
// enum value's 8-byte tag, typed as the current variant's declared
// payload type. Calling it on a payload-less variant is a runtime error,
// not a TypeError, since the variant actually bound is only known at
// eval time for a bare (untyped) case pattern.
func (c *Context) evalEnumGetPayload(e *ast.Expr) (Result, error) {
	arg, err := c.Expr(e.Params[0])
	if err != nil {
		return Result{}, err
	}
	ed, ok := c.lookupEnum(arg.TypeName)
	if !ok {
		return Result{}, c.errAt(e, "enum_get_payload: '%s' is not an enum type", arg.TypeName)
	}
	tag, err := c.Arena.ReadEnumTag(arg.Offset)
	if err != nil {
		return Result{}, err
	}
	if tag < 0 || int(tag) >= len(ed.Variants) {
		return Result{}, c.errAt(e, "enum_get_payload: tag %d out of range for enum '%s'", tag, ed.Name)
	}
	v := ed.Variants[tag]
	if v.Payload == nil {
		return Result{}, c.errAt(e, "enum_get_payload: variant '%s' of '%s' carries no payload", v.Name, ed.Name)
	}
	return Result{Value: Value{TypeName: v.Payload.String(), Offset: arg.Offset + 8}}, nil
}

// arrayPrefix marks a variadic parameter's runtime array type: "[]Str"
// for a Str.. binding, following the same sentinel-TypeName convention
// as "Void"/"Func".
const arrayPrefix = "[]"

func arrayTypeName(elem string) string { return arrayPrefix + elem }

func arrayElemTypeName(typeName string) (string, bool) {
	if len(typeName) > len(arrayPrefix) && typeName[:len(arrayPrefix)] == arrayPrefix {
		return typeName[len(arrayPrefix):], true
	}
	return "", false
}

// evalCollectionLen resolves core.til's `len` to the collection's actual
// runtime element count rather than a static type size: a Str's Cap
// field, or a variadic array's leading count header.
func (c *Context) evalCollectionLen(e *ast.Expr) (Result, error) {
	arg, err := c.Expr(e.Params[0])
	if err != nil {
		return Result{}, err
	}
	switch {
	case arg.TypeName == "Str":
		n, err := c.Arena.ReadI64(arg.Offset + 8)
		if err != nil {
			return Result{}, err
		}
		return Result{Value: Value{TypeName: "I64", Offset: c.AllocI64(n)}}, nil
	default:
		if _, ok := arrayElemTypeName(arg.TypeName); ok {
			n, err := c.Arena.ReadI64(arg.Offset)
			if err != nil {
				return Result{}, err
			}
			return Result{Value: Value{TypeName: "I64", Offset: c.AllocI64(n)}}, nil
		}
	}
	return Result{Value: Value{TypeName: "I64", Offset: c.AllocI64(int64(c.sizeOfTypeName(arg.TypeName)))}}, nil
}

// evalCollectionGet resolves core.til's `get` to the element actually at
// index: a single Str byte, or a variadic array's elemSize'th slot.
// Bounds-checking happens in core.til before this is ever called.
func (c *Context) evalCollectionGet(e *ast.Expr) (Result, error) {
	coll, err := c.Expr(e.Params[0])
	if err != nil {
		return Result{}, err
	}
	idxVal, err := c.Expr(e.Params[1])
	if err != nil {
		return Result{}, err
	}
	index, err := c.Arena.ReadI64(idxVal.Offset)
	if err != nil {
		return Result{}, err
	}
	if coll.TypeName == "Str" {
		base, err := c.Arena.ReadI64(coll.Offset)
		if err != nil {
			return Result{}, err
		}
		return Result{Value: Value{TypeName: "U8", Offset: int(base) + int(index)}}, nil
	}
	if elemName, ok := arrayElemTypeName(coll.TypeName); ok {
		elemSize := c.sizeOfTypeName(elemName)
		return Result{Value: Value{TypeName: elemName, Offset: coll.Offset + 8 + int(index)*elemSize}}, nil
	}
	return Result{Value: Value{TypeName: coll.TypeName, Offset: coll.Offset}}, nil
}

// evalStructDefault builds a struct instance: a zero-filled block sized
// to the struct's fields, with each field's declared default-value
// expression evaluated and written into place (the underlying
// arena.Alloc already zero-fills new memory for us), then overlays any
// named (`field=value`) or positional constructor arguments from the
// call site.
func (c *Context) evalStructDefault(e *ast.Expr, sd *ast.StructDef) (Result, error) {
	size := c.structSize(sd)
	offset := c.Arena.Alloc(size)

	fields := sd.Fields()
	fieldOffset := make(map[string]int, len(fields))
	fieldSize := make(map[string]int, len(fields))
	off := offset
	for _, f := range fields {
		fsz := c.sizeOfType(f.Type)
		fieldOffset[f.Name] = off
		fieldSize[f.Name] = fsz
		if defExpr, ok := sd.Defaults[f.Name]; ok {
			if err := c.writeStructField(off, fsz, defExpr); err != nil {
				return Result{}, err
			}
		}
		off += fsz
	}

	named := false
	for i, arg := range e.Params {
		if arg.Kind == ast.KNamedArg {
			named = true
			foff, ok := fieldOffset[arg.Name]
			if !ok {
				return Result{}, c.errAt(e, "struct '%s' has no field '%s'", sd.Name, arg.Name)
			}
			if err := c.writeStructField(foff, fieldSize[arg.Name], arg.Params[0]); err != nil {
				return Result{}, err
			}
			continue
		}
		if named {
			return Result{}, c.errAt(e, "positional argument after named argument in '%s' constructor", sd.Name)
		}
		if i >= len(fields) {
			return Result{}, c.errAt(e, "too many arguments to '%s' constructor", sd.Name)
		}
		f := fields[i]
		if err := c.writeStructField(fieldOffset[f.Name], fieldSize[f.Name], arg); err != nil {
			return Result{}, err
		}
	}

	return Result{Value: Value{TypeName: sd.Name, Offset: offset}}, nil
}

func (c *Context) writeStructField(fieldOff, fieldSize int, valExpr *ast.Expr) error {
	val, err := c.Expr(valExpr)
	if err != nil {
		return err
	}
	data, err := c.Arena.ReadBytes(val.Offset, fieldSize)
	if err != nil {
		return err
	}
	return c.Arena.WriteBytes(fieldOff, data)
}

// evalBuiltinCall evaluates a call's arguments and dispatches to a
// registered ext func/proc.
func (c *Context) evalBuiltinCall(e *ast.Expr, fn builtins.Func) (Result, error) {
	args := make([]builtins.Value, 0, len(e.Params))
	for _, a := range e.Params {
		v, err := c.Expr(a)
		if err != nil {
			return Result{}, err
		}
		args = append(args, builtins.Value{TypeName: v.TypeName, Offset: v.Offset})
	}
	out, err := fn(c, args)
	if err != nil {
		return Result{}, c.errAt(e, "%v", err)
	}
	return Result{Value: Value{TypeName: out.TypeName, Offset: out.Offset}}, nil
}

// evalUserCall evaluates a call to a user-defined func/proc/macro,
// implementing the three caller-contract parameter-passing strategies: a
// plain argument shares the caller's arena offset; a `mut` argument is
// copied into a fresh block for the call and the callee's final bytes are
// written back to the caller's slot afterward (a write-back, not a live
// alias); a `copy` argument gets a fresh memcpy'd block; an `own` argument
// transfers the same offset and removes the binding from the caller's
// frame. A variadic tail collects its remaining positional arguments.
// Arguments are evaluated in the caller's scope, before the callee's
// function frame is pushed.
func (c *Context) evalUserCall(e *ast.Expr, fn *ast.FuncDef) (Result, error) {
	vals := make([]Value, len(e.Params))
	for i, a := range e.Params {
		var err error
		if vals[i], err = c.Expr(a); err != nil {
			return Result{}, err
		}
	}
	frame := c.Scope.Push(scope.KindFunction)
	defer c.Scope.Pop()

	type writeback struct {
		callerOffset, localOffset, size int
	}
	var writebacks []writeback

	nFixed := len(fn.Args)
	if fn.IsVariadic() {
		nFixed--
	}

	for i := 0; i < nFixed && i < len(e.Params); i++ {
		arg := fn.Args[i]
		argExpr := e.Params[i]
		val := vals[i]
		size := c.sizeOfType(arg.Type)

		switch {
		case arg.IsCopy:
			newOff, err := c.Arena.CopyFields(val.Offset, size)
			if err != nil {
				return Result{}, err
			}
			frame.ArenaIndex[arg.Name] = newOff
		case arg.IsOwn:
			frame.ArenaIndex[arg.Name] = val.Offset
			removeOwnedBinding(c, argExpr)
		case arg.IsMut:
			localOff, err := c.Arena.CopyFields(val.Offset, size)
			if err != nil {
				return Result{}, err
			}
			frame.ArenaIndex[arg.Name] = localOff
			writebacks = append(writebacks, writeback{callerOffset: val.Offset, localOffset: localOff, size: size})
		default:
			frame.ArenaIndex[arg.Name] = val.Offset
		}
		frame.VarTypes[arg.Name] = val.TypeName
	}

	if fn.IsVariadic() {
		variadic := fn.Args[len(fn.Args)-1]
		elemType := variadic.Type.Inner
		var elemSize int
		if elemType != nil {
			elemSize = c.sizeOfType(*elemType)
		}
		var elems []byte
		count := int64(0)
		for i := nFixed; i < len(e.Params); i++ {
			val := vals[i]
			data, err := c.Arena.ReadBytes(val.Offset, elemSize)
			if err != nil {
				return Result{}, err
			}
			elems = append(elems, data...)
			count++
		}
		arrOffset := c.Arena.Alloc(len(elems) + 8)
		c.Arena.WriteI64(arrOffset, count)
		if len(elems) > 0 {
			c.Arena.WriteBytes(arrOffset+8, elems)
		}
		frame.ArenaIndex[variadic.Name] = arrOffset
		elemName := "I64"
		if elemType != nil {
			elemName = elemType.Custom
		}
		frame.VarTypes[variadic.Name] = arrayTypeName(elemName)
	}

	r, err := c.Body(fn.Body)
	if err != nil {
		return Result{}, err
	}

	for _, wb := range writebacks {
		data, err := c.Arena.ReadBytes(wb.localOffset, wb.size)
		if err != nil {
			return Result{}, err
		}
		if err := c.Arena.WriteBytes(wb.callerOffset, data); err != nil {
			return Result{}, err
		}
	}

	if r.IsReturn {
		return Result{Value: r.Value}, nil
	}
	if r.IsThrow {
		return r, nil
	}
	return Result{Value: voidValue()}, nil
}

// removeOwnedBinding implements the "own" contract's transfer-and-remove
// half: if the argument expression was a bare identifier, its binding is
// deleted from whichever frame declared it so the caller can no longer
// reference the now-transferred value.
func removeOwnedBinding(c *Context, argExpr *ast.Expr) {
	if argExpr.Kind != ast.KIdentifier {
		return
	}
	for i := len(c.Scope.AllFrames()) - 1; i >= 0; i-- {
		f := c.Scope.AllFrames()[i]
		if _, ok := f.ArenaIndex[argExpr.Name]; ok {
			delete(f.ArenaIndex, argExpr.Name)
			return
		}
	}
}

// ---------- size computation

func (c *Context) sizeOfType(t ast.ValueType) int {
	switch t.Kind {
	case ast.VKCustom:
		return c.sizeOfTypeName(t.Custom)
	case ast.VKMulti:
		return 8 // array header {count int64}; elements follow inline
	default:
		return 8
	}
}

func (c *Context) sizeOfTypeName(name string) int {
	switch name {
	case "I64":
		return 8
	case "U8", "Bool":
		return 1
	case "Str":
		return 16
	}
	if sd, ok := c.lookupStruct(name); ok {
		return c.structSize(sd)
	}
	if ed, ok := c.lookupEnum(name); ok {
		return c.enumSize(ed)
	}
	return 8
}

func (c *Context) structSize(sd *ast.StructDef) int {
	total := 0
	for _, f := range sd.Fields() {
		total += c.sizeOfType(f.Type)
	}
	return total
}

func (c *Context) enumSize(ed *ast.EnumDef) int {
	maxPayload := 0
	for _, v := range ed.Variants {
		if v.Payload == nil {
			continue
		}
		if sz := c.sizeOfType(*v.Payload); sz > maxPayload {
			maxPayload = sz
		}
	}
	return 8 + maxPayload
}

func (c *Context) sizeOfValue(v Value) (int, error) {
	return c.sizeOfTypeName(v.TypeName), nil
}

// ---------- builtins.Host implementation

func (c *Context) ReadI64(offset int) (int64, error)      { return c.Arena.ReadI64(offset) }
func (c *Context) WriteI64(offset int, v int64) error     { return c.Arena.WriteI64(offset, v) }
func (c *Context) ReadU8(offset int) (byte, error)        { return c.Arena.ReadU8(offset) }
func (c *Context) WriteU8(offset int, v byte) error       { return c.Arena.WriteU8(offset, v) }
func (c *Context) ReadBytes(offset, n int) ([]byte, error) { return c.Arena.ReadBytes(offset, n) }
func (c *Context) WriteBytes(offset int, data []byte) error {
	return c.Arena.WriteBytes(offset, data)
}

func (c *Context) AllocI64(v int64) int {
	off := c.Arena.Alloc(8)
	c.Arena.WriteI64(off, v)
	return off
}

func (c *Context) AllocU8(v byte) int {
	off := c.Arena.Alloc(1)
	c.Arena.WriteU8(off, v)
	return off
}

func (c *Context) AllocBool(b bool) int {
	var n int64
	if b {
		n = 1
	}
	return c.AllocI64(n)
}

func (c *Context) AllocStr(s string) int {
	str := c.Arena.InsertStr(s)
	off := c.Arena.Alloc(16)
	c.Arena.WriteI64(off, str.CString)
	c.Arena.WriteI64(off+8, str.Cap)
	return off
}

func (c *Context) AllocBytes(n int) int { return c.Arena.Alloc(n) }

func (c *Context) ReadStrAt(offset int) (string, error) {
	cstr, err := c.Arena.ReadI64(offset)
	if err != nil {
		return "", err
	}
	capLen, err := c.Arena.ReadI64(offset + 8)
	if err != nil {
		return "", err
	}
	return c.Arena.ReadStr(arena.Str{CString: cstr, Cap: capLen})
}

func (c *Context) ReadBoolAt(offset int) (bool, error) {
	n, err := c.Arena.ReadU8(offset)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

func (c *Context) Path() string { return c.SourcePath }

func (c *Context) HasConst(typeName, name string) bool {
	if sd, ok := c.lookupStruct(typeName); ok {
		for _, m := range sd.Members {
			if !m.IsMut && m.Name == name {
				return true
			}
		}
	}
	if _, ok := c.Global.Funcs[name]; ok {
		return true
	}
	return false
}

func (c *Context) HasField(typeName, name string) bool {
	sd, ok := c.lookupStruct(typeName)
	if !ok {
		return false
	}
	_, ok = sd.Field(name)
	return ok
}

func (c *Context) EvalToStr(src string) (string, error) {
	return "", fmt.Errorf("eval_to_str: not available in this evaluation context")
}

func (c *Context) EvalFile(path string) error {
	return fmt.Errorf("eval_file: not available in this evaluation context")
}

func (c *Context) Import(path string) error {
	return fmt.Errorf("import: not available after initial indexing")
}

func (c *Context) Stdout() io.Writer { return c.Out }
func (c *Context) Stdin() io.Reader  { return c.In }
