// Package ast defines the til expression tree, type, and declaration shapes
// produced by the parser and consumed by every later phase: a single
// recursive node type carrying a kind discriminant plus a grab-bag of
// typed fields used only by some kinds.
package ast

import "fmt"

// NodeKind is the closed set of expression-tree node kinds.
type NodeKind int

const (
	KLiteralNumber NodeKind = iota
	KLiteralStr
	KLiteralBool
	KIdentifier // Name holds the full dotted path ("x", "x.y"); Params is unused
	KFCall      // Name holds the full dotted callee path; Params are the argument exprs; Throws records whether this call site is followed by a catch
	KDeclaration
	KAssignment // Name holds the target path ("x", "x.y", "x.y.z")
	KFuncDef
	KEnumDef
	KStructDef
	KIf
	KWhile
	KSwitch
	KReturn
	KThrow
	KCatch
	KBreak
	KContinue
	KBody
	KPattern   // Params[0] = payload binding identifier (optional); Name = variant name, TypeName = qualifying type if present
	KDefaultCase
	KRange // Params[0], Params[1] = lo, hi
	KNamedArg
	KForIn // Name = loop var, TypeName = declared type, Params[0] = collection, Params[1] = body
)

// Literal is the union of literal payload kinds (used with KLiteralNumber /
// KLiteralStr / KLiteralBool).
type Literal struct {
	Num  string
	Str  string
	Bool bool
}

// Expr is the single recursive expression-tree node type.
type Expr struct {
	Kind   NodeKind
	Params []*Expr
	Line   int
	Col    int

	// KLiteral*
	Lit Literal

	// KIdentifier / KAssignment / KPattern / KForIn / KNamedArg
	Name     string
	TypeName string // qualifying type, when present (Type.Variant patterns, ForIn element type)

	// KFCall
	Throws bool // true if this call's result must be followed by catch or declared rethrow

	// KDeclaration
	Decl *Declaration

	// KFuncDef
	Func *FuncDef

	// KEnumDef
	Enum *EnumDef

	// KStructDef
	Struct *StructDef
}

// NewExpr builds an Expr with the given kind, params and position.
func NewExpr(kind NodeKind, params []*Expr, line, col int) *Expr {
	return &Expr{Kind: kind, Params: params, Line: line, Col: col}
}

// Walk traverses the tree depth-first, calling in on entry (skipping the
// subtree if in returns false) and out on exit.
func (e *Expr) Walk(in func(*Expr) bool, out func(*Expr)) {
	if e == nil {
		return
	}
	if in != nil && !in(e) {
		return
	}
	for _, c := range e.Params {
		c.Walk(in, out)
	}
	if out != nil {
		out(e)
	}
}

// ValueKind discriminates the ValueType union.
type ValueKind int

const (
	VKCustom ValueKind = iota
	VKType
	VKFunction
	VKMulti
)

// ValueType is a tagged variant:
// TCustom(name) for primitives and user types, TType(def) for type-of-type,
// TFunction(def) for first-class function/proc/macro values, and
// TMulti(inner) for variadic tails.
type ValueType struct {
	Kind ValueKind

	Custom string // VKCustom: primitive ("I64","U8","Str","Bool") or user type name; also used as the INFER placeholder "auto"

	TypeOfStruct *StructDef // VKType
	TypeOfEnum   *EnumDef   // VKType

	Func *FuncDef // VKFunction

	Inner *ValueType // VKMulti
}

// InferPlaceholder is the TCustom(INFER) sentinel name used when a
// declaration's type must be inferred from its initializer.
const InferPlaceholder = "auto"

func Custom(name string) ValueType { return ValueType{Kind: VKCustom, Custom: name} }
func Infer() ValueType             { return Custom(InferPlaceholder) }
func TypeOfStruct(s *StructDef) ValueType {
	return ValueType{Kind: VKType, TypeOfStruct: s}
}
func TypeOfEnum(e *EnumDef) ValueType { return ValueType{Kind: VKType, TypeOfEnum: e} }
func FunctionType(f *FuncDef) ValueType {
	return ValueType{Kind: VKFunction, Func: f}
}
func Multi(inner ValueType) ValueType {
	i := inner
	return ValueType{Kind: VKMulti, Inner: &i}
}

// IsInfer reports whether this type is the inference placeholder.
func (v ValueType) IsInfer() bool { return v.Kind == VKCustom && v.Custom == InferPlaceholder }

func (v ValueType) String() string {
	switch v.Kind {
	case VKCustom:
		return v.Custom
	case VKType:
		if v.TypeOfStruct != nil {
			return "Type<" + v.TypeOfStruct.Name + ">"
		}
		if v.TypeOfEnum != nil {
			return "Type<" + v.TypeOfEnum.Name + ">"
		}
		return "Type<?>"
	case VKFunction:
		return "Func<...>"
	case VKMulti:
		return v.Inner.String() + ".."
	}
	return fmt.Sprintf("ValueType(%d)", int(v.Kind))
}

// Equal reports nominal equality of two value types, used by
// assignability (exact match required except the I64->U8 narrowing rule
// which callers apply separately).
func (v ValueType) Equal(o ValueType) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case VKCustom:
		return v.Custom == o.Custom
	case VKType:
		return v.TypeOfStruct == o.TypeOfStruct && v.TypeOfEnum == o.TypeOfEnum
	case VKFunction:
		return v.Func == o.Func
	case VKMulti:
		return v.Inner.Equal(*o.Inner)
	}
	return false
}

// Declaration describes one function parameter or `name : Type = expr`
// statement. IsMut, IsCopy, IsOwn are mutually exclusive caller
// contracts.
type Declaration struct {
	Name    string
	Type    ValueType
	IsMut   bool
	IsCopy  bool
	IsOwn   bool
	Default *Expr // optional default-value expression
}

// FuncKind is the closed set of callable definition kinds.
type FuncKind int

const (
	FKFunc FuncKind = iota
	FKProc
	FKMacro
	FKFuncExt
	FKProcExt
)

func (k FuncKind) String() string {
	switch k {
	case FKFunc:
		return "func"
	case FKProc:
		return "proc"
	case FKMacro:
		return "macro"
	case FKFuncExt:
		return "ext_func"
	case FKProcExt:
		return "ext_proc"
	}
	return "func?"
}

// FuncDef is a function/proc/macro/ext_* definition.
type FuncDef struct {
	Kind       FuncKind
	Args       []Declaration
	Returns    []ValueType
	Throws     []ValueType
	Body       []*Expr
	SourcePath string
}

// IsVariadic reports whether the last argument is a TMulti tail.
func (f *FuncDef) IsVariadic() bool {
	if len(f.Args) == 0 {
		return false
	}
	return f.Args[len(f.Args)-1].Type.Kind == VKMulti
}

// StructDef is an ordered set of members plus their default-value
// expressions. A member with IsMut==false is a namespaced constant
// (possibly a function); IsMut==true is an instance field.
type StructDef struct {
	Name     string
	Members  []Declaration
	Defaults map[string]*Expr
}

// Fields returns the mutable instance fields in declaration order.
func (s *StructDef) Fields() []Declaration {
	var out []Declaration
	for _, m := range s.Members {
		if m.IsMut {
			out = append(out, m)
		}
	}
	return out
}

// Field looks up a mutable field by name.
func (s *StructDef) Field(name string) (Declaration, bool) {
	for _, m := range s.Members {
		if m.IsMut && m.Name == name {
			return m, true
		}
	}
	return Declaration{}, false
}

// Variant is one enum constructor: a name plus an optional payload type.
// Variant position is the runtime tag.
type Variant struct {
	Name    string
	Payload *ValueType
}

// EnumDef is an ordered list of variants.
type EnumDef struct {
	Name     string
	Variants []Variant
}

// VariantIndex returns the tag (position) of a variant, or -1.
func (e *EnumDef) VariantIndex(name string) int {
	for i, v := range e.Variants {
		if v.Name == name {
			return i
		}
	}
	return -1
}

// Variant looks up a variant definition by name.
func (e *EnumDef) Variant(name string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// ModeDef is a file-level mode's capability set.
type ModeDef struct {
	Name                string
	AllowsBaseMut       bool
	AllowsBaseCalls     bool
	AllowsBaseAnything  bool
	NeedsMainProc       bool
	AllowsProcs         bool
	Importable          bool
	ImplicitImports     []string
}
