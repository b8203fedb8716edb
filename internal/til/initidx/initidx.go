// Package initidx is the declaration indexer: a single pass over a file's
// top-level statements that registers every func/proc/macro/struct/enum
// name before type-checking begins, so forward references within a file
// (and across imports) resolve without a second parse. Import path
// validation uses golang.org/x/mod/module's path rules.
package initidx

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"golang.org/x/mod/module"
	"golang.org/x/sync/errgroup"

	"github.com/saruga/til/internal/til/ast"
	"github.com/saruga/til/internal/til/lexer"
	"github.com/saruga/til/internal/til/parser"
	"github.com/saruga/til/internal/til/scope"
)

// Error is an InitError: a duplicate top-level declaration, or an import
// that cannot be resolved.
type Error struct {
	Path      string
	Line, Col int
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: Init ERROR: %s", e.Path, e.Line, e.Col, e.Message)
}

// File is one parsed and indexed source file.
type File struct {
	Path string
	Mode string
	Body *ast.Expr // KBody of top-level statements
}

// Index is the result of indexing one file plus everything it
// (transitively) imports: a merged global frame and the list of files
// that contributed to it, with the entry file last. The imports before it
// are listed in no defined order.
type Index struct {
	Global *scope.Frame
	Files  []*File
}

// Indexer resolves `import "a.b.c"` statements to files under Roots and
// loads them exactly once each, detecting cycles.
type Indexer struct {
	Roots []string // search roots, first match wins
	FS    fs.FS

	loaded map[string]*File // import path -> loaded file, import-cycle guard
	loading map[string]bool
}

// New builds an Indexer rooted at the given filesystem and search roots.
func New(fsys fs.FS, roots []string) *Indexer {
	return &Indexer{FS: fsys, Roots: roots, loaded: map[string]*File{}, loading: map[string]bool{}}
}

// IndexFile lexes, parses, and indexes path plus every file it
// transitively imports, returning the merged Index or the first
// InitError/ParseError/LexicalError encountered.
//
// Imports are loaded strictly one at a time, in source order: the loader
// uses an errgroup.Group with SetLimit(1) as a sequencing primitive
// rather than for concurrency (the interpreter is single-threaded) so
// that import-cycle detection sees a deterministic, reproducible load
// order.
func (ix *Indexer) IndexFile(path string) (*Index, error) {
	global := &scope.Frame{
		ArenaIndex: map[string]int{},
		Funcs:      map[string]*ast.FuncDef{},
		Enums:      map[string]*ast.EnumDef{},
		Structs:    map[string]*ast.StructDef{},
	}

	src, err := ix.readSource(path)
	if err != nil {
		// path may already be a concrete file path rather than a
		// dotted import path (the entry file, unlike its imports, is
		// not resolved through the root search).
		data, readErr := fs.ReadFile(ix.FS, path)
		if readErr != nil {
			return nil, err
		}
		src = string(data)
	}
	toks, lexErrs := lexer.Lex(path, src)
	if len(lexErrs) > 0 {
		return nil, lexErrs[0]
	}
	modeName, startPos, err := parser.ParseModePrologue(path, toks)
	if err != nil {
		return nil, err
	}
	body, err := parser.ParseProgram(path, toks, startPos)
	if err != nil {
		return nil, err
	}

	if err := ix.loadImports(body, global); err != nil {
		return nil, err
	}
	if err := indexBody(path, body, global); err != nil {
		return nil, err
	}

	entry := &File{Path: path, Mode: modeName, Body: body}
	files := append(ix.orderedFiles(), entry)
	ix.loaded[path] = entry
	return &Index{Global: global, Files: files}, nil
}

// loadImports resolves every top-level `import(...)` statement in body,
// one at a time in source order. An errgroup.Group with SetLimit(1) is
// used purely as a sequencing primitive here, not for concurrency (the
// interpreter is single-threaded): it gives the import-cycle detector a
// deterministic, reproducible load order.
func (ix *Indexer) loadImports(body *ast.Expr, global *scope.Frame) error {
	g := &errgroup.Group{}
	g.SetLimit(1)
	for _, stmt := range body.Params {
		imp, ok := importTarget(stmt)
		if !ok {
			continue
		}
		g.Go(func() error { return ix.loadImport(imp, global) })
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// orderedFiles returns every import loaded so far (not including the
// entry file itself, which IndexFile appends separately).
func (ix *Indexer) orderedFiles() []*File {
	out := make([]*File, 0, len(ix.loaded))
	for _, f := range ix.loaded {
		out = append(out, f)
	}
	return out
}

// importTarget recognises a top-level `import("a.b.c")` call expression
// and returns its dotted path.
func importTarget(e *ast.Expr) (string, bool) {
	if e.Kind != ast.KFCall || e.Name != "import" || len(e.Params) != 1 {
		return "", false
	}
	arg := e.Params[0]
	if arg.Kind != ast.KLiteralStr {
		return "", false
	}
	return arg.Lit.Str, true
}

// readSource resolves a dotted import path ("a.b.c") to a file under one
// of the Indexer's roots, validating the path shape with
// golang.org/x/mod/module before touching the filesystem.
func (ix *Indexer) readSource(importPath string) (string, error) {
	if err := module.CheckImportPath(toModulePath(importPath)); err != nil {
		return "", &Error{Path: importPath, Message: fmt.Sprintf("invalid import path %q: %v", importPath, err)}
	}
	rel := filepath.Join(strings.Split(importPath, ".")...) + ".til"
	for _, root := range ix.Roots {
		full := filepath.Join(root, rel)
		data, err := fs.ReadFile(ix.FS, full)
		if err == nil {
			return string(data), nil
		}
	}
	return "", &Error{Path: importPath, Message: fmt.Sprintf("cannot resolve import %q under any root", importPath)}
}

// toModulePath adapts a dotted til import path to the slash-separated
// shape golang.org/x/mod/module expects, reusing its validator purely
// for its syntactic identifier-segment checks.
func toModulePath(dotted string) string {
	return "til.internal/" + strings.ReplaceAll(dotted, ".", "/")
}

// IndexParsedBody registers an already-parsed top-level body's
// declarations into global and recursively loads/indexes any imports it
// contains, reusing ix's import-cycle guard. Unlike IndexFile, the
// top-level body itself is supplied already lexed and parsed (the
// interp package's Eval already did that work for diagnostics
// purposes), so only its own declarations and its imports are indexed
// here.
func IndexParsedBody(ix *Indexer, path string, body *ast.Expr, global *scope.Frame) error {
	if err := ix.loadImports(body, global); err != nil {
		return err
	}
	return indexBody(path, body, global)
}

// loadImport resolves, lexes, parses, and indexes one import path into
// global. A path already in loaded is skipped; one still in loading is
// reported as an import cycle.
func (ix *Indexer) loadImport(importPath string, global *scope.Frame) error {
	if _, ok := ix.loaded[importPath]; ok {
		return nil
	}
	if ix.loading[importPath] {
		return &Error{Path: importPath, Message: fmt.Sprintf("import cycle detected while loading %q", importPath)}
	}
	ix.loading[importPath] = true
	defer delete(ix.loading, importPath)

	src, err := ix.readSource(importPath)
	if err != nil {
		return err
	}
	toks, lexErrs := lexer.Lex(importPath, src)
	if len(lexErrs) > 0 {
		return lexErrs[0]
	}
	_, startPos, err := parser.ParseModePrologue(importPath, toks)
	if err != nil {
		return err
	}
	body, err := parser.ParseProgram(importPath, toks, startPos)
	if err != nil {
		return err
	}
	if err := ix.loadImports(body, global); err != nil {
		return err
	}
	if err := indexBody(importPath, body, global); err != nil {
		return err
	}
	ix.loaded[importPath] = &File{Path: importPath, Body: body}
	return nil
}

// indexBody registers every top-level func/proc/macro/struct/enum
// declaration from body into global, reporting a duplicate-declaration
// InitError the first time a name collides.
func indexBody(path string, body *ast.Expr, global *scope.Frame) error {
	for _, stmt := range body.Params {
		if stmt.Kind != ast.KDeclaration || stmt.Decl == nil {
			continue
		}
		name := stmt.Decl.Name
		var rhs *ast.Expr
		if len(stmt.Params) == 1 {
			rhs = stmt.Params[0]
		}
		switch {
		case rhs != nil && rhs.Kind == ast.KFuncDef:
			if _, dup := global.Funcs[name]; dup {
				return &Error{Path: path, Line: stmt.Line, Col: stmt.Col, Message: fmt.Sprintf("'%s' is already declared", name)}
			}
			global.Funcs[name] = rhs.Func
		case rhs != nil && rhs.Kind == ast.KStructDef:
			if _, dup := global.Structs[name]; dup {
				return &Error{Path: path, Line: stmt.Line, Col: stmt.Col, Message: fmt.Sprintf("'%s' is already declared", name)}
			}
			rhs.Struct.Name = name
			global.Structs[name] = rhs.Struct
		case rhs != nil && rhs.Kind == ast.KEnumDef:
			if _, dup := global.Enums[name]; dup {
				return &Error{Path: path, Line: stmt.Line, Col: stmt.Col, Message: fmt.Sprintf("'%s' is already declared", name)}
			}
			rhs.Enum.Name = name
			global.Enums[name] = rhs.Enum
		default:
			if _, dup := global.ArenaIndex[name]; dup {
				return &Error{Path: path, Line: stmt.Line, Col: stmt.Col, Message: fmt.Sprintf("'%s' is already declared", name)}
			}
			global.ArenaIndex[name] = -1 // resolved to a real offset at eval time
		}
	}
	return nil
}
