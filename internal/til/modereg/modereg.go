// Package modereg is the mode registry: it maps a mode name to its
// capability struct, ast.ModeDef.
package modereg

import (
	"fmt"

	"github.com/saruga/til/internal/til/ast"
)

// Error is a ModeError: unknown mode name at parse-mode time.
type Error struct {
	Path      string
	Line, Col int
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d:%d: Mode ERROR: %s", e.Path, e.Line, e.Col, e.Message)
}

var registry = map[string]ast.ModeDef{
	"lib": {
		Name: "lib", AllowsBaseMut: false, AllowsBaseCalls: false, AllowsBaseAnything: false,
		NeedsMainProc: false, AllowsProcs: true, Importable: true,
		ImplicitImports: []string{"core"},
	},
	"pure": {
		Name: "pure", AllowsBaseMut: false, AllowsBaseCalls: false, AllowsBaseAnything: false,
		NeedsMainProc: false, AllowsProcs: false, Importable: true,
		ImplicitImports: []string{"core"},
	},
	"cli": {
		Name: "cli", AllowsBaseMut: true, AllowsBaseCalls: false, AllowsBaseAnything: false,
		NeedsMainProc: true, AllowsProcs: true, Importable: false,
		ImplicitImports: []string{"core"},
	},
	"script": {
		Name: "script", AllowsBaseMut: true, AllowsBaseCalls: true, AllowsBaseAnything: true,
		NeedsMainProc: false, AllowsProcs: true, Importable: false,
		ImplicitImports: []string{"core"},
	},
	"test": {
		Name: "test", AllowsBaseMut: false, AllowsBaseCalls: true, AllowsBaseAnything: false,
		NeedsMainProc: false, AllowsProcs: true, Importable: false,
		ImplicitImports: []string{"core", "test-harness"},
	},
}

// Lookup resolves a mode name to its capability struct. Unknown modes are
// a hard ModeError at parse-mode time.
func Lookup(path string, line, col int, name string) (ast.ModeDef, error) {
	m, ok := registry[name]
	if !ok {
		return ast.ModeDef{}, &Error{Path: path, Line: line, Col: col, Message: fmt.Sprintf("unknown mode %q", name)}
	}
	return m, nil
}

// Names returns the recognised mode names, for diagnostics and completion.
func Names() []string {
	return []string{"lib", "pure", "cli", "script", "test"}
}
