// Package corelib embeds the implicit-import runtime library every mode
// pulls in: exception struct types and the len/get helpers every program
// can call without an explicit import, served through an embed.FS so the
// core library ships inside the built binary.
package corelib

import "embed"

//go:embed src/core
var FS embed.FS

// CorePath is the dotted import path every mode implicitly imports.
const CorePath = "core"

// ModePath returns the dotted import path of a given mode's supplementary
// declarations (currently prologue-only comments, reserved for future
// per-mode helpers).
func ModePath(mode string) string {
	return "core.modes." + mode
}
