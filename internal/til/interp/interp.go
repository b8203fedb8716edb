// Package interp is the Interpreter facade wiring every pipeline phase
// together: lex, parse-mode, parse, index/import, type-check, desugar,
// precompute, evaluate. One long-lived Interpreter value owns a
// singleton arena behind a sync.Once-guarded constructor, and exposes
// Eval/EvalPath/REPL entry points.
package interp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/phuslu/log"

	"github.com/saruga/til/internal/til/arena"
	"github.com/saruga/til/internal/til/ast"
	"github.com/saruga/til/internal/til/builtins"
	"github.com/saruga/til/internal/til/corelib"
	"github.com/saruga/til/internal/til/desugar"
	"github.com/saruga/til/internal/til/eval"
	"github.com/saruga/til/internal/til/initidx"
	"github.com/saruga/til/internal/til/lexer"
	"github.com/saruga/til/internal/til/modereg"
	"github.com/saruga/til/internal/til/parser"
	"github.com/saruga/til/internal/til/precomp"
	"github.com/saruga/til/internal/til/scope"
	"github.com/saruga/til/internal/til/types"
)

// Options configures one Interpreter.
type Options struct {
	// ImportRoots are the search roots for `import "a.b.c"` resolution,
	// first match wins.
	ImportRoots []string
	// Filesystem is consulted for user imports; when nil, os.DirFS(".")
	// is used.
	Filesystem fs.FS

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Args are the program arguments passed to a NeedsMainProc mode's
	// (cli's) implicit call to main(args: Str..), one Str value per
	// entry. Ignored by modes that don't require a main proc.
	Args []string

	// Verbose enables phase-boundary trace events (lex, then indexing of
	// declarations and imports), sent to Logger.
	Verbose bool

	// Logger receives phase-boundary trace events when Verbose is set. A
	// nil Logger falls back to log.DefaultLogger.
	Logger *log.Logger
}

func (o *Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return &log.DefaultLogger
}

func (o *Options) stdout() io.Writer {
	if o.Stdout != nil {
		return o.Stdout
	}
	return os.Stdout
}

func (o *Options) stderr() io.Writer {
	if o.Stderr != nil {
		return o.Stderr
	}
	return os.Stderr
}

func (o *Options) stdin() io.Reader {
	if o.Stdin != nil {
		return o.Stdin
	}
	return os.Stdin
}

// Interpreter runs til programs. One Interpreter owns one singleton
// arena: every Eval/EvalPath call against the same Interpreter shares
// state, so repeated Eval calls accumulate declarations in the same
// frame.
type Interpreter struct {
	opt Options

	once     sync.Once
	heap     *arena.Arena
	stack    *scope.Stack
	global   *scope.Frame
	builtins builtins.Table
}

// New builds an Interpreter. The arena and scope stack are created lazily
// on first use; New itself does no allocation.
func New(opt Options) *Interpreter {
	if opt.Filesystem == nil {
		opt.Filesystem = os.DirFS(".")
	}
	return &Interpreter{opt: opt}
}

func (i *Interpreter) init() {
	i.once.Do(func() {
		i.heap = arena.New()
		i.stack = scope.NewStack()
		i.global = i.stack.Global()
		i.builtins = builtins.New()

		if err := i.loadCorelib(); err != nil {
			// The embedded core library is part of the binary, not user
			// input: a failure here is a build-time defect, not a
			// runtime error a caller can act on.
			panic(fmt.Sprintf("interp: embedded core library failed to load: %v", err))
		}
	})
}

// loadCorelib indexes the embedded core.til (the implicit imports every
// mode starts with: IndexOutOfBoundsError, DivisionByZeroError, len, get)
// into the global frame before any user Eval runs.
func (i *Interpreter) loadCorelib() error {
	ix := initidx.New(corelib.FS, nil)
	idx, err := ix.IndexFile("src/core/core.til")
	if err != nil {
		return err
	}
	for name, off := range idx.Global.ArenaIndex {
		i.global.ArenaIndex[name] = off
	}
	for name, fn := range idx.Global.Funcs {
		i.global.Funcs[name] = fn
	}
	for name, sd := range idx.Global.Structs {
		i.global.Structs[name] = sd
	}
	for name, ed := range idx.Global.Enums {
		i.global.Enums[name] = ed
	}
	return nil
}

// Panic is a recovered runtime failure carrying the original value plus
// a captured Go stack, surfaced as the EvalError path's terminal case.
type Panic struct {
	Value interface{}
	Stack []byte
}

func (p Panic) Error() string { return fmt.Sprintf("panic: %v", p.Value) }

// Eval runs one source fragment, which names its own mode in its
// prologue, under the given file path, returning the program's final result value
// collapsed to a display string since til has no reflect-based host
// value to hand back.
func (i *Interpreter) Eval(path, src string) (result string, err error) {
	i.init()
	defer func() {
		if r := recover(); r != nil {
			err = Panic{Value: r, Stack: debug.Stack()}
		}
	}()

	logger := i.opt.logger()
	if i.opt.Verbose {
		logger.Info().Str("path", path).Msg("lex")
	}

	toks, lexErrs := lexer.Lex(path, src)
	if len(lexErrs) > 0 {
		return "", joinErrs(lexErrs)
	}

	modeName, startPos, err := parser.ParseModePrologue(path, toks)
	if err != nil {
		return "", err
	}
	mode, err := modereg.Lookup(path, 1, 1, modeName)
	if err != nil {
		return "", err
	}

	body, err := parser.ParseProgram(path, toks, startPos)
	if err != nil {
		return "", err
	}

	if i.opt.Verbose {
		logger.Info().Str("path", path).Str("mode", modeName).Msg("indexing declarations and imports")
	}
	ix := initidx.New(i.opt.Filesystem, i.opt.ImportRoots)
	if err := indexBodyInto(ix, path, body, i.global); err != nil {
		return "", err
	}

	checker := types.NewChecker(path, i.global, mode)
	if err := checker.Check(body); err != nil {
		return "", joinDiags(checker.Diagnostics())
	}

	if mode.NeedsMainProc {
		body.Params = append(body.Params, synthesizeMainCall(i.opt.Args))
	}

	d := desugar.New(i.global)
	lowered, err := d.Body(body.Params)
	if err != nil {
		return "", err
	}

	p := precomp.New(path, i.global)
	p.Body(lowered, map[string]string{})

	ctx := eval.NewContext(path, i.heap, i.stack, i.global, i.builtins, i.opt.stdout(), i.opt.stdin())
	r, err := ctx.Body(lowered)
	if err != nil {
		return "", err
	}
	if r.IsThrow {
		return "", fmt.Errorf("%s: uncaught throw of type '%s'", path, r.ThrownType)
	}
	return describeValue(ctx, r.Value), nil
}

// synthesizeMainCall builds the implicit call to main(args: Str..) that
// every NeedsMainProc mode (cli) makes once its top-level declarations
// have run, one Str literal argument per program argument.
func synthesizeMainCall(args []string) *ast.Expr {
	params := make([]*ast.Expr, len(args))
	for i, a := range args {
		lit := ast.NewExpr(ast.KLiteralStr, nil, 0, 0)
		lit.Lit.Str = a
		params[i] = lit
	}
	call := ast.NewExpr(ast.KFCall, params, 0, 0)
	call.Name = "main"
	return call
}

// EvalPath reads the file at path and evaluates it.
func (i *Interpreter) EvalPath(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return i.Eval(path, string(data))
}

// REPL runs an interactive read-eval-print loop against opt.Stdin,
// printing each fragment's result (or error) to opt.Stdout.
func (i *Interpreter) REPL() error {
	i.init()
	in := bufio.NewScanner(i.opt.stdin())
	out := i.opt.stdout()
	fmt.Fprint(out, "til> ")
	for in.Scan() {
		line := in.Text()
		if strings.TrimSpace(line) == "" {
			fmt.Fprint(out, "til> ")
			continue
		}
		res, err := i.Eval("<repl>", line)
		if err != nil {
			fmt.Fprintln(i.opt.stderr(), err)
		} else if res != "" {
			fmt.Fprintln(out, res)
		}
		fmt.Fprint(out, "til> ")
	}
	return in.Err()
}

func describeValue(ctx *eval.Context, v eval.Value) string {
	switch v.TypeName {
	case "Void", "":
		return ""
	case "I64":
		n, _ := ctx.ReadI64(v.Offset)
		return fmt.Sprintf("%d", n)
	case "U8":
		b, _ := ctx.ReadU8(v.Offset)
		return fmt.Sprintf("%d", b)
	case "Bool":
		b, _ := ctx.ReadBoolAt(v.Offset)
		return fmt.Sprintf("%t", b)
	case "Str":
		s, _ := ctx.ReadStrAt(v.Offset)
		return s
	default:
		return fmt.Sprintf("<%s@%d>", v.TypeName, v.Offset)
	}
}

func joinErrs[E error](errs []E) error {
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}

func joinDiags(diags []*types.Diagnostic) error {
	var joined []error
	for _, d := range diags {
		if d.Severity == types.SeverityError {
			joined = append(joined, d)
		}
	}
	return errors.Join(joined...)
}

// indexBodyInto registers an already-parsed top-level body's
// declarations into global and resolves any imports it contains,
// reusing initidx's import/indexing machinery for a single in-memory
// body rather than re-reading it from disk.
func indexBodyInto(ix *initidx.Indexer, path string, body *ast.Expr, global *scope.Frame) error {
	return initidx.IndexParsedBody(ix, path, body, global)
}
