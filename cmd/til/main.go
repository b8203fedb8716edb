// Command til is the til language's command-line front end: interpret a
// file, or drop into a REPL, built on urfave/cli/v2's App/Command/Flag
// model with github.com/phuslu/log wired in for --verbose phase tracing.
package main

import (
	"fmt"
	"os"

	"github.com/phuslu/log"
	"github.com/urfave/cli/v2"

	"github.com/saruga/til/internal/til/interp"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "til",
		Usage: "run or explore til programs",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "import-root",
				Usage: "search root for `import(\"a.b.c\")` resolution; may be repeated",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "trace pipeline phase boundaries (lex, indexing)",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			replCommand(),
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() > 0 {
				return runAction(c)
			}
			return replAction(c)
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "interpret",
		Usage:     "interpret a .til file",
		ArgsUsage: "<path>",
		Action:    runAction,
	}
}

func replCommand() *cli.Command {
	return &cli.Command{
		Name:   "repl",
		Usage:  "start an interactive read-eval-print loop",
		Action: replAction,
	}
}

func runAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("til interpret: missing <path>", 2)
	}
	i := newInterpreter(c, c.Args().Tail())
	out, err := i.EvalPath(path)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Println(out)
	}
	return nil
}

func replAction(c *cli.Context) error {
	i := newInterpreter(c, nil)
	return i.REPL()
}

func newInterpreter(c *cli.Context, args []string) *interp.Interpreter {
	roots := append([]string{}, c.StringSlice("import-root")...)
	roots = append(roots, ".")

	logger := log.DefaultLogger
	logger.Level = log.InfoLevel
	if !c.Bool("verbose") {
		logger.Level = log.WarnLevel
	}

	return interp.New(interp.Options{
		ImportRoots: roots,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Verbose:     c.Bool("verbose"),
		Logger:      &logger,
		Args:        args,
	})
}
