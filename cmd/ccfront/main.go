package main

import (
	"context"
	"io"
	"os"
	"runtime"

	"github.com/xplshn/ccfront/pkg/cli"
	"github.com/xplshn/ccfront/pkg/compiler"
	"github.com/xplshn/ccfront/pkg/config"
	"github.com/xplshn/ccfront/pkg/util"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

func main() {
	app := cli.NewApp("ccfront")
	app.Synopsis = "[options] <input.c> ..."
	app.Description = "Runs the C preprocessor over each input and prints the expanded source."

	var (
		outFile      string
		target       string
		verbose      string
		includePaths []string
		warnings     []string
		features     []string
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "-", "Place the output into <file>.", "file")
	fs.String(&target, "target", "t", "", "Set the target ABI. Empty means the host.", "target")
	fs.String(&verbose, "verbose", "v", "", "Enable debug logs for the given topics: pp, sema, ir, irvm.", "topics")
	fs.List(&includePaths, "include", "I", "Add a directory to the include path.", "path")
	fs.Prefix(&warnings, "W", "Enable a warning, or disable it with -Wno-<warning>. -Wall toggles every warning.", "warning")
	fs.Prefix(&features, "F", "Enable a feature, or disable it with -Fno-<feature>.", "feature")

	app.Action = func(inputs []string) (err error) {
		ctx := context.Background()
		ctx = tlog.ContextWithSpan(ctx, tlog.Root())

		if verbose != "" {
			tlog.SetVerbosity(verbose)
		}

		cfg := config.NewConfig()
		if err := cfg.ProcessFlags(flagNames("W", warnings, "F", features)); err != nil {
			return report(err)
		}
		if err := cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target); err != nil {
			return report(err)
		}
		cfg.IncludePaths = append(cfg.IncludePaths, includePaths...)

		if len(inputs) == 0 {
			return report(errors.New("no input files"))
		}

		var w io.Writer = os.Stdout
		if outFile != "-" {
			f, err := os.Create(outFile)
			if err != nil {
				return report(errors.Wrap(err, "create output"))
			}
			defer func() {
				if e := f.Close(); err == nil && e != nil {
					err = report(errors.Wrap(e, "close output"))
				}
			}()
			w = f
		}

		for _, in := range inputs {
			// Each input is its own unit: macros do not leak between files.
			toks, err := compiler.NewUnit(cfg, nil).ExpandFile(ctx, in)
			if err != nil {
				return report(err)
			}
			if err := compiler.WriteTokens(w, toks); err != nil {
				return report(errors.Wrap(err, "write %v", in))
			}
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func flagNames(wp string, warnings []string, fp string, features []string) []string {
	names := make([]string, 0, len(warnings)+len(features))
	for _, w := range warnings {
		names = append(names, wp+w)
	}
	for _, f := range features {
		names = append(names, fp+f)
	}
	return names
}

func report(err error) error {
	util.Print(os.Stderr, err)
	return err
}
