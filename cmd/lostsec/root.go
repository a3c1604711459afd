package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lostsec/lostsec/pkg/defaults"
	"github.com/lostsec/lostsec/pkg/output/exitcode"
	"github.com/lostsec/lostsec/pkg/scanner"
	"github.com/lostsec/lostsec/pkg/ui"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configFile string
	verbose    bool
	logLevel   string
	silent     bool
	noColor    bool
	logJSON    bool
}

// exitError carries an exit code through cobra.
type exitError struct {
	code exitcode.Code
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	gf := &globalFlags{}

	root := &cobra.Command{
		Use:           "lostsec",
		Short:         "Probe-and-confirm vulnerability scanner (for authorized testing only)",
		Version:       defaults.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.SetSilent(gf.silent)
			ui.SetNoColor(gf.noColor || !ui.IsTerminal(stderr))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&gf.configFile, "config", "", "YAML config file (flags and LOSTSEC_* env override it)")
	pf.BoolVarP(&gf.verbose, "verbose", "v", false, "debug logging (same as --log-level debug)")
	pf.StringVar(&gf.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	pf.BoolVar(&gf.silent, "silent", false, "print only findings and the summary")
	pf.BoolVar(&gf.noColor, "no-color", false, "disable colored output")
	pf.BoolVar(&gf.logJSON, "log-json", false, "log as JSON")

	for _, name := range []string{"lfi", "sqli", "xss", "redirect"} {
		root.AddCommand(newVariantCmd(name, gf, stdout, stderr))
	}
	root.AddCommand(newVariantCmd("", gf, stdout, stderr))
	root.AddCommand(newVariantsCmd(stdout))
	return root
}

func newVariantsCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List scan variants",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range scanner.DefaultRegistry().Names() {
				fmt.Fprintln(stdout, name)
			}
		},
	}
}

func newLogger(w io.Writer, gf *globalFlags) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(gf.logLevel)); err != nil {
		level = slog.LevelWarn
	}
	if gf.verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if gf.logJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Execute runs the CLI and returns the process exit code.
func Execute(args []string) int {
	return execute(args, os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return int(exitcode.Success)
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return int(ee.code)
	}
	ui.PrintError(stderr, err.Error())
	return int(exitcode.Configuration)
}
