// Package cli implements the segctl command surface: four subcommands
// (check-deps, segment, validate, summarize) each owning its own
// pflag.FlagSet, dispatched from a single entrypoint so cmd/segctl's
// main.go stays a thin wrapper.
package cli

import (
	"fmt"
	"io"
)

// Exit code taxonomy shared by every subcommand.
const (
	ExitSuccess      = 0
	ExitRuntimeError = 1
	ExitInvalidArgs  = 2
)

// Run dispatches args[0] to the matching subcommand and returns the
// process exit code. An unknown or missing subcommand exits 2.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: segctl <check-deps|segment|validate|summarize> [flags]")
		return ExitInvalidArgs
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "check-deps":
		return runCheckDeps(rest, stdout, stderr)
	case "segment":
		return runSegment(rest, stdout, stderr)
	case "validate":
		return runValidate(rest, stdout, stderr)
	case "summarize":
		return runSummarize(rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "segctl: unknown subcommand %q\n", sub)
		return ExitInvalidArgs
	}
}
