package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/deps"
	"github.com/spf13/pflag"
)

func runCheckDeps(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("check-deps", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	jsonOut := fs.Bool("json", false, "print the report as JSON")
	verbose := fs.Bool("verbose", false, "include install hints for missing tools")
	strict := fs.Bool("strict", false, "treat a missing silencedetect filter as a hard failure")
	detectorBin := fs.String("detector-bin", "ffmpeg", "silence-detector binary")
	probeBin := fs.String("probe-bin", "ffprobe", "duration-probe binary")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "check-deps: %v\n", err)
		return ExitInvalidArgs
	}

	rep := deps.Check(context.Background(), *detectorBin, *probeBin)
	if *strict {
		if s, ok := rep.Deps["silencedetect"]; ok && !s.OK {
			rep.OK = false
			rep.ErrorCode = "deps_missing"
		}
	}

	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rep)
	} else {
		printCheckDepsTable(stdout, rep, *verbose)
	}

	if !rep.OK {
		return ExitInvalidArgs
	}
	return ExitSuccess
}

func printCheckDepsTable(w io.Writer, rep deps.Report, verbose bool) {
	names := make([]string, 0, len(rep.Deps))
	for name := range rep.Deps {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "platform: %s/%s (%s)\n", rep.Platform.System, rep.Platform.Arch, rep.Platform.Runtime)
	for _, name := range names {
		tool := rep.Deps[name]
		status := "ok"
		if !tool.OK {
			status = "missing"
		}
		fmt.Fprintf(w, "%-14s %-8s %s\n", name, status, tool.Version)
		if !tool.OK && tool.Detail != "" {
			fmt.Fprintf(w, "  %s\n", tool.Detail)
		}
	}
	if !rep.OK && verbose {
		fmt.Fprintln(w, "hint:", deps.InstallHint(rep.Platform.System))
	}
	if rep.OK {
		fmt.Fprintln(w, "all dependencies present")
	} else {
		fmt.Fprintln(w, "missing:", rep.Missing)
	}
}
