package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/validate"
	"github.com/spf13/pflag"
)

func runValidate(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	in := fs.String("in", "", "segments.jsonl file, a job output directory, or a batch root")
	strict := fs.Bool("strict", false, "treat adjacency overlap and report mismatches as errors")
	maxErrors := fs.Int("max-errors", 0, "stop scanning a corpus after this many failed files (0 = unlimited)")
	_ = fs.String("pattern", "segments.jsonl", "accepted but not applied: a batch-root scan always matches segments.jsonl")
	jsonOut := fs.Bool("json", false, "print the corpus result as JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "validate: %v\n", err)
		return ExitInvalidArgs
	}
	if *in == "" {
		fmt.Fprintln(stderr, "validate: --in is required")
		return ExitInvalidArgs
	}

	targets, err := findSegmentsFiles(*in)
	if err != nil {
		fmt.Fprintf(stderr, "validate: %v\n", err)
		return ExitInvalidArgs
	}
	if len(targets) == 0 {
		fmt.Fprintln(stderr, "validate: no segments.jsonl files found under --in")
		return ExitInvalidArgs
	}

	var results []validate.Result
	for _, segmentsPath := range targets {
		reportPath := filepath.Join(filepath.Dir(segmentsPath), "seg_report.json")
		if _, err := os.Stat(reportPath); err != nil {
			reportPath = ""
		}
		results = append(results, validate.File(segmentsPath, reportPath, *strict))
		if *maxErrors > 0 {
			failed := 0
			for _, r := range results {
				if !r.OK {
					failed++
				}
			}
			if failed >= *maxErrors {
				break
			}
		}
	}

	corpus := validate.Rollup(results)
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(corpus)
	} else {
		fmt.Fprintf(stdout, "checked %d file(s), %d failed, %d warning(s), %d error(s)\n",
			corpus.CheckedFiles, corpus.FailedFiles, corpus.Warnings, corpus.Errors)
		for i, r := range results {
			if !r.OK {
				fmt.Fprintf(stdout, "%s: FAIL\n", targets[i])
				for _, e := range r.Errors {
					fmt.Fprintf(stdout, "  error: %s\n", e)
				}
			}
		}
	}

	if !corpus.OK {
		return ExitInvalidArgs
	}
	return ExitSuccess
}

// findSegmentsFiles resolves --in to one or more segments.jsonl paths:
// the file itself, report.JobOutputDir's sibling within a job output
// directory, or every segments.jsonl under a batch root.
func findSegmentsFiles(in string) ([]string, error) {
	abs, err := filepath.Abs(in)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("input path does not exist: %s", abs)
	}
	if !info.IsDir() {
		return []string{abs}, nil
	}
	if _, err := os.Stat(filepath.Join(abs, "segments.jsonl")); err == nil {
		return []string{filepath.Join(abs, "segments.jsonl")}, nil
	}

	var found []string
	err = filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Base(path) == "segments.jsonl" {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}
