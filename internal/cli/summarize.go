package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/spf13/pflag"
)

type fileStats struct {
	Count          int            `json:"count"`
	SpeechTotalSec float64        `json:"speech_total_sec"`
	AvgDuration    float64        `json:"avg_duration"`
	MedianDuration float64        `json:"median_duration"`
	MinDuration    float64        `json:"min_duration"`
	MaxDuration    float64        `json:"max_duration"`
	FlagsCount     map[string]int `json:"flags_count"`
	StrategyInfo   map[string]any `json:"strategy_info"`
}

type fileSummary struct {
	Path  string     `json:"path"`
	Stats *fileStats `json:"stats,omitempty"`
	Error string     `json:"error,omitempty"`
}

type summary struct {
	OK           bool          `json:"ok"`
	ErrorCode    string        `json:"error_code,omitempty"`
	CheckedFiles int           `json:"checked_files"`
	Items        []fileSummary `json:"items"`
}

func runSummarize(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("summarize", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	in := fs.String("in", "", "segments.jsonl file, a job output directory, or a batch root")
	jsonOut := fs.Bool("json", false, "print the summary as JSON")
	topN := fs.Int("top-n", 5, "number of most common flags to report per file")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "summarize: %v\n", err)
		return ExitInvalidArgs
	}
	if *in == "" {
		fmt.Fprintln(stderr, "summarize: --in is required")
		return ExitInvalidArgs
	}

	targets, err := findSegmentsFiles(*in)
	if err != nil {
		fmt.Fprintf(stderr, "summarize: %v\n", err)
		return ExitRuntimeError
	}
	if len(targets) == 0 {
		out := summary{OK: false, ErrorCode: "no_files", Items: []fileSummary{}}
		printSummary(stdout, out, *jsonOut)
		return ExitRuntimeError
	}

	var items []fileSummary
	for _, path := range targets {
		stats, err := summarizeFile(path, *topN)
		if err != nil {
			items = append(items, fileSummary{Path: path, Error: err.Error()})
			continue
		}
		items = append(items, fileSummary{Path: path, Stats: stats})
	}

	out := summary{OK: true, CheckedFiles: len(targets), Items: items}
	printSummary(stdout, out, *jsonOut)
	return ExitSuccess
}

func summarizeFile(path string, topN int) (*fileStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var segs []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		var seg map[string]any
		if err := json.Unmarshal([]byte(text), &seg); err != nil {
			continue
		}
		segs = append(segs, seg)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(segs) == 0 {
		return &fileStats{FlagsCount: map[string]int{}, StrategyInfo: map[string]any{}}, nil
	}

	durations := make([]float64, len(segs))
	for i, seg := range segs {
		if d, ok := seg["duration_sec"].(float64); ok {
			durations[i] = d
		}
	}

	flagsCounter := map[string]int{}
	for _, seg := range segs {
		if flags, ok := seg["flags"].([]any); ok {
			for _, fl := range flags {
				if s, ok := fl.(string); ok {
					flagsCounter[s]++
				}
			}
		}
	}

	strategyInfo := map[string]any{}
	first := segs[0]
	if s, ok := first["strategy"].(string); ok {
		strategyInfo["strategy"] = s
	} else {
		strategyInfo["strategy"] = "unknown"
	}
	if source, ok := first["source"].(map[string]any); ok {
		if autoChosen, ok := source["auto_chosen"].(bool); ok {
			strategyInfo["auto_chosen"] = autoChosen
		}
	}
	reportPath := filepath.Join(filepath.Dir(path), "seg_report.json")
	if data, err := os.ReadFile(reportPath); err == nil {
		var rep map[string]any
		if json.Unmarshal(data, &rep) == nil {
			if autoStrategy, ok := rep["auto_strategy"]; ok {
				strategyInfo["auto_strategy"] = autoStrategy
			}
		}
	}

	sorted := append([]float64{}, durations...)
	sort.Float64s(sorted)

	return &fileStats{
		Count:          len(segs),
		SpeechTotalSec: round3(sum(durations)),
		AvgDuration:    round3(stat.Mean(durations, nil)),
		MedianDuration: round3(medianSorted(sorted)),
		MinDuration:    round3(sorted[0]),
		MaxDuration:    round3(sorted[len(sorted)-1]),
		FlagsCount:     topNFlags(flagsCounter, topN),
		StrategyInfo:   strategyInfo,
	}, nil
}

func printSummary(w io.Writer, out summary, jsonOut bool) {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}
	fmt.Fprintf(w, "checked %d file(s)\n", out.CheckedFiles)
	for _, item := range out.Items {
		if item.Error != "" {
			fmt.Fprintf(w, "%s: error: %s\n", item.Path, item.Error)
			continue
		}
		s := item.Stats
		fmt.Fprintf(w, "%s: count=%d speech_total_sec=%.3f avg=%.3f median=%.3f min=%.3f max=%.3f strategy=%v\n",
			item.Path, s.Count, s.SpeechTotalSec, s.AvgDuration, s.MedianDuration, s.MinDuration, s.MaxDuration, s.StrategyInfo["strategy"])
	}
}

func sum(v []float64) float64 {
	var total float64
	for _, x := range v {
		total += x
	}
	return total
}

func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round3(v float64) float64 {
	return float64(int64(v*1000+0.5)) / 1000
}

func topNFlags(counts map[string]int, n int) map[string]int {
	type kv struct {
		k string
		v int
	}
	pairs := make([]kv, 0, len(counts))
	for k, v := range counts {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].v != pairs[j].v {
			return pairs[i].v > pairs[j].v
		}
		return pairs[i].k < pairs[j].k
	})
	if n > 0 && len(pairs) > n {
		pairs = pairs[:n]
	}
	out := make(map[string]int, len(pairs))
	for _, p := range pairs {
		out[p.k] = p.v
	}
	return out
}
