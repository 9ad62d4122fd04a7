// Package validate re-derives the invariants a segments.jsonl file
// (and its sibling per-job report / detector artifacts) must satisfy,
// independent of whatever produced them.
package validate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/intervals"
)

var idPattern = regexp.MustCompile(`^seg_(\d{6})$`)

// Result is one file's validation outcome.
type Result struct {
	OK       bool           `json:"ok"`
	Warnings []string       `json:"warnings"`
	Errors   []string       `json:"errors"`
	Stats    map[string]any `json:"stats"`
}

// CorpusResult rolls up results across many files.
type CorpusResult struct {
	OK           bool     `json:"ok"`
	ErrorCode    string   `json:"error_code,omitempty"`
	CheckedFiles int      `json:"checked_files"`
	FailedFiles  int      `json:"failed_files"`
	Warnings     int      `json:"warnings"`
	Errors       int      `json:"errors"`
	Results      []Result `json:"results"`
}

// Rollup aggregates per-file Results into a CorpusResult. error_code is
// "violations" whenever any single file failed.
func Rollup(results []Result) CorpusResult {
	out := CorpusResult{OK: true, Results: results, CheckedFiles: len(results)}
	for _, r := range results {
		out.Warnings += len(r.Warnings)
		out.Errors += len(r.Errors)
		if !r.OK {
			out.OK = false
			out.FailedFiles++
		}
	}
	if !out.OK {
		out.ErrorCode = "violations"
	}
	return out
}

type line struct {
	ID          string  `json:"id"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	DurationSec float64 `json:"duration_sec"`
	SourceAudio string  `json:"source_audio"`
}

// reportView is the minimal subset of a JobReport this package reads,
// kept local to avoid importing the report package for two numeric
// fields and one path.
type reportView struct {
	Segments *struct {
		Count          int    `json:"count"`
		SpeechTotalSec float64 `json:"speech_total_sec"`
		Outputs        struct {
			SegmentsJSONL string `json:"segments_jsonl"`
		} `json:"outputs"`
	} `json:"segments"`
	Analysis map[string]any `json:"analysis"`
}

// File validates one segments.jsonl file. reportPath may be empty if
// no sibling report exists.
func File(segmentsPath, reportPath string, strict bool) Result {
	res := Result{OK: true, Stats: map[string]any{}}

	f, err := os.Open(segmentsPath)
	if err != nil {
		res.OK = false
		res.Errors = append(res.Errors, fmt.Sprintf("cannot open %s: %v", segmentsPath, err))
		return res
	}
	defer f.Close()

	var lines []line
	var rawLines []map[string]any
	lineNo := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if text == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			res.OK = false
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: invalid json: %v", lineNo, err))
			continue
		}
		var l line
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			res.OK = false
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: schema mismatch: %v", lineNo, err))
			continue
		}
		if missing := requiredFieldsMissing(raw); len(missing) > 0 {
			res.OK = false
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: missing required field(s): %v", lineNo, missing))
			continue
		}
		lines = append(lines, l)
		rawLines = append(rawLines, raw)
	}
	if err := scanner.Err(); err != nil {
		res.OK = false
		res.Errors = append(res.Errors, fmt.Sprintf("read error: %v", err))
	}

	validateNumerics(&res, lines)
	validateIDs(&res, lines)
	validateOrdering(&res, lines)
	validateNonOverlap(&res, lines, strict)

	res.Stats["line_count"] = len(lines)
	res.Stats["speech_total_sec"] = sumDurations(lines)

	if reportPath != "" {
		validateAgainstReport(&res, reportPath, segmentsPath, lines, strict)
	}

	return res
}

func requiredFieldsMissing(raw map[string]any) []string {
	required := []string{"id", "start_sec", "end_sec", "duration_sec", "source_audio"}
	var missing []string
	for _, key := range required {
		v, ok := raw[key]
		if !ok || v == nil {
			missing = append(missing, key)
			continue
		}
		switch key {
		case "id", "source_audio":
			if _, ok := v.(string); !ok {
				missing = append(missing, key+" (wrong type)")
			}
		case "start_sec", "end_sec", "duration_sec":
			if _, ok := v.(float64); !ok {
				missing = append(missing, key+" (wrong type)")
			}
		}
	}
	return missing
}

func validateNumerics(res *Result, lines []line) {
	for _, l := range lines {
		if l.StartSec < 0 {
			res.OK = false
			res.Errors = append(res.Errors, fmt.Sprintf("%s: start_sec < 0", l.ID))
		}
		if l.EndSec <= l.StartSec {
			res.OK = false
			res.Errors = append(res.Errors, fmt.Sprintf("%s: end_sec <= start_sec", l.ID))
		}
		if math.Abs(l.DurationSec-(l.EndSec-l.StartSec)) > intervals.DurationTolerance {
			res.OK = false
			res.Errors = append(res.Errors, fmt.Sprintf("%s: duration_sec inconsistent with end-start", l.ID))
		}
		for _, v := range []float64{l.StartSec, l.EndSec, l.DurationSec} {
			if !intervals.IsRound3(v) {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: a time field is not round-3", l.ID))
				break
			}
		}
	}
}

func validateIDs(res *Result, lines []line) {
	for i, l := range lines {
		m := idPattern.FindStringSubmatch(l.ID)
		if m == nil {
			res.OK = false
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: id %q does not match seg_\\d{6}", i+1, l.ID))
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if n != i+1 {
			res.OK = false
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: id %q is not contiguous (expected seg_%06d)", i+1, l.ID, i+1))
		}
	}
}

func validateOrdering(res *Result, lines []line) {
	for i := 1; i < len(lines); i++ {
		if lines[i].StartSec < lines[i-1].StartSec {
			res.OK = false
			res.Errors = append(res.Errors, fmt.Sprintf("%s: start_sec not non-decreasing after %s", lines[i].ID, lines[i-1].ID))
		}
	}
}

func validateNonOverlap(res *Result, lines []line, strict bool) {
	for i := 1; i < len(lines); i++ {
		overlap := lines[i-1].EndSec - lines[i].StartSec
		if overlap > intervals.AdjacencyTolerance {
			msg := fmt.Sprintf("%s overlaps %s by %.6fs", lines[i-1].ID, lines[i].ID, overlap)
			if strict {
				res.OK = false
				res.Errors = append(res.Errors, msg)
			} else {
				res.Warnings = append(res.Warnings, msg)
			}
		}
	}
}

func validateAgainstReport(res *Result, reportPath, segmentsPath string, lines []line, strict bool) {
	data, err := os.ReadFile(reportPath)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("sibling report not readable: %v", err))
		return
	}
	var rep reportView
	if err := json.Unmarshal(data, &rep); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("sibling report not valid json: %v", err))
		return
	}
	if rep.Segments == nil {
		return
	}
	if rep.Segments.Count != len(lines) {
		res.OK = false
		res.Errors = append(res.Errors, fmt.Sprintf("report segments.count (%d) != line count (%d)", rep.Segments.Count, len(lines)))
	}
	if math.Abs(rep.Segments.SpeechTotalSec-sumDurations(lines)) > 0.1 {
		res.OK = false
		res.Errors = append(res.Errors, "report speech_total_sec disagrees with summed durations by more than 0.1s")
	}
	if strict && rep.Segments.Outputs.SegmentsJSONL != "" {
		abs, _ := filepath.Abs(segmentsPath)
		repAbs, _ := filepath.Abs(rep.Segments.Outputs.SegmentsJSONL)
		if abs != repAbs {
			res.OK = false
			res.Errors = append(res.Errors, "report outputs.segments_jsonl does not point to the inspected file")
		}
	}
	if silenceAnalysis, ok := rep.Analysis["silence"].(map[string]any); ok {
		if total, ok := silenceAnalysis["silences_total_sec"].(float64); ok {
			artifactPath := filepath.Join(filepath.Dir(segmentsPath), "silences.json")
			if _, statErr := os.Stat(artifactPath); statErr == nil {
				agrees, err := SilenceArtifactAgrees(artifactPath, total)
				if err != nil {
					res.Warnings = append(res.Warnings, fmt.Sprintf("silence artifact not readable: %v", err))
				} else if !agrees {
					res.OK = false
					res.Errors = append(res.Errors, "silence artifact silences_total_sec disagrees with report by more than 0.1s")
				}
			}
		}
	}
}

func sumDurations(lines []line) float64 {
	var total float64
	for _, l := range lines {
		total += l.DurationSec
	}
	return total
}

// SilenceArtifactAgrees checks a silence detector artifact's
// silences_total_sec against the report's
// analysis.silence.silences_total_sec within 0.1s, returning false when
// they do not reconcile and an error when the artifact cannot be read
// or lacks silences_total_sec.
func SilenceArtifactAgrees(artifactPath string, reportSilenceTotalSec float64) (bool, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return false, err
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return false, err
	}
	total, ok := obj["silences_total_sec"].(float64)
	if !ok {
		return false, fmt.Errorf("silence artifact missing silences_total_sec")
	}
	return math.Abs(total-reportSilenceTotalSec) <= 0.1, nil
}
