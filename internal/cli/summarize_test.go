package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSummarizeComputesStats(t *testing.T) {
	dir := t.TempDir()
	writeSegmentsFixture(t, dir)

	var stdout, stderr bytes.Buffer
	code := runSummarize([]string{"--in", dir, "--json"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code)

	var out summary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Len(t, out.Items, 1)
	stats := out.Items[0].Stats
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Count)
	assert.InDelta(t, 2.5, stats.SpeechTotalSec, 1e-9)
	assert.InDelta(t, 1.0, stats.MinDuration, 1e-9)
	assert.InDelta(t, 1.5, stats.MaxDuration, 1e-9)
	assert.Equal(t, 1, stats.FlagsCount["merged_short"])
	assert.Equal(t, "energy", stats.StrategyInfo["strategy"])
}

func TestRunSummarizeReadsSiblingReportForAutoStrategy(t *testing.T) {
	dir := t.TempDir()
	writeSegmentsFixture(t, dir)
	reportPath := filepath.Join(dir, "seg_report.json")
	require.NoError(t, os.WriteFile(reportPath, []byte(`{"auto_strategy":{"attempts":[{"strategy":"silence"},{"strategy":"energy"}]}}`), 0o644))

	var stdout, stderr bytes.Buffer
	code := runSummarize([]string{"--in", dir, "--json"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code)

	var out summary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Len(t, out.Items, 1)
	assert.Contains(t, out.Items[0].Stats.StrategyInfo, "auto_strategy")
}

func TestRunSummarizeMissingInExitsInvalidArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := runSummarize(nil, &stdout, &stderr)
	assert.Equal(t, ExitInvalidArgs, code)
}

func TestRunSummarizeNoFilesExitsRuntimeError(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := runSummarize([]string{"--in", dir}, &stdout, &stderr)
	assert.Equal(t, ExitRuntimeError, code)
}
