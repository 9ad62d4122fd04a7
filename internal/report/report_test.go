package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobReportWriteIsAtomicAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	r := NewJobReport("job1", "/audio/in.wav", "", "deadbeef", map[string]any{"strategy": "silence"}, time.Unix(0, 0))
	r.Segments = &SegmentsSection{Count: 2, SpeechTotalSec: 3.5, Strategy: "silence"}

	path := filepath.Join(dir, "seg_report.json")
	require.NoError(t, r.Write(path))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded JobReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "job1", decoded.JobID)
	assert.Equal(t, 2, decoded.Segments.Count)
}

func TestRunSummaryWrite(t *testing.T) {
	dir := t.TempDir()
	s := RunSummary{RunID: "r1", DryRun: true, Counts: Counts{JobsTotal: 3}}
	path := filepath.Join(dir, "run_summary.json")
	require.NoError(t, s.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded RunSummary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.DryRun)
	assert.Equal(t, 3, decoded.Counts.JobsTotal)
}
