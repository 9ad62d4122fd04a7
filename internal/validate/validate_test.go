package validate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLines(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileAcceptsWellFormedSegments(t *testing.T) {
	dir := t.TempDir()
	path := writeLines(t, dir, "segments.jsonl", []string{
		`{"id":"seg_000001","start_sec":0.0,"end_sec":1.0,"duration_sec":1.0,"source_audio":"/a.wav"}`,
		`{"id":"seg_000002","start_sec":1.0,"end_sec":2.5,"duration_sec":1.5,"source_audio":"/a.wav"}`,
	})
	res := File(path, "", false)
	assert.True(t, res.OK)
	assert.Empty(t, res.Errors)
}

func TestFileRejectsNonContiguousIDs(t *testing.T) {
	dir := t.TempDir()
	path := writeLines(t, dir, "segments.jsonl", []string{
		`{"id":"seg_000001","start_sec":0.0,"end_sec":1.0,"duration_sec":1.0,"source_audio":"/a.wav"}`,
		`{"id":"seg_000003","start_sec":1.0,"end_sec":2.0,"duration_sec":1.0,"source_audio":"/a.wav"}`,
	})
	res := File(path, "", false)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Errors)
}

func TestFileWarnsOnOverlapUnlessStrict(t *testing.T) {
	dir := t.TempDir()
	path := writeLines(t, dir, "segments.jsonl", []string{
		`{"id":"seg_000001","start_sec":0.0,"end_sec":2.0,"duration_sec":2.0,"source_audio":"/a.wav"}`,
		`{"id":"seg_000002","start_sec":1.0,"end_sec":3.0,"duration_sec":2.0,"source_audio":"/a.wav"}`,
	})
	lenient := File(path, "", false)
	assert.True(t, lenient.OK)
	assert.NotEmpty(t, lenient.Warnings)

	strict := File(path, "", true)
	assert.False(t, strict.OK)
	assert.NotEmpty(t, strict.Errors)
}

func TestFileRejectsMissingRequiredField(t *testing.T) {
	dir := t.TempDir()
	path := writeLines(t, dir, "segments.jsonl", []string{
		`{"id":"seg_000001","start_sec":0.0,"end_sec":1.0,"duration_sec":1.0}`,
	})
	res := File(path, "", false)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Errors)
}

func TestFileFlagsSilenceArtifactDisagreement(t *testing.T) {
	dir := t.TempDir()
	segmentsPath := writeLines(t, dir, "segments.jsonl", []string{
		`{"id":"seg_000001","start_sec":0.0,"end_sec":1.0,"duration_sec":1.0,"source_audio":"/a.wav"}`,
	})
	reportPath := filepath.Join(dir, "seg_report.json")
	require.NoError(t, os.WriteFile(reportPath, []byte(`{
		"segments": {"count": 1, "speech_total_sec": 1.0},
		"analysis": {"silence": {"silences_total_sec": 5.0}}
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "silences.json"), []byte(`{"silences_total_sec": 9.0}`), 0o644))

	res := File(segmentsPath, reportPath, false)
	assert.False(t, res.OK)
	found := false
	for _, e := range res.Errors {
		if e == "silence artifact silences_total_sec disagrees with report by more than 0.1s" {
			found = true
		}
	}
	assert.True(t, found, "expected a silence-artifact disagreement error, got: %v", res.Errors)
}

func TestFileAcceptsAgreeingSilenceArtifact(t *testing.T) {
	dir := t.TempDir()
	segmentsPath := writeLines(t, dir, "segments.jsonl", []string{
		`{"id":"seg_000001","start_sec":0.0,"end_sec":1.0,"duration_sec":1.0,"source_audio":"/a.wav"}`,
	})
	reportPath := filepath.Join(dir, "seg_report.json")
	require.NoError(t, os.WriteFile(reportPath, []byte(`{
		"segments": {"count": 1, "speech_total_sec": 1.0},
		"analysis": {"silence": {"silences_total_sec": 5.0}}
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "silences.json"), []byte(`{"silences_total_sec": 5.05}`), 0o644))

	res := File(segmentsPath, reportPath, false)
	assert.True(t, res.OK)
}

func TestSilenceArtifactAgreesWithinTolerance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "silences.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"silences_total_sec": 2.05}`), 0o644))

	agrees, err := SilenceArtifactAgrees(path, 2.0)
	require.NoError(t, err)
	assert.True(t, agrees)

	agrees, err = SilenceArtifactAgrees(path, 1.0)
	require.NoError(t, err)
	assert.False(t, agrees)
}

func TestRollupMarksViolationsWhenAnyFileFails(t *testing.T) {
	ok := Result{OK: true}
	bad := Result{OK: false, Errors: []string{"boom"}}
	rollup := Rollup([]Result{ok, bad})
	assert.False(t, rollup.OK)
	assert.Equal(t, "violations", rollup.ErrorCode)
	assert.Equal(t, 1, rollup.FailedFiles)
}
