package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/postprocess"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []segment.Record {
	rms := 0.05
	return []segment.Record{
		{ID: "seg_000001", StartSec: 0, EndSec: 1, DurationSec: 1, SourceAudio: "/a.wav", Strategy: "energy", RMS: &rms, Flags: []postprocess.Flag{postprocess.FlagEdgeClipped}},
		{ID: "seg_000002", StartSec: 2, EndSec: 3, DurationSec: 1, SourceAudio: "/a.wav", Strategy: "energy"},
	}
}

func TestWriteTimelineSortsByStart(t *testing.T) {
	dir := t.TempDir()
	recs := sampleRecords()
	recs[0], recs[1] = recs[1], recs[0]
	path, err := WriteTimeline(dir, recs, "/a.wav", 4, "energy", nil, nil)
	require.NoError(t, err)
	assert.FileExists(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var tl Timeline
	require.NoError(t, json.Unmarshal(data, &tl))
	require.NotEmpty(t, tl.Tracks)
	items := tl.Tracks[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, "seg_000001", items[0].ID)
	assert.Equal(t, "seg_000002", items[1].ID)
}

func TestWriteSegmentsCSVHasHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteSegmentsCSV(dir, sampleRecords())
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "id,start_sec,end_sec")
	assert.Contains(t, string(data), "seg_000001")
}

func TestWriteMaskProducesExpectedBinCount(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteMask(dir, 1.0, 500, "energy", sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mask.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var mask Mask
	require.NoError(t, json.Unmarshal(data, &mask))
	assert.Len(t, mask.Series, 2)
}
