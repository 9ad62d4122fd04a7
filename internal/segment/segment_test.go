package segment

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/intervals"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestWav writes a minimal canonical PCM16 mono WAV, mirroring the
// fixture the pipeline package's own tests use since Build reads the
// file through the same manual header parser.
func writeTestWav(t *testing.T, path string, sampleRate int, samples []int16) {
	t.Helper()
	data := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(s))
		data = append(data, b...)
	}
	dataSize := len(data)
	byteRate := sampleRate * 2
	le32 := func(v uint32) []byte { b := make([]byte, 4); binary.LittleEndian.PutUint32(b, v); return b }
	le16 := func(v uint16) []byte { b := make([]byte, 2); binary.LittleEndian.PutUint16(b, v); return b }
	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, le32(uint32(36+dataSize))...)
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	buf = append(buf, le32(16)...)
	buf = append(buf, le16(1)...)
	buf = append(buf, le16(1)...)
	buf = append(buf, le32(uint32(sampleRate))...)
	buf = append(buf, le32(uint32(byteRate))...)
	buf = append(buf, le16(2)...)
	buf = append(buf, le16(16)...)
	buf = append(buf, []byte("data")...)
	buf = append(buf, le32(uint32(dataSize))...)
	buf = append(buf, data...)
	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func TestBuildAssignsContiguousIDs(t *testing.T) {
	b := Builder{SourceAudio: "/nonexistent.wav", StrategyName: "energy", DurationSec: 10}
	outputs := []postprocess.Output{
		{Interval: intervals.Interval{Start: 0, End: 2}},
		{Interval: intervals.Interval{Start: 3, End: 5}},
	}
	recs, warnings := b.Build(outputs)
	require.Len(t, recs, 2)
	assert.Equal(t, "seg_000001", recs[0].ID)
	assert.Equal(t, "seg_000002", recs[1].ID)
	assert.NotEmpty(t, warnings) // rms computation fails against a missing file
}

func TestBuildTagsEdgeClipped(t *testing.T) {
	b := Builder{SourceAudio: "/nonexistent.wav", StrategyName: "energy", DurationSec: 10}
	outputs := []postprocess.Output{
		{Interval: intervals.Interval{Start: 0, End: 2}},
		{Interval: intervals.Interval{Start: 9.9995, End: 10}},
	}
	recs, _ := b.Build(outputs)
	assert.Contains(t, recs[0].Flags, postprocess.FlagEdgeClipped)
	assert.Contains(t, recs[1].Flags, postprocess.FlagEdgeClipped)
}

func TestBuildOnlyPopulatesSilenceAdjacencyForSilenceStrategy(t *testing.T) {
	nonspeech := []intervals.Interval{{Start: 2, End: 3}}
	b := Builder{
		SourceAudio:       "/nonexistent.wav",
		StrategyName:      "silence",
		DurationSec:       10,
		NonspeechSegments: nonspeech,
	}
	outputs := []postprocess.Output{{Interval: intervals.Interval{Start: 3, End: 5}}}
	recs, _ := b.Build(outputs)
	require.NotNil(t, recs[0].PreSilenceSec)
	assert.InDelta(t, 1.0, *recs[0].PreSilenceSec, 1e-9)
	assert.Nil(t, recs[0].PostSilenceSec)

	bEnergy := Builder{
		SourceAudio:       "/nonexistent.wav",
		StrategyName:      "energy",
		DurationSec:       10,
		NonspeechSegments: nonspeech,
	}
	recsEnergy, _ := bEnergy.Build(outputs)
	assert.Nil(t, recsEnergy[0].PreSilenceSec)
}

func TestBuildRoundsRMSToSixPlacesAndEnergyDBToTwo(t *testing.T) {
	dir := t.TempDir()
	audioPath := filepath.Join(dir, "tone.wav")
	sampleRate := 8000
	samples := make([]int16, sampleRate*2)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 16384
		} else {
			samples[i] = -16384
		}
	}
	writeTestWav(t, audioPath, sampleRate, samples)

	b := Builder{SourceAudio: audioPath, StrategyName: "energy", DurationSec: 2}
	outputs := []postprocess.Output{{Interval: intervals.Interval{Start: 0, End: 2}}}
	recs, warnings := b.Build(outputs)
	require.Empty(t, warnings)
	require.NotNil(t, recs[0].RMS)
	require.NotNil(t, recs[0].EnergyDB)

	// A full-scale square wave at amplitude 16384 has rms = 16384/32768 = 0.5 exactly.
	assert.InDelta(t, 0.5, *recs[0].RMS, 1e-9)
	// 20*log10(0.5) = -6.0205999..., round-2 is -6.02.
	assert.InDelta(t, -6.02, *recs[0].EnergyDB, 1e-9)
	require.NotNil(t, recs[0].Quality)
	assert.Equal(t, recs[0].RMS, recs[0].Quality.RMS)
	assert.Equal(t, recs[0].EnergyDB, recs[0].Quality.EnergyDB)
}
