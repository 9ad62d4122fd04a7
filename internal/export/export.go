// Package export produces the visualization-friendly side artifacts a
// job can optionally emit alongside segments.jsonl: a single-file
// timeline for a front end to load directly, a spreadsheet-friendly
// CSV, and a downsampled speech mask.
package export

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/atomicfile"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/intervals"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/postprocess"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/segment"
)

// TimelineItem is one segment as it appears on the auto_segments track.
type TimelineItem struct {
	ID          string             `json:"id"`
	StartSec    float64            `json:"start_sec"`
	EndSec      float64            `json:"end_sec"`
	DurationSec float64            `json:"duration_sec"`
	Flags       []string           `json:"flags,omitempty"`
	RMS         *float64           `json:"rms,omitempty"`
}

// TimelineTrack is one named lane of the timeline.
type TimelineTrack struct {
	Name  string         `json:"name"`
	Type  string         `json:"type"`
	Items []TimelineItem `json:"items"`
}

// Timeline is the top-level timeline.json structure.
type Timeline struct {
	Version      string         `json:"version"`
	AudioPath    string         `json:"audio_path"`
	DurationSec  float64        `json:"duration_sec"`
	Strategy     string         `json:"strategy"`
	AutoStrategy map[string]any `json:"auto_strategy,omitempty"`
	Params       map[string]any `json:"params"`
	Tracks       []TimelineTrack `json:"tracks"`
}

// WriteTimeline builds and atomically writes timeline.json.
func WriteTimeline(outDir string, records []segment.Record, audioPath string, durationSec float64, strategy string, autoStrategy map[string]any, params map[string]any) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	items := make([]TimelineItem, 0, len(records))
	for _, r := range records {
		flags := make([]string, 0, len(r.Flags))
		for _, f := range r.Flags {
			flags = append(flags, string(f))
		}
		items = append(items, TimelineItem{
			ID: r.ID, StartSec: round(r.StartSec, 3), EndSec: round(r.EndSec, 3),
			DurationSec: round(r.DurationSec, 3), Flags: flags, RMS: roundPtr(r.RMS, 6),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].StartSec < items[j].StartSec })

	if params == nil {
		params = map[string]any{}
	}
	tl := Timeline{
		Version: "timeline.v1", AudioPath: audioPath, DurationSec: round(durationSec, 3),
		Strategy: strategy, AutoStrategy: autoStrategy, Params: params,
		Tracks: []TimelineTrack{
			{Name: "auto_segments", Type: "segments", Items: items},
			{Name: "analysis", Type: "intervals", Items: []TimelineItem{}},
		},
	}
	path := filepath.Join(outDir, "timeline.json")
	if err := atomicfile.WriteJSON(path, tl); err != nil {
		return "", err
	}
	return path, nil
}

// WriteSegmentsCSV writes the fixed-column segments.csv.
func WriteSegmentsCSV(outDir string, records []segment.Record) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	sorted := make([]segment.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartSec < sorted[j].StartSec })

	path := filepath.Join(outDir, "segments.csv")
	f, err := os.Create(path + ".tmp")
	if err != nil {
		return "", err
	}
	w := csv.NewWriter(f)
	header := []string{"id", "start_sec", "end_sec", "duration_sec", "rms", "strategy", "flags", "pre_silence_sec", "post_silence_sec", "source_audio"}
	if err := w.Write(header); err != nil {
		f.Close()
		return "", err
	}
	for _, r := range sorted {
		row := []string{
			r.ID,
			fmt.Sprintf("%.3f", round(r.StartSec, 3)),
			fmt.Sprintf("%.3f", round(r.EndSec, 3)),
			fmt.Sprintf("%.3f", round(r.DurationSec, 3)),
			optionalFloat(r.RMS, 6),
			r.Strategy,
			joinFlags(r.Flags),
			optionalFloat(r.PreSilenceSec, 3),
			optionalFloat(r.PostSilenceSec, 3),
			r.SourceAudio,
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		return "", err
	}
	return path, nil
}

// MaskBin is one downsampled time bin of the speech mask.
type MaskBin struct {
	TSec        float64  `json:"t_sec"`
	SpeechRatio float64  `json:"speech_ratio"`
	AvgRMS      *float64 `json:"avg_rms,omitempty"`
}

// Mask is the top-level mask.json structure.
type Mask struct {
	Version     string    `json:"version"`
	BinMs       float64   `json:"bin_ms"`
	DurationSec float64   `json:"duration_sec"`
	Series      []MaskBin `json:"series"`
	Source      struct {
		Strategy string `json:"strategy"`
	} `json:"source"`
}

// WriteMask downsamples segment coverage into fixed-width bins and
// atomically writes mask.json. Derives bin speech_ratio/avg_rms purely
// from segment overlap, matching the fallback path used when a
// strategy did not persist frame-level series data.
func WriteMask(outDir string, durationSec, binMs float64, strategy string, records []segment.Record) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	binSec := binMs / 1000.0
	if binSec <= 0 {
		return "", fmt.Errorf("export: mask_bin_ms must be > 0")
	}
	nBins := int(math.Ceil(durationSec / binSec))

	series := make([]MaskBin, 0, nBins)
	for i := 0; i < nBins; i++ {
		tSec := float64(i) * binSec
		binEnd := math.Min(float64(i+1)*binSec, durationSec)
		total := binEnd - tSec

		var speechSamples, rmsSum, rmsCount float64
		for _, r := range records {
			overlapStart := math.Max(tSec, r.StartSec)
			overlapEnd := math.Min(binEnd, r.EndSec)
			if overlapEnd > overlapStart {
				d := overlapEnd - overlapStart
				speechSamples += d
				if r.RMS != nil {
					rmsSum += *r.RMS * d
					rmsCount += d
				}
			}
		}
		ratio := 0.0
		if total > 0 {
			ratio = speechSamples / total
		}
		bin := MaskBin{TSec: round(tSec, 3), SpeechRatio: round(ratio, 3)}
		if rmsCount > 0 {
			avg := round(rmsSum/rmsCount, 6)
			bin.AvgRMS = &avg
		}
		series = append(series, bin)
	}

	mask := Mask{Version: "mask.v1", BinMs: round(binMs, 1), DurationSec: round(durationSec, 3), Series: series}
	mask.Source.Strategy = strategy

	path := filepath.Join(outDir, "mask.json")
	if err := atomicfile.WriteJSON(path, mask); err != nil {
		return "", err
	}
	return path, nil
}

func round(v float64, places int) float64 {
	return intervals.RoundN(v, places)
}

func roundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	r := round(*v, places)
	return &r
}

func optionalFloat(v *float64, places int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.*f", places, round(*v, places))
}

func joinFlags(flags []postprocess.Flag) string {
	parts := make([]string, 0, len(flags))
	for _, f := range flags {
		parts = append(parts, string(f))
	}
	return strings.Join(parts, "|")
}
