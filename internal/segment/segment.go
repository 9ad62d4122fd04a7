// Package segment turns postprocessed intervals into durable
// SegmentRecord values: ID assignment, per-segment RMS/energy, silence
// adjacency, and the edge_clipped/low_energy flags that depend on
// knowing the full segment (the split_from_long/merged_short flags are
// already attached by the postprocess package).
package segment

import (
	"fmt"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/audioio"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/intervals"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/postprocess"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/strategy"
)

// Source records how a segment came to exist.
type Source struct {
	Strategy    string `json:"strategy"`
	AutoChosen  bool   `json:"auto_chosen"`
	RawIndex    *int   `json:"raw_index,omitempty"`
	DerivedFrom *int   `json:"derived_from,omitempty"`
}

// Quality carries the feature values a SegmentRecord's top-level rms
// and energy_db fields mirror, plus an optional free-form hint.
type Quality struct {
	RMS            *float64 `json:"rms,omitempty"`
	EnergyDB       *float64 `json:"energy_db,omitempty"`
	ConfidenceHint *string  `json:"confidence_hint,omitempty"`
}

// Record is the durable per-segment entity written to segments.jsonl.
type Record struct {
	ID             string            `json:"id"`
	StartSec       float64           `json:"start_sec"`
	EndSec         float64           `json:"end_sec"`
	DurationSec    float64           `json:"duration_sec"`
	SourceAudio    string            `json:"source_audio"`
	PreSilenceSec  *float64          `json:"pre_silence_sec,omitempty"`
	PostSilenceSec *float64          `json:"post_silence_sec,omitempty"`
	IsSpeech       bool              `json:"is_speech"`
	Strategy       string            `json:"strategy"`
	RMS            *float64          `json:"rms,omitempty"`
	EnergyDB       *float64          `json:"energy_db,omitempty"`
	Flags          []postprocess.Flag `json:"flags,omitempty"`
	Source         Source            `json:"source"`
	Quality        *Quality          `json:"quality,omitempty"`
	Notes          string            `json:"notes,omitempty"`
}

// Builder holds the per-job context needed to turn postprocess outputs
// into SegmentRecords.
type Builder struct {
	SourceAudio        string
	StrategyName       string
	AutoChosen         bool
	DurationSec        float64
	NonspeechSegments  []intervals.Interval // only populated by the silence strategy
	LowEnergyThreshold float64
}

// Build assigns seg_NNNNNN IDs in order and computes per-segment
// features. RMS/energy_db failures are best-effort: left nil with a
// warning, never fatal to the job.
func (b Builder) Build(outputs []postprocess.Output) ([]Record, []string) {
	info, haveInfo := audioio.Inspect(b.SourceAudio)
	records := make([]Record, 0, len(outputs))
	var warnings []string

	for i, out := range outputs {
		iv := out.Interval
		rec := Record{
			ID:          fmt.Sprintf("seg_%06d", i+1),
			StartSec:    iv.Start,
			EndSec:      iv.End,
			DurationSec: intervals.Round3(iv.Duration()),
			SourceAudio: b.SourceAudio,
			IsSpeech:    true,
			Strategy:    b.StrategyName,
			Source:      Source{Strategy: b.StrategyName, AutoChosen: b.AutoChosen},
		}

		flags := append([]postprocess.Flag{}, out.History...)

		if iv.Start <= intervals.AdjacencyTolerance || b.DurationSec-iv.End <= intervals.AdjacencyTolerance {
			flags = append(flags, postprocess.FlagEdgeClipped)
		}

		if haveInfo && info.SampleRate > 0 {
			startFrame := int(iv.Start * float64(info.SampleRate))
			endFrame := int(iv.End * float64(info.SampleRate))
			if rms, ok := audioio.ComputeRMS(b.SourceAudio, startFrame, endFrame); ok {
				rmsCopy := intervals.RoundN(rms, 6)
				rec.RMS = &rmsCopy
				db := audioio.RMSToDB(rms, audioio.EpsDB)
				dbRounded := intervals.RoundN(db, 2)
				rec.EnergyDB = &dbRounded
				if rms < b.LowEnergyThreshold {
					flags = append(flags, postprocess.FlagLowEnergy)
				}
				rec.Quality = &Quality{RMS: &rmsCopy, EnergyDB: &dbRounded}
			} else {
				warnings = append(warnings, fmt.Sprintf("%s: rms computation failed", rec.ID))
			}
		} else {
			warnings = append(warnings, fmt.Sprintf("%s: rms computation failed", rec.ID))
		}

		if b.StrategyName == strategy.NameSilence {
			if pre, ok := preSilence(iv, b.NonspeechSegments); ok {
				rec.PreSilenceSec = &pre
			}
			if post, ok := postSilence(iv, b.NonspeechSegments); ok {
				rec.PostSilenceSec = &post
			}
		}

		rec.Flags = dedupOrdered(flags)
		records = append(records, rec)
	}
	return records, warnings
}

// preSilence returns the duration of the non-speech interval whose end
// abuts iv.Start within AdjacencyTolerance.
func preSilence(iv intervals.Interval, nonspeech []intervals.Interval) (float64, bool) {
	for _, ns := range nonspeech {
		if absDiff(ns.End, iv.Start) <= intervals.AdjacencyTolerance {
			return intervals.Round3(ns.Duration()), true
		}
	}
	return 0, false
}

// postSilence returns the duration of the non-speech interval whose
// start abuts iv.End within AdjacencyTolerance.
func postSilence(iv intervals.Interval, nonspeech []intervals.Interval) (float64, bool) {
	for _, ns := range nonspeech {
		if absDiff(ns.Start, iv.End) <= intervals.AdjacencyTolerance {
			return intervals.Round3(ns.Duration()), true
		}
	}
	return 0, false
}

func absDiff(a, b float64) float64 {
	if a < b {
		return b - a
	}
	return a - b
}

func dedupOrdered(flags []postprocess.Flag) []postprocess.Flag {
	seen := map[postprocess.Flag]bool{}
	var out []postprocess.Flag
	for _, canonical := range postprocess.CanonicalOrder {
		for _, f := range flags {
			if f == canonical && !seen[f] {
				out = append(out, f)
				seen[f] = true
			}
		}
	}
	return out
}
