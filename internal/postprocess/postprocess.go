// Package postprocess shapes a strategy's raw speech candidates into
// final segments: pad, merge, enforce-min (merge), enforce-max
// (split), tracking provenance flags across the min-merge and
// max-split passes.
package postprocess

import (
	"github.com/alalapi-0/onepass-audioclean-seg/internal/intervals"
)

// Flag is a provenance/quality tag drawn from a fixed vocabulary.
// Flags serialize in this exact order.
type Flag string

const (
	FlagSplitFromLong Flag = "split_from_long"
	FlagMergedShort   Flag = "merged_short"
	FlagEdgeClipped   Flag = "edge_clipped"
	FlagLowEnergy     Flag = "low_energy"
)

// CanonicalOrder is the fixed serialization order for flags.
var CanonicalOrder = []Flag{FlagSplitFromLong, FlagMergedShort, FlagEdgeClipped, FlagLowEnergy}

// Params controls the postprocess chain.
type Params struct {
	PadSec              float64
	MinSegSec           float64
	MaxSegSec           float64
	LowEnergyThreshold  float64
}

// Output is one final interval plus the provenance flags computed for
// it from the min-merge and max-split passes (edge_clipped/low_energy
// are added later once RMS is known, by the segment builder).
type Output struct {
	Interval intervals.Interval
	History  []Flag
}

// Result is the full postprocess outcome: final outputs in order, plus
// any warnings raised along the way (e.g. isolated short segments
// dropped for lack of a merge neighbor).
type Result struct {
	Outputs  []Output
	Warnings []string
}

// Run applies pad_and_clip -> merge_overlaps -> enforce_min_by_merge
// -> enforce_max_by_split to rawSpeech, tracking provenance across the
// min-merge and max-split passes per the direct before/after pairing
// of each pass (intermediate mergings within a pass to fixpoint are not
// separately recorded — see DESIGN.md's Open Question decision).
func Run(rawSpeech []intervals.Interval, duration float64, p Params) (Result, error) {
	padded := intervals.PadAndClip(rawSpeech, p.PadSec, duration)
	merged := intervals.MergeOverlaps(padded, 0, intervals.AdjacencyTolerance)

	beforeMin := merged
	afterMin, minWarnings := intervals.EnforceMinByMerge(merged, p.MinSegSec, p.MaxSegSec)
	mergeFlags := trackHistory(beforeMin, afterMin, "merge")

	afterMax, splitWarnings, err := intervals.EnforceMaxBySplit(afterMin, p.MaxSegSec, p.MinSegSec, intervals.SplitEqual)
	if err != nil {
		return Result{}, err
	}
	splitFlags := trackHistory(afterMin, afterMax, "split")

	outputs := make([]Output, len(afterMax))
	for i, iv := range afterMax {
		var history []Flag
		if flags, ok := mergeFlagsFor(iv, afterMin, mergeFlags); ok {
			history = append(history, flags...)
		}
		if flags, ok := splitFlags[iv]; ok {
			history = append(history, flags...)
		}
		outputs[i] = Output{Interval: iv, History: dedupOrdered(history)}
	}

	var warnings []string
	for _, w := range minWarnings {
		warnings = append(warnings, w.String())
	}
	for _, w := range splitWarnings {
		warnings = append(warnings, w.String())
	}

	return Result{Outputs: outputs, Warnings: warnings}, nil
}

// trackHistory tags each interval in after with split_from_long when it
// is strictly contained in a strictly longer interval of before, or
// merged_short when it overlaps two or more distinct intervals of
// before. Keyed by the after interval itself since intervals are
// pairwise non-overlapping post-normalize.
func trackHistory(before, after []intervals.Interval, operation string) map[intervals.Interval][]Flag {
	out := make(map[intervals.Interval][]Flag, len(after))
	for _, a := range after {
		var flags []Flag
		switch operation {
		case "split":
			for _, b := range before {
				if b.Start <= a.Start && a.End <= b.End && b.Duration() > a.Duration() {
					flags = append(flags, FlagSplitFromLong)
					break
				}
			}
		case "merge":
			covered := 0
			for _, b := range before {
				if !(b.End <= a.Start || a.End <= b.Start) {
					covered++
				}
			}
			if covered > 1 {
				flags = append(flags, FlagMergedShort)
			}
		}
		out[a] = flags
	}
	return out
}

func mergeFlagsFor(iv intervals.Interval, afterMin []intervals.Interval, mergeFlags map[intervals.Interval][]Flag) ([]Flag, bool) {
	// After a split pass, the split pieces come from a single afterMin
	// interval; that interval's merge flags (if any) propagate to every
	// piece derived from it.
	for _, am := range afterMin {
		if am.Start <= iv.Start && iv.End <= am.End {
			if flags, ok := mergeFlags[am]; ok && len(flags) > 0 {
				return flags, true
			}
			return nil, false
		}
	}
	return nil, false
}

func dedupOrdered(flags []Flag) []Flag {
	seen := map[Flag]bool{}
	var out []Flag
	for _, canonical := range CanonicalOrder {
		for _, f := range flags {
			if f == canonical && !seen[f] {
				out = append(out, f)
				seen[f] = true
			}
		}
	}
	return out
}
