// Package strategy implements the three speech-detection strategies
// (silence, energy, VAD) behind a single dispatch interface, plus the
// auto-strategy fallback controller with its quality gate.
package strategy

import (
	"context"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/intervals"
)

// Job is the minimal view of a unit of work a strategy needs: an audio
// path, an optional metadata sidecar, and an output directory for
// writing its diagnostic artifact.
type Job struct {
	ID        string
	AudioPath string
	MetaPath  string
	OutDir    string
}

// Result is the output of a strategy run: its name, the resolved audio
// duration, raw speech/non-speech candidate intervals (before any
// postprocess), the paths of artifacts it wrote, free-form stats, and
// advisory warnings.
type Result struct {
	Strategy          string
	DurationSec       float64
	SpeechSegmentsRaw []intervals.Interval
	NonspeechSegments []intervals.Interval // only silence produces these naturally
	Artifacts         map[string]string
	Warnings          []string
	Stats             map[string]any
}

// Strategy is the common interface every variant implements. Variants
// are dispatched on a Name tag by the orchestrator rather than through
// an inheritance hierarchy.
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, job Job, params map[string]any) (Result, error)
}

// Names of the three built-in variants, used both as config values and
// as orchestrator dispatch keys.
const (
	NameSilence = "silence"
	NameEnergy  = "energy"
	NameVAD     = "vad"
)
