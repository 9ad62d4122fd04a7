package strategy

import (
	"context"
	"fmt"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/audioio"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/intervals"
)

// Classifier is an external voice-activity classifier: given one
// fixed-size PCM16LE mono frame and a sample rate, it reports whether
// the frame is speech. Implementations wrap a non-machine-learned
// library (e.g. a WebRTC-style energy/zero-crossing classifier); a nil
// Classifier means the dependency is unavailable.
type Classifier interface {
	IsSpeech(frame []byte, sampleRate int) (bool, error)
	Close()
}

// ClassifierFactory builds a Classifier at a given aggressiveness
// level. The default build has no classifier wired in, so VAD always
// reports a missing dependency — a real one is wired in via a build
// tag, mirroring the upstream optional-import pattern.
type ClassifierFactory func(aggressiveness int) (Classifier, error)

// DefaultClassifierFactory is used when Strategy.NewClassifier is nil.
var DefaultClassifierFactory ClassifierFactory = func(int) (Classifier, error) {
	return nil, ErrMissingVADLibrary
}

// ErrMissingVADLibrary is returned when no voice-activity classifier is wired in.
var ErrMissingVADLibrary = fmt.Errorf("voice-activity classifier library not available")

// VAD detects speech by streaming PCM16 mono frames through an
// external classifier and applying the same morphological cleanup as
// the energy strategy.
type VAD struct {
	ResamplerBin  string
	NewClassifier ClassifierFactory
}

func (v VAD) Name() string { return NameVAD }

func (v VAD) Analyze(ctx context.Context, job Job, params map[string]any) (Result, error) {
	duration := floatParam(params, "duration_sec", 0)
	aggressiveness := intParam(params, "aggressiveness", 2)
	frameMs := intParam(params, "vad.frame_ms", 30)
	sampleRate := intParam(params, "sample_rate", 16000)
	minSpeechSec := floatParam(params, "vad.min_speech_sec", 0.20)
	minSilenceSec := floatParam(params, "min_silence_sec", 0.35)

	factory := v.NewClassifier
	if factory == nil {
		factory = DefaultClassifierFactory
	}
	classifier, err := factory(aggressiveness)
	if err != nil {
		return Result{}, fmt.Errorf("vad: %w", err)
	}
	defer classifier.Close()

	fs, ok := audioio.BuildPCM16MonoFrames(ctx, job.AudioPath, sampleRate, frameMs, v.ResamplerBin)
	if !ok {
		return Result{}, fmt.Errorf("vad: could not obtain pcm16 mono frames for %s", job.AudioPath)
	}

	frames := fs.Frames()
	mask := make([]bool, len(frames))
	for i, f := range frames {
		speech, err := classifier.IsSpeech(f, sampleRate)
		if err != nil {
			return Result{}, fmt.Errorf("vad: classifier error: %w", err)
		}
		mask[i] = speech
	}

	hopSec := float64(frameMs) / 1000.0
	runs := runLengthEncode(mask)
	runs = dropShortSpeechRuns(runs, hopSec, minSpeechSec)
	runs = flipShortSilenceRuns(runs, hopSec, minSilenceSec)
	runs = mergeSameValueRuns(runs)

	var speech []intervals.Interval
	for _, r := range runs {
		if !r.value {
			continue
		}
		start := float64(r.start) * hopSec
		end := float64(r.end+1) * hopSec
		if end > duration {
			end = duration
		}
		if end <= start {
			continue
		}
		speech = append(speech, intervals.Interval{Start: start, End: end})
	}
	speech = intervals.Normalize(speech, duration)

	artifactPath, warn := writeArtifact(job.OutDir, "vad.json", map[string]any{
		"aggressiveness": aggressiveness,
		"frame_ms":       frameMs,
		"sample_rate":    sampleRate,
		"frames":         len(frames),
		"speech_frames":  countTrue(mask),
	})

	res := Result{
		Strategy:          NameVAD,
		DurationSec:       duration,
		SpeechSegmentsRaw: speech,
		Artifacts:         map[string]string{},
		Stats: map[string]any{
			"frames":        len(frames),
			"speech_frames": countTrue(mask),
		},
	}
	if artifactPath != "" {
		res.Artifacts["vad.json"] = artifactPath
	}
	if warn != "" {
		res.Warnings = append(res.Warnings, warn)
	}
	return res, nil
}

func intParam(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return def
	}
}
