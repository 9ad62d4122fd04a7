package strategy

import (
	"context"
	"fmt"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/audioio"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/intervals"
)

// Energy detects speech by thresholding a smoothed RMS envelope and
// applying morphological run-length cleanup.
type Energy struct {
	ResamplerBin string
}

func (e Energy) Name() string { return NameEnergy }

func (e Energy) Analyze(ctx context.Context, job Job, params map[string]any) (Result, error) {
	duration := floatParam(params, "duration_sec", 0)
	frameMs := floatParam(params, "energy.frame_ms", 30)
	hopMs := floatParam(params, "hop_ms", 10)
	smoothMs := floatParam(params, "smooth_ms", 100)
	thresholdRMS := floatParam(params, "threshold_rms", 0.02)
	minSpeechSec := floatParam(params, "min_speech_sec", 0.20)
	minSilenceSec := floatParam(params, "min_silence_sec", 0.35)

	series, frameSec, hopSec, err := computeRMSSeries(job.AudioPath, frameMs, hopMs)
	if err != nil {
		return Result{}, fmt.Errorf("energy: %w", err)
	}

	smoothWidth := int(ceilDiv(smoothMs, hopMs))
	smoothed := smoothRMS(series, smoothWidth)

	mask := make([]bool, len(smoothed))
	for i, v := range smoothed {
		mask[i] = v >= thresholdRMS
	}

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
		end := float64(r.end+1) * frameSec
		if end > duration {
			end = duration
		}
		if end <= start {
			continue
		}
		speech = append(speech, intervals.Interval{Start: start, End: end})
	}
	speech = intervals.Normalize(speech, duration)

	artifactPath, warn := writeArtifact(job.OutDir, "energy.json", map[string]any{
		"threshold_rms": thresholdRMS,
		"frame_ms":      frameMs,
		"hop_ms":        hopMs,
		"smooth_ms":     smoothMs,
		"frames":        len(series),
		"speech_frames": countTrue(mask),
	})

	res := Result{
		Strategy:          NameEnergy,
		DurationSec:       duration,
		SpeechSegmentsRaw: speech,
		Artifacts:         map[string]string{},
		Stats: map[string]any{
			"frames":        len(series),
			"speech_frames": countTrue(mask),
			"threshold_rms": thresholdRMS,
		},
	}
	if artifactPath != "" {
		res.Artifacts["energy.json"] = artifactPath
	}
	if warn != "" {
		res.Warnings = append(res.Warnings, warn)
	}
	return res, nil
}

// computeRMSSeries streams a WAV in a sliding frame_ms window at hop_ms
// hop, returning per-frame RMS, the frame length in seconds, and the
// hop length in seconds.
func computeRMSSeries(path string, frameMs, hopMs float64) ([]float64, float64, float64, error) {
	hdr, ok := audioio.Inspect(path)
	if !ok {
		return nil, 0, 0, fmt.Errorf("cannot read wav header: %s", path)
	}
	sampleRate := hdr.SampleRate
	if sampleRate == 0 {
		return nil, 0, 0, fmt.Errorf("invalid sample rate")
	}
	frameSec := frameMs / 1000.0
	hopSec := hopMs / 1000.0
	frameLen := int(frameMs / 1000.0 * float64(sampleRate))
	hopLen := int(hopMs / 1000.0 * float64(sampleRate))
	if frameLen <= 0 || hopLen <= 0 {
		return nil, 0, 0, fmt.Errorf("invalid frame/hop length")
	}

	var series []float64
	totalFrames := hdr.TotalFrames
	for start := 0; start+frameLen <= totalFrames; start += hopLen {
		rms, ok := audioio.ComputeRMS(path, start, start+frameLen)
		if !ok {
			break
		}
		series = append(series, rms)
	}
	return series, frameSec, hopSec, nil
}

// smoothRMS applies a centered rectangular smoothing window of the
// given width (in frames).
func smoothRMS(series []float64, width int) []float64 {
	if width <= 1 {
		out := make([]float64, len(series))
		copy(out, series)
		return out
	}
	out := make([]float64, len(series))
	for i := range series {
		lo := i - (width-1)/2
		hi := lo + width - 1
		if lo < 0 {
			lo = 0
		}
		if hi >= len(series) {
			hi = len(series) - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += series[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

type run struct {
	value      bool
	start, end int // inclusive frame indices
}

func runLengthEncode(mask []bool) []run {
	var runs []run
	if len(mask) == 0 {
		return runs
	}
	cur := run{value: mask[0], start: 0}
	for i := 1; i < len(mask); i++ {
		if mask[i] != cur.value {
			cur.end = i - 1
			runs = append(runs, cur)
			cur = run{value: mask[i], start: i}
		}
	}
	cur.end = len(mask) - 1
	runs = append(runs, cur)
	return runs
}

func dropShortSpeechRuns(runs []run, hopSec, minSpeechSec float64) []run {
	out := make([]run, 0, len(runs))
	for _, r := range runs {
		if r.value && runDuration(r, hopSec) < minSpeechSec {
			out = append(out, run{value: false, start: r.start, end: r.end})
			continue
		}
		out = append(out, r)
	}
	return out
}

func flipShortSilenceRuns(runs []run, hopSec, minSilenceSec float64) []run {
	out := make([]run, 0, len(runs))
	for _, r := range runs {
		if !r.value && runDuration(r, hopSec) < minSilenceSec {
			out = append(out, run{value: true, start: r.start, end: r.end})
			continue
		}
		out = append(out, r)
	}
	return out
}

func mergeSameValueRuns(runs []run) []run {
	if len(runs) == 0 {
		return runs
	}
	out := make([]run, 0, len(runs))
	out = append(out, runs[0])
	for _, r := range runs[1:] {
		last := &out[len(out)-1]
		if last.value == r.value {
			last.end = r.end
			continue
		}
		out = append(out, r)
	}
	return out
}

func runDuration(r run, hopSec float64) float64 {
	return float64(r.end-r.start+1) * hopSec
}

func countTrue(mask []bool) int {
	n := 0
	for _, v := range mask {
		if v {
			n++
		}
	}
	return n
}

func ceilDiv(a, b float64) float64 {
	if b == 0 {
		return 1
	}
	v := a / b
	if v != float64(int(v)) {
		return float64(int(v)) + 1
	}
	return v
}
