// Package pipeline wires one resolved job through strategy analysis,
// postprocessing, segment building, and report writing. It is the
// glue the CLI layer calls once per job; RunJob carries no global
// state so it can run concurrently across jobs under the runner
// package's worker pool.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/atomicfile"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/audioio"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/config"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/export"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/postprocess"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/report"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/resolve"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/segerr"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/segment"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/strategy"
)

// Options bundles the external-tool bindings and run-level switches a
// job needs; built once per invocation from CLI flags and config.
type Options struct {
	Config        config.Config
	DetectorBin   string
	ProbeBin      string
	ResamplerBin  string
	VADFactory    strategy.ClassifierFactory
	ForceStrategy string // overrides Config.Strategy.Name when non-empty
	EmitSegments  bool
	DryRun        bool
	Overwrite     bool
}

// Result is one job's outcome.
type Result struct {
	Job            resolve.Job
	ChosenStrategy string
	Records        []segment.Record
	Report         report.JobReport
	Attempts       []strategy.Attempt
	Warnings       []string
}

// RunJob executes the full pipeline for one resolved job.
func RunJob(ctx context.Context, job resolve.Job, opts Options) (Result, error) {
	cfg := opts.Config
	configHash, err := config.Hash(cfg)
	if err != nil {
		return Result{}, segerr.Wrap(segerr.KindConfigError, "config hash", err)
	}

	duration, ok := audioio.Duration(ctx, job.AudioPath, job.MetaPath, opts.ProbeBin)
	if !ok {
		return Result{}, segerr.New(segerr.KindInputNotFound, fmt.Sprintf("could not determine duration for %s", job.AudioPath))
	}
	fingerprint, _ := audioio.Fingerprint(job.AudioPath)

	jobReport := report.NewJobReport(job.ID, job.AudioPath, job.MetaPath, configHash, paramsSnapshot(cfg), time.Now())
	jobReport.Fingerprint = fingerprint

	reportPath := report.JobOutputDir(job.OutDir)
	if opts.DryRun {
		if err := jobReport.Write(reportPath); err != nil {
			return Result{}, segerr.Wrap(segerr.KindRuntimeProcessing, "writing dry-run report", err)
		}
		return Result{Job: job, Report: jobReport}, nil
	}

	registry := strategy.NewRegistry(opts.DetectorBin, opts.ResamplerBin, opts.VADFactory)
	sjob := strategy.Job{ID: job.ID, AudioPath: job.AudioPath, MetaPath: job.MetaPath, OutDir: job.OutDir}

	strategyName := cfg.Strategy.Name
	if opts.ForceStrategy != "" {
		strategyName = opts.ForceStrategy
	}

	ppParams := postprocess.Params{
		PadSec: cfg.Postprocess.PadSec, MinSegSec: cfg.Postprocess.MinSegSec,
		MaxSegSec: cfg.Postprocess.MaxSegSec, LowEnergyThreshold: config.LowEnergyRMSThreshold,
	}
	ppFunc := func(res strategy.Result) (int, float64, error) {
		out, err := postprocess.Run(res.SpeechSegmentsRaw, res.DurationSec, ppParams)
		if err != nil {
			return 0, 0, err
		}
		var total float64
		for _, o := range out.Outputs {
			total += o.Interval.Duration()
		}
		return len(out.Outputs), total, nil
	}

	var analyzed strategy.Result
	var attempts []strategy.Attempt
	var autoSection *report.AutoStrategySection

	if cfg.Strategy.Auto.Enabled {
		gate := strategy.QualityGate{
			MinSegments: cfg.Strategy.Auto.MinSegments, MinSpeechTotalSec: cfg.Strategy.Auto.MinSpeechTotalSec,
			MaxSpeechRatio: cfg.Strategy.Auto.MaxSpeechRatio,
		}
		res, att, err := registry.RunAuto(ctx, cfg.Strategy.Auto.Order, sjob, allParams(cfg, duration), gate, ppFunc)
		attempts = att
		chosen := ""
		if err == nil {
			chosen = res.Strategy
		}
		rows := make([]report.AttemptRow, len(att))
		for i, a := range att {
			rows[i] = report.AttemptRow{Strategy: a.Strategy, Reason: string(a.Reason)}
		}
		autoSection = &report.AutoStrategySection{Enabled: true, Order: cfg.Strategy.Auto.Order, Chosen: chosen, Attempts: rows}
		if err != nil {
			jobReport.AutoStrategy = autoSection
			_ = jobReport.Write(reportPath)
			kind := segerr.KindRuntimeProcessing
			allMissingDependency := len(att) > 0
			for _, a := range att {
				if a.Reason != strategy.ReasonMissingDependency {
					allMissingDependency = false
					break
				}
			}
			if allMissingDependency {
				kind = segerr.KindDependencyMissing
			}
			msg := fmt.Sprintf("auto-strategy exhausted all candidates for %s", job.AudioPath)
			return Result{Job: job, Report: jobReport, Attempts: attempts}, segerr.Wrap(kind, msg, err)
		}
		analyzed = res
	} else {
		res, err := registry.RunSingle(ctx, strategyName, sjob, allParams(cfg, duration))
		if err != nil {
			kind := segerr.KindRuntimeProcessing
			if errors.Is(err, strategy.ErrMissingDetector) || errors.Is(err, strategy.ErrMissingVADLibrary) {
				kind = segerr.KindDependencyMissing
			}
			return Result{Job: job, Report: jobReport}, segerr.Wrap(kind, "analyze failed", err)
		}
		analyzed = res
	}

	jobReport.Analysis = map[string]any{analyzed.Strategy: analyzed.Stats}

	ppOut, err := postprocess.Run(analyzed.SpeechSegmentsRaw, analyzed.DurationSec, ppParams)
	if err != nil {
		return Result{Job: job, Report: jobReport}, segerr.Wrap(segerr.KindRuntimeProcessing, "postprocess failed", err)
	}
	// Open question (see DESIGN.md): whether an isolated short segment
	// dropped for lack of a merge neighbor should fail the job rather
	// than just warn. validate.strict is the flag that decides it.
	if cfg.Validate.Strict {
		for _, w := range ppOut.Warnings {
			if strings.Contains(w, "isolated short segment dropped") {
				jobReport.Segments = &report.SegmentsSection{Strategy: analyzed.Strategy, Warnings: ppOut.Warnings}
				_ = jobReport.Write(reportPath)
				return Result{Job: job, Report: jobReport, Warnings: ppOut.Warnings}, segerr.New(segerr.KindValidationError, fmt.Sprintf("strict mode: %s", w))
			}
		}
	}

	builder := segment.Builder{
		SourceAudio: job.AudioPath, StrategyName: analyzed.Strategy, AutoChosen: cfg.Strategy.Auto.Enabled,
		DurationSec: analyzed.DurationSec, NonspeechSegments: analyzed.NonspeechSegments,
		LowEnergyThreshold: config.LowEnergyRMSThreshold,
	}
	records, segWarnings := builder.Build(ppOut.Outputs)

	var speechTotal float64
	for _, r := range records {
		speechTotal += r.DurationSec
	}

	segmentsPath := ""
	if opts.EmitSegments {
		segmentsPath = filepath.Join(job.OutDir, "segments.jsonl")
		if err := writeSegmentsJSONL(segmentsPath, records); err != nil {
			return Result{Job: job, Report: jobReport}, segerr.Wrap(segerr.KindRuntimeProcessing, "writing segments.jsonl", err)
		}
	}

	jobReport.Segments = &report.SegmentsSection{
		Count: len(records), SpeechTotalSec: speechTotal,
		MinSegSec: cfg.Postprocess.MinSegSec, MaxSegSec: cfg.Postprocess.MaxSegSec, PadSec: cfg.Postprocess.PadSec,
		Strategy: analyzed.Strategy, Outputs: report.Outputs{SegmentsJSONL: segmentsPath},
		Warnings: append(append([]string{}, analyzed.Warnings...), append(ppOut.Warnings, segWarnings...)...),
	}
	jobReport.AutoStrategy = autoSection

	if err := jobReport.Write(reportPath); err != nil {
		return Result{Job: job, Report: jobReport}, segerr.Wrap(segerr.KindRuntimeProcessing, "writing report", err)
	}

	if cfg.Exports.Timeline {
		if _, err := export.WriteTimeline(job.OutDir, records, job.AudioPath, analyzed.DurationSec, analyzed.Strategy, nil, paramsSnapshot(cfg)); err != nil {
			jobReport.Segments.Warnings = append(jobReport.Segments.Warnings, "timeline export failed: "+err.Error())
		}
	}
	if cfg.Exports.CSV {
		if _, err := export.WriteSegmentsCSV(job.OutDir, records); err != nil {
			jobReport.Segments.Warnings = append(jobReport.Segments.Warnings, "csv export failed: "+err.Error())
		}
	}
	if cfg.Exports.Mask != "none" {
		if _, err := export.WriteMask(job.OutDir, analyzed.DurationSec, cfg.Exports.MaskBinMs, analyzed.Strategy, records); err != nil {
			jobReport.Segments.Warnings = append(jobReport.Segments.Warnings, "mask export failed: "+err.Error())
		}
	}

	return Result{
		Job: job, ChosenStrategy: analyzed.Strategy, Records: records, Report: jobReport, Attempts: attempts,
		Warnings: jobReport.Segments.Warnings,
	}, nil
}

func writeSegmentsJSONL(path string, records []segment.Record) error {
	var buf []byte
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return err
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return atomicfile.Write(path, buf)
}

// allParams flattens every strategy section's tunables into one map.
// Each Strategy.Analyze implementation only reads the keys it
// recognizes (falling back to its own defaults otherwise), so a single
// merged map can serve any candidate the auto-strategy order tries.
func allParams(cfg config.Config, durationSec float64) map[string]any {
	return map[string]any{
		"duration_sec":    durationSec,
		"threshold_db":    cfg.Silence.ThresholdDB,
		"min_silence_sec": cfg.Silence.MinSilenceSec,
		"threshold_rms":    cfg.Energy.ThresholdRMS,
		"energy.frame_ms":  cfg.Energy.FrameMs,
		"vad.frame_ms":     cfg.VAD.FrameMs,
		"hop_ms":           cfg.Energy.HopMs,
		"smooth_ms":        cfg.Energy.SmoothMs,
		"min_speech_sec":   cfg.Energy.MinSpeechSec,
		"vad.min_speech_sec": cfg.VAD.MinSpeechSec,
		"aggressiveness":   cfg.VAD.Aggressiveness,
		"sample_rate":      cfg.VAD.SampleRate,
	}
}

func paramsSnapshot(cfg config.Config) map[string]any {
	buf, _ := json.Marshal(cfg)
	var out map[string]any
	_ = json.Unmarshal(buf, &out)
	return out
}
