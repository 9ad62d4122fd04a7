package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/config"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/logging"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/pipeline"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/report"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/resolve"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/runner"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/segerr"
	"github.com/alalapi-0/onepass-audioclean-seg/internal/validate"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
)

func runSegment(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("segment", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	in := fs.String("in", "", "input file, workdir, batch root, or manifest.jsonl")
	out := fs.String("out", "", "output root directory")
	strategyName := fs.String("strategy", "", "silence | energy | vad (overrides config)")
	analyzeOnly := fs.Bool("analyze", false, "run analysis and postprocess but do not emit segments")
	emitSegments := fs.Bool("emit-segments", true, "write segments.jsonl")
	dryRun := fs.Bool("dry-run", false, "resolve jobs and write report shells without analyzing")
	outMode := fs.String("out-mode", "", "in_place | out_root (overrides config)")
	_ = fs.String("pattern", resolve.Pattern, "accepted but not applied: a batch-root scan always matches audio.wav")
	configPath := fs.String("config", "", "JSON or YAML config file")
	setOverrides := fs.StringArray("set", nil, "dotted.key=value override, repeatable")
	autoStrategy := fs.Bool("auto-strategy", false, "enable the auto-strategy fallback controller")
	validateOutput := fs.Bool("validate-output", false, "validate segments.jsonl after writing")
	dumpEffectiveConfig := fs.Bool("dump-effective-config", false, "print the merged config as JSON and exit")
	_ = fs.Bool("emit-wav", false, "extract per-segment WAV clips (not implemented by the batch pipeline)")
	overwrite := fs.Bool("overwrite", false, "overwrite existing job output directories")
	jobs := fs.Int("jobs", 0, "max concurrent jobs (overrides config)")
	detectorBin := fs.String("detector-bin", "ffmpeg", "silence-detector binary")
	probeBin := fs.String("probe-bin", "ffprobe", "duration-probe binary")
	resamplerBin := fs.String("resampler-bin", "ffmpeg", "PCM resampler binary")
	verbose := fs.Bool("verbose", false, "debug-level logging")
	jsonLog := fs.Bool("json-log", false, "emit logs as JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(stderr, "segment: %v\n", err)
		return ExitInvalidArgs
	}

	logger := logging.Configure(logging.Options{Verbose: *verbose, JSON: *jsonLog, Output: stderr})

	if *analyzeOnly && *dryRun {
		fmt.Fprintln(stderr, "segment: --analyze and --dry-run are mutually exclusive")
		return ExitInvalidArgs
	}
	if *in == "" || (*out == "" && !*dumpEffectiveConfig) {
		fmt.Fprintln(stderr, "segment: --in and --out are required")
		return ExitInvalidArgs
	}

	overrides := map[string]string{}
	for _, kv := range *setOverrides {
		key, val, ok := splitSetFlag(kv)
		if !ok {
			fmt.Fprintf(stderr, "segment: malformed --set %q, expected key.path=value\n", kv)
			return ExitInvalidArgs
		}
		overrides[key] = val
	}

	var fileConfig map[string]any
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "segment: %v\n", err)
			return ExitInvalidArgs
		}
		fileConfig = loaded
	}

	merged := config.Merge(config.Default(), fileConfig, overrides)
	cfg, err := config.Decode(merged)
	if err != nil {
		fmt.Fprintf(stderr, "segment: invalid effective config: %v\n", err)
		return ExitInvalidArgs
	}

	if fs.Changed("strategy") {
		cfg.Strategy.Name = *strategyName
	}
	if fs.Changed("out-mode") {
		cfg.Runtime.OutMode = *outMode
	}
	if fs.Changed("jobs") {
		cfg.Runtime.Jobs = *jobs
	}
	if fs.Changed("overwrite") {
		cfg.Runtime.Overwrite = *overwrite
	}
	if fs.Changed("auto-strategy") {
		cfg.Strategy.Auto.Enabled = *autoStrategy
	}
	if *dumpEffectiveConfig {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(cfg)
		return ExitSuccess
	}

	if cfg.Postprocess.MaxSegSec < cfg.Postprocess.MinSegSec {
		fmt.Fprintln(stderr, "segment: max_seg_sec must be >= min_seg_sec")
		return ExitInvalidArgs
	}
	if cfg.Postprocess.PadSec < 0 {
		fmt.Fprintln(stderr, "segment: pad_sec must be >= 0")
		return ExitInvalidArgs
	}
	switch cfg.Strategy.Name {
	case "silence", "energy", "vad":
	default:
		fmt.Fprintf(stderr, "segment: unknown strategy %q\n", cfg.Strategy.Name)
		return ExitInvalidArgs
	}

	outMode2 := cfg.Runtime.OutMode
	if outMode2 == "" {
		outMode2 = "in_place"
	}
	jobList, err := resolve.Resolve(*in, *out, outMode2)
	if err != nil {
		fmt.Fprintf(stderr, "segment: %v\n", err)
		return ExitInvalidArgs
	}
	if len(jobList) == 0 {
		fmt.Fprintln(stderr, "segment: no jobs resolved from --in")
		return ExitInvalidArgs
	}

	for _, j := range jobList {
		if err := os.MkdirAll(j.OutDir, 0o755); err != nil {
			fmt.Fprintf(stderr, "segment: creating %s: %v\n", j.OutDir, err)
			return ExitInvalidArgs
		}
	}

	startedAt := time.Now().UTC()
	opts := pipeline.Options{
		Config: cfg, DetectorBin: *detectorBin, ProbeBin: *probeBin, ResamplerBin: *resamplerBin,
		EmitSegments: *emitSegments && !*analyzeOnly, DryRun: *dryRun, Overwrite: cfg.Runtime.Overwrite,
	}

	ctx := context.Background()
	outcomes := runner.Run(ctx, len(jobList), cfg.Runtime.Jobs, func(ctx context.Context, i int) (any, error) {
		return pipeline.RunJob(ctx, jobList[i], opts)
	})

	counts := report.Counts{JobsTotal: len(jobList), Planned: len(jobList)}
	var totals report.Totals
	var failures []report.Failure
	var jobRows []report.JobRow
	exitCode := ExitSuccess

	for i, oc := range outcomes {
		j := jobList[i]
		if oc.Err != nil {
			counts.Failed++
			failures = append(failures, report.Failure{JobID: j.ID, Error: oc.Err.Error()})
			jobRows = append(jobRows, report.JobRow{JobID: j.ID, AudioPath: j.AudioPath, OutDir: j.OutDir, Status: "failed"})
			logger.Error("job failed", slog.String("job_id", j.ID), slog.String("error", oc.Err.Error()))
			if code := segerr.KindOf(oc.Err).ExitCode(); exitCode < code {
				exitCode = code
			}
			continue
		}
		counts.Analyzed++
		result, _ := oc.Value.(pipeline.Result)
		if opts.EmitSegments {
			counts.Emitted++
		}
		segCount := len(result.Records)
		jobRows = append(jobRows, report.JobRow{
			JobID: j.ID, AudioPath: j.AudioPath, OutDir: j.OutDir, Status: "ok",
			ChosenStrategy: result.ChosenStrategy, SegmentsCount: &segCount, WarningsCount: len(result.Warnings),
		})
		for _, r := range result.Records {
			totals.SpeechTotalSec += r.DurationSec
		}

		if *validateOutput && opts.EmitSegments {
			segmentsPath := filepath.Join(j.OutDir, "segments.jsonl")
			reportPath := report.JobOutputDir(j.OutDir)
			vr := validate.File(segmentsPath, reportPath, cfg.Validate.Strict)
			if !vr.OK {
				logger.Warn("validate-output found violations", slog.String("job_id", j.ID), slog.Any("errors", vr.Errors))
				if exitCode < ExitInvalidArgs {
					exitCode = ExitInvalidArgs
				}
			}
		}
	}

	runSummary := report.RunSummary{
		RunID: uuid.NewString(), StartedAt: startedAt.Format(time.RFC3339),
		FinishedAt: time.Now().UTC().Format(time.RFC3339), CLIArgs: args, Counts: counts, Totals: totals,
		Failures: failures, DryRun: *dryRun,
	}
	if err := runSummary.Write(filepath.Join(*out, "run_summary.json")); err != nil {
		logger.Error("writing run_summary.json", slog.String("error", err.Error()))
	}

	manifest := report.RunManifest{
		Tool: report.ToolName, Version: report.ToolVersion, StartedAt: runSummary.StartedAt, FinishedAt: runSummary.FinishedAt,
		Command: append([]string{"segment"}, args...), Config: configToMap(cfg),
		Environment: report.EnvironmentFingerprint{LanguageRuntimeVersion: goVersion(), Platform: platformString()},
		Jobs: jobRows,
	}
	if err := manifest.Write(filepath.Join(*out, "run_manifest.json")); err != nil {
		logger.Error("writing run_manifest.json", slog.String("error", err.Error()))
	}

	return exitCode
}

func splitSetFlag(kv string) (key, value string, ok bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

func configToMap(cfg config.Config) map[string]any {
	buf, _ := json.Marshal(cfg)
	var out map[string]any
	_ = json.Unmarshal(buf, &out)
	return out
}
