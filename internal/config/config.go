// Package config defines the effective configuration tree, its
// built-in defaults, JSON/YAML file loading, dotted-path overrides, and
// the canonical-JSON hash used for reproducibility.
package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type AutoStrategy struct {
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	Order             []string `json:"order" yaml:"order"`
	MinSegments       int      `json:"min_segments" yaml:"min_segments"`
	MinSpeechTotalSec float64  `json:"min_speech_total_sec" yaml:"min_speech_total_sec"`
	MaxSpeechRatio    float64  `json:"max_speech_ratio" yaml:"max_speech_ratio"`
}

type StrategySection struct {
	Name string       `json:"name" yaml:"name"`
	Auto AutoStrategy `json:"auto" yaml:"auto"`
}

type SilenceSection struct {
	ThresholdDB   float64 `json:"threshold_db" yaml:"threshold_db"`
	MinSilenceSec float64 `json:"min_silence_sec" yaml:"min_silence_sec"`
}

type EnergySection struct {
	ThresholdRMS float64 `json:"threshold_rms" yaml:"threshold_rms"`
	FrameMs      float64 `json:"frame_ms" yaml:"frame_ms"`
	HopMs        float64 `json:"hop_ms" yaml:"hop_ms"`
	SmoothMs     float64 `json:"smooth_ms" yaml:"smooth_ms"`
	MinSpeechSec float64 `json:"min_speech_sec" yaml:"min_speech_sec"`
}

type VADSection struct {
	Aggressiveness int     `json:"aggressiveness" yaml:"aggressiveness"`
	FrameMs        int     `json:"frame_ms" yaml:"frame_ms"`
	SampleRate     int     `json:"sample_rate" yaml:"sample_rate"`
	MinSpeechSec   float64 `json:"min_speech_sec" yaml:"min_speech_sec"`
}

type PostprocessSection struct {
	MinSegSec float64 `json:"min_seg_sec" yaml:"min_seg_sec"`
	MaxSegSec float64 `json:"max_seg_sec" yaml:"max_seg_sec"`
	PadSec    float64 `json:"pad_sec" yaml:"pad_sec"`
}

type ExportsSection struct {
	Timeline  bool    `json:"timeline" yaml:"timeline"`
	CSV       bool    `json:"csv" yaml:"csv"`
	Mask      string  `json:"mask" yaml:"mask"`
	MaskBinMs float64 `json:"mask_bin_ms" yaml:"mask_bin_ms"`
}

type RuntimeSection struct {
	Jobs      int    `json:"jobs" yaml:"jobs"`
	Overwrite bool   `json:"overwrite" yaml:"overwrite"`
	OutMode   string `json:"out_mode" yaml:"out_mode"`
}

type ValidateSection struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Strict  bool `json:"strict" yaml:"strict"`
}

// Config is the full effective configuration tree, identical in shape
// whether loaded from JSON or YAML.
type Config struct {
	Strategy    StrategySection    `json:"strategy" yaml:"strategy"`
	Silence     SilenceSection     `json:"silence" yaml:"silence"`
	Energy      EnergySection      `json:"energy" yaml:"energy"`
	VAD         VADSection         `json:"vad" yaml:"vad"`
	Postprocess PostprocessSection `json:"postprocess" yaml:"postprocess"`
	Exports     ExportsSection     `json:"exports" yaml:"exports"`
	Runtime     RuntimeSection     `json:"runtime" yaml:"runtime"`
	Validate    ValidateSection    `json:"validate" yaml:"validate"`
}

// LowEnergyRMSThreshold has no CLI surface of its own in the distilled
// core but is carried here as the single place its default lives.
const LowEnergyRMSThreshold = 0.01

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		Strategy: StrategySection{
			Name: "silence",
			Auto: AutoStrategy{
				Enabled:           false,
				Order:             []string{"silence", "vad", "energy"},
				MinSegments:       2,
				MinSpeechTotalSec: 3.0,
				MaxSpeechRatio:    0.9,
			},
		},
		Silence: SilenceSection{ThresholdDB: -35.0, MinSilenceSec: 0.35},
		Energy: EnergySection{
			ThresholdRMS: 0.02, FrameMs: 30.0, HopMs: 10.0, SmoothMs: 100.0, MinSpeechSec: 0.20,
		},
		VAD: VADSection{Aggressiveness: 2, FrameMs: 30, SampleRate: 16000, MinSpeechSec: 0.20},
		Postprocess: PostprocessSection{
			MinSegSec: 1.0, MaxSegSec: 30.0, PadSec: 0.1,
		},
		Exports:  ExportsSection{Timeline: false, CSV: false, Mask: "none", MaskBinMs: 50.0},
		Runtime:  RuntimeSection{Jobs: 1, Overwrite: false, OutMode: "in_place"},
		Validate: ValidateSection{Enabled: false, Strict: false},
	}
}

// Load reads a JSON or YAML config file, dispatching on extension.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var out map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("config: invalid json in %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("config: invalid yaml in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported config format %q (supports .json, .yaml, .yml)", filepath.Ext(path))
	}
	return out, nil
}

// Merge deep-merges defaults < file < overrides (dotted key paths,
// auto-typed: true/false -> bool, integer literal -> int, else float
// attempt, else string) and returns the result as a generic map ready
// for re-decoding into Config.
func Merge(defaults Config, file map[string]any, overrides map[string]string) map[string]any {
	base := toGenericMap(defaults)
	if file != nil {
		deepMerge(base, file)
	}
	for keyPath, raw := range overrides {
		setNestedValue(base, keyPath, autoType(raw))
	}
	return base
}

// Decode converts a merged generic map back into a typed Config via a
// JSON round-trip, which is sufficient since both directions share the
// same struct tags.
func Decode(merged map[string]any) (Config, error) {
	buf, err := json.Marshal(merged)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func toGenericMap(cfg Config) map[string]any {
	buf, _ := json.Marshal(cfg)
	var out map[string]any
	_ = json.Unmarshal(buf, &out)
	return out
}

func deepMerge(base, override map[string]any) {
	for k, v := range override {
		if bv, ok := base[k]; ok {
			if bm, ok1 := bv.(map[string]any); ok1 {
				if om, ok2 := v.(map[string]any); ok2 {
					deepMerge(bm, om)
					continue
				}
			}
		}
		base[k] = v
	}
}

func setNestedValue(m map[string]any, keyPath string, value any) {
	parts := strings.Split(keyPath, ".")
	cur := m
	for _, k := range parts[:len(parts)-1] {
		next, ok := cur[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[k] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

func autoType(v string) any {
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// Hash computes a stable SHA-256 hex digest over cfg's canonical JSON
// (sorted keys, compact separators) for embedding in reports/manifests.
func Hash(cfg Config) (string, error) {
	generic := toGenericMap(cfg)
	canonical, err := canonicalJSON(generic)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON renders v with recursively sorted object keys and no
// insignificant whitespace, matching the original's
// json.dumps(sort_keys=True, separators=(",", ":")).
func canonicalJSON(v any) ([]byte, error) {
	sorted := sortKeysRecursive(v)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(sorted); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func sortKeysRecursive(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(orderedMap, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, kv{k, sortKeysRecursive(t[k])})
		}
		return ordered
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = sortKeysRecursive(e)
		}
		return out
	default:
		return v
	}
}

type kv struct {
	Key string
	Val any
}

// orderedMap marshals as a JSON object preserving insertion order,
// which sortKeysRecursive has already sorted lexicographically.
type orderedMap []kv

func (m orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(e.Val)
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
