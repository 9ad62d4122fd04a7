// Package resolve turns a single CLI --in path into the list of jobs
// to run: a bare audio file, a workdir (a directory holding audio.wav
// plus an optional meta.json), a batch root (recursively scanned for
// audio.wav), or a manifest.jsonl produced by an upstream tool.
package resolve

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/audioio"
)

// Pattern is the filename resolve looks for when scanning a batch root.
const Pattern = "audio.wav"

// Job is one unit of work: audio path, optional metadata sidecar,
// resolved output directory, and a stable identifier.
type Job struct {
	ID        string
	InputType string // file | workdir | root | manifest
	Workdir   string
	AudioPath string
	MetaPath  string
	OutDir    string
	RelKey    string
	Warnings  []string
}

// Resolve dispatches on input's shape: a manifest.jsonl file, any
// other file (treated as a bare audio file), a directory holding
// audio.wav (a workdir), or a directory without it (a batch root).
func Resolve(input, outRoot, outMode string) ([]Job, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve: input path does not exist: %s", abs)
	}

	if info.IsDir() {
		if _, err := os.Stat(filepath.Join(abs, Pattern)); err == nil {
			return resolveWorkdir(abs, outRoot, outMode)
		}
		return resolveRoot(abs, outRoot, outMode)
	}

	if filepath.Base(abs) == "manifest.jsonl" {
		return resolveManifest(abs, outRoot, outMode)
	}
	return resolveSingleFile(abs, outRoot, outMode)
}

func resolveSingleFile(audioPath, outRoot, outMode string) ([]Job, error) {
	stem := stemOf(audioPath)
	outDir := filepath.Join(outRoot, audioio.SanitizePathComponent(stem), "seg")
	job := Job{
		ID:        "job_" + audioio.StableHash(audioPath),
		InputType: "file",
		AudioPath: audioPath,
		OutDir:    outDir,
		RelKey:    stem,
	}
	return []Job{job}, nil
}

func resolveWorkdir(workdir, outRoot, outMode string) ([]Job, error) {
	audioPath := filepath.Join(workdir, "audio.wav")
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("resolve: workdir missing audio.wav: %s", workdir)
	}
	metaPath := filepath.Join(workdir, "meta.json")
	var warnings []string
	if _, err := os.Stat(metaPath); err != nil {
		metaPath = ""
		warnings = append(warnings, "meta.json does not exist")
	}

	outDir := filepath.Join(workdir, "seg")
	if outMode != "in_place" {
		outDir = filepath.Join(outRoot, audioio.SanitizePathComponent(filepath.Base(workdir)), "seg")
	}

	job := Job{
		ID:        "job_" + audioio.StableHash(workdir),
		InputType: "workdir",
		Workdir:   workdir,
		AudioPath: audioPath,
		MetaPath:  metaPath,
		OutDir:    outDir,
		RelKey:    filepath.Base(workdir),
		Warnings:  warnings,
	}
	return []Job{job}, nil
}

func resolveRoot(root, outRoot, outMode string) ([]Job, error) {
	var audioFiles []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Base(path) == Pattern {
			audioFiles = append(audioFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve: scanning %s: %w", root, err)
	}
	sort.Strings(audioFiles)

	var jobs []Job
	for _, audioPath := range audioFiles {
		parent := filepath.Dir(audioPath)
		workdir := parent

		metaPath := ""
		if _, err := os.Stat(filepath.Join(workdir, "meta.json")); err == nil {
			metaPath = filepath.Join(workdir, "meta.json")
		}

		relKey, err := filepath.Rel(root, parent)
		if err != nil || relKey == "." || relKey == "" {
			relKey = stemOf(audioPath)
		}

		outDir := filepath.Join(outRoot, audioio.SanitizePathComponent(relKey), "seg")
		if outMode == "in_place" {
			outDir = filepath.Join(workdir, "seg")
		}

		var warnings []string
		if metaPath == "" {
			warnings = append(warnings, "meta.json does not exist")
		}

		jobs = append(jobs, Job{
			ID:        "job_" + audioio.StableHash(audioPath),
			InputType: "workdir",
			Workdir:   workdir,
			AudioPath: audioPath,
			MetaPath:  metaPath,
			OutDir:    outDir,
			RelKey:    relKey,
			Warnings:  warnings,
		})
	}
	return jobs, nil
}

func resolveManifest(manifestPath, outRoot, outMode string) ([]Job, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	defer f.Close()

	var jobs []Job
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			continue // malformed lines are skipped, not fatal
		}
		if !manifestLineSucceeded(obj) {
			continue
		}

		workdir := extractWorkdir(obj)
		audioPath := extractAudioPath(obj, workdir)
		if audioPath == "" {
			continue
		}
		if _, err := os.Stat(audioPath); err != nil {
			continue
		}
		audioPath, _ = filepath.Abs(audioPath)

		metaPath := extractMetaPath(obj, workdir)
		if metaPath != "" {
			if _, err := os.Stat(metaPath); err != nil {
				metaPath = ""
			}
		}

		var relKey, jobID string
		var warnings []string
		if workdir != "" {
			relKey = filepath.Base(workdir)
			jobID = "job_" + audioio.StableHash(workdir)
		} else {
			relKey = stemOf(audioPath)
			jobID = "job_" + audioio.StableHash(audioPath)
			warnings = append(warnings, "could not resolve a workdir, using the audio file name as key")
		}

		outDir := filepath.Join(outRoot, audioio.SanitizePathComponent(relKey), "seg")
		if outMode == "in_place" && workdir != "" {
			outDir = filepath.Join(workdir, "seg")
		}
		if metaPath == "" && workdir != "" {
			warnings = append(warnings, "meta.json does not exist")
		}

		jobs = append(jobs, Job{
			ID:        jobID,
			InputType: "manifest",
			Workdir:   workdir,
			AudioPath: audioPath,
			MetaPath:  metaPath,
			OutDir:    outDir,
			RelKey:    relKey,
			Warnings:  warnings,
		})
	}
	return jobs, nil
}

// manifestLineSucceeded mirrors the three-tier success check: an
// explicit status string, an explicit ok boolean, or (absent both) a
// non-empty error field marking failure.
func manifestLineSucceeded(obj map[string]any) bool {
	if status, ok := obj["status"]; ok {
		s := strings.ToLower(fmt.Sprint(status))
		return s == "success" || s == "ok" || s == "done"
	}
	if ok, present := obj["ok"]; present {
		b, _ := ok.(bool)
		return b
	}
	if errVal, ok := obj["error"]; ok {
		if s, ok := errVal.(string); ok && s != "" {
			return false
		}
	}
	return true
}

func extractWorkdir(obj map[string]any) string {
	if out, ok := obj["output"].(map[string]any); ok {
		if v, ok := out["workdir"].(string); ok {
			return v
		}
		if v, ok := out["dir"].(string); ok {
			return v
		}
	}
	if v, ok := obj["workdir"].(string); ok {
		return v
	}
	if v, ok := obj["output_dir"].(string); ok {
		return v
	}
	return ""
}

func extractAudioPath(obj map[string]any, workdir string) string {
	if out, ok := obj["output"].(map[string]any); ok {
		if v, ok := out["audio_wav"].(string); ok {
			return v
		}
		if v, ok := out["audio_path"].(string); ok {
			return v
		}
	}
	if v, ok := obj["audio_wav"].(string); ok {
		return v
	}
	if v, ok := obj["audio_path"].(string); ok {
		return v
	}
	if workdir != "" {
		return filepath.Join(workdir, "audio.wav")
	}
	return ""
}

func extractMetaPath(obj map[string]any, workdir string) string {
	if out, ok := obj["output"].(map[string]any); ok {
		if v, ok := out["meta_json"].(string); ok {
			return v
		}
		if v, ok := out["meta_json_path"].(string); ok {
			return v
		}
	}
	if v, ok := obj["meta_json_path"].(string); ok {
		return v
	}
	if workdir != "" {
		return filepath.Join(workdir, "meta.json")
	}
	return ""
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
