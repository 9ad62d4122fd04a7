package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeDeepMergesFileOverDefaultsAndOverridesOverFile(t *testing.T) {
	defaults := Default()
	file := map[string]any{
		"silence": map[string]any{"threshold_db": -40.0},
		"energy":  map[string]any{"frame_ms": 25.0},
	}
	overrides := map[string]string{
		"silence.threshold_db": "-20",
		"runtime.jobs":         "4",
	}
	merged := Merge(defaults, file, overrides)
	cfg, err := Decode(merged)
	require.NoError(t, err)

	// --set wins over the config file for the key both touch.
	assert.Equal(t, -20.0, cfg.Silence.ThresholdDB)
	// the file's untouched sibling value survives the merge.
	assert.Equal(t, 25.0, cfg.Energy.FrameMs)
	// the override-only key lands correctly.
	assert.Equal(t, 4, cfg.Runtime.Jobs)
	// everything neither file nor override touched still matches defaults.
	assert.Equal(t, defaults.Energy.HopMs, cfg.Energy.HopMs)
	assert.Equal(t, defaults.Strategy.Auto.Order, cfg.Strategy.Auto.Order)
}

func TestMergeWithNilFileKeepsDefaults(t *testing.T) {
	merged := Merge(Default(), nil, nil)
	cfg, err := Decode(merged)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestAutoTypeConvertsSetOverrideValues(t *testing.T) {
	assert.Equal(t, true, autoType("true"))
	assert.Equal(t, false, autoType("FALSE"))
	assert.Equal(t, 4, autoType("4"))
	assert.Equal(t, -35.5, autoType("-35.5"))
	assert.Equal(t, "energy", autoType("energy"))
}

func TestSetNestedValueCreatesIntermediateMaps(t *testing.T) {
	m := map[string]any{}
	setNestedValue(m, "strategy.auto.enabled", true)
	inner, ok := m["strategy"].(map[string]any)
	require.True(t, ok)
	inner2, ok := inner["auto"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, inner2["enabled"])
}

func TestHashIsStableAcrossEqualConfigsAndChangesWithContent(t *testing.T) {
	a := Default()
	b := Default()
	hashA, err := Hash(a)
	require.NoError(t, err)
	hashB, err := Hash(b)
	require.NoError(t, err)
	assert.Equal(t, hashA, hashB)

	b.Silence.ThresholdDB = -10
	hashC, err := Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashC)
}

func TestCanonicalJSONSortsKeysRecursively(t *testing.T) {
	v := map[string]any{
		"b": 1,
		"a": map[string]any{"z": 1, "y": 2},
	}
	buf, err := canonicalJSON(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"y":2,"z":1},"b":1}`, string(buf))
}

func TestLoadRejectsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`strategy = "energy"`), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
