package postprocess

import (
	"testing"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/intervals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iv(s, e float64) intervals.Interval { return intervals.Interval{Start: s, End: e} }

func TestRunEqualSplitTagsSplitFromLong(t *testing.T) {
	raw := []intervals.Interval{iv(0, 10)}
	res, err := Run(raw, 10, Params{PadSec: 0, MinSegSec: 0.5, MaxSegSec: 3})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 4)
	for _, out := range res.Outputs {
		assert.Contains(t, out.History, FlagSplitFromLong)
	}
}

func TestRunMinMergeTagsMergedShort(t *testing.T) {
	raw := []intervals.Interval{iv(0.0, 0.4), iv(0.6, 2.0)}
	res, err := Run(raw, 10, Params{PadSec: 0, MinSegSec: 1.0, MaxSegSec: 100})
	require.NoError(t, err)
	require.Len(t, res.Outputs, 1)
	assert.Contains(t, res.Outputs[0].History, FlagMergedShort)
	assert.InDelta(t, 0.0, res.Outputs[0].Interval.Start, 1e-9)
	assert.InDelta(t, 2.0, res.Outputs[0].Interval.End, 1e-9)
}

func TestRunRejectsInvertedBounds(t *testing.T) {
	_, err := Run([]intervals.Interval{iv(0, 10)}, 10, Params{MinSegSec: 2, MaxSegSec: 1})
	assert.Error(t, err)
}
