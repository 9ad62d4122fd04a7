package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSilenceDetectOutputBasicPairs(t *testing.T) {
	text := "silence_start: 1.0\nsilence_end: 2.5 | silence_duration: 1.5\n" +
		"silence_start: 5.0\nsilence_end: 6.0 | silence_duration: 1.0\n"
	out := parseSilenceDetectOutput(text, 10)
	want := []silenceInterval{{Start: 1.0, End: 2.5}, {Start: 5.0, End: 6.0}}
	assert.Equal(t, want, out)
}

func TestParseSilenceDetectOutputStraySecondStartDiscardsPending(t *testing.T) {
	// Two consecutive starts with no end in between: the first is
	// discarded, only the second's eventual end is kept.
	text := "silence_start: 1.0\nsilence_start: 3.0\nsilence_end: 4.0\n"
	out := parseSilenceDetectOutput(text, 10)
	assert.Equal(t, []silenceInterval{{Start: 3.0, End: 4.0}}, out)
}

func TestParseSilenceDetectOutputStrayEndIsIgnored(t *testing.T) {
	// An end with no pending start is dropped; a later well-formed pair
	// still parses.
	text := "silence_end: 2.0\nsilence_start: 5.0\nsilence_end: 6.0\n"
	out := parseSilenceDetectOutput(text, 10)
	assert.Equal(t, []silenceInterval{{Start: 5.0, End: 6.0}}, out)
}

func TestParseSilenceDetectOutputTrailingPendingStartClosesAtDuration(t *testing.T) {
	text := "silence_start: 8.0\n"
	out := parseSilenceDetectOutput(text, 10)
	assert.Equal(t, []silenceInterval{{Start: 8.0, End: 10.0}}, out)
}

func TestParseSilenceDetectOutputTrailingPendingStartDroppedWithoutKnownDuration(t *testing.T) {
	text := "silence_start: 8.0\n"
	out := parseSilenceDetectOutput(text, 0)
	assert.Empty(t, out)
}

func TestParseSilenceDetectOutputClampsToDurationAndDropsEmpty(t *testing.T) {
	// A silence reported past the known duration is clamped; one that
	// collapses to zero width after clamping is dropped.
	text := "silence_start: 9.5\nsilence_end: 20.0\nsilence_start: 10.0\nsilence_end: 10.0\n"
	out := parseSilenceDetectOutput(text, 10)
	assert.Equal(t, []silenceInterval{{Start: 9.5, End: 10.0}}, out)
}

func TestSilenceAnalyzeRequiresDetectorBin(t *testing.T) {
	s := Silence{}
	_, err := s.Analyze(context.Background(), Job{}, map[string]any{})
	assert.ErrorIs(t, err, ErrMissingDetector)
}
