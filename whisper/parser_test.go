package whisper

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribed/job"
)

func TestParseProgress_SegmentMarker(t *testing.T) {
	ev := ParseProgress("[00:00.000 --> 00:30.000] And so my fellow Americans")
	require.NotNil(t, ev)
	assert.Equal(t, job.StageTranscribing, ev.Stage)
	assert.InDelta(t, 10.0, ev.Percent, 0.01) // 30s of an assumed 300s
	assert.True(t, ev.CanCancel)
}

func TestParseProgress_SegmentMarkerCappedAt90(t *testing.T) {
	// 08:00 is past the 5-minute reference duration.
	ev := ParseProgress("[07:30.000 --> 08:00.000] closing remarks")
	require.NotNil(t, ev)
	assert.Equal(t, 90.0, ev.Percent)

	// Even absurdly late segments stay at the cap.
	ev = ParseProgress("[59:00.000 --> 59:59.999] way past")
	require.NotNil(t, ev)
	assert.Equal(t, 90.0, ev.Percent)
}

func TestParseProgress_ProgressBar(t *testing.T) {
	ev := ParseProgress("96%|█████████▌| 213478/222478 [03:06<00:07, 1146.02frames/s]")
	require.NotNil(t, ev)
	assert.Equal(t, job.StageTranscribing, ev.Stage)
	assert.Equal(t, 96.0, ev.Percent)
	assert.Contains(t, ev.Message, "213478/222478")
}

func TestParseProgress_StatusLine(t *testing.T) {
	ev := ParseProgress("[1/1] (42.5%) Processing: interview.m4a")
	require.NotNil(t, ev)
	assert.Equal(t, job.StageTranscribing, ev.Stage)
	assert.Equal(t, 42.5, ev.Percent)
}

func TestParseProgress_BarePercent(t *testing.T) {
	ev := ParseProgress("Working... 55% complete")
	require.NotNil(t, ev)
	assert.Equal(t, job.StageTranscribing, ev.Stage)
	assert.Equal(t, 55.0, ev.Percent)
}

func TestParseProgress_PercentClamped(t *testing.T) {
	for _, line := range []string{"150%", "40% then 900%"} {
		ev := ParseProgress(line)
		require.NotNil(t, ev, line)
		assert.LessOrEqual(t, ev.Percent, 100.0, line)
		assert.GreaterOrEqual(t, ev.Percent, 0.0, line)
	}
}

func TestParseProgress_LiteralPercentProperty(t *testing.T) {
	// Patterns 2-4 must report the literal captured percentage.
	for p := 0; p <= 100; p += 25 {
		bar := fmt.Sprintf("%d%%|███| %d/100 [00:10<00:05]", p, p)
		status := fmt.Sprintf("[1/3] (%d.0%%) Processing: a.m4a", p)
		bare := fmt.Sprintf("progress %d%%", p)
		for _, line := range []string{bar, status, bare} {
			ev := ParseProgress(line)
			require.NotNil(t, ev, line)
			assert.Equal(t, job.StageTranscribing, ev.Stage, line)
			assert.Equal(t, float64(p), ev.Percent, line)
		}
	}
}

func TestParseProgress_LoadingModel(t *testing.T) {
	ev := ParseProgress("Loading Whisper model (base)...")
	require.NotNil(t, ev)
	assert.Equal(t, job.StageInitializing, ev.Stage)
	assert.Equal(t, 10.0, ev.Percent)
}

func TestParseProgress_TranscribingKeyword(t *testing.T) {
	ev := ParseProgress("Transcribing audio file...")
	require.NotNil(t, ev)
	assert.Equal(t, job.StageTranscribing, ev.Stage)
	assert.Equal(t, 25.0, ev.Percent)

	// "Loading" wins over "Transcribing" when both appear.
	ev = ParseProgress("Loading Whisper model before Transcribing")
	require.NotNil(t, ev)
	assert.Equal(t, job.StageInitializing, ev.Stage)
}

func TestParseProgress_NoMatch(t *testing.T) {
	for _, line := range []string{
		"",
		"some random diagnostic output",
		"Detected language: english",
		"[broken --> timestamp]",
	} {
		assert.Nil(t, ParseProgress(line), line)
	}
}

func TestParseProgress_PriorityOrder(t *testing.T) {
	// A segment marker beats a bare percentage in the same line.
	ev := ParseProgress("[00:00.000 --> 00:15.000] 99% sure")
	require.NotNil(t, ev)
	assert.InDelta(t, 5.0, ev.Percent, 0.01)
}
