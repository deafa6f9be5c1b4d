// Package whisper drives the external speech-to-text worker: locating the
// binary, spawning it, turning its free-form output into progress events, and
// recovering the transcript file it leaves behind.
package whisper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"scribed/job"
)

// The worker interleaves three progress dialects on its streams: raw Whisper
// segment timestamps, tqdm-style progress bars, and its own CLI status lines.
// Recognizers run in fixed priority order; the first match wins.
var (
	segmentRe = regexp.MustCompile(`\[(\d{2}):(\d{2})\.(\d{3}) --> (\d{2}):(\d{2})\.(\d{3})\]`)
	barRe     = regexp.MustCompile(`(\d+)%\|[^|]*\|\s*(\d+)/(\d+)\s*\[`)
	statusRe  = regexp.MustCompile(`\[(\d+)/(\d+)\]\s*\((\d+(?:\.\d+)?)%\)\s*Processing:`)
	percentRe = regexp.MustCompile(`(\d+)%`)
)

// referenceDuration is assumed when the real audio length is unknown; segment
// timestamps are scaled against it, capped below 100 to leave room for the
// post-processing stages.
const (
	referenceDuration = 300.0
	segmentCap        = 90.0
)

// ParseProgress inspects one raw output line and returns a progress event, or
// nil when the line carries none. Malformed numeric captures fall through to
// the lower-priority recognizers rather than failing.
func ParseProgress(line string) *job.Progress {
	if caps := segmentRe.FindStringSubmatch(line); caps != nil {
		endMin, errM := strconv.ParseFloat(caps[4], 64)
		endSec, errS := strconv.ParseFloat(caps[5], 64)
		if errM == nil && errS == nil {
			current := endMin*60.0 + endSec
			percent := current / referenceDuration * 100.0
			if percent > segmentCap {
				percent = segmentCap
			}
			return &job.Progress{
				Stage:     job.StageTranscribing,
				Percent:   percent,
				Timestamp: time.Now().UTC(),
				Message:   fmt.Sprintf("Transcribing: %.1f%% (%d:%02d)", percent, int(endMin), int(endSec)),
				CanCancel: true,
			}
		}
	}

	if caps := barRe.FindStringSubmatch(line); caps != nil {
		percent, errP := strconv.ParseFloat(caps[1], 64)
		current, errC := strconv.ParseFloat(caps[2], 64)
		total, errT := strconv.ParseFloat(caps[3], 64)
		if errP == nil && errC == nil && errT == nil {
			return &job.Progress{
				Stage:     job.StageTranscribing,
				Percent:   clamp(percent),
				Timestamp: time.Now().UTC(),
				Message:   fmt.Sprintf("Transcribing: %d%% (%d/%d)", int(percent), int64(current), int64(total)),
				CanCancel: true,
			}
		}
	}

	if caps := statusRe.FindStringSubmatch(line); caps != nil {
		current, errC := strconv.ParseFloat(caps[1], 64)
		total, errT := strconv.ParseFloat(caps[2], 64)
		percent, errP := strconv.ParseFloat(caps[3], 64)
		if errC == nil && errT == nil && errP == nil {
			return &job.Progress{
				Stage:     job.StageTranscribing,
				Percent:   clamp(percent),
				Timestamp: time.Now().UTC(),
				Message:   fmt.Sprintf("Processing file: %d%% (%d/%d)", int(percent), int64(current), int64(total)),
				CanCancel: true,
			}
		}
	}

	// Coarse fallback: any bare percentage.
	if caps := percentRe.FindStringSubmatch(line); caps != nil {
		if percent, err := strconv.ParseFloat(caps[1], 64); err == nil {
			return &job.Progress{
				Stage:     job.StageTranscribing,
				Percent:   clamp(percent),
				Timestamp: time.Now().UTC(),
				Message:   fmt.Sprintf("Transcribing: %d%%", int(percent)),
				CanCancel: true,
			}
		}
	}

	if strings.Contains(line, "Loading Whisper model") {
		return &job.Progress{
			Stage:     job.StageInitializing,
			Percent:   10.0,
			Timestamp: time.Now().UTC(),
			Message:   "Loading Whisper model...",
			CanCancel: true,
		}
	}

	if strings.Contains(line, "Transcribing") && !strings.Contains(line, "Loading") {
		return &job.Progress{
			Stage:     job.StageTranscribing,
			Percent:   25.0,
			Timestamp: time.Now().UTC(),
			Message:   "Transcribing audio...",
			CanCancel: true,
		}
	}

	return nil
}

func clamp(percent float64) float64 {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
