package whisper

import (
	"context"
	"sync/atomic"
	"time"

	"scribed/job"
)

// estimatedStages is the canned progression emitted while the worker stays
// silent. Percentages are calibrated guesses, not measurements.
var estimatedStages = []struct {
	stage   job.Stage
	message string
	percent float64
}{
	{job.StageLoadingModel, "Loading Whisper model...", 15.0},
	{job.StagePreprocessing, "Preprocessing audio...", 25.0},
	{job.StageTranscribing, "Transcribing audio...", 80.0},
	{job.StagePostprocessing, "Processing results...", 95.0},
	{job.StageFinalizing, "Finalizing transcription...", 98.0},
}

// runEstimator emits one estimated stage event per interval until the worker
// produces real progress (live flips true), the stages run out, or ctx is
// cancelled. It keeps long silent runs from looking stalled.
func runEstimator(ctx context.Context, interval time.Duration, file string, live *atomic.Bool, sink job.ProgressSink) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for _, s := range estimatedStages {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if live.Load() {
			return
		}
		sink(job.Progress{
			Stage:       s.stage,
			Percent:     s.percent,
			CurrentFile: file,
			Timestamp:   time.Now().UTC(),
			Message:     s.message,
			CanCancel:   true,
		})
	}
}
