package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Coordinator sequences the files of one batch through a Processor. Files run
// one at a time: the worker is CPU/GPU-bound and single-threaded per
// invocation, so batch-level parallelism would only thrash.
type Coordinator struct {
	proc Processor
	reg  *Registry
}

func NewCoordinator(proc Processor, reg *Registry) *Coordinator {
	return &Coordinator{proc: proc, reg: reg}
}

// Run processes paths sequentially and returns when the batch is done. A
// per-file failure is recorded and the batch moves on; only a setup failure
// (invalid settings) or batch-level cancellation is returned as an error.
func (c *Coordinator) Run(ctx context.Context, paths []string, settings Settings, sink ProgressSink) (BatchResult, error) {
	if err := settings.Validate(); err != nil {
		return BatchResult{}, err
	}
	return c.run(ctx, shortuuid.New(), paths, settings, sink)
}

// Start validates the batch, registers it, and runs it in the background.
// The returned job id can be polled or cancelled through the Registry.
func (c *Coordinator) Start(paths []string, settings Settings, sink ProgressSink) (string, error) {
	if err := settings.Validate(); err != nil {
		return "", err
	}

	files := make([]AudioFile, 0, len(paths))
	for _, path := range paths {
		af, err := NewAudioFile(path)
		if err != nil {
			return "", err
		}
		files = append(files, af)
	}

	pj := ProcessingJob{
		ID:        shortuuid.New(),
		Files:     files,
		Stage:     StageInitializing,
		StartTime: time.Now().UTC(),
		CanCancel: true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	// The entry carries the cancel handle before the goroutine starts, so a
	// racing Cancel call cannot miss it.
	c.reg.Register(pj, cancel, done)

	go func() {
		defer close(done)
		defer c.reg.Remove(pj.ID)
		if _, err := c.run(ctx, pj.ID, paths, settings, sink); err != nil {
			log.Printf("Batch %s finished with error: %v", pj.ID, err)
		}
	}()

	log.Printf("Batch %s started with %d file(s).", pj.ID, len(paths))
	return pj.ID, nil
}

func (c *Coordinator) run(ctx context.Context, jobID string, paths []string, settings Settings, sink ProgressSink) (BatchResult, error) {
	total := len(paths)
	res := BatchResult{JobID: jobID}
	res.Statistics.TotalFiles = total

	for i, path := range paths {
		if ctx.Err() != nil {
			log.Printf("Batch %s cancelled before file %d of %d.", jobID, i+1, total)
			c.finishStats(&res)
			return res, NewError(KindProcessing, "batch was cancelled", ctx.Err())
		}

		batchEvent := Progress{
			Stage:       StageInitializing,
			Percent:     float64(i) / float64(total) * 100.0,
			CurrentFile: path,
			Timestamp:   time.Now().UTC(),
			Message:     fmt.Sprintf("Processing file %d of %d", i+1, total),
			JobID:       jobID,
			FileIndex:   i,
			TotalFiles:  total,
			CanCancel:   true,
		}
		c.reg.UpdateProgress(jobID, batchEvent)
		if sink != nil {
			sink(batchEvent)
		}

		fileIndex := i
		fileSink := func(p Progress) {
			p.JobID = jobID
			p.FileIndex = fileIndex
			p.TotalFiles = total
			c.reg.UpdateProgress(jobID, p)
			if sink != nil {
				sink(p)
			}
		}

		result, err := c.proc.ProcessFile(ctx, path, settings, fileSink)
		if err != nil {
			log.Printf("Failed to process %s: %v", path, err)
			res.Errors = append(res.Errors, ProcessingError{
				FilePath:     path,
				ErrorMessage: err.Error(),
				Timestamp:    time.Now().UTC(),
			})
			res.Statistics.FailedFiles++
			continue
		}
		res.Results = append(res.Results, *result)
		res.Statistics.CompletedFiles++
		res.Statistics.TotalProcessingTime += result.ProcessingTime
	}

	c.finishStats(&res)
	log.Printf("Batch %s completed: %d succeeded, %d failed.",
		jobID, res.Statistics.CompletedFiles, res.Statistics.FailedFiles)
	return res, nil
}

func (c *Coordinator) finishStats(res *BatchResult) {
	if res.Statistics.CompletedFiles > 0 {
		res.Statistics.AverageProcessingTime =
			res.Statistics.TotalProcessingTime / float64(res.Statistics.CompletedFiles)
	}
}
