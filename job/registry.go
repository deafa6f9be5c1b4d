package job

import (
	"context"
	"log"
	"sync"
)

// entry ties a job snapshot to its cancellation handle and the done channel
// of its background goroutine. Both are owned exclusively by the registry.
type entry struct {
	job    ProcessingJob
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry is the table of in-flight batch jobs. It is an explicit, injectable
// instance so tests run without shared state; there is no package-level
// singleton. The lock guards only map mutation and is never held across I/O.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*entry)}
}

// Register stores a job with its cancellation handle and background done
// channel. The entry is fully populated before the lock is released, so a
// concurrent Cancel can never observe a half-registered job. Re-registering
// an id overwrites the previous entry (last write wins).
func (r *Registry) Register(pj ProcessingJob, cancel context.CancelFunc, done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[pj.ID] = &entry{job: pj, cancel: cancel, done: done}
}

// Get returns a snapshot of the job, if present.
func (r *Registry) Get(id string) (ProcessingJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return ProcessingJob{}, false
	}
	return e.job, true
}

// List returns snapshots of all active jobs.
func (r *Registry) List() []ProcessingJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ProcessingJob, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, e.job)
	}
	return out
}

// UpdateProgress folds a progress event into the job snapshot.
func (r *Registry) UpdateProgress(id string, p Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return
	}
	e.job.Percent = p.Percent
	e.job.Stage = p.Stage
	if p.TotalFiles > 0 {
		e.job.CurrentFileIndex = p.FileIndex
	}
}

// Cancel triggers the job's cancellation handle and marks the snapshot. It
// reports whether a live handle existed. Triggering is idempotent.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return false
	}
	e.job.IsCancelled = true
	e.job.CanCancel = false
	if e.cancel == nil {
		return false
	}
	e.cancel()
	log.Printf("Cancellation signal sent to job %s.", id)
	return true
}

// Remove drops the job, cancelling its background work as cleanup. Safe to
// call for unknown ids and safe to call twice.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(r.jobs, id)
}

// Done exposes the background completion channel for a job, or nil when the
// job is unknown. Used by callers that need to block until a batch finishes.
func (r *Registry) Done(id string) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return nil
	}
	return e.done
}
