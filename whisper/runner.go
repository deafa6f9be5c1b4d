package whisper

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/shlex"
	"github.com/lithammer/shortuuid/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"scribed/config"
	"scribed/job"
)

// pipeCloseDelay bounds how long Wait keeps the worker's pipes open after the
// process exits. The worker shells out to ffmpeg; a descendant that inherited
// stdout/stderr and outlives a killed worker would otherwise hold the pipes
// open and block the readers forever.
const pipeCloseDelay = 2 * time.Second

// Runner owns one resolved worker binary and drives files through it. It is
// the production job.Processor.
type Runner struct {
	cfg      *config.Config
	bin      string
	version  string
	resolver *Resolver
}

// NewRunner locates the worker, probes it with --version, and prepares the
// working directory. A broken worker install fails here, not mid-batch.
func NewRunner(cfg *config.Config) (*Runner, error) {
	bin, err := NewLocator(cfg).Find()
	if err != nil {
		return nil, err
	}
	version, err := Probe(bin, cfg.ProbeTimeout)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, job.NewError(job.KindIo, fmt.Sprintf("cannot create working directory %s", cfg.WorkDir), err)
	}
	log.Printf("Using worker %s (%s), workdir %s", bin, version, cfg.WorkDir)
	return &Runner{
		cfg:      cfg,
		bin:      bin,
		version:  version,
		resolver: NewResolver(cfg.WorkDir),
	}, nil
}

// Version reports the worker's --version output captured at startup.
func (r *Runner) Version() string {
	return r.version
}

// ProcessFile runs the worker for one input file: spawn, stream-monitor, race
// completion against cancellation and the job timeout, then resolve the
// transcript from disk. Errors are terminal; retry policy belongs to the
// caller.
func (r *Runner) ProcessFile(ctx context.Context, path string, settings job.Settings, sink job.ProgressSink) (*job.TranscriptionResult, error) {
	af, err := job.NewAudioFile(path)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	emit(sink, job.Progress{
		Stage:       job.StageInitializing,
		Percent:     0.0,
		CurrentFile: path,
		Timestamp:   time.Now().UTC(),
		Message:     "Starting transcription...",
		CanCancel:   true,
	})

	if err := r.checkResources(); err != nil {
		return nil, err
	}

	args, err := r.buildArgs(path, settings)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	cmd := exec.Command(r.bin, args...)
	cmd.Dir = r.cfg.WorkDir
	// The worker runs outside an interactive shell: PATH must cover the audio
	// tool locations, and TMPDIR/HOME must be set explicitly.
	cmd.Env = append(os.Environ(),
		"PATH="+enhancedPath(),
		"TMPDIR="+r.cfg.WorkDir,
		"HOME="+home,
	)
	cmd.WaitDelay = pipeCloseDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, job.NewError(job.KindCli, "failed to capture stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, job.NewError(job.KindCli, "failed to capture stderr", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, job.NewError(job.KindCli, "failed to spawn worker process", err)
	}
	log.Printf("Worker spawned for %s: %s %s", af.Name, r.bin, strings.Join(args, " "))

	diag := newTail(40)
	var live atomic.Bool
	var readers sync.WaitGroup
	readers.Add(2)
	go r.readStream(stdout, path, sink, diag, &live, &readers)
	go r.readStream(stderr, path, sink, diag, &live, &readers)

	var cancelEst context.CancelFunc
	estDone := make(chan struct{})
	if r.cfg.ProgressFallback > 0 && sink != nil {
		var estCtx context.Context
		estCtx, cancelEst = context.WithCancel(ctx)
		go func() {
			defer close(estDone)
			runEstimator(estCtx, r.cfg.ProgressFallback, path, &live, sink)
		}()
	} else {
		close(estDone)
	}
	stopEstimator := func() {
		if cancelEst != nil {
			cancelEst()
		}
		<-estDone
	}
	defer stopEstimator()

	// Wait runs first so that after a kill it force-closes the pipes once
	// WaitDelay elapses, unblocking readers that would otherwise hang on a
	// descendant's copy of the write end.
	waitCh := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		readers.Wait()
		waitCh <- err
	}()

	// Cancellation is checked before the wait begins and raced against it;
	// either way the child is killed, never detached.
	if ctx.Err() != nil {
		_ = cmd.Process.Kill()
		<-waitCh
		return nil, cancelled(ctx)
	}

	timer := time.NewTimer(r.cfg.JobTimeout)
	defer timer.Stop()

	var waitErr error
	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-waitCh
		return nil, cancelled(ctx)
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-waitCh
		return nil, job.Errorf(job.KindCli, "worker timed out after %s", r.cfg.JobTimeout)
	case waitErr = <-waitCh:
	}

	if waitErr != nil && errors.Is(waitErr, exec.ErrWaitDelay) {
		// The worker exited cleanly; only a lingering descendant kept the
		// pipes open past the drain window.
		waitErr = nil
	}
	if waitErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return nil, job.NewError(job.KindCli,
			fmt.Sprintf("worker exited with code %d: %s", exitCode, diag.String()), waitErr)
	}

	// No estimated event may land after the completion event.
	stopEstimator()

	emit(sink, job.Progress{
		Stage:       job.StageSaving,
		Percent:     100.0,
		CurrentFile: path,
		Timestamp:   time.Now().UTC(),
		Message:     "Transcription completed!",
	})

	artifact, err := r.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}

	af.Status = job.FileCompleted
	return &job.TranscriptionResult{
		ID:              shortuuid.New(),
		OriginalFile:    af,
		TranscribedText: artifact.Text,
		Metadata: job.Metadata{
			Language:  settings.Language,
			ModelSize: string(settings.ModelSize),
			Timestamp: time.Now().UTC(),
		},
		OutputPath:     artifact.Path,
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// readStream forwards parsed progress from one pipe and keeps every line for
// diagnostics. Events stay ordered within a stream; ordering across the two
// streams is wall-clock only.
func (r *Runner) readStream(rd io.Reader, file string, sink job.ProgressSink, diag *tail, live *atomic.Bool, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		diag.add(line)
		log.Printf("worker: %s", line)
		if ev := ParseProgress(line); ev != nil {
			live.Store(true)
			if sink != nil {
				ev.CurrentFile = file
				sink(*ev)
			}
		}
	}
}

func (r *Runner) buildArgs(path string, settings job.Settings) ([]string, error) {
	args := []string{
		path,
		"--language", settings.Language,
		"--model-size", string(settings.ModelSize),
	}
	if settings.IncludeMetadata {
		args = append(args, "--include-metadata")
	}
	if r.cfg.WorkerExtraArgs != "" {
		extra, err := shlex.Split(r.cfg.WorkerExtraArgs)
		if err != nil {
			return nil, job.NewError(job.KindConfig, "invalid worker extra args", err)
		}
		args = append(args, extra...)
	}
	return args, nil
}

// checkResources refuses to launch when the host is starved. Thresholds of
// zero disable the corresponding check.
func (r *Runner) checkResources() error {
	if r.cfg.ThrottleCPU > 0 {
		p, err := cpu.Percent(0, false)
		if err != nil {
			log.Printf("Warning: could not get CPU usage: %v", err)
		} else if len(p) > 0 && p[0] > 100.0-r.cfg.ThrottleCPU {
			return job.Errorf(job.KindSystem,
				"not enough idle CPU: usage %.2f%%, idle threshold %.2f%%", p[0], r.cfg.ThrottleCPU)
		}
	}
	if r.cfg.ThrottleFreeMem > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			log.Printf("Warning: could not get memory usage: %v", err)
		} else if vm.Available < uint64(r.cfg.ThrottleFreeMem) {
			return job.Errorf(job.KindSystem,
				"not enough free memory: available %d, required %d", vm.Available, r.cfg.ThrottleFreeMem)
		}
	}
	if r.cfg.ThrottleFreeDisk > 0 {
		d, err := disk.Usage(r.cfg.WorkDir)
		if err != nil {
			log.Printf("Warning: could not get disk usage for %s: %v", r.cfg.WorkDir, err)
		} else if d.Free < uint64(r.cfg.ThrottleFreeDisk) {
			return job.Errorf(job.KindSystem,
				"not enough free disk space: available %d, required %d", d.Free, r.cfg.ThrottleFreeDisk)
		}
	}
	return nil
}

func enhancedPath() string {
	current := os.Getenv("PATH")
	if current == "" {
		current = "/usr/bin:/bin:/usr/sbin:/sbin"
	}
	return current + ":/usr/local/bin:/opt/homebrew/bin:/opt/local/bin"
}

func cancelled(ctx context.Context) error {
	return job.NewError(job.KindProcessing, "processing was cancelled", ctx.Err())
}

func emit(sink job.ProgressSink, p job.Progress) {
	if sink != nil {
		sink(p)
	}
}

// tail keeps the last n output lines for failure diagnostics.
type tail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
