package whisper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"scribed/config"
	"scribed/job"
)

// devCandidates are the relative locations probed for the worker during
// development, before falling back to the system PATH.
var devCandidates = []string{
	"venv/bin",
	"../venv/bin",
	"../../venv/bin",
}

// Locator finds the worker binary. Packaged mode expects it beside the
// running executable (the sidecar layout); development mode walks a short
// candidate list and then the system PATH. OS lookups are injectable for
// tests.
type Locator struct {
	cfg        *config.Config
	executable func() (string, error)
	lookPath   func(string) (string, error)
	stat       func(string) (os.FileInfo, error)
	getwd      func() (string, error)
}

func NewLocator(cfg *config.Config) *Locator {
	return &Locator{
		cfg:        cfg,
		executable: os.Executable,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		getwd:      os.Getwd,
	}
}

// Find resolves the worker binary path or fails with a CLI error.
func (l *Locator) Find() (string, error) {
	if l.cfg.Packaged {
		return l.findSidecar()
	}
	return l.findDev()
}

func (l *Locator) findSidecar() (string, error) {
	exe, err := l.executable()
	if err != nil {
		return "", job.NewError(job.KindCli, "cannot determine application executable path", err)
	}
	sidecar := filepath.Join(filepath.Dir(exe), l.cfg.WorkerBin)
	if _, err := l.stat(sidecar); err != nil {
		return "", job.Errorf(job.KindCli, "worker binary not found at %s", sidecar)
	}
	return sidecar, nil
}

func (l *Locator) findDev() (string, error) {
	cwd, err := l.getwd()
	if err != nil {
		cwd = "."
	}
	for _, dir := range devCandidates {
		candidate := filepath.Join(cwd, dir, l.cfg.WorkerBin)
		if _, err := l.stat(candidate); err == nil {
			return candidate, nil
		}
	}
	path, err := l.lookPath(l.cfg.WorkerBin)
	if err != nil {
		return "", job.NewError(job.KindCli,
			fmt.Sprintf("worker binary %q not found in development paths or PATH", l.cfg.WorkerBin), err)
	}
	return path, nil
}

// Probe runs `--version` against the resolved binary so a broken install
// fails fast instead of mid-batch. Returns the reported version string.
func Probe(bin string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, bin, "--version").Output()
	if ctx.Err() == context.DeadlineExceeded {
		return "", job.Errorf(job.KindCli, "worker version probe timed out after %s", timeout)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", job.NewError(job.KindCli,
				fmt.Sprintf("worker version probe failed: %s", strings.TrimSpace(string(exitErr.Stderr))), err)
		}
		return "", job.NewError(job.KindCli, "failed to execute worker", err)
	}
	return strings.TrimSpace(string(out)), nil
}
