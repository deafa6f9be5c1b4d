package whisper

import (
	"os"
	"path/filepath"
	"strings"

	"scribed/job"
)

// Artifact is the worker's completion file, materialized.
type Artifact struct {
	Path string
	Text string
}

// Resolver turns the worker's "exit zero plus a file on disk" completion
// protocol into a typed result. The filename carries a timestamp suffix the
// caller cannot predict, and the worker has been known to change its output
// subdirectory layout, so resolution is a priority-ordered search rather than
// a single stat. Kept behind this narrow type so a structured completion
// protocol can replace it without touching the orchestrator.
type Resolver struct {
	workDir string
	homeDir string
}

func NewResolver(workDir string) *Resolver {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &Resolver{workDir: workDir, homeDir: home}
}

// Resolve finds and reads the transcript for inputPath. Candidate directories
// are searched in priority order; within the first directory that has any
// match, the most recently modified file wins.
func (r *Resolver) Resolve(inputPath string) (*Artifact, error) {
	stem := job.Stem(inputPath)

	// Fast path: exact expected name in the working directory.
	exact := filepath.Join(r.workDir, stem+"_transcription.txt")
	if _, err := os.Stat(exact); err == nil {
		return r.read(exact)
	}

	searchDirs := []string{
		r.workDir,
		filepath.Join(r.workDir, "output"),
		r.homeDir,
	}

	for _, dir := range searchDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		var best string
		var bestMod int64
		for _, entry := range entries {
			if entry.IsDir() || !matchesTranscript(entry.Name(), stem) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if best == "" || info.ModTime().UnixNano() > bestMod {
				best = entry.Name()
				bestMod = info.ModTime().UnixNano()
			}
		}
		if best != "" {
			return r.read(filepath.Join(dir, best))
		}
	}

	return nil, job.Errorf(job.KindCli, "transcription output file not found for %s", inputPath)
}

// matchesTranscript accepts the filename shapes the worker is known to emit:
// a timestamp-suffixed transcription file, the exact expected name, a bare
// stem .txt, or anything combining the stem with "transcription".
func matchesTranscript(name, stem string) bool {
	if !strings.HasSuffix(name, ".txt") {
		return false
	}
	switch {
	case strings.HasPrefix(name, stem+"_transcription_"):
		return true
	case name == stem+"_transcription.txt":
		return true
	case name == stem+".txt":
		return true
	case strings.Contains(name, stem) && strings.Contains(name, "transcription"):
		return true
	}
	return false
}

func (r *Resolver) read(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, job.NewError(job.KindIo, "failed to read transcription output", err)
	}
	return &Artifact{Path: path, Text: string(data)}, nil
}
