package job

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lithammer/shortuuid/v4"
)

// SupportedFormats lists the audio extensions the worker accepts.
var SupportedFormats = []string{"m4a", "wav", "mp3", "aac", "flac"}

// IsSupportedFormat reports whether ext (with or without leading dot) is a
// supported audio extension.
func IsSupportedFormat(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, f := range SupportedFormats {
		if f == ext {
			return true
		}
	}
	return false
}

// FileExtension returns the lowercased extension of path without the dot, or
// "" when there is none.
func FileExtension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ValidatePath checks that path exists and is a regular file.
func ValidatePath(path string) error {
	path = strings.TrimSpace(path)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewError(KindFileNotFound, path, err)
		}
		return NewError(KindIo, fmt.Sprintf("cannot access %s", path), err)
	}
	if info.IsDir() {
		return Errorf(KindIo, "%s is not a file", path)
	}
	return nil
}

// ValidateFormat checks the extension of path against SupportedFormats and
// returns the extension.
func ValidateFormat(path string) (string, error) {
	ext := FileExtension(path)
	if ext == "" {
		return "", Errorf(KindUnsupportedFormat, "no file extension: %s", path)
	}
	if !IsSupportedFormat(ext) {
		return "", Errorf(KindUnsupportedFormat,
			"format %q is not supported (supported: %s)", ext, strings.Join(SupportedFormats, ", "))
	}
	return ext, nil
}

// NewAudioFile validates path and builds the AudioFile descriptor for it.
func NewAudioFile(path string) (AudioFile, error) {
	path = strings.TrimSpace(path)
	if err := ValidatePath(path); err != nil {
		return AudioFile{}, err
	}
	format, err := ValidateFormat(path)
	if err != nil {
		return AudioFile{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return AudioFile{}, NewError(KindIo, fmt.Sprintf("cannot stat %s", path), err)
	}
	return AudioFile{
		ID:     shortuuid.New(),
		Name:   filepath.Base(path),
		Path:   path,
		Size:   info.Size(),
		Format: format,
		Status: FilePending,
	}, nil
}

// SanitizeFilename replaces characters that are unsafe in filenames.
func SanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, name)
}

// Stem returns the sanitized filename of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
}

// OutputFilename derives the expected transcript path for an input file. The
// worker may add a timestamp suffix; the resolver handles that case. An empty
// outputDir means "next to the input file".
func OutputFilename(inputPath, outputDir string) string {
	name := Stem(inputPath) + "_transcription.txt"
	if outputDir == "" {
		outputDir = filepath.Dir(inputPath)
	}
	return filepath.Join(outputDir, name)
}

// ValidateOutputDir checks that dir exists, is a directory, and is writable.
func ValidateOutputDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return NewError(KindIo, fmt.Sprintf("directory does not exist: %s", dir), err)
	}
	if !info.IsDir() {
		return Errorf(KindIo, "%s is not a directory", dir)
	}
	probe := filepath.Join(dir, ".write_test")
	f, err := os.Create(probe)
	if err != nil {
		return NewError(KindIo, fmt.Sprintf("directory is not writable: %s", dir), err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}

// ValidateBatch builds the pre-flight report for a proposed batch of inputs.
func ValidateBatch(paths []string, outputDir string) BatchValidation {
	v := BatchValidation{CanProceed: true}

	if outputDir != "" {
		if err := ValidateOutputDir(outputDir); err != nil {
			v.CanProceed = false
			v.Warnings = append(v.Warnings, fmt.Sprintf("output directory issue: %v", err))
		}
	}

	for _, path := range paths {
		af, err := NewAudioFile(path)
		if err != nil {
			v.InvalidFiles = append(v.InvalidFiles, FileValidationError{
				FilePath:     path,
				ErrorMessage: err.Error(),
			})
			continue
		}
		v.TotalSize += af.Size
		v.ValidFiles = append(v.ValidFiles, af)
	}

	// Rough transcript size estimate, 1KB per file.
	v.EstimatedOutputSize = int64(len(v.ValidFiles)) * 1024

	if len(v.ValidFiles) == 0 {
		v.CanProceed = false
		v.Warnings = append(v.Warnings, "no valid audio files found")
	}
	return v
}
