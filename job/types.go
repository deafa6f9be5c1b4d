package job

import (
	"context"
	"time"
)

// Stage labels the phase a transcription run is in. The order below is
// advisory: stages are derived from heuristic matching of worker output, not
// from the worker's real internal state.
type Stage string

const (
	StageInitializing   Stage = "initializing"
	StageLoadingModel   Stage = "loading_model"
	StagePreprocessing  Stage = "preprocessing"
	StageTranscribing   Stage = "transcribing"
	StagePostprocessing Stage = "postprocessing"
	StageFinalizing     Stage = "finalizing"
	StageSaving         Stage = "saving"
)

// Progress is a single immutable progress event. Percent is 0-100 and
// monotonic within a stage, but may reset across stage transitions.
type Progress struct {
	Stage       Stage     `json:"stage"`
	Percent     float64   `json:"progress"`
	CurrentFile string    `json:"currentFile,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Message     string    `json:"message,omitempty"`
	JobID       string    `json:"jobId,omitempty"`
	FileIndex   int       `json:"fileIndex"`
	TotalFiles  int       `json:"totalFiles"`
	CanCancel   bool      `json:"canCancel"`
}

// ProgressSink receives progress events. It may be called concurrently from
// the stdout and stderr reader goroutines; events are ordered per stream but
// only weakly ordered across the two.
type ProgressSink func(Progress)

// ModelSize selects the Whisper model variant passed to the worker.
type ModelSize string

const (
	ModelTiny   ModelSize = "tiny"
	ModelBase   ModelSize = "base"
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
	ModelLarge  ModelSize = "large"
)

// OutputFormat is the transcript export format preference.
type OutputFormat string

const (
	FormatTxt  OutputFormat = "txt"
	FormatSrt  OutputFormat = "srt"
	FormatVtt  OutputFormat = "vtt"
	FormatJSON OutputFormat = "json"
)

// Settings is the read-only per-job configuration handed in by the caller.
type Settings struct {
	Language        string       `json:"language"`
	ModelSize       ModelSize    `json:"modelSize"`
	OutputDirectory string       `json:"outputDirectory"`
	IncludeMetadata bool         `json:"includeMetadata"`
	AutoSave        bool         `json:"autoSave"`
	OutputFormat    OutputFormat `json:"outputFormat"`
}

// DefaultSettings returns the baseline settings used when a caller supplies
// none.
func DefaultSettings() Settings {
	return Settings{
		Language:        "en",
		ModelSize:       ModelBase,
		IncludeMetadata: true,
		AutoSave:        true,
		OutputFormat:    FormatTxt,
	}
}

// Validate rejects settings the worker cannot act on.
func (s Settings) Validate() error {
	if s.Language == "" {
		return Errorf(KindConfig, "language must not be empty")
	}
	switch s.ModelSize {
	case ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLarge:
	default:
		return Errorf(KindConfig, "invalid model size: %q", s.ModelSize)
	}
	return nil
}

// FileStatus is the lifecycle state of one input file.
type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileError      FileStatus = "error"
)

// AudioFile describes a validated input file.
type AudioFile struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Size     int64      `json:"size"`
	Format   string     `json:"format"`
	Duration *float64   `json:"duration,omitempty"`
	Status   FileStatus `json:"status"`
}

// AudioInfo carries best-effort audio metadata. The worker may or may not
// supply it; zero values mean unknown.
type AudioInfo struct {
	Duration   float64 `json:"duration"`
	SampleRate int     `json:"sampleRate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
}

// Metadata records how a transcription was produced.
type Metadata struct {
	Language  string    `json:"language"`
	ModelSize string    `json:"modelSize"`
	Timestamp time.Time `json:"timestamp"`
	AudioInfo AudioInfo `json:"audioInfo"`
}

// TranscriptionResult is the terminal success value for one file.
type TranscriptionResult struct {
	ID              string    `json:"id"`
	OriginalFile    AudioFile `json:"originalFile"`
	TranscribedText string    `json:"transcribedText"`
	Metadata        Metadata  `json:"metadata"`
	OutputPath      string    `json:"outputPath"`
	ProcessingTime  float64   `json:"processingTime"`
	Confidence      *float64  `json:"confidence,omitempty"`
}

// ProcessingJob is the registry's snapshot of one in-flight batch.
type ProcessingJob struct {
	ID               string      `json:"id"`
	Files            []AudioFile `json:"files"`
	CurrentFileIndex int         `json:"currentFileIndex"`
	Percent          float64     `json:"progress"`
	Stage            Stage       `json:"stage"`
	StartTime        time.Time   `json:"startTime"`
	IsCancelled      bool        `json:"isCancelled"`
	CanCancel        bool        `json:"canCancel"`
}

// ProcessingError records one per-file failure inside a batch.
type ProcessingError struct {
	FilePath     string    `json:"filePath"`
	ErrorMessage string    `json:"errorMessage"`
	Timestamp    time.Time `json:"timestamp"`
}

// BatchStatistics summarizes a finished batch.
type BatchStatistics struct {
	TotalFiles            int     `json:"totalFiles"`
	CompletedFiles        int     `json:"completedFiles"`
	FailedFiles           int     `json:"failedFiles"`
	TotalProcessingTime   float64 `json:"totalProcessingTime"`
	AverageProcessingTime float64 `json:"averageProcessingTime"`
}

// BatchResult is the terminal value of a batch run. Results holds only the
// successfully transcribed files; per-file failures land in Errors.
type BatchResult struct {
	JobID      string                `json:"jobId"`
	Statistics BatchStatistics       `json:"statistics"`
	Results    []TranscriptionResult `json:"results"`
	Errors     []ProcessingError     `json:"errors"`
}

// FileValidationError pairs an input path with the reason it was rejected.
type FileValidationError struct {
	FilePath     string `json:"filePath"`
	ErrorMessage string `json:"errorMessage"`
}

// BatchValidation is the pre-flight report for a proposed batch.
type BatchValidation struct {
	ValidFiles          []AudioFile           `json:"validFiles"`
	InvalidFiles        []FileValidationError `json:"invalidFiles"`
	TotalSize           int64                 `json:"totalSize"`
	EstimatedOutputSize int64                 `json:"estimatedOutputSize"`
	CanProceed          bool                  `json:"canProceed"`
	Warnings            []string              `json:"warnings"`
}

// Processor runs one file end to end. whisper.Runner is the production
// implementation; tests substitute their own.
type Processor interface {
	ProcessFile(ctx context.Context, path string, settings Settings, sink ProgressSink) (*TranscriptionResult, error)
}
