package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scribed/config"
	"scribed/job"
)

// WorkerInfo is the subset of the runner the API needs; it keeps handlers
// testable without a real worker binary.
type WorkerInfo interface {
	Version() string
}

type Handler struct {
	coord  *job.Coordinator
	reg    *job.Registry
	proc   job.Processor
	worker WorkerInfo
	cfg    *config.Config
}

func NewHandler(coord *job.Coordinator, reg *job.Registry, proc job.Processor, worker WorkerInfo, cfg *config.Config) *Handler {
	return &Handler{coord: coord, reg: reg, proc: proc, worker: worker, cfg: cfg}
}

type TranscribeRequest struct {
	FilePath string        `json:"filePath" binding:"required"`
	Settings *job.Settings `json:"settings"`
}

type BatchRequest struct {
	FilePaths []string      `json:"filePaths" binding:"required"`
	Settings  *job.Settings `json:"settings"`
}

type ValidateRequest struct {
	FilePaths       []string `json:"filePaths" binding:"required"`
	OutputDirectory string   `json:"outputDirectory"`
}

func settingsOrDefault(s *job.Settings) job.Settings {
	if s == nil {
		return job.DefaultSettings()
	}
	return *s
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch job.KindOf(err) {
	case job.KindFileNotFound:
		return http.StatusNotFound
	case job.KindUnsupportedFormat, job.KindConfig:
		return http.StatusBadRequest
	case job.KindProcessing:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleTranscribe(c *gin.Context) {
	var req TranscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The request context rides along so a disconnected client kills the
	// worker instead of leaving it running unobserved.
	result, err := h.proc.ProcessFile(c.Request.Context(), req.FilePath, settingsOrDefault(req.Settings), nil)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": job.KindOf(err)})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) handleStartBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.FilePaths) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filePaths must not be empty"})
		return
	}

	jobID, err := h.coord.Start(req.FilePaths, settingsOrDefault(req.Settings), nil)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "kind": job.KindOf(err)})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

func (h *Handler) handleValidateBatch(c *gin.Context) {
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job.ValidateBatch(req.FilePaths, req.OutputDirectory))
}

func (h *Handler) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.reg.List())
}

func (h *Handler) handleGetJob(c *gin.Context) {
	pj, found := h.reg.Get(c.Param("jobId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, pj)
}

func (h *Handler) handleCancelJob(c *gin.Context) {
	cancelled := h.reg.Cancel(c.Param("jobId"))
	if !cancelled {
		c.JSON(http.StatusNotFound, gin.H{"error": "No running job with that id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (h *Handler) handleRemoveJob(c *gin.Context) {
	h.reg.Remove(c.Param("jobId"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleWorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": h.worker.Version()})
}
