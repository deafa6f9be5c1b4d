package api

import (
	"github.com/gin-gonic/gin"

	"scribed/config"
	"scribed/job"
)

func SetupRouter(h *Handler, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		// Single-file synchronous transcription.
		v1.POST("/transcribe", h.handleTranscribe)

		// Batch jobs.
		v1.POST("/jobs", h.handleStartBatch)
		v1.POST("/jobs/validate", h.handleValidateBatch)
		v1.GET("/jobs", h.handleListJobs)
		v1.GET("/jobs/:jobId", h.handleGetJob)
		v1.PATCH("/jobs/:jobId/cancel", h.handleCancelJob)
		v1.DELETE("/jobs/:jobId", h.handleRemoveJob)

		// Worker introspection.
		v1.GET("/worker", h.handleWorkerInfo)
		v1.GET("/formats", func(c *gin.Context) {
			c.JSON(200, gin.H{"formats": job.SupportedFormats})
		})
	}
	return r
}
