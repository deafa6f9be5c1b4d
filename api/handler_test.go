package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribed/config"
	"scribed/job"
)

type fakeProcessor struct {
	delay time.Duration
	err   error
}

func (f *fakeProcessor) ProcessFile(ctx context.Context, path string, settings job.Settings, sink job.ProgressSink) (*job.TranscriptionResult, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, job.NewError(job.KindProcessing, "processing was cancelled", ctx.Err())
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &job.TranscriptionResult{
		ID:              "res-1",
		OriginalFile:    job.AudioFile{Path: path, Name: filepath.Base(path)},
		TranscribedText: "hello world",
		ProcessingTime:  0.5,
	}, nil
}

type fakeWorker struct{}

func (fakeWorker) Version() string { return "speech-to-text 1.2.3" }

func testRouter(t *testing.T, proc job.Processor, cfg *config.Config) (*gin.Engine, *job.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if cfg == nil {
		cfg = &config.Config{}
	}
	reg := job.NewRegistry()
	coord := job.NewCoordinator(proc, reg)
	h := NewHandler(coord, reg, proc, fakeWorker{}, cfg)
	return SetupRouter(h, cfg), reg
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func audioFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "interview.m4a")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	return path
}

func TestHealth(t *testing.T) {
	r, _ := testRouter(t, &fakeProcessor{}, nil)
	w := doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWorkerInfoAndFormats(t *testing.T) {
	r, _ := testRouter(t, &fakeProcessor{}, nil)

	w := doJSON(r, http.MethodGet, "/api/v1/worker", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "speech-to-text 1.2.3")

	w = doJSON(r, http.MethodGet, "/api/v1/formats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "m4a")
}

func TestTranscribe(t *testing.T) {
	r, _ := testRouter(t, &fakeProcessor{}, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/transcribe", TranscribeRequest{FilePath: audioFixture(t)})
	require.Equal(t, http.StatusOK, w.Code)

	var res job.TranscriptionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "hello world", res.TranscribedText)
}

func TestTranscribe_BadRequest(t *testing.T) {
	r, _ := testRouter(t, &fakeProcessor{}, nil)
	w := doJSON(r, http.MethodPost, "/api/v1/transcribe", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTranscribe_ErrorMapping(t *testing.T) {
	cases := []struct {
		kind job.Kind
		want int
	}{
		{job.KindFileNotFound, http.StatusNotFound},
		{job.KindUnsupportedFormat, http.StatusBadRequest},
		{job.KindConfig, http.StatusBadRequest},
		{job.KindProcessing, http.StatusConflict},
		{job.KindCli, http.StatusInternalServerError},
		{job.KindSystem, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r, _ := testRouter(t, &fakeProcessor{err: job.Errorf(tc.kind, "boom")}, nil)
		w := doJSON(r, http.MethodPost, "/api/v1/transcribe", TranscribeRequest{FilePath: "/tmp/a.m4a"})
		assert.Equal(t, tc.want, w.Code, string(tc.kind))
		assert.Contains(t, w.Body.String(), string(tc.kind))
	}
}

func TestTranscribe_ClientDisconnect(t *testing.T) {
	// Dropping the request context must cancel the in-flight worker run.
	r, _ := testRouter(t, &fakeProcessor{delay: 10 * time.Second}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	body, err := json.Marshal(TranscribeRequest{FilePath: audioFixture(t)})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transcribe", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Less(t, time.Since(start), 5*time.Second,
		"a disconnected client must not leave the handler waiting on the worker")
}

func TestBatchLifecycle(t *testing.T) {
	r, reg := testRouter(t, &fakeProcessor{delay: 300 * time.Millisecond}, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/jobs", BatchRequest{FilePaths: []string{audioFixture(t)}})
	require.Equal(t, http.StatusAccepted, w.Code)

	var started struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.NotEmpty(t, started.JobID)

	w = doJSON(r, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), started.JobID)

	w = doJSON(r, http.MethodGet, "/api/v1/jobs/"+started.JobID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPatch, "/api/v1/jobs/"+started.JobID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	done := reg.Done(started.JobID)
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("cancelled batch did not finish")
		}
	}
}

func TestBatch_Rejections(t *testing.T) {
	r, _ := testRouter(t, &fakeProcessor{}, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/jobs", BatchRequest{FilePaths: []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/jobs", BatchRequest{FilePaths: []string{"/nope/a.m4a"}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobNotFound(t *testing.T) {
	r, _ := testRouter(t, &fakeProcessor{}, nil)

	w := doJSON(r, http.MethodGet, "/api/v1/jobs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodPatch, "/api/v1/jobs/unknown/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Remove is idempotent, even for unknown ids.
	w = doJSON(r, http.MethodDelete, "/api/v1/jobs/unknown", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestValidateEndpoint(t *testing.T) {
	r, _ := testRouter(t, &fakeProcessor{}, nil)

	w := doJSON(r, http.MethodPost, "/api/v1/jobs/validate", ValidateRequest{
		FilePaths: []string{audioFixture(t), "/nope/b.m4a"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var v job.BatchValidation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.True(t, v.CanProceed)
	assert.Len(t, v.ValidFiles, 1)
	assert.Len(t, v.InvalidFiles, 1)
}

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{AuthEnable: true, AuthKey: "secret"}
	r, _ := testRouter(t, &fakeProcessor{}, cfg)

	w := doJSON(r, http.MethodGet, "/api/v1/worker", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/worker", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/worker", nil)
	req.Header.Set("Authorization", "Token secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "non-bearer schemes are rejected")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/worker", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open.
	w = doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
