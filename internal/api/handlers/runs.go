package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pov-scribe/backend/internal/db"
	"github.com/pov-scribe/backend/internal/fetch"
	"github.com/pov-scribe/backend/internal/job"
	"github.com/pov-scribe/backend/internal/pipeline"
	"github.com/pov-scribe/backend/internal/recognize"
)

// RunsHandler accepts pipeline run submissions and serves their artifacts.
type RunsHandler struct {
	queue          *job.JobQueue
	svc            *pipeline.Service
	database       *db.Database
	uploadPath     string
	maxUploadBytes int64
}

func NewRunsHandler(queue *job.JobQueue, svc *pipeline.Service, database *db.Database, uploadPath string, maxUploadBytes int64) *RunsHandler {
	return &RunsHandler{
		queue:          queue,
		svc:            svc,
		database:       database,
		uploadPath:     uploadPath,
		maxUploadBytes: maxUploadBytes,
	}
}

// createRunRequest is the submission payload. Credentials ride only on the
// request: they are handed to the service in memory and stripped before the
// job is enqueued, so they never reach the jobs table. EnableDiarization is
// a pointer to tell "omitted" apart from an explicit false.
type createRunRequest struct {
	pipeline.RunParams
	EnableDiarization *bool             `json:"enable_diarization,omitempty"`
	Credentials       map[string]string `json:"credentials,omitempty"`
}

// CreateRun enqueues a pipeline run. Multipart requests carry an uploaded
// media file plus a "params" JSON field; plain JSON requests carry a URL.
func (h *RunsHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	var label string

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			jsonError(w, "upload too large or malformed", http.StatusBadRequest)
			return
		}
		if p := r.FormValue("params"); p != "" {
			if err := json.Unmarshal([]byte(p), &req); err != nil {
				jsonError(w, "invalid params field", http.StatusBadRequest)
				return
			}
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			jsonError(w, "missing file field", http.StatusBadRequest)
			return
		}
		defer file.Close()

		staged, err := h.stageUpload(file, header.Filename)
		if err != nil {
			jsonError(w, "failed to stage upload", http.StatusInternalServerError)
			return
		}
		req.UploadPath = staged
		req.Filename = header.Filename
		req.MIMEHint = header.Header.Get("Content-Type")
		req.URL = ""
		label = header.Filename
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		req.UploadPath = ""
		if strings.TrimSpace(req.URL) == "" {
			jsonError(w, "either a file upload or a url is required", http.StatusBadRequest)
			return
		}
		// Reject blocklisted URLs at submission time; the fetcher enforces
		// the same check again before shelling out.
		if fetch.Blocked(req.URL) {
			jsonError(w, "URL matches the DRM/manifest blocklist", http.StatusUnprocessableEntity)
			return
		}
		label = req.URL
	}

	params := req.RunParams
	if req.EnableDiarization != nil {
		params.EnableDiarization = *req.EnableDiarization
	} else {
		params.EnableDiarization = h.database.GetSetting("enable_diarization", "false") == "true"
	}
	if params.Model == "" {
		params.Model = recognize.ModelSize(h.database.GetSetting("default_model", "base"))
	}
	if params.StyleHint == "" {
		params.StyleHint = h.database.GetSetting("default_style_hint", "")
	}

	j, err := h.queue.Enqueue(job.JobPipelineRun, label, params)
	if err != nil {
		jsonError(w, "failed to enqueue run: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.svc.GrantCredentials(j.ID, req.Credentials)

	jsonResponse(w, j, http.StatusAccepted)
}

// ListArtifacts returns the artifact file names of a completed run.
func (h *RunsHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.loadSummary(w, r)
	if !ok {
		return
	}
	entries, err := os.ReadDir(summary.OutputDir)
	if err != nil {
		jsonError(w, "run has no artifacts", http.StatusNotFound)
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && artifactName(e.Name()) {
			names = append(names, e.Name())
		}
	}
	jsonResponse(w, map[string]interface{}{"run_id": summary.RunID, "artifacts": names}, http.StatusOK)
}

// DownloadArtifact streams one artifact file.
func (h *RunsHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.loadSummary(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	if name != filepath.Base(name) || !artifactName(name) {
		jsonError(w, "unknown artifact", http.StatusNotFound)
		return
	}

	path := filepath.Join(summary.OutputDir, name)
	f, err := os.Open(path)
	if err != nil {
		jsonError(w, "artifact not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	if strings.HasSuffix(name, ".json") {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	io.Copy(w, f)
}

func (h *RunsHandler) loadSummary(w http.ResponseWriter, r *http.Request) (*pipeline.RunSummary, bool) {
	id := chi.URLParam(r, "id")
	j, err := h.queue.GetJob(id)
	if err != nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return nil, false
	}
	if j.Result == nil {
		jsonError(w, "run has not produced results yet", http.StatusConflict)
		return nil, false
	}
	var summary pipeline.RunSummary
	if err := json.Unmarshal(j.Result, &summary); err != nil || summary.OutputDir == "" {
		jsonError(w, "run has no artifacts", http.StatusNotFound)
		return nil, false
	}
	return &summary, true
}

// stageUpload copies the multipart payload into the upload directory under a
// fresh name. The pipeline job removes it when done.
func (h *RunsHandler) stageUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadPath, 0755); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	dst := filepath.Join(h.uploadPath, uuid.New().String()+ext)
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, src); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func artifactName(name string) bool {
	if name == pipeline.TranscriptFile || name == pipeline.DiarizationFile {
		return true
	}
	return strings.HasPrefix(name, "pov_") && strings.HasSuffix(name, ".txt")
}
