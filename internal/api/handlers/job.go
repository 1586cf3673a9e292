package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pov-scribe/backend/internal/job"
)

// JobHandler exposes the queue that backs pipeline runs. A run's transcript
// and narrative artifacts are served by RunsHandler; this handler deals with
// the queued job lifecycle around them.
type JobHandler struct {
	queue *job.JobQueue
}

func NewJobHandler(queue *job.JobQueue) *JobHandler {
	return &JobHandler{queue: queue}
}

// ListJobs returns queued, running and finished jobs, newest first. An
// optional ?type= filter narrows the list, e.g. ?type=pipeline_run.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.ListJobs()
	if err != nil {
		jsonError(w, "failed to list jobs: "+err.Error(), http.StatusInternalServerError)
		return
	}

	wantType := r.URL.Query().Get("type")
	filtered := make([]*job.Job, 0, len(jobs))
	for _, j := range jobs {
		if wantType != "" && string(j.Type) != wantType {
			continue
		}
		filtered = append(filtered, j)
	}
	jsonResponse(w, filtered, http.StatusOK)
}

// GetJob returns one job with its progress and, once finished, the run
// summary persisted as its result.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.queue.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, j, http.StatusOK)
}

// CancelJob stops a pending or running job. A running pipeline run observes
// the cancellation between stages and cleans up its scratch workspace.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.CancelJob(chi.URLParam(r, "id")); err != nil {
		jsonError(w, "failed to cancel job: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryJob re-queues a failed or cancelled job with its original parameters.
// Per-run credentials are consumed when a job first starts, so a retried run
// falls back to the server's configured narrator engine.
func (h *JobHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.RetryJob(chi.URLParam(r, "id")); err != nil {
		jsonError(w, "failed to retry job: "+err.Error(), http.StatusBadRequest)
		return
	}
	jsonResponse(w, map[string]string{"status": "retrying"}, http.StatusOK)
}
