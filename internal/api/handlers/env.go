package handlers

import (
	"net/http"

	"github.com/pov-scribe/backend/internal/pipeline"
)

// EnvHandler exposes the construction-time environment probe so clients can
// disable inputs the host cannot serve (e.g. URL input without a downloader).
type EnvHandler struct {
	orch *pipeline.Orchestrator
}

func NewEnvHandler(orch *pipeline.Orchestrator) *EnvHandler {
	return &EnvHandler{orch: orch}
}

func (h *EnvHandler) GetEnvironment(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, h.orch.Environment(), http.StatusOK)
}
