package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pov-scribe/backend/internal/fetch"
	"github.com/pov-scribe/backend/internal/job"
)

// RunParams are the queued parameters for a pipeline_run job. Uploads are
// staged to disk by the API layer and referenced by path so the queue never
// persists raw media bytes.
type RunParams struct {
	URL        string `json:"url,omitempty"`
	UploadPath string `json:"upload_path,omitempty"`
	Filename   string `json:"filename,omitempty"`
	MIMEHint   string `json:"mime_hint,omitempty"`
	RunConfig
}

// RunSummary is the persisted job result: the run outcome without the full
// transcript body, which lives in the run's output directory.
type RunSummary struct {
	RunID            string       `json:"run_id"`
	OutputDir        string       `json:"output_dir,omitempty"`
	Segments         int          `json:"segments"`
	HasDiarization   bool         `json:"has_diarization"`
	HasNarrative     bool         `json:"has_narrative"`
	NarrativeTarget  string       `json:"narrative_target,omitempty"`
	DiarizationError string       `json:"diarization_error,omitempty"`
	Warnings         []string     `json:"warnings,omitempty"`
	StageErrors      []StageError `json:"stage_errors,omitempty"`
	FatalError       *StageError  `json:"fatal_error,omitempty"`
	ExitCode         int          `json:"exit_code"`
}

// Service adapts the orchestrator to the job queue.
type Service struct {
	orch *Orchestrator
	log  *logrus.Entry

	mu    sync.Mutex
	creds map[string]map[string]string // job ID -> provider -> opaque value
}

func NewService(orch *Orchestrator) *Service {
	return &Service{
		orch:  orch,
		log:   logrus.WithField("component", "pipeline-service"),
		creds: make(map[string]map[string]string),
	}
}

// GrantCredentials attaches per-run credentials to a queued job. They live
// in process memory only; queued params and job rows never carry them. The
// grant is consumed when the job starts, so a retried job falls back to the
// process-wide engine.
func (s *Service) GrantCredentials(jobID string, creds map[string]string) {
	if len(creds) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[jobID] = creds
}

func (s *Service) takeCredentials(jobID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds := s.creds[jobID]
	delete(s.creds, jobID)
	return creds
}

// stageProgress maps a completed stage to coarse job progress.
var stageProgress = map[Stage]float64{
	StageFetch:     0.15,
	StageExtract:   0.25,
	StageRecognize: 0.65,
	StageDiarize:   0.80,
	StageNarrate:   0.95,
}

// HandleJob is the job.JobHandler for pipeline runs.
func (s *Service) HandleJob(ctx context.Context, j *job.Job, updateProgress func(float64)) error {
	var params RunParams
	if err := json.Unmarshal(j.Params, &params); err != nil {
		return fmt.Errorf("parse run params: %w", err)
	}
	params.Credentials = s.takeCredentials(j.ID)

	src := fetch.MediaSource{
		URL:      params.URL,
		Filename: params.Filename,
		MIMEHint: params.MIMEHint,
	}
	if params.UploadPath != "" {
		data, err := os.ReadFile(params.UploadPath)
		if err != nil {
			return fmt.Errorf("read staged upload: %w", err)
		}
		src.Upload = data
		defer os.Remove(params.UploadPath)
	}

	sink := NewBufferedSink(16, func(e Event) {
		if e.Type != EventStageEnd {
			return
		}
		if p, ok := stageProgress[e.Stage]; ok {
			updateProgress(p)
		}
	})

	art := s.orch.Run(ctx, src, params.RunConfig, sink)
	sink.Close()

	summary := RunSummary{
		RunID:            art.RunID,
		OutputDir:        art.OutputDir,
		Segments:         len(art.Segments),
		HasDiarization:   art.Diarization != nil,
		HasNarrative:     art.Narrative != nil,
		NarrativeTarget:  art.NarrativeTarget,
		DiarizationError: art.DiarizationError,
		Warnings:         art.Warnings,
		StageErrors:      art.StageErrors,
		FatalError:       art.FatalError,
		ExitCode:         art.ExitCode(),
	}
	if result, err := json.Marshal(summary); err == nil {
		j.Result = result
	}

	if art.FatalError != nil {
		return fmt.Errorf("%s failed (%s): %s", art.FatalError.Stage, art.FatalError.Kind, art.FatalError.Message)
	}

	s.log.WithFields(logrus.Fields{
		"job":  j.ID,
		"run":  art.RunID,
		"exit": summary.ExitCode,
	}).Info("pipeline job finished")
	updateProgress(1.0)
	return nil
}
