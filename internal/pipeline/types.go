package pipeline

import (
	"time"

	"github.com/pov-scribe/backend/internal/diarize"
	"github.com/pov-scribe/backend/internal/fault"
	"github.com/pov-scribe/backend/internal/narrate"
	"github.com/pov-scribe/backend/internal/recognize"
)

// RunConfig is the per-run configuration bundle.
type RunConfig struct {
	Model             recognize.ModelSize  `json:"recognizer_model,omitempty"`
	EnableDiarization bool                 `json:"enable_diarization,omitempty"`
	Cast              []narrate.CastEntry  `json:"cast,omitempty"`
	POVTarget         string               `json:"pov_target,omitempty"`
	StyleHint         string               `json:"style_hint,omitempty"`
	StageTimeouts     map[string]int       `json:"stage_timeouts,omitempty"` // stage name -> seconds
	Credentials       map[string]string    `json:"-"`                        // provider -> opaque value, never serialized
}

// StageTimeout returns the configured wall-clock budget for a stage, zero
// when unlimited.
func (c RunConfig) StageTimeout(stage Stage) time.Duration {
	if c.StageTimeouts == nil {
		return 0
	}
	secs := c.StageTimeouts[string(stage)]
	if secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// StageError records a classified failure for one stage.
type StageError struct {
	Stage   Stage      `json:"stage"`
	Kind    fault.Kind `json:"kind"`
	Message string     `json:"message"`
	Detail  string     `json:"detail,omitempty"` // sanitized tool stderr
}

// RunArtifacts is everything one run produced, materialized incrementally.
// Transcript is present whenever the recognizer succeeded, regardless of
// downstream outcomes.
type RunArtifacts struct {
	RunID            string                      `json:"run_id"`
	Transcript       string                      `json:"transcript,omitempty"`
	Segments         []diarize.AttributedSegment `json:"segments,omitempty"`
	Diarization      []diarize.SpeakerTurn       `json:"diarization,omitempty"`
	DiarizationError string                      `json:"diarization_error,omitempty"`
	Narrative        *narrate.Narrative          `json:"narrative,omitempty"`
	NarrativeTarget  string                      `json:"narrative_target,omitempty"`
	StageErrors      []StageError                `json:"stage_errors,omitempty"`
	Warnings         []string                    `json:"warnings,omitempty"`
	FatalError       *StageError                 `json:"fatal_error,omitempty"`
	OutputDir        string                      `json:"output_dir,omitempty"`
}

// ExitCode maps the run outcome to batch-tool conventions: 0 success,
// 1 partial (at least a transcript), 2 fatal (no transcript).
func (a *RunArtifacts) ExitCode() int {
	if a.FatalError != nil || a.Transcript == "" {
		return 2
	}
	if len(a.StageErrors) > 0 {
		return 1
	}
	return 0
}
