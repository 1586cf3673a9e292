package recognize

import (
	"context"

	"github.com/pov-scribe/backend/internal/fault"
	"github.com/pov-scribe/backend/internal/media"
	"github.com/pov-scribe/backend/internal/workspace"
)

// ModelSize selects the recognizer model. Larger sizes trade latency for
// accuracy.
type ModelSize string

const (
	ModelTiny   ModelSize = "tiny"
	ModelBase   ModelSize = "base"
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
)

// ParseModelSize validates a model name. An empty string defaults to base.
func ParseModelSize(s string) (ModelSize, error) {
	switch ModelSize(s) {
	case "":
		return ModelBase, nil
	case ModelTiny, ModelBase, ModelSmall, ModelMedium:
		return ModelSize(s), nil
	}
	return "", fault.New(fault.InputInvalid, "unknown recognizer model %q", s)
}

// Segment is a time-stamped span of recognized speech. Immutable once
// emitted; segments are ordered by start and non-overlapping.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"` // 0..1 when the model reports one
}

// Result is the output of a transcription. CoveredSeconds is the audio span
// actually transcribed; it falls short of the track duration when a mid-run
// fault left a partial result.
type Result struct {
	Segments       []Segment
	CoveredSeconds float64
	Language       string
}

// Transcriber runs speech-to-text over an extracted audio track. A mid-run
// fault returns the segments produced so far alongside a RecognizerPartial
// error; the caller decides whether the coverage is good enough.
type Transcriber interface {
	Transcribe(ctx context.Context, track *media.AudioTrack, model ModelSize, ws *workspace.Workspace) (*Result, error)
}
