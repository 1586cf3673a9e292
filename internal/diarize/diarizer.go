package diarize

import (
	"context"

	"github.com/pov-scribe/backend/internal/media"
)

// SpeakerTurn assigns an opaque speaker label to a time range. Labels carry
// no identity; mapping them to real names is not this layer's job.
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Diarizer produces ordered, non-overlapping speaker turns for a track.
type Diarizer interface {
	Diarize(ctx context.Context, track *media.AudioTrack) ([]SpeakerTurn, error)
}

// Coverage returns the fraction of the duration covered by turns. Turns are
// assumed non-overlapping.
func Coverage(turns []SpeakerTurn, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	var covered float64
	for _, t := range turns {
		if t.End > t.Start {
			covered += t.End - t.Start
		}
	}
	if covered > duration {
		covered = duration
	}
	return covered / duration
}
