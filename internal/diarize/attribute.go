package diarize

import (
	"github.com/pov-scribe/backend/internal/recognize"
)

// AttributedSegment is a transcript segment plus an optional speaker label.
type AttributedSegment struct {
	recognize.Segment
	Speaker string `json:"speaker,omitempty"`
}

// Attribute assigns each segment the label of the turn with maximum temporal
// overlap. Ties break to the earlier turn; a segment overlapping no turn
// stays unlabeled. With nil turns every segment comes back unlabeled.
func Attribute(segments []recognize.Segment, turns []SpeakerTurn) []AttributedSegment {
	out := make([]AttributedSegment, len(segments))
	for i, s := range segments {
		out[i] = AttributedSegment{Segment: s}
		best := 0.0
		for _, t := range turns {
			ov := overlap(s.Start, s.End, t.Start, t.End)
			if ov > best { // strict: earlier turn wins ties
				best = ov
				out[i].Speaker = t.Speaker
			}
		}
	}
	return out
}

func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	if end <= start {
		return 0
	}
	return end - start
}
