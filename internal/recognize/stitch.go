package recognize

import "strings"

// Stitch appends a chunk's segments to acc, shifting chunk-relative times by
// offset and keeping the accumulated sequence monotonic and non-overlapping.
// Whitespace-only segments are dropped; a segment fully covered by the
// previous one is discarded, a boundary overlap is clamped to the previous
// end.
func Stitch(acc []Segment, chunk []Segment, offset float64) []Segment {
	for _, s := range chunk {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		seg := Segment{
			Start:      s.Start + offset,
			End:        s.End + offset,
			Text:       text,
			Confidence: s.Confidence,
		}
		if seg.End <= seg.Start {
			continue
		}
		if n := len(acc); n > 0 {
			prev := acc[n-1]
			if seg.End <= prev.End {
				continue
			}
			if seg.Start < prev.End {
				seg.Start = prev.End
			}
		}
		acc = append(acc, seg)
	}
	return acc
}
