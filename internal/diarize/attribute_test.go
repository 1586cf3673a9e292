package diarize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pov-scribe/backend/internal/recognize"
)

func TestAttributeMaxOverlap(t *testing.T) {
	segments := []recognize.Segment{
		{Start: 0, End: 4, Text: "mostly first speaker"},
		{Start: 4, End: 10, Text: "second speaker"},
	}
	turns := []SpeakerTurn{
		{Start: 0, End: 3, Speaker: "SPK_0"},
		{Start: 3, End: 10, Speaker: "SPK_1"},
	}

	out := Attribute(segments, turns)
	require.Len(t, out, 2)
	assert.Equal(t, "SPK_0", out[0].Speaker) // 3s overlap beats 1s
	assert.Equal(t, "SPK_1", out[1].Speaker)
}

func TestAttributeTieGoesToEarlierTurn(t *testing.T) {
	segments := []recognize.Segment{{Start: 0, End: 4, Text: "split evenly"}}
	turns := []SpeakerTurn{
		{Start: 0, End: 2, Speaker: "SPK_0"},
		{Start: 2, End: 4, Speaker: "SPK_1"},
	}

	out := Attribute(segments, turns)
	assert.Equal(t, "SPK_0", out[0].Speaker)
}

func TestAttributeNoOverlapStaysUnlabeled(t *testing.T) {
	segments := []recognize.Segment{{Start: 10, End: 12, Text: "off in the distance"}}
	turns := []SpeakerTurn{{Start: 0, End: 5, Speaker: "SPK_0"}}

	out := Attribute(segments, turns)
	assert.Empty(t, out[0].Speaker)
}

func TestAttributeNilTurns(t *testing.T) {
	segments := []recognize.Segment{
		{Start: 0, End: 1, Text: "a"},
		{Start: 1, End: 2, Text: "b"},
	}
	out := Attribute(segments, nil)
	require.Len(t, out, 2)
	for _, s := range out {
		assert.Empty(t, s.Speaker)
	}
}

func TestCoverage(t *testing.T) {
	turns := []SpeakerTurn{
		{Start: 0, End: 30, Speaker: "SPK_0"},
		{Start: 40, End: 80, Speaker: "SPK_1"},
	}
	assert.InDelta(t, 0.7, Coverage(turns, 100), 1e-9)
	assert.Equal(t, 0.0, Coverage(turns, 0))
	assert.Equal(t, 0.0, Coverage(nil, 100))

	// Over-long turns clamp to 1.0
	assert.Equal(t, 1.0, Coverage([]SpeakerTurn{{Start: 0, End: 200, Speaker: "SPK_0"}}, 100))
}
