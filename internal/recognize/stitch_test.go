package recognize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pov-scribe/backend/internal/fault"
)

func TestParseModelSize(t *testing.T) {
	for _, name := range []string{"tiny", "base", "small", "medium"} {
		m, err := ParseModelSize(name)
		require.NoError(t, err)
		assert.Equal(t, ModelSize(name), m)
	}

	m, err := ParseModelSize("")
	require.NoError(t, err)
	assert.Equal(t, ModelBase, m)

	_, err = ParseModelSize("large-v3")
	assert.True(t, fault.IsKind(err, fault.InputInvalid))
}

func TestStitchShiftsByOffset(t *testing.T) {
	acc := Stitch(nil, []Segment{
		{Start: 0, End: 2.5, Text: "hello"},
		{Start: 2.5, End: 4, Text: "there"},
	}, 600)

	require.Len(t, acc, 2)
	assert.Equal(t, 600.0, acc[0].Start)
	assert.Equal(t, 602.5, acc[0].End)
	assert.Equal(t, 602.5, acc[1].Start)
}

func TestStitchDropsEmptyAndInverted(t *testing.T) {
	acc := Stitch(nil, []Segment{
		{Start: 0, End: 1, Text: "   "},
		{Start: 2, End: 2, Text: "zero length"},
		{Start: 3, End: 2, Text: "inverted"},
		{Start: 4, End: 5, Text: " kept "},
	}, 0)

	require.Len(t, acc, 1)
	assert.Equal(t, "kept", acc[0].Text)
}

func TestStitchClampsBoundaryOverlap(t *testing.T) {
	acc := []Segment{{Start: 0, End: 10, Text: "first"}}

	// Chunk boundary overlap: starts before the previous end, extends past it.
	acc = Stitch(acc, []Segment{{Start: 9, End: 12, Text: "second"}}, 0)
	require.Len(t, acc, 2)
	assert.Equal(t, 10.0, acc[1].Start)
	assert.Equal(t, 12.0, acc[1].End)

	// Fully covered by the previous segment: discarded.
	acc = Stitch(acc, []Segment{{Start: 10.5, End: 11.5, Text: "swallowed"}}, 0)
	assert.Len(t, acc, 2)
}

func TestStitchKeepsMonotonicInvariant(t *testing.T) {
	var acc []Segment
	chunks := [][]Segment{
		{{Start: 0, End: 8, Text: "a"}, {Start: 8, End: 20, Text: "b"}},
		{{Start: 0, End: 5, Text: "c"}, {Start: 5, End: 9, Text: "d"}},
	}
	offsets := []float64{0, 18}
	for i, chunk := range chunks {
		acc = Stitch(acc, chunk, offsets[i])
	}

	for i := 1; i < len(acc); i++ {
		assert.GreaterOrEqual(t, acc[i].Start, acc[i-1].End,
			"segment %d overlaps previous", i)
		assert.Greater(t, acc[i].End, acc[i].Start)
	}
}
