package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pov-scribe/backend/internal/diarize"
	"github.com/pov-scribe/backend/internal/fault"
	"github.com/pov-scribe/backend/internal/narrate"
	"github.com/pov-scribe/backend/internal/recognize"
)

func TestRenderTranscript(t *testing.T) {
	segments := []diarize.AttributedSegment{
		{Segment: recognize.Segment{Start: 0, End: 2, Text: "Hello there."}, Speaker: "SPK_0"},
		{Segment: recognize.Segment{Start: 65.4, End: 70, Text: "General Kenobi."}},
		{Segment: recognize.Segment{Start: 3599, End: 3600, Text: "Late line."}, Speaker: "SPK_1"},
	}

	got := RenderTranscript(segments)
	want := "[00:00] SPK_0 : Hello there.\n" +
		"[01:05] ? : General Kenobi.\n" +
		"[59:59] SPK_1 : Late line.\n"
	assert.Equal(t, want, got)
}

func TestNarrativeFile(t *testing.T) {
	assert.Equal(t, "pov_mabel.txt", NarrativeFile("Mabel"))
	assert.Equal(t, "pov_dr_strange_2.txt", NarrativeFile("Dr. Strange 2"))
	assert.Equal(t, "pov_narrator.txt", NarrativeFile("!!!"))
	assert.Equal(t, "pov_narrator.txt", NarrativeFile(""))
}

func TestMaterialize(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-out")
	art := &RunArtifacts{
		RunID:      "r1",
		Transcript: "[00:00] SPK_0 : Hi.\n",
		Diarization: []diarize.SpeakerTurn{
			{Start: 0, End: 1, Speaker: "SPK_0"},
		},
		Narrative:       &narrate.Narrative{Text: "I said hi.", WordCount: 3},
		NarrativeTarget: "Mabel",
	}

	require.NoError(t, art.Materialize(dir))
	assert.Equal(t, dir, art.OutputDir)

	transcript, err := os.ReadFile(filepath.Join(dir, TranscriptFile))
	require.NoError(t, err)
	assert.Equal(t, art.Transcript, string(transcript))

	assert.FileExists(t, filepath.Join(dir, DiarizationFile))
	assert.FileExists(t, filepath.Join(dir, "pov_mabel.txt"))
}

func TestMaterializeSkipsAbsentArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-out")
	art := &RunArtifacts{RunID: "r2", Transcript: "[00:00] ? : Hi.\n"}

	require.NoError(t, art.Materialize(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, TranscriptFile, entries[0].Name())
}

func TestExitCode(t *testing.T) {
	ok := &RunArtifacts{Transcript: "something"}
	assert.Equal(t, 0, ok.ExitCode())

	partial := &RunArtifacts{
		Transcript:  "something",
		StageErrors: []StageError{{Stage: StageDiarize, Kind: fault.DiarizerFailed}},
	}
	assert.Equal(t, 1, partial.ExitCode())

	fatal := &RunArtifacts{FatalError: &StageError{Stage: StageFetch, Kind: fault.FetchBlocked}}
	assert.Equal(t, 2, fatal.ExitCode())

	empty := &RunArtifacts{}
	assert.Equal(t, 2, empty.ExitCode())
}
