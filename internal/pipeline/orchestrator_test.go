package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pov-scribe/backend/internal/diarize"
	"github.com/pov-scribe/backend/internal/fault"
	"github.com/pov-scribe/backend/internal/fetch"
	"github.com/pov-scribe/backend/internal/media"
	"github.com/pov-scribe/backend/internal/narrate"
	"github.com/pov-scribe/backend/internal/recognize"
	"github.com/pov-scribe/backend/internal/workspace"
)

type stubFetcher struct{ err error }

func (s *stubFetcher) Fetch(ctx context.Context, src fetch.MediaSource, ws *workspace.Workspace) (*fetch.LocalMedia, error) {
	if s.err != nil {
		return nil, s.err
	}
	path, err := ws.Allocate("input.mp4")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte("media"), 0644); err != nil {
		return nil, err
	}
	return &fetch.LocalMedia{Path: path, Size: 5, Container: "mp4"}, nil
}

type stubExtractor struct {
	duration float64
	err      error
}

func (s *stubExtractor) Extract(ctx context.Context, m *fetch.LocalMedia, ws *workspace.Workspace) (*media.AudioTrack, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &media.AudioTrack{Path: m.Path, SampleRate: 16000, Channels: 1, Duration: s.duration}, nil
}

type stubRecognizer struct {
	res   *recognize.Result
	err   error
	block bool
}

func (s *stubRecognizer) Transcribe(ctx context.Context, track *media.AudioTrack, model recognize.ModelSize, ws *workspace.Workspace) (*recognize.Result, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.res, s.err
}

type stubDiarizer struct {
	turns []diarize.SpeakerTurn
	err   error
}

func (s *stubDiarizer) Diarize(ctx context.Context, track *media.AudioTrack) ([]diarize.SpeakerTurn, error) {
	return s.turns, s.err
}

// stubEngine backs a real narrate.Narrator so POV validation runs for real.
type stubEngine struct {
	text  string
	err   error
	block bool
}

func (s *stubEngine) Generate(ctx context.Context, prompt string, cfg narrate.GenerationConfig) (string, error) {
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.text, s.err
}

func (s *stubEngine) Name() string { return "stub" }

var defaultSegments = []recognize.Segment{
	{Start: 0, End: 40, Text: "We should not open that door."},
	{Start: 45, End: 100, Text: "Too late."},
}

func happyOrchestrator(t *testing.T, scratch, output string) *Orchestrator {
	t.Helper()
	return NewWithStages(
		&stubFetcher{},
		&stubExtractor{duration: 100},
		&stubRecognizer{res: &recognize.Result{Segments: defaultSegments, CoveredSeconds: 100}},
		&stubDiarizer{turns: []diarize.SpeakerTurn{
			{Start: 0, End: 42, Speaker: "SPK_0"},
			{Start: 42, End: 100, Speaker: "SPK_1"},
		}},
		narrate.New(&stubEngine{text: "I told him not to open it."}),
		scratch, output,
	)
}

func baseConfig() RunConfig {
	return RunConfig{
		Model:             recognize.ModelBase,
		EnableDiarization: true,
		Cast:              []narrate.CastEntry{{Name: "Mabel", Role: "the optimist"}},
		POVTarget:         "mabel",
	}
}

func collectEvents(events *[]Event) ProgressSink {
	return SinkFunc(func(e Event) { *events = append(*events, e) })
}

func TestRunHappyPath(t *testing.T) {
	scratch := t.TempDir()
	output := t.TempDir()
	o := happyOrchestrator(t, scratch, output)

	var events []Event
	art := o.Run(context.Background(), fetch.MediaSource{Upload: []byte("x"), Filename: "a.mp4"}, baseConfig(), collectEvents(&events))

	require.Nil(t, art.FatalError)
	assert.Equal(t, 0, art.ExitCode())
	assert.Contains(t, art.Transcript, "[00:00] SPK_0 : We should not open that door.")
	assert.Contains(t, art.Transcript, "[00:45] SPK_1 : Too late.")
	require.NotNil(t, art.Narrative)
	assert.Equal(t, "mabel", art.NarrativeTarget)

	// Artifacts on disk
	runDir := filepath.Join(output, art.RunID)
	assert.FileExists(t, filepath.Join(runDir, TranscriptFile))
	assert.FileExists(t, filepath.Join(runDir, DiarizationFile))
	assert.FileExists(t, filepath.Join(runDir, "pov_mabel.txt"))

	// Scratch workspace removed
	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Events arrive in stage order, begin before end, all ok
	wantStages := []Stage{StageFetch, StageExtract, StageRecognize, StageDiarize, StageNarrate}
	require.Len(t, events, 10)
	for i, stage := range wantStages {
		assert.Equal(t, EventStageBegin, events[i*2].Type)
		assert.Equal(t, stage, events[i*2].Stage)
		assert.Equal(t, EventStageEnd, events[i*2+1].Type)
		assert.Equal(t, stage, events[i*2+1].Stage)
		assert.Equal(t, StatusOK, events[i*2+1].Status)
	}
}

func TestRunBlockedURLIsFatal(t *testing.T) {
	scratch := t.TempDir()
	o := NewWithStages(
		fetch.New(""), // real fetcher enforces the blocklist
		&stubExtractor{duration: 100},
		&stubRecognizer{res: &recognize.Result{Segments: defaultSegments, CoveredSeconds: 100}},
		&stubDiarizer{},
		nil,
		scratch, "",
	)

	art := o.Run(context.Background(), fetch.MediaSource{URL: "https://www.netflix.com/watch/1"}, baseConfig(), nil)

	require.NotNil(t, art.FatalError)
	assert.Equal(t, fault.FetchBlocked, art.FatalError.Kind)
	assert.Equal(t, 2, art.ExitCode())
	assert.Empty(t, art.Transcript)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch must be cleaned on fatal failure")
}

func TestRunRejectsUnknownModel(t *testing.T) {
	o := happyOrchestrator(t, t.TempDir(), "")
	cfg := baseConfig()
	cfg.Model = "gigantic"

	art := o.Run(context.Background(), fetch.MediaSource{Upload: []byte("x")}, cfg, nil)
	require.NotNil(t, art.FatalError)
	assert.Equal(t, fault.InputInvalid, art.FatalError.Kind)
}

func TestRunRejectsEmptySource(t *testing.T) {
	o := happyOrchestrator(t, t.TempDir(), "")

	art := o.Run(context.Background(), fetch.MediaSource{}, baseConfig(), nil)
	require.NotNil(t, art.FatalError)
	assert.Equal(t, fault.InputInvalid, art.FatalError.Kind)
}

func TestRunDiarizerFailureIsSoft(t *testing.T) {
	o := NewWithStages(
		&stubFetcher{},
		&stubExtractor{duration: 100},
		&stubRecognizer{res: &recognize.Result{Segments: defaultSegments, CoveredSeconds: 100}},
		&stubDiarizer{err: fault.New(fault.DiarizerFailed, "model exploded")},
		narrate.New(&stubEngine{text: "chapter"}),
		t.TempDir(), "",
	)

	art := o.Run(context.Background(), fetch.MediaSource{Upload: []byte("x")}, baseConfig(), nil)

	require.Nil(t, art.FatalError)
	assert.Equal(t, 1, art.ExitCode())
	assert.NotEmpty(t, art.DiarizationError)
	assert.Nil(t, art.Diarization)
	// Transcript survives, unlabeled
	assert.Contains(t, art.Transcript, "[00:00] ? : We should not open that door.")
	// Narration still ran
	assert.NotNil(t, art.Narrative)
}

func TestRunDiarizationCoverageTooLow(t *testing.T) {
	o := NewWithStages(
		&stubFetcher{},
		&stubExtractor{duration: 100},
		&stubRecognizer{res: &recognize.Result{Segments: defaultSegments, CoveredSeconds: 100}},
		&stubDiarizer{turns: []diarize.SpeakerTurn{{Start: 0, End: 50, Speaker: "SPK_0"}}},
		nil,
		t.TempDir(), "",
	)
	cfg := baseConfig()
	cfg.POVTarget = ""

	art := o.Run(context.Background(), fetch.MediaSource{Upload: []byte("x")}, cfg, nil)

	require.Nil(t, art.FatalError)
	assert.Nil(t, art.Diarization)
	require.Len(t, art.StageErrors, 1)
	assert.Equal(t, fault.DiarizerFailed, art.StageErrors[0].Kind)
	assert.Contains(t, art.Transcript, "?")
}

func TestRunInvalidPOVTargetIsSoft(t *testing.T) {
	o := happyOrchestrator(t, t.TempDir(), "")
	cfg := baseConfig()
	cfg.POVTarget = "Stanford"

	art := o.Run(context.Background(), fetch.MediaSource{Upload: []byte("x")}, cfg, nil)

	require.Nil(t, art.FatalError)
	assert.Nil(t, art.Narrative)
	require.Len(t, art.StageErrors, 1)
	assert.Equal(t, fault.POVInvalidTarget, art.StageErrors[0].Kind)
	assert.NotEmpty(t, art.Transcript)
	assert.Equal(t, 1, art.ExitCode())
}

func TestRunNoNarratorConfigured(t *testing.T) {
	o := NewWithStages(
		&stubFetcher{},
		&stubExtractor{duration: 100},
		&stubRecognizer{res: &recognize.Result{Segments: defaultSegments, CoveredSeconds: 100}},
		&stubDiarizer{},
		nil,
		t.TempDir(), "",
	)
	cfg := baseConfig()
	cfg.EnableDiarization = false

	art := o.Run(context.Background(), fetch.MediaSource{Upload: []byte("x")}, cfg, nil)

	require.Nil(t, art.FatalError)
	require.Len(t, art.StageErrors, 1)
	assert.Equal(t, fault.CredentialMissing, art.StageErrors[0].Kind)
}

func TestRunSkipsNarrationWithoutTarget(t *testing.T) {
	o := happyOrchestrator(t, t.TempDir(), "")
	cfg := baseConfig()
	cfg.POVTarget = ""

	var events []Event
	art := o.Run(context.Background(), fetch.MediaSource{Upload: []byte("x")}, cfg, collectEvents(&events))

	require.Nil(t, art.FatalError)
	assert.Nil(t, art.Narrative)
	assert.Equal(t, 0, art.ExitCode())

	last := events[len(events)-1]
	assert.Equal(t, StageNarrate, last.Stage)
	assert.Equal(t, StatusSkipped, last.Status)
}

func TestRunAcceptsPartialTranscriptionAboveThreshold(t *testing.T) {
	partial := &recognize.Result{
		Segments:       []recognize.Segment{{Start: 0, End: 85, Text: "most of it"}},
		CoveredSeconds: 85,
	}
	o := NewWithStages(
		&stubFetcher{},
		&stubExtractor{duration: 100},
		&stubRecognizer{res: partial, err: fault.New(fault.RecognizerPartial, "chunk 2 of 2 faulted")},
		&stubDiarizer{},
		nil,
		t.TempDir(), "",
	)
	cfg := baseConfig()
	cfg.EnableDiarization = false
	cfg.POVTarget = ""

	art := o.Run(context.Background(), fetch.MediaSource{Upload: []byte("x")}, cfg, nil)

	require.Nil(t, art.FatalError)
	assert.NotEmpty(t, art.Transcript)
	assert.NotEmpty(t, art.Warnings)
	require.Len(t, art.StageErrors, 1)
	assert.Equal(t, fault.RecognizerPartial, art.StageErrors[0].Kind)
	assert.Equal(t, 1, art.ExitCode())
}

func TestRunRejectsPartialTranscriptionBelowThreshold(t *testing.T) {
	partial := &recognize.Result{
		Segments:       []recognize.Segment{{Start: 0, End: 50, Text: "half of it"}},
		CoveredSeconds: 50,
	}
	o := NewWithStages(
		&stubFetcher{},
		&stubExtractor{duration: 100},
		&stubRecognizer{res: partial, err: fault.New(fault.RecognizerPartial, "chunk 1 of 2 faulted")},
		&stubDiarizer{},
		nil,
		t.TempDir(), "",
	)

	art := o.Run(context.Background(), fetch.MediaSource{Upload: []byte("x")}, baseConfig(), nil)

	require.NotNil(t, art.FatalError)
	assert.Equal(t, fault.RecognizerUnavailable, art.FatalError.Kind)
	assert.Equal(t, 2, art.ExitCode())
}

func TestRunCancellationMidRecognize(t *testing.T) {
	scratch := t.TempDir()
	output := t.TempDir()
	o := NewWithStages(
		&stubFetcher{},
		&stubExtractor{duration: 100},
		&stubRecognizer{block: true},
		&stubDiarizer{},
		nil,
		scratch, output,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	art := o.Run(ctx, fetch.MediaSource{Upload: []byte("x")}, baseConfig(), nil)

	require.NotNil(t, art.FatalError)
	assert.Equal(t, fault.Cancelled, art.FatalError.Kind)

	// Nothing materialized, scratch cleaned
	entries, err := os.ReadDir(output)
	require.NoError(t, err)
	assert.Empty(t, entries)
	entries, err = os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunNarrateTimeoutIsSoft(t *testing.T) {
	o := NewWithStages(
		&stubFetcher{},
		&stubExtractor{duration: 100},
		&stubRecognizer{res: &recognize.Result{Segments: defaultSegments, CoveredSeconds: 100}},
		&stubDiarizer{},
		narrate.New(&stubEngine{block: true}),
		t.TempDir(), "",
	)
	cfg := baseConfig()
	cfg.EnableDiarization = false
	cfg.StageTimeouts = map[string]int{"narrate": 1}

	art := o.Run(context.Background(), fetch.MediaSource{Upload: []byte("x")}, cfg, nil)

	require.Nil(t, art.FatalError)
	assert.Nil(t, art.Narrative)
	require.Len(t, art.StageErrors, 1)
	assert.Equal(t, fault.Timeout, art.StageErrors[0].Kind)
	assert.NotEmpty(t, art.Transcript)
}

func TestRunExtractFailure(t *testing.T) {
	o := NewWithStages(
		&stubFetcher{},
		&stubExtractor{err: errors.New("ffmpeg exploded")},
		&stubRecognizer{},
		&stubDiarizer{},
		nil,
		t.TempDir(), "",
	)

	art := o.Run(context.Background(), fetch.MediaSource{Upload: []byte("x")}, baseConfig(), nil)
	require.NotNil(t, art.FatalError)
	assert.Equal(t, fault.ExtractFailed, art.FatalError.Kind)
}

func TestNewFailsWithoutCodecTools(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := New(Options{ScratchRoot: t.TempDir()})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.ToolMissing))
}

func TestNarratorForPerRunCredentials(t *testing.T) {
	o := NewWithStages(&stubFetcher{}, &stubExtractor{}, &stubRecognizer{}, &stubDiarizer{}, nil, t.TempDir(), "")
	o.geminiModel = "gemini-2.0-flash"
	o.openaiModel = "gpt-4o-mini"

	cfg := baseConfig()
	assert.Nil(t, o.narratorFor(cfg), "no credentials and no process engine")

	cfg.Credentials = map[string]string{"gemini": "per-run-key"}
	require.NotNil(t, o.narratorFor(cfg))

	cfg.Credentials = map[string]string{"openai": "per-run-key"}
	require.NotNil(t, o.narratorFor(cfg))

	// A configured process engine still loses to per-run credentials.
	engine := &stubEngine{text: "fallback"}
	o.narrator = narrate.New(engine)
	cfg.Credentials = nil
	assert.Equal(t, o.narrator, o.narratorFor(cfg))
}

func TestRunAsyncDeliversResult(t *testing.T) {
	o := happyOrchestrator(t, t.TempDir(), "")
	cfg := baseConfig()

	ch := o.RunAsync(context.Background(), fetch.MediaSource{Upload: []byte("x")}, cfg, nil)
	select {
	case art := <-ch:
		require.NotNil(t, art)
		assert.Nil(t, art.FatalError)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}

func TestSanitizeElidesSecretsAndPaths(t *testing.T) {
	ws, err := workspace.New(t.TempDir(), "x")
	require.NoError(t, err)
	defer ws.Dispose()

	text := "wrote " + ws.Root() + "/audio.wav with key sk-verysecret"
	out := sanitize(text, ws, map[string]string{"openai": "sk-verysecret"})

	assert.NotContains(t, out, ws.Root())
	assert.NotContains(t, out, "sk-verysecret")
	assert.Contains(t, out, "<scratch>")
	assert.Contains(t, out, "<redacted>")
}
