package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pov-scribe/backend/internal/diarize"
	"github.com/pov-scribe/backend/internal/fault"
	"github.com/pov-scribe/backend/internal/fetch"
	"github.com/pov-scribe/backend/internal/media"
	"github.com/pov-scribe/backend/internal/narrate"
	"github.com/pov-scribe/backend/internal/recognize"
	"github.com/pov-scribe/backend/internal/workspace"
)

// Degradation thresholds. Both are synthesized defaults pending empirical
// calibration.
const (
	partialCoverageThreshold     = 0.8
	diarizationCoverageThreshold = 0.7
)

// Fetcher resolves the run input into a local media file.
type Fetcher interface {
	Fetch(ctx context.Context, src fetch.MediaSource, ws *workspace.Workspace) (*fetch.LocalMedia, error)
}

// Extractor produces recognizer-ready audio from local media.
type Extractor interface {
	Extract(ctx context.Context, m *fetch.LocalMedia, ws *workspace.Workspace) (*media.AudioTrack, error)
}

// Narrator rewrites a transcript as a POV chapter.
type Narrator interface {
	Rewrite(ctx context.Context, transcript string, cast []narrate.CastEntry, pov narrate.POVRequest) (*narrate.Narrative, error)
	EngineName() string
}

// EnvReport describes process-wide tool and credential availability, probed
// once at orchestrator construction.
type EnvReport struct {
	FFmpeg         bool   `json:"ffmpeg"`
	FFprobe        bool   `json:"ffprobe"`
	Downloader     bool   `json:"downloader"`
	WhisperServer  bool   `json:"whisper_server"`
	NarratorEngine string `json:"narrator_engine,omitempty"`
}

// Options configures orchestrator construction.
type Options struct {
	WhisperURL   string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	ScratchRoot  string
	OutputRoot   string
}

// Orchestrator sequences the pipeline stages, emits progress events,
// enforces the degradation policy, and materializes outputs. Stage engines
// are process-wide read-only state; concurrent runs share them but never
// share a workspace.
type Orchestrator struct {
	fetcher    Fetcher
	extractor  Extractor
	recognizer recognize.Transcriber
	diarizer   diarize.Diarizer
	narrator   Narrator

	geminiModel string
	openaiModel string

	scratchRoot string
	outputRoot  string
	env         EnvReport
	log         *logrus.Entry
}

// New probes the environment and wires the concrete engines. Missing codec
// tools fail construction; a run is never started in a broken environment.
func New(opts Options) (*Orchestrator, error) {
	ffmpeg, ffprobe, err := media.FindTools()
	if err != nil {
		return nil, err
	}

	env := EnvReport{FFmpeg: true, FFprobe: true}
	log := logrus.WithField("component", "pipeline")

	downloader := ""
	if p, err := exec.LookPath("yt-dlp"); err == nil {
		downloader = p
		env.Downloader = true
	} else {
		log.Warn("yt-dlp not found on PATH, URL input disabled")
	}
	env.WhisperServer = opts.WhisperURL != ""

	o := &Orchestrator{
		fetcher:     fetch.New(downloader),
		extractor:   media.NewExtractor(ffmpeg, ffprobe),
		recognizer:  recognize.NewWhisperServerClient(opts.WhisperURL, ffmpeg),
		diarizer:    diarize.NewEnergyDiarizer(),
		geminiModel: opts.GeminiModel,
		openaiModel: opts.OpenAIModel,
		scratchRoot: opts.ScratchRoot,
		outputRoot:  opts.OutputRoot,
		env:         env,
		log:         log,
	}

	switch {
	case opts.GeminiAPIKey != "":
		o.narrator = narrate.New(narrate.NewGeminiEngine(opts.GeminiAPIKey, opts.GeminiModel))
		o.env.NarratorEngine = "gemini"
	case opts.OpenAIAPIKey != "":
		o.narrator = narrate.New(narrate.NewOpenAIEngine(opts.OpenAIAPIKey, opts.OpenAIModel))
		o.env.NarratorEngine = "openai"
	}

	return o, nil
}

// NewWithStages wires explicit stage implementations. Used by tests and by
// callers embedding the pipeline with custom engines.
func NewWithStages(f Fetcher, e Extractor, r recognize.Transcriber, d diarize.Diarizer, n Narrator, scratchRoot, outputRoot string) *Orchestrator {
	return &Orchestrator{
		fetcher:     f,
		extractor:   e,
		recognizer:  r,
		diarizer:    d,
		narrator:    n,
		scratchRoot: scratchRoot,
		outputRoot:  outputRoot,
		log:         logrus.WithField("component", "pipeline"),
	}
}

// Environment returns the construction-time probe report.
func (o *Orchestrator) Environment() EnvReport { return o.env }

// Run executes the full pipeline for one media source. The returned
// artifacts always carry the best partial result; fatal failures are
// recorded on FatalError rather than returned. Cancellation through ctx is
// honored at stage boundaries and inside the recognizer's chunk loop.
func (o *Orchestrator) Run(ctx context.Context, src fetch.MediaSource, cfg RunConfig, sink ProgressSink) *RunArtifacts {
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	art := &RunArtifacts{RunID: uuid.New().String()}
	log := o.log.WithField("run", art.RunID)

	if src.Empty() {
		art.FatalError = &StageError{Stage: StageFetch, Kind: fault.InputInvalid, Message: "no upload or URL provided"}
		return art
	}
	model, err := recognize.ParseModelSize(string(cfg.Model))
	if err != nil {
		art.FatalError = &StageError{Stage: StageRecognize, Kind: fault.InputInvalid, Message: err.Error()}
		return art
	}
	cfg.Model = model

	ws, err := workspace.New(o.scratchRoot, art.RunID)
	if err != nil {
		art.FatalError = &StageError{Stage: StageFetch, Kind: fault.ToolMissing, Message: "cannot create scratch workspace"}
		return art
	}
	defer ws.Dispose()

	begin := func(stage Stage) {
		sink.Publish(Event{Type: EventStageBegin, Stage: stage, Time: time.Now()})
	}
	end := func(stage Stage, status Status, detail string) {
		sink.Publish(Event{Type: EventStageEnd, Stage: stage, Status: status, Detail: detail, Time: time.Now()})
	}
	fail := func(stage Stage, fe *fault.Error) *RunArtifacts {
		se := stageError(stage, fe, ws, cfg.Credentials)
		art.FatalError = &se
		log.WithField("stage", stage).Errorf("run aborted: %s", se.Message)
		return art
	}
	record := func(stage Stage, fe *fault.Error) {
		art.StageErrors = append(art.StageErrors, stageError(stage, fe, ws, cfg.Credentials))
	}
	stageCtx := func(stage Stage) (context.Context, context.CancelFunc) {
		if d := cfg.StageTimeout(stage); d > 0 {
			return context.WithTimeout(ctx, d)
		}
		return context.WithCancel(ctx)
	}

	log.WithField("model", cfg.Model).Info("pipeline run started")

	// Fetch.
	begin(StageFetch)
	fctx, cancel := stageCtx(StageFetch)
	local, err := o.fetcher.Fetch(fctx, src, ws)
	cancel()
	if err != nil {
		fe := classify(StageFetch, ctx, err)
		end(StageFetch, StatusFailed, string(fe.Kind))
		return fail(StageFetch, fe)
	}
	end(StageFetch, StatusOK, local.Container)

	// Extract.
	begin(StageExtract)
	ectx, cancel := stageCtx(StageExtract)
	track, err := o.extractor.Extract(ectx, local, ws)
	cancel()
	if err != nil {
		fe := classify(StageExtract, ctx, err)
		end(StageExtract, StatusFailed, string(fe.Kind))
		return fail(StageExtract, fe)
	}
	end(StageExtract, StatusOK, fmt.Sprintf("%.1fs audio", track.Duration))

	// Recognize. A partial result survives when it covers enough of the
	// audio; anything less is a failed stage.
	begin(StageRecognize)
	rctx, cancel := stageCtx(StageRecognize)
	res, rerr := o.recognizer.Transcribe(rctx, track, cfg.Model, ws)
	cancel()
	var segments []recognize.Segment
	if rerr != nil {
		fe := classify(StageRecognize, ctx, rerr)
		coverage := 0.0
		if res != nil && track.Duration > 0 {
			coverage = res.CoveredSeconds / track.Duration
		}
		if fe.Kind == fault.RecognizerPartial && coverage >= partialCoverageThreshold {
			segments = res.Segments
			msg := fmt.Sprintf("partial transcription: %.0f%% of audio covered", coverage*100)
			art.Warnings = append(art.Warnings, msg)
			record(StageRecognize, fe)
			end(StageRecognize, StatusWarning, msg)
		} else {
			if fe.Kind == fault.RecognizerPartial {
				fe = fault.New(fault.RecognizerUnavailable,
					"partial transcription covers only %.0f%% of audio", coverage*100)
			}
			end(StageRecognize, StatusFailed, string(fe.Kind))
			return fail(StageRecognize, fe)
		}
	} else {
		segments = res.Segments
		end(StageRecognize, StatusOK, fmt.Sprintf("%d segments", len(segments)))
	}

	// Diarize. Failure is non-fatal: the transcript survives unlabeled.
	var turns []diarize.SpeakerTurn
	begin(StageDiarize)
	if cfg.EnableDiarization && o.diarizer != nil {
		dctx, cancel := stageCtx(StageDiarize)
		dturns, derr := o.diarizer.Diarize(dctx, track)
		cancel()
		if derr == nil {
			if cov := diarize.Coverage(dturns, track.Duration); cov < diarizationCoverageThreshold {
				derr = fault.New(fault.DiarizerFailed,
					"speaker turns cover %.0f%% of audio, below %.0f%%",
					cov*100, diarizationCoverageThreshold*100)
			}
		}
		if derr != nil {
			fe := classify(StageDiarize, ctx, derr)
			if fe.Kind == fault.Cancelled {
				end(StageDiarize, StatusFailed, string(fe.Kind))
				return fail(StageDiarize, fe)
			}
			art.DiarizationError = fe.Error()
			record(StageDiarize, fe)
			end(StageDiarize, StatusFailed, string(fe.Kind))
		} else {
			turns = dturns
			art.Diarization = dturns
			end(StageDiarize, StatusOK, fmt.Sprintf("%d turns", len(dturns)))
		}
	} else {
		end(StageDiarize, StatusSkipped, "")
	}

	art.Segments = diarize.Attribute(segments, turns)
	art.Transcript = RenderTranscript(art.Segments)

	// Narrate. Failure is non-fatal: transcript and diarization survive.
	begin(StageNarrate)
	narrator := o.narratorFor(cfg)
	switch {
	case strings.TrimSpace(cfg.POVTarget) == "":
		end(StageNarrate, StatusSkipped, "")
	case narrator == nil:
		fe := fault.New(fault.CredentialMissing, "no narrator credential configured")
		record(StageNarrate, fe)
		end(StageNarrate, StatusFailed, string(fe.Kind))
	default:
		nctx, cancel := stageCtx(StageNarrate)
		nv, nerr := narrator.Rewrite(nctx, art.Transcript, cfg.Cast, narrate.POVRequest{
			Target:    cfg.POVTarget,
			StyleHint: cfg.StyleHint,
		})
		cancel()
		if nerr != nil {
			fe := classify(StageNarrate, ctx, nerr)
			if fe.Kind == fault.Cancelled {
				end(StageNarrate, StatusFailed, string(fe.Kind))
				return fail(StageNarrate, fe)
			}
			record(StageNarrate, fe)
			end(StageNarrate, StatusFailed, string(fe.Kind))
		} else {
			art.Narrative = nv
			art.NarrativeTarget = cfg.POVTarget
			end(StageNarrate, StatusOK, fmt.Sprintf("%d words", nv.WordCount))
		}
	}

	if o.outputRoot != "" && art.Transcript != "" {
		if err := art.Materialize(filepath.Join(o.outputRoot, art.RunID)); err != nil {
			art.Warnings = append(art.Warnings, "artifact materialization failed: "+err.Error())
		}
	}

	log.WithFields(logrus.Fields{
		"segments": len(art.Segments),
		"exit":     art.ExitCode(),
	}).Info("pipeline run finished")
	return art
}

// RunAsync runs the pipeline on its own goroutine. Cancel through ctx; the
// result arrives on the returned channel exactly once.
func (o *Orchestrator) RunAsync(ctx context.Context, src fetch.MediaSource, cfg RunConfig, sink ProgressSink) <-chan *RunArtifacts {
	out := make(chan *RunArtifacts, 1)
	go func() {
		out <- o.Run(ctx, src, cfg, sink)
		close(out)
	}()
	return out
}

// narratorFor prefers per-run credentials over the process-wide engine.
func (o *Orchestrator) narratorFor(cfg RunConfig) Narrator {
	if key := cfg.Credentials["gemini"]; key != "" {
		return narrate.New(narrate.NewGeminiEngine(key, o.geminiModel))
	}
	if key := cfg.Credentials["openai"]; key != "" {
		return narrate.New(narrate.NewOpenAIEngine(key, o.openaiModel))
	}
	return o.narrator
}

// classify maps a stage error onto the failure taxonomy. Run-level
// cancellation beats everything; a stage deadline becomes Timeout, which the
// degradation matrix treats like that stage being unavailable.
func classify(stage Stage, runCtx context.Context, err error) *fault.Error {
	if runCtx.Err() != nil {
		return fault.Wrap(fault.Cancelled, err, "run cancelled during %s", stage)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.Timeout, err, "%s stage exceeded its time budget", stage)
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe
	}
	return fault.Wrap(defaultKind(stage), err, "%s stage failed", stage)
}

func defaultKind(stage Stage) fault.Kind {
	switch stage {
	case StageFetch:
		return fault.FetchUnsupported
	case StageExtract:
		return fault.ExtractFailed
	case StageRecognize:
		return fault.RecognizerUnavailable
	case StageDiarize:
		return fault.DiarizerFailed
	default:
		return fault.NarratorFailed
	}
}

// stageError builds the surfaced record, eliding scratch paths and
// credential values from message and captured stderr.
func stageError(stage Stage, fe *fault.Error, ws *workspace.Workspace, creds map[string]string) StageError {
	se := StageError{Stage: stage, Kind: fe.Kind, Message: sanitize(fe.Error(), ws, creds)}
	if fe.Stderr != "" {
		se.Detail = sanitize(strings.TrimSpace(fe.Stderr), ws, creds)
	}
	return se
}

func sanitize(text string, ws *workspace.Workspace, creds map[string]string) string {
	if ws != nil {
		text = strings.ReplaceAll(text, ws.Root(), "<scratch>")
	}
	for _, v := range creds {
		if v != "" {
			text = strings.ReplaceAll(text, v, "<redacted>")
		}
	}
	return text
}
