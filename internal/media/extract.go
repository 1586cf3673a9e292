package media

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/pov-scribe/backend/internal/fault"
	"github.com/pov-scribe/backend/internal/fetch"
	"github.com/pov-scribe/backend/internal/workspace"
)

// Canonical recognizer input format: mono 16 kHz PCM. Downsampling once here
// avoids repeated conversions in the recognizer and caps memory.
const (
	SampleRate = 16000
	Channels   = 1
)

// AudioTrack is the extracted audio file. Read-only after creation.
type AudioTrack struct {
	Path       string
	SampleRate int
	Channels   int
	Duration   float64 // seconds
}

// FindTools locates the codec tools on the host path. Their absence is a
// fatal environment error surfaced before any pipeline starts.
func FindTools() (ffmpeg, ffprobe string, err error) {
	ffmpeg, err = exec.LookPath("ffmpeg")
	if err != nil {
		return "", "", fault.New(fault.ToolMissing, "ffmpeg not found on PATH")
	}
	ffprobe, err = exec.LookPath("ffprobe")
	if err != nil {
		return "", "", fault.New(fault.ToolMissing, "ffprobe not found on PATH")
	}
	return ffmpeg, ffprobe, nil
}

// Extractor shells out to ffmpeg/ffprobe to produce recognizer-ready audio.
type Extractor struct {
	ffmpeg  string
	ffprobe string
}

func NewExtractor(ffmpeg, ffprobe string) *Extractor {
	return &Extractor{ffmpeg: ffmpeg, ffprobe: ffprobe}
}

// Extract produces audio.wav (mono, 16 kHz, PCM s16le) in the workspace.
func (e *Extractor) Extract(ctx context.Context, m *fetch.LocalMedia, ws *workspace.Workspace) (*AudioTrack, error) {
	out, err := ws.Allocate("audio.wav")
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.ffmpeg,
		"-hide_banner",
		"-loglevel", "error",
		"-i", m.Path,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", fmt.Sprint(Channels),
		"-ar", fmt.Sprint(SampleRate),
		"-y",
		out,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fe := fault.Wrap(fault.ExtractFailed, err, "audio extraction failed")
		fe.Stderr = string(output)
		return nil, fe
	}

	info, err := Probe(ctx, e.ffprobe, out)
	if err != nil {
		return nil, fmt.Errorf("probe extracted audio: %w", err)
	}

	return &AudioTrack{
		Path:       out,
		SampleRate: SampleRate,
		Channels:   Channels,
		Duration:   info.Duration,
	}, nil
}
