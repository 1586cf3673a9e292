package diarize

import (
	"context"
	"fmt"
	"math"

	"github.com/pov-scribe/backend/internal/fault"
	"github.com/pov-scribe/backend/internal/media"
)

// EnergyDiarizer segments speech on silence gaps and alternates opaque
// labels between turns. A heuristic stand-in for a model-based diarizer: it
// needs no weights and no network, and the labels it emits are as opaque as
// the contract requires.
type EnergyDiarizer struct {
	WindowSec  float64 // RMS analysis window
	SilenceSec float64 // minimum quiet gap that closes a turn
	Threshold  float64 // RMS floor below which a window counts as silence
	Speakers   int     // number of labels to rotate through
}

// NewEnergyDiarizer returns a diarizer with defaults tuned for conversational
// recordings.
func NewEnergyDiarizer() *EnergyDiarizer {
	return &EnergyDiarizer{
		WindowSec:  0.25,
		SilenceSec: 1.0,
		Threshold:  0.015,
		Speakers:   2,
	}
}

// Diarize reads the extracted WAV and emits ordered, non-overlapping turns
// labeled SPK_0, SPK_1, ...
func (d *EnergyDiarizer) Diarize(ctx context.Context, track *media.AudioTrack) ([]SpeakerTurn, error) {
	samples, rate, err := readWAV(track.Path)
	if err != nil {
		return nil, fault.Wrap(fault.DiarizerFailed, err, "read audio for diarization")
	}
	if len(samples) == 0 {
		return nil, fault.New(fault.DiarizerFailed, "audio track is empty")
	}

	windowSamples := int(d.WindowSec * float64(rate))
	if windowSamples <= 0 {
		windowSamples = rate / 4
	}

	// Per-window RMS, then voiced runs separated by silence.
	numWindows := (len(samples) + windowSamples - 1) / windowSamples
	voiced := make([]bool, numWindows)
	for w := 0; w < numWindows; w++ {
		if w%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		start := w * windowSamples
		end := start + windowSamples
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[start:end] {
			sum += float64(s) * float64(s)
		}
		rms := math.Sqrt(sum / float64(end-start))
		voiced[w] = rms >= d.Threshold
	}

	silenceWindows := int(d.SilenceSec / d.WindowSec)
	if silenceWindows < 1 {
		silenceWindows = 1
	}

	var turns []SpeakerTurn
	speaker := 0
	turnStart := -1
	quiet := 0
	closeTurn := func(endWindow int) {
		if turnStart < 0 {
			return
		}
		turns = append(turns, SpeakerTurn{
			Start:   float64(turnStart) * d.WindowSec,
			End:     float64(endWindow) * d.WindowSec,
			Speaker: fmt.Sprintf("SPK_%d", speaker),
		})
		speaker = (speaker + 1) % d.Speakers
		turnStart = -1
	}

	for w := 0; w < numWindows; w++ {
		if voiced[w] {
			if turnStart < 0 {
				turnStart = w
			}
			quiet = 0
			continue
		}
		quiet++
		if quiet == silenceWindows {
			closeTurn(w - silenceWindows + 1)
		}
	}
	closeTurn(numWindows)

	return turns, nil
}
