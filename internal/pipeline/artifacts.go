package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pov-scribe/backend/internal/diarize"
)

// Artifact file names within a run's output directory.
const (
	TranscriptFile  = "transcript.txt"
	DiarizationFile = "diarization.json"
)

// RenderTranscript formats attributed segments one line per segment:
// [MM:SS] <speaker-label or "?"> : <text>
func RenderTranscript(segments []diarize.AttributedSegment) string {
	var b strings.Builder
	for _, s := range segments {
		label := s.Speaker
		if label == "" {
			label = "?"
		}
		fmt.Fprintf(&b, "[%s] %s : %s\n", formatTimestamp(s.Start), label, s.Text)
	}
	return b.String()
}

func formatTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(sec)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// NarrativeFile returns the output file name for a POV target.
func NarrativeFile(target string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(target) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		name = "narrator"
	}
	return "pov_" + name + ".txt"
}

// Materialize writes the downloadable artifacts under dir and records the
// directory on the artifacts. Only what exists is written.
func (a *RunArtifacts) Materialize(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if a.Transcript != "" {
		if err := os.WriteFile(filepath.Join(dir, TranscriptFile), []byte(a.Transcript), 0644); err != nil {
			return fmt.Errorf("write transcript: %w", err)
		}
	}
	if a.Diarization != nil {
		data, err := json.MarshalIndent(a.Diarization, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, DiarizationFile), data, 0644); err != nil {
			return fmt.Errorf("write diarization: %w", err)
		}
	}
	if a.Narrative != nil {
		name := NarrativeFile(a.NarrativeTarget)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(a.Narrative.Text), 0644); err != nil {
			return fmt.Errorf("write narrative: %w", err)
		}
	}
	a.OutputDir = dir
	return nil
}
