package narrate

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// POVRequest asks for a rewrite from one cast member's vantage.
type POVRequest struct {
	Target    string `json:"target"`
	StyleHint string `json:"style_hint,omitempty"`
}

// GenerationConfig is the sampling configuration sent to the model endpoint.
type GenerationConfig struct {
	MaxOutputTokens int
	Temperature     float64
}

// The narrator samples hotter than the recognizer on purpose: the transcript
// wants fidelity, the chapter wants prose variety.
const (
	proseTemperature       = 0.8
	defaultMaxOutputTokens = 4096
)

// DefaultGeneration returns the generation settings used for POV chapters.
func DefaultGeneration() GenerationConfig {
	return GenerationConfig{
		MaxOutputTokens: defaultMaxOutputTokens,
		Temperature:     proseTemperature,
	}
}

// BuildPrompt assembles the rewrite prompt. It is a pure function of its
// inputs so prompts are diffable and testable without calling the model.
// Callers pass an already canonicalized cast.
func BuildPrompt(transcript string, cast []CastEntry, pov POVRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a novelist. Write a first-person chapter from the point of view of %s.\n", pov.Target)
	if pov.StyleHint != "" {
		fmt.Fprintf(&b, "Style: %s.\n", pov.StyleHint)
	}

	if len(cast) > 0 {
		b.WriteString("\nCast:\n")
		for _, c := range cast {
			if c.Role != "" {
				fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Role)
			} else {
				fmt.Fprintf(&b, "- %s\n", c.Name)
			}
		}
	}

	b.WriteString("\nRewrite the transcript below as that chapter. ")
	b.WriteString("Stay in the scenes: work through them one by one and preserve the dialogue. ")
	b.WriteString("Do not summarize, do not skip exchanges, do not invent events that are not in the transcript.\n")
	b.WriteString("\nTranscript:\n")
	b.WriteString(NormalizeTranscript(transcript))

	return b.String()
}

// NormalizeTranscript canonicalizes line endings and per-line whitespace so
// identical logical transcripts hash identically. Idempotent.
func NormalizeTranscript(transcript string) string {
	lines := strings.Split(strings.ReplaceAll(transcript, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		out = append(out, line)
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}

// RequestHash identifies the logical rewrite request: a digest over the
// canonicalized transcript, cast, and POV request. Two requests with the
// same hash may still produce different prose; the model is not
// deterministic.
func RequestHash(transcript string, cast []CastEntry, pov POVRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "transcript:%s\n", NormalizeTranscript(transcript))
	for _, c := range Canonicalize(cast) {
		fmt.Fprintf(h, "cast:%s=%s\n", c.Name, c.Role)
	}
	fmt.Fprintf(h, "pov:%s\n", strings.ToLower(collapseSpaces(pov.Target)))
	fmt.Fprintf(h, "style:%s\n", collapseSpaces(pov.StyleHint))
	return fmt.Sprintf("%x", h.Sum(nil))
}
