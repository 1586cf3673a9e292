package narrate

import (
	"context"
	"strings"

	"github.com/pov-scribe/backend/internal/fault"
)

// Narrative is the generated chapter.
type Narrative struct {
	Text       string `json:"text"`
	WordCount  int    `json:"word_count"`
	SourceHash string `json:"source_hash"`
}

// Engine generates prose from a prompt. Implementations wrap one model
// endpoint.
type Engine interface {
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
	Name() string
}

// Narrator validates a POV request, builds the prompt, and calls the engine.
type Narrator struct {
	engine Engine
}

func New(engine Engine) *Narrator {
	return &Narrator{engine: engine}
}

// EngineName returns the backing engine's name.
func (n *Narrator) EngineName() string {
	if n.engine == nil {
		return ""
	}
	return n.engine.Name()
}

// Rewrite produces a first-person chapter from the attributed transcript.
// The target must match a cast entry (case-insensitive). Identical inputs
// may produce different prose; SourceHash identifies the logical request.
func (n *Narrator) Rewrite(ctx context.Context, transcript string, cast []CastEntry, pov POVRequest) (*Narrative, error) {
	cast = Canonicalize(cast)
	entry, ok := FindTarget(cast, pov.Target)
	if !ok {
		return nil, fault.New(fault.POVInvalidTarget, "pov target %q does not match any cast entry", pov.Target)
	}
	pov.Target = entry.Name

	prompt := BuildPrompt(transcript, cast, pov)
	text, err := n.engine.Generate(ctx, prompt, DefaultGeneration())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if fault.KindOf(err) != "" {
			return nil, err
		}
		return nil, fault.Wrap(fault.NarratorFailed, err, "narrative generation failed")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fault.New(fault.NarratorFailed, "model returned an empty narrative")
	}

	return &Narrative{
		Text:       text,
		WordCount:  len(strings.Fields(text)),
		SourceHash: RequestHash(transcript, cast, pov),
	}, nil
}
