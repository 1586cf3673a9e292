package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pov-scribe/backend/internal/config"
	"github.com/pov-scribe/backend/internal/fetch"
	"github.com/pov-scribe/backend/internal/narrate"
	"github.com/pov-scribe/backend/internal/pipeline"
	"github.com/pov-scribe/backend/internal/recognize"
)

// povctl runs the media-to-narrative pipeline once from the command line and
// exits 0 on success, 1 on a partial result, 2 on fatal failure.
func main() {
	input := flag.String("i", "", "path to a local media file")
	url := flag.String("url", "", "media URL (mutually exclusive with -i)")
	outDir := flag.String("o", "out", "output directory for artifacts")
	model := flag.String("model", "base", "recognizer model size: tiny, base, small, medium")
	diarize := flag.Bool("diarize", false, "enable speaker diarization")
	cast := flag.String("cast", "", "cast list, e.g. \"Alice:protagonist,Bob:rival\"")
	pov := flag.String("pov", "", "cast member whose point of view to narrate")
	style := flag.String("style", "", "optional style hint for the narrator")
	timeouts := flag.String("timeouts", "", "per-stage budgets in seconds, e.g. \"recognize=900,narrate=300\"")
	credentials := flag.String("credentials", "", "per-run narrator credentials as provider=ENV_VAR pairs, e.g. \"gemini=GEMINI_API_KEY\"")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
	log := logrus.WithField("component", "povctl")

	if (*input == "") == (*url == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -i or -url is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	orch, err := pipeline.New(pipeline.Options{
		WhisperURL:   cfg.WhisperURL,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
		ScratchRoot:  cfg.ScratchPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "environment check failed: %v\n", err)
		os.Exit(2)
	}

	src := fetch.MediaSource{URL: *url}
	if *input != "" {
		data, err := os.ReadFile(*input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot read %s: %v\n", *input, err)
			os.Exit(2)
		}
		src.Upload = data
		src.Filename = filepath.Base(*input)
	}

	runCfg := pipeline.RunConfig{
		Model:             recognize.ModelSize(*model),
		EnableDiarization: *diarize,
		Cast:              parseCast(*cast),
		POVTarget:         *pov,
		StyleHint:         *style,
		StageTimeouts:     parseTimeouts(*timeouts),
	}
	creds, err := resolveCredentials(*credentials)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	runCfg.Credentials = creds

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sink := pipeline.SinkFunc(func(e pipeline.Event) {
		if e.Type == pipeline.EventStageEnd {
			fmt.Fprintf(os.Stderr, "  %-9s %s %s\n", e.Stage, e.Status, e.Detail)
		}
	})

	art := orch.Run(ctx, src, runCfg, sink)

	for _, w := range art.Warnings {
		log.Warn(w)
	}
	for _, se := range art.StageErrors {
		fmt.Fprintf(os.Stderr, "stage %s degraded (%s): %s\n", se.Stage, se.Kind, se.Message)
	}
	if art.FatalError != nil {
		fmt.Fprintf(os.Stderr, "run failed at %s (%s): %s\n",
			art.FatalError.Stage, art.FatalError.Kind, art.FatalError.Message)
		os.Exit(2)
	}

	if err := art.Materialize(*outDir); err != nil {
		fmt.Fprintf(os.Stderr, "cannot write artifacts: %v\n", err)
		os.Exit(2)
	}
	fmt.Printf("artifacts written to %s\n", art.OutputDir)
	os.Exit(art.ExitCode())
}

// parseCast turns "Alice:protagonist,Bob:rival" into cast entries. A bare
// name without a colon gets an empty role.
func parseCast(s string) []narrate.CastEntry {
	var entries []narrate.CastEntry
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, role, _ := strings.Cut(part, ":")
		entries = append(entries, narrate.CastEntry{Name: strings.TrimSpace(name), Role: strings.TrimSpace(role)})
	}
	return entries
}

// resolveCredentials turns "gemini=GEMINI_API_KEY,openai=OPENAI_KEY" into a
// provider->key map. The flag names environment variables, not key values, so
// secrets stay out of shell history and process listings.
func resolveCredentials(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	creds := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		provider, envVar, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("malformed -credentials entry %q: want provider=ENV_VAR", part)
		}
		value := os.Getenv(strings.TrimSpace(envVar))
		if value == "" {
			return nil, fmt.Errorf("credential for %s: environment variable %s is unset", provider, envVar)
		}
		creds[strings.TrimSpace(provider)] = value
	}
	return creds, nil
}

func parseTimeouts(s string) map[string]int {
	if s == "" {
		return nil
	}
	out := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		stage, secs, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(secs); err == nil && n > 0 {
			out[stage] = n
		}
	}
	return out
}
