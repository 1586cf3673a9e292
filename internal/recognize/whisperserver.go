package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pov-scribe/backend/internal/fault"
	"github.com/pov-scribe/backend/internal/media"
	"github.com/pov-scribe/backend/internal/workspace"
)

// nativeWindowSeconds is the longest audio span sent to the server in one
// request. Longer inputs are split with ffmpeg and stitched back together.
const nativeWindowSeconds = 600

// decodingTemperature is fixed low to prefer fidelity over creativity.
const decodingTemperature = 0.1

// WhisperServerClient talks to a whisper.cpp server (whisper-server).
type WhisperServerClient struct {
	baseURL    string
	ffmpeg     string
	httpClient *http.Client
	window     float64
}

// NewWhisperServerClient creates a client for the whisper.cpp server. ffmpeg
// is used to split audio that exceeds the native window.
func NewWhisperServerClient(baseURL, ffmpeg string) *WhisperServerClient {
	return &WhisperServerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		ffmpeg:  ffmpeg,
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // transcription can be very long
		},
		window: nativeWindowSeconds,
	}
}

// Transcribe sends the audio to whisper-server, chunking when necessary.
func (c *WhisperServerClient) Transcribe(ctx context.Context, track *media.AudioTrack, model ModelSize, ws *workspace.Workspace) (*Result, error) {
	if c.baseURL == "" {
		return nil, fault.New(fault.RecognizerUnavailable, "no whisper server configured")
	}

	if track.Duration <= c.window {
		segs, lang, err := c.transcribeFile(ctx, track.Path, model)
		if err != nil {
			return nil, err
		}
		return &Result{
			Segments:       Stitch(nil, segs, 0),
			CoveredSeconds: track.Duration,
			Language:       lang,
		}, nil
	}

	chunks, err := c.splitAudio(ctx, track.Path, ws)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for i, chunk := range chunks {
		// Cancellation is checked after every chunk so a long recording can
		// be abandoned promptly.
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		segs, lang, err := c.transcribeFile(ctx, chunk, model)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if i == 0 {
				return nil, err
			}
			return result, fault.Wrap(fault.RecognizerPartial, err,
				"transcription faulted after chunk %d of %d", i, len(chunks))
		}

		offset := float64(i) * c.window
		result.Segments = Stitch(result.Segments, segs, offset)
		result.CoveredSeconds = math.Min(offset+c.window, track.Duration)
		if result.Language == "" {
			result.Language = lang
		}
	}
	return result, nil
}

// serverResponse mirrors the verbose_json transcription payload.
type serverResponse struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
}

func (c *WhisperServerClient) transcribeFile(ctx context.Context, audioPath string, model ModelSize) ([]Segment, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	audioFile, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("open audio: %w", err)
	}
	defer audioFile.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audioFile); err != nil {
		return nil, "", fmt.Errorf("copy audio data: %w", err)
	}

	writer.WriteField("response_format", "verbose_json")
	writer.WriteField("temperature", fmt.Sprintf("%.1f", decodingTemperature))
	writer.WriteField("model", string(model))
	writer.Close()

	url := c.baseURL + "/inference"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, &buf)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	log.Printf("[recognize] sending %s to %s (model=%s)", filepath.Base(audioPath), url, model)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fault.Wrap(fault.RecognizerUnavailable, err, "whisper server request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		fe := fault.New(fault.RecognizerUnavailable, "whisper server error (status %d)", resp.StatusCode)
		fe.Stderr = string(body)
		return nil, "", fe
	}

	var parsed serverResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "", fault.Wrap(fault.RecognizerUnavailable, err, "unreadable whisper server response")
	}

	segs := make([]Segment, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		seg := Segment{Start: s.Start, End: s.End, Text: s.Text}
		if s.AvgLogprob != 0 {
			seg.Confidence = math.Min(1, math.Exp(s.AvgLogprob))
		}
		segs = append(segs, seg)
	}
	return segs, parsed.Language, nil
}

// splitAudio cuts the WAV into window-sized chunks inside the workspace. The
// segment muxer stream-copies PCM, so chunk boundaries land exactly on the
// window multiples used for stitching offsets.
func (c *WhisperServerClient) splitAudio(ctx context.Context, audioPath string, ws *workspace.Workspace) ([]string, error) {
	chunkRoot, err := ws.Allocate("chunks")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(chunkRoot, 0755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}

	pattern := filepath.Join(chunkRoot, "chunk_%03d.wav")
	cmd := exec.CommandContext(ctx, c.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-i", audioPath,
		"-f", "segment",
		"-segment_time", fmt.Sprint(int(c.window)),
		"-c", "copy",
		"-y",
		pattern,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fe := fault.Wrap(fault.RecognizerUnavailable, err, "audio chunking failed")
		fe.Stderr = string(output)
		return nil, fe
	}

	entries, err := os.ReadDir(chunkRoot)
	if err != nil {
		return nil, err
	}
	var chunks []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".wav") {
			chunks = append(chunks, filepath.Join(chunkRoot, e.Name()))
		}
	}
	sort.Strings(chunks)
	if len(chunks) == 0 {
		return nil, fault.New(fault.RecognizerUnavailable, "no audio chunks generated")
	}
	return chunks, nil
}
